// Package libcat embeds the libcat catalog search in a Go program.
//
// The client wires the same listing, visibility and harvesting services the
// HTTP server uses, over a full-text index of your choice and a catalog reader
// that loads records by id.
//
//	client, _ := libcat.New(ctx,
//	    libcat.WithBleve(""), // in-memory
//	    libcat.WithCatalog(myCatalog),
//	)
//	defer client.Close()
//
//	_ = client.Index(ctx, records)
//	res, _ := client.Search(ctx, libcat.Params{Query: "moby dick"})
//
// Harvest walks every record modified in a window, following OAI-PMH
// resumption tokens until the list is exhausted:
//
//	err := client.Harvest(ctx, "2024-01-01", "", func(m *libcat.Manifestation) error {
//	    fmt.Println(m.ID, m.OriginalTitle)
//	    return nil
//	})
package libcat
