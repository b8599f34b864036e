package catalog

import (
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/kailas-cloud/libcat/internal/domain"
)

// selectManifestation lists the columns read by scanManifestation, in order.
const selectManifestation = `SELECT m.id, m.original_title, coalesce(m.title_transcription, ''),
	array(SELECT p.full_name FROM creates c JOIN patrons p ON p.id = c.patron_id
		WHERE c.manifestation_id = m.id ORDER BY c.position),
	array(SELECT p.full_name FROM produces c JOIN patrons p ON p.id = c.patron_id
		WHERE c.manifestation_id = m.id ORDER BY c.position),
	coalesce(m.isbn, ''), coalesce(m.issn, ''),
	coalesce(ct.name, ''), coalesce(l.iso_639_2, ''),
	m.date_of_publication::timestamptz,
	m.required_role_id, m.periodical, m.periodical_master,
	coalesce(m.series_statement_id, 0), coalesce(m.access_address, ''),
	m.created_at, m.updated_at
	FROM manifestations m
	LEFT JOIN carrier_types ct ON ct.id = m.carrier_type_id
	LEFT JOIN languages l ON l.id = m.language_id`

func scanManifestation(row pgx.Row) (*domain.Manifestation, error) {
	var (
		m       domain.Manifestation
		pubDate pgtype.Timestamptz
	)
	err := row.Scan(
		&m.ID, &m.OriginalTitle, &m.TitleTranscription,
		&m.Creators, &m.Publishers,
		&m.ISBN, &m.ISSN,
		&m.CarrierType, &m.Language,
		&pubDate,
		&m.RequiredRoleID, &m.Periodical, &m.PeriodicalMaster,
		&m.SeriesStatementID, &m.AccessAddress,
		&m.CreatedAt, &m.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if pubDate.Valid {
		t := pubDate.Time.UTC()
		m.DateOfPublication = &t
	}
	return &m, nil
}
