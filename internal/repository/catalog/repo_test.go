package catalog

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/pashagolub/pgxmock/v4"

	"github.com/kailas-cloud/libcat/internal/domain"
)

var manifestationColumns = []string{
	"id", "original_title", "title_transcription", "creators", "publishers",
	"isbn", "issn", "carrier_type", "language", "date_of_publication",
	"required_role_id", "periodical", "periodical_master",
	"series_statement_id", "access_address", "created_at", "updated_at",
}

var (
	created = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	updated = time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC)
)

func addManifestation(rows *pgxmock.Rows, id int64, title string, pub pgtype.Timestamptz) *pgxmock.Rows {
	return rows.AddRow(
		id, title, "", []string{"Melville"}, []string{"Harper"},
		"9780000000001", "", "print", "eng", pub,
		1, false, false,
		int64(0), "", created, updated,
	)
}

func newMock(t *testing.T) (pgxmock.PgxPoolIface, *Repo) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("NewPool: %v", err)
	}
	t.Cleanup(mock.Close)
	return mock, New(mock)
}

func TestManifestation(t *testing.T) {
	mock, repo := newMock(t)
	pub := pgtype.Timestamptz{Time: time.Date(1851, 10, 18, 0, 0, 0, 0, time.UTC), Valid: true}
	mock.ExpectQuery(`(?s)FROM manifestations m.*WHERE m\.id = \$1`).
		WithArgs(int64(1)).
		WillReturnRows(addManifestation(pgxmock.NewRows(manifestationColumns), 1, "Moby Dick", pub))

	m, err := repo.Manifestation(context.Background(), 1)
	if err != nil {
		t.Fatalf("Manifestation: %v", err)
	}
	if m.OriginalTitle != "Moby Dick" || len(m.Creators) != 1 || m.CarrierType != "print" {
		t.Errorf("manifestation = %+v", m)
	}
	if m.DateOfPublication == nil || m.DateOfPublication.Year() != 1851 {
		t.Errorf("date of publication = %v", m.DateOfPublication)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}

func TestManifestation_NotFound(t *testing.T) {
	mock, repo := newMock(t)
	mock.ExpectQuery(`FROM manifestations m`).
		WithArgs(int64(99)).
		WillReturnError(pgx.ErrNoRows)

	_, err := repo.Manifestation(context.Background(), 99)
	if !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestManifestation_ConnectionError(t *testing.T) {
	mock, repo := newMock(t)
	mock.ExpectQuery(`FROM manifestations m`).
		WithArgs(int64(1)).
		WillReturnError(errors.New("connection reset by peer"))

	_, err := repo.Manifestation(context.Background(), 1)
	if !errors.Is(err, domain.ErrUnavailable) {
		t.Fatalf("err = %v, want ErrUnavailable", err)
	}
}

func TestManifestations_PreservesOrder(t *testing.T) {
	mock, repo := newMock(t)
	rows := pgxmock.NewRows(manifestationColumns)
	addManifestation(rows, 1, "Moby Dick", pgtype.Timestamptz{})
	addManifestation(rows, 3, "Kokoro", pgtype.Timestamptz{})
	mock.ExpectQuery(`WHERE m\.id = ANY\(\$1\)`).
		WithArgs([]int64{3, 2, 1}).
		WillReturnRows(rows)

	got, err := repo.Manifestations(context.Background(), []int64{3, 2, 1})
	if err != nil {
		t.Fatalf("Manifestations: %v", err)
	}
	if len(got) != 2 || got[0].ID != 3 || got[1].ID != 1 {
		t.Fatalf("ids = %v, want [3 1]", ids(got))
	}
	if got[1].DateOfPublication != nil {
		t.Errorf("null date must stay nil, got %v", got[1].DateOfPublication)
	}
}

func TestManifestations_Empty(t *testing.T) {
	_, repo := newMock(t)
	got, err := repo.Manifestations(context.Background(), nil)
	if err != nil || got != nil {
		t.Fatalf("got %v, %v", got, err)
	}
}

func TestSeriesStatements(t *testing.T) {
	mock, repo := newMock(t)
	mock.ExpectQuery(`FROM series_statements ORDER BY id`).
		WillReturnRows(pgxmock.NewRows([]string{"id", "original_title", "periodical"}).
			AddRow(int64(1), "Zen Monthly", true).
			AddRow(int64(2), "Penguin Classics", false))

	got, err := repo.SeriesStatements(context.Background())
	if err != nil {
		t.Fatalf("SeriesStatements: %v", err)
	}
	if len(got) != 2 || !got[0].Periodical || got[1].OriginalTitle != "Penguin Classics" {
		t.Errorf("series = %+v", got)
	}
}

func TestSubjectByTerm(t *testing.T) {
	mock, repo := newMock(t)
	mock.ExpectQuery(`FROM subjects WHERE term = \$1`).
		WithArgs("Whaling").
		WillReturnRows(pgxmock.NewRows([]string{"id", "term"}).AddRow(int64(5), "Whaling"))

	s, err := repo.SubjectByTerm(context.Background(), "Whaling")
	if err != nil {
		t.Fatalf("SubjectByTerm: %v", err)
	}
	if s.ID != 5 {
		t.Errorf("subject = %+v", s)
	}
}

func TestSubjects(t *testing.T) {
	mock, repo := newMock(t)
	mock.ExpectQuery(`FROM subjects WHERE id = ANY`).
		WithArgs([]int64{5, 6}).
		WillReturnRows(pgxmock.NewRows([]string{"id", "term"}).
			AddRow(int64(5), "Whaling").
			AddRow(int64(6), "Sea stories"))

	got, err := repo.Subjects(context.Background(), []int64{5, 6})
	if err != nil {
		t.Fatalf("Subjects: %v", err)
	}
	if got[6].Term != "Sea stories" || len(got) != 2 {
		t.Errorf("subjects = %v", got)
	}
}

func TestModificationSpan(t *testing.T) {
	mock, repo := newMock(t)
	mock.ExpectQuery(`SELECT min\(updated_at\), max\(updated_at\)`).
		WillReturnRows(pgxmock.NewRows([]string{"min", "max"}).
			AddRow(pgtype.Timestamptz{Time: created, Valid: true}, pgtype.Timestamptz{Time: updated, Valid: true}))

	span, err := repo.ModificationSpan(context.Background())
	if err != nil {
		t.Fatalf("ModificationSpan: %v", err)
	}
	if !span.From.Equal(created) || !span.Until.Equal(updated) {
		t.Errorf("span = %+v", span)
	}
}

func TestBookmarkedTags(t *testing.T) {
	mock, repo := newMock(t)
	mock.ExpectQuery(`FROM bookmarks b`).
		WithArgs([]int64{1, 2}, 1000).
		WillReturnRows(pgxmock.NewRows([]string{"name", "n"}).
			AddRow("classic", int64(4)).
			AddRow("sea", int64(1)))

	tags, err := repo.BookmarkedTags(context.Background(), []int64{1, 2}, 1000)
	if err != nil {
		t.Fatalf("BookmarkedTags: %v", err)
	}
	if len(tags) != 2 || tags[0].Name != "classic" || tags[0].Count != 4 {
		t.Errorf("tags = %+v", tags)
	}
}

func TestPing(t *testing.T) {
	mock, repo := newMock(t)
	mock.ExpectPing().WillReturnError(errors.New("down"))

	if err := repo.Ping(context.Background()); !errors.Is(err, domain.ErrUnavailable) {
		t.Fatalf("Ping = %v, want ErrUnavailable", err)
	}

	mock.ExpectPing()
	if err := repo.Ping(context.Background()); err != nil {
		t.Fatalf("Ping = %v, want nil", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}

func ids(ms []*domain.Manifestation) []int64 {
	out := make([]int64, len(ms))
	for i, m := range ms {
		out[i] = m.ID
	}
	return out
}
