// Package catalog reads bibliographic records and their related entities from PostgreSQL.
package catalog

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/kailas-cloud/libcat/internal/domain"
)

// querier is the consumer interface for the connection pool (ISP).
type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Ping(ctx context.Context) error
}

// Repo is a read-only catalog repository.
type Repo struct {
	db querier
}

// New creates a repository over an existing pool.
func New(db querier) *Repo {
	return &Repo{db: db}
}

// Open connects a pgx pool.
func Open(ctx context.Context, dsn string, maxConns int) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse catalog dsn: %w", err)
	}
	if maxConns > 0 {
		cfg.MaxConns = int32(maxConns)
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, domain.Unavailable("catalog", err)
	}
	return pool, nil
}

// Ping checks the database connection.
func (r *Repo) Ping(ctx context.Context) error {
	if err := r.db.Ping(ctx); err != nil {
		return domain.Unavailable("catalog", err)
	}
	return nil
}

// Manifestation returns one record.
func (r *Repo) Manifestation(ctx context.Context, id int64) (*domain.Manifestation, error) {
	m, err := scanManifestation(r.db.QueryRow(ctx, selectManifestation+" WHERE m.id = $1", id))
	if err != nil {
		return nil, wrap("manifestation", err)
	}
	return m, nil
}

// ManifestationByOAIIdentifier returns the record published under an OAI identifier.
func (r *Repo) ManifestationByOAIIdentifier(ctx context.Context, identifier string) (*domain.Manifestation, error) {
	m, err := scanManifestation(r.db.QueryRow(ctx, selectManifestation+" WHERE m.oai_identifier = $1", identifier))
	if err != nil {
		return nil, wrap("manifestation by oai identifier", err)
	}
	return m, nil
}

// Manifestations returns records in the order of ids. Missing ids are skipped.
func (r *Repo) Manifestations(ctx context.Context, ids []int64) ([]*domain.Manifestation, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	rows, err := r.db.Query(ctx, selectManifestation+" WHERE m.id = ANY($1)", ids)
	if err != nil {
		return nil, wrap("manifestations", err)
	}
	defer rows.Close()

	byID := make(map[int64]*domain.Manifestation, len(ids))
	for rows.Next() {
		m, err := scanManifestation(rows)
		if err != nil {
			return nil, wrap("manifestations", err)
		}
		byID[m.ID] = m
	}
	if err := rows.Err(); err != nil {
		return nil, wrap("manifestations", err)
	}

	out := make([]*domain.Manifestation, 0, len(byID))
	for _, id := range ids {
		if m, ok := byID[id]; ok {
			out = append(out, m)
		}
	}
	return out, nil
}

// SeriesStatement returns one series.
func (r *Repo) SeriesStatement(ctx context.Context, id int64) (*domain.SeriesStatement, error) {
	var s domain.SeriesStatement
	err := r.db.QueryRow(ctx,
		"SELECT id, original_title, periodical FROM series_statements WHERE id = $1", id,
	).Scan(&s.ID, &s.OriginalTitle, &s.Periodical)
	if err != nil {
		return nil, wrap("series statement", err)
	}
	return &s, nil
}

// SeriesStatements returns every series ordered by id. They are published as OAI sets.
func (r *Repo) SeriesStatements(ctx context.Context) ([]domain.SeriesStatement, error) {
	rows, err := r.db.Query(ctx, "SELECT id, original_title, periodical FROM series_statements ORDER BY id")
	if err != nil {
		return nil, wrap("series statements", err)
	}
	defer rows.Close()

	var out []domain.SeriesStatement
	for rows.Next() {
		var s domain.SeriesStatement
		if err := rows.Scan(&s.ID, &s.OriginalTitle, &s.Periodical); err != nil {
			return nil, wrap("series statements", err)
		}
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, wrap("series statements", err)
	}
	return out, nil
}

// Patron returns one agent.
func (r *Repo) Patron(ctx context.Context, id int64) (*domain.Patron, error) {
	var p domain.Patron
	err := r.db.QueryRow(ctx, "SELECT id, full_name FROM patrons WHERE id = $1", id).Scan(&p.ID, &p.FullName)
	if err != nil {
		return nil, wrap("patron", err)
	}
	return &p, nil
}

// SubjectByTerm resolves a subject heading by its exact term.
func (r *Repo) SubjectByTerm(ctx context.Context, term string) (*domain.Subject, error) {
	var s domain.Subject
	err := r.db.QueryRow(ctx, "SELECT id, term FROM subjects WHERE term = $1", term).Scan(&s.ID, &s.Term)
	if err != nil {
		return nil, wrap("subject", err)
	}
	return &s, nil
}

// Subjects returns the subjects with the given ids, keyed by id.
func (r *Repo) Subjects(ctx context.Context, ids []int64) (map[int64]domain.Subject, error) {
	out := make(map[int64]domain.Subject, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	rows, err := r.db.Query(ctx, "SELECT id, term FROM subjects WHERE id = ANY($1)", ids)
	if err != nil {
		return nil, wrap("subjects", err)
	}
	defer rows.Close()

	for rows.Next() {
		var s domain.Subject
		if err := rows.Scan(&s.ID, &s.Term); err != nil {
			return nil, wrap("subjects", err)
		}
		out[s.ID] = s
	}
	if err := rows.Err(); err != nil {
		return nil, wrap("subjects", err)
	}
	return out, nil
}

// ModificationSpan returns the earliest and latest record update times.
// An empty catalog yields the zero span.
func (r *Repo) ModificationSpan(ctx context.Context) (domain.TimeSpan, error) {
	var from, until pgtype.Timestamptz
	err := r.db.QueryRow(ctx,
		"SELECT min(updated_at), max(updated_at) FROM manifestations",
	).Scan(&from, &until)
	if err != nil {
		return domain.TimeSpan{}, wrap("modification span", err)
	}
	var span domain.TimeSpan
	if from.Valid {
		span.From = from.Time.UTC()
	}
	if until.Valid {
		span.Until = until.Time.UTC()
	}
	return span, nil
}

// BookmarkedTags counts the bookmark tags attached to the given records, most used first.
func (r *Repo) BookmarkedTags(ctx context.Context, ids []int64, limit int) ([]domain.Tag, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	rows, err := r.db.Query(ctx, `SELECT t.name, count(*) AS n
		FROM bookmarks b
		JOIN taggings tg ON tg.bookmark_id = b.id
		JOIN tags t ON t.id = tg.tag_id
		WHERE b.manifestation_id = ANY($1)
		GROUP BY t.name
		ORDER BY n DESC, t.name
		LIMIT $2`, ids, limit)
	if err != nil {
		return nil, wrap("bookmarked tags", err)
	}
	defer rows.Close()

	var out []domain.Tag
	for rows.Next() {
		var (
			tag domain.Tag
			n   int64
		)
		if err := rows.Scan(&tag.Name, &n); err != nil {
			return nil, wrap("bookmarked tags", err)
		}
		tag.Count = int(n)
		out = append(out, tag)
	}
	if err := rows.Err(); err != nil {
		return nil, wrap("bookmarked tags", err)
	}
	return out, nil
}

// wrap maps driver errors to domain errors.
func wrap(op string, err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("%s: %w", op, domain.ErrNotFound)
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return fmt.Errorf("%s: %s (%s)", op, pgErr.Message, pgErr.Code)
	}
	return domain.Unavailable("catalog "+op, err)
}
