package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/dentalhub/dentalhub/backend/go-services/internal/document"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// DBTX is the subset of pgxpool.Pool / pgx.Tx used by PostgresRepo.
type DBTX interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresRepo implements Store on a clinic_documents table.
type PostgresRepo struct {
	db    DBTX
	pool  *pgxpool.Pool
	table string
}

// NewPostgresRepo uses the table "<prefix>clinic_documents".
func NewPostgresRepo(pool *pgxpool.Pool, tablePrefix string) *PostgresRepo {
	return &PostgresRepo{db: pool, pool: pool, table: tablePrefix + "clinic_documents"}
}

const documentColumns = `id, clinic_id, created_by, title, content, category, is_template,
	is_shared_with_patients, tags, version, created_at, updated_at`

// EnsureSchema creates the table and its list index when missing.
func (r *PostgresRepo) EnsureSchema(ctx context.Context) error {
	ddl := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %[1]s (
			id text PRIMARY KEY DEFAULT gen_random_uuid()::text,
			clinic_id text NOT NULL,
			created_by text NOT NULL,
			title text NOT NULL,
			content text NOT NULL,
			category text CHECK (category IN ('policies','protocols','forms','instructions','insurance','other')),
			is_template boolean NOT NULL DEFAULT false,
			is_shared_with_patients boolean NOT NULL DEFAULT false,
			tags text[] NOT NULL DEFAULT '{}',
			version integer NOT NULL DEFAULT 1 CHECK (version >= 1),
			created_at timestamptz NOT NULL DEFAULT now(),
			updated_at timestamptz NOT NULL DEFAULT now()
		);
		CREATE INDEX IF NOT EXISTS %[2]s_clinic_updated_idx ON %[1]s (clinic_id, updated_at DESC);
	`, r.table, strings.ReplaceAll(r.table, ".", "_"))
	if _, err := r.db.Exec(ctx, ddl); err != nil {
		return fmt.Errorf("ensure %s schema: %w", r.table, err)
	}
	return nil
}

func scanDocument(row pgx.Row) (*document.Document, error) {
	var d document.Document
	var category *string
	err := row.Scan(
		&d.ID,
		&d.ClinicID,
		&d.CreatedBy,
		&d.Title,
		&d.Content,
		&category,
		&d.IsTemplate,
		&d.IsSharedWithPatients,
		&d.Tags,
		&d.Version,
		&d.CreatedAt,
		&d.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if category != nil {
		d.Category = document.Category(*category)
	}
	if d.Tags == nil {
		d.Tags = []string{}
	}
	return &d, nil
}

func nullableCategory(c document.Category) any {
	if c == "" {
		return nil
	}
	return string(c)
}

func (r *PostgresRepo) Insert(ctx context.Context, doc *document.Document) error {
	tags := doc.Tags
	if tags == nil {
		tags = []string{}
	}
	query := fmt.Sprintf(`
		INSERT INTO %s (clinic_id, created_by, title, content, category, is_template, is_shared_with_patients, tags, version)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING %s
	`, r.table, documentColumns)
	stored, err := scanDocument(r.db.QueryRow(ctx, query,
		doc.ClinicID,
		doc.CreatedBy,
		doc.Title,
		doc.Content,
		nullableCategory(doc.Category),
		doc.IsTemplate,
		doc.IsSharedWithPatients,
		tags,
		doc.Version,
	))
	if err != nil {
		return fmt.Errorf("insert document: %w", err)
	}
	*doc = *stored
	return nil
}

func (r *PostgresRepo) FindByID(ctx context.Context, id string) (*document.Document, error) {
	query := fmt.Sprintf(`SELECT %s FROM %s WHERE id = $1`, documentColumns, r.table)
	d, err := scanDocument(r.db.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get document: %w", err)
	}
	return d, nil
}

// escapeLike escapes LIKE metacharacters so the term matches literally.
func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}

// buildFindQuery returns the SELECT for a Filter.
func buildFindQuery(table string, f Filter) (string, []any) {
	var b strings.Builder
	args := []any{f.ClinicID}
	fmt.Fprintf(&b, "SELECT %s FROM %s WHERE clinic_id = $1", documentColumns, table)
	if f.Category != "" {
		args = append(args, string(f.Category))
		fmt.Fprintf(&b, " AND category = $%d", len(args))
	}
	if term := strings.TrimSpace(f.Search); term != "" {
		args = append(args, "%"+escapeLike(term)+"%")
		n := len(args)
		fmt.Fprintf(&b, ` AND (title ILIKE $%d ESCAPE '\' OR EXISTS (SELECT 1 FROM unnest(tags) AS tag WHERE tag ILIKE $%d ESCAPE '\'))`, n, n)
	}
	b.WriteString(" ORDER BY updated_at DESC, id ASC")
	return b.String(), args
}

func (r *PostgresRepo) Find(ctx context.Context, f Filter) ([]*document.Document, error) {
	query, args := buildFindQuery(r.table, f)
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list documents: %w", err)
	}
	defer rows.Close()
	out := []*document.Document{}
	for rows.Next() {
		d, err := scanDocument(rows)
		if err != nil {
			return nil, fmt.Errorf("scan document: %w", err)
		}
		out = append(out, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list documents: %w", err)
	}
	return out, nil
}

// buildUpdateQuery returns a conditional UPDATE that only matches the
// expected version.
func buildUpdateQuery(table, id string, expectedVersion int, patch document.Patch) (string, []any) {
	sets := []string{}
	args := []any{}
	add := func(col string, v any) {
		args = append(args, v)
		sets = append(sets, fmt.Sprintf("%s = $%d", col, len(args)))
	}
	if patch.Title != nil {
		add("title", *patch.Title)
	}
	if patch.Content != nil {
		add("content", *patch.Content)
	}
	if patch.Category != nil {
		add("category", nullableCategory(*patch.Category))
	}
	if patch.IsTemplate != nil {
		add("is_template", *patch.IsTemplate)
	}
	if patch.IsSharedWithPatients != nil {
		add("is_shared_with_patients", *patch.IsSharedWithPatients)
	}
	if patch.Tags != nil {
		tags := *patch.Tags
		if tags == nil {
			tags = []string{}
		}
		add("tags", tags)
	}
	add("version", expectedVersion+1)
	sets = append(sets, "updated_at = now()")
	args = append(args, id, expectedVersion)
	query := fmt.Sprintf("UPDATE %s SET %s WHERE id = $%d AND version = $%d RETURNING %s",
		table, strings.Join(sets, ", "), len(args)-1, len(args), documentColumns)
	return query, args
}

func (r *PostgresRepo) Update(ctx context.Context, id string, expectedVersion int, patch document.Patch) (*document.Document, error) {
	query, args := buildUpdateQuery(r.table, id, expectedVersion, patch)
	d, err := scanDocument(r.db.QueryRow(ctx, query, args...))
	if err == nil {
		return d, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("update document: %w", err)
	}
	if _, ferr := r.FindByID(ctx, id); ferr != nil {
		return nil, ferr
	}
	return nil, ErrVersionConflict
}

func (r *PostgresRepo) SetShared(ctx context.Context, id string, shared bool) (*document.Document, error) {
	query := fmt.Sprintf(`
		UPDATE %s
		SET is_shared_with_patients = $2,
			updated_at = CASE WHEN is_shared_with_patients = $2 THEN updated_at ELSE now() END
		WHERE id = $1
		RETURNING %s
	`, r.table, documentColumns)
	d, err := scanDocument(r.db.QueryRow(ctx, query, id, shared))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("set document sharing: %w", err)
	}
	return d, nil
}

func (r *PostgresRepo) Delete(ctx context.Context, id string) error {
	query := fmt.Sprintf(`DELETE FROM %s WHERE id = $1`, r.table)
	if _, err := r.db.Exec(ctx, query, id); err != nil {
		return fmt.Errorf("delete document: %w", err)
	}
	return nil
}

func (r *PostgresRepo) Ping(ctx context.Context) error {
	if r.pool == nil {
		return nil
	}
	return r.pool.Ping(ctx)
}
