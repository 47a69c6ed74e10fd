package content

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
)

// ErrUndefinedTable is returned when the content table does not exist
var ErrUndefinedTable = errors.New("content table does not exist")

// recordColumns is the column list every SELECT uses, in scan order
const recordColumns = "id, contenttype, slug, title, status"

// SQLStore is a Lookup over a single SQL table of records
type SQLStore struct {
	db          *sql.DB
	table       string
	ident       string // table, quoted for the driver
	placeholder func(n int) string
	catalog     Catalog
}

// SQLOption configures an SQLStore
type SQLOption func(*SQLStore)

// WithTable overrides the default "content" table name. A dotted name is
// quoted per part, so "cms.content" addresses table content in schema cms.
func WithTable(table string) SQLOption {
	return func(s *SQLStore) {
		s.table = table
	}
}

// WithCatalog lets the store recognise content types that have no records
func WithCatalog(catalog Catalog) SQLOption {
	return func(s *SQLStore) {
		s.catalog = catalog
	}
}

// NewSQLStore creates an SQLStore for the given driver name
// ("sqlite3", "pgx" or "postgres", the latter served by lib/pq)
func NewSQLStore(db *sql.DB, driver string, opts ...SQLOption) *SQLStore {
	s := &SQLStore{
		db:          db,
		table:       "content",
		placeholder: placeholderFor(driver),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.ident = quoteTable(driver, s.table)
	return s
}

func quoteTable(driver, table string) string {
	quote := func(part string) string {
		return `"` + strings.ReplaceAll(part, `"`, `""`) + `"`
	}
	switch driver {
	case "pgx", "postgres":
		quote = pq.QuoteIdentifier
	}
	parts := strings.Split(table, ".")
	for i, part := range parts {
		parts[i] = quote(part)
	}
	return strings.Join(parts, ".")
}

func placeholderFor(driver string) func(int) string {
	switch driver {
	case "pgx", "postgres":
		return func(n int) string { return "$" + strconv.Itoa(n) }
	default:
		return func(int) string { return "?" }
	}
}

// Migrate creates the content table when it does not exist
func (s *SQLStore) Migrate(ctx context.Context) error {
	stmt := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
	id INTEGER PRIMARY KEY,
	contenttype VARCHAR(64) NOT NULL,
	slug VARCHAR(255) NOT NULL,
	title VARCHAR(255) NOT NULL DEFAULT '',
	status VARCHAR(32) NOT NULL DEFAULT 'draft'
)`, s.ident)
	if _, err := s.db.ExecContext(ctx, stmt); err != nil {
		return fmt.Errorf("failed to create content table: %w", convertDBError(err))
	}
	return nil
}

// Insert stores a record
func (s *SQLStore) Insert(ctx context.Context, r Record) error {
	query := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s, %s, %s, %s, %s)",
		s.ident, recordColumns,
		s.placeholder(1), s.placeholder(2), s.placeholder(3), s.placeholder(4), s.placeholder(5))
	if _, err := s.db.ExecContext(ctx, query, r.ID, r.ContentType, r.Slug, r.Title, r.Status); err != nil {
		return fmt.Errorf("failed to insert %s/%d: %w", r.ContentType, r.ID, convertDBError(err))
	}
	return nil
}

// FetchByPath implements Lookup
func (s *SQLStore) FetchByPath(ctx context.Context, path string) (Result, error) {
	parts := SplitPath(path)
	switch len(parts) {
	case 1:
		records, err := s.Query(ctx, parts[0], nil)
		if err != nil {
			return Result{}, err
		}
		if len(records) == 0 && !s.known(parts[0]) {
			return Missing(), nil
		}
		return Ambiguous(records), nil
	case 2:
		r, err := s.FetchByKey(ctx, parts[0], parts[1])
		if errors.Is(err, ErrNotFound) {
			return Missing(), nil
		}
		if err != nil {
			return Result{}, err
		}
		return Found(r), nil
	case 3:
		limit, err := strconv.Atoi(parts[2])
		if err != nil || limit < 0 {
			return Missing(), nil
		}
		var order string
		switch parts[1] {
		case "latest":
			order = "-id"
		case "first":
			order = "id"
		default:
			return Missing(), nil
		}
		records, err := s.Query(ctx, parts[0], map[string]any{"order": order, "limit": limit})
		if err != nil {
			return Result{}, err
		}
		if len(records) == 0 && !s.known(parts[0]) {
			return Missing(), nil
		}
		return Ambiguous(records), nil
	default:
		return Missing(), nil
	}
}

// FetchByKey implements Lookup
func (s *SQLStore) FetchByKey(ctx context.Context, contentType, idOrSlug string) (Record, error) {
	column := "slug"
	var value any = idOrSlug
	if id, ok := ParseID(idOrSlug); ok {
		column = "id"
		value = id
	}

	query := fmt.Sprintf("SELECT %s FROM %s WHERE contenttype = %s AND %s = %s LIMIT 1",
		recordColumns, s.ident, s.placeholder(1), column, s.placeholder(2))

	var r Record
	err := s.db.QueryRowContext(ctx, query, contentType, value).
		Scan(&r.ID, &r.ContentType, &r.Slug, &r.Title, &r.Status)
	if err != nil {
		return Record{}, convertDBError(err)
	}
	return r, nil
}

// Query implements Lookup. The query is a comma separated list of content
// types; parameters filter on id, slug, title and status, with "order" and
// "limit" handled as in MemoryStore.
func (s *SQLStore) Query(ctx context.Context, query string, params map[string]any) ([]Record, error) {
	types := parseQueryTypes(query)
	if len(types) == 0 {
		return nil, fmt.Errorf("empty content query")
	}

	var (
		where []string
		args  []any
	)
	next := func(v any) string {
		args = append(args, v)
		return s.placeholder(len(args))
	}

	in := make([]string, len(types))
	for i, t := range types {
		in[i] = next(t)
	}
	where = append(where, fmt.Sprintf("contenttype IN (%s)", strings.Join(in, ", ")))

	for _, column := range []string{"id", "slug", "title", "status"} {
		if v, ok := params[column]; ok {
			where = append(where, fmt.Sprintf("%s = %s", column, next(v)))
		}
	}

	stmt := fmt.Sprintf("SELECT %s FROM %s WHERE %s ORDER BY %s",
		recordColumns, s.ident, strings.Join(where, " AND "), orderClause(params["order"]))
	if limit, ok := toInt(params["limit"]); ok && limit >= 0 {
		stmt += fmt.Sprintf(" LIMIT %d", limit)
	}

	rows, err := s.db.QueryContext(ctx, stmt, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query content: %w", convertDBError(err))
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		var r Record
		if err := rows.Scan(&r.ID, &r.ContentType, &r.Slug, &r.Title, &r.Status); err != nil {
			return nil, fmt.Errorf("failed to scan content row: %w", err)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read content rows: %w", convertDBError(err))
	}
	if out == nil {
		out = []Record{}
	}
	return out, nil
}

func (s *SQLStore) known(contentType string) bool {
	if s.catalog == nil {
		return false
	}
	for _, ct := range s.catalog.ContentTypes() {
		if ct.Slug == contentType || ct.Key == contentType {
			return true
		}
	}
	return false
}

func orderClause(v any) string {
	order, _ := v.(string)
	switch order {
	case "title":
		return "title ASC"
	case "-title":
		return "title DESC"
	case "-id":
		return "id DESC"
	default:
		return "id ASC"
	}
}

// convertDBError maps driver errors onto content errors
func convertDBError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "42P01" { // undefined_table
		return fmt.Errorf("%w: %s", ErrUndefinedTable, pgErr.Message)
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code.Name() == "undefined_table" {
		return fmt.Errorf("%w: %s", ErrUndefinedTable, pqErr.Message)
	}
	if strings.Contains(err.Error(), "no such table") { // sqlite
		return fmt.Errorf("%w: %v", ErrUndefinedTable, err)
	}
	return err
}
