package store

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/jmoiron/sqlx"
)

// Filter is a set of column = value conditions joined with AND.
type Filter map[string]any

// Fields is a set of column assignments for a partial update.
type Fields map[string]any

// Table is the typed record access layer for one entity. Column names used in
// filters, updates and ordering must be known to the table.
type Table[T any] struct {
	store   *Store
	name    string
	columns []string
	known   map[string]bool
	insert  []string
	touch   bool
}

// NewTable describes table name whose rows scan into T. columns lists every
// selectable column and insert the subset written by Create. When the table
// has an updated_at column, Update sets it to NOW().
func NewTable[T any](s *Store, name string, columns, insert []string) *Table[T] {
	known := make(map[string]bool, len(columns))
	for _, c := range columns {
		known[c] = true
	}
	return &Table[T]{
		store:   s,
		name:    name,
		columns: columns,
		known:   known,
		insert:  insert,
		touch:   known["updated_at"],
	}
}

// Columns returns the comma separated select list, each column prefixed with
// alias when it is non-empty.
func (t *Table[T]) Columns(alias string) string {
	if alias == "" {
		return strings.Join(t.columns, ", ")
	}
	prefixed := make([]string, len(t.columns))
	for i, c := range t.columns {
		prefixed[i] = alias + "." + c
	}
	return strings.Join(prefixed, ", ")
}

func (t *Table[T]) FindAll(ctx context.Context, filter Filter, orderBy string) ([]T, error) {
	where, args, err := t.where(filter, 1)
	if err != nil {
		return nil, err
	}
	order, err := t.orderBy(orderBy)
	if err != nil {
		return nil, err
	}

	query := fmt.Sprintf("SELECT %s FROM %s%s ORDER BY %s", t.Columns(""), t.name, where, order)
	rows := []T{}
	if err := sqlx.SelectContext(ctx, t.store.conn(ctx), &rows, query, args...); err != nil {
		return nil, classify(err)
	}
	return rows, nil
}

func (t *Table[T]) FindByID(ctx context.Context, id int) (T, error) {
	return t.FindOne(ctx, Filter{"id": id})
}

// FindOne returns the first row matching filter, ordered by id.
func (t *Table[T]) FindOne(ctx context.Context, filter Filter) (T, error) {
	var row T
	where, args, err := t.where(filter, 1)
	if err != nil {
		return row, err
	}

	query := fmt.Sprintf("SELECT %s FROM %s%s ORDER BY id LIMIT 1", t.Columns(""), t.name, where)
	if err := sqlx.GetContext(ctx, t.store.conn(ctx), &row, query, args...); err != nil {
		return row, classify(err)
	}
	return row, nil
}

func (t *Table[T]) Count(ctx context.Context, filter Filter) (int, error) {
	where, args, err := t.where(filter, 1)
	if err != nil {
		return 0, err
	}

	var count int
	query := fmt.Sprintf("SELECT COUNT(*) FROM %s%s", t.name, where)
	if err := sqlx.GetContext(ctx, t.store.conn(ctx), &count, query, args...); err != nil {
		return 0, classify(err)
	}
	return count, nil
}

// Create inserts the insert columns of row and returns the stored row.
func (t *Table[T]) Create(ctx context.Context, row T) (T, error) {
	var zero T
	rows, err := sqlx.NamedQueryContext(ctx, t.store.conn(ctx), t.insertQuery()+" RETURNING id", row)
	if err != nil {
		return zero, classify(err)
	}
	defer rows.Close()

	var id int
	if rows.Next() {
		if err := rows.Scan(&id); err != nil {
			return zero, classify(err)
		}
	}
	if err := rows.Err(); err != nil {
		return zero, classify(err)
	}
	if id == 0 {
		return zero, fmt.Errorf("insert into %s returned no id", t.name)
	}
	_ = rows.Close()

	return t.FindByID(ctx, id)
}

// CreateMany inserts every row in a single statement.
func (t *Table[T]) CreateMany(ctx context.Context, rows []T) (int, error) {
	if len(rows) == 0 {
		return 0, nil
	}
	res, err := sqlx.NamedExecContext(ctx, t.store.conn(ctx), t.insertQuery(), rows)
	if err != nil {
		return 0, classify(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, classify(err)
	}
	return int(n), nil
}

func (t *Table[T]) Update(ctx context.Context, id int, fields Fields) (T, error) {
	return t.UpdateWhere(ctx, id, nil, fields)
}

// UpdateWhere applies fields to row id only while guard still matches it.
// It returns ErrNotFound when no row satisfied both conditions.
func (t *Table[T]) UpdateWhere(ctx context.Context, id int, guard Filter, fields Fields) (T, error) {
	var zero T
	if len(fields) == 0 {
		return zero, fmt.Errorf("update %s: no fields", t.name)
	}

	keys := sortedKeys(fields)
	sets := make([]string, 0, len(keys)+1)
	args := make([]any, 0, len(keys)+len(guard)+1)
	for _, k := range keys {
		if !t.known[k] || k == "id" {
			return zero, fmt.Errorf("update %s: unknown column %q", t.name, k)
		}
		args = append(args, fields[k])
		sets = append(sets, fmt.Sprintf("%s = $%d", k, len(args)))
	}
	if t.touch && fields["updated_at"] == nil {
		sets = append(sets, "updated_at = NOW()")
	}

	cond := Filter{"id": id}
	for k, v := range guard {
		cond[k] = v
	}
	where, whereArgs, err := t.where(cond, len(args)+1)
	if err != nil {
		return zero, err
	}
	args = append(args, whereArgs...)

	query := fmt.Sprintf("UPDATE %s SET %s%s", t.name, strings.Join(sets, ", "), where)
	res, err := t.store.conn(ctx).ExecContext(ctx, query, args...)
	if err != nil {
		return zero, classify(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return zero, classify(err)
	}
	if n == 0 {
		return zero, ErrNotFound
	}
	return t.FindByID(ctx, id)
}

// Delete removes row id and returns it as it was before deletion.
func (t *Table[T]) Delete(ctx context.Context, id int) (T, error) {
	var row T
	query := fmt.Sprintf("DELETE FROM %s WHERE id = $1 RETURNING %s", t.name, t.Columns(""))
	if err := sqlx.GetContext(ctx, t.store.conn(ctx), &row, query, id); err != nil {
		return row, classify(err)
	}
	return row, nil
}

// DeleteWhere removes every row matching a non-empty filter.
func (t *Table[T]) DeleteWhere(ctx context.Context, filter Filter) (int, error) {
	if len(filter) == 0 {
		return 0, fmt.Errorf("delete from %s: empty filter", t.name)
	}
	where, args, err := t.where(filter, 1)
	if err != nil {
		return 0, err
	}

	res, err := t.store.conn(ctx).ExecContext(ctx, "DELETE FROM "+t.name+where, args...)
	if err != nil {
		return 0, classify(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, classify(err)
	}
	return int(n), nil
}

func (t *Table[T]) insertQuery() string {
	named := make([]string, len(t.insert))
	for i, c := range t.insert {
		named[i] = ":" + c
	}
	return fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		t.name, strings.Join(t.insert, ", "), strings.Join(named, ", "))
}

// where renders filter as a WHERE clause whose placeholders start at $first.
// Keys are emitted in sorted order so the same filter yields the same SQL.
func (t *Table[T]) where(filter Filter, first int) (string, []any, error) {
	if len(filter) == 0 {
		return "", nil, nil
	}

	keys := sortedKeys(filter)
	conds := make([]string, 0, len(keys))
	args := make([]any, 0, len(keys))
	for _, k := range keys {
		if !t.known[k] {
			return "", nil, fmt.Errorf("filter %s: unknown column %q", t.name, k)
		}
		v := filter[k]
		if v == nil {
			conds = append(conds, k+" IS NULL")
			continue
		}
		args = append(args, v)
		conds = append(conds, fmt.Sprintf("%s = $%d", k, first+len(args)-1))
	}
	return " WHERE " + strings.Join(conds, " AND "), args, nil
}

// orderBy validates a "col [ASC|DESC], ..." clause. Empty means id ASC.
func (t *Table[T]) orderBy(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "id ASC", nil
	}

	parts := strings.Split(raw, ",")
	terms := make([]string, 0, len(parts))
	for _, part := range parts {
		fields := strings.Fields(part)
		if len(fields) == 0 || len(fields) > 2 {
			return "", fmt.Errorf("order %s: malformed term %q", t.name, part)
		}
		col := fields[0]
		if !t.known[col] {
			return "", fmt.Errorf("order %s: unknown column %q", t.name, col)
		}
		dir := "ASC"
		if len(fields) == 2 {
			dir = strings.ToUpper(fields[1])
			if dir != "ASC" && dir != "DESC" {
				return "", fmt.Errorf("order %s: bad direction %q", t.name, fields[1])
			}
		}
		terms = append(terms, col+" "+dir)
	}
	return strings.Join(terms, ", "), nil
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
