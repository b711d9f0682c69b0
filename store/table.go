package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"math"
	"time"
)

// Model is any entity storable in a partitioned table.
type Model interface {
	SortKey() int64
}

// QueryOption bounds a descending range scan over one partition.
type QueryOption struct {
	// StartSortValue is the exclusive upper bound for the scan; zero
	// means "from the newest row".
	StartSortValue int64
	Limit          int
}

// QueryResult is one page of a descending scan. EndSortValue feeds the
// next page's StartSortValue.
type QueryResult[PT any] struct {
	Items          []PT
	StartSortValue int64
	EndSortValue   int64
}

// Table provides typed access to one (partition, key, value, sort_by)
// entity table. PT is the pointer type carrying the sort key.
type Table[T any, PT interface {
	*T
	Model
}] struct {
	db   *DB
	name string
}

// NewTable binds a typed table to one of the migrated entity tables.
func NewTable[T any, PT interface {
	*T
	Model
}](db *DB, name string) *Table[T, PT] {
	return &Table[T, PT]{db: db, name: name}
}

func (t *Table[T, PT]) decode(raw string) (PT, error) {
	v := PT(new(T))
	if err := json.Unmarshal([]byte(raw), v); err != nil {
		return nil, fmt.Errorf("%w: decode %s row: %v", ErrStorage, t.name, err)
	}
	return v, nil
}

// Get returns the row at (partition, key), or ErrNotFound.
func (t *Table[T, PT]) Get(partition, key string) (PT, error) {
	var raw string
	err := t.db.QueryRow(
		fmt.Sprintf(`SELECT value FROM %s WHERE partition = ? AND key = ?`, t.name),
		partition, key).Scan(&raw)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("%w: get %s: %v", ErrStorage, t.name, err)
	}
	return t.decode(raw)
}

// Set upserts the row at (partition, key) with the value's sort key.
func (t *Table[T, PT]) Set(partition, key string, v PT) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("%w: encode %s row: %v", ErrStorage, t.name, err)
	}
	_, err = t.db.Exec(
		fmt.Sprintf(`
			INSERT INTO %s (partition, key, value, sort_by)
			VALUES (?, ?, ?, ?)
			ON CONFLICT(partition, key) DO UPDATE SET
				value = excluded.value,
				sort_by = excluded.sort_by`, t.name),
		partition, key, string(raw), v.SortKey())
	if err != nil {
		return fmt.Errorf("%w: set %s: %v", ErrStorage, t.name, err)
	}
	return nil
}

// Remove deletes the row at (partition, key). Missing rows are not an
// error.
func (t *Table[T, PT]) Remove(partition, key string) error {
	_, err := t.db.Exec(
		fmt.Sprintf(`DELETE FROM %s WHERE partition = ? AND key = ?`, t.name),
		partition, key)
	if err != nil {
		return fmt.Errorf("%w: remove %s: %v", ErrStorage, t.name, err)
	}
	return nil
}

// Last returns the row with the highest sort value in the partition.
func (t *Table[T, PT]) Last(partition string) (PT, error) {
	var raw string
	err := t.db.QueryRow(
		fmt.Sprintf(`
			SELECT value FROM %s WHERE partition = ?
			ORDER BY sort_by DESC LIMIT 1`, t.name),
		partition).Scan(&raw)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("%w: last %s: %v", ErrStorage, t.name, err)
	}
	return t.decode(raw)
}

// Clear deletes every row in the table.
func (t *Table[T, PT]) Clear() error {
	_, err := t.db.Exec(fmt.Sprintf(`DELETE FROM %s`, t.name))
	if err != nil {
		return fmt.Errorf("%w: clear %s: %v", ErrStorage, t.name, err)
	}
	return nil
}

// Count returns the number of rows in the partition.
func (t *Table[T, PT]) Count(partition string) (int, error) {
	var n int
	err := t.db.QueryRow(
		fmt.Sprintf(`SELECT COUNT(*) FROM %s WHERE partition = ?`, t.name),
		partition).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("%w: count %s: %v", ErrStorage, t.name, err)
	}
	return n, nil
}

// Query returns one page of rows ordered by sort value descending,
// bounded above (exclusively) by opt.StartSortValue.
func (t *Table[T, PT]) Query(partition string, opt QueryOption) (*QueryResult[PT], error) {
	limit := opt.Limit
	if limit <= 0 {
		limit = 100
	}
	start := opt.StartSortValue
	if start <= 0 {
		start = math.MaxInt64
	}
	rows, err := t.db.Query(
		fmt.Sprintf(`
			SELECT value FROM %s
			WHERE partition = ? AND sort_by < ?
			ORDER BY sort_by DESC
			LIMIT ?`, t.name),
		partition, start, limit)
	if err != nil {
		return nil, fmt.Errorf("%w: query %s: %v", ErrStorage, t.name, err)
	}
	defer func() { _ = rows.Close() }()

	result := &QueryResult[PT]{}
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, fmt.Errorf("%w: scan %s: %v", ErrStorage, t.name, err)
		}
		v, err := t.decode(raw)
		if err != nil {
			return nil, err
		}
		if len(result.Items) == 0 {
			result.StartSortValue = v.SortKey()
		}
		result.EndSortValue = v.SortKey()
		result.Items = append(result.Items, v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: iterate %s: %v", ErrStorage, t.name, err)
	}
	return result, nil
}

// Filter scans the partition in descending sort order, applying the
// predicate to each row until limit matches accumulate. The context is
// checked before every predicate evaluation so a long scan can be
// cancelled mid-flight.
func (t *Table[T, PT]) Filter(ctx context.Context, partition string, opt QueryOption, predicate func(PT) bool) ([]PT, error) {
	limit := opt.Limit
	if limit <= 0 {
		limit = 100
	}
	start := opt.StartSortValue
	if start <= 0 {
		start = math.MaxInt64
	}
	rows, err := t.db.QueryContext(ctx,
		fmt.Sprintf(`
			SELECT value FROM %s
			WHERE partition = ? AND sort_by < ?
			ORDER BY sort_by DESC`, t.name),
		partition, start)
	if err != nil {
		return nil, fmt.Errorf("%w: filter %s: %v", ErrStorage, t.name, err)
	}
	defer func() { _ = rows.Close() }()

	var items []PT
	for rows.Next() {
		if err := ctx.Err(); err != nil {
			return items, err
		}
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, fmt.Errorf("%w: scan %s: %v", ErrStorage, t.name, err)
		}
		v, err := t.decode(raw)
		if err != nil {
			return nil, err
		}
		if predicate(v) {
			items = append(items, v)
			if len(items) >= limit {
				break
			}
		}
	}
	if err := ctx.Err(); err != nil {
		return items, err
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: iterate %s: %v", ErrStorage, t.name, err)
	}
	return items, nil
}

// IsCacheExpired reports whether a row stamped at cachedAt (unix
// milliseconds) has outlived its TTL and must be treated as a miss.
func IsCacheExpired(cachedAt int64, ttl time.Duration) bool {
	if cachedAt <= 0 {
		return true
	}
	return time.Now().UnixMilli()-cachedAt > ttl.Milliseconds()
}
