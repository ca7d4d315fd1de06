// Package records stores plans and conversations as indexed rows over the
// flat preference store: "<prefix>_count" plus "<prefix>_<i>_<field>" keys.
package records

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/julianstephens/planmate/internal/prefs"
)

var ErrNotFound = errors.New("record not found")

// Fields reads one row's fields out of a namespace snapshot.
type Fields struct {
	snap   prefs.Snapshot
	prefix string
}

func (f Fields) key(field string) string { return f.prefix + field }

func (f Fields) Has(field string) bool                   { return f.snap.Has(f.key(field)) }
func (f Fields) String(field, def string) string         { return f.snap.String(f.key(field), def) }
func (f Fields) Int(field string, def int) int           { return f.snap.Int(f.key(field), def) }
func (f Fields) Int64(field string, def int64) int64     { return f.snap.Int64(f.key(field), def) }
func (f Fields) Bool(field string, def bool) bool        { return f.snap.Bool(f.key(field), def) }
func (f Fields) Float(field string, def float64) float64 { return f.snap.Float(f.key(field), def) }

// Codec maps a record type to and from its row fields.
type Codec[T any] struct {
	Namespace string
	Prefix    string
	ID        func(T) int64
	// Encode returns field name → value. Field names may contain underscores.
	Encode func(T) map[string]string
	// Decode builds a record from row index i, applying defaults for missing fields.
	Decode func(i int, f Fields) T
}

// Table is an indexed collection of T. Mutations hold the table lock for the
// whole read-modify-write and commit as one batch.
type Table[T any] struct {
	store prefs.Store
	codec Codec[T]
	mu    sync.Mutex
}

func NewTable[T any](store prefs.Store, codec Codec[T]) *Table[T] {
	return &Table[T]{store: store, codec: codec}
}

func (t *Table[T]) countKey() string { return t.codec.Prefix + "_count" }

func (t *Table[T]) rowPrefix(i int) string {
	return t.codec.Prefix + "_" + strconv.Itoa(i) + "_"
}

func (t *Table[T]) fieldKey(i int, field string) string { return t.rowPrefix(i) + field }

// view is a loaded namespace with its id → index map.
type view[T any] struct {
	t     *Table[T]
	snap  prefs.Snapshot
	count int
	index map[int64]int
}

func (t *Table[T]) load(ctx context.Context) (*view[T], error) {
	snap, err := prefs.Load(ctx, t.store, t.codec.Namespace)
	if err != nil {
		return nil, fmt.Errorf("failed to load %s: %w", t.codec.Namespace, err)
	}
	v := &view[T]{t: t, snap: snap, count: snap.Int(t.countKey(), 0)}
	if v.count < 0 {
		v.count = 0
	}
	v.index = make(map[int64]int, v.count)
	for i := 0; i < v.count; i++ {
		id := snap.Int64(t.fieldKey(i, "id"), int64(i))
		if _, dup := v.index[id]; !dup {
			v.index[id] = i
		}
	}
	return v, nil
}

func (v *view[T]) row(i int) T {
	return v.t.codec.Decode(i, Fields{snap: v.snap, prefix: v.t.rowPrefix(i)})
}

func (v *view[T]) get(id int64) (T, int, bool) {
	i, ok := v.index[id]
	if !ok {
		var zero T
		return zero, -1, false
	}
	return v.row(i), i, true
}

func (v *view[T]) all() []T {
	out := make([]T, 0, v.count)
	for i := 0; i < v.count; i++ {
		out = append(out, v.row(i))
	}
	return out
}

// rawRow returns the stored keys of row i with the row prefix stripped.
func (v *view[T]) rawRow(i int) map[string]string {
	prefix := v.t.rowPrefix(i)
	out := map[string]string{}
	for k, val := range v.snap.WithPrefix(prefix) {
		out[strings.TrimPrefix(k, prefix)] = val
	}
	return out
}

// update runs fn against a fresh view under the table lock and commits the batch.
func (t *Table[T]) update(ctx context.Context, fn func(v *view[T], ed *prefs.Editor) error) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	v, err := t.load(ctx)
	if err != nil {
		return err
	}
	ed := prefs.Edit(t.store)
	if err := fn(v, ed); err != nil {
		return err
	}
	return ed.Commit(ctx)
}

func (t *Table[T]) LoadAll(ctx context.Context) ([]T, error) {
	v, err := t.load(ctx)
	if err != nil {
		return nil, err
	}
	return v.all(), nil
}

func (t *Table[T]) Get(ctx context.Context, id int64) (T, bool, error) {
	v, err := t.load(ctx)
	if err != nil {
		var zero T
		return zero, false, err
	}
	rec, _, ok := v.get(id)
	return rec, ok, nil
}

func (t *Table[T]) Count(ctx context.Context) (int, error) {
	v, err := t.load(ctx)
	if err != nil {
		return 0, err
	}
	return v.count, nil
}

// Save overwrites the row holding rec's id, or appends a new row.
func (t *Table[T]) Save(ctx context.Context, rec T) error {
	return t.update(ctx, func(v *view[T], ed *prefs.Editor) error {
		v.put(ed, rec)
		return nil
	})
}

func (v *view[T]) put(ed *prefs.Editor, rec T) {
	ns := v.t.codec.Namespace
	i, ok := v.index[v.t.codec.ID(rec)]
	if ok {
		// Drop fields the new encoding no longer has, e.g. trimmed messages.
		ed.RemovePrefix(ns, v.t.rowPrefix(i))
	} else {
		i = v.count
		v.count++
		v.index[v.t.codec.ID(rec)] = i
		ed.PutInt(ns, v.t.countKey(), v.count)
	}
	for field, val := range v.t.codec.Encode(rec) {
		ed.PutString(ns, v.t.fieldKey(i, field), val)
	}
}

// Delete removes the row holding id and shifts later rows down by one,
// carrying every stored field across unchanged.
func (t *Table[T]) Delete(ctx context.Context, id int64) (bool, error) {
	found := false
	err := t.update(ctx, func(v *view[T], ed *prefs.Editor) error {
		i, ok := v.index[id]
		if !ok {
			return nil
		}
		found = true
		v.remove(ed, i)
		return nil
	})
	return found, err
}

func (v *view[T]) remove(ed *prefs.Editor, i int) {
	ns := v.t.codec.Namespace
	for j := i; j < v.count-1; j++ {
		ed.RemovePrefix(ns, v.t.rowPrefix(j))
		for field, val := range v.rawRow(j + 1) {
			ed.PutString(ns, v.t.fieldKey(j, field), val)
		}
	}
	ed.RemovePrefix(ns, v.t.rowPrefix(v.count-1))
	v.count--
	ed.PutInt(ns, v.t.countKey(), v.count)
}

// queueReplace queues ops that swap every stored row for recs, in order.
// The caller holds the table lock and commits ed.
func (t *Table[T]) queueReplace(ctx context.Context, ed *prefs.Editor, recs []T) error {
	v, err := t.load(ctx)
	if err != nil {
		return err
	}
	ns := t.codec.Namespace
	for i := 0; i < v.count; i++ {
		ed.RemovePrefix(ns, t.rowPrefix(i))
	}
	seen := make(map[int64]bool, len(recs))
	for i, rec := range recs {
		id := t.codec.ID(rec)
		if seen[id] {
			return fmt.Errorf("duplicate %s id %d", t.codec.Prefix, id)
		}
		seen[id] = true
		for field, val := range t.codec.Encode(rec) {
			ed.PutString(ns, t.fieldKey(i, field), val)
		}
	}
	ed.PutInt(ns, t.countKey(), len(recs))
	return nil
}
