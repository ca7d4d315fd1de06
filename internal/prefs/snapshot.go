package prefs

import (
	"context"
	"strconv"
	"strings"

	"github.com/julianstephens/planmate/internal/logger"
)

// Snapshot is a read-only copy of one namespace with typed, defaulting getters.
// Malformed values are treated as absent.
type Snapshot struct {
	Namespace string
	data      map[string]string
}

// Load reads the whole namespace.
func Load(ctx context.Context, s Store, ns string) (Snapshot, error) {
	data, err := s.All(ctx, ns)
	if err != nil {
		return Snapshot{}, err
	}
	return NewSnapshot(ns, data), nil
}

// NewSnapshot wraps an existing map.
func NewSnapshot(ns string, data map[string]string) Snapshot {
	if data == nil {
		data = map[string]string{}
	}
	return Snapshot{Namespace: ns, data: data}
}

func (s Snapshot) Has(key string) bool {
	_, ok := s.data[key]
	return ok
}

func (s Snapshot) String(key, def string) string {
	if v, ok := s.data[key]; ok {
		return v
	}
	return def
}

func (s Snapshot) Int(key string, def int) int {
	v, ok := s.data[key]
	if !ok {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		s.malformed(key, v)
		return def
	}
	return n
}

func (s Snapshot) Int64(key string, def int64) int64 {
	v, ok := s.data[key]
	if !ok {
		return def
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		s.malformed(key, v)
		return def
	}
	return n
}

func (s Snapshot) Bool(key string, def bool) bool {
	v, ok := s.data[key]
	if !ok {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		s.malformed(key, v)
		return def
	}
	return b
}

func (s Snapshot) Float(key string, def float64) float64 {
	v, ok := s.data[key]
	if !ok {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		s.malformed(key, v)
		return def
	}
	return f
}

// WithPrefix returns the keys starting with prefix.
func (s Snapshot) WithPrefix(prefix string) map[string]string {
	out := map[string]string{}
	for k, v := range s.data {
		if strings.HasPrefix(k, prefix) {
			out[k] = v
		}
	}
	return out
}

// Map returns a copy of the underlying data.
func (s Snapshot) Map() map[string]string {
	out := make(map[string]string, len(s.data))
	for k, v := range s.data {
		out[k] = v
	}
	return out
}

func (s Snapshot) Len() int { return len(s.data) }

func (s Snapshot) malformed(key, value string) {
	logger.Debug("malformed preference value, using default", "namespace", s.Namespace, "key", key, "value", value)
}
