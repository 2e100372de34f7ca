// Package docstore defines the hierarchical document store the sample
// lifecycle runs against. Paths alternate collection and document segments,
// e.g. "sites/kajang/fg_samples/delish/samples/choc_bar_998877".
package docstore

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/vbonduro/fgsamples/internal/domain"
)

// ErrNotFound is returned by Get and Update when the document is absent.
var ErrNotFound = domain.ErrNotFound

// Fields holds document values. Supported value types are string,
// time.Time and ServerTimestamp.
type Fields map[string]any

type serverTimestamp struct{}

// ServerTimestamp asks the store to stamp the field with its own clock at
// write time.
var ServerTimestamp = serverTimestamp{}

// Document is a stored document and its decoded fields.
type Document struct {
	Path   string
	ID     string
	Fields Fields
}

// String returns the string value of field, or "" when absent or not a string.
func (d *Document) String(field string) string {
	s, _ := d.Fields[field].(string)
	return s
}

// Time returns the time value of field, or the zero time.
func (d *Document) Time(field string) time.Time {
	t, _ := d.Fields[field].(time.Time)
	return t
}

type Op int

const (
	OpEqual Op = iota
	OpRange
)

// Filter restricts a Query to documents whose string field matches.
type Filter struct {
	Field string
	Op    Op
	Value string
	Upper string
}

func Equal(field, value string) Filter {
	return Filter{Field: field, Op: OpEqual, Value: value}
}

// Range matches lo <= field <= hi, compared as strings.
func Range(field, lo, hi string) Filter {
	return Filter{Field: field, Op: OpRange, Value: lo, Upper: hi}
}

// PrefixEnd is the upper bound for a Range matching every value that starts
// with prefix.
func PrefixEnd(prefix string) string {
	return prefix + "\uf8ff"
}

type SetOptions struct {
	Merge bool
}

type SetOption func(*SetOptions)

// Merge makes Set merge the given fields into an existing document instead
// of replacing it.
func Merge() SetOption {
	return func(o *SetOptions) { o.Merge = true }
}

func ApplySetOptions(opts []SetOption) SetOptions {
	var o SetOptions
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

type Store interface {
	Get(ctx context.Context, path string) (*Document, error)
	// Set writes a document, creating it if needed. Without Merge the
	// document is replaced wholesale.
	Set(ctx context.Context, path string, fields Fields, opts ...SetOption) error
	// Update merges fields into an existing document.
	Update(ctx context.Context, path string, fields Fields) error
	// List returns the documents directly under collection, ordered by ID.
	List(ctx context.Context, collection string) ([]*Document, error)
	// Query returns documents under collection matching every filter,
	// ordered by ID.
	Query(ctx context.Context, collection string, filters ...Filter) ([]*Document, error)
	Close() error
}

// Join builds a path from raw segments, escaping any '/' inside them.
func Join(segments ...string) string {
	escaped := make([]string, len(segments))
	for i, s := range segments {
		escaped[i] = escapeSegment(s)
	}
	return strings.Join(escaped, "/")
}

func escapeSegment(s string) string {
	s = strings.ReplaceAll(s, "%", "%25")
	return strings.ReplaceAll(s, "/", "%2F")
}

func unescapeSegment(s string) string {
	s = strings.ReplaceAll(s, "%2F", "/")
	return strings.ReplaceAll(s, "%25", "%")
}

// Split returns the parent collection path and the unescaped document ID.
func Split(path string) (collection, id string, err error) {
	segments := strings.Split(path, "/")
	if len(segments)%2 != 0 {
		return "", "", fmt.Errorf("invalid document path %q", path)
	}
	for _, s := range segments {
		if s == "" {
			return "", "", fmt.Errorf("invalid document path %q", path)
		}
	}
	idx := strings.LastIndexByte(path, '/')
	return path[:idx], unescapeSegment(path[idx+1:]), nil
}

// CheckCollection validates a collection path.
func CheckCollection(collection string) error {
	segments := strings.Split(collection, "/")
	if len(segments)%2 != 1 {
		return fmt.Errorf("invalid collection path %q", collection)
	}
	for _, s := range segments {
		if s == "" {
			return fmt.Errorf("invalid collection path %q", collection)
		}
	}
	return nil
}

var fieldName = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// CheckField rejects field names that are unsafe to interpolate into a
// backend's field expression.
func CheckField(field string) error {
	if !fieldName.MatchString(field) {
		return fmt.Errorf("invalid field name %q", field)
	}
	return nil
}

// Resolve validates fields and replaces ServerTimestamp with now.
func Resolve(fields Fields, now time.Time) (Fields, error) {
	out := make(Fields, len(fields))
	for k, v := range fields {
		if err := CheckField(k); err != nil {
			return nil, err
		}
		switch val := v.(type) {
		case string:
			out[k] = val
		case time.Time:
			out[k] = val.UTC()
		case serverTimestamp:
			out[k] = now.UTC()
		default:
			return nil, fmt.Errorf("unsupported value type %T for field %q", v, k)
		}
	}
	return out, nil
}

// Clock hands out strictly increasing timestamps for ServerTimestamp fields.
type Clock struct {
	mu   sync.Mutex
	now  func() time.Time
	step time.Duration
	last time.Time
}

func NewClock(now func() time.Time) *Clock {
	return NewClockWithStep(now, time.Microsecond)
}

// NewClockWithStep truncates every timestamp to step, for backends that
// store times at a coarser precision.
func NewClockWithStep(now func() time.Time, step time.Duration) *Clock {
	if now == nil {
		now = time.Now
	}
	return &Clock{now: now, step: step}
}

func (c *Clock) Next() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := c.now().UTC().Truncate(c.step)
	if !t.After(c.last) {
		t = c.last.Add(c.step)
	}
	c.last = t
	return t
}
