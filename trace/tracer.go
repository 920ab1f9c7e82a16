package trace

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Attributes carries scalar span metadata.
type Attributes map[string]any

// merge returns a copy of a overlaid with b.
func (a Attributes) merge(b Attributes) Attributes {
	if len(a) == 0 {
		return b.clone()
	}
	cp := a.clone()
	for k, v := range b {
		cp[k] = v
	}
	return cp
}

func (a Attributes) clone() Attributes {
	if a == nil {
		return nil
	}
	cp := make(Attributes, len(a))
	for k, v := range a {
		cp[k] = v
	}
	return cp
}

// Tracer receives span lifecycle callbacks. OnSpanStart returns the span id
// used for the matching OnSpanEnd / OnSpanError call; an empty id lets the
// caller allocate one.
type Tracer interface {
	OnSpanStart(ctx context.Context, name, parentID string, attrs Attributes) string
	OnSpanEnd(ctx context.Context, spanID string, attrs Attributes)
	OnSpanError(ctx context.Context, spanID string, err error, retrying bool)
}

// EventKind enumerates tracer event types.
type EventKind string

const (
	KindSpanStart EventKind = "span_start"
	KindSpanEnd   EventKind = "span_end"
	KindSpanError EventKind = "span_error"
)

// Event is the flattened record of one tracer callback.
type Event struct {
	Kind       EventKind     `json:"kind"`
	SpanID     string        `json:"span_id"`
	ParentID   string        `json:"parent_id,omitempty"`
	Name       string        `json:"name"`
	Timestamp  time.Time     `json:"timestamp"`
	Duration   time.Duration `json:"duration,omitempty"`
	Attributes Attributes    `json:"attributes,omitempty"`
	Error      string        `json:"error,omitempty"`
	Retrying   bool          `json:"retrying,omitempty"`
}

// NewSpanID allocates a random span identifier.
func NewSpanID() string { return uuid.NewString() }

// NoopTracer discards all events.
type NoopTracer struct{}

func (NoopTracer) OnSpanStart(context.Context, string, string, Attributes) string { return "" }
func (NoopTracer) OnSpanEnd(context.Context, string, Attributes) {}
func (NoopTracer) OnSpanError(context.Context, string, error, bool) {}

// MultiTracer fans events out to several tracers, translating its own span
// ids into the ids each child returned.
type MultiTracer struct {
	tracers []Tracer

	mu  sync.Mutex
	ids map[string][]string
}

// NewMultiTracer creates a Tracer forwarding to each non-nil tracer in ts.
func NewMultiTracer(ts ...Tracer) Tracer {
	filtered := make([]Tracer, 0, len(ts))
	for _, t := range ts {
		if t != nil {
			filtered = append(filtered, t)
		}
	}
	if len(filtered) == 0 {
		return NoopTracer{}
	}
	if len(filtered) == 1 {
		return filtered[0]
	}
	return &MultiTracer{tracers: filtered, ids: map[string][]string{}}
}

func (m *MultiTracer) OnSpanStart(ctx context.Context, name, parentID string, attrs Attributes) string {
	m.mu.Lock()
	parents := m.ids[parentID]
	m.mu.Unlock()

	childIDs := make([]string, len(m.tracers))
	for i, t := range m.tracers {
		var p string
		if i < len(parents) {
			p = parents[i]
		}
		childIDs[i] = t.OnSpanStart(ctx, name, p, attrs)
	}

	id := NewSpanID()
	m.mu.Lock()
	m.ids[id] = childIDs
	m.mu.Unlock()
	return id
}

func (m *MultiTracer) OnSpanEnd(ctx context.Context, spanID string, attrs Attributes) {
	for i, id := range m.lookup(spanID) {
		m.tracers[i].OnSpanEnd(ctx, id, attrs)
	}
}

func (m *MultiTracer) OnSpanError(ctx context.Context, spanID string, err error, retrying bool) {
	for i, id := range m.lookup(spanID) {
		m.tracers[i].OnSpanError(ctx, id, err, retrying)
	}
}

// lookup resolves and forgets the child ids of a closing span. Children
// always start before their parent closes.
func (m *MultiTracer) lookup(spanID string) []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	ids := m.ids[spanID]
	delete(m.ids, spanID)
	return ids
}

// spanInfo is the bookkeeping kept by tracers that render end events.
type spanInfo struct {
	name   string
	parent string
	depth  int
	start  time.Time
	attrs  Attributes
}

// spanTable tracks open spans for tracers that need the name or start time
// of a span when it closes.
type spanTable struct {
	mu    sync.Mutex
	spans map[string]spanInfo
}

func newSpanTable() *spanTable { return &spanTable{spans: map[string]spanInfo{}} }

func (t *spanTable) open(name, parent string, attrs Attributes) (string, spanInfo) {
	t.mu.Lock()
	defer t.mu.Unlock()
	depth := 0
	if p, ok := t.spans[parent]; ok {
		depth = p.depth + 1
	}
	info := spanInfo{name: name, parent: parent, depth: depth, start: time.Now(), attrs: attrs.clone()}
	id := NewSpanID()
	t.spans[id] = info
	return id, info
}

func (t *spanTable) close(id string) (spanInfo, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	info, ok := t.spans[id]
	delete(t.spans, id)
	return info, ok
}
