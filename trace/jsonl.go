package trace

import (
	"context"
	"encoding/json"
	"io"
	"sync"
	"time"
)

// JSONLTracer writes each event as one JSON object per line.
type JSONLTracer struct {
	spans *spanTable

	mu  sync.Mutex
	enc *json.Encoder
	err error
}

// NewJSONLTracer creates a JSONLTracer writing to w.
func NewJSONLTracer(w io.Writer) *JSONLTracer {
	return &JSONLTracer{spans: newSpanTable(), enc: json.NewEncoder(w)}
}

func (t *JSONLTracer) OnSpanStart(_ context.Context, name, parentID string, attrs Attributes) string {
	id, info := t.spans.open(name, parentID, attrs)
	t.write(Event{Kind: KindSpanStart, SpanID: id, ParentID: parentID, Name: name, Timestamp: info.start, Attributes: attrs})
	return id
}

func (t *JSONLTracer) OnSpanEnd(_ context.Context, spanID string, attrs Attributes) {
	info, _ := t.spans.close(spanID)
	now := time.Now()
	t.write(Event{Kind: KindSpanEnd, SpanID: spanID, ParentID: info.parent, Name: info.name, Timestamp: now, Duration: now.Sub(info.start), Attributes: attrs})
}

func (t *JSONLTracer) OnSpanError(_ context.Context, spanID string, err error, retrying bool) {
	info, _ := t.spans.close(spanID)
	now := time.Now()
	t.write(Event{Kind: KindSpanError, SpanID: spanID, ParentID: info.parent, Name: info.name, Timestamp: now, Duration: now.Sub(info.start), Error: errString(err), Retrying: retrying})
}

// Err returns the first encoding or write error encountered, if any.
func (t *JSONLTracer) Err() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.err
}

func (t *JSONLTracer) write(ev Event) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if err := t.enc.Encode(ev); err != nil && t.err == nil {
		t.err = err
	}
}
