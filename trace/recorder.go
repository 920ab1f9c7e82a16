package trace

import (
	"context"
	"sync"
	"time"
)

// Recorder keeps every event in memory. It is primarily used by tests and
// for post-run summaries.
type Recorder struct {
	spans *spanTable

	mu     sync.Mutex
	events []Event
}

// NewRecorder creates an empty Recorder.
func NewRecorder() *Recorder { return &Recorder{spans: newSpanTable()} }

func (r *Recorder) OnSpanStart(_ context.Context, name, parentID string, attrs Attributes) string {
	id, info := r.spans.open(name, parentID, attrs)
	r.append(Event{Kind: KindSpanStart, SpanID: id, ParentID: parentID, Name: name, Timestamp: info.start, Attributes: attrs.clone()})
	return id
}

func (r *Recorder) OnSpanEnd(_ context.Context, spanID string, attrs Attributes) {
	info, _ := r.spans.close(spanID)
	now := time.Now()
	r.append(Event{Kind: KindSpanEnd, SpanID: spanID, ParentID: info.parent, Name: info.name, Timestamp: now, Duration: now.Sub(info.start), Attributes: info.attrs.merge(attrs)})
}

func (r *Recorder) OnSpanError(_ context.Context, spanID string, err error, retrying bool) {
	info, _ := r.spans.close(spanID)
	now := time.Now()
	r.append(Event{Kind: KindSpanError, SpanID: spanID, ParentID: info.parent, Name: info.name, Timestamp: now, Duration: now.Sub(info.start), Attributes: info.attrs, Error: errString(err), Retrying: retrying})
}

func (r *Recorder) append(ev Event) {
	r.mu.Lock()
	r.events = append(r.events, ev)
	r.mu.Unlock()
}

// Events returns a copy of the recorded events in submission order.
func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event(nil), r.events...)
}

// EventsFor returns the events of spans named name.
func (r *Recorder) EventsFor(name string) []Event {
	var out []Event
	for _, ev := range r.Events() {
		if ev.Name == name {
			out = append(out, ev)
		}
	}
	return out
}

// Count returns the number of events of the given kind.
func (r *Recorder) Count(kind EventKind) int {
	n := 0
	for _, ev := range r.Events() {
		if ev.Kind == kind {
			n++
		}
	}
	return n
}

// Reset discards recorded events.
func (r *Recorder) Reset() {
	r.mu.Lock()
	r.events = nil
	r.mu.Unlock()
}

// SpanSummary describes one closed span.
type SpanSummary struct {
	SpanID   string        `json:"span_id"`
	ParentID string        `json:"parent_id,omitempty"`
	Name     string        `json:"name"`
	Attempt  int           `json:"attempt,omitempty"`
	Duration time.Duration `json:"duration"`
	Error    string        `json:"error,omitempty"`
	Retrying bool          `json:"retrying,omitempty"`
}

// Summary returns one entry per closed span in closing order.
func (r *Recorder) Summary() []SpanSummary {
	var out []SpanSummary
	for _, ev := range r.Events() {
		if ev.Kind == KindSpanStart {
			continue
		}
		out = append(out, SpanSummary{
			SpanID:   ev.SpanID,
			ParentID: ev.ParentID,
			Name:     ev.Name,
			Attempt:  attemptOf(ev.Attributes),
			Duration: ev.Duration,
			Error:    ev.Error,
			Retrying: ev.Retrying,
		})
	}
	return out
}

func attemptOf(attrs Attributes) int {
	switch v := attrs["attempt"].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	}
	return 0
}

// FailedSpans returns summaries of spans that ended in a terminal error.
func (r *Recorder) FailedSpans() []SpanSummary {
	var out []SpanSummary
	for _, s := range r.Summary() {
		if s.Error != "" && !s.Retrying {
			out = append(out, s)
		}
	}
	return out
}

// TotalDuration sums the durations of closed root spans.
func (r *Recorder) TotalDuration() time.Duration {
	var total time.Duration
	for _, s := range r.Summary() {
		if s.ParentID == "" {
			total += s.Duration
		}
	}
	return total
}
