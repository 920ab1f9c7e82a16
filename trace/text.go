package trace

import (
	"context"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"sync"
	"time"
	"unicode/utf8"
)

// TextTracerOptions configures a TextTracer.
type TextTracerOptions struct {
	// Verbose renders span attributes next to start lines.
	Verbose bool
	// MaxAttrLen truncates rendered attributes. Defaults to 80.
	MaxAttrLen int
}

// TextTracer writes one human readable line per event, indented by span
// depth. Useful for development.
type TextTracer struct {
	w     io.Writer
	opts  TextTracerOptions
	spans *spanTable

	mu  sync.Mutex
	err error
}

// NewTextTracer creates a TextTracer writing to w (stderr if nil).
func NewTextTracer(w io.Writer, optFns ...func(o *TextTracerOptions)) *TextTracer {
	opts := TextTracerOptions{MaxAttrLen: 80}
	for _, fn := range optFns {
		fn(&opts)
	}
	if w == nil {
		w = os.Stderr
	}
	return &TextTracer{w: w, opts: opts, spans: newSpanTable()}
}

func (t *TextTracer) OnSpanStart(_ context.Context, name, parentID string, attrs Attributes) string {
	id, info := t.spans.open(name, parentID, attrs)
	line := fmt.Sprintf("%s→ %s", indent(info.depth), name)
	if t.opts.Verbose && len(attrs) > 0 {
		line += " (" + truncate(formatAttrs(attrs), t.opts.MaxAttrLen) + ")"
	}
	t.writeLine(line)
	return id
}

func (t *TextTracer) OnSpanEnd(_ context.Context, spanID string, _ Attributes) {
	info, ok := t.spans.close(spanID)
	if !ok {
		return
	}
	ms := float64(time.Since(info.start).Microseconds()) / 1000
	t.writeLine(fmt.Sprintf("%s✓ %s [%.1fms]", indent(info.depth), info.name, ms))
}

func (t *TextTracer) OnSpanError(_ context.Context, spanID string, err error, retrying bool) {
	info, ok := t.spans.close(spanID)
	if !ok {
		return
	}
	if retrying {
		t.writeLine(fmt.Sprintf("%s↻ %s retrying: %v", indent(info.depth), info.name, err))
		return
	}
	t.writeLine(fmt.Sprintf("%s✗ %s FAILED: %v", indent(info.depth), info.name, err))
}

// Err returns the first write error encountered, if any.
func (t *TextTracer) Err() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.err
}

func (t *TextTracer) writeLine(line string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, err := io.WriteString(t.w, line+"\n"); err != nil && t.err == nil {
		t.err = err
	}
}

func indent(depth int) string { return strings.Repeat("  ", depth) }

func formatAttrs(attrs Attributes) string {
	keys := make([]string, 0, len(attrs))
	for k := range attrs {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=%v", k, attrs[k]))
	}
	return strings.Join(parts, " ")
}

func truncate(s string, max int) string {
	if max <= 0 || len(s) <= max {
		return s
	}
	cut := max
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + "..."
}
