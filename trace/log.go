package trace

import (
	"context"
	"time"

	"github.com/hupe1980/pipemesh/logging"
)

// LogTracer forwards span events to a logging.Logger.
type LogTracer struct {
	logger logging.Logger
	spans  *spanTable
}

// NewLogTracer creates a LogTracer (NoOpLogger if logger is nil).
func NewLogTracer(logger logging.Logger) *LogTracer {
	if logger == nil {
		logger = logging.NoOpLogger{}
	}
	return &LogTracer{logger: logger, spans: newSpanTable()}
}

func (t *LogTracer) OnSpanStart(_ context.Context, name, parentID string, attrs Attributes) string {
	id, _ := t.spans.open(name, parentID, attrs)
	t.logger.Debug("span.start", append([]any{"span", name, "span_id", id, "parent_id", parentID}, attrArgs(attrs)...)...)
	return id
}

func (t *LogTracer) OnSpanEnd(_ context.Context, spanID string, attrs Attributes) {
	info, _ := t.spans.close(spanID)
	args := []any{"span", info.name, "span_id", spanID, "duration_ms", time.Since(info.start).Milliseconds()}
	t.logger.Info("span.end", append(args, attrArgs(attrs)...)...)
}

func (t *LogTracer) OnSpanError(_ context.Context, spanID string, err error, retrying bool) {
	info, _ := t.spans.close(spanID)
	args := []any{"span", info.name, "span_id", spanID, "retrying", retrying, "error", errString(err)}
	if retrying {
		t.logger.Warn("span.error", args...)
		return
	}
	t.logger.Error("span.error", args...)
}

func attrArgs(attrs Attributes) []any {
	args := make([]any, 0, len(attrs)*2)
	for k, v := range attrs {
		args = append(args, k, v)
	}
	return args
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
