package trace

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/hupe1980/pipemesh/logging"
	"github.com/stretchr/testify/assert"
)

func TestLogTracer(t *testing.T) {
	var buf bytes.Buffer
	logger := logging.NewLogger(&logging.LoggerConfig{Level: logging.LogLevelDebug, Format: "text", Output: &buf})
	tr := NewLogTracer(logger)
	ctx := context.Background()

	id := tr.OnSpanStart(ctx, "load", "", Attributes{"attempt": 1})
	tr.OnSpanError(ctx, id, errors.New("boom"), false)

	out := buf.String()
	assert.Contains(t, out, "span.start")
	assert.Contains(t, out, "span=load")
	assert.Contains(t, out, "attempt=1")
	assert.Contains(t, out, "level=ERROR")
	assert.Contains(t, out, "error=boom")
}
