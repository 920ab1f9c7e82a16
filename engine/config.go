package engine

import (
	"fmt"
	"strings"
	"time"
)

// ErrorAggregation selects how failures of several parallel branches are
// reported.
type ErrorAggregation int

const (
	// AggregateFirst reports the first failure by construction order.
	AggregateFirst ErrorAggregation = iota
	// AggregateAll reports every failure joined with errors.Join, in
	// construction order.
	AggregateAll
)

// String returns the configuration name of the mode.
func (a ErrorAggregation) String() string {
	switch a {
	case AggregateFirst:
		return "first"
	case AggregateAll:
		return "all"
	default:
		return fmt.Sprintf("ErrorAggregation(%d)", int(a))
	}
}

// ParseAggregation converts "first" or "all" into an ErrorAggregation.
func ParseAggregation(s string) (ErrorAggregation, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "first":
		return AggregateFirst, nil
	case "all":
		return AggregateAll, nil
	default:
		return AggregateFirst, fmt.Errorf("unknown error aggregation %q", s)
	}
}

// Config defines tuning parameters for the Runner.
type Config struct {
	// Aggregation controls which error a failing parallel node reports.
	Aggregation ErrorAggregation

	// MaxParallel limits concurrently running branches of one parallel
	// node. Zero means unlimited.
	MaxParallel int

	// CancelOnError cancels the remaining branches of a parallel node once
	// one of them failed.
	CancelOnError bool

	// GroupSpans opens a span for every sequence and parallel node so leaf
	// spans nest under their group.
	GroupSpans bool

	// DefaultTimeout applies to steps that carry no timeout of their own.
	// Zero disables it.
	DefaultTimeout time.Duration
}

// DefaultConfig reports the first failure, cancels siblings and opens group
// spans.
var DefaultConfig = Config{
	Aggregation:   AggregateFirst,
	MaxParallel:   0,
	CancelOnError: true,
	GroupSpans:    true,
}
