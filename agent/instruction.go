package agent

import (
	"context"

	"github.com/hupe1980/pipemesh/internal/util"
)

// RunInfo describes the run an instruction is resolved for.
type RunInfo struct {
	RunID string
	Agent string
	// Vars holds the agent's template variables plus run_id and agent.
	Vars map[string]any
}

// Provider supplies dynamic instruction text at runtime.
type Provider interface {
	Instruction(ctx context.Context, info RunInfo) (string, error)
}

// Func is a functional adapter to allow ordinary functions to be used as Providers.
type Func func(ctx context.Context, info RunInfo) (string, error)

// Instruction implements Provider.
func (f Func) Instruction(ctx context.Context, info RunInfo) (string, error) { return f(ctx, info) }

// Instruction represents either a static instruction template or a dynamic provider.
type Instruction struct {
	text     string
	provider Provider
}

// NewInstructionFromText creates an Instruction from a static text/template
// string. Variables are referenced as {{.name}}.
func NewInstructionFromText(text string) Instruction { return Instruction{text: text} }

// NewInstructionFromProvider creates an Instruction from a dynamic provider.
func NewInstructionFromProvider(p Provider) Instruction { return Instruction{provider: p} }

// NewInstructionFromFunc creates an Instruction from a function.
func NewInstructionFromFunc(f func(ctx context.Context, info RunInfo) (string, error)) Instruction {
	return Instruction{provider: Func(f)}
}

// IsStatic returns true if the instruction is backed by a static string.
func (i Instruction) IsStatic() bool { return i.provider == nil }

// IsZero reports whether no instruction was configured.
func (i Instruction) IsZero() bool { return i.provider == nil && i.text == "" }

// Resolve returns the instruction text, invoking the provider or rendering
// the template as needed.
func (i Instruction) Resolve(ctx context.Context, info RunInfo) (string, error) {
	if i.provider != nil {
		return i.provider.Instruction(ctx, info)
	}
	if i.text == "" {
		return "", nil
	}
	return util.RenderTemplate(i.text, info.Vars)
}
