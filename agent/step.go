package agent

import (
	"context"
	"fmt"

	"github.com/hupe1980/pipemesh/core"
	"github.com/hupe1980/pipemesh/step"
	"github.com/hupe1980/pipemesh/trace"
)

// AsStep exposes the agent as a pipeline step. The step accepts a string,
// a core.Message or a []core.Message and outputs the final answer text.
// Inside a pipeline the agent spans nest under the step span and share the
// pipeline run id.
func (a *Agent) AsStep(optFns ...func(o *step.Options)) (*step.Step, error) {
	return step.New(a.name, func(ctx context.Context, input any) (any, error) {
		var msgs []core.Message
		switch v := input.(type) {
		case string:
			msgs = []core.Message{core.NewUserMessage(v)}
		case core.Message:
			msgs = []core.Message{v}
		case []core.Message:
			msgs = v
		default:
			return nil, &core.CompositionTypeError{Step: a.name, Expected: "string", Got: fmt.Sprintf("%T", input)}
		}

		res, err := a.RunWithTrace(ctx, msgs, trace.FromContext(ctx))
		if err != nil {
			return nil, err
		}
		return res.Answer, nil
	}, optFns...)
}
