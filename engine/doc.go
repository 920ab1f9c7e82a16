// Package engine implements the pipeline runner that walks a step graph.
//
// The Runner executes every leaf through the step execution wrapper and
// threads a shared trace.Context through the run. Sequence nodes run their
// children strictly in order and abort on the first failure. Parallel nodes
// fan out on golang.org/x/sync/errgroup; each branch receives a child trace
// context that shares the run id and tracer sink but owns its span stack.
//
// # Failure Policy
//
// A failing parallel branch cancels its siblings (Config.CancelOnError) and
// the runner always waits for every started branch before returning. When
// several branches fail, the reported error is selected by construction
// order. Failures that are only the consequence of sibling cancellation are
// never reported ahead of the failure that caused it. Config.Aggregation
// switches between reporting the first failure and joining all of them.
//
// # Callbacks
//
// A CallbackManager hooks into run and step lifecycle points. Before
// callbacks may veto execution by returning an error.
//
// # Usage
//
//	r := engine.New(func(o *engine.Options) {
//	    o.Tracer = trace.NewTextTracer(os.Stderr)
//	})
//	out, err := r.Run(ctx, step.Seq(addOne, double), 3) // 8
//
// The Runner holds no per-run state and is safe for concurrent use.
package engine
