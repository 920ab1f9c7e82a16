package step

// Node is a vertex of a step graph: a *Step, a *Sequence or a *Parallel.
type Node interface {
	Name() string
	isNode()
}

func (*Step) isNode()     {}
func (*Sequence) isNode() {}
func (*Parallel) isNode() {}

// Sequence runs its nodes in order, feeding each output into the next node.
type Sequence struct {
	name  string
	nodes []Node
}

// Seq returns an anonymous sequence. Anonymous sequences among nodes are
// spliced in, which makes sequencing associative.
func Seq(nodes ...Node) *Sequence {
	flat := make([]Node, 0, len(nodes))
	for _, n := range nodes {
		if s, ok := n.(*Sequence); ok && s != nil && s.name == "" {
			flat = append(flat, s.nodes...)
			continue
		}
		if n != nil {
			flat = append(flat, n)
		}
	}
	return &Sequence{nodes: flat}
}

// Then returns the sequence a followed by b.
func Then(a, b Node) *Sequence { return Seq(a, b) }

// NewSequence returns a named sequence. Named sequences keep their identity
// when composed further and open their own group span.
func NewSequence(name string, nodes ...Node) *Sequence {
	s := Seq(nodes...)
	s.name = name
	return s
}

// Name returns the sequence name, "sequence" when anonymous.
func (s *Sequence) Name() string {
	if s.name == "" {
		return "sequence"
	}
	return s.name
}

// Nodes returns a copy of the child nodes.
func (s *Sequence) Nodes() []Node { return append([]Node(nil), s.nodes...) }

// Then returns a new sequence with next appended.
func (s *Sequence) Then(next Node) *Sequence { return Then(s, next) }

// Then returns a new sequence running s then next.
func (s *Step) Then(next Node) *Sequence { return Then(s, next) }

// Parallel runs its nodes concurrently on the same input and yields their
// outputs as a []any in construction order.
type Parallel struct {
	name  string
	nodes []Node
}

// Par returns an anonymous parallel group.
func Par(nodes ...Node) *Parallel { return NewParallel("", nodes...) }

// NewParallel returns a named parallel group.
func NewParallel(name string, nodes ...Node) *Parallel {
	cp := make([]Node, 0, len(nodes))
	for _, n := range nodes {
		if n != nil {
			cp = append(cp, n)
		}
	}
	return &Parallel{name: name, nodes: cp}
}

// Name returns the group name, "parallel" when anonymous.
func (p *Parallel) Name() string {
	if p.name == "" {
		return "parallel"
	}
	return p.name
}

// Nodes returns a copy of the branch nodes.
func (p *Parallel) Nodes() []Node { return append([]Node(nil), p.nodes...) }

// Then returns a new sequence running p then next.
func (p *Parallel) Then(next Node) *Sequence { return Then(p, next) }

// Steps returns every leaf of n in depth-first construction order.
func Steps(n Node) []*Step {
	switch v := n.(type) {
	case *Step:
		return []*Step{v}
	case *Sequence:
		var out []*Step
		for _, c := range v.nodes {
			out = append(out, Steps(c)...)
		}
		return out
	case *Parallel:
		var out []*Step
		for _, c := range v.nodes {
			out = append(out, Steps(c)...)
		}
		return out
	}
	return nil
}
