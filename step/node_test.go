package step

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func names(nodes []Node) []string {
	out := make([]string, len(nodes))
	for i, n := range nodes {
		out[i] = n.Name()
	}
	return out
}

func TestThenIsAssociative(t *testing.T) {
	a, b, c := MustNew("a", addOne), MustNew("b", double), MustNew("c", addOne)

	left := Then(Then(a, b), c)
	right := Then(a, Then(b, c))

	assert.Equal(t, []string{"a", "b", "c"}, names(left.Nodes()))
	assert.Equal(t, names(left.Nodes()), names(right.Nodes()))
	assert.Equal(t, names(a.Then(b).Then(c).Nodes()), names(left.Nodes()))
}

func TestCompositionDoesNotMutateOperands(t *testing.T) {
	a, b, c := MustNew("a", addOne), MustNew("b", double), MustNew("c", addOne)

	ab := Then(a, b)
	abc := ab.Then(c)

	assert.Len(t, ab.Nodes(), 2)
	assert.Len(t, abc.Nodes(), 3)

	nodes := abc.Nodes()
	nodes[0] = c
	assert.Equal(t, "a", abc.Nodes()[0].Name())
}

func TestNamedSequenceIsNotFlattened(t *testing.T) {
	a, b, c := MustNew("a", addOne), MustNew("b", double), MustNew("c", addOne)

	inner := NewSequence("prep", a, b)
	outer := Seq(inner, c)

	assert.Equal(t, []string{"prep", "c"}, names(outer.Nodes()))
	assert.Equal(t, "sequence", outer.Name())
}

func TestParallelKeepsConstructionOrder(t *testing.T) {
	a, b := MustNew("a", addOne), MustNew("b", double)

	p := Par(b, a)
	assert.Equal(t, "parallel", p.Name())
	assert.Equal(t, []string{"b", "a"}, names(p.Nodes()))

	named := NewParallel("fan", a, b)
	assert.Equal(t, "fan", named.Name())
	assert.Equal(t, []string{"fan", "a"}, names(named.Then(a).Nodes()))
}

func TestStepsListsLeaves(t *testing.T) {
	a, b, c := MustNew("a", addOne), MustNew("b", double), MustNew("c", addOne)
	g := Seq(a, Par(b, NewSequence("tail", c)))

	leaves := Steps(g)
	assert.Equal(t, []*Step{a, b, c}, leaves)
}
