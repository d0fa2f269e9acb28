// Package plan builds the dependency graph of a topology and orders it for
// creation.
//
// Every descriptor gets a stable index (its declaration position) and edges
// are stored as index pairs. Ordering uses Kahn's algorithm, breaking ties by
// the lowest index so a topology declared bucket, identity, policy,
// distribution, trigger is created in exactly that order.
package plan

import (
	"fmt"
	"sort"
	"strings"

	"github.com/lex00/wetwire-site-go/internal/stackerr"
	"github.com/lex00/wetwire-site-go/resource"
)

// Edge says From must exist before To is created.
type Edge struct {
	From string
	To   string
}

// Plan is a validated, topologically ordered topology.
type Plan struct {
	descriptors []resource.Descriptor
	index       map[string]int
	edges       [][2]int
	order       []int
}

// Build validates descs and orders them. Any defect is returned as a
// *stackerr.ConfigurationError; nothing is created.
func Build(descs []resource.Descriptor) (*Plan, error) {
	p := &Plan{
		descriptors: append([]resource.Descriptor(nil), descs...),
		index:       make(map[string]int, len(descs)),
	}

	for i, d := range p.descriptors {
		if d.Name() == "" {
			return nil, stackerr.Configuration("", stackerr.ErrInvalidReference, "resource #%d has no name", i)
		}
		if d.Kind().CFType() == "" {
			return nil, stackerr.Configuration(d.Name(), stackerr.ErrInvalidReference, "unknown kind %q", d.Kind())
		}
		if _, dup := p.index[d.Name()]; dup {
			return nil, stackerr.Configuration(d.Name(), stackerr.ErrDuplicateResource, "declared more than once")
		}
		p.index[d.Name()] = i
	}

	if err := p.validate(); err != nil {
		return nil, err
	}

	if err := p.buildEdges(); err != nil {
		return nil, err
	}

	order, err := p.topologicalSort()
	if err != nil {
		return nil, err
	}
	p.order = order
	return p, nil
}

func (p *Plan) buildEdges() error {
	seen := make(map[[2]int]bool)
	add := func(from, to int) {
		e := [2]int{from, to}
		if !seen[e] {
			seen[e] = true
			p.edges = append(p.edges, e)
		}
	}

	for i, d := range p.descriptors {
		for _, dep := range d.DependsOn() {
			j, ok := p.index[dep]
			if !ok {
				return stackerr.Configuration(d.Name(), stackerr.ErrMissingDependency, "depends on undeclared resource %q", dep)
			}
			add(j, i)
		}
	}

	// A distribution must not be created before the grant that authorizes its
	// identity on its origin.
	for i, d := range p.descriptors {
		dist, ok := d.DistributionSpec()
		if !ok {
			continue
		}
		for _, j := range p.grantsFor(dist.Origin, dist.Identity) {
			add(j, i)
		}
	}

	sort.Slice(p.edges, func(a, b int) bool {
		if p.edges[a][0] != p.edges[b][0] {
			return p.edges[a][0] < p.edges[b][0]
		}
		return p.edges[a][1] < p.edges[b][1]
	})
	return nil
}

// topologicalSort runs Kahn's algorithm over index pairs.
func (p *Plan) topologicalSort() ([]int, error) {
	n := len(p.descriptors)
	adj := make([][]int, n)
	inDegree := make([]int, n)
	for _, e := range p.edges {
		adj[e[0]] = append(adj[e[0]], e[1])
		inDegree[e[1]]++
	}

	var queue []int
	for i := 0; i < n; i++ {
		if inDegree[i] == 0 {
			queue = append(queue, i)
		}
	}

	result := make([]int, 0, n)
	for len(queue) > 0 {
		node := queue[0]
		queue = queue[1:]
		result = append(result, node)

		for _, next := range adj[node] {
			inDegree[next]--
			if inDegree[next] == 0 {
				queue = append(queue, next)
				sort.Ints(queue)
			}
		}
	}

	if len(result) != n {
		return nil, p.detectCycle(adj)
	}
	return result, nil
}

// detectCycle finds one cycle and reports it by name.
func (p *Plan) detectCycle(adj [][]int) error {
	const (
		unvisited = iota
		onPath
		done
	)
	state := make([]int, len(p.descriptors))
	var stack []int
	var cycle []int

	var visit func(int) bool
	visit = func(node int) bool {
		state[node] = onPath
		stack = append(stack, node)
		for _, next := range adj[node] {
			switch state[next] {
			case onPath:
				for k := len(stack) - 1; k >= 0; k-- {
					if stack[k] == next {
						cycle = append(append([]int(nil), stack[k:]...), next)
						break
					}
				}
				return true
			case unvisited:
				if visit(next) {
					return true
				}
			}
		}
		stack = stack[:len(stack)-1]
		state[node] = done
		return false
	}

	for i := range p.descriptors {
		if state[i] == unvisited && visit(i) {
			break
		}
	}

	if len(cycle) == 0 {
		return stackerr.Configuration("", stackerr.ErrCyclicDependency, "circular dependency detected")
	}
	names := make([]string, len(cycle))
	for i, idx := range cycle {
		names[i] = p.descriptors[idx].Name()
	}
	return stackerr.Configuration(names[0], stackerr.ErrCyclicDependency, "circular dependency detected: %s", strings.Join(names, " → "))
}

// Order returns the descriptors in creation order.
func (p *Plan) Order() []resource.Descriptor {
	out := make([]resource.Descriptor, len(p.order))
	for i, idx := range p.order {
		out[i] = p.descriptors[idx]
	}
	return out
}

// Names returns the logical names in creation order.
func (p *Plan) Names() []string {
	out := make([]string, len(p.order))
	for i, idx := range p.order {
		out[i] = p.descriptors[idx].Name()
	}
	return out
}

// ReverseNames returns the logical names in teardown order.
func (p *Plan) ReverseNames() []string {
	names := p.Names()
	for i, j := 0, len(names)-1; i < j; i, j = i+1, j-1 {
		names[i], names[j] = names[j], names[i]
	}
	return names
}

// Lookup returns the descriptor with the given logical name.
func (p *Plan) Lookup(name string) (resource.Descriptor, bool) {
	i, ok := p.index[name]
	if !ok {
		return resource.Descriptor{}, false
	}
	return p.descriptors[i], true
}

// Len returns the number of resources.
func (p *Plan) Len() int { return len(p.descriptors) }

// Edges returns every dependency edge, declared and inferred.
func (p *Plan) Edges() []Edge {
	out := make([]Edge, len(p.edges))
	for i, e := range p.edges {
		out[i] = Edge{From: p.descriptors[e[0]].Name(), To: p.descriptors[e[1]].Name()}
	}
	return out
}

// Dependencies returns the names name must wait for, declared and inferred.
func (p *Plan) Dependencies(name string) []string {
	i, ok := p.index[name]
	if !ok {
		return nil
	}
	var out []string
	for _, e := range p.edges {
		if e[1] == i {
			out = append(out, p.descriptors[e[0]].Name())
		}
	}
	sort.Strings(out)
	return out
}

func (p *Plan) kindOf(name string) (resource.Kind, bool) {
	i, ok := p.index[name]
	if !ok {
		return "", false
	}
	return p.descriptors[i].Kind(), true
}

// grantsFor returns the indices of bucket policies granting identity on bucket.
func (p *Plan) grantsFor(bucket, identity string) []int {
	var out []int
	for i, d := range p.descriptors {
		g, ok := d.GrantSpec()
		if ok && g.Bucket == bucket && g.Identity == identity {
			out = append(out, i)
		}
	}
	return out
}

func (p *Plan) requireKind(owner, field, ref string, want resource.Kind) error {
	if ref == "" {
		return stackerr.Configuration(owner, stackerr.ErrMissingDependency, "%s is not set", field)
	}
	got, ok := p.kindOf(ref)
	if !ok {
		return stackerr.Configuration(owner, stackerr.ErrMissingDependency, "%s refers to undeclared resource %q", field, ref)
	}
	if got != want {
		return stackerr.Configuration(owner, stackerr.ErrInvalidReference, "%s %q is a %s, want %s", field, ref, got, want)
	}
	return nil
}

func (p *Plan) String() string {
	return fmt.Sprintf("plan(%s)", strings.Join(p.Names(), " → "))
}
