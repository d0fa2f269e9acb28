// Package graph generates DOT and Mermaid format dependency graphs from a plan.
package graph

import (
	"io"
	"strings"

	"github.com/emicklei/dot"

	"github.com/lex00/wetwire-site-go/internal/plan"
)

// Format specifies the output format for the graph.
type Format string

const (
	// FormatDOT outputs Graphviz DOT format.
	FormatDOT Format = "dot"
	// FormatMermaid outputs Mermaid format for GitHub/markdown rendering.
	FormatMermaid Format = "mermaid"
)

// Generator creates dependency graphs from a plan.
type Generator struct {
	// Format specifies the output format (dot or mermaid). Defaults to dot.
	Format Format

	// ClusterByService groups resources by AWS service.
	ClusterByService bool
}

// Generate creates a dependency graph and writes it to w. Edges point from a
// resource to what it depends on; inferred edges are dashed.
func (g *Generator) Generate(p *plan.Plan, w io.Writer) error {
	graph := g.buildGraph(p)

	var output string
	if g.Format == FormatMermaid {
		output = dot.MermaidGraph(graph, dot.MermaidTopToBottom)
	} else {
		output = graph.String()
	}

	_, err := io.WriteString(w, output)
	return err
}

// GenerateString is a convenience method that returns the graph as a string.
func (g *Generator) GenerateString(p *plan.Plan) (string, error) {
	var sb strings.Builder
	if err := g.Generate(p, &sb); err != nil {
		return "", err
	}
	return sb.String(), nil
}

func (g *Generator) buildGraph(p *plan.Plan) *dot.Graph {
	graph := dot.NewGraph(dot.Directed)
	graph.Attr("rankdir", "TB")

	graph.NodeInitializer(func(n dot.Node) {
		n.Attr("shape", "box")
		n.Attr("fontname", "Arial")
	})
	graph.EdgeInitializer(func(e dot.Edge) {
		e.Attr("fontname", "Arial")
		e.Attr("fontsize", "10")
	})

	clusters := make(map[string]*dot.Graph)
	for _, d := range p.Order() {
		parent := graph
		if g.ClusterByService {
			service := serviceOf(d.Kind().CFType())
			cluster, ok := clusters[service]
			if !ok {
				cluster = graph.Subgraph("cluster_"+service, dot.ClusterOption{})
				cluster.Attr("label", service)
				cluster.Attr("style", "rounded")
				cluster.Attr("bgcolor", "lightyellow")
				clusters[service] = cluster
			}
			parent = cluster
		}
		parent.Node(d.Name()).Label(d.Name() + "\\n[" + d.Kind().CFType() + "]")
	}

	for _, edge := range p.Edges() {
		e := graph.Edge(graph.Node(edge.To), graph.Node(edge.From))
		if inferred(p, edge) {
			e.Attr("style", "dashed")
			e.Attr("color", "blue")
		}
	}

	return graph
}

// inferred reports whether the edge was derived by planning rather than
// declared on the dependent descriptor.
func inferred(p *plan.Plan, e plan.Edge) bool {
	d, ok := p.Lookup(e.To)
	if !ok {
		return false
	}
	for _, dep := range d.DependsOn() {
		if dep == e.From {
			return false
		}
	}
	return true
}

// serviceOf extracts the service from a CloudFormation type.
// e.g., "AWS::S3::Bucket" -> "S3"
func serviceOf(cfType string) string {
	parts := strings.Split(cfType, "::")
	if len(parts) == 3 {
		return parts[1]
	}
	return "Other"
}
