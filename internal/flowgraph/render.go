package flowgraph

import (
	"bytes"
	"context"
	"errors"
	"fmt"

	"github.com/goccy/go-graphviz"
	"github.com/goccy/go-graphviz/cgraph"
)

// Format is an output format for Render.
type Format string

const (
	FormatDOT Format = "dot"
	FormatSVG Format = "svg"
)

// ErrUnknownFormat is returned by ParseFormat for names it does not know.
var ErrUnknownFormat = errors.New("unsupported graph format")

// ParseFormat maps a name to a Format. The empty string means dot.
func ParseFormat(s string) (Format, error) {
	switch Format(s) {
	case "", FormatDOT:
		return FormatDOT, nil
	case FormatSVG:
		return FormatSVG, nil
	}
	return "", fmt.Errorf("%w %q", ErrUnknownFormat, s)
}

// ContentType returns the HTTP content type of the format.
func (f Format) ContentType() string {
	if f == FormatSVG {
		return "image/svg+xml"
	}
	return "text/vnd.graphviz"
}

// Render lays out the graph with Graphviz. Inactive agents are dashed and
// edges that close a cycle are drawn in red.
func Render(ctx context.Context, g *Graph, format Format) ([]byte, error) {
	gv, err := graphviz.New(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create graphviz instance: %w", err)
	}
	defer gv.Close()

	graph, err := gv.Graph()
	if err != nil {
		return nil, fmt.Errorf("failed to create graph: %w", err)
	}
	defer graph.Close()

	graph.SetRankDir(cgraph.LRRank)

	nodes := make(map[string]*cgraph.Node, len(g.nodes))
	for _, n := range g.nodes {
		node, err := graph.CreateNodeByName(n.ID)
		if err != nil {
			return nil, fmt.Errorf("failed to create node %s: %w", n.ID, err)
		}
		node.SetLabel(fmt.Sprintf("%s\n(%s)", n.Name, n.Type))
		if !n.IsActive {
			node.SetStyle(cgraph.DashedNodeStyle)
		}
		nodes[n.ID] = node
	}
	for _, e := range g.Edges() {
		edge, err := graph.CreateEdgeByName("", nodes[e.From], nodes[e.To])
		if err != nil {
			return nil, fmt.Errorf("failed to create edge %s -> %s: %w", e.From, e.To, err)
		}
		if e.InCycle {
			edge.SetColor("red")
		}
	}

	gvFormat := graphviz.XDOT
	if format == FormatSVG {
		gvFormat = graphviz.SVG
	}
	var buf bytes.Buffer
	if err := gv.Render(ctx, graph, gvFormat, &buf); err != nil {
		return nil, fmt.Errorf("failed to render graph: %w", err)
	}
	return buf.Bytes(), nil
}
