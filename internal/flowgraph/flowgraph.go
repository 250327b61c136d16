// Package flowgraph exposes the nextAgents links between agents as a directed
// graph for display. The graph is metadata only: nothing executes it, so
// cycles and dangling references are reported as warnings.
package flowgraph

import (
	"fmt"
	"slices"
	"strings"

	"github.com/BTreeMap/LeadPipe/internal/models"
)

// WarningKind classifies a graph warning.
type WarningKind string

const (
	WarningCycle    WarningKind = "cycle"
	WarningDangling WarningKind = "dangling"
)

// Warning describes a problem in the agent flow. For cycles Path lists the
// agent ids along the cycle, ending with the first id again. For dangling
// references Path is the referencing agent followed by the missing id.
type Warning struct {
	Kind    WarningKind `json:"kind"`
	Path    []string    `json:"path"`
	Message string      `json:"message"`
}

// Node is an agent in the graph.
type Node struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Type     string `json:"type"`
	IsActive bool   `json:"isActive"`
}

// Graph is the agent flow graph.
type Graph struct {
	nodes    []Node
	index    map[string]int
	next     map[string][]string
	incoming map[string]int
	warnings []Warning
	inCycle  map[[2]string]bool
}

// Build creates the graph from agents, in the given order.
func Build(agents []models.AIAgent) *Graph {
	g := &Graph{
		index:    make(map[string]int, len(agents)),
		next:     make(map[string][]string, len(agents)),
		incoming: make(map[string]int, len(agents)),
		inCycle:  make(map[[2]string]bool),
	}
	for _, a := range agents {
		if _, dup := g.index[a.ID]; dup {
			continue
		}
		g.index[a.ID] = len(g.nodes)
		g.nodes = append(g.nodes, Node{ID: a.ID, Name: a.Name, Type: string(a.Type), IsActive: a.IsActive})
	}
	for _, a := range agents {
		for _, to := range a.NextAgents {
			if _, ok := g.index[to]; !ok {
				g.warnings = append(g.warnings, Warning{
					Kind:    WarningDangling,
					Path:    []string{a.ID, to},
					Message: fmt.Sprintf("agent %s points at unknown agent %s", a.ID, to),
				})
				continue
			}
			if slices.Contains(g.next[a.ID], to) {
				continue
			}
			g.next[a.ID] = append(g.next[a.ID], to)
			g.incoming[to]++
		}
	}
	g.findCycles()
	return g
}

// findCycles runs a depth-first search in node order and reports the cycle
// closed by every back edge. Each edge is walked once, so no cycle is
// reported twice.
func (g *Graph) findCycles() {
	const (
		white = iota
		grey
		black
	)
	color := make(map[string]int, len(g.nodes))
	var stack []string

	var visit func(id string)
	visit = func(id string) {
		color[id] = grey
		stack = append(stack, id)
		for _, to := range g.next[id] {
			switch color[to] {
			case white:
				visit(to)
			case grey:
				start := slices.Index(stack, to)
				path := append(slices.Clone(stack[start:]), to)
				for i := 0; i+1 < len(path); i++ {
					g.inCycle[[2]string{path[i], path[i+1]}] = true
				}
				g.warnings = append(g.warnings, Warning{
					Kind:    WarningCycle,
					Path:    path,
					Message: "cycle: " + strings.Join(path, " -> "),
				})
			}
		}
		stack = stack[:len(stack)-1]
		color[id] = black
	}
	for _, n := range g.nodes {
		if color[n.ID] == white {
			visit(n.ID)
		}
	}
}

// Nodes returns the agents in build order.
func (g *Graph) Nodes() []Node { return slices.Clone(g.nodes) }

// EntryPoints returns the ids of agents without incoming edges, in agent order.
func (g *Graph) EntryPoints() []string {
	var out []string
	for _, n := range g.nodes {
		if g.incoming[n.ID] == 0 {
			out = append(out, n.ID)
		}
	}
	return out
}

// Successors returns the agents id links to. Unknown ids have none.
func (g *Graph) Successors(id string) []string {
	return slices.Clone(g.next[id])
}

// Warnings returns the cycles and dangling references found by Build.
func (g *Graph) Warnings() []Warning { return slices.Clone(g.warnings) }

// HasCycles reports whether any cycle was found.
func (g *Graph) HasCycles() bool {
	return slices.ContainsFunc(g.warnings, func(w Warning) bool { return w.Kind == WarningCycle })
}

// Edge is a directed link between two agents.
type Edge struct {
	From    string `json:"from"`
	To      string `json:"to"`
	InCycle bool   `json:"inCycle"`
}

// Edges returns every link in node order.
func (g *Graph) Edges() []Edge {
	var out []Edge
	for _, n := range g.nodes {
		for _, to := range g.next[n.ID] {
			out = append(out, Edge{From: n.ID, To: to, InCycle: g.inCycle[[2]string{n.ID, to}]})
		}
	}
	return out
}
