// Package visualize renders a compiled graph.Graph as an ASCII tree,
// the representation the "visualization" subscriber group's consumers
// (dashboards, CLIs) render workflow progress from. Adapted from the
// teacher's ASCIIRenderer (go/pkg/visualization/ascii.go), which walked
// a pkg/models.Workflow's Nodes/Edges slices; here it walks a compiled
// graph.Graph's declaration-ordered ParallelGroups and DependsOn maps
// instead of rediscovering roots and children from a flat edge list.
package visualize

import (
	"fmt"
	"strings"

	"github.com/flowgate/engine/internal/domain"
	"github.com/flowgate/engine/internal/graph"
)

const (
	branchChar     = "├── "
	lastBranchChar = "└── "
	verticalChar   = "│   "
	emptyChar      = "    "
)

// RenderOptions controls ASCII tree detail.
type RenderOptions struct {
	CompactMode bool
}

func DefaultRenderOptions() RenderOptions {
	return RenderOptions{CompactMode: false}
}

// Tree renders workflow's compiled graph g as an ASCII dependency tree,
// one root per level-0 node, recursing through dependents.
func Tree(workflow domain.WorkflowSpec, g *graph.Graph, opts RenderOptions) string {
	var sb strings.Builder

	title := workflow.Name
	if title == "" {
		title = "(unnamed workflow)"
	}
	sb.WriteString(title)
	sb.WriteString("\n\n")

	roots := g.ParallelGroups[0]
	visited := make(map[string]bool, len(g.Nodes))
	for i, rootID := range roots {
		isLast := i == len(roots)-1
		renderNode(&sb, g, rootID, "", isLast, visited, opts)
	}

	return sb.String()
}

func renderNode(sb *strings.Builder, g *graph.Graph, id, prefix string, isLast bool, visited map[string]bool, opts RenderOptions) {
	if visited[id] {
		writeBranch(sb, prefix, isLast)
		sb.WriteString(fmt.Sprintf("(cycle detected: %s)\n", id))
		return
	}
	visited[id] = true

	writeBranch(sb, prefix, isLast)
	sb.WriteString(formatNode(g, id, opts))
	sb.WriteString("\n")

	children := g.Dependents[id]
	if len(children) == 0 {
		return
	}

	childPrefix := prefix
	if isLast {
		childPrefix += emptyChar
	} else {
		childPrefix += verticalChar
	}
	for i, childID := range children {
		renderNode(sb, g, childID, childPrefix, i == len(children)-1, visited, opts)
	}
}

func writeBranch(sb *strings.Builder, prefix string, isLast bool) {
	if prefix == "" {
		return
	}
	if isLast {
		sb.WriteString(prefix + lastBranchChar)
	} else {
		sb.WriteString(prefix + branchChar)
	}
}

func formatNode(g *graph.Graph, id string, opts RenderOptions) string {
	step, _ := g.Node(id)
	if opts.CompactMode {
		return fmt.Sprintf("%s (%s)", id, step.TaskRef)
	}
	return fmt.Sprintf("[%s] level=%d (%s)", id, g.Level[id], step.TaskRef)
}
