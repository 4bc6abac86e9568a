// Package graph compiles a domain.WorkflowSpec into an executable DAG:
// explicit (dependsOn) and implicit (tasks.<id>.output. template scan)
// edges, cycle detection, and level/parallel-group assignment. Grounded on
// the teacher's DAG builder (BuildDAG/TopologicalSort), restructured around
// explicit diagnostics and DFS coloring per the engine's graph contract.
package graph

import (
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/flowgate/engine/internal/domain"
	"github.com/flowgate/engine/pkg/value"
)

// EdgeClass records whether an edge was declared via dependsOn or inferred
// from a template reference.
type EdgeClass string

const (
	EdgeExplicit EdgeClass = "explicit"
	EdgeImplicit EdgeClass = "implicit"
)

// Edge is a dependency edge From -> To, meaning From depends on To (To must
// complete before From may run).
type Edge struct {
	From  string
	To    string
	Class EdgeClass
}

// Graph is the compiled DAG of a WorkflowSpec.
type Graph struct {
	Nodes      []domain.TaskStep // declaration order preserved
	nodeIndex  map[string]int
	DependsOn  map[string][]string // node -> its dependencies, declaration order
	Dependents map[string][]string // node -> nodes that depend on it
	Edges      []Edge
	Level      map[string]int
	// ParallelGroups[k] holds the ids at level k, sorted by declaration order.
	ParallelGroups [][]string
}

func (g *Graph) Node(id string) (domain.TaskStep, bool) {
	idx, ok := g.nodeIndex[id]
	if !ok {
		return domain.TaskStep{}, false
	}
	return g.Nodes[idx], true
}

func (g *Graph) declarationIndex(id string) int { return g.nodeIndex[id] }

// BuildResult is the successful output of Build.
type BuildResult struct {
	Graph       *Graph
	Diagnostics []Edge
}

var implicitRefPattern = regexp.MustCompile(`tasks\.([A-Za-z0-9_-]+)\.output\.`)

// Build compiles spec into a Graph, or returns a *domain.Error with Kind in
// {EmptyGraph, UndefinedDependency, CycleDetected}.
func Build(spec domain.WorkflowSpec) (*BuildResult, error) {
	if len(spec.Tasks) == 0 {
		return nil, domain.New(domain.ErrEmptyGraph, "workflow has no tasks")
	}

	g := &Graph{
		Nodes:      spec.Tasks,
		nodeIndex:  make(map[string]int, len(spec.Tasks)),
		DependsOn:  make(map[string][]string, len(spec.Tasks)),
		Dependents: make(map[string][]string, len(spec.Tasks)),
		Level:      make(map[string]int, len(spec.Tasks)),
	}
	for i, t := range spec.Tasks {
		g.nodeIndex[t.ID] = i
	}

	var diagnostics []Edge
	edgeSeen := make(map[string]map[string]bool, len(spec.Tasks))
	addEdge := func(from, to string, class EdgeClass) error {
		if _, ok := g.nodeIndex[to]; !ok {
			return domain.New(domain.ErrUndefinedDep, fmt.Sprintf("task %q references undefined dependency %q", from, to))
		}
		if edgeSeen[from] == nil {
			edgeSeen[from] = make(map[string]bool)
		}
		if edgeSeen[from][to] {
			return nil
		}
		edgeSeen[from][to] = true
		g.DependsOn[from] = append(g.DependsOn[from], to)
		g.Dependents[to] = append(g.Dependents[to], from)
		e := Edge{From: from, To: to, Class: class}
		g.Edges = append(g.Edges, e)
		diagnostics = append(diagnostics, e)
		return nil
	}

	// 1. explicit edges
	for _, t := range spec.Tasks {
		for _, dep := range t.DependsOn {
			if err := addEdge(t.ID, dep, EdgeExplicit); err != nil {
				return nil, err
			}
		}
	}

	// 2. implicit edges, scanned from each step's input templates
	for _, t := range spec.Tasks {
		for _, refID := range scanImplicitRefs(t.Input) {
			if refID == t.ID {
				continue
			}
			if err := addEdge(t.ID, refID, EdgeImplicit); err != nil {
				return nil, err
			}
		}
	}

	// 3. cycle detection via DFS white/grey/black coloring
	if path, cyclic := detectCycle(g); cyclic {
		return nil, domain.New(domain.ErrCycleDetected, fmt.Sprintf("cycle detected: %s", strings.Join(path, " -> ")))
	}

	// 4. level assignment (memoized longest-path-from-root)
	memo := make(map[string]int, len(g.Nodes))
	var levelOf func(id string) int
	levelOf = func(id string) int {
		if lv, ok := memo[id]; ok {
			return lv
		}
		deps := g.DependsOn[id]
		if len(deps) == 0 {
			memo[id] = 0
			return 0
		}
		max := -1
		for _, d := range deps {
			if lv := levelOf(d); lv > max {
				max = lv
			}
		}
		lv := max + 1
		memo[id] = lv
		return lv
	}
	maxLevel := 0
	for _, t := range g.Nodes {
		lv := levelOf(t.ID)
		g.Level[t.ID] = lv
		if lv > maxLevel {
			maxLevel = lv
		}
	}

	// 5. parallel groups, declaration order within each level
	g.ParallelGroups = make([][]string, maxLevel+1)
	for _, t := range g.Nodes {
		lv := g.Level[t.ID]
		g.ParallelGroups[lv] = append(g.ParallelGroups[lv], t.ID)
	}
	for _, group := range g.ParallelGroups {
		sort.SliceStable(group, func(i, j int) bool {
			return g.declarationIndex(group[i]) < g.declarationIndex(group[j])
		})
	}

	return &BuildResult{Graph: g, Diagnostics: diagnostics}, nil
}

// scanImplicitRefs walks every string leaf of a step's input templates and
// collects the distinct task ids referenced as tasks.<id>.output.<path>.
func scanImplicitRefs(input map[string]value.Value) []string {
	var seen = map[string]bool{}
	var ordered []string
	var walk func(v value.Value)
	walk = func(v value.Value) {
		switch v.Kind() {
		case value.KindStr:
			s, _ := v.AsStr()
			for _, m := range implicitRefPattern.FindAllStringSubmatch(s, -1) {
				id := m[1]
				if !seen[id] {
					seen[id] = true
					ordered = append(ordered, id)
				}
			}
		case value.KindArr:
			arr, _ := v.AsArr()
			for _, it := range arr {
				walk(it)
			}
		case value.KindObj:
			obj, _ := v.AsObj()
			keys := make([]string, 0, len(obj))
			for k := range obj {
				keys = append(keys, k)
			}
			sort.Strings(keys)
			for _, k := range keys {
				walk(obj[k])
			}
		}
	}
	keys := make([]string, 0, len(input))
	for k := range input {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		walk(input[k])
	}
	return ordered
}

// detectCycle runs DFS white/grey/black coloring over the DependsOn
// adjacency. On a grey revisit it returns the cyclic path, first and last
// elements equal, per the engine's CycleDetected contract.
func detectCycle(g *Graph) ([]string, bool) {
	const (
		white = 0
		grey  = 1
		black = 2
	)
	color := make(map[string]int, len(g.Nodes))
	var stack []string

	var visit func(id string) ([]string, bool)
	visit = func(id string) ([]string, bool) {
		color[id] = grey
		stack = append(stack, id)
		for _, dep := range g.DependsOn[id] {
			switch color[dep] {
			case grey:
				// found the back edge; build path from its first occurrence
				start := 0
				for i, n := range stack {
					if n == dep {
						start = i
						break
					}
				}
				path := append([]string{}, stack[start:]...)
				path = append(path, dep)
				return path, true
			case white:
				if path, found := visit(dep); found {
					return path, true
				}
			}
		}
		stack = stack[:len(stack)-1]
		color[id] = black
		return nil, false
	}

	for _, t := range g.Nodes {
		if color[t.ID] == white {
			if path, found := visit(t.ID); found {
				return path, true
			}
		}
	}
	return nil, false
}
