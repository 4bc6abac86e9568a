// Package executor implements the TaskExecutor: template resolution over
// the tagged value.Value tree, HTTP leaf execution, and sub-workflow leaf
// recursion. The template resolver is grounded on the teacher's
// internal/application/template Engine/Resolver (regex-matched
// {{type.path}} placeholders, strict/placeholder/drop-silent tri-state),
// generalized from the teacher's env/input namespaces to this engine's
// input/tasks namespaces and rebased onto value.Value instead of
// interface{}.
package executor

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/flowgate/engine/internal/domain"
	"github.com/flowgate/engine/pkg/value"
)

// TemplateContext is the lookup environment for {{...}} placeholders:
// input is the execution's validated input bag; tasks maps a completed
// task id to its output.
type TemplateContext struct {
	Input map[string]value.Value
	Tasks map[string]value.Value // taskID -> output
}

// ResolveMode controls behavior on an unresolved path: normal task
// templates error on miss; webhook inputMapping silently drops.
type ResolveMode int

const (
	ModeStrict        ResolveMode = iota // unresolved path -> TemplateResolution error
	ModeSilentOnMissing                  // unresolved path -> empty result, no error
)

var placeholderPattern = regexp.MustCompile(`\{\{\s*([^}]+?)\s*\}\}`)

// Engine resolves {{<dotPath>}} placeholders against a TemplateContext.
type Engine struct {
	ctx  TemplateContext
	mode ResolveMode
}

func NewEngine(ctx TemplateContext, mode ResolveMode) *Engine {
	return &Engine{ctx: ctx, mode: mode}
}

// ResolveString replaces every {{<dotPath>}} occurrence in s. When the
// whole string is exactly one placeholder, the resolved Value's native
// type round-trips (e.g. {{input.count}} with an integer input yields an
// Int, not a stringified one); otherwise placeholders interpolate into
// the surrounding text as strings.
func (e *Engine) ResolveString(s string) (value.Value, error) {
	matches := placeholderPattern.FindAllStringSubmatchIndex(s, -1)
	if len(matches) == 0 {
		return value.Str(s), nil
	}
	if len(matches) == 1 && matches[0][0] == 0 && matches[0][1] == len(s) {
		path := s[matches[0][2]:matches[0][3]]
		v, err := e.resolvePath(path)
		if err != nil {
			return value.Null(), err
		}
		return v, nil
	}

	var b strings.Builder
	last := 0
	for _, m := range matches {
		start, end := m[0], m[1]
		pathStart, pathEnd := m[2], m[3]
		b.WriteString(s[last:start])
		path := s[pathStart:pathEnd]
		v, err := e.resolvePath(path)
		if err != nil {
			return value.Null(), err
		}
		b.WriteString(v.String())
		last = end
	}
	b.WriteString(s[last:])
	return value.Str(b.String()), nil
}

// Resolve walks an arbitrary value.Value tree, resolving every string
// leaf's placeholders.
func (e *Engine) Resolve(v value.Value) (value.Value, error) {
	switch v.Kind() {
	case value.KindStr:
		s, _ := v.AsStr()
		return e.ResolveString(s)
	case value.KindArr:
		arr, _ := v.AsArr()
		out := make([]value.Value, len(arr))
		for i, it := range arr {
			resolved, err := e.Resolve(it)
			if err != nil {
				return value.Null(), err
			}
			out[i] = resolved
		}
		return value.Arr(out), nil
	case value.KindObj:
		obj, _ := v.AsObj()
		out := make(map[string]value.Value, len(obj))
		for k, it := range obj {
			resolved, err := e.Resolve(it)
			if err != nil {
				return value.Null(), err
			}
			out[k] = resolved
		}
		return value.Obj(out), nil
	default:
		return v, nil
	}
}

// ResolveMap is the common entry point for resolving a TaskStep's input
// map (or an HTTP request's headers) into its rendered form.
func (e *Engine) ResolveMap(m map[string]value.Value) (map[string]value.Value, error) {
	out := make(map[string]value.Value, len(m))
	for k, v := range m {
		resolved, err := e.Resolve(v)
		if err != nil {
			return nil, err
		}
		out[k] = resolved
	}
	return out, nil
}

// resolvePath dispatches a dotPath (the part between {{ }}) starting with
// "input" or "tasks.<id>.output".
func (e *Engine) resolvePath(path string) (value.Value, error) {
	path = strings.TrimSpace(path)
	var root value.Value
	var rest string

	switch {
	case path == "input" || strings.HasPrefix(path, "input."):
		root = value.Obj(e.ctx.Input)
		rest = strings.TrimPrefix(path, "input")
		rest = strings.TrimPrefix(rest, ".")
	case strings.HasPrefix(path, "tasks."):
		withoutPrefix := strings.TrimPrefix(path, "tasks.")
		dot := strings.IndexByte(withoutPrefix, '.')
		if dot < 0 {
			return e.miss(path)
		}
		taskID := withoutPrefix[:dot]
		remainder := withoutPrefix[dot+1:]
		const outputPrefix = "output"
		if remainder != outputPrefix && !strings.HasPrefix(remainder, outputPrefix+".") {
			return e.miss(path)
		}
		out, ok := e.ctx.Tasks[taskID]
		if !ok {
			return e.miss(path)
		}
		root = out
		rest = strings.TrimPrefix(remainder, outputPrefix)
		rest = strings.TrimPrefix(rest, ".")
	default:
		return e.miss(path)
	}

	v, ok := root.Path(rest)
	if !ok {
		return e.miss(path)
	}
	return v, nil
}

func (e *Engine) miss(path string) (value.Value, error) {
	if e.mode == ModeSilentOnMissing {
		return value.Null(), nil
	}
	return value.Null(), domain.New(domain.ErrTemplateResolution, fmt.Sprintf("unresolved template path %q", path))
}

// HasTemplates reports whether s contains at least one {{...}} expression.
func HasTemplates(s string) bool {
	return placeholderPattern.MatchString(s)
}
