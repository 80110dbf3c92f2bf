package resolve

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/log"

	"github.com/opendec/opendec/internal/syntax"
)

// NotFoundError reports an import or play target that matched nothing
// on the search path.
type NotFoundError struct {
	Pos      syntax.Position
	Target   string
	Searched []string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s: could not find %q - searched %s",
		e.Pos, e.Target, strings.Join(e.Searched, ", "))
}

// CycleError reports an import cycle, naming the full chain.
type CycleError struct {
	Pos   syntax.Position
	Chain []string
}

func (e *CycleError) Error() string {
	return fmt.Sprintf("%s: cyclic import: %s", e.Pos, strings.Join(e.Chain, " -> "))
}

// ResolvedUnit is a source unit with every import spliced in place.
// Its node sequence contains no Import nodes and every Play node
// carries an absolute asset path.
type ResolvedUnit struct {
	Root  *SourceUnit
	Nodes []syntax.Node
}

// Resolver expands imports against an ordered list of search
// directories, reusing the shared unit cache for parses.
type Resolver struct {
	units    *UnitCache
	includes []string
	log      *log.Logger
}

// New returns a resolver searching the given directories in order.
func New(units *UnitCache, includes []string, logger *log.Logger) *Resolver {
	if logger == nil {
		logger = log.Default()
	}
	return &Resolver{units: units, includes: includes, log: logger}
}

// Resolve produces the dependency-closed node sequence for root.
func (r *Resolver) Resolve(root *SourceUnit) (*ResolvedUnit, error) {
	nodes, err := r.resolveUnit(root, []string{root.ID()})
	if err != nil {
		return nil, err
	}
	return &ResolvedUnit{Root: root, Nodes: nodes}, nil
}

// resolveUnit expands one unit's imports. stack holds the identities
// currently being resolved, root first.
func (r *Resolver) resolveUnit(u *SourceUnit, stack []string) ([]syntax.Node, error) {
	out := make([]syntax.Node, 0, len(u.Nodes))

	for _, node := range u.Nodes {
		switch n := node.(type) {
		case *syntax.Import:
			resolved, err := r.resolveImport(n, stack)
			if err != nil {
				return nil, err
			}
			out = append(out, resolved...)

		case *syntax.Play:
			path, err := r.locate(n.Target, n.Pos)
			if err != nil {
				return nil, err
			}
			out = append(out, &syntax.Play{Pos: n.Pos, Target: n.Target, Resolved: path})

		case *syntax.Loop:
			body, err := r.resolveBody(n.Body)
			if err != nil {
				return nil, err
			}
			out = append(out, &syntax.Loop{Pos: n.Pos, Count: n.Count, Body: body})

		case *syntax.PhraseDef:
			body, err := r.resolveBody(n.Body)
			if err != nil {
				return nil, err
			}
			out = append(out, &syntax.PhraseDef{Pos: n.Pos, Name: n.Name, Body: body})

		default:
			out = append(out, node)
		}
	}
	return out, nil
}

func (r *Resolver) resolveImport(imp *syntax.Import, stack []string) ([]syntax.Node, error) {
	path, err := r.locate(imp.Target, imp.Pos)
	if err != nil {
		return nil, err
	}

	// A path already on the active stack means we looped.
	for i, id := range stack {
		if id == path {
			return nil, &CycleError{Pos: imp.Pos, Chain: append(append([]string{}, stack[i:]...), path)}
		}
	}

	unit, err := r.units.Load(path)
	if err != nil {
		return nil, err
	}
	r.log.Debug("importing", "path", path, "defs_only", imp.DefsOnly)

	resolved, err := r.resolveUnit(unit, append(stack, path))
	if err != nil {
		return nil, err
	}
	if !imp.DefsOnly {
		return resolved, nil
	}

	// Definitions-only imports contribute symbols, not content.
	defs := resolved[:0:0]
	for _, n := range resolved {
		switch n.(type) {
		case *syntax.PhraseDef, *syntax.SoundDef, *syntax.VoiceDef:
			defs = append(defs, n)
		}
	}
	return defs, nil
}

// resolveBody handles braced contexts, where play references resolve
// but imports are not allowed.
func (r *Resolver) resolveBody(body []syntax.Node) ([]syntax.Node, error) {
	out := make([]syntax.Node, 0, len(body))
	for _, node := range body {
		switch n := node.(type) {
		case *syntax.Import:
			return nil, &syntax.Error{Pos: n.Pos, Msg: "imports are not allowed inside a context"}

		case *syntax.Play:
			path, err := r.locate(n.Target, n.Pos)
			if err != nil {
				return nil, err
			}
			out = append(out, &syntax.Play{Pos: n.Pos, Target: n.Target, Resolved: path})

		case *syntax.Loop:
			inner, err := r.resolveBody(n.Body)
			if err != nil {
				return nil, err
			}
			out = append(out, &syntax.Loop{Pos: n.Pos, Count: n.Count, Body: inner})

		case *syntax.PhraseDef:
			inner, err := r.resolveBody(n.Body)
			if err != nil {
				return nil, err
			}
			out = append(out, &syntax.PhraseDef{Pos: n.Pos, Name: n.Name, Body: inner})

		default:
			out = append(out, node)
		}
	}
	return out, nil
}

// locate resolves target against the working directory and then each
// search directory in order. First match wins.
func (r *Resolver) locate(target string, pos syntax.Position) (string, error) {
	if st, err := os.Stat(target); err == nil && st.Mode().IsRegular() {
		return filepath.Abs(target)
	}

	searched := []string{"."}
	for _, dir := range r.includes {
		candidate := filepath.Join(dir, target)
		if st, err := os.Stat(candidate); err == nil && st.Mode().IsRegular() {
			return filepath.Abs(candidate)
		}
		searched = append(searched, dir)
	}
	return "", &NotFoundError{Pos: pos, Target: target, Searched: searched}
}
