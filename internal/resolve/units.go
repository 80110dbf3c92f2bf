// Package resolve loads source units and expands their imports into a
// dependency-closed node sequence.
package resolve

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"golang.org/x/sync/singleflight"

	"github.com/opendec/opendec/internal/syntax"
)

// File extensions of the two unit kinds.
const (
	ExtCompilable = ".opendec"
	ExtImportOnly = ".opendeci"
)

// Kind distinguishes how a source unit may be used.
type Kind int

const (
	// Compilable units are eligible as top-level jobs.
	Compilable Kind = iota
	// ImportOnly units are only ever imported, never compiled directly.
	ImportOnly
	// Inline units come from literal command-line text.
	Inline
)

// SourceUnit is one loaded and parsed source. Immutable once loaded.
type SourceUnit struct {
	// Path is the absolute file path; empty for inline sources.
	Path string
	// Name is the unit's logical name, used for artifact naming.
	Name string
	Kind Kind
	Text string

	Nodes []syntax.Node
}

// ID identifies the unit in import graphs and error chains.
func (u *SourceUnit) ID() string {
	if u.Path != "" {
		return u.Path
	}
	return "<" + u.Name + ">"
}

// KindForPath maps a file extension to its unit kind.
func KindForPath(path string) Kind {
	if strings.EqualFold(filepath.Ext(path), ExtImportOnly) {
		return ImportOnly
	}
	return Compilable
}

// UnitCache is the process-wide read-through cache of parsed units,
// keyed by absolute path. Concurrent jobs importing the same file
// share one parse: the first loader wins and the rest wait.
type UnitCache struct {
	mu    sync.RWMutex
	units map[string]*SourceUnit
	group singleflight.Group
}

// NewUnitCache returns an empty unit cache.
func NewUnitCache() *UnitCache {
	return &UnitCache{units: map[string]*SourceUnit{}}
}

// Load reads and parses the file at path, reusing a previous parse
// when one exists.
func (c *UnitCache) Load(path string) (*SourceUnit, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("unable to resolve path %q: %w", path, err)
	}

	c.mu.RLock()
	u, ok := c.units[abs]
	c.mu.RUnlock()
	if ok {
		return u, nil
	}

	v, err, _ := c.group.Do(abs, func() (any, error) {
		c.mu.RLock()
		u, ok := c.units[abs]
		c.mu.RUnlock()
		if ok {
			return u, nil
		}

		data, err := os.ReadFile(abs)
		if err != nil {
			return nil, fmt.Errorf("unable to read source file: %w", err)
		}
		nodes, err := syntax.Parse(abs, string(data))
		if err != nil {
			return nil, err
		}

		base := filepath.Base(abs)
		u = &SourceUnit{
			Path:  abs,
			Name:  strings.TrimSuffix(base, filepath.Ext(base)),
			Kind:  KindForPath(abs),
			Text:  string(data),
			Nodes: nodes,
		}
		c.mu.Lock()
		c.units[abs] = u
		c.mu.Unlock()
		return u, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*SourceUnit), nil
}

// Inline parses literal source text passed on the command line.
// Inline units are not cached; they have no path identity.
func (c *UnitCache) Inline(name, text string) (*SourceUnit, error) {
	nodes, err := syntax.Parse("", text)
	if err != nil {
		return nil, err
	}
	return &SourceUnit{Name: name, Kind: Inline, Text: text, Nodes: nodes}, nil
}
