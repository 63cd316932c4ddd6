package action

import (
	"fmt"
	"strings"
	"sync"

	"github.com/roach88/gasoline/internal/keypath"
)

// wildcard is the unbound path part of a generic action type.
const wildcard = "*"

// Descriptor is the parsed form of an action type string.
//
// Three shapes exist:
//   - basic:         "name"
//   - generic:       "name:*"      (action creator template, never dispatched)
//   - bound generic: "name:/path"  (generic type scoped to one node)
type Descriptor struct {
	Name    string
	Path    keypath.Path
	Generic bool
	Bound   bool
}

// TypeError reports a malformed action type or an invalid binding.
type TypeError struct {
	Type   string
	Reason string
}

func (e *TypeError) Error() string {
	return fmt.Sprintf("%s: %s", e.Reason, e.Type)
}

// ParseType parses an action type string without caching.
func ParseType(t string) (Descriptor, error) {
	parts := strings.Split(t, ":")
	switch len(parts) {
	case 1:
		return Descriptor{Name: t}, nil
	case 2:
	default:
		return Descriptor{}, &TypeError{Type: t, Reason: "Invalid action type"}
	}

	name, scope := parts[0], parts[1]
	if scope == wildcard {
		return Descriptor{Name: name, Generic: true}, nil
	}
	p, err := keypath.Parse(scope)
	if err != nil {
		return Descriptor{}, &TypeError{Type: t, Reason: "Invalid key path"}
	}
	return Descriptor{Name: name, Path: p, Generic: true, Bound: true}, nil
}

// Basic reports whether d is a plain literal type.
func (d Descriptor) Basic() bool {
	return !d.Generic
}

// String renders d back to its action type string.
func (d Descriptor) String() string {
	switch {
	case d.Bound:
		return d.Name + ":" + d.Path.String()
	case d.Generic:
		return d.Name + ":" + wildcard
	default:
		return d.Name
	}
}

// GenericType returns the unbound generic form "name:*" of d.
func (d Descriptor) GenericType() string {
	return d.Name + ":" + wildcard
}

// BoundTo returns d bound to path.
func (d Descriptor) BoundTo(path keypath.Path) Descriptor {
	return Descriptor{Name: d.Name, Path: path, Generic: true, Bound: true}
}

// GenericFor returns the type string a node at path should match d against.
// A bound generic type becomes "name:*" when it addresses the node: for a
// container anywhere in its subtree, for a leaf only the node itself. Every
// other type is returned literally.
func (d Descriptor) GenericFor(path keypath.Path, container bool) string {
	if !d.Bound {
		return d.String()
	}
	matches := d.Path.Equal(path)
	if container {
		matches = path.Contains(d.Path)
	}
	if matches {
		return d.GenericType()
	}
	return d.String()
}

// Parser parses action types and caches the descriptors. Each store owns
// its own Parser so independent graphs never share cache state.
//
// Thread-safety: Parser is safe for concurrent use.
type Parser struct {
	mu    sync.RWMutex
	cache map[string]Descriptor
}

// NewParser creates a parser with an empty cache.
func NewParser() *Parser {
	return &Parser{cache: make(map[string]Descriptor)}
}

// Parse returns the descriptor of t. Errors are not cached.
func (p *Parser) Parse(t string) (Descriptor, error) {
	p.mu.RLock()
	d, ok := p.cache[t]
	p.mu.RUnlock()
	if ok {
		return d, nil
	}

	d, err := ParseType(t)
	if err != nil {
		return Descriptor{}, err
	}

	p.mu.Lock()
	p.cache[t] = d
	p.mu.Unlock()
	return d, nil
}

// Len returns the number of cached descriptors.
func (p *Parser) Len() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.cache)
}

// BindType rewrites the unbound generic type t to its form bound to path.
func BindType(t string, path keypath.Path) (string, error) {
	d, err := ParseType(t)
	if err != nil {
		return "", err
	}
	if !d.Generic {
		return "", &TypeError{Type: t, Reason: "Cannot bind non-generic action type"}
	}
	if d.Bound {
		return "", &TypeError{Type: t, Reason: "Cannot bind bound action type"}
	}
	return d.BoundTo(path).String(), nil
}

// Bind prepares an action produced by a creator declared at self for
// dispatch: the action is cloned, an unbound generic type is bound to self,
// and target references are resolved relative to self. Creators must not
// return bound generic types.
func Bind(a Action, self keypath.Path) (Action, error) {
	out := a.Clone()

	d, err := ParseType(out.Type)
	if err != nil {
		return Action{}, err
	}
	if d.Bound {
		return Action{}, &TypeError{
			Type:   out.Type,
			Reason: "Unexpected bound generic action, creators must return basic or unbound generic types",
		}
	}
	if d.Generic {
		out.Type = d.BoundTo(self).String()
	}

	if len(out.TargetRefs) > 0 {
		targets, err := ResolveTargets(self, out.TargetRefs)
		if err != nil {
			return Action{}, err
		}
		out.Target = append(out.Target, targets...)
		out.TargetRefs = nil
	}
	return out, nil
}
