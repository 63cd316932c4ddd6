// Package keypath implements the hierarchical addresses of graph nodes.
//
// A Path is an ordered list of segments. The root path has no segments and
// renders as "/". Paths are immutable values; every operation returns a
// new Path.
package keypath

import (
	"fmt"
	"slices"
	"strings"
)

// Path is an absolute node address such as /todos/items.
type Path struct {
	segments []string
}

// Root is the path of the root node.
var Root = Path{}

// InvalidPathError reports a string that is not an absolute key path.
type InvalidPathError struct {
	Input string
}

func (e *InvalidPathError) Error() string {
	return fmt.Sprintf("Invalid key path: %q", e.Input)
}

// New builds a path from segments. Empty segments are rejected.
func New(segments ...string) (Path, error) {
	for _, s := range segments {
		if s == "" || strings.Contains(s, "/") {
			return Path{}, &InvalidPathError{Input: "/" + strings.Join(segments, "/")}
		}
	}
	return Path{segments: slices.Clone(segments)}, nil
}

// Parse parses an absolute path. A trailing slash is tolerated; "." and ".."
// segments are resolved.
func Parse(s string) (Path, error) {
	if !strings.HasPrefix(s, "/") {
		return Path{}, &InvalidPathError{Input: s}
	}
	return Root.Resolve(s)
}

// MustParse is Parse that panics on error. Intended for constants and tests.
func MustParse(s string) Path {
	p, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return p
}

// String renders the path with a leading slash.
func (p Path) String() string {
	return "/" + strings.Join(p.segments, "/")
}

// Segments returns a copy of the path segments.
func (p Path) Segments() []string {
	return slices.Clone(p.segments)
}

// Len returns the number of segments.
func (p Path) Len() int {
	return len(p.segments)
}

// IsRoot reports whether p is the root path.
func (p Path) IsRoot() bool {
	return len(p.segments) == 0
}

// Child returns p extended by key.
func (p Path) Child(key string) Path {
	segs := make([]string, len(p.segments), len(p.segments)+1)
	copy(segs, p.segments)
	return Path{segments: append(segs, key)}
}

// Parent returns the parent path. The parent of the root is the root.
func (p Path) Parent() Path {
	if p.IsRoot() {
		return p
	}
	return Path{segments: p.segments[:len(p.segments)-1]}
}

// Base returns the last segment, or "" for the root.
func (p Path) Base() string {
	if p.IsRoot() {
		return ""
	}
	return p.segments[len(p.segments)-1]
}

// Equal reports whether p and other address the same node.
func (p Path) Equal(other Path) bool {
	return slices.Equal(p.segments, other.segments)
}

// Contains reports whether other is p or lies below p.
func (p Path) Contains(other Path) bool {
	if len(other.segments) < len(p.segments) {
		return false
	}
	return slices.Equal(p.segments, other.segments[:len(p.segments)])
}

// IsAncestorOf reports whether other lies strictly below p.
func (p Path) IsAncestorOf(other Path) bool {
	return len(other.segments) > len(p.segments) && p.Contains(other)
}

// Rel describes how to reach to from p: up is the number of parent steps
// and down the segments to descend afterwards.
func (p Path) Rel(to Path) (up int, down []string) {
	common := 0
	for common < len(p.segments) && common < len(to.segments) && p.segments[common] == to.segments[common] {
		common++
	}
	return len(p.segments) - common, slices.Clone(to.segments[common:])
}

// ChildKey returns the key of p's direct child that contains descendant.
// ok is false when descendant is not strictly below p.
func (p Path) ChildKey(descendant Path) (key string, ok bool) {
	if !p.IsAncestorOf(descendant) {
		return "", false
	}
	return descendant.segments[len(p.segments)], true
}

// Resolve resolves ref against p. Absolute refs start from the root;
// relative refs start from p. "." and ".." segments are honoured and ".."
// never climbs above the root.
func (p Path) Resolve(ref string) (Path, error) {
	segs := slices.Clone(p.segments)
	if strings.HasPrefix(ref, "/") {
		segs = nil
	}
	for _, part := range strings.Split(ref, "/") {
		switch part {
		case "", ".":
		case "..":
			if len(segs) == 0 {
				return Path{}, &InvalidPathError{Input: ref}
			}
			segs = segs[:len(segs)-1]
		default:
			segs = append(segs, part)
		}
	}
	return Path{segments: segs}, nil
}

// MarshalText implements encoding.TextMarshaler.
func (p Path) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (p *Path) UnmarshalText(b []byte) error {
	parsed, err := Parse(string(b))
	if err != nil {
		return err
	}
	*p = parsed
	return nil
}
