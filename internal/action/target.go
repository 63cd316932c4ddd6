package action

import (
	"github.com/roach88/gasoline/internal/keypath"
)

// SelfTarget is the target reference that names the creating node.
const SelfTarget = "@self"

// ResolveTargets resolves target references produced at self. "@self"
// names self; other relative references resolve against self's parent, so
// "sibling" and "../uncle" address nodes next to and above self.
func ResolveTargets(self keypath.Path, refs []string) ([]keypath.Path, error) {
	out := make([]keypath.Path, 0, len(refs))
	for _, ref := range refs {
		if ref == "" {
			continue
		}
		if ref == SelfTarget {
			out = append(out, self)
			continue
		}
		p, err := self.Parent().Resolve(ref)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	if len(out) == 0 {
		return nil, nil
	}
	return out, nil
}

// MatchTarget reports whether a node at path is eligible for an action
// addressed to targets. An empty target list addresses every node. A node
// is eligible when it equals or lies below a target; a container is also
// eligible when a target lies in its subtree, so the action can be routed
// down to it.
func MatchTarget(path keypath.Path, container bool, targets []keypath.Path) bool {
	if len(targets) == 0 {
		return true
	}
	for _, t := range targets {
		if t.Contains(path) {
			return true
		}
		if container && path.Contains(t) {
			return true
		}
	}
	return false
}
