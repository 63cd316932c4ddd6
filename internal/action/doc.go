// Package action defines actions and the two addressing mechanisms that
// decide which nodes receive them.
//
// # Type matching
//
// Nodes declare an accept list of literal types and single-wildcard globs
// ("prefix*", "*suffix"). Generic types ("name:*") let one node definition
// be instantiated at many paths; its action creators are bound to the
// node's path on use ("name:/path"). When a bound type is checked against a
// node, containers match it anywhere in their subtree and leaves only on
// their own path.
//
// # Target matching
//
// An action may also carry explicit target paths. Both checks apply: a node
// receives an action only when its accept list matches the type AND the
// target list (if any) covers the node.
package action
