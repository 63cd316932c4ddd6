// Package graph implements the node graph held by a store.
//
// A graph is a tree of nodes. Leaves are Models (state reduced from
// actions) and Selectors (state derived from other nodes); containers are
// Combined nodes whose state maps child keys to child states. Each node is
// addressed by its key path, assigned when the tree is linked to a Host.
//
// # Linking
//
// Linking is two-phase. Link assigns paths top-down; the returned finish
// functions then run bottom-up, at which point every node in the tree has
// a path. A Combined node uses the finish phase to sort its children
// topologically by their dependencies and to hoist dependencies that
// point outside its subtree. Cycles between siblings and dependencies on
// nodes outside the linked tree are LinkErrors.
//
// # Updates
//
// Each dispatched action runs one synchronous update pass over a
// WorkingState, a copy of the committed Digest. UpdateContext decides for
// every node whether it should update: when it accepts the action (type
// and target) or when one of its dependencies changed earlier in the same
// pass. States are replaced rather than mutated, and reference identity
// (see Same) tells whether a node changed.
//
// # Processing
//
// Process pipelines map a node's filtered ActionStream to further
// actions. They are subscribed once per store start and are cancelled
// when the node is unlinked.
package graph
