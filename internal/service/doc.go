// Package service connects a store to an external transport.
//
// A service Node is a graph node whose process pipeline drives an Adapter.
// The adapter owns all I/O and talks back through a Bridge: it reports
// ready-state transitions (initial, connecting, open, closing, closed),
// injects incoming actions, and throws errors, all of which become
// ordinary dispatched actions. Adapter errors therefore flow through the
// same update path as any other action.
package service
