// Package core implements the routing network primitives.
// This package implements:
// - Routing units that forward received value as aggregators or disgregators
// - The owner-gated network builder and its layer construction rules
// - Builder events and sinks
package core
