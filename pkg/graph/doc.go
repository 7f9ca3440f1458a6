// Package graph implements the parameter-negotiation node graph at the
// heart of weft. Nodes are linked by bind operators; on first observation
// the graph resolves how many parallel ports each binding carries,
// propagates downward and upward parameters until every edge agrees on a
// negotiated contract, and materializes one bundle per port.
package graph
