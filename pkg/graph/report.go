package graph

import (
	"fmt"
	"strings"
)

// NodeSummary is the per-node slice of a Summary.
type NodeSummary struct {
	Name    string
	Shape   string
	In, Out int      // resolved port counts
	Flags   []string // flip, wire, hidden sides
	Inputs  []string // "peer : label" per inward port
	Outputs []string // "peer : label" per outward port
}

// Summary is a human-readable account of an elaborated scope, for the
// CLI and for debugging negotiated topologies.
type Summary struct {
	Scope    string
	Nodes    []NodeSummary
	Wires    int
	Monitors int
}

// Summarize resolves every node in the scope (and nested scopes) and
// collects a Summary. Call it after Elaborate; wire and monitor counts
// are zero before elaboration has run.
func Summarize(s *Scope) (*Summary, error) {
	sum := &Summary{
		Scope:    s.Path(),
		Wires:    len(s.wires),
		Monitors: len(s.monitors),
	}
	for _, n := range s.AllNodes() {
		ins, err := n.Inputs()
		if err != nil {
			return nil, err
		}
		outs, err := n.Outputs()
		if err != nil {
			return nil, err
		}
		ns := NodeSummary{
			Name:  n.FullName(),
			Shape: n.Shape(),
			In:    len(ins),
			Out:   len(outs),
		}
		if !n.externalIn {
			ns.Flags = append(ns.Flags, "hidden-in")
		}
		if !n.externalOut {
			ns.Flags = append(ns.Flags, "hidden-out")
		}
		if n.flip {
			ns.Flags = append(ns.Flags, "flip")
		}
		if n.wire {
			ns.Flags = append(ns.Flags, "wire")
		}
		for _, p := range ins {
			ns.Inputs = append(ns.Inputs, fmt.Sprintf("%s : %s", p.Node.FullName(), p.Label))
		}
		for _, p := range outs {
			ns.Outputs = append(ns.Outputs, fmt.Sprintf("%s : %s", p.Node.FullName(), p.Label))
		}
		sum.Nodes = append(sum.Nodes, ns)
	}
	return sum, nil
}

func (s *Summary) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "scope %s: %d nodes, %d wires, %d monitors\n",
		s.Scope, len(s.Nodes), s.Wires, s.Monitors)
	for _, n := range s.Nodes {
		fmt.Fprintf(&b, "  %s [%s] in=%d out=%d", n.Name, n.Shape, n.In, n.Out)
		if len(n.Flags) > 0 {
			fmt.Fprintf(&b, " (%s)", strings.Join(n.Flags, ","))
		}
		b.WriteByte('\n')
		for _, in := range n.Inputs {
			fmt.Fprintf(&b, "    <- %s\n", in)
		}
		for _, out := range n.Outputs {
			fmt.Fprintf(&b, "    -> %s\n", out)
		}
	}
	return b.String()
}
