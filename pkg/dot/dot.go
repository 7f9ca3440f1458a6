// Package dot renders an elaborated node graph as graphviz dot or
// GraphML. Rendering pulls every node's lazy fields, so it is normally
// done after elaboration; on an unelaborated graph it triggers
// resolution as a side effect.
package dot

import (
	"fmt"
	"strings"

	"github.com/chazu/weft/pkg/graph"
)

// Dot returns the graphviz representation of the given nodes. Every
// node becomes a record; every outward port becomes one edge labelled
// and coloured by the node's imp.
func Dot(nodes []*graph.Node) (string, error) {
	var b strings.Builder
	b.WriteString("digraph weft {\n")
	b.WriteString("  rankdir=LR;\n")
	b.WriteString("  node [shape=box];\n")

	for _, n := range nodes {
		attrs := ""
		if n.Wire() {
			attrs = " style=dashed"
		}
		fmt.Fprintf(&b, "  %q [label=\"%s\\n%s\"%s];\n",
			n.FullName(), n.FullName(), n.Shape(), attrs)
	}

	for _, n := range nodes {
		outs, err := n.Outputs()
		if err != nil {
			return "", err
		}
		color, reverse := n.GraphStyle()
		for _, p := range outs {
			extra := ""
			if reverse {
				extra = " dir=back"
			}
			fmt.Fprintf(&b, "  %q -> %q [label=%q color=%q%s];\n",
				n.FullName(), p.Node.FullName(), p.Label, color, extra)
		}
	}

	b.WriteString("}\n")
	return b.String(), nil
}

var xmlEscaper = strings.NewReplacer(
	"&", "&amp;",
	"<", "&lt;",
	">", "&gt;",
	`"`, "&quot;",
)

// GraphML returns the GraphML representation of the given nodes,
// skipping nodes that report OmitGraphML.
func GraphML(nodes []*graph.Node) (string, error) {
	var b strings.Builder
	b.WriteString(`<?xml version="1.0" encoding="UTF-8"?>` + "\n")
	b.WriteString(`<graphml xmlns="http://graphml.graphdrawing.org/xmlns">` + "\n")
	b.WriteString(`  <key id="label" for="edge" attr.name="label" attr.type="string"/>` + "\n")
	b.WriteString(`  <graph id="weft" edgedefault="directed">` + "\n")

	for _, n := range nodes {
		omit, err := n.OmitGraphML()
		if err != nil {
			return "", err
		}
		if omit {
			continue
		}
		fmt.Fprintf(&b, "    <node id=\"%s\"/>\n", xmlEscaper.Replace(n.FullName()))
	}

	for _, n := range nodes {
		omit, err := n.OmitGraphML()
		if err != nil {
			return "", err
		}
		if omit {
			continue
		}
		outs, err := n.Outputs()
		if err != nil {
			return "", err
		}
		for _, p := range outs {
			fmt.Fprintf(&b, "    <edge source=\"%s\" target=\"%s\">\n",
				xmlEscaper.Replace(n.FullName()), xmlEscaper.Replace(p.Node.FullName()))
			fmt.Fprintf(&b, "      <data key=\"label\">%s</data>\n", xmlEscaper.Replace(p.Label))
			b.WriteString("    </edge>\n")
		}
	}

	b.WriteString("  </graph>\n")
	b.WriteString("</graphml>\n")
	return b.String(), nil
}
