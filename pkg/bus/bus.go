// Package bus implements a minimal word-stream bus protocol on top of
// the negotiation core: sources advertise a data width and burst length
// downward, sinks push their acceptance limits upward, and every
// resolved port becomes a named bundle wired point-to-point in a netlist.
package bus

import (
	"fmt"
	"strings"

	"github.com/chazu/weft/pkg/graph"
)

// SourceParams is the downward-flowing port configuration.
type SourceParams struct {
	Name  string
	Width int      // data width in bits
	Burst int      // beats per transfer
	Via   []string // nodes the parameter passed through
}

// SinkParams is the upward-flowing acceptance constraint.
type SinkParams struct {
	Name     string
	MaxWidth int      // widest word the consumer accepts
	Depth    int      // buffer depth in words
	Via      []string // nodes the parameter passed through
}

// Edge is the negotiated contract for one port: the narrower of the two
// widths wins.
type Edge struct {
	Source string
	Sink   string
	Width  int
	Burst  int
	Depth  int
}

// Bundle is the wire-level record for one port.
type Bundle struct {
	Signal string // signal name recorded on the netlist wire
	Width  int
}

// Monitor snapshots the edges of one monitored binding.
type Monitor struct {
	Edges []Edge
}

// Imp implements graph.Imp for the word-stream protocol. One Imp is
// shared by every node of an elaboration; Connect records wires into
// the supplied netlist.
type Imp struct {
	graph.DefaultImp
	netlist *Netlist
	seq     int
}

// New creates an Imp recording into nl.
func New(nl *Netlist) *Imp {
	return &Imp{netlist: nl}
}

func (im *Imp) Edge(d graph.Down, u graph.Up) graph.Edge {
	sp := d.(SourceParams)
	kp := u.(SinkParams)
	w := sp.Width
	if kp.MaxWidth > 0 && kp.MaxWidth < w {
		w = kp.MaxWidth
	}
	return Edge{Source: sp.Name, Sink: kp.Name, Width: w, Burst: sp.Burst, Depth: kp.Depth}
}

func (im *Imp) Bundle(e graph.Edge) graph.Bundle {
	ed := e.(Edge)
	im.seq++
	return &Bundle{
		Signal: fmt.Sprintf("%s_%s_%d", sanitize(ed.Source), sanitize(ed.Sink), im.seq),
		Width:  ed.Width,
	}
}

func (im *Imp) MixDown(d graph.Down, n *graph.Node) graph.Down {
	sp := d.(SourceParams)
	sp.Via = append(append([]string(nil), sp.Via...), n.Name())
	return sp
}

func (im *Imp) MixUp(u graph.Up, n *graph.Node) graph.Up {
	kp := u.(SinkParams)
	kp.Via = append(append([]string(nil), kp.Via...), n.Name())
	return kp
}

func (im *Imp) Label(e graph.Edge) string {
	ed := e.(Edge)
	return fmt.Sprintf("%s->%s w%d", ed.Source, ed.Sink, ed.Width)
}

func (im *Imp) Color() string { return "steelblue" }

// Connect builds an optional monitor over the binding's edges and
// returns the action that wires the source-side bundles to the
// sink-side ones.
func (im *Imp) Connect(edges []graph.Edge, in, out []graph.Bundle, monitored bool) (graph.Monitor, graph.WireFunc) {
	var mon graph.Monitor
	if monitored {
		m := &Monitor{Edges: make([]Edge, len(edges))}
		for k, e := range edges {
			m.Edges[k] = e.(Edge)
		}
		mon = m
	}
	nl := im.netlist
	return mon, func() error {
		if len(in) != len(out) {
			return fmt.Errorf("bus: cannot wire %d sink bundles to %d source bundles", len(in), len(out))
		}
		for k := range in {
			src := out[k].(*Bundle)
			dst := in[k].(*Bundle)
			nl.add(Wire{From: src.Signal, To: dst.Signal, Width: src.Width})
		}
		return nil
	}
}

// sanitize turns a port name into a legal signal fragment.
func sanitize(name string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_':
			return r
		default:
			return '_'
		}
	}, name)
}

// WidthAdapter returns the parameter transforms for an adapter node
// that converts the stream to the given data width: sources narrower or
// wider than the target are rewritten, and the upward acceptance limit
// is clamped so upstream never negotiates past the adapter.
func WidthAdapter(width int) (func(graph.Down) graph.Down, func(graph.Up) graph.Up) {
	dFn := func(d graph.Down) graph.Down {
		sp := d.(SourceParams)
		sp.Width = width
		return sp
	}
	uFn := func(u graph.Up) graph.Up {
		kp := u.(SinkParams)
		if kp.MaxWidth == 0 || kp.MaxWidth > width {
			kp.MaxWidth = width
		}
		return kp
	}
	return dFn, uFn
}

// MergeSources is a nexus downward collapse: the merged stream carries
// the narrowest width and the shortest burst of its inputs.
func MergeSources(in []graph.Down) graph.Down {
	merged := SourceParams{Name: "nexus"}
	names := make([]string, 0, len(in))
	for k, d := range in {
		sp := d.(SourceParams)
		names = append(names, sp.Name)
		if k == 0 || sp.Width < merged.Width {
			merged.Width = sp.Width
		}
		if k == 0 || sp.Burst < merged.Burst {
			merged.Burst = sp.Burst
		}
	}
	merged.Name = "nexus(" + strings.Join(names, ",") + ")"
	return merged
}

// MergeSinks is the upward counterpart: the tightest acceptance limit
// and the shallowest buffer win.
func MergeSinks(in []graph.Up) graph.Up {
	merged := SinkParams{Name: "nexus"}
	names := make([]string, 0, len(in))
	for k, u := range in {
		kp := u.(SinkParams)
		names = append(names, kp.Name)
		if k == 0 || (kp.MaxWidth > 0 && (merged.MaxWidth == 0 || kp.MaxWidth < merged.MaxWidth)) {
			merged.MaxWidth = kp.MaxWidth
		}
		if k == 0 || kp.Depth < merged.Depth {
			merged.Depth = kp.Depth
		}
	}
	merged.Name = "nexus(" + strings.Join(names, ",") + ")"
	return merged
}
