package bus

import (
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/chazu/weft/pkg/graph"
)

func TestEdgeNegotiatesWidth(t *testing.T) {
	im := New(NewNetlist())
	e := im.Edge(
		SourceParams{Name: "dma", Width: 64, Burst: 4},
		SinkParams{Name: "ddr", MaxWidth: 32, Depth: 2},
	).(Edge)

	want := Edge{Source: "dma", Sink: "ddr", Width: 32, Burst: 4, Depth: 2}
	if diff := cmp.Diff(want, e); diff != "" {
		t.Errorf("edge mismatch (-want +got):\n%s", diff)
	}

	// A zero acceptance limit means the sink takes any width.
	e = im.Edge(SourceParams{Name: "dma", Width: 64}, SinkParams{Name: "ddr"}).(Edge)
	if e.Width != 64 {
		t.Errorf("unlimited sink negotiated width %d, want 64", e.Width)
	}
}

func TestElaborationRecordsNetlist(t *testing.T) {
	nl := NewNetlist()
	im := New(nl)

	s := graph.NewScope("soc")
	src, err := graph.NewSource(s, "dma", im, []graph.Down{
		SourceParams{Name: "dma0", Width: 64, Burst: 4},
		SourceParams{Name: "dma1", Width: 64, Burst: 4},
	})
	if err != nil {
		t.Fatal(err)
	}
	snk, err := graph.NewSink(s, "ddr", im, []graph.Up{
		SinkParams{Name: "ddr0", MaxWidth: 32, Depth: 8},
		SinkParams{Name: "ddr1", MaxWidth: 32, Depth: 8},
	})
	if err != nil {
		t.Fatal(err)
	}
	if err := snk.StarFrom(src); err != nil {
		t.Fatalf("StarFrom: %v", err)
	}
	if err := s.Elaborate(); err != nil {
		t.Fatalf("Elaborate: %v", err)
	}

	if nl.Len() != 2 {
		t.Fatalf("netlist wires = %d, want 2", nl.Len())
	}
	for _, w := range nl.Wires() {
		if w.Width != 32 {
			t.Errorf("wire %s -> %s width %d, want 32", w.From, w.To, w.Width)
		}
		if w.From == "" || w.To == "" {
			t.Errorf("wire has unnamed endpoints: %+v", w)
		}
	}

	mons := s.Monitors()
	if len(mons) != 1 {
		t.Fatalf("monitors = %d, want 1", len(mons))
	}
	m := mons[0].(*Monitor)
	if len(m.Edges) != 2 || m.Edges[0].Width != 32 {
		t.Errorf("monitor edges = %+v", m.Edges)
	}
}

func TestWidthAdapterNarrows(t *testing.T) {
	nl := NewNetlist()
	im := New(nl)

	s := graph.NewScope("soc")
	src, err := graph.NewSource(s, "cpu", im, []graph.Down{
		SourceParams{Name: "cpu", Width: 64, Burst: 1},
	})
	if err != nil {
		t.Fatal(err)
	}
	dFn, uFn := WidthAdapter(16)
	ad, err := graph.NewAdapter(s, "narrow", im, graph.AnyRange, dFn, uFn)
	if err != nil {
		t.Fatal(err)
	}
	snk, err := graph.NewSink(s, "uart", im, []graph.Up{
		SinkParams{Name: "uart", MaxWidth: 32, Depth: 1},
	})
	if err != nil {
		t.Fatal(err)
	}

	if err := ad.FromStar(src); err != nil {
		t.Fatalf("FromStar: %v", err)
	}
	if err := snk.StarFrom(ad); err != nil {
		t.Fatalf("StarFrom: %v", err)
	}
	if err := s.Elaborate(); err != nil {
		t.Fatalf("Elaborate: %v", err)
	}

	// Downstream of the adapter the stream is 16 bits wide.
	edges, err := ad.EdgesOut()
	if err != nil {
		t.Fatalf("EdgesOut: %v", err)
	}
	if edges[0].(Edge).Width != 16 {
		t.Errorf("downstream width = %d, want 16", edges[0].(Edge).Width)
	}

	// Upstream the sink's limit is clamped to the adapter width, so the
	// source negotiates 16 as well.
	up, err := src.EdgesOut()
	if err != nil {
		t.Fatalf("EdgesOut: %v", err)
	}
	if up[0].(Edge).Width != 16 {
		t.Errorf("upstream width = %d, want 16", up[0].(Edge).Width)
	}
}

func TestMixRecordsVia(t *testing.T) {
	nl := NewNetlist()
	im := New(nl)

	s := graph.NewScope("soc")
	src, err := graph.NewSource(s, "eth", im, []graph.Down{
		SourceParams{Name: "eth", Width: 32, Burst: 8},
	})
	if err != nil {
		t.Fatal(err)
	}
	id, err := graph.NewIdentity(s, "tap", im, graph.AnyRange)
	if err != nil {
		t.Fatal(err)
	}
	snk, err := graph.NewSink(s, "mem", im, []graph.Up{
		SinkParams{Name: "mem", MaxWidth: 32, Depth: 4},
	})
	if err != nil {
		t.Fatal(err)
	}

	if err := id.From(src); err != nil {
		t.Fatalf("From: %v", err)
	}
	if err := snk.From(id); err != nil {
		t.Fatalf("From: %v", err)
	}
	if err := s.Elaborate(); err != nil {
		t.Fatalf("Elaborate: %v", err)
	}

	op, err := id.OutParams()
	if err != nil {
		t.Fatalf("OutParams: %v", err)
	}
	via := op[0].(SourceParams).Via
	if diff := cmp.Diff([]string{"eth", "tap"}, via); diff != "" {
		t.Errorf("via mismatch (-want +got):\n%s", diff)
	}
}

func TestMergeFunctions(t *testing.T) {
	d := MergeSources([]graph.Down{
		SourceParams{Name: "a", Width: 64, Burst: 8},
		SourceParams{Name: "b", Width: 32, Burst: 2},
	}).(SourceParams)
	if d.Width != 32 || d.Burst != 2 {
		t.Errorf("merged source = %+v", d)
	}
	if d.Name != "nexus(a,b)" {
		t.Errorf("merged source name = %q", d.Name)
	}

	u := MergeSinks([]graph.Up{
		SinkParams{Name: "x", MaxWidth: 64, Depth: 4},
		SinkParams{Name: "y", MaxWidth: 16, Depth: 2},
	}).(SinkParams)
	if u.MaxWidth != 16 || u.Depth != 2 {
		t.Errorf("merged sink = %+v", u)
	}
}

func TestNexusFabric(t *testing.T) {
	nl := NewNetlist()
	im := New(nl)

	s := graph.NewScope("soc")
	a, err := graph.NewSource(s, "a", im, []graph.Down{SourceParams{Name: "a", Width: 64, Burst: 4}})
	if err != nil {
		t.Fatal(err)
	}
	b, err := graph.NewSource(s, "b", im, []graph.Down{SourceParams{Name: "b", Width: 32, Burst: 4}})
	if err != nil {
		t.Fatal(err)
	}
	xbar, err := graph.NewNexus(s, "xbar", im, graph.AnyRange, graph.AnyRange, MergeSources, MergeSinks)
	if err != nil {
		t.Fatal(err)
	}
	mem, err := graph.NewSink(s, "mem", im, []graph.Up{SinkParams{Name: "mem", MaxWidth: 64, Depth: 16}})
	if err != nil {
		t.Fatal(err)
	}

	if err := xbar.From(a); err != nil {
		t.Fatalf("From: %v", err)
	}
	if err := xbar.From(b); err != nil {
		t.Fatalf("From: %v", err)
	}
	if err := mem.From(xbar); err != nil {
		t.Fatalf("From: %v", err)
	}
	if err := s.Elaborate(); err != nil {
		t.Fatalf("Elaborate: %v", err)
	}

	edges, err := xbar.EdgesOut()
	if err != nil {
		t.Fatalf("EdgesOut: %v", err)
	}
	e := edges[0].(Edge)
	if e.Width != 32 {
		t.Errorf("fabric width = %d, want 32 (narrowest input)", e.Width)
	}
	if nl.Len() != 3 {
		t.Errorf("netlist wires = %d, want 3", nl.Len())
	}
}
