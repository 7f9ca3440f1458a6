package graph

import "fmt"

// binding is one recorded push: the index this binding occupies in the
// peer's mirrored list, the peer itself, the tag, and where in user code
// the bind was written.
type binding struct {
	index int
	node  *Node
	kind  BindKind
	src   SourceRef
}

// Node is one statically-sized module in the negotiation graph. It is
// constructed by a catalog constructor (NewSource, NewAdapter, ...),
// accumulates bindings during the mutative phase, and resolves its star
// widths, port mappings, parameters, edges and bundles lazily on first
// observation.
type Node struct {
	name  string
	index int // stable within-scope index
	scope *Scope

	inner Imp // inward side
	outer Imp // outward side
	shape shape

	numIn, numOut Range

	iPush, oPush     []binding
	iFrozen, oFrozen bool

	// Bundle visibility flags, fixed by the catalog constructor.
	externalIn, externalOut bool
	flip, wire              bool
	alias                   bool // hidden side shares the visible side's bundles
	noBundleIn, noBundleOut bool

	// Lazy derived state, each guarded by its own cell.
	stars, layout, ports       cell
	downCell, upCell, edgeCell cell

	iStar, oStar       int
	iMapping, oMapping []PortRange
	iPorts, oPorts     []PortRef
	downParams         []Down // one per outward port
	upParams           []Up   // one per inward port
	edgesIn, edgesOut  []Edge
	bundlesIn          []Bundle
	bundlesOut         []Bundle
}

// newNode is the common constructor behind the catalog.
func newNode(s *Scope, name string, inner, outer Imp, sh shape, numIn, numOut Range) (*Node, error) {
	if !s.Active() {
		return nil, &Error{
			Kind:    ErrOutOfScope,
			Op:      "construct",
			Message: fmt.Sprintf("cannot create %s node %q outside an active scope", sh.kind(), name),
		}
	}
	n := &Node{
		name:        name,
		scope:       s,
		inner:       inner,
		outer:       outer,
		shape:       sh,
		numIn:       numIn,
		numOut:      numOut,
		externalIn:  true,
		externalOut: true,
	}
	n.index = s.register(n)
	return n, nil
}

// Name returns the node's bare name.
func (n *Node) Name() string { return n.name }

// Index returns the node's stable index within its scope.
func (n *Node) Index() int { return n.index }

// Scope returns the enclosing scope.
func (n *Node) Scope() *Scope { return n.scope }

// Shape returns the catalog shape name, e.g. "adapter".
func (n *Node) Shape() string { return n.shape.kind() }

// FullName returns the qualified name used in diagnostics:
// scope path, node name and within-scope index.
func (n *Node) FullName() string {
	name := n.name
	if name == "" {
		name = n.shape.kind()
	}
	return fmt.Sprintf("%s.%s#%d", n.scope.Path(), name, n.index)
}

func (n *Node) String() string { return n.FullName() }

// External reports the bundle visibility flags (inward, outward).
func (n *Node) External() (in, out bool) { return n.externalIn, n.externalOut }

// Flipped reports whether the bundle sequences swap logical direction.
func (n *Node) Flipped() bool { return n.flip }

// Wire reports whether the bundle is a freestanding wire rather than a
// module port.
func (n *Node) Wire() bool { return n.wire }

// GraphStyle reports the outward imp's rendering cosmetics: edge colour
// and whether rendered arrows point backwards.
func (n *Node) GraphStyle() (color string, reverse bool) {
	return n.outer.Color(), n.outer.Reverse()
}

// firstSrc returns the earliest recorded push location, for diagnostics
// raised during resolution rather than at push time.
func (n *Node) firstSrc() SourceRef {
	if len(n.iPush) > 0 {
		return n.iPush[0].src
	}
	if len(n.oPush) > 0 {
		return n.oPush[0].src
	}
	return SourceRef{}
}

// iPushBinding appends to the inward push list. The side must not have
// been observed yet, the scope must be active, and the node must accept
// inward ports at all.
func (n *Node) iPushBinding(index int, peer *Node, kind BindKind, src SourceRef) error {
	if !n.scope.Active() {
		return n.fail(ErrOutOfScope, "bind", src, "scope %s is no longer active", n.scope.Path())
	}
	if n.iFrozen {
		return n.fail(ErrFrozen, "bind", src, "inward bindings were already observed")
	}
	if n.numIn.degenerate() {
		return n.fail(ErrNotASink, "bind", src, "%s node accepts no inward bindings", n.shape.kind())
	}
	n.iPush = append(n.iPush, binding{index: index, node: peer, kind: kind, src: src})
	return nil
}

// oPushBinding appends to the outward push list, gated like iPushBinding.
func (n *Node) oPushBinding(index int, peer *Node, kind BindKind, src SourceRef) error {
	if !n.scope.Active() {
		return n.fail(ErrOutOfScope, "bind", src, "scope %s is no longer active", n.scope.Path())
	}
	if n.oFrozen {
		return n.fail(ErrFrozen, "bind", src, "outward bindings were already observed")
	}
	if n.numOut.degenerate() {
		return n.fail(ErrNotASource, "bind", src, "%s node emits no outward bindings", n.shape.kind())
	}
	n.oPush = append(n.oPush, binding{index: index, node: peer, kind: kind, src: src})
	return nil
}

// From binds exactly one port of x to one binding on source y. The exact
// port count is determined by the two shapes.
func (x *Node) From(y *Node) error { return x.bind(y, BindOnce, true, callerRef(1)) }

// StarFrom binds x to y with the star on x: the width is driven by x's
// resolved star count (sink-driven fan-in).
func (x *Node) StarFrom(y *Node) error { return x.bind(y, BindStar, true, callerRef(1)) }

// FromStar binds x to y with the star on y: the width is driven by y's
// resolved star count (source-driven fan-out).
func (x *Node) FromStar(y *Node) error { return x.bind(y, BindQuery, true, callerRef(1)) }

// FromUnmonitored is From without protocol monitor instantiation.
func (x *Node) FromUnmonitored(y *Node) error { return x.bind(y, BindOnce, false, callerRef(1)) }

// StarFromUnmonitored is StarFrom without protocol monitor instantiation.
func (x *Node) StarFromUnmonitored(y *Node) error { return x.bind(y, BindStar, false, callerRef(1)) }

// FromStarUnmonitored is FromStar without protocol monitor instantiation.
func (x *Node) FromStarUnmonitored(y *Node) error { return x.bind(y, BindQuery, false, callerRef(1)) }

// bind records one binding on both nodes in mirrored tag space and
// registers the deferred connect closure on the sink's scope.
func (x *Node) bind(y *Node, kind BindKind, monitored bool, src SourceRef) error {
	if y == nil {
		return x.fail(ErrOutOfScope, "bind", src, "nil source node")
	}
	if !x.scope.Active() {
		return x.fail(ErrOutOfScope, "bind", src, "sink scope %s is no longer active", x.scope.Path())
	}
	if !y.scope.Active() {
		return y.fail(ErrOutOfScope, "bind", src, "source scope %s is no longer active", y.scope.Path())
	}

	// The peer-local indices are the list lengths before either push.
	i := len(x.iPush)
	o := len(y.oPush)
	if err := y.oPushBinding(i, x, kind.mirror(), src); err != nil {
		return err
	}
	if err := x.iPushBinding(o, y, kind, src); err != nil {
		return err
	}

	x.scope.addPending(func() error {
		return x.connectBinding(i, o, y, monitored, src)
	})
	return nil
}

// connectBinding runs during elaboration. It pulls the edge and bundle
// slices for one binding from both nodes' lazy fields, cross-checks the
// mirrored widths, and invokes the inward imp's Connect hook.
func (x *Node) connectBinding(i, o int, y *Node, monitored bool, src SourceRef) error {
	edges, err := x.EdgesIn()
	if err != nil {
		return err
	}
	bin, err := x.BundlesIn()
	if err != nil {
		return err
	}
	bout, err := y.BundlesOut()
	if err != nil {
		return err
	}

	ir := x.iMapping[i]
	or := y.oMapping[o]
	if ir.Width() != or.Width() {
		return x.fail(ErrInternalInvariant, "connect", src,
			"binding widths disagree: %d inward on %s vs %d outward on %s",
			ir.Width(), x.FullName(), or.Width(), y.FullName())
	}
	if ir.End > len(bin) || or.End > len(bout) {
		return x.fail(ErrInternalInvariant, "connect", src,
			"bundle slices shorter than port mapping")
	}

	mon, wirefn := x.inner.Connect(edges[ir.Start:ir.End], bin[ir.Start:ir.End], bout[or.Start:or.End], monitored)
	if mon != nil {
		x.scope.monitors = append(x.scope.monitors, mon)
	}
	if wirefn != nil {
		x.scope.wires = append(x.scope.wires, wirefn)
	}
	return nil
}
