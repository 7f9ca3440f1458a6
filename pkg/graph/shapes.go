package graph

// shape fixes the three policy methods that specialise star resolution
// and parameter mapping for one catalog entry. Policies are pure: they
// fail with a typed *Error and never touch the node's lazy state.
type shape interface {
	kind() string
	resolveStar(n *Node, iKnown, oKnown, iStars, oStars int) (iStar, oStar int, err error)
	mapDown(n *Node, count int, in []Down) ([]Down, error)
	mapUp(n *Node, count int, in []Up) ([]Up, error)
}

// ---------------------------------------------------------------------------
// Adapter
// ---------------------------------------------------------------------------

// adapterShape is a 1:1 parameter transform. Port counts must match on
// both sides; at most one side may carry stars.
type adapterShape struct {
	kindName string
	dFn      func(Down) Down
	uFn      func(Up) Up
}

func (s *adapterShape) kind() string { return s.kindName }

func (s *adapterShape) resolveStar(n *Node, iKnown, oKnown, iStars, oStars int) (int, int, error) {
	if iStars > 0 && oStars > 0 {
		return 0, 0, n.fail(ErrStarShape, "star resolution", n.firstSrc(),
			"%s cannot carry stars on both sides (%d inward, %d outward)",
			s.kindName, iStars, oStars)
	}
	if oStars > 0 {
		if iKnown < oKnown {
			return 0, 0, n.fail(ErrUnderAssigned, "star resolution", n.firstSrc(),
				"%d inward ports cannot satisfy %d outward ports plus stars", iKnown, oKnown)
		}
		return 0, iKnown - oKnown, nil
	}
	if oKnown < iKnown {
		return 0, 0, n.fail(ErrUnderAssigned, "star resolution", n.firstSrc(),
			"%d outward ports cannot satisfy %d inward ports plus stars", oKnown, iKnown)
	}
	return oKnown - iKnown, 0, nil
}

func (s *adapterShape) mapDown(n *Node, count int, in []Down) ([]Down, error) {
	if count != len(in) {
		return nil, n.fail(ErrParamMismatch, "downward parameters", n.firstSrc(),
			"%s requires matching port counts, got %d inward and %d outward",
			s.kindName, len(in), count)
	}
	out := make([]Down, count)
	for k, d := range in {
		out[k] = s.dFn(d)
	}
	return out, nil
}

func (s *adapterShape) mapUp(n *Node, count int, in []Up) ([]Up, error) {
	if count != len(in) {
		return nil, n.fail(ErrParamMismatch, "upward parameters", n.firstSrc(),
			"%s requires matching port counts, got %d outward and %d inward",
			s.kindName, len(in), count)
	}
	out := make([]Up, count)
	for k, u := range in {
		out[k] = s.uFn(u)
	}
	return out, nil
}

// ---------------------------------------------------------------------------
// Nexus
// ---------------------------------------------------------------------------

// nexusShape is a many-to-many fan point: all incoming parameters
// collapse to a single value replicated to every port on the other side.
// Stars are forbidden on both sides.
type nexusShape struct {
	dFn func([]Down) Down
	uFn func([]Up) Up
}

func (s *nexusShape) kind() string { return "nexus" }

func (s *nexusShape) resolveStar(n *Node, iKnown, oKnown, iStars, oStars int) (int, int, error) {
	if iStars > 0 || oStars > 0 {
		return 0, 0, n.fail(ErrStarShape, "star resolution", n.firstSrc(),
			"nexus bindings must have concrete widths (%d inward stars, %d outward stars)",
			iStars, oStars)
	}
	return 0, 0, nil
}

func (s *nexusShape) mapDown(n *Node, count int, in []Down) ([]Down, error) {
	if count == 0 {
		return nil, nil
	}
	v := s.dFn(in)
	out := make([]Down, count)
	for k := range out {
		out[k] = v
	}
	return out, nil
}

func (s *nexusShape) mapUp(n *Node, count int, in []Up) ([]Up, error) {
	if count == 0 {
		return nil, nil
	}
	v := s.uFn(in)
	out := make([]Up, count)
	for k := range out {
		out[k] = v
	}
	return out, nil
}

// ---------------------------------------------------------------------------
// Splitter
// ---------------------------------------------------------------------------

// splitterShape fans its inward ports out to a divisible multiplicity:
// every outward star binding receives the full inward width. Outward
// bindings must all be stars and the inward side must not carry any.
type splitterShape struct {
	dFn func(count int, in []Down) []Down
	uFn func(count int, in []Up) []Up
}

func (s *splitterShape) kind() string { return "splitter" }

func (s *splitterShape) resolveStar(n *Node, iKnown, oKnown, iStars, oStars int) (int, int, error) {
	if iStars > 0 {
		return 0, 0, n.fail(ErrStarShape, "star resolution", n.firstSrc(),
			"splitter inward bindings must have concrete widths (%d stars)", iStars)
	}
	if oKnown > 0 {
		return 0, 0, n.fail(ErrStarShape, "star resolution", n.firstSrc(),
			"splitter outward bindings must all be stars (%d concrete ports)", oKnown)
	}
	return 0, iKnown, nil
}

func (s *splitterShape) mapDown(n *Node, count int, in []Down) ([]Down, error) {
	if len(in) != 0 && count%len(in) != 0 {
		return nil, n.fail(ErrParamMismatch, "downward parameters", n.firstSrc(),
			"cannot split %d inward ports across %d outward ports", len(in), count)
	}
	out := s.dFn(count, in)
	if len(out) != count {
		return nil, n.fail(ErrParamMismatch, "downward parameters", n.firstSrc(),
			"splitter produced %d downward parameters, want %d", len(out), count)
	}
	return out, nil
}

func (s *splitterShape) mapUp(n *Node, count int, in []Up) ([]Up, error) {
	if count != 0 && len(in)%count != 0 {
		return nil, n.fail(ErrParamMismatch, "upward parameters", n.firstSrc(),
			"cannot merge %d outward ports back into %d inward ports", len(in), count)
	}
	out := s.uFn(count, in)
	if len(out) != count {
		return nil, n.fail(ErrParamMismatch, "upward parameters", n.firstSrc(),
			"splitter produced %d upward parameters, want %d", len(out), count)
	}
	return out, nil
}

// ---------------------------------------------------------------------------
// Source and Sink
// ---------------------------------------------------------------------------

// sourceShape emits a fixed downward parameter sequence. A single star
// binding absorbs whatever the concrete bindings leave over.
type sourceShape struct {
	kindName string
	po       []Down
}

func (s *sourceShape) kind() string { return s.kindName }

func (s *sourceShape) resolveStar(n *Node, iKnown, oKnown, iStars, oStars int) (int, int, error) {
	if iStars > 0 || iKnown > 0 {
		return 0, 0, n.fail(ErrStarShape, "star resolution", n.firstSrc(),
			"%s accepts no inward bindings", s.kindName)
	}
	if oStars > 1 {
		return 0, 0, n.fail(ErrStarShape, "star resolution", n.firstSrc(),
			"%s allows at most one outward star, got %d", s.kindName, oStars)
	}
	if oKnown > len(s.po) {
		return 0, 0, n.fail(ErrOverAssigned, "star resolution", n.firstSrc(),
			"%d outward ports bound but only %d parameters available", oKnown, len(s.po))
	}
	return 0, len(s.po) - oKnown, nil
}

func (s *sourceShape) mapDown(n *Node, count int, in []Down) ([]Down, error) {
	if count != len(s.po) {
		return nil, n.fail(ErrParamMismatch, "downward parameters", n.firstSrc(),
			"%d outward ports resolved but %d parameters fixed", count, len(s.po))
	}
	out := make([]Down, len(s.po))
	copy(out, s.po)
	return out, nil
}

func (s *sourceShape) mapUp(n *Node, count int, in []Up) ([]Up, error) {
	if count != 0 {
		return nil, n.fail(ErrParamMismatch, "upward parameters", n.firstSrc(),
			"%s has no inward ports, %d requested", s.kindName, count)
	}
	return nil, nil
}

// sinkShape is the upward mirror of sourceShape.
type sinkShape struct {
	kindName string
	pi       []Up
}

func (s *sinkShape) kind() string { return s.kindName }

func (s *sinkShape) resolveStar(n *Node, iKnown, oKnown, iStars, oStars int) (int, int, error) {
	if oStars > 0 || oKnown > 0 {
		return 0, 0, n.fail(ErrStarShape, "star resolution", n.firstSrc(),
			"%s emits no outward bindings", s.kindName)
	}
	if iStars > 1 {
		return 0, 0, n.fail(ErrStarShape, "star resolution", n.firstSrc(),
			"%s allows at most one inward star, got %d", s.kindName, iStars)
	}
	if iKnown > len(s.pi) {
		return 0, 0, n.fail(ErrOverAssigned, "star resolution", n.firstSrc(),
			"%d inward ports bound but only %d parameters available", iKnown, len(s.pi))
	}
	return len(s.pi) - iKnown, 0, nil
}

func (s *sinkShape) mapDown(n *Node, count int, in []Down) ([]Down, error) {
	if count != 0 {
		return nil, n.fail(ErrParamMismatch, "downward parameters", n.firstSrc(),
			"%s has no outward ports, %d requested", s.kindName, count)
	}
	return nil, nil
}

func (s *sinkShape) mapUp(n *Node, count int, in []Up) ([]Up, error) {
	if count != len(s.pi) {
		return nil, n.fail(ErrParamMismatch, "upward parameters", n.firstSrc(),
			"%d inward ports resolved but %d parameters fixed", count, len(s.pi))
	}
	out := make([]Up, len(s.pi))
	copy(out, s.pi)
	return out, nil
}

// ---------------------------------------------------------------------------
// Catalog constructors
// ---------------------------------------------------------------------------

// NewAdapter creates a 1:1 parameter-transforming node. The acceptance
// range applies to both sides.
func NewAdapter(s *Scope, name string, imp Imp, num Range, dFn func(Down) Down, uFn func(Up) Up) (*Node, error) {
	return newNode(s, name, imp, imp, &adapterShape{kindName: "adapter", dFn: dFn, uFn: uFn}, num, num)
}

// NewIdentity creates an adapter that passes parameters through
// unchanged.
func NewIdentity(s *Scope, name string, imp Imp, num Range) (*Node, error) {
	return newNode(s, name, imp, imp, identityShape(), num, num)
}

func identityShape() *adapterShape {
	return &adapterShape{
		kindName: "identity",
		dFn:      func(d Down) Down { return d },
		uFn:      func(u Up) Up { return u },
	}
}

// NewNexus creates a many-to-many fan point collapsing all incoming
// parameters to one value per side.
func NewNexus(s *Scope, name string, imp Imp, numIn, numOut Range, dFn func([]Down) Down, uFn func([]Up) Up) (*Node, error) {
	return newNode(s, name, imp, imp, &nexusShape{dFn: dFn, uFn: uFn}, numIn, numOut)
}

// NewSplitter creates a node that fans its inward ports out to a
// divisible multiplicity through star bindings.
func NewSplitter(s *Scope, name string, imp Imp, dFn func(int, []Down) []Down, uFn func(int, []Up) []Up) (*Node, error) {
	return newNode(s, name, imp, imp, &splitterShape{dFn: dFn, uFn: uFn}, AnyRange, AnyRange)
}

// NewSource creates a node emitting the fixed downward parameter
// sequence po. It accepts no inward bindings and has no inward bundle.
func NewSource(s *Scope, name string, imp Imp, po []Down) (*Node, error) {
	n, err := newNode(s, name, imp, imp, &sourceShape{kindName: "source", po: po}, Exactly(0), Exactly(len(po)))
	if err != nil {
		return nil, err
	}
	n.noBundleIn = true
	return n, nil
}

// NewSink creates a node absorbing the fixed upward parameter sequence
// pi. It emits no outward bindings and has no outward bundle.
func NewSink(s *Scope, name string, imp Imp, pi []Up) (*Node, error) {
	n, err := newNode(s, name, imp, imp, &sinkShape{kindName: "sink", pi: pi}, Exactly(len(pi)), Exactly(0))
	if err != nil {
		return nil, err
	}
	n.noBundleOut = true
	return n, nil
}

// NewOutput creates an identity node whose inward side is hidden: the
// inward bundle aliases the outward one.
func NewOutput(s *Scope, name string, imp Imp) (*Node, error) {
	sh := identityShape()
	sh.kindName = "output"
	n, err := newNode(s, name, imp, imp, sh, AnyRange, AnyRange)
	if err != nil {
		return nil, err
	}
	n.externalIn = false
	n.alias = true
	return n, nil
}

// NewInput creates an identity node whose outward side is hidden: the
// outward bundle aliases the inward one.
func NewInput(s *Scope, name string, imp Imp) (*Node, error) {
	sh := identityShape()
	sh.kindName = "input"
	n, err := newNode(s, name, imp, imp, sh, AnyRange, AnyRange)
	if err != nil {
		return nil, err
	}
	n.externalOut = false
	n.alias = true
	return n, nil
}

// NewBlindOutput creates a source whose bundle direction is flipped so
// the emitted ports face outward as module inputs; the hidden side
// aliases the visible one.
func NewBlindOutput(s *Scope, name string, imp Imp, po []Down) (*Node, error) {
	n, err := newNode(s, name, imp, imp, &sourceShape{kindName: "blind-output", po: po}, Exactly(0), Exactly(len(po)))
	if err != nil {
		return nil, err
	}
	n.noBundleIn = true
	n.externalIn = false
	n.flip = true
	n.alias = true
	return n, nil
}

// NewBlindInput creates a sink whose bundle direction is flipped; the
// hidden side aliases the visible one.
func NewBlindInput(s *Scope, name string, imp Imp, pi []Up) (*Node, error) {
	n, err := newNode(s, name, imp, imp, &sinkShape{kindName: "blind-input", pi: pi}, Exactly(len(pi)), Exactly(0))
	if err != nil {
		return nil, err
	}
	n.noBundleOut = true
	n.externalOut = false
	n.flip = true
	n.alias = true
	return n, nil
}

// NewInternalOutput creates a sink visible on neither side whose bundle
// is materialised as a freestanding wire rather than a module port.
func NewInternalOutput(s *Scope, name string, imp Imp, pi []Up) (*Node, error) {
	n, err := newNode(s, name, imp, imp, &sinkShape{kindName: "internal-output", pi: pi}, Exactly(len(pi)), Exactly(0))
	if err != nil {
		return nil, err
	}
	n.noBundleOut = true
	n.externalIn = false
	n.externalOut = false
	n.wire = true
	n.alias = true
	return n, nil
}

// NewInternalInput creates a source visible on neither side whose bundle
// is a freestanding wire.
func NewInternalInput(s *Scope, name string, imp Imp, po []Down) (*Node, error) {
	n, err := newNode(s, name, imp, imp, &sourceShape{kindName: "internal-input", po: po}, Exactly(0), Exactly(len(po)))
	if err != nil {
		return nil, err
	}
	n.noBundleIn = true
	n.externalIn = false
	n.externalOut = false
	n.wire = true
	n.alias = true
	return n, nil
}
