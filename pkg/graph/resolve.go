package graph

// cell guards one lazily-computed quantity. The first observation runs
// the computation exactly once and caches the result or the failure; a
// re-entrant observation while the computation is in flight means the
// recurrence is genuinely cyclic, which the shape catalog is supposed to
// make impossible.
type cell struct {
	done bool
	busy bool
	err  error
}

func (c *cell) run(n *Node, op string, f func() error) error {
	if c.done {
		return c.err
	}
	if c.busy {
		return n.fail(ErrInternalInvariant, op, n.firstSrc(),
			"cyclic resolution detected")
	}
	c.busy = true
	err := f()
	c.busy = false
	c.done = true
	c.err = err
	return err
}

// resolveStars freezes both push lists and resolves the node's star
// widths. A QUERY binding contributes the peer's star width on the
// peer's opposite side, so the recursion crosses each edge at most once
// and never pulls back on the side it came from.
func (n *Node) resolveStars() error {
	return n.stars.run(n, "star resolution", func() error {
		n.iFrozen = true
		n.oFrozen = true

		var iStars, oStars, iKnown, oKnown int
		for _, b := range n.iPush {
			switch b.kind {
			case BindOnce:
				iKnown++
			case BindStar:
				iStars++
			case BindQuery:
				if err := b.node.resolveStars(); err != nil {
					return err
				}
				iKnown += b.node.oStar
			}
		}
		for _, b := range n.oPush {
			switch b.kind {
			case BindOnce:
				oKnown++
			case BindStar:
				oStars++
			case BindQuery:
				if err := b.node.resolveStars(); err != nil {
					return err
				}
				oKnown += b.node.iStar
			}
		}

		iStar, oStar, err := n.shape.resolveStar(n, iKnown, oKnown, iStars, oStars)
		if err != nil {
			return err
		}
		n.iStar, n.oStar = iStar, oStar
		return nil
	})
}

// bindingWidths returns the per-binding port widths for one side, in
// push order.
func (n *Node) bindingWidths(bindings []binding, star int, peerStar func(*Node) int) ([]int, error) {
	widths := make([]int, len(bindings))
	for k, b := range bindings {
		switch b.kind {
		case BindOnce:
			widths[k] = 1
		case BindStar:
			widths[k] = star
		case BindQuery:
			if err := b.node.resolveStars(); err != nil {
				return nil, err
			}
			widths[k] = peerStar(b.node)
		}
	}
	return widths, nil
}

// resolveLayout computes the port mappings as a running prefix sum of
// per-binding widths and checks the totals against the acceptance
// ranges.
func (n *Node) resolveLayout() error {
	return n.layout.run(n, "port mapping", func() error {
		if err := n.resolveStars(); err != nil {
			return err
		}

		iw, err := n.bindingWidths(n.iPush, n.iStar, func(p *Node) int { return p.oStar })
		if err != nil {
			return err
		}
		ow, err := n.bindingWidths(n.oPush, n.oStar, func(p *Node) int { return p.iStar })
		if err != nil {
			return err
		}

		n.iMapping = make([]PortRange, len(iw))
		iTotal := 0
		for k, w := range iw {
			n.iMapping[k] = PortRange{Start: iTotal, End: iTotal + w}
			iTotal += w
		}
		n.oMapping = make([]PortRange, len(ow))
		oTotal := 0
		for k, w := range ow {
			n.oMapping[k] = PortRange{Start: oTotal, End: oTotal + w}
			oTotal += w
		}

		if !n.numIn.Contains(iTotal) {
			return n.fail(ErrArity, "port mapping", n.firstSrc(),
				"%d inward ports outside acceptance range %s", iTotal, n.numIn)
		}
		if !n.numOut.Contains(oTotal) {
			return n.fail(ErrArity, "port mapping", n.firstSrc(),
				"%d outward ports outside acceptance range %s", oTotal, n.numOut)
		}
		return nil
	})
}

// resolvePorts enumerates, for every binding, the peer's port range under
// that binding. This pulls the peer's layout; peers only ever pull our
// star widths back, so the recursion stays well-founded.
func (n *Node) resolvePorts() error {
	return n.ports.run(n, "port enumeration", func() error {
		if err := n.resolveLayout(); err != nil {
			return err
		}

		n.oPorts = make([]PortRef, 0, n.oTotal())
		for k, b := range n.oPush {
			if err := b.node.resolveLayout(); err != nil {
				return err
			}
			pr := b.node.iMapping[b.index]
			if pr.Width() != n.oMapping[k].Width() {
				return n.fail(ErrInternalInvariant, "port enumeration", b.src,
					"outward binding %d is %d ports wide here but %d on %s",
					k, n.oMapping[k].Width(), pr.Width(), b.node.FullName())
			}
			for j := pr.Start; j < pr.End; j++ {
				n.oPorts = append(n.oPorts, PortRef{Index: j, Node: b.node})
			}
		}

		n.iPorts = make([]PortRef, 0, n.iTotal())
		for k, b := range n.iPush {
			if err := b.node.resolveLayout(); err != nil {
				return err
			}
			pr := b.node.oMapping[b.index]
			if pr.Width() != n.iMapping[k].Width() {
				return n.fail(ErrInternalInvariant, "port enumeration", b.src,
					"inward binding %d is %d ports wide here but %d on %s",
					k, n.iMapping[k].Width(), pr.Width(), b.node.FullName())
			}
			for j := pr.Start; j < pr.End; j++ {
				n.iPorts = append(n.iPorts, PortRef{Index: j, Node: b.node})
			}
		}
		return nil
	})
}

func (n *Node) iTotal() int {
	if len(n.iMapping) == 0 {
		return 0
	}
	return n.iMapping[len(n.iMapping)-1].End
}

func (n *Node) oTotal() int {
	if len(n.oMapping) == 0 {
		return 0
	}
	return n.oMapping[len(n.oMapping)-1].End
}

// resolveDownParams collects the downward parameters arriving at the
// inward ports, maps them through the shape, and mixes each result with
// the outward imp. The pull recurses upstream only.
func (n *Node) resolveDownParams() error {
	return n.downCell.run(n, "downward parameters", func() error {
		if err := n.resolvePorts(); err != nil {
			return err
		}
		incoming := make([]Down, 0, len(n.iPorts))
		for _, p := range n.iPorts {
			dv, err := p.Node.OutParams()
			if err != nil {
				return err
			}
			incoming = append(incoming, dv[p.Index])
		}
		out, err := n.shape.mapDown(n, len(n.oPorts), incoming)
		if err != nil {
			return err
		}
		if len(out) != len(n.oPorts) {
			return n.fail(ErrParamMismatch, "downward parameters", n.firstSrc(),
				"shape produced %d downward parameters for %d outward ports",
				len(out), len(n.oPorts))
		}
		for k := range out {
			out[k] = n.outer.MixDown(out[k], n)
		}
		n.downParams = out
		return nil
	})
}

// resolveUpParams is the symmetric upward pass; the pull recurses
// downstream only.
func (n *Node) resolveUpParams() error {
	return n.upCell.run(n, "upward parameters", func() error {
		if err := n.resolvePorts(); err != nil {
			return err
		}
		incoming := make([]Up, 0, len(n.oPorts))
		for _, p := range n.oPorts {
			uv, err := p.Node.InParams()
			if err != nil {
				return err
			}
			incoming = append(incoming, uv[p.Index])
		}
		in, err := n.shape.mapUp(n, len(n.iPorts), incoming)
		if err != nil {
			return err
		}
		if len(in) != len(n.iPorts) {
			return n.fail(ErrParamMismatch, "upward parameters", n.firstSrc(),
				"shape produced %d upward parameters for %d inward ports",
				len(in), len(n.iPorts))
		}
		for k := range in {
			in[k] = n.inner.MixUp(in[k], n)
		}
		n.upParams = in
		return nil
	})
}

// resolveEdges fuses the negotiated parameters into per-port edges and
// builds the bundle sequences, applying the flip and alias modifiers.
func (n *Node) resolveEdges() error {
	return n.edgeCell.run(n, "edges", func() error {
		if err := n.resolveDownParams(); err != nil {
			return err
		}
		if err := n.resolveUpParams(); err != nil {
			return err
		}

		n.edgesOut = make([]Edge, len(n.oPorts))
		for k, p := range n.oPorts {
			peerUp, err := p.Node.InParams()
			if err != nil {
				return err
			}
			n.edgesOut[k] = n.outer.Edge(n.downParams[k], peerUp[p.Index])
		}
		n.edgesIn = make([]Edge, len(n.iPorts))
		for k, p := range n.iPorts {
			peerDown, err := p.Node.OutParams()
			if err != nil {
				return err
			}
			n.edgesIn[k] = n.inner.Edge(peerDown[p.Index], n.upParams[k])
		}

		var bin, bout []Bundle
		if !n.noBundleIn {
			bin = make([]Bundle, len(n.edgesIn))
			for k, e := range n.edgesIn {
				bin[k] = n.inner.Bundle(e)
			}
		}
		if !n.noBundleOut {
			bout = make([]Bundle, len(n.edgesOut))
			for k, e := range n.edgesOut {
				bout[k] = n.outer.Bundle(e)
			}
		}
		if n.flip {
			bin, bout = bout, bin
		}
		if n.alias {
			// Both accessors must return the same underlying objects,
			// never structural copies.
			switch {
			case bin == nil:
				bin = bout
			case bout == nil:
				bout = bin
			case !n.externalIn:
				bin = bout
			case !n.externalOut:
				bout = bin
			}
		}
		n.bundlesIn, n.bundlesOut = bin, bout
		return nil
	})
}

// OutParams returns the negotiated downward parameter for every outward
// port, in port order. First observation triggers resolution.
func (n *Node) OutParams() ([]Down, error) {
	if err := n.resolveDownParams(); err != nil {
		return nil, err
	}
	return n.downParams, nil
}

// InParams returns the negotiated upward parameter for every inward
// port, in port order.
func (n *Node) InParams() ([]Up, error) {
	if err := n.resolveUpParams(); err != nil {
		return nil, err
	}
	return n.upParams, nil
}

// Stars returns the resolved star widths (inward, outward).
func (n *Node) Stars() (int, int, error) {
	if err := n.resolveStars(); err != nil {
		return 0, 0, err
	}
	return n.iStar, n.oStar, nil
}

// InMapping returns the half-open port range per inward binding, in push
// order.
func (n *Node) InMapping() ([]PortRange, error) {
	if err := n.resolveLayout(); err != nil {
		return nil, err
	}
	return n.iMapping, nil
}

// OutMapping returns the half-open port range per outward binding.
func (n *Node) OutMapping() ([]PortRange, error) {
	if err := n.resolveLayout(); err != nil {
		return nil, err
	}
	return n.oMapping, nil
}

// EdgesIn returns one edge per inward port.
func (n *Node) EdgesIn() ([]Edge, error) {
	if err := n.resolveEdges(); err != nil {
		return nil, err
	}
	return n.edgesIn, nil
}

// EdgesOut returns one edge per outward port.
func (n *Node) EdgesOut() ([]Edge, error) {
	if err := n.resolveEdges(); err != nil {
		return nil, err
	}
	return n.edgesOut, nil
}

// ExternalEdgesIn returns EdgesIn when the inward side is externally
// visible, and an empty sequence otherwise.
func (n *Node) ExternalEdgesIn() ([]Edge, error) {
	if !n.externalIn {
		return nil, nil
	}
	return n.EdgesIn()
}

// ExternalEdgesOut is the outward counterpart of ExternalEdgesIn.
func (n *Node) ExternalEdgesOut() ([]Edge, error) {
	if !n.externalOut {
		return nil, nil
	}
	return n.EdgesOut()
}

// BundlesIn returns one bundle per inward port, with the flip and alias
// modifiers applied. Shapes without an inward bundle side fail with
// ErrBundleDisallowed.
func (n *Node) BundlesIn() ([]Bundle, error) {
	if err := n.resolveEdges(); err != nil {
		return nil, err
	}
	if n.bundlesIn == nil {
		return nil, n.fail(ErrBundleDisallowed, "bundles", n.firstSrc(),
			"%s node has no inward bundle", n.shape.kind())
	}
	return n.bundlesIn, nil
}

// BundlesOut is the outward counterpart of BundlesIn.
func (n *Node) BundlesOut() ([]Bundle, error) {
	if err := n.resolveEdges(); err != nil {
		return nil, err
	}
	if n.bundlesOut == nil {
		return nil, n.fail(ErrBundleDisallowed, "bundles", n.firstSrc(),
			"%s node has no outward bundle", n.shape.kind())
	}
	return n.bundlesOut, nil
}

// Inputs returns, for every inward port, the peer node and the inward
// imp's label for the connecting edge.
func (n *Node) Inputs() ([]PortLabel, error) {
	edges, err := n.EdgesIn()
	if err != nil {
		return nil, err
	}
	labels := make([]PortLabel, len(edges))
	for k, e := range edges {
		labels[k] = PortLabel{Node: n.iPorts[k].Node, Label: n.inner.Label(e)}
	}
	return labels, nil
}

// Outputs returns, for every outward port, the peer node and the outward
// imp's label for the connecting edge.
func (n *Node) Outputs() ([]PortLabel, error) {
	edges, err := n.EdgesOut()
	if err != nil {
		return nil, err
	}
	labels := make([]PortLabel, len(edges))
	for k, e := range edges {
		labels[k] = PortLabel{Node: n.oPorts[k].Node, Label: n.outer.Label(e)}
	}
	return labels, nil
}

// OmitGraphML reports whether the node has neither inputs nor outputs
// and can be skipped when emitting a graph representation.
func (n *Node) OmitGraphML() (bool, error) {
	if err := n.resolvePorts(); err != nil {
		return false, err
	}
	return len(n.iPorts) == 0 && len(n.oPorts) == 0, nil
}

// CommonOut reports the most-common neighbour reachable through the
// downward parameter of a one-port node, as judged by the outward imp.
// It returns nil for nodes with any other port count.
func (n *Node) CommonOut() (*Node, error) {
	params, err := n.OutParams()
	if err != nil {
		return nil, err
	}
	if len(params) != 1 {
		return nil, nil
	}
	return n.outer.Common(params[0]), nil
}
