package script

import (
	"fmt"
	"strings"

	zygo "github.com/glycerine/zygomys/zygo"

	"github.com/chazu/weft/pkg/bus"
	"github.com/chazu/weft/pkg/graph"
)

// ---------------------------------------------------------------------------
// Source rewriting
// ---------------------------------------------------------------------------

// rewriteSource prepares weft Lisp for zygomys, which has no keyword
// symbols, no Lisp comments and no hyphens in identifiers. In code
// position it rewrites `:keyword` to the marker string "__kw_keyword"
// (leaving `:=` alone), turns the hyphen of a kebab-case identifier
// into an underscore, and converts `;` comments to `//`. String
// literals and comment bodies pass through untouched, tracked by a
// small mode machine.
func rewriteSource(src string) string {
	var out strings.Builder
	out.Grow(len(src) + len(src)/4)

	const (
		code    = iota
		quoted  // inside "..."
		raw     // inside `...`
		comment // after ; until newline
	)
	mode := code

	for i := 0; i < len(src); i++ {
		c := src[i]
		switch mode {
		case quoted:
			out.WriteByte(c)
			switch {
			case c == '\\' && i+1 < len(src):
				i++
				out.WriteByte(src[i])
			case c == '"':
				mode = code
			}
		case raw:
			out.WriteByte(c)
			if c == '`' {
				mode = code
			}
		case comment:
			out.WriteByte(c)
			if c == '\n' {
				mode = code
			}
		default:
			switch {
			case c == '"':
				mode = quoted
				out.WriteByte(c)
			case c == '`':
				mode = raw
				out.WriteByte(c)
			case c == ';':
				// ;; and ; alike become a single //.
				for i+1 < len(src) && src[i+1] == ';' {
					i++
				}
				out.WriteString("//")
				mode = comment
			case c == ':':
				if i+1 < len(src) && src[i+1] == '=' {
					// := is assignment, not a keyword.
					out.WriteString(":=")
					i++
					break
				}
				if i+1 >= len(src) || !alphaByte(src[i+1]) {
					out.WriteByte(c)
					break
				}
				end := i + 1
				for end < len(src) && keywordByte(src[end]) {
					end++
				}
				out.WriteByte('"')
				out.WriteString(kwPrefix)
				out.WriteString(src[i+1 : end])
				out.WriteByte('"')
				i = end - 1
			case c == '-' && i > 0 && i+1 < len(src) &&
				wordByte(src[i-1]) && alphaByte(src[i+1]):
				// Hyphen between identifier characters, not a minus.
				out.WriteByte('_')
			default:
				out.WriteByte(c)
			}
		}
	}
	return out.String()
}

func alphaByte(c byte) bool {
	return (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

func wordByte(c byte) bool {
	return alphaByte(c) || (c >= '0' && c <= '9') || c == '_'
}

func keywordByte(c byte) bool {
	return wordByte(c) || c == '-'
}

// ---------------------------------------------------------------------------
// Custom Sexp types
// ---------------------------------------------------------------------------

// sexpNodeRef wraps a *graph.Node so it can be passed between builtins.
type sexpNodeRef struct {
	node *graph.Node
}

func (n *sexpNodeRef) SexpString(ps *zygo.PrintState) string {
	return fmt.Sprintf("(noderef %q)", n.node.FullName())
}
func (n *sexpNodeRef) Type() *zygo.RegisteredType { return nil }

// ---------------------------------------------------------------------------
// Keyword argument parsing
// ---------------------------------------------------------------------------

// kwPrefix is the marker prepended to keyword names by rewriteSource.
const kwPrefix = "__kw_"

// isKW checks if a Sexp is a rewritten keyword string.
// Returns the keyword name (without prefix) and true if it is.
func isKW(s zygo.Sexp) (string, bool) {
	str, ok := s.(*zygo.SexpStr)
	if !ok {
		return "", false
	}
	if strings.HasPrefix(str.S, kwPrefix) {
		return str.S[len(kwPrefix):], true
	}
	return "", false
}

// kwArgs holds the result of parsing a mixed positional+keyword argument
// list.
type kwArgs struct {
	kw         map[string]zygo.Sexp
	positional []zygo.Sexp
}

// parseArgs separates args into keyword and positional arguments.
func parseArgs(args []zygo.Sexp) kwArgs {
	result := kwArgs{kw: make(map[string]zygo.Sexp)}
	i := 0
	for i < len(args) {
		name, ok := isKW(args[i])
		if ok {
			if i+1 < len(args) {
				result.kw[name] = args[i+1]
				i += 2
			} else {
				result.kw[name] = zygo.SexpNull
				i++
			}
		} else {
			result.positional = append(result.positional, args[i])
			i++
		}
	}
	return result
}

// ---------------------------------------------------------------------------
// Value extraction helpers
// ---------------------------------------------------------------------------

// toInt extracts an int from a Sexp (SexpInt or SexpFloat).
func toInt(s zygo.Sexp) (int, error) {
	switch v := s.(type) {
	case *zygo.SexpInt:
		return int(v.Val), nil
	case *zygo.SexpFloat:
		return int(v.Val), nil
	}
	return 0, fmt.Errorf("expected number, got %T (%s)", s, s.SexpString(nil))
}

// toString extracts a string from a Sexp.
func toString(s zygo.Sexp) (string, error) {
	if str, ok := s.(*zygo.SexpStr); ok {
		return str.S, nil
	}
	return "", fmt.Errorf("expected string, got %T (%s)", s, s.SexpString(nil))
}

// intKW reads an integer keyword argument, returning def when absent.
func intKW(pa kwArgs, name string, def int) (int, error) {
	v, ok := pa.kw[name]
	if !ok {
		return def, nil
	}
	n, err := toInt(v)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", name, err)
	}
	return n, nil
}

// ---------------------------------------------------------------------------
// Builder state
// ---------------------------------------------------------------------------

// builder holds the per-evaluation state the builtins populate: the
// elaboration scope, the shared bus imp, and a name index for looking
// nodes up from later forms.
type builder struct {
	scope *graph.Scope
	imp   *bus.Imp
	nodes map[string]*graph.Node
}

// define registers a freshly constructed node under its name.
func (b *builder) define(name string, n *graph.Node, err error) (zygo.Sexp, error) {
	if err != nil {
		return zygo.SexpNull, err
	}
	if _, dup := b.nodes[name]; dup {
		return zygo.SexpNull, fmt.Errorf("node %q already defined", name)
	}
	b.nodes[name] = n
	return &sexpNodeRef{node: n}, nil
}

// toNode resolves a node reference or a node name.
func (b *builder) toNode(s zygo.Sexp) (*graph.Node, error) {
	switch v := s.(type) {
	case *sexpNodeRef:
		return v.node, nil
	case *zygo.SexpStr:
		if strings.HasPrefix(v.S, kwPrefix) {
			return nil, fmt.Errorf("expected node, got keyword :%s", v.S[len(kwPrefix):])
		}
		n, ok := b.nodes[v.S]
		if !ok {
			return nil, fmt.Errorf("no node named %q", v.S)
		}
		return n, nil
	}
	return nil, fmt.Errorf("expected node reference or name, got %T (%s)", s, s.SexpString(nil))
}

// ---------------------------------------------------------------------------
// Builtin registration
// ---------------------------------------------------------------------------

// registerBuiltins installs the weft topology builtins into a zygomys
// environment. The builtins construct nodes in the builder's scope and
// record bindings; elaboration runs after the script completes.
//
// Source code must go through rewriteSource() before evaluation so
// that :keyword tokens are converted to recognizable string literals.
func registerBuiltins(env *zygo.Zlisp, b *builder) {

	// -----------------------------------------------------------------------
	// (source "dma" :width 64 :burst 4 :ports 2)
	// -----------------------------------------------------------------------
	env.AddFunction("source", func(env *zygo.Zlisp, name string, args []zygo.Sexp) (zygo.Sexp, error) {
		pa := parseArgs(args)
		if len(pa.positional) < 1 {
			return zygo.SexpNull, fmt.Errorf("source requires a name argument")
		}
		srcName, err := toString(pa.positional[0])
		if err != nil {
			return zygo.SexpNull, fmt.Errorf("source: name: %w", err)
		}
		width, err := intKW(pa, "width", 32)
		if err != nil {
			return zygo.SexpNull, fmt.Errorf("source: %w", err)
		}
		burst, err := intKW(pa, "burst", 1)
		if err != nil {
			return zygo.SexpNull, fmt.Errorf("source: %w", err)
		}
		ports, err := intKW(pa, "ports", 1)
		if err != nil {
			return zygo.SexpNull, fmt.Errorf("source: %w", err)
		}
		if ports < 1 {
			return zygo.SexpNull, fmt.Errorf("source: ports must be positive, got %d", ports)
		}

		po := make([]graph.Down, ports)
		for k := range po {
			portName := srcName
			if ports > 1 {
				portName = fmt.Sprintf("%s%d", srcName, k)
			}
			po[k] = bus.SourceParams{Name: portName, Width: width, Burst: burst}
		}
		n, err := graph.NewSource(b.scope, srcName, b.imp, po)
		return b.define(srcName, n, err)
	})

	// -----------------------------------------------------------------------
	// (sink "ddr" :width 64 :depth 8 :ports 1)
	// -----------------------------------------------------------------------
	env.AddFunction("sink", func(env *zygo.Zlisp, name string, args []zygo.Sexp) (zygo.Sexp, error) {
		pa := parseArgs(args)
		if len(pa.positional) < 1 {
			return zygo.SexpNull, fmt.Errorf("sink requires a name argument")
		}
		snkName, err := toString(pa.positional[0])
		if err != nil {
			return zygo.SexpNull, fmt.Errorf("sink: name: %w", err)
		}
		width, err := intKW(pa, "width", 0)
		if err != nil {
			return zygo.SexpNull, fmt.Errorf("sink: %w", err)
		}
		depth, err := intKW(pa, "depth", 1)
		if err != nil {
			return zygo.SexpNull, fmt.Errorf("sink: %w", err)
		}
		ports, err := intKW(pa, "ports", 1)
		if err != nil {
			return zygo.SexpNull, fmt.Errorf("sink: %w", err)
		}
		if ports < 1 {
			return zygo.SexpNull, fmt.Errorf("sink: ports must be positive, got %d", ports)
		}

		pi := make([]graph.Up, ports)
		for k := range pi {
			portName := snkName
			if ports > 1 {
				portName = fmt.Sprintf("%s%d", snkName, k)
			}
			pi[k] = bus.SinkParams{Name: portName, MaxWidth: width, Depth: depth}
		}
		n, err := graph.NewSink(b.scope, snkName, b.imp, pi)
		return b.define(snkName, n, err)
	})

	// -----------------------------------------------------------------------
	// (adapter "narrow" :width 16)
	// -----------------------------------------------------------------------
	env.AddFunction("adapter", func(env *zygo.Zlisp, name string, args []zygo.Sexp) (zygo.Sexp, error) {
		pa := parseArgs(args)
		if len(pa.positional) < 1 {
			return zygo.SexpNull, fmt.Errorf("adapter requires a name argument")
		}
		adName, err := toString(pa.positional[0])
		if err != nil {
			return zygo.SexpNull, fmt.Errorf("adapter: name: %w", err)
		}
		width, err := intKW(pa, "width", 0)
		if err != nil {
			return zygo.SexpNull, fmt.Errorf("adapter: %w", err)
		}
		if width <= 0 {
			return zygo.SexpNull, fmt.Errorf("adapter: width must be positive, got %d", width)
		}

		dFn, uFn := bus.WidthAdapter(width)
		n, err := graph.NewAdapter(b.scope, adName, b.imp, graph.AnyRange, dFn, uFn)
		return b.define(adName, n, err)
	})

	// -----------------------------------------------------------------------
	// (identity "tap")
	// -----------------------------------------------------------------------
	env.AddFunction("identity", func(env *zygo.Zlisp, name string, args []zygo.Sexp) (zygo.Sexp, error) {
		pa := parseArgs(args)
		if len(pa.positional) < 1 {
			return zygo.SexpNull, fmt.Errorf("identity requires a name argument")
		}
		idName, err := toString(pa.positional[0])
		if err != nil {
			return zygo.SexpNull, fmt.Errorf("identity: name: %w", err)
		}
		n, err := graph.NewIdentity(b.scope, idName, b.imp, graph.AnyRange)
		return b.define(idName, n, err)
	})

	// -----------------------------------------------------------------------
	// (nexus "xbar")
	// -----------------------------------------------------------------------
	env.AddFunction("nexus", func(env *zygo.Zlisp, name string, args []zygo.Sexp) (zygo.Sexp, error) {
		pa := parseArgs(args)
		if len(pa.positional) < 1 {
			return zygo.SexpNull, fmt.Errorf("nexus requires a name argument")
		}
		nxName, err := toString(pa.positional[0])
		if err != nil {
			return zygo.SexpNull, fmt.Errorf("nexus: name: %w", err)
		}
		n, err := graph.NewNexus(b.scope, nxName, b.imp, graph.AnyRange, graph.AnyRange,
			bus.MergeSources, bus.MergeSinks)
		return b.define(nxName, n, err)
	})

	// -----------------------------------------------------------------------
	// (splitter "fan")
	// -----------------------------------------------------------------------
	env.AddFunction("splitter", func(env *zygo.Zlisp, name string, args []zygo.Sexp) (zygo.Sexp, error) {
		pa := parseArgs(args)
		if len(pa.positional) < 1 {
			return zygo.SexpNull, fmt.Errorf("splitter requires a name argument")
		}
		spName, err := toString(pa.positional[0])
		if err != nil {
			return zygo.SexpNull, fmt.Errorf("splitter: name: %w", err)
		}
		dFn := func(count int, in []graph.Down) []graph.Down {
			out := make([]graph.Down, count)
			for k := range out {
				out[k] = in[k%len(in)]
			}
			return out
		}
		uFn := func(count int, in []graph.Up) []graph.Up {
			// The first fan group speaks for all replicas.
			out := make([]graph.Up, count)
			for k := range out {
				out[k] = in[k]
			}
			return out
		}
		n, err := graph.NewSplitter(b.scope, spName, b.imp, dFn, uFn)
		return b.define(spName, n, err)
	})

	// -----------------------------------------------------------------------
	// (from sink source)      exactly one binding
	// (star-from sink source) sink-driven width
	// (from-star sink source) source-driven width
	//
	// Note: star-from and from-star are registered with underscores
	// because zygomys does not support hyphens in identifiers;
	// rewriteSource converts the call sites accordingly.
	// -----------------------------------------------------------------------
	bindForm := func(form string, bind func(x, y *graph.Node) error) {
		env.AddFunction(form, func(env *zygo.Zlisp, name string, args []zygo.Sexp) (zygo.Sexp, error) {
			pa := parseArgs(args)
			if len(pa.positional) != 2 {
				return zygo.SexpNull, fmt.Errorf("%s requires a sink and a source", strings.ReplaceAll(form, "_", "-"))
			}
			x, err := b.toNode(pa.positional[0])
			if err != nil {
				return zygo.SexpNull, fmt.Errorf("%s: sink: %w", strings.ReplaceAll(form, "_", "-"), err)
			}
			y, err := b.toNode(pa.positional[1])
			if err != nil {
				return zygo.SexpNull, fmt.Errorf("%s: source: %w", strings.ReplaceAll(form, "_", "-"), err)
			}
			if err := bind(x, y); err != nil {
				return zygo.SexpNull, err
			}
			return zygo.SexpNull, nil
		})
	}
	bindForm("from", func(x, y *graph.Node) error { return x.From(y) })
	bindForm("star_from", func(x, y *graph.Node) error { return x.StarFrom(y) })
	bindForm("from_star", func(x, y *graph.Node) error { return x.FromStar(y) })
}
