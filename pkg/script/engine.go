// Package script provides the Lisp front-end for weft. It wraps zygomys
// in a sandboxed environment, evaluates a topology description into a
// node graph, and elaborates it.
package script

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	zygo "github.com/glycerine/zygomys/zygo"

	"github.com/chazu/weft/pkg/bus"
	"github.com/chazu/weft/pkg/graph"
)

// EvalTimeout is the hard limit for a single evaluation.
const EvalTimeout = 5 * time.Second

// EvalError represents a non-fatal error encountered during evaluation,
// such as a parse error, a runtime error in user code, or an
// elaboration failure.
type EvalError struct {
	Line    int
	Col     int
	Message string
}

func (e EvalError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("line %d: %s", e.Line, e.Message)
	}
	return e.Message
}

// Result bundles the output of a successful evaluation: the elaborated
// scope and the netlist its wiring actions produced.
type Result struct {
	Scope   *graph.Scope
	Netlist *bus.Netlist
}

// Engine wraps the zygomys interpreter for weft evaluation.
// It is safe for concurrent use; each call to Evaluate creates a fresh
// sandboxed environment for determinism. The generation counter lets a
// newer Evaluate call invalidate an older one that is still running:
// stale results are discarded rather than handed to the caller.
type Engine struct {
	gen atomic.Uint64
}

// NewEngine creates a new Engine instance.
func NewEngine() *Engine {
	return &Engine{}
}

// outcome carries one evaluation's results out of its goroutine.
type outcome struct {
	res  *Result
	errs []EvalError
	err  error
}

// Evaluate takes Lisp source code, builds the node graph it describes
// and elaborates it. Evaluation runs in its own goroutine so a
// runaway script cannot wedge the caller: after EvalTimeout the call
// returns a fatal error and the result, if it ever arrives, is left
// unread in the goroutine's buffered channel.
//
// Return semantics:
//   - On success: returns a result + nil errors + nil error
//   - On parse/eval/elaboration failure: returns nil + eval errors + nil error
//   - On fatal failure (timeout, panic): returns nil + nil + error
func (e *Engine) Evaluate(source string) (*Result, []EvalError, error) {
	gen := e.gen.Add(1)

	done := make(chan outcome, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- outcome{err: fmt.Errorf("panic during evaluation: %v", r)}
			}
		}()
		res, errs, err := e.evaluate(source)
		done <- outcome{res: res, errs: errs, err: err}
	}()

	select {
	case o := <-done:
		if e.gen.Load() != gen {
			// A newer evaluation started while this one ran.
			return nil, nil, fmt.Errorf("evaluation superseded by newer request")
		}
		return o.res, o.errs, o.err
	case <-time.After(EvalTimeout):
		return nil, nil, fmt.Errorf("evaluation timed out after %s", EvalTimeout)
	}
}

// evaluate performs the actual zygomys evaluation in a fresh sandbox.
func (e *Engine) evaluate(source string) (*Result, []EvalError, error) {
	scope := graph.NewScope("top")
	netlist := bus.NewNetlist()
	b := &builder{
		scope: scope,
		imp:   bus.New(netlist),
		nodes: make(map[string]*graph.Node),
	}

	// Empty source is a valid program that produces an empty topology.
	if strings.TrimSpace(source) != "" {
		// Sandbox mode prevents user code from accessing the filesystem
		// or syscalls.
		env := zygo.NewZlispSandbox()
		defer env.Stop()

		registerBuiltins(env, b)

		err := env.LoadString(rewriteSource(source))
		if err != nil {
			return nil, parseZygomysError(err), nil
		}
		if _, err = env.Run(); err != nil {
			return nil, parseZygomysError(err), nil
		}
	}

	if err := scope.Elaborate(); err != nil {
		return nil, []EvalError{{Message: err.Error()}}, nil
	}
	return &Result{Scope: scope, Netlist: netlist}, nil, nil
}

// linePattern matches zygomys error messages that include "Error on line N: ..."
var linePattern = regexp.MustCompile(`(?i)(?:error )?on line (\d+):\s*(.*)`)

// linePatternShort matches simpler "line N: ..." patterns.
var linePatternShort = regexp.MustCompile(`(?i)^line (\d+):\s*(.*)`)

// parseZygomysError converts a zygomys error into one or more EvalError
// values. It attempts to extract line number information from the error
// message.
func parseZygomysError(err error) []EvalError {
	msg := err.Error()

	// zygomys formats parse errors as "Error on line N: <details>\n"
	if m := linePattern.FindStringSubmatch(msg); m != nil {
		line, _ := strconv.Atoi(m[1])
		detail := strings.TrimSpace(m[2])
		return []EvalError{{Line: line, Message: detail}}
	}
	if m := linePatternShort.FindStringSubmatch(msg); m != nil {
		line, _ := strconv.Atoi(m[1])
		detail := strings.TrimSpace(m[2])
		return []EvalError{{Line: line, Message: detail}}
	}

	// Fallback: no line info available.
	return []EvalError{{Message: strings.TrimSpace(msg)}}
}
