package graph

import (
	"errors"
	"fmt"
	"testing"
)

// testBundle is allocated per edge so aliasing tests can compare object
// identity.
type testBundle struct {
	label string
}

type connRec struct {
	edges, in, out int
	monitored      bool
}

// stringImp negotiates plain string parameters: the edge is "down|up".
type stringImp struct {
	DefaultImp
	log   *[]connRec
	wired *int
}

func (im stringImp) Edge(d Down, u Up) Edge { return fmt.Sprintf("%v|%v", d, u) }

func (im stringImp) Bundle(e Edge) Bundle { return &testBundle{label: e.(string)} }

func (im stringImp) Label(e Edge) string { return e.(string) }

func (im stringImp) Connect(edges []Edge, in, out []Bundle, monitored bool) (Monitor, WireFunc) {
	if im.log != nil {
		*im.log = append(*im.log, connRec{edges: len(edges), in: len(in), out: len(out), monitored: monitored})
	}
	var mon Monitor
	if monitored {
		mon = fmt.Sprintf("monitor(%d)", len(edges))
	}
	wired := im.wired
	return mon, func() error {
		if wired != nil {
			*wired++
		}
		return nil
	}
}

// mixImp tags every parameter with the nodes it passed through.
type mixed struct {
	id   string
	path []string
}

type mixImp struct {
	stringImp
}

func (mixImp) MixDown(d Down, n *Node) Down {
	m := d.(mixed)
	m.path = append(append([]string(nil), m.path...), n.Name())
	return m
}

func (mixImp) MixUp(u Up, n *Node) Up {
	m := u.(mixed)
	m.path = append(append([]string(nil), m.path...), n.Name())
	return m
}

func (mixImp) Edge(d Down, u Up) Edge {
	return fmt.Sprintf("%s|%s", d.(mixed).id, u.(mixed).id)
}

// must fails the test on a constructor error.
func must(t *testing.T, err error) {
	t.Helper()
	if err != nil {
		t.Fatalf("node construction failed: %v", err)
	}
}

// wantKind asserts err is a *Error of the given kind.
func wantKind(t *testing.T, err error, kind ErrKind) *Error {
	t.Helper()
	if err == nil {
		t.Fatalf("expected %s error, got nil", kind)
	}
	var ge *Error
	if !errors.As(err, &ge) {
		t.Fatalf("expected *graph.Error, got %T: %v", err, err)
	}
	if ge.Kind != kind {
		t.Fatalf("error kind = %s, want %s (%v)", ge.Kind, kind, err)
	}
	return ge
}

func downs(ids ...string) []Down {
	out := make([]Down, len(ids))
	for i, id := range ids {
		out[i] = id
	}
	return out
}

func ups(ids ...string) []Up {
	out := make([]Up, len(ids))
	for i, id := range ids {
		out[i] = id
	}
	return out
}
