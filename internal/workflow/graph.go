package workflow

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cloudwego/eino/compose"
	"github.com/fpang/video-summarizer/internal/metrics"
	"github.com/rs/zerolog/log"
)

// Reserved node names marking where a run begins and ends.
const (
	GraphStart = compose.START
	GraphEnd   = compose.END
)

// NodeFunc mutates the shared state. Returning an error aborts the run.
type NodeFunc[S any] func(ctx context.Context, state S) error

// RouterFunc picks a route key; the key is mapped to a node by the
// conditional edge that owns the router.
type RouterFunc[S any] func(state S) string

type conditional[S any] struct {
	router RouterFunc[S]
	routes map[string]string
}

// Graph is a builder for a directed graph of nodes sharing one state value.
// Builder errors are collected and reported by Compile, which hands the
// validated graph to an eino compose graph for execution.
type Graph[S any] struct {
	order        []string
	nodes        map[string]NodeFunc[S]
	edges        map[string]string
	conditionals map[string]conditional[S]
	errs         []error
}

// NewGraph returns an empty graph builder.
func NewGraph[S any]() *Graph[S] {
	return &Graph[S]{
		nodes:        make(map[string]NodeFunc[S]),
		edges:        make(map[string]string),
		conditionals: make(map[string]conditional[S]),
	}
}

// AddNode registers fn under name.
func (g *Graph[S]) AddNode(name string, fn NodeFunc[S]) *Graph[S] {
	switch {
	case name == "" || name == GraphStart || name == GraphEnd:
		g.errs = append(g.errs, fmt.Errorf("invalid node name %q", name))
	case fn == nil:
		g.errs = append(g.errs, fmt.Errorf("node %q has no function", name))
	default:
		if _, dup := g.nodes[name]; dup {
			g.errs = append(g.errs, fmt.Errorf("duplicate node %q", name))
			return g
		}
		g.nodes[name] = fn
		g.order = append(g.order, name)
	}
	return g
}

// SetEntryPoint makes name the first node of every run.
func (g *Graph[S]) SetEntryPoint(name string) *Graph[S] {
	return g.AddEdge(GraphStart, name)
}

// AddEdge adds an unconditional transition.
func (g *Graph[S]) AddEdge(from, to string) *Graph[S] {
	if g.hasOutgoing(from) {
		g.errs = append(g.errs, fmt.Errorf("node %q already has an outgoing edge", from))
		return g
	}
	g.edges[from] = to
	return g
}

// AddConditionalEdges routes from node from to routes[router(state)].
// from may be GraphStart to branch on entry.
func (g *Graph[S]) AddConditionalEdges(from string, router RouterFunc[S], routes map[string]string) *Graph[S] {
	if router == nil || len(routes) == 0 {
		g.errs = append(g.errs, fmt.Errorf("conditional edge from %q needs a router and routes", from))
		return g
	}
	if g.hasOutgoing(from) {
		g.errs = append(g.errs, fmt.Errorf("node %q already has an outgoing edge", from))
		return g
	}
	g.conditionals[from] = conditional[S]{router: router, routes: routes}
	return g
}

func (g *Graph[S]) hasOutgoing(name string) bool {
	_, static := g.edges[name]
	_, cond := g.conditionals[name]
	return static || cond
}

func (g *Graph[S]) known(name string) bool {
	if name == GraphEnd {
		return true
	}
	_, ok := g.nodes[name]
	return ok
}

func (g *Graph[S]) validate() error {
	errs := append([]error(nil), g.errs...)

	if !g.hasOutgoing(GraphStart) {
		errs = append(errs, errors.New("graph has no entry point"))
	}
	for from, to := range g.edges {
		if from != GraphStart && !g.known(from) {
			errs = append(errs, fmt.Errorf("edge from unknown node %q", from))
		}
		if !g.known(to) {
			errs = append(errs, fmt.Errorf("edge %q -> unknown node %q", from, to))
		}
	}
	for from, c := range g.conditionals {
		if from != GraphStart && !g.known(from) {
			errs = append(errs, fmt.Errorf("conditional edge from unknown node %q", from))
		}
		for key, to := range c.routes {
			if !g.known(to) {
				errs = append(errs, fmt.Errorf("route %q from %q -> unknown node %q", key, from, to))
			}
		}
	}
	for _, name := range g.order {
		if !g.hasOutgoing(name) {
			errs = append(errs, fmt.Errorf("node %q has no outgoing edge", name))
		}
	}
	return errors.Join(errs...)
}

// run carries one invocation's state through the eino graph. err keeps
// the first node or router error unwrapped so callers can match it.
type run[S any] struct {
	state S
	path  []string
	err   error
}

// Compile validates the graph and compiles it. Every node must have an
// outgoing edge, every edge must point to a known node, and a start edge
// must exist.
func (g *Graph[S]) Compile() (*CompiledGraph[S], error) {
	if err := g.validate(); err != nil {
		return nil, fmt.Errorf("compile graph: %w", err)
	}

	eg := compose.NewGraph[*run[S], *run[S]]()
	var errs []error
	for _, name := range g.order {
		errs = append(errs, eg.AddLambdaNode(name, compose.InvokableLambda(step(name, g.nodes[name]))))
	}
	for from, to := range g.edges {
		errs = append(errs, eg.AddEdge(from, to))
	}
	for from, c := range g.conditionals {
		targets := make(map[string]bool, len(c.routes))
		for _, to := range c.routes {
			targets[to] = true
		}
		errs = append(errs, eg.AddBranch(from, compose.NewGraphBranch(route(from, c), targets)))
	}
	if err := errors.Join(errs...); err != nil {
		return nil, fmt.Errorf("compile graph: %w", err)
	}

	r, err := eg.Compile(context.Background(), compose.WithMaxRunSteps(len(g.order)+2))
	if err != nil {
		return nil, fmt.Errorf("compile graph: %w", err)
	}
	return &CompiledGraph[S]{runnable: r}, nil
}

// step wraps a node with cancellation checks, logging and the duration metric.
func step[S any](name string, fn NodeFunc[S]) func(context.Context, *run[S]) (*run[S], error) {
	return func(ctx context.Context, r *run[S]) (*run[S], error) {
		if err := ctx.Err(); err != nil {
			r.err = fmt.Errorf("before node %s: %w", name, err)
			return r, r.err
		}

		r.path = append(r.path, name)
		start := time.Now()
		log.Debug().Str("node", name).Msg("Node started")

		nodeErr := fn(ctx, r.state)

		result := "success"
		if nodeErr != nil {
			result = "error"
		}
		metrics.New(metrics.Namespace).
			Dimension("Node", name).
			Dimension("Result", result).
			Duration("NodeDurationMs", start).
			Flush()

		if nodeErr != nil {
			log.Debug().Err(nodeErr).Str("node", name).Dur("duration", time.Since(start)).Msg("Node failed")
			r.err = fmt.Errorf("%s: %w", name, nodeErr)
			return r, r.err
		}
		log.Debug().Str("node", name).Dur("duration", time.Since(start)).Msg("Node finished")
		return r, nil
	}
}

func route[S any](from string, c conditional[S]) func(context.Context, *run[S]) (string, error) {
	return func(_ context.Context, r *run[S]) (string, error) {
		key := c.router(r.state)
		to, ok := c.routes[key]
		if !ok {
			r.err = fmt.Errorf("no route %q from %s", key, from)
			return "", r.err
		}
		return to, nil
	}
}

// CompiledGraph is an immutable, validated graph. It is safe for concurrent
// runs as long as each run gets its own state.
type CompiledGraph[S any] struct {
	runnable compose.Runnable[*run[S], *run[S]]
}

// Run executes nodes one at a time from the start edge until GraphEnd and
// returns the names of the nodes that ran. The context is checked before
// each node.
func (cg *CompiledGraph[S]) Run(ctx context.Context, state S) ([]string, error) {
	r := &run[S]{state: state}
	if _, err := cg.runnable.Invoke(ctx, r); err != nil {
		if r.err != nil {
			return r.path, r.err
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return r.path, fmt.Errorf("run graph: %w", ctxErr)
		}
		return r.path, fmt.Errorf("graph did not reach %s: %w", GraphEnd, err)
	}
	return r.path, nil
}
