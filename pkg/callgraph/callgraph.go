// Package callgraph records call-site argument maps across functions
// (§1: "does not perform interprocedural analysis beyond recording
// call-site argument maps"). It builds a plain node/edge table from a
// module's function list and fixes up each call edge with the caller
// operands and the eventual callee binding — no fixpoint solve, no
// type propagation across the edge.
package callgraph

import (
	"github.com/xandfury/radeco/pkg/ir"
	"github.com/xandfury/radeco/pkg/ssa"
)

// FuncNode identifies one function by its entry offset.
type FuncNode uint64

// CallContext is the bookkeeping kept for one call site: which
// caller-side values fed the call, the call's own result value (kept
// in Result, not in Args), and whatever callee-side argument value each
// of Args has been resolved to so far. An unresolved mapping is
// recorded as InvalidValue.
type CallContext struct {
	Site     ir.MAddress
	SiteNode ssa.ValueRef
	Args     []ssa.ValueRef // caller-side operands to the call, in order
	Result   ssa.ValueRef   // caller-side value bound to the call's own result
	Resolved []ssa.ValueRef // callee-side bindings, parallel to Args; InvalidValue if unresolved
}

// Edge is one caller->callee call relationship.
type Edge struct {
	From, To FuncNode
	Ctx      CallContext
}

// Graph is the call graph: one node per known function, one edge per
// observed call site (CALL only — other call-ref kinds, e.g. DATA
// references, are not edges here).
type Graph struct {
	nodes map[FuncNode]bool
	edges []Edge
}

// New returns an empty call graph.
func New() *Graph {
	return &Graph{nodes: make(map[FuncNode]bool)}
}

// AddNode registers a function as a call-graph node, idempotently.
func (g *Graph) AddNode(fn FuncNode) { g.nodes[fn] = true }

// AddEdge records a call-site relationship between two known nodes.
// Both ends must already be registered via AddNode; an edge to an
// unknown node is silently dropped, matching the "no fixpoint,
// best-effort" policy of §7.
func (g *Graph) AddEdge(from, to FuncNode, ctx CallContext) {
	if !g.nodes[from] || !g.nodes[to] {
		return
	}
	g.edges = append(g.edges, Edge{From: from, To: to, Ctx: ctx})
}

// Nodes returns every registered function node.
func (g *Graph) Nodes() []FuncNode {
	out := make([]FuncNode, 0, len(g.nodes))
	for n := range g.nodes {
		out = append(out, n)
	}
	return out
}

// EdgesFrom returns every outgoing call edge of fn.
func (g *Graph) EdgesFrom(fn FuncNode) []Edge {
	var out []Edge
	for _, e := range g.edges {
		if e.From == fn {
			out = append(out, e)
		}
	}
	return out
}

// CallRef is one outgoing call reference as reported by a module
// source (mirrors FunctionInfo.CallRefs): a call instruction at Source
// targeting Target, with the usual "CALL"/other distinction preserved
// in Kind so non-call refs (data, jump tables) can be filtered.
type CallRef struct {
	Source uint64
	Target uint64
	Kind   string
}

// Load builds a call graph from a module's function offsets and their
// raw call references, then fixes up every edge's CallContext by
// scanning each caller's already-built SSA graph for OpCall sites.
// funcGraphs maps a function's entry offset to its constructed SSA
// graph; a function with no entry in funcGraphs is registered as a
// node but contributes no callsite detail.
func Load(offsets []uint64, refs map[uint64][]CallRef, funcGraphs map[uint64]*ssa.Graph) *Graph {
	cg := New()
	for _, off := range offsets {
		cg.AddNode(FuncNode(off))
	}

	for _, off := range offsets {
		for _, ref := range refs[off] {
			if ref.Kind != "" && ref.Kind != "CALL" {
				continue
			}
			ctx := CallContext{Site: ir.NewAddress(ref.Source), SiteNode: ssa.InvalidValue}
			cg.AddEdge(FuncNode(off), FuncNode(ref.Target), ctx)
		}
	}

	for _, off := range offsets {
		g, ok := funcGraphs[off]
		if !ok {
			continue
		}
		csites := AnalyzeCallsiteInitial(g)
		for i, e := range cg.edges {
			if e.From != FuncNode(off) {
				continue
			}
			if fresh, ok := csites[e.Ctx.Site]; ok {
				cg.edges[i].Ctx = fresh
			}
		}
	}
	return cg
}

// AnalyzeCallsiteInitial walks every OpCall value in g and builds its
// initial CallContext: Args is the call node's operand list in index
// order (call-target comment, register arguments, memory), Result is
// the call node itself, and every Args slot is resolved to
// InvalidValue until a later pass binds it to a callee argument. The
// map is keyed by the starting address of the block holding the call.
func AnalyzeCallsiteInitial(g *ssa.Graph) map[ir.MAddress]CallContext {
	out := make(map[ir.MAddress]CallContext)
	for _, v := range g.AllValues() {
		if g.IsRemoved(v) {
			continue
		}
		if g.KindOf(v) != ssa.NodeOp {
			continue
		}
		if g.OpcodeOf(v).Tag != ir.OpCall {
			continue
		}
		block := g.BlockOf(v)
		addr := g.StartingAddress(block)
		args := append([]ssa.ValueRef(nil), g.OperandsOf(v)...)
		resolved := make([]ssa.ValueRef, len(args))
		for i := range resolved {
			resolved[i] = ssa.InvalidValue
		}
		out[addr] = CallContext{
			Site:     addr,
			SiteNode: v,
			Args:     args,
			Result:   v,
			Resolved: resolved,
		}
	}
	return out
}

// BindCallee resolves the arguments of a call context positionally
// against a callee's ordered binding list: calleeBindings[i] becomes
// the binding of Args[i]. Extra callee bindings beyond len(Args) are
// ignored; a shorter callee binding list leaves the trailing slots
// unresolved.
func (c *CallContext) BindCallee(calleeBindings []ssa.ValueRef) {
	for i := range c.Args {
		if i >= len(calleeBindings) {
			break
		}
		c.Resolved[i] = calleeBindings[i]
	}
}
