// Package ssa implements the SSA graph (§4.2), the phi-placement
// algorithm (§4.3) and the driver that feeds it from an RTL token
// stream (§4.4).
package ssa

import (
	"github.com/xandfury/radeco/pkg/ir"
)

// ValueRef is an opaque handle into the value arena.
type ValueRef int32

// ActionRef is an opaque handle into the action (block) arena.
type ActionRef int32

// EdgeRef is an opaque handle into the control-edge arena.
type EdgeRef int32

// Sentinels: invalid refs must never appear as edge endpoints; every
// mutator that would otherwise wire one in suppresses the edge instead
// (§7 structural-failure recovery).
const (
	InvalidValue  ValueRef  = -1
	InvalidAction ActionRef = -1
	InvalidEdge   EdgeRef   = -1
)

// EdgeKind is the control-edge discriminant (§6): 0=false, 1=true,
// 2=unconditional.
type EdgeKind int

const (
	FalseEdge  EdgeKind = 0
	TrueEdge   EdgeKind = 1
	UncondEdge EdgeKind = 2
)

// NodeKind discriminates value/action node shapes (§3).
type NodeKind int

const (
	NodeOp NodeKind = iota
	NodePhi
	NodeConst
	NodeUndefined
	NodeComment
	NodeAction
	NodeEntry
	NodeExit
)

type valueNode struct {
	kind        NodeKind
	opcode      ir.Opcode
	info        ir.ValueInfo
	comment     string
	operands    []ValueRef // ordered; InvalidValue marks a hole
	phiOperands []ValueRef // unordered, append-only
	block       ActionRef
	registers   []string
	removed     bool
}

type controlEdge struct {
	kind    EdgeKind
	src     ActionRef
	dst     ActionRef
	removed bool
}

type actionNode struct {
	kind      NodeKind // NodeAction, NodeEntry or NodeExit
	start     ir.MAddress
	size      *uint64
	selector  ValueRef
	regState  ValueRef
	outEdges  []EdgeRef
	inEdges   []EdgeRef
	removed   bool
}

// Graph is the arena-backed SSA multigraph. Cyclic references (phis
// that reach back through themselves via predecessor values) are
// expressed as integer handles into the arenas rather than as owned
// pointers (§9).
type Graph struct {
	values  []valueNode
	actions []actionNode
	edges   []controlEdge

	entry ActionRef
	exit  ActionRef
}

// NewGraph allocates an empty graph with no entry/exit block yet.
func NewGraph() *Graph {
	return &Graph{entry: InvalidAction, exit: InvalidAction}
}

func (g *Graph) validValue(v ValueRef) bool {
	return v >= 0 && int(v) < len(g.values) && !g.values[v].removed
}

func (g *Graph) validAction(a ActionRef) bool {
	return a >= 0 && int(a) < len(g.actions) && !g.actions[a].removed
}

// --- value insertion -------------------------------------------------

func (g *Graph) newValue(kind NodeKind, info ir.ValueInfo) ValueRef {
	g.values = append(g.values, valueNode{kind: kind, info: info, block: InvalidAction})
	return ValueRef(len(g.values) - 1)
}

// InsertOp inserts an Op(opcode) value with the given operands already
// wired in index order.
func (g *Graph) InsertOp(op ir.Opcode, info ir.ValueInfo, operands ...ValueRef) ValueRef {
	ref := g.newValue(NodeOp, info)
	g.values[ref].opcode = op
	g.values[ref].operands = append([]ValueRef(nil), operands...)
	return ref
}

// InsertPhi inserts an operandless phi value (operands are added later
// via PhiUse).
func (g *Graph) InsertPhi(info ir.ValueInfo) ValueRef {
	return g.newValue(NodePhi, info)
}

// InsertConst inserts a raw constant value.
func (g *Graph) InsertConst(value uint64, info ir.ValueInfo) ValueRef {
	ref := g.newValue(NodeConst, info)
	g.values[ref].opcode = ir.Opcode{Tag: ir.OpConst, Value: value}
	return ref
}

// InsertUndefined inserts an Undefined value of the given (possibly
// unknown) type.
func (g *Graph) InsertUndefined(info ir.ValueInfo) ValueRef {
	return g.newValue(NodeUndefined, info)
}

// InsertComment inserts a Comment(string) value, used for call-target
// labels and clobber markers.
func (g *Graph) InsertComment(text string, info ir.ValueInfo) ValueRef {
	ref := g.newValue(NodeComment, info)
	g.values[ref].comment = text
	return ref
}

// --- action (block) insertion -----------------------------------------

// InsertAction creates a new basic block starting at addr.
func (g *Graph) InsertAction(start ir.MAddress) ActionRef {
	g.actions = append(g.actions, actionNode{kind: NodeAction, start: start, selector: InvalidValue, regState: InvalidValue})
	return ActionRef(len(g.actions) - 1)
}

// InsertEntry creates the distinguished entry block, if not already
// present.
func (g *Graph) InsertEntry() ActionRef {
	if g.entry != InvalidAction {
		return g.entry
	}
	g.actions = append(g.actions, actionNode{kind: NodeEntry, selector: InvalidValue, regState: InvalidValue})
	g.entry = ActionRef(len(g.actions) - 1)
	return g.entry
}

// InsertExit creates the distinguished exit block, if not already
// present.
func (g *Graph) InsertExit() ActionRef {
	if g.exit != InvalidAction {
		return g.exit
	}
	g.actions = append(g.actions, actionNode{kind: NodeExit, selector: InvalidValue, regState: InvalidValue})
	g.exit = ActionRef(len(g.actions) - 1)
	return g.exit
}

// Entry returns the entry block, or InvalidAction if none exists yet.
func (g *Graph) Entry() ActionRef { return g.entry }

// Exit returns the exit block, or InvalidAction if none exists yet.
func (g *Graph) Exit() ActionRef { return g.exit }

// --- operand/phi wiring ------------------------------------------------

// OpUse wires child as the operand at index of parent, replacing
// whatever was there. Edges touching an invalid ref are suppressed.
func (g *Graph) OpUse(parent ValueRef, index int, child ValueRef) {
	if !g.validValue(parent) {
		return
	}
	ops := g.values[parent].operands
	for len(ops) <= index {
		ops = append(ops, InvalidValue)
	}
	ops[index] = child
	g.values[parent].operands = ops
}

// PhiUse appends child as an (unordered) operand of the phi at parent.
func (g *Graph) PhiUse(parent ValueRef, child ValueRef) {
	if !g.validValue(parent) {
		return
	}
	g.values[parent].phiOperands = append(g.values[parent].phiOperands, child)
}

// SetBlock records the containing block of a value (the containment
// edge of §4.2).
func (g *Graph) SetBlock(v ValueRef, block ActionRef) {
	if !g.validValue(v) {
		return
	}
	g.values[v].block = block
}

// BlockOf returns the containing block of a value.
func (g *Graph) BlockOf(v ValueRef) ActionRef {
	if !g.validValue(v) {
		return InvalidAction
	}
	return g.values[v].block
}

// SetSelector records the condition value of a block's terminal
// conditional branch.
func (g *Graph) SetSelector(block ActionRef, selector ValueRef) {
	if !g.validAction(block) {
		return
	}
	g.actions[block].selector = selector
}

// Selector returns the block's selector value, or InvalidValue.
func (g *Graph) Selector(block ActionRef) ValueRef {
	if !g.validAction(block) {
		return InvalidValue
	}
	return g.actions[block].selector
}

// SetRegState attaches the register-state pseudo-operation to a block.
func (g *Graph) SetRegState(block ActionRef, regState ValueRef) {
	if !g.validAction(block) {
		return
	}
	g.actions[block].regState = regState
}

// RegState returns the block's register-state pseudo-operation.
func (g *Graph) RegState(block ActionRef) ValueRef {
	if !g.validAction(block) {
		return InvalidValue
	}
	return g.actions[block].regState
}

// SetRegister attaches a register-name tag to a value (used so reads
// can propagate the originating register's metadata, §4.3.5).
func (g *Graph) SetRegister(v ValueRef, name string) {
	if !g.validValue(v) {
		return
	}
	g.values[v].registers = append(g.values[v].registers, name)
}

// Registers returns the register names attached to a value.
func (g *Graph) Registers(v ValueRef) []string {
	if !g.validValue(v) {
		return nil
	}
	return g.values[v].registers
}

// --- control edges -----------------------------------------------------

// InsertControlEdge adds a typed control edge between two blocks.
func (g *Graph) InsertControlEdge(src, dst ActionRef, kind EdgeKind) EdgeRef {
	if !g.validAction(src) || !g.validAction(dst) {
		return InvalidEdge
	}
	g.edges = append(g.edges, controlEdge{kind: kind, src: src, dst: dst})
	ref := EdgeRef(len(g.edges) - 1)
	g.actions[src].outEdges = append(g.actions[src].outEdges, ref)
	g.actions[dst].inEdges = append(g.actions[dst].inEdges, ref)
	return ref
}

// RemoveControlEdge tombstones a control edge.
func (g *Graph) RemoveControlEdge(e EdgeRef) {
	if e < 0 || int(e) >= len(g.edges) {
		return
	}
	g.edges[e].removed = true
}

func (g *Graph) liveOutEdges(a ActionRef) []EdgeRef {
	if !g.validAction(a) {
		return nil
	}
	out := make([]EdgeRef, 0, len(g.actions[a].outEdges))
	for _, e := range g.actions[a].outEdges {
		if !g.edges[e].removed {
			out = append(out, e)
		}
	}
	return out
}

func (g *Graph) liveInEdges(a ActionRef) []EdgeRef {
	if !g.validAction(a) {
		return nil
	}
	in := make([]EdgeRef, 0, len(g.actions[a].inEdges))
	for _, e := range g.actions[a].inEdges {
		if !g.edges[e].removed {
			in = append(in, e)
		}
	}
	return in
}

// OutgoingEdges returns the live out-edges of a block.
func (g *Graph) OutgoingEdges(a ActionRef) []EdgeRef { return g.liveOutEdges(a) }

// PredsOf returns the predecessor blocks of a, one entry per live
// in-edge (a block joined to a by two edges appears twice).
func (g *Graph) PredsOf(a ActionRef) []ActionRef {
	var out []ActionRef
	for _, e := range g.liveInEdges(a) {
		out = append(out, g.edges[e].src)
	}
	return out
}

// SuccsOf returns the successor blocks of a, one entry per live
// out-edge (a block joined from a by two edges appears twice).
func (g *Graph) SuccsOf(a ActionRef) []ActionRef {
	var out []ActionRef
	for _, e := range g.liveOutEdges(a) {
		out = append(out, g.edges[e].dst)
	}
	return out
}

// ConditionalEdges returns the (false, true) edge pair of a, if both
// are present.
func (g *Graph) ConditionalEdges(a ActionRef) (falseEdge, trueEdge EdgeRef, ok bool) {
	falseEdge, trueEdge = InvalidEdge, InvalidEdge
	for _, e := range g.liveOutEdges(a) {
		switch g.edges[e].kind {
		case FalseEdge:
			falseEdge = e
		case TrueEdge:
			trueEdge = e
		}
	}
	return falseEdge, trueEdge, falseEdge != InvalidEdge && trueEdge != InvalidEdge
}

// UnconditionalEdge returns the single unconditional out-edge of a, if
// present.
func (g *Graph) UnconditionalEdge(a ActionRef) (EdgeRef, bool) {
	for _, e := range g.liveOutEdges(a) {
		if g.edges[e].kind == UncondEdge {
			return e, true
		}
	}
	return InvalidEdge, false
}

// EdgeInfo returns the endpoints of an edge.
func (g *Graph) EdgeInfo(e EdgeRef) (src, dst ActionRef) {
	if e < 0 || int(e) >= len(g.edges) {
		return InvalidAction, InvalidAction
	}
	return g.edges[e].src, g.edges[e].dst
}

// EdgeKindOf returns an edge's kind.
func (g *Graph) EdgeKindOf(e EdgeRef) EdgeKind {
	if e < 0 || int(e) >= len(g.edges) {
		return UncondEdge
	}
	return g.edges[e].kind
}

// StartingAddress returns a block's starting address.
func (g *Graph) StartingAddress(a ActionRef) ir.MAddress {
	if !g.validAction(a) {
		return ir.MAddress{}
	}
	return g.actions[a].start
}

// SetSize records a block's byte size.
func (g *Graph) SetSize(a ActionRef, size uint64) {
	if !g.validAction(a) {
		return
	}
	g.actions[a].size = &size
}

// Size returns a block's recorded byte size, if any (§9: only set when
// the next instruction lands in a different block).
func (g *Graph) Size(a ActionRef) (uint64, bool) {
	if !g.validAction(a) || g.actions[a].size == nil {
		return 0, false
	}
	return *g.actions[a].size, true
}

// --- value queries -------------------------------------------------------

// OperandsOf returns a value's operands in index order, holes included
// as InvalidValue.
func (g *Graph) OperandsOf(v ValueRef) []ValueRef {
	if !g.validValue(v) {
		return nil
	}
	return g.values[v].operands
}

// SparseOperandsOf returns (index, child) pairs skipping holes.
func (g *Graph) SparseOperandsOf(v ValueRef) []struct {
	Index int
	Value ValueRef
} {
	var out []struct {
		Index int
		Value ValueRef
	}
	for i, child := range g.OperandsOf(v) {
		if child != InvalidValue {
			out = append(out, struct {
				Index int
				Value ValueRef
			}{i, child})
		}
	}
	return out
}

// PhiOperandsOf returns a phi's unordered operand list.
func (g *Graph) PhiOperandsOf(v ValueRef) []ValueRef {
	if !g.validValue(v) {
		return nil
	}
	return g.values[v].phiOperands
}

// KindOf returns a value's node kind.
func (g *Graph) KindOf(v ValueRef) NodeKind {
	if !g.validValue(v) {
		return NodeUndefined
	}
	return g.values[v].kind
}

// OpcodeOf returns a value's opcode (meaningful only for NodeOp and
// NodeConst values).
func (g *Graph) OpcodeOf(v ValueRef) ir.Opcode {
	if !g.validValue(v) {
		return ir.Opcode{}
	}
	return g.values[v].opcode
}

// ConstantOf returns a NodeConst value's literal.
func (g *Graph) ConstantOf(v ValueRef) (uint64, bool) {
	if !g.validValue(v) || g.values[v].kind != NodeConst {
		return 0, false
	}
	return g.values[v].opcode.Value, true
}

// InfoOf returns a value's ValueInfo.
func (g *Graph) InfoOf(v ValueRef) ir.ValueInfo {
	if !g.validValue(v) {
		return ir.UnknownInfo()
	}
	return g.values[v].info
}

// CommentOf returns a NodeComment value's text.
func (g *Graph) CommentOf(v ValueRef) string {
	if !g.validValue(v) {
		return ""
	}
	return g.values[v].comment
}

// IsRemoved reports whether a value handle has been retired (e.g. by
// ReplaceValue or ITE removal during Finish).
func (g *Graph) IsRemoved(v ValueRef) bool {
	return v >= 0 && int(v) < len(g.values) && g.values[v].removed
}

// --- replace / remove ----------------------------------------------------

// ReplaceValue rewrites every use of old to new across operand edges,
// phi edges, selectors and register-state operands, then retires old.
// This is the sole primitive responsible for both rewiring and removal
// (§9 open question: no separate op_unuse step is required first).
func (g *Graph) ReplaceValue(old, new ValueRef) {
	if old == new || old < 0 || int(old) >= len(g.values) {
		return
	}
	for i := range g.values {
		for j, op := range g.values[i].operands {
			if op == old {
				g.values[i].operands[j] = new
			}
		}
		for j, op := range g.values[i].phiOperands {
			if op == old {
				g.values[i].phiOperands[j] = new
			}
		}
	}
	for i := range g.actions {
		if g.actions[i].selector == old {
			g.actions[i].selector = new
		}
		if g.actions[i].regState == old {
			g.actions[i].regState = new
		}
	}
	g.values[old].removed = true
	g.values[old].operands = nil
	g.values[old].phiOperands = nil
}

// RemoveValue retires a value without rewiring uses (used for ITE
// removal during Finish, where the control edges already represent the
// branch and the ITE's uses, if any, are expected to be empty).
func (g *Graph) RemoveValue(v ValueRef) {
	if !g.validValue(v) {
		return
	}
	g.values[v].removed = true
}

// AllActions returns every non-removed action handle, in allocation
// order.
func (g *Graph) AllActions() []ActionRef {
	var out []ActionRef
	for i := range g.actions {
		if !g.actions[i].removed {
			out = append(out, ActionRef(i))
		}
	}
	return out
}

// AllValues returns every non-removed value handle, in allocation
// order.
func (g *Graph) AllValues() []ValueRef {
	var out []ValueRef
	for i := range g.values {
		if !g.values[i].removed {
			out = append(out, ValueRef(i))
		}
	}
	return out
}

// UsesOf returns every non-removed value that references v as an
// operand or phi-operand (a node appears once per distinct referencing
// value, even if it references v more than once).
func (g *Graph) UsesOf(v ValueRef) []ValueRef {
	var out []ValueRef
	for i := range g.values {
		if g.values[i].removed {
			continue
		}
		ref := ValueRef(i)
		found := false
		for _, op := range g.values[i].operands {
			if op == v {
				found = true
				break
			}
		}
		if !found {
			for _, op := range g.values[i].phiOperands {
				if op == v {
					found = true
					break
				}
			}
		}
		if found {
			out = append(out, ref)
		}
	}
	return out
}
