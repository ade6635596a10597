package ssa

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xandfury/radeco/pkg/ir"
	"github.com/xandfury/radeco/pkg/regfile"
)

func newTestPlacer() (*PhiPlacer, *regfile.Profile) {
	profile := regfile.Z80Profile()
	g := NewGraph()
	p := NewPhiPlacer(g, profile, nil)
	entry := g.InsertEntry()
	p.MarkEntryNode(entry)
	exit := g.InsertExit()
	p.MarkExitNode(exit)
	return p, profile
}

func TestStraightLineReadAfterWrite(t *testing.T) {
	p, profile := newTestPlacer()
	block := p.newBlock(ir.NewAddress(0x1000))
	p.SealBlock(block)

	addr := ir.NewAddress(0x1000)
	hl := profile.IndexOf("hl")
	c42 := p.AddConst(&addr, 42, nil)
	p.WriteVariable(addr, hl, c42)

	readAddr := ir.NewAddress(0x1000)
	got := p.ReadVariable(&readAddr, hl)
	assert.Equal(t, c42, got)
}

func TestSubRegisterWriteCarriesShiftedValueNotShiftAmount(t *testing.T) {
	p, profile := newTestPlacer()
	block := p.newBlock(ir.NewAddress(0x2000))
	p.SealBlock(block)

	sub, ok := profile.GetSubregister("h")
	require.True(t, ok)
	require.Equal(t, uint16(8), sub.Shift)

	addr := ir.NewAddress(0x2000)
	vt := ir.ScalarOf(8)
	c := p.AddConst(&addr, 0xFF, &vt)
	p.WriteRegister(&addr, "h", c)

	hl := profile.IndexOf("hl")
	finalAddr := ir.NewAddress(0x2000)
	result, ok := p.currentDefInBlock(hl, finalAddr)
	require.True(t, ok)
	require.Equal(t, NodeOp, p.g.KindOf(result))
	require.Equal(t, ir.OpOr, p.g.OpcodeOf(result).Tag)

	shifted := p.g.OperandsOf(result)[0]
	require.Equal(t, NodeOp, p.g.KindOf(shifted))
	// The shifted operand feeding the final OR must itself be the Lsl
	// result, not a bare copy of the shift-amount constant: the shift
	// amount (8) only ever appears as Lsl's *second* operand.
	assert.Equal(t, ir.OpLsl, p.g.OpcodeOf(shifted).Tag)
	assert.NotEqual(t, ir.OpConst, p.g.OpcodeOf(shifted).Tag)
}

func TestConditionalBlockPhi(t *testing.T) {
	p, profile := newTestPlacer()
	entryBlk := p.newBlock(ir.NewAddress(0x3000))
	thenBlk := p.newBlock(ir.NewAddress(0x3010))
	elseBlk := p.newBlock(ir.NewAddress(0x3020))
	joinBlk := p.newBlock(ir.NewAddress(0x3030))

	p.g.InsertControlEdge(entryBlk, thenBlk, TrueEdge)
	p.g.InsertControlEdge(entryBlk, elseBlk, FalseEdge)
	p.g.InsertControlEdge(thenBlk, joinBlk, UncondEdge)
	p.g.InsertControlEdge(elseBlk, joinBlk, UncondEdge)

	p.SealBlock(entryBlk)
	p.SealBlock(thenBlk)
	p.SealBlock(elseBlk)

	bc := profile.IndexOf("bc")
	thenAddr := ir.NewAddress(0x3010)
	one := p.AddConst(&thenAddr, 1, nil)
	p.WriteVariable(thenAddr, bc, one)

	elseAddr := ir.NewAddress(0x3020)
	two := p.AddConst(&elseAddr, 2, nil)
	p.WriteVariable(elseAddr, bc, two)

	p.SealBlock(joinBlk)

	joinAddr := ir.NewAddress(0x3030)
	result := p.ReadVariable(&joinAddr, bc)
	require.NotEqual(t, InvalidValue, result)
	assert.Equal(t, NodePhi, p.g.KindOf(result))
	assert.ElementsMatch(t, []ValueRef{one, two}, p.g.PhiOperandsOf(result))
}

func TestBackwardEdgeSplitsMidBlockTarget(t *testing.T) {
	p, profile := newTestPlacer()
	hl := profile.IndexOf("hl")

	first := p.newBlock(ir.NewAddress(0x4000))
	p.SealBlock(first)
	a1 := ir.NewAddress(0x4000)
	c1 := p.AddConst(&a1, 7, nil)
	p.WriteVariable(a1, hl, c1)
	// A second value at the same block, one instruction later, so
	// 0x4008 is a mid-block address rather than a registered block start.
	a1b := ir.NewAddress(0x4008)
	c1b := p.AddConst(&a1b, 8, nil)
	p.WriteVariable(a1b, hl, c1b)

	a2 := ir.NewAddress(0x4010)
	loopBody := p.AddBlock(a2, &a1b, edgeKindPtr(UncondEdge))

	a3 := ir.NewAddress(0x4020)
	c2 := p.AddConst(&a3, 9, nil)
	p.WriteVariable(a3, hl, c2)

	// Backward edge re-targets 0x4008, a mid-block address of `first`:
	// this must split `first` into an upper half and a lower half.
	backAt := ir.NewAddress(0x4008)
	split := p.AddBlock(backAt, &a3, edgeKindPtr(UncondEdge))
	assert.NotEqual(t, InvalidAction, split)
	assert.NotEqual(t, first, split, "splitting a mid-block address must yield a new lower block")
	assert.NotEqual(t, InvalidAction, loopBody)
}

func edgeKindPtr(k EdgeKind) *EdgeKind { return &k }

func TestSinglePredecessorChainReadsWithoutPhi(t *testing.T) {
	p, profile := newTestPlacer()
	entryBlk := p.newBlock(ir.NewAddress(0x5000))
	midBlk := p.newBlock(ir.NewAddress(0x5010))
	joinBlk := p.newBlock(ir.NewAddress(0x5020))

	p.g.InsertControlEdge(entryBlk, midBlk, UncondEdge)
	p.g.InsertControlEdge(midBlk, joinBlk, UncondEdge)

	p.SealBlock(entryBlk)
	p.SealBlock(midBlk)

	hl := profile.IndexOf("hl")
	a0 := ir.NewAddress(0x5000)
	val := p.AddConst(&a0, 5, nil)
	p.WriteVariable(a0, hl, val)

	p.SealBlock(joinBlk)

	joinAddr := ir.NewAddress(0x5020)
	result := p.ReadVariable(&joinAddr, hl)
	assert.Equal(t, val, result, "a single-predecessor chain must not leave a real phi behind")
}
