package ssa

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xandfury/radeco/pkg/ir"
	"github.com/xandfury/radeco/pkg/regfile"
)

func TestConstructStraightLineWrite(t *testing.T) {
	profile := regfile.Z80Profile()
	c := NewConstructor(profile, false, false, nil)

	instrs := []Instruction{
		{Address: 0x1000, Size: 1, RTL: "5,hl,=", Opcode: "mov", Optype: "mov"},
	}
	require.NoError(t, c.Process(instrs))

	addr := ir.NewAddress(0x1000)
	hl := profile.IndexOf("hl")
	got := c.Placer().ReadVariable(&addr, hl)
	require.NotEqual(t, InvalidValue, got)
}

func TestConstructConditionalEmitsITEAndTwoEdges(t *testing.T) {
	profile := regfile.Z80Profile()
	c := NewConstructor(profile, false, false, nil)

	// Open an if on the first instruction; the nesting closes once the
	// following instruction is reached, matching §8's literal scenario.
	instrs := []Instruction{
		{Address: 0x2000, Size: 1, RTL: "a,?{,0x80,hl,=", Opcode: "cjmp", Optype: "cjmp"},
		{Address: 0x2001, Size: 1, RTL: "0", Opcode: "nop", Optype: "nop"},
	}
	require.NoError(t, c.Process(instrs))

	block := c.Placer().blockOf(ir.NewAddress(0x2000))
	require.NotEqual(t, InvalidAction, block)
	_, _, ok := c.Graph().ConditionalEdges(block)
	assert.True(t, ok, "conditional block must end with a false/true edge pair")
}

func TestConstructCallWithCCWritesReturnRegister(t *testing.T) {
	profile := regfile.Z80Profile()
	c := NewConstructor(profile, true, false, nil)

	instrs := []Instruction{
		{Address: 0x3000, Size: 3, RTL: "", Opcode: "sub.target", Optype: "call"},
	}
	require.NoError(t, c.Process(instrs))

	addr := ir.NewAddress(0x3000)
	sn, ok := profile.ReturnReg()
	require.True(t, ok)
	val := c.Placer().ReadRegister(&addr, sn)
	require.NotEqual(t, InvalidValue, val)
	assert.Equal(t, NodeOp, c.Graph().KindOf(val))
}

func TestConstructReturnAddsExitEdge(t *testing.T) {
	profile := regfile.Z80Profile()
	c := NewConstructor(profile, false, false, nil)

	instrs := []Instruction{
		{Address: 0x4000, Size: 1, RTL: "", Opcode: "ret", Optype: "ret"},
	}
	require.NoError(t, c.Process(instrs))

	block := c.Placer().blockOf(ir.NewAddress(0x4000))
	preds := c.Graph().PredsOf(c.Graph().Exit())
	assert.Contains(t, preds, block)
}

// TestConstructReturnFollowedByMoreInstructionsGetsNoFallthroughEdge
// guards against a block gaining two unconditional out-edges: one to
// the exit block from the ret itself, and a second, spurious one to
// whatever instruction happens to follow in the raw instruction list
// even though control never falls through there.
func TestConstructReturnFollowedByMoreInstructionsGetsNoFallthroughEdge(t *testing.T) {
	profile := regfile.Z80Profile()
	c := NewConstructor(profile, false, false, nil)

	instrs := []Instruction{
		{Address: 0x5000, Size: 1, RTL: "", Opcode: "ret", Optype: "ret"},
		{Address: 0x5001, Size: 1, RTL: "3,bc,=", Opcode: "mov", Optype: "mov"},
	}
	require.NoError(t, c.Process(instrs))

	retBlock := c.Placer().blockOf(ir.NewAddress(0x5000))
	succs := c.Graph().SuccsOf(retBlock)
	assert.Len(t, succs, 1, "a ret block must have exactly one out-edge, to the exit block")
	assert.Equal(t, c.Graph().Exit(), succs[0])
}

// TestConstructJumpFollowedByMoreInstructionsGetsNoFallthroughEdge
// mirrors the ret case for an unconditional jump: the jump's own
// target edge must be the block's only out-edge.
func TestConstructJumpFollowedByMoreInstructionsGetsNoFallthroughEdge(t *testing.T) {
	profile := regfile.Z80Profile()
	c := NewConstructor(profile, false, false, nil)

	instrs := []Instruction{
		{Address: 0x6000, Size: 3, RTL: "0x7000,pc,=", Opcode: "jmp", Optype: "jmp"},
		{Address: 0x6003, Size: 1, RTL: "3,bc,=", Opcode: "mov", Optype: "mov"},
	}
	require.NoError(t, c.Process(instrs))

	jumpBlock := c.Placer().blockOf(ir.NewAddress(0x6000))
	succs := c.Graph().SuccsOf(jumpBlock)
	require.Len(t, succs, 1, "a jump block must have exactly one out-edge, to its target")
	target := c.Placer().blockOf(ir.NewAddress(0x7000))
	assert.Equal(t, target, succs[0])
}

func TestConstructReplacePCMaterializesConstant(t *testing.T) {
	profile := regfile.Z80Profile()
	c := NewConstructor(profile, false, true, nil)

	instrs := []Instruction{
		{Address: 0x8000, Size: 1, RTL: "pc,bc,=", Opcode: "mov", Optype: "mov"},
	}
	require.NoError(t, c.Process(instrs))

	addr := ir.NewAddress(0x8000)
	bc := profile.IndexOf("bc")
	val := c.Placer().ReadVariable(&addr, bc)
	require.NotEqual(t, InvalidValue, val)

	// bc is 16 bits and the materialized PC value is canonical-width
	// (64 bits), so WriteRegister wraps it in a Narrow op; the constant
	// itself lives one operand down.
	require.Equal(t, NodeOp, c.Graph().KindOf(val))
	operands := c.Graph().OperandsOf(val)
	require.Len(t, operands, 1)
	assert.Equal(t, NodeConst, c.Graph().KindOf(operands[0]))
	got, ok := c.Graph().ConstantOf(operands[0])
	require.True(t, ok)
	assert.Equal(t, uint64(0x8001), got)
}
