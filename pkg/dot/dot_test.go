package dot

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xandfury/radeco/pkg/regfile"
	"github.com/xandfury/radeco/pkg/ssa"
)

func TestEmitWrapsInDigraph(t *testing.T) {
	profile := regfile.Z80Profile()
	c := ssa.NewConstructor(profile, false, false, nil)

	instrs := []ssa.Instruction{
		{Address: 0x1000, Size: 1, RTL: "5,hl,=", Opcode: "mov", Optype: "mov"},
	}
	require.NoError(t, c.Process(instrs))

	out := Emit(c.Graph())
	assert.True(t, strings.HasPrefix(out, "digraph cfg {\n"))
	assert.True(t, strings.HasSuffix(out, "}\n"))
	assert.Contains(t, out, "block_")
}

func TestEmitIsDeterministicAcrossCalls(t *testing.T) {
	profile := regfile.Z80Profile()
	c := ssa.NewConstructor(profile, false, false, nil)

	instrs := []ssa.Instruction{
		{Address: 0x2000, Size: 1, RTL: "a,?{,0x80,hl,=", Opcode: "cjmp", Optype: "cjmp"},
		{Address: 0x2001, Size: 1, RTL: "0", Opcode: "nop", Optype: "nop"},
	}
	require.NoError(t, c.Process(instrs))

	first := Emit(c.Graph())
	second := Emit(c.Graph())
	assert.Equal(t, first, second)
	assert.Contains(t, first, "dir=forward")
}

func TestEmitIncludesEntryAndExitNodes(t *testing.T) {
	profile := regfile.Z80Profile()
	c := ssa.NewConstructor(profile, false, false, nil)

	instrs := []ssa.Instruction{
		{Address: 0x3000, Size: 1, RTL: "", Opcode: "ret", Optype: "ret"},
	}
	require.NoError(t, c.Process(instrs))

	out := Emit(c.Graph())
	assert.Contains(t, out, "entry")
	assert.Contains(t, out, "exit")
}
