package loader

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xandfury/radeco/pkg/regfile"
	"github.com/xandfury/radeco/pkg/ssa"
)

func TestPoolBuildsEveryFunctionConcurrently(t *testing.T) {
	profile := regfile.Z80Profile()
	pool := NewPool(profile, false, false, 4, nil)

	jobs := []Job{
		{Offset: 0x1000, Name: "fn_a", Instrs: []ssa.Instruction{
			{Address: 0x1000, Size: 1, RTL: "5,hl,=", Opcode: "mov", Optype: "mov"},
		}},
		{Offset: 0x2000, Name: "fn_b", Instrs: []ssa.Instruction{
			{Address: 0x2000, Size: 1, RTL: "7,bc,=", Opcode: "mov", Optype: "mov"},
		}},
	}

	pool.Run(jobs, false)

	require.Equal(t, 2, pool.Results.Len())
	comp, failed := pool.Stats()
	assert.Equal(t, int64(2), comp)
	assert.Equal(t, int64(0), failed)

	fa, ok := pool.Results.Get(0x1000)
	require.True(t, ok)
	assert.NoError(t, fa.Err)
	assert.NotNil(t, fa.Graph)
}

func TestPoolTranslatesUnsupportedInstructionAndStillBuildsFunction(t *testing.T) {
	profile := regfile.Z80Profile()
	pool := NewPool(profile, false, false, 2, nil)

	jobs := []Job{
		{Offset: 0x3000, Name: "fn_odd", Instrs: []ssa.Instruction{
			{Address: 0x3000, Size: 1, RTL: "GOTO", Opcode: "weird", Optype: "weird"},
			{Address: 0x3001, Size: 1, RTL: "9,bc,=", Opcode: "mov", Optype: "mov"},
		}},
	}
	pool.Run(jobs, false)

	// An instruction led by an unsupported RTL token (GOTO) is emitted
	// as a Custom node; it does not fail the rest of the function.
	fr, ok := pool.Results.Get(0x3000)
	require.True(t, ok)
	assert.NoError(t, fr.Err)
	assert.NotNil(t, fr.Graph)

	_, failed := pool.Stats()
	assert.Equal(t, int64(0), failed)
}

func TestDefaultWorkerCountFallsBackToNumCPU(t *testing.T) {
	profile := regfile.Z80Profile()
	pool := NewPool(profile, false, false, 0, nil)
	assert.Greater(t, pool.NumWorkers, 0)
}
