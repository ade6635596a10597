package regfile

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestZ80ProfileWholeLookup(t *testing.T) {
	p := Z80Profile()
	require.Equal(t, 6, len(p.Whole))
	assert.Equal(t, VarId(0), p.IndexOf("af"))
	assert.Equal(t, VarId(-1), p.IndexOf("nope"))
	assert.Equal(t, "mem", p.Name(p.MemVar()))
	assert.Equal(t, 7, p.VarCount())
}

func TestZ80ProfileSubregisters(t *testing.T) {
	p := Z80Profile()
	sub, ok := p.GetSubregister("h")
	require.True(t, ok)
	assert.Equal(t, VarId(3), sub.Base)
	assert.Equal(t, uint16(8), sub.Shift)
	assert.Equal(t, uint16(8), sub.Width)

	whole, ok := p.GetSubregister("hl")
	require.True(t, ok)
	assert.Equal(t, VarId(3), whole.Base)
	assert.Equal(t, uint16(0), whole.Shift)
	assert.Equal(t, uint16(16), whole.Width)

	_, ok = p.GetSubregister("xmm0")
	assert.False(t, ok, "unknown register names must not resolve")
}

func TestZ80ProfileAliases(t *testing.T) {
	p := Z80Profile()
	pc, ok := p.PC()
	require.True(t, ok)
	assert.Equal(t, "pc", pc)

	sn, ok := p.ReturnReg()
	require.True(t, ok)
	assert.Equal(t, "a", sn)
}

func TestZ80ProfileIterArgsAndWhole(t *testing.T) {
	p := Z80Profile()
	args := p.IterArgs()
	require.Len(t, args, 4)
	assert.Equal(t, "b", args[0].Name)

	whole := p.IterWhole()
	require.Len(t, whole, 6)
	assert.Equal(t, "pc", whole[5].Name)
}
