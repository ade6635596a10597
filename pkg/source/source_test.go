package source

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeLive struct {
	unimplementedSource
	fns    []FunctionInfo
	instrs map[uint64][]Instruction
	regs   RegInfo
}

func (f *fakeLive) Functions() ([]FunctionInfo, error) { return f.fns, nil }
func (f *fakeLive) InstructionsAt(addr uint64) ([]Instruction, error) {
	is, ok := f.instrs[addr]
	if !ok {
		return nil, wrapErr("fakelive.instructions_at", ErrNotFound)
	}
	return is, nil
}
func (f *fakeLive) RegisterProfile() (RegInfo, error) { return f.regs, nil }
func (f *fakeLive) LocalsOf(addr uint64) ([]LocalVar, error) {
	if addr != 0x1000 {
		return nil, wrapErr("fakelive.locals_of", ErrNotFound)
	}
	return []LocalVar{{Name: "x", StackOff: -8, Size: 2}}, nil
}
func (f *fakeLive) CCInfoOf(addr uint64) (CCInfo, error) {
	if addr != 0x1000 {
		return CCInfo{}, wrapErr("fakelive.cc_info_of", ErrNotFound)
	}
	return CCInfo{Name: "main", Args: []string{"bc"}, ReturnReg: "hl"}, nil
}

func newFakeLive() *fakeLive {
	return &fakeLive{
		unimplementedSource: unimplementedSource{name: "fakelive"},
		fns: []FunctionInfo{
			{Offset: 0x1000, Name: "main", Size: 0x40},
		},
		instrs: map[uint64][]Instruction{
			0x1000: {
				{Offset: 0x1000, Size: 1, Esil: "5,hl,=", Opcode: "mov", Optype: "mov"},
			},
		},
		regs: RegInfo{
			Registers: nil,
			Aliases:   []AliasInfo{{Role: "PC", Reg: "pc"}},
		},
	}
}

func TestSnapshotToFileCacheRoundTrips(t *testing.T) {
	dir := t.TempDir()
	live := newFakeLive()

	fc, err := SnapshotToFileCache(live, dir, "sample")
	require.NoError(t, err)

	fns, err := fc.Functions()
	require.NoError(t, err)
	require.Len(t, fns, 1)
	assert.Equal(t, "main", fns[0].Name)

	reopened, err := OpenFileCache(dir + "/sample")
	require.NoError(t, err)

	fns2, err := reopened.Functions()
	require.NoError(t, err)
	assert.Equal(t, fns, fns2)

	instrs, err := reopened.InstructionsAt(0x1000)
	require.NoError(t, err)
	require.Len(t, instrs, 1)
	assert.Equal(t, "5,hl,=", instrs[0].Esil)

	regs, err := reopened.RegisterProfile()
	require.NoError(t, err)
	require.Len(t, regs.Aliases, 1)
	assert.Equal(t, "pc", regs.Aliases[0].Reg)

	locals, err := reopened.LocalsOf(0x1000)
	require.NoError(t, err)
	require.Len(t, locals, 1)
	assert.Equal(t, "x", locals[0].Name)

	cc, err := reopened.CCInfoOf(0x1000)
	require.NoError(t, err)
	assert.Equal(t, "main", cc.Name)
	assert.Equal(t, "hl", cc.ReturnReg)
}

func TestFileCacheMissingCapabilityIsUnimplemented(t *testing.T) {
	dir := t.TempDir()
	fc := NewFileCache(dir, "empty")

	_, err := fc.Sections()
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUnimplemented)
}

func TestFileCacheMissingInstructionsIsNotFound(t *testing.T) {
	dir := t.TempDir()
	fc := NewFileCache(dir, "empty")

	_, err := fc.InstructionsAt(0xdead)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestFunctionAtHelper(t *testing.T) {
	live := newFakeLive()
	fn, err := FunctionAt(live, 0x1000)
	require.NoError(t, err)
	assert.Equal(t, "main", fn.Name)

	_, err = FunctionAt(live, 0xffff)
	require.Error(t, err)
}

func TestInstructionToSSAProjection(t *testing.T) {
	instr := Instruction{Offset: 0x2000, Size: 2, Esil: "1,a,=", Opcode: "mov", Optype: "mov"}
	ssaInstr := instr.ToSSA()
	assert.Equal(t, uint64(0x2000), ssaInstr.Address)
	assert.Equal(t, "1,a,=", ssaInstr.RTL)
}
