// Package source describes the upstream disassembly collaborator
// (§6): an abstract capability set yielding function lists,
// per-address instruction records, the architecture's register
// profile, and the usual auxiliary binary metadata. The core SSA
// builder treats whatever implementation is plugged in here as
// exclusively owned for the duration of one function's construction.
package source

import (
	"github.com/pkg/errors"

	"github.com/xandfury/radeco/pkg/regfile"
	"github.com/xandfury/radeco/pkg/ssa"
)

// FunctionInfo describes one function the source knows about.
type FunctionInfo struct {
	Offset   uint64
	Name     string
	Size     uint64
	CallRefs []uint64
}

// SectionInfo, SymbolInfo, ImportInfo, ExportInfo, RelocInfo and
// EntryInfo are the optional auxiliary records a Source may supply;
// an implementation that doesn't track one returns ErrUnimplemented.
type SectionInfo struct {
	Name  string
	VAddr uint64
	Size  uint64
}

type SymbolInfo struct {
	Name  string
	VAddr uint64
}

type ImportInfo struct {
	Name string
}

type ExportInfo struct {
	Name  string
	VAddr uint64
}

type RelocInfo struct {
	VAddr  uint64
	Target uint64
}

type EntryInfo struct {
	VAddr uint64
}

// AliasInfo binds a calling-convention role to a register name.
type AliasInfo struct {
	Role string
	Reg  string
}

// RegInfo is the wire shape of a register profile, convertible to a
// regfile.Profile via ToProfile.
type RegInfo struct {
	Registers []regfile.WholeReg
	Subs      map[string]regfile.SubInfo
	Aliases   []AliasInfo
	Args      []string
}

// ToProfile builds the regfile.Profile the phi placer consumes.
func (r RegInfo) ToProfile() *regfile.Profile {
	aliases := make(map[string]string, len(r.Aliases))
	for _, a := range r.Aliases {
		aliases[a.Role] = a.Reg
	}
	return &regfile.Profile{
		Whole:   r.Registers,
		Subs:    r.Subs,
		Aliases: aliases,
		Args:    r.Args,
	}
}

// Sentinel errors for ErrKind classification (§7: source failure).
var (
	ErrUnimplemented = errors.New("source capability not implemented")
	ErrNotFound      = errors.New("source record not found")
)

// Error wraps a source-layer failure with the capability that failed,
// matching §7's "source failure" error kind: missing data,
// unimplemented capability, or a parse error from the backing store.
type Error struct {
	Capability string
	Cause      error
}

func (e *Error) Error() string {
	return errors.Wrapf(e.Cause, "source: %s", e.Capability).Error()
}

func (e *Error) Unwrap() error { return e.Cause }

func wrapErr(capability string, cause error) error {
	if cause == nil {
		return nil
	}
	return &Error{Capability: capability, Cause: cause}
}

// Source is the upstream disassembly collaborator contract (§6). Every
// method is infallibly typed on success; failures are always an *Error.
// Optional capabilities default to ErrUnimplemented via embedding
// unimplementedSource, so a concrete backend only has to override the
// capabilities it actually supports.
type Source interface {
	Functions() ([]FunctionInfo, error)
	InstructionsAt(addr uint64) ([]Instruction, error)
	RegisterProfile() (RegInfo, error)

	Sections() ([]SectionInfo, error)
	Symbols() ([]SymbolInfo, error)
	Imports() ([]ImportInfo, error)
	Exports() ([]ExportInfo, error)
	Relocs() ([]RelocInfo, error)
	Libraries() ([]string, error)
	Entrypoint() ([]EntryInfo, error)
	Strings(dataOnly bool) ([]StringInfo, error)
	LocalsOf(addr uint64) ([]LocalVar, error)
	CCInfoOf(addr uint64) (CCInfo, error)
}

// StringInfo is one recovered string literal.
type StringInfo struct {
	VAddr   uint64
	Value   string
	Section string
}

// LocalVar is one local variable/stack slot of a function, as recorded
// by the source's own stack-frame analysis (independent of and prior
// to any SSA construction).
type LocalVar struct {
	Name     string
	StackOff int64
	Size     uint64
	IsArg    bool
}

// CCInfo is a function's calling-convention summary: which registers
// carry arguments (in order) and which carries the return value. This
// is purely descriptive data from the source layer; nothing in this
// repository turns it into a regfile.Profile (ToProfile builds
// profile.Args and the aliases from RegInfo instead).
type CCInfo struct {
	Name      string
	Args      []string
	ReturnReg string
}

// Instruction mirrors the source-layer instruction record (offset,
// size, RTL string, opcode/optype, raw bytes); ToSSA projects it down
// to the smaller record ssa.Constructor.Process consumes.
type Instruction struct {
	Offset uint64
	Size   uint64
	Esil   string
	Opcode string
	Optype string
	Bytes  string
}

// ToSSA projects a source Instruction down to ssa.Instruction.
func (i Instruction) ToSSA() ssa.Instruction {
	return ssa.Instruction{
		Address: i.Offset,
		Size:    i.Size,
		RTL:     i.Esil,
		Opcode:  i.Opcode,
		Optype:  i.Optype,
	}
}

// FunctionAt finds a function by its starting offset, the default
// implementation every backend gets for free.
func FunctionAt(s Source, addr uint64) (FunctionInfo, error) {
	fns, err := s.Functions()
	if err != nil {
		return FunctionInfo{}, err
	}
	for _, f := range fns {
		if f.Offset == addr {
			return f, nil
		}
	}
	return FunctionInfo{}, wrapErr("function_at", ErrNotFound)
}

// InstructionsAtFn resolves a function by name, then fetches its
// instructions.
func InstructionsAtFn(s Source, name string) ([]Instruction, error) {
	fns, err := s.Functions()
	if err != nil {
		return nil, err
	}
	for _, f := range fns {
		if f.Name == name {
			return s.InstructionsAt(f.Offset)
		}
	}
	return nil, wrapErr("instructions_at_fn", ErrNotFound)
}

// SectionOf finds the section containing addr.
func SectionOf(s Source, addr uint64) (SectionInfo, error) {
	sections, err := s.Sections()
	if err != nil {
		return SectionInfo{}, err
	}
	for _, sec := range sections {
		if addr >= sec.VAddr && addr < sec.VAddr+sec.Size {
			return sec, nil
		}
	}
	return SectionInfo{}, wrapErr("section_of", ErrNotFound)
}

// unimplementedSource gives every optional capability a default
// ErrUnimplemented body; concrete sources embed it and override what
// they actually back (mirrors the original trait's default-method
// pattern without Go's lack of default interface methods).
type unimplementedSource struct{ name string }

func (u unimplementedSource) Sections() ([]SectionInfo, error) {
	return nil, wrapErr(u.name+".sections", ErrUnimplemented)
}
func (u unimplementedSource) Symbols() ([]SymbolInfo, error) {
	return nil, wrapErr(u.name+".symbols", ErrUnimplemented)
}
func (u unimplementedSource) Imports() ([]ImportInfo, error) {
	return nil, wrapErr(u.name+".imports", ErrUnimplemented)
}
func (u unimplementedSource) Exports() ([]ExportInfo, error) {
	return nil, wrapErr(u.name+".exports", ErrUnimplemented)
}
func (u unimplementedSource) Relocs() ([]RelocInfo, error) {
	return nil, wrapErr(u.name+".relocs", ErrUnimplemented)
}
func (u unimplementedSource) Libraries() ([]string, error) {
	return nil, wrapErr(u.name+".libraries", ErrUnimplemented)
}
func (u unimplementedSource) Entrypoint() ([]EntryInfo, error) {
	return nil, wrapErr(u.name+".entrypoint", ErrUnimplemented)
}
func (u unimplementedSource) Strings(bool) ([]StringInfo, error) {
	return nil, wrapErr(u.name+".strings", ErrUnimplemented)
}
func (u unimplementedSource) LocalsOf(uint64) ([]LocalVar, error) {
	return nil, wrapErr(u.name+".locals_of", ErrUnimplemented)
}
func (u unimplementedSource) CCInfoOf(uint64) (CCInfo, error) {
	return CCInfo{}, wrapErr(u.name+".cc_info_of", ErrUnimplemented)
}
