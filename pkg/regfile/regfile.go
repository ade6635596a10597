// Package regfile describes an architecture's register file: the set of
// whole registers and the named sub-register views that overlap them
// (§4.1). It is a static description only — no execution semantics live
// here, unlike the teacher's pkg/cpu, which executes instructions
// against a concrete Z80 register file.
package regfile

import "github.com/xandfury/radeco/pkg/ir"

// VarId identifies a variable the phi placer tracks definitions for:
// 0..R-1 are whole registers in declared order, R is the pseudo-variable
// mem (§3).
type VarId int

// WholeReg describes one architecture whole register.
type WholeReg struct {
	Name  string
	Width uint16
}

// SubInfo describes a named sub-register view over a whole register.
type SubInfo struct {
	Base  VarId
	Shift uint16
	Width uint16
}

// Alias binds a calling-convention role to a register name, e.g.
// "PC" -> "pc", "SN" -> "a0".
type Alias struct {
	Role string
	Reg  string
}

// Profile is a full register-profile description: the whole registers
// in declared order, the sub-register views, the calling-convention
// aliases and the ordered argument-register list.
type Profile struct {
	Whole   []WholeReg
	Subs    map[string]SubInfo
	Aliases map[string]string // role -> register name
	Args    []string          // ordered calling-convention argument registers
}

// MemVar is the VarId of the pseudo-variable "mem", always one past the
// last whole register.
func (p *Profile) MemVar() VarId { return VarId(len(p.Whole)) }

// VarCount is the number of tracked variables, whole registers plus mem.
func (p *Profile) VarCount() int { return len(p.Whole) + 1 }

// IndexOf returns the VarId of a whole register by name, or -1.
func (p *Profile) IndexOf(name string) VarId {
	for i, r := range p.Whole {
		if r.Name == name {
			return VarId(i)
		}
	}
	return -1
}

// GetSubregister resolves a register name to sub-register info. It
// returns (zero, false) for unknown names (e.g. floating point
// registers the profile doesn't describe): callers must then emit an
// Undefined value of unknown width rather than fail (§4.1).
func (p *Profile) GetSubregister(name string) (SubInfo, bool) {
	if idx := p.IndexOf(name); idx >= 0 {
		return SubInfo{Base: idx, Shift: 0, Width: p.Whole[idx].Width}, true
	}
	if s, ok := p.Subs[name]; ok {
		return s, true
	}
	return SubInfo{}, false
}

// RegValueInfo returns the ValueInfo of a whole register by VarId.
func (p *Profile) RegValueInfo(v VarId) ir.ValueInfo {
	if int(v) == len(p.Whole) {
		return ir.ValueInfo{Width: ir.Known(ir.CanonicalWidth), Kind: ir.Reference}
	}
	return ir.ScalarOf(p.Whole[v].Width)
}

// Name returns the whole register's name, or "mem" for the memory
// pseudo-variable.
func (p *Profile) Name(v VarId) string {
	if int(v) == len(p.Whole) {
		return "mem"
	}
	return p.Whole[v].Name
}

// PC returns the program-counter register name, if aliased.
func (p *Profile) PC() (string, bool) {
	r, ok := p.Aliases["PC"]
	return r, ok
}

// ReturnReg returns the return-value register name ("SN"), if aliased.
func (p *Profile) ReturnReg() (string, bool) {
	r, ok := p.Aliases["SN"]
	return r, ok
}

// IterArgs yields (index, name) pairs for the calling-convention
// argument registers in declared order. Index is the VarId of the
// whole register the argument lives in (its own index for a whole
// register, the base register's for a sub-register); names the profile
// cannot resolve are left out.
func (p *Profile) IterArgs() []struct {
	Index int
	Name  string
} {
	out := make([]struct {
		Index int
		Name  string
	}, 0, len(p.Args))
	for _, name := range p.Args {
		if info, ok := p.GetSubregister(name); ok {
			out = append(out, struct {
				Index int
				Name  string
			}{int(info.Base), name})
		}
	}
	return out
}

// IterWhole yields (index, name) for every whole register, in the
// conservative order used to build a call's clobber set.
func (p *Profile) IterWhole() []struct {
	Index int
	Name  string
} {
	out := make([]struct {
		Index int
		Name  string
	}, len(p.Whole))
	for i, r := range p.Whole {
		out[i] = struct {
			Index int
			Name  string
		}{i, r.Name}
	}
	return out
}
