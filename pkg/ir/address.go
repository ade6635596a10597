// Package ir defines the data shapes shared by the SSA builder: machine
// addresses, value/width metadata and the closed opcode set.
package ir

import "fmt"

// MAddress pairs a machine instruction address with an intra-instruction
// micro-offset, disambiguating multiple IR nodes produced by a single
// machine instruction. It is totally ordered lexicographically on
// (Address, Offset).
type MAddress struct {
	Address uint64
	Offset  uint16
}

// NewAddress builds an MAddress at offset 0.
func NewAddress(addr uint64) MAddress { return MAddress{Address: addr} }

// Less reports whether a sorts before b.
func (a MAddress) Less(b MAddress) bool {
	if a.Address != b.Address {
		return a.Address < b.Address
	}
	return a.Offset < b.Offset
}

// Equal reports whether a and b denote the same micro-location.
func (a MAddress) Equal(b MAddress) bool {
	return a.Address == b.Address && a.Offset == b.Offset
}

func (a MAddress) String() string {
	if a.Offset == 0 {
		return fmt.Sprintf("0x%x", a.Address)
	}
	return fmt.Sprintf("0x%x.%d", a.Address, a.Offset)
}

// SyntheticBase is the first synthetic address handed out to indirect
// control-flow targets (§9 open question: synthetic addresses are a
// disjoint, decrementing space starting just below the maximum u64).
const SyntheticBase uint64 = ^uint64(0) - 1
