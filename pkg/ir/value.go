package ir

// WidthKind classifies how precisely a value's bit-width is known.
type WidthKind int

const (
	WidthKnown WidthKind = iota
	WidthUnresolved
	WidthUnknown
)

// Width is a value's bit-width, possibly unresolved or wholly unknown
// (e.g. an Undefined produced for an unrecognized sub-register name).
type Width struct {
	Kind WidthKind
	Bits uint16
}

// Known builds a fully resolved width of n bits.
func Known(n uint16) Width { return Width{Kind: WidthKnown, Bits: n} }

// Unresolved builds a width that is expected to be n bits but has not
// been confirmed against a register profile.
func Unresolved(n uint16) Width { return Width{Kind: WidthUnresolved, Bits: n} }

// Unknown builds a width with no information at all.
func Unknown() Width { return Width{Kind: WidthUnknown} }

// CanonicalWidth is the width constants are conceptually stored at
// before narrowing.
const CanonicalWidth uint16 = 64

// ValueKind distinguishes plain scalars from memory/pointer-like
// references.
type ValueKind int

const (
	Scalar ValueKind = iota
	Reference
)

// ValueInfo is the type carried by an SSA value: a width and a kind.
type ValueInfo struct {
	Width Width
	Kind  ValueKind
}

// ScalarOf is a convenience constructor for a known-width scalar.
func ScalarOf(bits uint16) ValueInfo {
	return ValueInfo{Width: Known(bits), Kind: Scalar}
}

// UnknownInfo describes a value of wholly unknown shape, emitted for
// unrecognized sub-register names (§4.1).
func UnknownInfo() ValueInfo {
	return ValueInfo{Width: Unknown(), Kind: Scalar}
}
