package regfile

// Z80Profile builds the example/test register profile used throughout
// this repository's tests: the classic Z80 register layout (the
// teacher's own pkg/cpu.State), repurposed here purely as register
// *shape* description (name/width/overlap), with none of the teacher's
// execution semantics. af/bc/de/hl are whole 16-bit register pairs; sp
// and pc stand alone; a/f/b/c/d/e/h/l are their 8-bit sub-registers,
// each occupying the high byte (shift 8) or low byte (shift 0) of its
// pair.
func Z80Profile() *Profile {
	p := &Profile{
		Whole: []WholeReg{
			{Name: "af", Width: 16},
			{Name: "bc", Width: 16},
			{Name: "de", Width: 16},
			{Name: "hl", Width: 16},
			{Name: "sp", Width: 16},
			{Name: "pc", Width: 16},
		},
		Subs: map[string]SubInfo{
			"a": {Base: 0, Shift: 8, Width: 8},
			"f": {Base: 0, Shift: 0, Width: 8},
			"b": {Base: 1, Shift: 8, Width: 8},
			"c": {Base: 1, Shift: 0, Width: 8},
			"d": {Base: 2, Shift: 8, Width: 8},
			"e": {Base: 2, Shift: 0, Width: 8},
			"h": {Base: 3, Shift: 8, Width: 8},
			"l": {Base: 3, Shift: 0, Width: 8},
		},
		Aliases: map[string]string{
			"PC": "pc",
			"SN": "a",
		},
		Args: []string{"b", "c", "d", "e"},
	}
	return p
}
