package source

// LiveDisassembler is a Source backed by a live backend (driving an
// external disassembler process); its method set is exactly Source's.
// A loader talks to one of these
// through the full Source interface; SnapshotToFileCache is the
// one-time drain that turns a live session into a reusable FileCache.
type LiveDisassembler interface {
	Source
}

// SnapshotToFileCache drains every capability of a live source into a
// FileCache and persists it to disk, so repeated builds can open the
// cache instead of re-querying the live backend. Capabilities the live
// source doesn't implement are skipped rather than failing the whole
// snapshot: a partial cache is still useful.
func SnapshotToFileCache(live LiveDisassembler, dir, base string) (*FileCache, error) {
	fc := NewFileCache(dir, base)

	fns, err := live.Functions()
	if err != nil {
		return nil, err
	}
	fc.SetFunctions(fns)

	for _, fn := range fns {
		instrs, err := live.InstructionsAt(fn.Offset)
		if err != nil {
			continue
		}
		fc.SetInstructions(fn.Offset, instrs)

		if locals, err := live.LocalsOf(fn.Offset); err == nil {
			fc.SetLocals(fn.Offset, locals)
		}
		if cc, err := live.CCInfoOf(fn.Offset); err == nil {
			fc.SetCCInfo(fn.Offset, cc)
		}
	}

	if regs, err := live.RegisterProfile(); err == nil {
		fc.SetRegisterProfile(regs)
	}
	if sections, err := live.Sections(); err == nil {
		fc.SetSections(sections)
	}
	if strs, err := live.Strings(false); err == nil {
		fc.SetStrings(strs)
	}
	if syms, err := live.Symbols(); err == nil {
		fc.SetSymbols(syms)
	}
	if imps, err := live.Imports(); err == nil {
		fc.SetImports(imps)
	}
	if exps, err := live.Exports(); err == nil {
		fc.SetExports(exps)
	}
	if relocs, err := live.Relocs(); err == nil {
		fc.SetRelocs(relocs)
	}
	if libs, err := live.Libraries(); err == nil {
		fc.SetLibraries(libs)
	}
	if entry, err := live.Entrypoint(); err == nil {
		fc.SetEntrypoint(entry)
	}

	if err := fc.Persist(); err != nil {
		return nil, err
	}
	return fc, nil
}
