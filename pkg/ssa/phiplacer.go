package ssa

import (
	"strings"

	"go.uber.org/zap"

	"github.com/xandfury/radeco/pkg/ir"
	"github.com/xandfury/radeco/pkg/regfile"
)

// VarId is an alias of regfile.VarId, kept local so phi-placer code
// reads the way §4.3 names it.
type VarId = regfile.VarId

// PhiPlacer owns the incremental SSA construction algorithm (§4.3): the
// per-variable definition bookkeeping, incomplete-phi tracking, sealing
// and finalization, driving mutations into a Graph it does not itself
// own the lifetime of but does own exclusively for the duration of one
// function's construction (§5).
type PhiPlacer struct {
	g       *Graph
	profile *regfile.Profile
	log     *zap.SugaredLogger

	currentDef           []*addrMap[ValueRef]
	incompletePhis       map[ir.MAddress]map[VarId]ValueRef
	incompletePropagation map[ValueRef]bool
	outputs              map[ValueRef]VarId
	blocks               *addrMap[ActionRef]
	indexToAddr          map[ValueRef]ir.MAddress
	variableTypes        []ir.ValueInfo
	sealedBlocks         map[ActionRef]bool
	unexploredAddr       uint64

	entryBlock ActionRef
	exitBlock  ActionRef
}

// NewPhiPlacer creates a placer bound to g and profile. Logger may be
// nil, in which case a no-op logger is used.
func NewPhiPlacer(g *Graph, profile *regfile.Profile, log *zap.SugaredLogger) *PhiPlacer {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	p := &PhiPlacer{
		g:                     g,
		profile:               profile,
		log:                   log,
		incompletePhis:        make(map[ir.MAddress]map[VarId]ValueRef),
		incompletePropagation: make(map[ValueRef]bool),
		outputs:               make(map[ValueRef]VarId),
		blocks:                newAddrMap[ActionRef](),
		indexToAddr:           make(map[ValueRef]ir.MAddress),
		sealedBlocks:          make(map[ActionRef]bool),
		unexploredAddr:        ir.SyntheticBase,
		entryBlock:            InvalidAction,
		exitBlock:             InvalidAction,
	}
	p.addVariables()
	return p
}

func (p *PhiPlacer) addVariables() {
	n := p.profile.VarCount()
	p.currentDef = make([]*addrMap[ValueRef], n)
	p.variableTypes = make([]ir.ValueInfo, n)
	for i := 0; i < n; i++ {
		p.currentDef[i] = newAddrMap[ValueRef]()
		p.variableTypes[i] = p.profile.RegValueInfo(VarId(i))
	}
}

// Graph exposes the underlying graph for query-surface consumers.
func (p *PhiPlacer) Graph() *Graph { return p.g }

// MarkEntryNode records block as the function's entry block.
func (p *PhiPlacer) MarkEntryNode(block ActionRef) { p.entryBlock = block }

// MarkExitNode records block as the function's exit block.
func (p *PhiPlacer) MarkExitNode(block ActionRef) { p.exitBlock = block }

func (p *PhiPlacer) logStructural(cause error, addr ir.MAddress) {
	p.log.Warnw("structural failure", "cause", cause, "addr", addr.String())
}

// --- reads/writes of tracked variables ---------------------------------

// WriteVariable records value as variable's definition at address.
func (p *PhiPlacer) WriteVariable(address ir.MAddress, variable VarId, value ValueRef) {
	if int(variable) < len(p.profile.Whole) {
		p.g.SetRegister(value, p.profile.Name(variable))
	}
	p.currentDef[variable].Insert(address, value)
	p.outputs[value] = variable
}

func (p *PhiPlacer) currentDefAt(variable VarId, address ir.MAddress) (ir.MAddress, ValueRef, bool) {
	keys := p.currentDef[variable].Keys()
	for i := len(keys) - 1; i >= 0; i-- {
		addr := keys[i]
		if p.blockOf(addr) != p.blockOf(address) && address.Less(addr) {
			continue
		}
		v, _ := p.currentDef[variable].Get(addr)
		return addr, v, true
	}
	return ir.MAddress{}, InvalidValue, false
}

func (p *PhiPlacer) currentDefInBlock(variable VarId, address ir.MAddress) (ValueRef, bool) {
	addr, v, ok := p.currentDefAt(variable, address)
	if !ok {
		return InvalidValue, false
	}
	if p.blockOf(addr) == p.blockOf(address) {
		return v, true
	}
	return InvalidValue, false
}

// ReadVariable resolves variable's live definition as of *address,
// resolving across block boundaries (and inserting phis) if needed.
func (p *PhiPlacer) ReadVariable(address *ir.MAddress, variable VarId) ValueRef {
	if v, ok := p.currentDefInBlock(variable, *address); ok {
		return v
	}
	return p.readVariableRecursive(variable, address)
}

func (p *PhiPlacer) readVariableRecursive(variable VarId, address *ir.MAddress) ValueRef {
	block := p.blockOf(*address)
	if block == InvalidAction {
		p.logStructural(ErrBlockNotFound, *address)
	}
	valtype := p.variableTypes[variable]

	var val ValueRef
	if p.sealedBlocks[block] {
		preds := p.g.PredsOf(block)
		if len(preds) == 1 {
			pAddr := p.addrOf(preds[0])
			val = p.ReadVariable(&pAddr, variable)
		} else {
			v := p.addPhi(address, valtype)
			p.WriteVariable(*address, variable, v)
			val = p.addPhiOperands(block, variable, v)
		}
	} else {
		blockAddr := p.addrOf(block)
		v := p.addPhi(address, valtype)
		incomplete := p.incompletePhis[blockAddr]
		if incomplete == nil {
			incomplete = make(map[VarId]ValueRef)
			p.incompletePhis[blockAddr] = incomplete
		}
		if existing, ok := incomplete[variable]; ok {
			val = existing
		} else {
			incomplete[variable] = v
			val = v
		}
	}
	p.WriteVariable(*address, variable, val)
	return val
}

// --- block management ----------------------------------------------------

func (p *PhiPlacer) newBlock(at ir.MAddress) ActionRef {
	if b, ok := p.blocks.Get(at); ok {
		return b
	}
	block := p.g.InsertAction(at)
	p.blocks.Insert(at, block)
	p.incompletePhis[at] = make(map[VarId]ValueRef)
	return block
}

// AddBlock implements §4.3.3's block creation/splitting.
func (p *PhiPlacer) AddBlock(at ir.MAddress, currentAddr *ir.MAddress, edgeType *EdgeKind) ActionRef {
	seen := false
	if currentAddr != nil {
		if currentAddr.Less(at) || currentAddr.Equal(at) {
			seen = false
		} else {
			seen = p.blockOf(at) != InvalidAction
		}
	}

	upperBlock := InvalidAction
	if seen {
		upperBlock = p.blockOf(at)
		if upperBlock == InvalidAction {
			p.logStructural(ErrBlockNotFound, at)
		}
	}

	lowerBlock := p.newBlock(at)
	if edgeType != nil && currentAddr != nil {
		currentBlock := p.blockOf(*currentAddr)
		if currentBlock == InvalidAction {
			p.logStructural(ErrBlockNotFound, *currentAddr)
		}
		p.g.InsertControlEdge(currentBlock, lowerBlock, *edgeType)
	}

	if upperBlock == lowerBlock {
		return upperBlock
	}

	if seen {
		p.splitBlock(at, upperBlock, lowerBlock)
	} else {
		p.blocks.Insert(at, lowerBlock)
	}
	return lowerBlock
}

func (p *PhiPlacer) splitBlock(at ir.MAddress, upperBlock, lowerBlock ActionRef) {
	type outgoing struct {
		kind EdgeKind
		edge EdgeRef
	}
	var edges []outgoing
	if f, t, ok := p.g.ConditionalEdges(upperBlock); ok {
		edges = append(edges, outgoing{FalseEdge, f}, outgoing{TrueEdge, t})
	}
	if u, ok := p.g.UnconditionalEdge(upperBlock); ok {
		edges = append(edges, outgoing{UncondEdge, u})
	}
	for _, o := range edges {
		_, target := p.g.EdgeInfo(o.edge)
		if lowerBlock != target {
			p.g.InsertControlEdge(lowerBlock, target, o.kind)
			p.g.RemoveControlEdge(o.edge)
		}
	}
	p.g.InsertControlEdge(upperBlock, lowerBlock, UncondEdge)
	p.blocks.Insert(at, lowerBlock)

	// Snapshot the address index before any mutation below (readVariableRecursive
	// may insert new phis/addresses); unlike an unordered hashmap snapshot, a
	// sorted snapshot lets us stop as soon as we leave the lower block's range.
	type pair = struct {
		ref  ValueRef
		addr ir.MAddress
	}
	snap := make([]pair, 0, len(p.indexToAddr))
	for ref, addr := range p.indexToAddr {
		snap = append(snap, pair{ref, addr})
	}
	sortPairs(snap)

	for _, pr := range snap {
		if pr.addr.Less(at) {
			continue
		}
		if b := p.blockOf(pr.addr); b != InvalidAction && b != lowerBlock {
			break
		}
		for _, sparse := range p.g.SparseOperandsOf(pr.ref) {
			idx, operand := sparse.Index, sparse.Value
			if p.g.KindOf(operand) == NodeConst {
				continue
			}
			operandAddr, ok := p.indexToAddr[operand]
			if !ok {
				continue
			}
			operandBlock := p.blockOf(operandAddr)
			if operandBlock != upperBlock {
				continue
			}
			outputVar, ok := p.outputs[operand]
			if !ok {
				continue
			}
			atCopy := at
			replacement := p.readVariableRecursive(outputVar, &atCopy)
			p.g.OpUse(pr.ref, idx, replacement)
		}
	}
}

func sortPairs(s []struct {
	ref  ValueRef
	addr ir.MAddress
}) {
	for i := 1; i < len(s); i++ {
		for j := i; j > 0 && s[j].addr.Less(s[j-1].addr); j-- {
			s[j], s[j-1] = s[j-1], s[j]
		}
	}
}

// AddIndirectCF creates a fresh block at a monotonically decreasing
// synthetic address and emits an ITE value marking selector as the
// branch condition (§4.3.3).
func (p *PhiPlacer) AddIndirectCF(selector ValueRef, currentAddr *ir.MAddress, edgeType EdgeKind) {
	sourceBlock := p.blockOf(*currentAddr)
	if sourceBlock == InvalidAction {
		p.logStructural(ErrBlockNotFound, *currentAddr)
	}
	unexploredAddr := ir.MAddress{Address: p.unexploredAddr}
	p.unexploredAddr--
	unexploredBlock := p.newBlock(unexploredAddr)
	p.blocks.Insert(unexploredAddr, unexploredBlock)
	p.g.InsertControlEdge(sourceBlock, unexploredBlock, edgeType)

	opNode := p.addOp(ir.Opcode{Tag: ir.OpITE}, currentAddr, ir.ScalarOf(1))
	p.g.OpUse(opNode, 0, selector)
}

// AddReturn inserts an unconditional edge from the block of addr to the
// exit block.
func (p *PhiPlacer) AddReturn(addr ir.MAddress, edgeType EdgeKind) {
	sourceBlock := p.blockOf(addr)
	if sourceBlock == InvalidAction {
		p.logStructural(ErrBlockNotFound, addr)
	}
	p.g.InsertControlEdge(sourceBlock, p.exitBlock, edgeType)
}

// AddEdge inserts a typed control edge between the blocks of source and
// target.
func (p *PhiPlacer) AddEdge(source, target ir.MAddress, kind EdgeKind) {
	sourceBlock := p.blockOf(source)
	targetBlock := p.blockOf(target)
	p.g.InsertControlEdge(sourceBlock, targetBlock, kind)
}

// MaybeAddEdge adds an unconditional edge to target's block only if
// source's block has no outgoing edges yet.
func (p *PhiPlacer) MaybeAddEdge(source, target ir.MAddress) {
	sourceBlock := p.blockOf(source)
	if sourceBlock == InvalidAction {
		p.logStructural(ErrBlockNotFound, source)
		return
	}
	if len(p.g.OutgoingEdges(sourceBlock)) == 0 {
		targetBlock := p.blockOf(target)
		if targetBlock != sourceBlock {
			p.g.InsertControlEdge(sourceBlock, targetBlock, UncondEdge)
		}
	}
}

// --- phi operand resolution / trivial-phi elimination --------------------

func (p *PhiPlacer) addPhiOperands(block ActionRef, variable VarId, phi ValueRef) ValueRef {
	for _, pred := range p.g.PredsOf(block) {
		pAddr := p.addrOf(pred)
		datasource := p.ReadVariable(&pAddr, variable)
		p.g.PhiUse(phi, datasource)
		if len(p.g.Registers(phi)) == 0 {
			p.propagateRegInfo(phi)
		}
	}
	return p.tryRemoveTrivialPhi(phi)
}

func (p *PhiPlacer) tryRemoveTrivialPhi(phi ValueRef) ValueRef {
	same := InvalidValue
	for _, op := range p.g.PhiOperandsOf(phi) {
		if op == same || op == phi {
			continue
		}
		if same != InvalidValue {
			return phi
		}
		same = op
	}

	phiAddr, ok := p.indexToAddr[phi]
	if !ok {
		return phi
	}
	block := p.blockOf(phiAddr)
	blockAddr := p.addrOf(block)

	if same == InvalidValue {
		same = p.addUndefined(blockAddr, p.g.InfoOf(phi))
	}

	users := p.g.UsesOf(phi)

	p.g.ReplaceValue(phi, same)

	if varId, ok := p.outputs[phi]; ok {
		delete(p.outputs, phi)
		p.outputs[same] = varId
		if incomplete, ok := p.incompletePhis[blockAddr]; ok {
			if ent, ok := incomplete[varId]; ok && ent == phi {
				delete(incomplete, varId)
			}
		}
	}

	for _, m := range p.currentDef {
		for _, k := range m.Keys() {
			if v, _ := m.Get(k); v == phi {
				m.Insert(k, same)
			}
		}
	}

	for _, use := range users {
		if use != phi && use != same && p.g.KindOf(use) == NodePhi {
			p.tryRemoveTrivialPhi(use)
		}
	}
	return same
}

// SealBlock finalizes block's incomplete phis once its predecessor set
// is known complete (§4.3.6).
func (p *PhiPlacer) SealBlock(block ActionRef) {
	blockAddr := p.addrOf(block)
	incomplete := p.incompletePhis[blockAddr]
	keys := make([]VarId, 0, len(incomplete))
	for k := range incomplete {
		keys = append(keys, k)
	}
	for _, variable := range keys {
		node, ok := incomplete[variable]
		if !ok || p.g.IsRemoved(node) {
			continue
		}
		nx := p.addPhiOperands(block, variable, node)
		if p.g.KindOf(nx) == NodePhi {
			incomplete[variable] = nx
		}
		for _, k := range p.currentDef[variable].Keys() {
			if v, _ := p.currentDef[variable].Get(k); v == node {
				p.currentDef[variable].Insert(k, nx)
			}
		}
	}
	p.sealedBlocks[block] = true
}

// --- constants / undefined / comments / ops -------------------------------

func widthOf(vt ir.ValueInfo) uint16 {
	if vt.Width.Kind == ir.WidthUnknown {
		return 64
	}
	return vt.Width.Bits
}

func maskBits(width uint16) uint64 {
	if width >= 64 {
		return ^uint64(0)
	}
	return (uint64(1) << width) - 1
}

func (p *PhiPlacer) addPhi(address *ir.MAddress, vt ir.ValueInfo) ValueRef {
	i := p.g.InsertPhi(vt)
	p.indexToAddr[i] = *address
	address.Offset++
	return i
}

func (p *PhiPlacer) addOp(op ir.Opcode, address *ir.MAddress, vt ir.ValueInfo) ValueRef {
	i := p.g.InsertOp(op, vt)
	p.indexToAddr[i] = *address
	address.Offset++
	return i
}

func (p *PhiPlacer) addUndefined(address ir.MAddress, vt ir.ValueInfo) ValueRef {
	i := p.g.InsertUndefined(vt)
	p.indexToAddr[i] = address
	return i
}

// AddComment inserts a comment value and tags it with a register name
// if the message starts with one (used for call-clobber bookkeeping).
func (p *PhiPlacer) AddComment(address ir.MAddress, vt ir.ValueInfo, msg string) ValueRef {
	i := p.g.InsertComment(msg, vt)
	for _, w := range p.profile.Whole {
		if strings.HasPrefix(msg, w.Name) {
			p.g.SetRegister(i, w.Name)
		}
	}
	p.indexToAddr[i] = address
	return i
}

// SetAddress records (or overwrites) a value's address, used by callers
// that build values outside the add*/read*/write* helpers.
func (p *PhiPlacer) SetAddress(node ValueRef, address ir.MAddress) {
	p.indexToAddr[node] = address
}

// AddConst inserts a constant, canonicalizing sub-64-bit widths as a
// masked Const wrapped in Narrow(w) (§4.3.4).
func (p *PhiPlacer) AddConst(address *ir.MAddress, value uint64, vt *ir.ValueInfo) ValueRef {
	if vt == nil {
		return p.g.InsertConst(value, ir.ScalarOf(64))
	}
	width := widthOf(*vt)
	if width < 64 {
		masked := value & maskBits(width)
		constNode := p.g.InsertConst(masked, ir.ScalarOf(width))
		narrowNode := p.addOp(ir.Opcode{Tag: ir.OpNarrow, Width: width}, address, *vt)
		p.g.OpUse(narrowNode, 0, constNode)
		return narrowNode
	}
	return p.g.InsertConst(value, ir.ScalarOf(width))
}

// NarrowConstOperand matches operand widths ahead of a binary op when
// exactly one operand is constant (§4.3.4).
func (p *PhiPlacer) NarrowConstOperand(address *ir.MAddress, lhs, rhs *ValueRef) {
	if lhs == nil || rhs == nil {
		return
	}
	lhsSize := p.operandWidth(*lhs)
	rhsSize := p.operandWidth(*rhs)
	lhsConst := p.g.KindOf(*lhs) == NodeConst
	rhsConst := p.g.KindOf(*rhs) == NodeConst
	if lhsConst == rhsConst {
		return
	}
	var victim *ValueRef
	var victimSize uint16
	if lhsSize < 64 {
		victim, victimSize = rhs, lhsSize
	} else {
		victim, victimSize = lhs, rhsSize
	}
	if victimSize < 64 {
		vtype := ir.ValueInfo{Width: ir.Unresolved(victimSize), Kind: ir.Scalar}
		node := p.addOp(ir.Opcode{Tag: ir.OpNarrow, Width: victimSize}, address, vtype)
		p.g.OpUse(node, 0, *victim)
		*victim = node
	}
}

func (p *PhiPlacer) operandWidth(v ValueRef) uint16 {
	return widthOf(p.g.InfoOf(v))
}

// --- register read/write (§4.3.5) -----------------------------------------

// ReadRegister resolves a (possibly sub-) register name to its current
// value, inserting Lsr/Narrow wrappers as needed.
func (p *PhiPlacer) ReadRegister(address *ir.MAddress, name string) ValueRef {
	info, ok := p.profile.GetSubregister(name)
	if !ok {
		p.log.Warnw("unrecognized register, emitting undefined", "name", name)
		return p.addUndefined(*address, ir.UnknownInfo())
	}
	id := info.Base
	value := p.ReadVariable(address, id)
	width := p.operandWidth(value)

	if info.Shift > 0 {
		vtype := ir.ValueInfo{Width: ir.Unresolved(width), Kind: ir.Scalar}
		shiftNode := p.AddConst(address, uint64(info.Shift), &vtype)
		opNode := p.addOp(ir.Opcode{Tag: ir.OpLsr}, address, vtype)
		p.g.OpUse(opNode, 0, value)
		p.g.OpUse(opNode, 1, shiftNode)
		value = opNode
		p.propagateRegInfo(value)
	}

	if info.Width < width {
		vtype := ir.ValueInfo{Width: ir.Unresolved(info.Width), Kind: ir.Scalar}
		opNode := p.addOp(ir.Opcode{Tag: ir.OpNarrow, Width: info.Width}, address, vtype)
		p.g.OpUse(opNode, 0, value)
		value = opNode
		p.propagateRegInfo(value)
	}
	return value
}

// WriteRegister writes value into a (possibly sub-) register, preserving
// untouched bits of the base register via a read-modify-write mask merge
// for partial writes (§4.3.5).
func (p *PhiPlacer) WriteRegister(address *ir.MAddress, name string, value ValueRef) {
	info, ok := p.profile.GetSubregister(name)
	if !ok {
		p.log.Warnw("unrecognized register on write, dropped", "name", name)
		return
	}
	id := info.Base
	vt := p.variableTypes[id]
	width := widthOf(vt)

	if info.Width >= width {
		cur := p.operandWidth(value)
		switch {
		case width == cur:
			mov := p.addOp(ir.Opcode{Tag: ir.OpMov}, address, vt)
			p.g.OpUse(mov, 0, value)
			value = mov
		case width < cur:
			narrow := p.addOp(ir.Opcode{Tag: ir.OpNarrow, Width: width}, address, vt)
			p.g.OpUse(narrow, 0, value)
			value = narrow
		default:
			zext := p.addOp(ir.Opcode{Tag: ir.OpZeroExt, Width: width}, address, vt)
			p.g.OpUse(zext, 0, value)
			value = zext
		}
		p.WriteVariable(*address, id, value)
		p.g.SetRegister(value, p.profile.Name(id))
		return
	}

	if p.operandWidth(value) < width {
		zext := p.addOp(ir.Opcode{Tag: ir.OpZeroExt, Width: width}, address, vt)
		p.g.OpUse(zext, 0, value)
		value = zext
		p.propagateRegInfo(value)
	}
	if info.Shift > 0 {
		shiftNode := p.AddConst(address, uint64(info.Shift), &vt)
		shl := p.addOp(ir.Opcode{Tag: ir.OpLsl}, address, vt)
		p.g.OpUse(shl, 0, value)
		p.g.OpUse(shl, 1, shiftNode)
		value = shl
		p.propagateRegInfo(value)
	}

	fullMask := maskBits(width)
	subMask := maskBits(info.Width) << info.Shift
	maskVal := (^subMask) & fullMask

	if maskVal == 0 {
		p.WriteVariable(*address, id, value)
		return
	}

	ov := p.ReadVariable(address, id)
	maskNode := p.AddConst(address, maskVal, &vt)
	andNode := p.addOp(ir.Opcode{Tag: ir.OpAnd}, address, vt)
	p.g.OpUse(andNode, 0, ov)
	p.g.OpUse(andNode, 1, maskNode)
	p.propagateRegInfo(andNode)
	ov = andNode

	orNode := p.addOp(ir.Opcode{Tag: ir.OpOr}, address, vt)
	p.g.OpUse(orNode, 0, value)
	p.g.OpUse(orNode, 1, ov)
	value = orNode
	p.WriteVariable(*address, id, value)
	p.propagateRegInfo(value)
}

// --- register-state pseudo-op, register-name propagation -----------------

// SyncRegisterState wires the block's register-state pseudo-operation
// to the current definition of every tracked variable, creating the
// pseudo-op on first use.
func (p *PhiPlacer) SyncRegisterState(block ActionRef) {
	rs := p.g.RegState(block)
	if rs == InvalidValue {
		addr := p.addrOf(block)
		rs = p.addOp(ir.Opcode{Tag: ir.OpCustom, Name: "regstate"}, &addr, ir.UnknownInfo())
		p.g.SetRegState(block, rs)
	}
	for v := 0; v < len(p.variableTypes); v++ {
		addr := p.addrOf(block)
		val := p.ReadVariable(&addr, VarId(v))
		p.g.OpUse(rs, v, val)
	}
}

// propagateRegInfo copies a register-name tag from a node's first
// operand onto the node itself (used for width-change wrappers and
// phis so register provenance survives those transformations).
func (p *PhiPlacer) propagateRegInfo(node ValueRef) {
	args := p.g.OperandsOf(node)
	if p.g.KindOf(node) == NodePhi {
		args = p.g.PhiOperandsOf(node)
	}
	if len(args) == 0 {
		return
	}
	regnames := p.g.Registers(args[0])
	if len(regnames) != 0 {
		for _, name := range regnames {
			p.g.SetRegister(node, name)
		}
		for _, user := range p.g.UsesOf(node) {
			if p.incompletePropagation[user] {
				delete(p.incompletePropagation, user)
				p.propagateRegInfo(user)
			}
		}
	} else {
		p.incompletePropagation[node] = true
	}
}

// --- lookup helpers --------------------------------------------------------

func (p *PhiPlacer) blockOf(address ir.MAddress) ActionRef {
	_, b, ok := p.blocks.Floor(address)
	if !ok {
		return InvalidAction
	}
	return b
}

func (p *PhiPlacer) addrOf(block ActionRef) ir.MAddress {
	return p.g.StartingAddress(block)
}

// AssociateBlock records the containment edge of node into the block
// containing addr.
func (p *PhiPlacer) AssociateBlock(node ValueRef, addr ir.MAddress) {
	block := p.blockOf(addr)
	if block == InvalidAction {
		p.logStructural(ErrBlockNotFound, addr)
		return
	}
	p.g.SetBlock(node, block)
}

// GatherExits links every block with no successors to the exit block.
func (p *PhiPlacer) GatherExits() {
	for _, block := range p.g.AllActions() {
		if block == p.exitBlock {
			continue
		}
		if len(p.g.SuccsOf(block)) == 0 {
			p.g.InsertControlEdge(block, p.exitBlock, UncondEdge)
		}
	}
}

// Finish performs the finalization pass (§4.3.6): sealing the
// remaining blocks via breadth-first traversal from the entry block
// with a stall-breaker, associating every addressed value with its
// block, collapsing ITE values into block selectors, and recording
// block sizes from adjacent-instruction address deltas.
func (p *PhiPlacer) Finish(instrAddrs []ir.MAddress) {
	if p.entryBlock == InvalidAction {
		return
	}
	wl := []ActionRef{p.entryBlock}
	seen := make(map[ActionRef]bool)
	wastedCycles := 0

	for len(wl) > 0 {
		if wastedCycles > len(wl) {
			break
		}
		current := wl[0]
		wl = wl[1:]

		preds := p.g.PredsOf(current)
		allSealed := true
		for _, pr := range preds {
			if pr != current && !p.sealedBlocks[pr] {
				allSealed = false
				break
			}
		}
		pushBack := false
		if allSealed {
			if !p.sealedBlocks[current] {
				p.SealBlock(current)
				wastedCycles = 0
			}
		} else {
			wastedCycles++
			pushBack = true
		}

		if !seen[current] {
			wl = append(wl, p.g.SuccsOf(current)...)
			seen[current] = true
		}
		if pushBack {
			wl = append(wl, current)
		}
	}
	for _, block := range wl {
		p.SealBlock(block)
	}

	for _, node := range p.g.AllValues() {
		addr, ok := p.indexToAddr[node]
		if !ok {
			continue
		}
		p.AssociateBlock(node, addr)
		if p.g.KindOf(node) == NodeOp && p.g.OpcodeOf(node).Tag == ir.OpITE {
			block := p.blockOf(addr)
			operands := p.g.OperandsOf(node)
			if len(operands) > 0 && operands[0] != InvalidValue {
				p.g.SetSelector(block, operands[0])
				p.g.RemoveValue(node)
			} else {
				p.log.Warn("lost selector")
			}
		}
	}

	for i := 0; i+1 < len(instrAddrs); i++ {
		off1 := ir.MAddress{Address: instrAddrs[i].Address}
		off2 := ir.MAddress{Address: instrAddrs[i+1].Address}
		b1 := p.blockOf(off1)
		b2 := p.blockOf(off2)
		if b1 == InvalidAction || b2 == InvalidAction || b1 == b2 {
			continue
		}
		start := p.g.StartingAddress(b1)
		p.g.SetSize(b1, off1.Address-start.Address)
	}
}
