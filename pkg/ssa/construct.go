package ssa

import (
	"strconv"
	"strings"

	"github.com/alecthomas/participle/v2/lexer"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/xandfury/radeco/pkg/ir"
	"github.com/xandfury/radeco/pkg/regfile"
)

// Instruction is one disassembled record the driver consumes: an
// address, its RTL ("ESIL") string, and the optype/opcode metadata the
// call/return interception needs (§4.4, §6).
type Instruction struct {
	Address uint64
	Size    uint64
	RTL     string
	Opcode  string
	Optype  string
}

// unsupportedTokens are the RTL constructs §4.4 step 3 intercepts
// ahead of tokenization: an instruction whose first token is one of
// them is routed to a Custom call-like node. When one appears later in
// the string, processOp reports an error and Process skips that
// instruction.
var unsupportedTokens = map[string]bool{
	"GOTO": true, "TRAP": true, "$": true, "TODO": true, "REPEAT": true,
}

var rtlLexer = lexer.MustSimple([]lexer.SimpleRule{
	{Name: "Number", Pattern: `0[xX][0-9a-fA-F]+|[0-9]+`},
	{Name: "Ident", Pattern: `[A-Za-z_][A-Za-z0-9_]*`},
	{Name: "Op", Pattern: `==|<<<|>>>|<<|>>|=\[[0-9]+\]|\[[0-9]+\]|\?\{|[-+*/%&|^!<>=}]`},
	{Name: "Whitespace", Pattern: `[ \t]+`},
})

// tokenKind classifies a single RTL stack-token string using the
// lexer's lexical rules; the stack-machine interpretation that follows
// is hand-written (§4.4 design note: lex, don't parse — the grammar is
// a flat postfix stack, not a recursive one).
type tokenKind int

const (
	tokRegister tokenKind = iota
	tokIntermediate
	tokConstant
	tokCmp
	tokLt
	tokGt
	tokEq
	tokIf
	tokEndIf
	tokLsl
	tokLsr
	tokRol
	tokRor
	tokAnd
	tokOr
	tokXor
	tokNot
	tokAdd
	tokSub
	tokMul
	tokDiv
	tokMod
	tokPoke
	tokPeek
	tokUnsupported
	tokNop
)

func classify(tok string) (tokenKind, int) {
	switch tok {
	case "==":
		return tokCmp, 0
	case "<":
		return tokLt, 0
	case ">":
		return tokGt, 0
	case "=":
		return tokEq, 0
	case "?{":
		return tokIf, 0
	case "}":
		return tokEndIf, 0
	case "<<":
		return tokLsl, 0
	case ">>":
		return tokLsr, 0
	case "<<<":
		return tokRol, 0
	case ">>>":
		return tokRor, 0
	case "&":
		return tokAnd, 0
	case "|":
		return tokOr, 0
	case "^":
		return tokXor, 0
	case "!":
		return tokNot, 0
	case "+":
		return tokAdd, 0
	case "-":
		return tokSub, 0
	case "*":
		return tokMul, 0
	case "/":
		return tokDiv, 0
	case "%":
		return tokMod, 0
	case "", "NOP":
		return tokNop, 0
	}
	if unsupportedTokens[tok] {
		return tokUnsupported, 0
	}
	if strings.HasPrefix(tok, "=[") && strings.HasSuffix(tok, "]") {
		n, _ := strconv.Atoi(tok[2 : len(tok)-1])
		return tokPoke, n
	}
	if strings.HasPrefix(tok, "[") && strings.HasSuffix(tok, "]") {
		n, _ := strconv.Atoi(tok[1 : len(tok)-1])
		return tokPeek, n
	}
	if strings.HasPrefix(tok, "i") {
		if n, err := strconv.Atoi(tok[1:]); err == nil {
			return tokIntermediate, n
		}
	}
	if lexTokenIsNumber(tok) {
		return tokConstant, 0
	}
	return tokRegister, 0
}

// lexTokenIsNumber runs the shared RTL lexer over a single token to
// decide whether it lexes as a Number literal rather than an Ident;
// the stack machine that dispatches on this result is hand-written
// (§4.4), the lexical classification itself is not.
func lexTokenIsNumber(tok string) bool {
	lex, err := rtlLexer.Lex("", strings.NewReader(tok))
	if err != nil {
		return false
	}
	t, err := lex.Next()
	if err != nil || t.EOF() {
		return false
	}
	symbols := rtlLexer.Symbols()
	return t.Type == symbols["Number"]
}

func parseConst(tok string) (uint64, bool) {
	if strings.HasPrefix(tok, "0x") || strings.HasPrefix(tok, "0X") {
		v, err := strconv.ParseUint(tok[2:], 16, 64)
		return v, err == nil
	}
	v, err := strconv.ParseUint(tok, 10, 64)
	return v, err == nil
}

// Intermediate is one entry on the RTL interpreter's value stack.
// Plain tokens carry an already-resolved Value; a bare register token
// instead carries RegisterName and defers the actual ReadRegister
// until something other than '=' consumes it — ESIL-style postfix RTL
// uses the same token to name an assignment target ("name,=") and to
// read a value ("name,+,..."), and only the consumer can tell which.
type Intermediate struct {
	Value        ValueRef
	Width        uint16
	RegisterName string
}

type iteFrame struct {
	Value ValueRef
	Addr  ir.MAddress
	Block ActionRef
}

// Constructor drives §4.4: it owns the RTL intermediate-value stack and
// if-nesting stack, and translates each instruction's token stream into
// PhiPlacer calls.
type Constructor struct {
	g       *Graph
	p       *PhiPlacer
	profile *regfile.Profile
	log     *zap.SugaredLogger

	assumeCC  bool
	replacePC bool

	stack    []Intermediate
	iteStack []iteFrame

	needsNewBlock bool
	currentBlock  ActionRef
	currentAddr   ir.MAddress
	haveAddr      bool
}

// NewConstructor bootstraps the entry block, one Comment per whole
// register as its initial definition, a Comment for mem, the
// register-state pseudo-op, and the exit block (§4.4 Initialization).
// replacePC selects the process_op PC-read behavior: when set, reads of
// the program-counter alias materialize to the constant addr+op.size
// instead of a live register read.
func NewConstructor(profile *regfile.Profile, assumeCC, replacePC bool, log *zap.SugaredLogger) *Constructor {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	g := NewGraph()
	p := NewPhiPlacer(g, profile, log)

	c := &Constructor{
		g: g, p: p, profile: profile, log: log,
		assumeCC: assumeCC, replacePC: replacePC, currentBlock: InvalidAction,
	}

	entry := g.InsertEntry()
	p.MarkEntryNode(entry)
	entryAddr := ir.NewAddress(0)
	entryBlock := p.newBlock(entryAddr)
	g.InsertControlEdge(entry, entryBlock, UncondEdge)
	c.currentBlock = entryBlock
	c.currentAddr = entryAddr
	c.haveAddr = true

	for _, w := range profile.Whole {
		addr := entryAddr
		vt := ir.ScalarOf(w.Width)
		comment := p.AddComment(addr, vt, w.Name+".init")
		p.WriteVariable(addr, profile.IndexOf(w.Name), comment)
	}
	mem := profile.MemVar()
	memComment := p.AddComment(entryAddr, ir.ValueInfo{Width: ir.Known(ir.CanonicalWidth), Kind: ir.Reference}, "mem.init")
	p.WriteVariable(entryAddr, mem, memComment)

	p.SealBlock(entryBlock)
	p.SyncRegisterState(entryBlock)

	exit := g.InsertExit()
	p.MarkExitNode(exit)

	return c
}

// Graph returns the graph under construction.
func (c *Constructor) Graph() *Graph { return c.g }

// Placer exposes the underlying phi placer for advanced callers (tests,
// downstream finalization).
func (c *Constructor) Placer() *PhiPlacer { return c.p }

func (c *Constructor) closeOpenITEs(at ir.MAddress) {
	for len(c.iteStack) > 0 {
		frame := c.iteStack[len(c.iteStack)-1]
		c.iteStack = c.iteStack[:len(c.iteStack)-1]
		comment := c.p.AddComment(at, ir.UnknownInfo(), "F:"+at.String())
		c.g.InsertControlEdge(frame.Block, c.blockAt(at), FalseEdge)
		c.g.OpUse(frame.Value, 2, comment)
	}
}

func (c *Constructor) blockAt(addr ir.MAddress) ActionRef {
	return c.p.blockOf(addr)
}

// Process runs the driver over an ordered instruction list, translating
// each into SSA mutations. RTL parse failures are logged and skip only
// the offending instruction (§7); best-effort per function.
func (c *Constructor) Process(instrs []Instruction) error {
	for i, instr := range instrs {
		addr := ir.NewAddress(instr.Address)

		if c.needsNewBlock || i == 0 {
			prev := c.currentAddr
			block := c.p.AddBlock(addr, &prev, nil)
			c.p.MaybeAddEdge(prev, addr)
			c.currentBlock = block
			c.needsNewBlock = false
		}
		c.currentAddr = addr
		c.haveAddr = true

		c.closeOpenITEs(addr)

		if c.interceptCallOrReturn(instr, addr) {
			continue
		}

		if err := c.processInstruction(addr, instr); err != nil {
			c.log.Warnw("rtl parse failure, skipping instruction", "addr", addr.String(), "err", err)
			continue
		}
	}
	c.p.GatherExits()
	c.p.Finish(instructionAddrs(instrs))
	return nil
}

func instructionAddrs(instrs []Instruction) []ir.MAddress {
	out := make([]ir.MAddress, len(instrs))
	for i, in := range instrs {
		out[i] = ir.NewAddress(in.Address)
	}
	return out
}

func (c *Constructor) interceptCallOrReturn(instr Instruction, addr ir.MAddress) bool {
	if instr.Optype == "ret" {
		c.p.AddReturn(addr, UncondEdge)
		c.needsNewBlock = true
		return true
	}
	if instr.Optype == "call" || instr.Optype == "ucall" {
		c.emitCall(instr, addr)
		return true
	}
	firstTok := strings.SplitN(instr.RTL, ",", 2)[0]
	if unsupportedTokens[firstTok] {
		c.emitUnsupportedAsCustom(instr, addr)
		return true
	}
	return false
}

func (c *Constructor) emitCall(instr Instruction, addr ir.MAddress) {
	target := c.p.AddComment(addr, ir.UnknownInfo(), instr.Opcode)
	vt := ir.ValueInfo{Width: ir.Known(ir.CanonicalWidth), Kind: ir.Scalar}
	callNode := c.p.addOp(ir.Opcode{Tag: ir.OpCall}, &addr, vt)
	c.g.OpUse(callNode, 0, target)

	if c.assumeCC {
		idx := 1
		for _, arg := range c.profile.IterArgs() {
			val := c.p.ReadRegister(&addr, arg.Name)
			c.g.OpUse(callNode, idx, val)
			idx++
		}
		mem := c.p.ReadVariable(&addr, c.profile.MemVar())
		c.g.OpUse(callNode, idx, mem)
		if retReg, ok := c.profile.ReturnReg(); ok {
			c.p.WriteRegister(&addr, retReg, callNode)
		}
	} else {
		idx := 1
		for _, w := range c.profile.IterWhole() {
			val := c.p.ReadRegister(&addr, w.Name)
			c.g.OpUse(callNode, idx, val)
			idx++
			clobber := c.p.AddComment(addr, ir.ScalarOf(0), w.Name+".clobber")
			c.p.WriteRegister(&addr, w.Name, clobber)
		}
		mem := c.p.ReadVariable(&addr, c.profile.MemVar())
		c.g.OpUse(callNode, idx, mem)
		memClobber := c.p.AddComment(addr, ir.ValueInfo{Width: ir.Known(ir.CanonicalWidth), Kind: ir.Reference}, "mem.clobber")
		c.p.WriteVariable(addr, c.profile.MemVar(), memClobber)
	}
	c.push(callNode, ir.CanonicalWidth)
}

func (c *Constructor) emitUnsupportedAsCustom(instr Instruction, addr ir.MAddress) {
	target := c.p.AddComment(addr, ir.UnknownInfo(), instr.Opcode)
	custom := c.p.addOp(ir.Opcode{Tag: ir.OpCustom, Name: instr.Optype}, &addr, ir.UnknownInfo())
	c.g.OpUse(custom, 0, target)
	c.push(custom, 0)
}

func (c *Constructor) push(v ValueRef, width uint16) {
	c.stack = append(c.stack, Intermediate{Value: v, Width: width})
}

func (c *Constructor) pushRegisterRef(name string) {
	c.stack = append(c.stack, Intermediate{Value: InvalidValue, RegisterName: name})
}

func (c *Constructor) pop() (Intermediate, bool) {
	if len(c.stack) == 0 {
		return Intermediate{}, false
	}
	top := c.stack[len(c.stack)-1]
	c.stack = c.stack[:len(c.stack)-1]
	return top, true
}

// materialize resolves a deferred register reference into a real
// value, reading the current PC-relative constant instead when
// replacePC is set and the name is the program counter alias.
func (c *Constructor) materialize(addr *ir.MAddress, size uint64, iv *Intermediate) ValueRef {
	if iv.Value != InvalidValue || iv.RegisterName == "" {
		return iv.Value
	}
	if c.replacePC {
		if pcName, ok := c.profile.PC(); ok && iv.RegisterName == pcName {
			vt := ir.ScalarOf(ir.CanonicalWidth)
			iv.Value = c.p.AddConst(addr, addr.Address+size, &vt)
			iv.Width = ir.CanonicalWidth
			return iv.Value
		}
	}
	iv.Value = c.p.ReadRegister(addr, iv.RegisterName)
	iv.Width = c.p.operandWidth(iv.Value)
	return iv.Value
}

// popValue pops and, if necessary, materializes a stack entry into a
// concrete value.
func (c *Constructor) popValue(addr *ir.MAddress, size uint64) (Intermediate, bool) {
	iv, ok := c.pop()
	if !ok {
		return iv, false
	}
	c.materialize(addr, size, &iv)
	return iv, true
}

// processInstruction tokenizes instr.RTL and drives process_op over
// each token in order, per §4.4 step 4.
func (c *Constructor) processInstruction(addr ir.MAddress, instr Instruction) error {
	tokens := strings.Split(instr.RTL, ",")
	for _, raw := range tokens {
		tok := strings.TrimSpace(raw)
		if tok == "" {
			continue
		}
		kind, n := classify(tok)
		if err := c.processOp(&addr, tok, kind, n, instr); err != nil {
			return err
		}
	}
	return nil
}

func (c *Constructor) processOp(addr *ir.MAddress, tok string, kind tokenKind, n int, instr Instruction) error {
	switch kind {
	case tokUnsupported:
		return errors.Errorf("unimplemented RTL construct: %s", tok)

	case tokNop:
		return nil

	case tokConstant:
		v, _ := parseConst(tok)
		vt := ir.ScalarOf(ir.CanonicalWidth)
		node := c.p.AddConst(addr, v, &vt)
		c.push(node, ir.CanonicalWidth)
		return nil

	case tokIntermediate:
		if n >= 0 && n < len(c.stack) {
			c.push(c.stack[n].Value, c.stack[n].Width)
		}
		return nil

	case tokRegister:
		c.pushRegisterRef(tok)
		return nil

	case tokCmp:
		rhs, _ := c.popValue(addr, instr.Size)
		lhs, _ := c.popValue(addr, instr.Size)
		width := maxWidth(lhs.Width, rhs.Width)
		lv, rv := lhs.Value, rhs.Value
		c.p.NarrowConstOperand(addr, &lv, &rv)
		node := c.p.addOp(ir.Opcode{Tag: ir.OpSub}, addr, ir.ScalarOf(width))
		c.g.OpUse(node, 0, lv)
		c.g.OpUse(node, 1, rv)
		c.push(node, width)
		return nil

	case tokLt, tokGt:
		rhs, _ := c.popValue(addr, instr.Size)
		lhs, _ := c.popValue(addr, instr.Size)
		tag := ir.OpLt
		if kind == tokGt {
			tag = ir.OpGt
		}
		node := c.p.addOp(ir.Opcode{Tag: tag}, addr, ir.ScalarOf(1))
		c.g.OpUse(node, 0, lhs.Value)
		c.g.OpUse(node, 1, rhs.Value)
		c.push(node, 1)
		return nil

	case tokLsl, tokLsr, tokRol, tokRor, tokAnd, tokOr, tokXor, tokAdd, tokSub, tokMul, tokDiv, tokMod:
		return c.processBinaryArith(addr, kind, instr.Size)

	case tokNot:
		operand, _ := c.popValue(addr, instr.Size)
		node := c.p.addOp(ir.Opcode{Tag: ir.OpNot}, addr, ir.ScalarOf(operand.Width))
		c.g.OpUse(node, 0, operand.Value)
		c.push(node, operand.Width)
		return nil

	case tokEq:
		return c.processAssignment(addr, instr.Size)

	case tokIf:
		return c.processIf(addr, instr.Size)

	case tokEndIf:
		return nil

	case tokPoke:
		return c.processPoke(addr, uint16(n*8), instr.Size)

	case tokPeek:
		return c.processPeek(addr, uint16(n*8), instr.Size)
	}
	return nil
}

func maxWidth(a, b uint16) uint16 {
	if a > b {
		return a
	}
	return b
}

func (c *Constructor) processBinaryArith(addr *ir.MAddress, kind tokenKind, size uint64) error {
	rhs, ok1 := c.popValue(addr, size)
	lhs, ok2 := c.popValue(addr, size)
	if !ok1 || !ok2 {
		return errors.New("binary opcode with missing operand")
	}
	var tag ir.OpTag
	switch kind {
	case tokLsl:
		tag = ir.OpLsl
	case tokLsr:
		tag = ir.OpLsr
	case tokRol:
		tag = ir.OpRol
	case tokRor:
		tag = ir.OpRor
	case tokAnd:
		tag = ir.OpAnd
	case tokOr:
		tag = ir.OpOr
	case tokXor:
		tag = ir.OpXor
	case tokAdd:
		tag = ir.OpAdd
	case tokSub:
		tag = ir.OpSub
	case tokMul:
		tag = ir.OpMul
	case tokDiv:
		tag = ir.OpDiv
	case tokMod:
		tag = ir.OpMod
	}

	lv, rv := lhs.Value, rhs.Value
	width := maxWidth(lhs.Width, rhs.Width)
	lIsConst := c.g.KindOf(lv) == NodeConst
	rIsConst := c.g.KindOf(rv) == NodeConst
	if lIsConst != rIsConst {
		c.p.NarrowConstOperand(addr, &lv, &rv)
	} else if lhs.Width != rhs.Width {
		if lhs.Width < rhs.Width {
			lv = c.zeroExtend(addr, lv, rhs.Width)
		} else {
			rv = c.zeroExtend(addr, rv, lhs.Width)
		}
	}

	node := c.p.addOp(ir.Opcode{Tag: tag}, addr, ir.ScalarOf(width))
	c.g.OpUse(node, 0, lv)
	c.g.OpUse(node, 1, rv)
	c.push(node, width)
	return nil
}

func (c *Constructor) zeroExtend(addr *ir.MAddress, v ValueRef, width uint16) ValueRef {
	node := c.p.addOp(ir.Opcode{Tag: ir.OpZeroExt, Width: width}, addr, ir.ScalarOf(width))
	c.g.OpUse(node, 0, v)
	return node
}

// processAssignment implements the Eq row of §4.4's token table: RTL
// postfix order pushes the source value, then the destination register
// name, then '='; the destination stays a deferred RegisterName (never
// read) so a write-only target like an uninitialized flag never forces
// a spurious read_register. Three destinations: an ordinary register
// (write_register), the PC alias (jump, direct or indirect) — memory
// destinations arrive only via the Poke token, never via bare '='.
func (c *Constructor) processAssignment(addr *ir.MAddress, size uint64) error {
	dest, ok1 := c.pop()
	src, ok2 := c.popValue(addr, size)
	if !ok1 || !ok2 {
		return errors.New("assignment with missing operand")
	}
	if dest.RegisterName == "" {
		return errors.New("assignment with non-register destination")
	}

	if pcName, ok := c.profile.PC(); ok && dest.RegisterName == pcName {
		return c.processJump(addr, src)
	}

	c.p.WriteRegister(addr, dest.RegisterName, src.Value)
	return nil
}

func (c *Constructor) processJump(addr *ir.MAddress, target Intermediate) error {
	if c.g.KindOf(target.Value) == NodeConst {
		constVal, _ := c.g.ConstantOf(target.Value)
		dest := ir.NewAddress(constVal)
		edge := UncondEdge
		c.p.AddBlock(dest, addr, &edge)
	} else {
		c.p.AddIndirectCF(target.Value, addr, UncondEdge)
	}
	c.needsNewBlock = true
	return nil
}

func (c *Constructor) processIf(addr *ir.MAddress, size uint64) error {
	selector, ok := c.popValue(addr, size)
	if !ok {
		return errors.New("if with missing selector")
	}
	iteNode := c.p.addOp(ir.Opcode{Tag: ir.OpITE}, addr, ir.UnknownInfo())
	c.g.OpUse(iteNode, 0, selector.Value)

	trueComment := c.p.AddComment(*addr, ir.UnknownInfo(), "T:"+addr.String())
	c.g.OpUse(iteNode, 1, trueComment)

	sourceBlock := c.blockAt(*addr)
	trueAddr := *addr
	trueAddr.Offset++
	trueBlock := c.p.newBlock(trueAddr)
	c.g.InsertControlEdge(sourceBlock, trueBlock, TrueEdge)

	c.iteStack = append(c.iteStack, iteFrame{Value: iteNode, Addr: *addr, Block: sourceBlock})
	c.currentBlock = trueBlock
	return nil
}

func (c *Constructor) processPoke(addr *ir.MAddress, width uint16, size uint64) error {
	value, ok1 := c.popValue(addr, size)
	target, ok2 := c.popValue(addr, size)
	if !ok1 || !ok2 {
		return errors.New("poke with missing operand")
	}
	mem := c.p.ReadVariable(addr, c.profile.MemVar())
	store := c.p.addOp(ir.Opcode{Tag: ir.OpStore}, addr, ir.ValueInfo{Width: ir.Known(ir.CanonicalWidth), Kind: ir.Reference})
	c.g.OpUse(store, 0, mem)
	c.g.OpUse(store, 1, target.Value)
	c.g.OpUse(store, 2, value.Value)
	c.p.WriteVariable(*addr, c.profile.MemVar(), store)
	return nil
}

func (c *Constructor) processPeek(addr *ir.MAddress, width uint16, size uint64) error {
	target, ok := c.popValue(addr, size)
	if !ok {
		return errors.New("peek with missing operand")
	}
	mem := c.p.ReadVariable(addr, c.profile.MemVar())
	load := c.p.addOp(ir.Opcode{Tag: ir.OpLoad}, addr, ir.ScalarOf(width))
	c.g.OpUse(load, 0, mem)
	c.g.OpUse(load, 1, target.Value)
	c.push(load, width)
	return nil
}
