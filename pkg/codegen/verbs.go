package codegen

import (
	"fmt"

	"github.com/gencrypto/gencrypto/pkg/insn"
	"github.com/gencrypto/gencrypto/pkg/platform"
	"github.com/gencrypto/gencrypto/pkg/regs"
)

func limbMask(bits uint) uint64 {
	if bits >= 64 {
		return ^uint64(0)
	}
	return (uint64(1) << bits) - 1
}

// movLimb emits a single register move, skipping the no-op case.
func (c *Code) movLimb(dest, src regs.Sized) {
	if dest.IsNull() || src.IsNull() || dest.Equal(src) {
		return
	}
	c.raw(insn.Unary(insn.MOV, dest, src, insn.None))
}

// moveImmLimb loads one limb with an immediate, routing through an
// immediate-capable scratch register when the destination cannot take
// the literal directly. The scratch is allocated lazily into *scratch
// so multi-limb callers reuse it; they release it afterwards.
func (c *Code) moveImmLimb(dest regs.Sized, value uint64, scratch *regs.Reg) {
	list, err := c.plat.MoveImm(dest, value)
	if err == nil {
		c.append(list, nil)
		return
	}
	if scratch == nil {
		c.fail(err)
		return
	}
	if scratch.IsNull() {
		*scratch = c.Allocate(uint(dest.Size), regs.Data|regs.ImmCapable)
		if scratch.IsNull() {
			return
		}
	}
	s := scratch.Limb(0)
	list, err = c.plat.MoveImm(s, value)
	if err != nil {
		c.fail(err)
		return
	}
	c.append(list, nil)
	c.movLimb(dest, s)
}

// binaryImmLimb applies "dest op= value" on one limb, falling back to
// a scratch register plus the register form when the platform rejects
// the immediate encoding.
func (c *Code) binaryImmLimb(immOp, regOp insn.Op, dest regs.Sized, value uint64,
	scratch *regs.Reg, setc bool) {
	opt := insn.None
	if setc {
		opt = insn.SetC
	}
	list, err := c.plat.BinaryImm(immOp, dest, dest, value, setc)
	if err == nil {
		c.append(list, nil)
		return
	}
	if scratch.IsNull() {
		*scratch = c.Allocate(uint(dest.Size), regs.Data|regs.ImmCapable)
		if scratch.IsNull() {
			return
		}
	}
	s := scratch.Limb(0)
	list, err = c.plat.MoveImm(s, value)
	if err != nil {
		c.fail(err)
		return
	}
	c.append(list, nil)
	c.raw(insn.Binary(regOp, dest, dest, s, opt))
}

// Move copies src into dst limb by limb, zero-extending when dst is
// wider.
func (c *Code) Move(dst, src regs.Reg) {
	if !c.body() {
		return
	}
	n := src.NumRegs()
	if dst.NumRegs() < n {
		n = dst.NumRegs()
	}
	for i := 0; i < n; i++ {
		c.movLimb(dst.Limb(i), src.Limb(i))
	}
	var scratch regs.Reg
	for i := n; i < dst.NumRegs(); i++ {
		c.moveImmLimb(dst.Limb(i), 0, &scratch)
	}
	c.Release(&scratch)
}

// MoveImm loads a literal into dst, one limb at a time.
func (c *Code) MoveImm(dst regs.Reg, value uint64) {
	if !c.body() {
		return
	}
	limb := dst.LimbSize()
	var scratch regs.Reg
	for i := 0; i < dst.NumRegs(); i++ {
		v := (value >> (uint(i) * limb)) & limbMask(limb)
		c.moveImmLimb(dst.Limb(i), v, &scratch)
	}
	c.Release(&scratch)
}

// cascade lowers a carry-chained arithmetic operation across limbs:
// the first limb uses the plain opcode, later limbs the with-carry
// form. A narrower src continues through the zero register so the
// carry reaches the top limb.
func (c *Code) cascade(first, rest insn.Op, dst, src regs.Reg) {
	if !c.body() {
		return
	}
	op := first
	for i := 0; i < dst.NumRegs(); i++ {
		s := c.zeroLimb()
		if i < src.NumRegs() {
			s = src.Limb(i)
		}
		c.append(c.plat.Binary(op, dst.Limb(i), dst.Limb(i), s, false))
		op = rest
	}
}

// parallel lowers a carry-free logical operation limb by limb. A
// narrower src leaves the upper limbs of dst untouched.
func (c *Code) parallel(op insn.Op, dst, src regs.Reg) {
	if !c.body() {
		return
	}
	n := dst.NumRegs()
	if src.NumRegs() < n {
		n = src.NumRegs()
	}
	for i := 0; i < n; i++ {
		c.append(c.plat.Binary(op, dst.Limb(i), dst.Limb(i), src.Limb(i), false))
	}
}

// Add computes dst += src with the carry chained across limbs.
func (c *Code) Add(dst, src regs.Reg) { c.cascade(insn.ADD, insn.ADC, dst, src) }

// Sub computes dst -= src with the borrow chained across limbs.
func (c *Code) Sub(dst, src regs.Reg) { c.cascade(insn.SUB, insn.SBC, dst, src) }

// LogXor computes dst ^= src limb-parallel.
func (c *Code) LogXor(dst, src regs.Reg) { c.parallel(insn.XOR, dst, src) }

// LogAnd computes dst &= src limb-parallel.
func (c *Code) LogAnd(dst, src regs.Reg) { c.parallel(insn.AND, dst, src) }

// LogOr computes dst |= src limb-parallel.
func (c *Code) LogOr(dst, src regs.Reg) { c.parallel(insn.OR, dst, src) }

// LogNot complements every limb of r in place.
func (c *Code) LogNot(r regs.Reg) {
	if !c.body() {
		return
	}
	for i := 0; i < r.NumRegs(); i++ {
		c.append(c.plat.Unary(insn.NOT, r.Limb(i), r.Limb(i)))
	}
}

// LogAndNot computes dst &= ^src without disturbing src, using the
// platform's bit-clear form when it has one and the scratch register
// otherwise.
func (c *Code) LogAndNot(dst, src regs.Reg) {
	if !c.body() {
		return
	}
	n := dst.NumRegs()
	if src.NumRegs() < n {
		n = src.NumRegs()
	}
	if c.plat.HasFeature(platform.BitClear) {
		for i := 0; i < n; i++ {
			c.append(c.plat.Binary(insn.BIC, dst.Limb(i), dst.Limb(i), src.Limb(i), false))
		}
		return
	}
	tmp := c.tempLimb()
	for i := 0; i < n; i++ {
		c.movLimb(tmp, src.Limb(i))
		c.raw(insn.Unary(insn.NOT, tmp, tmp, insn.None))
		c.append(c.plat.Binary(insn.AND, dst.Limb(i), dst.Limb(i), tmp, false))
	}
}

// subChain lowers dst -= value as a subtract-immediate cascade. Every
// limb is visited so the borrow propagates to the top.
func (c *Code) subChain(dst regs.Reg, value uint64) {
	limb := dst.LimbSize()
	var scratch regs.Reg
	immOp, regOp := insn.SUBI, insn.SUB
	for i := 0; i < dst.NumRegs(); i++ {
		v := (value >> (uint(i) * limb)) & limbMask(limb)
		c.binaryImmLimb(immOp, regOp, dst.Limb(i), v, &scratch, true)
		immOp, regOp = insn.SBCI, insn.SBC
	}
	c.Release(&scratch)
}

// AddImm computes dst += value. On subtract-immediate-only targets the
// negated value travels down the borrow chain instead.
func (c *Code) AddImm(dst regs.Reg, value uint64) {
	if !c.body() {
		return
	}
	if !c.plat.Is8Bit() && dst.NumRegs() == 1 {
		var scratch regs.Reg
		c.binaryImmLimb(insn.ADDI, insn.ADD, dst.Limb(0), value, &scratch, false)
		c.Release(&scratch)
		return
	}
	c.subChain(dst, (-value)&limbMask(dst.Size()))
}

// SubImm computes dst -= value.
func (c *Code) SubImm(dst regs.Reg, value uint64) {
	if !c.body() {
		return
	}
	if !c.plat.Is8Bit() && dst.NumRegs() == 1 {
		var scratch regs.Reg
		c.binaryImmLimb(insn.SUBI, insn.SUB, dst.Limb(0), value, &scratch, false)
		c.Release(&scratch)
		return
	}
	c.subChain(dst, value&limbMask(dst.Size()))
}

// Dec decrements a counter register, leaving the zero flag set when it
// reaches zero so a Brne can close the loop.
func (c *Code) Dec(r regs.Reg) { c.SubImm(r, 1) }

// immParallel applies a limb-parallel logical immediate with the
// identity and annihilator shortcuts.
func (c *Code) immParallel(immOp, regOp insn.Op, dst regs.Reg, value uint64) {
	if !c.body() {
		return
	}
	limb := dst.LimbSize()
	var scratch regs.Reg
	for i := 0; i < dst.NumRegs(); i++ {
		v := (value >> (uint(i) * limb)) & limbMask(limb)
		switch {
		case immOp == insn.XORI && v == 0,
			immOp == insn.ORI && v == 0,
			immOp == insn.ANDI && v == limbMask(limb):
			// Identity on this limb.
		case immOp == insn.XORI && v == limbMask(limb):
			c.append(c.plat.Unary(insn.NOT, dst.Limb(i), dst.Limb(i)))
		case immOp == insn.ANDI && v == 0:
			c.moveImmLimb(dst.Limb(i), 0, &scratch)
		default:
			c.binaryImmLimb(immOp, regOp, dst.Limb(i), v, &scratch, false)
		}
	}
	c.Release(&scratch)
}

// LogXorImm computes dst ^= value, skipping zero limbs.
func (c *Code) LogXorImm(dst regs.Reg, value uint64) {
	c.immParallel(insn.XORI, insn.XOR, dst, value)
}

// LogAndImm computes dst &= value.
func (c *Code) LogAndImm(dst regs.Reg, value uint64) {
	c.immParallel(insn.ANDI, insn.AND, dst, value)
}

// LogOrImm computes dst |= value.
func (c *Code) LogOrImm(dst regs.Reg, value uint64) {
	c.immParallel(insn.ORI, insn.OR, dst, value)
}

// Lsl shifts r left by the given bit count, spilling into higher limbs
// and dropping bits off the top.
func (c *Code) Lsl(r regs.Reg, bits uint) {
	if !c.body() || bits == 0 {
		return
	}
	limb := r.LimbSize()
	k := r.NumRegs()
	if k == 1 && !c.plat.Is8Bit() {
		var scratch regs.Reg
		c.binaryImmLimb(insn.LSLI, insn.LSL, r.Limb(0), uint64(bits), &scratch, false)
		c.Release(&scratch)
		return
	}
	var scratch regs.Reg
	for bits >= limb {
		for i := k - 1; i > 0; i-- {
			c.movLimb(r.Limb(i), r.Limb(i-1))
		}
		c.moveImmLimb(r.Limb(0), 0, &scratch)
		bits -= limb
	}
	c.Release(&scratch)
	for ; bits > 0; bits-- {
		c.raw(insn.Unary(insn.LSL, r.Limb(0), r.Limb(0), insn.None))
		for i := 1; i < k; i++ {
			c.raw(insn.Unary(insn.ROL, r.Limb(i), r.Limb(i), insn.None))
		}
	}
}

// Lsr shifts r right by the given bit count.
func (c *Code) Lsr(r regs.Reg, bits uint) {
	if !c.body() || bits == 0 {
		return
	}
	limb := r.LimbSize()
	k := r.NumRegs()
	if k == 1 && !c.plat.Is8Bit() {
		var scratch regs.Reg
		c.binaryImmLimb(insn.LSRI, insn.LSR, r.Limb(0), uint64(bits), &scratch, false)
		c.Release(&scratch)
		return
	}
	var scratch regs.Reg
	for bits >= limb {
		for i := 0; i < k-1; i++ {
			c.movLimb(r.Limb(i), r.Limb(i+1))
		}
		c.moveImmLimb(r.Limb(k-1), 0, &scratch)
		bits -= limb
	}
	c.Release(&scratch)
	for ; bits > 0; bits-- {
		c.raw(insn.Unary(insn.LSR, r.Limb(k-1), r.Limb(k-1), insn.None))
		for i := k - 2; i >= 0; i-- {
			c.raw(insn.Unary(insn.ROR, r.Limb(i), r.Limb(i), insn.None))
		}
	}
}

// Compare lowers an unsigned comparison of r against a literal,
// propagating the borrow across limbs so the branch conditions read
// the full-width ordering.
func (c *Code) Compare(r regs.Reg, value uint64) {
	if !c.body() {
		return
	}
	limb := r.LimbSize()
	var scratch regs.Reg
	for i := 0; i < r.NumRegs(); i++ {
		v := (value >> (uint(i) * limb)) & limbMask(limb)
		s := r.Limb(i)
		opt := insn.None
		if i > 0 {
			opt = insn.SetC
		}
		switch {
		case i > 0 && v == 0:
			c.raw(insn.Insn{
				Op: insn.CMP, Opt: opt, Src1: s, Src2: c.zeroLimb(),
				Fields: insn.FieldSrc1 | insn.FieldSrc2,
			})
		case i == 0 && c.compareDirect(s, v):
			c.raw(insn.Insn{
				Op: insn.CMPI, Src1: s, Imm: v,
				Fields: insn.FieldSrc1 | insn.FieldImm,
			})
		default:
			if scratch.IsNull() {
				scratch = c.Allocate(limb, regs.Data|regs.ImmCapable)
				if scratch.IsNull() {
					return
				}
			}
			c.moveImmLimb(scratch.Limb(0), v, nil)
			c.raw(insn.Insn{
				Op: insn.CMP, Opt: opt, Src1: s, Src2: scratch.Limb(0),
				Fields: insn.FieldSrc1 | insn.FieldSrc2,
			})
		}
	}
	c.Release(&scratch)
}

func (c *Code) compareDirect(s regs.Sized, value uint64) bool {
	if !c.plat.ValidImm(insn.CMPI, value, s.Size) {
		return false
	}
	if c.plat.Is8Bit() && !s.Basic.HasFlag(regs.ImmCapable) {
		return false
	}
	return true
}

// CompareAndLoop compares r with a literal and branches back to the
// loop head while they differ.
func (c *Code) CompareAndLoop(r regs.Reg, value uint64, top *Label) {
	c.Compare(r, value)
	c.Brne(top)
}

func (c *Code) labelOf(l *Label) Label {
	if l == nil {
		c.fail(fmt.Errorf("%w: nil label", ErrInvalidArgument))
		return 0
	}
	if *l == 0 {
		c.nlabels++
		*l = c.nlabels
	}
	return *l
}

// Label defines a branch target at the current buffer position. Each
// label may be defined exactly once.
func (c *Code) Label(l *Label) {
	if !c.body() {
		return
	}
	id := c.labelOf(l)
	if c.defined[id] {
		c.fail(fmt.Errorf("%w: label %d defined twice", ErrInvalidArgument, id))
		return
	}
	c.defined[id] = true
	c.labelAt[id] = len(c.insns)
	c.raw(insn.LabelMark(id))
}

func (c *Code) branch(op insn.Op, l *Label) {
	if !c.body() {
		return
	}
	id := c.labelOf(l)
	if id == 0 {
		return
	}
	c.referred[id] = true
	c.raw(insn.Branch(op, id))
}

// Jmp branches unconditionally.
func (c *Code) Jmp(l *Label) { c.branch(insn.JMP, l) }

// Call invokes a subroutine emitted as a label inside the function.
func (c *Code) Call(l *Label) { c.branch(insn.CALL, l) }

// Breq branches when the zero flag is set.
func (c *Code) Breq(l *Label) { c.branch(insn.BREQ, l) }

// Brne branches when the zero flag is clear.
func (c *Code) Brne(l *Label) { c.branch(insn.BRNE, l) }

// Brcc branches when the carry flag is clear.
func (c *Code) Brcc(l *Label) { c.branch(insn.BRCC, l) }

// Brcs branches when the carry flag is set.
func (c *Code) Brcs(l *Label) { c.branch(insn.BRCS, l) }

// Brlo branches on unsigned less-than after a compare.
func (c *Code) Brlo(l *Label) { c.branch(insn.BRLTU, l) }

// Brsh branches on unsigned greater-or-equal after a compare.
func (c *Code) Brsh(l *Label) { c.branch(insn.BRGEU, l) }

// Ret returns from the current subroutine or function.
func (c *Code) Ret() {
	if !c.body() {
		return
	}
	c.raw(insn.Bare(insn.RET))
}

// Push saves the limbs of r on the stack, least significant first.
func (c *Code) Push(r regs.Reg) {
	if !c.body() {
		return
	}
	for i := 0; i < r.NumRegs(); i++ {
		c.raw(insn.Insn{Op: insn.PUSH, Dest: r.Limb(i), Fields: insn.FieldDest})
	}
}

// Pop restores the limbs of r from the stack, inverting Push.
func (c *Code) Pop(r regs.Reg) {
	if !c.body() {
		return
	}
	for i := r.NumRegs() - 1; i >= 0; i-- {
		c.raw(insn.Insn{Op: insn.POP, Dest: r.Limb(i), Fields: insn.FieldDest})
	}
}

// OneReg appends a raw in-place unary opcode on a single limb.
func (c *Code) OneReg(op insn.Op, r regs.Sized) {
	if !c.body() {
		return
	}
	c.raw(insn.Unary(op, r, r, insn.None))
}

// TwoReg appends a raw two-register opcode: dest op= src.
func (c *Code) TwoReg(op insn.Op, dest, src regs.Sized) {
	if !c.body() {
		return
	}
	if op == insn.MOV {
		c.movLimb(dest, src)
		return
	}
	c.raw(insn.Binary(op, dest, dest, src, insn.None))
}
