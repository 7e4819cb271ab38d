package codegen

import (
	"fmt"

	"github.com/gencrypto/gencrypto/pkg/insn"
	"github.com/gencrypto/gencrypto/pkg/platform"
	"github.com/gencrypto/gencrypto/pkg/regs"
)

func ldOpFor(size regs.Size) insn.Op {
	switch size {
	case regs.Size8:
		return insn.LD8
	case regs.Size16:
		return insn.LD16
	case regs.Size32:
		return insn.LD32
	}
	return insn.LD64
}

func stOpFor(size regs.Size) insn.Op {
	switch size {
	case regs.Size8:
		return insn.ST8
	case regs.Size16:
		return insn.ST16
	case regs.Size32:
		return insn.ST32
	}
	return insn.ST64
}

// base returns the operand naming the low half of a pointer.
func (c *Code) base(name string) regs.Sized {
	p := c.PointerReg(name)
	if p.IsNull() {
		return regs.Sized{}
	}
	return p.Limb(0)
}

// access emits one load or store per limb through the named pointer.
// A plain offset advances by the limb width per limb and must satisfy
// the platform's displacement rule; the PostInc and PreDec sentinels
// step the pointer itself, with PreDec walking the limbs downward so
// the memory order matches PostInc.
func (c *Code) access(load bool, ptr string, r regs.Reg, offset insn.ImmValue) {
	if !c.body() {
		return
	}
	base := c.base(ptr)
	if base.IsNull() {
		return
	}
	step := insn.ImmValue(r.LimbSize() / 8)
	for j := 0; j < r.NumRegs(); j++ {
		i := j
		off := offset
		switch offset {
		case insn.PostInc, insn.PreDec:
			if offset == insn.PreDec {
				i = r.NumRegs() - 1 - j
			}
		default:
			off = offset + insn.ImmValue(i)*step
		}
		limb := r.Limb(i)
		op := stOpFor(limb.Size)
		if load {
			op = ldOpFor(limb.Size)
		}
		if !c.plat.ValidImm(op, off, limb.Size) {
			c.fail(fmt.Errorf("%w: %s displacement %d", platform.ErrInvalidImmediate, op, off))
			return
		}
		c.raw(insn.Mem(op, limb, base, off))
	}
}

// LdZ loads r from memory at the Z pointer plus offset.
func (c *Code) LdZ(r regs.Reg, offset insn.ImmValue) { c.access(true, "Z", r, offset) }

// StZ stores r to memory at the Z pointer plus offset.
func (c *Code) StZ(r regs.Reg, offset insn.ImmValue) { c.access(false, "Z", r, offset) }

// LdX loads r through the X pointer. X has no displacement form, so
// the offset is normally PostInc or PreDec.
func (c *Code) LdX(r regs.Reg, offset insn.ImmValue) { c.access(true, "X", r, offset) }

// StX stores r through the X pointer.
func (c *Code) StX(r regs.Reg, offset insn.ImmValue) { c.access(false, "X", r, offset) }

// LdY loads r from memory at the Y pointer plus offset.
func (c *Code) LdY(r regs.Reg, offset insn.ImmValue) { c.access(true, "Y", r, offset) }

// StY stores r to memory at the Y pointer plus offset.
func (c *Code) StY(r regs.Reg, offset insn.ImmValue) { c.access(false, "Y", r, offset) }

// LdLocal loads r from the local frame at the given byte offset.
func (c *Code) LdLocal(r regs.Reg, offset insn.ImmValue) { c.access(true, "Y", r, offset) }

// StLocal stores r to the local frame at the given byte offset.
func (c *Code) StLocal(r regs.Reg, offset insn.ImmValue) { c.access(false, "Y", r, offset) }

// xorThrough loads each memory limb into the scratch register and
// combines. With in set the result lands back in memory, computing
// [ptr+offset] ^= r; otherwise r ^= [ptr+offset].
func (c *Code) xorThrough(ptr string, r regs.Reg, offset insn.ImmValue, in bool) {
	if !c.body() {
		return
	}
	base := c.base(ptr)
	tmp := c.tempLimb()
	if base.IsNull() || tmp.IsNull() {
		return
	}
	step := insn.ImmValue(r.LimbSize() / 8)
	for i := 0; i < r.NumRegs(); i++ {
		off := offset + insn.ImmValue(i)*step
		limb := r.Limb(i)
		if !c.plat.ValidImm(ldOpFor(limb.Size), off, limb.Size) {
			c.fail(fmt.Errorf("%w: %s displacement %d", platform.ErrInvalidImmediate, ldOpFor(limb.Size), off))
			return
		}
		c.raw(insn.Mem(ldOpFor(limb.Size), tmp, base, off))
		if in {
			c.raw(insn.Binary(insn.XOR, tmp, tmp, limb, insn.None))
			c.raw(insn.Mem(stOpFor(limb.Size), tmp, base, off))
		} else {
			c.raw(insn.Binary(insn.XOR, limb, limb, tmp, insn.None))
		}
	}
}

// LdZXor computes r ^= [Z + offset].
func (c *Code) LdZXor(r regs.Reg, offset insn.ImmValue) { c.xorThrough("Z", r, offset, false) }

// LdZXorIn computes [Z + offset] ^= r.
func (c *Code) LdZXorIn(r regs.Reg, offset insn.ImmValue) { c.xorThrough("Z", r, offset, true) }

// LdLocalXor computes r ^= local[offset].
func (c *Code) LdLocalXor(r regs.Reg, offset insn.ImmValue) { c.xorThrough("Y", r, offset, false) }

// ptrAdjust moves the named pointer by delta bytes. On pointer-pair
// targets the adjustment is split into word-immediate steps.
func (c *Code) ptrAdjust(name string, delta int) {
	if !c.body() || delta == 0 {
		return
	}
	op := insn.ADDI
	if delta < 0 {
		op = insn.SUBI
		delta = -delta
	}
	if !c.plat.Is8Bit() {
		base := c.base(name)
		if base.IsNull() {
			return
		}
		var scratch regs.Reg
		regOp := insn.ADD
		if op == insn.SUBI {
			regOp = insn.SUB
		}
		c.binaryImmLimb(op, regOp, base, uint64(delta), &scratch, false)
		c.Release(&scratch)
		return
	}
	p := c.PointerReg(name)
	if p.IsNull() {
		return
	}
	wide, err := regs.NewSized(p.Limb(0).Basic, c.plat.AddressWordSize())
	if err != nil {
		c.fail(err)
		return
	}
	for delta > 0 {
		step := delta
		if !c.plat.ValidImm(op, uint64(step), wide.Size) {
			step = 63
		}
		c.append(c.plat.BinaryImm(op, wide, wide, uint64(step), false))
		delta -= step
	}
}

// AddPtrZ advances the Z pointer by n bytes.
func (c *Code) AddPtrZ(n int) { c.ptrAdjust("Z", n) }

// SubPtrZ moves the Z pointer back by n bytes.
func (c *Code) SubPtrZ(n int) { c.ptrAdjust("Z", -n) }

// AddPtrY advances the Y pointer by n bytes.
func (c *Code) AddPtrY(n int) { c.ptrAdjust("Y", n) }

// SubPtrY moves the Y pointer back by n bytes.
func (c *Code) SubPtrY(n int) { c.ptrAdjust("Y", -n) }

// AddPtrX advances the X pointer by n bytes.
func (c *Code) AddPtrX(n int) { c.ptrAdjust("X", n) }

// SubPtrX moves the X pointer back by n bytes.
func (c *Code) SubPtrX(n int) { c.ptrAdjust("X", -n) }
