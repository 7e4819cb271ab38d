package codegen

import (
	"fmt"

	"github.com/gencrypto/gencrypto/pkg/insn"
	"github.com/gencrypto/gencrypto/pkg/regs"
)

// S-box tables are embedded after the function body and read through
// the table pointer (Z on the 8-bit target, which is also how the
// program-memory load addresses them). Staking the pointer saves its
// current value on the stack; SBoxCleanup restores it. The emitter
// aligns each table so a lookup only replaces the low pointer byte.

// SBoxAdd embeds a table in the function and returns its index.
func (c *Code) SBoxAdd(table []byte) uint64 {
	if c.err != nil || c.st == stateFinalised {
		return 0
	}
	data := make([]byte, len(table))
	copy(data, table)
	c.tables = append(c.tables, data)
	return uint64(len(c.tables) - 1)
}

// SBoxSetup saves the table pointer and stakes it at the table base.
func (c *Code) SBoxSetup(index uint64) {
	if !c.body() {
		return
	}
	if index >= uint64(len(c.tables)) {
		c.fail(fmt.Errorf("%w: no table %d", ErrInvalidArgument, index))
		return
	}
	if c.sboxActive {
		c.fail(fmt.Errorf("%w: table pointer already staked", ErrInvalidArgument))
		return
	}
	c.Push(c.PointerReg("Z"))
	base := c.base("Z")
	if base.IsNull() {
		return
	}
	c.raw(insn.Insn{
		Op:     insn.LDLabel,
		Dest:   base,
		Imm:    index,
		Fields: insn.FieldDest | insn.FieldImm,
	})
	c.sboxActive = true
}

// SBoxSetup2 stakes the table pointer at the table base plus a
// register offset, for round-indexed constant tables.
func (c *Code) SBoxSetup2(index uint64, offset regs.Reg) {
	c.SBoxSetup(index)
	if !c.body() || offset.IsNull() {
		return
	}
	p := c.PointerReg("Z")
	if p.IsNull() {
		return
	}
	c.raw(insn.Binary(insn.ADD, p.Limb(0), p.Limb(0), offset.Limb(0), insn.None))
	zero := c.zeroLimb()
	for i := 1; i < p.NumRegs(); i++ {
		s := zero
		if i < offset.NumRegs() {
			s = offset.Limb(i)
		}
		c.raw(insn.Binary(insn.ADC, p.Limb(i), p.Limb(i), s, insn.None))
	}
}

// SBoxAdjustByOffset advances the staked table pointer by n bytes.
func (c *Code) SBoxAdjustByOffset(n int) {
	if !c.sboxCheck() {
		return
	}
	c.AddPtrZ(n)
}

// SBoxLookup replaces each byte of dst with table[src byte]. dst and
// src may be the same register.
func (c *Code) SBoxLookup(dst, src regs.Reg) {
	if !c.sboxCheck() {
		return
	}
	base := c.base("Z")
	if base.IsNull() {
		return
	}
	n := dst.NumRegs()
	if src.NumRegs() < n {
		n = src.NumRegs()
	}
	low, err := regs.NewSized(base.Basic, c.plat.NativeWordSize())
	if err != nil {
		c.fail(err)
		return
	}
	for i := 0; i < n; i++ {
		c.movLimb(low, src.Limb(i))
		c.raw(insn.Mem(insn.LDPM, dst.Limb(i), base, 0))
	}
}

// SBoxLoadInc fills dst from consecutive table bytes, stepping the
// staked pointer.
func (c *Code) SBoxLoadInc(dst regs.Reg) {
	if !c.sboxCheck() {
		return
	}
	base := c.base("Z")
	if base.IsNull() {
		return
	}
	for i := 0; i < dst.NumRegs(); i++ {
		c.raw(insn.Mem(insn.LDPM, dst.Limb(i), base, insn.PostInc))
	}
}

// SBoxCleanup restores the saved table pointer and releases the stake.
func (c *Code) SBoxCleanup() {
	if !c.sboxCheck() {
		return
	}
	c.Pop(c.PointerReg("Z"))
	c.sboxActive = false
}

func (c *Code) sboxCheck() bool {
	if !c.body() {
		return false
	}
	if !c.sboxActive {
		c.fail(fmt.Errorf("%w: table pointer not staked", ErrInvalidArgument))
		return false
	}
	return true
}
