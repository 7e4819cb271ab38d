package codegen

import (
	"github.com/gencrypto/gencrypto/pkg/insn"
	"github.com/gencrypto/gencrypto/pkg/regs"
)

// Rotations decompose into a limb-count permutation plus a sub-limb
// bit rotation. The permutation moves data through the scratch
// register one cycle at a time; callers that can absorb a pure
// renumbering use Shuffle views instead and skip the moves entirely.
// The sub-limb part is canonicalised into the window (-L/2, L/2] so a
// rotate by L-1 costs one counter-rotation instead of L-1 steps, and a
// 4-bit rotate of a single byte collapses to the half-width swap.

// Rol rotates r left by the given bit count.
func (c *Code) Rol(r regs.Reg, bits uint) { c.rotate(r, int(bits), true) }

// Ror rotates r right by the given bit count.
func (c *Code) Ror(r regs.Reg, bits uint) { c.rotate(r, int(bits), false) }

func (c *Code) rotate(r regs.Reg, n int, left bool) {
	if !c.body() {
		return
	}
	total := int(r.Size())
	if total == 0 {
		return
	}
	if !left {
		n = total - n
	}
	n = ((n % total) + total) % total
	if n == 0 {
		return
	}
	limb := int(r.LimbSize())
	k := r.NumRegs()
	if k == 1 && !c.plat.Is8Bit() {
		// Native rotate-right immediate.
		var scratch regs.Reg
		c.binaryImmLimb(insn.RORI, insn.ROR, r.Limb(0), uint64(total-n), &scratch, false)
		c.Release(&scratch)
		return
	}
	limbs := n / limb
	sub := n % limb
	if sub > limb/2 {
		limbs++
		sub -= limb
	}
	limbs %= k
	if k == 1 && limb == 8 && (sub == 4 || sub == -4) {
		c.raw(insn.Unary(insn.SWAP, r.Limb(0), r.Limb(0), insn.None))
		sub = 0
	}
	c.limbRotateLeft(r, limbs)
	for ; sub > 0; sub-- {
		c.rol1(r)
	}
	for ; sub < 0; sub++ {
		c.ror1(r)
	}
}

// limbRotateLeft permutes the limb contents left by b positions,
// moving each permutation cycle through the scratch register.
func (c *Code) limbRotateLeft(r regs.Reg, b int) {
	k := r.NumRegs()
	b %= k
	if b == 0 {
		return
	}
	tmp := c.tempLimb()
	if tmp.IsNull() {
		return
	}
	visited := make([]bool, k)
	for s := 0; s < k; s++ {
		if visited[s] {
			continue
		}
		c.movLimb(tmp, r.Limb(s))
		i := s
		for {
			visited[i] = true
			j := (i - b + k) % k
			if j == s {
				c.movLimb(r.Limb(i), tmp)
				break
			}
			c.movLimb(r.Limb(i), r.Limb(j))
			i = j
		}
	}
}

// rol1 rotates the whole register left one bit: shift out of the top,
// then feed the carry back into bit zero.
func (c *Code) rol1(r regs.Reg) {
	k := r.NumRegs()
	c.raw(insn.Unary(insn.LSL, r.Limb(0), r.Limb(0), insn.None))
	for i := 1; i < k; i++ {
		c.raw(insn.Unary(insn.ROL, r.Limb(i), r.Limb(i), insn.None))
	}
	zero := c.zeroLimb()
	if zero.IsNull() {
		return
	}
	c.raw(insn.Binary(insn.ADC, r.Limb(0), r.Limb(0), zero, insn.None))
}

// ror1 rotates the whole register right one bit. Bit zero is staged
// into the carry through the scratch register, then the rotate chain
// walks down from the top limb.
func (c *Code) ror1(r regs.Reg) {
	tmp := c.tempLimb()
	if tmp.IsNull() {
		return
	}
	c.movLimb(tmp, r.Limb(0))
	c.raw(insn.Unary(insn.LSR, tmp, tmp, insn.None))
	for i := r.NumRegs() - 1; i >= 0; i-- {
		c.raw(insn.Unary(insn.ROR, r.Limb(i), r.Limb(i), insn.None))
	}
}
