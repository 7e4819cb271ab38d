package keccak

import (
	"github.com/gencrypto/gencrypto/pkg/codegen"
	"github.com/gencrypto/gencrypto/pkg/interp"
	"github.com/gencrypto/gencrypto/pkg/platform"
	"github.com/gencrypto/gencrypto/pkg/registry"
	"github.com/gencrypto/gencrypto/pkg/regs"
	"github.com/gencrypto/gencrypto/pkg/testvec"
)

var rc1600 = [24]uint64{
	0x0000000000000001, 0x0000000000008082, 0x800000000000808A,
	0x8000000080008000, 0x000000000000808B, 0x0000000080000001,
	0x8000000080008081, 0x8000000000008009, 0x000000000000008A,
	0x0000000000000088, 0x0000000080008009, 0x000000008000000A,
	0x000000008000808B, 0x800000000000008B, 0x8000000000008089,
	0x8000000000008003, 0x8000000000008002, 0x8000000000000080,
	0x000000000000800A, 0x800000008000000A, 0x8000000080008081,
	0x8000000000008080, 0x0000000080000001, 0x8000000080008008,
}

func posn1600(row, col int) int { return row*40 + col*8 }

func generate1600() (*codegen.Code, error) {
	c := codegen.New(platform.NewAVR())

	// 40 bytes of locals hold the five theta columns.
	c.ProloguePermutation("keccakp_1600_permute", 40)

	// Only A(0, 0) stays in registers between rounds; everything else
	// moves through the state one lane at a time.
	A00 := c.AllocateReg(8)

	// Displacement addressing only reaches 63 bytes, so Z slides across
	// the 200-byte state in 64-byte aligned windows.
	zOffset := 0
	adjustTo := func(posn int) {
		if posn != zOffset {
			c.AddPtrZ(posn - zOffset)
		}
		zOffset = posn
	}
	adjust := func(posn int) {
		next := zOffset
		if posn < zOffset || posn >= zOffset+64 {
			next = posn &^ 63
		}
		adjustTo(next)
	}

	shuffleLeft := func(in regs.Reg, bytes int) regs.Reg {
		bytes %= 8
		if bytes == 0 {
			return in
		}
		order := make([]int, 8)
		for i := range order {
			order[i] = (i - bytes + 8) % 8
		}
		return c.Shuffle(in, order...)
	}

	rhoPi := func(out, rotate, in int) {
		temp := c.AllocateReg(8)
		adjust(in)
		c.LdZ(temp, uint64(in-zOffset))
		shifted := temp
		if shift := rotate % 8; shift != 0 {
			if shift <= 4 {
				c.Rol(temp, uint(shift))
				shifted = shuffleLeft(temp, rotate/8)
			} else {
				c.Ror(temp, uint(8-shift))
				shifted = shuffleLeft(temp, (rotate+8)/8)
			}
		} else {
			shifted = shuffleLeft(temp, rotate/8)
		}
		adjust(out)
		c.StZ(shifted, uint64(out-zOffset))
		c.Release(&temp)
	}

	var sub, end, leapfrog codegen.Label
	c.LdZ(A00, uint64(posn1600(0, 0)))
	for round := 0; round < 24; round++ {
		c.Call(&sub)
		c.LdZ(A00, uint64(posn1600(0, 0)))
		c.LogXorImm(A00, rc1600[round])
	}
	c.Jmp(&leapfrog)

	// Step mapping theta: the five column XORs land in the local frame.
	c.Label(&sub)
	C := c.AllocateReg(8)
	for col := 0; col < 5; col++ {
		adjustTo(posn1600(0, col))
		if col == 0 {
			c.Move(C, A00)
		} else {
			c.LdZ(C, uint64(posn1600(0, col)-zOffset))
		}
		c.LdZXor(C, uint64(posn1600(1, col)-zOffset))
		adjustTo(posn1600(2, col))
		c.LdZXor(C, uint64(posn1600(2, col)-zOffset))
		c.LdZXor(C, uint64(posn1600(3, col)-zOffset))
		adjustTo(posn1600(4, col))
		c.LdZXor(C, uint64(posn1600(4, col)-zOffset))
		c.StLocal(C, uint64(col*8))
	}
	for col := 0; col < 5; col++ {
		c.LdLocal(C, uint64(((col+1)%5)*8))
		c.Rol(C, 1)
		c.LdLocalXor(C, uint64(((col+4)%5)*8))
		for row := 0; row < 5; row++ {
			if col == 0 && row == 0 {
				c.LogXor(A00, C)
				continue
			}
			adjust(posn1600(row, col))
			c.LdZXorIn(C, uint64(posn1600(row, col)-zOffset))
		}
	}

	// A leapfrog so the relative jump to the end stays in range.
	var skip, leapfrog2 codegen.Label
	c.Jmp(&skip)
	c.Label(&leapfrog)
	c.Jmp(&leapfrog2)
	c.Label(&skip)

	// Step mappings rho and pi combined into a single step.
	adjust(posn1600(0, 0))
	c.StZ(A00, uint64(posn1600(0, 0)-zOffset))
	c.LdZ(C, uint64(posn1600(0, 1)-zOffset))
	rhoPi(posn1600(0, 1), 44, posn1600(1, 1))
	rhoPi(posn1600(1, 1), 20, posn1600(1, 4))
	rhoPi(posn1600(1, 4), 61, posn1600(4, 2))
	rhoPi(posn1600(4, 2), 39, posn1600(2, 4))
	rhoPi(posn1600(2, 4), 18, posn1600(4, 0))
	rhoPi(posn1600(4, 0), 62, posn1600(0, 2))
	rhoPi(posn1600(0, 2), 43, posn1600(2, 2))
	rhoPi(posn1600(2, 2), 25, posn1600(2, 3))
	rhoPi(posn1600(2, 3), 8, posn1600(3, 4))
	rhoPi(posn1600(3, 4), 56, posn1600(4, 3))
	rhoPi(posn1600(4, 3), 41, posn1600(3, 0))
	rhoPi(posn1600(3, 0), 27, posn1600(0, 4))
	rhoPi(posn1600(0, 4), 14, posn1600(4, 4))
	rhoPi(posn1600(4, 4), 2, posn1600(4, 1))
	rhoPi(posn1600(4, 1), 55, posn1600(1, 3))
	rhoPi(posn1600(1, 3), 45, posn1600(3, 1))
	rhoPi(posn1600(3, 1), 36, posn1600(1, 0))
	rhoPi(posn1600(1, 0), 28, posn1600(0, 3))
	rhoPi(posn1600(0, 3), 21, posn1600(3, 3))
	rhoPi(posn1600(3, 3), 15, posn1600(3, 2))
	rhoPi(posn1600(3, 2), 10, posn1600(2, 1))
	rhoPi(posn1600(2, 1), 6, posn1600(1, 2))
	rhoPi(posn1600(1, 2), 3, posn1600(2, 0))
	c.Rol(C, 1)
	adjust(posn1600(2, 0))
	c.StZ(C, uint64(posn1600(2, 0)-zOffset))
	c.Release(&C)

	var skip2 codegen.Label
	c.Jmp(&skip2)
	c.Label(&leapfrog2)
	c.Jmp(&end)
	c.Label(&skip2)

	// Step mapping chi, interleaved: one byte of each of the five
	// words in a row at a time.
	B0 := c.AllocateReg(1)
	B1 := c.AllocateReg(1)
	B2 := c.AllocateReg(1)
	B3 := c.AllocateReg(1)
	B4 := c.AllocateReg(1)
	out := c.AllocateReg(1)
	chi := func(notB, andB, xorB regs.Reg, offset int) {
		c.Move(out, notB)
		c.LogNot(out)
		c.LogAnd(out, andB)
		c.LogXor(out, xorB)
		c.StZ(out, uint64(offset))
	}
	for row := 0; row < 5; row++ {
		adjustTo(posn1600(row, 0))
		for byteIdx := 0; byteIdx < 8; byteIdx++ {
			c.LdZ(B0, uint64(byteIdx))
			c.LdZ(B1, uint64(byteIdx+8))
			c.LdZ(B2, uint64(byteIdx+16))
			c.LdZ(B3, uint64(byteIdx+24))
			c.LdZ(B4, uint64(byteIdx+32))
			chi(B1, B2, B0, byteIdx)
			chi(B2, B3, B1, byteIdx+8)
			chi(B3, B4, B2, byteIdx+16)
			chi(B4, B0, B3, byteIdx+24)
			// The last output can clobber B0 directly.
			c.LogNot(B0)
			c.LogAnd(B0, B1)
			c.LogXor(B0, B4)
			c.StZ(B0, uint64(byteIdx+32))
		}
	}
	c.Release(&B0)
	c.Release(&B1)
	c.Release(&B2)
	c.Release(&B3)
	c.Release(&B4)
	c.Release(&out)

	// Move Z back to the start of the state for the next round.
	adjustTo(0)
	c.Ret()

	// A(0, 0) is still in registers, store it back.
	c.Label(&end)
	c.StZ(A00, uint64(posn1600(0, 0)))
	if err := c.Finalise(); err != nil {
		return nil, err
	}
	return c, nil
}

func test1600(c *codegen.Code, vec *testvec.Vector) error {
	state := make([]byte, 200)
	if err := vec.Populate(state, "Input"); err != nil {
		return err
	}
	if err := interp.ExecPermutation(c, state); err != nil {
		return err
	}
	return vec.Check(state, "Output")
}

func init() {
	registry.Register(registry.Entry{
		Name:     "keccakp_1600_permute",
		Platform: "avr5",
		Generate: generate1600,
		Test:     test1600,
	})
}
