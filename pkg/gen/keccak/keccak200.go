// Package keccak generates the Keccak-p permutations at the 200, 400
// and 1600-bit widths for the avr5 target. Each width gets its own
// strategy: the 200-bit state fits entirely in registers, the 400-bit
// state keeps one row cached, and the 1600-bit state works through the
// state pointer with a local frame for the theta columns.
package keccak

import (
	"github.com/gencrypto/gencrypto/pkg/codegen"
	"github.com/gencrypto/gencrypto/pkg/insn"
	"github.com/gencrypto/gencrypto/pkg/interp"
	"github.com/gencrypto/gencrypto/pkg/platform"
	"github.com/gencrypto/gencrypto/pkg/registry"
	"github.com/gencrypto/gencrypto/pkg/regs"
	"github.com/gencrypto/gencrypto/pkg/testvec"
)

var rc200 = [18]uint8{
	0x01, 0x82, 0x8A, 0x00, 0x8B, 0x01, 0x81, 0x09,
	0x8A, 0x88, 0x09, 0x0A, 0x8B, 0x8B, 0x89, 0x03,
	0x02, 0x80,
}

func generate200() (*codegen.Code, error) {
	c := codegen.New(platform.NewAVR())
	c.ProloguePermutation("keccakp_200_permute", 0)
	c.SetFlag(platform.NoLocals | platform.TempX | platform.TempY)

	// The whole 25-byte state lives in registers. Loading it consumes
	// every general register plus the X low byte, so Z must be read
	// before it is traded away for the C row below.
	A := c.AllocateReg(25)
	c.LdZ(A, 0)

	z := c.PointerReg("Z")
	c.Push(z)
	c.SetFlag(platform.TempZ)

	var C [5]regs.Reg
	for i := range C {
		C[i] = c.AllocateReg(1)
	}

	a := func(row, col int) regs.Reg { return c.Slice(A, uint(row*5+col), 1) }

	// Unroll the outer loop for the round constants with the bulk of
	// the round body in an inner subroutine.
	var sub, end codegen.Label
	for round := 0; round < 18; round++ {
		c.Call(&sub)
		c.MoveImm(C[0], uint64(rc200[round]))
		c.LogXor(a(0, 0), C[0])
	}
	c.Jmp(&end)

	// Step mapping theta.
	c.Label(&sub)
	for col := 0; col < 5; col++ {
		c.Move(C[col], a(0, col))
		for row := 1; row < 5; row++ {
			c.LogXor(C[col], a(row, col))
		}
	}
	for col := 0; col < 5; col++ {
		t := c.TempByte()
		c.TwoReg(insn.MOV, t, C[(col+1)%5].Limb(0))
		c.OneReg(insn.LSL, t) // Left rotate by 1 bit.
		c.TwoReg(insn.ADC, t, c.ZeroByte())
		c.TwoReg(insn.XOR, t, C[(col+4)%5].Limb(0))
		for row := 0; row < 5; row++ {
			lane := a(row, col)
			c.TwoReg(insn.XOR, lane.Limb(0), t)
		}
	}

	// Step mappings rho and pi combined into a single cycle of moves.
	rhoPi := func(out regs.Reg, rotate uint, in regs.Reg) {
		c.Rol(in, rotate)
		c.Move(out, in)
	}
	c.Move(C[0], a(0, 1))
	rhoPi(a(0, 1), 4, a(1, 1))
	rhoPi(a(1, 1), 4, a(1, 4))
	rhoPi(a(1, 4), 5, a(4, 2))
	rhoPi(a(4, 2), 7, a(2, 4))
	rhoPi(a(2, 4), 2, a(4, 0))
	rhoPi(a(4, 0), 6, a(0, 2))
	rhoPi(a(0, 2), 3, a(2, 2))
	rhoPi(a(2, 2), 1, a(2, 3))
	rhoPi(a(2, 3), 0, a(3, 4))
	rhoPi(a(3, 4), 0, a(4, 3))
	rhoPi(a(4, 3), 1, a(3, 0))
	rhoPi(a(3, 0), 3, a(0, 4))
	rhoPi(a(0, 4), 6, a(4, 4))
	rhoPi(a(4, 4), 2, a(4, 1))
	rhoPi(a(4, 1), 7, a(1, 3))
	rhoPi(a(1, 3), 5, a(3, 1))
	rhoPi(a(3, 1), 4, a(1, 0))
	rhoPi(a(1, 0), 4, a(0, 3))
	rhoPi(a(0, 3), 5, a(3, 3))
	rhoPi(a(3, 3), 7, a(3, 2))
	rhoPi(a(3, 2), 2, a(2, 1))
	rhoPi(a(2, 1), 6, a(1, 2))
	rhoPi(a(1, 2), 3, a(2, 0))
	c.Rol(C[0], 1)
	c.Move(a(2, 0), C[0])

	// Step mapping chi, one row at a time through the C registers.
	for row := 0; row < 5; row++ {
		for col := 0; col < 5; col++ {
			c.Move(C[col], a(row, col))
		}
		for col := 0; col < 5; col++ {
			s := a(row, col)
			c.Move(s, C[(col+2)%5])
			c.LogAndNot(s, C[(col+1)%5])
			c.LogXor(s, C[col])
		}
	}
	c.Ret()

	// Restore Z from the stack and write the state back.
	c.Label(&end)
	c.Pop(z)
	c.StZ(A, 0)
	if err := c.Finalise(); err != nil {
		return nil, err
	}
	return c, nil
}

func test200(c *codegen.Code, vec *testvec.Vector) error {
	state := make([]byte, 25)
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
		Name:     "keccakp_200_permute",
		Platform: "avr5",
		Generate: generate200,
		Test:     test200,
	})
}
