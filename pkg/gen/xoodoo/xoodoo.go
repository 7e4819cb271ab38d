// Package xoodoo generates the Xoodoo permutation for the avr5
// target. The function takes the number of rounds to run and executes
// the last n of the 12 round constants.
package xoodoo

import (
	"fmt"

	"github.com/gencrypto/gencrypto/pkg/codegen"
	"github.com/gencrypto/gencrypto/pkg/interp"
	"github.com/gencrypto/gencrypto/pkg/platform"
	"github.com/gencrypto/gencrypto/pkg/registry"
	"github.com/gencrypto/gencrypto/pkg/testvec"
)

const numRounds = 12

var rc = [numRounds]uint16{
	0x0058, 0x0038, 0x03C0, 0x00D0, 0x0120, 0x0014,
	0x0060, 0x002C, 0x0380, 0x00F0, 0x01A0, 0x0012,
}

// word is the state offset of the 32-bit word at (row, col).
func word(row, col int) uint64 { return uint64(row*16 + col*4) }

func generate() (*codegen.Code, error) {
	c := codegen.New(platform.NewAVR())
	count := c.ProloguePermutationWithCount("xoodoo_permute", 0)
	c.SetFlag(platform.TempY)

	// A 16-bit high register pair carries the round constant into the
	// subroutine.
	rcReg := c.AllocateHigh(2)

	// Dispatch on the round count. 12 and 6 are the common cases and
	// get unrolled chains that skip redundant high-byte reloads.
	var roundLabels [numRounds]codegen.Label
	var sub, end codegen.Label
	c.Compare(count, numRounds)
	c.Breq(&roundLabels[0])
	c.Compare(count, 6)
	c.Breq(&roundLabels[6])
	for round := 1; round < numRounds; round++ {
		if round == 6 {
			continue
		}
		c.Compare(count, uint64(round))
		c.Breq(&roundLabels[numRounds-round])
	}
	c.Jmp(&end) // 0 rounds or > 12 rounds.
	c.Release(&count)

	// Generic chain: entering at roundLabels[12-n] runs the last n
	// round constants.
	for round := 1; round < numRounds; round++ {
		if round != 6 {
			c.Label(&roundLabels[round])
		}
		c.MoveImm(rcReg, uint64(rc[round]))
		c.Call(&sub)
	}
	c.Jmp(&end)

	// Special case for 12 rounds: reload only the low byte when the
	// high byte of the constant repeats.
	c.Label(&roundLabels[0])
	for round := 0; round < numRounds; round++ {
		if round > 0 && rc[round]&0xFF00 == rc[round-1]&0xFF00 {
			c.MoveImm(c.Slice(rcReg, 0, 1), uint64(rc[round]))
		} else {
			c.MoveImm(rcReg, uint64(rc[round]))
		}
		c.Call(&sub)
	}
	c.Jmp(&end)

	// Special case for 6 rounds, with the same high-byte reuse.
	c.Label(&roundLabels[6])
	for round := 6; round < numRounds; round++ {
		if round > 6 && rc[round]&0xFF00 == rc[round-1]&0xFF00 {
			c.MoveImm(c.Slice(rcReg, 0, 1), uint64(rc[round]))
		} else {
			c.MoveImm(rcReg, uint64(rc[round]))
		}
		c.Call(&sub)
	}
	c.Jmp(&end)

	// The round body.
	c.Label(&sub)
	x0 := c.AllocateReg(4)
	x1 := c.AllocateReg(4)
	x2 := c.AllocateReg(4)
	t1 := c.AllocateReg(4)
	t2 := c.AllocateReg(4)
	t3 := c.AllocateReg(4)

	// The parity fold t = leftRotate5(t) ^ leftRotate14(t) below is
	// computed through byte shuffles so no physical 4-byte rotations
	// are needed: rotate right 3 then renumber left one byte gives
	// rotate left 5; rotate right 2 then renumber left two bytes
	// gives rotate left 14.

	// Step theta: mix column parity.
	// t1 = x03 ^ x13 ^ x23
	c.LdZ(t1, word(0, 3))
	c.LdZXor(t1, word(1, 3))
	c.LdZXor(t1, word(2, 3))
	// t2 = x00 ^ x10 ^ x20
	c.LdZ(x0, word(0, 0))
	c.LdZ(x1, word(1, 0))
	c.LdZ(x2, word(2, 0))
	c.Move(t2, x0)
	c.LogXor(t2, x1)
	c.LogXor(t2, x2)
	// t1 = leftRotate5(t1) ^ leftRotate14(t1)
	c.Move(t3, t1)
	c.Ror(t1, 3)
	t1v := c.Shuffle(t1, 3, 0, 1, 2)
	c.Ror(t3, 2)
	c.LogXor(t1v, c.Shuffle(t3, 2, 3, 0, 1))
	// x00 ^= t1; x10 ^= t1; x20 ^= t1
	c.LogXor(x0, t1v)
	c.LogXor(x1, t1v)
	c.LogXor(x2, t1v)
	c.StZ(x0, word(0, 0))
	c.StZ(x1, word(1, 0))
	c.StZ(x2, word(2, 0))
	// t1 = x01 ^ x11 ^ x21
	c.LdZ(x0, word(0, 1))
	c.LdZ(x1, word(1, 1))
	c.LdZ(x2, word(2, 1))
	c.Move(t1, x0)
	c.LogXor(t1, x1)
	c.LogXor(t1, x2)
	// t2 = leftRotate5(t2) ^ leftRotate14(t2)
	c.Move(t3, t2)
	c.Ror(t2, 3)
	t2v := c.Shuffle(t2, 3, 0, 1, 2)
	c.Ror(t3, 2)
	c.LogXor(t2v, c.Shuffle(t3, 2, 3, 0, 1))
	// x01 ^= t2; x11 ^= t2; x21 ^= t2
	c.LogXor(x0, t2v)
	c.LogXor(x1, t2v)
	c.LogXor(x2, t2v)
	c.StZ(x0, word(0, 1))
	c.StZ(x1, word(1, 1))
	c.StZ(x2, word(2, 1))
	// t2 = x02 ^ x12 ^ x22
	c.LdZ(x0, word(0, 2))
	c.LdZ(x1, word(1, 2))
	c.LdZ(x2, word(2, 2))
	c.Move(t2, x0)
	c.LogXor(t2, x1)
	c.LogXor(t2, x2)
	// t1 = leftRotate5(t1) ^ leftRotate14(t1)
	c.Move(t3, t1)
	c.Ror(t1, 3)
	t1v = c.Shuffle(t1, 3, 0, 1, 2)
	c.Ror(t3, 2)
	c.LogXor(t1v, c.Shuffle(t3, 2, 3, 0, 1))
	// x02 ^= t1; x12 ^= t1; x22 ^= t1
	c.LogXor(x0, t1v)
	c.LogXor(x1, t1v)
	c.LogXor(x2, t1v)
	c.StZ(x0, word(0, 2))
	c.StZ(x1, word(1, 2))
	c.StZ(x2, word(2, 2))
	// t2 = leftRotate5(t2) ^ leftRotate14(t2)
	c.Move(t3, t2)
	c.Ror(t2, 3)
	t2v = c.Shuffle(t2, 3, 0, 1, 2)
	c.Ror(t3, 2)
	c.LogXor(t2v, c.Shuffle(t3, 2, 3, 0, 1))
	// x03 ^= t2; x13 ^= t2; x23 ^= t2
	c.LdZXorIn(t2v, word(0, 3))
	c.LdZ(t1, word(1, 3))
	c.LogXor(t1, t2v) // x13 stays in t1 for rho-west below.
	c.LdZ(t3, word(2, 3))
	c.LogXor(t3, t2v) // x23 stays in t3 for rho-west below.

	// Step rho-west: plane shift.
	// x13 = x12; x12 = x11; x11 = x10; x10 = old x13
	c.LdZ(t2, word(1, 2))
	c.StZ(t2, word(1, 3))
	c.LdZ(t2, word(1, 1))
	c.StZ(t2, word(1, 2))
	c.LdZ(t2, word(1, 0))
	c.StZ(t2, word(1, 1))
	c.StZ(t1, word(1, 0))
	// x2c = leftRotate11(x2c)
	for col := 0; col < 3; col++ {
		c.LdZ(t1, word(2, col))
		c.Rol(t1, 11)
		c.StZ(t1, word(2, col))
	}
	c.Rol(t3, 11)
	c.StZ(t3, word(2, 3))

	// Step iota: add the round constant.
	c.LdZ(x0, word(0, 0))
	c.LogXor(x0, rcReg)

	// Step chi: non-linear layer.
	for col := 0; col < 4; col++ {
		// x0c ^= (~x1c) & x2c
		if col != 0 {
			c.LdZ(x0, word(0, col))
		}
		c.LdZ(x1, word(1, col))
		c.LdZ(x2, word(2, col))
		c.Move(t1, x2)
		c.LogAndNot(t1, x1)
		c.LogXor(x0, t1)
		c.StZ(x0, word(0, col))

		// x1c ^= (~x2c) & x0c
		c.Move(t1, x0)
		c.LogAndNot(t1, x2)
		c.LogXor(x1, t1)
		c.StZ(x1, word(1, col))

		// x2c ^= (~x0c) & x1c
		c.LogAndNot(x1, x0)
		c.LogXor(x2, x1)
		c.StZ(x2, word(2, col))
	}

	// Step rho-east: plane shift.
	for col := 0; col < 4; col++ {
		c.LdZ(t1, word(1, col))
		c.Rol(t1, 1)
		c.StZ(t1, word(1, col))
	}
	// The bottom plane rotates left 8 bits and shifts two lanes, so
	// each lane stores back with its bytes renumbered.
	c.LdZ(t1, word(2, 2))
	c.LdZ(t2, word(2, 3))
	c.LdZ(t3, word(2, 0))
	c.StZ(c.Shuffle(t3, 3, 0, 1, 2), word(2, 2))
	c.LdZ(t3, word(2, 1))
	c.StZ(c.Shuffle(t3, 3, 0, 1, 2), word(2, 3))
	c.StZ(c.Shuffle(t1, 3, 0, 1, 2), word(2, 0))
	c.StZ(c.Shuffle(t2, 3, 0, 1, 2), word(2, 1))

	c.Ret()
	c.Label(&end)
	if err := c.Finalise(); err != nil {
		return nil, err
	}
	return c, nil
}

func test(c *codegen.Code, vec *testvec.Vector) error {
	rounds := vec.Int("Num_Rounds", 12)
	if rounds < 0 || rounds > numRounds {
		return fmt.Errorf("Num_Rounds out of range: %d", rounds)
	}
	state := make([]byte, 48)
	if err := vec.Populate(state, "Input"); err != nil {
		return err
	}
	if err := interp.ExecPermutationWithCount(c, state, uint8(rounds)); err != nil {
		return err
	}
	return vec.Check(state, "Output")
}

func init() {
	registry.Register(registry.Entry{
		Name:     "xoodoo_permute",
		Platform: "avr5",
		Generate: generate,
		Test:     test,
	})
}
