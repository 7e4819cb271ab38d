// Package tinyjambu generates the TinyJAMBU-128/192/256 permutations
// for the avr5 target. The caller stores the inverted key after the
// 16-byte state, which lets the NAND step use a plain AND.
package tinyjambu

import (
	"github.com/gencrypto/gencrypto/pkg/codegen"
	"github.com/gencrypto/gencrypto/pkg/interp"
	"github.com/gencrypto/gencrypto/pkg/platform"
	"github.com/gencrypto/gencrypto/pkg/registry"
	"github.com/gencrypto/gencrypto/pkg/regs"
	"github.com/gencrypto/gencrypto/pkg/testvec"
)

// steps32 performs 32 steps of the feedback function on the rotating
// window (s0, s1, s2, s3), mixing in key word koffset.
func steps32(c *codegen.Code, s0, s1, s2, s3 regs.Reg, koffset int) {
	// Nine bytes stay spare after the state allocation below.
	temp := c.AllocateReg(9)

	// t1 = (s1 >> 15) | (s2 << 17)
	// s0 ^= t1
	c.Move(c.Slice(temp, 2, 2), c.Slice(s1, 2, 2))
	c.Move(c.Slice(temp, 4, 2), c.Slice(s2, 0, 2))
	c.Move(c.Slice(temp, 1, 1), c.Slice(s1, 1, 1))
	c.Lsl(c.Slice(temp, 1, 5), 1)
	c.LogXor(s0, c.Slice(temp, 2, 4))

	// t2 = (s2 >> 6)  | (s3 << 26)
	// t3 = (s2 >> 21) | (s3 << 11)
	// s0 ^= ~(t2 & t3), with the NOT folded into the inverted key.
	c.Move(c.Slice(temp, 4, 4), s2)
	c.Move(c.Slice(temp, 8, 1), s3)
	c.Lsl(c.Slice(temp, 4, 5), 2)
	t2 := c.Slice(temp, 5, 4)
	c.Move(c.Slice(temp, 0, 2), c.Slice(s2, 2, 2))
	c.Move(c.Slice(temp, 2, 3), c.Slice(s3, 0, 3))
	c.Lsl(c.Slice(temp, 0, 5), 3)
	t3 := c.Slice(temp, 1, 4)
	c.LogAnd(t2, t3)
	c.LogXor(s0, t2)

	// t4 = (s2 >> 27) | (s3 << 5)
	// s0 ^= t4
	c.Move(c.Slice(temp, 2, 4), s3)
	c.Move(c.Slice(temp, 1, 1), c.Slice(s2, 3, 1))
	c.Lsr(c.Slice(temp, 1, 5), 3)
	c.LogXor(s0, c.Slice(temp, 1, 4))

	// s0 ^= k[koffset]
	c.LdZXor(s0, uint64(16+koffset*4))

	c.Release(&temp)
}

func generate(name string, keyWords int) (*codegen.Code, error) {
	c := codegen.New(platform.NewAVR())
	rounds := c.ProloguePermutationWithCount(name, 0)
	c.SetFlag(platform.NoLocals | platform.TempX)

	// The 128-bit state lives in registers for the whole run.
	s0 := c.AllocateReg(4)
	s1 := c.AllocateReg(4)
	s2 := c.AllocateReg(4)
	s3 := c.AllocateReg(4)
	c.LdZ(s0, 0)
	c.LdZ(s1, 4)
	c.LdZ(s2, 8)
	c.LdZ(s3, 12)

	// Each counted round is 128 steps; the loop body is unrolled so a
	// full pass over the key schedule lines up with the loop top.
	var top, end codegen.Label
	c.Label(&top)

	innerRounds := 2
	switch keyWords {
	case 4:
		innerRounds = 1
	case 6:
		innerRounds = 3
	}
	for inner := 0; inner < innerRounds; inner++ {
		koffset := inner * 4
		steps32(c, s0, s1, s2, s3, koffset%keyWords)
		steps32(c, s1, s2, s3, s0, (koffset+1)%keyWords)
		steps32(c, s2, s3, s0, s1, (koffset+2)%keyWords)
		steps32(c, s3, s0, s1, s2, (koffset+3)%keyWords)

		// Early bail-out between the unrolled inner rounds.
		if inner < innerRounds-1 {
			c.Dec(rounds)
			c.Breq(&end)
		}
	}
	c.Dec(rounds)
	c.Brne(&top)

	c.Label(&end)
	c.StZ(s0, 0)
	c.StZ(s1, 4)
	c.StZ(s2, 8)
	c.StZ(s3, 12)
	if err := c.Finalise(); err != nil {
		return nil, err
	}
	return c, nil
}

// test runs the permutation with the inverted key placed after the
// state, the layout the generated code expects.
func test(keyBytes int, rounds uint8) registry.TestFunc {
	return func(c *codegen.Code, vec *testvec.Vector) error {
		state := make([]byte, 16+keyBytes)
		if err := vec.Populate(state[:16], "Input"); err != nil {
			return err
		}
		key := make([]byte, keyBytes)
		if err := vec.Populate(key, "Key"); err != nil {
			return err
		}
		for i, b := range key {
			state[16+i] = ^b
		}
		if err := interp.ExecPermutationWithCount(c, state, rounds); err != nil {
			return err
		}
		return vec.Check(state[:16], "Output")
	}
}

func init() {
	registry.Register(registry.Entry{
		Name:     "tinyjambu_permutation_128",
		Platform: "avr5",
		Generate: func() (*codegen.Code, error) { return generate("tinyjambu_permutation_128", 4) },
		Test:     test(16, 1024/128),
	})
	registry.Register(registry.Entry{
		Name:     "tinyjambu_permutation_192",
		Platform: "avr5",
		Generate: func() (*codegen.Code, error) { return generate("tinyjambu_permutation_192", 6) },
		Test:     test(24, 1152/128),
	})
	registry.Register(registry.Entry{
		Name:     "tinyjambu_permutation_256",
		Platform: "avr5",
		Generate: func() (*codegen.Code, error) { return generate("tinyjambu_permutation_256", 8) },
		Test:     test(32, 1280/128),
	})
}
