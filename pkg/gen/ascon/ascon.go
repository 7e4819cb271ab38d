// Package ascon generates the ASCON permutation for the avr5 target:
// a plain version and first-order masked versions for state layouts
// with two and three shares per word. The 64-bit state words are
// stored big-endian. The round argument is the first round number;
// the permutation runs rounds first..11.
package ascon

import (
	"encoding/binary"
	"math/rand"

	"github.com/gencrypto/gencrypto/pkg/codegen"
	"github.com/gencrypto/gencrypto/pkg/insn"
	"github.com/gencrypto/gencrypto/pkg/interp"
	"github.com/gencrypto/gencrypto/pkg/platform"
	"github.com/gencrypto/gencrypto/pkg/registry"
	"github.com/gencrypto/gencrypto/pkg/regs"
	"github.com/gencrypto/gencrypto/pkg/testvec"
)

// roundConstant converts the first-round argument into the working
// round constant: ((0x0F - round) << 4) | round.
func roundConstant(c *codegen.Code, round regs.Reg) {
	temp := c.AllocateHigh(1)
	c.MoveImm(temp, 0x0F)
	c.Sub(temp, round)
	c.OneReg(insn.SWAP, temp.Limb(0))
	c.LogOr(round, temp)
	c.Release(&temp)
}

func generatePlain() (*codegen.Code, error) {
	c := codegen.New(platform.NewAVR())
	round := c.ProloguePermutationWithCount("ascon_permute", 0)
	c.SetFlag(platform.NoLocals | platform.TempX)

	roundConstant(c, round)

	// x2 stays in registers between rounds; the rest of the state is
	// worked on in place.
	x2 := c.AllocateReg(8)
	c.LdZ(c.Reversed(x2), 16)

	var top codegen.Label
	c.Label(&top)

	// The round constant lands in the low byte of x2.
	c.LogXor(x2, round)

	// Substitution layer, one bit-slice byte at a time. The words are
	// big-endian so byte index i of a word sits at offset 7-i.
	x0 := c.AllocateReg(1)
	x1 := c.AllocateReg(1)
	x3 := c.AllocateReg(1)
	x4 := c.AllocateReg(1)
	t0 := c.AllocateReg(1)
	t1 := c.AllocateReg(1)
	t2 := c.AllocateReg(1)
	for index := 0; index < 8; index++ {
		x2b := c.Slice(x2, uint(index), 1)
		c.LdZ(x0, uint64(7-index))
		c.LdZ(x1, uint64(8+7-index))
		c.LdZ(x3, uint64(24+7-index))
		c.LdZ(x4, uint64(32+7-index))

		c.LogXor(x0, x4)
		c.LogXor(x4, x3)
		c.LogXor(x2b, x1)
		c.Move(t1, x0)

		// Chi5: each word absorbs the BIC of the next two.
		c.Move(t0, x1)
		c.LogAndNot(t0, x0) // t0 = (~x0) & x1
		c.Move(t2, x2b)
		c.LogAndNot(t2, x1)
		c.LogXor(x0, t2) // x0 ^= (~x1) & x2
		c.Move(t2, x3)
		c.LogAndNot(t2, x2b)
		c.LogXor(x1, t2) // x1 ^= (~x2) & x3
		c.Move(t2, x4)
		c.LogAndNot(t2, x3)
		c.LogXor(x2b, t2) // x2 ^= (~x3) & x4
		c.Move(t2, t1)
		c.LogAndNot(t2, x4)
		c.LogXor(x3, t2) // x3 ^= (~x4) & old x0
		c.LogXor(x4, t0) // x4 ^= (~old x0) & x1

		c.LogXor(x1, x0)
		c.LogXor(x0, x4)
		c.LogXor(x3, x2b)
		c.LogNot(x2b)

		c.StZ(x0, uint64(7-index))
		c.StZ(x1, uint64(8+7-index))
		c.StZ(x3, uint64(24+7-index))
		c.StZ(x4, uint64(32+7-index))
	}
	c.Release(&x0)
	c.Release(&x1)
	c.Release(&x3)
	c.Release(&x4)
	c.Release(&t0)
	c.Release(&t1)
	c.Release(&t2)

	// Linear diffusion layer: x ^= (x >>> s1) ^ (x >>> s2).
	word := c.AllocateReg(8)
	t := c.AllocateReg(8)
	diffuse := func(x regs.Reg, offset int, shift1, shift2 uint) {
		if offset >= 0 {
			c.LdZ(c.Reversed(x), uint64(offset))
		}
		c.Move(t, x)
		c.Ror(t, shift1)
		c.LogXor(t, x)
		c.Ror(x, shift2)
		c.LogXor(x, t)
		if offset >= 0 {
			c.StZ(c.Reversed(x), uint64(offset))
		}
	}
	diffuse(word, 0, 19, 28)
	diffuse(word, 8, 61, 39)
	diffuse(x2, -1, 1, 6)
	diffuse(word, 24, 10, 17)
	diffuse(word, 32, 7, 41)
	c.Release(&word)
	c.Release(&t)

	c.SubImm(round, 0x0F)
	c.CompareAndLoop(round, 0x3C, &top)

	c.StZ(c.Reversed(x2), 16)
	if err := c.Finalise(); err != nil {
		return nil, err
	}
	return c, nil
}

// locations maps each state word to where it is worked on. Offsets
// below 64 are reachable through Z in the caller's state buffer;
// larger offsets live in the local frame and are rebased onto Y.
type locations struct {
	loc [6]int // x0..x4 working locations plus the t0 randomness
	st  [5]int // x0..x4 homes in the state structure
}

// zWindow is the pointer adjustment used while copying words between
// the far end of the state and the local frame.
const zWindow = 64

func loadByte(c *codegen.Code, r regs.Reg, offset, share, index int) {
	offset += share * 8
	if offset < zWindow {
		c.LdZ(r, uint64(offset+7-index)) // big endian
	} else {
		c.LdLocal(r, uint64(offset+index-zWindow))
	}
}

func storeByte(c *codegen.Code, r regs.Reg, offset, share, index int) {
	offset += share * 8
	if offset < zWindow {
		c.StZ(r, uint64(offset+7-index))
	} else {
		c.StLocal(r, uint64(offset+index-zWindow))
	}
}

func loadWord(c *codegen.Code, r regs.Reg, offset, share int) {
	offset += share * 8
	if offset < zWindow {
		c.LdZ(c.Reversed(r), uint64(offset))
	} else {
		c.LdLocal(r, uint64(offset-zWindow))
	}
}

func storeWord(c *codegen.Code, r regs.Reg, offset, share int) {
	offset += share * 8
	if offset < zWindow {
		c.StZ(c.Reversed(r), uint64(offset))
	} else {
		c.StLocal(r, uint64(offset-zWindow))
	}
}

// substitute runs the masked substitution layer on one bit-slice
// byte. The x2.a byte is already in registers; everything else moves
// through memory. The t0 share pair starts out as a masking of zero
// so no intermediate ever sees an unmasked value.
func substitute(c *codegen.Code, locs *locations, index int, x2a regs.Reg) {
	x0a := c.AllocateReg(1)
	x1a := c.AllocateReg(1)
	x3a := c.AllocateReg(1)
	x4a := c.AllocateReg(1)
	x0b := c.AllocateReg(1)
	x1b := c.AllocateReg(1)
	x2b := c.AllocateReg(1)
	x3b := c.AllocateReg(1)
	x4b := c.AllocateReg(1)
	loadByte(c, x0a, locs.loc[0], 0, index)
	loadByte(c, x0b, locs.loc[0], 1, index)
	loadByte(c, x1a, locs.loc[1], 0, index)
	loadByte(c, x1b, locs.loc[1], 1, index)
	loadByte(c, x2b, locs.loc[2], 1, index)
	loadByte(c, x3a, locs.loc[3], 0, index)
	loadByte(c, x3b, locs.loc[3], 1, index)
	loadByte(c, x4a, locs.loc[4], 0, index)
	loadByte(c, x4b, locs.loc[4], 1, index)

	t0a := c.AllocateReg(1)
	t0b := c.AllocateReg(1)
	t1a := c.AllocateReg(1)
	t1b := c.AllocateReg(1)

	c.LogXor(x0a, x4a)
	c.LogXor(x4a, x3a)
	c.LogXor(x2a, x1a)
	c.Move(t1a, x0a)

	c.LogXor(x0b, x4b)
	c.LogXor(x4b, x3b)
	c.LogXor(x2b, x1b)
	c.Move(t1b, x0b)

	// Zero as a pair of identical random shares.
	loadByte(c, t0a, locs.loc[5], 0, index)
	c.Move(t0b, t0a)

	c.MaskedAndNotXor(t0a, t0b, x0a, x0b, x1a, x1b) // t0 ^= (~x0) & x1
	c.MaskedAndNotXor(x0a, x0b, x1a, x1b, x2a, x2b) // x0 ^= (~x1) & x2
	c.MaskedAndNotXor(x1a, x1b, x2a, x2b, x3a, x3b) // x1 ^= (~x2) & x3
	c.MaskedAndNotXor(x2a, x2b, x3a, x3b, x4a, x4b) // x2 ^= (~x3) & x4
	c.MaskedAndNotXor(x3a, x3b, x4a, x4b, t1a, t1b) // x3 ^= (~x4) & t1
	c.LogXor(x4a, t0a)
	c.LogXor(x4b, t0b)

	c.LogXor(x1a, x0a)
	c.LogXor(x0a, x4a)
	c.LogXor(x3a, x2a)
	c.LogNot(x2a)
	c.LogXor(x1b, x0b)
	c.LogXor(x0b, x4b)
	c.LogXor(x3b, x2b)

	// x2.a stays in registers between rounds.
	storeByte(c, x0a, locs.loc[0], 0, index)
	storeByte(c, x0b, locs.loc[0], 1, index)
	storeByte(c, x1a, locs.loc[1], 0, index)
	storeByte(c, x1b, locs.loc[1], 1, index)
	storeByte(c, x2b, locs.loc[2], 1, index)
	storeByte(c, x3a, locs.loc[3], 0, index)
	storeByte(c, x3b, locs.loc[3], 1, index)
	storeByte(c, x4a, locs.loc[4], 0, index)
	storeByte(c, x4b, locs.loc[4], 1, index)
	storeByte(c, t0a, locs.loc[5], 0, index)

	c.Release(&x0a)
	c.Release(&x1a)
	c.Release(&x3a)
	c.Release(&x4a)
	c.Release(&x0b)
	c.Release(&x1b)
	c.Release(&x2b)
	c.Release(&x3b)
	c.Release(&x4b)
	c.Release(&t0a)
	c.Release(&t0b)
	c.Release(&t1a)
	c.Release(&t1b)
}

// diffuse computes x ^= (x >>> shift1) ^ (x >>> shift2) on one share
// of one word. The first share of word 2 is already in registers.
func diffuse(c *codegen.Code, locs *locations, x regs.Reg, word, shift1, shift2, share int) {
	t := c.AllocateReg(8)
	inMemory := word != 2 || share != 0
	if inMemory {
		loadWord(c, x, locs.loc[word], share)
	}
	c.Move(t, x)
	c.Ror(t, uint(shift1))
	c.LogXor(t, x)
	c.Ror(x, uint(shift2))
	c.LogXor(x, t)
	if inMemory {
		storeWord(c, x, locs.loc[word], share)
	}
	c.Release(&t)
}

// generateMasked emits the masked permutation for a state laid out
// with maxShares shares per word. Only the first two shares of each
// word are operated on; the rest of the stride is the caller's
// concern. The 80 working bytes outrun the 64-byte Z displacement
// window, so the far words are staged into the local frame: x4 and
// the round randomness for two shares, x3 as well for three.
func generateMasked(maxShares int) (*codegen.Code, error) {
	locals := uint(24)
	if maxShares == 3 {
		locals = 40
	}
	c := codegen.New(platform.NewAVR())
	round := c.PrologueMaskedPermutation("ascon_x2_permute", locals)

	roundConstant(c, round)

	var locs locations
	if maxShares == 2 {
		locs.st = [5]int{0, 16, 32, 48, 64}
		locs.loc = [6]int{0, 16, 32, 48, 64, 80}
	} else {
		locs.st = [5]int{0, 24, 48, 72, 96}
		locs.loc = [6]int{0, 24, 48, 64, 80, 96}
	}

	// Stash the caller's preserved randomness in local t0.a.
	x2 := c.AllocateReg(8)
	c.LdX(c.Reversed(x2), codegen.PostInc)
	storeWord(c, x2, locs.loc[5], 0)

	// X is free until the randomness goes back at the end.
	c.SetFlag(platform.TempX)

	loadWord(c, x2, locs.st[2], 0)

	// Move the far words into the local frame.
	t0 := c.AllocateReg(8)
	c.AddPtrZ(zWindow)
	if maxShares == 3 {
		loadWord(c, t0, locs.st[3]-zWindow, 0)
		storeWord(c, t0, locs.loc[3], 0)
		loadWord(c, t0, locs.st[3]-zWindow, 1)
		storeWord(c, t0, locs.loc[3], 1)
	}
	loadWord(c, t0, locs.st[4]-zWindow, 0)
	storeWord(c, t0, locs.loc[4], 0)
	loadWord(c, t0, locs.st[4]-zWindow, 1)
	storeWord(c, t0, locs.loc[4], 1)
	c.SubPtrZ(zWindow)
	c.Release(&t0)

	var top codegen.Label
	c.Label(&top)

	c.LogXor(x2, round)

	for index := 0; index < 8; index++ {
		substitute(c, &locs, index, c.Slice(x2, uint(index), 1))
	}

	t0 = c.AllocateReg(8)
	diffuse(c, &locs, t0, 0, 19, 28, 1) // second share first
	diffuse(c, &locs, t0, 1, 61, 39, 1)
	diffuse(c, &locs, t0, 2, 1, 6, 1)
	diffuse(c, &locs, t0, 3, 10, 17, 1)
	diffuse(c, &locs, t0, 4, 7, 41, 1)

	diffuse(c, &locs, t0, 0, 19, 28, 0)
	diffuse(c, &locs, t0, 1, 61, 39, 0)
	diffuse(c, &locs, x2, 2, 1, 6, 0)
	diffuse(c, &locs, t0, 3, 10, 17, 0)
	diffuse(c, &locs, t0, 4, 7, 41, 0)

	// Rotate t0.a right 13 bits for the next round's randomness:
	// a rotate left 3 plus a right rotate by one limb.
	loadWord(c, t0, locs.loc[5], 0)
	c.Rol(t0, 3)
	storeWord(c, c.Shuffle(t0, 2, 3, 4, 5, 6, 7, 0, 1), locs.loc[5], 0)
	c.Release(&t0)

	c.SubImm(round, 0x0F)
	c.CompareAndLoop(round, 0x3C, &top)

	storeWord(c, x2, locs.st[2], 0)

	// Move the far words back out to the state.
	c.AddPtrZ(zWindow)
	if maxShares == 3 {
		loadWord(c, x2, locs.loc[3], 0)
		storeWord(c, x2, locs.st[3]-zWindow, 0)
		loadWord(c, x2, locs.loc[3], 1)
		storeWord(c, x2, locs.st[3]-zWindow, 1)
	}
	loadWord(c, x2, locs.loc[4], 0)
	storeWord(c, x2, locs.st[4]-zWindow, 0)
	loadWord(c, x2, locs.loc[4], 1)
	storeWord(c, x2, locs.st[4]-zWindow, 1)

	// Hand the evolved randomness back to the caller.
	c.LoadOutputPtr()
	loadWord(c, x2, locs.loc[5], 0)
	c.StX(c.Reversed(x2), codegen.PostInc)
	if err := c.Finalise(); err != nil {
		return nil, err
	}
	return c, nil
}

func testPlain(c *codegen.Code, vec *testvec.Vector) error {
	rounds := uint8(vec.Int("First_Round", 0))
	state := make([]byte, 40)
	if err := vec.Populate(state, "Input"); err != nil {
		return err
	}
	if err := interp.ExecPermutationWithCount(c, state, rounds); err != nil {
		return err
	}
	return vec.Check(state, "Output")
}

// maskState splits each state word into a value share and a random
// share; the remaining shares of the stride stay zero.
func maskState(in []byte, maxShares int) []byte {
	out := make([]byte, 5*maxShares*8)
	for index := 0; index < 5; index++ {
		random := rand.Uint64()
		word := binary.BigEndian.Uint64(in[index*8:])
		binary.BigEndian.PutUint64(out[index*maxShares*8:], word^random)
		binary.BigEndian.PutUint64(out[index*maxShares*8+8:], random)
	}
	return out
}

func unmaskState(in []byte, maxShares int) []byte {
	out := make([]byte, 40)
	for index := 0; index < 5; index++ {
		word := binary.BigEndian.Uint64(in[index*maxShares*8:])
		random := binary.BigEndian.Uint64(in[index*maxShares*8+8:])
		binary.BigEndian.PutUint64(out[index*8:], word^random)
	}
	return out
}

func testMasked(maxShares int) registry.TestFunc {
	return func(c *codegen.Code, vec *testvec.Vector) error {
		firstRound := uint8(vec.Int("First_Round", 0))
		input := make([]byte, 40)
		if err := vec.Populate(input, "Input"); err != nil {
			return err
		}
		state := maskState(input, maxShares)
		preserve := make([]byte, 8)
		binary.BigEndian.PutUint64(preserve, rand.Uint64())
		if err := interp.ExecMaskedPermutation(c, state, firstRound, preserve); err != nil {
			return err
		}
		return vec.Check(unmaskState(state, maxShares), "Output")
	}
}

func init() {
	registry.Register(registry.Entry{
		Name: "ascon_permute", Platform: "avr5",
		Generate: generatePlain, Test: testPlain,
	})
	registry.Register(registry.Entry{
		Name: "ascon_x2_permute", Variant: "2shares", Platform: "avr5",
		Generate: func() (*codegen.Code, error) { return generateMasked(2) },
		Test:     testMasked(2),
	})
	registry.Register(registry.Entry{
		Name: "ascon_x2_permute", Variant: "3shares", Platform: "avr5",
		Generate: func() (*codegen.Code, error) { return generateMasked(3) },
		Test:     testMasked(3),
	})
}
