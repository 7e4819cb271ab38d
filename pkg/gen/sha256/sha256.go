// Package sha256 generates the SHA-256 block transform for the avr5
// target in three sizes: fully unrolled, partially unrolled with the
// round constants in a program-memory table, and a compact loop.
//
// The state buffer is the 32-byte hash state followed by the 64-byte
// message block in big-endian word order; the block doubles as the
// w[] schedule window and is clobbered.
package sha256

import (
	"github.com/gencrypto/gencrypto/pkg/codegen"
	"github.com/gencrypto/gencrypto/pkg/interp"
	"github.com/gencrypto/gencrypto/pkg/platform"
	"github.com/gencrypto/gencrypto/pkg/registry"
	"github.com/gencrypto/gencrypto/pkg/regs"
	"github.com/gencrypto/gencrypto/pkg/testvec"
)

var k = [64]uint32{
	0x428a2f98, 0x71374491, 0xb5c0fbcf, 0xe9b5dba5,
	0x3956c25b, 0x59f111f1, 0x923f82a4, 0xab1c5ed5,
	0xd807aa98, 0x12835b01, 0x243185be, 0x550c7dc3,
	0x72be5d74, 0x80deb1fe, 0x9bdc06a7, 0xc19bf174,
	0xe49b69c1, 0xefbe4786, 0x0fc19dc6, 0x240ca1cc,
	0x2de92c6f, 0x4a7484aa, 0x5cb0a9dc, 0x76f988da,
	0x983e5152, 0xa831c66d, 0xb00327c8, 0xbf597fc7,
	0xc6e00bf3, 0xd5a79147, 0x06ca6351, 0x14292967,
	0x27b70a85, 0x2e1b2138, 0x4d2c6dfc, 0x53380d13,
	0x650a7354, 0x766a0abb, 0x81c2c92e, 0x92722c85,
	0xa2bfe8a1, 0xa81a664b, 0xc24b8b70, 0xc76c51a3,
	0xd192e819, 0xd6990624, 0xf40e3585, 0x106aa070,
	0x19a4c116, 0x1e376c08, 0x2748774c, 0x34b0bcb5,
	0x391c0cb3, 0x4ed8aa4a, 0x5b9cca4f, 0x682e6ff3,
	0x748f82ee, 0x78a5636f, 0x84c87814, 0x8cc70208,
	0x90befffa, 0xa4506ceb, 0xbef9a3f7, 0xc67178f2,
}

// rcTable packs the round constants big-endian for program-memory
// reads.
func rcTable() []byte {
	table := make([]byte, 256)
	for i, v := range k {
		table[i*4] = byte(v >> 24)
		table[i*4+1] = byte(v >> 16)
		table[i*4+2] = byte(v >> 8)
		table[i*4+3] = byte(v)
	}
	return table
}

// hashState tracks where the eight working words live during the
// rounds: a and e in registers, the rest in the local frame.
type hashState struct {
	localSize              uint
	a, b, c, d, e, f, g, h int

	areg, ereg                 regs.Reg
	temp1, temp2, temp3, temp4 regs.Reg
}

// load allocates the working registers, copies the hash words into
// the frame, and parks Z on the w[] array.
func load(c *codegen.Code, st *hashState, localSize uint) {
	// temp3 must be immediate-capable for the round constants, so it
	// is allocated before anything else claims the upper registers.
	st.temp3 = c.AllocateHigh(4)
	st.temp1 = c.AllocateReg(4)
	st.temp2 = c.AllocateReg(4)
	st.temp4 = c.AllocateReg(4)
	st.areg = c.AllocateReg(4)
	st.ereg = c.AllocateReg(4)

	st.localSize = localSize
	if localSize == 24 {
		st.a, st.b, st.c, st.d = -1, 0, 4, 8
		st.e, st.f, st.g, st.h = -1, 12, 16, 20
	} else {
		st.a, st.b, st.c, st.d = 0, 4, 8, 12
		st.e, st.f, st.g, st.h = 16, 20, 24, 28
	}

	c.LdZ(st.areg, 0)
	for _, w := range []struct{ src, dst int }{
		{4, st.b}, {8, st.c}, {12, st.d},
	} {
		c.LdZ(st.temp1, uint64(w.src))
		c.StLocal(st.temp1, uint64(w.dst))
	}
	c.LdZ(st.ereg, 16)
	for _, w := range []struct{ src, dst int }{
		{20, st.f}, {24, st.g}, {28, st.h},
	} {
		c.LdZ(st.temp1, uint64(w.src))
		c.StLocal(st.temp1, uint64(w.dst))
	}
	c.AddPtrZ(32)
}

// store adds the working state back into the original hash words.
func store(c *codegen.Code, st *hashState) {
	c.SubPtrZ(32)
	c.LdZ(st.temp1, 0)
	c.Add(st.areg, st.temp1)
	c.StZ(st.areg, 0)
	for _, w := range []struct {
		z     int
		local int
	}{
		{4, st.b}, {8, st.c}, {12, st.d},
	} {
		c.LdZ(st.temp1, uint64(w.z))
		c.LdLocal(st.temp2, uint64(w.local))
		c.Add(st.temp1, st.temp2)
		c.StZ(st.temp1, uint64(w.z))
	}
	c.LdZ(st.temp1, 16)
	c.Add(st.ereg, st.temp1)
	c.StZ(st.ereg, 16)
	for _, w := range []struct {
		z     int
		local int
	}{
		{20, st.f}, {24, st.g}, {28, st.h},
	} {
		c.LdZ(st.temp1, uint64(w.z))
		c.LdLocal(st.temp2, uint64(w.local))
		c.Add(st.temp1, st.temp2)
		c.StZ(st.temp1, uint64(w.z))
	}
}

// step computes temp1 and temp2 for one round. On entry temp1 holds
// the schedule word and temp3 the round constant. The 32-bit rotates
// are done as small carry rotates plus byte renumbering.
func step(c *codegen.Code, st *hashState) {
	// temp1 = h + k[i] + w[i] + Sigma1(e) + Ch(e, f, g)
	c.Add(st.temp1, st.temp3)
	c.LdLocal(st.temp2, uint64(st.h))
	c.Add(st.temp1, st.temp2)
	c.Move(st.temp2, st.ereg)
	c.Rol(st.temp2, 2) // rightRotate6 = 8 - 2
	c.Move(st.temp3, st.ereg)
	c.Ror(st.temp3, 3) // rightRotate11 = 8 + 3
	c.LogXor(c.Shuffle(st.temp2, 1, 2, 3, 0), c.Shuffle(st.temp3, 1, 2, 3, 0))
	c.Move(st.temp3, st.ereg)
	c.Ror(st.temp3, 1) // rightRotate25 = 24 + 1
	c.LogXor(c.Shuffle(st.temp2, 1, 2, 3, 0), c.Shuffle(st.temp3, 3, 0, 1, 2))
	c.Add(st.temp1, c.Shuffle(st.temp2, 1, 2, 3, 0))
	c.LdLocal(st.temp2, uint64(st.f))
	c.LogAnd(st.temp2, st.ereg)
	c.LdLocal(st.temp3, uint64(st.g))
	c.Move(st.temp4, st.ereg)
	c.LogNot(st.temp4)
	c.LogAnd(st.temp3, st.temp4)
	c.LogXor(st.temp2, st.temp3)
	c.Add(st.temp1, st.temp2)

	// temp2 = Sigma0(a) + Maj(a, b, c)
	c.Move(st.temp2, st.areg)
	c.Ror(st.temp2, 2)
	c.Move(st.temp3, st.areg)
	c.Rol(st.temp3, 3) // rightRotate13 = 16 - 3
	c.LogXor(st.temp2, c.Shuffle(st.temp3, 2, 3, 0, 1))
	c.Move(st.temp3, st.areg)
	c.Rol(st.temp3, 2) // rightRotate22 = 24 - 2
	c.LogXor(st.temp2, c.Shuffle(st.temp3, 3, 0, 1, 2))
	c.LdLocal(st.temp3, uint64(st.b))
	c.LdLocal(st.temp4, uint64(st.c))
	c.LogAnd(st.temp4, st.temp3)
	c.LogAnd(st.temp3, st.areg)
	c.LogXor(st.temp3, st.temp4)
	c.LdLocal(st.temp4, uint64(st.c))
	c.LogAnd(st.temp4, st.areg)
	c.LogXor(st.temp3, st.temp4)
	c.Add(st.temp2, st.temp3)
}

// rotate renumbers the hash state for the next round, keeping a and e
// in registers. With the 24-byte frame b and f take over the slots a
// and e would have used.
func rotate(c *codegen.Code, st *hashState) {
	if st.localSize == 24 {
		hh := st.h
		st.h = st.g
		st.g = st.f
		st.f = hh
		c.StLocal(st.ereg, uint64(st.f))
		c.LdLocal(st.ereg, uint64(st.d))
		c.Add(st.ereg, st.temp1)
		dd := st.d
		st.d = st.c
		st.c = st.b
		st.b = dd
		c.StLocal(st.areg, uint64(st.b))
		c.Move(st.areg, st.temp1)
		c.Add(st.areg, st.temp2)
		return
	}
	c.StLocal(st.areg, uint64(st.a))
	c.StLocal(st.ereg, uint64(st.e))
	c.LdLocal(st.ereg, uint64(st.d))
	c.Add(st.ereg, st.temp1)
	c.Move(st.areg, st.temp1)
	c.Add(st.areg, st.temp2)
	hh := st.h
	st.h = st.g
	st.g = st.f
	st.f = st.e
	st.e = st.d
	st.d = st.c
	st.c = st.b
	st.b = st.a
	st.a = hh
}

// rotateFull moves every word through the frame; used by the compact
// variant where the loop body cannot renumber offsets per round.
func rotateFull(c *codegen.Code, st *hashState) {
	c.LdLocal(st.temp3, uint64(st.g))
	c.StLocal(st.temp3, uint64(st.h))
	c.LdLocal(st.temp3, uint64(st.f))
	c.StLocal(st.temp3, uint64(st.g))
	c.StLocal(st.ereg, uint64(st.f))
	c.LdLocal(st.ereg, uint64(st.d))
	c.Add(st.ereg, st.temp1)
	c.LdLocal(st.temp3, uint64(st.c))
	c.StLocal(st.temp3, uint64(st.d))
	c.LdLocal(st.temp3, uint64(st.b))
	c.StLocal(st.temp3, uint64(st.c))
	c.StLocal(st.areg, uint64(st.b))
	c.Move(st.areg, st.temp1)
	c.Add(st.areg, st.temp2)
}

// deriveWord expands w[index] in place for rounds 17..64.
func deriveWord(c *codegen.Code, st *hashState, index int) {
	c.LdZ(c.Reversed(st.temp1), uint64(((index-15)*4)&0x3F))
	c.LdZ(c.Reversed(st.temp2), uint64(((index-2)*4)&0x3F))

	// w[i] = w[i-16] + w[i-7] + sigma0(w[i-15]) + sigma1(w[i-2])
	c.Move(st.temp3, st.temp1)
	c.Rol(st.temp3, 1) // rightRotate7 = 8 - 1
	c.Move(st.temp4, st.temp1)
	c.Ror(st.temp4, 2) // rightRotate18 = 16 + 2
	c.Lsr(st.temp1, 3)
	c.LogXor(st.temp1, c.Shuffle(st.temp3, 1, 2, 3, 0))
	c.LogXor(st.temp1, c.Shuffle(st.temp4, 2, 3, 0, 1))
	c.Move(st.temp3, st.temp2)
	c.Ror(st.temp3, 1) // rightRotate17 = 16 + 1
	c.Move(st.temp4, st.temp2)
	c.Ror(st.temp4, 3) // rightRotate19 = 16 + 3
	c.Lsr(st.temp2, 10)
	c.LogXor(st.temp2, c.Shuffle(st.temp3, 2, 3, 0, 1))
	c.LogXor(st.temp2, c.Shuffle(st.temp4, 2, 3, 0, 1))
	c.Add(st.temp1, st.temp2)
	c.LdZ(c.Reversed(st.temp3), uint64(((index-16)*4)&0x3F))
	c.Add(st.temp1, st.temp3)
	c.LdZ(c.Reversed(st.temp3), uint64(((index-7)*4)&0x3F))
	c.Add(st.temp1, st.temp3)
	c.StZ(c.Reversed(st.temp1), uint64((index*4)&0x3F))
}

// deriveWordIndexed is the loop form: the round register, already in
// byte units, indexes the schedule window through pointer arithmetic.
func deriveWordIndexed(c *codegen.Code, st *hashState, round regs.Reg) {
	offset := c.Slice(st.temp3, 0, 1)
	z := c.PointerReg("Z")

	c.Move(offset, round)
	c.SubImm(offset, 15*4)
	c.LogAndImm(offset, 0x3F)
	c.Add(z, offset)
	c.LdZ(c.Reversed(st.temp1), 0)
	c.Sub(z, offset)

	c.AddImm(offset, 13*4)
	c.LogAndImm(offset, 0x3F)
	c.Add(z, offset)
	c.LdZ(c.Reversed(st.temp2), 0)
	c.Sub(z, offset)

	c.Move(st.temp3, st.temp1)
	c.Rol(st.temp3, 1)
	c.Move(st.temp4, st.temp1)
	c.Ror(st.temp4, 2)
	c.Lsr(st.temp1, 3)
	c.LogXor(st.temp1, c.Shuffle(st.temp3, 1, 2, 3, 0))
	c.LogXor(st.temp1, c.Shuffle(st.temp4, 2, 3, 0, 1))
	c.Move(st.temp3, st.temp2)
	c.Ror(st.temp3, 1)
	c.Move(st.temp4, st.temp2)
	c.Ror(st.temp4, 3)
	c.Lsr(st.temp2, 10)
	c.LogXor(st.temp2, c.Shuffle(st.temp3, 2, 3, 0, 1))
	c.LogXor(st.temp2, c.Shuffle(st.temp4, 2, 3, 0, 1))
	c.Add(st.temp1, st.temp2)
	c.Move(offset, round)
	c.SubImm(offset, 7*4)
	c.LogAndImm(offset, 0x3F)
	c.Add(z, offset)
	c.LdZ(c.Reversed(st.temp4), 0)
	c.Add(st.temp1, st.temp4)
	c.Sub(z, offset)
	c.Move(offset, round)
	c.LogAndImm(offset, 0x3F)
	c.Add(z, offset)
	c.LdZ(c.Reversed(st.temp4), 0)
	c.Add(st.temp1, st.temp4)
	c.StZ(c.Reversed(st.temp1), 0)
}

func generateFull() (*codegen.Code, error) {
	c := codegen.New(platform.NewAVR())
	c.ProloguePermutation("sha256_transform", 24)

	var st hashState
	load(c, &st, 24)

	for index := 0; index < 64; index++ {
		if index < 16 {
			c.LdZ(c.Reversed(st.temp1), uint64(index*4))
		} else {
			deriveWord(c, &st, index)
		}
		c.MoveImm(st.temp3, uint64(k[index]))
		step(c, &st)
		rotate(c, &st)
	}
	store(c, &st)
	if err := c.Finalise(); err != nil {
		return nil, err
	}
	return c, nil
}

func generatePartial() (*codegen.Code, error) {
	c := codegen.New(platform.NewAVR())
	c.ProloguePermutation("sha256_transform", 32)
	c.UsePointer("X")

	var st hashState
	load(c, &st, 32)
	table := c.SBoxAdd(rcTable())

	// Z serves double duty as the schedule pointer and the constant
	// table pointer; X keeps the schedule base while Z is staked.
	x := c.PointerReg("X")
	z := c.PointerReg("Z")
	c.Move(x, z)
	c.SBoxSetup(table)

	var derive, round, end codegen.Label
	for index := 0; index < 64; index += 16 {
		if index > 0 {
			c.SBoxCleanup()
			c.Move(z, x)
			c.Call(&derive)
			c.SBoxSetup(table)
			c.SBoxAdjustByOffset(index * 4)
		}
		c.Call(&round)
		c.Call(&round)
		c.SubPtrX(64)
	}
	c.Jmp(&end)

	// Eight rounds per call.
	c.Label(&round)
	for index := 0; index < 8; index++ {
		c.LdX(c.Reversed(st.temp1), codegen.PostInc)
		c.SBoxLoadInc(c.Reversed(st.temp3))
		step(c, &st)
		rotate(c, &st)
	}
	c.Ret()

	// Expand the schedule window for the next 16 rounds.
	c.Label(&derive)
	for index := 16; index < 32; index++ {
		deriveWord(c, &st, index)
	}
	c.Ret()

	c.Label(&end)
	c.SBoxCleanup()
	c.Move(z, x)
	store(c, &st)
	if err := c.Finalise(); err != nil {
		return nil, err
	}
	return c, nil
}

func generateSmall() (*codegen.Code, error) {
	c := codegen.New(platform.NewAVR())
	c.ProloguePermutation("sha256_transform", 34)
	c.SetFlag(platform.TempX)

	// The round counter advances in byte units: 4 per round, wrapping
	// to zero after the 64th round.
	round := c.AllocateHigh(1)

	var st hashState
	load(c, &st, 32)
	table := c.SBoxAdd(rcTable())

	// The loop flips Z between the state and the constant table, so
	// the original Z is parked in the frame.
	z := c.PointerReg("Z")
	c.StLocal(z, 32)

	var top1, top2, top3, end codegen.Label
	offset := c.Slice(st.temp3, 0, 1)
	c.MoveImm(round, 0)
	c.Label(&top1)

	// Rounds 1..16: temp1 = w[round].
	c.Move(offset, round)
	c.LogAndImm(offset, 0x3F)
	c.Add(z, offset)
	c.LdZ(c.Reversed(st.temp1), 0)
	c.Jmp(&top3)

	// Rounds 17..64 derive the schedule word first.
	c.Label(&top2)
	deriveWordIndexed(c, &st, round)

	// temp3 = k[round]
	c.Label(&top3)
	c.SBoxSetup2(table, round)
	c.SBoxLoadInc(c.Reversed(st.temp3))
	c.SBoxCleanup()

	step(c, &st)
	rotateFull(c, &st)

	c.LdLocal(z, 32)
	c.AddImm(round, 4)
	c.Breq(&end)
	c.Compare(round, 16*4)
	c.Brcs(&top1)
	c.Jmp(&top2)

	c.Label(&end)
	store(c, &st)
	if err := c.Finalise(); err != nil {
		return nil, err
	}
	return c, nil
}

func test(c *codegen.Code, vec *testvec.Vector) error {
	state := make([]byte, 96)
	if err := vec.Populate(state[:32], "Hash_In"); err != nil {
		return err
	}
	if err := vec.Populate(state[32:], "Data"); err != nil {
		return err
	}
	if err := interp.ExecPermutation(c, state); err != nil {
		return err
	}
	return vec.Check(state[:32], "Hash_Out")
}

func init() {
	registry.Register(registry.Entry{
		Name: "sha256_transform", Variant: "full", Platform: "avr5",
		Generate: generateFull, Test: test,
	})
	registry.Register(registry.Entry{
		Name: "sha256_transform", Variant: "partial", Platform: "avr5",
		Generate: generatePartial, Test: test,
	})
	registry.Register(registry.Entry{
		Name: "sha256_transform", Variant: "small", Platform: "avr5",
		Generate: generateSmall, Test: test,
	})
}
