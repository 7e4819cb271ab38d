// Package aes generates the AES key schedules and single-block ECB
// operations for the avr5 target. The key schedule starts with a
// 4-byte header: the round count in the first byte and the total
// schedule length in the third and fourth.
package aes

import (
	"github.com/gencrypto/gencrypto/pkg/codegen"
	"github.com/gencrypto/gencrypto/pkg/insn"
	"github.com/gencrypto/gencrypto/pkg/interp"
	"github.com/gencrypto/gencrypto/pkg/platform"
	"github.com/gencrypto/gencrypto/pkg/registry"
	"github.com/gencrypto/gencrypto/pkg/regs"
	"github.com/gencrypto/gencrypto/pkg/testvec"
)

// Rijndael S-box.
var sbox = [256]byte{
	0x63, 0x7C, 0x77, 0x7B, 0xF2, 0x6B, 0x6F, 0xC5,
	0x30, 0x01, 0x67, 0x2B, 0xFE, 0xD7, 0xAB, 0x76,
	0xCA, 0x82, 0xC9, 0x7D, 0xFA, 0x59, 0x47, 0xF0,
	0xAD, 0xD4, 0xA2, 0xAF, 0x9C, 0xA4, 0x72, 0xC0,
	0xB7, 0xFD, 0x93, 0x26, 0x36, 0x3F, 0xF7, 0xCC,
	0x34, 0xA5, 0xE5, 0xF1, 0x71, 0xD8, 0x31, 0x15,
	0x04, 0xC7, 0x23, 0xC3, 0x18, 0x96, 0x05, 0x9A,
	0x07, 0x12, 0x80, 0xE2, 0xEB, 0x27, 0xB2, 0x75,
	0x09, 0x83, 0x2C, 0x1A, 0x1B, 0x6E, 0x5A, 0xA0,
	0x52, 0x3B, 0xD6, 0xB3, 0x29, 0xE3, 0x2F, 0x84,
	0x53, 0xD1, 0x00, 0xED, 0x20, 0xFC, 0xB1, 0x5B,
	0x6A, 0xCB, 0xBE, 0x39, 0x4A, 0x4C, 0x58, 0xCF,
	0xD0, 0xEF, 0xAA, 0xFB, 0x43, 0x4D, 0x33, 0x85,
	0x45, 0xF9, 0x02, 0x7F, 0x50, 0x3C, 0x9F, 0xA8,
	0x51, 0xA3, 0x40, 0x8F, 0x92, 0x9D, 0x38, 0xF5,
	0xBC, 0xB6, 0xDA, 0x21, 0x10, 0xFF, 0xF3, 0xD2,
	0xCD, 0x0C, 0x13, 0xEC, 0x5F, 0x97, 0x44, 0x17,
	0xC4, 0xA7, 0x7E, 0x3D, 0x64, 0x5D, 0x19, 0x73,
	0x60, 0x81, 0x4F, 0xDC, 0x22, 0x2A, 0x90, 0x88,
	0x46, 0xEE, 0xB8, 0x14, 0xDE, 0x5E, 0x0B, 0xDB,
	0xE0, 0x32, 0x3A, 0x0A, 0x49, 0x06, 0x24, 0x5C,
	0xC2, 0xD3, 0xAC, 0x62, 0x91, 0x95, 0xE4, 0x79,
	0xE7, 0xC8, 0x37, 0x6D, 0x8D, 0xD5, 0x4E, 0xA9,
	0x6C, 0x56, 0xF4, 0xEA, 0x65, 0x7A, 0xAE, 0x08,
	0xBA, 0x78, 0x25, 0x2E, 0x1C, 0xA6, 0xB4, 0xC6,
	0xE8, 0xDD, 0x74, 0x1F, 0x4B, 0xBD, 0x8B, 0x8A,
	0x70, 0x3E, 0xB5, 0x66, 0x48, 0x03, 0xF6, 0x0E,
	0x61, 0x35, 0x57, 0xB9, 0x86, 0xC1, 0x1D, 0x9E,
	0xE1, 0xF8, 0x98, 0x11, 0x69, 0xD9, 0x8E, 0x94,
	0x9B, 0x1E, 0x87, 0xE9, 0xCE, 0x55, 0x28, 0xDF,
	0x8C, 0xA1, 0x89, 0x0D, 0xBF, 0xE6, 0x42, 0x68,
	0x41, 0x99, 0x2D, 0x0F, 0xB0, 0x54, 0xBB, 0x16,
}

// Rijndael inverse S-box.
var invSbox = [256]byte{
	0x52, 0x09, 0x6A, 0xD5, 0x30, 0x36, 0xA5, 0x38,
	0xBF, 0x40, 0xA3, 0x9E, 0x81, 0xF3, 0xD7, 0xFB,
	0x7C, 0xE3, 0x39, 0x82, 0x9B, 0x2F, 0xFF, 0x87,
	0x34, 0x8E, 0x43, 0x44, 0xC4, 0xDE, 0xE9, 0xCB,
	0x54, 0x7B, 0x94, 0x32, 0xA6, 0xC2, 0x23, 0x3D,
	0xEE, 0x4C, 0x95, 0x0B, 0x42, 0xFA, 0xC3, 0x4E,
	0x08, 0x2E, 0xA1, 0x66, 0x28, 0xD9, 0x24, 0xB2,
	0x76, 0x5B, 0xA2, 0x49, 0x6D, 0x8B, 0xD1, 0x25,
	0x72, 0xF8, 0xF6, 0x64, 0x86, 0x68, 0x98, 0x16,
	0xD4, 0xA4, 0x5C, 0xCC, 0x5D, 0x65, 0xB6, 0x92,
	0x6C, 0x70, 0x48, 0x50, 0xFD, 0xED, 0xB9, 0xDA,
	0x5E, 0x15, 0x46, 0x57, 0xA7, 0x8D, 0x9D, 0x84,
	0x90, 0xD8, 0xAB, 0x00, 0x8C, 0xBC, 0xD3, 0x0A,
	0xF7, 0xE4, 0x58, 0x05, 0xB8, 0xB3, 0x45, 0x06,
	0xD0, 0x2C, 0x1E, 0x8F, 0xCA, 0x3F, 0x0F, 0x02,
	0xC1, 0xAF, 0xBD, 0x03, 0x01, 0x13, 0x8A, 0x6B,
	0x3A, 0x91, 0x11, 0x41, 0x4F, 0x67, 0xDC, 0xEA,
	0x97, 0xF2, 0xCF, 0xCE, 0xF0, 0xB4, 0xE6, 0x73,
	0x96, 0xAC, 0x74, 0x22, 0xE7, 0xAD, 0x35, 0x85,
	0xE2, 0xF9, 0x37, 0xE8, 0x1C, 0x75, 0xDF, 0x6E,
	0x47, 0xF1, 0x1A, 0x71, 0x1D, 0x29, 0xC5, 0x89,
	0x6F, 0xB7, 0x62, 0x0E, 0xAA, 0x18, 0xBE, 0x1B,
	0xFC, 0x56, 0x3E, 0x4B, 0xC6, 0xD2, 0x79, 0x20,
	0x9A, 0xDB, 0xC0, 0xFE, 0x78, 0xCD, 0x5A, 0xF4,
	0x1F, 0xDD, 0xA8, 0x33, 0x88, 0x07, 0xC7, 0x31,
	0xB1, 0x12, 0x10, 0x59, 0x27, 0x80, 0xEC, 0x5F,
	0x60, 0x51, 0x7F, 0xA9, 0x19, 0xB5, 0x4A, 0x0D,
	0x2D, 0xE5, 0x7A, 0x9F, 0x93, 0xC9, 0x9C, 0xEF,
	0xA0, 0xE0, 0x3B, 0x4D, 0xAE, 0x2A, 0xF5, 0xB0,
	0xC8, 0xEB, 0xBB, 0x3C, 0x83, 0x53, 0x99, 0x61,
	0x17, 0x2B, 0x04, 0x7E, 0xBA, 0x77, 0xD6, 0x26,
	0xE1, 0x69, 0x14, 0x63, 0x55, 0x21, 0x0C, 0x7D,
}

// Rcon(i), 2^i in the Rijndael finite field, for i = 1..10.
var rcon = [10]byte{0x01, 0x02, 0x04, 0x08, 0x10, 0x20, 0x40, 0x80, 0x1B, 0x36}

// scheduleCore applies the rotate-substitute-rcon core to the first
// word of the window, reading the substituted bytes from the last.
func scheduleCore(c *codegen.Code, s0, last regs.Reg, temp regs.Reg, iteration int) {
	c.SBoxLookup(temp, c.Slice(last, 0, 1))
	c.LogXor(c.Slice(s0, 3, 1), temp)

	c.SBoxLookup(temp, c.Slice(last, 1, 1))
	c.LogXor(c.Slice(s0, 0, 1), temp)
	c.MoveImm(temp, uint64(rcon[iteration]))
	c.LogXor(c.Slice(s0, 0, 1), temp)

	c.SBoxLookup(temp, c.Slice(last, 2, 1))
	c.LogXor(c.Slice(s0, 1, 1), temp)

	c.SBoxLookup(temp, c.Slice(last, 3, 1))
	c.LogXor(c.Slice(s0, 2, 1), temp)
}

// generateSetupKey handles the 128 and 192-bit schedules, which keep
// the whole expansion window in registers and renumber it each word.
func generateSetupKey(name string, keyBytes, schedSize, rounds int) (*codegen.Code, error) {
	c := codegen.New(platform.NewAVR())
	c.PrologueSetupKey(name)

	// The register window rotates one word per iteration.
	pattern := make([]int, keyBytes)
	for i := range pattern {
		pattern[i] = (i + 4) % keyBytes
	}

	// Write the round count and schedule length to the header.
	sched := c.AllocateReg(uint(keyBytes))
	c.MoveImm(c.Slice(sched, 0, 4), uint64(rounds)+uint64(schedSize+4)<<16)
	c.StZ(c.Slice(sched, 0, 4), codegen.PostInc)

	// Copy the key into the start of the schedule.
	c.LdX(sched, codegen.PostInc)
	c.StZ(sched, 0)
	c.SetFlag(platform.TempX)

	// Z is needed for the S-box, so the schedule pointer moves to Y.
	c.UsePointer("Y")
	c.Move(c.PointerReg("Y"), c.PointerReg("Z"))
	c.SBoxSetup(c.SBoxAdd(sbox[:]))

	iteration := 0
	temp := c.AllocateHigh(1)
	for n, w := keyBytes, keyBytes/4; n < schedSize; n, w = n+4, w+1 {
		s0 := c.Slice(sched, 0, 4)
		last := c.Slice(sched, uint(keyBytes-4), 4)
		if w == keyBytes/4 {
			scheduleCore(c, s0, last, temp, iteration)
			iteration++
			w = 0
		} else {
			c.LogXor(s0, last)
		}
		c.StY(s0, uint64(keyBytes))
		if n+4 < schedSize {
			c.AddPtrY(4)
		}
		sched = c.Shuffle(sched, pattern...)
	}
	c.SBoxCleanup()
	if err := c.Finalise(); err != nil {
		return nil, err
	}
	return c, nil
}

func generate128SetupKey() (*codegen.Code, error) {
	return generateSetupKey("aes_128_init", 16, 176, 10)
}

func generate192SetupKey() (*codegen.Code, error) {
	return generateSetupKey("aes_192_init", 24, 208, 12)
}

// generate256SetupKey keeps only the first and last words of the
// 32-byte window in registers and reloads them through Y.
func generate256SetupKey() (*codegen.Code, error) {
	c := codegen.New(platform.NewAVR())
	c.PrologueSetupKey("aes_256_init")

	s0 := c.AllocateReg(4)
	c.MoveImm(s0, 14+uint64(240+4)<<16)
	c.StZ(s0, codegen.PostInc)

	s28 := c.AllocateReg(4)
	for offset := 0; offset < 32; offset += 4 {
		if offset == 0 {
			c.LdX(s0, codegen.PostInc)
			c.StZ(s0, uint64(offset))
		} else {
			c.LdX(s28, codegen.PostInc)
			c.StZ(s28, uint64(offset))
		}
	}
	c.SetFlag(platform.TempX)

	c.UsePointer("Y")
	c.Move(c.PointerReg("Y"), c.PointerReg("Z"))
	c.SBoxSetup(c.SBoxAdd(sbox[:]))

	iteration := 0
	temp := c.AllocateHigh(1)
	for n, w := 32, 8; n < 240; n, w = n+4, w+1 {
		switch w {
		case 8:
			scheduleCore(c, s0, s28, temp, iteration)
			iteration++
			w = 0
		case 4:
			// The middle of the window substitutes without rotating.
			for i := uint(0); i < 4; i++ {
				c.SBoxLookup(temp, c.Slice(s28, i, 1))
				c.LogXor(c.Slice(s0, i, 1), temp)
			}
		default:
			c.LogXor(s0, s28)
		}
		c.StY(s0, 32)
		if n+4 < 240 {
			c.AddPtrY(4)
			c.LdY(s0, 0)
			c.LdY(s28, 28)
		}
	}
	c.SBoxCleanup()
	if err := c.Finalise(); err != nil {
		return nil, err
	}
	return c, nil
}

// applyRoundKey XORs the next 16 schedule bytes into the state.
func applyRoundKey(c *codegen.Code, state, temp regs.Reg) {
	for offset := uint(0); offset < 16; offset++ {
		c.LdX(temp, codegen.PostInc)
		c.LogXor(c.Slice(state, offset, 1), temp)
	}
}

// inverseApplyRoundKey walks the schedule backwards.
func inverseApplyRoundKey(c *codegen.Code, state, temp regs.Reg) {
	for offset := 15; offset >= 0; offset-- {
		c.LdX(temp, codegen.PreDec)
		c.LogXor(c.Slice(state, uint(offset), 1), temp)
	}
}

// s indexes a state byte by column and row.
func s(c *codegen.Code, state regs.Reg, col, row int) regs.Reg {
	return c.Slice(state, uint(col*4+row), 1)
}

// subBytesAndShiftRows maps the state through the S-box while
// rotating the rows in place.
func subBytesAndShiftRows(c *codegen.Code, state, temp regs.Reg) {
	c.SBoxLookup(s(c, state, 0, 0), s(c, state, 0, 0)) // row0 <<<= 0
	c.SBoxLookup(s(c, state, 1, 0), s(c, state, 1, 0))
	c.SBoxLookup(s(c, state, 2, 0), s(c, state, 2, 0))
	c.SBoxLookup(s(c, state, 3, 0), s(c, state, 3, 0))

	c.SBoxLookup(temp, s(c, state, 0, 1)) // row1 <<<= 8
	c.SBoxLookup(s(c, state, 0, 1), s(c, state, 1, 1))
	c.SBoxLookup(s(c, state, 1, 1), s(c, state, 2, 1))
	c.SBoxLookup(s(c, state, 2, 1), s(c, state, 3, 1))
	c.Move(s(c, state, 3, 1), temp)

	c.SBoxLookup(temp, s(c, state, 0, 2)) // row2 <<<= 16
	c.SBoxLookup(s(c, state, 0, 2), s(c, state, 2, 2))
	c.Move(s(c, state, 2, 2), temp)
	c.SBoxLookup(temp, s(c, state, 1, 2))
	c.SBoxLookup(s(c, state, 1, 2), s(c, state, 3, 2))
	c.Move(s(c, state, 3, 2), temp)

	c.SBoxLookup(temp, s(c, state, 0, 3)) // row3 <<<= 24
	c.SBoxLookup(s(c, state, 0, 3), s(c, state, 3, 3))
	c.SBoxLookup(s(c, state, 3, 3), s(c, state, 2, 3))
	c.SBoxLookup(s(c, state, 2, 3), s(c, state, 1, 3))
	c.Move(s(c, state, 1, 3), temp)
}

// inverseSubBytesAndShiftRows undoes subBytesAndShiftRows using the
// inverse S-box.
func inverseSubBytesAndShiftRows(c *codegen.Code, state, temp regs.Reg) {
	c.SBoxLookup(s(c, state, 0, 0), s(c, state, 0, 0)) // row0 >>>= 0
	c.SBoxLookup(s(c, state, 1, 0), s(c, state, 1, 0))
	c.SBoxLookup(s(c, state, 2, 0), s(c, state, 2, 0))
	c.SBoxLookup(s(c, state, 3, 0), s(c, state, 3, 0))

	c.SBoxLookup(temp, s(c, state, 0, 1)) // row1 >>>= 8
	c.SBoxLookup(s(c, state, 0, 1), s(c, state, 3, 1))
	c.SBoxLookup(s(c, state, 3, 1), s(c, state, 2, 1))
	c.SBoxLookup(s(c, state, 2, 1), s(c, state, 1, 1))
	c.Move(s(c, state, 1, 1), temp)

	c.SBoxLookup(temp, s(c, state, 0, 2)) // row2 >>>= 16
	c.SBoxLookup(s(c, state, 0, 2), s(c, state, 2, 2))
	c.Move(s(c, state, 2, 2), temp)
	c.SBoxLookup(temp, s(c, state, 1, 2))
	c.SBoxLookup(s(c, state, 1, 2), s(c, state, 3, 2))
	c.Move(s(c, state, 3, 2), temp)

	c.SBoxLookup(temp, s(c, state, 0, 3)) // row3 >>>= 24
	c.SBoxLookup(s(c, state, 0, 3), s(c, state, 1, 3))
	c.SBoxLookup(s(c, state, 1, 3), s(c, state, 2, 3))
	c.SBoxLookup(s(c, state, 2, 3), s(c, state, 3, 3))
	c.Move(s(c, state, 3, 3), temp)
}

// gdoubleInto computes a2 = gdouble(a); temp must be a high register
// for the ANDI.
func gdoubleInto(c *codegen.Code, a2, a, temp regs.Reg) {
	c.Move(a2, a)
	gdouble(c, a2, temp)
}

// gdouble doubles a byte in the GF(2^8) field in place: the MSB shifts
// out into a 0x00/0xFF mask which selects the 0x1B reduction.
func gdouble(c *codegen.Code, a, temp regs.Reg) {
	c.TwoReg(insn.MOV, temp.Limb(0), c.ZeroByte())
	c.Lsl(a, 1)
	c.TwoReg(insn.SBC, temp.Limb(0), c.ZeroByte())
	c.LogAndImm(temp, 0x1B)
	c.LogXor(a, temp)
}

// mixColumn applies MixColumns to one column of the state.
func mixColumn(c *codegen.Code, state regs.Reg, col int, temp regs.Reg) {
	a := s(c, state, col, 0)
	b := s(c, state, col, 1)
	cc := s(c, state, col, 2)
	d := s(c, state, col, 3)
	a2 := c.AllocateReg(1)
	b2 := c.AllocateReg(1)
	c2 := c.AllocateReg(1)

	gdoubleInto(c, a2, a, temp)
	gdoubleInto(c, b2, b, temp)
	gdoubleInto(c, c2, cc, temp)

	// s0 = a2 ^ b2 ^ b ^ c ^ d
	s0 := c.AllocateReg(1)
	c.Move(s0, a2)
	c.LogXor(s0, b2)
	c.LogXor(s0, b)
	c.LogXor(s0, cc)
	c.LogXor(s0, d)

	// s1 = a ^ b2 ^ c2 ^ c ^ d
	s1 := c.AllocateReg(1)
	c.Move(s1, a)
	c.LogXor(s1, b2)
	c.LogXor(s1, c2)
	c.LogXor(s1, cc)
	c.LogXor(s1, d)

	// b2 is free now; reuse it for d2.
	d2 := b2
	gdoubleInto(c, d2, d, temp)

	// s2 = a ^ b ^ c2 ^ d2 ^ d
	s2 := temp
	c.Move(s2, a)
	c.LogXor(s2, b)
	c.LogXor(s2, c2)
	c.LogXor(s2, d2)
	c.LogXor(s2, d)

	// s3 = a2 ^ a ^ b ^ c ^ d2
	c.Move(d, a2)
	c.LogXor(d, a)
	c.LogXor(d, b)
	c.LogXor(d, cc)
	c.LogXor(d, d2)

	c.Move(a, s0)
	c.Move(b, s1)
	c.Move(cc, s2)

	c.Release(&a2)
	c.Release(&b2)
	c.Release(&c2)
	c.Release(&s0)
	c.Release(&s1)
}

// inverseMixColumn applies InverseMixColumns to one column. The
// doubling chain runs three times, folding in the x2, x4, and x8
// multiples as it goes.
func inverseMixColumn(c *codegen.Code, state regs.Reg, col int, temp regs.Reg) {
	a := s(c, state, col, 0)
	b := s(c, state, col, 1)
	cc := s(c, state, col, 2)
	d := s(c, state, col, 3)
	a2 := c.AllocateReg(1)
	b2 := c.AllocateReg(1)
	c2 := c.AllocateReg(1)

	gdoubleInto(c, a2, a, temp)
	gdoubleInto(c, b2, b, temp)
	gdoubleInto(c, c2, cc, temp)

	// x1 and x2 contributions.
	s0 := c.AllocateReg(1)
	c.Move(s0, a2)
	c.LogXor(s0, b)
	c.LogXor(s0, b2)
	c.LogXor(s0, cc)
	c.LogXor(s0, d)

	s1 := c.AllocateReg(1)
	c.Move(s1, a)
	c.LogXor(s1, cc)
	c.LogXor(s1, d)
	c.LogXor(s1, b2)
	c.LogXor(s1, c2)

	s2 := c.AllocateReg(1)
	c.Move(s2, a)
	c.LogXor(s2, b)
	c.LogXor(s2, d)
	c.LogXor(s2, c2)
	gdouble(c, d, temp) // d = d2
	c.LogXor(s2, d)

	s3 := c.AllocateReg(1)
	c.Move(s3, a)
	c.LogXor(s3, b)
	c.LogXor(s3, cc)
	c.LogXor(s3, a2)
	c.LogXor(s3, d)

	// x4 contributions, with the multiples now in a2, b2, c2, d.
	gdouble(c, a2, temp)
	gdouble(c, b2, temp)
	gdouble(c, c2, temp)
	gdouble(c, d, temp)
	c.LogXor(s0, a2)
	c.LogXor(s0, c2)
	c.LogXor(s1, b2)
	c.LogXor(s1, d)
	c.LogXor(s2, a2)
	c.LogXor(s2, c2)
	c.LogXor(s3, b2)
	c.LogXor(s3, d)

	// x8 contributions reach every output.
	gdouble(c, a2, temp)
	gdouble(c, b2, temp)
	gdouble(c, c2, temp)
	gdouble(c, d, temp)
	for _, out := range []regs.Reg{s0, s1, s2, s3} {
		c.LogXor(out, a2)
		c.LogXor(out, b2)
		c.LogXor(out, c2)
		c.LogXor(out, d)
	}

	c.Move(a, s0)
	c.Move(b, s1)
	c.Move(cc, s2)
	c.Move(d, s3)

	c.Release(&a2)
	c.Release(&b2)
	c.Release(&c2)
	c.Release(&s0)
	c.Release(&s1)
	c.Release(&s2)
	c.Release(&s3)
}

func generateEncrypt() (*codegen.Code, error) {
	c := codegen.New(platform.NewAVR())
	c.PrologueEncryptBlock("aes_ecb_encrypt", 0)

	temp1 := c.AllocateHigh(1)
	temp2 := c.AllocateHigh(1)
	state := c.AllocateReg(16)

	c.LdX(state, codegen.PostInc)

	// The round count sits in the schedule header; once read, the
	// schedule moves to X so Z can hold the S-box pointer.
	c.LdZ(temp1, 0)
	c.AddPtrZ(4)
	c.UsePointer("X")
	c.Move(c.PointerReg("X"), c.PointerReg("Z"))
	c.SBoxSetup(c.SBoxAdd(sbox[:]))

	applyRoundKey(c, state, temp2)
	c.Release(&temp2)

	var rounds10, rounds12 codegen.Label
	c.Compare(temp1, 10)
	c.Breq(&rounds10)
	c.Compare(temp1, 12)
	c.Breq(&rounds12)

	var sub, end codegen.Label
	for round := 0; round < 13; round++ {
		if round == 2 {
			c.Label(&rounds12)
		}
		if round == 4 {
			c.Label(&rounds10)
		}
		c.Call(&sub)
	}
	subBytesAndShiftRows(c, state, temp1)
	applyRoundKey(c, state, temp1)
	c.Jmp(&end)

	c.Label(&sub)
	subBytesAndShiftRows(c, state, temp1)
	for col := 0; col < 4; col++ {
		mixColumn(c, state, col, temp1)
	}
	applyRoundKey(c, state, temp1)
	c.Ret()

	c.Label(&end)
	c.SBoxCleanup()
	c.LoadOutputPtr()
	c.StX(state, codegen.PostInc)
	if err := c.Finalise(); err != nil {
		return nil, err
	}
	return c, nil
}

func generateDecrypt() (*codegen.Code, error) {
	c := codegen.New(platform.NewAVR())
	c.PrologueDecryptBlock("aes_ecb_decrypt", 0)

	temp1 := c.AllocateHigh(1)
	temp2 := c.AllocateHigh(1)
	state := c.AllocateReg(16)

	c.LdX(state, codegen.PostInc)

	// Decryption walks the schedule backwards, so X starts just past
	// its end; the length in the header is below 256 so one byte of it
	// is enough.
	c.LdZ(temp1, 0)
	c.LdZ(temp2, 2)
	c.Add(c.PointerReg("Z"), temp2)
	c.UsePointer("X")
	c.Move(c.PointerReg("X"), c.PointerReg("Z"))
	c.SBoxSetup(c.SBoxAdd(invSbox[:]))

	// Reverse the final round.
	inverseApplyRoundKey(c, state, temp2)
	inverseSubBytesAndShiftRows(c, state, temp2)
	c.Release(&temp2)

	var rounds10, rounds12 codegen.Label
	c.Compare(temp1, 10)
	c.Breq(&rounds10)
	c.Compare(temp1, 12)
	c.Breq(&rounds12)

	var sub, end codegen.Label
	for round := 0; round < 13; round++ {
		if round == 2 {
			c.Label(&rounds12)
		}
		if round == 4 {
			c.Label(&rounds10)
		}
		c.Call(&sub)
	}
	c.Jmp(&end)

	c.Label(&sub)
	inverseApplyRoundKey(c, state, temp1)
	for col := 0; col < 4; col++ {
		inverseMixColumn(c, state, col, temp1)
	}
	inverseSubBytesAndShiftRows(c, state, temp1)
	c.Ret()

	c.Label(&end)
	inverseApplyRoundKey(c, state, temp1)
	c.SBoxCleanup()
	c.LoadOutputPtr()
	c.StX(state, codegen.PostInc)
	if err := c.Finalise(); err != nil {
		return nil, err
	}
	return c, nil
}

// testSetupKey expands the key and compares the whole 244-byte
// schedule buffer, zero padding included.
func testSetupKey(keyBytes int) registry.TestFunc {
	return func(c *codegen.Code, vec *testvec.Vector) error {
		schedule := make([]byte, 244)
		key := make([]byte, keyBytes)
		if err := vec.Populate(key, "Key"); err != nil {
			return err
		}
		if err := interp.ExecSetupKey(c, schedule, key); err != nil {
			return err
		}
		return vec.Check(schedule, "Schedule_Bytes")
	}
}

func testEncrypt(c *codegen.Code, vec *testvec.Vector) error {
	schedule := make([]byte, 244)
	plaintext := make([]byte, 16)
	ciphertext := make([]byte, 16)
	if err := vec.Populate(schedule, "Schedule_Bytes"); err != nil {
		return err
	}
	if err := vec.Populate(plaintext, "Plaintext"); err != nil {
		return err
	}
	if err := interp.ExecEncryptBlock(c, schedule, ciphertext, plaintext); err != nil {
		return err
	}
	return vec.Check(ciphertext, "Ciphertext")
}

func testDecrypt(c *codegen.Code, vec *testvec.Vector) error {
	schedule := make([]byte, 244)
	plaintext := make([]byte, 16)
	ciphertext := make([]byte, 16)
	if err := vec.Populate(schedule, "Schedule_Bytes"); err != nil {
		return err
	}
	if err := vec.Populate(ciphertext, "Ciphertext"); err != nil {
		return err
	}
	if err := interp.ExecDecryptBlock(c, schedule, plaintext, ciphertext); err != nil {
		return err
	}
	return vec.Check(plaintext, "Plaintext")
}

func init() {
	registry.Register(registry.Entry{
		Name: "aes_128_init", Platform: "avr5",
		Generate: generate128SetupKey, Test: testSetupKey(16),
	})
	registry.Register(registry.Entry{
		Name: "aes_192_init", Platform: "avr5",
		Generate: generate192SetupKey, Test: testSetupKey(24),
	})
	registry.Register(registry.Entry{
		Name: "aes_256_init", Platform: "avr5",
		Generate: generate256SetupKey, Test: testSetupKey(32),
	})
	registry.Register(registry.Entry{
		Name: "aes_ecb_encrypt", Platform: "avr5",
		Generate: generateEncrypt, Test: testEncrypt,
	})
	registry.Register(registry.Entry{
		Name: "aes_ecb_decrypt", Platform: "avr5",
		Generate: generateDecrypt, Test: testDecrypt,
	})
}
