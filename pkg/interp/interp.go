// Package interp executes a generated function's instruction records
// directly, giving every opcode a reference evaluation. It models the
// register file at the platform's native stride, a flat data memory, a
// separate program memory holding the embedded tables, and the carry,
// zero, negative and overflow flags, so the carry cascades and
// decrement-and-branch loops the generator emits behave exactly as
// they would on hardware. Known-answer tests drive it through the
// entry points in exec.go.
package interp

import (
	"errors"
	"fmt"
	"io"
	mathbits "math/bits"

	"github.com/gencrypto/gencrypto/pkg/codegen"
	"github.com/gencrypto/gencrypto/pkg/insn"
	"github.com/gencrypto/gencrypto/pkg/platform"
	"github.com/gencrypto/gencrypto/pkg/regs"
)

// ErrBadProgram reports an instruction record the evaluator cannot
// give a meaning to.
var ErrBadProgram = errors.New("bad program")

// ErrBudgetExceeded reports a run that did not return within the
// instruction budget, almost always a loop whose exit compare never
// matches.
var ErrBudgetExceeded = errors.New("instruction budget exceeded")

// ErrBadAddress reports a data or table access outside the mapped
// memory.
var ErrBadAddress = errors.New("address out of range")

// ramSize is the flat data memory. Buffers are placed from ramBase
// upward by the drivers.
const (
	ramSize = 1 << 16
	ramBase = 0x0100
)

// defaultBudget bounds a single run. The largest generated function,
// the 1600-bit permutation, retires well under a million records.
const defaultBudget = 1 << 26

// maxSpill bounds the argument bytes passed above the register list.
const maxSpill = 64

// Machine holds the execution state for one generated function.
type Machine struct {
	code   *codegen.Code
	plat   *platform.Platform
	native uint
	addr   uint

	regs   [64]uint64
	ram    []byte
	next   uint64
	prog   []byte
	tables []uint64
	labels map[insn.Label]int
	stack  []byte
	calls  []int
	spill  [maxSpill]byte

	flagC, flagZ, flagN, flagV bool

	// Out receives the PRINT diagnostics. Discarded by default.
	Out io.Writer
}

// New prepares a machine for a finalised, error-free function. The
// embedded tables are laid out in program memory on 256-byte
// boundaries, matching the alignment the emitter gives them, and the
// frame pointer is seeded with a local frame of the declared size.
func New(c *codegen.Code) (*Machine, error) {
	if err := c.Err(); err != nil {
		return nil, err
	}
	m := &Machine{
		code:   c,
		plat:   c.Platform(),
		native: uint(c.Platform().NativeWordSize()),
		addr:   uint(c.Platform().AddressWordSize()),
		ram:    make([]byte, ramSize),
		next:   ramBase,
		labels: make(map[insn.Label]int),
		Out:    io.Discard,
	}
	for index, i := range c.Insns() {
		if i.Op == insn.LABEL {
			m.labels[i.Label()] = index
		}
	}
	m.prog = make([]byte, 256)
	for t := 0; t < c.NumTables(); t++ {
		base := (len(m.prog) + 255) &^ 255
		table := c.Table(t)
		m.prog = append(m.prog[:base:base], table...)
		m.tables = append(m.tables, uint64(base))
	}
	if bytes := c.LocalBytes(); bytes > 0 {
		frame := m.Place(make([]byte, bytes))
		y := m.plat.Pointer("Y")
		if y.IsNull() {
			return nil, fmt.Errorf("%w: locals without a frame pointer", ErrBadProgram)
		}
		m.storeSpan(y.Number(0), m.addr, frame)
	}
	return m, nil
}

// Place copies buf into data memory and returns its address.
func (m *Machine) Place(buf []byte) uint64 {
	addr := m.next
	copy(m.ram[addr:], buf)
	m.next += uint64(len(buf))
	m.next = (m.next + 7) &^ 7
	return addr
}

// Read copies n bytes of data memory starting at addr.
func (m *Machine) Read(addr uint64, n int) []byte {
	out := make([]byte, n)
	copy(out, m.ram[addr:])
	return out
}

func maskBits(bits uint) uint64 {
	if bits >= 64 {
		return ^uint64(0)
	}
	return (uint64(1) << bits) - 1
}

// loadSpan reads a value spanning consecutive register numbers at the
// native stride, least significant first.
func (m *Machine) loadSpan(num uint8, bits uint) uint64 {
	words := int((bits + m.native - 1) / m.native)
	var v uint64
	for w := 0; w < words; w++ {
		v |= (m.regs[int(num)+w] & maskBits(m.native)) << (uint(w) * m.native)
	}
	return v & maskBits(bits)
}

func (m *Machine) storeSpan(num uint8, bits uint, v uint64) {
	words := int((bits + m.native - 1) / m.native)
	for w := 0; w < words; w++ {
		m.regs[int(num)+w] = (v >> (uint(w) * m.native)) & maskBits(m.native)
	}
}

func (m *Machine) load(s regs.Sized) uint64 {
	return m.loadSpan(s.Number(), uint(s.Size))
}

func (m *Machine) store(s regs.Sized, v uint64) {
	m.storeSpan(s.Number(), uint(s.Size), v&maskBits(uint(s.Size)))
}

// src2 evaluates the second operand: a register, optionally passed
// through the inline shift modifier, or the immediate field.
func (m *Machine) src2(i insn.Insn) (uint64, error) {
	if i.HasSrc2() {
		v := m.load(i.Src2)
		if i.Shift == 0 {
			return v, nil
		}
		size := uint(i.Src2.Size)
		s := uint(i.Shift)
		switch i.Mod {
		case insn.ModLSL:
			return (v << s) & maskBits(size), nil
		case insn.ModLSR:
			return v >> s, nil
		case insn.ModASR:
			sign := v & (uint64(1) << (size - 1))
			v >>= s
			if sign != 0 {
				v |= maskBits(size) &^ maskBits(size-s)
			}
			return v, nil
		case insn.ModROR:
			s %= size
			return ((v >> s) | (v << (size - s))) & maskBits(size), nil
		}
		return 0, fmt.Errorf("%w: modifier %d", ErrBadProgram, i.Mod)
	}
	return i.Imm, nil
}

func (m *Machine) setZN(v uint64, bits uint) {
	m.flagZ = v == 0
	m.flagN = v&(uint64(1)<<(bits-1)) != 0
}

// addFlags computes a + b + cin at the given width, updating all four
// flags, and returns the result.
func (m *Machine) addFlags(a, b uint64, cin bool, width uint) uint64 {
	var carry uint64
	if cin {
		carry = 1
	}
	full, out := mathbits.Add64(a, b, carry)
	r := full & maskBits(width)
	if width == 64 {
		m.flagC = out != 0
	} else {
		m.flagC = full > maskBits(width)
	}
	sign := uint64(1) << (width - 1)
	m.flagV = (a&sign) == (b&sign) && (r&sign) != (a&sign)
	m.setZN(r, width)
	return r
}

// subFlags computes a - b - bin at the given width. The carry flag
// holds the borrow, as the branch conditions expect after a compare.
// With sticky set the zero flag only stays set when it already was,
// the behaviour of the with-borrow forms that lets a multi-limb
// compare feed a single equality branch.
func (m *Machine) subFlags(a, b uint64, bin, sticky bool, width uint) uint64 {
	var borrow uint64
	if bin {
		borrow = 1
	}
	a &= maskBits(width)
	b &= maskBits(width)
	full, out := mathbits.Sub64(a, b, borrow)
	r := full & maskBits(width)
	if width == 64 {
		m.flagC = out != 0
	} else {
		m.flagC = full > maskBits(width)
	}
	sign := uint64(1) << (width - 1)
	m.flagV = (a&sign) != (b&sign) && (r&sign) != (a&sign)
	wasZ := m.flagZ
	m.setZN(r, width)
	if sticky {
		m.flagZ = m.flagZ && wasZ
	}
	return r
}

func memWidth(i insn.Insn) uint {
	switch i.Op {
	case insn.LD8, insn.LD8S, insn.LD8Array, insn.LD8SArray,
		insn.ST8, insn.ST8Array, insn.LDPM:
		return 1
	case insn.LD16, insn.LD16S, insn.LD16Array, insn.LD16SArray,
		insn.ST16, insn.ST16Array:
		return 2
	case insn.LD32, insn.LD32S, insn.LD32Array, insn.LD32SArray,
		insn.ST32, insn.ST32Array:
		return 4
	}
	return 8
}

func (m *Machine) readMem(addr uint64, width uint) (uint64, error) {
	if addr+uint64(width) > uint64(len(m.ram)) {
		return 0, fmt.Errorf("%w: read %d at %#x", ErrBadAddress, width, addr)
	}
	var v uint64
	for w := uint(0); w < width; w++ {
		v |= uint64(m.ram[addr+uint64(w)]) << (8 * w)
	}
	return v, nil
}

func (m *Machine) writeMem(addr uint64, width uint, v uint64) error {
	if addr+uint64(width) > uint64(len(m.ram)) {
		return fmt.Errorf("%w: write %d at %#x", ErrBadAddress, width, addr)
	}
	for w := uint(0); w < width; w++ {
		m.ram[addr+uint64(w)] = byte(v >> (8 * w))
	}
	return nil
}

// memAccess resolves the effective address of a displacement-form
// load or store and applies the pointer-stepping sentinels.
func (m *Machine) memAccess(i insn.Insn, width uint) (uint64, error) {
	base := i.Src1.Number()
	ptr := m.loadSpan(base, m.addr)
	switch i.Imm {
	case insn.PostInc:
		m.storeSpan(base, m.addr, (ptr+uint64(width))&maskBits(m.addr))
		return ptr, nil
	case insn.PreDec:
		ptr = (ptr - uint64(width)) & maskBits(m.addr)
		m.storeSpan(base, m.addr, ptr)
		return ptr, nil
	}
	return ptr + i.Imm, nil
}

func signExtend(v uint64, from, to uint) uint64 {
	if v&(uint64(1)<<(from-1)) != 0 {
		v |= maskBits(to) &^ maskBits(from)
	}
	return v & maskBits(to)
}

func (m *Machine) branchTaken(op insn.Op) (bool, error) {
	switch op {
	case insn.BREQ:
		return m.flagZ, nil
	case insn.BRNE:
		return !m.flagZ, nil
	case insn.BRCC:
		return !m.flagC, nil
	case insn.BRCS:
		return m.flagC, nil
	case insn.BRLTU:
		return m.flagC, nil
	case insn.BRGEU:
		return !m.flagC, nil
	case insn.BRGTU:
		return !m.flagC && !m.flagZ, nil
	case insn.BRLEU:
		return m.flagC || m.flagZ, nil
	case insn.BRLTS:
		return m.flagN != m.flagV, nil
	case insn.BRGES:
		return m.flagN == m.flagV, nil
	case insn.BRGTS:
		return !m.flagZ && m.flagN == m.flagV, nil
	case insn.BRLES:
		return m.flagZ || m.flagN != m.flagV, nil
	}
	return false, fmt.Errorf("%w: branch %s", ErrBadProgram, op)
}

func (m *Machine) target(id insn.Label) (int, error) {
	index, ok := m.labels[id]
	if !ok {
		return 0, fmt.Errorf("%w: label %d has no definition", ErrBadProgram, id)
	}
	return index, nil
}

// Run executes the function from its first record until the entry
// frame returns.
func (m *Machine) Run() error {
	pc := 0
	insns := m.code.Insns()
	for steps := 0; steps < defaultBudget; steps++ {
		if pc >= len(insns) {
			return fmt.Errorf("%w: fell off the end of the buffer", ErrBadProgram)
		}
		next, done, err := m.step(insns[pc], pc)
		if err != nil {
			return fmt.Errorf("insn %d (%s): %w", pc, insns[pc].Op, err)
		}
		if done {
			return nil
		}
		pc = next
	}
	return ErrBudgetExceeded
}

func (m *Machine) step(i insn.Insn, pc int) (next int, done bool, err error) {
	next = pc + 1
	bits := uint(i.Dest.Size)

	switch i.Op {
	case insn.NOP, insn.LABEL, insn.SBOX, insn.Unknown:

	case insn.MOV:
		m.store(i.Dest, m.load(i.Src1))
	case insn.MOVI, insn.LDI:
		m.store(i.Dest, i.Imm)
	case insn.MOVN:
		m.store(i.Dest, ^i.Imm)
	case insn.MOVW:
		m.store(i.Dest, (m.load(i.Dest)&^maskBits(16))|(i.Imm&maskBits(16)))
	case insn.MOVT:
		m.store(i.Dest, (m.load(i.Dest)&maskBits(16))|((i.Imm&maskBits(16))<<16))

	case insn.ADD, insn.ADDI:
		b, e := m.src2(i)
		if e != nil {
			return 0, false, e
		}
		m.store(i.Dest, m.addFlags(m.load(i.Src1), b&maskBits(bits), false, bits))
	case insn.ADC, insn.ADCI:
		b, e := m.src2(i)
		if e != nil {
			return 0, false, e
		}
		m.store(i.Dest, m.addFlags(m.load(i.Src1), b&maskBits(bits), m.flagC, bits))
	case insn.SUB, insn.SUBI:
		b, e := m.src2(i)
		if e != nil {
			return 0, false, e
		}
		m.store(i.Dest, m.subFlags(m.load(i.Src1), b, false, false, bits))
	case insn.SBC, insn.SBCI:
		b, e := m.src2(i)
		if e != nil {
			return 0, false, e
		}
		m.store(i.Dest, m.subFlags(m.load(i.Src1), b, m.flagC, true, bits))
	case insn.SUBR, insn.SUBRI:
		b, e := m.src2(i)
		if e != nil {
			return 0, false, e
		}
		m.store(i.Dest, m.subFlags(b, m.load(i.Src1), false, false, bits))

	case insn.CMP, insn.CMPI:
		bits = uint(i.Src1.Size)
		b, e := m.src2(i)
		if e != nil {
			return 0, false, e
		}
		m.subFlags(m.load(i.Src1), b, i.Opt == insn.SetC && m.flagC, i.Opt == insn.SetC, bits)
	case insn.CMPNI:
		bits = uint(i.Src1.Size)
		m.subFlags(m.load(i.Src1), (-i.Imm)&maskBits(bits), false, false, bits)

	case insn.AND, insn.ANDI:
		b, e := m.src2(i)
		if e != nil {
			return 0, false, e
		}
		r := (m.load(i.Src1) & b) & maskBits(bits)
		m.store(i.Dest, r)
		m.setZN(r, bits)
	case insn.OR, insn.ORI:
		b, e := m.src2(i)
		if e != nil {
			return 0, false, e
		}
		r := (m.load(i.Src1) | b) & maskBits(bits)
		m.store(i.Dest, r)
		m.setZN(r, bits)
	case insn.XOR, insn.XORI:
		b, e := m.src2(i)
		if e != nil {
			return 0, false, e
		}
		r := (m.load(i.Src1) ^ b) & maskBits(bits)
		m.store(i.Dest, r)
		m.setZN(r, bits)
	case insn.BIC, insn.BICI:
		b, e := m.src2(i)
		if e != nil {
			return 0, false, e
		}
		r := (m.load(i.Src1) &^ b) & maskBits(bits)
		m.store(i.Dest, r)
		m.setZN(r, bits)

	case insn.NOT:
		r := ^m.load(i.Src1) & maskBits(bits)
		m.store(i.Dest, r)
		m.setZN(r, bits)
		m.flagC = true
	case insn.NEG:
		r := (-m.load(i.Src1)) & maskBits(bits)
		m.store(i.Dest, r)
		m.setZN(r, bits)
		m.flagC = r != 0

	case insn.EXTU:
		m.store(i.Dest, m.load(i.Src1))
	case insn.EXTS:
		m.store(i.Dest, signExtend(m.load(i.Src1), uint(i.Src1.Size), bits))

	case insn.LSL:
		v := m.load(i.Src1)
		m.flagC = v&(uint64(1)<<(bits-1)) != 0
		r := (v << 1) & maskBits(bits)
		m.store(i.Dest, r)
		m.setZN(r, bits)
	case insn.LSR:
		v := m.load(i.Src1)
		m.flagC = v&1 != 0
		r := v >> 1
		m.store(i.Dest, r)
		m.setZN(r, bits)
	case insn.ASR:
		v := m.load(i.Src1)
		m.flagC = v&1 != 0
		r := signExtend(v>>1, bits-1, bits)
		m.store(i.Dest, r)
		m.setZN(r, bits)
	case insn.ROL:
		v := m.load(i.Src1)
		r := (v << 1) & maskBits(bits)
		if m.flagC {
			r |= 1
		}
		m.flagC = v&(uint64(1)<<(bits-1)) != 0
		m.store(i.Dest, r)
		m.setZN(r, bits)
	case insn.ROR:
		v := m.load(i.Src1)
		r := v >> 1
		if m.flagC {
			r |= uint64(1) << (bits - 1)
		}
		m.flagC = v&1 != 0
		m.store(i.Dest, r)
		m.setZN(r, bits)

	case insn.LSLI:
		r := (m.load(i.Src1) << i.Imm) & maskBits(bits)
		m.store(i.Dest, r)
		m.setZN(r, bits)
	case insn.LSRI:
		r := m.load(i.Src1) >> i.Imm
		m.store(i.Dest, r)
		m.setZN(r, bits)
	case insn.ASRI:
		r := signExtend(m.load(i.Src1)>>i.Imm, bits-uint(i.Imm), bits)
		m.store(i.Dest, r)
		m.setZN(r, bits)
	case insn.ROLI:
		s := uint(i.Imm) % bits
		v := m.load(i.Src1)
		r := ((v << s) | (v >> (bits - s))) & maskBits(bits)
		m.store(i.Dest, r)
		m.setZN(r, bits)
	case insn.RORI:
		s := uint(i.Imm) % bits
		v := m.load(i.Src1)
		r := ((v >> s) | (v << (bits - s))) & maskBits(bits)
		m.store(i.Dest, r)
		m.setZN(r, bits)
	case insn.FSLI:
		s := uint(i.Imm) % bits
		b, _ := m.src2(i)
		r := ((m.load(i.Src1) << s) | (b >> (bits - s))) & maskBits(bits)
		m.store(i.Dest, r)
	case insn.FSRI:
		s := uint(i.Imm) % bits
		b := m.load(i.Src2)
		r := ((m.load(i.Src1) >> s) | (b << (bits - s))) & maskBits(bits)
		m.store(i.Dest, r)
	case insn.SWAP:
		half := bits / 2
		v := m.load(i.Src1)
		m.store(i.Dest, ((v<<half)|(v>>half))&maskBits(bits))

	case insn.JMP:
		return m.jump(i)
	case insn.BREQ, insn.BRNE, insn.BRCC, insn.BRCS,
		insn.BRLTU, insn.BRGEU, insn.BRGTU, insn.BRLEU,
		insn.BRLTS, insn.BRGES, insn.BRGTS, insn.BRLES:
		taken, e := m.branchTaken(i.Op)
		if e != nil {
			return 0, false, e
		}
		if taken {
			return m.jump(i)
		}
	case insn.CMPBREQ, insn.CMPBRNE, insn.CMPIBREQ, insn.CMPIBRNE:
		a := m.load(i.Src1)
		b := i.Imm
		if i.HasSrc2() {
			b = m.load(i.Src2)
		}
		eq := a == b&maskBits(uint(i.Src1.Size))
		if i.Op == insn.CMPBRNE || i.Op == insn.CMPIBRNE {
			eq = !eq
		}
		if eq {
			return m.jump(i)
		}
	case insn.CALL:
		index, e := m.target(i.Label())
		if e != nil {
			return 0, false, e
		}
		m.calls = append(m.calls, pc+1)
		return index, false, nil
	case insn.RET:
		if len(m.calls) == 0 {
			return 0, true, nil
		}
		next = m.calls[len(m.calls)-1]
		m.calls = m.calls[:len(m.calls)-1]

	case insn.PUSH:
		v := m.load(i.Dest)
		for w := uint(0); w < bits/8; w++ {
			m.stack = append(m.stack, byte(v>>(8*w)))
		}
	case insn.POP:
		width := int(bits / 8)
		if len(m.stack) < width {
			return 0, false, fmt.Errorf("%w: pop from an empty stack", ErrBadProgram)
		}
		var v uint64
		for w := 0; w < width; w++ {
			v |= uint64(m.stack[len(m.stack)-width+w]) << (8 * w)
		}
		m.stack = m.stack[:len(m.stack)-width]
		m.store(i.Dest, v)

	case insn.LD8, insn.LD16, insn.LD32, insn.LD64, insn.LD8S, insn.LD16S, insn.LD32S:
		width := memWidth(i)
		addr, e := m.memAccess(i, width)
		if e != nil {
			return 0, false, e
		}
		v, e := m.readMem(addr, width)
		if e != nil {
			return 0, false, e
		}
		switch i.Op {
		case insn.LD8S, insn.LD16S, insn.LD32S:
			v = signExtend(v, width*8, bits)
		}
		m.store(i.Dest, v)
	case insn.ST8, insn.ST16, insn.ST32, insn.ST64:
		width := memWidth(i)
		addr, e := m.memAccess(i, width)
		if e != nil {
			return 0, false, e
		}
		if e := m.writeMem(addr, width, m.load(i.Dest)); e != nil {
			return 0, false, e
		}

	case insn.LD8Array, insn.LD16Array, insn.LD32Array, insn.LD64Array,
		insn.LD8SArray, insn.LD16SArray, insn.LD32SArray,
		insn.ST8Array, insn.ST16Array, insn.ST32Array, insn.ST64Array:
		width := memWidth(i)
		addr := m.loadSpan(i.Src1.Number(), m.addr) + (m.load(i.Src2) << i.Shift)
		switch i.Op {
		case insn.ST8Array, insn.ST16Array, insn.ST32Array, insn.ST64Array:
			if e := m.writeMem(addr, width, m.load(i.Dest)); e != nil {
				return 0, false, e
			}
		default:
			v, e := m.readMem(addr, width)
			if e != nil {
				return 0, false, e
			}
			switch i.Op {
			case insn.LD8SArray, insn.LD16SArray, insn.LD32SArray:
				v = signExtend(v, width*8, bits)
			}
			m.store(i.Dest, v)
		}

	case insn.LDPM:
		base := i.Src1.Number()
		addr := m.loadSpan(base, m.addr)
		if i.Imm == insn.PostInc {
			m.storeSpan(base, m.addr, (addr+1)&maskBits(m.addr))
		} else {
			addr += i.Imm
		}
		if addr >= uint64(len(m.prog)) {
			return 0, false, fmt.Errorf("%w: table read at %#x", ErrBadAddress, addr)
		}
		m.store(i.Dest, uint64(m.prog[addr]))

	case insn.LDLabel:
		if i.Imm >= uint64(len(m.tables)) {
			return 0, false, fmt.Errorf("%w: no table %d", ErrBadProgram, i.Imm)
		}
		m.storeSpan(i.Dest.Number(), m.addr, m.tables[i.Imm])

	case insn.LDARG8, insn.LDARG16, insn.LDARG32, insn.LDARG64:
		width := map[insn.Op]uint{
			insn.LDARG8: 1, insn.LDARG16: 2, insn.LDARG32: 4, insn.LDARG64: 8,
		}[i.Op]
		if i.Imm+uint64(width) > maxSpill {
			return 0, false, fmt.Errorf("%w: argument offset %d", ErrBadProgram, i.Imm)
		}
		var v uint64
		for w := uint(0); w < width; w++ {
			v |= uint64(m.spill[i.Imm+uint64(w)]) << (8 * w)
		}
		m.store(i.Dest, v)

	case insn.PRINT:
		fmt.Fprintf(m.Out, "%#x", m.load(i.Src1))
	case insn.PRINTCH:
		fmt.Fprintf(m.Out, "%c", rune(i.Imm))
	case insn.PRINTLN:
		fmt.Fprintln(m.Out)

	default:
		return 0, false, fmt.Errorf("%w: no evaluation for %s", ErrBadProgram, i.Op)
	}
	return next, false, nil
}

func (m *Machine) jump(i insn.Insn) (int, bool, error) {
	index, err := m.target(i.Label())
	return index, false, err
}
