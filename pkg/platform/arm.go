package platform

import (
	"fmt"
	"io"
	"strings"

	"github.com/gencrypto/gencrypto/pkg/insn"
	"github.com/gencrypto/gencrypto/pkg/regs"
)

// The ARM family shares one selection strategy parameterised by the
// platform's feature flags: prefer the short two-address Thumb form
// when the destination aliases the first source and both registers sit
// in the low half, fall back to the three-address form, and fail when
// neither is available.

type armHooks struct {
	valid func(op insn.Op, value insn.ImmValue, size regs.Size) bool
	move  func(p *Platform, dest regs.Sized, value insn.ImmValue) []insn.Insn
}

func isLowReg(r regs.Sized) bool { return r.Number() < 8 }

func (h *armHooks) Unary(p *Platform, op insn.Op, dest, src regs.Sized) ([]insn.Insn, error) {
	if p.HasFeature(TwoAddress) && isLowReg(dest) && isLowReg(src) {
		return []insn.Insn{insn.Unary(op, dest, src, insn.Short)}, nil
	}
	if p.HasFeature(ThreeAddress) {
		return []insn.Insn{insn.Unary(op, dest, src, insn.None)}, nil
	}
	return nil, fmt.Errorf("%w: unary %s on %s", ErrInvalidInstruction, op, p.Name())
}

func setcOpt(setc bool) insn.Option {
	if setc {
		return insn.SetC
	}
	return insn.None
}

func (h *armHooks) Binary(p *Platform, op insn.Op, dest, src1, src2 regs.Sized, setc bool) ([]insn.Insn, error) {
	if p.HasFeature(TwoAddress) && dest.Equal(src1) && isLowReg(dest) && isLowReg(src2) {
		return []insn.Insn{insn.Binary(op, dest, src1, src2, insn.Short)}, nil
	}
	if p.HasFeature(ThreeAddress) {
		return []insn.Insn{insn.Binary(op, dest, src1, src2, setcOpt(setc))}, nil
	}
	return nil, fmt.Errorf("%w: binary %s on %s", ErrInvalidInstruction, op, p.Name())
}

func (h *armHooks) BinaryShifted(p *Platform, op insn.Op, dest, src1, src2 regs.Sized,
	mod insn.Modifier, shift uint8, setc bool) ([]insn.Insn, error) {
	plain := mod == insn.ModNone || shift == 0
	if p.HasFeature(TwoAddress) && dest.Equal(src1) && isLowReg(dest) && isLowReg(src2) && plain {
		return []insn.Insn{insn.Binary(op, dest, src1, src2, insn.Short)}, nil
	}
	if p.HasFeature(ThreeAddress) {
		if plain {
			return []insn.Insn{insn.Binary(op, dest, src1, src2, setcOpt(setc))}, nil
		}
		return []insn.Insn{insn.BinaryShifted(op, dest, src1, src2, mod, shift, setcOpt(setc))}, nil
	}
	return nil, fmt.Errorf("%w: shifted binary %s on %s", ErrInvalidInstruction, op, p.Name())
}

func (h *armHooks) BinaryImm(p *Platform, op insn.Op, dest, src1 regs.Sized,
	imm insn.ImmValue, setc bool) ([]insn.Insn, error) {
	if !h.valid(op, imm, dest.Size) {
		return nil, fmt.Errorf("%w: %s #%d", ErrInvalidImmediate, op, imm)
	}
	if p.HasFeature(TwoAddress) && dest.Equal(src1) && isLowReg(dest) {
		return []insn.Insn{insn.BinaryImm(op, dest, src1, imm, insn.Short)}, nil
	}
	if p.HasFeature(ThreeAddress) {
		return []insn.Insn{insn.BinaryImm(op, dest, src1, imm, setcOpt(setc))}, nil
	}
	return nil, fmt.Errorf("%w: immediate binary %s on %s", ErrInvalidInstruction, op, p.Name())
}

func (h *armHooks) MoveImm(p *Platform, dest regs.Sized, value insn.ImmValue) ([]insn.Insn, error) {
	return h.move(p, dest, value), nil
}

func (h *armHooks) ValidImm(op insn.Op, value insn.ImmValue, size regs.Size) bool {
	return h.valid(op, value, size)
}

// isOperand2ARMv6 reports whether a constant fits the flexible second
// operand: an 8-bit quantity rotated right by a multiple of 2 bits.
func isOperand2ARMv6(value uint32) bool {
	if value < 256 {
		return true
	}
	for shift := 2; shift <= 30; shift += 2 {
		value = value<<2 | value>>30
		if value < 256 {
			return true
		}
	}
	return false
}

func validImmARMv6(op insn.Op, value insn.ImmValue, size regs.Size) bool {
	switch op {
	case insn.ADCI, insn.ADDI, insn.ANDI, insn.BICI, insn.MOVI, insn.MOVN,
		insn.ORI, insn.SBCI, insn.SUBI, insn.SUBRI, insn.XORI:
		return isOperand2ARMv6(uint32(value))
	case insn.CMPI, insn.CMPNI:
		return isOperand2ARMv6(uint32(value)) || isOperand2ARMv6(uint32(-value))
	case insn.ASRI, insn.LSLI, insn.LSRI, insn.ROLI, insn.RORI:
		return value < 32
	case insn.LD8, insn.LD8S, insn.ST8, insn.LD16, insn.LD16S, insn.ST16,
		insn.LD32, insn.LD32S, insn.ST32:
		offset := int64(value)
		return offset >= -4095 && offset <= 4095
	}
	return false
}

func moveImmARMv6(p *Platform, dest regs.Sized, value insn.ImmValue) []insn.Insn {
	val := uint32(value)
	switch {
	case isOperand2ARMv6(val):
		return []insn.Insn{insn.MoveImm(insn.MOVI, dest, insn.ImmValue(val), insn.None)}
	case isOperand2ARMv6(^val):
		return []insn.Insn{insn.MoveImm(insn.MOVN, dest, insn.ImmValue(^val), insn.None)}
	default:
		return []insn.Insn{insn.MoveImm(insn.LDI, dest, insn.ImmValue(val), insn.None)}
	}
}

// validImmThumb covers the constrained small immediates of the
// Thumb-only subset: 8-bit unsigned values with per-opcode limits and
// tightly bounded load/store displacements.
func validImmThumb(op insn.Op, value insn.ImmValue, size regs.Size) bool {
	switch op {
	case insn.ADDI, insn.CMPI, insn.MOVI, insn.SUBI:
		return value < 256
	case insn.ASRI, insn.LSLI, insn.LSRI:
		return value < 32
	case insn.SUBRI:
		return value == 0
	case insn.LD8, insn.ST8:
		return value <= 31
	case insn.LD16, insn.ST16:
		return value&1 == 0 && value <= 62
	case insn.LD32, insn.LD32S, insn.ST32:
		return value&3 == 0 && value <= 124
	}
	return false
}

func moveImmThumb(short bool) func(*Platform, regs.Sized, insn.ImmValue) []insn.Insn {
	return func(p *Platform, dest regs.Sized, value insn.ImmValue) []insn.Insn {
		val := uint32(value)
		if val < 256 && dest.Number() < 8 {
			opt := insn.None
			if short {
				opt = insn.Short
			}
			return []insn.Insn{insn.MoveImm(insn.MOVI, dest, insn.ImmValue(val), opt)}
		}
		return []insn.Insn{insn.MoveImm(insn.LDI, dest, insn.ImmValue(val), insn.None)}
	}
}

// isOperand2ARMv7m reports whether a constant fits a Thumb-2 modified
// immediate: a byte repeated as 00XY00XY, XY00XY00, or XYXYXYXY, or an
// 8-bit quantity with its top bit set rotated right by a multiple of 4.
func isOperand2ARMv7m(value uint32) bool {
	if value < 256 {
		return true
	}
	if value&0x00FF00FF == value && value>>16 == value&0xFF {
		return true
	}
	if value&0xFF00FF00 == value && value>>16 == value&0xFF00 {
		return true
	}
	if (value>>24)&0xFF == value&0xFF &&
		(value>>16)&0xFF == value&0xFF &&
		(value>>8)&0xFF == value&0xFF {
		return true
	}
	for shift := 0; shift <= 24; shift += 4 {
		mask := uint32(0xFF000000) >> shift
		if value&mask != value {
			continue
		}
		mask = uint32(0x80000000) >> shift
		if value&mask == mask {
			return true
		}
	}
	return false
}

func validImmARMv7m(op insn.Op, value insn.ImmValue, size regs.Size) bool {
	switch op {
	case insn.ADCI, insn.ADDI, insn.ANDI, insn.BICI, insn.MOVI, insn.MOVN,
		insn.ORI, insn.SBCI, insn.SUBI, insn.SUBRI, insn.XORI:
		return isOperand2ARMv7m(uint32(value))
	case insn.CMPI, insn.CMPNI:
		return isOperand2ARMv7m(uint32(value)) || isOperand2ARMv7m(uint32(-value))
	case insn.ASRI, insn.LSLI, insn.LSRI, insn.ROLI, insn.RORI:
		return value < 32
	case insn.LD8, insn.LD8S, insn.ST8, insn.LD16, insn.LD16S, insn.ST16,
		insn.LD32, insn.LD32S, insn.ST32:
		offset := int64(value)
		return offset >= -255 && offset <= 4095
	}
	return false
}

func moveImmARMv7m(p *Platform, dest regs.Sized, value insn.ImmValue) []insn.Insn {
	val := uint32(value)
	switch {
	case val < 256 && dest.Number() < 8:
		return []insn.Insn{insn.MoveImm(insn.MOVI, dest, insn.ImmValue(val), insn.Short)}
	case isOperand2ARMv7m(val):
		return []insn.Insn{insn.MoveImm(insn.MOVI, dest, insn.ImmValue(val), insn.None)}
	case isOperand2ARMv7m(^val):
		return []insn.Insn{insn.MoveImm(insn.MOVN, dest, insn.ImmValue(^val), insn.None)}
	default:
		out := []insn.Insn{insn.MoveImm(insn.MOVW, dest, insn.ImmValue(val&0xFFFF), insn.None)}
		if val&0xFFFF0000 != 0 {
			out = append(out, insn.BinaryImm(insn.MOVT, dest, dest,
				insn.ImmValue(val>>16&0xFFFF), insn.None))
		}
		return out
	}
}

// isMoveConstantARMv8a reports a 16-bit value shiftable into place by
// 0, 16, 32, or 48 bits.
func isMoveConstantARMv8a(value insn.ImmValue, size regs.Size) bool {
	if size == regs.Size64 {
		for shift := 0; shift < 64; shift += 16 {
			if value&(0xFFFF<<shift) == value {
				return true
			}
		}
		return false
	}
	val := uint32(value)
	return val&0x0000FFFF == val || val&0xFFFF0000 == val
}

// isLogicalConstantARMv8a reports a bitmask immediate: a run of Y > 0
// ones followed by X > 0 zeros, X+Y a power of two, tiled across the
// word and rotated.
func isLogicalConstantARMv8a(value insn.ImmValue, size regs.Size) bool {
	if size == regs.Size32 {
		value = value<<32 | insn.ImmValue(uint32(value))
	}
	if value == 0 || value == ^insn.ImmValue(0) {
		return false
	}
	for value&1 == 0 {
		value = value>>1 | value<<63
	}
	for value&0x8000000000000000 != 0 {
		value = value<<1 | value>>63
	}
	ones := uint(1)
	for value&(1<<ones) != 0 {
		ones++
	}
	zeroes := ones
	for zeroes < 64 && value&(1<<zeroes) == 0 {
		zeroes++
	}
	zeroes -= ones
	runSize := ones + zeroes
	if runSize == 64 {
		return true
	}
	switch runSize {
	case 2, 4, 8, 16, 32:
	default:
		return false
	}
	run := value & (1<<runSize - 1)
	for offset := runSize; offset < 64; offset += runSize {
		if (value>>offset)&(1<<runSize-1) != run {
			return false
		}
	}
	return true
}

func validImmARMv8a(op insn.Op, value insn.ImmValue, size regs.Size) bool {
	switch op {
	case insn.ADDI, insn.CMPI, insn.CMPNI, insn.SUBI:
		// A 12-bit constant shifted by 0 or 12 bit positions.
		return value&0x00000FFF == value || value&0x00FFF000 == value
	case insn.ANDI, insn.ORI, insn.XORI:
		return isLogicalConstantARMv8a(value, size)
	case insn.MOVI:
		return isMoveConstantARMv8a(value, size) || isLogicalConstantARMv8a(value, size)
	case insn.MOVN:
		return isMoveConstantARMv8a(value, size)
	case insn.ASRI, insn.LSLI, insn.LSRI, insn.ROLI, insn.RORI:
		if size == regs.Size64 {
			return value < 64
		}
		return value < 32
	case insn.LD8, insn.LD8S, insn.ST8:
		return value <= 4095
	case insn.LD16, insn.LD16S, insn.ST16:
		return value&1 == 0 && value <= 8190
	case insn.LD32, insn.LD32S, insn.ST32:
		return value&3 == 0 && value <= 16380
	case insn.LD64, insn.ST64:
		return value&7 == 0 && value <= 32760
	}
	return false
}

func shiftedMoveImm(op insn.Op, dest regs.Sized, value insn.ImmValue, shift uint8) insn.Insn {
	i := insn.MoveImm(op, dest, value, insn.None)
	if shift != 0 {
		i.Mod = insn.ModLSL
		i.Shift = shift
	}
	return i
}

func moveImmARMv8a(p *Platform, dest regs.Sized, value insn.ImmValue) []insn.Insn {
	if dest.Size == regs.Size64 {
		for shift := uint8(0); shift < 64; shift += 16 {
			if value&(0xFFFF<<shift) == value {
				return []insn.Insn{shiftedMoveImm(insn.MOVW, dest, value>>shift, shift)}
			}
		}
		inv := ^value
		for shift := uint8(0); shift < 64; shift += 16 {
			if value == ^(inv & (0xFFFF << shift)) {
				return []insn.Insn{shiftedMoveImm(insn.MOVN, dest, inv>>shift&0xFFFF, shift)}
			}
		}
		if isLogicalConstantARMv8a(value, dest.Size) {
			return []insn.Insn{insn.MoveImm(insn.MOVI, dest, value, insn.None)}
		}
		return []insn.Insn{insn.MoveImm(insn.LDI, dest, value, insn.None)}
	}
	val := uint32(value)
	switch {
	case insn.ImmValue(val)&0x0000FFFF == insn.ImmValue(val):
		return []insn.Insn{insn.MoveImm(insn.MOVI, dest, insn.ImmValue(val), insn.None)}
	case insn.ImmValue(val)&0xFFFF0000 == insn.ImmValue(val):
		return []insn.Insn{shiftedMoveImm(insn.MOVI, dest, insn.ImmValue(val>>16), 16)}
	case val == ^(^val & 0x0000FFFF):
		return []insn.Insn{insn.MoveImm(insn.MOVN, dest, insn.ImmValue(^val&0xFFFF), insn.None)}
	case val == ^(^val & 0xFFFF0000):
		return []insn.Insn{shiftedMoveImm(insn.MOVN, dest, insn.ImmValue(^val>>16&0xFFFF), 16)}
	case isLogicalConstantARMv8a(insn.ImmValue(val), dest.Size):
		return []insn.Insn{insn.MoveImm(insn.MOVI, dest, insn.ImmValue(val), insn.None)}
	default:
		return []insn.Insn{
			insn.MoveImm(insn.MOVI, dest, insn.ImmValue(val&0xFFFF), insn.None),
			{
				Op:     insn.MOVT,
				Mod:    insn.ModLSL,
				Shift:  16,
				Dest:   dest,
				Src1:   dest,
				Imm:    insn.ImmValue(val >> 16 & 0xFFFF),
				Fields: insn.FieldDest | insn.FieldSrc1 | insn.FieldImm,
			},
		}
	}
}

// arm32Registers installs the common r0..r15 inventory. Argument
// registers r0..r3 are listed in reverse so that earlier argument
// slots are not consumed before they are read.
func arm32Registers(p *Platform, lowFlags, highFlags, saveExtra, addrOnly, temp regs.Flags) {
	add := func(num uint8, name string, flags regs.Flags) {
		p.AddRegister(regs.Reg32(num, name, flags))
	}
	add(3, "r3", lowFlags)
	add(2, "r2", lowFlags)
	add(1, "r1", lowFlags)
	add(0, "r0", lowFlags)
	add(4, "r4", lowFlags|saveExtra)
	add(5, "r5", lowFlags|saveExtra)
	add(6, "r6", lowFlags|saveExtra)
	add(7, "r7", lowFlags|saveExtra)
	add(8, "r8", highFlags|saveExtra)
	add(9, "r9", highFlags|saveExtra)
	add(10, "r10", highFlags|saveExtra)
	add(12, "ip", highFlags|temp)
	add(11, "fp", highFlags|saveExtra)
	add(14, "lr", highFlags|saveExtra|regs.Link)
	sp := regs.Reg32(13, "sp", addrOnly|regs.StackPointer|regs.NoAllocate)
	p.AddRegister(sp)
	p.SetStackPointer(sp)
	add(15, "pc", addrOnly|regs.ProgramCounter|regs.NoAllocate)
	for num := uint8(0); num < 4; num++ {
		p.AddArgumentRegister(num)
	}
}

// NewARMv6 describes classic 32-bit ARM with three-address forms,
// shift-and-operate, and rotated 8-bit immediates.
func (h *armHooks) WriteFrameEnter(p *Platform, w io.Writer, saved []*regs.Basic, locals uint) error {
	if len(saved) > 0 {
		if _, err := fmt.Fprintf(w, "\tpush\t{%s}\n", regList(p, saved)); err != nil {
			return err
		}
	}
	if locals > 0 {
		if _, err := fmt.Fprintf(w, "\tsub\tsp, sp, #%d\n", locals); err != nil {
			return err
		}
	}
	return nil
}

func (h *armHooks) WriteFrameLeave(p *Platform, w io.Writer, saved []*regs.Basic, locals uint) error {
	if locals > 0 {
		if _, err := fmt.Fprintf(w, "\tadd\tsp, sp, #%d\n", locals); err != nil {
			return err
		}
	}
	if len(saved) > 0 {
		if _, err := fmt.Fprintf(w, "\tpop\t{%s}\n", regList(p, saved)); err != nil {
			return err
		}
	}
	return nil
}

func regList(p *Platform, saved []*regs.Basic) string {
	names := make([]string, len(saved))
	for i, b := range saved {
		names[i] = b.NameForSize(p.NativeWordSize())
	}
	return strings.Join(names, ", ")
}

func NewARMv6() *Platform {
	h := &armHooks{valid: validImmARMv6, move: moveImmARMv6}
	p := New("armv6", ThreeAddress|ShiftAndOperate|BitClear|UnaryDest,
		regs.Size32, regs.Size32, h)
	alu := regs.ThreeAddress | regs.Address | regs.Data
	arm32Registers(p, alu, alu, regs.CalleeSaved,
		regs.ThreeAddress|regs.Address, regs.Temporary)
	return p
}

// NewARMv6M describes the Thumb-only Cortex-M0 subset: two-address
// forms on the low registers, high registers usable for storage only.
func NewARMv6M() *Platform {
	h := &armHooks{valid: validImmThumb, move: moveImmThumb(true)}
	p := New("armv6m", TwoAddress|SplitRegisters|BitClear|UnaryDest,
		regs.Size32, regs.Size32, h)
	arm32Registers(p,
		regs.Address|regs.Data|regs.TwoAddress,
		regs.Storage,
		regs.CalleeSaved,
		regs.Address, regs.Temporary)
	return p
}

// NewARMv6MSim describes ARMv6-M semantics on an ARMv6 register model,
// used when simulating Thumb-subset output on a full ARM core.
func NewARMv6MSim() *Platform {
	h := &armHooks{valid: validImmThumb, move: moveImmThumb(false)}
	p := New("armv6m-sim", ThreeAddress|SplitRegisters|BitClear|UnaryDest,
		regs.Size32, regs.Size32, h)
	arm32Registers(p,
		regs.Address|regs.Data|regs.ThreeAddress,
		regs.Storage|regs.ThreeAddress,
		regs.CalleeSaved,
		regs.Address|regs.ThreeAddress, regs.Temporary)
	return p
}

// NewARMv7M describes Thumb-2: both encodings available, modified
// immediates, MOVW/MOVT synthesis.
func NewARMv7M() *Platform {
	h := &armHooks{valid: validImmARMv7m, move: moveImmARMv7m}
	p := New("armv7m", TwoAddress|ThreeAddress|ShiftAndOperate|BitClear|UnaryDest,
		regs.Size32, regs.Size32, h)
	alu := regs.ThreeAddress | regs.Address | regs.Data
	arm32Registers(p, alu|regs.TwoAddress, alu, regs.CalleeSaved,
		regs.ThreeAddress|regs.Address, regs.Temporary)
	// The two-address encodings only reach the low registers; the
	// constructor applied the flag there.
	return p
}

// NewARMv8A describes AArch64: register rich, 32-on-64 addressing,
// 16-bit shifted move immediates and bitmask logical immediates.
func NewARMv8A() *Platform {
	h := &armHooks{valid: validImmARMv8a, move: moveImmARMv8a}
	p := New("armv8a", ThreeAddress|ShiftAndOperate|RegisterRich|BitClear|UnaryDest,
		regs.Size64, regs.Size64, h)
	nosave := regs.ThreeAddress | regs.Address | regs.Data
	save := nosave | regs.CalleeSaved
	addrOnly := regs.ThreeAddress | regs.Address
	add := func(num uint8, flags regs.Flags) {
		p.AddRegister(regs.Reg3264(num, fmt.Sprintf("w%d", num), fmt.Sprintf("x%d", num), flags))
	}
	// Non-save, non-argument registers first in the allocation order.
	for num := uint8(9); num <= 15; num++ {
		add(num, nosave)
	}
	// Arguments x0..x8 in reverse; x8 is the indirect-result pointer.
	for num := int8(8); num >= 0; num-- {
		add(uint8(num), nosave)
	}
	// x16..x18 are platform reserved; there are plenty of others.
	for num := uint8(16); num <= 18; num++ {
		add(num, save|regs.NoAllocate)
	}
	for num := uint8(19); num <= 28; num++ {
		add(num, save)
	}
	p.AddRegister(regs.Reg64(29, "fp", save))
	p.AddRegister(regs.Reg64(30, "lr", save|regs.Link))
	sp := regs.Reg64(31, "sp", addrOnly|regs.StackPointer|regs.NoAllocate)
	p.AddRegister(sp)
	p.SetStackPointer(sp)
	p.AddRegister(regs.Reg64(32, "pc", addrOnly|regs.ProgramCounter|regs.NoAllocate))
	for num := uint8(0); num < 8; num++ {
		p.AddArgumentRegister(num)
	}
	return p
}

var armMnemonics = map[insn.Op]string{
	insn.ADC: "adc", insn.ADCI: "adc", insn.ADD: "add", insn.ADDI: "add",
	insn.AND: "and", insn.ANDI: "and", insn.ASR: "asr", insn.ASRI: "asr",
	insn.BIC: "bic", insn.BICI: "bic",
	insn.EXTS: "sxt", insn.EXTU: "uxt",
	insn.LSL: "lsl", insn.LSLI: "lsl", insn.LSR: "lsr", insn.LSRI: "lsr",
	insn.MOV: "mov", insn.MOVI: "mov", insn.MOVN: "mvn",
	insn.MOVW: "movw", insn.MOVT: "movt",
	insn.NEG: "neg", insn.NOT: "mvn",
	insn.OR: "orr", insn.ORI: "orr",
	insn.ROR: "ror", insn.RORI: "ror",
	insn.SBC: "sbc", insn.SBCI: "sbc",
	insn.SUB: "sub", insn.SUBI: "sub",
	insn.SUBR: "rsb", insn.SUBRI: "rsb",
	insn.XOR: "eor", insn.XORI: "eor",
	insn.SWAP: "rev",
}

var armBranches = map[insn.Op]string{
	insn.BREQ: "beq", insn.BRNE: "bne",
	insn.BRGES: "bge", insn.BRGTS: "bgt", insn.BRLES: "ble", insn.BRLTS: "blt",
	insn.BRGEU: "bhs", insn.BRGTU: "bhi", insn.BRLEU: "bls", insn.BRLTU: "blo",
	insn.BRCC: "bcc", insn.BRCS: "bcs",
	insn.JMP:  "b", insn.CALL: "bl",
}

var armMemory = map[insn.Op]string{
	insn.LD8: "ldrb", insn.LD8S: "ldrsb", insn.LD8Array: "ldrb", insn.LD8SArray: "ldrsb",
	insn.LD16: "ldrh", insn.LD16S: "ldrsh", insn.LD16Array: "ldrh", insn.LD16SArray: "ldrsh",
	insn.LD32: "ldr", insn.LD32S: "ldrsw", insn.LD32Array: "ldr", insn.LD32SArray: "ldrsw",
	insn.LD64: "ldr", insn.LD64Array: "ldr", insn.LDPM: "ldrb",
	insn.ST8: "strb", insn.ST8Array: "strb",
	insn.ST16: "strh", insn.ST16Array: "strh",
	insn.ST32: "str", insn.ST32Array: "str",
	insn.ST64: "str", insn.ST64Array: "str",
}

var armModifiers = map[insn.Modifier]string{
	insn.ModASR: "asr", insn.ModLSL: "lsl", insn.ModLSR: "lsr", insn.ModROR: "ror",
}

func armSuffix(i insn.Insn) string {
	if i.Opt == insn.SetC || i.Opt == insn.Short {
		return "s"
	}
	return ""
}

func armShiftSuffix(i insn.Insn) string {
	if i.Mod == insn.ModNone || i.Shift == 0 {
		return ""
	}
	return fmt.Sprintf(", %s #%d", armModifiers[i.Mod], i.Shift)
}

// armWriteInsn renders one record in unified assembler syntax. It is
// shared by every ARM variant; encoding differences were already fixed
// when the record was selected.
func armWriteInsn(p *Platform, w io.Writer, st *WriteState, i insn.Insn) error {
	switch i.Op {
	case insn.Unknown, insn.NOP, insn.SBOX,
		insn.PRINT, insn.PRINTCH, insn.PRINTLN:
		return nil
	case insn.LABEL:
		_, err := fmt.Fprintf(w, "%s:\n", st.LabelName(i.Label()))
		return err
	case insn.RET:
		if p.Is64Bit() {
			_, err := fmt.Fprintf(w, "\tret\n")
			return err
		}
		_, err := fmt.Fprintf(w, "\tbx\tlr\n")
		return err
	case insn.PUSH:
		_, err := fmt.Fprintf(w, "\tpush\t{%s}\n", i.Dest.Name())
		return err
	case insn.POP:
		_, err := fmt.Fprintf(w, "\tpop\t{%s}\n", i.Dest.Name())
		return err
	case insn.LDLabel:
		_, err := fmt.Fprintf(w, "\tadr\t%s, %s\n", i.Dest.Name(), st.LabelName(i.Label()))
		return err
	case insn.LDI:
		_, err := fmt.Fprintf(w, "\tldr\t%s, =%d\n", i.Dest.Name(), i.Imm)
		return err
	case insn.ROLI:
		// No left-rotate instruction; complement the amount.
		width := uint64(i.Dest.Size)
		_, err := fmt.Fprintf(w, "\tror%s\t%s, %s, #%d\n",
			armSuffix(i), i.Dest.Name(), i.Src1.Name(), (width-i.Imm)%width)
		return err
	}
	switch i.Op {
	case insn.CMP:
		_, err := fmt.Fprintf(w, "\tcmp\t%s, %s%s\n", i.Src1.Name(), i.Src2.Name(), armShiftSuffix(i))
		return err
	case insn.CMPI:
		_, err := fmt.Fprintf(w, "\tcmp\t%s, #%d\n", i.Src1.Name(), i.Imm)
		return err
	case insn.CMPNI:
		_, err := fmt.Fprintf(w, "\tcmn\t%s, #%d\n", i.Src1.Name(), i.Imm)
		return err
	}
	if mn, ok := armBranches[i.Op]; ok {
		_, err := fmt.Fprintf(w, "\t%s\t%s\n", mn, st.LabelName(i.Label()))
		return err
	}
	if mn, ok := armMemory[i.Op]; ok {
		base := i.Src1.Basic.AddressName()
		if i.HasSrc2() {
			if i.Shift != 0 {
				_, err := fmt.Fprintf(w, "\t%s\t%s, [%s, %s, lsl #%d]\n",
					mn, i.Dest.Name(), base, i.Src2.Name(), i.Shift)
				return err
			}
			_, err := fmt.Fprintf(w, "\t%s\t%s, [%s, %s]\n",
				mn, i.Dest.Name(), base, i.Src2.Name())
			return err
		}
		if i.Imm == 0 {
			_, err := fmt.Fprintf(w, "\t%s\t%s, [%s]\n", mn, i.Dest.Name(), base)
			return err
		}
		_, err := fmt.Fprintf(w, "\t%s\t%s, [%s, #%d]\n",
			mn, i.Dest.Name(), base, int64(i.Imm))
		return err
	}
	mn, ok := armMnemonics[i.Op]
	if !ok {
		return fmt.Errorf("%w: cannot emit %s for %s", ErrInvalidInstruction, i.Op, p.Name())
	}
	switch {
	case i.HasSrc2():
		_, err := fmt.Fprintf(w, "\t%s%s\t%s, %s, %s%s\n", mn, armSuffix(i),
			i.Dest.Name(), i.Src1.Name(), i.Src2.Name(), armShiftSuffix(i))
		return err
	case i.HasSrc1() && i.HasImm():
		_, err := fmt.Fprintf(w, "\t%s%s\t%s, %s, #%d%s\n", mn, armSuffix(i),
			i.Dest.Name(), i.Src1.Name(), i.Imm, armShiftSuffix(i))
		return err
	case i.HasSrc1():
		_, err := fmt.Fprintf(w, "\t%s%s\t%s, %s\n", mn, armSuffix(i),
			i.Dest.Name(), i.Src1.Name())
		return err
	case i.HasImm():
		_, err := fmt.Fprintf(w, "\t%s%s\t%s, #%d%s\n", mn, armSuffix(i),
			i.Dest.Name(), i.Imm, armShiftSuffix(i))
		return err
	}
	_, err := fmt.Fprintf(w, "\t%s\t%s\n", mn, i.Dest.Name())
	return err
}

func (h *armHooks) WriteInsn(p *Platform, w io.Writer, st *WriteState, i insn.Insn) error {
	return armWriteInsn(p, w, st, i)
}
