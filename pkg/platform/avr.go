package platform

import (
	"fmt"
	"io"

	"github.com/gencrypto/gencrypto/pkg/insn"
	"github.com/gencrypto/gencrypto/pkg/regs"
)

// The avr5 target is the stress test for the whole model: 8-bit
// registers, two-address ALU forms only, immediates accepted only by
// the upper register class, 16-bit pointers assembled from register
// pairs, no displacement addressing through X, and table reads through
// a dedicated program-memory pointer staked at Z.
//
// Register conventions: r1 is wired to zero and r0 is the designated
// scratch byte. Y doubles as the frame base and Z as the table
// pointer, so all three pairs plus r0 are reserved until a function
// explicitly trades them in with the TempX/TempY/TempZ/TempR flags.

type avrHooks struct{}

func avrCommutative(op insn.Op) bool {
	switch op {
	case insn.ADD, insn.ADC, insn.AND, insn.OR, insn.XOR:
		return true
	}
	return false
}

func (avrHooks) Unary(p *Platform, op insn.Op, dest, src regs.Sized) ([]insn.Insn, error) {
	if dest.Equal(src) {
		return []insn.Insn{insn.Unary(op, dest, src, insn.None)}, nil
	}
	// Unary forms are in-place; copy first.
	return []insn.Insn{
		insn.Unary(insn.MOV, dest, src, insn.None),
		insn.Unary(op, dest, dest, insn.None),
	}, nil
}

func (avrHooks) Binary(p *Platform, op insn.Op, dest, src1, src2 regs.Sized, setc bool) ([]insn.Insn, error) {
	if dest.Equal(src1) {
		return []insn.Insn{insn.Binary(op, dest, src1, src2, setcOpt(setc))}, nil
	}
	if dest.Equal(src2) {
		if avrCommutative(op) {
			return []insn.Insn{insn.Binary(op, dest, src2, src1, setcOpt(setc))}, nil
		}
		return nil, fmt.Errorf("%w: %s destination aliases second source", ErrInvalidInstruction, op)
	}
	return []insn.Insn{
		insn.Unary(insn.MOV, dest, src1, insn.None),
		insn.Binary(op, dest, dest, src2, setcOpt(setc)),
	}, nil
}

func (h avrHooks) BinaryShifted(p *Platform, op insn.Op, dest, src1, src2 regs.Sized,
	mod insn.Modifier, shift uint8, setc bool) ([]insn.Insn, error) {
	if mod == insn.ModNone || shift == 0 {
		return h.Binary(p, op, dest, src1, src2, setc)
	}
	return nil, fmt.Errorf("%w: no shift-and-operate forms", ErrInvalidInstruction)
}

func (h avrHooks) BinaryImm(p *Platform, op insn.Op, dest, src1 regs.Sized,
	imm insn.ImmValue, setc bool) ([]insn.Insn, error) {
	if !h.ValidImm(op, imm, dest.Size) {
		return nil, fmt.Errorf("%w: %s #%d", ErrInvalidImmediate, op, imm)
	}
	if dest.Size == regs.Size16 {
		// Pointer-pair adjustment; adiw/sbiw work on any pair.
		return []insn.Insn{insn.BinaryImm(op, dest, src1, imm, setcOpt(setc))}, nil
	}
	if !dest.Basic.HasFlag(regs.ImmCapable) {
		return nil, fmt.Errorf("%w: %s cannot take an immediate", ErrInvalidInstruction, dest.Name())
	}
	if !dest.Equal(src1) {
		return nil, fmt.Errorf("%w: immediate %s must be in place", ErrInvalidInstruction, op)
	}
	return []insn.Insn{insn.BinaryImm(op, dest, src1, imm, setcOpt(setc))}, nil
}

func (avrHooks) MoveImm(p *Platform, dest regs.Sized, value insn.ImmValue) ([]insn.Insn, error) {
	if value == 0 {
		if zero := p.ZeroRegister(); zero != nil {
			z, err := regs.NewSized(zero, regs.Size8)
			if err != nil {
				return nil, err
			}
			return []insn.Insn{insn.Unary(insn.MOV, dest, z, insn.None)}, nil
		}
	}
	if dest.Size == regs.Size8 && dest.Basic.HasFlag(regs.ImmCapable) {
		return []insn.Insn{insn.MoveImm(insn.LDI, dest, value&0xFF, insn.None)}, nil
	}
	// The caller must route the value through an upper register.
	return nil, fmt.Errorf("%w: %s cannot load an immediate directly",
		ErrInvalidInstruction, dest.Name())
}

func (avrHooks) ValidImm(op insn.Op, value insn.ImmValue, size regs.Size) bool {
	switch op {
	case insn.ADDI, insn.SUBI:
		if size == regs.Size16 {
			// adiw/sbiw range.
			return value <= 63
		}
		return value < 256
	case insn.ANDI, insn.ORI, insn.SBCI, insn.CMPI, insn.LDI:
		return size == regs.Size8 && value < 256
	case insn.LD8, insn.ST8, insn.LDPM:
		// Displacement addressing reaches 63 bytes; the pointer-step
		// sentinels are always encodable.
		return value == insn.PostInc || value == insn.PreDec || value <= 63
	case insn.LDARG8:
		return value <= 63
	}
	return false
}

func avrPair(number uint8) string {
	switch number {
	case 26:
		return "X"
	case 28:
		return "Y"
	case 30:
		return "Z"
	}
	return ""
}

func avrMemOperand(st *WriteState, base regs.Sized, imm insn.ImmValue) string {
	pair := avrPair(base.Number())
	switch imm {
	case insn.PostInc:
		return pair + "+"
	case insn.PreDec:
		return "-" + pair
	case 0:
		return pair
	default:
		return fmt.Sprintf("%s+%d", pair, imm)
	}
}

var avrTwoReg = map[insn.Op]string{
	insn.ADD: "add", insn.ADC: "adc", insn.SUB: "sub", insn.SBC: "sbc",
	insn.AND: "and", insn.OR: "or", insn.XOR: "eor", insn.MOV: "mov",
}

var avrOneReg = map[insn.Op]string{
	insn.NOT: "com", insn.NEG: "neg", insn.LSL: "lsl", insn.LSR: "lsr",
	insn.ROL: "rol", insn.ROR: "ror", insn.ASR: "asr", insn.SWAP: "swap",
}

var avrImm = map[insn.Op]string{
	insn.SBCI: "sbci", insn.ANDI: "andi",
	insn.ORI: "ori", insn.LDI: "ldi",
}

var avrBranch = map[insn.Op]string{
	insn.BREQ: "breq", insn.BRNE: "brne", insn.BRCC: "brcc", insn.BRCS: "brcs",
	insn.BRLTS: "brlt", insn.BRGES: "brge", insn.BRLTU: "brlo", insn.BRGEU: "brsh",
	insn.JMP: "rjmp", insn.CALL: "rcall",
}

func (avrHooks) WriteInsn(p *Platform, w io.Writer, st *WriteState, i insn.Insn) error {
	switch i.Op {
	case insn.Unknown, insn.NOP, insn.SBOX,
		insn.PRINT, insn.PRINTCH, insn.PRINTLN:
		return nil
	case insn.LABEL:
		_, err := fmt.Fprintf(w, "%s:\n", st.LabelName(i.Label()))
		return err
	case insn.RET:
		_, err := fmt.Fprintf(w, "\tret\n")
		return err
	case insn.PUSH:
		_, err := fmt.Fprintf(w, "\tpush\t%s\n", i.Dest.Name())
		return err
	case insn.POP:
		_, err := fmt.Fprintf(w, "\tpop\t%s\n", i.Dest.Name())
		return err
	case insn.LDLabel:
		// Stake a pointer pair at an embedded table.
		low := p.RegisterForNumber(i.Dest.Number())
		high := p.RegisterForNumber(i.Dest.Number() + 1)
		name := st.TableName(i.Imm)
		if _, err := fmt.Fprintf(w, "\tldi\t%s, lo8(%s)\n", low.NameForSize(regs.Size8), name); err != nil {
			return err
		}
		_, err := fmt.Fprintf(w, "\tldi\t%s, hi8(%s)\n", high.NameForSize(regs.Size8), name)
		return err
	case insn.LD8:
		mn := "ld"
		if i.Imm != insn.PostInc && i.Imm != insn.PreDec && i.Imm != 0 {
			mn = "ldd"
		}
		_, err := fmt.Fprintf(w, "\t%s\t%s, %s\n", mn, i.Dest.Name(),
			avrMemOperand(st, i.Src1, i.Imm))
		return err
	case insn.ST8:
		mn := "st"
		if i.Imm != insn.PostInc && i.Imm != insn.PreDec && i.Imm != 0 {
			mn = "std"
		}
		_, err := fmt.Fprintf(w, "\t%s\t%s, %s\n", mn,
			avrMemOperand(st, i.Src1, i.Imm), i.Dest.Name())
		return err
	case insn.LDPM:
		if i.Imm == insn.PostInc {
			_, err := fmt.Fprintf(w, "\tlpm\t%s, Z+\n", i.Dest.Name())
			return err
		}
		_, err := fmt.Fprintf(w, "\tlpm\t%s, Z\n", i.Dest.Name())
		return err
	case insn.LDARG8:
		_, err := fmt.Fprintf(w, "\tldd\t%s, Y+%d\n", i.Dest.Name(), i.Imm)
		return err
	case insn.CMP:
		mn := "cp"
		if i.Opt == insn.SetC {
			mn = "cpc"
		}
		_, err := fmt.Fprintf(w, "\t%s\t%s, %s\n", mn, i.Src1.Name(), i.Src2.Name())
		return err
	case insn.CMPI:
		_, err := fmt.Fprintf(w, "\tcpi\t%s, %d\n", i.Src1.Name(), i.Imm)
		return err
	case insn.ADDI, insn.SUBI:
		if i.Dest.Size == regs.Size16 {
			mn := "adiw"
			if i.Op == insn.SUBI {
				mn = "sbiw"
			}
			low := p.RegisterForNumber(i.Dest.Number())
			_, err := fmt.Fprintf(w, "\t%s\t%s, %d\n", mn,
				low.NameForSize(regs.Size8), i.Imm)
			return err
		}
		if i.Op == insn.ADDI {
			// No add-immediate instruction; subtract the complement.
			_, err := fmt.Fprintf(w, "\tsubi\t%s, %d\n", i.Dest.Name(), (256-i.Imm)&0xFF)
			return err
		}
		_, err := fmt.Fprintf(w, "\tsubi\t%s, %d\n", i.Dest.Name(), i.Imm)
		return err
	}
	if mn, ok := avrBranch[i.Op]; ok {
		_, err := fmt.Fprintf(w, "\t%s\t%s\n", mn, st.LabelName(i.Label()))
		return err
	}
	if mn, ok := avrImm[i.Op]; ok {
		_, err := fmt.Fprintf(w, "\t%s\t%s, %d\n", mn, i.Dest.Name(), i.Imm)
		return err
	}
	if mn, ok := avrTwoReg[i.Op]; ok {
		src := i.Src1
		if i.HasSrc2() {
			src = i.Src2
		}
		_, err := fmt.Fprintf(w, "\t%s\t%s, %s\n", mn, i.Dest.Name(), src.Name())
		return err
	}
	if mn, ok := avrOneReg[i.Op]; ok {
		_, err := fmt.Fprintf(w, "\t%s\t%s\n", mn, i.Dest.Name())
		return err
	}
	return fmt.Errorf("%w: cannot emit %s for %s", ErrInvalidInstruction, i.Op, p.Name())
}

// The frame discipline follows the usual avr-gcc shape: saved bytes
// pushed first, then the Y pair saved and loaded from the stack
// pointer when the function owns a local frame.
func (avrHooks) WriteFrameEnter(p *Platform, w io.Writer, saved []*regs.Basic, locals uint) error {
	for _, b := range saved {
		if _, err := fmt.Fprintf(w, "\tpush\t%s\n", b.NameForSize(regs.Size8)); err != nil {
			return err
		}
	}
	if locals == 0 {
		return nil
	}
	_, err := fmt.Fprintf(w, "\tpush\tr28\n\tpush\tr29\n"+
		"\tin\tr28, __SP_L__\n\tin\tr29, __SP_H__\n"+
		"\tsbiw\tr28, %d\n"+
		"\tout\t__SP_H__, r29\n\tout\t__SP_L__, r28\n", locals)
	return err
}

func (avrHooks) WriteFrameLeave(p *Platform, w io.Writer, saved []*regs.Basic, locals uint) error {
	if locals > 0 {
		_, err := fmt.Fprintf(w, "\tadiw\tr28, %d\n"+
			"\tout\t__SP_H__, r29\n\tout\t__SP_L__, r28\n"+
			"\tpop\tr29\n\tpop\tr28\n", locals)
		if err != nil {
			return err
		}
	}
	for i := len(saved) - 1; i >= 0; i-- {
		if _, err := fmt.Fprintf(w, "\tpop\t%s\n", saved[i].NameForSize(regs.Size8)); err != nil {
			return err
		}
	}
	return nil
}

// NewAVR describes the avr5 core.
func NewAVR() *Platform {
	p := New("avr5", TwoAddress|SplitRegisters|RegisterPoor|CarryRotate,
		regs.Size8, regs.Size16, avrHooks{})

	data := regs.Data | regs.TwoAddress
	imm := data | regs.ImmCapable
	save := regs.CalleeSaved

	add := func(num uint8, flags regs.Flags) *regs.Basic {
		b := regs.Reg8(num, fmt.Sprintf("r%d", num), flags)
		p.AddRegister(b)
		return b
	}
	pair := func(num uint8, name string, flags regs.Flags) *regs.Basic {
		low := regs.NewBasic(num, regs.Has8|regs.Has16, flags)
		low.SetName8(fmt.Sprintf("r%d", num))
		low.SetName16(name)
		p.AddRegister(low)
		add(num+1, flags)
		return low
	}

	// Caller-save general registers lead the allocation order so that
	// leaf permutations avoid push/pop traffic; the callee-saved run
	// r2..r17 follows; the upper immediate-capable class comes last so
	// plain byte allocations do not burn LDI-capable registers.
	for num := uint8(18); num <= 25; num++ {
		add(num, imm)
	}
	for num := uint8(2); num <= 15; num++ {
		add(num, data|save)
	}
	add(16, imm|save)
	add(17, imm|save)

	x := pair(26, "X", imm|regs.Address)
	y := pair(28, "Y", imm|regs.Address|save)
	z := pair(30, "Z", imm|regs.Address)

	// Fixed-role bytes.
	add(0, data|regs.Temporary)
	add(1, data|regs.Zero|regs.NoAllocate)

	sp := regs.NewBasic(32, regs.Has16, regs.Address|regs.StackPointer|regs.NoAllocate)
	sp.SetName16("SP")
	p.AddRegister(sp)
	p.SetStackPointer(sp)

	p.SetPointer("X", x)
	p.SetPointer("Y", y)
	p.SetPointer("Z", z)
	p.Reserve(TempX, 26, 27)
	p.Reserve(TempY, 28, 29)
	p.Reserve(TempZ, 30, 31)
	p.Reserve(TempR, 0)

	// Arguments arrive in the upper pairs, first argument highest:
	// a pointer lands in r24 (low) and r25 (high).
	for _, num := range []uint8{24, 25, 22, 23, 20, 21, 18, 19} {
		p.AddArgumentRegister(num)
	}
	return p
}
