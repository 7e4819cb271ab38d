// Package insn defines the virtual instruction record appended to a
// function's instruction buffer by the code generator.
//
// A record has no semantics of its own beyond which opcode and fields
// are set. Meaning is assigned downstream: the interpreter gives each
// opcode a reference evaluation and the platform emitters give each a
// textual rendering.
package insn

import (
	"github.com/gencrypto/gencrypto/pkg/regs"
)

// ImmValue is an immediate operand.
type ImmValue = uint64

// Label is an index assigned by the code generator, resolved once the
// final buffer is known.
type Label = uint16

// Sentinel immediates for pointer-stepping memory forms. They occupy
// the top of the immediate range, far above any legal displacement.
const (
	PostInc ImmValue = ^ImmValue(0)     // step the base after the access
	PreDec  ImmValue = ^ImmValue(0) - 1 // step the base before the access
)

// Op is the instruction opcode.
type Op uint8

const (
	Unknown Op = iota // no opcode assigned yet; reads as a NOP

	ADC   // add with carry
	ADCI  // add immediate with carry
	ADD   // add without carry
	ADDI  // add immediate without carry
	AND   // logical AND
	ANDI  // logical AND with immediate
	ASR   // arithmetic shift right
	ASRI  // arithmetic shift right by immediate
	BIC   // bit clear: x = y & ~z
	BICI  // bit clear with immediate
	BREQ  // branch if equal
	BRGES // branch if greater than or equal, signed
	BRGEU // branch if greater than or equal, unsigned
	BRGTS // branch if greater than, signed
	BRGTU // branch if greater than, unsigned
	BRLES // branch if less than or equal, signed
	BRLEU // branch if less than or equal, unsigned
	BRLTS // branch if less than, signed
	BRLTU // branch if less than, unsigned
	BRNE  // branch if not equal
	BRCC  // branch if carry clear
	BRCS  // branch if carry set
	CALL  // call a label-addressed subroutine
	CMP   // compare two registers
	CMPI  // compare register with immediate
	CMPNI // compare register with negated immediate
	CMPBREQ  // compare registers and branch if equal
	CMPBRNE  // compare registers and branch if not equal
	CMPIBREQ // compare with immediate and branch if equal
	CMPIBRNE // compare with immediate and branch if not equal
	EXTS  // sign-extend a register
	EXTU  // zero-extend a register
	FSLI  // funnel shift left by immediate
	FSRI  // funnel shift right by immediate
	JMP   // unconditional jump
	LABEL // emits a branch label at this point

	LD8        // x = [y + offset], zero-extended byte
	LD8S       // x = [y + offset], sign-extended byte
	LD8Array   // x = [y + z << shift], zero-extended byte
	LD8SArray  // x = [y + z << shift], sign-extended byte
	LD16       // x = [y + offset], zero-extended 16-bit
	LD16S      // x = [y + offset], sign-extended 16-bit
	LD16Array  // x = [y + z << shift], zero-extended 16-bit
	LD16SArray // x = [y + z << shift], sign-extended 16-bit
	LD32       // x = [y + offset], zero-extended 32-bit
	LD32S      // x = [y + offset], sign-extended 32-bit
	LD32Array  // x = [y + z << shift], zero-extended 32-bit
	LD32SArray // x = [y + z << shift], sign-extended 32-bit
	LD64       // x = [y + offset], 64-bit
	LD64Array  // x = [y + z << shift], 64-bit
	LDLabel    // load the address of a label
	LDPM       // x = program-memory[y + offset], for table reads

	LDARG8  // load an 8-bit argument above the stacked return address
	LDARG16 // load a 16-bit argument above the stacked return address
	LDARG32 // load a 32-bit argument above the stacked return address
	LDARG64 // load a 64-bit argument above the stacked return address

	LDI  // load arbitrary immediate into register
	LSL  // logical shift left
	LSLI // logical shift left by immediate
	LSR  // logical shift right
	LSRI // logical shift right by immediate
	MOV  // move register
	MOVI // move immediate into register
	MOVN // move complemented immediate into register
	MOVW // move immediate into the low 16 bits
	MOVT // move immediate into the high 16 bits
	NEG  // negate
	NOP  // no operation
	NOT  // logical NOT
	OR   // logical OR
	ORI  // logical OR with immediate
	POP  // pop register from stack
	PUSH // push register onto stack

	PRINT   // print a hex word, interpreter diagnostics only
	PRINTCH // print a character, interpreter diagnostics only
	PRINTLN // print an end of line, interpreter diagnostics only

	RET  // return from the current function
	ROL  // rotate left through carry
	ROLI // rotate left by immediate
	ROR  // rotate right through carry
	RORI // rotate right by immediate
	SBC  // subtract with borrow
	SBCI // subtract immediate with borrow
	SUB  // subtract without borrow
	SUBI // subtract immediate without borrow
	SUBR // reverse subtract
	SUBRI // reverse subtract immediate

	ST8       // [y + offset] = x, byte
	ST8Array  // [y + z << shift] = x, byte
	ST16      // [y + offset] = x, 16-bit
	ST16Array // [y + z << shift] = x, 16-bit
	ST32      // [y + offset] = x, 32-bit
	ST32Array // [y + z << shift] = x, 32-bit
	ST64      // [y + offset] = x, 64-bit
	ST64Array // [y + z << shift] = x, 64-bit

	SBOX // embedded read-only table; data carried out of band by index
	SWAP // rotate a register by half its width (nibble swap at 8 bits)
	XOR  // exclusive-OR
	XORI // exclusive-OR with immediate

	numOps
)

var opNames = [numOps]string{
	Unknown: "unknown",
	ADC:     "adc", ADCI: "adci", ADD: "add", ADDI: "addi",
	AND: "and", ANDI: "andi", ASR: "asr", ASRI: "asri",
	BIC: "bic", BICI: "bici",
	BREQ: "breq", BRGES: "brges", BRGEU: "brgeu", BRGTS: "brgts",
	BRGTU: "brgtu", BRLES: "brles", BRLEU: "brleu", BRLTS: "brlts",
	BRLTU: "brltu", BRNE: "brne", BRCC: "brcc", BRCS: "brcs",
	CALL: "call",
	CMP:  "cmp", CMPI: "cmpi", CMPNI: "cmpni",
	CMPBREQ: "cmp_breq", CMPBRNE: "cmp_brne",
	CMPIBREQ: "cmpi_breq", CMPIBRNE: "cmpi_brne",
	EXTS: "exts", EXTU: "extu", FSLI: "fsli", FSRI: "fsri",
	JMP: "jmp", LABEL: "label",
	LD8: "ld8", LD8S: "ld8s", LD8Array: "ld8_array", LD8SArray: "ld8s_array",
	LD16: "ld16", LD16S: "ld16s", LD16Array: "ld16_array", LD16SArray: "ld16s_array",
	LD32: "ld32", LD32S: "ld32s", LD32Array: "ld32_array", LD32SArray: "ld32s_array",
	LD64: "ld64", LD64Array: "ld64_array",
	LDLabel: "ld_label", LDPM: "ldpm",
	LDARG8: "ldarg8", LDARG16: "ldarg16", LDARG32: "ldarg32", LDARG64: "ldarg64",
	LDI: "ldi", LSL: "lsl", LSLI: "lsli", LSR: "lsr", LSRI: "lsri",
	MOV: "mov", MOVI: "movi", MOVN: "movn", MOVW: "movw", MOVT: "movt",
	NEG: "neg", NOP: "nop", NOT: "not", OR: "or", ORI: "ori",
	POP: "pop", PUSH: "push",
	PRINT: "print", PRINTCH: "printch", PRINTLN: "println",
	RET: "ret", ROL: "rol", ROLI: "roli", ROR: "ror", RORI: "rori",
	SBC: "sbc", SBCI: "sbci", SUB: "sub", SUBI: "subi",
	SUBR: "subr", SUBRI: "subri",
	ST8: "st8", ST8Array: "st8_array", ST16: "st16", ST16Array: "st16_array",
	ST32: "st32", ST32Array: "st32_array", ST64: "st64", ST64Array: "st64_array",
	SBOX: "sbox", SWAP: "swap", XOR: "xor", XORI: "xori",
}

func (op Op) String() string {
	if op < numOps {
		return opNames[op]
	}
	return "invalid"
}

// Modifier describes an inline transform of the second source operand,
// used by shift-and-operate targets.
type Modifier uint8

const (
	ModNone Modifier = iota
	ModASR           // arithmetic shift right
	ModLSL           // left shift
	ModLSR           // right shift
	ModROR           // right rotate
)

// Option adjusts how the backend encodes an instruction.
type Option uint8

const (
	None  Option = iota
	Short        // prefer the short encoding, e.g. a Thumb form
	SetC         // set condition codes
)

// Fields records which operand fields of a record are populated.
type Fields uint8

const (
	FieldDest Fields = 1 << iota
	FieldSrc1
	FieldSrc2
	FieldImm
	FieldLabel
)

// Insn is one virtual instruction. It is a plain value; records are
// built through the constructors below and never mutated once appended
// to a buffer, except for the emitter's reschedule hint.
type Insn struct {
	Op       Op
	Mod      Modifier
	Shift    uint8
	Fields   Fields
	Resched  int8
	Opt      Option
	Dest     regs.Sized // for stores: the value, with Src1 the base
	Src1     regs.Sized
	Src2     regs.Sized
	Imm      ImmValue
}

// IsNull reports whether no opcode has been assigned.
func (i Insn) IsNull() bool { return i.Op == Unknown }

// HasDest reports whether the destination field is populated.
func (i Insn) HasDest() bool { return i.Fields&FieldDest != 0 }

// HasSrc1 reports whether the first source field is populated.
func (i Insn) HasSrc1() bool { return i.Fields&FieldSrc1 != 0 }

// HasSrc2 reports whether the second source field is populated.
func (i Insn) HasSrc2() bool { return i.Fields&FieldSrc2 != 0 }

// HasImm reports whether the immediate field is populated.
func (i Insn) HasImm() bool { return i.Fields&FieldImm != 0 }

// HasLabel reports whether the label field is populated.
func (i Insn) HasLabel() bool { return i.Fields&FieldLabel != 0 }

// Label returns the label reference carried in the immediate field.
func (i Insn) Label() Label { return Label(i.Imm) }

// Bare constructs an instruction with no operands.
func Bare(op Op) Insn {
	return Insn{Op: op}
}

// Unary constructs dest = op(src). src may equal dest for in-place forms.
func Unary(op Op, dest, src regs.Sized, opt Option) Insn {
	return Insn{
		Op:     op,
		Opt:    opt,
		Dest:   dest,
		Src1:   src,
		Fields: FieldDest | FieldSrc1,
	}
}

// Binary constructs dest = src1 op src2.
func Binary(op Op, dest, src1, src2 regs.Sized, opt Option) Insn {
	return Insn{
		Op:     op,
		Opt:    opt,
		Dest:   dest,
		Src1:   src1,
		Src2:   src2,
		Fields: FieldDest | FieldSrc1 | FieldSrc2,
	}
}

// BinaryShifted constructs dest = src1 op (src2 shifted). A zero shift
// count cancels the modifier.
func BinaryShifted(op Op, dest, src1, src2 regs.Sized, mod Modifier, shift uint8, opt Option) Insn {
	i := Binary(op, dest, src1, src2, opt)
	if shift != 0 {
		i.Mod = mod
		i.Shift = shift
	}
	return i
}

// BinaryImm constructs dest = src1 op imm.
func BinaryImm(op Op, dest, src1 regs.Sized, imm ImmValue, opt Option) Insn {
	return Insn{
		Op:     op,
		Opt:    opt,
		Dest:   dest,
		Src1:   src1,
		Imm:    imm,
		Fields: FieldDest | FieldSrc1 | FieldImm,
	}
}

// MoveImm constructs dest = imm.
func MoveImm(op Op, dest regs.Sized, imm ImmValue, opt Option) Insn {
	return Insn{
		Op:     op,
		Opt:    opt,
		Dest:   dest,
		Imm:    imm,
		Fields: FieldDest | FieldImm,
	}
}

// Branch constructs a branch to a label.
func Branch(op Op, label Label) Insn {
	return Insn{
		Op:     op,
		Imm:    ImmValue(label),
		Fields: FieldLabel,
	}
}

// BranchCmp constructs a fused compare-and-branch on two registers.
func BranchCmp(op Op, src1, src2 regs.Sized, label Label) Insn {
	return Insn{
		Op:     op,
		Src1:   src1,
		Src2:   src2,
		Imm:    ImmValue(label),
		Fields: FieldSrc1 | FieldSrc2 | FieldLabel,
	}
}

// Mem constructs a load or store through base + displacement. For
// loads dest receives the value; for stores dest supplies it.
func Mem(op Op, value, base regs.Sized, offset ImmValue) Insn {
	return Insn{
		Op:     op,
		Dest:   value,
		Src1:   base,
		Imm:    offset,
		Fields: FieldDest | FieldSrc1 | FieldImm,
	}
}

// MemArray constructs a scaled-index load or store: base + index << shift.
func MemArray(op Op, value, base, index regs.Sized, shift uint8) Insn {
	return Insn{
		Op:     op,
		Shift:  shift,
		Dest:   value,
		Src1:   base,
		Src2:   index,
		Fields: FieldDest | FieldSrc1 | FieldSrc2,
	}
}

// LabelMark constructs the definition point of a label.
func LabelMark(label Label) Insn {
	return Insn{
		Op:     LABEL,
		Imm:    ImmValue(label),
		Fields: FieldLabel,
	}
}

// Table constructs the pseudo-record anchoring an embedded S-box;
// the table bytes themselves live in the function's table list at
// the carried index.
func Table(index ImmValue) Insn {
	return Insn{
		Op:     SBOX,
		Imm:    index,
		Fields: FieldImm,
	}
}
