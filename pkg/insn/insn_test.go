package insn

import (
	"testing"

	"github.com/gencrypto/gencrypto/pkg/regs"
)

func sized(t *testing.T, num uint8) regs.Sized {
	t.Helper()
	s, err := regs.NewSized(regs.Reg8(num, "r", regs.Data), regs.Size8)
	if err != nil {
		t.Fatalf("NewSized: %v", err)
	}
	return s
}

func TestBare(t *testing.T) {
	i := Bare(RET)
	if i.Op != RET || i.Fields != 0 {
		t.Errorf("Bare(RET) = %+v", i)
	}
	if !(Insn{}).IsNull() {
		t.Errorf("zero Insn should be null")
	}
}

func TestUnaryFields(t *testing.T) {
	d, s := sized(t, 0), sized(t, 1)
	i := Unary(NOT, d, s, None)
	if !i.HasDest() || !i.HasSrc1() {
		t.Errorf("unary fields not set: %v", i.Fields)
	}
	if i.HasSrc2() || i.HasImm() || i.HasLabel() {
		t.Errorf("unary set extra fields: %v", i.Fields)
	}
}

func TestBinaryShiftedDropsZeroShift(t *testing.T) {
	d, a, b := sized(t, 0), sized(t, 1), sized(t, 2)
	i := BinaryShifted(ADD, d, a, b, ModROR, 0, None)
	if i.Mod != ModNone || i.Shift != 0 {
		t.Errorf("zero shift should cancel the modifier: %+v", i)
	}
	i = BinaryShifted(ADD, d, a, b, ModROR, 13, SetC)
	if i.Mod != ModROR || i.Shift != 13 || i.Opt != SetC {
		t.Errorf("shifted form lost its modifier: %+v", i)
	}
}

func TestBinaryImm(t *testing.T) {
	d, a := sized(t, 0), sized(t, 1)
	i := BinaryImm(XORI, d, a, 0x1f, None)
	if !i.HasImm() || i.Imm != 0x1f {
		t.Errorf("immediate not recorded: %+v", i)
	}
	if i.HasLabel() {
		t.Errorf("immediate form should not claim a label")
	}
}

func TestBranchLabel(t *testing.T) {
	i := Branch(BREQ, 7)
	if !i.HasLabel() || i.Label() != 7 {
		t.Errorf("branch label not recorded: %+v", i)
	}
	if i.HasImm() {
		t.Errorf("label form should not claim an immediate")
	}
	m := LabelMark(7)
	if m.Op != LABEL || m.Label() != 7 {
		t.Errorf("LabelMark = %+v", m)
	}
}

func TestMemForms(t *testing.T) {
	v, base, idx := sized(t, 0), sized(t, 1), sized(t, 2)
	ld := Mem(LD8, v, base, 12)
	if !ld.HasDest() || !ld.HasSrc1() || !ld.HasImm() || ld.Imm != 12 {
		t.Errorf("Mem = %+v", ld)
	}
	arr := MemArray(ST8Array, v, base, idx, 2)
	if !arr.HasSrc2() || arr.Shift != 2 {
		t.Errorf("MemArray = %+v", arr)
	}
}

func TestOpNames(t *testing.T) {
	cases := map[Op]string{
		ADC: "adc", CMPBREQ: "cmp_breq", LD8Array: "ld8_array",
		SBOX: "sbox", Unknown: "unknown",
	}
	for op, want := range cases {
		if op.String() != want {
			t.Errorf("%d.String() = %q, want %q", op, op.String(), want)
		}
	}
	if numOps.String() != "invalid" {
		t.Errorf("out-of-range opcode should read invalid")
	}
}

func TestPointerStepSentinels(t *testing.T) {
	if PostInc == PreDec {
		t.Errorf("sentinels must differ")
	}
	if PostInc < 1<<32 || PreDec < 1<<32 {
		t.Errorf("sentinels must sit above any legal displacement")
	}
}
