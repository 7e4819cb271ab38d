package platform

import (
	"errors"
	"strings"
	"testing"

	"github.com/gencrypto/gencrypto/pkg/insn"
	"github.com/gencrypto/gencrypto/pkg/regs"
)

func mustPlatform(t *testing.T, name string) *Platform {
	t.Helper()
	p, err := ForName(name)
	if err != nil {
		t.Fatalf("ForName(%q): %v", name, err)
	}
	return p
}

func mustReg(t *testing.T, p *Platform, name string) regs.Sized {
	t.Helper()
	r := p.RegisterForName(name)
	if r.IsNull() {
		t.Fatalf("%s: no register %q", p.Name(), name)
	}
	return r
}

func TestForName(t *testing.T) {
	for _, name := range []string{"armv6", "armv6m", "armv6m-sim", "armv7m", "armv8a", "avr5"} {
		p := mustPlatform(t, name)
		if p.Name() != name {
			t.Errorf("ForName(%q).Name() = %q", name, p.Name())
		}
	}
	if _, err := ForName("pdp11"); err == nil {
		t.Errorf("unknown platform should fail")
	}
	names := Names()
	if len(names) != 6 || names[0] != "armv6" {
		t.Errorf("Names() = %v", names)
	}
}

func TestRegisterForName(t *testing.T) {
	v8 := mustPlatform(t, "armv8a")
	x0 := mustReg(t, v8, "x0")
	if x0.Size != regs.Size64 || x0.Number() != 0 {
		t.Errorf("x0 = %v/%d", x0.Size, x0.Number())
	}
	w0 := mustReg(t, v8, "w0")
	if w0.Size != regs.Size32 || w0.Number() != 0 {
		t.Errorf("w0 = %v/%d", w0.Size, w0.Number())
	}
	avr := mustPlatform(t, "avr5")
	x := mustReg(t, avr, "X")
	if x.Size != regs.Size16 || x.Number() != 26 {
		t.Errorf("X = %v/%d", x.Size, x.Number())
	}
	if !avr.RegisterForName("r99").IsNull() {
		t.Errorf("r99 should be unknown")
	}
	if !avr.RegisterForName("").IsNull() {
		t.Errorf("the empty name should never match")
	}
}

func TestOperand2ARMv6(t *testing.T) {
	good := []uint32{0, 255, 0xFF00, 0x3FC, 0xC000003F, 0xF000000F, 0x204}
	for _, v := range good {
		if !isOperand2ARMv6(v) {
			t.Errorf("%#x should be a valid operand2", v)
		}
	}
	bad := []uint32{0x101, 0x102, 0x1FE01, 0xFF001, 0xF000001F}
	for _, v := range bad {
		if isOperand2ARMv6(v) {
			t.Errorf("%#x should not be a valid operand2", v)
		}
	}
}

func TestValidImmThumb(t *testing.T) {
	cases := []struct {
		op   insn.Op
		v    insn.ImmValue
		want bool
	}{
		{insn.ADDI, 255, true},
		{insn.ADDI, 256, false},
		{insn.SUBRI, 0, true},
		{insn.SUBRI, 1, false},
		{insn.LSLI, 31, true},
		{insn.LSLI, 32, false},
		{insn.LD8, 31, true},
		{insn.LD8, 32, false},
		{insn.LD16, 62, true},
		{insn.LD16, 61, false},
		{insn.LD32, 124, true},
		{insn.LD32, 126, false},
		{insn.XORI, 1, false},
	}
	for _, c := range cases {
		if got := validImmThumb(c.op, c.v, regs.Size32); got != c.want {
			t.Errorf("validImmThumb(%s, %d) = %v, want %v", c.op, c.v, got, c.want)
		}
	}
}

func TestOperand2ARMv7m(t *testing.T) {
	good := []uint32{0xAB, 0x00CD00CD, 0xEF00EF00, 0x12121212, 0xFF000000, 0x0000FF00, 0x00000FF0}
	for _, v := range good {
		if !isOperand2ARMv7m(v) {
			t.Errorf("%#x should be a valid modified immediate", v)
		}
	}
	bad := []uint32{0x00CD00CE, 0x1200FF00, 0x0000017E, 0x12345678}
	for _, v := range bad {
		if isOperand2ARMv7m(v) {
			t.Errorf("%#x should not be a valid modified immediate", v)
		}
	}
}

func TestLogicalConstantARMv8a(t *testing.T) {
	good := []insn.ImmValue{
		0x5555555555555555, 0x00FF00FF00FF00FF, 0x0000FFFF0000FFFF,
		0x7FFFFFFFFFFFFFFF, 0xFF, 0xFF00000000000000,
	}
	for _, v := range good {
		if !isLogicalConstantARMv8a(v, regs.Size64) {
			t.Errorf("%#x should be a bitmask immediate", v)
		}
	}
	bad := []insn.ImmValue{0, ^insn.ImmValue(0), 0x00FF00FF00FF00FE, 0x123456789ABCDEF0}
	for _, v := range bad {
		if isLogicalConstantARMv8a(v, regs.Size64) {
			t.Errorf("%#x should not be a bitmask immediate", v)
		}
	}
	// At 32 bits the pattern is replicated before checking.
	if !isLogicalConstantARMv8a(0x00FF00FF, regs.Size32) {
		t.Errorf("0x00FF00FF should be a 32-bit bitmask immediate")
	}
	if isLogicalConstantARMv8a(0xFFFFFFFF, regs.Size32) {
		t.Errorf("all-ones is never a bitmask immediate")
	}
}

func TestValidImmARMv8a(t *testing.T) {
	if !validImmARMv8a(insn.ADDI, 0xFFF, regs.Size64) {
		t.Errorf("12-bit add immediate rejected")
	}
	if !validImmARMv8a(insn.ADDI, 0xFFF000, regs.Size64) {
		t.Errorf("shifted 12-bit add immediate rejected")
	}
	if validImmARMv8a(insn.ADDI, 0x1001, regs.Size64) {
		t.Errorf("13-bit add immediate accepted")
	}
	if !validImmARMv8a(insn.LD64, 32760, regs.Size64) {
		t.Errorf("maximum 64-bit displacement rejected")
	}
	if validImmARMv8a(insn.LD64, 31, regs.Size64) {
		t.Errorf("unaligned 64-bit displacement accepted")
	}
}

func TestMoveImmSelection(t *testing.T) {
	v7 := mustPlatform(t, "armv7m")
	r0 := mustReg(t, v7, "r0")
	out, err := v7.MoveImm(r0, 0x12345678)
	if err != nil {
		t.Fatalf("MoveImm: %v", err)
	}
	if len(out) != 2 || out[0].Op != insn.MOVW || out[1].Op != insn.MOVT {
		t.Errorf("arbitrary constant should use movw/movt, got %v", out)
	}
	out, _ = v7.MoveImm(r0, 0xFF)
	if len(out) != 1 || out[0].Op != insn.MOVI || out[0].Opt != insn.Short {
		t.Errorf("small constant should use the short move, got %v", out)
	}
	out, _ = v7.MoveImm(r0, 0xFFFFFF00)
	if len(out) != 1 || out[0].Op != insn.MOVN || out[0].Imm != 0xFF {
		t.Errorf("inverted constant should use mvn, got %v", out)
	}

	v8 := mustPlatform(t, "armv8a")
	x0 := mustReg(t, v8, "x0")
	out, _ = v8.MoveImm(x0, 0xFFFF00000000)
	if len(out) != 1 || out[0].Op != insn.MOVW || out[0].Shift != 32 {
		t.Errorf("shifted 16-bit constant should use one movz, got %v", out)
	}
	out, _ = v8.MoveImm(x0, 0x5555555555555555)
	if len(out) != 1 || out[0].Op != insn.MOVI {
		t.Errorf("bitmask constant should use one orr-style move, got %v", out)
	}
}

func TestARMBinarySelection(t *testing.T) {
	v6m := mustPlatform(t, "armv6m")
	r0 := mustReg(t, v6m, "r0")
	r1 := mustReg(t, v6m, "r1")
	r2 := mustReg(t, v6m, "r2")
	out, err := v6m.Binary(insn.XOR, r0, r0, r1, false)
	if err != nil {
		t.Fatalf("Binary: %v", err)
	}
	if len(out) != 1 || out[0].Opt != insn.Short {
		t.Errorf("aliased low-register form should pick the short encoding, got %v", out)
	}
	if _, err := v6m.Binary(insn.XOR, r0, r1, r2, false); !errors.Is(err, ErrInvalidInstruction) {
		t.Errorf("three-address form on a two-address target should fail, got %v", err)
	}

	v7 := mustPlatform(t, "armv7m")
	out, err = v7.Binary(insn.XOR, r0, r1, r2, false)
	if err != nil {
		t.Fatalf("Binary: %v", err)
	}
	if len(out) != 1 || out[0].Opt != insn.None {
		t.Errorf("three-address fallback lost, got %v", out)
	}
	if _, err := v7.BinaryImm(insn.XORI, r0, r0, 0x12345678, false); !errors.Is(err, ErrInvalidImmediate) {
		t.Errorf("unencodable immediate should fail early, got %v", err)
	}
}

func TestAVRBinarySelection(t *testing.T) {
	avr := mustPlatform(t, "avr5")
	a := mustReg(t, avr, "r18")
	b := mustReg(t, avr, "r19")
	c := mustReg(t, avr, "r20")

	out, err := avr.Binary(insn.ADD, a, a, b, false)
	if err != nil {
		t.Fatalf("Binary: %v", err)
	}
	if len(out) != 1 || out[0].Op != insn.ADD {
		t.Errorf("in-place add = %v", out)
	}

	// dest aliases the second source of a commutative operation.
	out, err = avr.Binary(insn.XOR, b, a, b, false)
	if err != nil {
		t.Fatalf("Binary: %v", err)
	}
	if len(out) != 1 || !out[0].Src1.Equal(b) || !out[0].Src2.Equal(a) {
		t.Errorf("commutative aliasing should swap the sources, got %v", out)
	}

	// Non-commutative aliasing cannot be repaired locally.
	if _, err := avr.Binary(insn.SUB, b, a, b, false); !errors.Is(err, ErrInvalidInstruction) {
		t.Errorf("sub with aliased subtrahend should fail, got %v", err)
	}

	// A fresh destination costs a move.
	out, err = avr.Binary(insn.AND, c, a, b, false)
	if err != nil {
		t.Fatalf("Binary: %v", err)
	}
	if len(out) != 2 || out[0].Op != insn.MOV || out[1].Op != insn.AND {
		t.Errorf("three-address and = %v", out)
	}
}

func TestAVRImmediates(t *testing.T) {
	avr := mustPlatform(t, "avr5")
	hi := mustReg(t, avr, "r18")
	lo := mustReg(t, avr, "r2")

	if _, err := avr.BinaryImm(insn.ANDI, hi, hi, 0x0F, false); err != nil {
		t.Errorf("andi on an upper register: %v", err)
	}
	if _, err := avr.BinaryImm(insn.ANDI, lo, lo, 0x0F, false); !errors.Is(err, ErrInvalidInstruction) {
		t.Errorf("andi on a lower register should fail, got %v", err)
	}
	if _, err := avr.BinaryImm(insn.XORI, hi, hi, 1, false); !errors.Is(err, ErrInvalidImmediate) {
		t.Errorf("there is no exclusive-or immediate, got %v", err)
	}

	out, err := avr.MoveImm(hi, 0x55)
	if err != nil {
		t.Fatalf("MoveImm: %v", err)
	}
	if len(out) != 1 || out[0].Op != insn.LDI {
		t.Errorf("ldi selection = %v", out)
	}
	out, err = avr.MoveImm(lo, 0)
	if err != nil {
		t.Fatalf("MoveImm: %v", err)
	}
	if len(out) != 1 || out[0].Op != insn.MOV || out[0].Src1.Number() != 1 {
		t.Errorf("zero should come from the zero register, got %v", out)
	}
	if _, err := avr.MoveImm(lo, 0x55); !errors.Is(err, ErrInvalidInstruction) {
		t.Errorf("lower registers cannot load immediates, got %v", err)
	}
}

func TestAVRReservations(t *testing.T) {
	avr := mustPlatform(t, "avr5")
	cases := map[uint8]CodeFlag{26: TempX, 27: TempX, 28: TempY, 29: TempY,
		30: TempZ, 31: TempZ, 0: TempR}
	for num, want := range cases {
		if got := avr.ReservedBy(num); got != want {
			t.Errorf("ReservedBy(%d) = %v, want %v", num, got, want)
		}
	}
	if avr.ReservedBy(18) != 0 {
		t.Errorf("r18 should be freely allocatable")
	}
}

func TestAVRPointerPairs(t *testing.T) {
	avr := mustPlatform(t, "avr5")
	z := avr.Pointer("Z")
	if z.IsNull() || z.Size() != 16 {
		t.Fatalf("Z pair = %v", z)
	}
	if z.NumRegs() != 2 || z.Number(0) != 30 || z.Number(1) != 31 {
		t.Errorf("Z should span r30:r31")
	}
	w := avr.Pointer("W")
	if !w.IsNull() {
		t.Errorf("unknown pointer should come back null")
	}
	v8 := mustPlatform(t, "armv8a")
	vz := v8.Pointer("Z")
	if !vz.IsNull() {
		t.Errorf("aarch64 has no named pointer pairs")
	}
}

func TestArgumentOrder(t *testing.T) {
	avr := mustPlatform(t, "avr5")
	want := []uint8{24, 25, 22, 23, 20, 21, 18, 19}
	if avr.NumArguments() != len(want) {
		t.Fatalf("NumArguments = %d", avr.NumArguments())
	}
	for i, num := range want {
		if avr.Argument(i).Number() != num {
			t.Errorf("argument %d = r%d, want r%d", i, avr.Argument(i).Number(), num)
		}
	}
	v6 := mustPlatform(t, "armv6")
	if v6.NumArguments() != 4 || v6.Argument(0).Number() != 0 {
		t.Errorf("arm arguments = %d starting r%d", v6.NumArguments(), v6.Argument(0).Number())
	}
}

func TestAVRWriteInsn(t *testing.T) {
	avr := mustPlatform(t, "avr5")
	st := avr.BeginWrite("f", func(l insn.Label) string { return ".L1" },
		func(uint64) string { return "table_0" })
	a := mustReg(t, avr, "r18")
	b := mustReg(t, avr, "r19")
	z := mustReg(t, avr, "Z")

	var sb strings.Builder
	lines := []insn.Insn{
		insn.Binary(insn.XOR, a, a, b, insn.None),
		insn.BinaryImm(insn.ADDI, a, a, 1, insn.None),
		insn.BinaryImm(insn.ADDI, z, z, 5, insn.None),
		insn.Mem(insn.LD8, a, z, 3),
		insn.Mem(insn.ST8, b, z, insn.PostInc),
		insn.Binary(insn.CMP, regs.Sized{}, a, b, insn.SetC),
		insn.Bare(insn.RET),
	}
	for _, i := range lines {
		if err := avr.WriteInsn(&sb, st, i); err != nil {
			t.Fatalf("WriteInsn(%s): %v", i.Op, err)
		}
	}
	got := sb.String()
	for _, want := range []string{
		"\teor\tr18, r19\n",
		"\tsubi\tr18, 255\n",
		"\tadiw\tr30, 5\n",
		"\tldd\tr18, Z+3\n",
		"\tst\tZ+, r19\n",
		"\tcpc\tr18, r19\n",
		"\tret\n",
	} {
		if !strings.Contains(got, want) {
			t.Errorf("output missing %q:\n%s", want, got)
		}
	}
}

func TestARMWriteInsn(t *testing.T) {
	v6 := mustPlatform(t, "armv6")
	st := v6.BeginWrite("f", func(l insn.Label) string { return ".L2" },
		func(uint64) string { return "table_0" })
	r0 := mustReg(t, v6, "r0")
	r1 := mustReg(t, v6, "r1")
	r2 := mustReg(t, v6, "r2")

	var sb strings.Builder
	lines := []insn.Insn{
		insn.BinaryShifted(insn.XOR, r0, r1, r2, insn.ModROR, 13, insn.None),
		insn.BinaryImm(insn.RORI, r0, r1, 7, insn.None),
		insn.Mem(insn.LD32, r0, r1, 8),
		insn.MemArray(insn.LD8Array, r0, r1, r2, 0),
		insn.Branch(insn.BRNE, 2),
		insn.Bare(insn.RET),
	}
	for _, i := range lines {
		if err := v6.WriteInsn(&sb, st, i); err != nil {
			t.Fatalf("WriteInsn(%s): %v", i.Op, err)
		}
	}
	got := sb.String()
	for _, want := range []string{
		"\teor\tr0, r1, r2, ror #13\n",
		"\tror\tr0, r1, #7\n",
		"\tldr\tr0, [r1, #8]\n",
		"\tldrb\tr0, [r1, r2]\n",
		"\tbne\t.L2\n",
		"\tbx\tlr\n",
	} {
		if !strings.Contains(got, want) {
			t.Errorf("output missing %q:\n%s", want, got)
		}
	}
}
