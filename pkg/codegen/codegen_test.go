package codegen

import (
	"errors"
	"testing"

	"github.com/gencrypto/gencrypto/pkg/insn"
	"github.com/gencrypto/gencrypto/pkg/platform"
	"github.com/gencrypto/gencrypto/pkg/regs"
)

func avrCode(t *testing.T) *Code {
	t.Helper()
	p, err := platform.ForName("avr5")
	if err != nil {
		t.Fatalf("ForName: %v", err)
	}
	c := New(p)
	c.ProloguePermutation("test_fn", 0)
	if c.Err() != nil {
		t.Fatalf("prologue: %v", c.Err())
	}
	return c
}

func ops(c *Code) []insn.Op {
	result := make([]insn.Op, c.Len())
	for i := range result {
		result[i] = c.Insn(i).Op
	}
	return result
}

func TestProloguePermutationBindsState(t *testing.T) {
	c := avrCode(t)
	// The state pointer argument arrives in r25:r24 and moves to Z.
	if c.Len() != 2 {
		t.Fatalf("expected 2 instructions, got %d", c.Len())
	}
	for i, want := range []uint8{30, 31} {
		ins := c.Insn(i)
		if ins.Op != insn.MOV || ins.Dest.Number() != want || ins.Src1.Number() != want-6 {
			t.Errorf("insn %d: got %s r%d, r%d", i, ins.Op, ins.Dest.Number(), ins.Src1.Number())
		}
	}
}

func TestPrologueWithCount(t *testing.T) {
	p, _ := platform.ForName("avr5")
	c := New(p)
	count := c.ProloguePermutationWithCount("test_fn", 0)
	if c.Err() != nil {
		t.Fatalf("prologue: %v", c.Err())
	}
	if count.NumRegs() != 1 || count.Number(0) != 22 {
		t.Errorf("count argument in r%d, want r22", count.Number(0))
	}
}

func TestPrologueEncryptBlock(t *testing.T) {
	p, _ := platform.ForName("avr5")
	c := New(p)
	c.PrologueEncryptBlock("test_fn", 16)
	want := []insn.Op{insn.MOV, insn.MOV, insn.PUSH, insn.PUSH, insn.MOV, insn.MOV}
	got := ops(c)
	if len(got) != len(want) {
		t.Fatalf("got %v", got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("insn %d: got %s, want %s", i, got[i], want[i])
		}
	}
	// The parked output pointer pops back into X high byte first.
	c.LoadOutputPtr()
	if c.Insn(c.Len()-2).Dest.Number() != 27 || c.Insn(c.Len()-1).Dest.Number() != 26 {
		t.Errorf("output pointer popped into r%d, r%d",
			c.Insn(c.Len()-2).Dest.Number(), c.Insn(c.Len()-1).Dest.Number())
	}
	if err := c.Finalise(); err != nil {
		t.Errorf("Finalise: %v", err)
	}
}

func TestUnbalancedOutputPtr(t *testing.T) {
	p, _ := platform.ForName("avr5")
	c := New(p)
	c.PrologueEncryptBlock("test_fn", 0)
	if err := c.Finalise(); !errors.Is(err, ErrInvalidArgument) {
		t.Errorf("Finalise: %v, want ErrInvalidArgument", err)
	}
}

func TestAllocationOrder(t *testing.T) {
	c := avrCode(t)
	r := c.AllocateReg(1)
	if r.Number(0) != 18 {
		t.Errorf("first allocation in r%d, want r18", r.Number(0))
	}
	r2 := c.AllocateReg(2)
	if r2.Number(0) != 19 || r2.Number(1) != 20 {
		t.Errorf("second allocation in r%d, r%d", r2.Number(0), r2.Number(1))
	}
	c.Release(&r)
	r3 := c.AllocateReg(1)
	if r3.Number(0) != 18 {
		t.Errorf("released register not reused: got r%d", r3.Number(0))
	}
}

func TestAllocationExhaustion(t *testing.T) {
	c := avrCode(t)
	if r := c.AllocateReg(24); r.NumRegs() != 24 {
		t.Fatalf("24-byte allocation failed: %v", c.Err())
	}
	c2 := avrCode(t)
	if r := c2.AllocateReg(25); !r.IsNull() {
		t.Fatal("25-byte allocation should fail with the pointer pairs reserved")
	}
	if !errors.Is(c2.Err(), ErrAllocationFailure) {
		t.Errorf("Err: %v, want ErrAllocationFailure", c2.Err())
	}
}

func TestReservedRegistersUnlock(t *testing.T) {
	c := avrCode(t)
	c.SetFlag(platform.TempX)
	r := c.AllocateReg(25)
	if r.IsNull() {
		t.Fatalf("allocation with TempX failed: %v", c.Err())
	}
	found := false
	for i := 0; i < r.NumRegs(); i++ {
		if r.Number(i) == 26 {
			found = true
		}
	}
	if !found {
		t.Error("TempX did not release r26 to the allocator")
	}
}

func TestAllocateTemp(t *testing.T) {
	c := avrCode(t)
	r := c.AllocateTemp(1)
	if r.Number(0) == 0 {
		t.Error("scratch register allocated without TempR")
	}
	c.Release(&r)
	c.SetFlag(platform.TempR)
	r = c.AllocateTemp(1)
	if r.Number(0) != 0 {
		t.Errorf("AllocateTemp with TempR gave r%d, want r0", r.Number(0))
	}
}

func TestAllocateHigh(t *testing.T) {
	c := avrCode(t)
	r := c.AllocateHigh(1)
	b := c.Platform().RegisterForNumber(r.Number(0))
	if !b.HasFlag(regs.ImmCapable) {
		t.Errorf("AllocateHigh gave r%d, which cannot take immediates", r.Number(0))
	}
}

func TestTempYRequiresNoLocals(t *testing.T) {
	p, _ := platform.ForName("avr5")
	c := New(p)
	c.ProloguePermutation("test_fn", 8)
	c.SetFlag(platform.TempY)
	if !errors.Is(c.Err(), ErrInvalidArgument) {
		t.Errorf("Err: %v, want ErrInvalidArgument", c.Err())
	}
}

func TestSetupLocalsRounding(t *testing.T) {
	p, _ := platform.ForName("avr5")
	c := New(p)
	c.ProloguePermutation("test_fn", 5)
	if c.LocalBytes() != 6 {
		t.Errorf("LocalBytes: %d, want 6", c.LocalBytes())
	}
}

func TestVerbsBeforePrologue(t *testing.T) {
	p, _ := platform.ForName("avr5")
	c := New(p)
	c.AllocateReg(1)
	if !errors.Is(c.Err(), ErrInvalidArgument) {
		t.Errorf("Err: %v, want ErrInvalidArgument", c.Err())
	}
}

func TestFinalisedIsSticky(t *testing.T) {
	c := avrCode(t)
	if err := c.Finalise(); err != nil {
		t.Fatalf("Finalise: %v", err)
	}
	c.AllocateReg(1)
	if err := c.Finalise(); !errors.Is(err, ErrFinalised) {
		t.Errorf("reuse after Finalise: %v, want ErrFinalised", err)
	}
}

func TestFinaliseAppendsReturn(t *testing.T) {
	c := avrCode(t)
	if err := c.Finalise(); err != nil {
		t.Fatalf("Finalise: %v", err)
	}
	if c.Insn(c.Len()-1).Op != insn.RET {
		t.Errorf("final instruction is %s, want ret", c.Insn(c.Len()-1).Op)
	}
}

func TestUnresolvedLabel(t *testing.T) {
	c := avrCode(t)
	var skip Label
	c.Jmp(&skip)
	if err := c.Finalise(); !errors.Is(err, ErrUnresolvedLabel) {
		t.Errorf("Finalise: %v, want ErrUnresolvedLabel", err)
	}
}

func TestLabelDefinedTwice(t *testing.T) {
	c := avrCode(t)
	var l Label
	c.Label(&l)
	c.Label(&l)
	if !errors.Is(c.Err(), ErrInvalidArgument) {
		t.Errorf("Err: %v, want ErrInvalidArgument", c.Err())
	}
}

func TestLoopShape(t *testing.T) {
	c := avrCode(t)
	r := c.AllocateHigh(1)
	c.MoveImm(r, 18)
	var top Label
	c.Label(&top)
	c.Dec(r)
	c.Brne(&top)
	if err := c.Finalise(); err != nil {
		t.Fatalf("Finalise: %v", err)
	}
	index, ok := c.LabelTarget(top)
	if !ok {
		t.Fatal("loop label has no target")
	}
	if c.Insn(index).Op != insn.LABEL {
		t.Errorf("label target is %s", c.Insn(index).Op)
	}
}

func TestMoveImmForms(t *testing.T) {
	c := avrCode(t)
	r := c.AllocateHigh(1)
	c.MoveImm(r, 0x5A)
	if last := c.Insn(c.Len() - 1); last.Op != insn.LDI || last.Imm != 0x5A {
		t.Errorf("got %s #%d, want ldi #90", last.Op, last.Imm)
	}
	c.MoveImm(r, 0)
	if last := c.Insn(c.Len() - 1); last.Op != insn.MOV || last.Src1.Number() != 1 {
		t.Errorf("zero load is %s from r%d, want mov from r1", last.Op, last.Src1.Number())
	}
}

func TestMoveImmThroughScratch(t *testing.T) {
	c := avrCode(t)
	// Consume the whole immediate-capable class, leaving r2 as the
	// first free register.
	r := c.AllocateReg(9)
	low := c.Slice(r, 8, 1)
	if low.Number(0) != 2 {
		t.Fatalf("ninth limb is r%d, want r2", low.Number(0))
	}
	c.MoveImm(low, 0x5A)
	if c.Err() != nil {
		t.Fatalf("MoveImm: %v", c.Err())
	}
	n := c.Len()
	if c.Insn(n-2).Op != insn.LDI || c.Insn(n-1).Op != insn.MOV {
		t.Errorf("got %s, %s, want ldi then mov", c.Insn(n-2).Op, c.Insn(n-1).Op)
	}
}

func TestSubImmChain(t *testing.T) {
	c := avrCode(t)
	r := c.AllocateHigh(2)
	c.SubImm(r, 0x1234)
	n := c.Len()
	first, second := c.Insn(n-2), c.Insn(n-1)
	if first.Op != insn.SUBI || first.Imm != 0x34 {
		t.Errorf("low limb: %s #%#x", first.Op, first.Imm)
	}
	if second.Op != insn.SBCI || second.Imm != 0x12 {
		t.Errorf("high limb: %s #%#x", second.Op, second.Imm)
	}
}

func TestAddImmNegates(t *testing.T) {
	c := avrCode(t)
	r := c.AllocateHigh(1)
	c.AddImm(r, 5)
	if last := c.Insn(c.Len() - 1); last.Op != insn.SUBI || last.Imm != 0xFB {
		t.Errorf("got %s #%#x, want subi #0xfb", last.Op, last.Imm)
	}
}

func TestAddCarryChain(t *testing.T) {
	c := avrCode(t)
	a := c.AllocateReg(2)
	b := c.AllocateReg(2)
	c.Add(a, b)
	n := c.Len()
	if c.Insn(n-2).Op != insn.ADD || c.Insn(n-1).Op != insn.ADC {
		t.Errorf("got %s, %s", c.Insn(n-2).Op, c.Insn(n-1).Op)
	}
}

func TestRotateSwap(t *testing.T) {
	c := avrCode(t)
	r := c.AllocateReg(1)
	c.Rol(r, 4)
	if last := c.Insn(c.Len() - 1); last.Op != insn.SWAP {
		t.Errorf("4-bit byte rotate is %s, want swap", last.Op)
	}
}

func TestRotateWindowRule(t *testing.T) {
	c := avrCode(t)
	r := c.AllocateReg(2)
	mark := c.Len()
	// Left by 7 should lower as byte-rotate plus one right step, not
	// seven left steps.
	c.Rol(r, 7)
	var rors int
	for i := mark; i < c.Len(); i++ {
		if c.Insn(i).Op == insn.ROR {
			rors++
		}
	}
	if rors != 2 {
		t.Errorf("rotate by 7 used %d ror steps, want 2", rors)
	}
}

func TestRotateByLimbWidth(t *testing.T) {
	c := avrCode(t)
	r := c.AllocateReg(2)
	mark := c.Len()
	c.Rol(r, 8)
	// A pure limb rotation is a three-move cycle through the scratch.
	for i := mark; i < c.Len(); i++ {
		if c.Insn(i).Op != insn.MOV {
			t.Fatalf("insn %d is %s, want mov", i, c.Insn(i).Op)
		}
	}
	if c.Len()-mark != 3 {
		t.Errorf("limb rotation took %d moves, want 3", c.Len()-mark)
	}
}

func TestCompareChainsBorrow(t *testing.T) {
	c := avrCode(t)
	r := c.AllocateHigh(2)
	c.Compare(r, 10)
	n := c.Len()
	first, second := c.Insn(n-2), c.Insn(n-1)
	if first.Op != insn.CMPI || first.Imm != 10 {
		t.Errorf("low limb: %s #%d", first.Op, first.Imm)
	}
	if second.Op != insn.CMP || second.Opt != insn.SetC || second.Src2.Number() != 1 {
		t.Errorf("high limb: %s opt %d vs r%d", second.Op, second.Opt, second.Src2.Number())
	}
}

func TestDisplacementBound(t *testing.T) {
	c := avrCode(t)
	r := c.AllocateReg(1)
	c.LdZ(r, 63)
	if c.Err() != nil {
		t.Fatalf("offset 63: %v", c.Err())
	}
	c.LdZ(r, 64)
	if !errors.Is(c.Err(), platform.ErrInvalidImmediate) {
		t.Errorf("offset 64: %v, want ErrInvalidImmediate", c.Err())
	}
}

func TestPreDecWalksDownward(t *testing.T) {
	c := avrCode(t)
	r := c.AllocateReg(2)
	mark := c.Len()
	c.StX(r, PreDec)
	first := c.Insn(mark)
	if first.Dest.Number() != r.Number(1) {
		t.Errorf("pre-decrement stored r%d first, want the top limb r%d",
			first.Dest.Number(), r.Number(1))
	}
}

func TestSBoxLifecycle(t *testing.T) {
	c := avrCode(t)
	index := c.SBoxAdd([]byte{0x63, 0x7C, 0x77, 0x7B})
	r := c.AllocateReg(1)
	c.SBoxSetup(index)
	c.SBoxLookup(r, r)
	c.SBoxCleanup()
	if err := c.Finalise(); err != nil {
		t.Fatalf("Finalise: %v", err)
	}
	var saw []insn.Op
	for _, i := range c.Insns() {
		switch i.Op {
		case insn.PUSH, insn.POP, insn.LDLabel, insn.LDPM:
			saw = append(saw, i.Op)
		}
	}
	want := []insn.Op{insn.PUSH, insn.PUSH, insn.LDLabel, insn.LDPM, insn.POP, insn.POP}
	if len(saw) != len(want) {
		t.Fatalf("table ops %v", saw)
	}
	for i := range want {
		if saw[i] != want[i] {
			t.Fatalf("table op %d: %s, want %s", i, saw[i], want[i])
		}
	}
}

func TestSBoxLeak(t *testing.T) {
	c := avrCode(t)
	index := c.SBoxAdd([]byte{1, 2, 3, 4})
	c.SBoxSetup(index)
	if err := c.Finalise(); !errors.Is(err, ErrInvalidArgument) {
		t.Errorf("Finalise: %v, want ErrInvalidArgument", err)
	}
}

func TestShuffleView(t *testing.T) {
	c := avrCode(t)
	r := c.AllocateReg(4)
	mark := c.Len()
	s := c.Shuffle(r, 1, 2, 3, 0)
	if c.Len() != mark {
		t.Error("shuffle emitted instructions")
	}
	if s.Number(0) != r.Number(1) || s.Number(3) != r.Number(0) {
		t.Error("shuffle order wrong")
	}
	c.Shuffle(r, 0, 1)
	if !errors.Is(c.Err(), ErrInvalidArgument) {
		t.Errorf("short shuffle: %v", c.Err())
	}
}

func TestSavedRegisters(t *testing.T) {
	c := avrCode(t)
	c.AllocateReg(10) // r18..r25 then r2, r3
	saved := c.SavedRegisters()
	if len(saved) != 2 || saved[0].Number() != 2 || saved[1].Number() != 3 {
		nums := make([]uint8, len(saved))
		for i, b := range saved {
			nums[i] = b.Number()
		}
		t.Errorf("saved registers %v, want [2 3]", nums)
	}
}

func TestMaskedAndNotXor(t *testing.T) {
	c := avrCode(t)
	var shares [6]regs.Reg
	for i := range shares {
		shares[i] = c.AllocateReg(1)
	}
	mark := c.Len()
	c.MaskedAndNotXor(shares[0], shares[1], shares[2], shares[3], shares[4], shares[5])
	if c.Err() != nil {
		t.Fatalf("MaskedAndNotXor: %v", c.Err())
	}
	var xors int
	for i := mark; i < c.Len(); i++ {
		if c.Insn(i).Op == insn.XOR {
			xors++
		}
	}
	if xors != 4 {
		t.Errorf("share expansion used %d xors, want 4", xors)
	}
}
