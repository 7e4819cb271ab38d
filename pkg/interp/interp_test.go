package interp

import (
	"bytes"
	"encoding/binary"
	mathbits "math/bits"
	"testing"

	"github.com/gencrypto/gencrypto/pkg/codegen"
	"github.com/gencrypto/gencrypto/pkg/platform"
)

func avrCode(t *testing.T, name string, locals uint) *codegen.Code {
	t.Helper()
	p, err := platform.ForName("avr5")
	if err != nil {
		t.Fatalf("ForName: %v", err)
	}
	c := codegen.New(p)
	c.ProloguePermutation(name, locals)
	return c
}

func finish(t *testing.T, c *codegen.Code) {
	t.Helper()
	if err := c.Finalise(); err != nil {
		t.Fatalf("Finalise: %v", err)
	}
}

func TestAddCarriesAcrossLimbs(t *testing.T) {
	c := avrCode(t, "add32", 0)
	a := c.AllocateReg(4)
	b := c.AllocateReg(4)
	c.LdZ(a, 0)
	c.LdZ(b, 4)
	c.Add(a, b)
	c.StZ(a, 0)
	finish(t, c)

	state := make([]byte, 8)
	binary.LittleEndian.PutUint32(state, 0xFF00FFFF)
	binary.LittleEndian.PutUint32(state[4:], 0x01FF0002)
	if err := ExecPermutation(c, state); err != nil {
		t.Fatalf("ExecPermutation: %v", err)
	}
	if got := binary.LittleEndian.Uint32(state); got != 0x01000001 {
		t.Errorf("sum %#x, want 0x01000001", got)
	}
}

func TestSubtractImmediateBorrows(t *testing.T) {
	c := avrCode(t, "sub16", 0)
	r := c.AllocateHigh(2)
	c.LdZ(r, 0)
	c.SubImm(r, 0x0101)
	c.StZ(r, 0)
	finish(t, c)

	state := []byte{0x00, 0x03} // 0x0300
	if err := ExecPermutation(c, state); err != nil {
		t.Fatalf("ExecPermutation: %v", err)
	}
	if got := binary.LittleEndian.Uint16(state); got != 0x01FF {
		t.Errorf("difference %#x, want 0x01ff", got)
	}
}

func TestRotationsMatchReference(t *testing.T) {
	for _, n := range []uint{1, 3, 4, 7, 8, 11, 13, 15} {
		c := avrCode(t, "rot16", 0)
		r := c.AllocateReg(2)
		c.LdZ(r, 0)
		c.Rol(r, n)
		c.StZ(r, 0)
		finish(t, c)

		state := make([]byte, 2)
		binary.LittleEndian.PutUint16(state, 0xABCD)
		if err := ExecPermutation(c, state); err != nil {
			t.Fatalf("rotate %d: %v", n, err)
		}
		want := mathbits.RotateLeft16(0xABCD, int(n))
		if got := binary.LittleEndian.Uint16(state); got != want {
			t.Errorf("rotate %d: got %#x, want %#x", n, got, want)
		}
	}
}

func TestWideRotation(t *testing.T) {
	for _, n := range []uint{5, 19, 29, 61} {
		c := avrCode(t, "rot64", 0)
		r := c.AllocateReg(8)
		c.LdZ(r, 0)
		c.Ror(r, n)
		c.StZ(r, 0)
		finish(t, c)

		state := make([]byte, 8)
		binary.LittleEndian.PutUint64(state, 0x0123456789ABCDEF)
		if err := ExecPermutation(c, state); err != nil {
			t.Fatalf("rotate %d: %v", n, err)
		}
		want := mathbits.RotateLeft64(0x0123456789ABCDEF, -int(n))
		if got := binary.LittleEndian.Uint64(state); got != want {
			t.Errorf("rotate %d: got %#x, want %#x", n, got, want)
		}
	}
}

func TestDecrementLoop(t *testing.T) {
	c := avrCode(t, "loop", 0)
	sum := c.AllocateHigh(1)
	count := c.AllocateHigh(1)
	c.MoveImm(sum, 0)
	c.MoveImm(count, 5)
	var top codegen.Label
	c.Label(&top)
	c.AddImm(sum, 7)
	c.Dec(count)
	c.Brne(&top)
	c.StZ(sum, 0)
	finish(t, c)

	state := []byte{0}
	if err := ExecPermutation(c, state); err != nil {
		t.Fatalf("ExecPermutation: %v", err)
	}
	if state[0] != 35 {
		t.Errorf("loop sum %d, want 35", state[0])
	}
}

func TestCompareAndBranch(t *testing.T) {
	build := func() *codegen.Code {
		c := avrCode(t, "cmp", 0)
		x := c.AllocateHigh(1)
		y := c.AllocateHigh(1)
		c.LdZ(x, 0)
		var less, end codegen.Label
		c.Compare(x, 10)
		c.Brlo(&less)
		c.MoveImm(y, 2)
		c.Jmp(&end)
		c.Label(&less)
		c.MoveImm(y, 1)
		c.Label(&end)
		c.StZ(y, 0)
		finish(t, c)
		return c
	}
	for _, tc := range []struct{ in, want byte }{{5, 1}, {10, 2}, {200, 2}} {
		c := build()
		state := []byte{tc.in}
		if err := ExecPermutation(c, state); err != nil {
			t.Fatalf("ExecPermutation: %v", err)
		}
		if state[0] != tc.want {
			t.Errorf("compare %d: got %d, want %d", tc.in, state[0], tc.want)
		}
	}
}

func TestWideCompareEquality(t *testing.T) {
	// The borrow-chained compare must feed a single equality branch.
	c := avrCode(t, "cmp16", 0)
	x := c.AllocateHigh(2)
	y := c.AllocateHigh(1)
	c.LdZ(x, 0)
	var eq, end codegen.Label
	c.Compare(x, 0x1234)
	c.Breq(&eq)
	c.MoveImm(y, 0)
	c.Jmp(&end)
	c.Label(&eq)
	c.MoveImm(y, 1)
	c.Label(&end)
	c.StZ(y, 0)
	finish(t, c)

	state := []byte{0x34, 0x12}
	if err := ExecPermutation(c, state); err != nil {
		t.Fatalf("ExecPermutation: %v", err)
	}
	if state[0] != 1 {
		t.Error("equal value did not take the equality branch")
	}
}

func TestTableLookup(t *testing.T) {
	c := avrCode(t, "sbox", 0)
	table := make([]byte, 256)
	for i := range table {
		table[i] = byte(i) + 1
	}
	index := c.SBoxAdd(table)
	r := c.AllocateReg(2)
	c.LdZ(r, 0)
	c.SBoxSetup(index)
	c.SBoxLookup(r, r)
	c.SBoxCleanup()
	c.StZ(r, 0)
	finish(t, c)

	state := []byte{0x41, 0xFF}
	if err := ExecPermutation(c, state); err != nil {
		t.Fatalf("ExecPermutation: %v", err)
	}
	if state[0] != 0x42 || state[1] != 0x00 {
		t.Errorf("lookup gave %#x %#x", state[0], state[1])
	}
}

func TestLocalsRoundTrip(t *testing.T) {
	c := avrCode(t, "locals", 8)
	r := c.AllocateReg(4)
	c.LdZ(r, 0)
	c.StLocal(r, 4)
	c.MoveImm(r, 0)
	c.LdLocal(r, 4)
	c.StZ(r, 0)
	finish(t, c)

	state := []byte{0xDE, 0xAD, 0xBE, 0xEF}
	want := append([]byte(nil), state...)
	if err := ExecPermutation(c, state); err != nil {
		t.Fatalf("ExecPermutation: %v", err)
	}
	if !bytes.Equal(state, want) {
		t.Errorf("state %x after local round trip, want %x", state, want)
	}
}

func TestSubroutineCall(t *testing.T) {
	c := avrCode(t, "calls", 0)
	r := c.AllocateHigh(1)
	c.MoveImm(r, 0)
	var sub, end codegen.Label
	c.Call(&sub)
	c.Call(&sub)
	c.Call(&sub)
	c.Jmp(&end)
	c.Label(&sub)
	c.AddImm(r, 1)
	c.Ret()
	c.Label(&end)
	c.StZ(r, 0)
	finish(t, c)

	state := []byte{0}
	if err := ExecPermutation(c, state); err != nil {
		t.Fatalf("ExecPermutation: %v", err)
	}
	if state[0] != 3 {
		t.Errorf("subroutine ran %d times, want 3", state[0])
	}
}

func TestOutputPointerRoundTrip(t *testing.T) {
	p, err := platform.ForName("avr5")
	if err != nil {
		t.Fatalf("ForName: %v", err)
	}
	c := codegen.New(p)
	c.PrologueEncryptBlock("copyblk", 0)
	r := c.AllocateReg(4)
	c.LdX(r, codegen.PostInc)
	c.LoadOutputPtr()
	c.StX(r, codegen.PostInc)
	finish(t, c)

	sched := make([]byte, 4)
	in := []byte{1, 2, 3, 4}
	out := make([]byte, 4)
	if err := ExecEncryptBlock(c, sched, out, in); err != nil {
		t.Fatalf("ExecEncryptBlock: %v", err)
	}
	if !bytes.Equal(out, in) {
		t.Errorf("output %x, want %x", out, in)
	}
}

func TestCountArgument(t *testing.T) {
	p, err := platform.ForName("avr5")
	if err != nil {
		t.Fatalf("ForName: %v", err)
	}
	c := codegen.New(p)
	count := c.ProloguePermutationWithCount("counted", 0)
	sum := c.AllocateHigh(1)
	c.MoveImm(sum, 0)
	var top codegen.Label
	c.Label(&top)
	c.AddImm(sum, 2)
	c.Dec(count)
	c.Brne(&top)
	c.StZ(sum, 0)
	finish(t, c)

	state := []byte{0}
	if err := ExecPermutationWithCount(c, state, 6); err != nil {
		t.Fatalf("ExecPermutationWithCount: %v", err)
	}
	if state[0] != 12 {
		t.Errorf("counted loop gave %d, want 12", state[0])
	}
}

func TestXorThroughMemory(t *testing.T) {
	c := avrCode(t, "xorm", 0)
	r := c.AllocateReg(2)
	c.LdZ(r, 0)
	c.LdZXor(r, 2)
	c.StZ(r, 0)
	c.LdZXorIn(r, 4)
	finish(t, c)

	state := []byte{0x0F, 0xF0, 0x33, 0x55, 0x01, 0x02}
	if err := ExecPermutation(c, state); err != nil {
		t.Fatalf("ExecPermutation: %v", err)
	}
	if state[0] != 0x3C || state[1] != 0xA5 {
		t.Errorf("register xor gave %#x %#x", state[0], state[1])
	}
	if state[4] != 0x3D || state[5] != 0xA7 {
		t.Errorf("memory xor gave %#x %#x", state[4], state[5])
	}
}

func TestBudgetStopsRunawayLoop(t *testing.T) {
	c := avrCode(t, "spin", 0)
	var top codegen.Label
	c.Label(&top)
	c.Jmp(&top)
	finish(t, c)

	if err := ExecPermutation(c, []byte{0}); err == nil {
		t.Fatal("infinite loop returned")
	}
}
