package regs

import (
	"errors"
	"testing"
)

func byteRegs(n int) []*Basic {
	regs := make([]*Basic, n)
	for i := range regs {
		regs[i] = Reg8(uint8(i), "r"+string(rune('0'+i)), Data)
	}
	return regs
}

func buildReg(t *testing.T, basics ...*Basic) Reg {
	t.Helper()
	r := NewReg()
	for _, b := range basics {
		if err := r.AddBasic(b, Size8); err != nil {
			t.Fatalf("AddBasic: %v", err)
		}
	}
	return r
}

func TestBasicSizes(t *testing.T) {
	b := Reg3264(3, "w3", "x3", Data|Address)
	if !b.HasSize(Size32) || !b.HasSize(Size64) {
		t.Errorf("expected 32-bit and 64-bit sizes")
	}
	if b.HasSize(Size8) || b.HasSize(Size16) {
		t.Errorf("unexpected narrow sizes")
	}
	if b.MaxSize() != Size64 {
		t.Errorf("MaxSize = %d, want 64", b.MaxSize())
	}
	if b.NameForSize(Size32) != "w3" || b.NameForSize(Size64) != "x3" {
		t.Errorf("wrong size names: %q %q", b.NameForSize(Size32), b.NameForSize(Size64))
	}
	if b.NameForSize(Size8) != "" {
		t.Errorf("8-bit name should be empty")
	}
}

func TestAddressName(t *testing.T) {
	b := Reg3264(0, "w0", "x0", Data|Address)
	if b.AddressName() != "x0" {
		t.Errorf("AddressName = %q, want x0", b.AddressName())
	}
	b2 := Reg32(1, "r1", Data)
	b2.SetAddressName("r1!")
	if b2.AddressName() != "r1!" {
		t.Errorf("explicit address name not honoured")
	}
}

func TestNewSizedRejectsUnsupported(t *testing.T) {
	b := Reg32(0, "r0", Data)
	if _, err := NewSized(b, Size8); !errors.Is(err, ErrInvalidRegister) {
		t.Errorf("expected ErrInvalidRegister, got %v", err)
	}
	s, err := NewSized(b, Size32)
	if err != nil {
		t.Fatalf("NewSized: %v", err)
	}
	if s.Name() != "r0" {
		t.Errorf("Name = %q, want r0", s.Name())
	}
}

func TestNewSizedNilBasic(t *testing.T) {
	if _, err := NewSized(nil, Size8); !errors.Is(err, ErrInvalidRegister) {
		t.Errorf("expected ErrInvalidRegister, got %v", err)
	}
}

func TestRegAdd(t *testing.T) {
	basics := byteRegs(4)
	r := buildReg(t, basics[0], basics[1])
	if r.Size() != 16 || r.FullSize() != 16 {
		t.Errorf("size = %d/%d, want 16/16", r.Size(), r.FullSize())
	}
	if r.LimbSize() != 8 || r.NumRegs() != 2 {
		t.Errorf("limb size %d, limbs %d", r.LimbSize(), r.NumRegs())
	}

	// The same physical register cannot appear twice.
	if err := r.AddBasic(basics[0], Size8); !errors.Is(err, ErrInvalidRegister) {
		t.Errorf("duplicate limb accepted: %v", err)
	}

	// All limbs must share one width.
	wide := Reg32(9, "w9", Data)
	if err := r.AddBasic(wide, Size32); !errors.Is(err, ErrInvalidRegister) {
		t.Errorf("mixed limb widths accepted: %v", err)
	}
}

func TestRegSetSize(t *testing.T) {
	basics := byteRegs(3)
	r := buildReg(t, basics...)
	if err := r.SetSize(17); err != nil {
		t.Errorf("SetSize(17): %v", err)
	}
	if r.Size() != 17 || r.FullSize() != 24 {
		t.Errorf("size = %d/%d, want 17/24", r.Size(), r.FullSize())
	}
	if err := r.SetSize(16); !errors.Is(err, ErrInvalidRegister) {
		t.Errorf("SetSize(16) should leave the top limb empty: %v", err)
	}
	if err := r.SetSize(25); !errors.Is(err, ErrInvalidRegister) {
		t.Errorf("SetSize(25) exceeds capacity: %v", err)
	}
}

func TestReversedRoundTrip(t *testing.T) {
	basics := byteRegs(4)
	r := buildReg(t, basics...)
	rev, err := r.Reversed()
	if err != nil {
		t.Fatalf("Reversed: %v", err)
	}
	if rev.Number(0) != 3 || rev.Number(3) != 0 {
		t.Errorf("limb order not reversed: %d..%d", rev.Number(0), rev.Number(3))
	}
	back, err := rev.Reversed()
	if err != nil {
		t.Fatalf("Reversed twice: %v", err)
	}
	if !back.Equal(&r) {
		t.Errorf("reversed(reversed(r)) != r")
	}
}

func TestReversedOddSize(t *testing.T) {
	basics := byteRegs(2)
	r := buildReg(t, basics...)
	if err := r.SetSize(13); err != nil {
		t.Fatalf("SetSize: %v", err)
	}
	if _, err := r.Reversed(); !errors.Is(err, ErrInvalidRegister) {
		t.Errorf("expected ErrInvalidRegister, got %v", err)
	}
}

func TestSubsetIdentity(t *testing.T) {
	basics := byteRegs(4)
	r := buildReg(t, basics...)
	sub, err := r.Subset(0, r.Size())
	if err != nil {
		t.Fatalf("Subset: %v", err)
	}
	if !sub.Equal(&r) {
		t.Errorf("subset(0, size) != r")
	}
}

func TestSubsetInterior(t *testing.T) {
	basics := byteRegs(4)
	r := buildReg(t, basics...)

	// An interior slice copies exactly len/limb limbs.
	sub, err := r.Subset(8, 16)
	if err != nil {
		t.Fatalf("Subset: %v", err)
	}
	if sub.NumRegs() != 2 {
		t.Fatalf("interior subset has %d limbs, want 2", sub.NumRegs())
	}
	if sub.Number(0) != 1 || sub.Number(1) != 2 {
		t.Errorf("interior subset limbs %d,%d, want 1,2", sub.Number(0), sub.Number(1))
	}
	if sub.Size() != 16 || sub.FullSize() != 16 {
		t.Errorf("interior subset size %d/%d, want 16/16", sub.Size(), sub.FullSize())
	}

	// A tail slice keeps the parent's zero-fill status.
	r.SetZeroFill(false)
	tail, err := r.SubsetFrom(16)
	if err != nil {
		t.Fatalf("SubsetFrom: %v", err)
	}
	if tail.NumRegs() != 2 || tail.Number(0) != 2 {
		t.Errorf("tail subset wrong limbs")
	}
	if tail.ZeroFill() {
		t.Errorf("tail subset should inherit zeroFill=false")
	}
}

func TestSubsetErrors(t *testing.T) {
	basics := byteRegs(4)
	r := buildReg(t, basics...)
	if _, err := r.Subset(4, 8); !errors.Is(err, ErrInvalidRegister) {
		t.Errorf("unaligned start accepted: %v", err)
	}
	if _, err := r.Subset(0, 12); !errors.Is(err, ErrInvalidRegister) {
		t.Errorf("unaligned interior length accepted: %v", err)
	}
	empty, err := r.Subset(64, 8)
	if err != nil {
		t.Fatalf("out-of-range subset: %v", err)
	}
	if !empty.IsNull() {
		t.Errorf("out-of-range subset should be null")
	}
}

func TestReduce(t *testing.T) {
	basics := byteRegs(4)
	r := buildReg(t, basics...)
	low, err := r.Reduce(8)
	if err != nil {
		t.Fatalf("Reduce: %v", err)
	}
	if low.NumRegs() != 1 || low.Number(0) != 0 {
		t.Errorf("Reduce(8) = limb %d, want limb 0", low.Number(0))
	}
}

func TestClear(t *testing.T) {
	basics := byteRegs(2)
	r := buildReg(t, basics...)
	r.Clear()
	if !r.IsNull() || r.NumRegs() != 0 || !r.ZeroFill() {
		t.Errorf("Clear did not reset the register")
	}
}
