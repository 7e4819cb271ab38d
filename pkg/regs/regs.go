// Package regs models physical registers and multi-limb virtual registers.
//
// A Basic describes one physical register on a target: its number, the
// operand sizes it supports, its per-size names, and capability flags.
// A Sized pairs a Basic with one chosen size. A Reg strings together one
// or more equally-sized Sized limbs, least significant first, to represent
// a value wider (or narrower) than any single physical register.
//
// The register model carries no placement policy. It only records "this
// value currently lives in these physical registers, in this order, with
// this many meaningful bits"; allocation decisions belong to the code
// generator.
package regs

import (
	"errors"
	"fmt"
)

// ErrInvalidRegister reports a register whose size or composition is
// not acceptable.
var ErrInvalidRegister = errors.New("invalid register")

// Size is an operand width in bits.
type Size uint8

const (
	Size8  Size = 8
	Size16 Size = 16
	Size32 Size = 32
	Size64 Size = 64
)

// SizeMask is a set of supported operand widths.
type SizeMask uint8

const (
	Has8  SizeMask = 1 << iota // 8-bit form available
	Has16
	Has32
	Has64
)

func maskFor(size Size) SizeMask {
	switch size {
	case Size8:
		return Has8
	case Size16:
		return Has16
	case Size32:
		return Has32
	case Size64:
		return Has64
	}
	return 0
}

// Flags describe how a basic register may be used.
type Flags uint16

const (
	// TwoAddress marks a register usable with two-address ALU forms.
	TwoAddress Flags = 1 << iota
	// ThreeAddress marks a register usable with three-address ALU forms.
	ThreeAddress
	// StackPointer marks the stack pointer.
	StackPointer
	// ProgramCounter marks the program counter.
	ProgramCounter
	// Link marks the link register for call returns.
	Link
	// Address marks a register that can hold memory addresses.
	Address
	// Data marks a general-purpose ALU register.
	Data
	// Storage marks a register that can hold data but not feed the ALU.
	// Used for high or address registers on split-register-class targets.
	Storage
	// SignExtend marks a register whose narrow writes sign-extend.
	// Without it, narrow writes zero-extend.
	SignExtend
	// CalleeSaved marks a register the callee must preserve.
	CalleeSaved
	// Zero marks a register fixed at zero, usually with NoAllocate.
	Zero
	// Temporary marks a register that a jump or call may destroy.
	Temporary
	// NoAllocate marks a special register the allocator must skip.
	NoAllocate
	// ImmCapable marks a register that accepts direct load-immediate,
	// for targets where only a high register class can do so.
	ImmCapable
)

// Basic is a physical register description. Platforms construct their
// register inventory once at startup and hand out shared pointers;
// a Basic is never mutated after construction.
type Basic struct {
	num      uint8
	sizes    SizeMask
	flags    Flags
	name8    string
	name16   string
	name32   string
	name64   string
	addrName string
}

// NewBasic constructs a register supporting the given sizes. Names are
// assigned afterwards with the SetName methods during platform setup.
func NewBasic(number uint8, sizes SizeMask, flags Flags) *Basic {
	return &Basic{num: number, sizes: sizes, flags: flags}
}

// Reg8 constructs an 8-bit-only register.
func Reg8(number uint8, name string, flags Flags) *Basic {
	return &Basic{num: number, sizes: Has8, flags: flags, name8: name}
}

// Reg32 constructs a 32-bit-only register.
func Reg32(number uint8, name string, flags Flags) *Basic {
	return &Basic{num: number, sizes: Has32, flags: flags, name32: name}
}

// Reg64 constructs a 64-bit-only register.
func Reg64(number uint8, name string, flags Flags) *Basic {
	return &Basic{num: number, sizes: Has64, flags: flags, name64: name}
}

// Reg3264 constructs a register with 32-bit and 64-bit forms.
func Reg3264(number uint8, name32, name64 string, flags Flags) *Basic {
	return &Basic{
		num:    number,
		sizes:  Has32 | Has64,
		flags:  flags,
		name32: name32,
		name64: name64,
	}
}

// Number returns the low-level register number.
func (b *Basic) Number() uint8 { return b.num }

// Sizes returns the supported size mask.
func (b *Basic) Sizes() SizeMask { return b.sizes }

// HasSize reports whether the register supports the given width.
func (b *Basic) HasSize(size Size) bool { return b.sizes&maskFor(size) != 0 }

// MaxSize returns the widest supported form.
func (b *Basic) MaxSize() Size {
	switch {
	case b.sizes&Has64 != 0:
		return Size64
	case b.sizes&Has32 != 0:
		return Size32
	case b.sizes&Has16 != 0:
		return Size16
	}
	return Size8
}

// Flags returns the capability flags.
func (b *Basic) Flags() Flags { return b.flags }

// HasFlag reports whether every flag in f is present.
func (b *Basic) HasFlag(f Flags) bool { return b.flags&f == f }

// SetName8 assigns the 8-bit name during platform construction.
func (b *Basic) SetName8(name string) { b.name8 = name }

// SetName16 assigns the 16-bit name during platform construction.
func (b *Basic) SetName16(name string) { b.name16 = name }

// SetName32 assigns the 32-bit name during platform construction.
func (b *Basic) SetName32(name string) { b.name32 = name }

// SetName64 assigns the 64-bit name during platform construction.
func (b *Basic) SetName64(name string) { b.name64 = name }

// SetAddressName assigns the name used when the register holds an address.
func (b *Basic) SetAddressName(name string) { b.addrName = name }

// NameForSize returns the name of the register at the given width,
// or the empty string when the width has no name.
func (b *Basic) NameForSize(size Size) string {
	switch size {
	case Size8:
		return b.name8
	case Size16:
		return b.name16
	case Size32:
		return b.name32
	}
	return b.name64
}

// AddressName returns the register name used in addressing contexts.
// On 32-on-64 hosting platforms addressing must use the wide form even
// when data travels in the narrow form.
func (b *Basic) AddressName() string {
	if b.addrName != "" {
		return b.addrName
	}
	switch {
	case b.sizes&Has64 != 0:
		return b.name64
	case b.sizes&Has32 != 0:
		return b.name32
	}
	return b.name16
}

// Sized is a basic register decorated with its chosen operand width.
// The zero Sized is null.
type Sized struct {
	Basic *Basic
	Size  Size
}

// NewSized selects one width of a basic register.
func NewSized(b *Basic, size Size) (Sized, error) {
	if b == nil {
		return Sized{}, fmt.Errorf("%w: no register for the %d-bit size",
			ErrInvalidRegister, size)
	}
	if !b.HasSize(size) {
		return Sized{}, fmt.Errorf("%w: register %s does not support the %d-bit size",
			ErrInvalidRegister, b.AddressName(), size)
	}
	return Sized{Basic: b, Size: size}, nil
}

// IsNull reports whether no register has been assigned.
func (s Sized) IsNull() bool { return s.Basic == nil }

// Number returns the underlying register number.
func (s Sized) Number() uint8 { return s.Basic.Number() }

// Name returns the size-appropriate register name.
func (s Sized) Name() string { return s.Basic.NameForSize(s.Size) }

// Equal reports whether two sized registers have the same number and size.
func (s Sized) Equal(other Sized) bool {
	if s.IsNull() || other.IsNull() {
		return s.IsNull() == other.IsNull()
	}
	return s.Number() == other.Number() && s.Size == other.Size
}

// Reg is an arbitrary-width register value stored in one or more basic
// registers of equal limb size, least significant limb first.
//
// A Reg need not be a whole number of limbs wide: Size reports the
// significant bit count and FullSize the total capacity. ZeroFill records
// whether the bits between the two are known to be zero, or may hold
// garbage that later operations must mask off.
type Reg struct {
	size     uint
	fullSize uint
	zeroFill bool
	limbs    []Sized
}

// NewReg returns an empty register.
func NewReg() Reg {
	return Reg{zeroFill: true}
}

// FromSized wraps a single sized register.
func FromSized(s Sized) Reg {
	r := NewReg()
	// A sized register is always self-consistent.
	_ = r.Add(s)
	return r
}

// FromBasic wraps a basic register at its maximum width.
func FromBasic(b *Basic) Reg {
	return FromSized(Sized{Basic: b, Size: b.MaxSize()})
}

// Size returns the significant bit count.
func (r *Reg) Size() uint { return r.size }

// FullSize returns the total bit capacity across all limbs.
func (r *Reg) FullSize() uint { return r.fullSize }

// IsNull reports whether the register is empty.
func (r *Reg) IsNull() bool { return r.size == 0 }

// ZeroFill reports whether bits Size..FullSize are known zero.
func (r *Reg) ZeroFill() bool { return r.zeroFill }

// SetZeroFill records whether the unused high bits are known zero.
func (r *Reg) SetZeroFill(z bool) { r.zeroFill = z }

// LimbSize returns the width of a single limb, or 0 when empty.
func (r *Reg) LimbSize() uint {
	if len(r.limbs) == 0 {
		return 0
	}
	return uint(r.limbs[0].Size)
}

// NumRegs returns the limb count.
func (r *Reg) NumRegs() int { return len(r.limbs) }

// Limb returns the sized register at index, 0 being least significant.
func (r *Reg) Limb(index int) Sized { return r.limbs[index] }

// Basic returns the basic register underlying the limb at index.
func (r *Reg) Basic(index int) *Basic { return r.limbs[index].Basic }

// Number returns the register number of the limb at index.
func (r *Reg) Number(index int) uint8 { return r.limbs[index].Number() }

// Name returns the size-appropriate name of the limb at index.
func (r *Reg) Name(index int) string { return r.limbs[index].Name() }

// Add appends a limb. Limbs run from least significant to most
// significant; every limb must have the same width and no physical
// register may appear twice.
func (r *Reg) Add(s Sized) error {
	if s.IsNull() {
		return fmt.Errorf("%w: cannot add a null register", ErrInvalidRegister)
	}
	for _, limb := range r.limbs {
		if limb.Number() == s.Number() {
			return fmt.Errorf("%w: %s appears twice", ErrInvalidRegister, s.Name())
		}
	}
	if len(r.limbs) > 0 && r.limbs[0].Size != s.Size {
		return fmt.Errorf("%w: %s is not the same size as %s",
			ErrInvalidRegister, s.Name(), r.limbs[0].Name())
	}
	r.limbs = append(r.limbs, s)
	r.size += uint(s.Size)
	r.fullSize += uint(s.Size)
	return nil
}

// AddBasic appends a basic register at a specific width.
func (r *Reg) AddBasic(b *Basic, size Size) error {
	s, err := NewSized(b, size)
	if err != nil {
		return err
	}
	return r.Add(s)
}

// SetSize narrows the significant bit count. The new size must stay
// within the extent of the most significant limb.
func (r *Reg) SetSize(size uint) error {
	if size > r.fullSize || size <= r.fullSize-r.LimbSize() {
		return fmt.Errorf("%w: size %d outside (%d, %d]",
			ErrInvalidRegister, size, r.fullSize-r.LimbSize(), r.fullSize)
	}
	r.size = size
	return nil
}

// Clear empties the register, returning it to the null state.
func (r *Reg) Clear() {
	r.size = 0
	r.fullSize = 0
	r.zeroFill = true
	r.limbs = nil
}

// Reversed returns a register with the limb order flipped, used to
// switch between little- and big-endian limb layouts. The register
// must not have a partial high limb.
func (r *Reg) Reversed() (Reg, error) {
	if r.size != r.fullSize {
		return Reg{}, fmt.Errorf("%w: cannot reverse an odd-sized register", ErrInvalidRegister)
	}
	result := Reg{size: r.size, fullSize: r.fullSize, zeroFill: true}
	for i := len(r.limbs); i > 0; i-- {
		result.limbs = append(result.limbs, r.limbs[i-1])
	}
	return result, nil
}

// Subset returns the limbs covering bits [start, start+length) of the
// register. start must be limb-aligned; length 0 means everything from
// start to the end. A subset that stops short of the end must also be
// limb-aligned in length.
func (r *Reg) Subset(start, length uint) (Reg, error) {
	if length == 0 {
		length = r.size
	}
	if len(r.limbs) == 0 || start >= r.size {
		return NewReg(), nil
	}
	if start+length > r.size {
		length = r.size - start
	}
	if length == 0 {
		return NewReg(), nil
	}
	limb := uint(r.limbs[0].Size)
	if start%limb != 0 {
		return Reg{}, fmt.Errorf("%w: subset start %d is not a multiple of %d",
			ErrInvalidRegister, start, limb)
	}
	result := NewReg()
	var from, to uint
	if start+length < r.size {
		if length%limb != 0 {
			return Reg{}, fmt.Errorf("%w: subset length %d is not a multiple of %d",
				ErrInvalidRegister, length, limb)
		}
		result.size = length
		result.fullSize = length
		result.zeroFill = true
		from = start / limb
		to = (start + length) / limb
	} else {
		result.size = r.size - start
		result.fullSize = r.fullSize - start
		result.zeroFill = r.zeroFill
		from = start / limb
		to = uint(len(r.limbs))
	}
	for ; from < to; from++ {
		result.limbs = append(result.limbs, r.limbs[from])
	}
	return result, nil
}

// Reduce returns the length least significant bits of the register.
func (r *Reg) Reduce(length uint) (Reg, error) {
	return r.Subset(0, length)
}

// SubsetFrom returns everything from start to the end of the register.
func (r *Reg) SubsetFrom(start uint) (Reg, error) {
	return r.Subset(start, 0)
}

// Equal reports whether two registers name the same limbs in the same
// order with the same sizes.
func (r *Reg) Equal(other *Reg) bool {
	if r.size != other.size || r.fullSize != other.fullSize ||
		len(r.limbs) != len(other.limbs) {
		return false
	}
	for i := range r.limbs {
		if !r.limbs[i].Equal(other.limbs[i]) {
			return false
		}
	}
	return true
}
