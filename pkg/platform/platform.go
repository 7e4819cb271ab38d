// Package platform describes compilation targets: their register
// inventories, calling conventions, feature flags, immediate-legality
// rules, instruction-selection hooks, and textual emission.
//
// A Platform is static after construction. The code generator consults
// it for every lowering decision but never mutates it, so one Platform
// value serves any number of functions.
package platform

import (
	"errors"
	"io"

	"github.com/gencrypto/gencrypto/pkg/insn"
	"github.com/gencrypto/gencrypto/pkg/regs"
)

// ErrInvalidInstruction reports operands that violate the platform's
// constraints in a way no lowering can work around.
var ErrInvalidInstruction = errors.New("invalid instruction")

// ErrInvalidImmediate reports an immediate outside the platform's
// legal range for the requested instruction.
var ErrInvalidImmediate = errors.New("invalid immediate")

// Feature flags describing the major capabilities of a platform.
type Feature uint32

const (
	// TwoAddress instructions of the form "x op= y" are available.
	TwoAddress Feature = 1 << iota
	// ThreeAddress instructions of the form "x = y op z" are available.
	ThreeAddress
	// ShiftAndOperate forms "x = y op (z sop n)" are available.
	ShiftAndOperate
	// SplitRegisters divides registers into low/high or data/address
	// groups where only one group feeds the ALU.
	SplitRegisters
	// RegisterPoor marks a platform with very few allocatable registers.
	RegisterPoor
	// RegisterRich marks a platform with plenty of allocatable registers.
	RegisterRich
	// ShiftToRotate marks a platform whose rotations must be built
	// from left and right shifts.
	ShiftToRotate
	// FunnelShift marks the availability of funnel shift instructions.
	FunnelShift
	// BitClear marks the availability of "bic": x = y & ~z.
	BitClear
	// BigEndian marks a big-endian platform; little-endian otherwise.
	BigEndian
	// UnaryDest allows unary operations with a distinct destination.
	// Without it, unary operations are in-place.
	UnaryDest
	// CompareAndBranch marks fused compare-and-branch instructions.
	CompareAndBranch
	// CarryRotate marks single-bit rotate instructions that shift
	// through the carry flag, used to chain rotates across limbs.
	CarryRotate
)

// CodeFlag is a per-function feature toggle an algorithm author can
// set on the code generator to unlock otherwise-reserved registers or
// adjust the frame discipline.
type CodeFlag uint8

const (
	// TempX releases the X pointer pair to the allocator.
	TempX CodeFlag = 1 << iota
	// TempY releases the Y pointer pair to the allocator; requires
	// NoLocals since Y is otherwise the frame base.
	TempY
	// TempZ releases the Z pointer pair to the allocator.
	TempZ
	// TempR releases the scratch register to the allocator.
	TempR
	// NoLocals promises the function needs no stack frame.
	NoLocals
)

// WriteState carries per-function context into WriteInsn. BeginWrite
// returns a fresh one for each function so emitters can deduplicate
// directives or pool literals without leaking state between functions.
type WriteState struct {
	// Function is the symbol being emitted.
	Function string
	// LabelName renders a label reference as an assembly-local name.
	LabelName func(insn.Label) string
	// TableName renders an embedded table index as a symbol name.
	TableName func(uint64) string
	// Pooled tracks literal-pool values already emitted.
	Pooled map[uint64]bool
}

// Hooks is the per-target instruction selection and emission surface.
// Selection hooks translate a generic intent into concrete records,
// preferring the shortest encoding the target allows; they return the
// records rather than appending them so the generator stays in charge
// of the buffer.
type Hooks interface {
	// Unary lowers dest = op(src).
	Unary(p *Platform, op insn.Op, dest, src regs.Sized) ([]insn.Insn, error)

	// Binary lowers dest = src1 op src2.
	Binary(p *Platform, op insn.Op, dest, src1, src2 regs.Sized, setc bool) ([]insn.Insn, error)

	// BinaryShifted lowers dest = src1 op (src2 shifted). A zero
	// shift count degrades to the plain binary form.
	BinaryShifted(p *Platform, op insn.Op, dest, src1, src2 regs.Sized,
		mod insn.Modifier, shift uint8, setc bool) ([]insn.Insn, error)

	// BinaryImm lowers dest = src1 op imm. The immediate must already
	// satisfy ValidImm for the opcode.
	BinaryImm(p *Platform, op insn.Op, dest, src1 regs.Sized,
		imm insn.ImmValue, setc bool) ([]insn.Insn, error)

	// MoveImm loads an arbitrary immediate into a register, choosing
	// among direct, complemented, half-word, or literal-pool forms.
	MoveImm(p *Platform, dest regs.Sized, value insn.ImmValue) ([]insn.Insn, error)

	// ValidImm reports whether an immediate fits the legal encoding
	// of the opcode at the given operand width.
	ValidImm(op insn.Op, value insn.ImmValue, size regs.Size) bool

	// WriteInsn renders one instruction as assembly text.
	WriteInsn(p *Platform, w io.Writer, st *WriteState, i insn.Insn) error
}

// Platform is the static description of one compilation target.
type Platform struct {
	name       string
	features   Feature
	nativeSize regs.Size
	addrSize   regs.Size
	registers  []*regs.Basic
	arguments  []*regs.Basic
	sp         *regs.Basic
	hooks      Hooks
	reserved   map[uint8]CodeFlag
	pointers   map[string]*regs.Basic
}

// New assembles a platform description. Register order is allocation
// order: callers list caller-save non-argument registers first,
// argument registers next in reverse caller order, callee-save last.
func New(name string, features Feature, native, addr regs.Size, hooks Hooks) *Platform {
	return &Platform{
		name:       name,
		features:   features,
		nativeSize: native,
		addrSize:   addr,
		hooks:      hooks,
		reserved:   make(map[uint8]CodeFlag),
		pointers:   make(map[string]*regs.Basic),
	}
}

// Reserve marks registers that only become allocatable once a function
// sets the given code flag.
func (p *Platform) Reserve(flag CodeFlag, numbers ...uint8) {
	for _, n := range numbers {
		p.reserved[n] = flag
	}
}

// ReservedBy returns the code flag guarding a register, or zero when
// the register is freely allocatable.
func (p *Platform) ReservedBy(number uint8) CodeFlag {
	return p.reserved[number]
}

// SetPointer names a pointer register. On targets whose pointers span
// several native words, low is the least significant half and the
// remaining halves follow at consecutive register numbers.
func (p *Platform) SetPointer(name string, low *regs.Basic) {
	p.pointers[name] = low
}

// Pointer assembles the named pointer as a Reg of address-word width.
// Returns a null Reg when the platform has no such pointer.
func (p *Platform) Pointer(name string) regs.Reg {
	low, ok := p.pointers[name]
	if !ok {
		return regs.NewReg()
	}
	r := regs.NewReg()
	limbs := int(p.addrSize / p.nativeSize)
	if limbs < 1 {
		limbs = 1
	}
	for i := 0; i < limbs; i++ {
		b := p.RegisterForNumber(low.Number() + uint8(i))
		if b == nil {
			return regs.NewReg()
		}
		if err := r.AddBasic(b, p.nativeSize); err != nil {
			return regs.NewReg()
		}
	}
	return r
}

// ZeroRegister returns the fixed-zero register, or nil when the
// platform has none.
func (p *Platform) ZeroRegister() *regs.Basic {
	for _, b := range p.registers {
		if b.HasFlag(regs.Zero) {
			return b
		}
	}
	return nil
}

// TempRegister returns the designated scratch register, or nil.
func (p *Platform) TempRegister() *regs.Basic {
	for _, b := range p.registers {
		if b.HasFlag(regs.Temporary) {
			return b
		}
	}
	return nil
}

// Name returns the platform tag used in qualified registration names.
func (p *Platform) Name() string { return p.name }

// HasFeature reports whether every feature in f is present.
func (p *Platform) HasFeature(f Feature) bool { return p.features&f == f }

// NativeWordSize returns the natural ALU operand width.
func (p *Platform) NativeWordSize() regs.Size { return p.nativeSize }

// AddressWordSize returns the pointer width, which may exceed the
// native word size on 32-on-64 hosting platforms and on 8-bit
// targets with 16-bit pointers.
func (p *Platform) AddressWordSize() regs.Size { return p.addrSize }

// Is8Bit reports an 8-bit native word.
func (p *Platform) Is8Bit() bool { return p.nativeSize == regs.Size8 }

// Is32Bit reports a 32-bit native word.
func (p *Platform) Is32Bit() bool { return p.nativeSize == regs.Size32 }

// Is64Bit reports a 64-bit native word.
func (p *Platform) Is64Bit() bool { return p.nativeSize == regs.Size64 }

// AddRegister appends a basic register to the allocation order.
func (p *Platform) AddRegister(b *regs.Basic) { p.registers = append(p.registers, b) }

// AddArgumentRegister appends the numbered register to the argument list.
func (p *Platform) AddArgumentRegister(number uint8) {
	if b := p.RegisterForNumber(number); b != nil {
		p.arguments = append(p.arguments, b)
	}
}

// SetStackPointer records the stack pointer register.
func (p *Platform) SetStackPointer(sp *regs.Basic) { p.sp = sp }

// StackPointer returns the stack pointer register.
func (p *Platform) StackPointer() *regs.Basic { return p.sp }

// NumRegisters returns the inventory size.
func (p *Platform) NumRegisters() int { return len(p.registers) }

// Register returns the basic register at the given allocation-order index.
func (p *Platform) Register(index int) *regs.Basic { return p.registers[index] }

// NumArguments returns the length of the argument register list.
func (p *Platform) NumArguments() int { return len(p.arguments) }

// Argument returns the index'th argument register.
func (p *Platform) Argument(index int) *regs.Basic { return p.arguments[index] }

// RegisterForNumber finds a register by its low-level number.
func (p *Platform) RegisterForNumber(number uint8) *regs.Basic {
	for _, b := range p.registers {
		if b.Number() == number {
			return b
		}
	}
	return nil
}

// RegisterForName finds a register by any of its size-specific names,
// widest first. Returns a null Sized when the name is unknown.
func (p *Platform) RegisterForName(name string) regs.Sized {
	if name == "" {
		return regs.Sized{}
	}
	for _, b := range p.registers {
		switch name {
		case b.NameForSize(regs.Size64):
			return regs.Sized{Basic: b, Size: regs.Size64}
		case b.NameForSize(regs.Size32):
			return regs.Sized{Basic: b, Size: regs.Size32}
		case b.NameForSize(regs.Size16):
			return regs.Sized{Basic: b, Size: regs.Size16}
		case b.NameForSize(regs.Size8):
			return regs.Sized{Basic: b, Size: regs.Size8}
		}
	}
	return regs.Sized{}
}

// MaxRegisterNumber returns the highest register number in the
// inventory, sizing the interpreter's register file.
func (p *Platform) MaxRegisterNumber() uint8 {
	var max uint8
	for _, b := range p.registers {
		if b.Number() > max {
			max = b.Number()
		}
	}
	return max
}

// ValidImm reports whether an immediate is directly encodable.
func (p *Platform) ValidImm(op insn.Op, value insn.ImmValue, size regs.Size) bool {
	return p.hooks.ValidImm(op, value, size)
}

// Unary lowers a unary operation through the selection hooks.
func (p *Platform) Unary(op insn.Op, dest, src regs.Sized) ([]insn.Insn, error) {
	return p.hooks.Unary(p, op, dest, src)
}

// Binary lowers a binary operation through the selection hooks.
func (p *Platform) Binary(op insn.Op, dest, src1, src2 regs.Sized, setc bool) ([]insn.Insn, error) {
	return p.hooks.Binary(p, op, dest, src1, src2, setc)
}

// BinaryShifted lowers a binary operation with an inline-shifted
// second source.
func (p *Platform) BinaryShifted(op insn.Op, dest, src1, src2 regs.Sized,
	mod insn.Modifier, shift uint8, setc bool) ([]insn.Insn, error) {
	return p.hooks.BinaryShifted(p, op, dest, src1, src2, mod, shift, setc)
}

// BinaryImm lowers a binary operation with an immediate second source.
func (p *Platform) BinaryImm(op insn.Op, dest, src1 regs.Sized,
	imm insn.ImmValue, setc bool) ([]insn.Insn, error) {
	return p.hooks.BinaryImm(p, op, dest, src1, imm, setc)
}

// MoveImm lowers an arbitrary immediate load.
func (p *Platform) MoveImm(dest regs.Sized, value insn.ImmValue) ([]insn.Insn, error) {
	return p.hooks.MoveImm(p, dest, value)
}

// BeginWrite starts emitting a function, resetting per-function
// emission state.
func (p *Platform) BeginWrite(function string, labelName func(insn.Label) string,
	tableName func(uint64) string) *WriteState {
	return &WriteState{
		Function:  function,
		LabelName: labelName,
		TableName: tableName,
		Pooled:    make(map[uint64]bool),
	}
}

// WriteInsn renders one instruction as assembly text.
func (p *Platform) WriteInsn(w io.Writer, st *WriteState, i insn.Insn) error {
	return p.hooks.WriteInsn(p, w, st, i)
}

// FrameHooks renders the prologue and epilogue text around a function
// body: saving the callee-owned registers the function touched and
// establishing its local frame. Targets whose hooks do not implement
// it get no frame text.
type FrameHooks interface {
	WriteFrameEnter(p *Platform, w io.Writer, saved []*regs.Basic, locals uint) error
	WriteFrameLeave(p *Platform, w io.Writer, saved []*regs.Basic, locals uint) error
}

// WriteFrameEnter renders the function prologue text.
func (p *Platform) WriteFrameEnter(w io.Writer, saved []*regs.Basic, locals uint) error {
	if fh, ok := p.hooks.(FrameHooks); ok {
		return fh.WriteFrameEnter(p, w, saved, locals)
	}
	return nil
}

// WriteFrameLeave renders the epilogue text, inverting WriteFrameEnter.
func (p *Platform) WriteFrameLeave(w io.Writer, saved []*regs.Basic, locals uint) error {
	if fh, ok := p.hooks.(FrameHooks); ok {
		return fh.WriteFrameLeave(p, w, saved, locals)
	}
	return nil
}
