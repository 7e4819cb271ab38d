// Package codegen builds one function at a time. A Code owns the
// register allocation arena, the instruction buffer, the stack frame
// layout, and the verb layer that algorithm authors drive. Lowering
// decisions are delegated limb by limb to the platform's selection
// hooks; the generator's job is sequencing, carry chaining, and
// register bookkeeping.
//
// Errors are sticky: the first failure is recorded and every later
// verb becomes a no-op, so authors can write straight-line generator
// code and collect the verdict from Finalise.
package codegen

import (
	"errors"
	"fmt"

	"github.com/gencrypto/gencrypto/pkg/insn"
	"github.com/gencrypto/gencrypto/pkg/platform"
	"github.com/gencrypto/gencrypto/pkg/regs"
)

// ErrAllocationFailure reports that no flag-preference try could
// reserve enough physical registers.
var ErrAllocationFailure = errors.New("allocation failure")

// ErrUnresolvedLabel reports a branch to a label that was never
// defined by the time the function was finalised.
var ErrUnresolvedLabel = errors.New("unresolved label")

// ErrInvalidArgument reports a verb misuse: wrong state, mismatched
// register shapes, or conflicting frame flags.
var ErrInvalidArgument = errors.New("invalid argument")

// ErrFinalised reports reentrant use of a finalised generator.
var ErrFinalised = errors.New("code generator finalised")

// ErrStackOverflow reports a local frame larger than the platform can
// establish in a single prologue adjustment.
var ErrStackOverflow = errors.New("stack frame too large")

// Label identifies a branch target. The zero value is unassigned;
// passing the same pointer to a branch and to Label ties them together.
type Label = insn.Label

// PostInc and PreDec select the pointer-stepping memory forms.
const (
	PostInc = insn.PostInc
	PreDec  = insn.PreDec
)

// maxFrame bounds the local frame to what one prologue adjustment can
// establish on the smallest target.
const maxFrame = 255

type state uint8

const (
	stateOpen state = iota
	stateBody
	stateFinalised
)

// Code generates a single function for one platform.
type Code struct {
	plat *platform.Platform
	name string
	st   state
	err  error

	insns  []insn.Insn
	tables [][]byte

	allocated [64]bool
	everUsed  [64]bool
	flags     platform.CodeFlag

	nlabels  Label
	defined  map[Label]bool
	referred map[Label]bool
	labelAt  map[Label]int

	locals   uint
	argNext  int
	argSpill uint64

	ptr           map[string]regs.Reg
	pendingOutput bool
	sboxActive    bool
}

// New returns an open generator for the given platform.
func New(p *platform.Platform) *Code {
	c := &Code{
		plat:     p,
		defined:  make(map[Label]bool),
		referred: make(map[Label]bool),
		labelAt:  make(map[Label]int),
		ptr:      make(map[string]regs.Reg),
	}
	for _, name := range []string{"X", "Y", "Z"} {
		if r := p.Pointer(name); !r.IsNull() {
			c.ptr[name] = r
		}
	}
	return c
}

// Platform returns the target this generator lowers for.
func (c *Code) Platform() *platform.Platform { return c.plat }

// Name returns the function symbol set by the prologue verb.
func (c *Code) Name() string { return c.name }

// Err returns the first recorded failure, or nil.
func (c *Code) Err() error { return c.err }

// Len returns the instruction count.
func (c *Code) Len() int { return len(c.insns) }

// Insn returns the instruction at index.
func (c *Code) Insn(index int) insn.Insn { return c.insns[index] }

// Insns returns the instruction buffer. Callers must not modify it.
func (c *Code) Insns() []insn.Insn { return c.insns }

// NumTables returns the number of embedded tables.
func (c *Code) NumTables() int { return len(c.tables) }

// Table returns the bytes of the embedded table at index.
func (c *Code) Table(index int) []byte { return c.tables[index] }

// LocalBytes returns the rounded local frame size.
func (c *Code) LocalBytes() uint { return c.locals }

// HasFlag reports whether the given generator flags are all set.
func (c *Code) HasFlag(f platform.CodeFlag) bool { return c.flags&f == f }

// LabelTarget returns the buffer index of a label's definition point.
func (c *Code) LabelTarget(id Label) (int, bool) {
	index, ok := c.labelAt[id]
	return index, ok
}

// SavedRegisters lists the callee-saved registers the function
// touched, in number order, for the emitter's push/pop sequences.
func (c *Code) SavedRegisters() []*regs.Basic {
	var saved []*regs.Basic
	for n := 0; n < len(c.everUsed); n++ {
		if !c.everUsed[n] {
			continue
		}
		b := c.plat.RegisterForNumber(uint8(n))
		if b != nil && b.HasFlag(regs.CalleeSaved) && !b.HasFlag(regs.StackPointer) {
			saved = append(saved, b)
		}
	}
	return saved
}

func (c *Code) fail(err error) {
	if c.err == nil && err != nil {
		c.err = err
	}
}

// body reports whether the generator is accepting body instructions,
// recording the state violation otherwise.
func (c *Code) body() bool {
	if c.err != nil {
		return false
	}
	switch c.st {
	case stateBody:
		return true
	case stateFinalised:
		c.fail(ErrFinalised)
	default:
		c.fail(fmt.Errorf("%w: no prologue issued", ErrInvalidArgument))
	}
	return false
}

func (c *Code) raw(i insn.Insn) {
	if c.err != nil {
		return
	}
	c.insns = append(c.insns, i)
}

// append adds the records a selection hook produced, or records its error.
func (c *Code) append(list []insn.Insn, err error) {
	if err != nil {
		c.fail(err)
		return
	}
	for _, i := range list {
		c.raw(i)
	}
}

// SetFlag unlocks reserved registers or adjusts the frame discipline.
func (c *Code) SetFlag(f platform.CodeFlag) {
	if c.err != nil || c.st == stateFinalised {
		return
	}
	if f&platform.TempY != 0 && c.locals > 0 {
		c.fail(fmt.Errorf("%w: cannot release the frame pointer with %d local bytes",
			ErrInvalidArgument, c.locals))
		return
	}
	c.flags |= f
}

// ClearFlag re-reserves registers released by SetFlag. The registers
// must have been returned to the free pool first.
func (c *Code) ClearFlag(f platform.CodeFlag) {
	if c.err != nil || c.st == stateFinalised {
		return
	}
	for n := 0; n < len(c.allocated); n++ {
		if !c.allocated[n] {
			continue
		}
		if guard := c.plat.ReservedBy(uint8(n)); guard != 0 && f&guard != 0 {
			c.fail(fmt.Errorf("%w: r%d is still allocated", ErrInvalidArgument, n))
			return
		}
	}
	c.flags &^= f
}

// span is the number of physical register slots a limb of the given
// width occupies on this platform.
func (c *Code) span(size regs.Size) uint8 {
	native := uint8(c.plat.NativeWordSize())
	s := uint8(size) / native
	if s < 1 {
		s = 1
	}
	return s
}

func (c *Code) blocked(number, span uint8) bool {
	for s := uint8(0); s < span; s++ {
		n := number + s
		if int(n) >= len(c.allocated) || c.allocated[n] {
			return true
		}
		if guard := c.plat.ReservedBy(n); guard != 0 && c.flags&guard == 0 {
			return true
		}
	}
	return false
}

func (c *Code) take(number, span uint8) {
	for s := uint8(0); s < span; s++ {
		c.allocated[number+s] = true
		c.everUsed[number+s] = true
	}
}

func (c *Code) free(number, span uint8) {
	for s := uint8(0); s < span; s++ {
		c.allocated[number+s] = false
	}
}

func (c *Code) tryAllocate(bits uint, want regs.Flags) (regs.Reg, bool) {
	limb := uint(c.plat.NativeWordSize())
	if want&regs.Address != 0 {
		if a := uint(c.plat.AddressWordSize()); a > limb {
			limb = a
		}
	}
	span := c.span(regs.Size(limb))
	count := int((bits + limb - 1) / limb)
	var chosen []*regs.Basic
	for i := 0; i < c.plat.NumRegisters() && len(chosen) < count; i++ {
		b := c.plat.Register(i)
		if b.HasFlag(regs.NoAllocate) || !b.HasFlag(want) || !b.HasSize(regs.Size(limb)) {
			continue
		}
		if c.blocked(b.Number(), span) {
			continue
		}
		chosen = append(chosen, b)
	}
	if len(chosen) < count {
		return regs.NewReg(), false
	}
	r := regs.NewReg()
	for _, b := range chosen {
		if err := r.AddBasic(b, regs.Size(limb)); err != nil {
			c.fail(err)
			return regs.NewReg(), false
		}
		c.take(b.Number(), span)
	}
	if r.FullSize() != bits {
		if err := r.SetSize(bits); err != nil {
			c.fail(err)
			return regs.NewReg(), false
		}
		r.SetZeroFill(false)
	}
	return r, true
}

// Allocate reserves a register of the requested bit width, trying each
// flag preference in turn. With no preference it asks for data-class
// registers. Up to four preferences are honoured.
func (c *Code) Allocate(bits uint, prefs ...regs.Flags) regs.Reg {
	if !c.body() {
		return regs.NewReg()
	}
	if bits == 0 {
		c.fail(fmt.Errorf("%w: zero-width allocation", ErrInvalidArgument))
		return regs.NewReg()
	}
	if len(prefs) == 0 {
		prefs = []regs.Flags{regs.Data}
	}
	if len(prefs) > 4 {
		prefs = prefs[:4]
	}
	for _, want := range prefs {
		if r, ok := c.tryAllocate(bits, want); ok {
			return r
		}
		if c.err != nil {
			return regs.NewReg()
		}
	}
	c.fail(fmt.Errorf("%w: no free registers for %d bits", ErrAllocationFailure, bits))
	return regs.NewReg()
}

// AllocateReg reserves a plain data register of the given byte width.
func (c *Code) AllocateReg(bytes uint) regs.Reg {
	return c.Allocate(bytes*8, regs.Data)
}

// AllocateHigh reserves an immediate-capable register, needed on
// targets where only an upper register class accepts load-immediate.
func (c *Code) AllocateHigh(bytes uint) regs.Reg {
	return c.Allocate(bytes*8, regs.Data|regs.ImmCapable)
}

// AllocateTemp prefers the explicit temporary register, falling back
// to the data class.
func (c *Code) AllocateTemp(bytes uint) regs.Reg {
	return c.Allocate(bytes*8, regs.Temporary, regs.Data)
}

// AllocateStorage prefers storage-class registers that can hold data
// without feeding the ALU, falling back to the data class.
func (c *Code) AllocateStorage(bytes uint) regs.Reg {
	return c.Allocate(bytes*8, regs.Storage, regs.Data)
}

// Release returns the registers of r to the free pool and clears it.
// Releasing an empty register is a no-op.
func (c *Code) Release(r *regs.Reg) {
	for i := 0; i < r.NumRegs(); i++ {
		limb := r.Limb(i)
		c.free(limb.Number(), c.span(limb.Size))
	}
	r.Clear()
}

// SetupLocals establishes the local frame, rounded up to the address
// word size. Locals are addressed at positive offsets from the frame
// base within [0, bytes).
func (c *Code) SetupLocals(bytes uint) {
	if c.err != nil || c.st == stateFinalised {
		return
	}
	if bytes == 0 {
		return
	}
	if c.flags&(platform.TempY|platform.NoLocals) != 0 {
		c.fail(fmt.Errorf("%w: locals requested without a frame pointer", ErrInvalidArgument))
		return
	}
	addr := uint(c.plat.AddressWordSize()) / 8
	rounded := (bytes + addr - 1) / addr * addr
	if rounded > maxFrame {
		c.fail(fmt.Errorf("%w: %d bytes", ErrStackOverflow, rounded))
		return
	}
	c.locals = rounded
}

// Reschedule marks the fromTail'th instruction from the end of the
// buffer with a displacement hint for the emitter.
func (c *Code) Reschedule(offset int8, fromTail int) {
	if c.err != nil {
		return
	}
	index := len(c.insns) - 1 - fromTail
	if index < 0 {
		c.fail(fmt.Errorf("%w: reschedule beyond buffer start", ErrInvalidArgument))
		return
	}
	c.insns[index].Resched = offset
}

// Finalise closes the function: checks every referenced label was
// defined, appends the return when the body did not end with one, and
// locks the generator. It returns the first recorded failure.
func (c *Code) Finalise() error {
	if c.st == stateFinalised {
		if c.err == nil {
			c.err = ErrFinalised
		}
		return c.err
	}
	if c.st == stateBody && c.err == nil {
		for id := range c.referred {
			if !c.defined[id] {
				c.fail(fmt.Errorf("%w: label %d", ErrUnresolvedLabel, id))
				break
			}
		}
		if c.sboxActive {
			c.fail(fmt.Errorf("%w: table pointer never released", ErrInvalidArgument))
		}
		if c.pendingOutput {
			c.fail(fmt.Errorf("%w: output pointer never reloaded", ErrInvalidArgument))
		}
		if n := len(c.insns); n == 0 || c.insns[n-1].Op != insn.RET {
			c.raw(insn.Bare(insn.RET))
		}
	}
	c.st = stateFinalised
	return c.err
}

// zeroLimb returns the fixed-zero register at the native width.
func (c *Code) zeroLimb() regs.Sized {
	if b := c.plat.ZeroRegister(); b != nil {
		s, err := regs.NewSized(b, c.plat.NativeWordSize())
		if err == nil {
			return s
		}
	}
	c.fail(fmt.Errorf("%w: platform has no zero register", ErrInvalidArgument))
	return regs.Sized{}
}

// tempLimb returns the designated scratch register at the native width.
func (c *Code) tempLimb() regs.Sized {
	if b := c.plat.TempRegister(); b != nil {
		s, err := regs.NewSized(b, c.plat.NativeWordSize())
		if err == nil {
			return s
		}
	}
	c.fail(fmt.Errorf("%w: platform has no scratch register", ErrInvalidArgument))
	return regs.Sized{}
}

// TempByte exposes the scratch register for raw OneReg/TwoReg use.
func (c *Code) TempByte() regs.Sized { return c.tempLimb() }

// ZeroByte exposes the fixed-zero register for raw OneReg/TwoReg use.
func (c *Code) ZeroByte() regs.Sized { return c.zeroLimb() }

// PointerReg returns the named pointer as a register value, or the
// bound argument register on targets without a dedicated pointer.
func (c *Code) PointerReg(name string) regs.Reg {
	if r, ok := c.ptr[name]; ok {
		return r
	}
	c.fail(fmt.Errorf("%w: no %s pointer", ErrInvalidArgument, name))
	return regs.NewReg()
}

// UsePointer marks the named pointer's registers as touched, for
// generators that borrow a pointer pair through raw moves instead of
// the prologue binding. The epilogue saves it like any other use.
func (c *Code) UsePointer(name string) {
	r, ok := c.ptr[name]
	if !ok {
		c.fail(fmt.Errorf("%w: no %s pointer", ErrInvalidArgument, name))
		return
	}
	for i := 0; i < r.NumRegs(); i++ {
		c.everUsed[r.Limb(i).Number()] = true
	}
}

// Slice returns the limbs covering bytes [off, off+n) of r.
func (c *Code) Slice(r regs.Reg, off, n uint) regs.Reg {
	s, err := r.Subset(off*8, n*8)
	if err != nil {
		c.fail(err)
		return regs.NewReg()
	}
	return s
}

// Shuffle returns a view of r with limbs renumbered: limb i of the
// result is limb order[i] of r. No code is emitted.
func (c *Code) Shuffle(r regs.Reg, order ...int) regs.Reg {
	if len(order) != r.NumRegs() {
		c.fail(fmt.Errorf("%w: shuffle of %d limbs with %d indices",
			ErrInvalidArgument, r.NumRegs(), len(order)))
		return regs.NewReg()
	}
	out := regs.NewReg()
	for _, index := range order {
		if index < 0 || index >= r.NumRegs() {
			c.fail(fmt.Errorf("%w: shuffle index %d", ErrInvalidArgument, index))
			return regs.NewReg()
		}
		if err := out.Add(r.Limb(index)); err != nil {
			c.fail(err)
			return regs.NewReg()
		}
	}
	return out
}

// Reversed returns a view of r with the limb order flipped.
func (c *Code) Reversed(r regs.Reg) regs.Reg {
	out, err := r.Reversed()
	if err != nil {
		c.fail(err)
		return regs.NewReg()
	}
	return out
}
