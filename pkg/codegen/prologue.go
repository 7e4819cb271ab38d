package codegen

import (
	"fmt"

	"github.com/gencrypto/gencrypto/pkg/insn"
	"github.com/gencrypto/gencrypto/pkg/platform"
	"github.com/gencrypto/gencrypto/pkg/regs"
)

// ArgKind is the declared type of one function argument.
type ArgKind uint8

const (
	ArgU8 ArgKind = iota
	ArgS8
	ArgU16
	ArgS16
	ArgU32
	ArgS32
	ArgU64
	ArgS64
	ArgPtr
)

func (k ArgKind) bits(native, addr uint) uint {
	var bits uint
	switch k {
	case ArgU8, ArgS8:
		bits = 8
	case ArgU16, ArgS16:
		bits = 16
	case ArgU32, ArgS32:
		bits = 32
	case ArgU64, ArgS64:
		bits = 64
	case ArgPtr:
		bits = addr
	}
	if bits < native {
		bits = native
	}
	return bits
}

func ldArgFor(size regs.Size) insn.Op {
	switch size {
	case regs.Size8:
		return insn.LDARG8
	case regs.Size16:
		return insn.LDARG16
	case regs.Size32:
		return insn.LDARG32
	}
	return insn.LDARG64
}

// beginFunction transitions open -> body, naming the symbol and
// establishing the frame.
func (c *Code) beginFunction(name string, locals uint) bool {
	if c.err != nil {
		return false
	}
	switch c.st {
	case stateFinalised:
		c.fail(ErrFinalised)
		return false
	case stateBody:
		c.fail(fmt.Errorf("%w: prologue already issued", ErrInvalidArgument))
		return false
	}
	if name == "" {
		c.fail(fmt.Errorf("%w: empty function name", ErrInvalidArgument))
		return false
	}
	c.name = name
	c.st = stateBody
	c.SetupLocals(locals)
	return c.err == nil
}

// addArgument binds the next declared argument: registers from the
// platform's argument list while they last, then freshly allocated
// registers filled from the caller's frame above the return address.
// On big-endian targets the assembled limb order is reversed so index
// zero is always least significant.
func (c *Code) addArgument(kind ArgKind) regs.Reg {
	native := uint(c.plat.NativeWordSize())
	bits := kind.bits(native, uint(c.plat.AddressWordSize()))
	count := int((bits + native - 1) / native)
	r := regs.NewReg()
	for i := 0; i < count; i++ {
		if c.argNext < c.plat.NumArguments() {
			b := c.plat.Argument(c.argNext)
			c.argNext++
			if c.allocated[b.Number()] {
				c.fail(fmt.Errorf("%w: argument register %s already in use",
					ErrInvalidArgument, b.NameForSize(regs.Size(native))))
				return regs.NewReg()
			}
			c.take(b.Number(), 1)
			if err := r.AddBasic(b, regs.Size(native)); err != nil {
				c.fail(err)
				return regs.NewReg()
			}
			continue
		}
		spill := c.Allocate(native)
		if spill.IsNull() {
			return regs.NewReg()
		}
		limb := spill.Limb(0)
		c.raw(insn.Insn{
			Op:     ldArgFor(limb.Size),
			Dest:   limb,
			Imm:    c.argSpill,
			Fields: insn.FieldDest | insn.FieldImm,
		})
		c.argSpill += uint64(native / 8)
		if err := r.Add(limb); err != nil {
			c.fail(err)
			return regs.NewReg()
		}
	}
	if c.plat.HasFeature(platform.BigEndian) {
		rev, err := r.Reversed()
		if err != nil {
			c.fail(err)
			return regs.NewReg()
		}
		return rev
	}
	return r
}

// bindPointer moves a pointer argument into the named pointer pair and
// releases the argument registers. Targets without the named pointer
// keep the argument register as the pointer itself.
func (c *Code) bindPointer(name string, arg regs.Reg) {
	ptr, ok := c.ptr[name]
	if !ok || ptr.IsNull() {
		c.ptr[name] = arg
		return
	}
	n := ptr.NumRegs()
	if arg.NumRegs() < n {
		n = arg.NumRegs()
	}
	for i := 0; i < n; i++ {
		c.movLimb(ptr.Limb(i), arg.Limb(i))
		c.everUsed[ptr.Limb(i).Number()] = true
	}
	c.Release(&arg)
}

// pushSaved parks a pointer argument on the stack for LoadOutputPtr
// and releases its registers.
func (c *Code) pushSaved(arg regs.Reg) {
	c.Push(arg)
	c.Release(&arg)
	c.pendingOutput = true
}

// ProloguePermutation begins a permutation function: one state
// pointer argument, bound to the table/state pointer, plus a local
// frame of the given byte size.
func (c *Code) ProloguePermutation(name string, locals uint) {
	if !c.beginFunction(name, locals) {
		return
	}
	c.bindPointer("Z", c.addArgument(ArgPtr))
}

// ProloguePermutationWithCount begins a permutation that also takes a
// round or iteration count, returned still bound to its argument
// register.
func (c *Code) ProloguePermutationWithCount(name string, locals uint) regs.Reg {
	if !c.beginFunction(name, locals) {
		return regs.NewReg()
	}
	c.bindPointer("Z", c.addArgument(ArgPtr))
	return c.addArgument(ArgU8)
}

// PrologueSetupKey begins a key-schedule function: the schedule
// pointer lands in Z and the key pointer in X.
func (c *Code) PrologueSetupKey(name string) {
	if !c.beginFunction(name, 0) {
		return
	}
	c.bindPointer("Z", c.addArgument(ArgPtr))
	c.bindPointer("X", c.addArgument(ArgPtr))
}

// PrologueEncryptBlock begins a block-cipher encryption function with
// (schedule, output, input) pointer arguments. The schedule lands in
// Z, the input in X, and the output pointer is parked on the stack
// until LoadOutputPtr.
func (c *Code) PrologueEncryptBlock(name string, locals uint) {
	if !c.beginFunction(name, locals) {
		return
	}
	c.bindPointer("Z", c.addArgument(ArgPtr))
	c.pushSaved(c.addArgument(ArgPtr))
	c.bindPointer("X", c.addArgument(ArgPtr))
}

// PrologueDecryptBlock begins a block-cipher decryption function; the
// argument discipline matches PrologueEncryptBlock.
func (c *Code) PrologueDecryptBlock(name string, locals uint) {
	c.PrologueEncryptBlock(name, locals)
}

// PrologueMaskedPermutation begins a masked permutation: the state
// pointer lands in Z, the first-round number is returned, and the
// preserved-randomness pointer lands in X with a stacked copy for
// LoadOutputPtr.
func (c *Code) PrologueMaskedPermutation(name string, locals uint) regs.Reg {
	if !c.beginFunction(name, locals) {
		return regs.NewReg()
	}
	c.bindPointer("Z", c.addArgument(ArgPtr))
	round := c.addArgument(ArgU8)
	rand := c.addArgument(ArgPtr)
	ptr := c.PointerReg("X")
	n := ptr.NumRegs()
	if rand.NumRegs() < n {
		n = rand.NumRegs()
	}
	for i := 0; i < n; i++ {
		c.movLimb(ptr.Limb(i), rand.Limb(i))
		c.everUsed[ptr.Limb(i).Number()] = true
	}
	c.pushSaved(rand)
	return round
}

// LoadOutputPtr pops the parked output pointer into X.
func (c *Code) LoadOutputPtr() {
	if !c.body() {
		return
	}
	if !c.pendingOutput {
		c.fail(fmt.Errorf("%w: no parked output pointer", ErrInvalidArgument))
		return
	}
	x := c.PointerReg("X")
	c.Pop(x)
	for i := 0; i < x.NumRegs(); i++ {
		c.everUsed[x.Limb(i).Number()] = true
	}
	c.pendingOutput = false
}

// MaskedAndNotXor computes x ^= (~y) & z over a two-share masked
// representation, expanding to the four cross terms so no intermediate
// ever combines both shares of a secret:
//
//	xa ^= (~ya) & za;  xa ^= (~ya) & zb
//	xb ^= yb & za;     xb ^= yb & zb
func (c *Code) MaskedAndNotXor(xa, xb, ya, yb, za, zb regs.Reg) {
	if !c.body() {
		return
	}
	bytes := xa.Size() / 8
	t1 := c.AllocateReg(bytes)
	t2 := c.AllocateReg(bytes)
	c.Move(t1, ya)
	c.LogNot(t1)
	c.Move(t2, t1)
	c.LogAnd(t1, za)
	c.LogAnd(t2, zb)
	c.LogXor(xa, t1)
	c.LogXor(xa, t2)
	c.Move(t1, yb)
	c.Move(t2, yb)
	c.LogAnd(t1, za)
	c.LogAnd(t2, zb)
	c.LogXor(xb, t1)
	c.LogXor(xb, t2)
	c.Release(&t1)
	c.Release(&t2)
}
