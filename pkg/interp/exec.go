package interp

import (
	"fmt"

	"github.com/gencrypto/gencrypto/pkg/codegen"
	"github.com/gencrypto/gencrypto/pkg/platform"
)

// An argument to a generated function: either a buffer placed in data
// memory and passed by address, or a small scalar.
type argSpec struct {
	buf []byte
	val uint64
}

func byRef(buf []byte) argSpec { return argSpec{buf: buf} }
func byVal(v uint64) argSpec   { return argSpec{val: v} }

// run places the arguments the way the platform's calling convention
// does, executes the function, and copies every buffer argument back
// out so in-place updates are visible to the caller.
func run(c *codegen.Code, args ...argSpec) error {
	m, err := New(c)
	if err != nil {
		return err
	}
	native := m.native
	argNext := 0
	spillOff := 0
	addrs := make([]uint64, len(args))
	for k, a := range args {
		bits := native
		value := a.val
		if a.buf != nil {
			bits = m.addr
			addrs[k] = m.Place(a.buf)
			value = addrs[k]
		}
		count := int((bits + native - 1) / native)
		limbs := make([]uint64, count)
		for w := range limbs {
			limbs[w] = (value >> (uint(w) * native)) & maskBits(native)
		}
		if m.plat.HasFeature(platform.BigEndian) {
			for i, j := 0, len(limbs)-1; i < j; i, j = i+1, j-1 {
				limbs[i], limbs[j] = limbs[j], limbs[i]
			}
		}
		for _, lv := range limbs {
			if argNext < m.plat.NumArguments() {
				m.regs[m.plat.Argument(argNext).Number()] = lv
				argNext++
				continue
			}
			for b := uint(0); b < native/8; b++ {
				if spillOff >= maxSpill {
					return fmt.Errorf("%w: too many arguments", ErrBadProgram)
				}
				m.spill[spillOff] = byte(lv >> (8 * b))
				spillOff++
			}
		}
	}
	if err := m.Run(); err != nil {
		return fmt.Errorf("%s: %w", c.Name(), err)
	}
	for k, a := range args {
		if a.buf != nil {
			copy(a.buf, m.ram[addrs[k]:addrs[k]+uint64(len(a.buf))])
		}
	}
	return nil
}

// ExecPermutation runs a permutation function over the state buffer
// in place.
func ExecPermutation(c *codegen.Code, state []byte) error {
	return run(c, byRef(state))
}

// ExecPermutationWithCount runs a permutation that takes a round or
// iteration count.
func ExecPermutationWithCount(c *codegen.Code, state []byte, count uint8) error {
	return run(c, byRef(state), byVal(uint64(count)))
}

// ExecSetupKey runs a key-schedule function, expanding key into sched.
func ExecSetupKey(c *codegen.Code, sched, key []byte) error {
	return run(c, byRef(sched), byRef(key))
}

// ExecEncryptBlock runs a block-cipher function with the
// (schedule, output, input) argument order the prologue establishes.
func ExecEncryptBlock(c *codegen.Code, sched, out, in []byte) error {
	return run(c, byRef(sched), byRef(out), byRef(in))
}

// ExecDecryptBlock runs a decryption function; the argument order
// matches ExecEncryptBlock.
func ExecDecryptBlock(c *codegen.Code, sched, out, in []byte) error {
	return run(c, byRef(sched), byRef(out), byRef(in))
}

// ExecMaskedPermutation runs a masked permutation: the shared state,
// the first round number, and the preserved-randomness buffer.
func ExecMaskedPermutation(c *codegen.Code, state []byte, firstRound uint8, rand []byte) error {
	return run(c, byRef(state), byVal(uint64(firstRound)), byRef(rand))
}
