package keccak

import (
	"fmt"

	"github.com/gencrypto/gencrypto/pkg/codegen"
	"github.com/gencrypto/gencrypto/pkg/interp"
	"github.com/gencrypto/gencrypto/pkg/platform"
	"github.com/gencrypto/gencrypto/pkg/registry"
	"github.com/gencrypto/gencrypto/pkg/regs"
	"github.com/gencrypto/gencrypto/pkg/testvec"
)

var rc400 = [20]uint16{
	0x0001, 0x8082, 0x808A, 0x8000, 0x808B, 0x0001, 0x8081, 0x8009,
	0x008A, 0x0088, 0x8009, 0x000A, 0x808B, 0x008B, 0x8089, 0x8003,
	0x8002, 0x0080, 0x800A, 0x000A,
}

func posn400(row, col int) uint64 { return uint64(row*10 + col*2) }

func generate400() (*codegen.Code, error) {
	c := codegen.New(platform.NewAVR())
	rounds := c.ProloguePermutationWithCount("keccakp_400_permute", 0)
	c.SetFlag(platform.NoLocals)

	// The 50-byte state does not fit in registers, so rows and columns
	// move through memory one at a time. The first row stays cached in
	// A[0..4] between rounds to cut the traffic.
	var C, A [5]regs.Reg
	for i := range C {
		C[i] = c.AllocateReg(2)
	}
	for i := range A {
		A[i] = c.AllocateReg(2)
	}
	D := c.AllocateReg(2)

	var sub, end codegen.Label
	for col := 0; col < 5; col++ {
		c.LdZ(A[col], posn400(0, col))
	}
	for round := 0; round < 20; round++ {
		// Skip rounds before the requested count: a 20-n start runs
		// the last n rounds.
		var next codegen.Label
		c.Compare(rounds, uint64(20-round))
		c.Brcs(&next)
		c.Call(&sub)
		c.LogXorImm(A[0], uint64(rc400[round]))
		c.Label(&next)
	}
	c.Jmp(&end)

	// Step mapping theta.
	c.Label(&sub)
	for col := 0; col < 5; col++ {
		c.Move(C[col], A[col])
		for row := 1; row < 5; row++ {
			c.LdZXor(C[col], posn400(row, col))
		}
	}
	for col := 0; col < 5; col++ {
		c.Move(D, C[(col+1)%5])
		c.Rol(D, 1)
		c.LogXor(D, C[(col+4)%5])
		c.LogXor(A[col], D)
		for row := 1; row < 5; row++ {
			c.LdZXorIn(D, posn400(row, col))
		}
	}

	// Step mappings rho and pi combined: lanes at row 0 stay in the
	// cached registers, everything else round-trips through C[0].
	rhoPi := func(out int, rotate uint, in int) {
		if out < 10 {
			if in < 10 {
				c.Move(A[out/2], A[in/2])
			} else {
				c.LdZ(A[out/2], uint64(in))
			}
			c.Rol(A[out/2], rotate)
			return
		}
		if in < 10 {
			c.Move(C[0], A[in/2])
		} else {
			c.LdZ(C[0], uint64(in))
		}
		c.Rol(C[0], rotate)
		c.StZ(C[0], uint64(out))
	}
	p := func(row, col int) int { return row*10 + col*2 }
	c.Move(D, A[1])
	rhoPi(p(0, 1), 12, p(1, 1))
	rhoPi(p(1, 1), 4, p(1, 4))
	rhoPi(p(1, 4), 13, p(4, 2))
	rhoPi(p(4, 2), 7, p(2, 4))
	rhoPi(p(2, 4), 2, p(4, 0))
	rhoPi(p(4, 0), 14, p(0, 2))
	rhoPi(p(0, 2), 11, p(2, 2))
	rhoPi(p(2, 2), 9, p(2, 3))
	rhoPi(p(2, 3), 8, p(3, 4))
	rhoPi(p(3, 4), 8, p(4, 3))
	rhoPi(p(4, 3), 9, p(3, 0))
	rhoPi(p(3, 0), 11, p(0, 4))
	rhoPi(p(0, 4), 14, p(4, 4))
	rhoPi(p(4, 4), 2, p(4, 1))
	rhoPi(p(4, 1), 7, p(1, 3))
	rhoPi(p(1, 3), 13, p(3, 1))
	rhoPi(p(3, 1), 4, p(1, 0))
	rhoPi(p(1, 0), 12, p(0, 3))
	rhoPi(p(0, 3), 5, p(3, 3))
	rhoPi(p(3, 3), 15, p(3, 2))
	rhoPi(p(3, 2), 10, p(2, 1))
	rhoPi(p(2, 1), 6, p(1, 2))
	rhoPi(p(1, 2), 3, p(2, 0))
	c.Rol(D, 1)
	c.StZ(D, posn400(2, 0))

	// Step mapping chi.
	for row := 0; row < 5; row++ {
		for col := 0; col < 5; col++ {
			if row == 0 {
				c.Move(C[col], A[col])
			} else {
				c.LdZ(C[col], posn400(row, col))
			}
		}
		for col := 0; col < 5; col++ {
			if row == 0 {
				c.Move(A[col], C[(col+2)%5])
				c.LogAndNot(A[col], C[(col+1)%5])
				c.LogXor(A[col], C[col])
			} else {
				c.Move(D, C[(col+2)%5])
				c.LogAndNot(D, C[(col+1)%5])
				c.LogXor(D, C[col])
				c.StZ(D, posn400(row, col))
			}
		}
	}
	c.Ret()

	// The first row is still cached, store it back.
	c.Label(&end)
	for col := 0; col < 5; col++ {
		c.StZ(A[col], posn400(0, col))
	}
	if err := c.Finalise(); err != nil {
		return nil, err
	}
	return c, nil
}

func test400(c *codegen.Code, vec *testvec.Vector) error {
	rounds := vec.Int("Num_Rounds", 12)
	if rounds < 0 || rounds > 20 {
		return fmt.Errorf("Num_Rounds out of range: %d", rounds)
	}
	state := make([]byte, 50)
	if err := vec.Populate(state, "Input"); err != nil {
		return err
	}
	if err := interp.ExecPermutationWithCount(c, state, uint8(rounds)); err != nil {
		return err
	}
	return vec.Check(state, "Output")
}

func init() {
	registry.Register(registry.Entry{
		Name:     "keccakp_400_permute",
		Platform: "avr5",
		Generate: generate400,
		Test:     test400,
	})
}
