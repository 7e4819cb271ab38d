package testvec

import (
	"bytes"
	"errors"
	"strings"
	"testing"
)

const sample = `
Function = alpha_permute
Function = alpha_permute_alt

Name = alpha 1
Input = 00 01 02 03
Output = AABBccdd
Rounds = 12

Name = alpha 2
Input = ff-ee-dd-cc
Output = 00112233

Function = beta_init

Name = beta 1
Key = 000102030405060708090a0b0c0d0e0f
`

func TestGroupAssignment(t *testing.T) {
	f, err := Load(strings.NewReader(sample))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	alpha := f.TestsFor("alpha_permute")
	if len(alpha) != 2 {
		t.Fatalf("alpha vectors: %d, want 2", len(alpha))
	}
	if alt := f.TestsFor("alpha_permute_alt"); len(alt) != 2 {
		t.Errorf("second function name in the group got %d vectors", len(alt))
	}
	beta := f.TestsFor("beta_init")
	if len(beta) != 1 || beta[0].Name() != "beta 1" {
		t.Fatalf("beta vectors wrong: %v", beta)
	}
	if got := f.TestsFor("gamma"); got != nil {
		t.Errorf("unknown function returned %d vectors", len(got))
	}
}

func TestHexDecoding(t *testing.T) {
	f, err := Load(strings.NewReader(sample))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	alpha := f.TestsFor("alpha_permute")
	in, err := alpha[0].Bytes("Input")
	if err != nil {
		t.Fatalf("Bytes: %v", err)
	}
	if !bytes.Equal(in, []byte{0, 1, 2, 3}) {
		t.Errorf("Input decoded as %x", in)
	}
	out, _ := alpha[0].Bytes("Output")
	if !bytes.Equal(out, []byte{0xAA, 0xBB, 0xCC, 0xDD}) {
		t.Errorf("mixed-case Output decoded as %x", out)
	}
	sep, _ := alpha[1].Bytes("Input")
	if !bytes.Equal(sep, []byte{0xFF, 0xEE, 0xDD, 0xCC}) {
		t.Errorf("separated Input decoded as %x", sep)
	}
}

func TestIntDefaults(t *testing.T) {
	f, _ := Load(strings.NewReader(sample))
	alpha := f.TestsFor("alpha_permute")
	if got := alpha[0].Int("Rounds", 18); got != 12 {
		t.Errorf("Rounds = %d, want 12", got)
	}
	if got := alpha[1].Int("Rounds", 18); got != 18 {
		t.Errorf("absent Rounds = %d, want the default 18", got)
	}
}

func TestMissingField(t *testing.T) {
	f, _ := Load(strings.NewReader(sample))
	v := f.TestsFor("beta_init")[0]
	if _, err := v.Bytes("Nonce"); !errors.Is(err, ErrMissingField) {
		t.Errorf("Bytes on absent key: %v, want ErrMissingField", err)
	}
	if err := v.Populate(make([]byte, 16), "Key"); err != nil {
		t.Errorf("Populate: %v", err)
	}
	if err := v.Populate(make([]byte, 8), "Key"); err == nil {
		t.Error("Populate accepted a length mismatch")
	}
}
