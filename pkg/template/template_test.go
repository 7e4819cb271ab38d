package template

import (
	"fmt"
	"io"
	"strings"
	"testing"
)

func expand(t *testing.T, in string, cfg Config) string {
	t.Helper()
	var out strings.Builder
	if err := Expand(&out, strings.NewReader(in), cfg); err != nil {
		t.Fatalf("Expand: %v", err)
	}
	return out.String()
}

func TestPlainLinesCopyThrough(t *testing.T) {
	got := expand(t, "#include \"core.h\"\n\n\t.syntax unified\n", Config{})
	if got != "#include \"core.h\"\n\n\t.syntax unified\n" {
		t.Errorf("got %q", got)
	}
}

func TestConditionalLines(t *testing.T) {
	in := "%%if(small):size small\n%%if(fast):speed fast\nalways\n"
	got := expand(t, in, Config{Options: []string{"fast"}})
	if got != "speed fast\nalways\n" {
		t.Errorf("got %q", got)
	}
}

func TestStackedConditionals(t *testing.T) {
	in := "%%if(a):%%if(b):both\n"
	if got := expand(t, in, Config{Options: []string{"a", "b"}}); got != "both\n" {
		t.Errorf("both enabled: got %q", got)
	}
	if got := expand(t, in, Config{Options: []string{"a"}}); got != "" {
		t.Errorf("one enabled: got %q", got)
	}
}

func TestConditionalCommaList(t *testing.T) {
	in := "%%if(a,b):both\n"
	if got := expand(t, in, Config{Options: []string{"a", "b"}}); got != "both\n" {
		t.Errorf("both enabled: got %q", got)
	}
	if got := expand(t, in, Config{Options: []string{"a"}}); got != "" {
		t.Errorf("one enabled: got %q", got)
	}
}

func TestMalformedConditional(t *testing.T) {
	err := Expand(io.Discard, strings.NewReader("%%if(broken\n"), Config{})
	if err == nil {
		t.Fatal("malformed conditional accepted")
	}
	if !strings.Contains(err.Error(), "line 1") {
		t.Errorf("error lacks the line number: %v", err)
	}
}

func TestCopyright(t *testing.T) {
	got := expand(t, "%%copyright\nbody\n", Config{Copyright: "; notice"})
	if got != "; notice\nbody\n" {
		t.Errorf("got %q", got)
	}
	got = expand(t, "%%copyright\nbody\n", Config{Copyright: "; notice", Quiet: true})
	if got != "" {
		t.Errorf("quiet mode emitted %q", got)
	}
}

func TestFunctionBody(t *testing.T) {
	var calls []string
	cfg := Config{
		Function: func(name string, w io.Writer) error {
			calls = append(calls, name)
			fmt.Fprintf(w, "<%s>\n", name)
			return nil
		},
	}
	got := expand(t, "%%function-body:keccakp_200_permute\n", cfg)
	if got != "<keccakp_200_permute>\n" {
		t.Errorf("got %q", got)
	}
	if len(calls) != 1 || calls[0] != "keccakp_200_permute" {
		t.Errorf("expander called with %v", calls)
	}
}

func TestUnknownDirectivePassesThrough(t *testing.T) {
	got := expand(t, "%%define X\n", Config{})
	if got != "%%define X\n" {
		t.Errorf("got %q", got)
	}
}

func TestFunctionBodyErrorCarriesContext(t *testing.T) {
	cfg := Config{
		Function: func(name string, w io.Writer) error {
			return fmt.Errorf("boom")
		},
	}
	err := Expand(io.Discard, strings.NewReader("x\n%%function-body:f\n"), cfg)
	if err == nil || !strings.Contains(err.Error(), "line 2") {
		t.Errorf("error: %v", err)
	}
}
