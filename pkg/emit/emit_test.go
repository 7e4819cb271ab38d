package emit

import (
	"strings"
	"testing"

	"github.com/gencrypto/gencrypto/pkg/codegen"
	"github.com/gencrypto/gencrypto/pkg/platform"
)

func build(t *testing.T, locals uint, body func(c *codegen.Code)) (*codegen.Code, *platform.Platform) {
	t.Helper()
	p, err := platform.ForName("avr5")
	if err != nil {
		t.Fatalf("ForName: %v", err)
	}
	c := codegen.New(p)
	c.ProloguePermutation("test_fn", locals)
	body(c)
	if err := c.Finalise(); err != nil {
		t.Fatalf("Finalise: %v", err)
	}
	return c, p
}

func emitted(t *testing.T, c *codegen.Code, p *platform.Platform) string {
	t.Helper()
	var out strings.Builder
	if err := NewPrinter(&out, p).Function(c); err != nil {
		t.Fatalf("Function: %v", err)
	}
	return out.String()
}

func TestFunctionScaffolding(t *testing.T) {
	c, p := build(t, 0, func(c *codegen.Code) {
		r := c.AllocateHigh(1)
		c.MoveImm(r, 0x21)
		c.StZ(r, 0)
	})
	text := emitted(t, c, p)
	for _, want := range []string{
		"\t.global\ttest_fn\n",
		"\t.type\ttest_fn, @function\n",
		"test_fn:\n",
		"\tldi\tr18, 33\n",
		"\tret\n",
		"\t.size\ttest_fn, .-test_fn\n",
	} {
		if !strings.Contains(text, want) {
			t.Errorf("missing %q in:\n%s", want, text)
		}
	}
}

func TestCalleeSavedFrame(t *testing.T) {
	c, p := build(t, 0, func(c *codegen.Code) {
		r := c.AllocateReg(10) // reaches into r2, r3
		c.LdZ(r, 0)
		c.StZ(r, 0)
	})
	text := emitted(t, c, p)
	pushAt := strings.Index(text, "\tpush\tr2\n")
	popAt := strings.Index(text, "\tpop\tr2\n")
	retAt := strings.LastIndex(text, "\tret\n")
	if pushAt < 0 || popAt < 0 {
		t.Fatalf("no save/restore of r2 in:\n%s", text)
	}
	if !(pushAt < popAt && popAt < retAt) {
		t.Error("save/restore not bracketing the body before the return")
	}
	// r3 restored before r2.
	if strings.Index(text, "\tpop\tr3\n") > popAt {
		t.Error("restores not in reverse order of saves")
	}
}

func TestLocalFrameText(t *testing.T) {
	c, p := build(t, 6, func(c *codegen.Code) {
		r := c.AllocateReg(1)
		c.LdLocal(r, 0)
		c.StLocal(r, 1)
	})
	text := emitted(t, c, p)
	for _, want := range []string{
		"\tsbiw\tr28, 6\n",
		"\tadiw\tr28, 6\n",
		"\tin\tr28, __SP_L__\n",
		// Zero displacement uses the plain load, the only form X
		// supports and the shortest for Y and Z.
		"\tld\tr18, Y\n",
		"\tstd\tY+1, r18\n",
	} {
		if !strings.Contains(text, want) {
			t.Errorf("missing %q in:\n%s", want, text)
		}
	}
}

func TestTableEmission(t *testing.T) {
	c, p := build(t, 0, func(c *codegen.Code) {
		index := c.SBoxAdd([]byte{9, 8, 7})
		r := c.AllocateReg(1)
		c.LdZ(r, 0)
		c.SBoxSetup(index)
		c.SBoxLookup(r, r)
		c.SBoxCleanup()
		c.StZ(r, 0)
	})
	text := emitted(t, c, p)
	tableAt := strings.Index(text, ".Ltest_fn_table_0:")
	sizeAt := strings.Index(text, "\t.size\t")
	if tableAt < 0 {
		t.Fatalf("table symbol missing in:\n%s", text)
	}
	if !strings.Contains(text, "\t.balign\t256\n") {
		t.Error("table not aligned")
	}
	if !strings.Contains(text, "\t.byte\t9, 8, 7\n") {
		t.Error("table bytes missing")
	}
	if !(tableAt < sizeAt) {
		t.Error("table emitted after the size directive")
	}
}

func TestRescheduleHint(t *testing.T) {
	c, p := build(t, 0, func(c *codegen.Code) {
		a := c.AllocateHigh(1)
		b := c.AllocateHigh(1)
		c.MoveImm(a, 1)
		c.MoveImm(b, 2)
		c.Reschedule(-3, 0) // hoist the second load above the first
		c.StZ(a, 0)
		c.StZ(b, 1)
	})
	text := emitted(t, c, p)
	first := strings.Index(text, "\tldi\tr19, 2\n")
	second := strings.Index(text, "\tldi\tr18, 1\n")
	if first < 0 || second < 0 {
		t.Fatalf("loads missing in:\n%s", text)
	}
	if first > second {
		t.Error("reschedule hint did not move the load")
	}
}

func TestLabelsAreFunctionLocal(t *testing.T) {
	c, p := build(t, 0, func(c *codegen.Code) {
		r := c.AllocateHigh(1)
		c.MoveImm(r, 3)
		var top codegen.Label
		c.Label(&top)
		c.Dec(r)
		c.Brne(&top)
	})
	text := emitted(t, c, p)
	if !strings.Contains(text, ".Ltest_fn_1:\n") {
		t.Errorf("label definition missing in:\n%s", text)
	}
	if !strings.Contains(text, "\tbrne\t.Ltest_fn_1\n") {
		t.Errorf("branch reference missing in:\n%s", text)
	}
}
