// Package emit renders finalised functions as assembly text. The
// printer owns the output writer and the symbol-naming scheme; the
// per-instruction rendering is the platform's.
package emit

import (
	"fmt"
	"io"
	"sort"

	"github.com/gencrypto/gencrypto/pkg/codegen"
	"github.com/gencrypto/gencrypto/pkg/insn"
	"github.com/gencrypto/gencrypto/pkg/platform"
)

// Printer writes assembly for one platform to a single output.
type Printer struct {
	w    io.Writer
	plat *platform.Platform
}

// NewPrinter returns a printer emitting for the given platform.
func NewPrinter(w io.Writer, p *platform.Platform) *Printer {
	return &Printer{w: w, plat: p}
}

// Comment writes a full-line comment in the platform's dialect.
func (pr *Printer) Comment(text string) error {
	marker := ";"
	if !pr.plat.Is8Bit() {
		marker = "@"
	}
	_, err := fmt.Fprintf(pr.w, "%s %s\n", marker, text)
	return err
}

// Raw copies a line of text through unchanged.
func (pr *Printer) Raw(line string) error {
	_, err := fmt.Fprintln(pr.w, line)
	return err
}

// Function writes a complete finalised function: directives, the
// frame-entry text, the rescheduled body, the frame-leave text ahead
// of the final return, any embedded tables, and the size directive.
func (pr *Printer) Function(c *codegen.Code) error {
	if err := c.Err(); err != nil {
		return err
	}
	name := c.Name()
	if name == "" {
		return fmt.Errorf("emit: function has no name")
	}
	st := pr.plat.BeginWrite(name,
		func(id insn.Label) string { return fmt.Sprintf(".L%s_%d", name, id) },
		func(index uint64) string { return fmt.Sprintf(".L%s_table_%d", name, index) },
	)

	typeMark := "@function"
	if !pr.plat.Is8Bit() {
		typeMark = "%function"
	}
	_, err := fmt.Fprintf(pr.w, "\n\t.text\n\t.global\t%s\n\t.type\t%s, %s\n%s:\n",
		name, name, typeMark, name)
	if err != nil {
		return err
	}

	saved := c.SavedRegisters()
	locals := c.LocalBytes()
	if err := pr.plat.WriteFrameEnter(pr.w, saved, locals); err != nil {
		return err
	}

	insns := c.Insns()
	body := insns
	var ret *insn.Insn
	if n := len(insns); n > 0 && insns[n-1].Op == insn.RET {
		body = insns[:n-1]
		ret = &insns[n-1]
	}
	for _, i := range reschedule(body) {
		if err := pr.plat.WriteInsn(pr.w, st, i); err != nil {
			return err
		}
	}
	if err := pr.plat.WriteFrameLeave(pr.w, saved, locals); err != nil {
		return err
	}
	if ret != nil {
		if err := pr.plat.WriteInsn(pr.w, st, *ret); err != nil {
			return err
		}
	}

	for t := 0; t < c.NumTables(); t++ {
		if err := pr.table(st, t, c.Table(t)); err != nil {
			return err
		}
	}
	_, err = fmt.Fprintf(pr.w, "\t.size\t%s, .-%s\n", name, name)
	return err
}

// reschedule applies the displacement hints: an instruction with a
// hint of d moves d slots through the stream, ties keeping program
// order.
func reschedule(body []insn.Insn) []insn.Insn {
	moved := false
	for _, i := range body {
		if i.Resched != 0 {
			moved = true
			break
		}
	}
	if !moved {
		return body
	}
	type slot struct {
		key int
		i   insn.Insn
	}
	slots := make([]slot, len(body))
	for index, i := range body {
		slots[index] = slot{key: index + int(i.Resched), i: i}
	}
	sort.SliceStable(slots, func(a, b int) bool { return slots[a].key < slots[b].key })
	out := make([]insn.Insn, len(slots))
	for index, s := range slots {
		out[index] = s.i
	}
	return out
}

// table writes one embedded table, aligned so a lookup only replaces
// the low pointer byte.
func (pr *Printer) table(st *platform.WriteState, index int, data []byte) error {
	if _, err := fmt.Fprintf(pr.w, "\t.balign\t256\n%s:\n", st.TableName(uint64(index))); err != nil {
		return err
	}
	for row := 0; row < len(data); row += 16 {
		end := row + 16
		if end > len(data) {
			end = len(data)
		}
		if _, err := fmt.Fprintf(pr.w, "\t.byte\t"); err != nil {
			return err
		}
		for k := row; k < end; k++ {
			sep := ", "
			if k == end-1 {
				sep = "\n"
			}
			if _, err := fmt.Fprintf(pr.w, "%d%s", data[k], sep); err != nil {
				return err
			}
		}
	}
	return nil
}
