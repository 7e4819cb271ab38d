// Package template expands generator templates: plain lines copy
// through to the output, %%if(...) guards lines on enabled options,
// %%copyright inserts the licence text, and %%function-body:<name>
// hands the named function to a caller-supplied expander. Unknown
// %% directives pass through unchanged so templates can carry
// target-side preprocessor lines.
package template

import (
	"bufio"
	"fmt"
	"io"
	"strings"
)

// Config drives one expansion pass.
type Config struct {
	// Options enables %%if conditions.
	Options []string

	// Copyright is the text inserted at %%copyright.
	Copyright string

	// Function expands a %%function-body directive for the given
	// qualified name, writing any output to w.
	Function func(name string, w io.Writer) error

	// Quiet suppresses plain lines and the copyright text, keeping
	// only the function-body expansions. Used by test runs.
	Quiet bool
}

// enabled reports whether every comma-separated option in the
// condition is switched on.
func (cfg *Config) enabled(condition string) bool {
	for _, option := range strings.Split(condition, ",") {
		found := false
		for _, o := range cfg.Options {
			if o == option {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

// Expand processes the template from r into w.
func Expand(w io.Writer, r io.Reader, cfg Config) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	linenum := 0
	for scanner.Scan() {
		linenum++
		line := strings.TrimRight(scanner.Text(), " \t\r\n")

		// Peel stacked %%if prefixes; all conditions must hold.
		skip := false
		for strings.HasPrefix(line, "%%if(") {
			end := strings.Index(line, "):")
			if end < 0 {
				return fmt.Errorf("line %d: invalid conditional %q", linenum, line)
			}
			condition := line[5:end]
			line = line[end+2:]
			if !cfg.enabled(condition) {
				skip = true
				break
			}
		}
		if skip {
			continue
		}

		switch {
		case strings.HasPrefix(line, "%%copyright"):
			if cfg.Quiet {
				continue
			}
			text := cfg.Copyright
			if text != "" && !strings.HasSuffix(text, "\n") {
				text += "\n"
			}
			if _, err := io.WriteString(w, text); err != nil {
				return err
			}
		case strings.HasPrefix(line, "%%function-body:"):
			name := line[len("%%function-body:"):]
			if cfg.Function == nil {
				return fmt.Errorf("line %d: no function expander for %q", linenum, name)
			}
			if err := cfg.Function(name, w); err != nil {
				return fmt.Errorf("line %d: %s: %w", linenum, name, err)
			}
		default:
			if cfg.Quiet {
				continue
			}
			if _, err := fmt.Fprintln(w, line); err != nil {
				return err
			}
		}
	}
	return scanner.Err()
}
