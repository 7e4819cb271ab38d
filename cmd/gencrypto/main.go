// Command gencrypto expands an assembly template, generating the
// cryptographic functions the template names, or runs the registered
// generators against known-answer test vectors.
package main

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/xyproto/env/v2"

	"github.com/gencrypto/gencrypto/pkg/emit"
	_ "github.com/gencrypto/gencrypto/pkg/gen/aes"
	_ "github.com/gencrypto/gencrypto/pkg/gen/ascon"
	_ "github.com/gencrypto/gencrypto/pkg/gen/keccak"
	_ "github.com/gencrypto/gencrypto/pkg/gen/sha256"
	_ "github.com/gencrypto/gencrypto/pkg/gen/tinyjambu"
	_ "github.com/gencrypto/gencrypto/pkg/gen/xoodoo"
	"github.com/gencrypto/gencrypto/pkg/registry"
	"github.com/gencrypto/gencrypto/pkg/template"
	"github.com/gencrypto/gencrypto/pkg/testvec"
)

var version = "0.1.0"

var (
	copyrightFile string
	defineFlags   []string
	listOnly      bool
	outputFile    string
	testOnly      bool
)

func main() {
	os.Exit(run())
}

func run() int {
	rootCmd := newRootCmd(os.Stdout, os.Stderr)
	rootCmd.SetArgs(os.Args[1:])
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "gencrypto: %v\n", err)
		return 1
	}
	return 0
}

func newRootCmd(out, errOut io.Writer) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "gencrypto [flags] TEMPLATE [TEST-VECTORS]",
		Short: "gencrypto generates cryptographic primitives as assembly",
		Long: `gencrypto expands an assembly template, running the registered
code generator for each %%function-body directive, or checks every
generated function against known-answer test vectors.`,
		Version:       version,
		Args:          cobra.MaximumNArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if listOnly {
				return doList(out)
			}
			if testOnly {
				if len(args) == 0 {
					return fmt.Errorf("--test needs a test-vector file")
				}
				return doTest(args[len(args)-1], out)
			}
			if len(args) == 0 {
				cmd.Help()
				return nil
			}
			return doExpand(args[0], out)
		},
	}
	rootCmd.SetOut(out)
	rootCmd.SetErr(errOut)

	rootCmd.Flags().StringVarP(&copyrightFile, "copyright", "c", "", "File with copyright text for %%copyright")
	rootCmd.Flags().StringArrayVarP(&defineFlags, "define", "D", nil, "Enable a template option (repeatable)")
	rootCmd.Flags().BoolVarP(&listOnly, "list", "l", false, "List registered function generators")
	rootCmd.Flags().StringVarP(&outputFile, "output", "o", env.Str("GENCRYPTO_OUTPUT", "-"), "Output file, - for stdout")
	rootCmd.Flags().BoolVarP(&testOnly, "test", "t", false, "Run test vectors instead of expanding")

	return rootCmd
}

// doList prints every registered qualified name, one per line.
func doList(out io.Writer) error {
	for _, name := range registry.Names() {
		if _, err := fmt.Fprintln(out, name); err != nil {
			return err
		}
	}
	return nil
}

// doTest runs each vector group against every registered generator
// sharing the group's function names, printing one line per generator.
func doTest(path string, out io.Writer) error {
	file, err := testvec.LoadFile(path)
	if err != nil {
		return err
	}
	failed := 0
	for _, group := range file.Groups() {
		for _, function := range group.Functions {
			for _, qualified := range registry.Names() {
				if baseName(qualified) != function {
					continue
				}
				entry, _ := registry.Find(qualified)
				if entry.Test == nil {
					continue
				}
				if err := runEntry(entry, group.Vectors); err != nil {
					fmt.Fprintf(out, "%s: FAILED\n%v\n", qualified, err)
					failed++
				} else {
					fmt.Fprintf(out, "%s: ok\n", qualified)
				}
			}
		}
	}
	if failed > 0 {
		return fmt.Errorf("%d function(s) failed", failed)
	}
	return nil
}

func baseName(qualified string) string {
	if colon := strings.IndexByte(qualified, ':'); colon >= 0 {
		return qualified[:colon]
	}
	return qualified
}

func runEntry(entry registry.Entry, vectors []*testvec.Vector) error {
	c, err := entry.Generate()
	if err != nil {
		return err
	}
	for _, vec := range vectors {
		if err := entry.Test(c, vec); err != nil {
			return fmt.Errorf("vector %q: %w", vec.Name(), err)
		}
	}
	return nil
}

// doExpand runs the template through the expander, generating and
// printing each named function in place.
func doExpand(templatePath string, stdout io.Writer) error {
	in, err := os.Open(templatePath)
	if err != nil {
		return err
	}
	defer in.Close()

	cfg := template.Config{Function: expandFunction}
	if len(defineFlags) > 0 {
		cfg.Options = defineFlags
	} else {
		cfg.Options = []string{"default"}
	}
	if copyrightFile != "" {
		text, err := os.ReadFile(copyrightFile)
		if err != nil {
			return err
		}
		cfg.Copyright = string(text)
	}

	out := stdout
	if outputFile != "" && outputFile != "-" {
		f, err := os.Create(outputFile)
		if err != nil {
			return err
		}
		defer f.Close()
		out = f
	}
	return template.Expand(out, in, cfg)
}

func expandFunction(name string, w io.Writer) error {
	entry, ok := registry.Find(name)
	if !ok {
		return fmt.Errorf("no generator registered for %q", name)
	}
	c, err := entry.Generate()
	if err != nil {
		return err
	}
	return emit.NewPrinter(w, c.Platform()).Function(c)
}
