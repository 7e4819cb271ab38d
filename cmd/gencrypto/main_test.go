package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func resetFlags() {
	copyrightFile = ""
	defineFlags = nil
	listOnly = false
	outputFile = "-"
	testOnly = false
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	resetFlags()
	var out, errOut bytes.Buffer
	cmd := newRootCmd(&out, &errOut)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestList(t *testing.T) {
	out, err := execute(t, "--list")
	if err != nil {
		t.Fatal(err)
	}
	for _, want := range []string{
		"aes_ecb_encrypt:avr5",
		"ascon_x2_permute:2shares:avr5",
		"keccakp_1600_permute:avr5",
		"sha256_transform:small:avr5",
		"xoodoo_permute:avr5",
	} {
		if !strings.Contains(out, want+"\n") {
			t.Errorf("--list output missing %q", want)
		}
	}
	names := strings.Fields(out)
	if !sortedStrings(names) {
		t.Error("--list output not sorted")
	}
}

func sortedStrings(s []string) bool {
	for i := 1; i < len(s); i++ {
		if s[i] < s[i-1] {
			return false
		}
	}
	return true
}

func TestExpandTemplate(t *testing.T) {
	dir := t.TempDir()
	templatePath := filepath.Join(dir, "lib.S.in")
	templateText := strings.Join([]string{
		"#include \"config.h\"",
		"%%copyright",
		"%%if(default):#define HAVE_XOODOO 1",
		"%%if(other):#define HAVE_OTHER 1",
		"%%function-body:xoodoo_permute:avr5",
	}, "\n") + "\n"
	if err := os.WriteFile(templatePath, []byte(templateText), 0o644); err != nil {
		t.Fatal(err)
	}
	copyrightPath := filepath.Join(dir, "copyright.txt")
	if err := os.WriteFile(copyrightPath, []byte("; Public domain.\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	out, err := execute(t, "--copyright", copyrightPath, templatePath)
	if err != nil {
		t.Fatal(err)
	}
	for _, want := range []string{
		"#include \"config.h\"",
		"; Public domain.",
		"#define HAVE_XOODOO 1",
		".global\txoodoo_permute",
		".size\txoodoo_permute, .-xoodoo_permute",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("expansion missing %q", want)
		}
	}
	if strings.Contains(out, "HAVE_OTHER") {
		t.Error("disabled option leaked into output")
	}
}

func TestExpandToFile(t *testing.T) {
	dir := t.TempDir()
	templatePath := filepath.Join(dir, "lib.S.in")
	if err := os.WriteFile(templatePath,
		[]byte("%%function-body:tinyjambu_permutation_128:avr5\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	outPath := filepath.Join(dir, "lib.S")

	if _, err := execute(t, "--output", outPath, templatePath); err != nil {
		t.Fatal(err)
	}
	data, err := os.ReadFile(outPath)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), ".global\ttinyjambu_permutation_128") {
		t.Error("output file missing generated function")
	}
}

func TestExpandUnknownFunction(t *testing.T) {
	dir := t.TempDir()
	templatePath := filepath.Join(dir, "lib.S.in")
	if err := os.WriteFile(templatePath,
		[]byte("%%function-body:no_such_function:avr5\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := execute(t, templatePath); err == nil {
		t.Fatal("expected error for unknown function")
	}
}

func TestTestMode(t *testing.T) {
	vectors := filepath.Join("..", "..", "pkg", "gen", "xoodoo", "testdata", "xoodoo.txt")
	out, err := execute(t, "--test", vectors)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out, "xoodoo_permute:avr5: ok") {
		t.Errorf("unexpected test output:\n%s", out)
	}
	if strings.Contains(out, "FAILED") {
		t.Errorf("unexpected failure:\n%s", out)
	}
}

func TestTestModeFailure(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bad.txt")
	vectors := strings.Join([]string{
		"Function = xoodoo_permute",
		"",
		"Name = wrong answer",
		"Num_Rounds = 12",
		"Input = " + strings.Repeat("00", 48),
		"Output = " + strings.Repeat("00", 48),
		"",
	}, "\n")
	if err := os.WriteFile(path, []byte(vectors), 0o644); err != nil {
		t.Fatal(err)
	}
	out, err := execute(t, "--test", path)
	if err == nil {
		t.Fatal("expected failure exit")
	}
	if !strings.Contains(out, "xoodoo_permute:avr5: FAILED") {
		t.Errorf("unexpected test output:\n%s", out)
	}
}
