// Package testvec loads test-vector files in the line dialect the
// generators are checked against: "Key = Value" pairs, where a
// Function key opens a group naming the functions the following
// vectors apply to, and a Name key starts a new vector inside the
// current group. Lines without an equals sign are ignored.
package testvec

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
)

// ErrMissingField reports a lookup of a key the vector does not carry.
var ErrMissingField = errors.New("missing field")

// Vector is one named test case: a bag of key/value fields.
type Vector struct {
	fields map[string]string
}

func newVector() *Vector {
	return &Vector{fields: make(map[string]string)}
}

// Name returns the vector's name, or the empty string.
func (v *Vector) Name() string { return v.fields["Name"] }

// Has reports whether the vector carries the key.
func (v *Vector) Has(key string) bool {
	_, ok := v.fields[key]
	return ok
}

// String returns the raw value for key.
func (v *Vector) String(key string) (string, error) {
	value, ok := v.fields[key]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrMissingField, key)
	}
	return value, nil
}

// Bytes decodes the value for key as hexadecimal, case-insensitively,
// ignoring any separator characters between digits.
func (v *Vector) Bytes(key string) ([]byte, error) {
	value, err := v.String(key)
	if err != nil {
		return nil, err
	}
	var out []byte
	val := 0
	nibble := false
	for _, ch := range value {
		var digit int
		switch {
		case ch >= '0' && ch <= '9':
			digit = int(ch - '0')
		case ch >= 'A' && ch <= 'F':
			digit = int(ch-'A') + 10
		case ch >= 'a' && ch <= 'f':
			digit = int(ch-'a') + 10
		default:
			continue
		}
		val = val*16 + digit
		nibble = !nibble
		if !nibble {
			out = append(out, byte(val))
			val = 0
		}
	}
	return out, nil
}

// Int returns the value for key as a decimal integer, or the default
// when the key is absent or unparseable.
func (v *Vector) Int(key string, def int) int {
	value, ok := v.fields[key]
	if !ok {
		return def
	}
	n, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return def
	}
	return n
}

// Populate fills buf from the hex value for key; the decoded length
// must match exactly.
func (v *Vector) Populate(buf []byte, key string) error {
	data, err := v.Bytes(key)
	if err != nil {
		return err
	}
	if len(data) != len(buf) {
		return fmt.Errorf("%s: have %d bytes, want %d", key, len(data), len(buf))
	}
	copy(buf, data)
	return nil
}

// Check compares buf against the hex value for key, reporting a
// mismatch with both sides in hex.
func (v *Vector) Check(buf []byte, key string) error {
	want, err := v.Bytes(key)
	if err != nil {
		return err
	}
	if !bytes.Equal(buf, want) {
		return fmt.Errorf("%s mismatch:\n  have %x\n  want %x", key, buf, want)
	}
	return nil
}

// Group is a run of vectors that apply to a set of function names.
type Group struct {
	Functions []string
	Vectors   []*Vector
}

// File is a parsed test-vector file.
type File struct {
	groups []*Group
}

// Load parses a test-vector stream.
func Load(r io.Reader) (*File, error) {
	f := &File{}
	cur := &Group{}
	f.groups = append(f.groups, cur)
	inVectors := false
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		eq := strings.IndexByte(line, '=')
		if eq < 0 {
			continue
		}
		key := strings.TrimSpace(line[:eq])
		value := strings.TrimSpace(line[eq+1:])
		switch {
		case strings.HasPrefix(key, "Function"):
			// A Function key after vectors starts a fresh group.
			if inVectors {
				cur = &Group{}
				f.groups = append(f.groups, cur)
				inVectors = false
			}
			cur.Functions = append(cur.Functions, value)
		case strings.HasPrefix(key, "Name"):
			v := newVector()
			v.fields[key] = value
			cur.Vectors = append(cur.Vectors, v)
			inVectors = true
		default:
			if len(cur.Vectors) == 0 {
				cur.Vectors = append(cur.Vectors, newVector())
			}
			cur.Vectors[len(cur.Vectors)-1].fields[key] = value
			inVectors = true
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return f, nil
}

// LoadFile parses the named test-vector file.
func LoadFile(path string) (*File, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()
	f, err := Load(file)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return f, nil
}

// Groups returns the parsed groups in file order.
func (f *File) Groups() []*Group { return f.groups }

// TestsFor returns the vectors of the first group naming the function.
func (f *File) TestsFor(name string) []*Vector {
	for _, g := range f.groups {
		for _, fn := range g.Functions {
			if fn == name {
				return g.Vectors
			}
		}
	}
	return nil
}
