package registry

import (
	"sort"
	"testing"

	"github.com/gencrypto/gencrypto/pkg/codegen"
)

func stub() (*codegen.Code, error) { return nil, nil }

func init() {
	Register(Entry{Name: "beta_permute", Platform: "avr5", Generate: stub})
	Register(Entry{Name: "alpha_permute", Variant: "2shares", Platform: "avr5", Generate: stub})
	Register(Entry{Name: "alpha_permute", Generate: stub})
}

func TestQualifiedNameForms(t *testing.T) {
	cases := []struct {
		e    Entry
		want string
	}{
		{Entry{Name: "f"}, "f"},
		{Entry{Name: "f", Platform: "avr5"}, "f:avr5"},
		{Entry{Name: "f", Variant: "2shares"}, "f:2shares"},
		{Entry{Name: "f", Variant: "2shares", Platform: "avr5"}, "f:2shares:avr5"},
	}
	for _, tc := range cases {
		if got := tc.e.QualifiedName(); got != tc.want {
			t.Errorf("QualifiedName = %q, want %q", got, tc.want)
		}
	}
}

func TestFindAndNames(t *testing.T) {
	e, ok := Find("alpha_permute:2shares:avr5")
	if !ok || e.Variant != "2shares" {
		t.Fatalf("Find returned %+v, %v", e, ok)
	}
	if _, ok := Find("alpha_permute:avr5"); ok {
		t.Error("Find matched a name with the variant omitted")
	}
	names := Names()
	if !sort.StringsAreSorted(names) {
		t.Errorf("Names not sorted: %v", names)
	}
	want := map[string]bool{
		"alpha_permute": true, "alpha_permute:2shares:avr5": true, "beta_permute:avr5": true,
	}
	if len(names) != len(want) {
		t.Fatalf("Names = %v", names)
	}
	for _, n := range names {
		if !want[n] {
			t.Errorf("unexpected name %q", n)
		}
	}
}

func TestLateRegistrationPanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Error("registration after the first lookup did not panic")
		}
	}()
	Register(Entry{Name: "late", Generate: stub})
}
