package ascon

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/gencrypto/gencrypto/pkg/registry"
	"github.com/gencrypto/gencrypto/pkg/testvec"
)

// The plain and masked permutations share one vector group: fresh
// masks cancel when the shares are recombined, so the same
// input/output pairs exercise every variant.
func TestKnownAnswers(t *testing.T) {
	vectors, err := testvec.LoadFile("testdata/ascon.txt")
	require.NoError(t, err)

	cases := []struct {
		qualified string
		function  string
	}{
		{"ascon_permute:avr5", "ascon_permute"},
		{"ascon_x2_permute:2shares:avr5", "ascon_x2_permute"},
		{"ascon_x2_permute:3shares:avr5", "ascon_x2_permute"},
	}
	for _, tc := range cases {
		t.Run(tc.qualified, func(t *testing.T) {
			entry, ok := registry.Find(tc.qualified)
			require.True(t, ok, "%s not registered", tc.qualified)

			c, err := entry.Generate()
			require.NoError(t, err)

			vecs := vectors.TestsFor(tc.function)
			require.NotEmpty(t, vecs, "no vectors for %s", tc.function)
			for _, vec := range vecs {
				t.Run(vec.Name(), func(t *testing.T) {
					require.NoError(t, entry.Test(c, vec))
				})
			}
		})
	}
}
