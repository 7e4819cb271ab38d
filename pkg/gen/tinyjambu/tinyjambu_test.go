package tinyjambu

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/gencrypto/gencrypto/pkg/registry"
	"github.com/gencrypto/gencrypto/pkg/testvec"
)

func TestKnownAnswers(t *testing.T) {
	vectors, err := testvec.LoadFile("testdata/tinyjambu.txt")
	require.NoError(t, err)

	for _, name := range []string{
		"tinyjambu_permutation_128",
		"tinyjambu_permutation_192",
		"tinyjambu_permutation_256",
	} {
		t.Run(name, func(t *testing.T) {
			entry, ok := registry.Find(name + ":avr5")
			require.True(t, ok, "%s not registered", name)

			c, err := entry.Generate()
			require.NoError(t, err)

			vecs := vectors.TestsFor(name)
			require.NotEmpty(t, vecs, "no vectors for %s", name)
			for _, vec := range vecs {
				t.Run(vec.Name(), func(t *testing.T) {
					require.NoError(t, entry.Test(c, vec))
				})
			}
		})
	}
}
