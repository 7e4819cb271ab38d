package sha256

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/gencrypto/gencrypto/pkg/registry"
	"github.com/gencrypto/gencrypto/pkg/testvec"
)

func TestKnownAnswers(t *testing.T) {
	vectors, err := testvec.LoadFile("testdata/sha256.txt")
	require.NoError(t, err)

	vecs := vectors.TestsFor("sha256_transform")
	require.NotEmpty(t, vecs)

	for _, variant := range []string{"full", "partial", "small"} {
		t.Run(variant, func(t *testing.T) {
			entry, ok := registry.Find("sha256_transform:" + variant + ":avr5")
			require.True(t, ok, "variant %s not registered", variant)

			c, err := entry.Generate()
			require.NoError(t, err)

			for _, vec := range vecs {
				t.Run(vec.Name(), func(t *testing.T) {
					require.NoError(t, entry.Test(c, vec))
				})
			}
		})
	}
}
