package xoodoo

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/gencrypto/gencrypto/pkg/registry"
	"github.com/gencrypto/gencrypto/pkg/testvec"
)

func TestKnownAnswers(t *testing.T) {
	vectors, err := testvec.LoadFile("testdata/xoodoo.txt")
	require.NoError(t, err)

	entry, ok := registry.Find("xoodoo_permute:avr5")
	require.True(t, ok)

	c, err := entry.Generate()
	require.NoError(t, err)

	vecs := vectors.TestsFor("xoodoo_permute")
	require.NotEmpty(t, vecs)
	for _, vec := range vecs {
		t.Run(vec.Name(), func(t *testing.T) {
			require.NoError(t, entry.Test(c, vec))
		})
	}
}
