package vdf

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestEvaluateVerifyRoundTrip(t *testing.T) {
	v := New()
	x := big.NewInt(7)

	proof := v.Evaluate(x, 64)
	require.True(t, v.Verify(x, proof.Y, 64, proof))
}

func TestVerifyRejectsTamperedResult(t *testing.T) {
	v := New()
	x := big.NewInt(7)

	proof := v.Evaluate(x, 64)
	bogus := new(big.Int).Add(proof.Y, big.NewInt(1))
	require.False(t, v.Verify(x, bogus, 64, proof))
}

func TestVerifyRejectsWrongIterationCount(t *testing.T) {
	v := New()
	x := big.NewInt(7)

	proof := v.Evaluate(x, 64)
	require.False(t, v.Verify(x, proof.Y, 65, proof))
}
