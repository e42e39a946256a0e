package shared

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRound2(t *testing.T) {
	require.Equal(t, 33.33, Round2(33.333))
	require.Equal(t, 33.34, Round2(33.335))
	require.Equal(t, -33.33, Round2(-33.333))
	require.Equal(t, 0.0, Round2(0))
	require.Equal(t, 415.50, Round2(120.00+95.50+200.00))
}

func TestRound2IsIdempotent(t *testing.T) {
	for _, v := range []float64{0, 0.005, 7750.004, 966.666, 1234.56} {
		once := Round2(v)
		require.Equal(t, once, Round2(once))
	}
}

func TestFormatBRLUsesDecimalComma(t *testing.T) {
	require.Equal(t, "R$ 415,50", FormatBRL(415.50))
	require.Contains(t, FormatBRL(0.99), "0,99")
}
