package units

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseUnits(t *testing.T) {
	tests := []struct {
		in       string
		decimals int
		want     string
	}{
		{"1.5", 18, "1500000000000000000"},
		{"0", 18, "0"},
		{"0.0", 18, "0"},
		{".5", 6, "500000"},
		{"3.", 2, "300"},
		{"007.25", 2, "725"},
		{"1.123456789", 6, "1123456"}, // truncated, not rounded
		{"0.0000009", 6, "0"},         // below smallest unit
		{"42", 0, "42"},
		{"42.99", 0, "42"},
		{"123456789012345678901234567890", 18, "123456789012345678901234567890000000000000000000"},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseUnits(tt.in, tt.decimals)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got.String())
		})
	}
}

func TestParseUnits_Rejects(t *testing.T) {
	for _, in := range []string{"", " ", "-1", "+1", "1e18", "0x10", "1.2.3", "abc", "NaN", "1,5", "."} {
		t.Run(in, func(t *testing.T) {
			_, err := ParseUnits(in, 18)
			require.Error(t, err)
		})
	}
}

func TestFormatUnits(t *testing.T) {
	tests := []struct {
		v        *big.Int
		decimals int
		want     string
	}{
		{nil, 18, "0.0"},
		{big.NewInt(0), 18, "0.0"},
		{big.NewInt(1_500_000_000_000_000_000), 18, "1.5"},
		{big.NewInt(2_000_000), 6, "2.0"},
		{big.NewInt(1), 6, "0.000001"},
		{big.NewInt(5), 0, "5.0"},
		{big.NewInt(-250), 2, "-2.5"},
	}
	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			assert.Equal(t, tt.want, FormatUnits(tt.v, tt.decimals))
		})
	}
}

func TestRoundTrip(t *testing.T) {
	for _, in := range []string{"1.5", "0.000000000000000001", "10", "99999.123456789012345678"} {
		v, err := ParseUnits(in, 18)
		require.NoError(t, err)
		back, err := ParseUnits(FormatUnits(v, 18), 18)
		require.NoError(t, err)
		assert.Equal(t, 0, v.Cmp(back), in)
	}
}

func TestGweiToWei(t *testing.T) {
	assert.Equal(t, "3000000000", GweiToWei(3).String())
}
