package disperse

import (
	"fmt"
	"math/big"
	"math/rand"
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ligun0805/disperse/internal/units"
)

var (
	addrA = common.HexToAddress("0x000000000000000000000000000000000000abc1")
	addrB = common.HexToAddress("0x000000000000000000000000000000000000def4")
)

func TestParse_Example(t *testing.T) {
	raw := "0x000000000000000000000000000000000000abc1, 1.5\nnotanaddress, 2\n0x000000000000000000000000000000000000def4, 0"

	batch := NewBatch(raw, 18)
	require.Len(t, batch.Transfers, 2)
	assert.Equal(t, addrA, batch.Transfers[0].Address)
	assert.Equal(t, "1500000000000000000", batch.Transfers[0].Amount.String())
	assert.Equal(t, addrB, batch.Transfers[1].Address)
	assert.Equal(t, "0", batch.Transfers[1].Amount.String())

	assert.Equal(t, 2, batch.Summary.Count)
	assert.Equal(t, "1500000000000000000", batch.Summary.Total.String())
	assert.Equal(t, "1.5", batch.Summary.DisplayTotal)
	assert.Equal(t, 1, batch.Dropped)
}

func TestParse_Leniency(t *testing.T) {
	lines := []string{
		"0x5aAeb6053F3E94C9b9A09f33669435E7Ef1BeAed 2",     // valid checksum, space separated
		"0x5aaeb6053F3E94C9b9A09f33669435E7Ef1BeAed, 2",    // bad checksum
		"0x0000000000000000000000000000000000000001,,  3",  // separator run
		"0x0000000000000000000000000000000000000002, -1",   // negative
		"0x0000000000000000000000000000000000000003, 1e18", // exponent
		"0x0000000000000000000000000000000000000004 1 2",   // three tokens
		"0x0000000000000000000000000000000000000005",       // one token
		"",        // empty, not counted
		"0x12, 1", // short address
		"0000000000000000000000000000000000000006\t.5",      // no prefix, tab
		"0x0000000000000000000000000000000000000007, 1.5\r", // CRLF
		" , ", // separators only
		"0XABCDEFABCDEFABCDEFABCDEFABCDEFABCDEFABCD, 1", // all upper case
	}

	transfers, dropped := ParseReport(strings.Join(lines, "\n"), 18)
	require.Len(t, transfers, 5)
	assert.Equal(t, 7, dropped)

	assert.Equal(t, common.HexToAddress("0x5aAeb6053F3E94C9b9A09f33669435E7Ef1BeAed"), transfers[0].Address)
	assert.Equal(t, common.HexToAddress("0x01"), transfers[1].Address)
	assert.Equal(t, "3000000000000000000", transfers[1].Amount.String())
	assert.Equal(t, common.HexToAddress("0x06"), transfers[2].Address)
	assert.Equal(t, "500000000000000000", transfers[2].Amount.String())
	assert.Equal(t, common.HexToAddress("0x07"), transfers[3].Address)
	assert.Equal(t, common.HexToAddress("0xabcdefabcdefabcdefabcdefabcdefabcdefabcd"), transfers[4].Address)
}

func TestParse_TruncatesExtraDecimals(t *testing.T) {
	transfers := Parse("0x0000000000000000000000000000000000000001, 1.1234569", 6)
	require.Len(t, transfers, 1)
	assert.Equal(t, "1123456", transfers[0].Amount.String())
}

func TestParse_DropsUint256Overflow(t *testing.T) {
	huge := "1" + strings.Repeat("0", 78)
	transfers := Parse("0x0000000000000000000000000000000000000001, "+huge+"\n0x0000000000000000000000000000000000000002, 1", 0)
	require.Len(t, transfers, 1)
	assert.Equal(t, common.HexToAddress("0x02"), transfers[0].Address)
}

func TestParse_Empty(t *testing.T) {
	assert.Empty(t, Parse("", 18))
	assert.Empty(t, Parse("\n\n  \n", 18))
}

func TestAggregate_Empty(t *testing.T) {
	s := Aggregate(nil, 18)
	assert.Equal(t, 0, s.Count)
	assert.Equal(t, 0, s.Total.Sign())
	assert.Equal(t, "0.0", s.DisplayTotal)
}

func TestAggregate_DisplayKeepsOneDigit(t *testing.T) {
	s := Aggregate([]Transfer{
		{Address: addrA, Amount: big.NewInt(1_500_000)},
		{Address: addrB, Amount: big.NewInt(500_000)},
	}, 6)
	assert.Equal(t, 2, s.Count)
	assert.Equal(t, "2.0", s.DisplayTotal)
}

// truncate cuts a decimal string to at most decimals fractional digits.
func truncate(s string, decimals int) string {
	i, f, _ := strings.Cut(s, ".")
	if len(f) > decimals {
		f = f[:decimals]
	}
	if f == "" {
		return i
	}
	return i + "." + f
}

func TestAggregate_RoundTrip(t *testing.T) {
	rnd := rand.New(rand.NewSource(7))
	for _, decimals := range []int{0, 6, 8, 18} {
		for round := 0; round < 50; round++ {
			var (
				lines    []string
				expected = new(big.Rat)
			)
			n := 1 + rnd.Intn(20)
			for i := 0; i < n; i++ {
				amount := fmt.Sprintf("%d", rnd.Int63n(1_000_000))
				if frac := rnd.Intn(decimals + 4); frac > 0 {
					digits := make([]byte, frac)
					for j := range digits {
						digits[j] = byte('0' + rnd.Intn(10))
					}
					amount += "." + string(digits)
				}
				lines = append(lines, fmt.Sprintf("%s, %s", common.BigToAddress(big.NewInt(int64(i+1))).Hex(), amount))
				r, ok := new(big.Rat).SetString(truncate(amount, decimals))
				require.True(t, ok)
				expected.Add(expected, r)
			}

			batch := NewBatch(strings.Join(lines, "\n"), decimals)
			require.Len(t, batch.Transfers, n)

			want, err := units.ParseUnits(expected.FloatString(decimals), decimals)
			require.NoError(t, err)
			assert.Equal(t, want.String(), batch.Summary.Total.String())

			back, err := units.ParseUnits(batch.Summary.DisplayTotal, decimals)
			require.NoError(t, err)
			assert.Equal(t, batch.Summary.Total.String(), back.String(), "display total must round-trip")
		}
	}
}

func TestBatch_ArraysAreCopies(t *testing.T) {
	batch := NewBatch("0x000000000000000000000000000000000000abc1, 1", 0)
	recipients, amounts := batch.Arrays()
	require.Len(t, recipients, 1)
	amounts[0].SetInt64(99)
	assert.Equal(t, "1", batch.Transfers[0].Amount.String())
}

func TestShortAccount(t *testing.T) {
	assert.Equal(t, "0x5aAe...eAed", ShortAccount(common.HexToAddress("0x5aAeb6053F3E94C9b9A09f33669435E7Ef1BeAed")))
}
