package disperse

import (
	"math/big"
	"strings"
	"unicode"

	"github.com/ethereum/go-ethereum/common"

	"github.com/ligun0805/disperse/internal/contracts"
	"github.com/ligun0805/disperse/internal/units"
)

// Transfer is one accepted recipient line.
type Transfer struct {
	Address common.Address
	// Amount is in the smallest unit.
	Amount *big.Int
}

// Parse turns free-form "address, amount" lines into an ordered batch.
// Bad lines are dropped without error.
func Parse(raw string, decimals int) []Transfer {
	out, _ := ParseReport(raw, decimals)
	return out
}

// ParseReport is Parse that also counts the dropped non-empty lines.
func ParseReport(raw string, decimals int) (transfers []Transfer, dropped int) {
	for _, line := range strings.Split(raw, "\n") {
		line = strings.TrimRight(line, "\r")
		if strings.TrimSpace(line) == "" {
			continue
		}
		t, ok := parseLine(line, decimals)
		if !ok {
			dropped++
			continue
		}
		transfers = append(transfers, t)
	}
	return transfers, dropped
}

func parseLine(line string, decimals int) (Transfer, bool) {
	fields := strings.FieldsFunc(line, func(r rune) bool {
		return r == ',' || unicode.IsSpace(r)
	})
	if len(fields) != 2 {
		return Transfer{}, false
	}
	addr, ok := parseAddress(fields[0])
	if !ok {
		return Transfer{}, false
	}
	amount, err := units.ParseUnits(fields[1], decimals)
	if err != nil || !contracts.FitsUint256(amount) {
		return Transfer{}, false
	}
	return Transfer{Address: addr, Amount: amount}, true
}

// parseAddress accepts 40 hex digits with an optional 0x prefix. Mixed-case
// input must carry a valid EIP-55 checksum.
func parseAddress(s string) (common.Address, bool) {
	if !common.IsHexAddress(s) {
		return common.Address{}, false
	}
	body := strings.TrimPrefix(strings.TrimPrefix(s, "0x"), "0X")
	addr := common.HexToAddress(body)
	if strings.ToLower(body) != body && strings.ToUpper(body) != body {
		if addr.Hex()[2:] != body {
			return common.Address{}, false
		}
	}
	return addr, true
}
