package disperse

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/ligun0805/disperse/internal/units"
)

// Summary is the batch preview.
type Summary struct {
	Count        int
	Total        *big.Int
	DisplayTotal string
}

// Aggregate sums the batch exactly and renders the total at decimals.
func Aggregate(transfers []Transfer, decimals int) Summary {
	total := new(big.Int)
	for _, t := range transfers {
		total.Add(total, t.Amount)
	}
	return Summary{
		Count:        len(transfers),
		Total:        total,
		DisplayTotal: units.FormatUnits(total, decimals),
	}
}

// Batch is a parsed input with its preview. It is replaced on every edit.
type Batch struct {
	Transfers []Transfer
	Summary   Summary
	// Dropped counts input lines that were not accepted.
	Dropped int
}

// NewBatch parses raw and aggregates the result.
func NewBatch(raw string, decimals int) Batch {
	transfers, dropped := ParseReport(raw, decimals)
	return Batch{
		Transfers: transfers,
		Summary:   Aggregate(transfers, decimals),
		Dropped:   dropped,
	}
}

func (b Batch) Empty() bool { return len(b.Transfers) == 0 }

// Total returns a copy of the batch total, zero for an empty batch.
func (b Batch) Total() *big.Int {
	if b.Summary.Total == nil {
		return new(big.Int)
	}
	return new(big.Int).Set(b.Summary.Total)
}

// Arrays splits the batch into the positionally paired contract arguments.
func (b Batch) Arrays() ([]common.Address, []*big.Int) {
	recipients := make([]common.Address, len(b.Transfers))
	amounts := make([]*big.Int, len(b.Transfers))
	for i, t := range b.Transfers {
		recipients[i] = t.Address
		amounts[i] = new(big.Int).Set(t.Amount)
	}
	return recipients, amounts
}

// clone deep-copies the amounts so snapshots never alias session state.
func (b Batch) clone() Batch {
	out := Batch{Dropped: b.Dropped, Summary: b.Summary}
	if b.Transfers != nil {
		out.Transfers = make([]Transfer, len(b.Transfers))
		for i, t := range b.Transfers {
			out.Transfers[i] = Transfer{Address: t.Address, Amount: new(big.Int).Set(t.Amount)}
		}
	}
	if b.Summary.Total != nil {
		out.Summary.Total = new(big.Int).Set(b.Summary.Total)
	}
	return out
}
