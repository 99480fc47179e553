package main

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/ligun0805/disperse/internal/disperse"
	"github.com/ligun0805/disperse/internal/units"
)

func printBatch(w io.Writer, b disperse.Batch, decimals int, symbol string) error {
	if b.Empty() {
		fmt.Fprintln(w, "No recipients yet.")
		if b.Dropped > 0 {
			fmt.Fprintf(w, "(%d line(s) skipped)\n", b.Dropped)
		}
		return nil
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "#\tRECIPIENT\tAMOUNT")
	for i, t := range b.Transfers {
		fmt.Fprintf(tw, "%d\t%s\t%s %s\n", i+1, t.Address.Hex(), units.FormatUnits(t.Amount, decimals), symbol)
	}
	if err := tw.Flush(); err != nil {
		return fmt.Errorf("print batch: %w", err)
	}
	fmt.Fprintf(w, "Recipients: %d", b.Summary.Count)
	if b.Dropped > 0 {
		fmt.Fprintf(w, " (%d line(s) skipped)", b.Dropped)
	}
	fmt.Fprintf(w, "\nTotal:      %s %s\n", b.Summary.DisplayTotal, symbol)
	return nil
}

func printSnapshot(w io.Writer, s disperse.Snapshot, a *app) {
	if !s.Connected {
		fmt.Fprintln(w, "Wallet:   not connected")
	} else {
		fmt.Fprintf(w, "Wallet:   %s (chain %s)\n", disperse.ShortAccount(s.Account), s.ChainID)
	}
	mode := string(s.Mode)
	if mode == "" {
		mode = "none"
	}
	fmt.Fprintf(w, "Mode:     %s\n", mode)
	if s.Mode != disperse.ModeNone {
		fmt.Fprintf(w, "Batch:    %d recipient(s), total %s %s\n", s.Batch.Summary.Count, s.Batch.Summary.DisplayTotal, a.symbol(s.Mode))
	}
	if s.Mode == disperse.ModeToken {
		line := s.Approval.String()
		if s.Allowance != nil {
			line += " (allowance " + units.FormatUnits(s.Allowance, a.st.TokenDecimals) + " " + a.st.TokenSymbol + ")"
		}
		if s.Approving {
			line += ", approval pending"
		}
		fmt.Fprintf(w, "Approval: %s\n", line)
	}
	if s.Tx != nil {
		printTx(w, *s.Tx)
	}
}

func printTx(w io.Writer, tx disperse.TxInfo) {
	fmt.Fprintf(w, "Tx:       %s %s %s\n", tx.Kind, tx.Status, tx.Hash.Hex())
	if tx.URL != "" {
		fmt.Fprintf(w, "          %s\n", tx.URL)
	}
	if tx.Err != nil {
		fmt.Fprintf(w, "          %v\n", tx.Err)
	}
}
