package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/urfave/cli/v2"

	"github.com/ligun0805/disperse/internal/config"
	"github.com/ligun0805/disperse/internal/disperse"
	"github.com/ligun0805/disperse/internal/units"
	"github.com/ligun0805/disperse/internal/wallet"
)

var errAborted = errors.New("aborted")

var (
	inputFlag = &cli.StringFlag{
		Name:    "input",
		Aliases: []string{"i"},
		Value:   "-",
		Usage:   "Recipient list file, - for stdin",
	}
	modeFlag = &cli.StringFlag{
		Name:    "mode",
		Aliases: []string{"m"},
		Value:   "native",
		Usage:   "native or token",
	}
	yesFlag = &cli.BoolFlag{
		Name:    "yes",
		Aliases: []string{"y"},
		Usage:   "Do not ask for confirmation",
	}
)

func modeFrom(c *cli.Context) (disperse.Mode, error) {
	m, ok := disperse.ParseMode(c.String("mode"))
	if !ok {
		return disperse.ModeNone, fmt.Errorf("unknown mode %q, want native or token", c.String("mode"))
	}
	return m, nil
}

func previewCommand() *cli.Command {
	return &cli.Command{
		Name:  "preview",
		Usage: "Parse a recipient list and show the batch without touching the wallet",
		Flags: []cli.Flag{inputFlag, modeFlag},
		Action: func(c *cli.Context) error {
			mode, err := modeFrom(c)
			if err != nil {
				return err
			}
			return run(c, func(ctx context.Context, a *app) error {
				raw, err := readInput(c.String("input"), a.in)
				if err != nil {
					return err
				}
				decimals := a.decimals(mode)
				b := disperse.NewBatch(raw, decimals)
				a.metrics.RecordParse(len(b.Transfers), b.Dropped)
				return printBatch(a.out, b, decimals, a.symbol(mode))
			})
		},
	}
}

func connect(ctx context.Context, a *app, o *disperse.Orchestrator) error {
	if err := o.Connect(ctx); err != nil {
		return err
	}
	s := o.Snapshot()
	fmt.Fprintf(a.out, "Connected %s on chain %s\n", s.Account.Hex(), s.ChainID)
	if !wallet.SameChain(s.ChainID, a.st.ChainID) {
		fmt.Fprintf(a.out, "Wallet is not on %s (%s); it will be asked to switch before any transaction.\n", a.st.ChainName, a.st.ChainID)
	}
	return nil
}

func waitTx(ctx context.Context, a *app, h *disperse.TxHandle) error {
	fmt.Fprintf(a.out, "Submitted %s transaction %s\n", h.Kind, h.Hash.Hex())
	if h.URL != "" {
		fmt.Fprintf(a.out, "  %s\n", h.URL)
	}
	fmt.Fprintln(a.out, "Waiting for confirmation...")
	status, err := h.Wait(ctx)
	if err != nil {
		return fmt.Errorf("stopped waiting, the transaction may still confirm: %w", err)
	}
	printTx(a.out, h.Info())
	if status == disperse.TxFailed {
		return h.Err()
	}
	return nil
}

func infoCommand() *cli.Command {
	return &cli.Command{
		Name:  "info",
		Usage: "Show account, network, token and allowance",
		Action: func(c *cli.Context) error {
			return run(c, func(ctx context.Context, a *app) error {
				o := a.orchestrator(nil)
				defer o.Close()
				if err := connect(ctx, a, o); err != nil {
					return err
				}
				fmt.Fprintf(a.out, "Network:  %s (%s)\n", a.st.ChainName, a.st.ChainID)
				fmt.Fprintf(a.out, "Disperse: %s\n", a.st.Disperse().Hex())
				fmt.Fprintf(a.out, "Token:    %s\n", a.st.Token().Hex())

				ti, err := o.TokenInfo(ctx)
				if err != nil {
					a.log.WithError(err).Warn("token read failed")
				} else {
					fmt.Fprintf(a.out, "          %s, %d decimals, balance %s\n",
						ti.Symbol, ti.Decimals, units.FormatUnits(ti.Balance, int(ti.Decimals)))
					if int(ti.Decimals) != a.st.TokenDecimals {
						fmt.Fprintf(a.out, "Warning: TOKEN_DECIMALS is %d but the token reports %d\n", a.st.TokenDecimals, ti.Decimals)
					}
					if ti.Symbol != a.st.TokenSymbol {
						fmt.Fprintf(a.out, "Warning: TOKEN_SYMBOL is %s but the token reports %s\n", a.st.TokenSymbol, ti.Symbol)
					}
				}

				if err := o.SelectMode(ctx, disperse.ModeToken); err != nil {
					return fmt.Errorf("allowance: %w", err)
				}
				printSnapshot(a.out, o.Snapshot(), a)
				return nil
			})
		},
	}
}

func approveCommand() *cli.Command {
	return &cli.Command{
		Name:  "approve",
		Usage: "Allow the disperse contract to spend the token",
		Description: `With APPROVAL_AMOUNT=exact the allowance equals the total of the given
recipient list; with APPROVAL_AMOUNT=unlimited it is 2^256-1.`,
		Flags: []cli.Flag{inputFlag, yesFlag},
		Action: func(c *cli.Context) error {
			return run(c, func(ctx context.Context, a *app) error {
				exact := a.st.ApprovalAmount != config.ApprovalUnlimited
				var raw string
				if exact {
					list, done, err := a.listReader(c.String("input"), c.Bool("yes"))
					if err != nil {
						return err
					}
					defer done()
					if raw, err = readInput(c.String("input"), list); err != nil {
						return err
					}
				}

				o := a.orchestrator(nil)
				defer o.Close()
				if err := connect(ctx, a, o); err != nil {
					return err
				}
				if err := o.SelectMode(ctx, disperse.ModeToken); err != nil {
					return err
				}
				amount := "unlimited"
				if exact {
					b, err := o.UpdateInput(ctx, raw)
					if err != nil {
						return err
					}
					amount = b.Summary.DisplayTotal
				}
				return approve(ctx, a, o, amount, c.Bool("yes"))
			})
		},
	}
}

func approve(ctx context.Context, a *app, o *disperse.Orchestrator, amount string, assumeYes bool) error {
	if !a.ask(assumeYes, fmt.Sprintf("Approve %s %s for %s?", amount, a.st.TokenSymbol, a.st.Disperse().Hex())) {
		return errAborted
	}
	h, err := o.Approve(ctx)
	if err != nil {
		return err
	}
	return waitTx(ctx, a, h)
}

func revokeCommand() *cli.Command {
	return &cli.Command{
		Name:  "revoke",
		Usage: "Set the disperse contract's token allowance back to zero",
		Flags: []cli.Flag{yesFlag},
		Action: func(c *cli.Context) error {
			return run(c, func(ctx context.Context, a *app) error {
				o := a.orchestrator(nil)
				defer o.Close()
				if err := connect(ctx, a, o); err != nil {
					return err
				}
				if err := o.SelectMode(ctx, disperse.ModeToken); err != nil {
					return err
				}
				if !a.ask(c.Bool("yes"), fmt.Sprintf("Revoke the %s allowance of %s?", a.st.TokenSymbol, a.st.Disperse().Hex())) {
					return errAborted
				}
				h, err := o.Revoke(ctx)
				if err != nil {
					return err
				}
				return waitTx(ctx, a, h)
			})
		},
	}
}

func sendCommand() *cli.Command {
	return &cli.Command{
		Name:  "send",
		Usage: "Distribute to every recipient in one transaction",
		Flags: []cli.Flag{
			inputFlag,
			modeFlag,
			yesFlag,
			&cli.BoolFlag{
				Name:  "approve",
				Usage: "In token mode, approve first when the allowance does not cover the total",
			},
		},
		Action: func(c *cli.Context) error {
			mode, err := modeFrom(c)
			if err != nil {
				return err
			}
			return run(c, func(ctx context.Context, a *app) error {
				list, done, err := a.listReader(c.String("input"), c.Bool("yes"))
				if err != nil {
					return err
				}
				defer done()
				raw, err := readInput(c.String("input"), list)
				if err != nil {
					return err
				}
				o := a.orchestrator(nil)
				defer o.Close()
				if err := connect(ctx, a, o); err != nil {
					return err
				}
				if err := o.SelectMode(ctx, mode); err != nil {
					return err
				}
				b, err := o.UpdateInput(ctx, raw)
				if err != nil {
					return err
				}
				decimals := a.decimals(mode)
				if err := printBatch(a.out, b, decimals, a.symbol(mode)); err != nil {
					return err
				}
				if b.Empty() {
					return disperse.ErrEmptyBatch
				}

				if mode == disperse.ModeToken {
					if err := prepareToken(ctx, a, o, b, c.Bool("approve"), c.Bool("yes")); err != nil {
						return err
					}
				}

				if !a.ask(c.Bool("yes"), fmt.Sprintf("Send %s %s to %d recipient(s)?", b.Summary.DisplayTotal, a.symbol(mode), b.Summary.Count)) {
					return errAborted
				}
				h, err := o.Send(ctx)
				if err != nil {
					return err
				}
				return waitTx(ctx, a, h)
			})
		},
	}
}

// prepareToken warns about a short balance and approves when asked to.
func prepareToken(ctx context.Context, a *app, o *disperse.Orchestrator, b disperse.Batch, autoApprove, assumeYes bool) error {
	if ti, err := o.TokenInfo(ctx); err != nil {
		a.log.WithError(err).Warn("token balance check skipped")
	} else if ti.Balance.Cmp(b.Total()) < 0 {
		fmt.Fprintf(a.out, "Warning: balance %s %s is below the total; the transfer will revert.\n",
			units.FormatUnits(ti.Balance, a.st.TokenDecimals), a.st.TokenSymbol)
	}

	if o.Snapshot().Approval == disperse.ApprovalSufficient {
		return nil
	}
	if !autoApprove {
		return fmt.Errorf("%w: run `disperse approve` first or pass --approve", disperse.ErrInsufficientApproval)
	}
	amount := b.Summary.DisplayTotal
	if a.st.ApprovalAmount == config.ApprovalUnlimited {
		amount = "unlimited"
	}
	return approve(ctx, a, o, amount, assumeYes)
}
