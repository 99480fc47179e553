package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"math/big"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"
	"golang.org/x/sync/errgroup"

	"github.com/ligun0805/disperse/internal/config"
	"github.com/ligun0805/disperse/internal/disperse"
	"github.com/ligun0805/disperse/internal/metrics"
	"github.com/ligun0805/disperse/internal/units"
	"github.com/ligun0805/disperse/internal/wallet"
)

// app carries what every command needs.
type app struct {
	st      config.Settings
	log     *logrus.Logger
	reg     *prometheus.Registry
	metrics *metrics.Metrics
	out     io.Writer
	errOut  io.Writer
	in      *bufio.Reader

	// confirmEach makes the keyed wallet ask before every signature.
	confirmEach bool
}

func newApp(c *cli.Context) (*app, error) {
	st, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	log := logrus.New()
	log.SetOutput(c.App.ErrWriter)
	lvl, err := logrus.ParseLevel(st.LogLevel)
	if err != nil {
		return nil, fmt.Errorf("LOG_LEVEL: %w", err)
	}
	log.SetLevel(lvl)

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector())

	in := c.App.Reader
	if in == nil {
		in = os.Stdin
	}
	return &app{
		st:      st,
		log:     log,
		reg:     reg,
		metrics: metrics.NewMetrics(reg),
		out:     c.App.Writer,
		errOut:  c.App.ErrWriter,
		in:      bufio.NewReader(in),
	}, nil
}

// run executes fn and, when METRICS_ADDR is set, serves /metrics next to it
// until fn returns.
func run(c *cli.Context, fn func(ctx context.Context, a *app) error) error {
	a, err := newApp(c)
	if err != nil {
		return err
	}
	ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()

	if a.st.MetricsAddr == "" {
		return fn(ctx, a)
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(a.reg, promhttp.HandlerOpts{}))
	srv := &http.Server{Addr: a.st.MetricsAddr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		a.log.WithField("addr", a.st.MetricsAddr).Info("serving metrics")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("metrics server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				a.log.WithError(err).Warn("metrics server shutdown")
			}
		}()
		return fn(gctx, a)
	})
	return g.Wait()
}

func (a *app) orchestrator(onUpdate func(disperse.Snapshot)) *disperse.Orchestrator {
	st := a.st
	return disperse.New(disperse.Options{
		Config: disperse.Config{
			Network:           st.Network(),
			Disperse:          st.Disperse(),
			Token:             st.Token(),
			TokenDecimals:     st.TokenDecimals,
			NativeDecimals:    st.NativeDecimals,
			NativeMethod:      st.NativeMethod,
			UnlimitedApproval: st.ApprovalAmount == config.ApprovalUnlimited,
			ConfirmPoll:       st.ConfirmPoll,
			ConfirmTimeout:    st.ConfirmTimeout,
		},
		Dial:     a.dialWallet,
		Metrics:  a.metrics,
		Logger:   a.log,
		OnUpdate: onUpdate,
	})
}

func (a *app) dialWallet(ctx context.Context) (wallet.Provider, error) {
	if a.st.Wallet == config.WalletEIP1193 {
		a.log.WithField("url", a.st.WalletURL).Debug("connecting to external wallet")
		return wallet.DialEIP1193(ctx, a.st.WalletURL)
	}

	pk := a.st.SenderPrivateKey
	if strings.TrimSpace(pk) == "" {
		if !stdinIsTerminal() {
			return nil, fmt.Errorf("%w: SENDER_PRIVATE_KEY is empty", wallet.ErrNoProvider)
		}
		var err error
		if pk, err = readPassword(a.errOut, "Sender private key: "); err != nil {
			return nil, fmt.Errorf("%w: %w", wallet.ErrNoProvider, err)
		}
	}
	a.log.WithFields(logrus.Fields{"key": config.MaskHex(pk), "rpc": a.st.WalletRPCURL}).Debug("opening keyed wallet")

	var tip *big.Int
	if a.st.TipGwei > 0 {
		tip = units.GweiToWei(a.st.TipGwei)
	}
	opts := wallet.KeyedOptions{GasBufferPct: a.st.GasBufferPct, Tip: tip, Logger: a.log}
	if a.confirmEach {
		opts.Confirm = a.confirmTx
	}
	return wallet.OpenKeyed(ctx, pk, a.st.WalletRPCURL, opts)
}

// confirmTx is the keyed wallet's signature prompt.
func (a *app) confirmTx(ctx context.Context, tx wallet.TxRequest) bool {
	value := "0"
	if tx.Value != nil {
		value = units.FormatUnits(tx.Value, a.st.NativeDecimals)
	}
	fmt.Fprintf(a.out, "Sign transaction to %s, value %s %s, %d bytes of call data? [y/N] ",
		tx.To.Hex(), value, a.st.NativeSymbol, len(tx.Data))
	ans, err := readLine(a.in, io.Discard, "")
	return err == nil && yes(ans)
}

// listReader returns the reader the recipient list comes from. When that is
// stdin and prompts are still due, prompts move to the terminal; without one
// the command is refused before anything is read or signed. done releases
// the terminal.
func (a *app) listReader(path string, assumeYes bool) (list io.Reader, done func(), err error) {
	list, done = a.in, func() {}
	if assumeYes || !readsStdin(path) {
		return list, done, nil
	}
	tty, err := openTTY()
	if err != nil {
		a.log.WithError(err).Debug("no terminal for prompts")
		return nil, nil, fmt.Errorf("%w: the recipient list comes from stdin, pass --yes or --input <file>", errNoPrompt)
	}
	a.in = bufio.NewReader(tty)
	return list, func() { _ = tty.Close() }, nil
}

// ask prompts unless assumeYes is set.
func (a *app) ask(assumeYes bool, prompt string) bool {
	if assumeYes {
		return true
	}
	ans, err := readLine(a.in, a.out, prompt+" [y/N] ")
	return err == nil && yes(ans)
}

func (a *app) decimals(m disperse.Mode) int {
	if m == disperse.ModeToken {
		return a.st.TokenDecimals
	}
	return a.st.NativeDecimals
}

func (a *app) symbol(m disperse.Mode) string {
	if m == disperse.ModeToken {
		return a.st.TokenSymbol
	}
	return a.st.NativeSymbol
}
