package disperse

import (
	"context"
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/ligun0805/disperse/internal/metrics"
	"github.com/ligun0805/disperse/internal/wallet"
)

// ChainGuard keeps the wallet on the configured network. It runs before
// every write because the wallet may change network at any time.
type ChainGuard struct {
	provider wallet.Provider
	network  wallet.Network
	metrics  *metrics.Metrics
	log      logrus.FieldLogger
}

func NewChainGuard(p wallet.Provider, n wallet.Network, m *metrics.Metrics, log logrus.FieldLogger) *ChainGuard {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &ChainGuard{provider: p, network: n, metrics: m, log: log}
}

// Ensure asks for one switch and, if the wallet does not know the chain,
// one add. Refusals are not retried; the user has to switch manually.
func (g *ChainGuard) Ensure(ctx context.Context) error {
	current, err := g.provider.ChainID(ctx)
	if err != nil {
		return fmt.Errorf("read chain id: %w", err)
	}
	if wallet.SameChain(current, g.network.ChainID) {
		g.metrics.RecordChainGuard("ok")
		return nil
	}
	log := g.log.WithFields(logrus.Fields{"current": current, "expected": g.network.ChainID})
	log.Info("wallet on a different network, requesting switch")

	outcome := "switched"
	err = g.provider.SwitchChain(ctx, g.network.ChainID)
	if errors.Is(err, wallet.ErrUnrecognizedChain) {
		log.Info("network unknown to wallet, requesting add")
		outcome = "added"
		err = g.provider.AddChain(ctx, g.network)
	}
	if err != nil {
		g.metrics.RecordChainGuard("mismatch")
		return g.mismatch(err)
	}

	current, err = g.provider.ChainID(ctx)
	if err != nil {
		g.metrics.RecordChainGuard("mismatch")
		return g.mismatch(err)
	}
	if !wallet.SameChain(current, g.network.ChainID) {
		g.metrics.RecordChainGuard("mismatch")
		return g.mismatch(fmt.Errorf("wallet still on %s", current))
	}
	g.metrics.RecordChainGuard(outcome)
	return nil
}

func (g *ChainGuard) mismatch(cause error) error {
	return fmt.Errorf("%w: please switch your wallet to %s (%s) manually: %w",
		ErrChainMismatch, g.network.ChainName, g.network.ChainID, cause)
}
