package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/urfave/cli/v2"

	"github.com/ligun0805/disperse/internal/disperse"
)

const shellHelp = `Commands:
  connect             connect the wallet
  disconnect          forget the account and start over
  mode native|token   choose what to send (clears the recipient list)
  input [file]        load recipients from file, or type them and end with "."
  check               re-read the token allowance
  approve             approve the disperse contract for the batch total
  revoke              set the allowance back to zero
  send                submit the batch
  status              show the current state
  help                this text
  quit                leave`

// syncWriter serializes prompt output with notifications from trackers.
type syncWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func (s *syncWriter) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.w.Write(p)
}

func shellCommand() *cli.Command {
	return &cli.Command{
		Name:  "shell",
		Usage: "Interactive session: connect, pick a mode, edit the list, approve and send",
		Flags: []cli.Flag{
			&cli.BoolFlag{Name: "yes", Aliases: []string{"y"}, Usage: "Sign without asking (keyed wallet)"},
		},
		Action: func(c *cli.Context) error {
			return run(c, func(ctx context.Context, a *app) error {
				a.confirmEach = !c.Bool("yes")
				a.out = &syncWriter{w: a.out}
				sh := &shell{a: a, seen: map[common.Hash]bool{}}
				o := a.orchestrator(sh.onUpdate)
				defer o.Close()
				sh.o = o
				return sh.loop(ctx)
			})
		},
	}
}

type shell struct {
	a *app
	o *disperse.Orchestrator

	mu   sync.Mutex
	seen map[common.Hash]bool
}

// onUpdate announces each finished transaction once.
func (sh *shell) onUpdate(s disperse.Snapshot) {
	if s.Tx == nil || s.Tx.Status == disperse.TxSubmitted {
		return
	}
	sh.mu.Lock()
	done := sh.seen[s.Tx.Hash]
	sh.seen[s.Tx.Hash] = true
	sh.mu.Unlock()
	if done {
		return
	}
	fmt.Fprintln(sh.a.out)
	printTx(sh.a.out, *s.Tx)
}

func (sh *shell) loop(ctx context.Context) error {
	fmt.Fprintln(sh.a.out, `Type "help" for commands.`)
	for {
		if ctx.Err() != nil {
			return nil
		}
		line, err := readLine(sh.a.in, sh.a.out, "disperse> ")
		if errors.Is(err, io.EOF) {
			fmt.Fprintln(sh.a.out)
			return nil
		}
		if err != nil {
			return err
		}
		fields := strings.Fields(line)
		if len(fields) == 0 {
			continue
		}
		cmd, args := strings.ToLower(fields[0]), fields[1:]
		if cmd == "quit" || cmd == "exit" {
			return nil
		}
		if err := sh.exec(ctx, cmd, args); err != nil {
			fmt.Fprintln(sh.a.out, "Error:", err)
		}
	}
}

func (sh *shell) exec(ctx context.Context, cmd string, args []string) error {
	a, o := sh.a, sh.o
	switch cmd {
	case "help", "?":
		fmt.Fprintln(a.out, shellHelp)
	case "connect":
		return connect(ctx, a, o)
	case "disconnect":
		o.Disconnect()
		fmt.Fprintln(a.out, "Disconnected.")
	case "mode":
		if len(args) != 1 {
			return errors.New("usage: mode native|token")
		}
		m, ok := disperse.ParseMode(args[0])
		if !ok {
			return fmt.Errorf("unknown mode %q, want native or token", args[0])
		}
		if err := o.SelectMode(ctx, m); err != nil {
			return err
		}
		fmt.Fprintf(a.out, "Mode %s, recipient list cleared.\n", m)
	case "input":
		return sh.input(ctx, args)
	case "check":
		st, err := o.CheckApproval(ctx)
		if err != nil {
			return err
		}
		fmt.Fprintf(a.out, "Approval: %s\n", st)
	case "approve":
		h, err := o.Approve(ctx)
		if err != nil {
			return err
		}
		sh.submitted(h)
	case "revoke":
		h, err := o.Revoke(ctx)
		if err != nil {
			return err
		}
		sh.submitted(h)
	case "send":
		h, err := o.Send(ctx)
		if err != nil {
			return err
		}
		sh.submitted(h)
	case "status":
		printSnapshot(a.out, o.Snapshot(), a)
	default:
		return fmt.Errorf("unknown command %q, try help", cmd)
	}
	return nil
}

func (sh *shell) input(ctx context.Context, args []string) error {
	a := sh.a
	mode := sh.o.Snapshot().Mode
	if mode == disperse.ModeNone {
		return disperse.ErrNoMode
	}
	var (
		raw string
		err error
	)
	if len(args) > 0 && args[0] != "-" {
		raw, err = readInput(args[0], nil)
	} else {
		fmt.Fprintln(a.out, `Enter "address, amount" lines, finish with a single ".":`)
		raw, err = readBlock(a.in)
	}
	if err != nil {
		return err
	}
	b, err := sh.o.UpdateInput(ctx, raw)
	if perr := printBatch(a.out, b, a.decimals(mode), a.symbol(mode)); perr != nil {
		return perr
	}
	if err != nil {
		return err
	}
	if mode == disperse.ModeToken && sh.o.Snapshot().Connected {
		fmt.Fprintf(a.out, "Approval: %s\n", sh.o.Snapshot().Approval)
	}
	return nil
}

func (sh *shell) submitted(h *disperse.TxHandle) {
	fmt.Fprintf(sh.a.out, "Submitted %s transaction %s\n", h.Kind, h.Hash.Hex())
	if h.URL != "" {
		fmt.Fprintf(sh.a.out, "  %s\n", h.URL)
	}
}
