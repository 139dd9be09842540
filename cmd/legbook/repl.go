package main

// repl.go — comandos de línea sobre la sesión.
//
// Las piernas se referencian por posición en la lista (1, 2, ...) o por un
// prefijo único de su id, tal como aparecen en la tabla de posiciones.

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/alejandrodnm/legbook/internal/domain"
	"github.com/alejandrodnm/legbook/internal/ports"
)

// sessionOps es lo que el repl necesita de *session.Session.
type sessionOps interface {
	Add(ctx context.Context, req domain.LegRequest) (domain.Selection, error)
	AddFromChain(ctx context.Context, kind domain.LegKind, strike int64) (domain.Selection, error)
	UpdateAction(ctx context.Context, id string, action domain.Action) error
	Remove(ctx context.Context, id string) error
	ClearAll(ctx context.Context) (int, error)
	RefreshPayoff(ctx context.Context) bool
	SetLotSize(ctx context.Context, size float64) error
	ClearScenario(ctx context.Context) error
	Positions(ctx context.Context) ([]domain.LegStatus, error)
	Reconcile(ctx context.Context) ([]domain.Divergence, error)
	Chain(ctx context.Context) (domain.ChainSnapshot, error)
	Curve() domain.PayoffCurve
}

var errQuit = errors.New("quit")

const helpText = `commands:
  add <c|p> <strike> [expiry]   add a leg (expiry YYYY-MM-DD when not in the chain)
  buy <leg> | sell <leg>        change the action of a leg (leg = list number or id prefix)
  rm <leg>                      remove a leg
  clear                         remove every leg
  refresh                       request the payoff curve now
  lot <size>                    set the lot size
  scenario-clear                clear simulated scenarios
  reconcile                     compare local legs with the pricing service
  show                          print legs and payoff
  chain                         print the options chain
  quit`

// command es una línea ya parseada.
type command struct {
	name string
	args []string
}

// parseLine separa una línea en comando y argumentos y valida la aridad.
func parseLine(line string) (command, error) {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return command{}, nil
	}
	cmd := command{name: strings.ToLower(fields[0]), args: fields[1:]}

	var minArgs, maxArgs int
	switch cmd.name {
	case "add":
		minArgs, maxArgs = 2, 3
	case "buy", "sell", "rm", "lot":
		minArgs, maxArgs = 1, 1
	case "clear", "refresh", "scenario-clear", "reconcile", "show", "chain", "help", "quit", "exit":
	default:
		return command{}, fmt.Errorf("unknown command %q", cmd.name)
	}
	if n := len(cmd.args); n < minArgs || n > maxArgs {
		return command{}, fmt.Errorf("%s: expected %d..%d arguments, got %d", cmd.name, minArgs, maxArgs, n)
	}
	return cmd, nil
}

type repl struct {
	sess       sessionOps
	notifier   ports.Notifier
	out        io.Writer
	underlying string
}

// run lee comandos hasta EOF, "quit" o cancelación del contexto.
func (r *repl) run(ctx context.Context, in io.Reader) error {
	lines := make(chan string)
	go func() {
		defer close(lines)
		sc := bufio.NewScanner(in)
		for sc.Scan() {
			select {
			case lines <- sc.Text():
			case <-ctx.Done():
				return
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case line, ok := <-lines:
			if !ok {
				return io.EOF
			}
			cmd, err := parseLine(line)
			if err != nil {
				fmt.Fprintf(r.out, "error: %v\n", err)
				continue
			}
			if cmd.name == "" {
				continue
			}
			if err := r.exec(ctx, cmd); err != nil {
				if errors.Is(err, errQuit) {
					return nil
				}
				fmt.Fprintf(r.out, "error: %v\n", err)
			}
		}
	}
}

// exec ejecuta un comando parseado.
func (r *repl) exec(ctx context.Context, cmd command) error {
	switch cmd.name {
	case "add":
		kind, err := domain.ParseLegKind(cmd.args[0])
		if err != nil {
			return err
		}
		strike, err := strconv.ParseInt(cmd.args[1], 10, 64)
		if err != nil {
			return fmt.Errorf("invalid strike %q", cmd.args[1])
		}
		if len(cmd.args) == 3 {
			_, err = r.sess.Add(ctx, domain.LegRequest{
				Kind: kind, Strike: strike, Underlying: r.underlying, Expiry: cmd.args[2],
			})
		} else {
			_, err = r.sess.AddFromChain(ctx, kind, strike)
		}
		if err != nil {
			return err
		}
		return r.showPositions(ctx)

	case "buy", "sell":
		id, err := r.resolve(ctx, cmd.args[0])
		if err != nil {
			return err
		}
		if err := r.sess.UpdateAction(ctx, id, domain.Action(cmd.name)); err != nil {
			return err
		}
		return r.showPositions(ctx)

	case "rm":
		id, err := r.resolve(ctx, cmd.args[0])
		if err != nil {
			return err
		}
		if err := r.sess.Remove(ctx, id); err != nil {
			return err
		}
		return r.showPositions(ctx)

	case "clear":
		n, err := r.sess.ClearAll(ctx)
		if err != nil {
			return err
		}
		fmt.Fprintf(r.out, "cleared %d legs\n", n)
		return nil

	case "refresh":
		if !r.sess.RefreshPayoff(ctx) {
			fmt.Fprintln(r.out, "payoff not updated, keeping previous curve")
		}
		return r.notifier.NotifyPayoff(ctx, r.sess.Curve())

	case "lot":
		size, err := strconv.ParseFloat(cmd.args[0], 64)
		if err != nil || size <= 0 {
			return fmt.Errorf("invalid lot size %q", cmd.args[0])
		}
		return r.sess.SetLotSize(ctx, size)

	case "scenario-clear":
		return r.sess.ClearScenario(ctx)

	case "reconcile":
		divs, err := r.sess.Reconcile(ctx)
		if err != nil {
			return err
		}
		return r.notifier.NotifyDivergences(ctx, divs)

	case "show":
		if err := r.showPositions(ctx); err != nil {
			return err
		}
		return r.notifier.NotifyPayoff(ctx, r.sess.Curve())

	case "chain":
		chain, err := r.sess.Chain(ctx)
		if err != nil {
			return err
		}
		return r.notifier.NotifyChain(ctx, chain)

	case "help":
		fmt.Fprintln(r.out, helpText)
		return nil

	case "quit", "exit":
		return errQuit
	}
	return fmt.Errorf("unknown command %q", cmd.name)
}

func (r *repl) showPositions(ctx context.Context) error {
	legs, err := r.sess.Positions(ctx)
	if err != nil {
		return err
	}
	return r.notifier.NotifyPositions(ctx, legs)
}

// resolve traduce un número de lista o un prefijo de id al id completo.
func (r *repl) resolve(ctx context.Context, ref string) (string, error) {
	legs, err := r.sess.Positions(ctx)
	if err != nil {
		return "", err
	}
	if n, err := strconv.Atoi(ref); err == nil {
		if n < 1 || n > len(legs) {
			return "", fmt.Errorf("no leg #%d (%d legs)", n, len(legs))
		}
		return legs[n-1].ID, nil
	}

	var match string
	for _, l := range legs {
		if strings.HasPrefix(l.ID, ref) {
			if match != "" {
				return "", fmt.Errorf("ambiguous leg %q", ref)
			}
			match = l.ID
		}
	}
	if match == "" {
		return "", fmt.Errorf("no leg %q", ref)
	}
	return match, nil
}
