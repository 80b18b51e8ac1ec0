package surface

import (
	"context"
	"fmt"

	"github.com/jmylchreest/promptslot/internal/arbiter"
	"github.com/jmylchreest/promptslot/internal/capability"
	"github.com/jmylchreest/promptslot/internal/model"
	"github.com/jmylchreest/promptslot/internal/store"
)

// Launcher starts a presentation surface for a ticket. The surface is
// expected to Attach with that ticket once it is up.
type Launcher interface {
	Launch(ctx context.Context, ticket arbiter.Ticket) error
}

// LauncherFunc adapts a function to a Launcher.
type LauncherFunc func(ctx context.Context, ticket arbiter.Ticket) error

// Launch implements Launcher.
func (f LauncherFunc) Launch(ctx context.Context, ticket arbiter.Ticket) error {
	return f(ctx, ticket)
}

// Proposer is the producer side: it offers displays to the arbiter and
// launches a surface for each accepted one.
type Proposer struct {
	arbiter  *arbiter.Arbiter
	checker  capability.Checker
	launcher Launcher
	options
}

// NewProposer creates a Proposer. A nil checker always allows presenting.
func NewProposer(arb *arbiter.Arbiter, checker capability.Checker, launcher Launcher, opts ...Option) *Proposer {
	if checker == nil {
		checker = capability.Static(true)
	}
	return &Proposer{
		arbiter:  arb,
		checker:  checker,
		launcher: launcher,
		options:  buildOptions(opts),
	}
}

// Propose offers state for display on behalf of identity. ok is false when
// the overlay cannot be presented or the slot is taken; neither is an error.
// An error means the proposal was accepted but the surface failed to launch,
// in which case the slot has already been freed again.
func (p *Proposer) Propose(ctx context.Context, state model.DisplayState, identity model.Identity) (arbiter.Ticket, bool, error) {
	display := &model.UpdateDisplayState{State: state, Identity: identity}
	if !display.HasState() {
		return arbiter.NoTicket, false, model.ErrNilState
	}
	if !p.checker.CanPresent(ctx) {
		p.logger.Debug("overlay unavailable, not proposing", "variant", state.VariantTag())
		return arbiter.NoTicket, false, nil
	}

	d := p.arbiter.TryPropose(display)
	if !d.OK {
		e := displayEvent(store.EventDropped, arbiter.NoTicket, display)
		e.Owner = d.Holder
		record(p.journal, p.logger, e)
		return arbiter.NoTicket, false, nil
	}
	ticket := d.Ticket
	record(p.journal, p.logger, displayEvent(store.EventProposed, ticket, display))

	if err := p.launcher.Launch(ctx, ticket); err != nil {
		p.logger.Warn("failed to launch surface, freeing slot", "ticket", ticket, "error", err)
		p.abandon(ticket, display)
		return arbiter.NoTicket, false, fmt.Errorf("launch surface for ticket %d: %w", ticket, err)
	}
	return ticket, true, nil
}

// abandon frees a slot whose surface never started.
func (p *Proposer) abandon(ticket arbiter.Ticket, display *model.UpdateDisplayState) {
	if _, ok := p.arbiter.Claim(ticket); !ok {
		return
	}
	if p.arbiter.Release(ticket) {
		e := displayEvent(store.EventReleased, ticket, display)
		e.Reason = "launch failed"
		record(p.journal, p.logger, e)
	}
}
