// Package arbiter guards the single overlay slot used to present one survey or
// in-app notification at a time.
//
// A producer proposes a display and receives a ticket; the presentation surface
// started for that ticket claims the display and releases it when done. Claims
// that are never released are reclaimed once they go stale.
package arbiter

import (
	"log/slog"
	"sync"
	"time"

	"github.com/jmylchreest/promptslot/internal/model"
)

// DefaultStaleLockTimeout is how long a pending or claimed slot may go
// untouched before it is treated as abandoned.
const DefaultStaleLockTimeout = 12 * time.Hour

// Ticket identifies one successful proposal. Tickets start at 1 and are never reused.
type Ticket int64

// NoTicket is the zero Ticket; it is never minted.
const NoTicket Ticket = 0

// State is the arbiter's slot state.
type State int

const (
	// StateEmpty means no display is pending and nothing is claimed.
	StateEmpty State = iota
	// StatePending means a display was proposed but not yet claimed.
	StatePending
	// StateClaimed means a presentation surface owns the pending display.
	StateClaimed
)

// String returns the string representation of State.
func (s State) String() string {
	switch s {
	case StateEmpty:
		return "empty"
	case StatePending:
		return "pending"
	case StateClaimed:
		return "claimed"
	default:
		return "unknown"
	}
}

// ReclaimPhase says which timestamp went stale when a slot was reclaimed.
type ReclaimPhase string

const (
	// ReclaimPending is a proposal whose surface never finished.
	ReclaimPending ReclaimPhase = "pending"
	// ReclaimClaimed is a claim that was never released.
	ReclaimClaimed ReclaimPhase = "claimed"
)

// Reclaim describes an abandoned slot that was force-cleared.
type Reclaim struct {
	Phase   ReclaimPhase
	Ticket  Ticket        // Ticket of the abandoned proposal
	Owner   Ticket        // Owner at the time, NoTicket if unclaimed
	Idle    time.Duration // Time since the slot was last touched
	Display *model.UpdateDisplayState
}

// Snapshot is a point-in-time copy of the arbiter state for diagnostics.
type Snapshot struct {
	State         State
	Pending       Ticket // Ticket of the pending display, NoTicket when empty
	Owner         Ticket // Claiming ticket, NoTicket when unclaimed
	LastTicket    Ticket // Most recently minted ticket
	LockedAt      time.Time
	ClaimedAt     time.Time
	Display       *model.UpdateDisplayState
	ReclaimsTotal int
}

type pendingDisplay struct {
	ticket  Ticket
	display *model.UpdateDisplayState
}

// Arbiter serializes access to the overlay slot. All methods are safe for
// concurrent use; logging and callbacks happen after the lock is released.
type Arbiter struct {
	mu     sync.Mutex
	logger *slog.Logger
	now    func() time.Time

	staleAfter time.Duration
	onReclaim  func(Reclaim)

	pending    *pendingDisplay
	owner      Ticket
	lastTicket Ticket
	lockedAt   time.Time // Refreshed on every slot transition
	claimedAt  time.Time // Refreshed on every successful claim
	reclaims   int
}

// Option configures an Arbiter.
type Option func(*Arbiter)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(a *Arbiter) {
		if logger != nil {
			a.logger = logger
		}
	}
}

// WithClock replaces time.Now, mainly for tests.
func WithClock(now func() time.Time) Option {
	return func(a *Arbiter) {
		if now != nil {
			a.now = now
		}
	}
}

// WithStaleLockTimeout sets how long a slot may sit untouched before it is
// reclaimed. Non-positive values keep the default.
func WithStaleLockTimeout(d time.Duration) Option {
	return func(a *Arbiter) {
		if d > 0 {
			a.staleAfter = d
		}
	}
}

// WithReclaimCallback registers a function called after an abandoned slot has
// been force-cleared. It runs outside the arbiter lock and may call back into
// the arbiter.
func WithReclaimCallback(callback func(Reclaim)) Option {
	return func(a *Arbiter) {
		a.onReclaim = callback
	}
}

// New creates an empty Arbiter.
func New(opts ...Option) *Arbiter {
	a := &Arbiter{
		logger:     slog.Default(),
		now:        time.Now,
		staleAfter: DefaultStaleLockTimeout,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// StaleLockTimeout returns the configured stale-lock timeout.
func (a *Arbiter) StaleLockTimeout() time.Duration {
	return a.staleAfter
}

// Decision is the outcome of TryPropose, TryClaim or TryRelease. Holder is
// the ticket that blocked the call, as observed while the decision was made.
type Decision struct {
	OK      bool
	Ticket  Ticket
	Holder  Ticket
	Display *model.UpdateDisplayState
}

// Propose offers a display for the slot. If the slot is free (or abandoned)
// the display is stored and a fresh ticket is returned; the caller should then
// start a presentation surface for that ticket. If the slot is taken the
// proposal is dropped and ok is false.
func (a *Arbiter) Propose(display *model.UpdateDisplayState) (ticket Ticket, ok bool) {
	d := a.TryPropose(display)
	return d.Ticket, d.OK
}

// TryPropose is Propose that also reports the pending ticket occupying the
// slot when the proposal is dropped.
func (a *Arbiter) TryPropose(display *model.UpdateDisplayState) Decision {
	if !display.HasState() {
		return Decision{}
	}

	var (
		reclaimed *Reclaim
		occupant  Ticket
		ticket    Ticket
		ok        bool
	)

	a.mu.Lock()
	now := a.now()

	if a.pending != nil {
		if idle := now.Sub(a.lockedAt); idle > a.staleAfter {
			reclaimed = &Reclaim{
				Phase:   ReclaimPending,
				Ticket:  a.pending.ticket,
				Owner:   a.owner,
				Idle:    idle,
				Display: a.pending.display,
			}
			a.clearLocked()
			a.reclaims++
		}
	}

	if a.pending == nil {
		a.lastTicket++
		ticket = a.lastTicket
		a.pending = &pendingDisplay{ticket: ticket, display: display}
		a.lockedAt = now
		ok = true
	} else {
		occupant = a.pending.ticket
	}
	a.mu.Unlock()

	if reclaimed != nil {
		a.logger.Warn("display slot abandoned without completion, reclaiming",
			"ticket", reclaimed.Ticket, "owner", reclaimed.Owner, "idle", reclaimed.Idle)
		a.notifyReclaim(reclaimed)
	}
	if ok {
		a.logger.Debug("display proposed",
			"ticket", ticket, "variant", display.State.VariantTag(), "identity", display.Identity)
	} else {
		a.logger.Debug("display slot occupied, dropping proposal",
			"occupant", occupant, "variant", display.State.VariantTag())
	}
	return Decision{OK: ok, Ticket: ticket, Holder: occupant}
}

// Claim makes ticket the owner of the pending display and returns it. The
// display stays in the slot until released. Claim fails when another unexpired
// ticket owns the slot or when nothing is pending.
//
// Claiming again with the current owner's ticket succeeds and refreshes the
// claim; a recreated surface does this.
func (a *Arbiter) Claim(ticket Ticket) (*model.UpdateDisplayState, bool) {
	d := a.TryClaim(ticket)
	return d.Display, d.OK
}

// TryClaim is Claim that also reports the owner that denied the claim.
// Holder is NoTicket when the claim failed because nothing was pending.
func (a *Arbiter) TryClaim(ticket Ticket) Decision {
	if ticket == NoTicket {
		return Decision{}
	}

	var (
		reclaimed *Reclaim
		display   *model.UpdateDisplayState
		owner     Ticket
	)

	a.mu.Lock()
	now := a.now()

	if a.owner != NoTicket && a.owner != ticket {
		if idle := now.Sub(a.claimedAt); idle > a.staleAfter {
			reclaimed = &Reclaim{
				Phase: ReclaimClaimed,
				Owner: a.owner,
				Idle:  idle,
			}
			if a.pending != nil {
				reclaimed.Ticket = a.pending.ticket
				reclaimed.Display = a.pending.display
			}
			a.owner = NoTicket
			a.lockedAt = now
			a.reclaims++
		}
	}

	owner = a.owner
	if (owner == NoTicket || owner == ticket) && a.pending != nil {
		a.owner = ticket
		a.claimedAt = now
		a.lockedAt = now
		display = a.pending.display
	}
	a.mu.Unlock()

	if reclaimed != nil {
		a.logger.Warn("display claimed but never released, possible force quit; reclaiming",
			"owner", reclaimed.Owner, "ticket", ticket, "idle", reclaimed.Idle)
		a.notifyReclaim(reclaimed)
	}
	d := Decision{OK: display != nil, Ticket: ticket, Display: display}
	switch {
	case display != nil:
		a.logger.Debug("display claimed", "ticket", ticket)
	case owner != NoTicket && owner != ticket:
		d.Holder = owner
		a.logger.Debug("display already claimed, denying claim", "ticket", ticket, "owner", owner)
	default:
		a.logger.Debug("nothing pending to claim", "ticket", ticket)
	}
	return d
}

// Release frees the slot if ticket owns it. Any other ticket is ignored and
// false is returned, so a stale surface cannot free a slot it no longer owns.
func (a *Arbiter) Release(ticket Ticket) bool {
	return a.TryRelease(ticket).OK
}

// TryRelease is Release that also reports the owner when the release is
// ignored.
func (a *Arbiter) TryRelease(ticket Ticket) Decision {
	a.mu.Lock()
	owner := a.owner
	released := ticket != NoTicket && ticket == owner
	if released {
		a.clearLocked()
		a.lockedAt = a.now()
	}
	a.mu.Unlock()

	if released {
		a.logger.Debug("display released", "ticket", ticket)
	} else {
		a.logger.Debug("ignoring release from non-owner", "ticket", ticket, "owner", owner)
		return Decision{Ticket: ticket, Holder: owner}
	}
	return Decision{OK: true, Ticket: ticket}
}

// Snapshot returns a copy of the current state.
func (a *Arbiter) Snapshot() Snapshot {
	a.mu.Lock()
	defer a.mu.Unlock()

	snap := Snapshot{
		State:         a.stateLocked(),
		Owner:         a.owner,
		LastTicket:    a.lastTicket,
		LockedAt:      a.lockedAt,
		ClaimedAt:     a.claimedAt,
		ReclaimsTotal: a.reclaims,
	}
	if a.pending != nil {
		snap.Pending = a.pending.ticket
		snap.Display = a.pending.display
	}
	return snap
}

// State returns the current slot state.
func (a *Arbiter) State() State {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.stateLocked()
}

func (a *Arbiter) stateLocked() State {
	switch {
	case a.pending == nil:
		return StateEmpty
	case a.owner != NoTicket:
		return StateClaimed
	default:
		return StatePending
	}
}

func (a *Arbiter) clearLocked() {
	a.pending = nil
	a.owner = NoTicket
}

func (a *Arbiter) notifyReclaim(r *Reclaim) {
	if a.onReclaim != nil {
		a.onReclaim(*r)
	}
}
