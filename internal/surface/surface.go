package surface

import (
	"errors"
	"fmt"
	"sync"

	"github.com/jmylchreest/promptslot/internal/arbiter"
	"github.com/jmylchreest/promptslot/internal/model"
	"github.com/jmylchreest/promptslot/internal/store"
)

// Surface errors.
var (
	// ErrClaimDenied means the ticket does not own the slot; the surface should close.
	ErrClaimDenied = errors.New("display claim denied")
	// ErrNothingSaved means Restore found no saved state.
	ErrNothingSaved = errors.New("no saved surface state")
)

// Surface is one presentation surface. It owns at most one ticket at a time.
type Surface struct {
	arbiter *arbiter.Arbiter
	saved   *store.SavedStateFile
	codec   model.ImageCodec
	options

	mu      sync.Mutex
	ticket  arbiter.Ticket
	display *model.UpdateDisplayState
}

// New creates a surface. saved may be nil when the surface never needs to be
// recreated; codec is only needed for survey backgrounds.
func New(arb *arbiter.Arbiter, saved *store.SavedStateFile, codec model.ImageCodec, opts ...Option) *Surface {
	return &Surface{
		arbiter: arb,
		saved:   saved,
		codec:   codec,
		options: buildOptions(opts),
	}
}

// Attach claims the display for ticket and saves it for Restore.
// ErrClaimDenied is returned when the arbiter refuses the claim.
func (s *Surface) Attach(ticket arbiter.Ticket) (*model.UpdateDisplayState, error) {
	d := s.arbiter.TryClaim(ticket)
	if !d.OK {
		e := displayEvent(store.EventClaimDenied, ticket, nil)
		e.Owner = d.Holder
		record(s.journal, s.logger, e)
		return nil, fmt.Errorf("%w: ticket %d", ErrClaimDenied, ticket)
	}
	display := d.Display
	record(s.journal, s.logger, displayEvent(store.EventClaimed, ticket, display))

	s.mu.Lock()
	s.ticket = ticket
	s.display = display
	s.mu.Unlock()

	if err := s.save(ticket, display); err != nil {
		s.logger.Warn("failed to save surface state", "ticket", ticket, "error", err)
	}
	return display, nil
}

func (s *Surface) save(ticket arbiter.Ticket, display *model.UpdateDisplayState) error {
	if s.saved == nil {
		return nil
	}
	env, err := model.Serialize(display, s.codec)
	if err != nil {
		return err
	}
	return s.saved.Save(&store.SavedState{Ticket: ticket, Envelope: env})
}

// Checkpoint saves the current display again, capturing answers given since
// Attach.
func (s *Surface) Checkpoint() error {
	s.mu.Lock()
	ticket, display := s.ticket, s.display
	s.mu.Unlock()

	if ticket == arbiter.NoTicket {
		return nil
	}
	return s.save(ticket, display)
}

// Restore recreates the surface from saved state. The arbiter is not
// consulted: the saved ticket still owns the slot.
func (s *Surface) Restore() (*model.UpdateDisplayState, error) {
	if s.saved == nil {
		return nil, ErrNothingSaved
	}
	state, err := s.saved.Load()
	if err != nil {
		return nil, err
	}
	if state == nil {
		return nil, ErrNothingSaved
	}

	display, err := model.Deserialize(state.Envelope, s.codec)
	if err != nil {
		return nil, fmt.Errorf("restore ticket %d: %w", state.Ticket, err)
	}

	s.mu.Lock()
	s.ticket = state.Ticket
	s.display = display
	s.mu.Unlock()

	s.logger.Debug("surface restored", "ticket", state.Ticket, "saved_at", state.SavedTime())
	return display, nil
}

// Finish releases the ticket and clears saved state. It is safe to call on a
// surface that never attached.
func (s *Surface) Finish() error {
	s.mu.Lock()
	ticket, display := s.ticket, s.display
	s.ticket, s.display = arbiter.NoTicket, nil
	s.mu.Unlock()

	if ticket == arbiter.NoTicket {
		return nil
	}

	if d := s.arbiter.TryRelease(ticket); d.OK {
		record(s.journal, s.logger, displayEvent(store.EventReleased, ticket, display))
	} else {
		e := displayEvent(store.EventReleaseIgnored, ticket, display)
		e.Owner = d.Holder
		record(s.journal, s.logger, e)
	}

	return s.clearSaved(ticket)
}

// clearSaved removes saved state written for ticket. State saved by a newer
// surface sharing the file is left alone.
func (s *Surface) clearSaved(ticket arbiter.Ticket) error {
	if s.saved == nil {
		return nil
	}
	state, err := s.saved.Load()
	if err == nil && state != nil && state.Ticket != ticket {
		return nil
	}
	return s.saved.Clear()
}

// Ticket returns the ticket the surface holds, or NoTicket.
func (s *Surface) Ticket() arbiter.Ticket {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ticket
}

// Display returns the display the surface presents, or nil.
func (s *Surface) Display() *model.UpdateDisplayState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.display
}
