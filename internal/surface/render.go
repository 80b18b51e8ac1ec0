package surface

import (
	"fmt"

	"github.com/jmylchreest/promptslot/internal/model"
)

// Renderer draws each display variant.
type Renderer interface {
	RenderNotification(state *model.NotificationState, identity model.Identity) error
	RenderSurvey(state *model.SurveyState, identity model.Identity) error
}

// Render dispatches u to the renderer method for its variant.
func Render(u *model.UpdateDisplayState, r Renderer) error {
	if !u.HasState() {
		return model.ErrNilState
	}
	switch state := u.State.(type) {
	case *model.NotificationState:
		return r.RenderNotification(state, u.Identity)
	case *model.SurveyState:
		return r.RenderSurvey(state, u.Identity)
	default:
		return fmt.Errorf("%w: %T", model.ErrUnrecognizedVariant, state)
	}
}
