// Package model defines the core data structures for promptslot.
package model

import (
	"errors"
	"fmt"
	"image"
	"strings"
)

// Variant identifies which kind of message a DisplayState describes.
type Variant int

const (
	// VariantNotification is an in-app notification.
	VariantNotification Variant = iota + 1
	// VariantSurvey is a survey prompt.
	VariantSurvey
)

// Wire tags for each variant, as written into a serialized envelope.
const (
	NotificationTag = "InAppNotificationState"
	SurveyTag       = "SurveyState"
)

// ErrUnrecognizedVariant is returned when a serialized record carries a variant
// tag this package does not know. Callers should surface it, not recover.
var ErrUnrecognizedVariant = errors.New("unrecognized display state variant")

// String returns the wire tag of the variant.
func (v Variant) String() string {
	switch v {
	case VariantNotification:
		return NotificationTag
	case VariantSurvey:
		return SurveyTag
	default:
		return "unknown"
	}
}

// ParseVariant maps a wire tag back to its Variant.
func ParseVariant(tag string) (Variant, error) {
	switch tag {
	case NotificationTag:
		return VariantNotification, nil
	case SurveyTag:
		return VariantSurvey, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrUnrecognizedVariant, tag)
	}
}

// Content is an opaque handle to the message content (the notification or
// survey definition fetched by the host SDK). Only its identity and raw
// payload travel with a DisplayState.
type Content struct {
	ID   string `json:"id"`
	Data []byte `json:"data,omitempty"`
}

// DisplayState describes one presentable message. The set of implementations
// is closed: *NotificationState and *SurveyState.
type DisplayState interface {
	VariantTag() Variant
	HighlightColor() int
	isDisplayState()
}

// NotificationState is the in-app notification variant.
type NotificationState struct {
	notification   Content
	highlightColor int
}

// NewNotificationState creates a notification display state.
func NewNotificationState(notification Content, highlightColor int) *NotificationState {
	return &NotificationState{
		notification:   notification,
		highlightColor: highlightColor,
	}
}

// VariantTag implements DisplayState.
func (s *NotificationState) VariantTag() Variant { return VariantNotification }

// HighlightColor implements DisplayState.
func (s *NotificationState) HighlightColor() int { return s.highlightColor }

// Notification returns the notification content handle.
func (s *NotificationState) Notification() Content { return s.notification }

func (s *NotificationState) isDisplayState() {}

// SurveyState is the survey prompt variant. Its answers are filled in while
// the survey is on screen.
type SurveyState struct {
	survey         Content
	highlightColor int
	background     image.Image
	answers        *AnswerMap
	showAskDialog  bool
}

// NewSurveyState creates a survey display state with an empty answer map.
// background may be nil.
func NewSurveyState(survey Content, highlightColor int, background image.Image, showAskDialog bool) *SurveyState {
	return &SurveyState{
		survey:         survey,
		highlightColor: highlightColor,
		background:     background,
		answers:        NewAnswerMap(),
		showAskDialog:  showAskDialog,
	}
}

// VariantTag implements DisplayState.
func (s *SurveyState) VariantTag() Variant { return VariantSurvey }

// HighlightColor implements DisplayState.
func (s *SurveyState) HighlightColor() int { return s.highlightColor }

// Survey returns the survey content handle.
func (s *SurveyState) Survey() Content { return s.survey }

// Background returns the rendered background image, or nil.
func (s *SurveyState) Background() image.Image { return s.background }

// Answers returns the survey's answer map.
func (s *SurveyState) Answers() *AnswerMap { return s.answers }

// ShowAskDialog reports whether a confirmation dialog precedes the survey.
func (s *SurveyState) ShowAskDialog() bool { return s.showAskDialog }

func (s *SurveyState) isDisplayState() {}

// Identity is whose data a display belongs to, so interaction events raised by
// the presentation surface are attributed to the right user and project.
type Identity struct {
	DistinctID string `json:"distinct_id"`
	Token      string `json:"token"`
}

// String returns a log-friendly form that does not leak the full token.
func (i Identity) String() string {
	token := i.Token
	if len(token) > 6 {
		token = token[:6] + strings.Repeat("*", 3)
	}
	return i.DistinctID + "@" + token
}

// UpdateDisplayState bundles a DisplayState with the identity that proposed it.
// It is what the arbiter holds while a display is pending and what a
// presentation surface persists across restarts.
type UpdateDisplayState struct {
	State    DisplayState
	Identity Identity
}

// NewUpdateDisplayState creates an UpdateDisplayState.
func NewUpdateDisplayState(state DisplayState, distinctID, token string) *UpdateDisplayState {
	return &UpdateDisplayState{
		State: state,
		Identity: Identity{
			DistinctID: distinctID,
			Token:      token,
		},
	}
}

// HasState reports whether u carries a usable DisplayState. A nil pointer of
// either variant counts as no state.
func (u *UpdateDisplayState) HasState() bool {
	if u == nil {
		return false
	}
	switch s := u.State.(type) {
	case *NotificationState:
		return s != nil
	case *SurveyState:
		return s != nil
	default:
		return s != nil
	}
}
