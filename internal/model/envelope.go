package model

import (
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"strconv"
)

// Serialization errors.
var (
	ErrNilState         = errors.New("display state is nil")
	ErrMissingContent   = errors.New("display state content is missing")
	ErrMalformedAnswers = errors.New("answer index is not an integer")
	ErrNoImageCodec     = errors.New("background image present but no image codec configured")
)

// ImageCodec compresses and decompresses survey background images.
type ImageCodec interface {
	Compress(img image.Image) ([]byte, error)
	Decompress(data []byte) (image.Image, error)
}

// Envelope is the flat record an UpdateDisplayState is serialized to when it
// crosses a process or activity boundary.
type Envelope struct {
	DistinctID   string        `json:"distinct_id"`
	Token        string        `json:"token"`
	DisplayState StateEnvelope `json:"display_state"`
}

// StateEnvelope is the serialized form of a DisplayState. Which fields are
// populated depends on VariantTag.
type StateEnvelope struct {
	VariantTag     string            `json:"variant_tag"`
	HighlightColor int               `json:"highlight_color"`
	Notification   *Content          `json:"notification,omitempty"`
	Survey         *Content          `json:"survey,omitempty"`
	ShowAskDialog  bool              `json:"show_ask_dialog,omitempty"`
	Answers        map[string]string `json:"answers,omitempty"`
	Background     []byte            `json:"background,omitempty"`
}

// Serialize flattens u into an Envelope. codec is only needed when a survey
// carries a background image.
func Serialize(u *UpdateDisplayState, codec ImageCodec) (*Envelope, error) {
	if !u.HasState() {
		return nil, ErrNilState
	}

	env := &Envelope{
		DistinctID: u.Identity.DistinctID,
		Token:      u.Identity.Token,
	}

	switch s := u.State.(type) {
	case *NotificationState:
		content := s.notification
		env.DisplayState = StateEnvelope{
			VariantTag:     NotificationTag,
			HighlightColor: s.highlightColor,
			Notification:   &content,
		}
	case *SurveyState:
		content := s.survey
		state := StateEnvelope{
			VariantTag:     SurveyTag,
			HighlightColor: s.highlightColor,
			Survey:         &content,
			ShowAskDialog:  s.showAskDialog,
		}
		if s.answers != nil && s.answers.Len() > 0 {
			state.Answers = make(map[string]string, s.answers.Len())
			for idx, answer := range s.answers.answers {
				state.Answers[strconv.Itoa(idx)] = answer
			}
		}
		if s.background != nil {
			if codec == nil {
				return nil, ErrNoImageCodec
			}
			data, err := codec.Compress(s.background)
			if err != nil {
				return nil, fmt.Errorf("compress background: %w", err)
			}
			state.Background = data
		}
		env.DisplayState = state
	default:
		return nil, fmt.Errorf("%w: %T", ErrUnrecognizedVariant, u.State)
	}

	return env, nil
}

// Deserialize rebuilds an UpdateDisplayState from an Envelope.
// An unknown variant tag fails with ErrUnrecognizedVariant.
func Deserialize(env *Envelope, codec ImageCodec) (*UpdateDisplayState, error) {
	if env == nil {
		return nil, ErrNilState
	}

	variant, err := ParseVariant(env.DisplayState.VariantTag)
	if err != nil {
		return nil, err
	}

	var state DisplayState
	switch variant {
	case VariantNotification:
		if env.DisplayState.Notification == nil {
			return nil, fmt.Errorf("%s: %w", NotificationTag, ErrMissingContent)
		}
		state = NewNotificationState(*env.DisplayState.Notification, env.DisplayState.HighlightColor)

	case VariantSurvey:
		if env.DisplayState.Survey == nil {
			return nil, fmt.Errorf("%s: %w", SurveyTag, ErrMissingContent)
		}

		var background image.Image
		if len(env.DisplayState.Background) > 0 {
			if codec == nil {
				return nil, ErrNoImageCodec
			}
			background, err = codec.Decompress(env.DisplayState.Background)
			if err != nil {
				return nil, fmt.Errorf("decompress background: %w", err)
			}
		}

		survey := NewSurveyState(*env.DisplayState.Survey, env.DisplayState.HighlightColor,
			background, env.DisplayState.ShowAskDialog)
		for key, answer := range env.DisplayState.Answers {
			idx, err := strconv.Atoi(key)
			if err != nil {
				return nil, fmt.Errorf("%w: %q", ErrMalformedAnswers, key)
			}
			survey.answers.Put(idx, answer)
		}
		state = survey
	}

	return NewUpdateDisplayState(state, env.DistinctID, env.Token), nil
}

// Marshal encodes the envelope as JSON.
func (e *Envelope) Marshal() ([]byte, error) {
	return json.Marshal(e)
}

// UnmarshalEnvelope decodes a JSON envelope. The variant tag is not checked
// here; Deserialize does that.
func UnmarshalEnvelope(data []byte) (*Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("decode envelope: %w", err)
	}
	return &env, nil
}
