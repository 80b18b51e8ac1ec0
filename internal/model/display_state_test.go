package model

import (
	"image"
	"image/color"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jmylchreest/promptslot/internal/imaging"
)

func testSurvey(background image.Image) *SurveyState {
	return NewSurveyState(Content{ID: "survey-1", Data: []byte(`{"questions":3}`)}, 0x3f51b5, background, true)
}

func testNotification() *NotificationState {
	return NewNotificationState(Content{ID: "inapp-7", Data: []byte(`{"title":"hi"}`)}, 0xff5722)
}

func TestVariant_String(t *testing.T) {
	assert.Equal(t, "InAppNotificationState", VariantNotification.String())
	assert.Equal(t, "SurveyState", VariantSurvey.String())
	assert.Equal(t, "unknown", Variant(0).String())
}

func TestParseVariant(t *testing.T) {
	v, err := ParseVariant(NotificationTag)
	require.NoError(t, err)
	assert.Equal(t, VariantNotification, v)

	v, err = ParseVariant(SurveyTag)
	require.NoError(t, err)
	assert.Equal(t, VariantSurvey, v)

	_, err = ParseVariant("TakeoverState")
	assert.ErrorIs(t, err, ErrUnrecognizedVariant)
}

func TestNewSurveyState(t *testing.T) {
	s := testSurvey(nil)

	assert.Equal(t, VariantSurvey, s.VariantTag())
	assert.Equal(t, "survey-1", s.Survey().ID)
	assert.Equal(t, 0x3f51b5, s.HighlightColor())
	assert.True(t, s.ShowAskDialog())
	assert.Nil(t, s.Background())
	require.NotNil(t, s.Answers())
	assert.Equal(t, 0, s.Answers().Len())
}

func TestNewNotificationState(t *testing.T) {
	n := testNotification()

	assert.Equal(t, VariantNotification, n.VariantTag())
	assert.Equal(t, "inapp-7", n.Notification().ID)
	assert.Equal(t, 0xff5722, n.HighlightColor())
}

func TestIdentity_String(t *testing.T) {
	assert.Equal(t, "user-1@abcdef***", Identity{DistinctID: "user-1", Token: "abcdef123456"}.String())
	assert.Equal(t, "user-1@abc", Identity{DistinctID: "user-1", Token: "abc"}.String())
}

func TestSerialize_RoundTrip(t *testing.T) {
	answered := testSurvey(nil)
	answered.Answers().Put(1, "yes")
	answered.Answers().Put(4, "not really")

	tests := []struct {
		name  string
		state DisplayState
	}{
		{"notification", testNotification()},
		{"survey without answers", testSurvey(nil)},
		{"survey with answers", answered},
		{"survey without dialog", NewSurveyState(Content{ID: "s"}, 0, nil, false)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			u := NewUpdateDisplayState(tt.state, "distinct", "token")

			env, err := Serialize(u, nil)
			require.NoError(t, err)
			assert.Equal(t, tt.state.VariantTag().String(), env.DisplayState.VariantTag)

			got, err := Deserialize(env, nil)
			require.NoError(t, err)
			assert.Equal(t, u, got)
		})
	}
}

func TestSerialize_JSONRoundTrip(t *testing.T) {
	s := testSurvey(nil)
	s.Answers().Put(3, "yes")
	u := NewUpdateDisplayState(s, "distinct", "token")

	env, err := Serialize(u, nil)
	require.NoError(t, err)

	data, err := env.Marshal()
	require.NoError(t, err)
	assert.Contains(t, string(data), `"variant_tag":"SurveyState"`)
	assert.Contains(t, string(data), `"answers":{"3":"yes"}`)

	decoded, err := UnmarshalEnvelope(data)
	require.NoError(t, err)

	got, err := Deserialize(decoded, nil)
	require.NoError(t, err)
	assert.Equal(t, u, got)
}

func TestSerialize_Background(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 12, 7))
	for x := 0; x < 12; x++ {
		img.Set(x, 3, color.RGBA{R: 200, A: 255})
	}
	codec := imaging.NewCodec(imaging.QualitySpeed)
	u := NewUpdateDisplayState(testSurvey(img), "distinct", "token")

	env, err := Serialize(u, codec)
	require.NoError(t, err)
	assert.NotEmpty(t, env.DisplayState.Background)

	got, err := Deserialize(env, codec)
	require.NoError(t, err)

	survey, ok := got.State.(*SurveyState)
	require.True(t, ok)
	require.NotNil(t, survey.Background())
	assert.Equal(t, img.Bounds().Size(), survey.Background().Bounds().Size())
	assert.Equal(t, "survey-1", survey.Survey().ID)
}

func TestSerialize_BackgroundWithoutCodec(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 2, 2))
	_, err := Serialize(NewUpdateDisplayState(testSurvey(img), "d", "t"), nil)
	assert.ErrorIs(t, err, ErrNoImageCodec)
}

func TestSerialize_NilState(t *testing.T) {
	_, err := Serialize(nil, nil)
	assert.ErrorIs(t, err, ErrNilState)

	_, err = Serialize(&UpdateDisplayState{}, nil)
	assert.ErrorIs(t, err, ErrNilState)

	_, err = Serialize(&UpdateDisplayState{State: (*SurveyState)(nil)}, nil)
	assert.ErrorIs(t, err, ErrNilState)

	_, err = Serialize(&UpdateDisplayState{State: (*NotificationState)(nil)}, nil)
	assert.ErrorIs(t, err, ErrNilState)
}

func TestUpdateDisplayState_HasState(t *testing.T) {
	tests := []struct {
		name string
		u    *UpdateDisplayState
		want bool
	}{
		{name: "nil", u: nil, want: false},
		{name: "no state", u: &UpdateDisplayState{}, want: false},
		{name: "nil survey", u: &UpdateDisplayState{State: (*SurveyState)(nil)}, want: false},
		{name: "nil notification", u: &UpdateDisplayState{State: (*NotificationState)(nil)}, want: false},
		{name: "survey", u: NewUpdateDisplayState(testSurvey(nil), "d", "t"), want: true},
		{name: "notification", u: NewUpdateDisplayState(testNotification(), "d", "t"), want: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.u.HasState())
		})
	}
}

func TestDeserialize_Errors(t *testing.T) {
	tests := []struct {
		name    string
		env     *Envelope
		wantErr error
	}{
		{
			name:    "nil envelope",
			env:     nil,
			wantErr: ErrNilState,
		},
		{
			name:    "unknown variant",
			env:     &Envelope{DisplayState: StateEnvelope{VariantTag: "TakeoverState"}},
			wantErr: ErrUnrecognizedVariant,
		},
		{
			name:    "empty variant",
			env:     &Envelope{},
			wantErr: ErrUnrecognizedVariant,
		},
		{
			name:    "notification without content",
			env:     &Envelope{DisplayState: StateEnvelope{VariantTag: NotificationTag}},
			wantErr: ErrMissingContent,
		},
		{
			name:    "survey without content",
			env:     &Envelope{DisplayState: StateEnvelope{VariantTag: SurveyTag}},
			wantErr: ErrMissingContent,
		},
		{
			name: "non numeric answer key",
			env: &Envelope{DisplayState: StateEnvelope{
				VariantTag: SurveyTag,
				Survey:     &Content{ID: "s"},
				Answers:    map[string]string{"first": "yes"},
			}},
			wantErr: ErrMalformedAnswers,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Deserialize(tt.env, nil)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestUnmarshalEnvelope_Invalid(t *testing.T) {
	_, err := UnmarshalEnvelope([]byte("{not json"))
	assert.Error(t, err)
}
