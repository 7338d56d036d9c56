package domain

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestZeroSessionIsInit(t *testing.T) {
	t.Parallel()

	var s Session
	assert.Equal(t, StateInit, s.State())
	assert.Nil(t, s.Form())
	assert.Empty(t, s.FormType())
	assert.Nil(t, s.CollectedData())
}

func TestCompleteRequiresData(t *testing.T) {
	t.Parallel()

	s := NewSession()
	require.NoError(t, s.StartForm(FormDefinition{Type: "pan_card"}))

	err := s.Complete("pan_card", nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrIncompleteForm))
	assert.Equal(t, StateCollecting, s.State())
}

func TestCompleteReplacesData(t *testing.T) {
	t.Parallel()

	s := NewSession()
	require.NoError(t, s.StartForm(FormDefinition{Type: "pan_card"}))
	require.NoError(t, s.Complete("pan_card", CollectedData{"a": "1", "b": "2"}))
	require.NoError(t, s.Complete("pan_card", CollectedData{"c": "3"}))

	assert.Equal(t, CollectedData{"c": "3"}, s.CollectedData())
	assert.Equal(t, StateComplete, s.State())
}

func TestCompleteWithoutActiveFormAdoptsType(t *testing.T) {
	t.Parallel()

	s := NewSession()
	require.NoError(t, s.Complete("passport", CollectedData{"full_name": "A"}))
	assert.Equal(t, "passport", s.FormType())

	other := NewSession()
	err := other.Complete("", CollectedData{"x": "y"})
	assert.ErrorIs(t, err, ErrIncompleteForm)
}

func TestFormWithoutTypeIsRejected(t *testing.T) {
	t.Parallel()

	s := NewSession()
	err := s.StartForm(FormDefinition{Name: "GST Registration", Authority: "GSTN"})
	require.ErrorIs(t, err, ErrMissingFormType)
	assert.Equal(t, StateInit, s.State())
	assert.Nil(t, s.Form())

	require.ErrorIs(t, s.SetForm(FormDefinition{Name: "GST Registration"}), ErrMissingFormType)
	assert.Nil(t, s.Form())

	err = s.Complete("", CollectedData{"business": "Acme"})
	require.ErrorIs(t, err, ErrIncompleteForm)
	assert.Equal(t, StateInit, s.State())
	assert.Empty(t, s.FormType())
	assert.Nil(t, s.CollectedData())

	require.Error(t, s.Transition(StateComplete))
}

func TestTransitionGuardsComplete(t *testing.T) {
	t.Parallel()

	s := NewSession()
	assert.ErrorIs(t, s.Transition(StateComplete), ErrIncompleteForm)
	assert.Equal(t, StateInit, s.State())

	require.NoError(t, s.Transition(StateReview))
	assert.Equal(t, StateReview, s.State())
}

func TestStartingDifferentFormDropsData(t *testing.T) {
	t.Parallel()

	s := NewSession()
	require.NoError(t, s.StartForm(FormDefinition{Type: "pan_card"}))
	require.NoError(t, s.Complete("pan_card", CollectedData{"a": "1"}))

	require.NoError(t, s.StartForm(FormDefinition{Type: "passport"}))
	assert.Nil(t, s.CollectedData())
	assert.Equal(t, StateCollecting, s.State())
}

func TestAccessorsReturnCopies(t *testing.T) {
	t.Parallel()

	s := NewSession()
	require.NoError(t, s.StartForm(FormDefinition{Type: "pan_card", Fields: []string{"a"}}))
	require.NoError(t, s.Complete("pan_card", CollectedData{"a": "1"}))

	f := s.Form()
	f.Fields[0] = "mutated"
	d := s.CollectedData()
	d["a"] = "mutated"

	assert.Equal(t, "a", s.Form().Fields[0])
	assert.Equal(t, "1", s.CollectedData()["a"])
}

func TestParseState(t *testing.T) {
	t.Parallel()

	st, ok := ParseState("REVIEW")
	assert.True(t, ok)
	assert.Equal(t, StateReview, st)
	assert.Equal(t, "Reviewing details", st.Label())

	_, ok = ParseState("GENERATE")
	assert.False(t, ok)
}
