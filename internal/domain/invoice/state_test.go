package invoice

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ledgerd/internal/core/apperror"
)

func TestTransition(t *testing.T) {
	tests := []struct {
		from Status
		ev   Event
		want Status
	}{
		{StatusDraft, EventSend, StatusSent},
		{StatusDraft, EventPartialPayment, StatusSent},
		{StatusDraft, EventFullPayment, StatusPaid},
		{StatusDraft, EventDueDatePassed, StatusDraft},
		{StatusSent, EventView, StatusViewed},
		{StatusSent, EventPartialPayment, StatusSent},
		{StatusSent, EventDueDatePassed, StatusOverdue},
		{StatusSent, EventReminderEscalation, StatusOverdue},
		{StatusViewed, EventView, StatusViewed},
		{StatusViewed, EventFullPayment, StatusPaid},
		{StatusViewed, EventDueDatePassed, StatusOverdue},
		{StatusOverdue, EventPartialPayment, StatusOverdue},
		{StatusOverdue, EventView, StatusOverdue},
		{StatusOverdue, EventFullPayment, StatusPaid},
		{StatusPaid, EventView, StatusPaid},
	}
	for _, tt := range tests {
		t.Run(string(tt.from)+"/"+string(tt.ev), func(t *testing.T) {
			got, err := Transition(tt.from, tt.ev)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestTransition_PaidIsTerminal(t *testing.T) {
	for _, ev := range []Event{EventSend, EventPartialPayment, EventFullPayment, EventDueDatePassed, EventReminderEscalation} {
		got, err := Transition(StatusPaid, ev)
		require.Error(t, err, ev)
		assert.True(t, apperror.HasCode(err, apperror.CodeImmutableState))
		assert.Equal(t, StatusPaid, got)
	}
}

func TestTransition_InvalidEvent(t *testing.T) {
	_, err := Transition(StatusDraft, EventView)
	assert.True(t, apperror.HasCode(err, apperror.CodeInvalidTransition))

	_, err = Transition(StatusDraft, EventReminderEscalation)
	assert.True(t, apperror.HasCode(err, apperror.CodeInvalidTransition))

	_, err = Transition("ARCHIVED", EventSend)
	assert.True(t, apperror.HasCode(err, apperror.CodeValidation))
}

func TestStatusPredicates(t *testing.T) {
	assert.False(t, StatusDraft.IsIssued())
	assert.True(t, StatusOverdue.IsIssued())
	assert.False(t, StatusPaid.IsIssued())
	assert.True(t, StatusViewed.IsEditable())
	assert.False(t, StatusOverdue.IsEditable())
}
