package timeexpr

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"remindbot/internal/domain"
)

func TestParseAddRelative(t *testing.T) {
	tests := []struct {
		in    string
		want  domain.Interval
		title string
	}{
		{"add in 3 days call mom", domain.Interval{Value: 3, Unit: domain.Day}, "call mom"},
		{"add in 1 day call mom", domain.Interval{Value: 1, Unit: domain.Day}, "call mom"},
		{"ADD In 1 Days call mom", domain.Interval{Value: 1, Unit: domain.Day}, "call mom"},
		{"add in 45 minutes stretch", domain.Interval{Value: 45, Unit: domain.Minute}, "stretch"},
		{"add   in\t2 weeks   renew passport ", domain.Interval{Value: 2, Unit: domain.Week}, "renew passport"},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			in, err := Parse(tt.in)
			require.NoError(t, err)
			assert.Equal(t, KindAdd, in.Kind)
			require.NotNil(t, in.Offset)
			assert.Equal(t, tt.want, *in.Offset)
			assert.Nil(t, in.At)
			assert.Nil(t, in.Repeat)
			assert.Nil(t, in.Destination)
			assert.Equal(t, tt.title, in.Title)
		})
	}
}

func TestParseAddAbsolute(t *testing.T) {
	in, err := Parse("add at 13/05/2021 16:00 complete timesheets")
	require.NoError(t, err)
	require.NotNil(t, in.At)
	assert.Equal(t, Moment("13/05/2021 16:00"), *in.At)
	assert.Nil(t, in.Offset)
	assert.Equal(t, "complete timesheets", in.Title)
}

func TestParseAddRepeat(t *testing.T) {
	in, err := Parse("add in 1 day repeat every 1 week buy milk")
	require.NoError(t, err)
	require.NotNil(t, in.Offset)
	require.NotNil(t, in.Repeat)
	assert.Equal(t, domain.Interval{Value: 1, Unit: domain.Week}, *in.Repeat)
	assert.Equal(t, "buy milk", in.Title)

	in, err = Parse("add at 13/05/2021 16:00 repeat every 7 days complete timesheets")
	require.NoError(t, err)
	assert.Equal(t, domain.Interval{Value: 7, Unit: domain.Day}, *in.Repeat)
}

func TestParseAddStreamTopic(t *testing.T) {
	in, err := Parse("add stream: Timesheets topic: Please remember your timesheets in 1 day repeat every 1 week complete timesheets")
	require.NoError(t, err)
	require.NotNil(t, in.Destination)
	assert.Equal(t, "Timesheets", in.Destination.Stream)
	assert.Equal(t, "Please remember your timesheets", in.Destination.Topic)
	assert.Equal(t, "complete timesheets", in.Title)
	assert.Equal(t, domain.Interval{Value: 1, Unit: domain.Week}, *in.Repeat)

	// "in room" is not a schedule, so the topic keeps growing.
	in, err = Parse("add stream:ops topic: meet in room 4 at 13/05/2021 16:00 book it")
	require.NoError(t, err)
	assert.Equal(t, "ops", in.Destination.Stream)
	assert.Equal(t, "meet in room 4", in.Destination.Topic)
	assert.Equal(t, "book it", in.Title)
}

func TestParseAddMultilineTitle(t *testing.T) {
	in, err := Parse("add in 2 hours\nline one\nline two")
	require.NoError(t, err)
	assert.Equal(t, "line one\nline two", in.Title)
}

func TestParseAddNegativeIntervalIsLeftToValidation(t *testing.T) {
	in, err := Parse("add in -1 day nope")
	require.NoError(t, err)
	assert.Equal(t, -1, in.Offset.Value)
}

func TestParseOtherIntents(t *testing.T) {
	in, err := Parse("remove 42")
	require.NoError(t, err)
	assert.Equal(t, Intent{Kind: KindRemove, ReminderID: 42}, in)

	in, err = Parse("list")
	require.NoError(t, err)
	assert.Equal(t, KindList, in.Kind)

	in, err = Parse("repeat 23 every 2 weeks")
	require.NoError(t, err)
	assert.Equal(t, KindRepeat, in.Kind)
	assert.Equal(t, int64(23), in.ReminderID)
	assert.Equal(t, domain.Interval{Value: 2, Unit: domain.Week}, *in.Repeat)

	in, err = Parse("multiremind 7 @**Alice** @**Bob**")
	require.NoError(t, err)
	assert.Equal(t, KindMultiRemind, in.Kind)
	assert.Equal(t, int64(7), in.ReminderID)
	assert.Equal(t, []string{"Alice", "Bob"}, in.Recipients)

	for _, h := range []string{"help", "?", "halp me"} {
		in, err = Parse(h)
		require.NoError(t, err)
		assert.Equal(t, KindHelp, in.Kind)
	}
}

func TestParseNoMatch(t *testing.T) {
	for _, in := range []string{
		"",
		"   ",
		"hello there",
		"add tomorrow maybe do stuff",
		"add in 1 fortnight x",
		"add in one day x",
		"add in 1 day",
		"add in 1 day repeat every 1 week",
		"add in 1 day repeat every soon x",
		"add at 2021-05-13 16:00 x",
		"add at 13/05/2021 x",
		"add stream: ops in 1 day x",
		"add stream: topic: t in 1 day x",
		"add stream: ops topic: in 1 day x",
		"remove abc",
		"remove 4 5",
		"remove",
		"list all",
		"repeat 3 every week",
		"repeat x every 1 week",
		"multiremind 7",
		"multiremind 7 @** **",
		"add in 99999999999 days x",
	} {
		_, err := Parse(in)
		var pe *ParseError
		require.True(t, errors.As(err, &pe), "input %q should not match", in)
		assert.Equal(t, in, pe.Input)
	}
}

func TestParseRecipients(t *testing.T) {
	assert.Equal(t, []string{"Alice Smith", "Bob", "carol"},
		ParseRecipients("@**Alice Smith**, @**Bob|12** carol @**Alice Smith**"))
	assert.Equal(t, []string{"dave"}, ParseRecipients("  *dave*  "))
	assert.Empty(t, ParseRecipients("@** ** , "))
}
