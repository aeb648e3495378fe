package tracking

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vk/jform/internal/ctxlog"
)

func TestNewEvent(t *testing.T) {
	ev := NewEvent(SubmitSuccess, "signup", 200, map[string]any{"k": "v"})
	_, err := uuid.Parse(ev.ID)
	require.NoError(t, err)
	assert.Equal(t, "signup", ev.Form)
	assert.False(t, ev.Time.IsZero())

	other := NewEvent(SubmitSuccess, "signup", 200, nil)
	assert.NotEqual(t, ev.ID, other.ID)
}

func TestMultiCallsEveryTracker(t *testing.T) {
	ctx := ctxlog.Discard(context.Background())
	first, second := &Recorder{}, &Recorder{}
	boom := Func(func(context.Context, Event) error { return errors.New("boom") })

	err := Multi{first, boom, nil, second, Logger{}}.Track(ctx, NewEvent(ServerStaleForm, "f", 428, nil))
	assert.ErrorContains(t, err, "boom")
	assert.Equal(t, []string{ServerStaleForm}, first.Names())
	assert.Equal(t, 1, second.Count(ServerStaleForm))
	assert.Len(t, second.Events(), 1)
}
