package print

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vk/jform/internal/ctxlog"
	"github.com/vk/jform/internal/handlers"
	"github.com/vk/jform/internal/tracking"
)

func TestPrintTracker(t *testing.T) {
	ctx := ctxlog.Discard(context.Background())
	var buf bytes.Buffer
	h := handlers.New().Register(&Module{})

	multi, _, err := h.Trackers(ctx, handlers.Settings{Out: &buf}, "print")
	require.NoError(t, err)

	ev := tracking.NewEvent(tracking.ServerStaleForm, "signup", 428, map[string]any{"requestId": "r1", "b": 2})
	require.NoError(t, multi.Track(ctx, ev))
	assert.Equal(t, "event serverStaleForm form=\"signup\" status=428 b=\"2\" requestId=\"r1\"\n", buf.String())
}
