package memory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/deepscout/deepscout/internal/research"
)

func TestPublisherRecordsNotifications(t *testing.T) {
	t.Parallel()

	pub := New()
	ctx := context.Background()

	id, err := pub.Publish(ctx, "run-events", research.RunMetadata{RunID: "golang_gc_tuning", Status: research.RunStatusCompleted})
	require.NoError(t, err)
	require.Equal(t, "memory-1", id)

	id, err = pub.Publish(ctx, "other", "payload")
	require.NoError(t, err)
	require.Equal(t, "memory-2", id)

	all := pub.Notifications()
	require.Len(t, all, 2)

	runEvents := pub.ForTopic("run-events")
	require.Len(t, runEvents, 1)
	meta, ok := runEvents[0].Payload.(research.RunMetadata)
	require.True(t, ok)
	require.Equal(t, "golang_gc_tuning", meta.RunID)
}

func TestNotificationsReturnsCopy(t *testing.T) {
	t.Parallel()

	pub := New()
	_, err := pub.Publish(context.Background(), "run-events", nil)
	require.NoError(t, err)

	got := pub.Notifications()
	got[0].Topic = "mutated"
	require.Equal(t, "run-events", pub.Notifications()[0].Topic)
}
