package shared

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChangeFeedPublish(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	ctx := context.Background()
	sub := client.Subscribe(ctx, "meridian:authz:events")
	t.Cleanup(func() { _ = sub.Close() })
	_, err := sub.Receive(ctx)
	require.NoError(t, err, "subscription confirmation")

	feed := NewChangeFeed(client, "meridian:authz:events", nil)
	feed.Publish(ctx, ChangeEvent{Kind: EventGrantAssigned, PrincipalID: "p-1", Resource: "reports"})

	select {
	case msg := <-sub.Channel():
		var event ChangeEvent
		require.NoError(t, json.Unmarshal([]byte(msg.Payload), &event))
		assert.Equal(t, EventGrantAssigned, event.Kind)
		assert.Equal(t, "p-1", event.PrincipalID)
		assert.Equal(t, "reports", event.Resource)
		assert.False(t, event.At.IsZero(), "timestamp filled in on publish")
	case <-time.After(2 * time.Second):
		t.Fatal("no change event received")
	}
}

func TestChangeFeedNilSafe(t *testing.T) {
	var feed *ChangeFeed
	feed.Publish(context.Background(), ChangeEvent{Kind: EventRoleCreated})

	feed = NewChangeFeed(nil, "meridian:authz:events", nil)
	feed.Publish(context.Background(), ChangeEvent{Kind: EventRoleCreated})
}
