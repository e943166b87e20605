package ws

import (
	"context"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lanternchat/lantern/internal/chat"
	"github.com/lanternchat/lantern/internal/hub"
)

// startHub runs a real hub server on an ephemeral port and returns the
// websocket URL to dial.
func startHub(t *testing.T, limiter *hub.RateLimiter) string {
	t.Helper()
	gin.SetMode(gin.TestMode)
	ctx, cancel := context.WithCancel(context.Background())

	if limiter == nil {
		limiter = hub.NewRateLimiter(1000, time.Second)
	}
	ctl := hub.NewController(hub.New(), limiter, 32768, 50*time.Millisecond, 32)
	srv := httptest.NewServer(hub.SetupRouter(ctx, "test", ctl))
	t.Cleanup(func() {
		cancel()
		srv.Close()
	})
	return "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
}

func dialTest(t *testing.T, url string) *Client {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	client, err := Dial(ctx, url, 32)
	require.NoError(t, err)
	t.Cleanup(client.Close)
	return client
}

type messageCollector struct {
	mu   sync.Mutex
	msgs []chat.ChannelMessage
}

func (c *messageCollector) record(msg chat.ChannelMessage) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.msgs = append(c.msgs, msg)
}

func (c *messageCollector) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.msgs)
}

func (c *messageCollector) last() chat.ChannelMessage {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.msgs[len(c.msgs)-1]
}

func TestClient_AttachPublishReceive(t *testing.T) {
	url := startHub(t, nil)
	sender := dialTest(t, url)
	receiver := dialTest(t, url)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	out := sender.Channel("general::messages")
	in := receiver.Channel("general::messages")
	require.NoError(t, out.Attach(ctx))
	require.NoError(t, in.Attach(ctx))
	assert.Equal(t, chat.ChannelStateAttached, out.State())

	var got messageCollector
	in.Subscribe(got.record)

	require.NoError(t, out.Publish(ctx, "chat.message", []byte(`{"text":"hello"}`)))

	require.Eventually(t, func() bool { return got.count() == 1 }, 5*time.Second, 5*time.Millisecond)
	assert.Equal(t, "chat.message", got.last().Event)
	assert.JSONEq(t, `{"text":"hello"}`, string(got.last().Data))
}

func TestClient_PublisherDoesNotEchoToItself(t *testing.T) {
	url := startHub(t, nil)
	client := dialTest(t, url)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	ch := client.Channel("general::messages")
	require.NoError(t, ch.Attach(ctx))

	var got messageCollector
	ch.Subscribe(got.record)

	require.NoError(t, ch.Publish(ctx, "chat.message", []byte(`{"text":"solo"}`)))
	time.Sleep(50 * time.Millisecond)
	assert.Zero(t, got.count())
}

func TestClient_DetachStopsDelivery(t *testing.T) {
	url := startHub(t, nil)
	sender := dialTest(t, url)
	receiver := dialTest(t, url)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	out := sender.Channel("general::messages")
	in := receiver.Channel("general::messages")
	require.NoError(t, out.Attach(ctx))
	require.NoError(t, in.Attach(ctx))

	var got messageCollector
	in.Subscribe(got.record)

	require.NoError(t, in.Detach(ctx))
	assert.Equal(t, chat.ChannelStateDetached, in.State())

	require.NoError(t, out.Publish(ctx, "chat.message", []byte(`{"text":"after detach"}`)))
	time.Sleep(50 * time.Millisecond)
	assert.Zero(t, got.count())
}

func TestClient_PublishRateLimited(t *testing.T) {
	url := startHub(t, hub.NewRateLimiter(1, time.Minute))
	client := dialTest(t, url)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	ch := client.Channel("general::messages")
	require.NoError(t, ch.Attach(ctx))

	require.NoError(t, ch.Publish(ctx, "chat.message", []byte(`{"n":1}`)))
	err := ch.Publish(ctx, "chat.message", []byte(`{"n":2}`))
	assert.Equal(t, chat.ErrorCode(42910), chat.CodeOf(err))
}

func TestClient_OccupancyEventsPushedOnAttach(t *testing.T) {
	url := startHub(t, nil)
	watcher := dialTest(t, url)
	member := dialTest(t, url)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	occupancy := watcher.Channel("general::occupancy")
	require.NoError(t, occupancy.Attach(ctx))

	var got messageCollector
	occupancy.Subscribe(got.record)

	require.NoError(t, member.Channel("general::messages").Attach(ctx))

	// the watcher's own attach may also have produced a count-0 event, so
	// wait for the one that reflects the member's subscription
	require.Eventually(t, func() bool {
		return got.count() >= 1 && strings.Contains(string(got.last().Data), `"connections":1`)
	}, 5*time.Second, 5*time.Millisecond)
	assert.Equal(t, "occupancy", got.last().Event)
	assert.JSONEq(t, `{"connections":1,"presenceMembers":0}`, string(got.last().Data))
}

func TestClient_RoomLifecycleOverTransport(t *testing.T) {
	url := startHub(t, nil)
	client := dialTest(t, url)

	rooms := chat.NewRooms(client, "client-a", 0, 0)
	room, err := rooms.Get(context.Background(), "general", chat.RoomOptions{Presence: true, Occupancy: true})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	require.NoError(t, room.Attach(ctx))
	assert.Equal(t, chat.RoomStatusAttached, room.Status())

	presence, err := room.Presence()
	require.NoError(t, err)
	require.NoError(t, presence.Enter(ctx, "here"))

	require.NoError(t, rooms.Release(ctx, "general"))
	assert.Equal(t, chat.RoomStatusReleased, room.Status())
}

func TestClient_RequestAfterCloseFails(t *testing.T) {
	url := startHub(t, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	client, err := Dial(ctx, url, 32)
	require.NoError(t, err)

	ch := client.Channel("general::messages")
	require.NoError(t, ch.Attach(ctx))

	client.Close()
	// detach settles locally once the transport is gone
	require.NoError(t, ch.Detach(ctx))
	assert.Equal(t, chat.ChannelStateDetached, ch.State())
}
