package broadcast

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gorilla/websocket"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func receive(t *testing.T, ch chan *Envelope) *Envelope {
	t.Helper()
	select {
	case env := <-ch:
		return env
	case <-time.After(2 * time.Second):
		t.Fatal("no event received")
		return nil
	}
}

func TestHubDeliversOnlyToGameSubscribers(t *testing.T) {
	hub := NewHub(zap.NewNop().Sugar())
	mine := make(chan *Envelope, 4)
	other := make(chan *Envelope, 4)
	hub.RegisterSSE("g1", mine)
	hub.RegisterSSE("g2", other)
	assert.Equal(t, 1, hub.Subscribers("g1"))

	payload := map[string]string{"game_id": "g1", "player_id": "bob"}
	require.NoError(t, hub.Publish(context.Background(), "g1", "player-left", payload))

	env := receive(t, mine)
	assert.Equal(t, "player-left", env.Event)
	assert.JSONEq(t, `{"game_id":"g1","player_id":"bob"}`, string(env.Data))
	assert.Empty(t, other)

	hub.UnregisterSSE("g1", mine)
	assert.Equal(t, 0, hub.Subscribers("g1"))
	require.NoError(t, hub.Publish(context.Background(), "g1", "player-left", payload))
}

func TestHubDropsForFullSubscriber(t *testing.T) {
	hub := NewHub(zap.NewNop().Sugar())
	ch := make(chan *Envelope)
	hub.RegisterSSE("g1", ch)

	done := make(chan struct{})
	go func() {
		hub.Deliver(&Envelope{GameID: "g1", Event: "game-move", Data: json.RawMessage(`{}`)})
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Deliver blocked on an unbuffered subscriber")
	}
}

func TestHubWebSocketFrames(t *testing.T) {
	hub := NewHub(zap.NewNop().Sugar())
	upgrader := websocket.Upgrader{}
	registered := make(chan struct{})

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		c := hub.RegisterWS("g1", conn)
		defer hub.UnregisterWS("g1", c)
		close(registered)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	defer srv.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	require.NoError(t, err)
	defer conn.Close()
	<-registered

	require.NoError(t, hub.Publish(context.Background(), "g1", "game-start", map[string]string{"id": "g1"}))

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var got frame
	require.NoError(t, conn.ReadJSON(&got))
	assert.Equal(t, "game-start", got.Event)
	assert.JSONEq(t, `{"id":"g1"}`, string(got.Data))
}

func TestRedisRelayFansOutToLocalHub(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	hub := NewHub(zap.NewNop().Sugar())
	ch := make(chan *Envelope, 4)
	hub.RegisterSSE("g1", ch)

	relay := NewRedisRelay(client, "", hub, zap.NewNop().Sugar())
	ctx, cancel := context.WithCancel(context.Background())
	errc := make(chan error, 1)
	go func() { errc <- relay.Run(ctx) }()

	require.Eventually(t, func() bool {
		return mr.PubSubNumSub(DefaultChannel)[DefaultChannel] == 1
	}, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, relay.Publish(ctx, "g1", "tentative-match", map[string]string{"game_id": "g1"}))
	env := receive(t, ch)
	assert.Equal(t, "g1", env.GameID)
	assert.Equal(t, "tentative-match", env.Event)

	cancel()
	select {
	case err := <-errc:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("relay did not stop")
	}
}
