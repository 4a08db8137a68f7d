package ws

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zhouzirui/streamchat/internal/model/chat"
	chatservice "github.com/zhouzirui/streamchat/internal/service/chat"
)

type echoSource struct{}

func (echoSource) Stream(_ context.Context, prompt string, onChunk func(string) error) error {
	for _, word := range strings.Fields(prompt) {
		if err := onChunk(word); err != nil {
			return err
		}
	}
	return nil
}

type frame struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

func dial(t *testing.T) (*websocket.Conn, *chatservice.Engine) {
	t.Helper()
	engine, err := chatservice.NewEngine(echoSource{}, chatservice.Options{})
	require.NoError(t, err)

	r := chi.NewRouter()
	New(context.Background(), engine).RegisterRoutes(r)
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn, engine
}

func read(t *testing.T, conn *websocket.Conn) frame {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	var f frame
	require.NoError(t, conn.ReadJSON(&f))
	return f
}

func TestWebSocketSubmitStreamsEvents(t *testing.T) {
	conn, engine := dial(t)

	snapshot := read(t, conn)
	require.Equal(t, "snapshot", snapshot.Type)

	require.NoError(t, conn.WriteJSON(map[string]string{"type": "submit", "text": "a b c"}))

	// accepted comes from the reader and may overtake or trail the events.
	var (
		types    []string
		last     chat.Event
		accepted bool
	)
	for !accepted || last.Kind != chat.EventIdle {
		f := read(t, conn)
		types = append(types, f.Type)
		if f.Type == "accepted" {
			accepted = true
			continue
		}
		require.NoError(t, json.Unmarshal(f.Data, &last))
	}

	assert.Contains(t, types, "appended")
	assert.Contains(t, types, "delta")
	assert.Equal(t, "abc", last.Content)
	assert.Equal(t, "abc", engine.Transcript()[1].Content)
}

func TestWebSocketRejectsBlankSubmit(t *testing.T) {
	conn, engine := dial(t)
	read(t, conn)

	require.NoError(t, conn.WriteJSON(map[string]string{"type": "submit", "text": "  "}))

	f := read(t, conn)
	require.Equal(t, "rejected", f.Type)
	var body map[string]string
	require.NoError(t, json.Unmarshal(f.Data, &body))
	assert.Equal(t, "empty", body["reason"])
	assert.Empty(t, engine.Transcript())
}

func TestWebSocketUnknownType(t *testing.T) {
	conn, _ := dial(t)
	read(t, conn)

	require.NoError(t, conn.WriteJSON(map[string]string{"type": "dance"}))
	assert.Equal(t, "rejected", read(t, conn).Type)
}
