package gemini

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/bytedance/sonic"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/room4-2/tutorvoice/audio"
	"github.com/room4-2/tutorvoice/messages"
)

var upgrader = websocket.Upgrader{}

// fakeService accepts one connection and hands it to the test.
func fakeService(t *testing.T) (*httptest.Server, <-chan *websocket.Conn) {
	t.Helper()
	conns := make(chan *websocket.Conn, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		conns <- conn
	}))
	t.Cleanup(srv.Close)
	return srv, conns
}

func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http") + "/live?key=secret"
}

type recorder struct {
	mu     sync.Mutex
	events []messages.ServerEvent
	errs   []error
}

func (r *recorder) handlers() Handlers {
	return Handlers{
		OnEvent: func(ev messages.ServerEvent) {
			r.mu.Lock()
			r.events = append(r.events, ev)
			r.mu.Unlock()
		},
		OnError: func(err error) {
			r.mu.Lock()
			r.errs = append(r.errs, err)
			r.mu.Unlock()
		},
	}
}

func (r *recorder) snapshot() ([]messages.ServerEvent, []error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]messages.ServerEvent(nil), r.events...), append([]error(nil), r.errs...)
}

func TestWSChannel_SendsInOrderAndDeliversEvents(t *testing.T) {
	srv, conns := fakeService(t)
	rec := &recorder{}

	ch := NewWSChannel()
	require.NoError(t, ch.Open(context.Background(), wsURL(srv), rec.handlers()))
	defer ch.Close()
	assert.True(t, ch.IsOpen())

	server := <-conns
	defer server.Close()

	require.NoError(t, ch.Send(messages.NewSetup(messages.SetupOptions{Model: "models/m", Voice: "Zephyr"})))
	for i := 0; i < 3; i++ {
		require.NoError(t, ch.Send(messages.NewRealtimeInput(audio.Encode([]float32{float32(i) / 10}, 16000))))
	}

	_, first, err := server.ReadMessage()
	require.NoError(t, err)
	var setup map[string]interface{}
	require.NoError(t, sonic.Unmarshal(first, &setup))
	assert.Contains(t, setup, "setup")

	for i := 0; i < 3; i++ {
		_, data, err := server.ReadMessage()
		require.NoError(t, err)
		var msg messages.ClientMessage
		require.NoError(t, sonic.Unmarshal(data, &msg))
		require.NotNil(t, msg.RealtimeInput)
		want := audio.Encode([]float32{float32(i) / 10}, 16000)
		assert.Equal(t, want, msg.RealtimeInput.MediaChunks[0])
	}

	require.NoError(t, server.WriteMessage(websocket.TextMessage, []byte(`{"serverContent":{"inputTranscription":{"text":"hello"}}}`)))
	require.NoError(t, server.WriteMessage(websocket.TextMessage, []byte(`not json`)))
	require.NoError(t, server.WriteMessage(websocket.BinaryMessage, []byte(`{"serverContent":{"turnComplete":true}}`)))

	require.Eventually(t, func() bool {
		events, _ := rec.snapshot()
		return len(events) == 2
	}, time.Second, 5*time.Millisecond)

	events, errs := rec.snapshot()
	assert.Equal(t, []messages.ServerEvent{
		messages.TranscriptEvent{Text: "hello"},
		messages.TurnCompleteEvent{},
	}, events)
	assert.Empty(t, errs)
}

func TestWSChannel_SendWhenNotOpen(t *testing.T) {
	ch := NewWSChannel()
	assert.False(t, ch.IsOpen())
	assert.ErrorIs(t, ch.Send(messages.NewRealtimeInput()), ErrNotOpen)

	assert.NoError(t, ch.Close())
	assert.NoError(t, ch.Close())
	assert.ErrorIs(t, ch.Open(context.Background(), "ws://127.0.0.1:1", Handlers{}), ErrNotOpen)
}

func TestWSChannel_CloseIsQuietAndIdempotent(t *testing.T) {
	srv, conns := fakeService(t)
	rec := &recorder{}

	ch := NewWSChannel()
	require.NoError(t, ch.Open(context.Background(), wsURL(srv), rec.handlers()))
	server := <-conns
	defer server.Close()

	require.NoError(t, ch.Close())
	assert.NoError(t, ch.Close())
	assert.False(t, ch.IsOpen())
	assert.ErrorIs(t, ch.Send(messages.NewRealtimeInput()), ErrNotOpen)

	time.Sleep(50 * time.Millisecond)
	_, errs := rec.snapshot()
	assert.Empty(t, errs)
}

func TestWSChannel_ServerCloseReportsError(t *testing.T) {
	srv, conns := fakeService(t)
	rec := &recorder{}

	ch := NewWSChannel()
	require.NoError(t, ch.Open(context.Background(), wsURL(srv), rec.handlers()))
	defer ch.Close()

	server := <-conns
	require.NoError(t, server.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "API key not valid")))
	server.Close()

	require.Eventually(t, func() bool {
		_, errs := rec.snapshot()
		return len(errs) == 1
	}, time.Second, 5*time.Millisecond)

	_, errs := rec.snapshot()
	assert.Contains(t, errs[0].Error(), "API key not valid")
	assert.False(t, ch.IsOpen())
}

func TestWSChannel_DialFailure(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()

	err := NewWSChannel().Open(context.Background(), wsURL(srv), Handlers{})
	require.Error(t, err)
	assert.NotContains(t, err.Error(), "secret")
}

func TestRedact(t *testing.T) {
	assert.Equal(t, "wss://host/path", redact("wss://host/path?key=abc"))
}
