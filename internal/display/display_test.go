package display

import (
	"context"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"
	"github.com/lucasb-eyer/go-colorful"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type wireMessage struct {
	Type    string `json:"type"`
	Payload Frame  `json:"payload"`
}

func TestPanelTracksFrame(t *testing.T) {
	p := NewPanel(clockwork.NewFakeClock())

	require.NoError(t, p.Draw(1, "letter_K", colorful.Color{R: 1}))
	f := p.Frame()
	assert.True(t, f.Active)
	assert.Equal(t, 2, f.Trigger)
	assert.Equal(t, "#ff0000", f.Color)

	require.NoError(t, p.Clear())
	f = p.Frame()
	assert.False(t, f.Active)
	assert.Empty(t, f.Bitmap)
}

func TestBroadcastDoesNotBlockWithoutRunningHub(t *testing.T) {
	p := NewPanel(clockwork.NewFakeClock())

	done := make(chan struct{})
	go func() {
		for i := 0; i < 100; i++ {
			_ = p.Draw(0, "sun", colorful.Color{})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Draw blocked on a stalled hub")
	}
}

func TestViewerReceivesGreetingAndUpdates(t *testing.T) {
	p := NewPanel(clockwork.NewFakeClock())
	p.SetBrightness(80)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go p.Hub().Run(ctx)

	srv := httptest.NewServer(p.Hub())
	defer srv.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	require.NoError(t, err)
	defer conn.Close()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))

	var msg wireMessage
	require.NoError(t, conn.ReadJSON(&msg))
	assert.Equal(t, "frame", msg.Type)
	assert.Equal(t, int32(80), msg.Payload.Brightness)
	assert.False(t, msg.Payload.Active)

	require.Eventually(t, func() bool { return p.Hub().Clients() == 1 }, time.Second, 5*time.Millisecond)

	require.NoError(t, p.Draw(0, "riddler", colorful.Color{B: 1}))
	// A frame queued before the viewer registered may arrive first.
	for !msg.Payload.Active {
		require.NoError(t, conn.ReadJSON(&msg))
	}
	assert.Equal(t, "riddler", string(msg.Payload.Bitmap))
	assert.Equal(t, "#0000ff", msg.Payload.Color)
}
