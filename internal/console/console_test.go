package console

import (
	"io"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStreamBuffersInOrder(t *testing.T) {
	s := NewStream(strings.NewReader("12x"))
	<-s.Done()

	assert.Equal(t, 3, s.Pending())
	for _, want := range []byte("12x") {
		b, ok := s.ReadByte()
		require.True(t, ok)
		assert.Equal(t, want, b)
	}
	_, ok := s.ReadByte()
	assert.False(t, ok)
	assert.Zero(t, s.Pending())
}

func TestStreamPendingTracksLiveInput(t *testing.T) {
	r, w := io.Pipe()
	s := NewStream(r)
	assert.Zero(t, s.Pending())

	go func() { _, _ = w.Write([]byte("3")) }()
	assert.Eventually(t, func() bool { return s.Pending() == 1 }, time.Second, time.Millisecond)

	require.NoError(t, w.Close())
	select {
	case <-s.Done():
	case <-time.After(time.Second):
		t.Fatal("stream did not stop after writer closed")
	}
}
