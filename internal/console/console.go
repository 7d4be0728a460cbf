// Package console buffers bytes arriving on the serial trigger line so the
// control loop can poll them without blocking.
package console

import (
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/rs/zerolog/log"
	"go.bug.st/serial"
)

const DefaultBaudRate = 19200

// Stream drains a reader in the background. Pending and ReadByte never block.
type Stream struct {
	mu   sync.Mutex
	buf  []byte
	done chan struct{}
}

// NewStream starts reading r until it returns an error.
func NewStream(r io.Reader) *Stream {
	s := &Stream{done: make(chan struct{})}
	go s.pump(r)
	return s
}

func (s *Stream) pump(r io.Reader) {
	defer close(s.done)
	chunk := make([]byte, 64)
	for {
		n, err := r.Read(chunk)
		if n > 0 {
			s.mu.Lock()
			s.buf = append(s.buf, chunk[:n]...)
			s.mu.Unlock()
		}
		if err != nil {
			if !errors.Is(err, io.EOF) && !errors.Is(err, io.ErrClosedPipe) {
				log.Warn().Err(err).Msg("Console read failed")
			}
			return
		}
	}
}

func (s *Stream) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.buf)
}

// ReadByte pops the oldest buffered byte. ok is false when nothing is buffered.
func (s *Stream) ReadByte() (b byte, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.buf) == 0 {
		return 0, false
	}
	b = s.buf[0]
	s.buf = s.buf[1:]
	return b, true
}

// Done is closed once the underlying reader is exhausted.
func (s *Stream) Done() <-chan struct{} { return s.done }

// OpenSerial opens a serial port in 8N1 mode.
func OpenSerial(port string, baud int) (serial.Port, error) {
	if baud == 0 {
		baud = DefaultBaudRate
	}
	p, err := serial.Open(port, &serial.Mode{
		BaudRate: baud,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	})
	if err != nil {
		return nil, fmt.Errorf("open serial port %s: %w", port, err)
	}
	log.Info().Str("port", port).Int("baud", baud).Msg("Serial console opened")
	return p, nil
}
