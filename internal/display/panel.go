// Package display provides a virtual LED panel: the current frame is kept in
// memory and streamed to websocket viewers.
package display

import (
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/lucasb-eyer/go-colorful"
	"github.com/rs/zerolog/log"

	"github.com/thatsimonsguy/riddlematrix/internal/glyph"
)

// Frame is what the panel currently shows.
type Frame struct {
	Active     bool           `json:"active"`
	Trigger    int            `json:"trigger"`
	Bitmap     glyph.BitmapID `json:"bitmap,omitempty"`
	Color      string         `json:"color,omitempty"`
	Brightness int32          `json:"brightness"`
	UpdatedAt  time.Time      `json:"updated_at"`
}

type Panel struct {
	mu    sync.RWMutex
	frame Frame
	hub   *Hub
	clock clockwork.Clock
}

func NewPanel(clock clockwork.Clock) *Panel {
	p := &Panel{clock: clock}
	p.hub = NewHub(func() Message { return NewMessage("frame", p.Frame()) })
	return p
}

func (p *Panel) Hub() *Hub { return p.hub }

func (p *Panel) Frame() Frame {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.frame
}

func (p *Panel) update(f func(*Frame)) {
	p.mu.Lock()
	f(&p.frame)
	p.frame.UpdatedAt = p.clock.Now()
	frame := p.frame
	p.mu.Unlock()
	p.hub.Broadcast(NewMessage("frame", frame))
}

func (p *Panel) Draw(index int, bitmap glyph.BitmapID, color colorful.Color) error {
	p.update(func(f *Frame) {
		f.Active = true
		f.Trigger = index + 1
		f.Bitmap = bitmap
		f.Color = color.Hex()
	})
	log.Debug().Str("bitmap", string(bitmap)).Str("color", color.Hex()).Msg("Panel drawn")
	return nil
}

func (p *Panel) Clear() error {
	p.update(func(f *Frame) {
		f.Active = false
		f.Trigger = 0
		f.Bitmap = ""
		f.Color = ""
	})
	return nil
}

func (p *Panel) SetBrightness(level int32) {
	if p.Frame().Brightness == level {
		return
	}
	p.update(func(f *Frame) { f.Brightness = level })
}
