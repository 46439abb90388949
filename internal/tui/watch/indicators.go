package watch

import (
	"strings"
	"time"
)

// Ticker rotates through frames to show the system is alive.
// Stops rotating if no ticks arrive (indicates freeze).
type Ticker struct {
	frames   []string
	index    int
	lastTick time.Time
}

func NewTicker() Ticker {
	return Ticker{
		frames:   []string{"⟲", "⟳"},
		lastTick: time.Now(),
	}
}

func (t *Ticker) Tick() {
	t.index = (t.index + 1) % len(t.frames)
	t.lastTick = time.Now()
}

func (t Ticker) Current() string {
	return t.frames[t.index]
}

// Pulse shows feed activity with a decaying dot pattern.
// Lights up on events, fades over time.
type Pulse struct {
	dots      int
	lastEvent time.Time
}

func NewPulse() Pulse {
	return Pulse{}
}

func (s *Pulse) OnEvent() {
	s.dots = 5
	s.lastEvent = time.Now()
}

// Decay fades the pulse dots based on time since last event.
func (s *Pulse) Decay() {
	if s.dots == 0 {
		return
	}
	elapsed := time.Since(s.lastEvent)
	switch {
	case elapsed > 10*time.Second:
		s.dots = 0
	case elapsed > 8*time.Second:
		s.dots = 1
	case elapsed > 6*time.Second:
		s.dots = 2
	case elapsed > 4*time.Second:
		s.dots = 3
	case elapsed > 2*time.Second:
		s.dots = 4
	}
}

func (s Pulse) Render(st Styles) string {
	var result strings.Builder
	for i := range 5 {
		if i < s.dots {
			result.WriteString(st.PulseOn.Render("●"))
		} else {
			result.WriteString(st.PulseOff.Render("○"))
		}
	}
	return result.String()
}

func (s Pulse) LastEvent() time.Time {
	return s.lastEvent
}
