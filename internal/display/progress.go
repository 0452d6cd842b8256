package display

import (
	"fmt"
	"io"
	"sync"
	"time"
)

// spinner implements SpinnerHandle
type spinner struct {
	message  string
	style    SpinnerStyle
	active   bool
	writer   io.Writer
	colorSys ColorSystem
	theme    ColorTheme
	stopCh   chan struct{}
	doneCh   chan struct{}
	mu       sync.RWMutex
}

func newSpinner(message string, style SpinnerStyle, writer io.Writer, colorSys ColorSystem, theme ColorTheme) *spinner {
	return &spinner{
		message:  message,
		style:    style,
		writer:   writer,
		colorSys: colorSys,
		theme:    theme,
	}
}

func (s *spinner) IsActive() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.active
}

func (s *spinner) start() {
	s.mu.Lock()
	if s.active {
		s.mu.Unlock()
		return
	}
	s.active = true
	s.stopCh = make(chan struct{})
	s.doneCh = make(chan struct{})
	s.mu.Unlock()

	go s.animate()
}

// stop terminates the animation and prints finalMessage on a clean line
func (s *spinner) stop(finalMessage string) {
	s.mu.Lock()
	if !s.active {
		s.mu.Unlock()
		return
	}
	s.active = false
	close(s.stopCh)
	s.mu.Unlock()

	<-s.doneCh

	s.clearLine()
	if finalMessage != "" {
		fmt.Fprintln(s.writer, finalMessage)
	}
}

func (s *spinner) animate() {
	defer close(s.doneCh)

	ticker := time.NewTicker(time.Duration(s.style.Delay) * time.Millisecond)
	defer ticker.Stop()

	for frame := 0; ; frame++ {
		select {
		case <-s.stopCh:
			return
		case <-ticker.C:
			s.mu.RLock()
			glyph := s.style.Frames[frame%len(s.style.Frames)]
			message := s.message
			s.mu.RUnlock()

			if s.colorSys != nil {
				glyph = s.colorSys.Colorize(glyph, s.theme.Primary)
			}
			s.clearLine()
			fmt.Fprintf(s.writer, "%s %s", glyph, message)
		}
	}
}

func (s *spinner) clearLine() {
	fmt.Fprint(s.writer, "\r\033[K")
}

// noOpSpinner stands in when output is not an interactive terminal
type noOpSpinner struct{}

func (noOpSpinner) IsActive() bool { return false }
