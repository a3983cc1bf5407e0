// Package console renders the live session status as a single terminal line:
// connection state, a volume meter, the memory-saved indicator and the error
// banner.
package console

import (
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/MrWong99/aura/internal/live"
	"github.com/MrWong99/aura/internal/notify"
)

var _ notify.Notifier = (*Console)(nil)

// Session is the part of the live controller the console reads.
type Session interface {
	State() live.State
	Muted() bool
}

var (
	green  = lipgloss.AdaptiveColor{Light: "#1C8760", Dark: "#34D399"}
	indigo = lipgloss.AdaptiveColor{Light: "#4338CA", Dark: "#A5B4FC"}
	grey   = lipgloss.AdaptiveColor{Light: "#656565", Dark: "#7D7D7D"}
	red    = lipgloss.AdaptiveColor{Light: "#B91C1C", Dark: "#F87171"}

	nameStyle      = lipgloss.NewStyle().Bold(true)
	connectedStyle = lipgloss.NewStyle().Foreground(green)
	waitingStyle   = lipgloss.NewStyle().Foreground(indigo)
	offlineStyle   = lipgloss.NewStyle().Foreground(grey)
	meterStyle     = lipgloss.NewStyle().Foreground(indigo)
	memoryStyle    = lipgloss.NewStyle().Foreground(indigo).Bold(true)
	errorStyle     = lipgloss.NewStyle().Foreground(red).Bold(true)
	mutedStyle     = lipgloss.NewStyle().Foreground(red)
)

const (
	meterWidth = 20

	// redrawInterval throttles redraws caused by volume updates.
	redrawInterval = 50 * time.Millisecond

	memoryLabel = "Memory Saved"
)

// Console is a [notify.Notifier] that keeps a status line up to date.
type Console struct {
	out     io.Writer
	botName string
	session Session

	banner    *notify.Transient
	indicator *notify.Transient

	mu       sync.Mutex
	volume   float64
	lastDraw time.Time
}

// New returns a Console writing to out. session may be nil until the
// controller exists; see [Console.Attach].
func New(out io.Writer, botName string, session Session) *Console {
	c := &Console{out: out, botName: botName, session: session}
	c.banner = notify.NewBanner(c.Redraw)
	c.indicator = notify.NewIndicator(c.Redraw)
	return c
}

// SetName changes the displayed companion name.
func (c *Console) SetName(name string) {
	c.mu.Lock()
	c.botName = name
	c.mu.Unlock()
}

// Attach sets the session whose state is displayed.
func (c *Console) Attach(s Session) {
	c.mu.Lock()
	c.session = s
	c.mu.Unlock()
}

// Volume implements [notify.Notifier].
func (c *Console) Volume(v float64) {
	c.mu.Lock()
	c.volume = v
	due := time.Since(c.lastDraw) >= redrawInterval
	c.mu.Unlock()
	if due {
		c.Redraw()
	}
}

// Closed implements [notify.Notifier].
func (c *Console) Closed() {
	c.mu.Lock()
	c.volume = 0
	c.mu.Unlock()
	c.Redraw()
}

// MemoryUpdated implements [notify.Notifier].
func (c *Console) MemoryUpdated() { c.indicator.Show(memoryLabel) }

// Error implements [notify.Notifier]. The banner shows one message at a time.
func (c *Console) Error(msg string) { c.banner.Show(msg) }

// Redraw rewrites the status line in place.
func (c *Console) Redraw() {
	line := c.Render()
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lastDraw = time.Now()
	fmt.Fprint(c.out, "\r\x1b[2K"+line)
}

// Render returns the status line without cursor control.
func (c *Console) Render() string {
	c.mu.Lock()
	vol := c.volume
	sess := c.session
	name := c.botName
	c.mu.Unlock()

	state := live.StateDisconnected
	muted := false
	if sess != nil {
		state = sess.State()
		muted = sess.Muted()
	}

	parts := []string{nameStyle.Render(name), stateLabel(state)}
	if state != live.StateDisconnected {
		parts = append(parts, meterStyle.Render(Meter(vol, meterWidth)))
	}
	if muted && state == live.StateConnected {
		parts = append(parts, mutedStyle.Render("muted"))
	}
	if v, ok := c.indicator.Current(); ok {
		parts = append(parts, memoryStyle.Render(v))
	}
	if v, ok := c.banner.Current(); ok {
		parts = append(parts, errorStyle.Render("! "+v))
	}
	return strings.Join(parts, "  ")
}

func stateLabel(s live.State) string {
	switch s {
	case live.StateConnected:
		return connectedStyle.Render("● Connected")
	case live.StateConnecting:
		return waitingStyle.Render("● Waking up...")
	default:
		return offlineStyle.Render("○ Offline")
	}
}

// Meter draws v (clamped to [0, 1]) as a bar of width cells.
func Meter(v float64, width int) string {
	v = min(max(v, 0), 1)
	filled := int(v*float64(width) + 0.5)
	return strings.Repeat("█", filled) + strings.Repeat("░", width-filled)
}
