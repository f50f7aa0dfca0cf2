package player

import (
	"image"
	"sync"
	"time"

	"github.com/hajimehoshi/ebiten/v2"
	"github.com/hajimehoshi/ebiten/v2/text/v2"
)

// Notification displays a temporary message in the bottom-right corner
type Notification struct {
	mu        sync.Mutex
	message   string
	startTime time.Time
	duration  time.Duration

	// Reused between frames, grown when a message needs more room
	bg *ebiten.Image

	now func() time.Time
}

// NewNotification creates an empty notification
func NewNotification() *Notification {
	return &Notification{now: time.Now}
}

// Show displays message for duration
func (n *Notification) Show(message string, duration time.Duration) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.message = message
	n.startTime = n.now()
	n.duration = duration
}

// ShowDefault displays message for 3 seconds
func (n *Notification) ShowDefault(message string) {
	n.Show(message, 3*time.Second)
}

// IsVisible returns whether a message is on screen
func (n *Notification) IsVisible() bool {
	_, ok := n.current()
	return ok
}

// Message returns the visible message, or "" when none is shown
func (n *Notification) Message() string {
	msg, _ := n.current()
	return msg
}

// Clear removes the current message
func (n *Notification) Clear() {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.message = ""
}

func (n *Notification) current() (string, bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.message == "" || n.now().Sub(n.startTime) >= n.duration {
		return "", false
	}
	return n.message, true
}

// Draw renders the message, if any, at the given device scale
func (n *Notification) Draw(screen *ebiten.Image, scale float64) {
	message, ok := n.current()
	if !ok {
		return
	}
	f := fontFace(scale)
	if f == nil {
		return
	}

	bounds := screen.Bounds()
	textWidth, textHeight := text.Measure(message, *f, 0)

	padding := px(baseOverlayPad, scale)
	margin := px(baseOverlayMargin, scale)
	bgWidth := int(textWidth) + padding*2
	bgHeight := int(textHeight) + padding*2
	bgX := bounds.Dx() - bgWidth - margin
	bgY := bounds.Dy() - bgHeight - margin

	if n.bg == nil || n.bg.Bounds().Dx() < bgWidth || n.bg.Bounds().Dy() < bgHeight {
		if n.bg != nil {
			n.bg.Deallocate()
		}
		n.bg = ebiten.NewImage(bgWidth, bgHeight)
	}
	n.bg.Clear()
	bg := overlayBackground
	bg.A = 153
	n.bg.Fill(bg)

	opts := &ebiten.DrawImageOptions{}
	opts.GeoM.Translate(float64(bgX), float64(bgY))
	screen.DrawImage(n.bg.SubImage(image.Rect(0, 0, bgWidth, bgHeight)).(*ebiten.Image), opts)

	textOpts := &text.DrawOptions{}
	textOpts.GeoM.Translate(float64(bgX+padding), float64(bgY+padding))
	textOpts.ColorScale.ScaleWithColor(textColor)
	text.Draw(screen, message, *f, textOpts)
}
