package player

import (
	"fmt"
	"image/color"

	"github.com/ebitenui/ebitenui"
	"github.com/ebitenui/ebitenui/image"
	"github.com/ebitenui/ebitenui/widget"
	"github.com/hajimehoshi/ebiten/v2"
)

// hudInfo is what the info panel shows for one frame.
type hudInfo struct {
	Title    string
	Clip     int
	Clips    int
	Effect   string
	Phase    string
	Progress float64
	Clock    string
	Total    string
	Paused   bool
	Tier     string
	Size     string
	Prepared int
	Fallback int
	HardCuts int
	Missing  int
}

// hud is the toggleable info panel in the top-left corner.
type hud struct {
	ui    *ebitenui.UI
	scale float64

	title  *widget.Text
	clip   *widget.Text
	effect *widget.Text
	clock  *widget.Text
	output *widget.Text
	stats  *widget.Text
}

// newHUD builds the panel for the given device scale. It returns nil when
// no font is available.
func newHUD(scale float64) *hud {
	f := fontFace(scale)
	if f == nil {
		return nil
	}
	h := &hud{scale: scale}

	root := widget.NewContainer(
		widget.ContainerOpts.Layout(widget.NewAnchorLayout(
			widget.AnchorLayoutOpts.Padding(widget.NewInsetsSimple(px(baseOverlayMargin, scale))),
		)),
	)

	bg := overlayBackground
	bg.A = 200
	panel := widget.NewContainer(
		widget.ContainerOpts.BackgroundImage(image.NewNineSliceColor(bg)),
		widget.ContainerOpts.Layout(widget.NewRowLayout(
			widget.RowLayoutOpts.Direction(widget.DirectionVertical),
			widget.RowLayoutOpts.Padding(widget.NewInsetsSimple(px(baseOverlayPad, scale))),
			widget.RowLayoutOpts.Spacing(px(4, scale)),
		)),
		widget.ContainerOpts.WidgetOpts(
			widget.WidgetOpts.LayoutData(widget.AnchorLayoutData{
				HorizontalPosition: widget.AnchorLayoutPositionStart,
				VerticalPosition:   widget.AnchorLayoutPositionStart,
			}),
		),
	)

	line := func(c color.Color) *widget.Text {
		t := widget.NewText(widget.TextOpts.Text("", f, c))
		panel.AddChild(t)
		return t
	}
	h.title = line(accentColor)
	h.clip = line(textColor)
	h.effect = line(textColor)
	h.clock = line(textColor)
	h.output = line(textSecondary)
	h.stats = line(textSecondary)

	root.AddChild(panel)
	h.ui = &ebitenui.UI{Container: root}
	return h
}

// Set updates the panel text.
func (h *hud) Set(info hudInfo) {
	lines := hudLines(info)
	h.title.Label = lines[0]
	h.clip.Label = lines[1]
	h.effect.Label = lines[2]
	h.clock.Label = lines[3]
	h.output.Label = lines[4]
	h.stats.Label = lines[5]
}

// Update lets the UI handle input and layout.
func (h *hud) Update() {
	h.ui.Update()
}

// Draw renders the panel.
func (h *hud) Draw(screen *ebiten.Image) {
	h.ui.Draw(screen)
}

// hudLines formats the panel rows.
func hudLines(info hudInfo) [6]string {
	title := info.Title
	if title == "" {
		title = "Untitled"
	}
	effect := info.Effect
	if effect == "" {
		effect = "none"
	}
	state := "playing"
	if info.Paused {
		state = "paused"
	}
	return [6]string{
		title,
		fmt.Sprintf("Clip %d/%d", info.Clip+1, info.Clips),
		fmt.Sprintf("Effect %s (%s %.0f%%)", effect, info.Phase, info.Progress*100),
		fmt.Sprintf("%s / %s %s", info.Clock, info.Total, state),
		fmt.Sprintf("%s %s, %d/%d prepared", info.Size, info.Tier, info.Prepared, info.Clips),
		fmt.Sprintf("fallbacks %d, hard cuts %d, missing %d", info.Fallback, info.HardCuts, info.Missing),
	}
}
