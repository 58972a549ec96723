package render

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/png"
	"strings"

	"github.com/park285/chess-insights-board/internal/chess"
	"github.com/srwiley/oksvg"
	"github.com/srwiley/rasterx"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

const (
	defaultBarWidth  = 32
	defaultBarHeight = 400
	maxBarSide       = 2048
	labelPadding     = 4
)

var (
	whiteShareColor = color.RGBA{R: 0xf0, G: 0xf0, B: 0xf0, A: 0xff}
	blackShareColor = color.RGBA{R: 0x2b, G: 0x2b, B: 0x2b, A: 0xff}
)

type BarOptions struct {
	Width  int
	Height int
	// Flipped puts White's share at the top, for boards viewed from Black's side.
	Flipped bool
	// HideLabel skips the evaluation text.
	HideLabel bool
}

func (o BarOptions) normalized() BarOptions {
	if o.Width <= 0 {
		o.Width = defaultBarWidth
	}
	if o.Height <= 0 {
		o.Height = defaultBarHeight
	}
	o.Width = min(o.Width, maxBarSide)
	o.Height = min(o.Height, maxBarSide)
	return o
}

// EvalBarPNG draws the evaluation bar for ev. A nil ev draws the neutral bar.
func EvalBarPNG(ctx context.Context, ev *chess.Evaluation, opts BarOptions) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	opts = opts.normalized()

	pct := 50.0
	label := ""
	if ev != nil {
		pct = ev.Percentage()
		label = ev.Text()
	}
	whiteH := int(float64(opts.Height)*pct/100 + 0.5)

	icon, err := oksvg.ReadIconStream(strings.NewReader(barSVG(opts, whiteH)))
	if err != nil {
		return nil, fmt.Errorf("parse bar svg: %w", err)
	}
	icon.SetTarget(0, 0, float64(opts.Width), float64(opts.Height))

	img := image.NewRGBA(image.Rect(0, 0, opts.Width, opts.Height))
	draw.Draw(img, img.Bounds(), image.NewUniform(color.Transparent), image.Point{}, draw.Src)
	scanner := rasterx.NewScannerGV(opts.Width, opts.Height, img, img.Bounds())
	icon.Draw(rasterx.NewDasher(opts.Width, opts.Height, scanner), 1.0)

	if !opts.HideLabel && label != "" {
		drawLabel(img, label, pct, opts)
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("encode png: %w", err)
	}
	return buf.Bytes(), nil
}

func barSVG(opts BarOptions, whiteH int) string {
	whiteY := opts.Height - whiteH
	if opts.Flipped {
		whiteY = 0
	}
	var b strings.Builder
	fmt.Fprintf(&b, `<svg xmlns="http://www.w3.org/2000/svg" width="%d" height="%d" viewBox="0 0 %d %d">`,
		opts.Width, opts.Height, opts.Width, opts.Height)
	fmt.Fprintf(&b, `<rect x="0" y="0" width="%d" height="%d" fill="%s"/>`, opts.Width, opts.Height, hex(blackShareColor))
	if whiteH > 0 {
		fmt.Fprintf(&b, `<rect x="0" y="%d" width="%d" height="%d" fill="%s"/>`, whiteY, opts.Width, whiteH, hex(whiteShareColor))
	}
	b.WriteString(`</svg>`)
	return b.String()
}

// drawLabel prints the text inside the leading side's share, at its outer end.
func drawLabel(img *image.RGBA, text string, pct float64, opts BarOptions) {
	face := basicfont.Face7x13
	drawer := &font.Drawer{Dst: img, Face: face}
	metrics := face.Metrics()
	textH := metrics.Ascent.Ceil() + metrics.Descent.Ceil()

	whiteLeads := pct >= 50
	atBottom := whiteLeads != opts.Flipped
	var top int
	if atBottom {
		top = opts.Height - labelPadding - textH
	} else {
		top = labelPadding
	}
	rect := image.Rect(0, top, opts.Width, top+textH)

	clr := color.Color(blackShareColor)
	if !whiteLeads {
		clr = whiteShareColor
	}
	drawCenteredString(drawer, rect, text, clr)
}

func drawCenteredString(drawer *font.Drawer, rect image.Rectangle, text string, clr color.Color) {
	metrics := drawer.Face.Metrics()
	width := drawer.MeasureString(text).Round()
	x := rect.Min.X + (rect.Dx()-width)/2
	if x < rect.Min.X {
		x = rect.Min.X
	}
	baseline := rect.Min.Y + (rect.Dy()+metrics.Ascent.Ceil()-metrics.Descent.Ceil())/2
	drawer.Src = image.NewUniform(clr)
	drawer.Dot = fixed.P(x, baseline)
	drawer.DrawString(text)
}

func hex(c color.RGBA) string {
	return fmt.Sprintf("#%02x%02x%02x", c.R, c.G, c.B)
}
