// Package framegen renders synthetic annotated JPEG frames for the producer
// simulator and the MJPEG placeholder shown while no camera is pushing.
package framegen

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"image"
	"image/color"

	"github.com/disintegration/imaging"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

// Default frame geometry, matching the detector's output.
const (
	DefaultWidth   = 640
	DefaultHeight  = 480
	DefaultQuality = 80
)

var (
	background  = color.NRGBA{R: 24, G: 28, B: 36, A: 255}
	boxColor    = color.NRGBA{R: 230, G: 60, B: 30, A: 255}
	labelColor  = color.White
	placeholder = color.NRGBA{R: 60, G: 60, B: 60, A: 255}
)

// Generator renders numbered frames with a moving detection box.
type Generator struct {
	Width   int
	Height  int
	Quality int
}

// New returns a generator with the default geometry.
func New() *Generator {
	return &Generator{Width: DefaultWidth, Height: DefaultHeight, Quality: DefaultQuality}
}

// Frame renders frame n with the given caption and returns JPEG bytes.
func (g *Generator) Frame(n int, caption string) ([]byte, error) {
	img := imaging.New(g.Width, g.Height, background)

	// detection box sweeps horizontally, one step per frame
	boxW, boxH := g.Width/5, g.Height/4
	span := g.Width - boxW
	if span < 1 {
		span = 1
	}
	x := (n * 8) % span
	y := (g.Height - boxH) / 2
	box := imaging.New(boxW, boxH, boxColor)
	img = imaging.Overlay(img, box, image.Pt(x, y), 0.6)

	label := fmt.Sprintf("fire %.2f", 0.5+float64(n%50)/100)
	drawText(img, x+4, y-4, label, labelColor)
	drawText(img, 8, g.Height-10, caption, labelColor)

	return encodeJPEG(img, g.Quality)
}

// FrameB64 is Frame encoded as standard base64, ready for /push_image.
func (g *Generator) FrameB64(n int, caption string) (string, error) {
	data, err := g.Frame(n, caption)
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(data), nil
}

// Placeholder renders a centered message on a grey background, scaled up
// so it stays readable in a browser tile.
func Placeholder(width, height int, message string) ([]byte, error) {
	img := imaging.New(width, height, placeholder)

	textW := len(message) * 7
	text := imaging.New(textW+8, 21, placeholder)
	drawText(text, 4, 15, message, labelColor)

	scale := 2
	if textW*scale > width-16 {
		scale = 1
	}
	if scale > 1 {
		text = imaging.Resize(text, text.Bounds().Dx()*scale, 0, imaging.NearestNeighbor)
	}

	img = imaging.PasteCenter(img, text)
	return encodeJPEG(img, DefaultQuality)
}

func drawText(img *image.NRGBA, x, y int, text string, col color.Color) {
	d := &font.Drawer{
		Dst:  img,
		Src:  image.NewUniform(col),
		Face: basicfont.Face7x13,
		Dot:  fixed.Point26_6{X: fixed.I(x), Y: fixed.I(y)},
	}
	d.DrawString(text)
}

func encodeJPEG(img image.Image, quality int) ([]byte, error) {
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, imaging.JPEG, imaging.JPEGQuality(quality)); err != nil {
		return nil, fmt.Errorf("failed to encode frame: %w", err)
	}
	return buf.Bytes(), nil
}
