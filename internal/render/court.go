// Package render draws still previews of a session's court.
package render

import (
	"fmt"
	"image/color"
	"io"
	"log"
	"sync"

	"paddle-arena/internal/game"

	"github.com/fogleman/gg"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/font/gofont/goregular"
	"golang.org/x/image/font/opentype"
)

// Preview dimensions in pixels
const (
	DefaultWidth  = 640
	DefaultHeight = 360
)

var (
	backgroundColor = color.RGBA{12, 12, 28, 255}
	lineColor       = color.RGBA{60, 60, 90, 255}
	leftColor       = color.RGBA{255, 107, 107, 255}
	rightColor      = color.RGBA{90, 170, 255, 255}
	ballColor       = color.White
	textColor       = color.RGBA{230, 230, 240, 255}
)

var (
	fontOnce   sync.Once
	parsedFont *opentype.Font
)

// loadFont parses the embedded Go font once. A nil result means parsing
// failed and previews use the fixed bitmap face.
func loadFont() *opentype.Font {
	fontOnce.Do(func() {
		f, err := opentype.Parse(goregular.TTF)
		if err != nil {
			log.Printf("⚠️ Failed to parse preview font: %v", err)
			return
		}
		parsedFont = f
	})
	return parsedFont
}

// newFace builds a face of the given size. opentype faces keep a rasterizer
// buffer, so each Draw gets its own.
func newFace(size float64) font.Face {
	f := loadFont()
	if f == nil {
		return basicfont.Face7x13
	}
	face, err := opentype.NewFace(f, &opentype.FaceOptions{Size: size, DPI: 72, Hinting: font.HintingFull})
	if err != nil {
		log.Printf("⚠️ Failed to create preview font face: %v", err)
		return basicfont.Face7x13
	}
	return face
}

// Court renders session snapshots at a fixed size. Safe for concurrent use:
// every call draws into its own context with its own font faces.
type Court struct {
	Width  int
	Height int
}

// NewCourt creates a renderer with the default size
func NewCourt() *Court {
	return &Court{Width: DefaultWidth, Height: DefaultHeight}
}

// Draw renders s into a new context
func (c *Court) Draw(s *game.Session) *gg.Context {
	w, h := float64(c.Width), float64(c.Height)
	dc := gg.NewContext(c.Width, c.Height)

	dc.SetColor(backgroundColor)
	dc.DrawRectangle(0, 0, w, h)
	dc.Fill()

	// Center line
	dc.SetColor(lineColor)
	dc.SetLineWidth(2)
	dc.SetDash(8, 8)
	dc.DrawLine(w/2, 0, w/2, h)
	dc.Stroke()
	dc.SetDash()

	for _, p := range s.Participants {
		c.drawPaddle(dc, p)
	}

	dc.SetColor(ballColor)
	dc.DrawCircle(s.Ball.X*w, s.Ball.Y*h, h*0.015)
	dc.Fill()

	c.drawScores(dc, s)
	return dc
}

// WritePNG renders s and encodes it as PNG
func (c *Court) WritePNG(w io.Writer, s *game.Session) error {
	if err := c.Draw(s).EncodePNG(w); err != nil {
		return fmt.Errorf("encode preview of %s: %w", s.ID, err)
	}
	return nil
}

func (c *Court) drawPaddle(dc *gg.Context, p game.Participant) {
	w, h := float64(c.Width), float64(c.Height)
	paddleW := w * 0.015
	paddleH := h * game.PaddleHalfHeight * 2

	x := game.PaddlePlaneOffset*w - paddleW
	dc.SetColor(leftColor)
	if p.Side == game.SideRight {
		x = (1 - game.PaddlePlaneOffset) * w
		dc.SetColor(rightColor)
	}
	dc.DrawRoundedRectangle(x, p.PaddleY*h-paddleH/2, paddleW, paddleH, paddleW/2)
	dc.Fill()
}

func (c *Court) drawScores(dc *gg.Context, s *game.Session) {
	w, h := float64(c.Width), float64(c.Height)

	scoreFace, labelFace := newFace(40), newFace(16)
	defer scoreFace.Close()
	defer labelFace.Close()

	dc.SetColor(textColor)
	dc.SetFontFace(scoreFace)
	for _, side := range []game.Side{game.SideLeft, game.SideRight} {
		p, ok := s.BySide(side)
		if !ok {
			continue
		}
		x := w * 0.25
		if side == game.SideRight {
			x = w * 0.75
		}
		dc.DrawStringAnchored(fmt.Sprintf("%d", p.Score), x, h*0.12, 0.5, 0.5)
	}

	dc.SetFontFace(labelFace)
	dc.DrawStringAnchored(string(s.Status), w/2, h-16, 0.5, 0.5)
}
