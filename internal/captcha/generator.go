// Package captcha renders human-verification puzzles.
package captcha

import (
	"bytes"
	"crypto/rand"
	"crypto/subtle"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"math"
	"math/big"
	mrand "math/rand/v2"
	"strings"
	"time"

	"portal-auth/internal/models"

	"github.com/disintegration/imaging"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

// Alphabet omits glyphs that are easy to confuse: I, O, 0 and 1.
const Alphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

const (
	DefaultLength = 5

	width      = 200
	height     = 70
	noiseDots  = 200
	noiseLines = 5
	curves     = 3
	maxTilt    = 25.0
	blurSigma  = 0.6
	glyphScale = 3
)

type Generator struct {
	length int
	now    func() time.Time
}

func NewGenerator(length int) *Generator {
	if length <= 0 {
		length = DefaultLength
	}
	return &Generator{length: length, now: time.Now}
}

// Generate returns a new answer and its PNG rendering. Every call produces an
// independent challenge.
func (g *Generator) Generate() (models.HumanChallenge, error) {
	answer, err := randomAnswer(g.length)
	if err != nil {
		return models.HumanChallenge{}, err
	}

	img, err := render(answer)
	if err != nil {
		return models.HumanChallenge{}, err
	}

	return models.HumanChallenge{Answer: answer, Image: img, IssuedAt: g.now()}, nil
}

// Matches compares a submitted answer with the expected one in constant time,
// ignoring case and surrounding whitespace.
func Matches(expected, submitted string) bool {
	if expected == "" {
		return false
	}
	want := []byte(strings.ToUpper(expected))
	got := []byte(strings.ToUpper(strings.TrimSpace(submitted)))
	return subtle.ConstantTimeCompare(want, got) == 1
}

func randomAnswer(length int) (string, error) {
	out := make([]byte, length)
	limit := big.NewInt(int64(len(Alphabet)))
	for i := range out {
		n, err := rand.Int(rand.Reader, limit)
		if err != nil {
			return "", fmt.Errorf("failed to pick captcha glyph: %w", err)
		}
		out[i] = Alphabet[n.Int64()]
	}
	return string(out), nil
}

func render(answer string) ([]byte, error) {
	canvas := imaging.New(width, height, color.NRGBA{R: 245, G: 245, B: 240, A: 255})

	for range noiseDots {
		canvas.Set(mrand.IntN(width), mrand.IntN(height), randomColor(120, 220))
	}
	for range noiseLines {
		drawLine(canvas,
			image.Pt(mrand.IntN(width), mrand.IntN(height)),
			image.Pt(mrand.IntN(width), mrand.IntN(height)),
			randomColor(170, 230))
	}

	slot := width / (len(answer) + 1)
	for i, ch := range answer {
		glyph := renderGlyph(ch, randomColor(20, 110))
		tilt := (mrand.Float64()*2 - 1) * maxTilt
		glyph = imaging.Rotate(glyph, tilt, color.Transparent)

		x := slot*(i+1) - glyph.Bounds().Dx()/2 + mrand.IntN(7) - 3
		y := (height-glyph.Bounds().Dy())/2 + mrand.IntN(9) - 4
		canvas = imaging.Overlay(canvas, glyph, image.Pt(x, y), 1.0)
	}

	for range curves {
		drawBezier(canvas, randomColor(60, 160))
	}

	blurred := imaging.Blur(canvas, blurSigma)

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, blurred, imaging.PNG); err != nil {
		return nil, fmt.Errorf("failed to encode captcha: %w", err)
	}
	return buf.Bytes(), nil
}

// renderGlyph draws ch with the 7x13 bitmap face and scales it up.
func renderGlyph(ch rune, c color.Color) *image.NRGBA {
	face := basicfont.Face7x13
	small := image.NewNRGBA(image.Rect(0, 0, face.Advance, face.Height))
	d := &font.Drawer{
		Dst:  small,
		Src:  image.NewUniform(c),
		Face: face,
		Dot:  fixed.P(0, face.Ascent),
	}
	d.DrawString(string(ch))

	return imaging.Resize(small, face.Advance*glyphScale, face.Height*glyphScale, imaging.NearestNeighbor)
}

func drawLine(img draw.Image, from, to image.Point, c color.Color) {
	dx := abs(to.X - from.X)
	dy := -abs(to.Y - from.Y)
	sx, sy := 1, 1
	if from.X > to.X {
		sx = -1
	}
	if from.Y > to.Y {
		sy = -1
	}
	e := dx + dy
	x, y := from.X, from.Y
	for {
		img.Set(x, y, c)
		if x == to.X && y == to.Y {
			return
		}
		e2 := 2 * e
		if e2 >= dy {
			e += dy
			x += sx
		}
		if e2 <= dx {
			e += dx
			y += sy
		}
	}
}

// drawBezier strokes a cubic curve spanning the canvas.
func drawBezier(img draw.Image, c color.Color) {
	p0 := [2]float64{0, float64(mrand.IntN(height))}
	p1 := [2]float64{float64(width) / 3, float64(mrand.IntN(height))}
	p2 := [2]float64{2 * float64(width) / 3, float64(mrand.IntN(height))}
	p3 := [2]float64{float64(width), float64(mrand.IntN(height))}

	prev := image.Pt(int(p0[0]), int(p0[1]))
	const steps = 60
	for i := 1; i <= steps; i++ {
		t := float64(i) / steps
		u := 1 - t
		x := u*u*u*p0[0] + 3*u*u*t*p1[0] + 3*u*t*t*p2[0] + t*t*t*p3[0]
		y := u*u*u*p0[1] + 3*u*u*t*p1[1] + 3*u*t*t*p2[1] + t*t*t*p3[1]
		next := image.Pt(int(math.Round(x)), int(math.Round(y)))
		drawLine(img, prev, next, c)
		prev = next
	}
}

func randomColor(lo, hi int) color.NRGBA {
	span := hi - lo + 1
	return color.NRGBA{
		R: uint8(lo + mrand.IntN(span)),
		G: uint8(lo + mrand.IntN(span)),
		B: uint8(lo + mrand.IntN(span)),
		A: 255,
	}
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
