// Package mask implements the inpainting mask painter: a source image with
// a paint layer on top, edited by pointer strokes and exported as a PNG
// data URL after every completed stroke.
package mask

import (
	"bytes"
	"encoding/base64"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	_ "image/gif"
	_ "image/jpeg"
	"image/png"
	"math"
	"strings"

	"github.com/rs/zerolog/log"
)

type Tool int

const (
	Paint Tool = iota
	Erase
)

func (t Tool) String() string {
	if t == Erase {
		return "erase"
	}
	return "paint"
}

const (
	MinBrushSize     = 1
	MaxBrushSize     = 100
	DefaultBrushSize = 20
)

var ErrNotLoaded = errors.New("no source image loaded")

// Canvas is sized to the source image's native pixels. Pointer coordinates
// arrive in display units and are rescaled to that backing size.
//
// The paint layer holds replacement pixels: a pixel with non-zero alpha in
// paint is shown instead of the source pixel. A Canvas is not safe for
// concurrent use.
type Canvas struct {
	source *image.RGBA
	paint  *image.RGBA

	tool      Tool
	brushSize int
	color     color.RGBA

	displayW, displayH float64

	drawing      bool
	lastX, lastY float64

	onChange   func(dataURL string)
	lastExport string
}

func New() *Canvas {
	return &Canvas{
		tool:      Paint,
		brushSize: DefaultBrushSize,
		color:     color.RGBA{R: 255, G: 255, B: 255, A: 255},
	}
}

// Load replaces the source image and discards any painting. The display
// size is reset to the image's native size.
func (c *Canvas) Load(img image.Image) {
	b := img.Bounds()
	c.source = image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(c.source, c.source.Bounds(), img, b.Min, draw.Src)
	c.paint = image.NewRGBA(c.source.Bounds())
	c.displayW, c.displayH = float64(b.Dx()), float64(b.Dy())
	c.drawing = false
	c.lastExport = ""
}

func (c *Canvas) LoadDataURL(dataURL string) error {
	img, err := DecodeDataURL(dataURL)
	if err != nil {
		return err
	}
	c.Load(img)
	return nil
}

func (c *Canvas) Loaded() bool {
	return c.source != nil
}

// Bounds is the backing size; empty before a source is loaded.
func (c *Canvas) Bounds() image.Rectangle {
	if c.source == nil {
		return image.Rectangle{}
	}
	return c.source.Bounds()
}

func (c *Canvas) SetTool(t Tool) {
	c.tool = t
}

func (c *Canvas) Tool() Tool {
	return c.tool
}

// SetBrushSize sets the brush diameter in backing pixels, clamped to
// [MinBrushSize, MaxBrushSize].
func (c *Canvas) SetBrushSize(size int) {
	if size < MinBrushSize {
		size = MinBrushSize
	}
	if size > MaxBrushSize {
		size = MaxBrushSize
	}
	c.brushSize = size
}

func (c *Canvas) BrushSize() int {
	return c.brushSize
}

// SetColor sets the paint colour. Strokes are always opaque.
func (c *Canvas) SetColor(col color.Color) {
	rgba := color.RGBAModel.Convert(col).(color.RGBA)
	if rgba.A != 0 && rgba.A != 255 {
		// Un-premultiply before forcing the alpha.
		rgba.R = uint8(uint32(rgba.R) * 255 / uint32(rgba.A))
		rgba.G = uint8(uint32(rgba.G) * 255 / uint32(rgba.A))
		rgba.B = uint8(uint32(rgba.B) * 255 / uint32(rgba.A))
	}
	rgba.A = 255
	c.color = rgba
}

// SetDisplaySize records the size the canvas is shown at. Non-positive
// values mean the display matches the backing size.
func (c *Canvas) SetDisplaySize(w, h float64) {
	c.displayW, c.displayH = w, h
}

// OnChange registers the callback that receives each exported data URL.
func (c *Canvas) OnChange(fn func(dataURL string)) {
	c.onChange = fn
}

// LastExport is the most recently reported data URL.
func (c *Canvas) LastExport() string {
	return c.lastExport
}

func (c *Canvas) PointerDown(x, y float64) {
	if !c.Loaded() {
		return
	}
	c.drawing = true
	c.lastX, c.lastY = c.toBacking(x, y)
	c.stamp(c.lastX, c.lastY)
}

func (c *Canvas) PointerMove(x, y float64) {
	if !c.Loaded() || !c.drawing {
		return
	}
	bx, by := c.toBacking(x, y)
	c.segment(c.lastX, c.lastY, bx, by)
	c.lastX, c.lastY = bx, by
}

func (c *Canvas) PointerUp() {
	c.endStroke()
}

func (c *Canvas) PointerLeave() {
	c.endStroke()
}

func (c *Canvas) endStroke() {
	if !c.Loaded() || !c.drawing {
		return
	}
	c.drawing = false
	c.report()
}

// Clear reverts to the unmodified source image and reports it.
func (c *Canvas) Clear() {
	if !c.Loaded() {
		return
	}
	c.drawing = false
	c.paint = image.NewRGBA(c.source.Bounds())
	c.report()
}

// UploadMask discards the current painting and composites img over the
// source, anchored at the top-left corner. Pixels of img within one step
// per channel of the source pixel beneath them leave the source showing,
// which absorbs the rounding of a PNG round trip through non-premultiplied
// alpha.
func (c *Canvas) UploadMask(img image.Image) error {
	if !c.Loaded() {
		return ErrNotLoaded
	}
	c.drawing = false
	c.paint = image.NewRGBA(c.source.Bounds())

	b := img.Bounds()
	area := c.source.Bounds().Intersect(image.Rect(0, 0, b.Dx(), b.Dy()))
	for y := area.Min.Y; y < area.Max.Y; y++ {
		for x := area.Min.X; x < area.Max.X; x++ {
			up := color.RGBAModel.Convert(img.At(b.Min.X+x, b.Min.Y+y)).(color.RGBA)
			src := c.source.RGBAAt(x, y)
			if near(up, src) {
				continue
			}
			if out := over(up, src); out != src {
				c.paint.SetRGBA(x, y, out)
			}
		}
	}
	c.report()
	return nil
}

func (c *Canvas) UploadMaskDataURL(dataURL string) error {
	img, err := DecodeDataURL(dataURL)
	if err != nil {
		return err
	}
	return c.UploadMask(img)
}

// Composite returns the image as currently displayed.
func (c *Canvas) Composite() *image.RGBA {
	if !c.Loaded() {
		return nil
	}
	out := image.NewRGBA(c.source.Bounds())
	copy(out.Pix, c.source.Pix)
	for i := 0; i < len(c.paint.Pix); i += 4 {
		if c.paint.Pix[i+3] != 0 {
			copy(out.Pix[i:i+4], c.paint.Pix[i:i+4])
		}
	}
	return out
}

// MaskImage is white wherever the composite differs from the source.
func (c *Canvas) MaskImage() *image.Gray {
	if !c.Loaded() {
		return nil
	}
	out := image.NewGray(c.source.Bounds())
	for i, j := 0, 0; i < len(c.paint.Pix); i, j = i+4, j+1 {
		if c.paint.Pix[i+3] != 0 && !bytes.Equal(c.paint.Pix[i:i+4], c.source.Pix[i:i+4]) {
			out.Pix[j] = 0xff
		}
	}
	return out
}

// Flagged counts the pixels set in MaskImage.
func (c *Canvas) Flagged() int {
	m := c.MaskImage()
	if m == nil {
		return 0
	}
	n := 0
	for _, v := range m.Pix {
		if v != 0 {
			n++
		}
	}
	return n
}

// Export encodes the composite as a PNG data URL.
func (c *Canvas) Export() (string, error) {
	if !c.Loaded() {
		return "", ErrNotLoaded
	}
	return EncodeDataURL(c.Composite())
}

func (c *Canvas) report() {
	dataURL, err := c.Export()
	if err != nil {
		log.Error().Err(err).Msg("Failed to export mask")
		return
	}
	c.lastExport = dataURL
	if c.onChange != nil {
		c.onChange(dataURL)
	}
}

func (c *Canvas) toBacking(x, y float64) (float64, float64) {
	b := c.source.Bounds()
	if c.displayW > 0 {
		x *= float64(b.Dx()) / c.displayW
	}
	if c.displayH > 0 {
		y *= float64(b.Dy()) / c.displayH
	}
	return x, y
}

// segment stamps the brush along a line with round caps at both ends.
func (c *Canvas) segment(x0, y0, x1, y1 float64) {
	dist := math.Hypot(x1-x0, y1-y0)
	spacing := math.Max(float64(c.brushSize)/4, 0.5)
	steps := int(math.Ceil(dist / spacing))
	for i := 1; i <= steps; i++ {
		t := float64(i) / float64(steps)
		c.stamp(x0+(x1-x0)*t, y0+(y1-y0)*t)
	}
}

// stamp fills a disk of the brush diameter centred on (cx, cy). The pixel
// containing the centre is always covered.
func (c *Canvas) stamp(cx, cy float64) {
	r := float64(c.brushSize) / 2
	bounds := c.paint.Bounds()
	area := image.Rect(
		int(math.Floor(cx-r)), int(math.Floor(cy-r)),
		int(math.Ceil(cx+r))+1, int(math.Ceil(cy+r))+1,
	).Intersect(bounds)

	for y := area.Min.Y; y < area.Max.Y; y++ {
		for x := area.Min.X; x < area.Max.X; x++ {
			dx, dy := float64(x)+0.5-cx, float64(y)+0.5-cy
			if dx*dx+dy*dy <= r*r {
				c.apply(x, y)
			}
		}
	}
	if p := image.Pt(int(math.Floor(cx)), int(math.Floor(cy))); p.In(bounds) {
		c.apply(p.X, p.Y)
	}
}

func (c *Canvas) apply(x, y int) {
	if c.tool == Erase {
		c.paint.SetRGBA(x, y, color.RGBA{})
		return
	}
	c.paint.SetRGBA(x, y, c.color)
}

func near(a, b color.RGBA) bool {
	return absDiff(a.R, b.R) <= 1 && absDiff(a.G, b.G) <= 1 && absDiff(a.B, b.B) <= 1 && absDiff(a.A, b.A) <= 1
}

func absDiff(a, b uint8) uint8 {
	if a > b {
		return a - b
	}
	return b - a
}

// over is Porter-Duff source-over on premultiplied colours.
func over(s, d color.RGBA) color.RGBA {
	k := 255 - uint32(s.A)
	return color.RGBA{
		R: uint8(uint32(s.R) + uint32(d.R)*k/255),
		G: uint8(uint32(s.G) + uint32(d.G)*k/255),
		B: uint8(uint32(s.B) + uint32(d.B)*k/255),
		A: uint8(uint32(s.A) + uint32(d.A)*k/255),
	}
}

const pngDataURLPrefix = "data:image/png;base64,"

func EncodeDataURL(img image.Image) (string, error) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return "", fmt.Errorf("failed to encode png: %w", err)
	}
	return pngDataURLPrefix + base64.StdEncoding.EncodeToString(buf.Bytes()), nil
}

// DecodeDataURL accepts a data URL or bare base64 image data.
func DecodeDataURL(dataURL string) (image.Image, error) {
	payload := dataURL
	if strings.HasPrefix(payload, "data:") {
		i := strings.IndexByte(payload, ',')
		if i < 0 {
			return nil, errors.New("malformed data URL")
		}
		payload = payload[i+1:]
	}
	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to decode base64: %w", err)
	}
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to decode image: %w", err)
	}
	return img, nil
}
