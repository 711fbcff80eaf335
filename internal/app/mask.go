package app

import (
	"errors"
	"fmt"
	"image"
	"image/png"
	"os"
	"strconv"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/cheahjs/sdwebui-panel/internal/mask"
)

type point struct {
	x, y float64
}

type maskOptions struct {
	image   string
	upload  string
	output  string
	display string
	brush   int
	paint   []string
	erase   []string
}

func newMaskCmd() *cobra.Command {
	opts := &maskOptions{}

	cmd := &cobra.Command{
		Use:   "mask",
		Short: "Paint an inpainting mask over an image",
		Long: `Paint an inpainting mask over an image and write the result as PNG.

Strokes are space separated x,y points, for example --paint "10,10 120,40 200,200".
Paint strokes are applied before erase strokes.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMask(cmd, opts)
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&opts.image, "image", "", "source image")
	flags.StringVar(&opts.upload, "upload", "", "existing mask to start from")
	flags.StringVarP(&opts.output, "output", "o", "", "output PNG")
	flags.StringVar(&opts.display, "display", "", "display size WxH the stroke coordinates refer to")
	flags.IntVar(&opts.brush, "brush", mask.DefaultBrushSize, "brush diameter")
	flags.StringArrayVar(&opts.paint, "paint", nil, "paint stroke")
	flags.StringArrayVar(&opts.erase, "erase", nil, "erase stroke")
	_ = cmd.MarkFlagRequired("image")
	_ = cmd.MarkFlagRequired("output")
	return cmd
}

func runMask(cmd *cobra.Command, opts *maskOptions) error {
	src, err := decodeImageFile(opts.image)
	if err != nil {
		return err
	}

	canvas := mask.New()
	canvas.Load(src)
	canvas.SetBrushSize(opts.brush)

	if opts.display != "" {
		w, h, err := parseSize(opts.display)
		if err != nil {
			return err
		}
		canvas.SetDisplaySize(w, h)
	}

	if opts.upload != "" {
		uploaded, err := decodeImageFile(opts.upload)
		if err != nil {
			return err
		}
		if err := canvas.UploadMask(uploaded); err != nil {
			return err
		}
	}

	canvas.SetTool(mask.Paint)
	if err := applyStrokes(canvas, opts.paint); err != nil {
		return err
	}
	canvas.SetTool(mask.Erase)
	if err := applyStrokes(canvas, opts.erase); err != nil {
		return err
	}

	out, err := os.Create(opts.output)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", opts.output, err)
	}
	defer out.Close()
	if err := png.Encode(out, canvas.Composite()); err != nil {
		return fmt.Errorf("failed to encode mask: %w", err)
	}

	log.Info().
		Str("file", opts.output).
		Int("flagged_pixels", canvas.Flagged()).
		Msg("Mask written")
	return nil
}

func applyStrokes(canvas *mask.Canvas, strokes []string) error {
	for _, stroke := range strokes {
		points, err := parseStroke(stroke)
		if err != nil {
			return err
		}
		canvas.PointerDown(points[0].x, points[0].y)
		for _, p := range points[1:] {
			canvas.PointerMove(p.x, p.y)
		}
		canvas.PointerUp()
	}
	return nil
}

func parseStroke(s string) ([]point, error) {
	fields := strings.Fields(s)
	if len(fields) == 0 {
		return nil, errors.New("empty stroke")
	}
	points := make([]point, 0, len(fields))
	for _, field := range fields {
		xs, ys, ok := strings.Cut(field, ",")
		if !ok {
			return nil, fmt.Errorf("invalid point %q", field)
		}
		x, err := strconv.ParseFloat(xs, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid point %q: %w", field, err)
		}
		y, err := strconv.ParseFloat(ys, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid point %q: %w", field, err)
		}
		points = append(points, point{x: x, y: y})
	}
	return points, nil
}

func parseSize(s string) (float64, float64, error) {
	ws, hs, ok := strings.Cut(strings.ToLower(s), "x")
	if !ok {
		return 0, 0, fmt.Errorf("invalid size %q", s)
	}
	w, err := strconv.ParseFloat(ws, 64)
	if err != nil || w <= 0 {
		return 0, 0, fmt.Errorf("invalid size %q", s)
	}
	h, err := strconv.ParseFloat(hs, 64)
	if err != nil || h <= 0 {
		return 0, 0, fmt.Errorf("invalid size %q", s)
	}
	return w, h, nil
}

func decodeImageFile(path string) (image.Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	img, _, err := image.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("failed to decode %s: %w", path, err)
	}
	return img, nil
}
