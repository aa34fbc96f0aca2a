package stitch

import (
	"fmt"
	"image"
	"image/jpeg"
	"image/png"
	"io"
	"math"
	"strings"

	"github.com/disintegration/gift"

	"github.com/MeKo-Tech/mapfactory/internal/geo"
	"github.com/MeKo-Tech/mapfactory/internal/tile"
)

// Result is a stitched canvas plus where the requested box sits on it.
type Result struct {
	Image     *image.NRGBA
	Params    Params
	Footprint tile.Footprint
	// Offset is the position of the north-west corner inside the first tile.
	Offset     tile.Offset
	TileWidth  int
	TileHeight int
}

// PixelOffset is Offset scaled to the tile size: the canvas pixel of the
// north-west corner.
func (r *Result) PixelOffset() image.Point {
	return r.Offset.Pixels(r.TileWidth, r.TileHeight)
}

// CropRect returns the canvas rectangle covering b, clipped to the canvas.
func (r *Result) CropRect(b geo.Bounds) (image.Rectangle, error) {
	if err := b.Validate(); err != nil {
		return image.Rectangle{}, err
	}

	start := r.Footprint.Start()
	zoom := r.Params.Zoom
	pixel := func(lat, lng float64) image.Point {
		idx := tile.IndexAt(lat, lng, zoom)
		off := tile.SubTileOffset(lat, lng, zoom)
		x := (float64(idx.X-start.X) + off.X) * float64(r.TileWidth)
		y := (float64(idx.Y-start.Y) + off.Y) * float64(r.TileHeight)
		return image.Pt(int(math.Floor(x)), int(math.Floor(y)))
	}

	rect := image.Rectangle{Min: pixel(b.North, b.West), Max: pixel(b.South, b.East)}
	rect = rect.Intersect(r.Image.Bounds())
	if rect.Empty() {
		return image.Rectangle{}, fmt.Errorf("%w: %s does not overlap the stitched area", geo.ErrInvalidBounds, b)
	}
	return rect, nil
}

// Crop cuts the canvas down to exactly b.
func (r *Result) Crop(b geo.Bounds) (*image.NRGBA, error) {
	rect, err := r.CropRect(b)
	if err != nil {
		return nil, err
	}

	g := gift.New(gift.Crop(rect))
	dst := image.NewNRGBA(g.Bounds(r.Image.Bounds()))
	g.Draw(dst, r.Image)
	return dst, nil
}

// Format is an export image format.
type Format string

const (
	PNG  Format = "png"
	JPEG Format = "jpeg"
)

// DefaultJPEGQuality matches the usual canvas export default of 0.92.
const DefaultJPEGQuality = 0.92

// ParseFormat accepts png, jpg and jpeg.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimPrefix(s, ".")) {
	case "", "png":
		return PNG, nil
	case "jpg", "jpeg":
		return JPEG, nil
	default:
		return "", fmt.Errorf("unsupported image format %q (want png or jpeg)", s)
	}
}

// Ext is the file extension without the dot.
func (f Format) Ext() string {
	if f == JPEG {
		return "jpg"
	}
	return "png"
}

// ContentType is the MIME type of the format.
func (f Format) ContentType() string {
	if f == JPEG {
		return "image/jpeg"
	}
	return "image/png"
}

// Encode writes img in format. quality in (0,1] applies to JPEG only; zero
// means DefaultJPEGQuality.
func Encode(w io.Writer, img image.Image, format Format, quality float64) error {
	switch format {
	case PNG, "":
		enc := png.Encoder{CompressionLevel: png.DefaultCompression}
		if err := enc.Encode(w, img); err != nil {
			return fmt.Errorf("failed to encode PNG: %w", err)
		}
	case JPEG:
		if quality <= 0 {
			quality = DefaultJPEGQuality
		}
		q := int(math.Round(math.Min(quality, 1) * 100))
		if q < 1 {
			q = 1
		}
		if err := jpeg.Encode(w, img, &jpeg.Options{Quality: q}); err != nil {
			return fmt.Errorf("failed to encode JPEG: %w", err)
		}
	default:
		return fmt.Errorf("unsupported image format %q", format)
	}
	return nil
}
