package stitch

import (
	"bytes"
	"fmt"
	"image"
	_ "image/jpeg" // tile decoders
	_ "image/png"

	"golang.org/x/image/draw"
	_ "golang.org/x/image/webp"

	"github.com/MeKo-Tech/mapfactory/internal/tile"
)

// DecodeTile decodes PNG, JPEG or WebP tile bytes.
func DecodeTile(data []byte) (image.Image, string, error) {
	img, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, "", fmt.Errorf("failed to decode tile image: %w", err)
	}
	return img, format, nil
}

// Composite lays tiles out on one canvas. tiles are in row-major footprint
// order. The tile size is taken from the first tile; any tile of a different
// size is scaled to it. The canvas is tileW*width by tileH*height and is not
// cropped.
func Composite(fp tile.Footprint, tiles []image.Image) (*image.NRGBA, image.Point, error) {
	if fp.Empty() {
		return nil, image.Point{}, ErrEmptyFootprint
	}
	if len(tiles) == 0 || tiles[0] == nil {
		return nil, image.Point{}, ErrNoTiles
	}
	if len(tiles) != fp.Count() {
		return nil, image.Point{}, fmt.Errorf("got %d tiles for a footprint of %d", len(tiles), fp.Count())
	}

	size := tiles[0].Bounds().Size()
	if size.X <= 0 || size.Y <= 0 {
		return nil, image.Point{}, fmt.Errorf("%w: first tile has size %v", ErrNoTiles, size)
	}

	dst := image.NewNRGBA(image.Rect(0, 0, size.X*fp.Width(), size.Y*fp.Height()))
	start := fp.Start()

	var err error
	fp.ForEach(func(n int, idx tile.Index) {
		if err != nil {
			return
		}
		src := tiles[n]
		if src == nil {
			err = fmt.Errorf("%w: tile %d (%s) is missing", ErrNoTiles, n, idx)
			return
		}

		origin := image.Pt((idx.X-start.X)*size.X, (idx.Y-start.Y)*size.Y)
		cell := image.Rectangle{Min: origin, Max: origin.Add(size)}

		if src.Bounds().Size() == size {
			draw.Draw(dst, cell, src, src.Bounds().Min, draw.Src)
			return
		}
		draw.ApproxBiLinear.Scale(dst, cell, src, src.Bounds(), draw.Src, nil)
	})
	if err != nil {
		return nil, image.Point{}, err
	}

	return dst, size, nil
}
