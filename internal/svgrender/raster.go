package svgrender

import (
	"image"
	"image/color"
	"image/draw"
	"math"

	"golang.org/x/image/vector"
)

// Rasterize draws the polylines onto a white canvas width pixels wide, with
// the height following the drawing's aspect ratio. strokeWidth is in output
// pixels; values below 1 are raised to 1.
func (d *Drawing) Rasterize(width int, strokeWidth float64) *image.NRGBA {
	if width <= 0 {
		width = int(d.DisplayWidth)
	}
	height := int(math.Ceil(float64(width) * d.Height / d.Width))
	if height < 1 {
		height = 1
	}
	if strokeWidth < 1 {
		strokeWidth = 1
	}

	dst := image.NewNRGBA(image.Rect(0, 0, width, height))
	draw.Draw(dst, dst.Bounds(), image.NewUniform(color.White), image.Point{}, draw.Src)

	k := float64(width) / d.Width
	ras := vector.NewRasterizer(width, height)
	walkPolylines(d.Root, func(p *Polyline) {
		strokePolyline(ras, p.Points, k, strokeWidth/2, float64(width), float64(height))
	})
	ras.Draw(dst, dst.Bounds(), image.NewUniform(color.Black), image.Point{})
	return dst
}

func walkPolylines(g *Group, fn func(*Polyline)) {
	for _, child := range g.Children {
		switch c := child.(type) {
		case *Group:
			walkPolylines(c, fn)
		case *Polyline:
			fn(c)
		}
	}
}

// strokePolyline adds one quad per segment. All quads share the same winding
// so overlapping joints accumulate instead of cancelling.
func strokePolyline(ras *vector.Rasterizer, pts []Vec, k, half, w, h float64) {
	for i := 0; i+1 < len(pts); i++ {
		x0, y0, x1, y1, ok := clipSegment(
			pts[i].X*k, pts[i].Y*k, pts[i+1].X*k, pts[i+1].Y*k,
			-half, -half, w+half, h+half)
		if !ok {
			continue
		}

		dx, dy := x1-x0, y1-y0
		length := math.Hypot(dx, dy)
		if length == 0 {
			continue
		}
		// Extend each segment by half the stroke so consecutive segments overlap.
		ux, uy := dx/length*half, dy/length*half
		nx, ny := -uy, ux

		x0, y0 = x0-ux, y0-uy
		x1, y1 = x1+ux, y1+uy

		ras.MoveTo(float32(x0+nx), float32(y0+ny))
		ras.LineTo(float32(x1+nx), float32(y1+ny))
		ras.LineTo(float32(x1-nx), float32(y1-ny))
		ras.LineTo(float32(x0-nx), float32(y0-ny))
		ras.ClosePath()
	}
}

// clipSegment clips a segment to the rectangle [minX,maxX]x[minY,maxY]
// (Liang-Barsky). It reports false when nothing of the segment remains.
func clipSegment(x0, y0, x1, y1, minX, minY, maxX, maxY float64) (float64, float64, float64, float64, bool) {
	dx, dy := x1-x0, y1-y0
	t0, t1 := 0.0, 1.0

	edges := [4][2]float64{
		{-dx, x0 - minX},
		{dx, maxX - x0},
		{-dy, y0 - minY},
		{dy, maxY - y0},
	}
	for _, e := range edges {
		p, q := e[0], e[1]
		if p == 0 {
			if q < 0 {
				return 0, 0, 0, 0, false
			}
			continue
		}
		r := q / p
		if p < 0 {
			if r > t1 {
				return 0, 0, 0, 0, false
			}
			if r > t0 {
				t0 = r
			}
		} else {
			if r < t0 {
				return 0, 0, 0, 0, false
			}
			if r < t1 {
				t1 = r
			}
		}
	}
	return x0 + t0*dx, y0 + t0*dy, x0 + t1*dx, y0 + t1*dy, true
}
