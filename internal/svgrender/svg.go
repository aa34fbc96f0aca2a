package svgrender

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"io"
	"strconv"
	"strings"
)

const (
	svgNamespace  = "http://www.w3.org/2000/svg"
	polylineStyle = "fill:none;stroke:#000;stroke-width:1px"
	frameStyle    = "border:1px solid #000"
)

// WriteSVG serializes the drawing as a standalone SVG document.
func (d *Drawing) WriteSVG(w io.Writer) error {
	if _, err := io.WriteString(w, xml.Header); err != nil {
		return fmt.Errorf("failed to write SVG header: %w", err)
	}

	enc := xml.NewEncoder(w)
	root := xml.StartElement{
		Name: xml.Name{Local: "svg"},
		Attr: []xml.Attr{
			attr("version", "1.1"),
			attr("xmlns", svgNamespace),
			attr("width", formatNumber(d.DisplayWidth)),
			attr("height", formatNumber(d.DisplayHeight)),
			attr("viewBox", joinNumbers(0, 0, d.Width, d.Height)),
			attr("style", frameStyle),
		},
	}

	if err := enc.EncodeToken(root); err != nil {
		return fmt.Errorf("failed to encode SVG: %w", err)
	}
	if err := encodeGroup(enc, d.Root); err != nil {
		return fmt.Errorf("failed to encode SVG: %w", err)
	}
	if err := enc.EncodeToken(root.End()); err != nil {
		return fmt.Errorf("failed to encode SVG: %w", err)
	}
	if err := enc.Flush(); err != nil {
		return fmt.Errorf("failed to flush SVG: %w", err)
	}
	return nil
}

// SVG returns the serialized document.
func (d *Drawing) SVG() ([]byte, error) {
	var buf bytes.Buffer
	if err := d.WriteSVG(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func encodeGroup(enc *xml.Encoder, g *Group) error {
	start := xml.StartElement{Name: xml.Name{Local: "g"}}
	if g.ID != "" {
		start.Attr = []xml.Attr{attr("id", g.ID)}
	}
	if err := enc.EncodeToken(start); err != nil {
		return err
	}

	for _, child := range g.Children {
		var err error
		switch c := child.(type) {
		case *Group:
			err = encodeGroup(enc, c)
		case *Polyline:
			err = encodePolyline(enc, c)
		}
		if err != nil {
			return err
		}
	}

	return enc.EncodeToken(start.End())
}

func encodePolyline(enc *xml.Encoder, p *Polyline) error {
	wrapper := xml.StartElement{
		Name: xml.Name{Local: "g"},
		Attr: []xml.Attr{attr("id", groupID(p.WayID))},
	}
	line := xml.StartElement{
		Name: xml.Name{Local: "polyline"},
		Attr: []xml.Attr{
			attr("points", pointList(p.Points)),
			attr("style", polylineStyle),
		},
	}

	for _, tok := range []xml.Token{wrapper, line, line.End(), wrapper.End()} {
		if err := enc.EncodeToken(tok); err != nil {
			return err
		}
	}
	return nil
}

func attr(name, value string) xml.Attr {
	return xml.Attr{Name: xml.Name{Local: name}, Value: value}
}

// pointList formats points as "x,y,x,y,...".
func pointList(points []Vec) string {
	var sb strings.Builder
	for i, p := range points {
		if i > 0 {
			sb.WriteByte(',')
		}
		sb.WriteString(formatNumber(p.X))
		sb.WriteByte(',')
		sb.WriteString(formatNumber(p.Y))
	}
	return sb.String()
}

func joinNumbers(vals ...float64) string {
	parts := make([]string, len(vals))
	for i, v := range vals {
		parts[i] = formatNumber(v)
	}
	return strings.Join(parts, ",")
}

func formatNumber(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
