// Package polyline reads and writes route geometry in the encoded polyline
// format at precision 5, the default of OpenRouteService and Google.
//
// See https://developers.google.com/maps/documentation/utilities/polylinealgorithm
package polyline

import (
	"errors"
	"fmt"
	"math"
	"strings"
)

// ErrMalformed is returned for input that is not a precision-5 polyline.
var ErrMalformed = errors.New("malformed polyline")

const (
	scale     = 1e5
	alphabet  = 63 // offset added to every 5-bit chunk
	chunkBits = 5
	chunkMask = 0x1f
	more      = 0x20 // continuation flag
	maxShift  = 30
)

// Coordinate is a WGS84 point.
type Coordinate struct {
	Lat float64
	Lon float64
}

// Bounds is the smallest box containing a set of coordinates.
type Bounds struct {
	MinLat float64
	MinLon float64
	MaxLat float64
	MaxLon float64
}

// cursor walks an encoded string one signed delta at a time.
type cursor struct {
	s   string
	pos int
}

func (c *cursor) done() bool { return c.pos >= len(c.s) }

func (c *cursor) next() (int, error) {
	start := c.pos
	var acc, shift int
	for {
		if c.done() {
			return 0, fmt.Errorf("%w: truncated value at offset %d", ErrMalformed, start)
		}
		chunk := int(c.s[c.pos]) - alphabet
		if chunk < 0 || chunk > 2*more-1 {
			return 0, fmt.Errorf("%w: invalid byte %q at offset %d", ErrMalformed, c.s[c.pos], c.pos)
		}
		c.pos++
		acc |= (chunk & chunkMask) << shift
		if chunk&more == 0 {
			break
		}
		shift += chunkBits
		if shift > maxShift {
			return 0, fmt.Errorf("%w: value too long at offset %d", ErrMalformed, start)
		}
	}
	if acc&1 == 1 {
		return ^(acc >> 1), nil
	}
	return acc >> 1, nil
}

// Decode returns the points of an encoded polyline. Empty input yields no
// points. A latitude without its longitude, bytes outside the alphabet and
// points outside WGS84 ranges are ErrMalformed.
func Decode(encoded string) ([]Coordinate, error) {
	if encoded == "" {
		return nil, nil
	}

	c := &cursor{s: encoded}
	var points []Coordinate
	var lat, lon int
	for !c.done() {
		pairStart := c.pos
		dLat, err := c.next()
		if err != nil {
			return nil, err
		}
		if c.done() {
			return nil, fmt.Errorf("%w: dangling latitude at offset %d", ErrMalformed, pairStart)
		}
		dLon, err := c.next()
		if err != nil {
			return nil, err
		}
		lat, lon = lat+dLat, lon+dLon

		p := Coordinate{Lat: float64(lat) / scale, Lon: float64(lon) / scale}
		if math.Abs(p.Lat) > 90 || math.Abs(p.Lon) > 180 {
			return nil, fmt.Errorf("%w: point %d out of range (%f, %f)", ErrMalformed, len(points), p.Lat, p.Lon)
		}
		points = append(points, p)
	}
	return points, nil
}

// Encode writes points as a polyline, rounding to five decimals.
func Encode(points []Coordinate) string {
	var b strings.Builder
	b.Grow(len(points) * 8)
	var prevLat, prevLon int
	for _, p := range points {
		lat := int(math.Round(p.Lat * scale))
		lon := int(math.Round(p.Lon * scale))
		writeDelta(&b, lat-prevLat)
		writeDelta(&b, lon-prevLon)
		prevLat, prevLon = lat, lon
	}
	return b.String()
}

func writeDelta(b *strings.Builder, delta int) {
	v := delta << 1
	if delta < 0 {
		v = ^v
	}
	for v >= more {
		b.WriteByte(byte(more|v&chunkMask) + alphabet)
		v >>= chunkBits
	}
	b.WriteByte(byte(v) + alphabet)
}

// BoundsOf returns the bounding box of points. ok is false when there are
// none.
func BoundsOf(points []Coordinate) (b Bounds, ok bool) {
	if len(points) == 0 {
		return Bounds{}, false
	}
	b = Bounds{MinLat: math.Inf(1), MinLon: math.Inf(1), MaxLat: math.Inf(-1), MaxLon: math.Inf(-1)}
	for _, p := range points {
		b.MinLat, b.MaxLat = math.Min(b.MinLat, p.Lat), math.Max(b.MaxLat, p.Lat)
		b.MinLon, b.MaxLon = math.Min(b.MinLon, p.Lon), math.Max(b.MaxLon, p.Lon)
	}
	return b, true
}
