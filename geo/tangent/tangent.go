/*
Package tangent projects lat/lon onto a local flat east/north frame in meters.

The projection is equirectangular about an origin, which is plenty for the
displacements a single fix session covers (tens of kilometers). Nothing here
re-origins; callers that wander further than that should start over.
*/
package tangent

import (
	"math"

	"github.com/paulmach/orb"
)

// EarthRadius is the mean earth radius in meters.
const EarthRadius = 6_371_009.0

// minCosLat keeps the east scale finite at the poles.
const minCosLat = 1e-9

// Origin is the tangent point of a local frame.
type Origin struct {
	point  orb.Point
	cosLat float64
}

func NewOrigin(p orb.Point) Origin {
	c := math.Cos(deg2rad(p.Lat()))
	if c < minCosLat {
		c = minCosLat
	}
	return Origin{point: p, cosLat: c}
}

func (o Origin) Point() orb.Point {
	return o.point
}

// Project returns the east and north offsets of p from the origin, in meters.
func (o Origin) Project(p orb.Point) (east, north float64) {
	dLon := normalizeLon(p.Lon() - o.point.Lon())
	dLat := p.Lat() - o.point.Lat()
	east = EarthRadius * o.cosLat * deg2rad(dLon)
	north = EarthRadius * deg2rad(dLat)
	return east, north
}

// Unproject is the inverse of Project.
func (o Origin) Unproject(east, north float64) orb.Point {
	lat := o.point.Lat() + rad2deg(north/EarthRadius)
	lon := normalizeLon(o.point.Lon() + rad2deg(east/(EarthRadius*o.cosLat)))
	return orb.Point{lon, lat}
}

// normalizeLon wraps degrees into [-180, 180).
func normalizeLon(d float64) float64 {
	if d >= -180 && d < 180 {
		return d
	}
	d = math.Mod(d+180, 360)
	if d < 0 {
		d += 360
	}
	return d - 180
}

func deg2rad(d float64) float64 {
	return d * math.Pi / 180
}

func rad2deg(r float64) float64 {
	return r * 180 / math.Pi
}
