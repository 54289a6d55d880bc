// Package geo converts between geodetic positions and local-level offsets.
//
// All public APIs speak degrees and meters; radians never cross a package
// boundary. Offsets use a north/east/up frame anchored at a reference
// point, which is accurate to well below GPS noise over the few hundred
// meters a formation spans.
package geo

import (
	"errors"
	"math"
)

// EarthRadiusM is the mean Earth radius used for every conversion here.
const EarthRadiusM = 6371000.0

// maxOperatingLat bounds the equirectangular approximation. Closer to a
// pole the meters-per-degree-longitude term collapses toward zero and
// east offsets stop being meaningful.
const maxOperatingLat = 89.5

// ErrUnsupportedRegion reports a position too close to a pole for
// offset math. Callers get this error, never NaN coordinates.
var ErrUnsupportedRegion = errors.New("geo: position outside supported region")

// Point is a geodetic position: latitude and longitude in degrees,
// altitude in meters.
type Point struct {
	Lat float64
	Lon float64
	Alt float64
}

// Offset is a displacement in meters relative to a reference point:
// north and east along the local surface, up against gravity. An Offset
// is only meaningful paired with the point it is anchored to.
type Offset struct {
	North float64
	East  float64
	Up    float64
}

// Offset translates p by o and returns the resulting position.
// Latitude scales with the Earth radius, longitude additionally with
// cos(lat); altitude is additive. Near the poles the conversion degrades,
// so both the origin and the result must stay inside the supported band
// or ErrUnsupportedRegion is returned.
func (p Point) Offset(o Offset) (Point, error) {
	if math.Abs(p.Lat) > maxOperatingLat {
		return Point{}, ErrUnsupportedRegion
	}
	dLat := (o.North / EarthRadiusM) * (180 / math.Pi)
	dLon := (o.East / (EarthRadiusM * math.Cos(degToRad(p.Lat)))) * (180 / math.Pi)

	out := Point{
		Lat: p.Lat + dLat,
		Lon: normalizeLon(p.Lon + dLon),
		Alt: p.Alt + o.Up,
	}
	if math.Abs(out.Lat) > maxOperatingLat {
		return Point{}, ErrUnsupportedRegion
	}
	return out, nil
}

// Displacement returns the local offset that moves from into to. It is
// the inverse of Point.Offset over short ranges: the longitude scale is
// taken at the origin latitude, matching the forward conversion.
func Displacement(from, to Point) (Offset, error) {
	if math.Abs(from.Lat) > maxOperatingLat || math.Abs(to.Lat) > maxOperatingLat {
		return Offset{}, ErrUnsupportedRegion
	}
	dLat := to.Lat - from.Lat
	dLon := normalizeLon(to.Lon - from.Lon)
	return Offset{
		North: degToRad(dLat) * EarthRadiusM,
		East:  degToRad(dLon) * EarthRadiusM * math.Cos(degToRad(from.Lat)),
		Up:    to.Alt - from.Alt,
	}, nil
}

// Distance returns the great-circle distance between a and b in meters
// (haversine). Altitude is ignored.
func Distance(a, b Point) float64 {
	lat1 := degToRad(a.Lat)
	lat2 := degToRad(b.Lat)
	dLat := degToRad(b.Lat - a.Lat)
	dLon := degToRad(b.Lon - a.Lon)

	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1)*math.Cos(lat2)*math.Sin(dLon/2)*math.Sin(dLon/2)
	return 2 * EarthRadiusM * math.Asin(math.Sqrt(h))
}

// Bearing returns the initial bearing from a to b in degrees,
// 0 = true north, increasing clockwise, always in [0, 360).
func Bearing(a, b Point) float64 {
	lat1 := degToRad(a.Lat)
	lat2 := degToRad(b.Lat)
	dLon := degToRad(b.Lon - a.Lon)

	y := math.Sin(dLon) * math.Cos(lat2)
	x := math.Cos(lat1)*math.Sin(lat2) - math.Sin(lat1)*math.Cos(lat2)*math.Cos(dLon)
	deg := radToDeg(math.Atan2(y, x))
	return math.Mod(deg+360, 360)
}

// normalizeLon keeps a longitude in [-180, 180) across the antimeridian.
func normalizeLon(lon float64) float64 {
	return math.Mod(lon+540, 360) - 180
}

func degToRad(d float64) float64 { return d * math.Pi / 180 }

func radToDeg(r float64) float64 { return r * 180 / math.Pi }
