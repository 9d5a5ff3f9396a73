package geo

import (
	"errors"

	geom "github.com/peterstace/simplefeatures/geom"
	"github.com/wroge/wgs84"
)

// TRACK REFERENCE POINTS
// Track files carry a WGS84 reference for where the circuit sits in the
// world. We store it as 3857 so the audit database can hold it as WKB
// without any spatial extension being present.

// ErrInvalidLocation is returned when a track reference is outside valid
// WGS84 bounds.
var ErrInvalidLocation = errors.New("invalid track location provided")

// TrackLocation3857 converts a WGS84 longitude/latitude track reference
// into a web-mercator point.
func TrackLocation3857(longitude, latitude float64) (geom.Point, error) {
	if longitude < -180 || longitude > 180 || latitude < -85 || latitude > 85 {
		return geom.Point{}, ErrInvalidLocation
	}
	epsg := wgs84.EPSG()
	f := epsg.Transform(4326, 3857)
	x, y, _ := f(longitude, latitude, 0)
	point, err := geom.NewPoint(
		geom.Coordinates{
			XY: geom.XY{X: x, Y: y},
			Z:  0,
		},
	)
	if err != nil {
		return geom.Point{}, err
	}
	return point, nil
}
