// Package geo holds the coordinate rules shared by report intake and
// proof-of-completion.
package geo

import (
	"errors"
	"fmt"
	"math"
)

// EarthRadiusMeters is the mean Earth radius used by Distance.
const EarthRadiusMeters = 6371000.0

// ProofRadiusMeters is how far a worker may be from the reported location
// when submitting proof of completion.
const ProofRadiusMeters = 50.0

var ErrInvalidCoordinates = errors.New("invalid coordinates")

// Point is a WGS84 coordinate in degrees.
type Point struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// Validate checks the point lies in [-90,90] x [-180,180].
func (p Point) Validate() error {
	if math.IsNaN(p.Lat) || math.IsNaN(p.Lng) {
		return fmt.Errorf("%w: not a number", ErrInvalidCoordinates)
	}
	if p.Lat < -90 || p.Lat > 90 {
		return fmt.Errorf("%w: latitude %.6f out of range", ErrInvalidCoordinates, p.Lat)
	}
	if p.Lng < -180 || p.Lng > 180 {
		return fmt.Errorf("%w: longitude %.6f out of range", ErrInvalidCoordinates, p.Lng)
	}
	return nil
}

// Distance returns the great-circle distance between a and b in meters
// using the haversine formula.
func Distance(a, b Point) float64 {
	lat1 := radians(a.Lat)
	lat2 := radians(b.Lat)
	dLat := radians(b.Lat - a.Lat)
	dLng := radians(b.Lng - a.Lng)

	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1)*math.Cos(lat2)*math.Sin(dLng/2)*math.Sin(dLng/2)
	c := 2 * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))
	return EarthRadiusMeters * c
}

func radians(deg float64) float64 {
	return deg * math.Pi / 180
}

// ProofError is returned when a worker is too far from the report.
type ProofError struct {
	Distance float64
	Limit    float64
}

func (e *ProofError) Error() string {
	return fmt.Sprintf("you are %.0f meters away from the reported location; proof must be submitted within %.0f meters",
		e.Distance, e.Limit)
}

// CheckProofDistance verifies the worker's position is within
// ProofRadiusMeters of the report. It returns the measured distance
// either way.
func CheckProofDistance(report, worker Point) (float64, error) {
	if err := worker.Validate(); err != nil {
		return 0, err
	}
	d := Distance(report, worker)
	if d > ProofRadiusMeters {
		return d, &ProofError{Distance: d, Limit: ProofRadiusMeters}
	}
	return d, nil
}
