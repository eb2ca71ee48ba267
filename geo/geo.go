// Package geo computes great-circle distances between coordinates.
package geo

import (
	"math"

	"github.com/pawsaarthi/rescue-api/models"
)

// EarthRadiusKm is the mean Earth radius used by Distance
const EarthRadiusKm = 6371.0

// Distance returns the haversine distance in kilometers between two points
// given in decimal degrees, rounded to two decimal places
func Distance(lat1, lng1, lat2, lng2 float64) float64 {
	dLat := toRad(lat2 - lat1)
	dLng := toRad(lng2 - lng1)

	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(toRad(lat1))*math.Cos(toRad(lat2))*math.Sin(dLng/2)*math.Sin(dLng/2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))

	return math.Round(EarthRadiusKm*c*100) / 100
}

// Between is Distance over two locations
func Between(a, b models.Location) float64 {
	return Distance(a.Lat, a.Lng, b.Lat, b.Lng)
}

// Valid reports whether loc lies within latitude and longitude bounds
func Valid(loc models.Location) bool {
	return !math.IsNaN(loc.Lat) && !math.IsNaN(loc.Lng) &&
		loc.Lat >= -90 && loc.Lat <= 90 && loc.Lng >= -180 && loc.Lng <= 180
}

func toRad(deg float64) float64 {
	return deg * math.Pi / 180
}
