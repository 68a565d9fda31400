// Package geo holds the privacy-snapping utility. Raw device coordinates
// must pass through Snap before they are sent anywhere; the rest of the
// client only ever sees snapped values.
package geo

import "math"

// gridDegrees is the snapping grid in degrees of latitude, roughly 250 m.
const gridDegrees = 0.00225

// Snap deterministically rounds a coordinate pair to the coarse privacy
// grid. Equal inputs always produce equal outputs, so snapped positions
// are safe to compare and cache.
func Snap(lat, lng float64) (float64, float64) {
	return snapTo(lat, gridDegrees), snapTo(lng, gridDegrees)
}

func snapTo(v, grid float64) float64 {
	return math.Round(v/grid) * grid
}
