package geo

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSnap_Deterministic(t *testing.T) {
	lat1, lng1 := Snap(40.712776, -74.005974)
	lat2, lng2 := Snap(40.712776, -74.005974)
	assert.Equal(t, lat1, lat2)
	assert.Equal(t, lng1, lng2)
}

func TestSnap_OnGrid(t *testing.T) {
	lat, lng := Snap(40.712776, -74.005974)

	// Snapped values sit on exact grid multiples.
	assert.InDelta(t, math.Round(lat/gridDegrees), lat/gridDegrees, 1e-9)
	assert.InDelta(t, math.Round(lng/gridDegrees), lng/gridDegrees, 1e-9)

	// And never drift more than half a grid cell from the input.
	assert.InDelta(t, 40.712776, lat, gridDegrees/2+1e-9)
	assert.InDelta(t, -74.005974, lng, gridDegrees/2+1e-9)
}

func TestSnap_NearbyPointsCollapse(t *testing.T) {
	// Two readings from the same spot with GPS noise well inside one cell.
	lat1, lng1 := Snap(40.7127000, -74.0060000)
	lat2, lng2 := Snap(40.7127004, -74.0060007)
	assert.Equal(t, lat1, lat2)
	assert.Equal(t, lng1, lng2)
}

func TestSnap_ZeroAndNegative(t *testing.T) {
	lat, lng := Snap(0, 0)
	assert.Zero(t, lat)
	assert.Zero(t, lng)

	negLat, _ := Snap(-33.868820, 151.209290)
	posLat, _ := Snap(33.868820, 151.209290)
	assert.InDelta(t, -posLat, negLat, 1e-9, "snapping is symmetric around zero")
}
