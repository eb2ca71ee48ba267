package geo

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/pawsaarthi/rescue-api/models"
)

func TestDistanceSamePoint(t *testing.T) {
	assert.Equal(t, 0.0, Distance(28.6139, 77.2090, 28.6139, 77.2090))
}

func TestDistanceOneDegreeLongitudeAtEquator(t *testing.T) {
	assert.InDelta(t, 111.19, Distance(0, 0, 0, 1), 0.5)
}

func TestDistanceIsSymmetric(t *testing.T) {
	delhi := models.Location{Lat: 28.6139, Lng: 77.2090}
	agra := models.Location{Lat: 27.1767, Lng: 78.0081}
	assert.Equal(t, Between(delhi, agra), Between(agra, delhi))
	assert.InDelta(t, 178.0, Between(delhi, agra), 5)
}

func TestDistanceRoundsToTwoPlaces(t *testing.T) {
	d := Distance(12.9716, 77.5946, 13.0827, 80.2707)
	assert.Equal(t, d, float64(int64(d*100+0.5))/100)
}

func TestValid(t *testing.T) {
	assert.True(t, Valid(models.Location{Lat: 28.6, Lng: 77.2}))
	assert.False(t, Valid(models.Location{Lat: 91, Lng: 0}))
	assert.False(t, Valid(models.Location{Lat: 0, Lng: -181}))
}
