package geo

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHaversineKm(t *testing.T) {
	tests := []struct {
		name       string
		lat1, lng1 float64
		lat2, lng2 float64
		want       float64
		delta      float64
	}{
		{"same point", 21.1576, -86.8269, 21.1576, -86.8269, 0, 1e-9},
		{"one degree of latitude", 0, 0, 1, 0, 111.195, 0.01},
		{"one degree of longitude at equator", 0, 0, 0, 1, 111.195, 0.01},
		{"el crucero to muelle ultramar", 21.1576, -86.8269, 21.207, -86.802, 6.07, 0.05},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, HaversineKm(tt.lat1, tt.lng1, tt.lat2, tt.lng2), tt.delta)
		})
	}
}

func TestHaversineKm_Symmetric(t *testing.T) {
	a := HaversineKm(21.141, -86.843, 21.04, -86.875)
	b := HaversineKm(21.04, -86.875, 21.141, -86.843)
	assert.InDelta(t, a, b, 1e-9)
}
