package geo

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidatePoint(t *testing.T) {
	tests := []struct {
		name      string
		lat, lng  float64
		wantField string
	}{
		{"valid", 21.16, -86.85, ""},
		{"bounds", -90, 180, ""},
		{"lat too high", 90.1, 0, "user_lat"},
		{"lng too low", 0, -180.5, "user_lng"},
		{"lat NaN", math.NaN(), 0, "user_lat"},
		{"lng inf", 0, math.Inf(1), "user_lng"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidatePoint(tt.lat, tt.lng, "user")
			if tt.wantField == "" {
				assert.NoError(t, err)
				return
			}
			var cerr *CoordinateError
			require.ErrorAs(t, err, &cerr)
			assert.Equal(t, tt.wantField, cerr.Field)
		})
	}
}
