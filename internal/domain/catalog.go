package domain

import (
	"encoding/json"
	"strings"
)

// TransportKind distinguishes the vehicle class serving a route.
// Catalogs may carry values outside the known set; they are kept verbatim.
type TransportKind string

const (
	TransportKindBus   TransportKind = "Bus"
	TransportKindCombi TransportKind = "Combi"
	TransportKindVan   TransportKind = "Van"
	TransportKindFerry TransportKind = "Ferry"
)

func (k TransportKind) String() string {
	switch k {
	case TransportKindBus:
		return "bus"
	case TransportKindCombi:
		return "combi"
	case TransportKindVan:
		return "van"
	case TransportKindFerry:
		return "ferry"
	case "":
		return "unknown"
	default:
		return strings.ToLower(string(k))
	}
}

// Catalog is the full set of curated routes. It is replaced as a whole.
type Catalog struct {
	Version string   `json:"version"`
	Routes  []*Route `json:"routes"`
}

// Schedule describes the service window of a route.
type Schedule struct {
	Start      string `json:"start,omitempty"`
	End        string `json:"end,omitempty"`
	NightGuard string `json:"night_guard,omitempty"`
}

// Route is one curated line with its ordered stops.
//
// Validation tags are evaluated in field order, so the order of fields
// here is the order in which violations are reported.
type Route struct {
	ID               string        `json:"id" validate:"required,max=100"`
	Name             string        `json:"name" validate:"max=200"`
	Price            float64       `json:"price" validate:"gte=0"`
	TransportKind    TransportKind `json:"transport_kind" validate:"max=200"`
	Operator         string        `json:"operator,omitempty" validate:"max=200"`
	LastUpdated      string        `json:"last_updated,omitempty" validate:"max=200"`
	FrequencyMinutes *int          `json:"frequency_minutes,omitempty" validate:"omitempty,gte=0"`
	Schedule         *Schedule     `json:"schedule,omitempty"`
	Stops            []Stop        `json:"stops" validate:"max=500"`
	SocialAlerts     []string      `json:"social_alerts,omitempty" validate:"max=20,dive,max=500"`

	// StopsNormalized is rebuilt on every load and never serialized.
	StopsNormalized []string `json:"-"`
}

// Stop is a named point along a route. Slice position already follows Order.
type Stop struct {
	ID        string  `json:"id,omitempty" validate:"max=100"`
	Name      string  `json:"name" validate:"max=200"`
	Lat       float64 `json:"lat" validate:"gte=-90,lte=90"`
	Lng       float64 `json:"lng" validate:"gte=-180,lte=180"`
	Order     int     `json:"order"`
	Landmarks string  `json:"landmarks,omitempty" validate:"max=200"`
}

// UnmarshalJSON accepts either a full stop object or a bare stop name,
// which is how hand-curated catalogs often list stops without coordinates.
func (s *Stop) UnmarshalJSON(data []byte) error {
	var name string
	if err := json.Unmarshal(data, &name); err == nil {
		*s = Stop{Name: name}
		return nil
	}

	type plain Stop
	var p plain
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	*s = Stop(p)
	return nil
}

// NormalizeName is the canonical form used for stop comparison.
func NormalizeName(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

// Normalize recomputes StopsNormalized from Stops.
func (r *Route) Normalize() {
	r.StopsNormalized = make([]string, len(r.Stops))
	for i, stop := range r.Stops {
		r.StopsNormalized[i] = NormalizeName(stop.Name)
	}
}

// Clone returns a deep copy of the route.
func (r *Route) Clone() *Route {
	if r == nil {
		return nil
	}
	c := *r
	if r.FrequencyMinutes != nil {
		f := *r.FrequencyMinutes
		c.FrequencyMinutes = &f
	}
	if r.Schedule != nil {
		sched := *r.Schedule
		c.Schedule = &sched
	}
	if r.Stops != nil {
		c.Stops = make([]Stop, len(r.Stops))
		copy(c.Stops, r.Stops)
	}
	if r.StopsNormalized != nil {
		c.StopsNormalized = make([]string, len(r.StopsNormalized))
		copy(c.StopsNormalized, r.StopsNormalized)
	}
	if r.SocialAlerts != nil {
		c.SocialAlerts = make([]string, len(r.SocialAlerts))
		copy(c.SocialAlerts, r.SocialAlerts)
	}
	return &c
}
