package domain

// JourneyKind tells a one-leg trip from a trip with a single transfer.
type JourneyKind string

const (
	JourneyDirect   JourneyKind = "Direct"
	JourneyTransfer JourneyKind = "Transfer"
)

// Journey is a ranked itinerary. Legs are copies owned by the caller.
type Journey struct {
	Kind          JourneyKind `json:"type"`
	Legs          []*Route    `json:"legs"`
	TransferPoint *string     `json:"transfer_point,omitempty"`
	TotalPrice    float64     `json:"total_price"`
}

// StopInfo is a resolved stop together with its distance from a query point.
type StopInfo struct {
	Name       string  `json:"name"`
	Lat        float64 `json:"lat"`
	Lng        float64 `json:"lng"`
	DistanceKm float64 `json:"distance_km"`
}

// Recommendation classifies last-mile reachability of public transit.
type Recommendation string

const (
	RecommendWalk             Recommendation = "Walk"
	RecommendPrivate          Recommendation = "Private"
	RecommendNoPublicCoverage Recommendation = "NoPublicCoverage"
)

// GapAnalysis reports the nearest stops to both trip endpoints.
type GapAnalysis struct {
	OriginGap      *StopInfo      `json:"origin_gap"`
	DestGap        *StopInfo      `json:"dest_gap"`
	Recommendation Recommendation `json:"recommendation"`
}
