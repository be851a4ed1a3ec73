package model

// Initial rating values for a listing that has never been compared.
const (
	InitialRating     = 1500.0
	InitialDeviation  = 350.0
	InitialVolatility = 0.06
)

// Rating is the Glicko-2 state of one listing on the public scale.
type Rating struct {
	Rating     float64 `json:"rating"`
	Deviation  float64 `json:"deviation"`
	Volatility float64 `json:"volatility"`
}

// NewRating returns the state every listing starts from.
// All defaulting goes through here; readers never fill in missing values.
func NewRating() Rating {
	return Rating{
		Rating:     InitialRating,
		Deviation:  InitialDeviation,
		Volatility: InitialVolatility,
	}
}
