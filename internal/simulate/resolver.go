package simulate

import (
	"encoding/json"
	"net/http"
	"sync"

	"github.com/okian/flatrank/internal/domain/model"
)

type resolveRequest struct {
	URL string `json:"url"`
}

type resolvedData struct {
	Rooms        int     `json:"rooms"`
	Price        float64 `json:"price"`
	PricePerArea float64 `json:"price_per_area"`
	Area         float64 `json:"area"`
	Location     string  `json:"location"`
}

type resolveResponse struct {
	Success bool          `json:"success"`
	Data    *resolvedData `json:"data,omitempty"`
	Error   string        `json:"error,omitempty"`
}

// Resolver stands in for the listing resolver service and answers from a
// fixed catalog.
type Resolver struct {
	mu      sync.RWMutex
	catalog map[string]model.Attributes
	calls   int
}

// NewResolver serves the given listings.
func NewResolver(listings []Listing) *Resolver {
	r := &Resolver{catalog: make(map[string]model.Attributes, len(listings))}
	for _, l := range listings {
		r.catalog[l.URL] = l.Attributes
	}
	return r
}

// Calls returns how many resolve requests were served.
func (r *Resolver) Calls() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.calls
}

func (r *Resolver) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	var in resolveRequest
	if err := json.NewDecoder(req.Body).Decode(&in); err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	r.mu.Lock()
	r.calls++
	a, ok := r.catalog[in.URL]
	r.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	if !ok {
		_ = json.NewEncoder(w).Encode(resolveResponse{Error: "could not parse listing"})
		return
	}
	_ = json.NewEncoder(w).Encode(resolveResponse{Success: true, Data: &resolvedData{
		Rooms:        a.Rooms,
		Price:        a.Price,
		PricePerArea: a.PricePerArea,
		Area:         a.Area,
		Location:     a.Location,
	}})
}
