// Package glicko implements a Glicko-2 rating period over pairwise outcomes.
//
// The engine is pure: it takes member states and outcomes and returns new
// states. It performs no I/O and holds no state between calls.
package glicko

import (
	"math"

	"github.com/okian/flatrank/internal/domain/model"
)

// Algorithm constants.
const (
	// Scale converts between the public rating scale and the Glicko-2 scale.
	Scale = 173.7178

	DefaultTau          = 0.5
	DefaultEpsilon      = 1e-6
	DefaultMinDeviation = 30.0

	maxVolatilityIterations = 100
)

// State is one member of a rating period.
type State struct {
	ID     model.ListingID
	Rating model.Rating
}

// Engine runs Glicko-2 rating periods.
type Engine struct {
	tau          float64
	epsilon      float64
	minDeviation float64
	maxDeviation float64
}

// New creates an engine with defaults overridden by opts.
func New(opts ...Option) *Engine {
	e := &Engine{
		tau:          DefaultTau,
		epsilon:      DefaultEpsilon,
		minDeviation: DefaultMinDeviation,
		maxDeviation: model.InitialDeviation,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Tau returns the configured system constant.
func (e *Engine) Tau() float64 { return e.tau }

type scaled struct {
	mu, phi, sigma float64
}

type result struct {
	opponent scaled
	score    float64
}

// Recompute treats outcomes as one rating period and returns the updated
// states in the input order. Every outcome is scored against the opponent's
// pre-period state. Outcomes naming an id outside states are ignored, and
// members with no results come back unchanged.
func (e *Engine) Recompute(states []State, outcomes []model.Outcome) []State {
	pre := make(map[model.ListingID]scaled, len(states))
	for _, s := range states {
		pre[s.ID] = toScaled(s.Rating)
	}

	results := make(map[model.ListingID][]result, len(states))
	for _, o := range outcomes {
		w, okW := pre[o.WinnerID]
		l, okL := pre[o.LoserID]
		if !okW || !okL || o.WinnerID == o.LoserID {
			continue
		}
		results[o.WinnerID] = append(results[o.WinnerID], result{opponent: l, score: 1})
		results[o.LoserID] = append(results[o.LoserID], result{opponent: w, score: 0})
	}

	out := make([]State, len(states))
	for i, s := range states {
		rs, ok := results[s.ID]
		if !ok {
			out[i] = s
			continue
		}
		out[i] = State{ID: s.ID, Rating: e.update(pre[s.ID], rs)}
	}
	return out
}

func (e *Engine) update(p scaled, rs []result) model.Rating {
	var invV, deltaSum float64
	for _, r := range rs {
		g := gFactor(r.opponent.phi)
		ex := expected(p.mu, r.opponent.mu, g)
		invV += g * g * ex * (1 - ex)
		deltaSum += g * (r.score - ex)
	}
	v := 1 / invV
	delta := v * deltaSum

	sigma := e.volatility(p.phi, p.sigma, v, delta)
	phiStar := math.Sqrt(p.phi*p.phi + sigma*sigma)
	phi := 1 / math.Sqrt(1/(phiStar*phiStar)+1/v)
	mu := p.mu + phi*phi*deltaSum

	return model.Rating{
		Rating:     Scale*mu + model.InitialRating,
		Deviation:  e.clampDeviation(Scale * phi),
		Volatility: sigma,
	}
}

// volatility solves for the new sigma with the Illinois variant of regula falsi.
func (e *Engine) volatility(phi, sigma, v, delta float64) float64 {
	a := math.Log(sigma * sigma)
	tau2 := e.tau * e.tau
	phi2 := phi * phi
	delta2 := delta * delta

	f := func(x float64) float64 {
		ex := math.Exp(x)
		d := phi2 + v + ex
		return ex*(delta2-phi2-v-ex)/(2*d*d) - (x-a)/tau2
	}

	bigA := a
	var bigB float64
	if delta2 > phi2+v {
		bigB = math.Log(delta2 - phi2 - v)
	} else {
		k := 1.0
		for f(a-k*e.tau) < 0 {
			k++
		}
		bigB = a - k*e.tau
	}

	fA, fB := f(bigA), f(bigB)
	for i := 0; math.Abs(bigB-bigA) > e.epsilon && i < maxVolatilityIterations; i++ {
		c := bigA + (bigA-bigB)*fA/(fB-fA)
		fC := f(c)
		if fC*fB <= 0 {
			bigA, fA = bigB, fB
		} else {
			fA /= 2
		}
		bigB, fB = c, fC
	}
	return math.Exp(bigA / 2)
}

func (e *Engine) clampDeviation(rd float64) float64 {
	return math.Max(e.minDeviation, math.Min(e.maxDeviation, rd))
}

func toScaled(r model.Rating) scaled {
	return scaled{
		mu:    (r.Rating - model.InitialRating) / Scale,
		phi:   r.Deviation / Scale,
		sigma: r.Volatility,
	}
}

func gFactor(phi float64) float64 {
	return 1 / math.Sqrt(1+3*phi*phi/(math.Pi*math.Pi))
}

func expected(mu, muJ, g float64) float64 {
	return 1 / (1 + math.Exp(-g*(mu-muJ)))
}

// WinProbability is the expected score of a against b.
func WinProbability(a, b model.Rating) float64 {
	sa, sb := toScaled(a), toScaled(b)
	return expected(sa.mu, sb.mu, gFactor(math.Sqrt(sa.phi*sa.phi+sb.phi*sb.phi)))
}
