package api

import (
	"errors"
	"net/http"

	service "github.com/okian/flatrank/internal/app"
	"github.com/okian/flatrank/internal/domain/band"
	"github.com/okian/flatrank/internal/domain/model"
	"github.com/okian/flatrank/internal/domain/ranking"
	"github.com/okian/flatrank/pkg/logger"
)

type pairView struct {
	Band  band.ID            `json:"band"`
	Left  model.RatedListing `json:"left"`
	Right model.RatedListing `json:"right"`
}

type pairResponse struct {
	Pair *pairView `json:"pair"`
}

type judgmentRequest struct {
	WinnerID     int64  `json:"winner_id" validate:"required,gt=0"`
	LoserID      int64  `json:"loser_id" validate:"required,gt=0,nefield=WinnerID"`
	SubmissionID string `json:"submission_id" validate:"omitempty,max=128"`
}

type judgmentResponse struct {
	Status   string            `json:"status"`
	Outcome  *model.Outcome    `json:"outcome,omitempty"`
	Band     band.ID           `json:"band,omitempty"`
	Mismatch bool              `json:"mismatch,omitempty"`
	Failed   []model.ListingID `json:"failed,omitempty"`
	Error    string            `json:"error,omitempty"`
}

func (s *Server) handleBands(w http.ResponseWriter, r *http.Request) {
	bands, err := s.deps.Bands(r.Context())
	if err != nil {
		s.fail(w, r, "bands", err)
		return
	}
	if bands == nil {
		bands = []service.BandSummary{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"bands": bands})
}

func (s *Server) handleRankings(w http.ResponseWriter, r *http.Request) {
	rankings, err := s.deps.RankedBands(r.Context())
	if err != nil {
		s.fail(w, r, "rankings", err)
		return
	}
	if want := band.ID(r.URL.Query().Get("band")); want != "" {
		filtered := rankings[:0]
		for _, br := range rankings {
			if br.Band == want {
				filtered = append(filtered, br)
			}
		}
		rankings = filtered
	}
	if rankings == nil {
		rankings = []service.BandRanking{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"bands": rankings})
}

func (s *Server) handleNextPair(w http.ResponseWriter, r *http.Request) {
	p, ok, err := s.deps.NextPair(r.Context(), band.ID(r.URL.Query().Get("band")))
	if err != nil {
		s.fail(w, r, "next pair", err)
		return
	}
	if !ok {
		writeJSON(w, http.StatusOK, pairResponse{})
		return
	}
	writeJSON(w, http.StatusOK, pairResponse{Pair: &pairView{Band: p.Band, Left: p.Left, Right: p.Right}})
}

func (s *Server) handleSubmitJudgment(w http.ResponseWriter, r *http.Request) {
	var req judgmentRequest
	if err := s.decode(r, &req); err != nil {
		s.fail(w, r, "submit judgment", err)
		return
	}
	out, err := s.deps.SubmitJudgment(r.Context(), model.ListingID(req.WinnerID), model.ListingID(req.LoserID), req.SubmissionID)
	if out.Duplicate {
		writeJSON(w, http.StatusOK, judgmentResponse{Status: "duplicate"})
		return
	}
	if out.Result == nil {
		s.fail(w, r, "submit judgment", err)
		return
	}

	resp := judgmentResponse{
		Status:   "ok",
		Outcome:  &out.Result.Outcome,
		Band:     out.Result.Band,
		Mismatch: out.Result.Mismatch,
	}
	// The outcome is recorded either way; only the ratings lag behind.
	switch {
	case err == nil:
	case errors.Is(err, ranking.ErrPartialPersistence):
		resp.Status = "partial"
		if out.Result.Recompute != nil {
			resp.Failed = out.Result.Recompute.Failed
		}
		s.logger.Warn(r.Context(), "judgment recorded with failed rating writes", logger.Error(err))
	default:
		resp.Status = "recompute_failed"
		resp.Error = err.Error()
		s.logger.Error(r.Context(), "judgment recorded but band recompute failed",
			logger.String("band", string(out.Result.Band)), logger.Error(err))
	}
	writeJSON(w, http.StatusOK, resp)
}
