package api

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	service "github.com/okian/flatrank/internal/app"
	"github.com/okian/flatrank/internal/domain/model"
)

type listingRequest struct {
	URL string `json:"url" validate:"required,http_url,max=2048"`
}

type removeResponse struct {
	Removed bool `json:"removed"`
}

type reloadResponse struct {
	Queued int `json:"queued"`
}

func (s *Server) handleListListings(w http.ResponseWriter, r *http.Request) {
	includeInactive := false
	if v := r.URL.Query().Get("include_inactive"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "bad_request", fmt.Errorf("include_inactive: %w", err))
			return
		}
		includeInactive = b
	}
	items, err := s.deps.ListListings(r.Context(), includeInactive)
	if err != nil {
		s.fail(w, r, "list listings", err)
		return
	}
	if items == nil {
		items = []model.RatedListing{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"listings": items})
}

func (s *Server) handleAddListing(w http.ResponseWriter, r *http.Request) {
	var req listingRequest
	if err := s.decode(r, &req); err != nil {
		s.fail(w, r, "add listing", err)
		return
	}
	l, err := s.deps.AddListing(r.Context(), req.URL)
	if err != nil {
		// The listing is stored but not yet queued for scraping.
		if errors.Is(err, service.ErrQueueFull) && l.ID != 0 {
			writeJSON(w, http.StatusAccepted, map[string]any{"listing": l, "queued": false})
			return
		}
		s.fail(w, r, "add listing", err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"listing": l, "queued": true})
}

func (s *Server) handleRemoveListing(w http.ResponseWriter, r *http.Request) {
	req := listingRequest{URL: r.URL.Query().Get("url")}
	if req.URL == "" && r.ContentLength != 0 {
		if err := s.decode(r, &req); err != nil {
			s.fail(w, r, "remove listing", err)
			return
		}
	} else if err := s.check(&req); err != nil {
		s.fail(w, r, "remove listing", err)
		return
	}
	removed, err := s.deps.RemoveListing(r.Context(), req.URL)
	if err != nil {
		s.fail(w, r, "remove listing", err)
		return
	}
	writeJSON(w, http.StatusOK, removeResponse{Removed: removed})
}

func (s *Server) handleGetListing(w http.ResponseWriter, r *http.Request) {
	id, err := listingID(r)
	if err != nil {
		s.fail(w, r, "get listing", err)
		return
	}
	d, err := s.deps.GetListing(r.Context(), id)
	if err != nil {
		s.fail(w, r, "get listing", err)
		return
	}
	writeJSON(w, http.StatusOK, d)
}

func (s *Server) handleReloadListing(w http.ResponseWriter, r *http.Request) {
	id, err := listingID(r)
	if err != nil {
		s.fail(w, r, "reload listing", err)
		return
	}
	if err := s.deps.ReloadListing(r.Context(), id); err != nil {
		s.fail(w, r, "reload listing", err)
		return
	}
	writeJSON(w, http.StatusAccepted, reloadResponse{Queued: 1})
}

func (s *Server) handleReloadAll(w http.ResponseWriter, r *http.Request) {
	n, err := s.deps.ReloadAll(r.Context())
	if err != nil {
		s.fail(w, r, "reload all", err)
		return
	}
	writeJSON(w, http.StatusAccepted, reloadResponse{Queued: n})
}

func listingID(r *http.Request) (model.ListingID, error) {
	raw := chi.URLParam(r, "id")
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("%w: invalid listing id %q", ErrBadRequest, raw)
	}
	return model.ListingID(id), nil
}
