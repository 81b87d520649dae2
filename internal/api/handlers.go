package api

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/Al3xBlack0ut/satelity/internal/catalog"
	"github.com/Al3xBlack0ut/satelity/internal/conjunction"
	"github.com/Al3xBlack0ut/satelity/internal/geo"
	"github.com/Al3xBlack0ut/satelity/internal/httputil"
	"github.com/Al3xBlack0ut/satelity/internal/orbit"
	"github.com/Al3xBlack0ut/satelity/internal/registry"
	"github.com/Al3xBlack0ut/satelity/internal/timegrid"
)

// maxImportBodyBytes caps inline TLE uploads on the import endpoint.
const maxImportBodyBytes = 50 << 20

// listResponse is the envelope for paginated collections.
type listResponse struct {
	Items any `json:"items"`
	Total int `json:"total"`
	Skip  int `json:"skip"`
	Limit int `json:"limit"`
}

// writeStoreError maps registry and propagation errors onto HTTP statuses.
func (s *Server) writeStoreError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, registry.ErrNotFound):
		httputil.WriteError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, registry.ErrUnknownOrbit):
		httputil.WriteError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, registry.ErrNameTaken), errors.Is(err, registry.ErrOrbitInUse):
		httputil.WriteError(w, http.StatusConflict, err.Error())
	case errors.Is(err, registry.ErrInvalidRecord), errors.Is(err, orbit.ErrMalformedElements):
		httputil.WriteError(w, http.StatusBadRequest, err.Error())
	default:
		s.logger.Error("request failed", "error", err)
		httputil.WriteError(w, http.StatusInternalServerError, "internal error")
	}
}

// --- orbits ---

func (s *Server) handleCreateOrbit(w http.ResponseWriter, r *http.Request) {
	var rec registry.OrbitRecord
	if err := json.NewDecoder(r.Body).Decode(&rec); err != nil {
		httputil.WriteError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	created, err := s.deps.Store.CreateOrbit(rec)
	if err != nil {
		s.writeStoreError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, created)
}

func (s *Server) handleListOrbits(w http.ResponseWriter, r *http.Request) {
	skip, limit, err := httputil.Pagination(r)
	if err != nil {
		httputil.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	items, total := s.deps.Store.ListOrbits(skip, limit, r.URL.Query().Get("name"))
	httputil.WriteJSON(w, http.StatusOK, listResponse{Items: items, Total: total, Skip: skip, Limit: limit})
}

func (s *Server) handleGetOrbit(w http.ResponseWriter, r *http.Request) {
	id, err := httputil.PathID(r, "id")
	if err != nil {
		httputil.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	rec, err := s.deps.Store.GetOrbit(id)
	if err != nil {
		s.writeStoreError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, rec)
}

func (s *Server) handleUpdateOrbit(w http.ResponseWriter, r *http.Request) {
	id, err := httputil.PathID(r, "id")
	if err != nil {
		httputil.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	var rec registry.OrbitRecord
	if err := json.NewDecoder(r.Body).Decode(&rec); err != nil {
		httputil.WriteError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	updated, err := s.deps.Store.UpdateOrbit(id, rec)
	if err != nil {
		s.writeStoreError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, updated)
}

func (s *Server) handleDeleteOrbit(w http.ResponseWriter, r *http.Request) {
	id, err := httputil.PathID(r, "id")
	if err != nil {
		httputil.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := s.deps.Store.DeleteOrbit(id); err != nil {
		s.writeStoreError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// --- satellites ---

func (s *Server) handleCreateSatellite(w http.ResponseWriter, r *http.Request) {
	var rec registry.SatelliteRecord
	if err := json.NewDecoder(r.Body).Decode(&rec); err != nil {
		httputil.WriteError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	created, err := s.deps.Store.CreateSatellite(rec)
	if err != nil {
		s.writeStoreError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, created)
}

func (s *Server) handleListSatellites(w http.ResponseWriter, r *http.Request) {
	skip, limit, err := httputil.Pagination(r)
	if err != nil {
		httputil.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	items, total := s.deps.Store.ListSatellites(skip, limit, r.URL.Query().Get("operator"))
	httputil.WriteJSON(w, http.StatusOK, listResponse{Items: items, Total: total, Skip: skip, Limit: limit})
}

func (s *Server) handleGetSatellite(w http.ResponseWriter, r *http.Request) {
	id, err := httputil.PathID(r, "id")
	if err != nil {
		httputil.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	rec, err := s.deps.Store.GetSatellite(id)
	if err != nil {
		s.writeStoreError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, rec)
}

func (s *Server) handleUpdateSatellite(w http.ResponseWriter, r *http.Request) {
	id, err := httputil.PathID(r, "id")
	if err != nil {
		httputil.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	var rec registry.SatelliteRecord
	if err := json.NewDecoder(r.Body).Decode(&rec); err != nil {
		httputil.WriteError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	updated, err := s.deps.Store.UpdateSatellite(id, rec)
	if err != nil {
		s.writeStoreError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, updated)
}

func (s *Server) handleDeleteSatellite(w http.ResponseWriter, r *http.Request) {
	id, err := httputil.PathID(r, "id")
	if err != nil {
		httputil.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := s.deps.Store.DeleteSatellite(id); err != nil {
		s.writeStoreError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// --- position ---

type positionResponse struct {
	ObjectID  int64        `json:"object_id"`
	Name      string       `json:"name"`
	Timestamp time.Time    `json:"timestamp"`
	Position  geo.Position `json:"position"`
}

// handlePosition computes one object's position at the requested timestamp
// (default: now). GET /api/v1/satellites/{id}/position?timestamp=RFC3339
func (s *Server) handlePosition(w http.ResponseWriter, r *http.Request) {
	id, err := httputil.PathID(r, "id")
	if err != nil {
		httputil.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	ts, given, err := httputil.QueryTime(r, "timestamp")
	if err != nil {
		httputil.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	if !given {
		ts = time.Now().UTC()
	}

	sat, err := s.deps.Store.GetSatellite(id)
	if err != nil {
		s.writeStoreError(w, err)
		return
	}

	if ts.Before(sat.LaunchedAt) {
		httputil.WriteError(w, http.StatusBadRequest, "timestamp precedes launch time")
		return
	}

	// Fast path: a "now" lookup can usually be served from the rolling
	// window without propagating.
	if !given && s.deps.Cache != nil {
		if set := s.deps.Cache.GetLatest(); set != nil {
			for _, p := range set.Positions {
				if p.ObjectID == id {
					httputil.WriteJSON(w, http.StatusOK, positionResponse{
						ObjectID:  id,
						Name:      sat.Name,
						Timestamp: set.Timestamp,
						Position:  p.Position,
					})
					return
				}
			}
		}
	}

	orb, err := s.deps.Store.GetOrbit(sat.OrbitID)
	if err != nil {
		s.writeStoreError(w, err)
		return
	}

	el := orb.Elements(s.deps.Store.Constants())
	pos, err := s.deps.Prop.Propagate(el, ts.Sub(sat.LaunchedAt).Seconds(), sat.InitialLonDeg)
	if err != nil {
		s.writeStoreError(w, err)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, positionResponse{
		ObjectID:  id,
		Name:      sat.Name,
		Timestamp: ts,
		Position:  pos,
	})
}

// --- conjunctions ---

type conjunctionsResponse struct {
	Start       time.Time           `json:"start"`
	End         time.Time           `json:"end"`
	Step        string              `json:"step"`
	ThresholdKm float64             `json:"threshold_km"`
	Count       int                 `json:"count"`
	Events      []conjunction.Event `json:"events"`
}

// handleConjunctions runs a sweep over the whole catalog.
// GET /api/v1/conjunctions?start=...&end=...&step=1m&threshold_km=0.01
func (s *Server) handleConjunctions(w http.ResponseWriter, r *http.Request) {
	start, ok, err := httputil.QueryTime(r, "start")
	if err != nil {
		httputil.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	if !ok {
		httputil.WriteError(w, http.StatusBadRequest, "missing start parameter")
		return
	}

	end, ok, err := httputil.QueryTime(r, "end")
	if err != nil {
		httputil.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	if !ok {
		httputil.WriteError(w, http.StatusBadRequest, "missing end parameter")
		return
	}

	step := r.URL.Query().Get("step")
	if step == "" {
		step = "1m"
	}

	threshold, err := httputil.QueryFloat(r, "threshold_km", 0)
	if err != nil {
		httputil.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	objects := s.deps.Store.Snapshot()
	events, err := s.deps.Detector.Detect(r.Context(), objects, start, end, step, threshold)
	if err != nil {
		switch {
		case errors.Is(err, timegrid.ErrInvalidStepSpec),
			errors.Is(err, timegrid.ErrInvalidInterval),
			errors.Is(err, timegrid.ErrIntervalTooLarge):
			httputil.WriteError(w, http.StatusBadRequest, err.Error())
		default:
			s.writeStoreError(w, err)
		}
		return
	}

	if threshold <= 0 {
		threshold = s.deps.Store.Constants().DefaultThresholdKm
	}

	httputil.WriteJSON(w, http.StatusOK, conjunctionsResponse{
		Start:       start,
		End:         end,
		Step:        step,
		ThresholdKm: threshold,
		Count:       len(events),
		Events:      events,
	})
}

// --- catalog import / cache stats ---

func (s *Server) handleCatalogImport(w http.ResponseWriter, r *http.Request) {
	if s.deps.Importer == nil {
		httputil.WriteError(w, http.StatusServiceUnavailable, "catalog import not configured")
		return
	}

	// A non-empty body is treated as TLE text; otherwise pull from the
	// configured source.
	body, err := io.ReadAll(io.LimitReader(r.Body, maxImportBodyBytes))
	if err != nil {
		httputil.WriteError(w, http.StatusBadRequest, "reading request body: "+err.Error())
		return
	}

	var summary catalog.Summary
	if len(bytes.TrimSpace(body)) > 0 {
		summary, err = s.deps.Importer.ImportReader(bytes.NewReader(body))
		if err != nil {
			httputil.WriteError(w, http.StatusBadRequest, err.Error())
			return
		}
	} else {
		summary, err = s.deps.Importer.Import(r.Context())
		if err != nil {
			httputil.WriteError(w, http.StatusBadGateway, err.Error())
			return
		}
	}
	httputil.WriteJSON(w, http.StatusOK, summary)
}

func (s *Server) handleCacheStats(w http.ResponseWriter, r *http.Request) {
	if s.deps.Cache == nil {
		httputil.WriteError(w, http.StatusServiceUnavailable, "cache not configured")
		return
	}
	httputil.WriteJSON(w, http.StatusOK, s.deps.Cache.Stats())
}
