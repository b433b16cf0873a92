package web

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	appLog "plancal/internal/log"
	"plancal/internal/model"
	"plancal/internal/plan"
	"plancal/internal/store"
)

const maxBodyBytes = 1 << 20

func (s *Server) handleListPlans(w http.ResponseWriter, r *http.Request) {
	plans, err := s.plans.ListByUser(r.Context(), s.userID(r))
	if err != nil {
		s.writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, plans)
}

func (s *Server) handleCreatePlan(w http.ResponseWriter, r *http.Request) {
	var p model.Plan
	if !decodeBody(w, r, &p) {
		return
	}
	userID := s.userID(r)
	if err := s.plans.Create(r.Context(), userID, &p); err != nil {
		s.writeStoreError(w, err)
		return
	}
	s.invalidate(userID)
	writeJSON(w, http.StatusCreated, p)
}

func (s *Server) handleGetPlan(w http.ResponseWriter, r *http.Request) {
	p, ok := s.ownedPlan(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (s *Server) handleUpdatePlan(w http.ResponseWriter, r *http.Request) {
	var patch store.Patch
	if !decodeBody(w, r, &patch) {
		return
	}
	s.mutatePlan(w, r, func(id string) (*model.Plan, error) {
		return s.plans.Update(r.Context(), id, patch)
	})
}

type frequencyRequest struct {
	Frequency model.Frequency `json:"frequency"`
}

func (s *Server) handleUpdateFrequency(w http.ResponseWriter, r *http.Request) {
	var req frequencyRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Frequency == "" {
		writeError(w, http.StatusBadRequest, "frequency is required")
		return
	}
	s.mutatePlan(w, r, func(id string) (*model.Plan, error) {
		return s.plans.UpdateFrequency(r.Context(), id, req.Frequency)
	})
}

// handleToggleStep accepts either a step position or a stable step id.
func (s *Server) handleToggleStep(w http.ResponseWriter, r *http.Request) {
	step := r.PathValue("step")
	s.mutatePlan(w, r, func(id string) (*model.Plan, error) {
		var (
			updated *model.Plan
			err     error
		)
		if index, convErr := strconv.Atoi(step); convErr == nil {
			updated, err = s.plans.ToggleStep(r.Context(), id, index)
		} else {
			updated, err = s.plans.ToggleStepByID(r.Context(), id, step)
		}
		// A toggle that leaves every step done is the one that finished it.
		if err == nil && updated.Completed() {
			appLog.Info("checklist completed", "plan_id", updated.ID, "user_id", updated.UserID, "steps", len(updated.Steps))
		}
		return updated, err
	})
}

func (s *Server) handleDeletePlan(w http.ResponseWriter, r *http.Request) {
	p, ok := s.ownedPlan(w, r)
	if !ok {
		return
	}
	if err := s.plans.Delete(r.Context(), p.ID); err != nil {
		s.writeStoreError(w, err)
		return
	}
	s.invalidate(p.UserID)
	w.WriteHeader(http.StatusNoContent)
}

// mutatePlan checks ownership, runs fn and answers with the updated plan.
func (s *Server) mutatePlan(w http.ResponseWriter, r *http.Request, fn func(id string) (*model.Plan, error)) {
	p, ok := s.ownedPlan(w, r)
	if !ok {
		return
	}
	updated, err := fn(p.ID)
	if err != nil {
		s.writeStoreError(w, err)
		return
	}
	s.invalidate(p.UserID)
	writeJSON(w, http.StatusOK, updated)
}

// ownedPlan loads the {id} plan. Plans of other users are reported as not
// found.
func (s *Server) ownedPlan(w http.ResponseWriter, r *http.Request) (*model.Plan, bool) {
	p, err := s.plans.Get(r.Context(), r.PathValue("id"))
	if err == nil && p.UserID != s.userID(r) {
		err = store.ErrNotFound
	}
	if err != nil {
		s.writeStoreError(w, err)
		return nil, false
	}
	return p, true
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	if err := dec.Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body: "+err.Error())
		return false
	}
	return true
}

func (s *Server) writeStoreError(w http.ResponseWriter, err error) {
	var mpe *plan.MalformedPlanError
	switch {
	case errors.As(err, &mpe):
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: mpe.Error(), Field: mpe.Field})
	case errors.Is(err, store.ErrNotFound), errors.Is(err, store.ErrStepNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, store.ErrStepOutOfRange), errors.Is(err, store.ErrMissingUser):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, store.ErrNotChecklist), errors.Is(err, store.ErrNoFrequency):
		writeError(w, http.StatusConflict, err.Error())
	default:
		appLog.Error("plan request failed", err)
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}
