// Package store persists plans in SQLite and pushes live per-user snapshots
// to subscribers after every change.
package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"
	"gorm.io/gorm"

	appLog "plancal/internal/log"
	"plancal/internal/model"
	"plancal/internal/plan"
)

var (
	ErrNotFound       = errors.New("plan not found")
	ErrNotChecklist   = errors.New("plan is not a checklist")
	ErrStepOutOfRange = errors.New("step index out of range")
	ErrStepNotFound   = errors.New("step not found")
	ErrMissingUser    = errors.New("plan user id is required")
	ErrNoFrequency    = errors.New("checklist plans have no frequency")
)

// Patch lists the editable plan fields. Nil fields are left untouched; id,
// user and creation time can never be changed.
type Patch struct {
	Title       *string          `json:"title"`
	Description *string          `json:"description"`
	Amount      *float64         `json:"amount"`
	StartDate   *string          `json:"startDate"`
	Frequency   *model.Frequency `json:"frequency"`
	EndDate     *string          `json:"endDate"`
	Steps       *[]model.Step    `json:"steps"`
}

// PlanStore handles CRUD for plans.
type PlanStore struct {
	db *gorm.DB

	// writeMu serializes read-modify-write cycles (step toggles, patches)
	// and the snapshot published after each, so subscribers never see an
	// older list after a newer one.
	writeMu sync.Mutex
	hub     *hub
}

func NewPlanStore(db *gorm.DB) *PlanStore {
	return &PlanStore{db: db, hub: newHub()}
}

// Create validates p, assigns its id and missing step ids, and stores it
// for userID.
func (s *PlanStore) Create(ctx context.Context, userID string, p *model.Plan) error {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return ErrMissingUser
	}
	p.ID = uuid.NewString()
	p.UserID = userID
	assignStepIDs(p.Steps)

	if err := plan.Validate(*p); err != nil {
		return err
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	if err := s.db.WithContext(ctx).Create(p).Error; err != nil {
		return fmt.Errorf("create plan: %w", err)
	}

	appLog.Info("plan created", "plan_id", p.ID, "user_id", userID, "type", string(p.Type))
	s.publish(ctx, userID)
	return nil
}

func (s *PlanStore) Get(ctx context.Context, id string) (*model.Plan, error) {
	var p model.Plan
	err := s.db.WithContext(ctx).Where("id = ?", id).First(&p).Error
	switch {
	case err == nil:
		return &p, nil
	case errors.Is(err, gorm.ErrRecordNotFound):
		return nil, ErrNotFound
	default:
		return nil, fmt.Errorf("find plan: %w", err)
	}
}

// ListByUser returns the user's plans, newest first.
func (s *PlanStore) ListByUser(ctx context.Context, userID string) ([]model.Plan, error) {
	plans := make([]model.Plan, 0)
	if err := s.db.WithContext(ctx).Where("user_id = ?", userID).
		Order("created_at DESC, id ASC").
		Find(&plans).Error; err != nil {
		return nil, fmt.Errorf("list plans: %w", err)
	}
	return plans, nil
}

// ListUsers returns every user id owning at least one plan.
func (s *PlanStore) ListUsers(ctx context.Context) ([]string, error) {
	var ids []string
	if err := s.db.WithContext(ctx).Model(&model.Plan{}).
		Distinct().Order("user_id").
		Pluck("user_id", &ids).Error; err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	return ids, nil
}

// Update applies patch to the plan and re-validates it.
func (s *PlanStore) Update(ctx context.Context, id string, patch Patch) (*model.Plan, error) {
	return s.mutate(ctx, id, func(p *model.Plan) error {
		applyPatch(p, patch)
		return plan.Validate(*p)
	})
}

// UpdateFrequency changes the cadence of a reminder or session.
func (s *PlanStore) UpdateFrequency(ctx context.Context, id string, freq model.Frequency) (*model.Plan, error) {
	return s.mutate(ctx, id, func(p *model.Plan) error {
		if p.Type == model.PlanChecklist {
			return ErrNoFrequency
		}
		p.Frequency = freq
		return nil
	})
}

// ToggleStep flips the done flag of the step at position index.
func (s *PlanStore) ToggleStep(ctx context.Context, id string, index int) (*model.Plan, error) {
	return s.mutate(ctx, id, func(p *model.Plan) error {
		if p.Type != model.PlanChecklist {
			return ErrNotChecklist
		}
		if index < 0 || index >= len(p.Steps) {
			return fmt.Errorf("%w: %d of %d", ErrStepOutOfRange, index, len(p.Steps))
		}
		p.Steps[index].Done = !p.Steps[index].Done
		return nil
	})
}

// ToggleStepByID flips the done flag of the step with the given stable id,
// wherever it currently sits in the list.
func (s *PlanStore) ToggleStepByID(ctx context.Context, id, stepID string) (*model.Plan, error) {
	return s.mutate(ctx, id, func(p *model.Plan) error {
		if p.Type != model.PlanChecklist {
			return ErrNotChecklist
		}
		for i := range p.Steps {
			if p.Steps[i].ID == stepID {
				p.Steps[i].Done = !p.Steps[i].Done
				return nil
			}
		}
		return fmt.Errorf("%w: %s", ErrStepNotFound, stepID)
	})
}

func (s *PlanStore) Delete(ctx context.Context, id string) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	p, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	if err := s.db.WithContext(ctx).Where("id = ?", id).Delete(&model.Plan{}).Error; err != nil {
		return fmt.Errorf("delete plan: %w", err)
	}

	appLog.Info("plan deleted", "plan_id", id, "user_id", p.UserID)
	s.publish(ctx, p.UserID)
	return nil
}

// Subscribe delivers the user's current plan list right away and again after
// every change. An unread snapshot is replaced by the newer one. The channel
// is closed when ctx is done.
func (s *PlanStore) Subscribe(ctx context.Context, userID string) <-chan []model.Plan {
	s.writeMu.Lock()
	sub := s.hub.add(userID)
	plans, err := s.ListByUser(ctx, userID)
	if err != nil {
		appLog.Error("plans subscription: initial list failed", err, "user_id", userID)
		plans = []model.Plan{}
	}
	s.hub.deliver(sub, plans)
	s.writeMu.Unlock()

	go func() {
		<-ctx.Done()
		s.hub.remove(userID, sub)
	}()
	return sub.ch
}

func (s *PlanStore) mutate(ctx context.Context, id string, fn func(*model.Plan) error) (*model.Plan, error) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	p, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := fn(p); err != nil {
		return nil, err
	}
	if err := s.db.WithContext(ctx).Save(p).Error; err != nil {
		return nil, fmt.Errorf("update plan: %w", err)
	}

	s.publish(ctx, p.UserID)
	return p, nil
}

// publish must be called with writeMu held.
func (s *PlanStore) publish(ctx context.Context, userID string) {
	if !s.hub.has(userID) {
		return
	}
	plans, err := s.ListByUser(context.WithoutCancel(ctx), userID)
	if err != nil {
		appLog.Error("plans subscription: list failed", err, "user_id", userID)
		return
	}
	s.hub.broadcast(userID, plans)
}

func applyPatch(p *model.Plan, patch Patch) {
	if patch.Title != nil {
		p.Title = *patch.Title
	}
	if patch.Description != nil {
		p.Description = *patch.Description
	}
	if patch.Amount != nil {
		amount := *patch.Amount
		p.Amount = &amount
	}
	if patch.StartDate != nil {
		p.StartDate = *patch.StartDate
	}
	if patch.Frequency != nil {
		p.Frequency = *patch.Frequency
	}
	if patch.EndDate != nil {
		p.EndDate = *patch.EndDate
	}
	if patch.Steps != nil {
		steps := append([]model.Step{}, (*patch.Steps)...)
		assignStepIDs(steps)
		p.Steps = steps
	}
}

func assignStepIDs(steps []model.Step) {
	for i := range steps {
		if steps[i].ID == "" {
			steps[i].ID = uuid.NewString()
		}
	}
}
