package service

import (
	"context"
	"database/sql"
	"errors"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/capstone-api/internal/dto"
	"github.com/noah-isme/capstone-api/internal/models"
	"github.com/noah-isme/capstone-api/internal/repository"
	appErrors "github.com/noah-isme/capstone-api/pkg/errors"
)

type preferenceStore interface {
	Create(ctx context.Context, pref *models.StudentPreference) error
	FindByID(ctx context.Context, id string) (*models.StudentPreference, error)
	ListByStudent(ctx context.Context, studentID string) ([]models.StudentPreference, error)
	PriorityTaken(ctx context.Context, studentID string, priority int, excludeID string) (bool, error)
	Update(ctx context.Context, pref *models.StudentPreference) error
	SoftDelete(ctx context.Context, id string) error
}

// PreferenceService manages the ranked supervisor choices of students.
type PreferenceService struct {
	repo     preferenceStore
	validate *validator.Validate
	logger   *zap.Logger
}

// NewPreferenceService constructs the service.
func NewPreferenceService(repo preferenceStore, validate *validator.Validate, logger *zap.Logger) *PreferenceService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PreferenceService{repo: repo, validate: validate, logger: logger}
}

// Create records a new pending preference for the calling student.
func (s *PreferenceService) Create(ctx context.Context, actor *models.Identity, req dto.CreatePreferenceRequest) (*models.StudentPreference, error) {
	if err := s.requireStudent(actor); err != nil {
		return nil, err
	}
	if err := s.validate.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid preference payload")
	}
	if blank(req.LecturerID) && blank(req.TopicPoolID) {
		return nil, appErrors.Clone(appErrors.ErrValidation, "a preference needs a lecturer or a topic pool")
	}
	if err := s.ensurePriorityFree(ctx, actor.UserID, req.Priority, ""); err != nil {
		return nil, err
	}
	pref := &models.StudentPreference{
		StudentID:   actor.UserID,
		Priority:    req.Priority,
		LecturerID:  req.LecturerID,
		TopicPoolID: req.TopicPoolID,
		TopicTitle:  req.TopicTitle,
		Status:      models.PreferenceStatusPending,
	}
	if err := s.repo.Create(ctx, pref); err != nil {
		if errors.Is(err, repository.ErrUniqueViolation) {
			return nil, duplicatePriority(req.Priority)
		}
		return nil, appErrors.Internal(err, "failed to create preference")
	}
	s.logger.Info("preference created", zap.String("preference_id", pref.ID), zap.String("student_id", pref.StudentID), zap.Int("priority", pref.Priority))
	return pref, nil
}

// ListMine returns the calling student's preferences ordered by priority.
func (s *PreferenceService) ListMine(ctx context.Context, actor *models.Identity) ([]models.StudentPreference, error) {
	if err := s.requireStudent(actor); err != nil {
		return nil, err
	}
	prefs, err := s.repo.ListByStudent(ctx, actor.UserID)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to list preferences")
	}
	if prefs == nil {
		prefs = []models.StudentPreference{}
	}
	return prefs, nil
}

// Update edits a preference that is still pending.
func (s *PreferenceService) Update(ctx context.Context, actor *models.Identity, id string, req dto.UpdatePreferenceRequest) (*models.StudentPreference, error) {
	if err := s.validate.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid preference payload")
	}
	if blank(req.LecturerID) && blank(req.TopicPoolID) {
		return nil, appErrors.Clone(appErrors.ErrValidation, "a preference needs a lecturer or a topic pool")
	}
	pref, err := s.ownedEditable(ctx, actor, id)
	if err != nil {
		return nil, err
	}
	if req.Priority != pref.Priority {
		if err := s.ensurePriorityFree(ctx, actor.UserID, req.Priority, pref.ID); err != nil {
			return nil, err
		}
	}
	pref.Priority = req.Priority
	pref.LecturerID = req.LecturerID
	pref.TopicPoolID = req.TopicPoolID
	pref.TopicTitle = req.TopicTitle
	if err := s.repo.Update(ctx, pref); err != nil {
		switch {
		case errors.Is(err, repository.ErrUniqueViolation):
			return nil, duplicatePriority(req.Priority)
		case errors.Is(err, sql.ErrNoRows):
			return nil, appErrors.Clone(appErrors.ErrImmutableState, "preference has already been resolved")
		}
		return nil, appErrors.Internal(err, "failed to update preference")
	}
	return pref, nil
}

// Delete removes a pending preference.
func (s *PreferenceService) Delete(ctx context.Context, actor *models.Identity, id string) error {
	pref, err := s.ownedEditable(ctx, actor, id)
	if err != nil {
		return err
	}
	if err := s.repo.SoftDelete(ctx, pref.ID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrImmutableState, "preference has already been resolved")
		}
		return appErrors.Internal(err, "failed to delete preference")
	}
	return nil
}

func (s *PreferenceService) ownedEditable(ctx context.Context, actor *models.Identity, id string) (*models.StudentPreference, error) {
	if err := s.requireStudent(actor); err != nil {
		return nil, err
	}
	pref, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "preference not found")
		}
		return nil, appErrors.Internal(err, "failed to load preference")
	}
	if pref.StudentID != actor.UserID {
		return nil, appErrors.ErrForbidden
	}
	if !pref.Editable() {
		return nil, appErrors.WithDetails(appErrors.ErrImmutableState, "preference has already been resolved", map[string]string{
			"status": string(pref.Status),
		})
	}
	return pref, nil
}

func (s *PreferenceService) ensurePriorityFree(ctx context.Context, studentID string, priority int, excludeID string) error {
	taken, err := s.repo.PriorityTaken(ctx, studentID, priority, excludeID)
	if err != nil {
		return appErrors.Internal(err, "failed to check preference priority")
	}
	if taken {
		return duplicatePriority(priority)
	}
	return nil
}

func (s *PreferenceService) requireStudent(actor *models.Identity) error {
	if actor == nil {
		return appErrors.ErrUnauthorized
	}
	if !actor.HasRole(models.RoleStudent) {
		return appErrors.Clone(appErrors.ErrForbidden, "only students manage preferences")
	}
	return nil
}

func duplicatePriority(priority int) error {
	return appErrors.WithDetails(appErrors.ErrDuplicate, "another preference already uses this priority", map[string]int{"priority": priority})
}

func blank(v *string) bool {
	return v == nil || *v == ""
}
