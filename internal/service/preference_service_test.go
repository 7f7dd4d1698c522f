package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/noah-isme/capstone-api/internal/dto"
	"github.com/noah-isme/capstone-api/internal/models"
	appErrors "github.com/noah-isme/capstone-api/pkg/errors"
)

type preferenceStoreStub struct {
	items map[string]*models.StudentPreference
	seq   int
}

func newPreferenceStoreStub() *preferenceStoreStub {
	return &preferenceStoreStub{items: map[string]*models.StudentPreference{}}
}

func (s *preferenceStoreStub) Create(ctx context.Context, pref *models.StudentPreference) error {
	s.seq++
	pref.ID = fmt.Sprintf("pref-%d", s.seq)
	cp := *pref
	s.items[pref.ID] = &cp
	return nil
}

func (s *preferenceStoreStub) FindByID(ctx context.Context, id string) (*models.StudentPreference, error) {
	pref, ok := s.items[id]
	if !ok || pref.DeletedAt != nil {
		return nil, sql.ErrNoRows
	}
	cp := *pref
	return &cp, nil
}

func (s *preferenceStoreStub) ListByStudent(ctx context.Context, studentID string) ([]models.StudentPreference, error) {
	var out []models.StudentPreference
	for _, pref := range s.items {
		if pref.StudentID == studentID && pref.DeletedAt == nil {
			out = append(out, *pref)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Priority < out[j].Priority })
	return out, nil
}

func (s *preferenceStoreStub) PriorityTaken(ctx context.Context, studentID string, priority int, excludeID string) (bool, error) {
	for _, pref := range s.items {
		if pref.StudentID == studentID && pref.Priority == priority && pref.ID != excludeID && pref.DeletedAt == nil {
			return true, nil
		}
	}
	return false, nil
}

func (s *preferenceStoreStub) Update(ctx context.Context, pref *models.StudentPreference) error {
	cp := *pref
	s.items[pref.ID] = &cp
	return nil
}

func (s *preferenceStoreStub) SoftDelete(ctx context.Context, id string) error {
	pref, ok := s.items[id]
	if !ok {
		return sql.ErrNoRows
	}
	now := pref.CreatedAt
	pref.DeletedAt = &now
	return nil
}

func TestPreferenceServiceCreateAndList(t *testing.T) {
	repo := newPreferenceStoreStub()
	svc := NewPreferenceService(repo, validator.New(), zap.NewNop())
	ctx := context.Background()

	_, err := svc.Create(ctx, studentA, dto.CreatePreferenceRequest{Priority: 2, LecturerID: ptr("lec-y")})
	require.NoError(t, err)
	created, err := svc.Create(ctx, studentA, dto.CreatePreferenceRequest{Priority: 1, TopicPoolID: ptr("pool-ai")})
	require.NoError(t, err)
	assert.Equal(t, models.PreferenceStatusPending, created.Status)
	assert.Equal(t, "stu-a", created.StudentID)

	prefs, err := svc.ListMine(ctx, studentA)
	require.NoError(t, err)
	require.Len(t, prefs, 2)
	assert.Equal(t, 1, prefs[0].Priority)
	assert.Equal(t, 2, prefs[1].Priority)
}

func TestPreferenceServiceRejectsDuplicatePriority(t *testing.T) {
	repo := newPreferenceStoreStub()
	svc := NewPreferenceService(repo, validator.New(), zap.NewNop())

	_, err := svc.Create(context.Background(), studentA, dto.CreatePreferenceRequest{Priority: 1, LecturerID: ptr("lec-x")})
	require.NoError(t, err)
	_, err = svc.Create(context.Background(), studentA, dto.CreatePreferenceRequest{Priority: 1, LecturerID: ptr("lec-y")})
	appErr := appErrors.FromError(err)
	assert.Equal(t, appErrors.ErrDuplicate.Code, appErr.Code)
	assert.Equal(t, map[string]int{"priority": 1}, appErr.Details)
}

func TestPreferenceServiceRequiresTarget(t *testing.T) {
	svc := NewPreferenceService(newPreferenceStoreStub(), validator.New(), zap.NewNop())
	_, err := svc.Create(context.Background(), studentA, dto.CreatePreferenceRequest{Priority: 1})
	assert.True(t, errors.Is(err, appErrors.ErrValidation))

	_, err = svc.Create(context.Background(), advisorX, dto.CreatePreferenceRequest{Priority: 1, LecturerID: ptr("lec-x")})
	assert.True(t, errors.Is(err, appErrors.ErrForbidden))
}

func TestPreferenceServiceResolvedPreferenceIsImmutable(t *testing.T) {
	repo := newPreferenceStoreStub()
	repo.items["pref-9"] = &models.StudentPreference{ID: "pref-9", StudentID: "stu-a", Priority: 1, LecturerID: ptr("lec-x"), Status: models.PreferenceStatusApproved}
	svc := NewPreferenceService(repo, validator.New(), zap.NewNop())

	_, err := svc.Update(context.Background(), studentA, "pref-9", dto.UpdatePreferenceRequest{Priority: 3, LecturerID: ptr("lec-y")})
	assert.True(t, errors.Is(err, appErrors.ErrImmutableState))

	err = svc.Delete(context.Background(), studentA, "pref-9")
	assert.True(t, errors.Is(err, appErrors.ErrImmutableState))
}

func TestPreferenceServiceUpdateAndDeleteOwned(t *testing.T) {
	repo := newPreferenceStoreStub()
	repo.items["pref-1"] = &models.StudentPreference{ID: "pref-1", StudentID: "stu-a", Priority: 1, LecturerID: ptr("lec-x"), Status: models.PreferenceStatusPending}
	repo.items["pref-2"] = &models.StudentPreference{ID: "pref-2", StudentID: "stu-a", Priority: 2, LecturerID: ptr("lec-y"), Status: models.PreferenceStatusPending}
	svc := NewPreferenceService(repo, validator.New(), zap.NewNop())
	ctx := context.Background()

	_, err := svc.Update(ctx, studentA, "pref-1", dto.UpdatePreferenceRequest{Priority: 2, LecturerID: ptr("lec-x")})
	assert.True(t, errors.Is(err, appErrors.ErrDuplicate))

	updated, err := svc.Update(ctx, studentA, "pref-1", dto.UpdatePreferenceRequest{Priority: 3, LecturerID: ptr("lec-z")})
	require.NoError(t, err)
	assert.Equal(t, 3, updated.Priority)
	assert.Equal(t, "lec-z", *updated.LecturerID)

	other := &models.Identity{UserID: "stu-b", Roles: []models.ActorRole{models.RoleStudent}}
	err = svc.Delete(ctx, other, "pref-2")
	assert.True(t, errors.Is(err, appErrors.ErrForbidden))

	require.NoError(t, svc.Delete(ctx, studentA, "pref-2"))
	err = svc.Delete(ctx, studentA, "pref-2")
	assert.True(t, errors.Is(err, appErrors.ErrNotFound))
}
