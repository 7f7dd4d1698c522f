package service

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/noah-isme/capstone-api/internal/dto"
	"github.com/noah-isme/capstone-api/internal/models"
	"github.com/noah-isme/capstone-api/internal/repository"
	appErrors "github.com/noah-isme/capstone-api/pkg/errors"
)

type txProviderMock struct {
	db *sqlx.DB
}

func newTxProviderMock(t *testing.T) (txProvider, sqlmock.Sqlmock) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return &txProviderMock{db: sqlx.NewDb(db, "sqlmock")}, mock
}

func (m *txProviderMock) BeginTxx(ctx context.Context, opts *sql.TxOptions) (*sqlx.Tx, error) {
	return m.db.BeginTxx(ctx, opts)
}

type allocationRepoStub struct {
	items     map[string]*models.Allocation
	allocated map[string]bool
	createErr error
	staleIDs  map[string]bool
}

func newAllocationRepoStub() *allocationRepoStub {
	return &allocationRepoStub{items: map[string]*models.Allocation{}, allocated: map[string]bool{}, staleIDs: map[string]bool{}}
}

func (s *allocationRepoStub) Create(ctx context.Context, exec sqlx.ExtContext, allocation *models.Allocation) error {
	if s.createErr != nil {
		return s.createErr
	}
	if allocation.ID == "" {
		allocation.ID = "alloc-" + allocation.StudentID
	}
	cp := *allocation
	s.items[allocation.ID] = &cp
	return nil
}

func (s *allocationRepoStub) FindByID(ctx context.Context, id string) (*models.Allocation, error) {
	item, ok := s.items[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	cp := *item
	return &cp, nil
}

func (s *allocationRepoStub) ActiveStudentIDs(ctx context.Context, studentIDs []string) ([]string, error) {
	var taken []string
	for _, id := range studentIDs {
		if s.allocated[id] {
			taken = append(taken, id)
		}
	}
	return taken, nil
}

func (s *allocationRepoStub) UpdateStatus(ctx context.Context, exec sqlx.ExtContext, id string, expected, next models.AllocationStatus) error {
	item, ok := s.items[id]
	if !ok || item.Status != expected || s.staleIDs[id] {
		return repository.ErrStaleStatus
	}
	item.Status = next
	return nil
}

func (s *allocationRepoStub) Approve(ctx context.Context, exec sqlx.ExtContext, id, offerID string) error {
	item, ok := s.items[id]
	if !ok || item.Status != models.AllocationStatusPending || s.staleIDs[id] {
		return repository.ErrStaleStatus
	}
	item.Status = models.AllocationStatusApproved
	item.OfferID = &offerID
	return nil
}

type offerLedgerStub struct {
	offers map[string]*models.LecturerOffer
}

func (s *offerLedgerStub) FindByID(ctx context.Context, id string) (*models.LecturerOffer, error) {
	offer, ok := s.offers[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	cp := *offer
	return &cp, nil
}

func (s *offerLedgerStub) FindAvailableForLecturer(ctx context.Context, exec sqlx.ExtContext, lecturerID string) (*models.LecturerOffer, error) {
	for _, offer := range s.offers {
		if offer.LecturerID == lecturerID && offer.CurrentCapacity < offer.Capacity {
			cp := *offer
			return &cp, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (s *offerLedgerStub) IncrementCapacity(ctx context.Context, exec sqlx.ExtContext, offerID string) error {
	offer, ok := s.offers[offerID]
	if !ok || offer.CurrentCapacity >= offer.Capacity {
		return repository.ErrCapacityExhausted
	}
	offer.CurrentCapacity++
	return nil
}

type preferenceResolverStub struct {
	resolved map[string]string
}

func (s *preferenceResolverStub) ResolveForStudent(ctx context.Context, exec sqlx.ExtContext, studentID, lecturerID string, topicPoolID *string) error {
	if s.resolved == nil {
		s.resolved = map[string]string{}
	}
	s.resolved[studentID] = lecturerID
	return nil
}

type proposalCreatorStub struct {
	created []models.Proposal
	members map[string][]models.ProposalMember
	err     error
}

func (s *proposalCreatorStub) Create(ctx context.Context, exec sqlx.ExtContext, proposal *models.Proposal, members []models.ProposalMember) error {
	if s.err != nil {
		return s.err
	}
	proposal.ID = "prop-" + proposal.AllocationID
	if s.members == nil {
		s.members = map[string][]models.ProposalMember{}
	}
	s.created = append(s.created, *proposal)
	s.members[proposal.ID] = members
	return nil
}

type allocationFixture struct {
	svc       *AllocationService
	repo      *allocationRepoStub
	offers    *offerLedgerStub
	prefs     *preferenceResolverStub
	proposals *proposalCreatorStub
	mock      sqlmock.Sqlmock
}

func newAllocationFixture(t *testing.T) *allocationFixture {
	tx, mock := newTxProviderMock(t)
	f := &allocationFixture{
		repo: newAllocationRepoStub(),
		offers: &offerLedgerStub{offers: map[string]*models.LecturerOffer{
			"o-x": {ID: "o-x", LecturerID: "lec-x", TopicTitle: ptr("Vision"), Capacity: 1, Status: models.OfferStatusApproved, Active: true},
		}},
		prefs:     &preferenceResolverStub{},
		proposals: &proposalCreatorStub{},
		mock:      mock,
	}
	f.svc = NewAllocationService(f.repo, f.offers, f.prefs, f.proposals, tx, NewMetricsService(), validator.New(), zap.NewNop())
	return f
}

var (
	adminActor    = &models.Identity{UserID: "admin-1", Roles: []models.ActorRole{models.RoleAdmin}}
	lecturerActor = &models.Identity{UserID: "lec-x", Kind: models.UserKindFaculty, Roles: []models.ActorRole{models.RoleLecturer}}
)

func TestAllocationServiceCreateApprovedCascades(t *testing.T) {
	f := newAllocationFixture(t)
	f.mock.ExpectBegin()
	f.mock.ExpectCommit()

	result, err := f.svc.Create(context.Background(), adminActor, dto.CreateAllocationRequest{
		StudentID: "stu-a", LecturerID: "lec-x", Approve: true,
	})
	require.NoError(t, err)

	assert.Equal(t, models.AllocationStatusApproved, result.Allocation.Status)
	require.NotNil(t, result.Allocation.OfferID)
	assert.Equal(t, "o-x", *result.Allocation.OfferID)
	assert.Equal(t, "Vision", result.Allocation.TopicTitle)
	assert.Equal(t, 1, f.offers.offers["o-x"].CurrentCapacity)
	assert.Equal(t, "lec-x", f.prefs.resolved["stu-a"])

	require.NotNil(t, result.Proposal)
	assert.Equal(t, models.ProposalStatusTopicSubmissionPending, result.Proposal.Status)
	assert.Equal(t, result.Allocation.ID, result.Proposal.AllocationID)
	members := f.proposals.members[result.Proposal.ID]
	require.Len(t, members, 2)
	assert.Equal(t, models.MemberRoleStudent, members[0].Role)
	assert.Equal(t, "stu-a", *members[0].StudentID)
	assert.Equal(t, models.MemberRoleAdvisor, members[1].Role)
	assert.Equal(t, "lec-x", *members[1].LecturerID)
	assert.NoError(t, f.mock.ExpectationsWereMet())
}

func TestAllocationServiceCreatePendingSkipsCascade(t *testing.T) {
	f := newAllocationFixture(t)
	f.mock.ExpectBegin()
	f.mock.ExpectCommit()

	result, err := f.svc.Create(context.Background(), lecturerActor, dto.CreateAllocationRequest{StudentID: "stu-a", LecturerID: "lec-x"})
	require.NoError(t, err)
	assert.Equal(t, models.AllocationStatusPending, result.Allocation.Status)
	assert.Nil(t, result.Proposal)
	assert.Zero(t, f.offers.offers["o-x"].CurrentCapacity)
	assert.Empty(t, f.proposals.created)
}

func TestAllocationServiceLecturerMayOnlyAllocateSelf(t *testing.T) {
	f := newAllocationFixture(t)
	_, err := f.svc.Create(context.Background(), lecturerActor, dto.CreateAllocationRequest{StudentID: "stu-a", LecturerID: "lec-y"})
	assert.True(t, errors.Is(err, appErrors.ErrForbidden))

	student := &models.Identity{UserID: "stu-a", Roles: []models.ActorRole{models.RoleStudent}}
	_, err = f.svc.Create(context.Background(), student, dto.CreateAllocationRequest{StudentID: "stu-a", LecturerID: "lec-x"})
	assert.True(t, errors.Is(err, appErrors.ErrForbidden))
}

func TestAllocationServiceRejectsAllocatedStudent(t *testing.T) {
	f := newAllocationFixture(t)
	f.repo.allocated["stu-a"] = true

	_, err := f.svc.Create(context.Background(), adminActor, dto.CreateAllocationRequest{StudentID: "stu-a", LecturerID: "lec-x"})
	require.Error(t, err)
	appErr := appErrors.FromError(err)
	assert.Equal(t, appErrors.ErrDuplicate.Code, appErr.Code)
	assert.Equal(t, []string{"stu-a"}, appErr.Details)
}

func TestAllocationServiceUniqueViolationIsDuplicate(t *testing.T) {
	f := newAllocationFixture(t)
	f.repo.createErr = repository.ErrUniqueViolation
	f.mock.ExpectBegin()
	f.mock.ExpectRollback()

	_, err := f.svc.Create(context.Background(), adminActor, dto.CreateAllocationRequest{StudentID: "stu-a", LecturerID: "lec-x"})
	assert.True(t, errors.Is(err, appErrors.ErrDuplicate))
	assert.NoError(t, f.mock.ExpectationsWereMet())
}

func TestAllocationServiceCapacityNeverExceeded(t *testing.T) {
	f := newAllocationFixture(t)
	f.mock.ExpectBegin()
	f.mock.ExpectCommit()
	f.mock.ExpectBegin()
	f.mock.ExpectRollback()

	_, err := f.svc.Create(context.Background(), adminActor, dto.CreateAllocationRequest{StudentID: "stu-a", LecturerID: "lec-x", Approve: true})
	require.NoError(t, err)

	_, err = f.svc.Create(context.Background(), adminActor, dto.CreateAllocationRequest{StudentID: "stu-b", LecturerID: "lec-x", Approve: true})
	assert.True(t, errors.Is(err, appErrors.ErrCapacityExceeded))
	offer := f.offers.offers["o-x"]
	assert.LessOrEqual(t, offer.CurrentCapacity, offer.Capacity)
	assert.Len(t, f.proposals.created, 1)
	assert.NoError(t, f.mock.ExpectationsWereMet())
}

func TestAllocationServiceMaterializeDuplicates(t *testing.T) {
	f := newAllocationFixture(t)

	_, err := f.svc.Materialize(context.Background(), adminActor, dto.MaterializeAllocationsRequest{Items: []dto.MaterializeAllocationItem{
		{StudentID: "stu-a", LecturerID: "lec-x"},
		{StudentID: "stu-a", LecturerID: "lec-y"},
	}})
	appErr := appErrors.FromError(err)
	assert.Equal(t, appErrors.ErrDuplicate.Code, appErr.Code)
	assert.Equal(t, []string{"stu-a"}, appErr.Details)

	f.repo.allocated["stu-b"] = true
	_, err = f.svc.Materialize(context.Background(), adminActor, dto.MaterializeAllocationsRequest{Items: []dto.MaterializeAllocationItem{
		{StudentID: "stu-a", LecturerID: "lec-x"},
		{StudentID: "stu-b", LecturerID: "lec-x"},
	}})
	appErr = appErrors.FromError(err)
	assert.Equal(t, appErrors.ErrDuplicate.Code, appErr.Code)
	assert.Equal(t, []string{"stu-b"}, appErr.Details)

	_, err = f.svc.Materialize(context.Background(), lecturerActor, dto.MaterializeAllocationsRequest{Items: []dto.MaterializeAllocationItem{{StudentID: "stu-c", LecturerID: "lec-x"}}})
	assert.True(t, errors.Is(err, appErrors.ErrForbidden))
}

func TestAllocationServiceMaterializeCreatesApproved(t *testing.T) {
	f := newAllocationFixture(t)
	f.offers.offers["o-y"] = &models.LecturerOffer{ID: "o-y", LecturerID: "lec-y", Capacity: 2, Status: models.OfferStatusApproved, Active: true}
	f.mock.ExpectBegin()
	f.mock.ExpectCommit()

	results, err := f.svc.Materialize(context.Background(), adminActor, dto.MaterializeAllocationsRequest{Items: []dto.MaterializeAllocationItem{
		{StudentID: "stu-a", LecturerID: "lec-x", OfferID: ptr("o-x"), TopicTitle: "Robotics"},
		{StudentID: "stu-b", LecturerID: "lec-y"},
	}})
	require.NoError(t, err)
	require.Len(t, results, 2)
	for _, result := range results {
		assert.Equal(t, models.AllocationStatusApproved, result.Allocation.Status)
		require.NotNil(t, result.Proposal)
	}
	assert.Equal(t, "Robotics", results[0].Proposal.Title)
	assert.Equal(t, 1, f.offers.offers["o-y"].CurrentCapacity)
	assert.NoError(t, f.mock.ExpectationsWereMet())
}

func TestAllocationServiceReview(t *testing.T) {
	f := newAllocationFixture(t)
	f.repo.items["alloc-1"] = &models.Allocation{ID: "alloc-1", StudentID: "stu-a", LecturerID: "lec-x", Status: models.AllocationStatusPending}
	f.repo.items["alloc-2"] = &models.Allocation{ID: "alloc-2", StudentID: "stu-b", LecturerID: "lec-y", Status: models.AllocationStatusPending}
	f.mock.ExpectBegin()
	f.mock.ExpectCommit()

	other := &models.Identity{UserID: "lec-z", Roles: []models.ActorRole{models.RoleLecturer}}
	_, err := f.svc.Review(context.Background(), other, "alloc-1", dto.ReviewAllocationRequest{Status: "APPROVED"})
	assert.True(t, errors.Is(err, appErrors.ErrForbidden))

	result, err := f.svc.Review(context.Background(), lecturerActor, "alloc-1", dto.ReviewAllocationRequest{Status: "APPROVED"})
	require.NoError(t, err)
	assert.Equal(t, models.AllocationStatusApproved, result.Allocation.Status)
	require.NotNil(t, result.Proposal)

	_, err = f.svc.Review(context.Background(), lecturerActor, "alloc-1", dto.ReviewAllocationRequest{Status: "REJECTED"})
	assert.True(t, errors.Is(err, appErrors.ErrInvalidTransition))

	_, err = f.svc.Review(context.Background(), adminActor, "missing", dto.ReviewAllocationRequest{Status: "REJECTED"})
	assert.True(t, errors.Is(err, appErrors.ErrNotFound))
	assert.NoError(t, f.mock.ExpectationsWereMet())
}

func TestAllocationServiceReviewRejectAndStale(t *testing.T) {
	f := newAllocationFixture(t)
	f.repo.items["alloc-1"] = &models.Allocation{ID: "alloc-1", StudentID: "stu-a", LecturerID: "lec-x", Status: models.AllocationStatusPending}
	f.repo.items["alloc-2"] = &models.Allocation{ID: "alloc-2", StudentID: "stu-b", LecturerID: "lec-x", Status: models.AllocationStatusPending}
	f.repo.staleIDs["alloc-2"] = true
	f.mock.ExpectBegin()
	f.mock.ExpectCommit()
	f.mock.ExpectBegin()
	f.mock.ExpectRollback()

	result, err := f.svc.Review(context.Background(), adminActor, "alloc-1", dto.ReviewAllocationRequest{Status: "REJECTED"})
	require.NoError(t, err)
	assert.Equal(t, models.AllocationStatusRejected, result.Allocation.Status)
	assert.Nil(t, result.Proposal)
	assert.Zero(t, f.offers.offers["o-x"].CurrentCapacity)

	_, err = f.svc.Review(context.Background(), adminActor, "alloc-2", dto.ReviewAllocationRequest{Status: "REJECTED"})
	assert.True(t, errors.Is(err, appErrors.ErrConflict))
	assert.NoError(t, f.mock.ExpectationsWereMet())
}
