package service

import (
	"context"
	"errors"
	"testing"

	"slotswap/internal/models"
	"slotswap/internal/repository"
)

type swapRepoStub struct {
	createFn            func(context.Context, *models.SwapRequest) error
	getByIDFn           func(context.Context, uint) (*models.SwapRequest, error)
	listFn              func(context.Context, repository.SwapFilter) ([]models.SwapRequest, error)
	listByStudentFn     func(context.Context, uint) ([]models.SwapRequest, error)
	listOpenByStudentFn func(context.Context, uint) ([]models.SwapRequest, error)
	findReciprocalFn    func(context.Context, *models.SwapRequest) ([]models.SwapRequest, error)
	updateFn            func(context.Context, uint, map[string]interface{}) error
	updateIfStatusFn    func(context.Context, uint, models.SwapStatus, map[string]interface{}) (bool, error)
	deleteFn            func(context.Context, uint) error
}

func (s *swapRepoStub) Create(ctx context.Context, req *models.SwapRequest) error {
	return s.createFn(ctx, req)
}
func (s *swapRepoStub) GetByID(ctx context.Context, id uint) (*models.SwapRequest, error) {
	return s.getByIDFn(ctx, id)
}
func (s *swapRepoStub) List(ctx context.Context, filter repository.SwapFilter) ([]models.SwapRequest, error) {
	return s.listFn(ctx, filter)
}
func (s *swapRepoStub) ListByStudent(ctx context.Context, studentID uint) ([]models.SwapRequest, error) {
	return s.listByStudentFn(ctx, studentID)
}
func (s *swapRepoStub) ListOpenByStudent(ctx context.Context, studentID uint) ([]models.SwapRequest, error) {
	return s.listOpenByStudentFn(ctx, studentID)
}
func (s *swapRepoStub) FindReciprocal(ctx context.Context, req *models.SwapRequest) ([]models.SwapRequest, error) {
	return s.findReciprocalFn(ctx, req)
}
func (s *swapRepoStub) Update(ctx context.Context, id uint, updates map[string]interface{}) error {
	return s.updateFn(ctx, id, updates)
}
func (s *swapRepoStub) UpdateIfStatus(ctx context.Context, id uint, from models.SwapStatus, updates map[string]interface{}) (bool, error) {
	return s.updateIfStatusFn(ctx, id, from, updates)
}
func (s *swapRepoStub) Delete(ctx context.Context, id uint) error {
	return s.deleteFn(ctx, id)
}
func (s *swapRepoStub) WithinTransaction(_ context.Context, fn func(repo repository.SwapRequestRepository) error) error {
	return fn(s)
}

type userRepoStub struct {
	getByIDFn    func(context.Context, uint) (*models.User, error)
	getByEmailFn func(context.Context, string) (*models.User, error)
	createFn     func(context.Context, *models.User) error
}

func (s *userRepoStub) GetByID(ctx context.Context, id uint) (*models.User, error) {
	return s.getByIDFn(ctx, id)
}
func (s *userRepoStub) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	return s.getByEmailFn(ctx, email)
}
func (s *userRepoStub) Create(ctx context.Context, user *models.User) error {
	return s.createFn(ctx, user)
}

func noopUserRepo() *userRepoStub {
	return &userRepoStub{
		getByIDFn:    func(_ context.Context, id uint) (*models.User, error) { return &models.User{ID: id}, nil },
		getByEmailFn: func(context.Context, string) (*models.User, error) { return nil, nil },
		createFn:     func(context.Context, *models.User) error { return nil },
	}
}

func noopSwapRepo() *swapRepoStub {
	return &swapRepoStub{
		createFn:            func(context.Context, *models.SwapRequest) error { return nil },
		getByIDFn:           func(_ context.Context, id uint) (*models.SwapRequest, error) { return &models.SwapRequest{ID: id}, nil },
		listFn:              func(context.Context, repository.SwapFilter) ([]models.SwapRequest, error) { return nil, nil },
		listByStudentFn:     func(context.Context, uint) ([]models.SwapRequest, error) { return nil, nil },
		listOpenByStudentFn: func(context.Context, uint) ([]models.SwapRequest, error) { return nil, nil },
		findReciprocalFn:    func(context.Context, *models.SwapRequest) ([]models.SwapRequest, error) { return nil, nil },
		updateFn:            func(context.Context, uint, map[string]interface{}) error { return nil },
		updateIfStatusFn: func(context.Context, uint, models.SwapStatus, map[string]interface{}) (bool, error) {
			return true, nil
		},
		deleteFn: func(context.Context, uint) error { return nil },
	}
}

func requireCode(t *testing.T, err error, code string) {
	t.Helper()
	if err == nil {
		t.Fatalf("expected %s error, got nil", code)
	}
	var appErr *models.AppError
	if !errors.As(err, &appErr) || appErr.Code != code {
		t.Fatalf("expected %s app error, got %#v", code, err)
	}
}

func TestSwapServiceConfirmValidatesBeforeStoreAccess(t *testing.T) {
	cases := []struct {
		name  string
		input ConfirmInput
		msg   string
	}{
		{"blank phone", ConfirmInput{RequestID: 1, MatchedRequestID: 2, Name: "Asha"}, "Phone number is required"},
		{"blank name", ConfirmInput{RequestID: 1, MatchedRequestID: 2, PhoneNumber: "9876543210", Name: "  "}, "Name is required"},
		{"short phone", ConfirmInput{RequestID: 1, MatchedRequestID: 2, PhoneNumber: "98765", Name: "Asha"}, "Phone number must be exactly 10 digits"},
		{"letters in phone", ConfirmInput{RequestID: 1, MatchedRequestID: 2, PhoneNumber: "98765abcde", Name: "Asha"}, "Phone number must be exactly 10 digits"},
		{"missing ids", ConfirmInput{PhoneNumber: "9876543210", Name: "Asha"}, ""},
		{"same request", ConfirmInput{RequestID: 4, MatchedRequestID: 4, PhoneNumber: "9876543210", Name: "Asha"}, ""},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			repo := noopSwapRepo()
			repo.getByIDFn = func(context.Context, uint) (*models.SwapRequest, error) {
				t.Fatal("store must not be read for invalid input")
				return nil, nil
			}
			svc := NewSwapService(repo, noopUserRepo(), nil)

			_, err := svc.ConfirmSwap(context.Background(), 1, tc.input)
			requireCode(t, err, models.CodeValidation)
			if tc.msg != "" && err.Error() != tc.msg {
				t.Fatalf("expected %q, got %q", tc.msg, err.Error())
			}
		})
	}
}

func TestSwapServiceConfirmNotOwner(t *testing.T) {
	repo := noopSwapRepo()
	repo.getByIDFn = func(_ context.Context, id uint) (*models.SwapRequest, error) {
		return &models.SwapRequest{ID: id, StudentID: 10, Status: models.SwapStatusOpen}, nil
	}
	repo.updateFn = func(context.Context, uint, map[string]interface{}) error {
		t.Fatal("no write expected")
		return nil
	}

	svc := NewSwapService(repo, noopUserRepo(), nil)
	_, err := svc.ConfirmSwap(context.Background(), 11, ConfirmInput{
		RequestID: 1, MatchedRequestID: 2, PhoneNumber: "9876543210", Name: "Asha",
	})
	requireCode(t, err, models.CodeForbidden)
}

func TestSwapServiceConfirmMatchedMissing(t *testing.T) {
	repo := noopSwapRepo()
	repo.getByIDFn = func(_ context.Context, id uint) (*models.SwapRequest, error) {
		if id == 2 {
			return nil, models.NewNotFoundError("Swap request", id)
		}
		return &models.SwapRequest{ID: id, StudentID: 10}, nil
	}

	svc := NewSwapService(repo, noopUserRepo(), nil)
	_, err := svc.ConfirmSwap(context.Background(), 10, ConfirmInput{
		RequestID: 1, MatchedRequestID: 2, PhoneNumber: "9876543210", Name: "Asha",
	})
	requireCode(t, err, models.CodeNotFound)
	if err.Error() != "Matched request not found" {
		t.Fatalf("unexpected message %q", err.Error())
	}
}

func TestSwapServiceConfirmWriteSets(t *testing.T) {
	repo := noopSwapRepo()
	repo.getByIDFn = func(_ context.Context, id uint) (*models.SwapRequest, error) {
		if id == 1 {
			return &models.SwapRequest{ID: 1, StudentID: 10, StudentEmail: "asha@uni.edu"}, nil
		}
		return &models.SwapRequest{ID: id, StudentID: 20}, nil
	}
	writes := map[uint]map[string]interface{}{}
	repo.updateFn = func(_ context.Context, id uint, updates map[string]interface{}) error {
		writes[id] = updates
		return nil
	}

	svc := NewSwapService(repo, noopUserRepo(), nil)
	_, err := svc.ConfirmSwap(context.Background(), 10, ConfirmInput{
		RequestID: 1, MatchedRequestID: 2, PhoneNumber: "9876543210", Name: "Asha", Notes: "evenings",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	own := writes[1]
	if own["student_phone"] != "9876543210" || own["student_contact_name"] != "Asha" || own["bargaining_notes"] != "evenings" {
		t.Fatalf("unexpected own write %#v", own)
	}
	if own["matched_with"] != uint(2) || own["status"] != models.SwapStatusMatched {
		t.Fatalf("unexpected own link %#v", own)
	}
	mirror := writes[2]
	if mirror["matched_student_phone"] != "9876543210" || mirror["matched_student_name"] != "Asha" || mirror["matched_student_email"] != "asha@uni.edu" {
		t.Fatalf("unexpected mirror write %#v", mirror)
	}
	if mirror["matched_with"] != uint(1) {
		t.Fatalf("mirror must link back, got %#v", mirror["matched_with"])
	}
	if _, leaked := mirror["student_phone"]; leaked {
		t.Fatal("mirror must not touch the counterparty's own contact set")
	}
}

func TestSwapServiceContactRequiresConfirmation(t *testing.T) {
	repo := noopSwapRepo()
	repo.getByIDFn = func(_ context.Context, id uint) (*models.SwapRequest, error) {
		return &models.SwapRequest{ID: id, StudentID: 10, Status: models.SwapStatusOpen}, nil
	}

	svc := NewSwapService(repo, noopUserRepo(), nil)
	_, err := svc.GetCounterpartyContact(context.Background(), 10, 1)
	requireCode(t, err, models.CodeInvalidState)
	if err.Error() != "Swap must be confirmed first" {
		t.Fatalf("unexpected message %q", err.Error())
	}

	_, err = svc.GetCounterpartyContact(context.Background(), 11, 1)
	requireCode(t, err, models.CodeForbidden)
}

func TestSwapServiceContactWithoutLink(t *testing.T) {
	repo := noopSwapRepo()
	repo.getByIDFn = func(_ context.Context, id uint) (*models.SwapRequest, error) {
		return &models.SwapRequest{ID: id, StudentID: 10, Status: models.SwapStatusMatched}, nil
	}

	svc := NewSwapService(repo, noopUserRepo(), nil)
	_, err := svc.GetCounterpartyContact(context.Background(), 10, 1)
	requireCode(t, err, models.CodeNotFound)
}

func TestSwapServiceCreateRejectsBlankFields(t *testing.T) {
	repo := noopSwapRepo()
	repo.createFn = func(context.Context, *models.SwapRequest) error {
		t.Fatal("nothing should be stored")
		return nil
	}

	svc := NewSwapService(repo, noopUserRepo(), nil)
	_, err := svc.CreateSwapRequest(context.Background(), 1, CreateSwapInput{
		CourseCode: "CS101", CurrentFaculty: "Rao", CurrentSlot: "  ", DesiredFaculty: "Iyer", DesiredSlot: "B1",
	})
	requireCode(t, err, models.CodeValidation)
}

func TestSwapServiceCreateUnknownUser(t *testing.T) {
	users := noopUserRepo()
	users.getByIDFn = func(_ context.Context, id uint) (*models.User, error) {
		return nil, models.NewNotFoundError("User", id)
	}

	svc := NewSwapService(noopSwapRepo(), users, nil)
	_, err := svc.CreateSwapRequest(context.Background(), 9, CreateSwapInput{
		CourseCode: "CS101", CurrentFaculty: "Rao", CurrentSlot: "A1", DesiredFaculty: "Iyer", DesiredSlot: "B1",
	})
	requireCode(t, err, models.CodeNotFound)
}

func TestSwapServiceDeleteNotOwner(t *testing.T) {
	repo := noopSwapRepo()
	repo.getByIDFn = func(_ context.Context, id uint) (*models.SwapRequest, error) {
		return &models.SwapRequest{ID: id, StudentID: 10}, nil
	}
	repo.deleteFn = func(context.Context, uint) error {
		t.Fatal("delete must not run")
		return nil
	}

	svc := NewSwapService(repo, noopUserRepo(), nil)
	requireCode(t, svc.DeleteSwapRequest(context.Background(), 11, 1), models.CodeForbidden)
}

func TestSwapServiceCompleteSkipsMissingCounterparty(t *testing.T) {
	linked := uint(2)
	repo := noopSwapRepo()
	repo.getByIDFn = func(_ context.Context, id uint) (*models.SwapRequest, error) {
		return &models.SwapRequest{ID: id, StudentID: 10, Status: models.SwapStatusMatched, MatchedWith: &linked}, nil
	}
	repo.updateFn = func(_ context.Context, id uint, _ map[string]interface{}) error {
		if id == linked {
			return models.NewNotFoundError("Swap request", id)
		}
		return nil
	}

	svc := NewSwapService(repo, noopUserRepo(), nil)
	out, err := svc.CompleteSwap(context.Background(), 10, 1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out.Linked != nil {
		t.Fatalf("expected no linked record, got %#v", out.Linked)
	}
}

func TestSwapServiceFindAllMatchesTagsRequest(t *testing.T) {
	repo := noopSwapRepo()
	repo.listOpenByStudentFn = func(context.Context, uint) ([]models.SwapRequest, error) {
		return []models.SwapRequest{{ID: 1}, {ID: 2}, {ID: 3}}, nil
	}
	repo.findReciprocalFn = func(_ context.Context, req *models.SwapRequest) ([]models.SwapRequest, error) {
		switch req.ID {
		case 1:
			return []models.SwapRequest{{ID: 7}}, nil
		case 3:
			return []models.SwapRequest{{ID: 8}, {ID: 7}}, nil
		}
		return nil, nil
	}

	svc := NewSwapService(repo, noopUserRepo(), nil)
	got, err := svc.FindAllMatchesForOwner(context.Background(), 5)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := [][2]uint{{7, 1}, {8, 3}, {7, 3}}
	if len(got) != len(want) {
		t.Fatalf("expected %d matches, got %d", len(want), len(got))
	}
	for i, w := range want {
		if got[i].ID != w[0] || got[i].RequestID != w[1] {
			t.Fatalf("match %d: expected %v, got id=%d requestId=%d", i, w, got[i].ID, got[i].RequestID)
		}
	}
}

func TestSwapServiceFindAllMatchesNoOpenRequests(t *testing.T) {
	svc := NewSwapService(noopSwapRepo(), noopUserRepo(), nil)
	got, err := svc.FindAllMatchesForOwner(context.Background(), 5)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got == nil || len(got) != 0 {
		t.Fatalf("expected empty non-nil slice, got %#v", got)
	}
}
