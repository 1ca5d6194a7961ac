package service

import (
	"context"
	"fmt"
	"testing"

	"slotswap/internal/featureflags"
	"slotswap/internal/models"
	"slotswap/internal/repository"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

type swapFixture struct {
	svc   *SwapService
	swaps repository.SwapRequestRepository
	users repository.UserRepository
}

func newSwapFixture(t *testing.T, flags string) *swapFixture {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, db.AutoMigrate(&models.User{}, &models.SwapRequest{}))
	t.Cleanup(func() { _ = sqlDB.Close() })

	swaps := repository.NewSwapRequestRepository(db, 0)
	users := repository.NewUserRepository(db)
	return &swapFixture{
		svc:   NewSwapService(swaps, users, featureflags.NewManager(flags)),
		swaps: swaps,
		users: users,
	}
}

func (f *swapFixture) student(t *testing.T, name string) *models.User {
	t.Helper()
	u := &models.User{Name: name, Email: fmt.Sprintf("%s@uni.edu", name), Password: "hash"}
	require.NoError(t, f.users.Create(context.Background(), u))
	return u
}

func (f *swapFixture) post(t *testing.T, owner *models.User, course, curF, curS, wantF, wantS string) *models.SwapRequest {
	t.Helper()
	req, err := f.svc.CreateSwapRequest(context.Background(), owner.ID, CreateSwapInput{
		CourseCode:     course,
		CurrentFaculty: curF,
		CurrentSlot:    curS,
		DesiredFaculty: wantF,
		DesiredSlot:    wantS,
	})
	require.NoError(t, err)
	return req
}

func (f *swapFixture) reload(t *testing.T, id uint) *models.SwapRequest {
	t.Helper()
	req, err := f.swaps.GetByID(context.Background(), id)
	require.NoError(t, err)
	return req
}

func confirm(svc *SwapService, caller *models.User, req, matched *models.SwapRequest, name, phone string) error {
	_, err := svc.ConfirmSwap(context.Background(), caller.ID, ConfirmInput{
		RequestID:        req.ID,
		MatchedRequestID: matched.ID,
		Name:             name,
		PhoneNumber:      phone,
		Notes:            name + " is flexible",
	})
	return err
}

func TestSwapFlow_CreateSnapshotsOwner(t *testing.T) {
	f := newSwapFixture(t, "")
	asha := f.student(t, "asha")

	req := f.post(t, asha, " CS101 ", "Rao", "A1", "Iyer", "B1")
	assert.Equal(t, "CS101", req.CourseCode)
	assert.Equal(t, models.SwapStatusOpen, req.Status)
	assert.Equal(t, "asha", req.StudentName)
	assert.Equal(t, "asha@uni.edu", req.StudentEmail)
	assert.Nil(t, req.MatchedWith)
}

func TestSwapFlow_MatchingIsSymmetric(t *testing.T) {
	f := newSwapFixture(t, "")
	ctx := context.Background()
	asha, ben, chen := f.student(t, "asha"), f.student(t, "ben"), f.student(t, "chen")

	a := f.post(t, asha, "CS101", "Rao", "A1", "Iyer", "B1")
	b := f.post(t, ben, "CS101", "Iyer", "B1", "Rao", "A1")
	f.post(t, chen, "CS102", "Iyer", "B1", "Rao", "A1")
	f.post(t, chen, "CS101", "Iyer", "B2", "Rao", "A1")

	fromA, err := f.svc.FindMatches(ctx, a.ID)
	require.NoError(t, err)
	require.Len(t, fromA, 1)
	assert.Equal(t, b.ID, fromA[0].ID)

	fromB, err := f.svc.FindMatches(ctx, b.ID)
	require.NoError(t, err)
	require.Len(t, fromB, 1)
	assert.Equal(t, a.ID, fromB[0].ID)

	_, err = f.svc.FindMatches(ctx, 9999)
	assert.True(t, models.IsCode(err, models.CodeNotFound))
}

func TestSwapFlow_ConfirmRevealsCounterpartyToBothSides(t *testing.T) {
	f := newSwapFixture(t, "")
	ctx := context.Background()
	asha, ben := f.student(t, "asha"), f.student(t, "ben")
	a := f.post(t, asha, "CS101", "Rao", "A1", "Iyer", "B1")
	b := f.post(t, ben, "CS101", "Iyer", "B1", "Rao", "A1")

	require.NoError(t, confirm(f.svc, asha, a, b, "Asha K", "9876543210"))

	ra, rb := f.reload(t, a.ID), f.reload(t, b.ID)
	assert.Equal(t, models.SwapStatusMatched, ra.Status)
	assert.Equal(t, models.SwapStatusMatched, rb.Status)
	require.NotNil(t, ra.MatchedWith)
	require.NotNil(t, rb.MatchedWith)
	assert.Equal(t, b.ID, *ra.MatchedWith)
	assert.Equal(t, a.ID, *rb.MatchedWith)
	assert.Equal(t, 2, ra.Version)
	assert.Equal(t, 2, rb.Version)

	// Ben sees Asha's confirm details.
	forBen, err := f.svc.GetCounterpartyContact(ctx, ben.ID, b.ID)
	require.NoError(t, err)
	assert.Equal(t, models.Contact{
		Name:  "Asha K",
		Phone: "9876543210",
		Email: "asha@uni.edu",
		Notes: "Asha K is flexible",
	}, *forBen)

	// Ben has not confirmed, so Asha only sees his account snapshot.
	forAsha, err := f.svc.GetCounterpartyContact(ctx, asha.ID, a.ID)
	require.NoError(t, err)
	assert.Equal(t, "ben", forAsha.Name)
	assert.Equal(t, "ben@uni.edu", forAsha.Email)
	assert.Equal(t, models.NotAvailable, forAsha.Phone)
	assert.Equal(t, "", forAsha.Notes)

	// Once Ben confirms too, Asha gets his details and never her own.
	require.NoError(t, confirm(f.svc, ben, b, a, "Ben T", "9123456780"))
	forAsha, err = f.svc.GetCounterpartyContact(ctx, asha.ID, a.ID)
	require.NoError(t, err)
	assert.Equal(t, "Ben T", forAsha.Name)
	assert.Equal(t, "9123456780", forAsha.Phone)
	assert.NotEqual(t, "9876543210", forAsha.Phone)

	_, err = f.svc.GetCounterpartyContact(ctx, ben.ID, a.ID)
	assert.True(t, models.IsCode(err, models.CodeForbidden))
}

func TestSwapFlow_ConfirmAuthorization(t *testing.T) {
	f := newSwapFixture(t, "")
	asha, ben := f.student(t, "asha"), f.student(t, "ben")
	a := f.post(t, asha, "CS101", "Rao", "A1", "Iyer", "B1")
	b := f.post(t, ben, "CS101", "Iyer", "B1", "Rao", "A1")

	err := confirm(f.svc, ben, a, b, "Ben", "9123456780")
	assert.True(t, models.IsCode(err, models.CodeForbidden))
	assert.Equal(t, models.SwapStatusOpen, f.reload(t, a.ID).Status)
	assert.Equal(t, models.SwapStatusOpen, f.reload(t, b.ID).Status)

	err = confirm(f.svc, asha, a, &models.SwapRequest{ID: 9999}, "Asha", "9876543210")
	assert.True(t, models.IsCode(err, models.CodeNotFound))
	assert.Equal(t, models.SwapStatusOpen, f.reload(t, a.ID).Status, "failed confirm must roll back")
}

func TestSwapFlow_PermissiveConfirmOverwrites(t *testing.T) {
	f := newSwapFixture(t, "")
	asha, ben, chen := f.student(t, "asha"), f.student(t, "ben"), f.student(t, "chen")
	a := f.post(t, asha, "CS101", "Rao", "A1", "Iyer", "B1")
	b := f.post(t, ben, "CS101", "Iyer", "B1", "Rao", "A1")
	c := f.post(t, chen, "CS101", "Rao", "A1", "Iyer", "B1")

	require.NoError(t, confirm(f.svc, asha, a, b, "Asha", "9876543210"))
	// Chen targets B after it was already matched; permissive mode lets the
	// second write win.
	require.NoError(t, confirm(f.svc, chen, c, b, "Chen", "9000000001"))

	rb := f.reload(t, b.ID)
	require.NotNil(t, rb.MatchedWith)
	assert.Equal(t, c.ID, *rb.MatchedWith)
	assert.Equal(t, "Chen", rb.MatchedStudentName)
}

func TestSwapFlow_StrictConfirmRejectsStalePair(t *testing.T) {
	f := newSwapFixture(t, featureflags.StrictSwapConfirm+"=on")
	asha, ben, chen := f.student(t, "asha"), f.student(t, "ben"), f.student(t, "chen")
	a := f.post(t, asha, "CS101", "Rao", "A1", "Iyer", "B1")
	b := f.post(t, ben, "CS101", "Iyer", "B1", "Rao", "A1")
	c := f.post(t, chen, "CS101", "Rao", "A1", "Iyer", "B1")

	require.NoError(t, confirm(f.svc, asha, a, b, "Asha", "9876543210"))

	err := confirm(f.svc, chen, c, b, "Chen", "9000000001")
	assert.True(t, models.IsCode(err, models.CodeConflict))

	rb := f.reload(t, b.ID)
	require.NotNil(t, rb.MatchedWith)
	assert.Equal(t, a.ID, *rb.MatchedWith)
	assert.Equal(t, models.SwapStatusOpen, f.reload(t, c.ID).Status, "conflicting confirm must roll back")
}

func TestSwapFlow_StrictConfirmRequiresReciprocalPair(t *testing.T) {
	f := newSwapFixture(t, featureflags.StrictSwapConfirm+"=on")
	asha, ben := f.student(t, "asha"), f.student(t, "ben")
	a := f.post(t, asha, "CS101", "Rao", "A1", "Iyer", "B1")
	b := f.post(t, ben, "CS101", "Iyer", "B2", "Rao", "A1")

	err := confirm(f.svc, asha, a, b, "Asha", "9876543210")
	assert.True(t, models.IsCode(err, models.CodeInvalidState))
	assert.Equal(t, models.SwapStatusOpen, f.reload(t, a.ID).Status)
}

func TestSwapFlow_CompleteMarksBothSides(t *testing.T) {
	f := newSwapFixture(t, "")
	ctx := context.Background()
	asha, ben := f.student(t, "asha"), f.student(t, "ben")
	a := f.post(t, asha, "CS101", "Rao", "A1", "Iyer", "B1")
	b := f.post(t, ben, "CS101", "Iyer", "B1", "Rao", "A1")
	require.NoError(t, confirm(f.svc, asha, a, b, "Asha", "9876543210"))

	_, err := f.svc.CompleteSwap(ctx, ben.ID, a.ID)
	assert.True(t, models.IsCode(err, models.CodeForbidden))

	out, err := f.svc.CompleteSwap(ctx, asha.ID, a.ID)
	require.NoError(t, err)
	assert.Equal(t, models.SwapStatusCompleted, out.Request.Status)
	require.NotNil(t, out.Linked)
	assert.Equal(t, models.SwapStatusCompleted, out.Linked.Status)

	// Contact stays readable after completion.
	_, err = f.svc.GetCounterpartyContact(ctx, ben.ID, b.ID)
	require.NoError(t, err)

	_, err = f.svc.CompleteSwap(ctx, asha.ID, 9999)
	assert.True(t, models.IsCode(err, models.CodeNotFound))
}

func TestSwapFlow_StrictCompleteRequiresConfirmation(t *testing.T) {
	f := newSwapFixture(t, featureflags.StrictSwapConfirm+"=on")
	asha := f.student(t, "asha")
	a := f.post(t, asha, "CS101", "Rao", "A1", "Iyer", "B1")

	_, err := f.svc.CompleteSwap(context.Background(), asha.ID, a.ID)
	assert.True(t, models.IsCode(err, models.CodeInvalidState))
	assert.Equal(t, models.SwapStatusOpen, f.reload(t, a.ID).Status)
}

func TestSwapFlow_DeleteAnyStatus(t *testing.T) {
	f := newSwapFixture(t, "")
	ctx := context.Background()
	asha, ben := f.student(t, "asha"), f.student(t, "ben")
	a := f.post(t, asha, "CS101", "Rao", "A1", "Iyer", "B1")
	b := f.post(t, ben, "CS101", "Iyer", "B1", "Rao", "A1")
	require.NoError(t, confirm(f.svc, asha, a, b, "Asha", "9876543210"))

	assert.True(t, models.IsCode(f.svc.DeleteSwapRequest(ctx, ben.ID, a.ID), models.CodeForbidden))
	require.NoError(t, f.svc.DeleteSwapRequest(ctx, asha.ID, a.ID))
	assert.True(t, models.IsCode(f.svc.DeleteSwapRequest(ctx, asha.ID, a.ID), models.CodeNotFound))

	// Ben's link now points at nothing.
	_, err := f.svc.GetCounterpartyContact(ctx, ben.ID, b.ID)
	assert.True(t, models.IsCode(err, models.CodeNotFound))
}

func TestSwapFlow_MyMatchesAndListing(t *testing.T) {
	f := newSwapFixture(t, "")
	ctx := context.Background()
	asha, ben := f.student(t, "asha"), f.student(t, "ben")
	a := f.post(t, asha, "CS101", "Rao", "A1", "Iyer", "B1")
	f.post(t, asha, "MA201", "Das", "C1", "Sen", "C2")
	b := f.post(t, ben, "CS101", "Iyer", "B1", "Rao", "A1")

	matches, err := f.svc.FindAllMatchesForOwner(ctx, asha.ID)
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.Equal(t, b.ID, matches[0].ID)
	assert.Equal(t, a.ID, matches[0].RequestID)

	listed, err := f.svc.ListSwapRequests(ctx, repository.SwapFilter{CourseCode: "CS101"})
	require.NoError(t, err)
	require.Len(t, listed, 2)
	assert.Equal(t, b.ID, listed[0].ID, "newest first")

	require.NoError(t, confirm(f.svc, asha, a, b, "Asha", "9876543210"))
	mine, err := f.svc.GetMySwapRequests(ctx, asha.ID)
	require.NoError(t, err)
	require.Len(t, mine, 2)
	var linked *models.SwapRequest
	for i := range mine {
		if mine[i].ID == a.ID {
			linked = mine[i].MatchedRequest
		}
	}
	require.NotNil(t, linked)
	assert.Equal(t, b.ID, linked.ID)

	open, err := f.svc.ListSwapRequests(ctx, repository.SwapFilter{Status: models.SwapStatusOpen})
	require.NoError(t, err)
	assert.Len(t, open, 1)
}
