// Package seed provides helpers to create demo data for the swap board.
// These helpers are intended for development and testing only.
package seed

import (
	"fmt"
	"strings"

	"slotswap/internal/models"

	"github.com/brianvoe/gofakeit/v6"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

// DemoPassword is the password every seeded student signs in with.
const DemoPassword = "password123"

var (
	courseCodes = []string{"CS101", "CS202", "MA110", "PH150", "EE210", "HS101"}
	slots       = []string{"A1", "A2", "B1", "B2", "C1", "C2", "D1", "E1", "F1", "G1"}
)

// Factory builds domain entities and persists them to the database.
type Factory struct {
	db       *gorm.DB
	faker    *gofakeit.Faker
	domain   string
	password string
}

// NewFactory creates a Factory bound to db. A zero seed picks a random one;
// any other value makes the generated data reproducible.
func NewFactory(db *gorm.DB, opts Options) (*Factory, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(DemoPassword), opts.bcryptCost())
	if err != nil {
		return nil, fmt.Errorf("hash demo password: %w", err)
	}

	domain := strings.TrimPrefix(opts.EmailDomain, "@")
	if domain == "" {
		domain = "uni.edu"
	}

	return &Factory{
		db:       db,
		faker:    gofakeit.New(opts.Seed),
		domain:   domain,
		password: string(hash),
	}, nil
}

// CreateStudent constructs and persists a sample student. Optional override
// functions may modify the generated user before saving.
func (f *Factory) CreateStudent(overrides ...func(*models.User)) (*models.User, error) {
	first, last := f.faker.FirstName(), f.faker.LastName()
	user := &models.User{
		Name: first + " " + last,
		Email: fmt.Sprintf("%s.%s%d@%s",
			strings.ToLower(first), strings.ToLower(last), f.faker.Number(10, 9999), f.domain),
		Password: f.password,
		Role:     models.UserRoleStudent,
	}

	for _, override := range overrides {
		override(user)
	}

	if err := f.db.Create(user).Error; err != nil {
		return nil, err
	}
	return user, nil
}

// Faculty returns a plausible faculty display name.
func (f *Factory) Faculty() string {
	return "Dr. " + f.faker.LastName()
}

// BuildSwapRequest constructs an open request for owner without persisting it.
// Held and desired slots always differ.
func (f *Factory) BuildSwapRequest(owner *models.User, overrides ...func(*models.SwapRequest)) *models.SwapRequest {
	held := f.faker.RandomString(slots)
	want := f.faker.RandomString(slots)
	for want == held {
		want = f.faker.RandomString(slots)
	}

	req := &models.SwapRequest{
		StudentID:      owner.ID,
		StudentName:    owner.Name,
		StudentEmail:   owner.Email,
		CourseCode:     f.faker.RandomString(courseCodes),
		CurrentFaculty: f.Faculty(),
		CurrentSlot:    held,
		DesiredFaculty: f.Faculty(),
		DesiredSlot:    want,
		Status:         models.SwapStatusOpen,
		Notes:          f.faker.Sentence(8),
	}

	for _, override := range overrides {
		override(req)
	}
	return req
}

// CreateSwapRequest persists a request built by BuildSwapRequest.
func (f *Factory) CreateSwapRequest(owner *models.User, overrides ...func(*models.SwapRequest)) (*models.SwapRequest, error) {
	req := f.BuildSwapRequest(owner, overrides...)
	if err := f.db.Create(req).Error; err != nil {
		return nil, err
	}
	return req, nil
}

// CreateReciprocalPair posts a request for a and its exact inverse for b in
// the same course, so each shows up in the other's matches.
func (f *Factory) CreateReciprocalPair(a, b *models.User, courseCode string) (*models.SwapRequest, *models.SwapRequest, error) {
	first, err := f.CreateSwapRequest(a, func(r *models.SwapRequest) {
		r.CourseCode = courseCode
	})
	if err != nil {
		return nil, nil, err
	}

	second, err := f.CreateSwapRequest(b, func(r *models.SwapRequest) {
		r.CourseCode = courseCode
		r.CurrentFaculty, r.CurrentSlot = first.DesiredFaculty, first.DesiredSlot
		r.DesiredFaculty, r.DesiredSlot = first.CurrentFaculty, first.CurrentSlot
	})
	if err != nil {
		return nil, nil, err
	}
	return first, second, nil
}
