package seed

import (
	"fmt"
	"log/slog"

	"slotswap/internal/middleware"
	"slotswap/internal/models"

	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

// Options configures a seeding run.
type Options struct {
	Students           int
	RequestsPerStudent int
	// PairsPerCourse reciprocal pairs are created for every demo course on
	// top of the random requests.
	PairsPerCourse int
	Clean          bool
	// Seed makes the run reproducible when non-zero.
	Seed        int64
	EmailDomain string
	// FastHash hashes the demo password at bcrypt.MinCost.
	FastHash bool
}

func (o Options) bcryptCost() int {
	if o.FastHash {
		return bcrypt.MinCost
	}
	return bcrypt.DefaultCost
}

// DefaultOptions is what cmd/seed runs with when no flags are given.
func DefaultOptions() Options {
	return Options{
		Students:           30,
		RequestsPerStudent: 2,
		PairsPerCourse:     2,
		Clean:              true,
	}
}

// Summary counts what a run created.
type Summary struct {
	Students        int
	SwapRequests    int
	ReciprocalPairs int
}

// Seeder populates the database with demo students and swap requests.
type Seeder struct {
	db *gorm.DB
}

// NewSeeder returns a Seeder bound to db.
func NewSeeder(db *gorm.DB) *Seeder {
	return &Seeder{db: db}
}

// ClearAll removes every swap request and user.
func (s *Seeder) ClearAll() error {
	middleware.Logger.Info("clearing existing data")
	return s.db.Transaction(func(tx *gorm.DB) error {
		all := tx.Session(&gorm.Session{AllowGlobalUpdate: true})
		if err := all.Delete(&models.SwapRequest{}).Error; err != nil {
			return fmt.Errorf("clear swap requests: %w", err)
		}
		if err := all.Delete(&models.User{}).Error; err != nil {
			return fmt.Errorf("clear users: %w", err)
		}
		return nil
	})
}

// Run seeds according to opts.
func (s *Seeder) Run(opts Options) (Summary, error) {
	var sum Summary

	if opts.Clean {
		if err := s.ClearAll(); err != nil {
			return sum, err
		}
	}

	f, err := NewFactory(s.db, opts)
	if err != nil {
		return sum, err
	}

	students := make([]*models.User, 0, opts.Students)
	for i := 0; i < opts.Students; i++ {
		u, err := f.CreateStudent()
		if err != nil {
			return sum, fmt.Errorf("create student: %w", err)
		}
		students = append(students, u)
	}
	sum.Students = len(students)

	for _, u := range students {
		for j := 0; j < opts.RequestsPerStudent; j++ {
			if _, err := f.CreateSwapRequest(u); err != nil {
				return sum, fmt.Errorf("create swap request: %w", err)
			}
			sum.SwapRequests++
		}
	}

	// Pairs need two distinct owners.
	if len(students) >= 2 {
		k := 0
		for _, course := range courseCodes {
			for p := 0; p < opts.PairsPerCourse; p++ {
				a := students[k%len(students)]
				b := students[(k+1)%len(students)]
				k += 2
				if _, _, err := f.CreateReciprocalPair(a, b, course); err != nil {
					return sum, fmt.Errorf("create reciprocal pair: %w", err)
				}
				sum.SwapRequests += 2
				sum.ReciprocalPairs++
			}
		}
	}

	middleware.Logger.Info("seeding complete",
		slog.Int("students", sum.Students),
		slog.Int("swap_requests", sum.SwapRequests),
		slog.Int("reciprocal_pairs", sum.ReciprocalPairs),
	)
	return sum, nil
}
