package repository

import (
	"context"
	"errors"
	"time"

	"slotswap/internal/cache"
	"slotswap/internal/models"

	"gorm.io/gorm"
)

// SwapFilter narrows a public listing. Empty fields match everything.
type SwapFilter struct {
	CourseCode string
	Status     models.SwapStatus
}

// SwapRequestRepository defines persistence operations for swap requests.
type SwapRequestRepository interface {
	Create(ctx context.Context, req *models.SwapRequest) error
	GetByID(ctx context.Context, id uint) (*models.SwapRequest, error)
	List(ctx context.Context, filter SwapFilter) ([]models.SwapRequest, error)
	ListByStudent(ctx context.Context, studentID uint) ([]models.SwapRequest, error)
	ListOpenByStudent(ctx context.Context, studentID uint) ([]models.SwapRequest, error)
	FindReciprocal(ctx context.Context, req *models.SwapRequest) ([]models.SwapRequest, error)
	Update(ctx context.Context, id uint, updates map[string]interface{}) error
	UpdateIfStatus(ctx context.Context, id uint, from models.SwapStatus, updates map[string]interface{}) (bool, error)
	Delete(ctx context.Context, id uint) error
	WithinTransaction(ctx context.Context, fn func(repo SwapRequestRepository) error) error
}

type swapRequestRepository struct {
	db      *gorm.DB
	listTTL time.Duration
	// inTx defers listing invalidation until the outer transaction commits.
	inTx bool
}

// NewSwapRequestRepository returns a repository whose public listings are
// cached in Redis for listTTL. A zero listTTL disables the listing cache.
func NewSwapRequestRepository(db *gorm.DB, listTTL time.Duration) SwapRequestRepository {
	return &swapRequestRepository{db: db, listTTL: listTTL}
}

func newestFirst(db *gorm.DB) *gorm.DB {
	return db.Order("created_at DESC").Order("id DESC")
}

func (r *swapRequestRepository) invalidate(ctx context.Context) {
	if !r.inTx {
		cache.InvalidateSwapLists(ctx)
	}
}

func (r *swapRequestRepository) Create(ctx context.Context, req *models.SwapRequest) error {
	if err := r.db.WithContext(ctx).Create(req).Error; err != nil {
		return models.NewInternalError(err)
	}
	r.invalidate(ctx)
	return nil
}

func (r *swapRequestRepository) GetByID(ctx context.Context, id uint) (*models.SwapRequest, error) {
	req, err := findOne[models.SwapRequest](r.db.WithContext(ctx).Where("id = ?", id))
	if err == nil && req == nil {
		return nil, models.NewNotFoundError("Swap request", id)
	}
	return req, err
}

func (r *swapRequestRepository) List(ctx context.Context, filter SwapFilter) ([]models.SwapRequest, error) {
	key := cache.SwapListKey(filter.CourseCode, string(filter.Status))
	return cache.Remember(ctx, key, r.listTTL, func() ([]models.SwapRequest, error) {
		requests := make([]models.SwapRequest, 0)
		q := r.listingDB().WithContext(ctx).Preload("Student")
		if filter.CourseCode != "" {
			q = q.Where("course_code = ?", filter.CourseCode)
		}
		if filter.Status != "" {
			q = q.Where("status = ?", filter.Status)
		}
		if err := newestFirst(q).Find(&requests).Error; err != nil {
			return nil, models.NewInternalError(err)
		}
		return requests, nil
	})
}

func (r *swapRequestRepository) ListByStudent(ctx context.Context, studentID uint) ([]models.SwapRequest, error) {
	requests := make([]models.SwapRequest, 0)
	q := r.db.WithContext(ctx).Preload("MatchedRequest").Where("student_id = ?", studentID)
	if err := newestFirst(q).Find(&requests).Error; err != nil {
		return nil, models.NewInternalError(err)
	}
	return requests, nil
}

func (r *swapRequestRepository) ListOpenByStudent(ctx context.Context, studentID uint) ([]models.SwapRequest, error) {
	requests := make([]models.SwapRequest, 0)
	q := r.db.WithContext(ctx).Where("student_id = ? AND status = ?", studentID, models.SwapStatusOpen)
	if err := newestFirst(q).Find(&requests).Error; err != nil {
		return nil, models.NewInternalError(err)
	}
	return requests, nil
}

// FindReciprocal returns every open request, other than req, holding what
// req wants and wanting what req holds in the same course.
func (r *swapRequestRepository) FindReciprocal(ctx context.Context, req *models.SwapRequest) ([]models.SwapRequest, error) {
	matches := make([]models.SwapRequest, 0)
	q := r.db.WithContext(ctx).
		Preload("Student").
		Where("id <> ?", req.ID).
		Where("course_code = ? AND status = ?", req.CourseCode, models.SwapStatusOpen).
		Where("current_faculty = ? AND current_slot = ?", req.DesiredFaculty, req.DesiredSlot).
		Where("desired_faculty = ? AND desired_slot = ?", req.CurrentFaculty, req.CurrentSlot)
	if err := newestFirst(q).Find(&matches).Error; err != nil {
		return nil, models.NewInternalError(err)
	}
	return matches, nil
}

func withVersionBump(updates map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(updates)+1)
	for k, v := range updates {
		out[k] = v
	}
	out["version"] = gorm.Expr("version + 1")
	return out
}

func (r *swapRequestRepository) Update(ctx context.Context, id uint, updates map[string]interface{}) error {
	result := r.db.WithContext(ctx).
		Model(&models.SwapRequest{}).
		Where("id = ?", id).
		Updates(withVersionBump(updates))
	if result.Error != nil {
		return models.NewInternalError(result.Error)
	}
	if result.RowsAffected == 0 {
		return models.NewNotFoundError("Swap request", id)
	}
	r.invalidate(ctx)
	return nil
}

// UpdateIfStatus applies updates only while the row is still in status
// from. It reports false, with no error, when the row has moved on or is gone.
func (r *swapRequestRepository) UpdateIfStatus(ctx context.Context, id uint, from models.SwapStatus, updates map[string]interface{}) (bool, error) {
	result := r.db.WithContext(ctx).
		Model(&models.SwapRequest{}).
		Where("id = ? AND status = ?", id, from).
		Updates(withVersionBump(updates))
	if result.Error != nil {
		return false, models.NewInternalError(result.Error)
	}
	if result.RowsAffected == 0 {
		return false, nil
	}
	r.invalidate(ctx)
	return true, nil
}

func (r *swapRequestRepository) Delete(ctx context.Context, id uint) error {
	result := r.db.WithContext(ctx).Delete(&models.SwapRequest{}, id)
	if result.Error != nil {
		return models.NewInternalError(result.Error)
	}
	if result.RowsAffected == 0 {
		return models.NewNotFoundError("Swap request", id)
	}
	r.invalidate(ctx)
	return nil
}

// WithinTransaction runs fn against a repository bound to one database
// transaction. fn's error rolls everything back; AppErrors pass through
// unchanged.
func (r *swapRequestRepository) WithinTransaction(ctx context.Context, fn func(repo SwapRequestRepository) error) error {
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&swapRequestRepository{db: tx, listTTL: r.listTTL, inTx: true})
	})
	if err != nil {
		var appErr *models.AppError
		if errors.As(err, &appErr) {
			return err
		}
		return models.NewInternalError(err)
	}
	r.invalidate(ctx)
	return nil
}
