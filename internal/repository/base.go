// Package repository implements persistence for students and swap requests
// on top of GORM.
package repository

import (
	"errors"

	"slotswap/internal/database"
	"slotswap/internal/models"

	"gorm.io/gorm"
)

// listingDB picks the handle for lag-tolerant public listings: the read
// replica when one is connected, except inside a transaction, where reads
// must see the transaction's own writes.
func (r *swapRequestRepository) listingDB() *gorm.DB {
	if r.inTx {
		return r.db
	}
	if replica := database.GetReadDB(); replica != nil {
		return replica
	}
	return r.db
}

// findOne loads the first T matching the query. A miss yields (nil, nil) so
// callers decide whether absence is an error.
func findOne[T any](q *gorm.DB) (*T, error) {
	var out T
	err := q.Take(&out).Error
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		return nil, nil
	case err != nil:
		return nil, models.NewInternalError(err)
	}
	return &out, nil
}
