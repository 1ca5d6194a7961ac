package repository

import (
	"context"
	"fmt"
	"testing"

	"slotswap/internal/models"

	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// setupTestDB returns an isolated in-memory SQLite database with the schema applied.
func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	require.NoError(t, err)
	// Every pooled connection to ":memory:" is a separate database.
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, db.AutoMigrate(&models.User{}, &models.SwapRequest{}))
	t.Cleanup(func() { _ = sqlDB.Close() })
	return db
}

func createUser(t *testing.T, db *gorm.DB, name string) *models.User {
	t.Helper()
	u := &models.User{Name: name, Email: fmt.Sprintf("%s@uni.edu", name), Password: "hash"}
	require.NoError(t, NewUserRepository(db).Create(context.Background(), u))
	return u
}

func createSwap(t *testing.T, repo SwapRequestRepository, owner *models.User, course, curF, curS, wantF, wantS string) *models.SwapRequest {
	t.Helper()
	req := &models.SwapRequest{
		StudentID:      owner.ID,
		CourseCode:     course,
		CurrentFaculty: curF,
		CurrentSlot:    curS,
		DesiredFaculty: wantF,
		DesiredSlot:    wantS,
		Status:         models.SwapStatusOpen,
		StudentName:    owner.Name,
		StudentEmail:   owner.Email,
	}
	require.NoError(t, repo.Create(context.Background(), req))
	return req
}
