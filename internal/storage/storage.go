package storage

import (
	"context"
	"errors"

	"github.com/xaenox/pocheck/internal/models"
	"github.com/xaenox/pocheck/internal/render"
)

var ErrNotFound = errors.New("not found")

// Storage backs the gateway's profile and query endpoints.
type Storage interface {
	GetProfile(ctx context.Context, userID string) (*models.UserProfile, error)
	SaveProfile(ctx context.Context, profile *models.UserProfile) error

	// Query executes a bound statement and returns its rows.
	Query(ctx context.Context, stmt render.Statement) (*models.QueryResult, error)

	// Placeholder is the bind placeholder style of the backing database.
	Placeholder(n int) string

	Close() error
}

// DemoProfile is the analyst served by the in-memory store.
var DemoProfile = models.UserProfile{
	UserID:     "JDOE_PROC_99",
	FullName:   "Johnathan Doe",
	Email:      "j.doe@enterprise.com",
	Role:       "Senior Procurement Analyst",
	Department: "Global Sourcing",
	LastLogin:  "2025-05-15 08:42 AM",
	Location:   "North America Hub (Chicago)",
}
