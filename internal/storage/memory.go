package storage

import (
	"context"
	"strings"
	"sync"

	"github.com/xaenox/pocheck/internal/models"
	"github.com/xaenox/pocheck/internal/render"
)

// MemoryStorage serves the demo profile and canned query results.
type MemoryStorage struct {
	mu       sync.RWMutex
	profiles map[string]models.UserProfile
}

func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{
		profiles: map[string]models.UserProfile{
			DemoProfile.UserID: DemoProfile,
		},
	}
}

func (s *MemoryStorage) GetProfile(ctx context.Context, userID string) (*models.UserProfile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if p, exists := s.profiles[userID]; exists {
		return &p, nil
	}
	return nil, ErrNotFound
}

func (s *MemoryStorage) SaveProfile(ctx context.Context, profile *models.UserProfile) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.profiles[profile.UserID] = *profile
	return nil
}

// Query recognizes purchase order header statements and acknowledges
// everything else.
func (s *MemoryStorage) Query(ctx context.Context, stmt render.Statement) (*models.QueryResult, error) {
	if strings.Contains(strings.ToLower(stmt.SQL), "v_fact_purch_ord_hdr") {
		return &models.QueryResult{
			Columns: []string{"purch_doc_nbr", "cre_dt", "vend_nm", "tot_amt", "curr_cd"},
			Data:    [][]any{{"4500012345", "2025-01-10", "Global Logistics Corp", 12500.00, "USD"}},
		}, nil
	}
	return &models.QueryResult{
		Columns: []string{"Status", "Message"},
		Data:    [][]any{{"Success", "Query received by Teradata Engine."}},
	}, nil
}

func (s *MemoryStorage) Placeholder(n int) string { return render.Question(n) }

func (s *MemoryStorage) Close() error {
	// Nothing to close for in-memory storage
	return nil
}
