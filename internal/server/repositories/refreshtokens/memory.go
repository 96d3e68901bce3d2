package refreshtokens

import (
	"context"
	"sync"
	"time"

	"github.com/dmitrijs2005/assistauth/internal/common"
	"github.com/dmitrijs2005/assistauth/internal/server/models"
	"github.com/google/uuid"
)

// MemoryRepository keeps sessions in process memory, keyed by token digest.
type MemoryRepository struct {
	mu     sync.Mutex
	tokens map[string]models.RefreshToken
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{tokens: make(map[string]models.RefreshToken)}
}

func (r *MemoryRepository) Create(ctx context.Context, token *models.RefreshToken) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.tokens[token.TokenHash]; ok {
		return common.ErrorAlreadyExists
	}
	token.ID = uuid.NewString()
	token.CreatedAt = time.Now().UTC()
	r.tokens[token.TokenHash] = *token
	return nil
}

func (r *MemoryRepository) Find(ctx context.Context, tokenHash string) (*models.RefreshToken, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	t, ok := r.tokens[tokenHash]
	if !ok {
		return nil, common.ErrorNotFound
	}
	return &t, nil
}

func (r *MemoryRepository) Revoke(ctx context.Context, tokenHash string, reason models.RevokeReason, at time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	t, ok := r.tokens[tokenHash]
	if !ok || t.RevokedAt != nil {
		return false, nil
	}
	revokedAt := at.UTC()
	t.RevokedAt = &revokedAt
	t.RevokedReason = reason
	r.tokens[tokenHash] = t
	return true, nil
}

func (r *MemoryRepository) RevokeAllForUser(ctx context.Context, userID string, reason models.RevokeReason, at time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := at.UTC()
	var n int64
	for k, t := range r.tokens {
		if t.UserID != userID || t.RevokedAt != nil {
			continue
		}
		revokedAt := now
		t.RevokedAt = &revokedAt
		t.RevokedReason = reason
		r.tokens[k] = t
		n++
	}
	return n, nil
}

// Snapshot copies the current contents; Restore puts such a copy back.
func (r *MemoryRepository) Snapshot() map[string]models.RefreshToken {
	r.mu.Lock()
	defer r.mu.Unlock()

	c := make(map[string]models.RefreshToken, len(r.tokens))
	for k, v := range r.tokens {
		c[k] = v
	}
	return c
}

func (r *MemoryRepository) Restore(s map[string]models.RefreshToken) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tokens = s
}
