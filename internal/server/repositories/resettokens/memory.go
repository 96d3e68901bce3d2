package resettokens

import (
	"context"
	"sync"
	"time"

	"github.com/dmitrijs2005/assistauth/internal/common"
	"github.com/dmitrijs2005/assistauth/internal/server/models"
	"github.com/google/uuid"
)

type MemoryRepository struct {
	mu     sync.Mutex
	tokens map[string]models.PasswordResetToken
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{tokens: make(map[string]models.PasswordResetToken)}
}

func (r *MemoryRepository) Create(ctx context.Context, token *models.PasswordResetToken) error {
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

func (r *MemoryRepository) Find(ctx context.Context, tokenHash string) (*models.PasswordResetToken, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	t, ok := r.tokens[tokenHash]
	if !ok {
		return nil, common.ErrorNotFound
	}
	return &t, nil
}

func (r *MemoryRepository) Consume(ctx context.Context, tokenHash string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	t, ok := r.tokens[tokenHash]
	if !ok || t.ConsumedAt != nil {
		return false, nil
	}
	now := time.Now().UTC()
	t.ConsumedAt = &now
	r.tokens[tokenHash] = t
	return true, nil
}

// Snapshot copies the current contents; Restore puts such a copy back.
func (r *MemoryRepository) Snapshot() map[string]models.PasswordResetToken {
	r.mu.Lock()
	defer r.mu.Unlock()

	c := make(map[string]models.PasswordResetToken, len(r.tokens))
	for k, v := range r.tokens {
		c[k] = v
	}
	return c
}

func (r *MemoryRepository) Restore(s map[string]models.PasswordResetToken) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tokens = s
}
