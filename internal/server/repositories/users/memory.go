package users

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/dmitrijs2005/assistauth/internal/common"
	"github.com/dmitrijs2005/assistauth/internal/server/models"
	"github.com/google/uuid"
)

// MemoryRepository keeps users in process memory. It backs the "memory"
// DSN and the service tests.
type MemoryRepository struct {
	mu    sync.Mutex
	users map[string]models.User
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{users: make(map[string]models.User)}
}

func (r *MemoryRepository) Create(ctx context.Context, user *models.User) (*models.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	email := strings.ToLower(user.Email)
	for _, u := range r.users {
		if u.Email == email {
			return nil, common.ErrorAlreadyExists
		}
	}

	now := time.Now().UTC()
	user.ID = uuid.NewString()
	user.Email = email
	user.CreatedAt = now
	user.UpdatedAt = now
	r.users[user.ID] = *user

	return user, nil
}

func (r *MemoryRepository) FindByEmail(ctx context.Context, email string) (*models.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	email = strings.ToLower(email)
	for _, u := range r.users {
		if u.Email == email {
			return &u, nil
		}
	}
	return nil, common.ErrorNotFound
}

func (r *MemoryRepository) FindByID(ctx context.Context, id string) (*models.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	u, ok := r.users[id]
	if !ok {
		return nil, common.ErrorNotFound
	}
	return &u, nil
}

func (r *MemoryRepository) UpdatePasswordHash(ctx context.Context, id string, passwordHash string) error {
	return r.update(id, func(u *models.User) { u.PasswordHash = passwordHash })
}

func (r *MemoryRepository) UpdateStatus(ctx context.Context, id string, status models.Status) error {
	return r.update(id, func(u *models.User) { u.Status = status })
}

func (r *MemoryRepository) update(id string, fn func(u *models.User)) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	u, ok := r.users[id]
	if !ok {
		return common.ErrorNotFound
	}
	fn(&u)
	u.UpdatedAt = time.Now().UTC()
	r.users[id] = u
	return nil
}

// Snapshot copies the current contents; Restore puts such a copy back.
func (r *MemoryRepository) Snapshot() map[string]models.User {
	r.mu.Lock()
	defer r.mu.Unlock()

	c := make(map[string]models.User, len(r.users))
	for k, v := range r.users {
		c[k] = v
	}
	return c
}

func (r *MemoryRepository) Restore(s map[string]models.User) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.users = s
}
