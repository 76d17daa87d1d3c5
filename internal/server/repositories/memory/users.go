package memory

import (
	"context"

	"github.com/dmitrijs2005/healthvault/internal/common"
	"github.com/dmitrijs2005/healthvault/internal/server/models"
)

type UserRepository struct {
	s *Store
}

func (r *UserRepository) Create(_ context.Context, user *models.User) (*models.User, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	for _, u := range r.s.users {
		if sameEmail(u.Email, user.Email) {
			return nil, common.NewConflictError("email already registered")
		}
	}
	user.ID = newID()
	user.CreatedAt = r.s.tick()
	r.s.users[user.ID] = *user
	return user, nil
}

func (r *UserRepository) GetByEmail(_ context.Context, email string) (*models.User, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	for _, u := range r.s.users {
		if sameEmail(u.Email, email) {
			return &u, nil
		}
	}
	return nil, common.ErrorNotFound
}

func (r *UserRepository) GetByID(_ context.Context, id string) (*models.User, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	u, ok := r.s.users[id]
	if !ok {
		return nil, common.ErrorNotFound
	}
	return &u, nil
}

func (r *UserRepository) Delete(_ context.Context, id string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if _, ok := r.s.users[id]; !ok {
		return common.ErrorNotFound
	}
	r.s.deleteUserLocked(id)
	return nil
}
