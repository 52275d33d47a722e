package users

import (
	"context"
	"sync"
	"time"
)

type memoryRepository struct {
	mu     sync.RWMutex
	nextID int64
	users  map[int64]User
}

// NewMemoryRepository builds an in-memory user store for development and tests.
func NewMemoryRepository() Repository {
	return &memoryRepository{users: make(map[int64]User)}
}

func (r *memoryRepository) Create(_ context.Context, user User) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.users {
		if (user.Email != "" && existing.Email == user.Email) || (user.Phone != "" && existing.Phone == user.Phone) {
			return 0, ErrExists
		}
	}
	r.nextID++
	user.ID = r.nextID
	user.UpdatedAt = user.CreatedAt
	r.users[user.ID] = user
	return user.ID, nil
}

func (r *memoryRepository) FindByID(_ context.Context, id int64) (User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	user, ok := r.users[id]
	if !ok {
		return User{}, ErrNotFound
	}
	return user, nil
}

func (r *memoryRepository) FindByEmail(_ context.Context, email string) (User, error) {
	return r.find(func(u User) bool { return u.Email != "" && u.Email == email })
}

func (r *memoryRepository) FindByPhone(_ context.Context, phone string) (User, error) {
	return r.find(func(u User) bool { return u.Phone != "" && u.Phone == phone })
}

func (r *memoryRepository) find(match func(User) bool) (User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, user := range r.users {
		if match(user) {
			return user, nil
		}
	}
	return User{}, ErrNotFound
}

func (r *memoryRepository) UpdatePIN(_ context.Context, id int64, hash []byte) error {
	return r.mutate(id, func(u *User) error {
		u.PINHash = append([]byte(nil), hash...)
		return nil
	})
}

func (r *memoryRepository) BindPasskey(_ context.Context, id int64, address string) error {
	return r.mutate(id, func(u *User) error {
		if u.PasskeyAddress != "" && u.PasskeyAddress != address {
			return ErrSignerConflict
		}
		u.PasskeyAddress = address
		return nil
	})
}

func (r *memoryRepository) SetWallet(_ context.Context, id int64, address string) error {
	return r.mutate(id, func(u *User) error {
		u.WalletAddress = address
		return nil
	})
}

func (r *memoryRepository) mutate(id int64, fn func(*User) error) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	user, ok := r.users[id]
	if !ok {
		return ErrNotFound
	}
	if err := fn(&user); err != nil {
		return err
	}
	user.UpdatedAt = time.Now().UTC()
	r.users[id] = user
	return nil
}
