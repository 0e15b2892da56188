package repository

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/d60-Lab/replweb/internal/logstore"
	"github.com/d60-Lab/replweb/internal/model"
)

// UserRepository 管理端账号
type UserRepository interface {
	Create(ctx context.Context, username, passwordHash string) (string, error)
	FindByUsername(ctx context.Context, username string) (*model.User, error)
}

type userRepository struct {
	store *logstore.Store
}

func NewUserRepository(store *logstore.Store) UserRepository { return &userRepository{store: store} }

func (r *userRepository) Create(ctx context.Context, username, passwordHash string) (string, error) {
	id := uuid.New().String()
	now := time.Now()
	_, err := r.store.Exec(ctx, logstore.Batch{{
		SQL:  "INSERT INTO users (id, username, password, created_at, updated_at) VALUES (?, ?, ?, ?, ?)",
		Args: []interface{}{id, username, passwordHash, now, now},
	}})
	if err != nil {
		return "", err
	}
	return id, nil
}

func (r *userRepository) FindByUsername(ctx context.Context, username string) (*model.User, error) {
	var u model.User
	err := r.store.DB().WithContext(ctx).Where("username = ?", username).First(&u).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &u, nil
}
