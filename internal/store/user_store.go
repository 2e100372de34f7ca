package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/vbonduro/fgsamples/internal/docstore"
	"github.com/vbonduro/fgsamples/internal/domain"
)

const FieldPasswordHash = "passwordHash"

type UserStore struct {
	ds docstore.Store
}

func NewUserStore(ds docstore.Store) *UserStore {
	return &UserStore{ds: ds}
}

// Get returns the user with the given ID, or domain.ErrNotFound.
func (s *UserStore) Get(ctx context.Context, id string) (*domain.User, error) {
	doc, err := s.ds.Get(ctx, docstore.Join("users", id))
	if errors.Is(err, docstore.ErrNotFound) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return &domain.User{ID: doc.ID, PasswordHash: doc.String(FieldPasswordHash)}, nil
}

// SetPasswordHash creates the user if needed and stores hash.
func (s *UserStore) SetPasswordHash(ctx context.Context, id, hash string) error {
	err := s.ds.Set(ctx, docstore.Join("users", id), docstore.Fields{FieldPasswordHash: hash}, docstore.Merge())
	if err != nil {
		return fmt.Errorf("failed to set password: %w", err)
	}
	return nil
}
