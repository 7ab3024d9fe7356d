// README: Notification service; persists alerts for later retrieval by the
// inbox endpoints.
package notification

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"leaflift/internal/types"
)

var (
	ErrNotFound   = errors.New("notification not found")
	ErrBadRequest = errors.New("bad request")
)

type Store interface {
	Create(ctx context.Context, n *Notification) error
	ListByUser(ctx context.Context, userID types.ID) ([]*Notification, error)
	MarkRead(ctx context.Context, id types.ID) (bool, error)
}

type Service struct {
	store Store
}

func NewService(store Store) *Service {
	return &Service{store: store}
}

// Notify creates an unread notification for the user.
func (s *Service) Notify(ctx context.Context, userID types.ID, title, message string, typ Type) error {
	if userID == "" || title == "" {
		return ErrBadRequest
	}
	n := &Notification{
		ID:        types.ID(uuid.NewString()),
		UserID:    userID,
		Title:     title,
		Message:   message,
		Type:      typ,
		CreatedAt: time.Now().UTC(),
	}
	return s.store.Create(ctx, n)
}

func (s *Service) ListByUser(ctx context.Context, userID types.ID) ([]*Notification, error) {
	if userID == "" {
		return nil, ErrBadRequest
	}
	return s.store.ListByUser(ctx, userID)
}

func (s *Service) MarkRead(ctx context.Context, id types.ID) error {
	ok, err := s.store.MarkRead(ctx, id)
	if err != nil {
		return err
	}
	if !ok {
		return ErrNotFound
	}
	return nil
}
