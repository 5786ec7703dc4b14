// Package triage holds the per-item triage state and posts replies back to
// the origin platform.
package triage

import (
	"context"
	"errors"
	"time"

	"github.com/azure/social-mentions-monitor/internal/models"
	"github.com/azure/social-mentions-monitor/internal/repository"
	"github.com/sirupsen/logrus"
)

// ErrItemNotFound is returned when a triage operation targets an unknown item
var ErrItemNotFound = errors.New("item not found")

// Store applies single-field triage mutations to existing items. It never
// creates or deletes items.
type Store struct {
	repo *repository.MentionRepository
}

func NewStore(repo *repository.MentionRepository) *Store {
	return &Store{repo: repo}
}

func (s *Store) Get(ctx context.Context, tenantID, id string) (*models.Mention, error) {
	m, err := s.repo.Get(ctx, tenantID, id)
	return m, translate(err)
}

func (s *Store) MarkRead(ctx context.Context, tenantID, id string) (*models.Mention, error) {
	return s.update(ctx, tenantID, id, "read", func(m *models.Mention) {
		m.IsRead = true
	})
}

// ToggleStar sets the starred flag to starred
func (s *Store) ToggleStar(ctx context.Context, tenantID, id string, starred bool) (*models.Mention, error) {
	return s.update(ctx, tenantID, id, "star", func(m *models.Mention) {
		m.IsStarred = starred
	})
}

func (s *Store) Archive(ctx context.Context, tenantID, id string) (*models.Mention, error) {
	return s.update(ctx, tenantID, id, "archive", func(m *models.Mention) {
		m.IsArchived = true
	})
}

// MarkSpam flags the item as spam and archives it
func (s *Store) MarkSpam(ctx context.Context, tenantID, id string) (*models.Mention, error) {
	return s.update(ctx, tenantID, id, "spam", func(m *models.Mention) {
		m.IsSpam = true
		m.IsArchived = true
	})
}

// RecordReply links a posted reply to the item
func (s *Store) RecordReply(ctx context.Context, tenantID, id, replyID, content string) (*models.Mention, error) {
	return s.update(ctx, tenantID, id, "reply", func(m *models.Mention) {
		now := time.Now().UTC()
		m.HasReplied = true
		m.ReplyID = replyID
		m.ReplyContent = content
		m.RepliedAt = &now
	})
}

func (s *Store) update(ctx context.Context, tenantID, id, op string, mutate func(*models.Mention)) (*models.Mention, error) {
	m, err := s.repo.Update(ctx, tenantID, id, func(m *models.Mention) error {
		mutate(m)
		return nil
	})
	if err != nil {
		return nil, translate(err)
	}

	logrus.WithFields(logrus.Fields{
		"tenant": tenantID,
		"item":   id,
		"op":     op,
	}).Debug("Triage state updated")

	return m, nil
}

func translate(err error) error {
	if errors.Is(err, repository.ErrMentionNotFound) {
		return ErrItemNotFound
	}
	return err
}
