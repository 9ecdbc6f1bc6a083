package store

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"github.com/smartexam/reval/internal/types"
)

// KeyUpdate is a partial answer-key update. Nil fields are left untouched.
type KeyUpdate struct {
	Status        *types.KeyStatus
	ExtractedText *string
	ErrorMessage  *string
	ClearError    bool
}

// CreateKey inserts an answer key. Status defaults to pending.
func (s *Store) CreateKey(ctx context.Context, k *types.AnswerKey) error {
	if k.Status == "" {
		k.Status = types.KeyPending
	}
	if err := s.db.WithContext(ctx).Create(k).Error; err != nil {
		return fmt.Errorf("create answer key: %w", err)
	}
	return nil
}

// GetAnswerKey loads a key by id.
func (s *Store) GetAnswerKey(ctx context.Context, id int64) (*types.AnswerKey, error) {
	var k types.AnswerKey
	if err := s.db.WithContext(ctx).First(&k, id).Error; err != nil {
		return nil, notFound(err, "answer key %d", id)
	}
	return &k, nil
}

// ListKeys returns the keys of a subject, newest first.
func (s *Store) ListKeys(ctx context.Context, subjectCode string) ([]types.AnswerKey, error) {
	var out []types.AnswerKey
	err := s.db.WithContext(ctx).
		Where("subject_code = ?", subjectCode).
		Order("created_at DESC, id DESC").
		Find(&out).Error
	if err != nil {
		return nil, fmt.Errorf("list answer keys: %w", err)
	}
	return out, nil
}

// UpdateAnswerKey applies u and returns the stored key.
func (s *Store) UpdateAnswerKey(ctx context.Context, id int64, u KeyUpdate) (*types.AnswerKey, error) {
	var out types.AnswerKey
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.First(&out, id).Error; err != nil {
			return notFound(err, "answer key %d", id)
		}

		var cols []string
		if u.Status != nil {
			out.Status = *u.Status
			cols = append(cols, "status")
		}
		if u.ExtractedText != nil {
			out.ExtractedText = u.ExtractedText
			cols = append(cols, "extracted_text")
		}
		switch {
		case u.ErrorMessage != nil:
			out.ErrorMessage = u.ErrorMessage
			cols = append(cols, "error_message")
		case u.ClearError && out.ErrorMessage != nil:
			out.ErrorMessage = nil
			cols = append(cols, "error_message")
		}
		if len(cols) == 0 {
			return nil
		}

		out.UpdatedAt = s.now()
		cols = append(cols, "updated_at")
		res := tx.Model(&types.AnswerKey{}).Where("id = ?", id).Select(cols).Updates(&out)
		if res.Error != nil {
			return fmt.Errorf("update answer key %d: %w", id, res.Error)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// LatestCompletedKey returns the newest completed key for a subject.
// Ties on created_at go to the higher id.
func (s *Store) LatestCompletedKey(ctx context.Context, subjectCode string) (*types.AnswerKey, error) {
	var k types.AnswerKey
	err := s.db.WithContext(ctx).
		Where("subject_code = ? AND status = ?", subjectCode, types.KeyCompleted).
		Order("created_at DESC, id DESC").
		Take(&k).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("subject %s: %w", subjectCode, types.ErrMissingAnswerKey)
	}
	if err != nil {
		return nil, fmt.Errorf("latest answer key for %s: %w", subjectCode, err)
	}
	return &k, nil
}
