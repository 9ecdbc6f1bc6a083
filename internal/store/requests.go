package store

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/smartexam/reval/internal/events"
	"github.com/smartexam/reval/internal/types"
)

// ErrAIResultInvariant means a write would store an AI result on a request
// that has no extracted text or is not in a review status.
var ErrAIResultInvariant = errors.New("ai result requires extracted text and a review status")

// ErrScriptsLocked means script pages can no longer be added.
var ErrScriptsLocked = errors.New("script locations are locked once grading has finished")

// RequestUpdate is a partial update. Nil fields are left untouched.
type RequestUpdate struct {
	Status          *types.RequestStatus
	ExtractedText   *string
	AIResult        *types.AIResult
	EvaluatorID     *string
	EvaluatorNotes  *string
	AppealReason    *string
	ErrorMessage    *string
	ClearError      bool     // Sets ErrorMessage to NULL; ignored when ErrorMessage is set
	ScriptLocations []string // Replaces the list when non-nil
	ExpectedVersion int64    // 0 skips the version check
}

// StatusOptions carries the optional fields written with a status change.
type StatusOptions struct {
	EvaluatorID     *string
	Notes           *string
	AppealReason    *string
	ExpectedVersion int64
}

// CreateRequest inserts a request. Status defaults to DRAFT.
func (s *Store) CreateRequest(ctx context.Context, r *types.RevaluationRequest) error {
	if r.Status == "" {
		r.Status = types.StatusDraft
	}
	if r.ScriptLocations == nil {
		r.ScriptLocations = datatypes.JSONSlice[string]{}
	}
	if r.Version == 0 {
		r.Version = 1
	}
	if r.AIResult != nil {
		return fmt.Errorf("create request: %w", ErrAIResultInvariant)
	}
	if err := s.db.WithContext(ctx).Create(r).Error; err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	return nil
}

// GetRequest loads a request by id.
func (s *Store) GetRequest(ctx context.Context, id int64) (*types.RevaluationRequest, error) {
	var r types.RevaluationRequest
	if err := s.db.WithContext(ctx).First(&r, id).Error; err != nil {
		return nil, notFound(err, "request %d", id)
	}
	return &r, nil
}

// ListRequests returns requests, newest first, optionally filtered by status.
func (s *Store) ListRequests(ctx context.Context, status types.RequestStatus, limit int) ([]types.RevaluationRequest, error) {
	q := s.db.WithContext(ctx).Order("created_at DESC, id DESC")
	if status != "" {
		q = q.Where("status = ?", status)
	}
	if limit > 0 {
		q = q.Limit(limit)
	}
	var out []types.RevaluationRequest
	if err := q.Find(&out).Error; err != nil {
		return nil, fmt.Errorf("list requests: %w", err)
	}
	return out, nil
}

// GetRequestContext loads the request joined with its subject.
func (s *Store) GetRequestContext(ctx context.Context, id int64) (*types.RequestContext, error) {
	r, err := s.GetRequest(ctx, id)
	if err != nil {
		return nil, err
	}
	mark, err := s.GetMark(ctx, r.SubjectID)
	if err != nil {
		return nil, fmt.Errorf("subject of request %d: %w", id, err)
	}

	rc := &types.RequestContext{
		RequestID:   r.ID,
		SubjectCode: mark.SubjectCode,
		SubjectName: mark.SubjectName,
		ScriptRefs:  append([]string(nil), r.ScriptLocations...),
		Status:      r.Status,
		Version:     r.Version,
	}
	if r.ExtractedText != nil {
		rc.ExtractedText = *r.ExtractedText
	}
	return rc, nil
}

// UpdateRequest applies u in one transaction and returns the stored row.
// A status change must be a legal transition; writing the current status
// again is not a transition. An update that changes nothing is not written.
func (s *Store) UpdateRequest(ctx context.Context, id int64, u RequestUpdate) (*types.RevaluationRequest, error) {
	before, after, err := s.updateRequest(ctx, id, u)
	if err != nil {
		return nil, err
	}
	s.notify(ctx, before, after)
	return after, nil
}

func (s *Store) updateRequest(ctx context.Context, id int64, u RequestUpdate) (before, after *types.RevaluationRequest, err error) {
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var cur types.RevaluationRequest
		if err := tx.First(&cur, id).Error; err != nil {
			return notFound(err, "request %d", id)
		}
		if u.ExpectedVersion != 0 && cur.Version != u.ExpectedVersion {
			return fmt.Errorf("request %d at version %d, expected %d: %w",
				id, cur.Version, u.ExpectedVersion, types.ErrConcurrentModification)
		}

		next, cols, err := apply(cur, u)
		if err != nil {
			return fmt.Errorf("request %d: %w", id, err)
		}
		if len(cols) == 0 {
			before, after = &cur, &cur
			return nil
		}

		next.Version = cur.Version + 1
		next.UpdatedAt = s.now()
		cols = append(cols, "version", "updated_at")

		res := tx.Model(&types.RevaluationRequest{}).
			Where("id = ? AND version = ?", id, cur.Version).
			Select(cols).
			Updates(&next)
		if res.Error != nil {
			return fmt.Errorf("update request %d: %w", id, res.Error)
		}
		if res.RowsAffected == 0 {
			return fmt.Errorf("request %d changed during update: %w", id, types.ErrConcurrentModification)
		}
		before, after = &cur, &next
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	return before, after, nil
}

// apply computes the next row and the columns that changed.
func apply(cur types.RevaluationRequest, u RequestUpdate) (types.RevaluationRequest, []string, error) {
	next := cur
	var cols []string

	if u.Status != nil && *u.Status != cur.Status {
		if err := types.ValidateTransition(cur.Status, *u.Status); err != nil {
			return next, nil, err
		}
		next.Status = *u.Status
		cols = append(cols, "status")
	}
	if u.ExtractedText != nil {
		next.ExtractedText = u.ExtractedText
		cols = append(cols, "extracted_text")
	}
	switch {
	case u.AIResult != nil:
		next.AIResult = u.AIResult
		cols = append(cols, "ai_result")
	case cur.AIResult != nil && !next.Status.HasAIResult():
		// Leaving the review statuses (rejection) drops the result.
		next.AIResult = nil
		cols = append(cols, "ai_result")
	}
	if u.EvaluatorID != nil {
		next.EvaluatorID = u.EvaluatorID
		cols = append(cols, "evaluator_id")
	}
	if u.EvaluatorNotes != nil {
		next.EvaluatorNotes = u.EvaluatorNotes
		cols = append(cols, "evaluator_notes")
	}
	if u.AppealReason != nil {
		next.AppealReason = u.AppealReason
		cols = append(cols, "appeal_reason")
	}
	switch {
	case u.ErrorMessage != nil:
		next.ErrorMessage = u.ErrorMessage
		cols = append(cols, "error_message")
	case u.ClearError && cur.ErrorMessage != nil:
		next.ErrorMessage = nil
		cols = append(cols, "error_message")
	}
	if u.ScriptLocations != nil {
		next.ScriptLocations = datatypes.JSONSlice[string](append([]string{}, u.ScriptLocations...))
		cols = append(cols, "script_locations")
	}

	if err := checkAIResult(next); err != nil {
		return next, nil, err
	}
	return next, cols, nil
}

// checkAIResult enforces that a stored result sits on a request with
// extracted text and a review status.
func checkAIResult(r types.RevaluationRequest) error {
	if r.AIResult == nil {
		return nil
	}
	if r.ExtractedText == nil || strings.TrimSpace(*r.ExtractedText) == "" {
		return ErrAIResultInvariant
	}
	if !r.Status.HasAIResult() {
		return fmt.Errorf("%w: status %s", ErrAIResultInvariant, r.Status)
	}
	return nil
}

// SetStatus moves a request to status and writes the optional evaluator
// fields in the same update. Setting the current status again only writes
// the options. Entering PUBLISHED emits events.RequestPublished after commit.
func (s *Store) SetStatus(ctx context.Context, id int64, status types.RequestStatus, opts StatusOptions) (*types.RevaluationRequest, error) {
	return s.UpdateRequest(ctx, id, RequestUpdate{
		Status:          &status,
		EvaluatorID:     opts.EvaluatorID,
		EvaluatorNotes:  opts.Notes,
		AppealReason:    opts.AppealReason,
		ExpectedVersion: opts.ExpectedVersion,
	})
}

// Appeal moves a published request to appealed with the student's reason.
func (s *Store) Appeal(ctx context.Context, id int64, reason string) (*types.RevaluationRequest, error) {
	if strings.TrimSpace(reason) == "" {
		return nil, fmt.Errorf("appeal of request %d needs a reason", id)
	}
	r, err := s.GetRequest(ctx, id)
	if err != nil {
		return nil, err
	}
	if r.Status != types.StatusPublished {
		return nil, fmt.Errorf("%w: %s -> %s", types.ErrInvalidTransition, r.Status, types.StatusAppealed)
	}
	return s.SetStatus(ctx, id, types.StatusAppealed, StatusOptions{
		AppealReason:    &reason,
		ExpectedVersion: r.Version,
	})
}

// AppendScriptLocations adds uploaded pages to a request that has not been
// graded yet, moves it to PROCESSING and clears any previous error.
func (s *Store) AppendScriptLocations(ctx context.Context, id int64, refs []string) (*types.RevaluationRequest, error) {
	if len(refs) == 0 {
		return nil, fmt.Errorf("request %d: no script locations to add", id)
	}
	r, err := s.GetRequest(ctx, id)
	if err != nil {
		return nil, err
	}
	switch r.Status {
	case types.StatusSubmitted, types.StatusProcessing, types.StatusFailed:
	default:
		return nil, fmt.Errorf("request %d in %s: %w", id, r.Status, ErrScriptsLocked)
	}

	locations := append(append([]string{}, r.ScriptLocations...), refs...)
	processing := types.StatusProcessing
	return s.UpdateRequest(ctx, id, RequestUpdate{
		Status:          &processing,
		ScriptLocations: locations,
		ClearError:      true,
		ExpectedVersion: r.Version,
	})
}

// notify publishes events for transitions that listeners care about.
func (s *Store) notify(ctx context.Context, before, after *types.RevaluationRequest) {
	if before == nil || after == nil || before.Status == after.Status {
		return
	}
	ev := events.Event{
		RequestID: after.ID,
		StudentID: after.StudentID,
		Status:    string(after.Status),
		At:        after.UpdatedAt,
	}
	switch after.Status {
	case types.StatusPublished:
		ev.Type = events.RequestPublished
	case types.StatusFailed:
		ev.Type = events.RequestFailed
		if after.ErrorMessage != nil {
			ev.Message = *after.ErrorMessage
		}
	default:
		return
	}
	s.publish(ctx, ev)
}
