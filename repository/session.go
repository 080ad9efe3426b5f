package repository

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/trainops/coachms/repository/models"
)

// AnswerInput is one question answer carried by an autosave request.
type AnswerInput struct {
	QuestionID string         `json:"question_id"`
	Value      datatypes.JSON `json:"value"`
}

func activeSlot(coachID string, module Module) string {
	return fmt.Sprintf("%s/%s", coachID, module)
}

func newSessionID() string {
	buf := make([]byte, 8)
	rand.Read(buf)
	return fmt.Sprintf("SES-%s", hex.EncodeToString(buf))
}

// StartOrResume returns the coach's live session under the given module,
// creating one in the module's initial state when none exists. Resume is
// idempotent: a second call before the session turns terminal returns the
// same row unchanged. The active-slot unique index makes the check-and-create
// atomic; a concurrent creator that loses the race re-fetches the winner's
// row.
func (r *Repository) StartOrResume(coachID string, module Module, principal Principal) (*models.InspectionSession, *RepositoryError) {
	coach, repoErr := r.AuthorizeSession(coachID, module, principal)
	if repoErr != nil {
		return nil, repoErr
	}

	slot := activeSlot(coachID, module)

	var existing models.InspectionSession
	err := r.db.Where("active_slot = ?", slot).First(&existing).Error
	if err == nil {
		return &existing, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, wrapDBError(err)
	}

	session := models.InspectionSession{
		ID:          newSessionID(),
		Module:      string(module),
		CoachID:     coachID,
		TrainID:     coach.TrainID,
		InspectorID: principal.ID,
		Status:      machines[module].initial,
		ActiveSlot:  &slot,
		CreatedBy:   principal.ID,
	}
	err = r.db.Create(&session).Error
	if err != nil {
		if isUniqueViolation(err) {
			// Another inspector claimed the slot between our check and
			// insert; resume their session.
			err = r.db.Where("active_slot = ?", slot).First(&existing).Error
			if err == nil {
				return &existing, nil
			}
		}
		return nil, wrapDBError(err)
	}

	r.record("SESSION CREATED", map[string]any{
		"session_id": session.ID,
		"coach_id":   coachID,
		"module":     string(module),
		"principal":  principal.ID,
	})
	return &session, nil
}

// Autosave upserts the given answers into the session and bumps
// last_saved_at. It fails with SESSION_TERMINAL once the session has reached
// a terminal state; saving after submission is rejected, not ignored.
// Re-answering a question overwrites the prior value. Safe to retry: the
// upsert is idempotent per question.
func (r *Repository) Autosave(sessionID string, answers []AnswerInput, principal Principal) (*models.InspectionSession, *RepositoryError) {
	var session models.InspectionSession
	var repoErr *RepositoryError

	err := r.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("session_id = ?", sessionID).First(&session).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				repoErr = sessionNotFound(sessionID)
				return err
			}
			repoErr = wrapDBError(err)
			return err
		}

		m := machines[Module(session.Module)]
		if m.isTerminal(session.Status) {
			repoErr = &RepositoryError{
				Code:    ErrCodeSessionTerminal,
				Message: "Session is already finalized",
				Detail:  fmt.Sprintf("session %s is %s and no longer accepts answers", sessionID, session.Status),
			}
			return errors.New(repoErr.Code)
		}

		now := time.Now()
		for _, in := range answers {
			answer := models.Answer{
				SessionID:  sessionID,
				QuestionID: in.QuestionID,
				Value:      in.Value,
				RecordedBy: principal.ID,
				RecordedAt: now,
			}
			err := tx.Clauses(clause.OnConflict{
				Columns:   []clause.Column{{Name: "session_id"}, {Name: "question_id"}},
				DoUpdates: clause.AssignmentColumns([]string{"value", "recorded_by", "recorded_at"}),
			}).Create(&answer).Error
			if err != nil {
				repoErr = wrapDBError(err)
				return err
			}
		}

		// The first autosave moves three-stage modules out of DRAFT. The
		// update is conditioned on the status read above, so a transition
		// committed in between is never overwritten; the stale writer rolls
		// back its answers and reports the conflict.
		updates := map[string]any{"last_saved_at": now}
		next := session.Status
		if session.Status == StatusDraft && m.canStep(StatusDraft, StatusInProgress) {
			next = StatusInProgress
			updates["status"] = StatusInProgress
		}
		res := tx.Model(&models.InspectionSession{}).
			Where("session_id = ? AND status = ?", sessionID, session.Status).
			Updates(updates)
		if res.Error != nil {
			repoErr = wrapDBError(res.Error)
			return res.Error
		}
		if res.RowsAffected == 0 {
			repoErr = alreadyTransitioned(sessionID, session.Status)
			return errors.New(repoErr.Code)
		}
		session.Status = next
		session.LastSavedAt = now
		return nil
	})
	if err != nil {
		if repoErr == nil {
			repoErr = wrapDBError(err)
		}
		return nil, repoErr
	}
	return &session, nil
}

// Submit transitions the session to SUBMITTED, but only when every applicable
// checklist question has a recorded answer or a defect raised against it. The
// transition itself is guarded by a status-conditioned update so that of two
// concurrent submits exactly one wins; the loser observes
// ALREADY_TRANSITIONED.
func (r *Repository) Submit(sessionID string, principal Principal) (*models.InspectionSession, *RepositoryError) {
	var session models.InspectionSession
	var repoErr *RepositoryError

	err := r.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("session_id = ?", sessionID).First(&session).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				repoErr = sessionNotFound(sessionID)
				return err
			}
			repoErr = wrapDBError(err)
			return err
		}

		m := machines[Module(session.Module)]
		if !m.canStep(session.Status, StatusSubmitted) {
			repoErr = alreadyTransitioned(sessionID, session.Status)
			return errors.New(repoErr.Code)
		}

		missing, cErr := r.missingQuestions(tx, &session)
		if cErr != nil {
			repoErr = cErr
			return errors.New(repoErr.Code)
		}
		if len(missing) > 0 {
			repoErr = &RepositoryError{
				Code:    ErrCodeIncompleteChecklist,
				Message: "Checklist is incomplete",
				Detail:  fmt.Sprintf("%d applicable questions have neither an answer nor a defect", len(missing)),
				Missing: missing,
			}
			return errors.New(repoErr.Code)
		}

		updates := map[string]any{"status": StatusSubmitted, "last_saved_at": time.Now()}
		if m.isTerminal(StatusSubmitted) {
			updates["active_slot"] = nil
		}
		res := tx.Model(&models.InspectionSession{}).
			Where("session_id = ? AND status = ?", sessionID, session.Status).
			Updates(updates)
		if res.Error != nil {
			repoErr = wrapDBError(res.Error)
			return res.Error
		}
		if res.RowsAffected == 0 {
			// A concurrent transition won; report the fresher state.
			repoErr = alreadyTransitioned(sessionID, session.Status)
			return errors.New(repoErr.Code)
		}
		session.Status = StatusSubmitted
		if m.isTerminal(StatusSubmitted) {
			session.ActiveSlot = nil
		}
		return nil
	})
	if err != nil {
		if repoErr == nil {
			repoErr = wrapDBError(err)
		}
		return nil, repoErr
	}

	r.record("SESSION SUBMITTED", map[string]any{
		"session_id": sessionID,
		"coach_id":   session.CoachID,
		"module":     session.Module,
		"principal":  principal.ID,
	})
	return &session, nil
}

// Complete transitions SUBMITTED -> COMPLETED on modules that carry a
// completion stage, and only once every defect raised under the session is
// RESOLVED.
func (r *Repository) Complete(sessionID string, principal Principal) (*models.InspectionSession, *RepositoryError) {
	var session models.InspectionSession
	var repoErr *RepositoryError

	err := r.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("session_id = ?", sessionID).First(&session).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				repoErr = sessionNotFound(sessionID)
				return err
			}
			repoErr = wrapDBError(err)
			return err
		}

		m := machines[Module(session.Module)]
		if !m.hasStatus(StatusCompleted) {
			repoErr = &RepositoryError{
				Code:    ErrCodeInvalidState,
				Message: "Module has no completion stage",
				Detail:  fmt.Sprintf("%s sessions are final at submission", session.Module),
			}
			return errors.New(repoErr.Code)
		}
		if !m.canStep(session.Status, StatusCompleted) {
			repoErr = alreadyTransitioned(sessionID, session.Status)
			return errors.New(repoErr.Code)
		}

		var open []models.Defect
		if err := tx.Where("session_id = ? AND status = ?", sessionID, DefectOpen).Find(&open).Error; err != nil {
			repoErr = wrapDBError(err)
			return err
		}
		if len(open) > 0 {
			ids := make([]string, len(open))
			for i, d := range open {
				ids[i] = d.ID
			}
			repoErr = &RepositoryError{
				Code:    ErrCodeUnresolvedDefects,
				Message: "Session has unresolved defects",
				Detail:  fmt.Sprintf("%d defects are still open", len(open)),
				Missing: ids,
			}
			return errors.New(repoErr.Code)
		}

		res := tx.Model(&models.InspectionSession{}).
			Where("session_id = ? AND status = ?", sessionID, StatusSubmitted).
			Updates(map[string]any{
				"status":        StatusCompleted,
				"active_slot":   nil,
				"last_saved_at": time.Now(),
			})
		if res.Error != nil {
			repoErr = wrapDBError(res.Error)
			return res.Error
		}
		if res.RowsAffected == 0 {
			repoErr = alreadyTransitioned(sessionID, session.Status)
			return errors.New(repoErr.Code)
		}
		session.Status = StatusCompleted
		session.ActiveSlot = nil
		return nil
	})
	if err != nil {
		if repoErr == nil {
			repoErr = wrapDBError(err)
		}
		return nil, repoErr
	}

	r.record("SESSION COMPLETED", map[string]any{
		"session_id": sessionID,
		"coach_id":   session.CoachID,
		"module":     session.Module,
		"principal":  principal.ID,
	})
	return &session, nil
}

// GetSession fetches one session by id.
func (r *Repository) GetSession(sessionID string) (*models.InspectionSession, *RepositoryError) {
	var session models.InspectionSession
	err := r.db.Where("session_id = ?", sessionID).First(&session).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, sessionNotFound(sessionID)
		}
		return nil, wrapDBError(err)
	}
	return &session, nil
}

func sessionNotFound(sessionID string) *RepositoryError {
	return &RepositoryError{
		Code:    ErrCodeEntityNotFound,
		Message: "Session does not exist",
		Detail:  fmt.Sprintf("session with id %s does not exist", sessionID),
	}
}

func alreadyTransitioned(sessionID, observed string) *RepositoryError {
	return &RepositoryError{
		Code:    ErrCodeAlreadyTransitioned,
		Message: "Session was transitioned concurrently",
		Detail:  fmt.Sprintf("session %s changed state; last observed status was %s", sessionID, observed),
	}
}
