package repository

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/trainops/coachms/repository/models"
)

// Defect statuses.
const (
	DefectOpen     = "OPEN"
	DefectResolved = "RESOLVED"
)

func openSlot(sessionID, questionID string) string {
	return fmt.Sprintf("%s/%s", sessionID, questionID)
}

func newDefectID(sessionID, questionID string) string {
	composite := fmt.Sprintf("%s-%s-%d", sessionID, questionID, time.Now().UnixNano())
	hash := sha256.Sum256([]byte(composite))
	return fmt.Sprintf("DEF-%s", hex.EncodeToString(hash[:])[:16])
}

// RaiseDefect records a deficiency against a checklist question within a
// session. At most one OPEN defect may exist per (session, question); a
// second raise fails with DUPLICATE_DEFECT. Raising on a terminal session is
// rejected.
func (r *Repository) RaiseDefect(sessionID, questionID string, beforePhoto *string, principal Principal) (*models.Defect, *RepositoryError) {
	var session models.InspectionSession
	err := r.db.Where("session_id = ?", sessionID).First(&session).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, sessionNotFound(sessionID)
		}
		return nil, wrapDBError(err)
	}

	if machines[Module(session.Module)].isTerminal(session.Status) {
		return nil, &RepositoryError{
			Code:    ErrCodeSessionTerminal,
			Message: "Session is already finalized",
			Detail:  fmt.Sprintf("session %s is %s and no longer accepts defects", sessionID, session.Status),
		}
	}

	slot := openSlot(sessionID, questionID)
	defect := models.Defect{
		ID:          newDefectID(sessionID, questionID),
		SessionID:   sessionID,
		QuestionID:  questionID,
		Status:      DefectOpen,
		OpenSlot:    &slot,
		BeforePhoto: beforePhoto,
		RaisedBy:    principal.ID,
	}
	err = r.db.Create(&defect).Error
	if err != nil {
		if isUniqueViolation(err) {
			return nil, &RepositoryError{
				Code:    ErrCodeDuplicateDefect,
				Message: "An open defect already exists for this question",
				Detail:  fmt.Sprintf("question %s in session %s already has an open defect", questionID, sessionID),
			}
		}
		return nil, wrapDBError(err)
	}

	r.record("DEFECT RAISED", map[string]any{
		"defect_id":   defect.ID,
		"session_id":  sessionID,
		"question_id": questionID,
		"principal":   principal.ID,
	})
	return &defect, nil
}

// ResolveDefect transitions an OPEN defect to RESOLVED. The after-photo is
// mandatory evidence; without it the call fails with MISSING_EVIDENCE. The
// update is conditioned on the OPEN status so a concurrent resolver observes
// ALREADY_RESOLVED instead of double-applying.
func (r *Repository) ResolveDefect(defectID string, afterPhoto *string, principal Principal) (*models.Defect, *RepositoryError) {
	if afterPhoto == nil || *afterPhoto == "" {
		return nil, &RepositoryError{
			Code:    ErrCodeMissingEvidence,
			Message: "After-photo evidence is required to resolve a defect",
			Detail:  fmt.Sprintf("defect %s cannot be resolved without an after photo", defectID),
		}
	}

	var defect models.Defect
	err := r.db.Where("defect_id = ?", defectID).First(&defect).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, &RepositoryError{
				Code:    ErrCodeEntityNotFound,
				Message: "Defect does not exist",
				Detail:  fmt.Sprintf("defect with id %s does not exist", defectID),
			}
		}
		return nil, wrapDBError(err)
	}
	if defect.Status != DefectOpen {
		return nil, alreadyResolved(defectID)
	}

	now := time.Now()
	res := r.db.Model(&models.Defect{}).
		Where("defect_id = ? AND status = ?", defectID, DefectOpen).
		Updates(map[string]any{
			"status":      DefectResolved,
			"open_slot":   nil,
			"after_photo": *afterPhoto,
			"resolved_by": principal.ID,
			"resolved_at": now,
		})
	if res.Error != nil {
		return nil, wrapDBError(res.Error)
	}
	if res.RowsAffected == 0 {
		return nil, alreadyResolved(defectID)
	}

	defect.Status = DefectResolved
	defect.OpenSlot = nil
	defect.AfterPhoto = afterPhoto
	defect.ResolvedBy = &principal.ID
	defect.ResolvedAt = &now

	r.record("DEFECT RESOLVED", map[string]any{
		"defect_id":  defectID,
		"session_id": defect.SessionID,
		"principal":  principal.ID,
	})
	return &defect, nil
}

// SessionDefects returns every defect raised under one session, oldest first.
func (r *Repository) SessionDefects(sessionID string) ([]models.Defect, *RepositoryError) {
	var defects []models.Defect
	err := r.db.Where("session_id = ?", sessionID).Order("created_at").Find(&defects).Error
	if err != nil {
		return nil, wrapDBError(err)
	}
	return defects, nil
}

func alreadyResolved(defectID string) *RepositoryError {
	return &RepositoryError{
		Code:    ErrCodeAlreadyResolved,
		Message: "Defect is not open",
		Detail:  fmt.Sprintf("defect %s has already been resolved", defectID),
	}
}
