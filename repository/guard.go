package repository

import (
	"fmt"

	"github.com/trainops/coachms/repository/models"
)

// AuthorizeSession is the module isolation guard. It resolves the coach's
// roster assignment and denies the request when the coach is unknown or
// assigned to a different module. It runs once, before a session row is
// created or resumed; module assignment is treated as static for the
// session's lifetime, so autosaves do not re-validate.
//
// Every outcome, allowed or denied, is written to the audit trail as a
// SESSION INIT event.
func (r *Repository) AuthorizeSession(coachID string, module Module, principal Principal) (*models.Coach, *RepositoryError) {
	if !ValidModule(module) {
		return nil, &RepositoryError{
			Code:    ErrCodeDenied,
			Message: "Unknown inspection module",
			Detail:  fmt.Sprintf("%q is not an inspection module", module),
		}
	}

	coach, repoErr := r.roster.ModuleAssignment(coachID)
	if repoErr != nil {
		if repoErr.Code == ErrCodeEntityNotFound {
			r.record("SESSION INIT", map[string]any{
				"outcome":   "denied",
				"reason":    "coach not on roster",
				"coach_id":  coachID,
				"module":    string(module),
				"principal": principal.ID,
			})
			return nil, &RepositoryError{
				Code:    ErrCodeDenied,
				Message: "Coach is not on the roster",
				Detail:  repoErr.Detail,
			}
		}
		return nil, repoErr
	}

	if coach.AssignedModule != string(module) {
		r.record("SESSION INIT", map[string]any{
			"outcome":   "denied",
			"reason":    "cross-module request",
			"coach_id":  coachID,
			"module":    string(module),
			"assigned":  coach.AssignedModule,
			"principal": principal.ID,
		})
		return nil, &RepositoryError{
			Code:    ErrCodeDenied,
			Message: "Coach is not assigned to this module",
			Detail:  fmt.Sprintf("coach %s is assigned to %s, not %s", coachID, coach.AssignedModule, module),
		}
	}

	r.record("SESSION INIT", map[string]any{
		"outcome":   "allowed",
		"coach_id":  coachID,
		"module":    string(module),
		"principal": principal.ID,
	})
	return coach, nil
}
