package repository

import (
	"errors"
	"fmt"
	"math"

	"gorm.io/gorm"

	"github.com/trainops/coachms/repository/models"
)

// Progress is the expected-vs-completed roll-up for one session, optionally
// scoped to a single subcategory subtree.
type Progress struct {
	Expected  int     `json:"expected"`
	Completed int     `json:"completed"`
	Ratio     float64 `json:"ratio"`
}

// ComputeProgress walks the session module's checklist hierarchy, filtered to
// the nodes applicable to the session's coach, and counts answered or
// defect-addressed questions. Applicability is recomputed live on every call;
// nothing is cached on the session row, so a hierarchy edit between creation
// and read is honored. When no question applies the ratio is 1.0.
func (r *Repository) ComputeProgress(sessionID, subcategoryID string) (*Progress, *RepositoryError) {
	var session models.InspectionSession
	err := r.db.Where("session_id = ?", sessionID).First(&session).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, sessionNotFound(sessionID)
		}
		return nil, wrapDBError(err)
	}

	applicable, repoErr := r.applicableQuestionIDs(r.db, &session, subcategoryID)
	if repoErr != nil {
		return nil, repoErr
	}

	addressed, repoErr := r.addressedQuestionIDs(r.db, sessionID)
	if repoErr != nil {
		return nil, repoErr
	}

	expected := len(applicable)
	completed := 0
	for _, id := range applicable {
		if addressed[id] {
			completed++
		}
	}

	ratio := 1.0
	if expected > 0 {
		ratio = math.Round(float64(completed)/float64(expected)*1000) / 1000
	}
	return &Progress{Expected: expected, Completed: completed, Ratio: ratio}, nil
}

// applicableQuestionIDs returns the ids of every leaf question that applies
// to the session's coach, ordered by hierarchy ordinals. An empty
// subcategoryID means the whole module tree; otherwise counts are restricted
// to that subtree.
func (r *Repository) applicableQuestionIDs(tx *gorm.DB, session *models.InspectionSession, subcategoryID string) ([]string, *RepositoryError) {
	var coach models.Coach
	err := tx.Where("coach_id = ?", session.CoachID).First(&coach).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, &RepositoryError{
				Code:    ErrCodeEntityNotFound,
				Message: "Coach does not exist",
				Detail:  fmt.Sprintf("coach %s referenced by session %s is gone from the roster", session.CoachID, session.ID),
			}
		}
		return nil, wrapDBError(err)
	}

	var categories []models.Category
	err = tx.
		Preload("Subcategories", func(db *gorm.DB) *gorm.DB { return db.Order("ordinal") }).
		Preload("Subcategories.Items", func(db *gorm.DB) *gorm.DB { return db.Order("ordinal") }).
		Preload("Subcategories.Items.Questions", func(db *gorm.DB) *gorm.DB { return db.Order("ordinal") }).
		Where("module = ?", session.Module).
		Order("ordinal").
		Find(&categories).Error
	if err != nil {
		return nil, wrapDBError(err)
	}

	var ids []string
	for _, cat := range categories {
		for _, sub := range cat.Subcategories {
			if subcategoryID != "" && sub.ID != subcategoryID {
				continue
			}
			if !subcategoryApplies(&sub, &coach) {
				continue
			}
			for _, item := range sub.Items {
				for _, q := range item.Questions {
					if questionApplies(&q, &coach) {
						ids = append(ids, q.ID)
					}
				}
			}
		}
	}
	return ids, nil
}

// addressedQuestionIDs returns the set of question ids the session has
// answered or raised a defect against. A raised defect counts as addressed
// even after resolution; submission treats it as handled, completion still
// requires it resolved.
func (r *Repository) addressedQuestionIDs(tx *gorm.DB, sessionID string) (map[string]bool, *RepositoryError) {
	addressed := make(map[string]bool)

	var answered []string
	err := tx.Model(&models.Answer{}).Where("session_id = ?", sessionID).Pluck("question_id", &answered).Error
	if err != nil {
		return nil, wrapDBError(err)
	}
	for _, id := range answered {
		addressed[id] = true
	}

	var defected []string
	err = tx.Model(&models.Defect{}).Where("session_id = ?", sessionID).Pluck("question_id", &defected).Error
	if err != nil {
		return nil, wrapDBError(err)
	}
	for _, id := range defected {
		addressed[id] = true
	}
	return addressed, nil
}

// missingQuestions lists the applicable questions that block submission:
// no recorded answer and no defect raised.
func (r *Repository) missingQuestions(tx *gorm.DB, session *models.InspectionSession) ([]string, *RepositoryError) {
	applicable, repoErr := r.applicableQuestionIDs(tx, session, "")
	if repoErr != nil {
		return nil, repoErr
	}
	addressed, repoErr := r.addressedQuestionIDs(tx, session.ID)
	if repoErr != nil {
		return nil, repoErr
	}

	var missing []string
	for _, id := range applicable {
		if !addressed[id] {
			missing = append(missing, id)
		}
	}
	return missing, nil
}

func subcategoryApplies(sub *models.Subcategory, coach *models.Coach) bool {
	if sub.RequiresCompartment && !coach.HasCompartment {
		return false
	}
	if sub.RequiresLavatory && !coach.HasLavatory {
		return false
	}
	return true
}

func questionApplies(q *models.Question, coach *models.Coach) bool {
	if q.RequiresCompartment && !coach.HasCompartment {
		return false
	}
	if q.RequiresLavatory && !coach.HasLavatory {
		return false
	}
	return true
}
