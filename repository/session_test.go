package repository

import (
	"fmt"
	"sync"
	"testing"

	"gorm.io/datatypes"

	"github.com/trainops/coachms/repository/models"
)

func answerQuestions(t *testing.T, repo *Repository, sessionID string, questionIDs ...string) {
	t.Helper()
	answers := make([]AnswerInput, 0, len(questionIDs))
	for _, qid := range questionIDs {
		answers = append(answers, AnswerInput{
			QuestionID: qid,
			Value:      datatypes.JSON(`{"ok":true}`),
		})
	}
	if _, repoErr := repo.Autosave(sessionID, answers, inspector); repoErr != nil {
		t.Fatalf("autosave failed: %+v", repoErr)
	}
}

var sickLineQuestions = []string{"Q-SL-001", "Q-SL-002", "Q-SL-003", "Q-SL-004", "Q-SL-005", "Q-SL-006"}

func TestStartOrResumeCreatesDraft(t *testing.T) {
	repo, sink := newTestRepo(t)

	session, repoErr := repo.StartOrResume("21225-B1", ModuleSickLine, inspector)
	if repoErr != nil {
		t.Fatalf("unexpected error: %+v", repoErr)
	}
	if session.Status != StatusDraft {
		t.Errorf("status = %s, want DRAFT", session.Status)
	}
	if session.Module != string(ModuleSickLine) {
		t.Errorf("module = %s, want SICKLINE", session.Module)
	}
	if session.ActiveSlot == nil || *session.ActiveSlot != "21225-B1/SICKLINE" {
		t.Errorf("active slot = %v, want 21225-B1/SICKLINE", session.ActiveSlot)
	}
	if session.TrainID == nil || *session.TrainID != "TRN-12951" {
		t.Errorf("train id not copied from roster: %v", session.TrainID)
	}

	last := sink.last()
	if last == nil || last.Type != "SESSION CREATED" {
		t.Errorf("last audit event = %+v, want SESSION CREATED", last)
	}
}

func TestStartOrResumeIsIdempotent(t *testing.T) {
	repo, _ := newTestRepo(t)

	first, repoErr := repo.StartOrResume("21225-B1", ModuleSickLine, inspector)
	if repoErr != nil {
		t.Fatalf("unexpected error: %+v", repoErr)
	}
	second, repoErr := repo.StartOrResume("21225-B1", ModuleSickLine, inspector)
	if repoErr != nil {
		t.Fatalf("unexpected error on resume: %+v", repoErr)
	}
	if first.ID != second.ID {
		t.Errorf("resume created a new session: %s != %s", first.ID, second.ID)
	}
	if second.Status != StatusDraft {
		t.Errorf("resume changed status to %s", second.Status)
	}
}

func TestStartDeniedForCrossModuleRequest(t *testing.T) {
	repo, sink := newTestRepo(t)

	// 21225-B1 is rostered under SICKLINE.
	_, repoErr := repo.StartOrResume("21225-B1", ModuleWSP, inspector)
	if repoErr == nil || repoErr.Code != ErrCodeDenied {
		t.Fatalf("got %+v, want DENIED", repoErr)
	}

	last := sink.last()
	if last == nil || last.Type != "SESSION INIT" {
		t.Fatalf("last audit event = %+v, want SESSION INIT", last)
	}
	if last.Fields["outcome"] != "denied" || last.Fields["reason"] != "cross-module request" {
		t.Errorf("audit fields = %+v", last.Fields)
	}
}

func TestStartDeniedForUnknownCoach(t *testing.T) {
	repo, sink := newTestRepo(t)

	_, repoErr := repo.StartOrResume("00000-XX", ModuleWSP, inspector)
	if repoErr == nil || repoErr.Code != ErrCodeDenied {
		t.Fatalf("got %+v, want DENIED", repoErr)
	}
	last := sink.last()
	if last == nil || last.Fields["reason"] != "coach not on roster" {
		t.Errorf("audit event = %+v", last)
	}
}

func TestStartDeniedForUnknownModule(t *testing.T) {
	repo, _ := newTestRepo(t)

	_, repoErr := repo.StartOrResume("21225-B1", Module("SIGNALS"), inspector)
	if repoErr == nil || repoErr.Code != ErrCodeDenied {
		t.Fatalf("got %+v, want DENIED", repoErr)
	}
}

func TestAutosaveMovesThreeStageOutOfDraft(t *testing.T) {
	repo, _ := newTestRepo(t)

	session, _ := repo.StartOrResume("21225-B1", ModuleSickLine, inspector)
	answerQuestions(t, repo, session.ID, "Q-SL-001")

	saved, repoErr := repo.GetSession(session.ID)
	if repoErr != nil {
		t.Fatalf("unexpected error: %+v", repoErr)
	}
	if saved.Status != StatusInProgress {
		t.Errorf("status after first autosave = %s, want IN_PROGRESS", saved.Status)
	}
}

func TestAutosaveKeepsTwoStageInDraft(t *testing.T) {
	repo, _ := newTestRepo(t)

	session, _ := repo.StartOrResume("98412-GS", ModuleWSP, inspector)
	answerQuestions(t, repo, session.ID, "Q-WSP-001")

	saved, _ := repo.GetSession(session.ID)
	if saved.Status != StatusDraft {
		t.Errorf("status after autosave = %s, want DRAFT", saved.Status)
	}
}

func TestAutosaveOverwritesAnswer(t *testing.T) {
	repo, _ := newTestRepo(t)

	session, _ := repo.StartOrResume("21225-B1", ModuleSickLine, inspector)
	answerQuestions(t, repo, session.ID, "Q-SL-001")

	_, repoErr := repo.Autosave(session.ID, []AnswerInput{{
		QuestionID: "Q-SL-001",
		Value:      datatypes.JSON(`{"ok":false,"note":"loose bracket"}`),
	}}, inspector)
	if repoErr != nil {
		t.Fatalf("re-answer failed: %+v", repoErr)
	}

	var count int64
	repo.db.Table("answers").Where("session_id = ?", session.ID).Count(&count)
	if count != 1 {
		t.Errorf("answer rows = %d, want 1 (overwrite, not duplicate)", count)
	}
}

func TestAutosaveRejectedOnTerminalSession(t *testing.T) {
	repo, _ := newTestRepo(t)

	// WSP ends at SUBMITTED; coach 98412-GS has no lavatory, so only two
	// questions apply.
	session, _ := repo.StartOrResume("98412-GS", ModuleWSP, inspector)
	answerQuestions(t, repo, session.ID, "Q-WSP-001", "Q-WSP-002")
	if _, repoErr := repo.Submit(session.ID, inspector); repoErr != nil {
		t.Fatalf("submit failed: %+v", repoErr)
	}

	_, repoErr := repo.Autosave(session.ID, []AnswerInput{{
		QuestionID: "Q-WSP-001",
		Value:      datatypes.JSON(`{"ok":true}`),
	}}, inspector)
	if repoErr == nil || repoErr.Code != ErrCodeSessionTerminal {
		t.Errorf("got %+v, want SESSION_TERMINAL", repoErr)
	}
}

func TestAutosaveUnknownSession(t *testing.T) {
	repo, _ := newTestRepo(t)

	_, repoErr := repo.Autosave("SES-missing", []AnswerInput{{
		QuestionID: "Q-SL-001",
		Value:      datatypes.JSON(`{}`),
	}}, inspector)
	if repoErr == nil || repoErr.Code != ErrCodeEntityNotFound {
		t.Errorf("got %+v, want ENTITY_NOT_FOUND", repoErr)
	}
}

func TestSubmitIncompleteNamesMissingQuestions(t *testing.T) {
	repo, _ := newTestRepo(t)

	session, _ := repo.StartOrResume("21225-B1", ModuleSickLine, inspector)
	answerQuestions(t, repo, session.ID, sickLineQuestions[:4]...)

	_, repoErr := repo.Submit(session.ID, inspector)
	if repoErr == nil || repoErr.Code != ErrCodeIncompleteChecklist {
		t.Fatalf("got %+v, want INCOMPLETE_CHECKLIST", repoErr)
	}
	if len(repoErr.Missing) != 2 {
		t.Fatalf("missing = %v, want 2 entries", repoErr.Missing)
	}
	want := map[string]bool{"Q-SL-005": true, "Q-SL-006": true}
	for _, id := range repoErr.Missing {
		if !want[id] {
			t.Errorf("unexpected missing question %s", id)
		}
	}
}

func TestSubmitAcceptsDefectAsAddressed(t *testing.T) {
	repo, _ := newTestRepo(t)

	session, _ := repo.StartOrResume("21225-B1", ModuleSickLine, inspector)
	answerQuestions(t, repo, session.ID, sickLineQuestions[:5]...)
	if _, repoErr := repo.RaiseDefect(session.ID, "Q-SL-006", nil, inspector); repoErr != nil {
		t.Fatalf("raise defect failed: %+v", repoErr)
	}

	submitted, repoErr := repo.Submit(session.ID, inspector)
	if repoErr != nil {
		t.Fatalf("submit failed: %+v", repoErr)
	}
	if submitted.Status != StatusSubmitted {
		t.Errorf("status = %s, want SUBMITTED", submitted.Status)
	}
}

func TestDoubleSubmit(t *testing.T) {
	repo, _ := newTestRepo(t)

	session, _ := repo.StartOrResume("21225-B1", ModuleSickLine, inspector)
	answerQuestions(t, repo, session.ID, sickLineQuestions...)
	if _, repoErr := repo.Submit(session.ID, inspector); repoErr != nil {
		t.Fatalf("first submit failed: %+v", repoErr)
	}

	_, repoErr := repo.Submit(session.ID, inspector)
	if repoErr == nil || repoErr.Code != ErrCodeAlreadyTransitioned {
		t.Errorf("got %+v, want ALREADY_TRANSITIONED", repoErr)
	}
}

func TestTwoStageSubmitFreesActiveSlot(t *testing.T) {
	repo, _ := newTestRepo(t)

	session, _ := repo.StartOrResume("98412-GS", ModuleWSP, inspector)
	answerQuestions(t, repo, session.ID, "Q-WSP-001", "Q-WSP-002")
	submitted, repoErr := repo.Submit(session.ID, inspector)
	if repoErr != nil {
		t.Fatalf("submit failed: %+v", repoErr)
	}
	if submitted.ActiveSlot != nil {
		t.Errorf("active slot = %v, want nil after terminal transition", submitted.ActiveSlot)
	}

	// The slot is free again, so a new start opens a fresh session.
	next, repoErr := repo.StartOrResume("98412-GS", ModuleWSP, inspector)
	if repoErr != nil {
		t.Fatalf("restart failed: %+v", repoErr)
	}
	if next.ID == session.ID {
		t.Error("restart resumed a terminal session")
	}
	if next.Status != StatusDraft {
		t.Errorf("restarted status = %s, want DRAFT", next.Status)
	}
}

func TestThreeStageSubmitKeepsSessionActive(t *testing.T) {
	repo, _ := newTestRepo(t)

	session, _ := repo.StartOrResume("21225-B1", ModuleSickLine, inspector)
	answerQuestions(t, repo, session.ID, sickLineQuestions...)
	if _, repoErr := repo.Submit(session.ID, inspector); repoErr != nil {
		t.Fatalf("submit failed: %+v", repoErr)
	}

	// SUBMITTED is not terminal on SICKLINE; the session still owns the slot.
	resumed, repoErr := repo.StartOrResume("21225-B1", ModuleSickLine, inspector)
	if repoErr != nil {
		t.Fatalf("resume failed: %+v", repoErr)
	}
	if resumed.ID != session.ID {
		t.Errorf("resume opened a new session %s, want %s", resumed.ID, session.ID)
	}
	if resumed.Status != StatusSubmitted {
		t.Errorf("resumed status = %s, want SUBMITTED", resumed.Status)
	}
}

func TestCompleteRejectedOnTwoStageModule(t *testing.T) {
	repo, _ := newTestRepo(t)

	session, _ := repo.StartOrResume("98412-GS", ModuleWSP, inspector)
	answerQuestions(t, repo, session.ID, "Q-WSP-001", "Q-WSP-002")
	repo.Submit(session.ID, inspector)

	_, repoErr := repo.Complete(session.ID, inspector)
	if repoErr == nil || repoErr.Code != ErrCodeInvalidState {
		t.Errorf("got %+v, want INVALID_STATE", repoErr)
	}
}

func TestCompleteRequiresSubmittedState(t *testing.T) {
	repo, _ := newTestRepo(t)

	session, _ := repo.StartOrResume("21225-B1", ModuleSickLine, inspector)
	_, repoErr := repo.Complete(session.ID, inspector)
	if repoErr == nil || repoErr.Code != ErrCodeAlreadyTransitioned {
		t.Errorf("got %+v, want ALREADY_TRANSITIONED", repoErr)
	}
}

func TestCompleteBlockedByOpenDefects(t *testing.T) {
	repo, _ := newTestRepo(t)

	session, _ := repo.StartOrResume("21225-B1", ModuleSickLine, inspector)
	answerQuestions(t, repo, session.ID, sickLineQuestions[:5]...)
	defect, _ := repo.RaiseDefect(session.ID, "Q-SL-006", nil, inspector)
	repo.Submit(session.ID, inspector)

	_, repoErr := repo.Complete(session.ID, inspector)
	if repoErr == nil || repoErr.Code != ErrCodeUnresolvedDefects {
		t.Fatalf("got %+v, want UNRESOLVED_DEFECTS", repoErr)
	}
	if len(repoErr.Missing) != 1 || repoErr.Missing[0] != defect.ID {
		t.Errorf("missing = %v, want [%s]", repoErr.Missing, defect.ID)
	}
}

func TestCompleteAfterDefectsResolved(t *testing.T) {
	repo, sink := newTestRepo(t)

	session, _ := repo.StartOrResume("21225-B1", ModuleSickLine, inspector)
	answerQuestions(t, repo, session.ID, sickLineQuestions[:5]...)
	defect, _ := repo.RaiseDefect(session.ID, "Q-SL-006", nil, inspector)
	repo.Submit(session.ID, inspector)

	photo := "s3://inspections/after.jpg"
	if _, repoErr := repo.ResolveDefect(defect.ID, &photo, inspector); repoErr != nil {
		t.Fatalf("resolve failed: %+v", repoErr)
	}

	completed, repoErr := repo.Complete(session.ID, inspector)
	if repoErr != nil {
		t.Fatalf("complete failed: %+v", repoErr)
	}
	if completed.Status != StatusCompleted {
		t.Errorf("status = %s, want COMPLETED", completed.Status)
	}
	if completed.ActiveSlot != nil {
		t.Errorf("active slot = %v, want nil", completed.ActiveSlot)
	}
	if last := sink.last(); last == nil || last.Type != "SESSION COMPLETED" {
		t.Errorf("last audit event = %+v, want SESSION COMPLETED", last)
	}
}

func TestConcurrentSubmitsExactlyOneWins(t *testing.T) {
	repo, _ := newTestRepo(t)

	session, _ := repo.StartOrResume("21225-B1", ModuleSickLine, inspector)
	answerQuestions(t, repo, session.ID, sickLineQuestions...)

	results := make(chan *RepositoryError, 2)
	var wg sync.WaitGroup
	for range 2 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, repoErr := repo.Submit(session.ID, inspector)
			results <- repoErr
		}()
	}
	wg.Wait()
	close(results)

	var wins, losses int
	for repoErr := range results {
		switch {
		case repoErr == nil:
			wins++
		case repoErr.Code == ErrCodeAlreadyTransitioned:
			losses++
		default:
			t.Errorf("unexpected error: %+v", repoErr)
		}
	}
	if wins != 1 || losses != 1 {
		t.Errorf("wins = %d, losses = %d, want exactly one of each", wins, losses)
	}

	saved, _ := repo.GetSession(session.ID)
	if saved.Status != StatusSubmitted {
		t.Errorf("status = %s, want SUBMITTED", saved.Status)
	}
}

func TestConcurrentStartOrResumeSharesSlot(t *testing.T) {
	repo, _ := newTestRepo(t)

	const callers = 8
	ids := make(chan string, callers)
	var wg sync.WaitGroup
	for range callers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			session, repoErr := repo.StartOrResume("21225-B1", ModuleSickLine, inspector)
			if repoErr != nil {
				t.Errorf("unexpected error: %+v", repoErr)
				ids <- ""
				return
			}
			ids <- session.ID
		}()
	}
	wg.Wait()
	close(ids)

	seen := map[string]bool{}
	for id := range ids {
		if id != "" {
			seen[id] = true
		}
	}
	if len(seen) != 1 {
		t.Errorf("racing starts produced %d distinct sessions: %v", len(seen), seen)
	}

	var count int64
	repo.db.Model(&models.InspectionSession{}).
		Where("coach_id = ? AND module = ?", "21225-B1", string(ModuleSickLine)).
		Count(&count)
	if count != 1 {
		t.Errorf("session rows = %d, want 1", count)
	}
}

func TestAutosaveNeverRevertsConcurrentSubmit(t *testing.T) {
	repo, _ := newTestRepo(t)

	for i := range 25 {
		coach := models.Coach{
			ID:             fmt.Sprintf("R-%02d-GS", i),
			AssignedModule: string(ModuleWSP),
			Depot:          "Matunga",
		}
		if err := repo.db.Create(&coach).Error; err != nil {
			t.Fatalf("creating coach: %v", err)
		}

		session, repoErr := repo.StartOrResume(coach.ID, ModuleWSP, inspector)
		if repoErr != nil {
			t.Fatalf("start failed: %+v", repoErr)
		}
		answerQuestions(t, repo, session.ID, "Q-WSP-001", "Q-WSP-002")

		var wg sync.WaitGroup
		var saveErr, submitErr *RepositoryError
		wg.Add(2)
		go func() {
			defer wg.Done()
			_, saveErr = repo.Autosave(session.ID, []AnswerInput{{
				QuestionID: "Q-WSP-001",
				Value:      datatypes.JSON(`{"ok":true,"pass":2}`),
			}}, inspector)
		}()
		go func() {
			defer wg.Done()
			_, submitErr = repo.Submit(session.ID, inspector)
		}()
		wg.Wait()

		if submitErr != nil {
			t.Fatalf("iteration %d: submit failed: %+v", i, submitErr)
		}
		if saveErr != nil && saveErr.Code != ErrCodeSessionTerminal && saveErr.Code != ErrCodeAlreadyTransitioned {
			t.Fatalf("iteration %d: unexpected autosave error: %+v", i, saveErr)
		}

		// Whatever the interleaving, the committed submit must stand: the
		// session stays terminal and its slot stays released.
		saved, _ := repo.GetSession(session.ID)
		if saved.Status != StatusSubmitted {
			t.Fatalf("iteration %d: status = %s, submit was reverted", i, saved.Status)
		}
		if saved.ActiveSlot != nil {
			t.Fatalf("iteration %d: active slot = %q, want released", i, *saved.ActiveSlot)
		}
	}
}

func TestGetSessionNotFound(t *testing.T) {
	repo, _ := newTestRepo(t)

	_, repoErr := repo.GetSession("SES-missing")
	if repoErr == nil || repoErr.Code != ErrCodeEntityNotFound {
		t.Errorf("got %+v, want ENTITY_NOT_FOUND", repoErr)
	}
}
