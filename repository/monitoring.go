package repository

import (
	"sort"
	"sync"
	"time"

	"gorm.io/gorm"

	"github.com/trainops/coachms/repository/models"
)

// Pagination bounds for all monitoring list endpoints. Out-of-range values
// are clamped, never rejected.
const (
	MinPageSize     = 1
	MaxPageSize     = 100
	DefaultPageSize = 25
)

// MonitoringFilters narrows the cross-module feed. Zero values mean "no
// filter". Status is the normalized {OPEN, COMPLETED} view, not a
// module-specific status.
type MonitoringFilters struct {
	Module      Module
	InspectorID string
	Status      string
	From        *time.Time
	To          *time.Time
}

// MonitoringRecord is the read-only projection of one session or defect,
// tagged with its module. Never persisted; recomputed per query.
type MonitoringRecord struct {
	Kind             string    `json:"kind"` // "session" or "defect"
	Module           Module    `json:"module"`
	SessionID        string    `json:"session_id"`
	CoachID          string    `json:"coach_id"`
	InspectorID      string    `json:"inspector_id"`
	Status           string    `json:"status"`
	NormalizedStatus string    `json:"normalized_status"`
	DefectID         string    `json:"defect_id,omitempty"`
	QuestionID       string    `json:"question_id,omitempty"`
	HasBeforePhoto   bool      `json:"has_before_photo,omitempty"`
	HasAfterPhoto    bool      `json:"has_after_photo,omitempty"`
	CreatedAt        time.Time `json:"created_at"`
}

// MonitoringPage is one page of the merged, timestamp-descending feed.
// ModuleErrors carries per-module query failures; a failed module degrades
// its slice of the feed instead of failing the whole call.
type MonitoringPage struct {
	Page         int                `json:"page"`
	Limit        int                `json:"limit"`
	Total        int                `json:"total"`
	Records      []MonitoringRecord `json:"records"`
	ModuleErrors map[Module]string  `json:"module_errors,omitempty"`
}

// SummaryStats is the dashboard roll-up. Recomputed on every call; there are
// no persisted rollups.
type SummaryStats struct {
	TotalToday         int               `json:"total_today"`
	ActiveSessions     int               `json:"active_sessions"`
	OpenDefects        int               `json:"open_defects"`
	ResolvedDefects    int               `json:"resolved_defects"`
	ModuleDistribution map[Module]int    `json:"module_distribution"`
	ModuleErrors       map[Module]string `json:"module_errors,omitempty"`
}

// ClampPage normalizes page/limit to the accepted ranges.
func ClampPage(page, limit int) (int, int) {
	if page < 1 {
		page = 1
	}
	if limit < MinPageSize {
		limit = DefaultPageSize
	}
	if limit > MaxPageSize {
		limit = MaxPageSize
	}
	return page, limit
}

// ListSessions returns one page of the cross-module session feed. Each
// module's slice is queried independently and the results are merged by
// created-at descending before paging, so page boundaries are stable across
// modules. Admin only.
func (r *Repository) ListSessions(page, limit int, filters MonitoringFilters, principal Principal) (*MonitoringPage, *RepositoryError) {
	if repoErr := requireAdmin(principal); repoErr != nil {
		return nil, repoErr
	}
	page, limit = ClampPage(page, limit)

	records, moduleErrs := r.fanOut(filters, func(m Module) ([]MonitoringRecord, error) {
		return r.moduleSessionRecords(m, filters)
	})
	return assemblePage(records, moduleErrs, page, limit), nil
}

// ListDefects is the defect-side twin of ListSessions.
func (r *Repository) ListDefects(page, limit int, filters MonitoringFilters, principal Principal) (*MonitoringPage, *RepositoryError) {
	if repoErr := requireAdmin(principal); repoErr != nil {
		return nil, repoErr
	}
	page, limit = ClampPage(page, limit)

	records, moduleErrs := r.fanOut(filters, func(m Module) ([]MonitoringRecord, error) {
		return r.moduleDefectRecords(m, filters)
	})
	return assemblePage(records, moduleErrs, page, limit), nil
}

// Summarize recomputes the dashboard counters across all five modules.
// Modules are independent data domains, so the slices may be observed at
// slightly different recency; that skew is acceptable and bounded by the
// client poll interval.
func (r *Repository) Summarize(filters MonitoringFilters, principal Principal) (*SummaryStats, *RepositoryError) {
	if repoErr := requireAdmin(principal); repoErr != nil {
		return nil, repoErr
	}

	sessions, moduleErrs := r.fanOut(filters, func(m Module) ([]MonitoringRecord, error) {
		return r.moduleSessionRecords(m, filters)
	})
	defects, defectErrs := r.fanOut(filters, func(m Module) ([]MonitoringRecord, error) {
		return r.moduleDefectRecords(m, filters)
	})
	for m, msg := range defectErrs {
		moduleErrs[m] = msg
	}

	stats := &SummaryStats{ModuleDistribution: make(map[Module]int)}
	midnight := time.Now().UTC().Truncate(24 * time.Hour)
	for _, rec := range sessions {
		stats.ModuleDistribution[rec.Module]++
		if !rec.CreatedAt.Before(midnight) {
			stats.TotalToday++
		}
		if rec.NormalizedStatus == NormalizedOpen {
			stats.ActiveSessions++
		}
	}
	for _, rec := range defects {
		if rec.Status == DefectOpen {
			stats.OpenDefects++
		} else {
			stats.ResolvedDefects++
		}
	}
	if len(moduleErrs) > 0 {
		stats.ModuleErrors = moduleErrs
	}
	return stats, nil
}

// fanOut queries every module (or just the filtered one) concurrently and
// collects per-module failures. No in-process lock is held across the
// database calls; each goroutine owns its slice until the final merge.
func (r *Repository) fanOut(filters MonitoringFilters, query func(Module) ([]MonitoringRecord, error)) ([]MonitoringRecord, map[Module]string) {
	targets := Modules
	if filters.Module != "" {
		targets = []Module{filters.Module}
	}

	type result struct {
		module  Module
		records []MonitoringRecord
		err     error
	}
	results := make(chan result, len(targets))
	var wg sync.WaitGroup
	for _, m := range targets {
		wg.Add(1)
		go func(m Module) {
			defer wg.Done()
			records, err := query(m)
			results <- result{module: m, records: records, err: err}
		}(m)
	}
	wg.Wait()
	close(results)

	var merged []MonitoringRecord
	moduleErrs := make(map[Module]string)
	for res := range results {
		if res.err != nil {
			moduleErrs[res.module] = res.err.Error()
			continue
		}
		merged = append(merged, res.records...)
	}
	return merged, moduleErrs
}

func (r *Repository) moduleSessionRecords(m Module, filters MonitoringFilters) ([]MonitoringRecord, error) {
	q := r.db.Model(&models.InspectionSession{}).Where("module = ?", string(m))
	q = applyCommonFilters(q, "created_at", filters)
	if filters.Status != "" {
		q = applyNormalizedStatus(q, m, filters.Status)
	}

	var sessions []models.InspectionSession
	if err := q.Find(&sessions).Error; err != nil {
		return nil, err
	}

	records := make([]MonitoringRecord, 0, len(sessions))
	for _, s := range sessions {
		records = append(records, MonitoringRecord{
			Kind:             "session",
			Module:           m,
			SessionID:        s.ID,
			CoachID:          s.CoachID,
			InspectorID:      s.InspectorID,
			Status:           s.Status,
			NormalizedStatus: NormalizeStatus(m, s.Status),
			CreatedAt:        s.CreatedAt,
		})
	}
	return records, nil
}

func (r *Repository) moduleDefectRecords(m Module, filters MonitoringFilters) ([]MonitoringRecord, error) {
	q := r.db.Model(&models.Defect{}).
		Joins("JOIN inspection_sessions ON inspection_sessions.session_id = defects.session_id").
		Where("inspection_sessions.module = ?", string(m))
	if filters.InspectorID != "" {
		q = q.Where("inspection_sessions.inspector_id = ?", filters.InspectorID)
	}
	if filters.From != nil {
		q = q.Where("defects.created_at >= ?", *filters.From)
	}
	if filters.To != nil {
		q = q.Where("defects.created_at <= ?", *filters.To)
	}
	if filters.Status == NormalizedOpen {
		q = q.Where("defects.status = ?", DefectOpen)
	} else if filters.Status == NormalizedCompleted {
		q = q.Where("defects.status = ?", DefectResolved)
	}

	var defects []models.Defect
	if err := q.Preload("Session").Find(&defects).Error; err != nil {
		return nil, err
	}

	records := make([]MonitoringRecord, 0, len(defects))
	for _, d := range defects {
		rec := MonitoringRecord{
			Kind:           "defect",
			Module:         m,
			SessionID:      d.SessionID,
			Status:         d.Status,
			DefectID:       d.ID,
			QuestionID:     d.QuestionID,
			HasBeforePhoto: d.BeforePhoto != nil,
			HasAfterPhoto:  d.AfterPhoto != nil,
			CreatedAt:      d.CreatedAt,
		}
		if d.Status == DefectOpen {
			rec.NormalizedStatus = NormalizedOpen
		} else {
			rec.NormalizedStatus = NormalizedCompleted
		}
		if d.Session != nil {
			rec.CoachID = d.Session.CoachID
			rec.InspectorID = d.Session.InspectorID
		}
		records = append(records, rec)
	}
	return records, nil
}

func applyCommonFilters(q *gorm.DB, createdCol string, filters MonitoringFilters) *gorm.DB {
	if filters.InspectorID != "" {
		q = q.Where("inspector_id = ?", filters.InspectorID)
	}
	if filters.From != nil {
		q = q.Where(createdCol+" >= ?", *filters.From)
	}
	if filters.To != nil {
		q = q.Where(createdCol+" <= ?", *filters.To)
	}
	return q
}

func applyNormalizedStatus(q *gorm.DB, m Module, normalized string) *gorm.DB {
	var matching []string
	for _, status := range []string{StatusDraft, StatusInProgress, StatusSubmitted, StatusCompleted} {
		if !machines[m].hasStatus(status) {
			continue
		}
		if NormalizeStatus(m, status) == normalized {
			matching = append(matching, status)
		}
	}
	return q.Where("status IN ?", matching)
}

// assemblePage sorts the merged feed newest-first (session id, then defect
// id, as deterministic tie-breaks so page boundaries are stable across
// calls) and slices out the requested page.
func assemblePage(records []MonitoringRecord, moduleErrs map[Module]string, page, limit int) *MonitoringPage {
	sort.SliceStable(records, func(i, j int) bool {
		if records[i].CreatedAt.Equal(records[j].CreatedAt) {
			if records[i].SessionID != records[j].SessionID {
				return records[i].SessionID > records[j].SessionID
			}
			return records[i].DefectID > records[j].DefectID
		}
		return records[i].CreatedAt.After(records[j].CreatedAt)
	})

	total := len(records)
	start := (page - 1) * limit
	if start > total {
		start = total
	}
	end := start + limit
	if end > total {
		end = total
	}

	result := &MonitoringPage{
		Page:    page,
		Limit:   limit,
		Total:   total,
		Records: records[start:end],
	}
	if len(moduleErrs) > 0 {
		result.ModuleErrors = moduleErrs
	}
	return result
}

func requireAdmin(principal Principal) *RepositoryError {
	if principal.Role != RoleAdmin {
		return &RepositoryError{
			Code:    ErrCodeUnauthorized,
			Message: "Monitoring reads require the admin role",
			Detail:  "principal " + principal.ID + " lacks the admin role",
		}
	}
	return nil
}
