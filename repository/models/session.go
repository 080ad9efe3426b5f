package models

import (
	"time"

	"gorm.io/datatypes"
)

// InspectionSession represents one inspection pass over one (coach, module)
// pair. ActiveSlot holds "<coach_id>/<module>" while the session is
// non-terminal and is cleared on the terminal transition; its unique index is
// what enforces at most one live session per coach and module.
type InspectionSession struct {
	ID          string     `gorm:"column:session_id;primaryKey;type:varchar(50)"`
	Module      string     `gorm:"column:module;type:varchar(20);not null;index"`
	CoachID     string     `gorm:"column:coach_id;type:varchar(50);not null;index"`
	Coach       *Coach     `gorm:"foreignKey:CoachID"`
	TrainID     *string    `gorm:"column:train_id;type:varchar(50)"`
	InspectorID string     `gorm:"column:inspector_id;type:varchar(50);index"`
	Inspector   *Inspector `gorm:"foreignKey:InspectorID"`
	Status      string     `gorm:"column:status;type:varchar(20);not null;index"`
	ActiveSlot  *string    `gorm:"column:active_slot;type:varchar(120);uniqueIndex"`
	CreatedBy   string     `gorm:"column:created_by;type:varchar(50)"`
	CreatedAt   time.Time  `gorm:"column:created_at;autoCreateTime;index"`
	LastSavedAt time.Time  `gorm:"column:last_saved_at;autoUpdateTime"`

	// Relationships
	Answers []Answer `gorm:"foreignKey:SessionID"`
	Defects []Defect `gorm:"foreignKey:SessionID"`
}

// Answer is one completed checklist question within a session. The composite
// primary key makes re-answering an overwrite, never a duplicate.
type Answer struct {
	SessionID  string         `gorm:"column:session_id;primaryKey;type:varchar(50)"`
	QuestionID string         `gorm:"column:question_id;primaryKey;type:varchar(50)"`
	Value      datatypes.JSON `gorm:"column:value;type:jsonb"`
	RecordedBy string         `gorm:"column:recorded_by;type:varchar(50)"`
	RecordedAt time.Time      `gorm:"column:recorded_at;autoUpdateTime"`

	// Relationships
	Session *InspectionSession `gorm:"foreignKey:SessionID"`
}
