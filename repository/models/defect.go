package models

import "time"

// Defect is an open issue raised against a checklist question within a
// session. OpenSlot holds "<session_id>/<question_id>" while the defect is
// OPEN and is cleared on resolution; its unique index is what prevents
// duplicate open defects per question. Defects are never deleted, only
// transitioned.
type Defect struct {
	ID          string     `gorm:"column:defect_id;primaryKey;type:varchar(50)"`
	SessionID   string     `gorm:"column:session_id;type:varchar(50);not null;index"`
	QuestionID  string     `gorm:"column:question_id;type:varchar(50);not null;index"`
	Status      string     `gorm:"column:status;type:varchar(10);not null;default:'OPEN';index"`
	OpenSlot    *string    `gorm:"column:open_slot;type:varchar(120);uniqueIndex"`
	BeforePhoto *string    `gorm:"column:before_photo;type:text"`
	AfterPhoto  *string    `gorm:"column:after_photo;type:text"`
	RaisedBy    string     `gorm:"column:raised_by;type:varchar(50)"`
	ResolvedBy  *string    `gorm:"column:resolved_by;type:varchar(50)"`
	CreatedAt   time.Time  `gorm:"column:created_at;autoCreateTime;index"`
	ResolvedAt  *time.Time `gorm:"column:resolved_at"`

	// Relationships
	Session *InspectionSession `gorm:"foreignKey:SessionID"`
}
