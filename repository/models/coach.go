package models

// Coach represents a rostered coach or train vehicle eligible for inspection.
// AssignedModule decides which inspection workflow the coach may be opened
// under; the module isolation guard rejects everything else.
type Coach struct {
	ID             string  `gorm:"column:coach_id;primaryKey;type:varchar(50)"`
	TrainID        *string `gorm:"column:train_id;type:varchar(50);index"`
	AssignedModule string  `gorm:"column:assigned_module;type:varchar(20);not null;index"`
	Depot          string  `gorm:"column:depot;type:varchar(100)"`
	// No column defaults here: gorm drops zero-valued fields carrying a
	// default tag from the INSERT, which would turn a false flag into the
	// column default on create.
	HasCompartment bool `gorm:"column:has_compartment;not null"`
	HasLavatory    bool `gorm:"column:has_lavatory;not null"`

	// Relationships
	Sessions []InspectionSession `gorm:"foreignKey:CoachID"`
}
