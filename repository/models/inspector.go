package models

// Inspector represents users who perform inspections in the system
type Inspector struct {
	ID   string `gorm:"column:inspector_id;primaryKey;type:varchar(50)"`
	Name string `gorm:"column:name;type:varchar(100);not null"`
	Role string `gorm:"column:role;type:varchar(20);default:'inspector'"`

	// Relationships
	Sessions []InspectionSession `gorm:"foreignKey:InspectorID"`
}
