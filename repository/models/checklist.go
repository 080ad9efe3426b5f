package models

// Checklist hierarchy: Category -> Subcategory -> ChecklistItem -> Question.
// Authored externally; sessions always resolve against the rows current at
// read time. Ordinals are unique among siblings.

// Category is the root grouping of a module's checklist.
type Category struct {
	ID      string `gorm:"column:category_id;primaryKey;type:varchar(50)"`
	Module  string `gorm:"column:module;type:varchar(20);not null;index;uniqueIndex:uq_category_ordinal"`
	Name    string `gorm:"column:name;type:varchar(100);not null"`
	Ordinal int    `gorm:"column:ordinal;not null;uniqueIndex:uq_category_ordinal"`

	// Relationships
	Subcategories []Subcategory `gorm:"foreignKey:CategoryID"`
}

// Subcategory groups items under a category. The Requires* flags are
// applicability predicates evaluated against coach attributes; a subcategory
// that does not apply removes its whole subtree from expected counts.
type Subcategory struct {
	ID                  string `gorm:"column:subcategory_id;primaryKey;type:varchar(50)"`
	CategoryID          string `gorm:"column:category_id;type:varchar(50);not null;index;uniqueIndex:uq_subcategory_ordinal"`
	Name                string `gorm:"column:name;type:varchar(100);not null"`
	Ordinal             int    `gorm:"column:ordinal;not null;uniqueIndex:uq_subcategory_ordinal"`
	RequiresCompartment bool   `gorm:"column:requires_compartment;default:false"`
	RequiresLavatory    bool   `gorm:"column:requires_lavatory;default:false"`

	// Relationships
	Category *Category       `gorm:"foreignKey:CategoryID"`
	Items    []ChecklistItem `gorm:"foreignKey:SubcategoryID"`
}

// ChecklistItem is an item or maintenance schedule within a subcategory.
type ChecklistItem struct {
	ID            string `gorm:"column:item_id;primaryKey;type:varchar(50)"`
	SubcategoryID string `gorm:"column:subcategory_id;type:varchar(50);not null;index;uniqueIndex:uq_item_ordinal"`
	Name          string `gorm:"column:name;type:varchar(255);not null"`
	Ordinal       int    `gorm:"column:ordinal;not null;uniqueIndex:uq_item_ordinal"`

	// Relationships
	Subcategory *Subcategory `gorm:"foreignKey:SubcategoryID"`
	Questions   []Question   `gorm:"foreignKey:ItemID"`
}

// Question is a leaf checklist entry an inspector answers.
type Question struct {
	ID                  string `gorm:"column:question_id;primaryKey;type:varchar(50)"`
	ItemID              string `gorm:"column:item_id;type:varchar(50);not null;index;uniqueIndex:uq_question_ordinal"`
	Text                string `gorm:"column:text;type:varchar(255);not null"`
	Ordinal             int    `gorm:"column:ordinal;not null;uniqueIndex:uq_question_ordinal"`
	RequiresCompartment bool   `gorm:"column:requires_compartment;default:false"`
	RequiresLavatory    bool   `gorm:"column:requires_lavatory;default:false"`

	// Relationships
	Item *ChecklistItem `gorm:"foreignKey:ItemID"`
}
