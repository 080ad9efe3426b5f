package repository

import "github.com/trainops/coachms/repository/models"

func ptrString(s string) *string {
	return &s
}

// Seed loads a starter roster, inspectors, and two checklist trees so a
// fresh deployment is inspectable immediately. Skips when data exists.
func (r *Repository) Seed() error {
	var coachCount int64
	r.db.Model(&models.Coach{}).Count(&coachCount)
	if coachCount > 0 {
		r.logger.Info("seed data already exists, skipping")
		return nil
	}

	r.logger.Info("seeding database with initial data")

	coaches := []models.Coach{
		{ID: "21225-B1", TrainID: ptrString("TRN-12951"), AssignedModule: string(ModuleSickLine), Depot: "Lower Parel", HasCompartment: true, HasLavatory: true},
		{ID: "21226-B2", TrainID: ptrString("TRN-12951"), AssignedModule: string(ModuleSickLine), Depot: "Lower Parel", HasCompartment: true, HasLavatory: true},
		{ID: "98311-GS", TrainID: ptrString("TRN-12137"), AssignedModule: string(ModuleWSP), Depot: "Matunga", HasCompartment: false, HasLavatory: true},
		{ID: "98412-GS", TrainID: ptrString("TRN-12137"), AssignedModule: string(ModuleWSP), Depot: "Matunga", HasCompartment: false, HasLavatory: false},
		{ID: "44108-C1", TrainID: ptrString("TRN-12009"), AssignedModule: string(ModuleCommissionary), Depot: "Wadi Bunder", HasCompartment: true, HasLavatory: true},
		{ID: "50223-D4", TrainID: ptrString("TRN-11007"), AssignedModule: string(ModuleCAI), Depot: "Kurla", HasCompartment: true, HasLavatory: false},
		{ID: "61904-P2", TrainID: ptrString("TRN-12860"), AssignedModule: string(ModulePitLine), Depot: "Wadi Bunder", HasCompartment: true, HasLavatory: true},
	}
	for _, coach := range coaches {
		if err := r.db.Create(&coach).Error; err != nil {
			r.logger.Error("seeding coach failed", "coach", coach.ID, "err", err)
			return err
		}
	}

	inspectors := []models.Inspector{
		{ID: "INS-001", Name: "R. Deshmukh", Role: "inspector"},
		{ID: "INS-002", Name: "S. Kulkarni", Role: "inspector"},
		{ID: "INS-003", Name: "A. Nair", Role: "inspector"},
		{ID: "INS-100", Name: "V. Rao", Role: RoleAdmin},
	}
	for _, inspector := range inspectors {
		if err := r.db.Create(&inspector).Error; err != nil {
			r.logger.Error("seeding inspector failed", "inspector", inspector.ID, "err", err)
			return err
		}
	}

	if err := r.seedSickLineChecklist(); err != nil {
		return err
	}
	if err := r.seedWSPChecklist(); err != nil {
		return err
	}

	r.logger.Info("database seeding completed")
	return nil
}

func (r *Repository) seedSickLineChecklist() error {
	category := models.Category{ID: "CAT-SL-01", Module: string(ModuleSickLine), Name: "Coach Interior", Ordinal: 1}
	if err := r.db.Create(&category).Error; err != nil {
		return err
	}

	subcategories := []models.Subcategory{
		{ID: "SUB-SL-01", CategoryID: category.ID, Name: "Seating Area", Ordinal: 1},
		{ID: "SUB-SL-02", CategoryID: category.ID, Name: "Lavatory", Ordinal: 2, RequiresLavatory: true},
		{ID: "SUB-SL-03", CategoryID: category.ID, Name: "Compartment Fittings", Ordinal: 3, RequiresCompartment: true},
	}
	for _, sub := range subcategories {
		if err := r.db.Create(&sub).Error; err != nil {
			return err
		}
	}

	items := []models.ChecklistItem{
		{ID: "ITM-SL-01", SubcategoryID: "SUB-SL-01", Name: "Seats and Berths", Ordinal: 1},
		{ID: "ITM-SL-02", SubcategoryID: "SUB-SL-02", Name: "Lavatory Fixtures", Ordinal: 1},
		{ID: "ITM-SL-03", SubcategoryID: "SUB-SL-03", Name: "Doors and Partitions", Ordinal: 1},
	}
	for _, item := range items {
		if err := r.db.Create(&item).Error; err != nil {
			return err
		}
	}

	questions := []models.Question{
		{ID: "Q-SL-001", ItemID: "ITM-SL-01", Text: "Seat cushions intact and secured", Ordinal: 1},
		{ID: "Q-SL-002", ItemID: "ITM-SL-01", Text: "Berth chains and brackets functional", Ordinal: 2},
		{ID: "Q-SL-003", ItemID: "ITM-SL-02", Text: "Flush system operational", Ordinal: 1},
		{ID: "Q-SL-004", ItemID: "ITM-SL-02", Text: "Wash basin drains freely", Ordinal: 2},
		{ID: "Q-SL-005", ItemID: "ITM-SL-03", Text: "Sliding doors run freely on tracks", Ordinal: 1},
		{ID: "Q-SL-006", ItemID: "ITM-SL-03", Text: "Partition panels free of damage", Ordinal: 2},
	}
	for _, q := range questions {
		if err := r.db.Create(&q).Error; err != nil {
			return err
		}
	}
	return nil
}

func (r *Repository) seedWSPChecklist() error {
	category := models.Category{ID: "CAT-WSP-01", Module: string(ModuleWSP), Name: "Water Supply Points", Ordinal: 1}
	if err := r.db.Create(&category).Error; err != nil {
		return err
	}

	sub := models.Subcategory{ID: "SUB-WSP-01", CategoryID: category.ID, Name: "Tank and Piping", Ordinal: 1}
	if err := r.db.Create(&sub).Error; err != nil {
		return err
	}

	item := models.ChecklistItem{ID: "ITM-WSP-01", SubcategoryID: sub.ID, Name: "Roof Tank", Ordinal: 1}
	if err := r.db.Create(&item).Error; err != nil {
		return err
	}

	questions := []models.Question{
		{ID: "Q-WSP-001", ItemID: item.ID, Text: "Tank filled to marked level", Ordinal: 1},
		{ID: "Q-WSP-002", ItemID: item.ID, Text: "No leakage at joints", Ordinal: 2},
		{ID: "Q-WSP-003", ItemID: item.ID, Text: "Lavatory feed line pressure adequate", Ordinal: 3, RequiresLavatory: true},
	}
	for _, q := range questions {
		if err := r.db.Create(&q).Error; err != nil {
			return err
		}
	}
	return nil
}
