package repository

// Module identifies one of the five inspection workflows.
type Module string

const (
	ModuleWSP           Module = "WSP"
	ModuleSickLine      Module = "SICKLINE"
	ModuleCommissionary Module = "COMMISSIONARY"
	ModuleCAI           Module = "CAI"
	ModulePitLine       Module = "PITLINE"
)

// Modules lists every inspection workflow, in monitoring fan-out order.
var Modules = []Module{ModuleWSP, ModuleSickLine, ModuleCommissionary, ModuleCAI, ModulePitLine}

// Session statuses. Not every module uses every status; the per-module
// machine below defines which edges exist.
const (
	StatusDraft      = "DRAFT"
	StatusInProgress = "IN_PROGRESS"
	StatusSubmitted  = "SUBMITTED"
	StatusCompleted  = "COMPLETED"
)

// Normalized cross-module statuses used by monitoring filters.
const (
	NormalizedOpen      = "OPEN"
	NormalizedCompleted = "COMPLETED"
)

// machine is a per-module session state machine: an initial state, the set of
// allowed edges, and the terminal set. One engine, five parameterizations,
// instead of five copies of the lifecycle code.
type machine struct {
	initial   string
	edges     map[string][]string
	terminals map[string]bool
}

// twoStage ends at SUBMITTED; threeStage adds defect sign-off and ends at
// COMPLETED. IN_PROGRESS is entered implicitly by the first autosave on
// three-stage modules.
var (
	twoStage = machine{
		initial: StatusDraft,
		edges: map[string][]string{
			StatusDraft: {StatusSubmitted},
		},
		terminals: map[string]bool{StatusSubmitted: true},
	}
	threeStage = machine{
		initial: StatusDraft,
		edges: map[string][]string{
			StatusDraft:      {StatusInProgress, StatusSubmitted},
			StatusInProgress: {StatusSubmitted},
			StatusSubmitted:  {StatusCompleted},
		},
		terminals: map[string]bool{StatusCompleted: true},
	}
)

var machines = map[Module]machine{
	ModuleWSP:           twoStage,
	ModuleCAI:           twoStage,
	ModuleSickLine:      threeStage,
	ModuleCommissionary: threeStage,
	ModulePitLine:       threeStage,
}

// ValidModule reports whether m names a known inspection workflow.
func ValidModule(m Module) bool {
	_, ok := machines[m]
	return ok
}

func (m machine) isTerminal(status string) bool {
	return m.terminals[status]
}

func (m machine) canStep(from, to string) bool {
	for _, next := range m.edges[from] {
		if next == to {
			return true
		}
	}
	return false
}

// hasStatus reports whether the machine ever reaches the given status.
func (m machine) hasStatus(status string) bool {
	if status == m.initial {
		return true
	}
	for _, targets := range m.edges {
		for _, t := range targets {
			if t == status {
				return true
			}
		}
	}
	return false
}

// NormalizeStatus maps a module-specific session status onto the shared
// {OPEN, COMPLETED} view used for cross-module filtering.
func NormalizeStatus(m Module, status string) string {
	if machines[m].isTerminal(status) {
		return NormalizedCompleted
	}
	return NormalizedOpen
}
