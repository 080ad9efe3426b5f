package repository

import "testing"

func TestValidModule(t *testing.T) {
	for _, m := range Modules {
		if !ValidModule(m) {
			t.Errorf("ValidModule(%s) = false", m)
		}
	}
	for _, m := range []Module{"", "wsp", "UNKNOWN", "SICK_LINE"} {
		if ValidModule(m) {
			t.Errorf("ValidModule(%q) = true", m)
		}
	}
}

func TestMachineEdges(t *testing.T) {
	cases := []struct {
		module  Module
		from    string
		to      string
		allowed bool
	}{
		{ModuleWSP, StatusDraft, StatusSubmitted, true},
		{ModuleWSP, StatusDraft, StatusInProgress, false},
		{ModuleWSP, StatusSubmitted, StatusCompleted, false},
		{ModuleCAI, StatusDraft, StatusSubmitted, true},
		{ModuleSickLine, StatusDraft, StatusInProgress, true},
		{ModuleSickLine, StatusDraft, StatusSubmitted, true},
		{ModuleSickLine, StatusInProgress, StatusSubmitted, true},
		{ModuleSickLine, StatusSubmitted, StatusCompleted, true},
		{ModuleSickLine, StatusCompleted, StatusSubmitted, false},
		{ModulePitLine, StatusInProgress, StatusCompleted, false},
		{ModuleCommissionary, StatusSubmitted, StatusCompleted, true},
	}
	for _, tc := range cases {
		got := machines[tc.module].canStep(tc.from, tc.to)
		if got != tc.allowed {
			t.Errorf("%s: canStep(%s, %s) = %v, want %v", tc.module, tc.from, tc.to, got, tc.allowed)
		}
	}
}

func TestTerminalStates(t *testing.T) {
	if !machines[ModuleWSP].isTerminal(StatusSubmitted) {
		t.Error("WSP SUBMITTED should be terminal")
	}
	if machines[ModuleSickLine].isTerminal(StatusSubmitted) {
		t.Error("SICKLINE SUBMITTED should not be terminal")
	}
	if !machines[ModuleSickLine].isTerminal(StatusCompleted) {
		t.Error("SICKLINE COMPLETED should be terminal")
	}
}

func TestHasStatus(t *testing.T) {
	if machines[ModuleWSP].hasStatus(StatusCompleted) {
		t.Error("WSP machine should not reach COMPLETED")
	}
	if !machines[ModulePitLine].hasStatus(StatusCompleted) {
		t.Error("PITLINE machine should reach COMPLETED")
	}
	if !machines[ModuleWSP].hasStatus(StatusDraft) {
		t.Error("initial status not reported by hasStatus")
	}
}

func TestNormalizeStatus(t *testing.T) {
	cases := []struct {
		module Module
		status string
		want   string
	}{
		{ModuleWSP, StatusDraft, NormalizedOpen},
		{ModuleWSP, StatusSubmitted, NormalizedCompleted},
		{ModuleSickLine, StatusDraft, NormalizedOpen},
		{ModuleSickLine, StatusInProgress, NormalizedOpen},
		{ModuleSickLine, StatusSubmitted, NormalizedOpen},
		{ModuleSickLine, StatusCompleted, NormalizedCompleted},
	}
	for _, tc := range cases {
		if got := NormalizeStatus(tc.module, tc.status); got != tc.want {
			t.Errorf("NormalizeStatus(%s, %s) = %s, want %s", tc.module, tc.status, got, tc.want)
		}
	}
}
