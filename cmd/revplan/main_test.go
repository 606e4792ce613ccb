package main

import "testing"

func TestBuildActionRejectsBadMonths(t *testing.T) {
	if _, err := buildAction(false, 13, 0, false, -1, false, "", 0, ""); err == nil {
		t.Fatal("expected error for target month 13")
	}
	if _, err := buildAction(false, 0, 0, true, 12, false, "", 0, ""); err == nil {
		t.Fatal("expected error for source month 12")
	}
	if _, err := buildAction(false, 0, 0, false, -1, false, "month-3", 0, "100"); err == nil {
		t.Fatal("expected error for recalculation month 0")
	}
}

func TestBuildActionRequiresNewInitial(t *testing.T) {
	if _, err := buildAction(false, 0, 0, false, -1, false, "month-3", 4, ""); err == nil {
		t.Fatal("expected error for missing new initial")
	}
	if _, err := buildAction(false, 0, 0, false, -1, false, "month-3", 4, "not-a-number"); err == nil {
		t.Fatal("expected error for malformed new initial")
	}
}

func TestBuildActionRecalcWins(t *testing.T) {
	act, err := buildAction(false, 0, 0, true, 3, true, "month-3", 4, "1200.50")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if act.recalcLabel != "month-3" || act.createVersion {
		t.Fatalf("expected recalculation to take precedence, got %+v", act)
	}
}
