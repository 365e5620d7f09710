package chipintegrity

import (
	"errors"
	"testing"
)

func TestValidateHandCompletionConservedChips(t *testing.T) {
	v := NewVerifier([]byte("test-key"))
	if _, err := v.CaptureHandStart("table-1", 1, []int{1000, 1000}, []int{0, 0}, 0); err != nil {
		t.Fatal(err)
	}

	if err := v.ValidateHandCompletion("table-1", []int{900, 1100}, 0); err != nil {
		t.Fatalf("expected conserved hand to pass, got %v", err)
	}
}

func TestValidateHandCompletionDetectsViolation(t *testing.T) {
	v := NewVerifier([]byte("test-key"))
	if _, err := v.CaptureHandStart("table-1", 1, []int{1000, 1000}, []int{0, 0}, 0); err != nil {
		t.Fatal(err)
	}

	err := v.ValidateHandCompletion("table-1", []int{900, 1050}, 0)
	var violation *ViolationError
	if !errors.As(err, &violation) {
		t.Fatalf("expected a ViolationError, got %v", err)
	}
	if violation.Code != ErrConservationViolation {
		t.Errorf("expected CONSERVATION_VIOLATION, got %s", violation.Code)
	}
}

func TestValidateHandCompletionWithoutSnapshot(t *testing.T) {
	v := NewVerifier([]byte("test-key"))
	err := v.ValidateHandCompletion("never-started", []int{1000}, 0)
	var violation *ViolationError
	if !errors.As(err, &violation) || violation.Code != ErrNoSnapshot {
		t.Fatalf("expected NO_SNAPSHOT violation, got %v", err)
	}
}
