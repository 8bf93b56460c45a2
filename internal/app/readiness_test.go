package app

import (
	"errors"
	"testing"
)

func TestReadiness(t *testing.T) {
	r := NewReadiness()

	if r.State() != NotReady {
		t.Fatalf("initial State() = %v, want NotReady", r.State())
	}
	select {
	case <-r.Done():
		t.Fatal("Done() should not be closed before MarkReady")
	default:
	}

	loadErr := errors.New("weights missing")
	r.MarkFailed(loadErr)
	if r.State() != NotReady || !errors.Is(r.Err(), loadErr) {
		t.Errorf("after MarkFailed: state=%v err=%v", r.State(), r.Err())
	}

	r.MarkReady()
	r.MarkReady()
	if r.State() != Ready {
		t.Errorf("State() = %v, want Ready", r.State())
	}
	if r.Err() != nil {
		t.Errorf("Err() = %v, want nil after MarkReady", r.Err())
	}
	select {
	case <-r.Done():
	default:
		t.Error("Done() should be closed after MarkReady")
	}

	// Ready is terminal
	r.MarkFailed(loadErr)
	if r.State() != Ready || r.Err() != nil {
		t.Error("MarkFailed should not affect a Ready machine")
	}
}

func TestState_String(t *testing.T) {
	if NotReady.String() != "not_ready" || Ready.String() != "ready" {
		t.Errorf("unexpected names %q, %q", NotReady, Ready)
	}
}
