package services_test

import (
	"errors"
	"strings"
	"testing"

	"vidharvest/internal/catalog"
	"vidharvest/internal/services"
)

func TestWrapIncludesContext(t *testing.T) {
	base := errors.New("boom")
	err := services.Wrap(services.ErrTransfer, "acquire", "fetch", "unexpected status", base)
	if err == nil {
		t.Fatal("expected error")
	}
	if !errors.Is(err, services.ErrTransfer) {
		t.Fatalf("expected marker to be retained, got %v", err)
	}
	if !errors.Is(err, base) {
		t.Fatalf("expected wrapped error to contain base error, got %v", err)
	}
	msg := err.Error()
	for _, fragment := range []string{"acquire", "fetch", "unexpected status"} {
		if !strings.Contains(msg, fragment) {
			t.Fatalf("expected %q in error string %q", fragment, msg)
		}
	}
}

func TestWrapDefaultsToTransient(t *testing.T) {
	err := services.Wrap(nil, "", "", "", nil)
	if !errors.Is(err, services.ErrTransient) {
		t.Fatalf("expected transient marker, got %v", err)
	}
	if !strings.Contains(err.Error(), "service failure") {
		t.Fatalf("expected default detail, got %q", err.Error())
	}
}

func TestFailureClassification(t *testing.T) {
	extraction := services.Wrap(services.ErrExtraction, "acquire", "extract", "no stream trigger", nil)
	if status := services.FailureStatus(extraction); status != catalog.StatusFailed {
		t.Fatalf("expected failed status, got %s", status)
	}
	if !services.Retryable(extraction) {
		t.Fatal("extraction failures should be retryable")
	}
	config := services.Wrap(services.ErrConfiguration, "acquire", "prepare", "missing folder", nil)
	if services.Retryable(config) {
		t.Fatal("configuration failures should not be retryable")
	}
	if services.IsFatal(extraction) {
		t.Fatal("extraction failure must not abort a run")
	}
	if !services.IsFatal(services.Wrap(services.ErrConnectivity, "reconcile", "head", "store unreachable", nil)) {
		t.Fatal("connectivity failure must abort a run")
	}
}
