package cliutil

import (
	"errors"
	"fmt"
	"testing"
)

func TestExitCode_Error(t *testing.T) {
	if got := ExitCode(3).Error(); got != "exit code 3" {
		t.Errorf("Error() = %q, want %q", got, "exit code 3")
	}
}

func TestExitCode_UnwrapsThroughFmtErrorf(t *testing.T) {
	// Exit relies on errors.As finding an ExitCode anywhere in the chain;
	// confirm a wrapped ExitCode is still recognized.
	err := fmt.Errorf("running command: %w", ExitCode(7))

	var code ExitCode
	if !errors.As(err, &code) {
		t.Fatalf("errors.As did not find the wrapped ExitCode")
	}
	if code != 7 {
		t.Errorf("unwrapped code = %d, want 7", code)
	}
}

func TestExitCode_NotFoundForPlainError(t *testing.T) {
	var code ExitCode
	if errors.As(errors.New("boom"), &code) {
		t.Errorf("errors.As found an ExitCode in a plain error")
	}
}
