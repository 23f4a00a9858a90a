package errors

import (
	stderrors "errors"
	"fmt"
	"strings"
	"testing"
)

func TestErrorMessageIncludesSuggestion(t *testing.T) {
	err := New(CategoryInput, CodeMissingField, "field missing").
		WithSuggestion("provide the field")

	got := err.Error()
	if !strings.Contains(got, "field missing") || !strings.Contains(got, "provide the field") {
		t.Errorf("Error() = %q", got)
	}
}

func TestWrapPreservesCause(t *testing.T) {
	cause := stderrors.New("disk on fire")
	err := Wrap(cause, CategoryParse, CodeInvalidFormat, "cannot read file")

	if !stderrors.Is(err, cause) {
		t.Error("wrapped cause lost from the chain")
	}
	if Wrap(nil, CategoryParse, CodeInvalidFormat, "x") != nil {
		t.Error("Wrap(nil) must return nil")
	}
}

func TestExitCodes(t *testing.T) {
	tests := []struct {
		category Category
		want     int
	}{
		{CategoryInput, 2},
		{CategoryParse, 2},
		{CategoryConfiguration, 3},
		{CategoryCapability, 4},
		{CategoryReconciliation, 5},
		{CategoryInternal, 5},
	}
	for _, tt := range tests {
		err := New(tt.category, CodeUnexpected, "x")
		if got := err.ExitCode(); got != tt.want {
			t.Errorf("ExitCode(%s) = %d, want %d", tt.category, got, tt.want)
		}
	}
}

func TestIsMatchesCategoryAndCode(t *testing.T) {
	err := InputError(CodeDuplicateID, "id", "t1")

	if !Is(err, CategoryInput, CodeDuplicateID) {
		t.Error("Is() = false for matching category and code")
	}
	if Is(err, CategoryInput, CodeMissingField) {
		t.Error("Is() = true for wrong code")
	}
	if Is(stderrors.New("plain"), CategoryInput, CodeDuplicateID) {
		t.Error("Is() = true for a plain error")
	}
}

func TestIsSeesThroughWrapping(t *testing.T) {
	inner := CapabilityError(CodeTimeout, "compare", stderrors.New("deadline"))
	outer := fmt.Errorf("calling service: %w", inner)

	if !Is(outer, CategoryCapability, CodeTimeout) {
		t.Error("Is() failed through fmt.Errorf wrapping")
	}
	extracted, ok := As(outer)
	if !ok || extracted.Code != CodeTimeout {
		t.Errorf("As() = %v, %v", extracted, ok)
	}
}

func TestConstructorsCarryContext(t *testing.T) {
	err := ParseError(CodeInvalidAmount, "releve.csv", 12, "bad amount", nil)

	if err.Context["file"] != "releve.csv" {
		t.Errorf("context file = %v", err.Context["file"])
	}
	if err.Context["line"] != 12 {
		t.Errorf("context line = %v", err.Context["line"])
	}
	if err.Category != CategoryParse {
		t.Errorf("category = %s", err.Category)
	}
}
