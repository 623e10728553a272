package errors

import (
	"errors"
	"testing"
)

func TestError_Error(t *testing.T) {
	tests := []struct {
		name     string
		err      *Error
		contains []string
	}{
		{
			name: "full error",
			err: &Error{
				Phase:    PhaseValidate,
				Kind:     KindTypeMismatch,
				Offset:   0x1a,
				Funclet:  2,
				Detail:   "funclet call argument",
				Expected: "i32",
				Actual:   "f64",
			},
			contains: []string{"[validate]", "type_mismatch", "funclet 2", "0x1a", "funclet call argument", "expected i32", "got f64"},
		},
		{
			name: "minimal error",
			err: &Error{
				Phase:   PhaseDecode,
				Kind:    KindMalformedEncoding,
				Offset:  -1,
				Funclet: -1,
			},
			contains: []string{"[decode]", "malformed_encoding"},
		},
		{
			name: "error with cause",
			err: &Error{
				Phase:   PhaseDecode,
				Kind:    KindMalformedEncoding,
				Offset:  -1,
				Funclet: -1,
				Detail:  "truncated immediate",
				Cause:   errors.New("underlying error"),
			},
			contains: []string{"[decode]", "malformed_encoding", "truncated immediate", "caused by", "underlying error"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg := tt.err.Error()
			for _, s := range tt.contains {
				if !containsSubstring(msg, s) {
					t.Errorf("error message %q does not contain %q", msg, s)
				}
			}
		})
	}
}

func TestError_Unwrap(t *testing.T) {
	cause := errors.New("root cause")
	err := &Error{
		Phase: PhaseDecode,
		Kind:  KindMalformedEncoding,
		Cause: cause,
	}

	if !errors.Is(err.Unwrap(), cause) {
		t.Error("Unwrap did not return cause")
	}

	// Test with errors.Unwrap
	if !errors.Is(errors.Unwrap(err), cause) {
		t.Error("errors.Unwrap did not return cause")
	}
}

func TestError_Is(t *testing.T) {
	err := &Error{
		Phase:  PhaseValidate,
		Kind:   KindPredecessorCount,
		Detail: "too many backward edges",
	}

	// Same phase and kind
	if !err.Is(&Error{Phase: PhaseValidate, Kind: KindPredecessorCount}) {
		t.Error("Is should match same phase and kind")
	}

	// Different phase
	if err.Is(&Error{Phase: PhaseDecode, Kind: KindPredecessorCount}) {
		t.Error("Is should not match different phase")
	}

	// Different kind
	if err.Is(&Error{Phase: PhaseValidate, Kind: KindStructural}) {
		t.Error("Is should not match different kind")
	}

	// Test with errors.Is
	target := &Error{Phase: PhaseValidate, Kind: KindPredecessorCount}
	if !errors.Is(err, target) {
		t.Error("errors.Is should match")
	}
}

func TestPackageLevelHelpers(t *testing.T) {
	base := New(PhaseValidate, KindPredecessorCount).Detail("inner").Build()
	wrapped := Wrap(PhaseValidate, KindPredecessorCount, base, "outer")

	if !Is(wrapped, &Error{Phase: PhaseValidate, Kind: KindPredecessorCount}) {
		t.Error("Is should match phase and kind")
	}
	if Is(wrapped, &Error{Phase: PhaseDecode, Kind: KindPredecessorCount}) {
		t.Error("Is should not match a different phase")
	}
	if !errors.Is(Unwrap(wrapped), base) {
		t.Error("Unwrap should return the wrapped cause")
	}

	var target *Error
	if !As(wrapped, &target) {
		t.Fatal("As should find a structured error in the chain")
	}
	if target.Detail != "outer" {
		t.Errorf("As Detail = %q, want %q", target.Detail, "outer")
	}
}

func TestBuilder(t *testing.T) {
	cause := errors.New("root")
	err := New(PhaseValidate, KindTypeMismatch).
		Offset(0x20).
		Funclet(1).
		Expected("i32").
		Actual("i64").
		Cause(cause).
		Detail("operand %d of %s", 0, "funclet_call").
		Build()

	if err.Phase != PhaseValidate {
		t.Errorf("Phase = %v, want %v", err.Phase, PhaseValidate)
	}
	if err.Kind != KindTypeMismatch {
		t.Errorf("Kind = %v, want %v", err.Kind, KindTypeMismatch)
	}
	if err.Offset != 0x20 {
		t.Errorf("Offset = %v, want 0x20", err.Offset)
	}
	if err.Funclet != 1 {
		t.Errorf("Funclet = %v, want 1", err.Funclet)
	}
	if err.Expected != "i32" || err.Actual != "i64" {
		t.Errorf("Expected=%v Actual=%v", err.Expected, err.Actual)
	}
	if !errors.Is(err.Cause, cause) {
		t.Errorf("Cause = %v, want %v", err.Cause, cause)
	}
	if err.Detail != "operand 0 of funclet_call" {
		t.Errorf("Detail = %v, want 'operand 0 of funclet_call'", err.Detail)
	}
}

func TestBuilderDefaults(t *testing.T) {
	err := New(PhaseBuild, KindStructural).Build()
	if err.Offset != -1 {
		t.Errorf("Offset = %v, want -1", err.Offset)
	}
	if err.Funclet != -1 {
		t.Errorf("Funclet = %v, want -1", err.Funclet)
	}
	msg := err.Error()
	if containsSubstring(msg, "offset") || containsSubstring(msg, "funclet") {
		t.Errorf("unset position should not render, got %q", msg)
	}
}

func TestConvenienceConstructors(t *testing.T) {
	t.Run("Malformed", func(t *testing.T) {
		cause := errors.New("eof")
		err := Malformed(PhaseDecode, 5, "truncated leb128", cause)
		if err.Kind != KindMalformedEncoding {
			t.Errorf("Kind = %v, want %v", err.Kind, KindMalformedEncoding)
		}
		if err.Offset != 5 {
			t.Errorf("Offset = %v, want 5", err.Offset)
		}
		if !errors.Is(err, cause) {
			t.Error("cause should unwrap")
		}
	})

	t.Run("Structural", func(t *testing.T) {
		err := Structural(9, "else without if")
		if err.Kind != KindStructural || err.Phase != PhaseValidate {
			t.Errorf("got %v/%v", err.Phase, err.Kind)
		}
	})

	t.Run("TypeMismatch", func(t *testing.T) {
		err := TypeMismatch(3, "stack operand", "i32", "f64")
		if err.Kind != KindTypeMismatch {
			t.Errorf("Kind = %v, want %v", err.Kind, KindTypeMismatch)
		}
		if err.Expected != "i32" || err.Actual != "f64" {
			t.Errorf("Expected=%v Actual=%v", err.Expected, err.Actual)
		}
	})

	t.Run("PredecessorCount", func(t *testing.T) {
		err := PredecessorCount(3, "backward edges exceed declaration", 1, 2)
		if err.Kind != KindPredecessorCount {
			t.Errorf("Kind = %v, want %v", err.Kind, KindPredecessorCount)
		}
		if err.Funclet != 3 {
			t.Errorf("Funclet = %v, want 3", err.Funclet)
		}
		if err.Expected != "1" || err.Actual != "2" {
			t.Errorf("Expected=%v Actual=%v", err.Expected, err.Actual)
		}
	})

	t.Run("UnresolvedSignature", func(t *testing.T) {
		err := UnresolvedSignature(4, "no forward edge and no explicit sig")
		if err.Kind != KindUnresolvedSignature {
			t.Errorf("Kind = %v, want %v", err.Kind, KindUnresolvedSignature)
		}
		if err.Funclet != 4 {
			t.Errorf("Funclet = %v, want 4", err.Funclet)
		}
	})

	t.Run("Unsupported", func(t *testing.T) {
		err := Unsupported(PhaseLower, "multi-result funclets")
		if err.Kind != KindUnsupported {
			t.Errorf("Kind = %v, want %v", err.Kind, KindUnsupported)
		}
	})
}

func containsSubstring(s, substr string) bool {
	return len(s) >= len(substr) && (s == substr || len(substr) == 0 ||
		(len(s) > 0 && containsSubstringHelper(s, substr)))
}

func containsSubstringHelper(s, substr string) bool {
	for i := 0; i <= len(s)-len(substr); i++ {
		if s[i:i+len(substr)] == substr {
			return true
		}
	}
	return false
}
