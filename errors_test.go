package gudalt

import (
	"errors"
	"fmt"
	"strings"
	"testing"
)

func TestStructuredErrors(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		wantType ErrorType
		wantOp   string
		wantMsg  string
		checkFn  func(error) bool
	}{
		{
			name:     "Memory Error",
			err:      ErrOutOfMemory,
			wantType: ErrTypeMemory,
			wantOp:   "Malloc",
			wantMsg:  "out of memory",
			checkFn:  IsMemoryError,
		},
		{
			name:     "Invalid Arg Error",
			err:      ErrInvalidSize,
			wantType: ErrTypeInvalidArg,
			wantOp:   "Malloc",
			wantMsg:  "size must be positive",
			checkFn:  IsInvalidArgError,
		},
		{
			name:     "Destroyed Stream Error",
			err:      ErrStreamDestroyed,
			wantType: ErrTypeDevice,
			wantOp:   "Stream",
			wantMsg:  "stream has been destroyed",
			checkFn:  IsDeviceError,
		},
		{
			name:     "Execution Error",
			err:      ErrKernelFailed,
			wantType: ErrTypeExecution,
			wantOp:   "Kernel",
			wantMsg:  "kernel execution failed",
			checkFn:  IsExecutionError,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var gudaErr *GUDAError
			if !errors.As(tt.err, &gudaErr) {
				t.Fatalf("Expected GUDAError, got %T", tt.err)
			}
			if gudaErr.Type != tt.wantType {
				t.Errorf("Type = %v, want %v", gudaErr.Type, tt.wantType)
			}
			if gudaErr.Op != tt.wantOp {
				t.Errorf("Op = %q, want %q", gudaErr.Op, tt.wantOp)
			}
			if gudaErr.Message != tt.wantMsg {
				t.Errorf("Message = %q, want %q", gudaErr.Message, tt.wantMsg)
			}
			if !tt.checkFn(tt.err) {
				t.Errorf("Type check function returned false")
			}
		})
	}
}

func TestErrorWrapping(t *testing.T) {
	base := errors.New("mmap failed")
	err := NewMemoryError("Malloc", "pool exhausted", base)

	if !errors.Is(err, base) {
		t.Errorf("Wrapped error should match its cause")
	}
	if !strings.Contains(err.Error(), "caused by: mmap failed") {
		t.Errorf("Error string should mention the cause: %q", err.Error())
	}

	// Type predicates see through fmt wrapping
	outer := fmt.Errorf("allocate aux buffer: %w", err)
	if !IsMemoryError(outer) {
		t.Errorf("IsMemoryError should unwrap %q", outer)
	}
	if IsExecutionError(outer) || IsDeviceError(outer) || IsInvalidArgError(outer) {
		t.Errorf("Memory error matched another category")
	}
	if IsMemoryError(base) {
		t.Errorf("Plain error should not be a memory error")
	}
}

func TestErrorTypeString(t *testing.T) {
	for typ, want := range map[ErrorType]string{
		ErrTypeMemory:         "Memory",
		ErrTypeInvalidArg:     "InvalidArgument",
		ErrTypeExecution:      "Execution",
		ErrTypeNumerical:      "Numerical",
		ErrTypeDevice:         "Device",
		ErrTypeNotImplemented: "NotImplemented",
		ErrorType(99):         "Unknown",
	} {
		if got := typ.String(); got != want {
			t.Errorf("ErrorType(%d).String() = %q, want %q", int(typ), got, want)
		}
	}
}
