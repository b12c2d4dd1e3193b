package he

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/ts4z/tote/pool"
	"github.com/ts4z/tote/state"
)

func TestFromDomain(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"phase violation", &pool.PhaseError{Op: "declare winner", Reason: "too early"}, http.StatusConflict},
		{"wrapped phase violation", fmt.Errorf("op: %w", &pool.PhaseError{Op: "x"}), http.StatusConflict},
		{"already finalized", pool.ErrAlreadyFinalized, http.StatusConflict},
		{"winner already declared", pool.ErrWinnerAlreadyDeclared, http.StatusConflict},
		{"below minimum", fmt.Errorf("stake 1: %w", pool.ErrBelowMinimum), http.StatusBadRequest},
		{"bad request", pool.ErrBadRequest, http.StatusBadRequest},
		{"permission denied", pool.ErrPermissionDenied, http.StatusUnauthorized},
		{"not found", state.ErrNotFound, http.StatusNotFound},
		{"anything else", errors.New("disk on fire"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := FromDomain(tt.err); got.code != tt.want {
				t.Errorf("FromDomain(%v) code = %d, want %d", tt.err, got.code, tt.want)
			}
		})
	}
}

func TestUnwrap(t *testing.T) {
	base := pool.ErrBadRequest
	coded := FromDomain(fmt.Errorf("wrapped: %w", base))
	if !errors.Is(coded, base) {
		t.Errorf("coded error does not unwrap to the domain error")
	}
}
