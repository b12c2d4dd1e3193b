package he

import (
	"errors"
	"fmt"
	"log" // all kids love log
	"net/http"

	"github.com/ts4z/tote/pool"
	"github.com/ts4z/tote/state"
)

// HTTPError carries a status code alongside an error so handlers don't have
// to guess.
type HTTPError struct {
	code int
	err  error
}

func HTTPCodedErrorf(code int, f string, more ...any) *HTTPError {
	return &HTTPError{
		code: code,
		err:  fmt.Errorf(f, more...),
	}
}

func New(code int, err error) *HTTPError {
	return &HTTPError{
		code: code,
		err:  err,
	}
}

func (e *HTTPError) Error() string {
	return e.err.Error()
}

func (e *HTTPError) Unwrap() error {
	return e.err
}

// FromDomain translates pool/state errors into coded errors.  Precondition
// violations and re-entry into finished phases are conflicts; a short stake
// is the client's fault; anything unrecognized is on us.
func FromDomain(err error) *HTTPError {
	var phase *pool.PhaseError
	switch {
	case errors.As(err, &phase):
		return New(http.StatusConflict, err)
	case errors.Is(err, pool.ErrAlreadyFinalized),
		errors.Is(err, pool.ErrWinnerAlreadyDeclared):
		return New(http.StatusConflict, err)
	case errors.Is(err, pool.ErrBelowMinimum),
		errors.Is(err, pool.ErrBadRequest):
		return New(http.StatusBadRequest, err)
	case errors.Is(err, pool.ErrPermissionDenied):
		return New(http.StatusUnauthorized, err)
	case errors.Is(err, state.ErrNotFound):
		return New(http.StatusNotFound, err)
	default:
		return New(http.StatusInternalServerError, err)
	}
}

// SendErrorToHTTPClient sends err as an HTTP error.  If it happens to be our
// special coded error, we can include a better response code; otherwise,
// client gets 500 and it's on us.
func SendErrorToHTTPClient(w http.ResponseWriter, while string, err error) {
	var coded *HTTPError
	if !errors.As(err, &coded) {
		coded = FromDomain(err)
	}
	txt := fmt.Sprintf("can't %s: %v", while, coded.err)
	log.Println(txt)
	http.Error(w, txt, coded.code)
}
