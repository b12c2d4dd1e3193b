package urlpath

import (
	"net/http"
	"strconv"
	"time"

	"github.com/ts4z/tote/he"
)

// SeqPathValue extracts the "seq" path variable from the request and parses
// it.
//
// On error, an error is reported to the client, and a delay is imposed in
// case the client is sending crap in a tight loop.
func SeqPathValue(w http.ResponseWriter, r *http.Request) (int64, error) {
	seq, err := seqPathValueFromRequest(r)
	if err != nil {
		time.Sleep(10 * time.Second)
		he.SendErrorToHTTPClient(w, "parsing URL", err)
	}
	return seq, err
}

func seqPathValueFromRequest(r *http.Request) (int64, error) {
	seq, err := strconv.ParseInt(r.PathValue("seq"), 10, 64)
	if err != nil {
		return -1, he.HTTPCodedErrorf(400, "can't parse seq from url path: %v", err)
	}
	return seq, nil
}

// IntQueryValue parses an integer query parameter, with a default for when
// it is absent.
func IntQueryValue(r *http.Request, name string, dflt int) (int, error) {
	s := r.URL.Query().Get(name)
	if s == "" {
		return dflt, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, he.HTTPCodedErrorf(400, "can't parse %s=%q: %v", name, s, err)
	}
	return n, nil
}
