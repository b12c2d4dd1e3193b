/*
varz provides helpers to create expvar variables with package-qualified
names, so counters from different packages can't collide.  Importing it
registers expvar's /debug/vars handler on http.DefaultServeMux.
*/
package varz

import (
	"expvar"
	"fmt"
	"runtime"
	"strings"
)

// callerPackage returns the package name of the caller of the caller.  Uses
// a loose heuristic to split the function name; var-block initializers come
// out as the package rather than "init".
func callerPackage() string {
	pc, _, _, ok := runtime.Caller(2)
	if !ok {
		return "varz.unknown"
	}
	fn := runtime.FuncForPC(pc)
	if fn == nil {
		return "varz.unknown"
	}

	n := fn.Name()
	dot := strings.LastIndex(n, ".")
	if dot != -1 {
		n = n[:dot]
	}

	return n
}

func NewInt(name string) *expvar.Int {
	return expvar.NewInt(fmt.Sprintf("%s.%s", callerPackage(), name))
}

func NewMap(name string) *expvar.Map {
	return expvar.NewMap(fmt.Sprintf("%s.%s", callerPackage(), name))
}

func NewString(name string) *expvar.String {
	return expvar.NewString(fmt.Sprintf("%s.%s", callerPackage(), name))
}
