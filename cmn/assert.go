package cmn

import "fmt"

// Assert panics if cond is false. Used for invariants that must never be
// violated by a correct caller (see spec.md §8 for the invariants this
// guards in callers such as cluster and wasmrt).
func Assert(cond bool) {
	if !cond {
		panic("assertion failed")
	}
}

func AssertMsg(cond bool, msg string) {
	if !cond {
		panic("assertion failed: " + msg)
	}
}

func Assertf(cond bool, format string, a ...interface{}) {
	if !cond {
		panic("assertion failed: " + fmt.Sprintf(format, a...))
	}
}

// AssertNoErr is a convenience for call sites that treat a non-nil error
// as an invariant violation rather than a recoverable failure.
func AssertNoErr(err error) {
	if err != nil {
		panic("assertion failed: unexpected error: " + err.Error())
	}
}
