package fsutil

import (
	"runtime"
	"strings"
)

// Names reports whether a filesystem target tells names apart by case.
type Names interface {
	CaseSensitive() bool
}

type hostNames struct{}

// Windows and default macOS volumes fold case.
func (hostNames) CaseSensitive() bool {
	return runtime.GOOS != "windows" && runtime.GOOS != "darwin"
}

var HostNames Names = hostNames{}

// StaticNames is a fixed capability, mostly useful in tests.
type StaticNames bool

func (n StaticNames) CaseSensitive() bool { return bool(n) }

// SameName compares two names the way the target filesystem would.
func SameName(n Names, a, b string) bool {
	if n == nil {
		n = HostNames
	}
	if n.CaseSensitive() {
		return a == b
	}
	return strings.EqualFold(a, b)
}
