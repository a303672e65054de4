package fsutil

import "runtime"

// Permissions reports whether a filesystem target honours POSIX mode bits.
type Permissions interface {
	Supported() bool
}

type hostPermissions struct{}

func (hostPermissions) Supported() bool { return runtime.GOOS != "windows" }

// HostPermissions is the capability of the filesystem the process runs on.
var HostPermissions Permissions = hostPermissions{}

// StaticPermissions is a fixed capability, mostly useful in tests.
type StaticPermissions bool

func (p StaticPermissions) Supported() bool { return bool(p) }
