// Package buildinfo holds build-time metadata injected through ldflags.
package buildinfo

import (
	"fmt"
	"runtime"
)

// UnknownValue is reported for metadata the build did not set.
const UnknownValue = "unknown"

// Info is the version and build date of the running binary.
type Info struct {
	version   string
	buildDate string
}

// New returns build metadata. Empty values read back as UnknownValue.
func New(version, buildDate string) *Info {
	return &Info{version: version, buildDate: buildDate}
}

// Version returns the release version.
func (i *Info) Version() string {
	if i == nil || i.version == "" {
		return UnknownValue
	}
	return i.version
}

// BuildDate returns the build date.
func (i *Info) BuildDate() string {
	if i == nil || i.buildDate == "" {
		return UnknownValue
	}
	return i.buildDate
}

// Release is the identifier reported to error tracking.
func (i *Info) Release() string {
	return "audiodevice@" + i.Version()
}

func (i *Info) String() string {
	return fmt.Sprintf("%s (built %s, %s %s/%s)",
		i.Version(), i.BuildDate(), runtime.Version(), runtime.GOOS, runtime.GOARCH)
}
