// Package buildinfo contains build-time metadata kept apart from user configuration
package buildinfo

import (
	"fmt"
	"runtime"
	"runtime/debug"
	"strings"

	"github.com/tphakala/lightsheet-go/internal/cpuspec"
)

// UnknownValue is reported for metadata that was not injected at build time
const UnknownValue = "unknown"

// BuildInfo provides access to build-time metadata.
type BuildInfo interface {
	// GetVersion returns the build version string
	GetVersion() string
	// GetBuildDate returns the build date string
	GetBuildDate() string
	// GetRevision returns the VCS revision the binary was built from
	GetRevision() string
}

// Context contains build-time metadata that is not user-configurable.
type Context struct {
	// Version holds the Git version tag from build
	Version string

	// BuildDate is the time when the binary was built
	BuildDate string

	// Revision is the VCS revision recorded by the Go toolchain
	Revision string

	// Modified is true when the working tree had uncommitted changes
	Modified bool
}

// NewContext returns build metadata, filling the revision from the module
// build information when the toolchain recorded one.
func NewContext(version, buildDate string) *Context {
	c := &Context{Version: version, BuildDate: buildDate}
	if info, ok := debug.ReadBuildInfo(); ok {
		c.applySettings(info.Settings)
	}
	return c
}

func (c *Context) applySettings(settings []debug.BuildSetting) {
	for _, s := range settings {
		switch s.Key {
		case "vcs.revision":
			c.Revision = s.Value
		case "vcs.modified":
			c.Modified = s.Value == "true"
		}
	}
}

// GetVersion implements BuildInfo.GetVersion
func (c *Context) GetVersion() string {
	if c == nil || c.Version == "" {
		return UnknownValue
	}
	return c.Version
}

// GetBuildDate implements BuildInfo.GetBuildDate
func (c *Context) GetBuildDate() string {
	if c == nil || c.BuildDate == "" {
		return UnknownValue
	}
	return c.BuildDate
}

// GetRevision implements BuildInfo.GetRevision. Revisions are shortened to
// twelve characters and marked when the tree was dirty.
func (c *Context) GetRevision() string {
	if c == nil || c.Revision == "" {
		return UnknownValue
	}
	rev := c.Revision
	if len(rev) > 12 {
		rev = rev[:12]
	}
	if c.Modified {
		rev += "-dirty"
	}
	return rev
}

// Report returns a human readable summary of the build and host.
func (c *Context) Report() string {
	spec := cpuspec.GetCPUSpec()

	var b strings.Builder
	fmt.Fprintf(&b, "Version     %s\n", c.GetVersion())
	fmt.Fprintf(&b, "Build date  %s\n", c.GetBuildDate())
	fmt.Fprintf(&b, "Revision    %s\n", c.GetRevision())
	fmt.Fprintf(&b, "Go          %s %s/%s\n", runtime.Version(), runtime.GOOS, runtime.GOARCH)
	fmt.Fprintf(&b, "CPU         %s, %d physical / %d logical cores, %d usable\n",
		spec.BrandName, spec.PhysicalCores, spec.LogicalCores, spec.Available)
	fmt.Fprintf(&b, "Workers     %d pipeline threads when unconfigured\n", spec.OptimalWorkerCount())
	return b.String()
}
