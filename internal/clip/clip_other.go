//go:build !linux && !darwin && !windows

package clip

// New returns the headless backend; this platform has no clipboard support.
func New() Backend { return Headless() }
