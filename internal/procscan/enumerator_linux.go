//go:build linux

package procscan

// NewEnumerator returns the platform-appropriate Enumerator (§4.3, §9).
func NewEnumerator() Enumerator {
	return &LinuxEnumerator{}
}
