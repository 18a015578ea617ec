//go:build !linux

package pool

// PreFaultPages is a no-op outside Linux.
func PreFaultPages(data []byte) error { return nil }
