//go:build linux

package main

import (
	"fmt"

	"golang.org/x/sys/unix"
)

// memoryStats returns free and total RAM in bytes.
func memoryStats() (free, total uint64, err error) {
	var info unix.Sysinfo_t
	if err := unix.Sysinfo(&info); err != nil {
		return 0, 0, fmt.Errorf("sysinfo: %w", err)
	}
	unit := uint64(info.Unit)
	if unit == 0 {
		unit = 1
	}
	return uint64(info.Freeram) * unit, uint64(info.Totalram) * unit, nil
}
