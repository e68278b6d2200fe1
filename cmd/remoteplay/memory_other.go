//go:build !linux

package main

import "errors"

func memoryStats() (free, total uint64, err error) {
	return 0, 0, errors.New("memory stats not supported on this platform")
}
