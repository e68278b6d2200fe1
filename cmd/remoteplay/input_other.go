//go:build !linux

package main

import "os"

// readDevices starts one blocking reader per device; closing the files stops them.
func readDevices(files []*os.File, events chan<- inputEvent, readErr chan<- error, _ <-chan struct{}) {
	for _, f := range files {
		go readInputEvents(f, events, readErr)
	}
}
