//go:build !linux

package main

import "os"

// probeCaptureDevice checks that the configured capture device path exists.
// On non-Linux systems cameras are not device nodes, so an empty path skips it.
func probeCaptureDevice(path string) error {
	if path == "" {
		return nil
	}
	if _, err := os.Stat(path); err != nil {
		return &DeviceError{Device: path, Op: "probe", Err: err}
	}
	return nil
}
