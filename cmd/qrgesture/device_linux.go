//go:build linux

package main

import "golang.org/x/sys/unix"

// probeCaptureDevice checks that the camera node exists and is readable
// before the sidecar feed is opened.
func probeCaptureDevice(path string) error {
	if path == "" {
		return nil
	}
	if err := unix.Access(path, unix.R_OK); err != nil {
		return &DeviceError{Device: path, Op: "probe", Err: err}
	}
	return nil
}
