package main

import "errors"

// errChangeModeUnsupported is returned because change-mode has no
// corresponding wire command among the five MDFU commands this host
// implements (GET_CLIENT_INFO, START_TRANSFER, WRITE_CHUNK,
// GET_IMAGE_STATE, END_TRANSFER); a client-side mode switch (e.g.
// bootloader/application) is outside this protocol version's scope.
var errChangeModeUnsupported = errors.New("change-mode: no mode-switch command in this protocol version")

func runChangeMode() error {
	return errChangeModeUnsupported
}
