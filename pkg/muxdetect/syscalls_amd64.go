package muxdetect

import "golang.org/x/sys/unix"

// Legacy poll and select exist alongside the p-variants here.
const (
	sysPoll   = unix.SYS_POLL
	sysSelect = unix.SYS_SELECT
)
