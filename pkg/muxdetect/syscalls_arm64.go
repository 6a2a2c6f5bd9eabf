package muxdetect

// arm64 never had plain poll or select, only ppoll and pselect6. The
// placeholders are negative so they can never match a syscall number.
const (
	sysPoll   = -2
	sysSelect = -3
)
