//go:build !linux

package logger

// isTerminal reports whether fd is a terminal. On platforms without a
// cheap ioctl probe we disable color rather than guess.
func isTerminal(fd uintptr) bool {
	return false
}
