//go:build unix

package lifecycle

import (
	"os"
	"syscall"
)

func platformSignals() map[os.Signal]EventType {
	return map[os.Signal]EventType{
		syscall.SIGUSR1: EventBackground,
		syscall.SIGUSR2: EventForeground,
	}
}
