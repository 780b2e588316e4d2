//go:build !unix

package lifecycle

import "os"

// No lifecycle signals exist here; transitions only arrive through Emit.
func platformSignals() map[os.Signal]EventType {
	return nil
}
