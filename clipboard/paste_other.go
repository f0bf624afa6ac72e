//go:build !darwin

package clipboard

import (
	"runtime"
	"time"

	"github.com/micmonay/keybd_event"
)

func setPasteModifier(k *keybd_event.KeyBonding) {
	k.HasCTRL(true)
}

// settle waits for a freshly created uinput device to be picked up.
func settle() {
	if runtime.GOOS == "linux" {
		time.Sleep(2 * time.Second)
	}
}
