package interaction

import "sync"

// Capture is held for the lifetime of a gesture, like a window-level
// listener attached on gesture start. Release runs the detach hook at most
// once no matter how many times it is called.
type Capture struct {
	once    sync.Once
	release func()
}

func newCapture(release func()) *Capture {
	if release == nil {
		release = func() {}
	}
	return &Capture{release: release}
}

// Release detaches the capture.
func (c *Capture) Release() {
	c.once.Do(c.release)
}

// CaptureHook is called when a gesture starts and returns the function that
// undoes it when the gesture ends.
type CaptureHook func(Mode) (release func())
