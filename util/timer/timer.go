package timer

import (
	"sync"
	"time"
)

// Every calls f every d on its own goroutine until stop is called. A call
// to f that is running when stop is called is allowed to finish.
func Every(d time.Duration, f func()) (stop func()) {
	t := time.NewTicker(d)
	done := make(chan struct{})

	go func() {
		for {
			select {
			case <-t.C:
				f()
			case <-done:
				return
			}
		}
	}()

	var once sync.Once
	return func() {
		once.Do(func() {
			t.Stop()
			close(done)
		})
	}
}
