package academic

import "time"

// SetNowFunc replaces the clock and returns a function restoring it.
func SetNowFunc(fn func() time.Time) func() {
	orig := nowFunc
	nowFunc = fn
	return func() { nowFunc = orig }
}
