// Package clock abstracts time so control loops can be driven by hand in tests.
package clock

//go:generate mockgen -destination=mock_clock.go -package=clock github.com/carverauto/usbcopier/pkg/clock Clock,Ticker

import "time"

// Clock abstracts time-related operations.
type Clock interface {
	Now() time.Time
	Ticker(d time.Duration) Ticker
	After(d time.Duration) <-chan time.Time
}

// Ticker abstracts the ticker behavior.
type Ticker interface {
	Chan() <-chan time.Time
	Stop()
}
