package loader

import "github.com/DonKinzer/esp-tool/serial"

// Option is a functional option for configuring a Client.
type Option func(*Client)

// WithClock substitutes the time source. Tests use this to run timeout
// paths without real delays.
func WithClock(clock serial.Clock) Option {
	return func(c *Client) {
		if clock != nil {
			c.clock = clock
		}
	}
}

// WithProgress sets a callback invoked during long operations.
//
// Example:
//
//	c := loader.New(loader.WithProgress(func(p loader.Progress) {
//	    fmt.Printf("\r%s block %d/%d", p.Phase, p.Block, p.TotalBlocks)
//	}))
func WithProgress(fn ProgressFunc) Option {
	return func(c *Client) {
		c.progress = fn
	}
}

// WithQuiet suppresses progress reporting. Errors are still surfaced.
func WithQuiet(quiet bool) Option {
	return func(c *Client) {
		c.quiet = quiet
	}
}

// WithAutoRun controls whether the device is started after operations.
// The default is true.
func WithAutoRun(run bool) Option {
	return func(c *Client) {
		c.autoRun = run
	}
}

// WithNoTimeLimit disables reply timeout enforcement. Diagnostic use only:
// a wedged device will hang the client.
func WithNoTimeLimit(disable bool) Option {
	return func(c *Client) {
		c.noTimeLimit = disable
	}
}
