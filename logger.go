package nrf24

import "github.com/michcald/nrf24irq/diag"

// Logger defines the logging interface for simple string messages.
// Using simple strings instead of formatted strings helps reduce binary size
// and memory allocations on microcontrollers (TinyGo).
type Logger = diag.Logger

// SetLogger sets the global logger instance.
func SetLogger(l Logger) {
	diag.SetLogger(l)
}
