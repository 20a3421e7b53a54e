// Package gpio provides GPIO input reading with hardware abstraction for a
// single button line. The real implementation uses the Linux GPIO
// character device; the fake implementation allows testing without
// hardware. Adapted from a dual-channel (central-heating/hot-water) reader
// into a single debounced button line for internal/transport/gpiobutton.
package gpio

// Reader reads a single GPIO input line's logical pressed/released state.
// The raw GPIO value is inverted for a pulled-up button: raw active (low)
// = logically pressed.
type Reader interface {
	// Read returns whether the button is currently pressed.
	Read() (pressed bool, err error)

	// Close releases GPIO resources.
	Close() error
}

// DefaultChip is the Linux GPIO character device used when no chip path is
// configured.
const DefaultChip = "/dev/gpiochip0"

// DefaultLine is the BCM line number conventionally wired to the button.
// No code applies it as a fallback: the reader opens exactly the line it is
// given.
const DefaultLine = 17
