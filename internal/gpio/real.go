//go:build linux

package gpio

import (
	"fmt"

	"github.com/warthog618/go-gpiocdev"
)

// RealReader reads a single GPIO line from actual hardware using the Linux
// GPIO character device.
type RealReader struct {
	chip *gpiocdev.Chip
	line *gpiocdev.Line
}

// NewRealReader opens chipPath and requests line as a pulled-up input,
// matching a normally-open momentary button wired to ground.
func NewRealReader(chipPath string, line int) (*RealReader, error) {
	if chipPath == "" {
		chipPath = DefaultChip
	}

	chip, err := gpiocdev.NewChip(chipPath)
	if err != nil {
		return nil, fmt.Errorf("open gpio chip %s: %w", chipPath, err)
	}

	l, err := chip.RequestLine(line, gpiocdev.AsInput, gpiocdev.WithPullUp)
	if err != nil {
		chip.Close()
		return nil, fmt.Errorf("request button line %d: %w", line, err)
	}

	return &RealReader{chip: chip, line: l}, nil
}

// Read returns whether the button is currently pressed. Raw active (0) =
// pressed, raw inactive (1) = released, per the pulled-up wiring.
func (r *RealReader) Read() (bool, error) {
	raw, err := r.line.Value()
	if err != nil {
		return false, fmt.Errorf("read button line: %w", err)
	}
	return raw == 0, nil
}

// Close releases GPIO resources, reconfiguring the line back to a plain
// pulled-up input before closing.
func (r *RealReader) Close() error {
	var errs []error
	if r.line != nil {
		if err := r.line.Reconfigure(gpiocdev.AsInput, gpiocdev.WithPullUp); err != nil {
			errs = append(errs, fmt.Errorf("reconfigure button line: %w", err))
		}
		if err := r.line.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close button line: %w", err))
		}
	}
	if r.chip != nil {
		if err := r.chip.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close chip: %w", err))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("close errors: %v", errs)
	}
	return nil
}
