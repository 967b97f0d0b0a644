// Package hal is the only contact point between the kernel world and the
// host: log output, tick timing and the framebuffer the status monitor
// draws on. The kernel itself never imports it.
package hal

import "errors"

// Logger writes newline-delimited log lines.
type Logger interface {
	WriteLineString(s string)
	WriteLineBytes(b []byte)
}

var ErrNotImplemented = errors.New("not implemented")

// PixelFormat defines the framebuffer pixel encoding.
type PixelFormat uint8

const (
	// PixelFormatRGB565 is 16bpp: rrrrrggggggbbbbb.
	PixelFormatRGB565 PixelFormat = iota + 1
)

// Framebuffer is a simple pixel buffer plus a "present" hook.
type Framebuffer interface {
	Width() int
	Height() int
	Format() PixelFormat
	StrideBytes() int
	Buffer() []byte
	ClearRGB(r, g, b uint8)
	Present() error
}

// Clock converts wall time into whole scheduler ticks.
type Clock interface {
	// Advance returns the number of ticks elapsed since the previous call,
	// folding the remainder into the next one.
	Advance() int
}

// Display provides access to the framebuffer (if available).
type Display interface {
	Framebuffer() Framebuffer
}

// HAL bundles the host collaborators handed to the runners.
type HAL interface {
	Logger() Logger
	Display() Display
	Clock() Clock
}
