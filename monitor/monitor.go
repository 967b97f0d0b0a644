// Package monitor renders a live kernel status panel (tasks, timers, check
// verdicts) onto the HAL framebuffer.
package monitor

import (
	"fmt"
	"image/color"

	"tinygo.org/x/tinyfont"
	"tinygo.org/x/tinyfont/proggy"

	"ember/hal"
	"ember/internal/buildinfo"
	"ember/kernel"
)

const lineHeight = 10

var (
	colBG     = [3]uint8{8, 12, 24}
	colHeader = color.RGBA{R: 255, G: 200, B: 80, A: 255}
	colOK     = color.RGBA{R: 120, G: 230, B: 120, A: 255}
	colBad    = color.RGBA{R: 240, G: 90, B: 90, A: 255}
	colText   = color.RGBA{R: 210, G: 210, B: 220, A: 255}
)

type Monitor struct {
	fb hal.Framebuffer
	d  *fbDisplay
}

func New(disp hal.Display) *Monitor {
	if disp == nil {
		return &Monitor{}
	}
	fb := disp.Framebuffer()
	if fb == nil {
		return &Monitor{}
	}
	return &Monitor{fb: fb, d: newFBDisplay(fb)}
}

// Render repaints the panel from a fresh kernel snapshot. Status lines are
// appended below the task and timer tables.
func (m *Monitor) Render(k *kernel.Kernel, status []string) {
	if m.fb == nil {
		return
	}
	m.fb.ClearRGB(colBG[0], colBG[1], colBG[2])

	y := int16(lineHeight)
	m.line(y, colHeader, fmt.Sprintf("ember %s  tick %d", buildinfo.Short(), k.Now()))
	y += lineHeight

	for _, t := range k.TaskInfos() {
		col := colText
		if t.State == kernel.TaskDeleted {
			col = colBad
		}
		m.line(y, col, fmt.Sprintf(" %-14s %-9s p%d/%d", t.Name, t.State, t.BasePriority, t.Priority))
		y += lineHeight
	}

	y += lineHeight / 2
	for _, tm := range k.TimerInfos() {
		col := colText
		state := "idle"
		if tm.Active {
			col = colOK
			state = fmt.Sprintf("@%d", tm.Expiry)
		}
		m.line(y, col, fmt.Sprintf(" %-14s T=%-5d %s", tm.Name, tm.Period, state))
		y += lineHeight
	}

	y += lineHeight / 2
	for _, s := range status {
		m.line(y, colHeader, s)
		y += lineHeight
	}
	m.fb.Present()
}

func (m *Monitor) line(y int16, col color.RGBA, s string) {
	if int(y) >= m.fb.Height() {
		return
	}
	tinyfont.WriteLine(m.d, &proggy.TinySZ8pt7b, 4, y, s, col)
}
