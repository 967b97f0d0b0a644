package hal

import (
	"errors"
	"image"

	"github.com/hajimehoshi/ebiten/v2"

	"ember/internal/buildinfo"
)

// ErrStop is returned by a step function to shut a runner down cleanly.
var ErrStop = errors.New("stop")

// RunWindow opens a desktop window displaying the framebuffer and calls
// step once per frame. It blocks until the window closes or step fails.
func RunWindow(h HAL, step func() error) error {
	fb, ok := h.Display().Framebuffer().(*hostFramebuffer)
	if !ok {
		return ErrNotImplemented
	}

	g := &hostGame{fb: fb, step: step}
	ebiten.SetWindowTitle("ember (" + buildinfo.Short() + ")")
	ebiten.SetWindowSize(fb.width*2, fb.height*2)
	ebiten.SetTPS(60)
	if err := ebiten.RunGame(g); err != nil {
		if errors.Is(err, ErrStop) {
			return nil
		}
		return err
	}
	return nil
}

type hostGame struct {
	fb      *hostFramebuffer
	img     *image.RGBA
	fbImg   *ebiten.Image
	scratch []byte
	step    func() error
}

func (g *hostGame) Update() error {
	if g.step != nil {
		return g.step()
	}
	return nil
}

func (g *hostGame) Draw(screen *ebiten.Image) {
	fb := g.fb
	if g.img == nil {
		g.img = image.NewRGBA(image.Rect(0, 0, fb.width, fb.height))
		g.scratch = make([]byte, len(fb.buf))
		g.fbImg = ebiten.NewImage(fb.width, fb.height)
	}

	fb.snapshotRGB565(g.scratch)

	src := g.scratch
	dst := g.img.Pix
	for i := 0; i+1 < len(src) && i/2*4+3 < len(dst); i += 2 {
		r, gg, b := rgb888From565(uint16(src[i]) | uint16(src[i+1])<<8)
		j := (i / 2) * 4
		dst[j+0] = r
		dst[j+1] = gg
		dst[j+2] = b
		dst[j+3] = 0xFF
	}

	g.fbImg.WritePixels(g.img.Pix)
	screen.DrawImage(g.fbImg, nil)
}

func (g *hostGame) Layout(outsideWidth, outsideHeight int) (int, int) {
	return g.fb.width, g.fb.height
}

func rgb888From565(p uint16) (r, g, b uint8) {
	rr := (p >> 11) & 0x1F
	gg := (p >> 5) & 0x3F
	bb := p & 0x1F

	r = uint8((rr * 255) / 31)
	g = uint8((gg * 255) / 63)
	b = uint8((bb * 255) / 31)
	return r, g, b
}
