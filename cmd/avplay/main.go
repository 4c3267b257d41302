// Command avplay is a thin demo player built on top of the player
// package, grounded on examples/mediaplayer/main.go's Ebitengine game
// loop (Layout/Draw/Update, Escape to quit, Space/P to toggle play,
// S to stop) but driven through a spf13/cobra root command so flags
// like --loop and --no-audio have real parsing instead of bespoke
// os.Args handling.
package main

import (
	"fmt"
	"image"
	"image/color"
	"os"
	"time"

	"github.com/hajimehoshi/ebiten/v2"
	"github.com/hajimehoshi/ebiten/v2/ebitenutil"
	"github.com/hajimehoshi/ebiten/v2/inpututil"
	"github.com/spf13/cobra"

	player "github.com/avcore/player"
)

func main() {
	var loop bool
	var noAudio bool
	var width, height int

	root := &cobra.Command{
		Use:   "avplay <path-or-url>",
		Short: "Play a local file or network stream through the avcore/player pipeline.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(args[0], loop, noAudio, width, height)
		},
	}
	root.Flags().BoolVar(&loop, "loop", false, "restart from the beginning at end of stream")
	root.Flags().BoolVar(&noAudio, "no-audio", false, "decode video only, even if the source has an audio stream")
	root.Flags().IntVar(&width, "width", 1280, "window width")
	root.Flags().IntVar(&height, "height", 720, "window height")

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(url string, loop, noAudio bool, width, height int) error {
	p, err := player.Open(url, player.Config{Looping: loop, IgnoreAudio: noAudio})
	if err != nil {
		return fmt.Errorf("open %q: %w", url, err)
	}
	if err := p.Play(); err != nil {
		return fmt.Errorf("play: %w", err)
	}

	ebiten.SetWindowTitle("avplay")
	ebiten.SetWindowResizingMode(ebiten.WindowResizingModeEnabled)
	ebiten.SetWindowSize(width, height)

	return ebiten.RunGame(&app{player: p, url: url, duration: p.Duration()})
}

type app struct {
	player   *player.Player
	url      string
	duration time.Duration

	lastPosition time.Duration
}

func (a *app) Layout(_, _ int) (int, int) {
	panic("Layout() should not be called when LayoutF() exists")
}

func (a *app) LayoutF(w, h float64) (float64, float64) {
	scaleFactor := ebiten.Monitor().DeviceScaleFactor()
	return w * scaleFactor, h * scaleFactor
}

func (a *app) Draw(canvas *ebiten.Image) {
	a.player.Draw(canvas)
	a.drawGUI(canvas)
}

func (a *app) Update() error {
	a.lastPosition = a.player.Position()

	if inpututil.IsKeyJustPressed(ebiten.KeyEscape) {
		if err := a.player.Close(); err != nil {
			return err
		}
		return ebiten.Termination
	}

	if inpututil.IsKeyJustPressed(ebiten.KeyP) || inpututil.IsKeyJustPressed(ebiten.KeySpace) {
		if a.player.State() == player.StatePlaying {
			if err := a.player.Pause(); err != nil {
				return err
			}
		} else if err := a.player.Play(); err != nil {
			return err
		}
	} else if inpututil.IsKeyJustPressed(ebiten.KeyS) {
		if err := a.player.Stop(); err != nil {
			return err
		}
	}

	if inpututil.IsKeyJustPressed(ebiten.KeyRight) {
		// A non-nil return here only means an earlier seek was still
		// pending and got superseded; the new target still takes effect,
		// so there's nothing to surface to the user.
		_ = a.player.Seek(a.lastPosition + 10*time.Second)
	} else if inpututil.IsKeyJustPressed(ebiten.KeyLeft) {
		_ = a.player.Seek(a.lastPosition - 10*time.Second)
	}

	if inpututil.IsKeyJustPressed(ebiten.KeyI) {
		fmt.Printf("state=%s renderer=%s stats=%+v\n", a.player.State(), a.player.RendererName(), a.player.Stats())
	}

	return nil
}

func (a *app) drawGUI(canvas *ebiten.Image) {
	bounds := canvas.Bounds()
	w, h := bounds.Dx(), bounds.Dy()
	playWidth := (w * 2) / 3
	playHeight := h / 48
	ox := (w - playWidth) / 2
	oy := h - playHeight*2
	playRect := image.Rect(ox, oy, ox+playWidth, oy+playHeight)
	canvas.SubImage(playRect).(*ebiten.Image).Fill(color.RGBA{255, 255, 255, 255})
	const borderThickness = 3
	playRect.Min.X += borderThickness
	playRect.Max.X -= borderThickness
	playRect.Min.Y += borderThickness
	playRect.Max.Y -= borderThickness
	canvas.SubImage(playRect).(*ebiten.Image).Fill(color.RGBA{0, 0, 0, 255})
	const innerMargin = 2
	playRect.Min.X += innerMargin
	playRect.Max.X -= innerMargin
	playRect.Min.Y += innerMargin
	playRect.Max.Y -= innerMargin
	t := float64(a.lastPosition) / float64(a.duration)
	playRect.Max.X = playRect.Min.X + int(float64(playRect.Dx())*t)
	canvas.SubImage(playRect).(*ebiten.Image).Fill(color.RGBA{255, 255, 255, 255})

	ebitenutil.DebugPrintAt(canvas, durationMMSS(a.lastPosition)+" / "+durationMMSS(a.duration)+" (SPACE pause, S stop, arrows seek)", ox, oy-16)
}

func durationMMSS(d time.Duration) string {
	seconds := d.Milliseconds() / 1000
	minutes := seconds / 60
	seconds %= 60
	return fmt.Sprintf("%02d:%02d", minutes, seconds)
}
