package screen

import (
	"context"
	"fmt"
	"image"
	"os"
	"time"

	"github.com/fogleman/gg"
	"github.com/rs/zerolog"

	"github.com/tigerbot-team/tigerbot/go-localizer/pkg/angle"
	"github.com/tigerbot-team/tigerbot/go-localizer/pkg/pose"
)

const S = 128

// Status is everything the screen shows.
type Status struct {
	Pose      pose.Pose
	Stage     string
	BattVolts float64
}

// LoopUpdatingScreen redraws the framebuffer every 500ms until ctx is done.
func LoopUpdatingScreen(ctx context.Context, device string, status func() Status, log zerolog.Logger) {
	f, err := os.OpenFile(device, os.O_RDWR, 0666)
	if err != nil {
		log.Info().Err(err).Msg("Failed to open screen, ignoring")
		return
	}
	defer f.Close()

	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			var buf [S * S * 2]byte
			_, _ = f.Seek(0, 0)
			_, _ = f.Write(buf[:])
			return
		case <-ticker.C:
		}

		buf := ToRGB565(Render(status()))
		_, err = f.Seek(0, 0)
		if err != nil {
			log.Error().Err(err).Msg("Screen failure")
			return
		}
		for i := 0; i < S; i++ {
			_, err = f.Write(buf[i*S*2 : (i+1)*S*2])
			if err != nil {
				log.Error().Err(err).Msg("Screen failure")
				return
			}
			time.Sleep(10 * time.Microsecond)
		}
	}
}

func Render(st Status) image.Image {
	dc := gg.NewContext(S, S)
	dc.SetRGB(0, 0, 0)
	dc.Clear()

	dc.SetRGBA(1, 0.9, 0, 1)
	dc.DrawString(st.Stage, 4, 14)

	dc.SetRGB(1, 1, 1)
	dc.DrawString(fmt.Sprintf("X  %7.2f", st.Pose.X), 4, 34)
	dc.DrawString(fmt.Sprintf("Y  %7.2f", st.Pose.Y), 4, 48)
	dc.DrawString(fmt.Sprintf("T  %7.1f", angle.ToDegrees(st.Pose.Theta)), 4, 62)

	drawHeading(dc, st.Pose.Theta)

	if st.BattVolts > 0 {
		if st.BattVolts < minPackVoltage {
			dc.SetRGBA(1, 0.2, 0, 1)
		}
		dc.DrawString(fmt.Sprintf("%.1fv", st.BattVolts), 4, 120)
	}
	return dc.Image()
}

const minPackVoltage = 6.6

func drawHeading(dc *gg.Context, theta float64) {
	const cx, cy, r = 96, 96, 20
	dc.SetRGB(0.5, 0.5, 0.5)
	dc.DrawCircle(cx, cy, r)
	dc.Stroke()

	// Screen Y grows downwards; heading is CCW from +X.
	dc.Push()
	dc.RotateAbout(-theta, cx, cy)
	dc.SetRGBA(1, 0.9, 0, 1)
	dc.DrawRegularPolygon(3, cx+r*0.6, cy, r*0.4, 0)
	dc.Fill()
	dc.Pop()
}

// ToRGB565 packs img into the rotated 16-bit layout the panel expects.
func ToRGB565(img image.Image) []byte {
	buf := make([]byte, S*S*2)
	for y := 0; y < S; y++ {
		for x := 0; x < S; x++ {
			r, g, b, _ := img.At(x, y).RGBA() // 16-bit pre-multiplied

			rb := byte(r >> (16 - 5))
			gb := byte(g >> (16 - 6)) // Green has 6 bits
			bb := byte(b >> (16 - 5))

			buf[(S-1-y)*2+x*S*2+1] = (rb << 3) | (gb >> 3)
			buf[(S-1-y)*2+x*S*2] = bb | (gb << 5)
		}
	}
	return buf
}
