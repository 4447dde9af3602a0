package app

import (
	"context"
	"fmt"
	"image"
	"log"
	"time"

	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
	"periph.io/x/conn/v3/i2c/i2creg"
	"periph.io/x/devices/v3/ssd1306"
	"periph.io/x/devices/v3/ssd1306/image1bit"
	"periph.io/x/host/v3"

	"github.com/relabs-tech/flyvr_rig/internal/config"
)

const (
	panelWidth  = 128
	panelHeight = 64
	lineHeight  = 13
	maxChars    = panelWidth / 7
)

// RunStatusDisplay shows the rig telemetry on an SSD1306 OLED panel on the
// default I2C bus, refreshing every DISPLAY_UPDATE_INTERVAL until ctx is
// cancelled. The panel is blanked on exit.
func RunStatusDisplay(ctx context.Context, cfg *config.Config) error {
	// Initialize periph
	if _, err := host.Init(); err != nil {
		return fmt.Errorf("failed to initialize periph: %w", err)
	}

	// Open I2C bus
	bus, err := i2creg.Open("")
	if err != nil {
		return fmt.Errorf("failed to open I2C bus: %w", err)
	}
	defer bus.Close()

	dev, err := ssd1306.NewI2C(bus, &ssd1306.DefaultOpts)
	if err != nil {
		return fmt.Errorf("failed to initialize display: %w", err)
	}
	defer dev.Halt()
	log.Printf("display: panel initialized")

	if err := dev.Draw(dev.Bounds(), drawLines([]string{"", " Fly VR rig", " waiting for", " telemetry"}), image.Point{}); err != nil {
		log.Printf("display: error showing splash: %v", err)
	}

	state := &LiveState{}
	client, err := ConnectMQTT(cfg.MQTTBroker, cfg.MQTTClientIDDisplay)
	if err != nil {
		return err
	}
	defer client.Disconnect(250)
	if err := subscribeLive(client, cfg, state, "display", nil); err != nil {
		return err
	}

	ticker := time.NewTicker(cfg.DisplayUpdateDuration())
	defer ticker.Stop()
	log.Println("display: starting update loop")

	for {
		select {
		case <-ctx.Done():
			log.Println("display: stopping")
			return nil
		case <-ticker.C:
		}
		snap := state.Snapshot()
		if snap.Empty() {
			continue
		}
		if err := dev.Draw(dev.Bounds(), drawLines(statusLines(snap)), image.Point{}); err != nil {
			log.Printf("display: error updating display: %v", err)
		}
	}
}

// statusLines formats a snapshot as four panel lines: marker offset, marker
// angle, stage position and stimulus progress.
func statusLines(snap StateSnapshot) []string {
	lines := make([]string, 4)

	switch {
	case snap.Tracker == nil:
		lines[0] = "T: waiting..."
	case !snap.Tracker.Found:
		lines[0] = "T: no blob"
	default:
		lines[0] = fmt.Sprintf("T:%6.2f %6.2f", snap.Tracker.X, snap.Tracker.Y)
		lines[1] = fmt.Sprintf("A:%6.1f deg", snap.Tracker.FilteredAngle)
	}

	if snap.Actuator != nil {
		moving := ""
		if snap.Actuator.Moving {
			moving = "*"
		}
		lines[2] = fmt.Sprintf("S:%6.1f %6.1f%s", snap.Actuator.X, snap.Actuator.Y, moving)
	}

	if st := snap.Stimulus; st != nil {
		if st.Done {
			lines[3] = fmt.Sprintf("%d/%d done", st.Total, st.Total)
		} else {
			lines[3] = fmt.Sprintf("%d/%d %s", st.Index+1, st.Total, st.State)
		}
	}

	for i, l := range lines {
		if len(l) > maxChars {
			lines[i] = l[:maxChars]
		}
	}
	return lines
}

// drawLines renders up to four lines of text into a panel-sized 1-bit image.
func drawLines(lines []string) *image1bit.VerticalLSB {
	img := image1bit.NewVerticalLSB(image.Rect(0, 0, panelWidth, panelHeight))

	drawer := &font.Drawer{
		Dst:  img,
		Src:  &image.Uniform{image1bit.On},
		Face: basicfont.Face7x13,
	}
	for i, l := range lines {
		if l == "" {
			continue
		}
		drawer.Dot = fixed.P(0, (i+1)*lineHeight)
		drawer.DrawString(l)
	}
	return img
}
