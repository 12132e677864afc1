// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

// Package display shows the latest bridge state on an SSD1306 OLED.
package display

import (
	"fmt"
	"image"
	"sync"

	"github.com/rs/zerolog"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
	"periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/i2c/i2creg"
	"periph.io/x/devices/v3/ssd1306"
	"periph.io/x/devices/v3/ssd1306/image1bit"
	"periph.io/x/host/v3"

	"github.com/relabs-tech/location_bridge/internal/bridge"
	"github.com/relabs-tech/location_bridge/internal/gps"
	"github.com/relabs-tech/location_bridge/internal/logging"
)

// Panel is the drawing surface; *ssd1306.Dev satisfies it.
type Panel interface {
	Bounds() image.Rectangle
	Draw(r image.Rectangle, src image.Image, sp image.Point) error
}

// State is what the screen shows.
type State struct {
	Provider   gps.ProviderState
	Permission gps.PermissionOutcome
	Fix        gps.Fix
	HaveFix    bool
}

// OLED implements bridge.Native by redrawing the panel on every event.
type OLED struct {
	panel Panel
	log   zerolog.Logger

	mu    sync.Mutex
	state State
}

// New returns a consumer drawing on panel.
func New(panel Panel) *OLED {
	return &OLED{panel: panel, log: logging.WithComponent("display")}
}

// Open initialises periph, opens the I2C bus (empty name picks the first one)
// and the SSD1306 on it. The returned closer releases the bus.
func Open(busName string) (*ssd1306.Dev, i2c.BusCloser, error) {
	if _, err := host.Init(); err != nil {
		return nil, nil, fmt.Errorf("failed to initialize periph: %w", err)
	}
	bus, err := i2creg.Open(busName)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open I2C bus: %w", err)
	}
	dev, err := ssd1306.NewI2C(bus, &ssd1306.DefaultOpts)
	if err != nil {
		bus.Close()
		return nil, nil, fmt.Errorf("failed to initialize display: %w", err)
	}
	return dev, bus, nil
}

// Snapshot returns the current state.
func (o *OLED) Snapshot() State {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state
}

func (o *OLED) OnLocationUpdate(_ bridge.Handle, latitude, longitude, accuracy, timestampSeconds float64) {
	o.update(func(s *State) {
		s.Fix = gps.Fix{Latitude: latitude, Longitude: longitude, Accuracy: accuracy, Timestamp: timestampSeconds}
		s.HaveFix = true
	})
}

func (o *OLED) OnPermissionDenied(bridge.Handle) {
	o.update(func(s *State) { s.Permission = gps.PermissionDenied })
}

func (o *OLED) OnPermissionGranted(bridge.Handle) {
	o.update(func(s *State) { s.Permission = gps.PermissionGranted })
}

func (o *OLED) OnProviderEnabled(bridge.Handle) {
	o.update(func(s *State) { s.Provider = gps.ProviderEnabled })
}

func (o *OLED) OnProviderDisabled(bridge.Handle) {
	o.update(func(s *State) { s.Provider = gps.ProviderDisabled })
}

func (o *OLED) update(apply func(*State)) {
	o.mu.Lock()
	apply(&o.state)
	img := Render(o.state)
	err := o.panel.Draw(o.panel.Bounds(), img, image.Point{})
	o.mu.Unlock()
	if err != nil {
		o.log.Warn().Err(err).Msg("display draw")
	}
}

// Render draws s into a 128x64 monochrome frame.
func Render(s State) *image1bit.VerticalLSB {
	img := image1bit.NewVerticalLSB(image.Rect(0, 0, 128, 64))

	drawer := &font.Drawer{
		Dst:  img,
		Src:  &image.Uniform{image1bit.On},
		Face: basicfont.Face7x13,
	}
	line := func(y int, text string) {
		drawer.Dot = fixed.P(0, y)
		drawer.DrawString(text)
	}

	line(13, "GPS "+providerLabel(s.Provider))
	switch {
	case s.Permission == gps.PermissionDenied:
		line(26, "NO PERMISSION")
	case !s.HaveFix:
		line(26, "Waiting...")
	default:
		line(26, fmt.Sprintf("LAT %10.6f", s.Fix.Latitude))
		line(39, fmt.Sprintf("LON %10.6f", s.Fix.Longitude))
		line(52, fmt.Sprintf("ACC %5.1fm T%7.1f", s.Fix.Accuracy, s.Fix.Timestamp))
	}
	return img
}

func providerLabel(p gps.ProviderState) string {
	switch p {
	case gps.ProviderEnabled:
		return "ON"
	case gps.ProviderDisabled:
		return "OFF"
	default:
		return "--"
	}
}
