// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package app

import (
	"fmt"
	"io"
	"sync"

	"github.com/relabs-tech/location_bridge/internal/bridge"
	"github.com/relabs-tech/location_bridge/internal/gps"
	"github.com/relabs-tech/location_bridge/internal/publish"
)

func formatFix(f gps.Fix, geohash string) string {
	line := fmt.Sprintf(
		"[GPS ]  lat=%.6f lon=%.6f acc=%.1fm t=%.3fs",
		f.Latitude, f.Longitude, f.Accuracy, f.Timestamp,
	)
	if geohash != "" {
		line += " geohash=" + geohash
	}
	return line
}

func formatStatus(st publish.Status) string {
	line := fmt.Sprintf("[STAT]  %s handle=%d", st.Event, st.Handle)
	if st.Time != "" {
		line += " at " + st.Time
	}
	return line
}

// console prints every bridge event as one line on w.
type console struct {
	mu sync.Mutex
	w  io.Writer
}

func newConsole(w io.Writer) *console {
	return &console{w: w}
}

func (c *console) println(line string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	fmt.Fprintln(c.w, line)
}

func (c *console) OnLocationUpdate(_ bridge.Handle, latitude, longitude, accuracy, timestampSeconds float64) {
	c.println(formatFix(gps.Fix{
		Latitude:  latitude,
		Longitude: longitude,
		Accuracy:  accuracy,
		Timestamp: timestampSeconds,
	}, ""))
}

func (c *console) OnPermissionDenied(h bridge.Handle) {
	c.println(formatStatus(publish.Status{Event: publish.EventPermissionDenied, Handle: uint64(h)}))
}

func (c *console) OnPermissionGranted(h bridge.Handle) {
	c.println(formatStatus(publish.Status{Event: publish.EventPermissionGrant, Handle: uint64(h)}))
}

func (c *console) OnProviderEnabled(h bridge.Handle) {
	c.println(formatStatus(publish.Status{Event: publish.EventProviderEnabled, Handle: uint64(h)}))
}

func (c *console) OnProviderDisabled(h bridge.Handle) {
	c.println(formatStatus(publish.Status{Event: publish.EventProviderDisabled, Handle: uint64(h)}))
}
