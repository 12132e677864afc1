package nmeahost

import (
	"strings"

	nmea "github.com/adrianmo/go-nmea"

	"github.com/relabs-tech/location_bridge/internal/bridge"
	"github.com/relabs-tech/location_bridge/internal/gps"
)

// DefaultUERE is the user equivalent range error, in meters, used to turn HDOP
// into a horizontal accuracy estimate.
const DefaultUERE = 5.0

// Decoder turns a stream of NMEA sentences into listener callbacks.
//
// RMC sentences drive both fixes and provider availability: validity "A"
// yields a location, and every A/V transition yields one provider edge. GGA
// sentences only refresh the HDOP used for the accuracy estimate.
type Decoder struct {
	uere     float64
	hdop     float64
	haveHDOP bool
	state    gps.ProviderState // zero until the first RMC
}

// NewDecoder returns a Decoder scaling HDOP by uere meters.
func NewDecoder(uere float64) *Decoder {
	if uere <= 0 {
		uere = DefaultUERE
	}
	return &Decoder{uere: uere}
}

// Feed decodes one line. Lines that are not NMEA or fail to parse are ignored.
func (d *Decoder) Feed(line string, elapsedNanos int64, l bridge.Listener) {
	line = strings.TrimSpace(line)
	if line == "" || !strings.HasPrefix(line, "$") {
		return
	}
	sentence, err := nmea.Parse(line)
	if err != nil {
		// noisy receivers emit partial sentences
		return
	}

	switch sentence.DataType() {
	case nmea.TypeGGA:
		m := sentence.(nmea.GGA)
		d.haveHDOP = m.FixQuality != nmea.Invalid && m.HDOP > 0
		d.hdop = m.HDOP

	case nmea.TypeRMC:
		m := sentence.(nmea.RMC)
		if m.Validity != nmea.ValidRMC {
			d.transition(gps.ProviderDisabled, l)
			return
		}
		d.transition(gps.ProviderEnabled, l)
		l.OnLocationChanged(bridge.Location{
			Latitude:             m.Latitude,
			Longitude:            m.Longitude,
			Accuracy:             d.accuracy(),
			ElapsedRealtimeNanos: elapsedNanos,
		})

	default:
		// GSA, GSV, VTG, ... carry nothing the bridge forwards
	}
}

// Lost reports that the sentence stream ended. A receiver that was delivering
// fixes becomes disabled.
func (d *Decoder) Lost(l bridge.Listener) {
	if d.state == gps.ProviderEnabled {
		l.OnProviderDisabled(gps.ProviderGPS)
	}
	d.state = 0
	d.haveHDOP = false
}

func (d *Decoder) transition(next gps.ProviderState, l bridge.Listener) {
	if d.state == next {
		return
	}
	d.state = next
	if next == gps.ProviderEnabled {
		l.OnProviderEnabled(gps.ProviderGPS)
	} else {
		l.OnProviderDisabled(gps.ProviderGPS)
	}
}

func (d *Decoder) accuracy() float64 {
	if !d.haveHDOP {
		return 0
	}
	return d.hdop * d.uere
}
