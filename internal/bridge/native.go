package bridge

// Handle is an opaque token identifying a bridge instance on the native side.
// The zero Handle is never issued.
type Handle uint64

// Native is the set of entry points exposed by the native consumer. Calls may
// arrive on any goroutine; no return value is expected.
type Native interface {
	OnLocationUpdate(h Handle, latitude, longitude, accuracy, timestampSeconds float64)
	OnPermissionDenied(h Handle)
	OnPermissionGranted(h Handle)
	OnProviderEnabled(h Handle)  // GPS-class provider only
	OnProviderDisabled(h Handle) // GPS-class provider only
}

// Fanout returns a Native that forwards every call to each consumer in order.
func Fanout(consumers ...Native) Native {
	return fanout(consumers)
}

type fanout []Native

func (f fanout) OnLocationUpdate(h Handle, lat, lon, acc, ts float64) {
	for _, n := range f {
		n.OnLocationUpdate(h, lat, lon, acc, ts)
	}
}

func (f fanout) OnPermissionDenied(h Handle) {
	for _, n := range f {
		n.OnPermissionDenied(h)
	}
}

func (f fanout) OnPermissionGranted(h Handle) {
	for _, n := range f {
		n.OnPermissionGranted(h)
	}
}

func (f fanout) OnProviderEnabled(h Handle) {
	for _, n := range f {
		n.OnProviderEnabled(h)
	}
}

func (f fanout) OnProviderDisabled(h Handle) {
	for _, n := range f {
		n.OnProviderDisabled(h)
	}
}
