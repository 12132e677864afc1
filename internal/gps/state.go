package gps

// ProviderState is the availability of the GPS-class provider.
type ProviderState int

const (
	ProviderEnabled ProviderState = iota + 1
	ProviderDisabled
)

func (s ProviderState) String() string {
	switch s {
	case ProviderEnabled:
		return "enabled"
	case ProviderDisabled:
		return "disabled"
	default:
		return "unknown"
	}
}

// PermissionOutcome is the result of asking the host for location access.
type PermissionOutcome int

const (
	PermissionGranted PermissionOutcome = iota + 1
	PermissionDenied
)

func (p PermissionOutcome) String() string {
	switch p {
	case PermissionGranted:
		return "granted"
	case PermissionDenied:
		return "denied"
	default:
		return "unknown"
	}
}
