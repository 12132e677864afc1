package nmeahost

import (
	"fmt"

	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/host/v3"
)

// OpenEnablePin resolves the GPIO line that powers the receiver, e.g. "GPIO17".
func OpenEnablePin(name string) (PowerPin, error) {
	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("gps enable pin: periph host init: %w", err)
	}
	pin := gpioreg.ByName(name)
	if pin == nil {
		return nil, fmt.Errorf("gps enable pin %q not found", name)
	}
	// keep the receiver off until a listener registers
	if err := pin.Out(gpio.Low); err != nil {
		return nil, fmt.Errorf("gps enable pin %q: %w", name, err)
	}
	return pin, nil
}
