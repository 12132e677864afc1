// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

// Package nmeahost is a host location service backed by a serial NMEA GPS
// receiver.
package nmeahost

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	serial "github.com/jacobsa/go-serial/serial"
	"github.com/rs/zerolog"
	"periph.io/x/conn/v3/gpio"

	"github.com/relabs-tech/location_bridge/internal/bridge"
	"github.com/relabs-tech/location_bridge/internal/gps"
	"github.com/relabs-tech/location_bridge/internal/logging"
)

var (
	// ErrUnknownProvider is returned for any provider other than gps.ProviderGPS.
	ErrUnknownProvider = errors.New("unknown location provider")
	// ErrBusy is returned when a different listener is already registered.
	ErrBusy = errors.New("gps receiver already has a listener")
)

// PowerPin is the output line that powers the receiver. gpio.PinOut satisfies it.
type PowerPin interface {
	Out(l gpio.Level) error
}

// PortOpener opens the receiver's serial port.
type PortOpener func(serial.OpenOptions) (io.ReadWriteCloser, error)

// Options configures a Service.
type Options struct {
	PortName string
	BaudRate uint
	UERE     float64 // meters per unit of HDOP, DefaultUERE when zero

	// EnablePin, when set, is driven high while a listener is registered.
	EnablePin PowerPin

	// Open defaults to serial.Open.
	Open PortOpener
}

// Service implements bridge.LocationService for a single NMEA receiver.
//
// Registration opens the port and starts two goroutines owned by the
// service: a reader and a delivery loop. All listener callbacks happen on the
// delivery loop, in the order sentences were read.
type Service struct {
	opts  Options
	log   zerolog.Logger
	start time.Time

	mu       sync.Mutex
	listener bridge.Listener
	port     io.ReadWriteCloser
	flush    chan int
	quit     chan struct{}
	done     chan struct{}
}

// New returns a Service. The port is not opened until a listener registers.
func New(opts Options) *Service {
	if opts.Open == nil {
		opts.Open = serial.Open
	}
	done := make(chan struct{})
	close(done)
	return &Service{
		opts:  opts,
		log:   logging.WithComponent("nmeahost"),
		start: time.Now(),
		done:  done,
	}
}

// RequestLocationUpdates opens the receiver and starts delivering to l. The
// receiver has no rate or distance filtering, so minInterval and minDistance
// are only logged. A permission error opening the port is reported as
// bridge.ErrAuthorizationDenied.
func (s *Service) RequestLocationUpdates(provider string, minInterval time.Duration, minDistance float64, l bridge.Listener) error {
	if provider != gps.ProviderGPS {
		return fmt.Errorf("provider %q: %w", provider, ErrUnknownProvider)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.listener == l {
		return nil
	}
	if s.listener != nil {
		return ErrBusy
	}

	serialOpts := serial.OpenOptions{
		PortName:              s.opts.PortName,
		BaudRate:              s.opts.BaudRate,
		DataBits:              8,
		StopBits:              1,
		MinimumReadSize:       1,
		ParityMode:            serial.PARITY_NONE,
		InterCharacterTimeout: 0,
	}
	port, err := s.opts.Open(serialOpts)
	if err != nil {
		if errors.Is(err, os.ErrPermission) {
			return fmt.Errorf("open gps port %s: %w: %w", s.opts.PortName, bridge.ErrAuthorizationDenied, err)
		}
		return fmt.Errorf("open gps port %s: %w", s.opts.PortName, err)
	}
	s.log.Info().
		Str("port", s.opts.PortName).
		Uint("baud", s.opts.BaudRate).
		Dur("min_interval", minInterval).
		Float64("min_distance", minDistance).
		Msg("gps serial port opened")

	if s.opts.EnablePin != nil {
		if err := s.opts.EnablePin.Out(gpio.High); err != nil {
			port.Close()
			return fmt.Errorf("gps enable pin: %w", err)
		}
	}

	flush := make(chan int, 1)
	quit := make(chan struct{})
	done := make(chan struct{})
	s.listener = l
	s.port = port
	s.flush = flush
	s.quit = quit
	s.done = done

	lines := make(chan string, 64)
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		s.read(port, lines, quit)
	}()
	go func() {
		defer wg.Done()
		s.deliver(l, lines, flush, quit)
	}()
	go func() {
		wg.Wait()
		close(done)
	}()
	return nil
}

// RemoveUpdates closes the port and stops delivery to l. It does not wait for
// the delivery loop, so it may be called from inside a callback; use Done to
// wait.
func (s *Service) RemoveUpdates(l bridge.Listener) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.listener == nil || s.listener != l {
		return
	}
	close(s.quit)
	if err := s.port.Close(); err != nil {
		s.log.Warn().Err(err).Msg("gps serial port close")
	}
	if s.opts.EnablePin != nil {
		if err := s.opts.EnablePin.Out(gpio.Low); err != nil {
			s.log.Warn().Err(err).Msg("gps enable pin low")
		}
	}
	s.listener = nil
	s.port = nil
	s.log.Info().Msg("gps updates removed")
}

// Flush asks the delivery loop to report OnBatchFlushed(requestCode) after
// the lines already read. It returns false when no listener is registered or
// a flush is already pending.
func (s *Service) Flush(requestCode int) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return false
	}
	select {
	case s.flush <- requestCode:
		return true
	default:
		return false
	}
}

// Done is closed once the goroutines of the latest registration have exited.
func (s *Service) Done() <-chan struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.done
}

func (s *Service) elapsed() int64 {
	return time.Since(s.start).Nanoseconds()
}

func (s *Service) read(port io.Reader, lines chan<- string, quit <-chan struct{}) {
	defer close(lines)
	reader := bufio.NewReader(port)
	for {
		line, err := reader.ReadString('\n')
		if line != "" {
			select {
			case lines <- line:
			case <-quit:
				return
			}
		}
		if err != nil {
			select {
			case <-quit:
			default:
				s.log.Warn().Err(err).Msg("gps read error")
			}
			return
		}
	}
}

func (s *Service) deliver(l bridge.Listener, lines <-chan string, flush <-chan int, quit <-chan struct{}) {
	dec := NewDecoder(s.opts.UERE)
	for {
		select {
		case <-quit:
			return
		default:
		}

		select {
		case <-quit:
			return
		case line, ok := <-lines:
			if !ok {
				dec.Lost(l)
				return
			}
			dec.Feed(line, s.elapsed(), l)
		case code := <-flush:
			if !s.drain(dec, l, lines, quit) {
				return
			}
			l.OnBatchFlushed(code)
		}
	}
}

// drain feeds lines that were already read. It reports false if the stream
// ended or the registration was removed.
func (s *Service) drain(dec *Decoder, l bridge.Listener, lines <-chan string, quit <-chan struct{}) bool {
	for {
		select {
		case <-quit:
			return false
		case line, ok := <-lines:
			if !ok {
				dec.Lost(l)
				return false
			}
			dec.Feed(line, s.elapsed(), l)
		default:
			return true
		}
	}
}
