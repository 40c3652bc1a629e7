// Package zeroconf registers the client's control API as an mDNS/DNS-SD
// service so an options overlay on another machine on the LAN can find it.
package zeroconf

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/grandcat/zeroconf"
)

// ServiceType is the DNS-SD type the control API is advertised under.
const ServiceType = "_dmp-options._tcp"

// Service manages mDNS service registration.
type Service struct {
	name string // instance name, e.g. the hostname
	port int
	txt  []string
}

// New creates a zeroconf Service that will advertise port. txt holds
// key=value TXT records such as the version.
func New(name string, port int, txt ...string) *Service {
	return &Service{
		name: name,
		port: port,
		txt:  txt,
	}
}

// TXT returns the TXT records that will be advertised.
func (s *Service) TXT() []string {
	return append([]string(nil), s.txt...)
}

// Start registers the mDNS service and blocks until ctx is cancelled, at which
// point it shuts down the server cleanly.
func (s *Service) Start(ctx context.Context) error {
	if s.port <= 0 || s.port > 65535 {
		return fmt.Errorf("zeroconf: invalid port %d", s.port)
	}

	server, err := zeroconf.Register(
		s.name,      // instance name
		ServiceType, // service type
		"local.",    // domain
		s.port,      // port
		s.txt,       // TXT records
		nil,         // ifaces: nil means all interfaces
	)
	if err != nil {
		return fmt.Errorf("zeroconf register: %w", err)
	}
	slog.Info("zeroconf: registered mDNS service",
		"name", s.name,
		"type", ServiceType,
		"port", s.port,
		"txt", s.txt,
	)

	<-ctx.Done()

	server.Shutdown()
	slog.Info("zeroconf: mDNS service unregistered")
	return nil
}
