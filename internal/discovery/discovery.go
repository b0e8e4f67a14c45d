// Package discovery advertises the HTTP control page over mDNS.
package discovery

import (
	"fmt"
	"net"
	"strconv"
	"sync"

	"github.com/enbility/zeroconf/v3"

	"github.com/sweeney/pump-controller/internal/logger"
)

const (
	// ServiceType is the DNS-SD service type of the control page.
	ServiceType = "_http._tcp"
	// Domain is the mDNS domain.
	Domain = "local."
	// DefaultInstance is the advertised instance name.
	DefaultInstance = "pump-controller"
)

// Info describes the advertised service.
type Info struct {
	Instance string
	Port     int
	TXT      []string
}

type server interface {
	Shutdown()
}

type registerFunc func(instance, service, domain string, port int, txt []string, ifaces []net.Interface) (server, error)

func zeroconfRegister(instance, service, domain string, port int, txt []string, ifaces []net.Interface) (server, error) {
	s, err := zeroconf.Register(instance, service, domain, port, txt, ifaces)
	if err != nil {
		return nil, err
	}
	return s, nil
}

// Advertiser keeps one mDNS registration alive.
type Advertiser struct {
	mu       sync.Mutex
	server   server
	register registerFunc
}

// NewAdvertiser creates an advertiser using the system's multicast interfaces.
func NewAdvertiser() *Advertiser {
	return &Advertiser{register: zeroconfRegister}
}

// Advertise starts advertising info, replacing any previous registration.
func (a *Advertiser) Advertise(info Info) error {
	if info.Instance == "" {
		info.Instance = DefaultInstance
	}
	if info.Port <= 0 || info.Port > 65535 {
		return fmt.Errorf("advertise %s: invalid port %d", info.Instance, info.Port)
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	if a.server != nil {
		a.server.Shutdown()
		a.server = nil
	}

	// nil ifaces means all multicast interfaces
	s, err := a.register(info.Instance, ServiceType, Domain, info.Port, info.TXT, nil)
	if err != nil {
		return fmt.Errorf("register %s: %w", info.Instance, err)
	}
	a.server = s

	logger.Info().
		Str("instance", info.Instance).
		Str("service", ServiceType).
		Int("port", info.Port).
		Msg("Advertising over mDNS")
	return nil
}

// Stop withdraws the advertisement. Safe to call more than once.
func (a *Advertiser) Stop() {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.server != nil {
		a.server.Shutdown()
		a.server = nil
	}
}

// PortFromAddr extracts the TCP port from a listen address like ":5000".
func PortFromAddr(addr string) (int, error) {
	_, p, err := net.SplitHostPort(addr)
	if err != nil {
		return 0, fmt.Errorf("parse listen address %q: %w", addr, err)
	}
	port, err := strconv.Atoi(p)
	if err != nil || port <= 0 || port > 65535 {
		return 0, fmt.Errorf("parse listen address %q: invalid port", addr)
	}
	return port, nil
}
