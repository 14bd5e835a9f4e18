// Package mdns provides optional mDNS/DNS-SD advertisement of the OSC
// listener.
//
// While a managed session is open the patcher can announce its listener on
// the local network, so control surfaces can find the /patcher/* methods
// without being told the random port.
//
// The advertisement includes:
//   - Service type: _5fx-patcher._udp
//   - TXT records with version, display name and client id
package mdns

import (
	"context"
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
	"sync"

	"github.com/grandcat/zeroconf"
)

// ServiceType is the DNS-SD service type of patcher listeners.
const ServiceType = "_5fx-patcher._udp"

// ProtocolVersion identifies the /patcher/* method set.
const ProtocolVersion = "1"

// Config holds configuration for mDNS advertisement.
type Config struct {
	// Port is the OSC listener port.
	Port int

	// Name is the instance name. Defaults to the system hostname.
	Name string

	// ClientID is the id the session manager assigned.
	ClientID string
}

// Advertiser manages the DNS-SD registration.
type Advertiser struct {
	config Config
	server *zeroconf.Server
	mu     sync.Mutex
}

// NewAdvertiser creates a new mDNS advertiser with the given configuration.
func NewAdvertiser(cfg Config) *Advertiser {
	return &Advertiser{
		config: cfg,
	}
}

// Start registers the service. Calling Start while running is a no-op.
func (a *Advertiser) Start() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.server != nil {
		return nil
	}

	name := a.instanceName()
	server, err := zeroconf.Register(
		name,
		ServiceType,
		"local.",
		a.config.Port,
		a.txtRecords(name),
		nil, // all interfaces
	)
	if err != nil {
		return fmt.Errorf("mdns register: %w", err)
	}

	a.server = server
	return nil
}

func (a *Advertiser) instanceName() string {
	if a.config.Name != "" {
		return a.config.Name
	}
	hostname, err := os.Hostname()
	if err != nil {
		return "5fx-patcher"
	}
	return hostname
}

// txtRecords stays well under the 255 byte per-string TXT limit for any
// reasonable display name.
func (a *Advertiser) txtRecords(name string) []string {
	records := []string{
		"version=" + ProtocolVersion,
		"name=" + name,
	}
	if a.config.ClientID != "" {
		records = append(records, "client_id="+a.config.ClientID)
	}
	return records
}

// Stop unregisters the service. It is safe to call Stop multiple times or
// on an advertiser that was never started.
func (a *Advertiser) Stop() {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.server != nil {
		a.server.Shutdown()
		a.server = nil
	}
}

// IsRunning returns true if the advertiser is currently running.
func (a *Advertiser) IsRunning() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.server != nil
}

// DiscoveredPatcher is a patcher listener found on the network.
type DiscoveredPatcher struct {
	Name     string
	Host     string
	Port     int
	ClientID string
	Version  string
}

// Addr returns host:port.
func (d DiscoveredPatcher) Addr() string {
	return net.JoinHostPort(d.Host, strconv.Itoa(d.Port))
}

// Discover browses for patcher listeners until ctx is done.
func Discover(ctx context.Context) ([]DiscoveredPatcher, error) {
	resolver, err := zeroconf.NewResolver(nil)
	if err != nil {
		return nil, fmt.Errorf("mdns resolver: %w", err)
	}

	var (
		found []DiscoveredPatcher
		mu    sync.Mutex
		wg    sync.WaitGroup
	)

	entries := make(chan *zeroconf.ServiceEntry)

	wg.Add(1)
	go func() {
		defer wg.Done()
		for entry := range entries {
			p := DiscoveredPatcher{
				Name: entry.Instance,
				Port: entry.Port,
			}
			if len(entry.AddrIPv4) > 0 {
				p.Host = entry.AddrIPv4[0].String()
			} else if len(entry.AddrIPv6) > 0 {
				p.Host = entry.AddrIPv6[0].String()
			}
			applyTXT(&p, entry.Text)

			mu.Lock()
			found = append(found, p)
			mu.Unlock()
		}
	}()

	if err := resolver.Browse(ctx, ServiceType, "local.", entries); err != nil {
		return nil, fmt.Errorf("mdns browse: %w", err)
	}

	<-ctx.Done()

	// zeroconf closes entries once ctx is done.
	wg.Wait()

	return found, nil
}

func applyTXT(p *DiscoveredPatcher, records []string) {
	for _, txt := range records {
		key, value, ok := strings.Cut(txt, "=")
		if !ok {
			continue
		}
		switch key {
		case "version":
			p.Version = value
		case "name":
			p.Name = value
		case "client_id":
			p.ClientID = value
		}
	}
}
