// Package discovery publishes and browses DualLink receiver records on the
// local network over multicast DNS service discovery (§4.7).
package discovery

import (
	"context"
	"fmt"
	"net"
	"strconv"

	"github.com/brutella/dnssd"

	"github.com/duallink/duallink/internal/logging"
)

var log = logging.L("discovery")

// ServiceType is the DNS-SD service type every DualLink receiver publishes
// under.
const ServiceType = "_duallink._tcp"

// ProtocolVersion is published in the "version" TXT key.
const ProtocolVersion = 1

// PrimaryLANIP opens an unconnected UDP socket, "connects" it to a routable
// public address without sending any packet, and reads the local address
// the kernel selected. This is the standard trick for discovering which
// local interface/IP carries the default route, per §4.7.
func PrimaryLANIP() (net.IP, error) {
	conn, err := net.Dial("udp4", "203.0.113.1:80")
	if err != nil {
		return nil, fmt.Errorf("discovery: determine primary LAN IP: %w", err)
	}
	defer conn.Close()

	addr, ok := conn.LocalAddr().(*net.UDPAddr)
	if !ok {
		return nil, fmt.Errorf("discovery: unexpected local address type %T", conn.LocalAddr())
	}
	return addr.IP, nil
}

// Record is the information a receiver publishes and a sender discovers.
type Record struct {
	DeviceName          string
	LANIP               net.IP
	SignalingPort       int
	DisplayCount        int
	FingerprintShortHex string
}

// TXT renders the record's TXT key/value pairs per §4.7.
func (r Record) TXT() map[string]string {
	return map[string]string{
		"version":  strconv.Itoa(ProtocolVersion),
		"displays": strconv.Itoa(r.DisplayCount),
		"port":     strconv.Itoa(r.SignalingPort),
		"host":     r.LANIP.String(),
		"fp":       r.FingerprintShortHex,
	}
}

// Advertiser publishes one receiver's Record until Close is called.
type Advertiser struct {
	responder *dnssd.Responder
	cancel    context.CancelFunc
	done      chan struct{}
}

// Advertise starts publishing rec under ServiceType and returns once the
// responder is running. Call Close to withdraw the record.
func Advertise(rec Record) (*Advertiser, error) {
	cfg := dnssd.Config{
		Name: rec.DeviceName,
		Type: ServiceType,
		Port: rec.SignalingPort,
		Text: rec.TXT(),
	}

	service, err := dnssd.NewService(cfg)
	if err != nil {
		return nil, fmt.Errorf("discovery: build service record: %w", err)
	}

	responder, err := dnssd.NewResponder()
	if err != nil {
		return nil, fmt.Errorf("discovery: create responder: %w", err)
	}

	if _, err := responder.Add(service); err != nil {
		return nil, fmt.Errorf("discovery: add service: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		if err := responder.Respond(ctx); err != nil && ctx.Err() == nil {
			log.Warn("responder stopped", "error", err)
		}
	}()

	log.Info("advertising", "service", rec.DeviceName, "displays", rec.DisplayCount, "port", rec.SignalingPort)
	return &Advertiser{responder: responder, cancel: cancel, done: done}, nil
}

// Close withdraws the published record and stops the responder.
func (a *Advertiser) Close() {
	a.cancel()
	<-a.done
}

// Peer is a discovered receiver record, surfaced to the sender-side browser.
type Peer struct {
	DeviceName          string
	LANIP               string
	SignalingPort       int
	DisplayCount        int
	FingerprintShortHex string
}

// Browse watches for DualLink receiver records on the local network,
// invoking onAdd/onRemove as records appear and disappear, until ctx is
// cancelled.
func Browse(ctx context.Context, onAdd, onRemove func(Peer)) error {
	serviceFQDN := ServiceType + ".local."

	add := func(e dnssd.BrowseEntry) {
		p, ok := peerFromEntry(e)
		if !ok {
			return
		}
		onAdd(p)
	}
	remove := func(e dnssd.BrowseEntry) {
		p, ok := peerFromEntry(e)
		if !ok {
			return
		}
		onRemove(p)
	}

	if err := dnssd.LookupType(ctx, serviceFQDN, add, remove); err != nil {
		return fmt.Errorf("discovery: browse %s: %w", serviceFQDN, err)
	}
	return nil
}

func peerFromEntry(e dnssd.BrowseEntry) (Peer, bool) {
	port := 0
	if v, ok := e.Text["port"]; ok {
		if n, err := strconv.Atoi(v); err == nil {
			port = n
		}
	}
	displays := 1
	if v, ok := e.Text["displays"]; ok {
		if n, err := strconv.Atoi(v); err == nil {
			displays = n
		}
	}

	host := e.Text["host"]
	if host == "" && len(e.IPs) > 0 {
		host = e.IPs[0].String()
	}
	if host == "" || port == 0 {
		return Peer{}, false
	}

	return Peer{
		DeviceName:          e.Name,
		LANIP:               host,
		SignalingPort:       port,
		DisplayCount:        displays,
		FingerprintShortHex: e.Text["fp"],
	}, true
}
