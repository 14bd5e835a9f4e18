// Package nsm holds the session manager protocol vocabulary: message
// addresses, the announce payload, the session record and the one-shot open
// signal that ends the startup handshake.
package nsm

import (
	"context"
	"fmt"
	"net"
	"net/url"
	"sync"

	"github.com/fivefx/patcher/internal/errors"
)

// Message addresses used by the client.
const (
	PathAnnounce      = "/nsm/server/announce"
	PathOpen          = "/nsm/client/open"
	PathSave          = "/nsm/client/save"
	PathSessionLoaded = "/nsm/client/session_is_loaded"
	PathReply         = "/reply"
	PathError         = "/error"
)

// ReplyOK is the status string of a successful /reply.
const ReplyOK = "OK"

// Protocol version sent with the announce.
const (
	ProtocolMajor = 1
	ProtocolMinor = 1
)

// Capabilities is announced to the manager. The client supports no optional
// capabilities.
const Capabilities = "::"

// ErrGeneral is the generic failure code sent in /error replies.
const ErrGeneral int32 = -1

// Session is the identity the manager assigns at open time. It is set once
// and never modified afterwards.
type Session struct {
	InstancePath string
	DisplayName  string
	ClientID     string
}

// Announcement is the payload of /nsm/server/announce.
type Announcement struct {
	ApplicationName string
	Capabilities    string
	Executable      string
	Major           int32
	Minor           int32
	PID             int32
}

// NewAnnouncement builds the announce payload for this process.
func NewAnnouncement(appName, executable string, pid int) Announcement {
	return Announcement{
		ApplicationName: appName,
		Capabilities:    Capabilities,
		Executable:      executable,
		Major:           ProtocolMajor,
		Minor:           ProtocolMinor,
		PID:             int32(pid),
	}
}

// Args returns the announce arguments in wire order (sssiii).
func (a Announcement) Args() []interface{} {
	return []interface{}{a.ApplicationName, a.Capabilities, a.Executable, a.Major, a.Minor, a.PID}
}

// ParseURL resolves an NSM_URL of the form osc.udp://host:port/.
func ParseURL(raw string) (*net.UDPAddr, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return nil, errors.URLInvalid(raw, err)
	}
	if u.Scheme != "osc.udp" {
		return nil, errors.URLInvalid(raw, fmt.Errorf("unsupported scheme %q", u.Scheme))
	}
	if u.Hostname() == "" || u.Port() == "" {
		return nil, errors.URLInvalid(raw, fmt.Errorf("host and port are required"))
	}
	addr, err := net.ResolveUDPAddr("udp", net.JoinHostPort(u.Hostname(), u.Port()))
	if err != nil {
		return nil, errors.URLInvalid(raw, err)
	}
	return addr, nil
}

// OpenSignal is a single-use completion carrying the Session delivered by the
// manager's open callback. Only the first Deliver takes effect; the signal
// is never reset.
type OpenSignal struct {
	once    sync.Once
	done    chan struct{}
	session Session
}

// NewOpenSignal returns an undelivered signal.
func NewOpenSignal() *OpenSignal {
	return &OpenSignal{done: make(chan struct{})}
}

// Deliver completes the signal with s. It reports false if the signal was
// already completed, in which case s is discarded.
func (o *OpenSignal) Deliver(s Session) bool {
	delivered := false
	o.once.Do(func() {
		o.session = s
		close(o.done)
		delivered = true
	})
	return delivered
}

// Delivered reports whether the signal has completed.
func (o *OpenSignal) Delivered() bool {
	select {
	case <-o.done:
		return true
	default:
		return false
	}
}

// Done is closed once the signal completes.
func (o *OpenSignal) Done() <-chan struct{} {
	return o.done
}

// Session returns the delivered session and whether it has been delivered.
func (o *OpenSignal) Session() (Session, bool) {
	if !o.Delivered() {
		return Session{}, false
	}
	return o.session, true
}

// Wait blocks until the session is delivered or ctx is done.
func (o *OpenSignal) Wait(ctx context.Context) (Session, error) {
	select {
	case <-o.done:
		return o.session, nil
	case <-ctx.Done():
		return Session{}, ctx.Err()
	}
}
