// Package cli holds argument handling shared by the slot client commands.
package cli

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"strconv"
	"time"

	"github.com/msgslot/msgslot-go/pkg/client"
	"github.com/msgslot/msgslot-go/pkg/discovery"
	"github.com/msgslot/msgslot-go/pkg/slot"
	"github.com/msgslot/msgslot-go/pkg/transport"
)

// DiscoverAddr is the address argument that selects mDNS discovery.
const DiscoverAddr = "mdns"

// ErrUsage reports wrong command-line arguments.
var ErrUsage = errors.New("usage")

// ConnFlags are the connection flags common to all client commands.
type ConnFlags struct {
	CAFile     string
	ServerName string
	Insecure   bool
	TLS        bool
	Timeout    time.Duration
}

// Register adds the connection flags to fs.
func (f *ConnFlags) Register(fs *flag.FlagSet) {
	fs.BoolVar(&f.TLS, "tls", false, "Connect with TLS 1.3")
	fs.StringVar(&f.CAFile, "ca", "", "PEM bundle of trusted roots (implies -tls)")
	fs.StringVar(&f.ServerName, "server-name", "", "Server name to verify")
	fs.BoolVar(&f.Insecure, "insecure", false, "Skip server certificate verification (implies -tls)")
	fs.DurationVar(&f.Timeout, "timeout", 10*time.Second, "Connect and request timeout")
}

// Options converts the flags into client options.
func (f *ConnFlags) Options() (client.Options, error) {
	opts := client.Options{
		RequestTimeout: f.Timeout,
		ConnectTimeout: f.Timeout,
	}
	tlsFiles := &transport.TLSConfig{
		CAFile:             f.CAFile,
		ServerName:         f.ServerName,
		InsecureSkipVerify: f.Insecure,
	}
	if f.TLS || tlsFiles.Enabled() {
		tlsConfig, err := transport.LoadClientTLSConfig(tlsFiles)
		if err != nil {
			return opts, err
		}
		opts.TLS = tlsConfig
	}
	return opts, nil
}

// Dial connects to addr, or to the first daemon found over mDNS when
// addr is DiscoverAddr.
func (f *ConnFlags) Dial(ctx context.Context, addr string) (*client.Conn, error) {
	opts, err := f.Options()
	if err != nil {
		return nil, err
	}
	return f.DialWith(ctx, addr, opts)
}

// DialWith is Dial with caller-built options.
func (f *ConnFlags) DialWith(ctx context.Context, addr string, opts client.Options) (*client.Conn, error) {
	if addr == DiscoverAddr {
		browserConfig := discovery.DefaultBrowserConfig()
		if f.Timeout > 0 {
			browserConfig.BrowseTimeout = f.Timeout
		}
		return client.DialDiscovered(ctx, discovery.NewMDNSBrowser(browserConfig), opts)
	}
	return client.Dial(ctx, addr, opts)
}

// ParseMinor parses a device instance number.
func ParseMinor(s string) (int, error) {
	minor, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("%w: minor %q is not a number", ErrUsage, s)
	}
	if minor < 0 || minor >= slot.MaxMinors {
		return 0, fmt.Errorf("%w: minor %d", slot.ErrNoDevice, minor)
	}
	return minor, nil
}

// ParseChannel parses a channel id. Zero is rejected by the daemon, not here.
func ParseChannel(s string) (uint32, error) {
	ch, err := strconv.ParseUint(s, 10, 32)
	if err != nil {
		return 0, fmt.Errorf("%w: channel %q is not an unsigned 32-bit number", ErrUsage, s)
	}
	return uint32(ch), nil
}

// OpenChannel opens minor on conn and selects channel.
func OpenChannel(ctx context.Context, conn *client.Conn, minor int, channel uint32) (*client.File, error) {
	f, err := conn.Open(ctx, minor)
	if err != nil {
		return nil, err
	}
	if err := f.Select(ctx, channel); err != nil {
		_ = f.Close(ctx)
		return nil, err
	}
	return f, nil
}
