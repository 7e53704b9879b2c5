// Package resolve turns a user-supplied "host:port" target into a concrete
// address for the transmitter, issuing the DNS query itself when a specific
// resolver is pinned and using the OS resolver otherwise.
package resolve

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"

	"github.com/miekg/dns"
)

// ErrResolveFail is returned when the host portion of a target cannot be
// resolved to an address, whether via a pinned resolver or the system
// default.
var ErrResolveFail = errors.New("resolve: host lookup failed")

// Resolver resolves "host:port" targets, optionally via a pinned DNS server.
type Resolver struct {
	// Server is an optional "ip:port" of a DNS resolver to query directly.
	// When empty, Resolve falls back to net.DefaultResolver.
	Server string
	Client *dns.Client
}

// NewResolver builds a Resolver. server may be empty to use the system
// default resolver.
func NewResolver(server string) *Resolver {
	return &Resolver{Server: server, Client: new(dns.Client)}
}

// Resolve returns the first usable *net.UDPAddr for target ("host:port").
// If host is already a literal IP, no query is issued.
func (r *Resolver) Resolve(ctx context.Context, target string) (*net.UDPAddr, error) {
	host, portStr, err := net.SplitHostPort(target)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrResolveFail, err)
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid port %q", ErrResolveFail, portStr)
	}

	if ip := net.ParseIP(host); ip != nil {
		return &net.UDPAddr{IP: ip, Port: port}, nil
	}

	var ip net.IP
	if r.Server != "" {
		ip, err = r.queryDNS(host)
	} else {
		ip, err = r.querySystem(ctx, host)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrResolveFail, err)
	}

	return &net.UDPAddr{IP: ip, Port: port}, nil
}

func (r *Resolver) querySystem(ctx context.Context, host string) (net.IP, error) {
	addrs, err := net.DefaultResolver.LookupIPAddr(ctx, host)
	if err != nil {
		return nil, err
	}
	if len(addrs) == 0 {
		return nil, fmt.Errorf("no addresses for %q", host)
	}
	return addrs[0].IP, nil
}

func (r *Resolver) queryDNS(host string) (net.IP, error) {
	msg := new(dns.Msg)
	msg.SetQuestion(dns.Fqdn(host), dns.TypeA)

	reply, _, err := r.Client.Exchange(msg, r.Server)
	if err != nil {
		return nil, err
	}
	if reply.Rcode != dns.RcodeSuccess {
		return nil, fmt.Errorf("resolver %s returned rcode %d for %q", r.Server, reply.Rcode, host)
	}
	for _, ans := range reply.Answer {
		if a, ok := ans.(*dns.A); ok {
			return a.A, nil
		}
	}
	return nil, fmt.Errorf("no A record for %q", host)
}
