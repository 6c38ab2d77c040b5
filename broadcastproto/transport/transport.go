package transport

import (
	"context"
	"io"
	"net/url"
	"strings"
	"time"

	"github.com/eluv-io/errors-go"
)

// Conn is an open source of TS datagrams. Each Read returns at most one
// datagram.
type Conn interface {
	io.ReadCloser
	SetReadDeadline(t time.Time) error
}

// Transport defines the interface for transport protocols that carry MPEG-TS data.
type Transport interface {
	Open(ctx context.Context) (Conn, error)
	URL() string
	Handler() string
}

// Options tune the sockets opened by network transports.
type Options struct {
	Interface  string // multicast interface name, empty for the system default
	ReadBuffer int    // socket receive buffer in bytes, 0 keeps the system default
}

// New returns the transport handling the scheme of rawURL. A URL without a
// scheme is treated as udp.
func New(rawURL string, opts Options) (Transport, error) {
	e := errors.Template("transport.New", errors.K.Invalid, "url", rawURL)

	scheme := "udp"
	if i := strings.Index(rawURL, "://"); i >= 0 {
		scheme = strings.ToLower(rawURL[:i])
	}

	switch scheme {
	case "udp":
		return NewUDPTransport(rawURL, opts), nil
	case "rtp":
		return NewRTPTransport(rawURL, opts), nil
	case "srt":
		return NewSRTTransport(rawURL), nil
	case "pcap":
		u, err := url.Parse(rawURL)
		if err != nil {
			return nil, e(err)
		}
		return NewPcapTransport(u.Path, u.Query().Get("dst"))
	}
	return nil, e("reason", "unsupported scheme", "scheme", scheme)
}

func stripLeadingProto(url string) string {
	s := url
	for _, prefix := range []string{"udp://", "rtp://"} {
		s = strings.TrimPrefix(s, prefix)
	}
	if i := strings.IndexAny(s, "?/"); i >= 0 {
		s = s[:i]
	}
	return strings.TrimPrefix(s, "@")
}
