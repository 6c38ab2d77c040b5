package transport

import (
	"context"
	"net"
	"strconv"

	"github.com/eluv-io/errors-go"
	elog "github.com/eluv-io/log-go"
	"golang.org/x/net/ipv4"
)

const UDP_READ_BUFFER_SIZE = 16 * 1024 * 1024

var log = elog.Get("/tsaudit/broadcastproto/transport")

var _ Transport = (*udpProto)(nil)

// udpProto implements the Transport interface for UDP unicast and multicast.
type udpProto struct {
	Url  string
	opts Options
}

func NewUDPTransport(url string, opts Options) Transport {
	return &udpProto{Url: url, opts: opts}
}

func (u *udpProto) URL() string {
	return u.Url
}

func (u *udpProto) Handler() string {
	return "udp"
}

func (u *udpProto) Open(ctx context.Context) (Conn, error) {
	e := errors.Template("udpProto.Open", errors.K.IO, "url", u.Url)

	addr, err := net.ResolveUDPAddr("udp4", stripLeadingProto(u.Url))
	if err != nil {
		return nil, e(err, "reason", "invalid address")
	}

	if !addr.IP.IsMulticast() {
		conn, err := net.ListenUDP("udp4", addr)
		if err != nil {
			return nil, e(err)
		}
		u.setReadBuffer(conn)
		log.Debug("Listening on UDP address", "addr", addr)
		return conn, nil
	}

	lc := net.ListenConfig{Control: reuseControl}
	pc, err := lc.ListenPacket(ctx, "udp4", net.JoinHostPort(bindHost(addr.IP), strconv.Itoa(addr.Port)))
	if err != nil {
		return nil, e(err)
	}
	conn := pc.(*net.UDPConn)

	var ifi *net.Interface
	if u.opts.Interface != "" {
		ifi, err = net.InterfaceByName(u.opts.Interface)
		if err != nil {
			_ = conn.Close()
			return nil, e(err, "reason", "unknown interface", "interface", u.opts.Interface)
		}
	}

	group := &net.UDPAddr{IP: addr.IP}
	p := ipv4.NewPacketConn(conn)
	if err = p.JoinGroup(ifi, group); err != nil {
		_ = conn.Close()
		return nil, e(err, "reason", "join group failed", "interface", u.opts.Interface)
	}
	u.setReadBuffer(conn)
	log.Debug("Listening on UDP multicast address", "addr", addr, "interface", u.opts.Interface)

	return &multicastConn{UDPConn: conn, p: p, ifi: ifi, group: group}, nil
}

func (u *udpProto) setReadBuffer(conn *net.UDPConn) {
	size := u.opts.ReadBuffer
	if size <= 0 {
		size = UDP_READ_BUFFER_SIZE
	}
	if err := conn.SetReadBuffer(size); err != nil {
		log.Warn("Failed to set UDP buffer size, continue ...", "err", err, "size", size)
	}
}

// multicastConn leaves the group before closing the socket.
type multicastConn struct {
	*net.UDPConn
	p     *ipv4.PacketConn
	ifi   *net.Interface
	group *net.UDPAddr
}

func (m *multicastConn) Close() error {
	if err := m.p.LeaveGroup(m.ifi, m.group); err != nil {
		log.Debug("Failed to leave multicast group", "err", err, "group", m.group)
	}
	return m.UDPConn.Close()
}
