package transport

import (
	"context"
	"io"
	"net"
	"os"
	"time"

	"github.com/eluv-io/errors-go"
	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"
)

var _ Transport = (*pcapProto)(nil)

// pcapProto replays the UDP datagrams sent to one address from a capture
// file, e.g. pcap:///var/captures/mux1.pcap?dst=224.200.200.200:10071
type pcapProto struct {
	path string
	dst  *net.UDPAddr
}

func NewPcapTransport(path, dst string) (Transport, error) {
	e := errors.Template("NewPcapTransport", errors.K.Invalid, "path", path, "dst", dst)
	if path == "" {
		return nil, e("reason", "missing capture path")
	}
	addr, err := net.ResolveUDPAddr("udp4", dst)
	if err != nil {
		return nil, e(err, "reason", "invalid destination")
	}
	return &pcapProto{path: path, dst: addr}, nil
}

func (p *pcapProto) URL() string {
	return "pcap://" + p.path + "?dst=" + p.dst.String()
}

func (p *pcapProto) Handler() string {
	return "pcap"
}

func (p *pcapProto) Open(_ context.Context) (Conn, error) {
	e := errors.Template("pcapProto.Open", errors.K.IO, "path", p.path)

	f, err := os.Open(p.path)
	if err != nil {
		return nil, e(err)
	}
	r, err := pcapgo.NewReader(f)
	if err != nil {
		_ = f.Close()
		return nil, e(err, "reason", "not a pcap file")
	}
	return &PcapConn{f: f, r: r, dst: p.dst}, nil
}

// PcapConn returns the payload of each captured UDP datagram matching the
// destination, in capture order, then io.EOF.
type PcapConn struct {
	f   io.Closer
	r   *pcapgo.Reader
	dst *net.UDPAddr

	first time.Time
	last  time.Time
}

func (c *PcapConn) Read(p []byte) (int, error) {
	for {
		data, ci, err := c.r.ReadPacketData()
		if err != nil {
			return 0, err
		}
		pkt := gopacket.NewPacket(data, c.r.LinkType(), gopacket.DecodeOptions{Lazy: true, NoCopy: true})

		ipLayer, ok := pkt.Layer(layers.LayerTypeIPv4).(*layers.IPv4)
		if !ok || !ipLayer.DstIP.Equal(c.dst.IP) {
			continue
		}
		udp, ok := pkt.Layer(layers.LayerTypeUDP).(*layers.UDP)
		if !ok || int(udp.DstPort) != c.dst.Port {
			continue
		}

		if c.first.IsZero() {
			c.first = ci.Timestamp
		}
		c.last = ci.Timestamp
		return copy(p, udp.Payload), nil
	}
}

// SetReadDeadline is a no-op: a capture never blocks.
func (c *PcapConn) SetReadDeadline(time.Time) error {
	return nil
}

func (c *PcapConn) Close() error {
	return c.f.Close()
}

// CaptureSpan returns the time between the first and the last matching
// datagram read so far.
func (c *PcapConn) CaptureSpan() time.Duration {
	return c.last.Sub(c.first)
}

// CaptureWriter records datagrams as Ethernet/IPv4/UDP frames in pcap format.
type CaptureWriter struct {
	w   *pcapgo.Writer
	src *net.UDPAddr
	dst *net.UDPAddr
}

// NewCaptureWriter writes the pcap file header to w. Frames are addressed
// from src to dst.
func NewCaptureWriter(w io.Writer, src, dst *net.UDPAddr) (*CaptureWriter, error) {
	writer := pcapgo.NewWriter(w)
	if err := writer.WriteFileHeader(maxUDPPacketSize, layers.LinkTypeEthernet); err != nil {
		return nil, errors.E("NewCaptureWriter", errors.K.IO, err)
	}
	return &CaptureWriter{w: writer, src: src, dst: dst}, nil
}

// WriteDatagram appends one datagram captured at ts.
func (cw *CaptureWriter) WriteDatagram(ts time.Time, payload []byte) error {
	e := errors.Template("CaptureWriter.WriteDatagram", errors.K.IO)

	buffer := gopacket.NewSerializeBuffer()
	opts := gopacket.SerializeOptions{
		FixLengths:       true,
		ComputeChecksums: true,
	}
	ethernet := &layers.Ethernet{
		SrcMAC:       net.HardwareAddr{0x00, 0x00, 0x00, 0x00, 0x00, 0x01},
		DstMAC:       multicastMAC(cw.dst.IP),
		EthernetType: layers.EthernetTypeIPv4,
	}
	ip := &layers.IPv4{
		Version:  4,
		TTL:      16,
		Protocol: layers.IPProtocolUDP,
		SrcIP:    cw.src.IP.To4(),
		DstIP:    cw.dst.IP.To4(),
	}
	udp := &layers.UDP{
		SrcPort: layers.UDPPort(cw.src.Port),
		DstPort: layers.UDPPort(cw.dst.Port),
	}
	if err := udp.SetNetworkLayerForChecksum(ip); err != nil {
		return e(err)
	}
	if err := gopacket.SerializeLayers(buffer, opts, ethernet, ip, udp, gopacket.Payload(payload)); err != nil {
		return e(err)
	}

	data := buffer.Bytes()
	ci := gopacket.CaptureInfo{
		Timestamp:     ts,
		CaptureLength: len(data),
		Length:        len(data),
	}
	if err := cw.w.WritePacket(ci, data); err != nil {
		return e(err)
	}
	return nil
}

// multicastMAC maps an IPv4 group to its 01:00:5e Ethernet address.
func multicastMAC(ip net.IP) net.HardwareAddr {
	ip4 := ip.To4()
	if ip4 == nil || !ip4.IsMulticast() {
		return net.HardwareAddr{0x00, 0x00, 0x00, 0x00, 0x00, 0x02}
	}
	return net.HardwareAddr{0x01, 0x00, 0x5e, ip4[1] & 0x7f, ip4[2], ip4[3]}
}
