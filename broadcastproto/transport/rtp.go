package transport

import (
	"context"
	"encoding/binary"
	"time"

	"github.com/Comcast/gots/v2/packet"
	"github.com/eluv-io/errors-go"
)

const maxUDPPacketSize = 1<<16 - 1

var _ Transport = (*rtpProto)(nil)

// rtpProto carries TS in RTP over UDP (RFC 2250). Headers are stripped so
// the probe only sees TS packets.
type rtpProto struct {
	Url  string
	opts Options
}

func NewRTPTransport(url string, opts Options) Transport {
	log.Debug("Creating new RTP transport", "url", url)
	return &rtpProto{Url: url, opts: opts}
}

func (r *rtpProto) URL() string {
	return r.Url
}

func (r *rtpProto) Handler() string {
	return "rtp"
}

func (r *rtpProto) Open(ctx context.Context) (Conn, error) {
	udpTransport := NewUDPTransport(r.Url, r.opts)

	conn, err := udpTransport.Open(ctx)
	if err != nil {
		return nil, errors.E("rtpProto.Open", errors.K.IO, err, "url", r.Url)
	}

	return &rtpConn{
		buf:  make([]byte, maxUDPPacketSize),
		conn: conn,
	}, nil
}

// rtpConn returns the TS payload of one RTP datagram per Read. Datagrams
// that are not valid RTP are skipped.
type rtpConn struct {
	buf  []byte
	conn Conn
}

func (h *rtpConn) Close() error {
	return h.conn.Close()
}

func (h *rtpConn) SetReadDeadline(t time.Time) error {
	return h.conn.SetReadDeadline(t)
}

func (h *rtpConn) Read(p []byte) (int, error) {
	for {
		n, err := h.conn.Read(h.buf)
		if err != nil {
			return 0, err
		}
		headerEnd, err := StripRTP(h.buf[:n])
		if err != nil {
			log.Trace("Failed to strip RTP header", "err", err)
			continue
		}
		return copy(p, h.buf[headerEnd:n]), nil
	}
}

// StripRTP returns the offset of the TS payload following the RTP header.
func StripRTP(data []byte) (int, error) {
	hdr, err := ParseRTPHeader(data)
	if err != nil {
		return 0, err
	}
	if len(data) < hdr.ByteLength()+packet.PacketSize {
		return 0, errors.E("StripRTP", errors.K.Invalid, "reason", "packet too short for RTP and TS", "len", len(data))
	}
	return hdr.ByteLength(), nil
}

type RTPHeader struct {
	Version        uint8
	Padding        bool
	Extension      bool
	CSRCCount      uint8
	Marker         bool
	PayloadType    uint8
	SequenceNumber uint16
	Timestamp      uint32
	SSRC           uint32

	ExtensionByteCount int // Number of bytes in the extension (header + payload), if present
}

func (h *RTPHeader) ByteLength() int {
	length := 12 // Base RTP header length
	if h.CSRCCount > 0 {
		length += int(h.CSRCCount) * 4
	}
	if h.Extension {
		length += h.ExtensionByteCount
	}
	return length
}

func ParseRTPHeader(data []byte) (*RTPHeader, error) {
	e := errors.Template("ParseRTPHeader", errors.K.Invalid)
	baseHeaderSize := 12
	if len(data) < baseHeaderSize {
		return nil, e("reason", "RTP packet too short", "len", len(data))
	}

	b0 := data[0]
	b1 := data[1]

	header := &RTPHeader{
		Version:        b0 >> 6,
		Padding:        (b0>>5)&0x01 == 1,
		Extension:      (b0>>4)&0x01 == 1,
		CSRCCount:      b0 & 0x0F,
		Marker:         (b1>>7)&0x01 == 1,
		PayloadType:    b1 & 0x7F,
		SequenceNumber: binary.BigEndian.Uint16(data[2:4]),
		Timestamp:      binary.BigEndian.Uint32(data[4:8]),
		SSRC:           binary.BigEndian.Uint32(data[8:12]),
	}
	if header.Version != 2 {
		return nil, e("reason", "unsupported RTP version", "version", header.Version)
	}
	lenCSRC := 4 * int(header.CSRCCount)
	if len(data) < baseHeaderSize+lenCSRC {
		return nil, e("reason", "RTP packet too short for CSRCs", "expected", baseHeaderSize+lenCSRC, "got", len(data))
	}
	if header.Extension {
		extStart := baseHeaderSize + lenCSRC
		if len(data) < extStart+4 {
			return nil, e("reason", "RTP packet too short for extension header", "len", len(data))
		}
		extLen := binary.BigEndian.Uint16(data[extStart+2 : extStart+4])
		header.ExtensionByteCount = (int(extLen) * 4) + 4 // 4 bytes for the extension header
		if len(data) < extStart+header.ExtensionByteCount {
			return nil, e("reason", "RTP packet too short for extension", "expected", extStart+header.ExtensionByteCount, "got", len(data))
		}
	}

	return header, nil
}
