package tlv

import (
	"bufio"
	"encoding/binary"
	"io"

	"github.com/Comcast/gots/v2/packet"
	"github.com/eluv-io/errors-go"

	"github.com/eluv-io/tsaudit/broadcastproto/transport"
)

// TLV (Type Length Value) framing of recorded MPEG-TS datagrams: one byte of
// type, a big endian uint16 length, then the datagram.

type TlvType byte

const TLV_HEADER_LEN = 3

const U16MAX = 0xFFFF

const (
	TlvTypeUnknown TlvType = iota
	TlvTypeRtpTs
	TlvTypeRawTs
)

var ErrUnknownTlvType = errors.E("tlv", errors.K.Invalid, "reason", "unknown TLV type")

func (pt TlvType) String() string {
	switch pt {
	case TlvTypeRtpTs:
		return "RTP-TS"
	case TlvTypeRawTs:
		return "Raw-TS"
	default:
		return "Unknown"
	}
}

func TlvHeader(length int, tlvType TlvType) ([]byte, error) {
	if length > U16MAX || length < 0 {
		return nil, errors.E("TlvHeader", errors.K.Invalid, "reason", "bad length", "length", length)
	}
	var header [TLV_HEADER_LEN]byte
	header[0] = byte(tlvType)
	binary.BigEndian.PutUint16(header[1:3], uint16(length))
	return header[:], nil
}

func ByteToTLVType(b byte) (TlvType, error) {
	switch b {
	case 0x01:
		return TlvTypeRtpTs, nil
	case 0x02:
		return TlvTypeRawTs, nil
	}
	return TlvTypeUnknown, ErrUnknownTlvType
}

// ValidateTLV checks that data holds one complete TLV frame whose payload is
// an RTP-TS or raw TS datagram, and returns the frame type.
func ValidateTLV(data []byte) (TlvType, error) {
	e := errors.Template("ValidateTLV", errors.K.Invalid)
	if len(data) < TLV_HEADER_LEN {
		return TlvTypeUnknown, e("reason", "data too short to contain TLV header")
	}
	tlvType, err := ByteToTLVType(data[0])
	if err != nil {
		return TlvTypeUnknown, e(err)
	}

	dataLen := int(binary.BigEndian.Uint16(data[1:3]))
	if len(data)-TLV_HEADER_LEN < dataLen {
		return TlvTypeUnknown, e("reason", "data length mismatch", "expected", dataLen, "got", len(data)-TLV_HEADER_LEN)
	}

	payload := data[TLV_HEADER_LEN : TLV_HEADER_LEN+dataLen]
	switch tlvType {
	case TlvTypeRtpTs:
		_, err = tsPayload(tlvType, payload)
	case TlvTypeRawTs:
		err = validateRawTS(payload)
	}
	if err != nil {
		return tlvType, e(err)
	}
	return tlvType, nil
}

// tsPayload returns the TS packets carried by a frame payload.
func tsPayload(tlvType TlvType, payload []byte) ([]byte, error) {
	if tlvType != TlvTypeRtpTs {
		return payload, nil
	}
	rtpOffset, err := transport.StripRTP(payload)
	if err != nil {
		return nil, err
	}
	ts := payload[rtpOffset:]
	return ts, validateRawTS(ts)
}

func validateRawTS(data []byte) error {
	e := errors.Template("validateRawTS", errors.K.Invalid)
	if len(data)%packet.PacketSize != 0 {
		return e("reason", "raw TS data length is not a multiple of 188 bytes", "len", len(data))
	}

	var pkt packet.Packet
	for offset := 0; offset < len(data); offset += packet.PacketSize {
		copy(pkt[:], data[offset:offset+packet.PacketSize])
		if err := pkt.CheckErrors(); err != nil {
			return e(err, "index", offset/packet.PacketSize)
		}
	}
	return nil
}

// Writer appends TLV frames to an underlying writer.
type Writer struct {
	w       io.Writer
	tlvType TlvType
}

func NewWriter(w io.Writer, tlvType TlvType) *Writer {
	return &Writer{w: w, tlvType: tlvType}
}

// WriteDatagram writes one datagram as a frame.
func (tw *Writer) WriteDatagram(datagram []byte) error {
	header, err := TlvHeader(len(datagram), tw.tlvType)
	if err != nil {
		return err
	}
	if _, err = tw.w.Write(header); err != nil {
		return errors.E("Writer.WriteDatagram", errors.K.IO, err)
	}
	if _, err = tw.w.Write(datagram); err != nil {
		return errors.E("Writer.WriteDatagram", errors.K.IO, err)
	}
	return nil
}

// Reader reads TLV frames and returns the TS packets of each one.
type Reader struct {
	r   *bufio.Reader
	buf []byte
}

func NewReader(r io.Reader) *Reader {
	return &Reader{r: bufio.NewReader(r), buf: make([]byte, U16MAX)}
}

// Next returns the TS packets of the next frame, or io.EOF after the last
// complete frame. The returned slice is only valid until the next call.
func (tr *Reader) Next() ([]byte, error) {
	e := errors.Template("Reader.Next", errors.K.Invalid)

	var header [TLV_HEADER_LEN]byte
	if _, err := io.ReadFull(tr.r, header[:]); err != nil {
		if err == io.ErrUnexpectedEOF {
			return nil, e(err, "reason", "truncated TLV header")
		}
		return nil, err
	}
	tlvType, err := ByteToTLVType(header[0])
	if err != nil {
		return nil, e(err, "type", header[0])
	}
	n := int(binary.BigEndian.Uint16(header[1:3]))
	payload := tr.buf[:n]
	if _, err = io.ReadFull(tr.r, payload); err != nil {
		return nil, e(err, "reason", "truncated TLV payload", "length", n)
	}
	return tsPayload(tlvType, payload)
}
