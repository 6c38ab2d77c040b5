package transport

import (
	"bytes"
	"io"
	"testing"
	"time"

	"github.com/eluv-io/errors-go"
	"github.com/stretchr/testify/require"
)

func rtpHeader(seq uint16) []byte {
	return []byte{0x80, 33, byte(seq >> 8), byte(seq), 0, 0, 0, 1, 0xde, 0xad, 0xbe, 0xef}
}

func TestParseRTPHeader(t *testing.T) {
	hdr, err := ParseRTPHeader(rtpHeader(7))
	require.NoError(t, err)
	require.Equal(t, uint8(2), hdr.Version)
	require.Equal(t, uint8(33), hdr.PayloadType)
	require.Equal(t, uint16(7), hdr.SequenceNumber)
	require.Equal(t, uint32(0xdeadbeef), hdr.SSRC)
	require.Equal(t, 12, hdr.ByteLength())

	for _, data := range [][]byte{
		{0x80, 33},
		append([]byte{0x40}, rtpHeader(1)[1:]...), // version 1
		append([]byte{0x82}, rtpHeader(1)[1:]...), // CSRCs missing
	} {
		_, err = ParseRTPHeader(data)
		require.True(t, errors.IsKind(errors.K.Invalid, err), data)
	}
}

func TestParseRTPHeaderExtension(t *testing.T) {
	data := rtpHeader(1)
	data[0] |= 0x10
	data = append(data, 0xbe, 0xde, 0x00, 0x01, 1, 2, 3, 4)
	hdr, err := ParseRTPHeader(data)
	require.NoError(t, err)
	require.Equal(t, 20, hdr.ByteLength())

	_, err = ParseRTPHeader(data[:14])
	require.True(t, errors.IsKind(errors.K.Invalid, err))
}

// datagramConn hands out queued datagrams, then io.EOF.
type datagramConn struct {
	datagrams [][]byte
}

func (d *datagramConn) Read(p []byte) (int, error) {
	if len(d.datagrams) == 0 {
		return 0, io.EOF
	}
	n := copy(p, d.datagrams[0])
	d.datagrams = d.datagrams[1:]
	return n, nil
}

func (d *datagramConn) SetReadDeadline(time.Time) error { return nil }
func (d *datagramConn) Close() error                    { return nil }

func TestRTPConnStripsHeader(t *testing.T) {
	ts := bytes.Repeat([]byte{0x47, 0x00, 0x11, 0x10}, 47*7)
	conn := &rtpConn{
		buf: make([]byte, maxUDPPacketSize),
		conn: &datagramConn{datagrams: [][]byte{
			[]byte("not rtp"),
			append(rtpHeader(1), ts...),
		}},
	}
	buf := make([]byte, 2048)
	n, err := conn.Read(buf)
	require.NoError(t, err)
	require.Equal(t, ts, buf[:n])

	_, err = conn.Read(buf)
	require.Equal(t, io.EOF, err)
}

func TestStripRTP(t *testing.T) {
	ts := bytes.Repeat([]byte{0x47, 0x00, 0x11, 0x10}, 47)
	off, err := StripRTP(append(rtpHeader(3), ts...))
	require.NoError(t, err)
	require.Equal(t, 12, off)

	_, err = StripRTP(append(rtpHeader(3), ts[:100]...))
	require.True(t, errors.IsKind(errors.K.Invalid, err))
}
