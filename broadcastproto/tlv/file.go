package tlv

import (
	"context"
	"os"
	"time"

	"github.com/eluv-io/errors-go"

	"github.com/eluv-io/tsaudit/broadcastproto/transport"
)

var _ transport.Transport = (*fileProto)(nil)

// fileProto replays a file of TLV frames, one datagram per frame.
type fileProto struct {
	path string
}

func NewFileTransport(path string) transport.Transport {
	return &fileProto{path: path}
}

func (f *fileProto) URL() string {
	return "tlv://" + f.path
}

func (f *fileProto) Handler() string {
	return "tlv"
}

func (f *fileProto) Open(_ context.Context) (transport.Conn, error) {
	file, err := os.Open(f.path)
	if err != nil {
		return nil, errors.E("fileProto.Open", errors.K.IO, err, "path", f.path)
	}
	return &fileConn{f: file, r: NewReader(file)}, nil
}

type fileConn struct {
	f *os.File
	r *Reader
}

func (c *fileConn) Read(p []byte) (int, error) {
	ts, err := c.r.Next()
	if err != nil {
		return 0, err
	}
	return copy(p, ts), nil
}

// SetReadDeadline is a no-op: a file never blocks.
func (c *fileConn) SetReadDeadline(time.Time) error {
	return nil
}

func (c *fileConn) Close() error {
	return c.f.Close()
}
