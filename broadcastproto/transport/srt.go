package transport

import (
	"context"
	"strings"
	"time"

	"github.com/datarhei/gosrt"

	"github.com/eluv-io/errors-go"
)

var _ Transport = (*srtProto)(nil)

// srtProto implements the Transport interface for SRT in caller mode: the
// probe connects to an SRT listener and pulls the stream.
type srtProto struct {
	Url string
}

func NewSRTTransport(url string) Transport {
	return &srtProto{Url: url}
}

func (s *srtProto) URL() string {
	return s.Url
}

func (s *srtProto) Handler() string {
	return "srt"
}

func (s *srtProto) Open(ctx context.Context) (Conn, error) {
	e := errors.Template("srtProto.Open", errors.K.IO, "url", s.Url)

	if strings.Contains(s.Url, "listen") {
		return nil, e("reason", "listener mode not supported, the probe pulls streams")
	}

	srtConfig := srt.DefaultConfig()
	hostPort, err := srtConfig.UnmarshalURL(s.Url)
	if err != nil {
		return nil, e(err)
	}

	// force `message` transmission method so that every read returns one sender datagram
	srtConfig.MessageAPI = true
	if deadline, ok := ctx.Deadline(); ok && time.Until(deadline) > 0 {
		srtConfig.ConnectionTimeout = time.Until(deadline)
	}

	conn, err := srt.Dial("srt", hostPort, srtConfig)
	if err != nil {
		return nil, e(err)
	}
	log.Debug("SRT connection established", "remote", conn.RemoteAddr(), "stream_id", srtConfig.StreamId)
	return conn, nil
}
