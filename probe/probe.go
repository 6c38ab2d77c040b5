package probe

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"strconv"
	"time"

	elog "github.com/eluv-io/log-go"

	"github.com/eluv-io/tsaudit/broadcastproto/mpegts"
	"github.com/eluv-io/tsaudit/broadcastproto/transport"
)

const DefaultDuration = 10 * time.Second

// datagrams are read into a buffer of the largest UDP payload
const maxDatagramSize = 1<<16 - 1

var log = elog.Get("/tsaudit/probe")

// Endpoint identifies one multicast feed.
type Endpoint struct {
	Name  string `yaml:"name,omitempty" json:"name,omitempty"`
	Group string `yaml:"group" json:"group"`
	Port  int    `yaml:"port" json:"port"`
	Proto string `yaml:"proto,omitempty" json:"proto,omitempty"` // udp (default), rtp, srt
}

// ID returns "group:port".
func (e Endpoint) ID() string {
	return net.JoinHostPort(e.Group, strconv.Itoa(e.Port))
}

// URL returns the transport URL of the endpoint.
func (e Endpoint) URL() string {
	proto := e.Proto
	if proto == "" {
		proto = "udp"
	}
	return fmt.Sprintf("%s://%s", proto, e.ID())
}

// Config holds the parameters of a probe run.
type Config struct {
	Duration   time.Duration
	Thresholds Thresholds
	Transport  transport.Options
}

// StreamProbe observes one endpoint for a fixed window and classifies what
// it received. A probe can be run several times; runs share no state.
type StreamProbe struct {
	endpoint  Endpoint
	cfg       Config
	transport transport.Transport
}

// New creates a probe for ep, choosing the transport from ep.Proto.
func New(ep Endpoint, cfg Config) (*StreamProbe, error) {
	tr, err := transport.New(ep.URL(), cfg.Transport)
	if err != nil {
		return nil, err
	}
	return NewWithTransport(ep, tr, cfg), nil
}

// DefaultConfig returns the default window and thresholds.
func DefaultConfig() Config {
	return Config{Duration: DefaultDuration, Thresholds: DefaultThresholds()}
}

// NewWithTransport creates a probe reading ep through tr. A zero duration
// selects DefaultDuration; the thresholds are used as given, so a zero
// MinPackets disables the packet count rule.
func NewWithTransport(ep Endpoint, tr transport.Transport, cfg Config) *StreamProbe {
	if cfg.Duration <= 0 {
		cfg.Duration = DefaultDuration
	}
	return &StreamProbe{
		endpoint:  ep,
		cfg:       cfg,
		transport: tr,
	}
}

// Endpoint returns the endpoint observed by the probe.
func (p *StreamProbe) Endpoint() Endpoint {
	return p.endpoint
}

// Run receives datagrams until the observation window elapses or ctx is
// cancelled, then returns the classified result. Run never fails: an endpoint
// that cannot be opened or a read error ends the run with whatever was
// parsed so far, and the error is reported in AnalysisResult.Err.
func (p *StreamProbe) Run(ctx context.Context) *AnalysisResult {
	start := time.Now()
	ctx, cancel := context.WithTimeout(ctx, p.cfg.Duration)
	defer cancel()

	demux := mpegts.NewDemuxer()
	window := p.cfg.Duration

	var runErr error
	conn, err := p.transport.Open(ctx)
	if err != nil {
		log.Warn("probe failed to open endpoint", "endpoint", p.endpoint.ID(), "url", p.transport.URL(), "err", err)
		runErr = err
	} else {
		window, runErr = p.receive(ctx, conn, demux)
	}

	demux.LogStats("endpoint", p.endpoint.ID(), "elapsed", time.Since(start))
	return p.result(demux, start, window, runErr)
}

func (p *StreamProbe) receive(ctx context.Context, conn transport.Conn, demux *mpegts.Demuxer) (time.Duration, error) {
	defer func() {
		err := conn.Close()
		log.Debug("Closing probe connection", "endpoint", p.endpoint.ID(), "err", err)
	}()

	if deadline, ok := ctx.Deadline(); ok {
		if err := conn.SetReadDeadline(deadline); err != nil {
			return p.cfg.Duration, err
		}
	}
	// cancelling the parent context interrupts a blocked read
	stop := context.AfterFunc(ctx, func() {
		_ = conn.SetReadDeadline(time.Now())
	})
	defer stop()

	buf := make([]byte, maxDatagramSize)
	var err error
	for {
		n, rerr := conn.Read(buf)
		if n > 0 {
			demux.ProcessDatagram(buf[:n])
		}
		if rerr != nil {
			err = rerr
			break
		}
	}

	window := p.cfg.Duration
	if cs, ok := conn.(interface{ CaptureSpan() time.Duration }); ok && cs.CaptureSpan() > 0 {
		window = cs.CaptureSpan()
	}

	var ne net.Error
	switch {
	case ctx.Err() != nil, errors.Is(err, io.EOF):
		return window, nil
	case errors.As(err, &ne) && ne.Timeout():
		return window, nil
	}
	log.Warn("probe read failed", "endpoint", p.endpoint.ID(), "err", err)
	return window, err
}

func (p *StreamProbe) result(demux *mpegts.Demuxer, start time.Time, window time.Duration, runErr error) *AnalysisResult {
	st := demux.Stats()
	c := Classify(demux, p.cfg.Thresholds)

	res := &AnalysisResult{
		Endpoint:            p.endpoint.ID(),
		Name:                p.endpoint.Name,
		URL:                 p.transport.URL(),
		StartedAt:           start,
		DurationSeconds:     window.Seconds(),
		Elapsed:             time.Since(start),
		Datagrams:           st.DatagramsReceived,
		TotalPackets:        st.PacketsReceived,
		TotalBytes:          st.BytesReceived,
		BitrateKbps:         Bitrate(st.BytesReceived, window),
		SyncErrors:          st.ErrorsSync,
		IncompletePackets:   st.ErrorsIncompletePackets,
		MalformedSections:   st.ErrorsMalformedSections,
		ContinuityErrors:    demux.Continuity().TotalErrors(),
		Programs:            c.Programs,
		ProblematicPrograms: c.Problematic,
		SkippedPrograms:     c.Skipped,
		UnknownPIDs:         demux.UnknownPIDs(),
	}
	if res.Programs == nil {
		res.Programs = []ProgramResult{}
	}
	if res.ProblematicPrograms == nil {
		res.ProblematicPrograms = []int{}
	}
	if runErr != nil {
		res.Err = runErr.Error()
	}
	return res
}
