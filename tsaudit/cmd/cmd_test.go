package cmd

import (
	"bytes"
	"encoding/json"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/require"

	"github.com/eluv-io/tsaudit/broadcastproto/mpegts"
	"github.com/eluv-io/tsaudit/broadcastproto/mpegts/tstest"
	"github.com/eluv-io/tsaudit/broadcastproto/transport"
	"github.com/eluv-io/tsaudit/probe"
)

func newRoot(t *testing.T) (*cobra.Command, *bytes.Buffer) {
	root := &cobra.Command{Use: "tsaudit", SilenceUsage: true, SilenceErrors: true}
	for _, initCmd := range []func(*cobra.Command) error{InitProbe, InitWatch, InitPcap, InitRecord, InitReplay, InitVersion} {
		require.NoError(t, initCmd(root))
	}
	out := &bytes.Buffer{}
	root.SetOut(out)
	return root, out
}

func writeCapture(t *testing.T) string {
	path := filepath.Join(t.TempDir(), "mux.pcap")
	f, err := os.Create(path)
	require.NoError(t, err)
	defer func() { require.NoError(t, f.Close()) }()

	cw, err := transport.NewCaptureWriter(f,
		&net.UDPAddr{IP: net.IPv4(10, 0, 0, 5), Port: 5000},
		&net.UDPAddr{IP: net.IPv4(224, 200, 200, 200), Port: 10071})
	require.NoError(t, err)

	start := time.Unix(1700000000, 0)
	datagrams := [][]byte{
		tstest.PSIPacket(mpegts.PidPAT, 0, tstest.PATSection(tstest.Program{Number: 1, PMTPID: 256})),
		tstest.PSIPacket(256, 0, tstest.PMTSection(1, nil,
			tstest.Stream{Type: mpegts.StreamTypeH264, PID: 100},
			tstest.Stream{Type: mpegts.StreamTypeAAC, PID: 101})),
		tstest.Run(100, 0, 150),
		tstest.Run(101, 0, 50),
	}
	for i, d := range datagrams {
		require.NoError(t, cw.WriteDatagram(start.Add(time.Duration(i)*time.Second), d))
	}
	return path
}

func TestPcapCommand(t *testing.T) {
	path := writeCapture(t)

	root, out := newRoot(t)
	root.SetArgs([]string{"pcap", "-f", path, "-g", "224.200.200.200", "-p", "10071"})
	require.NoError(t, root.Execute())

	text := out.String()
	require.Contains(t, text, "Endpoint 224.200.200.200:10071")
	require.Contains(t, text, "packets: 202")
	require.Contains(t, text, "incomplete_packets: 0")
	require.Contains(t, text, "Program[1] PROBLEMATIC")
	require.Contains(t, text, "reason: PID 101 (AAC Audio) received only 50 packets")
}

func TestPcapCommandJSON(t *testing.T) {
	path := writeCapture(t)

	root, out := newRoot(t)
	root.SetArgs([]string{"pcap", "-f", path, "-g", "224.200.200.200", "-p", "10071", "--json", "--min-packets", "10"})
	require.NoError(t, root.Execute())

	var res probe.AnalysisResult
	require.NoError(t, json.Unmarshal(out.Bytes(), &res))
	require.Equal(t, uint64(202), res.TotalPackets)
	require.Equal(t, 3.0, res.DurationSeconds)
	require.Empty(t, res.ProblematicPrograms)
}

func TestCommandFlagErrors(t *testing.T) {
	for _, args := range [][]string{
		{"pcap", "-g", "224.200.200.200", "-p", "10071"},
		{"pcap", "-f", "x.pcap"},
		{"probe", "-p", "10071"},
		{"probe", "-g", "224.200.200.200"},
		{"record", "-g", "224.200.200.200", "-p", "10071"},
	} {
		root, _ := newRoot(t)
		root.SetArgs(args)
		require.Error(t, root.Execute(), args)
	}
}

func TestVersionCommand(t *testing.T) {
	root, out := newRoot(t)
	root.SetArgs([]string{"version"})
	require.NoError(t, root.Execute())
	require.Equal(t, Version+"\n", out.String())
}

func TestRecordCommand(t *testing.T) {
	conn, err := net.ListenUDP("udp4", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1)})
	require.NoError(t, err)
	port := conn.LocalAddr().(*net.UDPAddr).Port
	require.NoError(t, conn.Close())

	path := filepath.Join(t.TempDir(), "rec.pcap")
	root, out := newRoot(t)
	root.SetArgs([]string{"record", "-g", "127.0.0.1", "-p", strconv.Itoa(port), "-d", "100ms", "-o", path})
	require.NoError(t, root.Execute())
	require.Contains(t, out.String(), "Recorded 0 datagrams")

	st, err := os.Stat(path)
	require.NoError(t, err)
	require.Equal(t, int64(24), st.Size()) // pcap file header only
}

func TestRecordAndReplayTLV(t *testing.T) {
	conn, err := net.ListenUDP("udp4", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1)})
	require.NoError(t, err)
	port := conn.LocalAddr().(*net.UDPAddr).Port
	require.NoError(t, conn.Close())

	path := filepath.Join(t.TempDir(), "rec.tlv")
	root, out := newRoot(t)
	root.SetArgs([]string{"record", "-g", "127.0.0.1", "-p", strconv.Itoa(port), "-d", "2s", "-o", path, "--format", "tlv"})

	done := make(chan error, 1)
	go func() { done <- root.Execute() }()

	// keep sending until the recorder has bound the port
	sender, err := net.DialUDP("udp4", nil, &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1), Port: port})
	require.NoError(t, err)
	defer func() { _ = sender.Close() }()
	stream := tstest.Run(100, 0, 7)
	for i := 0; i < 20; i++ {
		_, _ = sender.Write(stream)
		time.Sleep(20 * time.Millisecond)
	}
	require.NoError(t, <-done)
	require.Contains(t, out.String(), "Recorded ")

	root, out = newRoot(t)
	root.SetArgs([]string{"replay", "-f", path, "--json"})
	require.NoError(t, root.Execute())

	var res probe.AnalysisResult
	require.NoError(t, json.Unmarshal(out.Bytes(), &res))
	require.Equal(t, 0, int(res.TotalPackets)%7)
	require.Equal(t, res.Datagrams*7, res.TotalPackets)
}
