package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/eluv-io/tsaudit/broadcastproto/tlv"
	"github.com/eluv-io/tsaudit/broadcastproto/transport"
)

func InitRecord(cmdRoot *cobra.Command) error {
	cmdRecord := &cobra.Command{
		Use:   "record",
		Short: "Record an endpoint to a pcap or TLV file",
		Long:  "Capture the datagrams of an endpoint for the given duration, for later analysis with the pcap or replay command",
		RunE:  doRecord,
	}

	cmdRoot.AddCommand(cmdRecord)

	addEndpointFlags(cmdRecord)
	cmdRecord.Flags().StringP("out", "o", "", "(mandatory) file to write")
	cmdRecord.Flags().String("format", "pcap", "output format: pcap or tlv")

	return nil
}

func doRecord(cmd *cobra.Command, args []string) error {
	ep, cfg, err := endpointFromFlags(cmd)
	if err != nil {
		return err
	}
	out, _ := cmd.Flags().GetString("out")
	if len(out) == 0 {
		return fmt.Errorf("Output file is needed after -o")
	}
	format, _ := cmd.Flags().GetString("format")
	if format != "pcap" && format != "tlv" {
		return fmt.Errorf("Invalid format flag")
	}
	dst, err := net.ResolveUDPAddr("udp4", net.JoinHostPort(ep.Group, strconv.Itoa(ep.Port)))
	if err != nil {
		return err
	}

	tr, err := transport.New(ep.URL(), cfg.Transport)
	if err != nil {
		return err
	}

	ctx, cancel := signalContext()
	defer cancel()
	ctx, cancelWindow := context.WithTimeout(ctx, cfg.Duration)
	defer cancelWindow()

	conn, err := tr.Open(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = conn.Close() }()

	f, err := os.Create(out)
	if err != nil {
		return err
	}
	defer func() { _ = f.Close() }()

	var write func(ts time.Time, datagram []byte) error
	switch format {
	case "tlv":
		// every transport hands out bare TS, rtp included
		tw := tlv.NewWriter(f, tlv.TlvTypeRawTs)
		write = func(_ time.Time, datagram []byte) error {
			return tw.WriteDatagram(datagram)
		}
	default:
		cw, err := transport.NewCaptureWriter(f, &net.UDPAddr{IP: net.IPv4zero}, dst)
		if err != nil {
			return err
		}
		write = cw.WriteDatagram
	}

	deadline, _ := ctx.Deadline()
	_ = conn.SetReadDeadline(deadline)
	stop := context.AfterFunc(ctx, func() { _ = conn.SetReadDeadline(time.Now()) })
	defer stop()

	buf := make([]byte, 1<<16)
	count := 0
	for {
		n, err := conn.Read(buf)
		if n > 0 {
			if werr := write(time.Now(), buf[:n]); werr != nil {
				return werr
			}
			count++
		}
		if err != nil {
			var ne net.Error
			if ctx.Err() != nil || errors.Is(err, io.EOF) || (errors.As(err, &ne) && ne.Timeout()) {
				break
			}
			return err
		}
	}

	log.Info("recording done", "endpoint", ep.ID(), "file", out, "datagrams", count)
	fmt.Fprintf(cmd.OutOrStdout(), "Recorded %d datagrams from %s to %s\n", count, ep.ID(), out)
	return nil
}

