package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/eluv-io/tsaudit/broadcastproto/transport"
	"github.com/eluv-io/tsaudit/probe"
)

func InitProbe(cmdRoot *cobra.Command) error {
	cmdProbe := &cobra.Command{
		Use:   "probe",
		Short: "Probe a multicast endpoint",
		Long:  "Receive an MPEG-TS endpoint for one observation window and print the classified result",
		RunE:  doProbe,
	}

	cmdRoot.AddCommand(cmdProbe)

	addEndpointFlags(cmdProbe)
	addThresholdFlags(cmdProbe)

	return nil
}

func addEndpointFlags(cmd *cobra.Command) {
	cmd.Flags().StringP("group", "g", "", "(mandatory) multicast group or unicast address")
	cmd.Flags().IntP("port", "p", 0, "(mandatory) UDP port")
	cmd.Flags().String("proto", "udp", "transport: udp, rtp or srt")
	cmd.Flags().DurationP("duration", "d", probe.DefaultDuration, "observation window")
	cmd.Flags().String("interface", "", "network interface joining the multicast group")
	cmd.Flags().Int("read-buffer", transport.UDP_READ_BUFFER_SIZE, "socket receive buffer in bytes")
}

func endpointFromFlags(cmd *cobra.Command) (probe.Endpoint, probe.Config, error) {
	var ep probe.Endpoint
	var cfg probe.Config
	var err error

	ep.Group, _ = cmd.Flags().GetString("group")
	if len(ep.Group) == 0 {
		return ep, cfg, fmt.Errorf("Group is needed after -g")
	}
	ep.Port, err = cmd.Flags().GetInt("port")
	if err != nil || ep.Port <= 0 || ep.Port > 65535 {
		return ep, cfg, fmt.Errorf("Invalid port flag")
	}
	ep.Proto, _ = cmd.Flags().GetString("proto")

	cfg.Duration, err = cmd.Flags().GetDuration("duration")
	if err != nil || cfg.Duration <= 0 {
		return ep, cfg, fmt.Errorf("Invalid duration flag")
	}
	cfg.Transport.Interface, _ = cmd.Flags().GetString("interface")
	cfg.Transport.ReadBuffer, err = cmd.Flags().GetInt("read-buffer")
	if err != nil {
		return ep, cfg, fmt.Errorf("Invalid read-buffer flag")
	}
	return ep, cfg, nil
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

func doProbe(cmd *cobra.Command, args []string) error {
	ep, cfg, err := endpointFromFlags(cmd)
	if err != nil {
		return err
	}
	cfg.Thresholds, err = thresholdsFromFlags(cmd)
	if err != nil {
		return err
	}
	asJSON, _ := cmd.Flags().GetBool("json")

	p, err := probe.New(ep, cfg)
	if err != nil {
		return err
	}

	ctx, cancel := signalContext()
	defer cancel()

	res := p.Run(ctx)
	if err = printResult(cmd.OutOrStdout(), res, asJSON); err != nil {
		return err
	}
	if res.Err != "" {
		return fmt.Errorf("Probing failed. endpoint=%s", ep.ID())
	}
	return nil
}
