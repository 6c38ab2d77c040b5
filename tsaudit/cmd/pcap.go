package cmd

import (
	"context"
	"fmt"
	"net"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/eluv-io/tsaudit/broadcastproto/transport"
	"github.com/eluv-io/tsaudit/probe"
)

func InitPcap(cmdRoot *cobra.Command) error {
	cmdPcap := &cobra.Command{
		Use:   "pcap",
		Short: "Analyse a capture file",
		Long:  "Replay the UDP datagrams sent to one endpoint from a pcap file and print the classified result",
		RunE:  doPcap,
	}

	cmdRoot.AddCommand(cmdPcap)

	cmdPcap.Flags().StringP("file", "f", "", "(mandatory) pcap file")
	cmdPcap.Flags().StringP("group", "g", "", "(mandatory) destination address of the datagrams")
	cmdPcap.Flags().IntP("port", "p", 0, "(mandatory) destination UDP port")
	addThresholdFlags(cmdPcap)

	return nil
}

func doPcap(cmd *cobra.Command, args []string) error {
	filename, _ := cmd.Flags().GetString("file")
	if len(filename) == 0 {
		return fmt.Errorf("Filename is needed after -f")
	}
	group, _ := cmd.Flags().GetString("group")
	port, err := cmd.Flags().GetInt("port")
	if err != nil || len(group) == 0 || port <= 0 {
		return fmt.Errorf("Destination is needed after -g and -p")
	}
	th, err := thresholdsFromFlags(cmd)
	if err != nil {
		return err
	}
	asJSON, _ := cmd.Flags().GetBool("json")

	tr, err := transport.NewPcapTransport(filename, net.JoinHostPort(group, strconv.Itoa(port)))
	if err != nil {
		return err
	}
	ep := probe.Endpoint{Name: filename, Group: group, Port: port}
	res := probe.NewWithTransport(ep, tr, probe.Config{Thresholds: th}).Run(context.Background())

	if err = printResult(cmd.OutOrStdout(), res, asJSON); err != nil {
		return err
	}
	if res.Err != "" {
		return fmt.Errorf("Analysing capture failed. file=%s", filename)
	}
	return nil
}
