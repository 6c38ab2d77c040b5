package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/eluv-io/tsaudit/broadcastproto/tlv"
	"github.com/eluv-io/tsaudit/probe"
)

func InitReplay(cmdRoot *cobra.Command) error {
	cmdReplay := &cobra.Command{
		Use:   "replay",
		Short: "Analyse a TLV recording",
		Long:  "Replay a TLV file written by 'record --format tlv' and print the classified result",
		RunE:  doReplay,
	}

	cmdRoot.AddCommand(cmdReplay)

	cmdReplay.Flags().StringP("file", "f", "", "(mandatory) TLV file")
	cmdReplay.Flags().DurationP("duration", "d", probe.DefaultDuration, "duration of the recording, used for the bitrate")
	addThresholdFlags(cmdReplay)

	return nil
}

func doReplay(cmd *cobra.Command, args []string) error {
	filename, _ := cmd.Flags().GetString("file")
	if len(filename) == 0 {
		return fmt.Errorf("Filename is needed after -f")
	}
	duration, err := cmd.Flags().GetDuration("duration")
	if err != nil || duration <= 0 {
		return fmt.Errorf("Invalid duration flag")
	}
	th, err := thresholdsFromFlags(cmd)
	if err != nil {
		return err
	}
	asJSON, _ := cmd.Flags().GetBool("json")

	ep := probe.Endpoint{Name: filename}
	p := probe.NewWithTransport(ep, tlv.NewFileTransport(filename), probe.Config{Duration: duration, Thresholds: th})
	res := p.Run(context.Background())

	if err = printResult(cmd.OutOrStdout(), res, asJSON); err != nil {
		return err
	}
	if res.Err != "" {
		return fmt.Errorf("Replaying failed. file=%s", filename)
	}
	return nil
}
