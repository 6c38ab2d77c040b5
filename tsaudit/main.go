package main

import (
	"fmt"
	"os"

	"github.com/eluv-io/log-go"
	"github.com/spf13/cobra"

	"github.com/eluv-io/tsaudit/tsaudit/cmd"
)

func main() {
	cmdRoot := &cobra.Command{
		Use:          "tsaudit",
		Short:        "MPEG-TS multicast stream auditor",
		Long:         "",
		SilenceUsage: true,
	}

	log.SetDefault(&log.Config{
		Level:   "info",
		Handler: "text",
		File: &log.LumberjackConfig{
			Filename:  "tsaudit.log",
			LocalTime: true,
		},
	})

	log.Info("Starting tsaudit", "version", cmd.Version)

	for _, initCmd := range []func(*cobra.Command) error{
		cmd.InitProbe,
		cmd.InitWatch,
		cmd.InitPcap,
		cmd.InitRecord,
		cmd.InitReplay,
		cmd.InitVersion,
	} {
		if err := initCmd(cmdRoot); err != nil {
			fmt.Println(err)
			os.Exit(1)
		}
	}

	err := cmdRoot.Execute()
	if err != nil {
		fmt.Printf("Command failed\n")
		os.Exit(1)
	}
}
