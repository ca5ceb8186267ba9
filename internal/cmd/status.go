package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/phoneixtaperlabs/shadow-screenshot/internal/grpcclient"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Ask a running server whether it is capturing",
	Args:  cobra.NoArgs,
	RunE:  runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, _ []string) error {
	client, err := grpcclient.New(cfg.GRPC.Addr)
	if err != nil {
		return err
	}
	defer func() { _ = client.Close() }()

	out := cmd.OutOrStdout()
	st, err := client.Status(cmd.Context())
	if err != nil {
		fmt.Fprintf(out, "server: unreachable at %s\n", cfg.GRPC.Addr)
		return err
	}

	capturing := "idle"
	if st.Capturing {
		capturing = "capturing"
	}
	fmt.Fprintf(out, "server: up at %s\ncapture: %s\n", cfg.GRPC.Addr, capturing)
	return nil
}
