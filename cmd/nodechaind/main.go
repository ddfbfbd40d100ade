// Command nodechaind is the node's process entrypoint (spec.md §6 "CLI /
// process surface of the core"), grounded on cmd/synnergy's cobra-based
// command tree.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"nodechain/pipeline"
	"nodechain/pkg/config"
	"nodechain/xtypes"
)

func main() {
	rootCmd := &cobra.Command{Use: "nodechaind"}
	rootCmd.AddCommand(startCmd())
	rootCmd.AddCommand(statusCmd())
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// startCmd opens the node against its configured data directory and
// reports its status once, standing in for the surrounding daemon's
// long-running push_block/push_transaction servicing loop (spec.md §6
// "the surrounding daemon is an external collaborator").
func startCmd() *cobra.Command {
	var env string
	cmd := &cobra.Command{
		Use:   "start",
		Short: "open the node's data directory and report its status",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(env)
			if err != nil {
				return err
			}
			p, err := pipeline.Open(cfg.Node.DataDir, cfg.ChainConfig(xtypes.Now()))
			if err != nil {
				return err
			}
			defer p.Close()
			p.SetSkipFlags(cfg.SkipFlags())

			status := p.Status()
			fmt.Printf("data_dir=%s head=%d last_irreversible=%d\n",
				cfg.Node.DataDir, status.HeadBlockNumber, status.LastIrreversibleBlockNumber)
			return nil
		},
	}
	cmd.Flags().StringVar(&env, "env", "", "environment-specific config overlay to merge")
	return cmd
}

func statusCmd() *cobra.Command {
	var env string
	cmd := &cobra.Command{
		Use:   "status",
		Short: "print the node's head and last-irreversible block",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(env)
			if err != nil {
				return err
			}
			p, err := pipeline.Open(cfg.Node.DataDir, cfg.ChainConfig(xtypes.Now()))
			if err != nil {
				return err
			}
			defer p.Close()

			status := p.Status()
			fmt.Printf("head=%d (%s) last_irreversible=%d\n",
				status.HeadBlockNumber, status.HeadBlockID.Hex(), status.LastIrreversibleBlockNumber)
			return nil
		},
	}
	cmd.Flags().StringVar(&env, "env", "", "environment-specific config overlay to merge")
	return cmd
}
