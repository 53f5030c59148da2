package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/redwatchio/redwatch/internal/logging"
)

var cfgFile string

func main() {
	logging.Init()
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "redwatch",
		Short: "Track a Reddit account's karma, posts and comments over time",
	}

	root.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: ./config.yaml)")

	root.AddCommand(initCmd())
	root.AddCommand(monitorCmd())
	root.AddCommand(statsCmd())
	root.AddCommand(mergeCmd())
	root.AddCommand(serveCmd())

	return root
}

func initCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Create the database and apply the schema",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runInit()
		},
	}
}

func monitorCmd() *cobra.Command {
	var (
		interval string
		once     bool
	)

	cmd := &cobra.Command{
		Use:   "monitor [username...]",
		Short: "Poll accounts on a schedule and record observations",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMonitor(args, interval, once)
		},
	}

	cmd.Flags().StringVarP(&interval, "interval", "i", "", "check interval (default: from config)")
	cmd.Flags().BoolVarP(&once, "once", "o", false, "run a single cycle and exit")
	return cmd
}

func statsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stats <username>",
		Short: "Show tracked totals for an account",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStats(args[0])
		},
	}
}

func mergeCmd() *cobra.Command {
	var output string

	cmd := &cobra.Command{
		Use:   "merge <source.db> <target.db>",
		Short: "Merge one tracker database into another",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMerge(args[0], args[1], output)
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", "", "write the merged result to a new file instead of modifying target")
	return cmd
}

func serveCmd() *cobra.Command {
	var port int

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the read-only HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(port)
		},
	}

	cmd.Flags().IntVar(&port, "port", 0, "server port (default: from config)")
	return cmd
}
