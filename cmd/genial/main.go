// Copyright (C) 2025 Genial AI (dev@genial.health)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Command genial is the terminal client for the Genial medical
// information assistant. It talks to the Genial backend (or the relay
// in front of it), streams assistant turns live, and keeps the
// conversation resumable across restarts.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/genial-ai/genial-go/pkg/logging"
)

var (
	cfg    Config
	logger *logging.Logger
)

var rootCmd = &cobra.Command{
	Use:           "genial",
	Short:         "Chat with the Genial medical information assistant",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = LoadConfig()
		if err != nil {
			return err
		}
		// Keep stderr clean for the conversation itself; operational
		// logs go to the log directory.
		logger = logging.New(logging.Config{
			Level:   logging.ParseLevel(cfg.LogLevel),
			LogDir:  cfg.LogDir,
			Service: "genial",
			Quiet:   true,
		})
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			logger.Close()
		}
	},
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.AddCommand(newChatCmd())
	rootCmd.AddCommand(newLoginCmd())
	rootCmd.AddCommand(newLogoutCmd())
	rootCmd.AddCommand(newWhoamiCmd())
	rootCmd.AddCommand(newConditionsCmd())
	rootCmd.AddCommand(newReportCmd())
	rootCmd.AddCommand(newSessionCmd())
}
