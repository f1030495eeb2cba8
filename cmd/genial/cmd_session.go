// Copyright (C) 2025 Genial AI (dev@genial.health)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/genial-ai/genial-go/pkg/session"
)

func newSessionCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "session",
		Short: "Manage the conversation session",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Print the current session id",
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := session.NewIdentity(logger).Current()
			if err != nil {
				fmt.Println("No active session.")
				return nil
			}
			fmt.Println(id)
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "reset",
		Short: "Discard the current conversation",
		Long: `Forgets the session id. The next chat starts a new conversation; the
old one becomes unreachable.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := session.NewIdentity(logger).Clear(); err != nil {
				return err
			}
			fmt.Println("Session reset. The next chat starts fresh.")
			return nil
		},
	})

	return cmd
}
