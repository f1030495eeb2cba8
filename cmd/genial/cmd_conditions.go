// Copyright (C) 2025 Genial AI (dev@genial.health)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/genial-ai/genial-go/pkg/api"
	"github.com/genial-ai/genial-go/pkg/session"
)

func newConditionsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "conditions",
		Short: "Show the possible conditions for the current conversation",
		RunE: func(cmd *cobra.Command, args []string) error {
			creds := session.NewCredentials(logger)
			client := api.NewClient(api.Config{
				BaseURL: cfg.APIURL,
				Token:   creds.Token,
				Logger:  logger,
			})

			sessionID, err := session.NewIdentity(logger).Current()
			if err != nil {
				fmt.Println("No active conversation. Run `genial chat` first.")
				return nil
			}

			snapshot, err := client.FetchSession(cmd.Context(), sessionID)
			if errors.Is(err, api.ErrUnauthorized) {
				fmt.Println("Not signed in. Run `genial login`.")
				return nil
			}
			if err != nil {
				return err
			}

			renderConditions(os.Stdout, snapshot.Ranked)
			return nil
		},
	}
}
