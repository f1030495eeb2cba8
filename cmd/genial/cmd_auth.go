// Copyright (C) 2025 Genial AI (dev@genial.health)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"

	"github.com/genial-ai/genial-go/pkg/api"
	"github.com/genial-ai/genial-go/pkg/session"
)

func newLoginCmd() *cobra.Command {
	var username, password string

	cmd := &cobra.Command{
		Use:   "login",
		Short: "Sign in to the Genial backend",
		RunE: func(cmd *cobra.Command, args []string) error {
			creds := session.NewCredentials(logger)
			client := api.NewClient(api.Config{BaseURL: cfg.APIURL, Logger: logger})

			if username != "" && password != "" {
				return login(cmd.Context(), client, creds, os.Stdout, username, password)
			}
			return promptAndLogin(cmd.Context(), client, creds, os.Stdout)
		},
	}
	cmd.Flags().StringVarP(&username, "username", "u", "", "username (prompts when omitted)")
	cmd.Flags().StringVarP(&password, "password", "p", "", "password (prompts when omitted)")
	return cmd
}

func newLogoutCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Sign out and end the current session",
		RunE: func(cmd *cobra.Command, args []string) error {
			creds := session.NewCredentials(logger)
			client := api.NewClient(api.Config{
				BaseURL: cfg.APIURL,
				Token:   creds.Token,
				Logger:  logger,
			})

			// The backend call is a courtesy; the token dies client-side
			// either way.
			if err := client.Logout(cmd.Context()); err != nil {
				logger.Warn("backend logout failed", "error", err)
			}
			if err := creds.Purge(); err != nil {
				return err
			}
			// Ending the session also ends the conversation scope.
			if err := session.NewIdentity(logger).Clear(); err != nil {
				return err
			}
			fmt.Println("Signed out.")
			return nil
		},
	}
}

func newWhoamiCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Show the signed-in user",
		RunE: func(cmd *cobra.Command, args []string) error {
			creds := session.NewCredentials(logger)
			client := api.NewClient(api.Config{
				BaseURL: cfg.APIURL,
				Token:   creds.Token,
				Logger:  logger,
			})

			username, err := client.Me(cmd.Context())
			if errors.Is(err, api.ErrUnauthorized) || errors.Is(err, session.ErrNoCredential) {
				fmt.Println("Not signed in. Run `genial login`.")
				return nil
			}
			if err != nil {
				return err
			}
			fmt.Println(username)
			return nil
		},
	}
}

// promptAndLogin collects credentials interactively and signs in.
func promptAndLogin(ctx context.Context, client *api.Client, creds *session.Credentials, out io.Writer) error {
	var username, password string
	form := huh.NewForm(huh.NewGroup(
		huh.NewInput().
			Title("Username").
			Value(&username),
		huh.NewInput().
			Title("Password").
			EchoMode(huh.EchoModePassword).
			Value(&password),
	))
	if err := form.Run(); err != nil {
		return fmt.Errorf("login prompt: %w", err)
	}
	return login(ctx, client, creds, out, username, password)
}

// login exchanges credentials for a token and stores it.
func login(ctx context.Context, client *api.Client, creds *session.Credentials, out io.Writer, username, password string) error {
	result, err := client.Login(ctx, username, password)
	if err != nil {
		if errors.Is(err, api.ErrUnauthorized) {
			return errors.New("incorrect username or password")
		}
		return err
	}
	if result.AccessToken == "" {
		return errors.New("backend returned no access token")
	}
	if err := creds.Save(result.AccessToken); err != nil {
		return err
	}
	fmt.Fprintf(out, "Signed in as %s.\n", result.Username)
	return nil
}
