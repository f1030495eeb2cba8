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

func newReportCmd() *cobra.Command {
	var output string

	cmd := &cobra.Command{
		Use:   "report",
		Short: "Generate the full medical report for the current conversation",
		Long: `Asks the backend to render the full report: a plain-language summary
for you, a clinical summary for your healthcare provider, and the
collected findings. Written as Markdown to --output, or printed.`,
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

			generated, err := client.GenerateReport(cmd.Context(), sessionID)
			if errors.Is(err, api.ErrUnauthorized) {
				fmt.Println("Not signed in. Run `genial login`.")
				return nil
			}
			if err != nil {
				return err
			}

			markdown := reportMarkdown(&GeneratedReportView{
				PatientSummary:  generated.PatientSummary,
				ClinicalSummary: generated.ClinicalSummary,
				Evidences:       generated.Data.Evidences,
				Ranked:          generated.Ranked,
			})

			if output == "" {
				fmt.Print(markdown)
				return nil
			}
			if err := os.WriteFile(output, []byte(markdown), 0o600); err != nil {
				return fmt.Errorf("writing report: %w", err)
			}
			fmt.Printf("Report written to %s\n", output)
			return nil
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "", "write the report to a Markdown file")
	return cmd
}
