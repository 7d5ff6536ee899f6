package cmd

import (
	"github.com/spf13/cobra"

	"github.com/JakeFAU/campus-kb/internal/server"
)

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve the question-answering endpoint",
		Long: `Starts the HTTP server, loads the corpus and vector index, and answers
POST /chatbot requests until interrupted. The process exits if the corpus or
a matching index cannot be loaded.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			svc, err := resolveServices(cmd.Context())
			if err != nil {
				return err
			}
			return server.Run(cmd.Context(), svc)
		},
	}
}
