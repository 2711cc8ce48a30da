package main

import (
	"github.com/homemade/hubble/sync"
	"github.com/spf13/cobra"
)

// checkCmd validates the config and probes the first endpoint.
var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Validate the config and test the connection",
	RunE: func(cmd *cobra.Command, _ []string) error {
		sc, err := syncContext()
		if err != nil {
			return emitter.ConnectionStatus(false, err.Error())
		}
		ok, message := sync.Check(cmd.Context(), sc)
		return emitter.ConnectionStatus(ok, message)
	},
}
