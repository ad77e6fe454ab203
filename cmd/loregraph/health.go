package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var healthCmd = &cobra.Command{
	Use:   "health",
	Short: "Check the connection to both stores",
	RunE: func(cmd *cobra.Command, args []string) error {
		l, _, err := open(cmd.Context())
		if err != nil {
			return err
		}
		defer l.Close(cmd.Context())

		status := l.HealthCheck(cmd.Context())
		healthy := true
		for _, store := range []string{"postgres", "neo4j"} {
			ok := status[store]
			fmt.Fprintf(cmd.OutOrStdout(), "%s: %v\n", store, ok)
			healthy = healthy && ok
		}
		if !healthy {
			return fmt.Errorf("unhealthy store")
		}
		return nil
	},
}
