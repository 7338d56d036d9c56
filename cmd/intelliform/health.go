package main

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/ashureev/intelliform/internal/backend"
)

// healthCmd probes the backend once.
var healthCmd = &cobra.Command{
	Use:   "health",
	Short: "Probe the assistant backend once",
	Long: `Calls the backend health endpoint and prints the active session count
and verified form types. Exits with status 1 when the backend is unreachable.`,
	RunE: runHealth,
}

type healthProber interface {
	Health(ctx context.Context) (*backend.HealthResponse, error)
}

func runHealth(cmd *cobra.Command, _ []string) error {
	client, err := newClient()
	if err != nil {
		return err
	}
	return probeHealth(cmd.Context(), client, backendURL, cmd.OutOrStdout())
}

func probeHealth(ctx context.Context, p healthProber, target string, out io.Writer) error {
	resp, err := p.Health(ctx)
	if err != nil {
		return fmt.Errorf("backend %s unreachable: %w", target, err)
	}
	fmt.Fprintf(out, "backend %s is up\n", target)
	fmt.Fprintf(out, "  active sessions: %d\n", resp.Sessions)
	if len(resp.VerifiedForms) > 0 {
		fmt.Fprintf(out, "  verified forms:  %s\n", strings.Join(resp.VerifiedForms, ", "))
	}
	return nil
}
