// Command poolctl is the CLI for the pool's control surface (SPEC_FULL §3
// "CLI"), grounded on the teacher's cmd/provisr command tree: one
// cobra.Command per verb, a shared HTTP client.
package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/procpool/procpool/pkg/client"
)

// GlobalFlags holds flags shared by every client-facing subcommand.
type GlobalFlags struct {
	APIUrl     string
	AuthToken  string
	APITimeout time.Duration
}

func (g *GlobalFlags) newClient() *client.Client {
	return client.New(client.Config{
		BaseURL:   g.APIUrl,
		AuthToken: g.AuthToken,
		Timeout:   g.APITimeout,
	})
}

func main() {
	root := buildRoot()
	if err := root.Execute(); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func buildRoot() *cobra.Command {
	flags := &GlobalFlags{}

	root := &cobra.Command{
		Use:   "poolctl",
		Short: "Control and inspect a procpool daemon",
		Long: `poolctl talks to a running poolctl serve instance over HTTP to inspect
and manage its application process pool.

Examples:
  poolctl serve pool.toml
  poolctl status
  poolctl inspect --secrets
  poolctl detach-process --gupid=abc123
  poolctl set-max --max=12`,
	}

	root.PersistentFlags().StringVar(&flags.APIUrl, "api-url", "http://localhost:8080", "poolctl daemon URL")
	root.PersistentFlags().StringVar(&flags.AuthToken, "auth-token", "", "bearer token for the daemon's control API")
	root.PersistentFlags().DurationVar(&flags.APITimeout, "api-timeout", 10*time.Second, "request timeout")

	root.AddCommand(
		newStatusCommand(flags),
		newInspectCommand(flags),
		newDetachProcessCommand(flags),
		newDisableProcessCommand(flags),
		newDetachSupergroupCommand(flags),
		newRestartCommand(flags),
		newSetMaxCommand(flags),
		newServeCommand(),
		newInitCommand(),
	)
	return root
}
