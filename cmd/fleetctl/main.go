// Command fleetctl dispatches jobs and inspects the queue tree from a
// terminal, using the same configuration as the API server.
package main

import (
	"os"
	"strings"

	"github.com/spf13/cobra"

	"renderfleet/internal/bootstrap"
	"renderfleet/internal/config"
	"renderfleet/internal/pkg/logger"
)

type app struct {
	root    string
	verbose bool

	rt *bootstrap.Runtime
}

func main() {
	rootCmd := newCommand(os.Getenv)
	cobra.CheckErr(rootCmd.Execute())
}

func newCommand(getenv func(string) string) *cobra.Command {
	a := &app{}

	cmds := &cobra.Command{
		Use:           "fleetctl",
		Short:         "Dispatch render jobs and inspect the fleet queue tree",
		SilenceUsage:  true,
		SilenceErrors: false,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.open(cmd, getenv)
		},
		PersistentPostRun: func(_ *cobra.Command, _ []string) {
			if a.rt != nil {
				a.rt.Close()
			}
		},
	}
	cmds.PersistentFlags().SortFlags = false
	cmds.PersistentFlags().StringVar(&a.root, "root", "", "queue tree root (overrides "+config.EnvRoot+")")
	cmds.PersistentFlags().BoolVarP(&a.verbose, "verbose", "v", false, "log to stderr")

	cmds.AddCommand(
		a.imageCommand(),
		a.videoCommand(),
		a.statusCommand(),
		a.outboxCommand(),
		a.imagesCommand(),
		a.manifestCommand(),
	)
	return cmds
}

func (a *app) open(cmd *cobra.Command, getenv func(string) string) error {
	env := getenv
	if strings.TrimSpace(a.root) != "" {
		env = func(k string) string {
			if k == config.EnvRoot {
				return a.root
			}
			return getenv(k)
		}
	}

	cfg, err := config.Load(env)
	if err != nil {
		return err
	}

	log := logger.NewDiscard()
	if a.verbose {
		log = logger.New(logger.Config{
			Level:       "debug",
			Format:      "text",
			Output:      cmd.ErrOrStderr(),
			ServiceName: "fleetctl",
		})
	}

	rt, err := bootstrap.Open(cmd.Context(), cfg, log)
	if err != nil {
		return err
	}
	a.rt = rt
	return nil
}
