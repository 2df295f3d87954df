package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"renderfleet/internal/dispatch"
)

func (a *app) imageCommand() *cobra.Command {
	var worker, job, prompt string

	cmd := &cobra.Command{
		Use:   "image",
		Short: "Dispatch an image job to a worker's inbox",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			receipt, err := a.rt.Op.DispatchImageJob(cmd.Context(), worker, job, prompt)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), receipt.Message)
			return nil
		},
	}
	cmd.Flags().StringVarP(&worker, "worker", "w", "", "target worker ID")
	cmd.Flags().StringVar(&job, "job", "", "job ID (generated when empty)")
	cmd.Flags().StringVarP(&prompt, "prompt", "p", "", "generation prompt")
	_ = cmd.MarkFlagRequired("worker")
	return cmd
}

// taskSpec is one entry of a --tasks file. The file may be YAML or JSON.
type taskSpec struct {
	Path   string `yaml:"path"`
	Name   string `yaml:"name"`
	Prompt string `yaml:"prompt"`
}

func loadTasks(path string) ([]taskSpec, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var specs []taskSpec
	if err := yaml.Unmarshal(data, &specs); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return specs, nil
}

func (a *app) videoCommand() *cobra.Command {
	var worker, job, tasksFile, prompt string

	cmd := &cobra.Command{
		Use:   "video [asset...]",
		Short: "Dispatch a video job: copy assets, write prompts.json, then READY",
		Long: "Assets come from --tasks (a YAML or JSON list of {path, name, prompt})\n" +
			"and/or positional paths, which all share --prompt and keep their base name.",
		RunE: func(cmd *cobra.Command, args []string) error {
			var tasks []dispatch.Task
			if tasksFile != "" {
				specs, err := loadTasks(tasksFile)
				if err != nil {
					return err
				}
				for _, s := range specs {
					tasks = append(tasks, dispatch.Task{SourcePath: s.Path, AssetName: s.Name, Prompt: s.Prompt})
				}
			}
			for _, p := range args {
				tasks = append(tasks, dispatch.Task{SourcePath: p, Prompt: prompt})
			}

			receipt, err := a.rt.Op.DispatchVideoJob(cmd.Context(), worker, job, tasks)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), receipt.Message)
			return nil
		},
	}
	cmd.Flags().StringVarP(&worker, "worker", "w", "", "target worker ID")
	cmd.Flags().StringVar(&job, "job", "", "job ID (generated when empty)")
	cmd.Flags().StringVar(&tasksFile, "tasks", "", "YAML or JSON task list")
	cmd.Flags().StringVarP(&prompt, "prompt", "p", "", "prompt for positional assets")
	_ = cmd.MarkFlagRequired("worker")
	return cmd
}

func (a *app) statusCommand() *cobra.Command {
	var detailed bool
	var staleAfter time.Duration

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Print worker heartbeats",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			out := cmd.OutOrStdout()
			if !detailed && staleAfter == 0 {
				status, err := a.rt.Op.FleetStatus(cmd.Context())
				if err != nil {
					return err
				}
				for _, s := range status {
					fmt.Fprintln(out, s)
				}
				return nil
			}

			hbs, err := a.rt.Op.Heartbeats(cmd.Context(), staleAfter)
			if err != nil {
				return err
			}
			for _, hb := range hbs {
				state := hb.Status
				if state == "" {
					state = "-"
				}
				if hb.Stale {
					state += " (stale)"
				}
				fmt.Fprintf(out, "%s\t%s\t%s\t%s\n", hb.Name, state, hb.ModifiedAt.Format(time.RFC3339), hb.Raw)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&detailed, "detailed", false, "show name, status and modification time")
	cmd.Flags().DurationVar(&staleAfter, "stale-after", 0, "flag heartbeats older than this")
	return cmd
}

func (a *app) outboxCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "outbox",
		Short: "List finished image batches",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			jobs, err := a.rt.Op.OutboxJobs(cmd.Context())
			if err != nil {
				return err
			}
			for _, j := range jobs {
				fmt.Fprintln(cmd.OutOrStdout(), j)
			}
			return nil
		},
	}
}

func (a *app) imagesCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "images JOB",
		Short: "List the images of one outbox batch",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			images, err := a.rt.Op.JobImages(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			for _, img := range images {
				fmt.Fprintln(cmd.OutOrStdout(), img)
			}
			return nil
		},
	}
}

func (a *app) manifestCommand() *cobra.Command {
	var worker string

	cmd := &cobra.Command{
		Use:   "manifest JOB",
		Short: "Print the prompts.json of a dispatched video job",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := a.rt.Op.Manifest(cmd.Context(), worker, args[0])
			if err != nil {
				return err
			}
			data, err := m.Encode()
			if err != nil {
				return err
			}
			_, err = cmd.OutOrStdout().Write(data)
			return err
		},
	}
	cmd.Flags().StringVarP(&worker, "worker", "w", "", "worker ID")
	_ = cmd.MarkFlagRequired("worker")
	return cmd
}
