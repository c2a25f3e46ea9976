package main

import (
	"context"
	"fmt"
	"os"

	"github.com/programme-lv/pagesforge/conf"
	"github.com/programme-lv/pagesforge/course"
	"github.com/programme-lv/pagesforge/dispatch"
	"github.com/spf13/cobra"
)

func newDispatchCmd() *cobra.Command {
	var parallel int

	var dispatchCmd = &cobra.Command{
		Use:   "dispatch",
		Short: "Send tasks to participant endpoints",
	}
	dispatchCmd.PersistentFlags().IntVarP(&parallel, "parallel", "p", 4, "Concurrent dispatch requests")

	var round1Cmd = &cobra.Command{
		Use:   "round1 <registrations.csv>",
		Short: "Register participants and send round 1 tasks",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := os.Open(args[0])
			if err != nil {
				return err
			}
			defer f.Close()
			regs, err := dispatch.ReadRegistrations(f)
			if err != nil {
				return fmt.Errorf("read %s: %w", args[0], err)
			}
			return withDispatcher(cmd.Context(), parallel, func(d *dispatch.Dispatcher) (dispatch.Report, error) {
				return d.Round1(cmd.Context(), regs)
			})
		},
	}

	var round2Cmd = &cobra.Command{
		Use:   "round2",
		Short: "Send round 2 tasks to participants with a round 1 submission",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withDispatcher(cmd.Context(), parallel, func(d *dispatch.Dispatcher) (dispatch.Report, error) {
				return d.Round2(cmd.Context())
			})
		},
	}

	dispatchCmd.AddCommand(round1Cmd, round2Cmd)
	return dispatchCmd
}

func withDispatcher(ctx context.Context, parallel int, run func(d *dispatch.Dispatcher) (dispatch.Report, error)) error {
	cfg, err := conf.LoadInstructor()
	if err != nil {
		return err
	}
	templates, err := course.LoadTemplates(cfg.TemplatesPath)
	if err != nil {
		return err
	}
	store, closeStore, err := openStore(ctx)
	if err != nil {
		return err
	}
	defer closeStore()

	d := dispatch.New(store, templates, dispatch.NewHttpSender(), cfg.EvaluationURL(), dispatch.WithParallel(parallel))
	report, err := run(d)
	fmt.Println(report.Table())
	if err != nil {
		return err
	}
	if len(report.Failed) > 0 {
		return fmt.Errorf("%d dispatches failed, re-run to retry them", len(report.Failed))
	}
	return nil
}
