package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/charmbracelet/lipgloss"
	"github.com/google/uuid"
	"github.com/programme-lv/pagesforge/conf"
	"github.com/programme-lv/pagesforge/course"
	"github.com/programme-lv/pagesforge/evalqueue"
	"github.com/programme-lv/pagesforge/evaluator"
	"github.com/spf13/cobra"
)

func newEvaluateCmd() *cobra.Command {
	var submID string
	var reeval bool
	var listen bool
	var parallel int

	var evaluateCmd = &cobra.Command{
		Use:   "evaluate",
		Short: "Evaluate submissions",
		Long: "Evaluates every pending or notified submission, a single submission " +
			"with --subm, or jobs from the evaluation queue with --listen.",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cfg, err := conf.LoadInstructor()
			if err != nil {
				return err
			}
			store, closeStore, err := openStore(ctx)
			if err != nil {
				return err
			}
			defer closeStore()

			ev, release, err := evaluator.NewFromConfig(ctx, cfg, store)
			if err != nil {
				return err
			}
			defer release()

			switch {
			case listen:
				return listenQueue(ctx, cfg, ev)
			case submID != "":
				id, err := uuid.Parse(submID)
				if err != nil {
					return fmt.Errorf("invalid submission uuid: %w", err)
				}
				res, err := ev.Evaluate(ctx, id, reeval)
				if errors.Is(err, evaluator.ErrAlreadyEvaluated) {
					fmt.Println("submission is already evaluated, pass --reeval to evaluate it again")
					return nil
				}
				if err != nil {
					return err
				}
				printResult(res)
				return nil
			default:
				report, err := ev.RunBatch(ctx, evaluator.BatchOptions{Reeval: reeval, Parallel: parallel})
				if err != nil {
					return err
				}
				for _, res := range report.Evaluated {
					printResult(res)
				}
				fmt.Printf("%d evaluated, %d skipped, %d failed\n",
					len(report.Evaluated), len(report.Skipped), len(report.Failed))
				for id, err := range report.Failed {
					fmt.Printf("  %s: %v\n", id, err)
				}
				if len(report.Failed) > 0 {
					return fmt.Errorf("%d evaluations failed", len(report.Failed))
				}
				return nil
			}
		},
	}

	evaluateCmd.Flags().StringVarP(&submID, "subm", "s", "", "Submission UUID to evaluate")
	evaluateCmd.Flags().BoolVar(&reeval, "reeval", false, "Evaluate already evaluated submissions again")
	evaluateCmd.Flags().BoolVar(&listen, "listen", false, "Consume jobs from the evaluation queue until interrupted")
	evaluateCmd.Flags().IntVarP(&parallel, "parallel", "p", 2, "Submissions evaluated at once in batch mode")
	evaluateCmd.MarkFlagsMutuallyExclusive("subm", "listen")
	return evaluateCmd
}

func listenQueue(ctx context.Context, cfg conf.Instructor, ev *evaluator.Evaluator) error {
	if cfg.EvalSqsURL == "" {
		return fmt.Errorf("EVAL_SQS_URL is not set")
	}
	awsCfg, err := config.LoadDefaultConfig(ctx, config.WithRegion(cfg.AWS.Region))
	if err != nil {
		return fmt.Errorf("load aws config: %w", err)
	}
	queue := evalqueue.NewSqsQueue(sqs.NewFromConfig(awsCfg), cfg.EvalSqsURL)

	slog.Info("listening for evaluation jobs", "queue", cfg.EvalSqsURL)
	err = evalqueue.Consume(ctx, queue, func(ctx context.Context, job evalqueue.Job) error {
		res, err := ev.Evaluate(ctx, job.SubmUUID, job.Reeval)
		switch {
		case errors.Is(err, evaluator.ErrAlreadyEvaluated):
			slog.Info("skipping evaluated submission", "subm_uuid", job.SubmUUID)
			return nil
		case errors.Is(err, evaluator.ErrSubmNotFound):
			slog.Warn("dropping job for unknown submission", "subm_uuid", job.SubmUUID)
			return nil
		case err != nil:
			return err
		}
		slog.Info("evaluated submission",
			"subm_uuid", job.SubmUUID, "attempt", res.Attempt, "aggregate", res.Aggregate)
		return nil
	})
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

var (
	passStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#2ecc71"))
	failStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#e74c3c"))
	headStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#3498db")).Bold(true)
)

func printResult(res *course.EvaluationResult) {
	fmt.Println(headStyle.Render(fmt.Sprintf("%s attempt %d: %.2f", res.SubmUUID, res.Attempt, res.Aggregate)))
	for _, c := range res.Checks {
		mark := passStyle.Render("pass")
		if !c.Passed {
			mark = failStyle.Render("fail")
		}
		fmt.Printf("  %s %-10s %s: %s\n", mark, c.Kind, c.Name, c.Reason)
	}
}
