package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/agent-brain/agentbrain/internal/apperrors"
	"github.com/agent-brain/agentbrain/internal/jobqueue"
	"github.com/agent-brain/agentbrain/internal/output"
)

func newJobsCmd() *cobra.Command {
	var watch bool
	var cancel bool

	cmd := &cobra.Command{
		Use:   "jobs [job_id]",
		Short: "List or inspect ingestion jobs",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var jobID string
			if len(args) == 1 {
				jobID = args[0]
			}
			return runJobs(cmd, jobID, watch, cancel)
		},
	}
	cmd.Flags().BoolVar(&watch, "watch", false, "poll a single job until it reaches a terminal state")
	cmd.Flags().BoolVar(&cancel, "cancel", false, "request cancellation of the given job")
	return cmd
}

func runJobs(cmd *cobra.Command, jobID string, watch, cancel bool) error {
	out := output.New(cmd.OutOrStdout())
	ctx := cmd.Context()

	state, err := resolveRunning(ctx, ".")
	if err != nil {
		return err
	}

	if cancel {
		if jobID == "" {
			return apperrors.New(apperrors.KindInvalidArgument, "--cancel requires a job_id")
		}
		if err := apiCall(ctx, state.BaseURL, "POST", "/jobs/"+jobID+"/cancel", nil, nil); err != nil {
			return err
		}
		out.Success(fmt.Sprintf("cancellation requested for %s", jobID))
		return nil
	}

	if jobID == "" {
		var list []jobqueue.Job
		if err := apiCall(ctx, state.BaseURL, "GET", "/jobs", nil, &list); err != nil {
			return err
		}
		if len(list) == 0 {
			out.Status("", "no jobs")
			return nil
		}
		for _, j := range list {
			out.Status("", fmt.Sprintf("%s  %-10s %.0f%%  %s", j.ID, j.Status, j.Progress*100, j.Request.FolderPath))
		}
		return nil
	}

	if watch {
		return watchJob(ctx, out, state.BaseURL, jobID)
	}
	var job jobqueue.Job
	if err := apiCall(ctx, state.BaseURL, "GET", "/jobs/"+jobID, nil, &job); err != nil {
		return err
	}
	printJob(out, job)
	return nil
}

func watchJob(ctx context.Context, out *output.Writer, baseURL, jobID string) error {
	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()

	for {
		var job jobqueue.Job
		if err := apiCall(ctx, baseURL, "GET", "/jobs/"+jobID, nil, &job); err != nil {
			return err
		}
		out.Progress(int(job.Progress*100), 100, string(job.Status))
		if job.Status.IsTerminal() {
			out.ProgressDone()
			printJob(out, job)
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func printJob(out *output.Writer, j jobqueue.Job) {
	out.Status("", fmt.Sprintf("job %s: %s", j.ID, j.Status))
	if j.Error != "" {
		out.Error(j.Error)
	}
}
