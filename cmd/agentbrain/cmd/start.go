package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/agent-brain/agentbrain/internal/apperrors"
	"github.com/agent-brain/agentbrain/internal/health"
	"github.com/agent-brain/agentbrain/internal/lifecycle"
	"github.com/agent-brain/agentbrain/internal/output"
	"github.com/agent-brain/agentbrain/internal/rendezvous"
)

func newStartCmd() *cobra.Command {
	var mode string

	cmd := &cobra.Command{
		Use:   "start",
		Short: "Start the retrieval service for this project",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStart(cmd, mode)
		},
	}
	cmd.Flags().StringVar(&mode, "mode", "project", "instance mode: project or shared")
	return cmd
}

func runStart(cmd *cobra.Command, mode string) error {
	if mode != string(rendezvous.ModeProject) && mode != string(rendezvous.ModeShared) {
		return apperrors.New(apperrors.KindInvalidArgument, fmt.Sprintf("invalid --mode %q: must be project or shared", mode))
	}

	out := output.New(cmd.OutOrStdout())
	ctx := cmd.Context()

	st, err := buildStack(ctx, ".", health.Identity{Mode: mode})
	if err != nil {
		return apperrors.Wrap(apperrors.KindInternal, err, "build component stack")
	}

	server := st.httpServer()

	controller, err := lifecycle.Start(ctx, ".", lifecycle.Options{
		Host:    st.cfg.Server.Host,
		Port:    st.cfg.Server.Port,
		Mode:    rendezvous.Mode(mode),
		Handler: server.Router(),
	})
	if err != nil {
		_ = st.Close()
		if errors.Is(err, lifecycle.ErrAnotherInstanceStarting) {
			return apperrors.Wrap(apperrors.KindConflict, err, "start instance")
		}
		return apperrors.Wrap(apperrors.KindInternal, err, "start lifecycle controller")
	}
	server.ShutdownFunc = controller.Shutdown
	st.health.SetIdentity(health.Identity{
		Mode:       mode,
		InstanceID: controller.InstanceID(),
		BaseURL:    controller.BaseURL(),
		Port:       controller.Port(),
	})

	out.Success(fmt.Sprintf("agent-brain started at %s", controller.BaseURL()))
	out.Status("", fmt.Sprintf("instance: %s", controller.InstanceID()))
	out.Status("", fmt.Sprintf("project root: %s", controller.ProjectRoot()))

	workerCtx, cancelWorker := context.WithCancel(context.Background())
	go runWorker(workerCtx, st.queue, st.orchestrator)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	out.Status("", "shutting down...")
	cancelWorker()
	shutdownErr := controller.Shutdown(context.Background())
	closeErr := st.Close()
	if shutdownErr != nil {
		return apperrors.Wrap(apperrors.KindInternal, shutdownErr, "graceful shutdown")
	}
	return closeErr
}
