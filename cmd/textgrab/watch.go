package main

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/textgrab/textgrab/internal/orchestrator"
	"github.com/textgrab/textgrab/internal/otel"
	"github.com/textgrab/textgrab/internal/tui"
)

func newWatchCmd() *cobra.Command {
	flags := &captureFlags{}
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Capture text in an interactive terminal view",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, pid, opts, err := flags.resolve()
			if err != nil {
				return err
			}
			ctx := cmd.Context()

			tel, err := otel.Init(ctx, otel.OTELConfig{Endpoint: cfg.OTELEndpoint, Headers: cfg.OTELHeaders})
			if err != nil {
				return err
			}
			defer tel.Shutdown(context.Background())

			orch := orchestrator.New(cfg, tel.Metrics)
			if _, err := orch.Start(ctx, pid, opts); err != nil {
				return err
			}
			defer orch.Stop()

			view := &tui.TUI{Orchestrator: orch, PID: pid}
			return view.Run(ctx)
		},
	}
	flags.register(cmd)
	return cmd
}
