package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"pkt.systems/pslog"

	"github.com/textgrab/textgrab/internal/config"
	"github.com/textgrab/textgrab/internal/model"
	"github.com/textgrab/textgrab/internal/orchestrator"
	"github.com/textgrab/textgrab/internal/otel"
	"github.com/textgrab/textgrab/internal/proc"
)

// captureFlags are shared by capture and watch.
type captureFlags struct {
	pid            uint32
	name           string
	agent          string
	channels       []string
	port           uint16
	preferHookOnly bool
	asDelegate     bool
}

func (f *captureFlags) register(cmd *cobra.Command) {
	cmd.Flags().Uint32Var(&f.pid, "pid", 0, "target process id")
	cmd.Flags().StringVar(&f.name, "name", "", "target process name (used when --pid is not given)")
	cmd.Flags().StringVar(&f.agent, "agent", "", "engine-specific instrumentation agent executable")
	cmd.Flags().StringSliceVar(&f.channels, "channels", nil, "capture channels to run: socket, accessibility, system_event, instrumentation (default: all)")
	cmd.Flags().Uint16Var(&f.port, "port", 0, "ingest TCP port (default from config, 37123)")
	cmd.Flags().BoolVar(&f.preferHookOnly, "prefer-hook-only", false, "suppress accessibility and event text once instrumentation is hooked")
	cmd.Flags().BoolVar(&f.asDelegate, "as-delegate", false, "mark this process as a spawned helper")
	_ = cmd.Flags().MarkHidden("as-delegate")
}

// resolve loads config, applies flag overrides and resolves the target pid.
func (f *captureFlags) resolve() (*config.Config, uint32, model.SessionOptions, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, 0, model.SessionOptions{}, err
	}
	if f.port != 0 {
		cfg.Port = f.port
	}
	if f.agent != "" {
		cfg.AgentPath = f.agent
	}

	pid := f.pid
	if pid == 0 && f.name != "" {
		matches, err := proc.FindByName(f.name)
		if err != nil {
			return nil, 0, model.SessionOptions{}, fmt.Errorf("find process %q: %w", f.name, err)
		}
		switch len(matches) {
		case 0:
			return nil, 0, model.SessionOptions{}, fmt.Errorf("no process matching %q", f.name)
		case 1:
			pid = matches[0].PID
		default:
			for _, p := range matches {
				fmt.Fprintf(os.Stderr, "  %d\t%s\n", p.PID, p.Name)
			}
			return nil, 0, model.SessionOptions{}, fmt.Errorf("%d processes match %q, pick one with --pid", len(matches), f.name)
		}
	}
	if pid == 0 {
		return nil, 0, model.SessionOptions{}, fmt.Errorf("either --pid or --name is required")
	}

	opts := model.SessionOptions{
		PreferInstrumentationOnly: f.preferHookOnly,
		AgentPath:                 cfg.AgentPath,
		RunningAsDelegate:         f.asDelegate,
	}
	chans := f.channels
	if len(chans) == 0 {
		chans = cfg.Channels
	}
	for _, c := range chans {
		kind, err := model.ParseChannelKind(c)
		if err != nil {
			return nil, 0, model.SessionOptions{}, err
		}
		opts.Channels = append(opts.Channels, kind)
	}
	return cfg, pid, opts, nil
}

func newCaptureCmd() *cobra.Command {
	flags := &captureFlags{}
	cmd := &cobra.Command{
		Use:   "capture",
		Short: "Capture text and print it as JSON lines",
		Long: `Capture runs a session against the target process and writes every text
and status event to stdout as one JSON object per line, until interrupted.`,
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
			arch, err := orch.Start(ctx, pid, opts)
			if err != nil {
				return err
			}
			defer orch.Stop()
			pslog.Ctx(ctx).Info("capturing",
				"pid", pid,
				"target_bits", arch.TargetBits.String(),
				"host_bits", arch.HostBits.String())

			enc := json.NewEncoder(os.Stdout)
			for {
				select {
				case <-ctx.Done():
					return nil
				case ev := <-orch.Events():
					if ev.SessionID != orch.SessionID() {
						continue
					}
					if err := enc.Encode(ev); err != nil {
						return fmt.Errorf("write event: %w", err)
					}
				}
			}
		},
	}
	flags.register(cmd)
	return cmd
}
