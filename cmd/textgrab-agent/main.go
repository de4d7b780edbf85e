// textgrab-agent is the helper half of textgrab: a small binary, built for
// each target pointer width, that observes one process and streams what it
// sees to the capture process's ingest socket. The main binary spawns it
// when the target's width does not match its own; it can also be run by
// hand for debugging.
package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/spf13/cobra"
	"pkt.systems/psi"
	"pkt.systems/pslog"

	"github.com/textgrab/textgrab/internal/channel"
	"github.com/textgrab/textgrab/internal/ingest"
	"github.com/textgrab/textgrab/internal/model"
	"github.com/textgrab/textgrab/internal/proc"
)

// Version is injected at build time via -ldflags.
var Version = "dev"

func main() {
	psi.Run(submain)
}

func submain(ctx context.Context) int {
	logger := pslog.LoggerFromEnv(
		pslog.WithEnvWriter(os.Stderr),
		pslog.WithEnvOptions(pslog.Options{Mode: pslog.ModeConsole}),
	)
	ctx = pslog.ContextWithLogger(ctx, logger)
	log.SetOutput(pslog.LogLogger(logger).Writer())
	log.SetFlags(0)

	root := newRootCmd()
	root.SetArgs(os.Args[1:])

	if err := root.ExecuteContext(ctx); err != nil {
		pslog.Ctx(ctx).With("err", err).Error("textgrab-agent failed")
		return 1
	}
	return 0
}

func newRootCmd() *cobra.Command {
	var (
		pid            uint32
		port           uint16
		host           string
		agent          string
		pollMS         uint
		preferHookOnly bool
	)

	root := &cobra.Command{
		Use:   "textgrab-agent",
		Short: "Width-matched capture helper that reports to a textgrab process",
		Long: fmt.Sprintf(`textgrab-agent observes one target process and forwards everything it
captures to the textgrab ingest socket as newline-delimited protocol lines.

This build is %s. Spawn the build whose width matches the target.`, proc.HostBits()),
		SilenceErrors: true,
		SilenceUsage:  true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if pid == 0 {
				return fmt.Errorf("--pid is required")
			}
			return run(cmd.Context(), runConfig{
				pid:            pid,
				port:           port,
				host:           host,
				agentPath:      agent,
				pollMS:         pollMS,
				preferHookOnly: preferHookOnly,
			})
		},
	}

	root.Flags().Uint32Var(&pid, "pid", 0, "target process id (required)")
	root.Flags().Uint16Var(&port, "port", 37123, "textgrab ingest TCP port")
	root.Flags().StringVar(&host, "host", "127.0.0.1", "textgrab ingest host")
	root.Flags().StringVar(&agent, "agent", "", "engine-specific instrumentation agent executable")
	root.Flags().UintVar(&pollMS, "poll-ms", 200, "focused-element poll interval in milliseconds")
	root.Flags().BoolVar(&preferHookOnly, "prefer-hook-only", false, "run only the instrumentation channel")
	root.AddCommand(newVersionCmd())
	return root
}

type runConfig struct {
	pid            uint32
	port           uint16
	host           string
	agentPath      string
	pollMS         uint
	preferHookOnly bool
}

func run(ctx context.Context, rc runConfig) error {
	log := pslog.Ctx(ctx).With("pid", rc.pid)

	client := ingest.NewClient(rc.host, rc.port, rc.pid)
	defer client.Close()

	// Self-report so the capture side can log which helper it got.
	client.SendStatus(ctx, fmt.Sprintf("helper ready: %s build, target pid %d", proc.HostBits(), rc.pid))

	sink := channel.Sink{
		Text: func(_ model.ChannelKind, text, label string) {
			client.SendText(ctx, text, label)
		},
		Status: func(_ model.ChannelKind, message string) {
			client.SendStatus(ctx, message)
		},
	}

	var channels []channel.Channel
	if !rc.preferHookOnly {
		channels = append(channels,
			channel.NewAccessibility(rc.pid, msDuration(rc.pollMS), sink),
			channel.NewSysEvent(rc.pid, sink),
		)
	}
	if rc.agentPath != "" {
		channels = append(channels, channel.NewInstrumentation(rc.agentPath, rc.pid, rc.port, sink))
	}
	if len(channels) == 0 {
		return fmt.Errorf("no channels to run (use --agent or drop --prefer-hook-only)")
	}

	started := 0
	for _, ch := range channels {
		if err := ch.Start(ctx); err != nil {
			log.Warn("channel failed to start",
				"channel", string(ch.Kind()), "error", err.Error())
			client.SendStatus(ctx, fmt.Sprintf("helper channel %s failed: %v", ch.Kind(), err))
			continue
		}
		started++
		defer ch.Stop()
	}
	if started == 0 {
		return fmt.Errorf("every capture channel failed to start")
	}

	log.Info("helper capturing", "channels", started)
	<-ctx.Done()
	return nil
}

func msDuration(ms uint) time.Duration {
	return time.Duration(ms) * time.Millisecond
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the textgrab-agent version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("textgrab-agent %s (%s)\n", Version, proc.HostBits())
		},
	}
}
