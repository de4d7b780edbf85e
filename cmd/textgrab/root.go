package main

import (
	"github.com/spf13/cobra"

	"github.com/textgrab/textgrab/internal/otel"
)

// Version is injected at build time via -ldflags.
var Version = "dev"

func newRootCmd() *cobra.Command {
	otel.Version = Version

	root := &cobra.Command{
		Use:   "textgrab",
		Short: "Capture on-screen text from uncooperative Windows processes",
		Long: `textgrab attaches to a running game or visual-novel process and captures
the text it renders, even when the target offers no clipboard, logging or
accessibility support of its own.

Several capture channels run concurrently (a TCP ingest socket, focused-
element polling, OS accessibility events, and an optional in-process
instrumentation agent); their overlapping observations are stitched and
deduplicated into a single ordered text stream.`,
		SilenceErrors: true,
		SilenceUsage:  true,
	}

	root.AddCommand(newCaptureCmd())
	root.AddCommand(newWatchCmd())
	root.AddCommand(newProcessesCmd())
	root.AddCommand(newVersionCmd())

	return root
}
