package main

import (
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/textgrab/textgrab/internal/proc"
)

func newProcessesCmd() *cobra.Command {
	var asJSON bool
	var filter string

	cmd := &cobra.Command{
		Use:   "processes",
		Short: "List candidate target processes",
		RunE: func(cmd *cobra.Command, args []string) error {
			procs, err := proc.List()
			if filter != "" {
				procs, err = proc.FindByName(filter)
			}
			if err != nil {
				return err
			}

			if asJSON {
				enc := json.NewEncoder(os.Stdout)
				for _, p := range procs {
					if err := enc.Encode(p); err != nil {
						return err
					}
				}
				return nil
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "PID\tBITS\tNAME\tEXE")
			for _, p := range procs {
				fmt.Fprintf(w, "%d\t%s\t%s\t%s\n", p.PID, p.Bits, p.Name, p.Exe)
			}
			return w.Flush()
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "output one JSON object per line")
	cmd.Flags().StringVar(&filter, "filter", "", "only list processes whose name contains this string")
	return cmd
}
