package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/yanet-platform/nlmon/monitor"
)

var neighCmdArgs struct {
	Routers bool
	Valid   bool
}

var neighCmd = &cobra.Command{
	Use:   "neigh",
	Short: "Print the kernel neighbour table",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runNeigh(cmd.Context())
	},
}

func init() {
	neighCmd.Flags().BoolVar(&neighCmdArgs.Routers, "routers", false, "Print only entries with the router flag")
	neighCmd.Flags().BoolVar(&neighCmdArgs.Valid, "valid", false, "Print only entries with a usable link-layer address")
}

func runNeigh(ctx context.Context) error {
	cfg, log, err := setup()
	if err != nil {
		return err
	}
	defer log.Sync()

	nl, err := monitor.New(cfg, monitor.WithLog(log))
	if err != nil {
		return fmt.Errorf("failed to initialize netlink client: %w", err)
	}

	entries, err := nl.NeighbourTable(ctx)
	if err != nil {
		// Still print what was received, but never pass it off as the
		// whole table.
		log.Errorw("neighbour table is incomplete",
			zap.Int("received", len(entries)),
			zap.Error(err),
		)
	}

	filter := neighbourFilter{
		RoutersOnly: neighCmdArgs.Routers,
		ValidOnly:   neighCmdArgs.Valid,
	}
	if err := writeNeighbours(os.Stdout, entries, filter); err != nil {
		return err
	}

	return err
}

type neighbourFilter struct {
	RoutersOnly bool
	ValidOnly   bool
}

func (m neighbourFilter) Match(entry monitor.NeighbourEntry) bool {
	if m.RoutersOnly && !entry.Router {
		return false
	}
	if m.ValidOnly && !entry.State.Valid() {
		return false
	}
	return true
}

func writeNeighbours(w io.Writer, entries []monitor.NeighbourEntry, filter neighbourFilter) error {
	tw := tabwriter.NewWriter(w, 0, 8, 2, ' ', 0)

	fmt.Fprintln(tw, "IP\tMAC\tDEV\tSTATE\tFLAGS")
	for _, entry := range entries {
		if !filter.Match(entry) {
			continue
		}

		ip := "-"
		if entry.IP.IsValid() {
			ip = entry.IP.String()
		}

		fmt.Fprintf(tw, "%s\t%s\t%d\t%s\t%s\n",
			ip,
			entry.HardwareAddr,
			entry.LinkIndex,
			entry.State,
			neighbourFlags(entry),
		)
	}

	return tw.Flush()
}

func neighbourFlags(entry monitor.NeighbourEntry) string {
	flags := make([]string, 0, 2)
	if entry.Router {
		flags = append(flags, "router")
	}
	if entry.Deleted {
		flags = append(flags, "deleted")
	}
	if len(flags) == 0 {
		return "-"
	}
	return strings.Join(flags, ",")
}
