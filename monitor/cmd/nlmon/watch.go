package main

import (
	"context"
	"fmt"
	"maps"
	"net"
	"slices"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/yanet-platform/nlmon/common/go/xcmd"
	"github.com/yanet-platform/nlmon/monitor"
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Log link status and hardware address changes until interrupted",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runWatch(cmd.Context())
	},
}

func runWatch(ctx context.Context) error {
	cfg, log, err := setup()
	if err != nil {
		return err
	}
	defer log.Sync()

	nl, err := monitor.New(cfg, monitor.WithLog(log))
	if err != nil {
		return fmt.Errorf("failed to initialize netlink client: %w", err)
	}

	nl.RegisterStatusCallback(func(name string, prev monitor.LinkStatus, cur monitor.LinkStatus) {
		log.Infow("link status changed",
			zap.String("name", name),
			zap.Stringer("prev", prev),
			zap.Stringer("cur", cur),
		)
	})
	nl.RegisterHardwareAddrCallback(func(name string, prev net.HardwareAddr, cur net.HardwareAddr) {
		log.Infow("link hardware address changed",
			zap.String("name", name),
			zap.Stringer("prev", prev),
			zap.Stringer("cur", cur),
		)
	})

	wg, ctx := errgroup.WithContext(ctx)
	wg.Go(func() error {
		return nl.Run(ctx)
	})
	wg.Go(func() error {
		err := xcmd.WaitInterrupted(ctx)
		log.Infof("caught signal: %v", err)
		return err
	})

	err = wg.Wait()

	links := nl.Links()
	for _, name := range slices.Sorted(maps.Keys(links)) {
		log.Infow("last observed link state",
			zap.String("name", name),
			zap.Stringer("status", links[name].Status),
			zap.Stringer("hardware_addr", links[name].HardwareAddr),
		)
	}
	log.Infow("link monitor stats", zap.Any("stats", nl.MonitorStats()))

	return err
}
