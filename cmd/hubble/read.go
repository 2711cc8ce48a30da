package main

import (
	"errors"
	"fmt"

	"github.com/homemade/hubble/protocol"
	"github.com/homemade/hubble/sync"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// readCmd reads every stream from its saved state, one worker per stream.
var readCmd = &cobra.Command{
	Use:   "read",
	Short: "Read all streams incrementally",
	RunE: func(cmd *cobra.Command, _ []string) error {
		sc, err := syncContext(serveMetrics())
		if err != nil {
			return err
		}
		streams, err := sync.Streams(sc)
		if err != nil {
			return err
		}
		previous, err := protocol.ReadState(statePath)
		if err != nil {
			return err
		}
		for _, s := range streams {
			if state, ok := previous[s.Name()]; ok {
				s.SetState(state)
			}
		}

		errs := make([]error, len(streams))
		var g errgroup.Group
		g.SetLimit(max(concurrency, 1))
		for i, s := range streams {
			i, s := i, s
			g.Go(func() error {
				logger.Info("reading stream", zap.String("stream", s.Name()), zap.String("cursor", s.State().UpdatedAt))
				if err := s.Read(cmd.Context(), emitter); err != nil {
					logger.Error("stream failed", zap.String("stream", s.Name()), zap.Stringer("phase", s.Phase()), zap.Error(err))
					errs[i] = err
				}
				return nil
			})
		}
		_ = g.Wait()

		if statePath != "" {
			if err := protocol.WriteState(statePath, previous, emitter.States()); err != nil {
				return err
			}
		}
		if err := errors.Join(errs...); err != nil {
			return fmt.Errorf("failed to read streams %w", err)
		}
		return nil
	},
}

func init() {
	readCmd.Flags().StringVar(&statePath, "state", "", "state file, read before and written after the sync")
	readCmd.Flags().IntVar(&concurrency, "concurrency", 1, "streams read in parallel")
	readCmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "serve prometheus metrics on this address while reading")
}
