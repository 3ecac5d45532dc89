package application

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

const DefaultReportInterval = 30 * time.Second

type FeedService interface {
	Run(ctx context.Context) error
}

type FeedServiceParams struct {
	Manager *ConnectionManager

	// StatusNotifier is optional; it is told when the feed goes up or down.
	StatusNotifier ConnectionStatusNotifier

	ReportInterval time.Duration

	Log zerolog.Logger
}

type feedService struct {
	params FeedServiceParams

	log zerolog.Logger
}

func NewFeedService(params FeedServiceParams) (FeedService, error) {
	if params.Manager == nil {
		return nil, fmt.Errorf("Manager is nil")
	}
	if params.ReportInterval == 0 {
		params.ReportInterval = DefaultReportInterval
	}
	return &feedService{params: params, log: params.Log}, nil
}

// Run blocks until ctx is done, then disconnects the manager.
func (f feedService) Run(ctx context.Context) error {
	g := errgroup.Group{}

	// broker event dispatch loop
	g.Go(func() error {
		f.log.Info().Msg("start consuming broker events")
		defer f.log.Info().Msg("stop consuming broker events")

		return f.params.Manager.Run(ctx)
	})

	// connection status notices
	g.Go(func() error {
		states, cancel := f.params.Manager.State().Subscribe()
		defer cancel()

		wasConnected := false
		for {
			select {
			case <-ctx.Done():
				return nil
			case s := <-states:
				if s.IsConnected() == wasConnected {
					continue
				}
				wasConnected = s.IsConnected()

				f.log.Info().Bool("is_connected", wasConnected).Str("state", s.String()).Msg("feed status changed")
				if f.params.StatusNotifier != nil {
					f.params.StatusNotifier.NotifyConnectionStatus(wasConnected)
				}
			}
		}
	})

	// feed report
	g.Go(func() error {
		ticker := time.NewTicker(f.params.ReportInterval)
		defer ticker.Stop()
		lastStatus := FeedStatus{}

	ReporterLoop:
		for {
			select {
			case <-ctx.Done():
				break ReporterLoop
			case <-ticker.C:
				newStatus := f.params.Manager.Status()
				msgPerMin := float64(newStatus.MessageCount-lastStatus.MessageCount) / f.params.ReportInterval.Minutes()

				f.log.Info().
					Float64("msg_per_min", msgPerMin).
					Uint64("alerts", newStatus.AlertCount).
					Uint64("videos", newStatus.VideoCount).
					Uint64("unrecognized", newStatus.UnrecognizedCount).
					Int("buffered", newStatus.Buffered).
					Str("state", newStatus.State.String()).
					Time("last_received", newStatus.LastReceived).
					Msg("feed report")
				lastStatus = newStatus
			}
		}

		return nil
	})

	err := g.Wait()
	f.params.Manager.Disconnect()
	return err
}
