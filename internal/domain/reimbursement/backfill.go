package reimbursement

import (
	"context"
	"fmt"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"github.com/medyassinekhlif/TrueCare/internal/platform/progress"
)

// Backfill outcomes reported to progress trackers.
const (
	OutcomeCreated = "created"
	OutcomeExisted = "existing"
	OutcomeFailed  = "failed"
)

// BackfillReport counts what a backfill did.
type BackfillReport struct {
	Clients   int
	Bulletins int
	Created   int64
	Existed   int64
	Failed    int64
}

// Backfill runs Estimate for every bulletin of every client owned by the
// insurer, working on up to concurrency clients at once. Bulletins of one
// client are estimated in order. A failed bulletin is counted and logged and
// does not stop the run; a cancelled ctx does.
func (s *Service) Backfill(ctx context.Context, insurerIdentity string, concurrency int, pm progress.Manager) (*BackfillReport, error) {
	ins, err := s.verifiedInsurer(ctx, insurerIdentity)
	if err != nil {
		return nil, err
	}
	clients, err := s.clients.ListByInsurer(ctx, ins.ID)
	if err != nil {
		return nil, fmt.Errorf("list clients: %w", err)
	}
	if concurrency < 1 {
		concurrency = 1
	}

	report := &BackfillReport{Clients: len(clients)}
	var bulletinCount atomic.Int64

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)
	for i, client := range clients {
		i, client := i, client
		g.Go(func() error {
			bulletins, err := s.bulletins.ListByClient(gctx, client.ID)
			if err != nil {
				return fmt.Errorf("list bulletins of client %s: %w", client.ID, err)
			}
			bulletinCount.Add(int64(len(bulletins)))

			tracker := pm.NewTracker(i, len(clients), client.Name, int64(len(bulletins)))
			defer tracker.Done()

			for _, b := range bulletins {
				if err := gctx.Err(); err != nil {
					return err
				}
				res, err := s.Estimate(gctx, insurerIdentity, client.ID.String(), b.ID.String())
				switch {
				case err != nil:
					if gctx.Err() != nil {
						return err
					}
					atomic.AddInt64(&report.Failed, 1)
					tracker.Increment(OutcomeFailed)
					s.logger.Warn().Err(err).
						Str("client_id", client.ID.String()).
						Str("bulletin_id", b.ID.String()).
						Msg("backfill estimation failed")
				case res.AlreadyExisted:
					atomic.AddInt64(&report.Existed, 1)
					tracker.Increment(OutcomeExisted)
				default:
					atomic.AddInt64(&report.Created, 1)
					tracker.Increment(OutcomeCreated)
				}
			}
			return nil
		})
	}

	err = g.Wait()
	pm.Wait()
	report.Bulletins = int(bulletinCount.Load())
	if err != nil {
		return report, err
	}
	return report, nil
}
