package harvester

import (
	"context"
	"time"

	"github.com/sourcegraph/conc/pool"

	"github.com/Dicklesworthstone/loglite/internal/apperr"
	"github.com/Dicklesworthstone/loglite/internal/backlog"
	"github.com/Dicklesworthstone/loglite/internal/config"
	"github.com/Dicklesworthstone/loglite/internal/logging"
)

// Supervisor builds and fans a set of configured harvesters out across a
// conc.Pool, restarting each on a SourceError instead of letting one bad
// source take the rest down — sourcegraph/conc gives a "one failure
// restarts its own slot" posture directly, rather than hand-rolling a
// WaitGroup + error channel.
type Supervisor struct {
	sink         *backlog.Backlog
	restartDelay time.Duration
}

// NewSupervisor constructs a Supervisor writing into sink.
func NewSupervisor(sink *backlog.Backlog) *Supervisor {
	return &Supervisor{sink: sink, restartDelay: time.Second}
}

// Run builds every configured harvester and runs them concurrently until
// ctx is cancelled. A declaration that fails to build (unknown type or
// invalid config) is logged and skipped. A harvester that returns an error
// is logged and restarted after a short delay; a harvester that returns nil
// (clean shutdown) is not restarted.
func (s *Supervisor) Run(ctx context.Context, harvesters []config.Harvester) error {
	built := make([]Harvester, 0, len(harvesters))
	for _, hc := range harvesters {
		h, err := Build(hc.Type, hc.Name, hc.Fields)
		if err != nil {
			logging.Default.Error("harvester skipped", "name", hc.Name, "type", hc.Type, "err", err)
			continue
		}
		built = append(built, h)
	}

	p := pool.New().WithContext(ctx)
	for _, h := range built {
		h := h
		p.Go(func(ctx context.Context) error {
			return s.runWithRestart(ctx, h)
		})
	}
	return p.Wait()
}

func (s *Supervisor) runWithRestart(ctx context.Context, h Harvester) error {
	for {
		err := h.Run(ctx, s.sink)
		if ctx.Err() != nil {
			return nil
		}
		if err == nil {
			return nil
		}
		if apperr.Is(err, apperr.KindCancelled) {
			return nil
		}
		logging.Default.Error("harvester failed, restarting", "name", h.Name(), "err", err)

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(s.restartDelay):
		}
	}
}
