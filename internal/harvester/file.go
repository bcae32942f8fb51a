package harvester

import (
	"context"
	"time"

	json "github.com/goccy/go-json"
	"github.com/nxadm/tail"

	"github.com/Dicklesworthstone/loglite/internal/apperr"
	"github.com/Dicklesworthstone/loglite/internal/backlog"
	"github.com/Dicklesworthstone/loglite/internal/logging"
)

// FileConfig declares a file-tailing harvester: one JSON object per line,
// following rotation/truncation the way the Python original's
// harvesters/file.py FileHarvester does (inode-aware re-open on rotation).
type FileConfig struct {
	Path        string `mapstructure:"path"`
	FromEnd     bool   `mapstructure:"from_end"`
	Poll        bool   `mapstructure:"poll"`
	BacklogFull bool   `mapstructure:"backlog_nonblocking"`
}

// FileHarvester tails a line-delimited JSON log file, built on
// github.com/nxadm/tail (a maintained fork of hpcloud/tail), which handles
// rotation/truncation/reopen internally so this harvester doesn't have to
// reimplement inode tracking.
type FileHarvester struct {
	base
	cfg FileConfig
}

func newFileHarvester(name string, fields map[string]any) (Harvester, error) {
	cfg := FileConfig{FromEnd: true}
	if err := decodeFields(fields, &cfg); err != nil {
		return nil, err
	}
	if cfg.Path == "" {
		return nil, apperr.Config("file harvester requires \"path\"", nil)
	}
	return &FileHarvester{base: newBase(name), cfg: cfg}, nil
}

// Run implements Harvester.
func (h *FileHarvester) Run(ctx context.Context, sink *backlog.Backlog) error {
	h.setState(StateRunning)
	defer h.setState(StateStopped)

	whence := 0
	if h.cfg.FromEnd {
		whence = 2
	}
	t, err := tail.TailFile(h.cfg.Path, tail.Config{
		Follow:    true,
		ReOpen:    true,
		MustExist: false,
		Poll:      h.cfg.Poll,
		Location:  &tail.SeekInfo{Whence: whence},
	})
	if err != nil {
		return apperr.Source("opening tailed file "+h.cfg.Path, err)
	}
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			h.setState(StateStopping)
			return nil
		case line, ok := <-t.Lines:
			if !ok {
				return nil
			}
			if line.Err != nil {
				continue // transient read error; tail retries internally on rotation
			}
			rec, ok := decodeLine(line.Text)
			if !ok {
				continue
			}

			var addErr error
			if h.cfg.BacklogFull {
				if !sink.TryAdd(rec) {
					continue
				}
			} else {
				addErr = sink.Add(ctx, rec)
			}
			if addErr != nil {
				if apperr.Is(addErr, apperr.KindCancelled) {
					return nil
				}
				return addErr
			}
		}
	}
}

// decodeLine parses one harvested line as JSON and injects the current UTC
// time under timestampField when the decoded record omits it. A line that
// fails to parse is logged and dropped rather than ingested — every
// harvester shares this rule. The second return value is false for a
// dropped line.
func decodeLine(line string) (backlog.Record, bool) {
	var rec backlog.Record
	if err := json.Unmarshal([]byte(line), &rec); err != nil || rec == nil {
		logging.Default.Warn("harvester: dropping unparseable line", "err", err)
		return nil, false
	}
	if _, ok := rec[timestampField]; !ok {
		rec[timestampField] = time.Now().UTC().Format(time.RFC3339)
	}
	return rec, true
}
