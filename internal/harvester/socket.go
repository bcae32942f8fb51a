package harvester

import (
	"bufio"
	"context"
	"net"

	json "github.com/goccy/go-json"

	"github.com/Dicklesworthstone/loglite/internal/apperr"
	"github.com/Dicklesworthstone/loglite/internal/backlog"
)

// SocketConfig declares a TCP or Unix-domain socket harvester accepting
// newline-delimited JSON connections, mirroring the Python original's
// harvesters/socket.py SocketHarvester (network "tcp" or "unix").
type SocketConfig struct {
	Network string `mapstructure:"network"`
	Address string `mapstructure:"address"`
}

// SocketHarvester accepts connections and decodes one JSON record per line
// from each, using only net/bufio — the Python original itself used
// nothing beyond asyncio's own stream primitives, so standard library here
// matches the original's scope without pulling in a framework for a few
// lines of line-delimited framing.
type SocketHarvester struct {
	base
	cfg SocketConfig
}

func newSocketHarvester(name string, fields map[string]any) (Harvester, error) {
	var cfg SocketConfig
	if err := decodeFields(fields, &cfg); err != nil {
		return nil, err
	}
	if cfg.Network == "" {
		cfg.Network = "tcp"
	}
	if cfg.Address == "" {
		return nil, apperr.Config("socket harvester requires \"address\"", nil)
	}
	return &SocketHarvester{base: newBase(name), cfg: cfg}, nil
}

// Run implements Harvester.
func (h *SocketHarvester) Run(ctx context.Context, sink *backlog.Backlog) error {
	h.setState(StateRunning)
	defer h.setState(StateStopped)

	lc := net.ListenConfig{}
	listener, err := lc.Listen(ctx, h.cfg.Network, h.cfg.Address)
	if err != nil {
		return apperr.Source("listening on "+h.cfg.Address, err)
	}
	defer listener.Close()

	go func() {
		<-ctx.Done()
		h.setState(StateStopping)
		listener.Close()
	}()

	for {
		conn, err := listener.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			continue // transient accept error; keep serving other connections
		}
		go h.handleConn(ctx, conn, sink)
	}
}

func (h *SocketHarvester) handleConn(ctx context.Context, conn net.Conn, sink *backlog.Backlog) {
	defer conn.Close()
	scanner := bufio.NewScanner(conn)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		if ctx.Err() != nil {
			return
		}
		rec, ok := decodeLine(scanner.Text())
		if !ok {
			continue
		}
		if err := sink.Add(ctx, rec); err != nil {
			return
		}
	}
}
