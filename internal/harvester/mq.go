package harvester

import (
	"context"
	"time"

	"github.com/go-zeromq/zmq4"

	"github.com/Dicklesworthstone/loglite/internal/apperr"
	"github.com/Dicklesworthstone/loglite/internal/backlog"
)

// MQConfig declares a ZeroMQ harvester, mirroring the Python original's
// harvesters/zmq.py ZmqHarvester: a PULL or SUB socket (PULL by default)
// that binds when Bind is set and connects otherwise; a SUB socket
// subscribes to Topic.
type MQConfig struct {
	SocketType string `mapstructure:"socket_type"` // "pull" or "sub"
	Endpoint   string `mapstructure:"endpoint"`
	Bind       bool   `mapstructure:"bind"`
	Topic      string `mapstructure:"topic"`
}

// MQHarvester receives records over ZeroMQ, grounded on
// github.com/go-zeromq/zmq4 — a pure-Go ZMTP implementation, chosen
// because it needs no cgo/libzmq, matching this repo's modernc.org/sqlite
// no-cgo posture.
type MQHarvester struct {
	base
	cfg MQConfig
}

func newMQHarvester(name string, fields map[string]any) (Harvester, error) {
	var cfg MQConfig
	if err := decodeFields(fields, &cfg); err != nil {
		return nil, err
	}
	if cfg.Endpoint == "" {
		return nil, apperr.Config("mq harvester requires \"endpoint\"", nil)
	}
	if cfg.SocketType == "" {
		cfg.SocketType = "pull"
	}
	return &MQHarvester{base: newBase(name), cfg: cfg}, nil
}

// Run implements Harvester.
func (h *MQHarvester) Run(ctx context.Context, sink *backlog.Backlog) error {
	h.setState(StateRunning)
	defer h.setState(StateStopped)

	var sock zmq4.Socket
	switch h.cfg.SocketType {
	case "sub":
		sock = zmq4.NewSub(ctx)
	default:
		sock = zmq4.NewPull(ctx)
	}
	defer sock.Close()

	var err error
	if h.cfg.Bind {
		err = sock.Listen(h.cfg.Endpoint)
	} else {
		err = sock.Dial(h.cfg.Endpoint)
	}
	if err != nil {
		return apperr.Source("connecting zmq socket to "+h.cfg.Endpoint, err)
	}

	if h.cfg.SocketType == "sub" {
		if err := sock.SetOption(zmq4.OptionSubscribe, h.cfg.Topic); err != nil {
			return apperr.Source("subscribing to zmq topic", err)
		}
	}

	for {
		if ctx.Err() != nil {
			h.setState(StateStopping)
			return nil
		}

		recvCtx, cancel := context.WithTimeout(ctx, time.Second)
		msg, err := recvWithTimeout(recvCtx, sock)
		cancel()
		if err != nil {
			continue // timeout or transient recv error; poll again
		}

		for _, frame := range msg.Frames {
			rec, ok := decodeLine(string(frame))
			if !ok {
				continue
			}
			if err := sink.Add(ctx, rec); err != nil {
				if apperr.Is(err, apperr.KindCancelled) {
					return nil
				}
				return err
			}
		}
	}
}

// recvWithTimeout bounds a blocking Recv call to ctx's deadline, since
// zmq4.Socket.Recv itself has no timeout parameter.
func recvWithTimeout(ctx context.Context, sock zmq4.Socket) (zmq4.Msg, error) {
	type result struct {
		msg zmq4.Msg
		err error
	}
	done := make(chan result, 1)
	go func() {
		msg, err := sock.Recv()
		done <- result{msg: msg, err: err}
	}()

	select {
	case r := <-done:
		return r.msg, r.err
	case <-ctx.Done():
		return zmq4.Msg{}, ctx.Err()
	}
}
