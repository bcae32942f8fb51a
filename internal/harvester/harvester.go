// Package harvester implements loglite's pluggable log-source framework:
// each configured harvester reads from one source (a file, a socket, a
// message queue) and pushes decoded records onto a shared backlog.
//
// Dispatch from a harvester's declared "type" string to its typed config is
// done with github.com/go-viper/mapstructure/v2 decoding a generic
// map[string]any (config.Harvester.Fields) into a concrete struct, rather
// than the runtime-reflection registry the Python original's
// harvesters/manager.py used — Go's interfaces make compile-time dispatch
// both simpler and safer than mirroring Python's reflection-based factory.
package harvester

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/go-viper/mapstructure/v2"

	"github.com/Dicklesworthstone/loglite/internal/apperr"
	"github.com/Dicklesworthstone/loglite/internal/backlog"
)

// State is a harvester's lifecycle state, mirroring the Python original's
// harvesters/base.py HarvesterState enum.
type State int32

const (
	StateIdle State = iota
	StateRunning
	StateStopping
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRunning:
		return "running"
	case StateStopping:
		return "stopping"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// Harvester is one running log source. Run blocks until ctx is cancelled
// or the source is exhausted/fails unrecoverably; it must never let an
// error escape as anything but apperr.KindSource: the supervisor logs and
// restarts a failed harvester instead of letting the failure propagate.
type Harvester interface {
	Name() string
	Run(ctx context.Context, sink *backlog.Backlog) error
	State() State
}

// base provides the State bookkeeping shared by every concrete harvester.
type base struct {
	name  string
	state atomic.Int32
}

func newBase(name string) base {
	b := base{name: name}
	b.state.Store(int32(StateIdle))
	return b
}

func (b *base) Name() string     { return b.name }
func (b *base) State() State     { return State(b.state.Load()) }
func (b *base) setState(s State) { b.state.Store(int32(s)) }

// Factory builds one Harvester from its declared type and raw field map.
type Factory func(name string, fields map[string]any) (Harvester, error)

var registry = map[string]Factory{
	"file":   newFileHarvester,
	"socket": newSocketHarvester,
	"mq":     newMQHarvester,
}

// timestampField is the record key every harvester injects the current
// UTC time into when a decoded record omits it. It defaults to "timestamp"
// and is set once at startup via SetTimestampField, before the supervisor
// starts any harvester goroutine.
var timestampField = "timestamp"

// SetTimestampField overrides the record key used for timestamp injection,
// matching the configured log_timestamp_field.
func SetTimestampField(field string) {
	if field != "" {
		timestampField = field
	}
}

// Build dispatches a config.Harvester declaration to its registered
// factory, decoding Fields into that harvester's typed config struct.
func Build(harvesterType, name string, fields map[string]any) (Harvester, error) {
	factory, ok := registry[harvesterType]
	if !ok {
		return nil, apperr.Config(fmt.Sprintf("unknown harvester type %q", harvesterType), nil)
	}
	h, err := factory(name, fields)
	if err != nil {
		return nil, fmt.Errorf("building harvester %q (%s): %w", name, harvesterType, err)
	}
	return h, nil
}

// decodeFields is the shared mapstructure decode every concrete harvester
// factory uses to turn its raw field map into a typed config struct.
func decodeFields(fields map[string]any, out any) error {
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           out,
		WeaklyTypedInput: true,
		ErrorUnused:      false,
	})
	if err != nil {
		return apperr.Config("building harvester config decoder", err)
	}
	if err := decoder.Decode(fields); err != nil {
		return apperr.Config("decoding harvester config", err)
	}
	return nil
}
