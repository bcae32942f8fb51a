package harvester

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestBuildUnknownTypeIsConfigError(t *testing.T) {
	_, err := Build("carrier-pigeon", "x", nil)
	require.Error(t, err)
}

func TestBuildFileHarvesterRequiresPath(t *testing.T) {
	_, err := Build("file", "x", map[string]any{})
	require.Error(t, err)
}

func TestBuildFileHarvesterDecodesConfig(t *testing.T) {
	h, err := Build("file", "app-log", map[string]any{"path": "/var/log/app.log", "from_end": true})
	require.NoError(t, err)
	fh, ok := h.(*FileHarvester)
	require.True(t, ok)
	require.Equal(t, "/var/log/app.log", fh.cfg.Path)
	require.True(t, fh.cfg.FromEnd)
	require.Equal(t, StateIdle, h.State())
	require.Equal(t, "app-log", h.Name())
}

func TestBuildSocketHarvesterDefaultsToTCP(t *testing.T) {
	h, err := Build("socket", "ingest", map[string]any{"address": "127.0.0.1:9000"})
	require.NoError(t, err)
	sh := h.(*SocketHarvester)
	require.Equal(t, "tcp", sh.cfg.Network)
}

func TestBuildMQHarvesterRequiresEndpoint(t *testing.T) {
	_, err := Build("mq", "events", map[string]any{})
	require.Error(t, err)
}

func TestDecodeLineParsesJSONAndFillsTimestamp(t *testing.T) {
	rec, ok := decodeLine(`{"message":"hi"}`)
	require.True(t, ok)
	require.Equal(t, "hi", rec["message"])
	require.NotEmpty(t, rec[timestampField])
}

func TestDecodeLinePreservesSuppliedTimestamp(t *testing.T) {
	rec, ok := decodeLine(`{"message":"hi","timestamp":"2026-01-01T00:00:00Z"}`)
	require.True(t, ok)
	require.Equal(t, "2026-01-01T00:00:00Z", rec[timestampField])
}

func TestDecodeLineDropsMalformedJSON(t *testing.T) {
	rec, ok := decodeLine(`not json at all`)
	require.False(t, ok)
	require.Nil(t, rec)
}
