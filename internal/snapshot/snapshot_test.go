package snapshot_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tinn-ml/tinn/config"
	"github.com/tinn-ml/tinn/internal/snapshot"
)

func testConfig() config.Training {
	return config.Training{
		Loss:      config.Loss{Type: "relative_l2"},
		Optimizer: config.Optimizer{Type: "adam", LearningRate: 0.01},
		Network: config.Network{
			Type:         "fully_fused_mlp",
			Neurons:      64,
			HiddenLayers: 4,
			Activation:   "relu",
		},
		Encoding: config.Encoding{Type: "frequency", Frequencies: 8},
	}
}

func TestSaveLoad_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "model.tinn")
	params := []float32{0.5, -1.25, 3.0, 0, 1e-7}

	require.NoError(t, snapshot.Save(path, testConfig(), params, 1234))

	header, loaded, err := snapshot.Load(path)
	require.NoError(t, err)
	assert.Equal(t, params, loaded)
	assert.Equal(t, snapshot.FormatVersion, header.FormatVersion)
	assert.Equal(t, 1234, header.Step)
	assert.Equal(t, "fully_fused_mlp", header.Config.Network.Type)
	assert.Equal(t, 8, header.Config.Encoding.Frequencies)
	assert.False(t, header.CreatedAt.IsZero())
}

func TestLoad_BadMagic(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.tinn")
	require.NoError(t, os.WriteFile(path, make([]byte, 128), 0o644))

	_, _, err := snapshot.Load(path)
	assert.ErrorIs(t, err, snapshot.ErrBadMagic)
}

func TestLoad_Truncated(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "model.tinn")
	require.NoError(t, snapshot.Save(path, testConfig(), make([]float32, 100), 0))

	buf, err := os.ReadFile(path)
	require.NoError(t, err)
	short := filepath.Join(dir, "short.tinn")
	require.NoError(t, os.WriteFile(short, buf[:len(buf)-40], 0o644))

	_, _, err = snapshot.Load(short)
	assert.ErrorIs(t, err, snapshot.ErrTruncated)
}

func TestLoad_CorruptedPayload(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "model.tinn")
	require.NoError(t, snapshot.Save(path, testConfig(), []float32{1, 2, 3}, 0))

	buf, err := os.ReadFile(path)
	require.NoError(t, err)
	buf[len(buf)-1] ^= 0xFF
	corrupt := filepath.Join(dir, "corrupt.tinn")
	require.NoError(t, os.WriteFile(corrupt, buf, 0o644))

	_, _, err = snapshot.Load(corrupt)
	assert.ErrorIs(t, err, snapshot.ErrChecksumMismatch)
}
