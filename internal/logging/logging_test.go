package logging

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tphakala/lightsheet-go/internal/conf"
)

func TestForServiceAddsServiceAttribute(t *testing.T) {
	var structured, human bytes.Buffer
	Init()
	SetOutput(&structured, &human)
	t.Cleanup(func() { SetOutput(os.Stdout, os.Stderr) })

	ForService("recycler").Info("stack released", "recycler", "camera0")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(structured.Bytes(), &entry))
	assert.Equal(t, "recycler", entry["service"])
	assert.Equal(t, "camera0", entry["recycler"])
	assert.Equal(t, "INFO", entry["level"])
}

func TestCustomLevelNamesAndSetLevel(t *testing.T) {
	var structured, human bytes.Buffer
	Init()
	SetOutput(&structured, &human)
	t.Cleanup(func() {
		SetLevel(slog.LevelDebug)
		SetOutput(os.Stdout, os.Stderr)
	})

	SetLevel(LevelTrace)
	Trace("fine grained")
	assert.Contains(t, structured.String(), `"level":"TRACE"`)

	structured.Reset()
	SetLevel(slog.LevelWarn)
	Info("hidden")
	assert.Empty(t, structured.String())
}

func TestForComponentFallsBackToDefault(t *testing.T) {
	logger := ForComponent("pipeline", "stage")
	require.NotNil(t, logger)
}

func TestRotationPolicy(t *testing.T) {
	tests := []struct {
		name                  string
		logConf               conf.LogConfig
		wantSize, wantBackups int
		wantAge               int
	}{
		{"daily", conf.LogConfig{Rotation: conf.RotationDaily}, 100, 30, 1},
		{"weekly", conf.LogConfig{Rotation: conf.RotationWeekly}, 100, 4, 7},
		{"size", conf.LogConfig{Rotation: conf.RotationSize, MaxSize: 5 << 20}, 5, 3, 28},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			size, backups, age := rotationPolicy(tt.logConf)
			assert.Equal(t, tt.wantSize, size)
			assert.Equal(t, tt.wantBackups, backups)
			assert.Equal(t, tt.wantAge, age)
		})
	}
}

func TestNewFileLoggerWritesJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "acquire.log")

	logger, closeFn, err := NewFileLogger(path, "acquire", slog.LevelInfo, conf.LogConfig{Rotation: conf.RotationSize})
	require.NoError(t, err)

	logger.Info("time point acquired", "timepoint", 3)
	require.NoError(t, closeFn())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	line := strings.TrimSpace(string(data))
	assert.Contains(t, line, `"service":"acquire"`)
	assert.Contains(t, line, `"timepoint":3`)
}
