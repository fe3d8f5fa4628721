package utils

import (
	"strings"

	"github.com/rs/zerolog"
)

// LogWriterCtx forwards process output to a logger, one event per line.
type LogWriterCtx struct {
	logger zerolog.Logger
	level  zerolog.Level
}

func LogWriter(l zerolog.Logger, level zerolog.Level) *LogWriterCtx {
	return &LogWriterCtx{
		logger: l,
		level:  level,
	}
}

func (l LogWriterCtx) Write(p []byte) (n int, err error) {
	for _, line := range strings.Split(string(p), "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		l.logger.WithLevel(l.level).Msg(line)
	}
	return len(p), nil
}
