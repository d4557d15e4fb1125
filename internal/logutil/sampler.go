package logutil

import (
	"github.com/rs/zerolog"
)

// LevelSampler drops every event below Level. Capture loops attach it to
// their per-event debug logging so a busy tracee cannot flood the logs.
type LevelSampler struct {
	Level zerolog.Level
}

func (l LevelSampler) Sample(lvl zerolog.Level) bool {
	return lvl >= l.Level
}
