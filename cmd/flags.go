package cmd

import (
	"github.com/conneroisu/tstlplay/internal/logging"
)

// logLevelFlag is a pflag.Value parsed with logging.ParseLevel.
type logLevelFlag struct {
	level logging.LogLevel
	raw   string
}

func newLogLevelFlag() *logLevelFlag {
	return &logLevelFlag{level: logging.LevelInfo, raw: "info"}
}

func (f *logLevelFlag) String() string {
	return f.raw
}

func (f *logLevelFlag) Set(s string) error {
	level, err := logging.ParseLevel(s)
	if err != nil {
		return err
	}
	f.level = level
	f.raw = s
	return nil
}

func (f *logLevelFlag) Type() string {
	return "level"
}

// Level returns the parsed level.
func (f *logLevelFlag) Level() logging.LogLevel {
	return f.level
}
