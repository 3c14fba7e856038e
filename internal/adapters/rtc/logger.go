package rtc

import (
	"fmt"

	"github.com/pion/logging"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// LoggerFactory routes pion's internal logging into zerolog. Pion trace
// output maps to zerolog trace.
type LoggerFactory struct {
	Level zerolog.Level
}

func NewLoggerFactory(level zerolog.Level) LoggerFactory {
	return LoggerFactory{Level: level}
}

func (f LoggerFactory) NewLogger(scope string) logging.LeveledLogger {
	return &pionLogger{log: log.With().Str("module", "pion").Str("scope", scope).Logger().Level(f.Level)}
}

type pionLogger struct {
	log zerolog.Logger
}

func (l *pionLogger) Trace(msg string)                  { l.log.Trace().Msg(msg) }
func (l *pionLogger) Tracef(format string, args ...any) { l.log.Trace().Msg(fmt.Sprintf(format, args...)) }
func (l *pionLogger) Debug(msg string)                  { l.log.Debug().Msg(msg) }
func (l *pionLogger) Debugf(format string, args ...any) { l.log.Debug().Msg(fmt.Sprintf(format, args...)) }
func (l *pionLogger) Info(msg string)                   { l.log.Info().Msg(msg) }
func (l *pionLogger) Infof(format string, args ...any)  { l.log.Info().Msg(fmt.Sprintf(format, args...)) }
func (l *pionLogger) Warn(msg string)                   { l.log.Warn().Msg(msg) }
func (l *pionLogger) Warnf(format string, args ...any)  { l.log.Warn().Msg(fmt.Sprintf(format, args...)) }
func (l *pionLogger) Error(msg string)                  { l.log.Error().Msg(msg) }
func (l *pionLogger) Errorf(format string, args ...any) { l.log.Error().Msg(fmt.Sprintf(format, args...)) }
