package logging

import (
	"fmt"

	quartzlogger "github.com/reugn/go-quartz/logger"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// QuartzLogger routes go-quartz scheduler logs into zap. Scheduler
// lifecycle messages (info and below) are logged at debug level.
type QuartzLogger struct {
	base *zap.Logger // nil follows the global logger
}

// NewQuartzLogger wraps l; a nil l follows the global logger, so later
// Initialize or SetLogger calls take effect.
func NewQuartzLogger(l *zap.Logger) *QuartzLogger {
	return &QuartzLogger{base: l}
}

func init() {
	quartzlogger.SetDefault(NewQuartzLogger(nil))
}

func (q *QuartzLogger) logger() *zap.Logger {
	if q.base != nil {
		return q.base
	}
	return GetLogger()
}

// zapLevel maps a go-quartz level to the zap level it is logged at
func zapLevel(level quartzlogger.Level) zapcore.Level {
	switch {
	case level >= quartzlogger.LevelError:
		return zapcore.ErrorLevel
	case level >= quartzlogger.LevelWarn:
		return zapcore.WarnLevel
	default:
		return zapcore.DebugLevel
	}
}

func (q *QuartzLogger) log(level quartzlogger.Level, msg string) {
	l := q.logger()
	if ce := l.Check(zapLevel(level), msg); ce != nil {
		ce.Write(zap.String("component", "quartz"))
	}
}

func (q *QuartzLogger) Trace(msg any) { q.log(quartzlogger.LevelTrace, fmt.Sprint(msg)) }
func (q *QuartzLogger) Tracef(format string, args ...any) {
	q.log(quartzlogger.LevelTrace, fmt.Sprintf(format, args...))
}
func (q *QuartzLogger) Debug(msg any) { q.log(quartzlogger.LevelDebug, fmt.Sprint(msg)) }
func (q *QuartzLogger) Debugf(format string, args ...any) {
	q.log(quartzlogger.LevelDebug, fmt.Sprintf(format, args...))
}
func (q *QuartzLogger) Info(msg any) { q.log(quartzlogger.LevelInfo, fmt.Sprint(msg)) }
func (q *QuartzLogger) Infof(format string, args ...any) {
	q.log(quartzlogger.LevelInfo, fmt.Sprintf(format, args...))
}
func (q *QuartzLogger) Warn(msg any) { q.log(quartzlogger.LevelWarn, fmt.Sprint(msg)) }
func (q *QuartzLogger) Warnf(format string, args ...any) {
	q.log(quartzlogger.LevelWarn, fmt.Sprintf(format, args...))
}
func (q *QuartzLogger) Error(msg any) { q.log(quartzlogger.LevelError, fmt.Sprint(msg)) }
func (q *QuartzLogger) Errorf(format string, args ...any) {
	q.log(quartzlogger.LevelError, fmt.Sprintf(format, args...))
}

// Enabled reports whether records at level reach the zap core
func (q *QuartzLogger) Enabled(level quartzlogger.Level) bool {
	if level >= quartzlogger.LevelOff {
		return false
	}
	return q.logger().Core().Enabled(zapLevel(level))
}
