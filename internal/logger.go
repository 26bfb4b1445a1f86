package internal

import (
	"fmt"
	"os"
	"sync"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

type Importance string

const (
	Info    Importance = " "
	Warning Importance = "?"
	Error   Importance = "!"
)

type LogConfig struct {
	File       string
	MaxSize    int
	MaxBackups int
	Console    bool
}

// Logger writes to the console and a rotating file; with a database attached
// every event is also copied to the log collection in the background
type Logger struct {
	zap      *zap.Logger
	level    zap.AtomicLevel
	rotator  *lumberjack.Logger
	database Database
	location *time.Location
	writer   chan *FeatureLogMessage
	done     chan struct{}
	mutex    sync.Mutex
	closed   bool
}

func NewLogger(conf LogConfig, location *time.Location) (*Logger, error) {
	level := zap.NewAtomicLevelAt(zapcore.InfoLevel)
	var cores []zapcore.Core
	if conf.Console {
		cores = append(cores, zapcore.NewCore(
			zapcore.NewConsoleEncoder(encoderConfig()),
			zapcore.Lock(os.Stdout),
			level,
		))
	}
	var rotator *lumberjack.Logger
	if conf.File != "" {
		rotator = &lumberjack.Logger{
			Filename:   conf.File,
			MaxSize:    conf.MaxSize,
			MaxBackups: conf.MaxBackups,
		}
		cores = append(cores, zapcore.NewCore(
			zapcore.NewJSONEncoder(encoderConfig()),
			zapcore.AddSync(rotator),
			level,
		))
	}
	if len(cores) == 0 {
		return nil, fmt.Errorf("logger: neither console nor file output is configured")
	}
	logger := newLogger(zapcore.NewTee(cores...), level, location)
	logger.rotator = rotator
	return logger, nil
}

func newLogger(core zapcore.Core, level zap.AtomicLevel, location *time.Location) *Logger {
	if location == nil {
		location = time.UTC
	}
	return &Logger{
		zap:      zap.New(core),
		level:    level,
		location: location,
	}
}

func encoderConfig() zapcore.EncoderConfig {
	return zapcore.EncoderConfig{
		TimeKey:        "ts",
		LevelKey:       "level",
		NameKey:        "logger",
		MessageKey:     "msg",
		StacktraceKey:  "stack",
		LineEnding:     zapcore.DefaultLineEnding,
		EncodeLevel:    zapcore.CapitalLevelEncoder,
		EncodeTime:     zapcore.TimeEncoderOfLayout("2006-01-02 15:04:05"),
		EncodeDuration: zapcore.StringDurationEncoder,
	}
}

func (l *Logger) SetDebugMode(debugMode bool) {
	if debugMode {
		l.level.SetLevel(zapcore.DebugLevel)
	} else {
		l.level.SetLevel(zapcore.InfoLevel)
	}
}

// SetDatabase attaches the log collection and starts the background writer
func (l *Logger) SetDatabase(database Database) {
	l.mutex.Lock()
	defer l.mutex.Unlock()
	if l.database != nil || database == nil || l.closed {
		return
	}
	l.database = database
	l.writer = make(chan *FeatureLogMessage, 100)
	l.done = make(chan struct{})
	go l.startWriter()
}

func (l *Logger) startWriter() {
	defer close(l.done)
	for message := range l.writer {
		if err := l.database.WriteLogMessage(message); err != nil {
			l.zap.Error("write log to database failed", zap.Error(err))
		}
	}
}

func logTime(t time.Time) string {
	timeString := fmt.Sprintf("%d-%02d-%02d %02d:%02d:%02d", t.Year(), t.Month(), t.Day(), t.Hour(), t.Minute(), t.Second())
	return timeString
}

func (l *Logger) FeatureEvent(feature, id, text string) {
	l.zap.Info(text, zap.String("feature", feature), zap.String("id", id))
	l.store(Info, feature, id, text)
}

func (l *Logger) Debug(text string) {
	l.zap.Debug(text)
}

func (l *Logger) Warn(text string) {
	l.zap.Warn(text)
	l.store(Warning, "warning", "", text)
}

func (l *Logger) Error(text string, err error) {
	l.zap.Error(text, zap.Error(err))
	l.store(Error, "error", "", fmt.Sprintf("%s: %v", text, err))
}

// store never blocks the caller, events are dropped while the writer is behind
func (l *Logger) store(importance Importance, feature, id, text string) {
	l.mutex.Lock()
	defer l.mutex.Unlock()
	if l.database == nil || l.closed {
		return
	}
	if id == "" {
		id = "*"
	}
	now := time.Now()
	message := &FeatureLogMessage{
		Time:          logTime(now.In(l.location)),
		TimeStamp:     now.UTC(),
		Feature:       feature,
		ChargePointId: id,
		Text:          text,
		Importance:    string(importance),
	}
	select {
	case l.writer <- message:
	default:
		l.zap.Warn("log writer queue is full, message dropped", zap.String("feature", feature))
	}
}

// Close drains the database writer and flushes the outputs
func (l *Logger) Close() {
	l.mutex.Lock()
	if l.closed {
		l.mutex.Unlock()
		return
	}
	l.closed = true
	writer, done := l.writer, l.done
	l.mutex.Unlock()

	if writer != nil {
		close(writer)
		<-done
	}
	_ = l.zap.Sync()
	if l.rotator != nil {
		_ = l.rotator.Close()
	}
}
