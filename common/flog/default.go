package flog

import (
	"fmt"
	"io"
	"log"
	"os"
)

type defaultLogger struct {
	std   *log.Logger
	level Level
	depth int
}

func (l *defaultLogger) SetOutput(w io.Writer) { l.std.SetOutput(w) }
func (l *defaultLogger) SetLevel(lv Level)     { l.level = lv }

func (l *defaultLogger) Debug(v ...any) { l.output(LevelDebug, nil, v...) }
func (l *defaultLogger) Info(v ...any)  { l.output(LevelInfo, nil, v...) }
func (l *defaultLogger) Warn(v ...any)  { l.output(LevelWarn, nil, v...) }
func (l *defaultLogger) Error(v ...any) { l.output(LevelError, nil, v...) }
func (l *defaultLogger) Fatal(v ...any) { l.output(LevelFatal, nil, v...) }

func (l *defaultLogger) Debugf(format string, v ...any) { l.output(LevelDebug, &format, v...) }
func (l *defaultLogger) Infof(format string, v ...any)  { l.output(LevelInfo, &format, v...) }
func (l *defaultLogger) Warnf(format string, v ...any)  { l.output(LevelWarn, &format, v...) }
func (l *defaultLogger) Errorf(format string, v ...any) { l.output(LevelError, &format, v...) }
func (l *defaultLogger) Fatalf(format string, v ...any) { l.output(LevelFatal, &format, v...) }

func (l *defaultLogger) output(lv Level, format *string, v ...any) {
	if lv < l.level {
		return
	}
	msg := lv.String()
	if format != nil {
		msg += fmt.Sprintf(*format, v...)
	} else {
		msg += fmt.Sprint(v...)
	}
	_ = l.std.Output(l.depth, msg)
	if lv == LevelFatal {
		os.Exit(1)
	}
}
