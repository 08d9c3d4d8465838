package flog

import (
	"fmt"
	"io"
)

// Logger 提供分级记录的功能。
type Logger interface {
	Debug(v ...any)
	Info(v ...any)
	Warn(v ...any)
	Error(v ...any)
	Fatal(v ...any)
}

// FormatLogger 提供按格式分级记录的功能。
type FormatLogger interface {
	Debugf(format string, v ...any)
	Infof(format string, v ...any)
	Warnf(format string, v ...any)
	Errorf(format string, v ...any)
	Fatalf(format string, v ...any)
}

// Control 提供配置记录器的方法。
type Control interface {
	// SetLevel 低于该级别不输出。
	SetLevel(Level)
	SetOutput(io.Writer)
}

// FullLogger 是 Logger、FormatLogger 和 Control 的组合。
type FullLogger interface {
	Logger
	FormatLogger
	Control
}

// Level 定义日志消息的优先级。
type Level int

// 日志记录级别。
const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
	LevelFatal
)

var levelTags = [...]string{
	LevelDebug: "[Debug] ",
	LevelInfo:  "[Info] ",
	LevelWarn:  "[Warn] ",
	LevelError: "[Error] ",
	LevelFatal: "[Fatal] ",
}

func (lv Level) String() string {
	if lv >= LevelDebug && lv <= LevelFatal {
		return levelTags[lv]
	}
	return fmt.Sprintf("[?%d] ", lv)
}
