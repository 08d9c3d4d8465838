// Package flog 是 ferry 的分级日志门面，分为业务默认记录器和带前缀的系统记录器。
package flog

import (
	"io"
	"log"
	"os"
)

const systemLogPrefix = "FERRY: "

var (
	logger    FullLogger = newDefaultLogger(os.Stderr)
	sysLogger FullLogger = &systemLogger{logger: newDefaultLogger(os.Stderr), prefix: systemLogPrefix}
)

func newDefaultLogger(w io.Writer) *defaultLogger {
	return &defaultLogger{
		std:   log.New(w, "", log.LstdFlags|log.Lshortfile|log.Lmicroseconds),
		depth: 4,
	}
}

// SetOutput 设置默认记录器和系统记录器的写入器，默认为 os.Stderr。
func SetOutput(w io.Writer) {
	logger.SetOutput(w)
	sysLogger.SetOutput(w)
}

// SetLevel 设置两个记录器的输出级别。并发不安全。
func SetLevel(lv Level) {
	logger.SetLevel(lv)
	sysLogger.SetLevel(lv)
}

// DefaultLogger 返回默认记录器。
func DefaultLogger() FullLogger {
	return logger
}

// SystemLogger 返回服务器内部使用的系统记录器。
func SystemLogger() FullLogger {
	return sysLogger
}

// SetLogger 同时替换默认记录器和系统记录器。并发不安全，须在服务启动前调用。
func SetLogger(v FullLogger) {
	logger = v
	sysLogger = &systemLogger{logger: v, prefix: systemLogPrefix}
}

func Debugf(format string, v ...any) { logger.Debugf(format, v...) }
func Infof(format string, v ...any)  { logger.Infof(format, v...) }
func Warnf(format string, v ...any)  { logger.Warnf(format, v...) }
func Errorf(format string, v ...any) { logger.Errorf(format, v...) }

// Fatalf 记录后 os.Exit(1)。
func Fatalf(format string, v ...any) { logger.Fatalf(format, v...) }
