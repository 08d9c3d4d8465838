package flog

import "io"

var silentMode = false

// SetSilentMode 开启后不再输出连接级的套接字错误日志。
func SetSilentMode(s bool) {
	silentMode = s
}

// SocketErrorFormat 是连接读写失败的日志格式，静默模式下被丢弃。
const SocketErrorFormat = "连接 %s 套接字错误: %v"

type systemLogger struct {
	logger FullLogger
	prefix string
}

func (l *systemLogger) SetOutput(w io.Writer) { l.logger.SetOutput(w) }
func (l *systemLogger) SetLevel(lv Level)     { l.logger.SetLevel(lv) }

func (l *systemLogger) Debug(v ...any) { l.logger.Debug(l.with(v)...) }
func (l *systemLogger) Info(v ...any)  { l.logger.Info(l.with(v)...) }
func (l *systemLogger) Warn(v ...any)  { l.logger.Warn(l.with(v)...) }
func (l *systemLogger) Error(v ...any) { l.logger.Error(l.with(v)...) }
func (l *systemLogger) Fatal(v ...any) { l.logger.Fatal(l.with(v)...) }

func (l *systemLogger) Debugf(format string, v ...any) { l.logger.Debugf(l.prefix+format, v...) }
func (l *systemLogger) Infof(format string, v ...any)  { l.logger.Infof(l.prefix+format, v...) }
func (l *systemLogger) Warnf(format string, v ...any)  { l.logger.Warnf(l.prefix+format, v...) }

func (l *systemLogger) Errorf(format string, v ...any) {
	if silentMode && format == SocketErrorFormat {
		return
	}
	l.logger.Errorf(l.prefix+format, v...)
}

func (l *systemLogger) Fatalf(format string, v ...any) { l.logger.Fatalf(l.prefix+format, v...) }

func (l *systemLogger) with(v []any) []any {
	return append([]any{l.prefix}, v...)
}
