/*
 * MIT License
 *
 * Copyright (c) 2020 Nicolas JUHEL
 *
 * Permission is hereby granted, free of charge, to any person obtaining a copy
 * of this software and associated documentation files (the "Software"), to deal
 * in the Software without restriction, including without limitation the rights
 * to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
 * copies of the Software, and to permit persons to whom the Software is
 * furnished to do so, subject to the following conditions:
 *
 * The above copyright notice and this permission notice shall be included in all
 * copies or substantial portions of the Software.
 *
 * THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
 * IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
 * FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
 * AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
 * LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
 * OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
 * SOFTWARE.
 *
 */

// Package logger wraps a logrus.Logger with the "component" field
// convention the rest of this module relies on and a shim onto
// hashicorp's hclog.Logger for libraries that only accept that interface.
package logger

import (
	"io"
	stdlog "log"
	"os"

	"github.com/hashicorp/go-hclog"
	"github.com/sirupsen/logrus"
)

// Level mirrors logrus levels with the names used on the command line.
type Level uint8

const (
	PanicLevel Level = iota
	FatalLevel
	ErrorLevel
	WarnLevel
	InfoLevel
	DebugLevel
	TraceLevel
)

func (l Level) toLogrus() logrus.Level {
	return logrus.Level(l)
}

// ParseLevel accepts the same strings as logrus.ParseLevel.
func ParseLevel(s string) (Level, error) {
	lvl, err := logrus.ParseLevel(s)
	if err != nil {
		return InfoLevel, err
	}
	return Level(lvl), nil
}

// Logger is the handle passed down through config, worker and admin.
type Logger struct {
	log *logrus.Logger
}

// New builds a Logger writing JSON lines to w at the given level.
func New(level Level, w io.Writer) *Logger {
	if w == nil {
		w = os.Stderr
	}

	l := logrus.New()
	l.SetOutput(w)
	l.SetLevel(level.toLogrus())
	l.SetFormatter(&logrus.JSONFormatter{TimestampFormat: "2006-01-02T15:04:05.000Z07:00"})

	return &Logger{log: l}
}

// NewText is New but with the human-readable text formatter, used when
// attached to a terminal.
func NewText(level Level, w io.Writer) *Logger {
	if w == nil {
		w = os.Stderr
	}

	l := logrus.New()
	l.SetOutput(w)
	l.SetLevel(level.toLogrus())
	l.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})

	return &Logger{log: l}
}

func (l *Logger) SetLevel(level Level) {
	l.log.SetLevel(level.toLogrus())
}

// WithComponent returns an entry tagged with the given component name,
// e.g. "worker", "admin", "keyspace".
func (l *Logger) WithComponent(name string) *logrus.Entry {
	return l.log.WithField("component", name)
}

func (l *Logger) Entry() *logrus.Entry {
	return logrus.NewEntry(l.log)
}

// HCLog adapts this logger to the hclog.Logger interface expected by
// libraries vendored from the ecosystem (go-plugin style consumers).
func (l *Logger) HCLog(name string) hclog.Logger {
	w := l.WithComponent(name).WriterLevel(l.log.GetLevel())
	std := stdlog.New(w, "", 0)

	return hclog.FromStandardLogger(std, &hclog.LoggerOptions{
		Name:  name,
		Level: hclogLevel(l.log.GetLevel()),
	})
}

func hclogLevel(l logrus.Level) hclog.Level {
	switch l {
	case logrus.PanicLevel, logrus.FatalLevel, logrus.ErrorLevel:
		return hclog.Error
	case logrus.WarnLevel:
		return hclog.Warn
	case logrus.InfoLevel:
		return hclog.Info
	case logrus.DebugLevel:
		return hclog.Debug
	default:
		return hclog.Trace
	}
}
