/*
 * Copyright 2025 SREDiag Authors
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package shlock

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/valyala/bytebufferpool"
)

type logger struct {
	name      string
	out       io.Writer
	callDepth int
}

var (
	internalLogger = newLogger("", os.Stderr)

	level atomic.Int32

	magenta = string([]byte{27, 91, 57, 53, 109}) // Trace
	green   = string([]byte{27, 91, 57, 50, 109}) // Debug
	blue    = string([]byte{27, 91, 57, 52, 109}) // Info
	yellow  = string([]byte{27, 91, 57, 51, 109}) // Warn
	red     = string([]byte{27, 91, 57, 49, 109}) // Error
	reset   = string([]byte{27, 91, 48, 109})

	colors = []string{
		magenta,
		green,
		blue,
		yellow,
		red,
	}

	levelName = []string{
		"Trace",
		"Debug",
		"Info",
		"Warn",
		"Error",
	}
)

// Log levels accepted by SetLogLevel and the `SHLOCK_LOG_LEVEL` env.
const (
	LevelTrace = iota
	LevelDebug
	LevelInfo
	LevelWarn
	LevelError
	LevelNoPrint
)

func init() {
	level.Store(LevelWarn)
	if v := os.Getenv("SHLOCK_LOG_LEVEL"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= LevelTrace && n <= LevelNoPrint {
			level.Store(int32(n))
		}
	}
}

// SetLogLevel changes the internal logger's level. The default level is Warn.
// The process env `SHLOCK_LOG_LEVEL` also sets it.
func SetLogLevel(l int) {
	if l >= LevelTrace && l <= LevelNoPrint {
		level.Store(int32(l))
	}
}

func newLogger(name string, out io.Writer) *logger {
	if out == nil {
		out = os.Stderr
	}
	return &logger{
		name:      name,
		out:       out,
		callDepth: 4,
	}
}

func (l *logger) logf(lv int, format string, a ...interface{}) {
	if int(level.Load()) > lv {
		return
	}
	buf := bytebufferpool.Get()
	defer bytebufferpool.Put(buf)
	l.prefix(buf, lv)
	_, _ = fmt.Fprintf(buf, format, a...)
	_, _ = buf.WriteString(reset)
	_ = buf.WriteByte('\n')
	if _, err := l.out.Write(buf.B); err != nil {
		fmt.Fprintf(os.Stderr, "logger write failed: %v\n", err)
	}
}

func (l *logger) errorf(format string, a ...interface{}) {
	l.logf(LevelError, format, a...)
}

func (l *logger) warnf(format string, a ...interface{}) {
	l.logf(LevelWarn, format, a...)
}

func (l *logger) infof(format string, a ...interface{}) {
	l.logf(LevelInfo, format, a...)
}

func (l *logger) debugf(format string, a ...interface{}) {
	l.logf(LevelDebug, format, a...)
}

func (l *logger) tracef(format string, a ...interface{}) {
	l.logf(LevelTrace, format, a...)
}

func (l *logger) prefix(buf *bytebufferpool.ByteBuffer, lv int) {
	_, _ = buf.WriteString(colors[lv])
	_, _ = buf.WriteString(levelName[lv])
	_ = buf.WriteByte(' ')
	_, _ = buf.WriteString(time.Now().Format("2006-01-02 15:04:05.999999"))
	_ = buf.WriteByte(' ')
	_, _ = buf.WriteString(l.location())
	_ = buf.WriteByte(' ')
	if l.name != "" {
		_, _ = buf.WriteString(l.name)
		_ = buf.WriteByte(' ')
	}
}

func (l *logger) location() string {
	// prefix, logf and the level wrapper sit between the caller and here.
	_, file, line, ok := runtime.Caller(l.callDepth)
	if !ok {
		file = "???"
		line = 0
	}
	file = filepath.Base(file)
	return file + ":" + strconv.Itoa(line)
}

// HeaderInfo is a snapshot of a primitive's shared header.
type HeaderInfo struct {
	Name    string
	Size    int
	Kind    Kind
	State   string
	Magic   bool
	Word    uint32
	Waiters uint32
	Writers uint32
}

// ReadHeader reads the header of a named primitive without mapping it. The
// fields are read without synchronization and are only good for diagnostics.
func ReadHeader(name string, opts ...Option) (HeaderInfo, error) {
	config, err := newConfig(opts)
	if err != nil {
		return HeaderInfo{}, err
	}
	clean, err := cleanName(name)
	if err != nil {
		return HeaderInfo{}, err
	}
	mem, err := os.ReadFile(filepath.Join(config.Dir, clean))
	if err != nil {
		return HeaderInfo{}, err
	}
	if len(mem) < preambleSize {
		return HeaderInfo{}, fmt.Errorf("%w: %s is %d bytes", ErrKindMismatch, clean, len(mem))
	}
	h := headerView(mem)
	info := HeaderInfo{
		Name:  clean,
		Size:  len(mem),
		Kind:  Kind(h.load(offKind)),
		State: stateName(h.load(offState)),
		Magic: h.load(offMagic) == headerMagic,
	}
	if len(mem) >= offBody+4 {
		info.Word = h.load(offBody)
	}
	if len(mem) >= offBody+8 {
		info.Waiters = h.load(offBody + 4)
	}
	if info.Kind == KindRWLock && len(mem) >= rwlockSize {
		info.Writers = h.load(offRWWriters)
	}
	return info, nil
}

// DebugHeader prints the header of the primitive which was mapped under `name`.
func DebugHeader(w io.Writer, name string, opts ...Option) error {
	info, err := ReadHeader(name, opts...)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "name:%s kind:%s size:%d state:%s magic:%t word:%#x waiters:%d writers:%d\n",
		info.Name, info.Kind, info.Size, info.State, info.Magic, info.Word, info.Waiters, info.Writers)
	return err
}
