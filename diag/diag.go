// The MIT License (MIT)
//
// # Copyright (c) 2016 xtaci
//
// Permission is hereby granted, free of charge, to any person obtaining a copy
// of this software and associated documentation files (the "Software"), to deal
// in the Software without restriction, including without limitation the rights
// to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
// copies of the Software, and to permit persons to whom the Software is
// furnished to do so, subject to the following conditions:
//
// The above copyright notice and this permission notice shall be included in all
// copies or substantial portions of the Software.
//
// THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
// IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
// FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
// AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
// LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
// OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
// SOFTWARE.

// Package diag holds the demo binary's logging and error-reporting
// conventions: log.SetFlags/optional file redirect the way client/main.go
// and server/main.go do it, github.com/pkg/errors wrapping at every error
// boundary, and github.com/fatih/color for CLI-surfaced warnings.
package diag

import (
	"encoding/csv"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/fatih/color"
	"github.com/pkg/errors"

	"github.com/ccnet-go/ccnet/proc"
)

// Init sets the standard logger's flags the way the teacher's mains do
// (extra file:line detail outside of release builds) and, if logPath is
// non-empty, redirects log output to that file. The returned func closes
// the file and must be deferred by the caller.
func Init(debug bool, logPath string) (func(), error) {
	if debug {
		log.SetFlags(log.LstdFlags | log.Lshortfile)
	}
	if logPath == "" {
		return func() {}, nil
	}
	f, err := os.OpenFile(logPath, os.O_RDWR|os.O_CREATE|os.O_APPEND, 0666)
	if err != nil {
		return nil, errors.Wrap(err, "diag: opening log file")
	}
	log.SetOutput(f)
	return func() { f.Close() }, nil
}

// Fatal logs err's full chain (via %+v, which pkg/errors renders with a
// stack trace when one was attached) and exits non-zero. Mirrors
// checkError in client/main.go and server/main.go.
func Fatal(err error) {
	if err == nil {
		return
	}
	log.Printf("%+v\n", err)
	os.Exit(1)
}

// Warn prints a CLI-visible warning in red, the way client/main.go flags
// QPP/config inconsistencies (color.Red(...)).
func Warn(format string, args ...interface{}) {
	color.Red(format, args...)
}

// Wrap is a thin re-export of errors.Wrap so callers need only import diag
// at error-boundary crossings (dial, listen, config load, transform setup).
func Wrap(err error, message string) error {
	return errors.Wrap(err, message)
}

// Wrapf is the formatted counterpart of Wrap.
func Wrapf(err error, format string, args ...interface{}) error {
	return errors.Wrapf(err, format, args...)
}

// WriteRecycleCSV appends factory's recycle log to path in CSV form,
// writing a header only when the file is empty (same append/header-once
// pattern as the teacher's SnmpLogger in std/snmp.go, applied to
// Factory.RecentlyRecycled instead of kcp's SNMP counters).
func WriteRecycleCSV(path string, factory *proc.Factory) error {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_APPEND, 0666)
	if err != nil {
		return errors.Wrap(err, "diag: opening recycle log")
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if stat, err := f.Stat(); err == nil && stat.Size() == 0 {
		if err := w.Write([]string{"unix", "service", "created_at", "destroyed_at", "reason"}); err != nil {
			return errors.Wrap(err, "diag: writing recycle log header")
		}
	}
	for _, e := range factory.RecentlyRecycled() {
		row := []string{
			fmt.Sprint(time.Now().Unix()),
			e.ServiceName,
			e.CreatedAt.Format(time.RFC3339),
			e.DestroyedAt.Format(time.RFC3339),
			e.Reason.String(),
		}
		if err := w.Write(row); err != nil {
			return errors.Wrap(err, "diag: writing recycle log row")
		}
	}
	w.Flush()
	return errors.WithStack(w.Error())
}
