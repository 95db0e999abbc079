package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"
	"go.uber.org/zap"
)

// ConsoleEntry is one buffered console message from the page.
type ConsoleEntry struct {
	Level string        `json:"level"`
	Args  []interface{} `json:"args"`
}

// NetworkEntry is one buffered response observed on the page.
type NetworkEntry struct {
	URL    string `json:"url"`
	Method string `json:"method"`
	Status int    `json:"status"`
}

// PageLogs buffers console and network traffic for one page so failures can
// be reconstructed after the fact.
type PageLogs struct {
	mu      sync.Mutex
	console []ConsoleEntry
	network []NetworkEntry
}

// AttachLogBuffers starts buffering console and network events for the page.
// The listeners live until the page closes.
func AttachLogBuffers(page *rod.Page, log *zap.SugaredLogger) *PageLogs {
	logs := &PageLogs{}

	if err := (proto.NetworkEnable{}).Call(page); err != nil {
		log.Debugw("network event capture unavailable", "error", err)
	}

	go page.EachEvent(func(e *proto.RuntimeConsoleAPICalled) {
		entry := ConsoleEntry{Level: string(e.Type)}
		for _, arg := range e.Args {
			if arg.Value.Nil() {
				entry.Args = append(entry.Args, arg.Description)
			} else {
				entry.Args = append(entry.Args, arg.Value.Val())
			}
		}
		logs.mu.Lock()
		logs.console = append(logs.console, entry)
		logs.mu.Unlock()
	}, func(e *proto.NetworkRequestWillBeSent) {
		logs.mu.Lock()
		logs.network = append(logs.network, NetworkEntry{
			URL:    e.Request.URL,
			Method: e.Request.Method,
		})
		logs.mu.Unlock()
	}, func(e *proto.NetworkResponseReceived) {
		logs.mu.Lock()
		logs.network = append(logs.network, NetworkEntry{
			URL:    e.Response.URL,
			Status: e.Response.Status,
		})
		logs.mu.Unlock()
	})()

	return logs
}

func (l *PageLogs) Console() []ConsoleEntry {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]ConsoleEntry(nil), l.console...)
}

func (l *PageLogs) Network() []NetworkEntry {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]NetworkEntry(nil), l.network...)
}

// Diagnostics persists failure artifacts under a fixed directory with a
// deterministic naming scheme: {context}-{timestamp}.{ext}. Every write is
// attempted independently and every capture error is swallowed; diagnostics
// must never mask the error that triggered them.
type Diagnostics struct {
	dir string
	log *zap.SugaredLogger
	now func() time.Time
}

func NewDiagnostics(dir string, log *zap.SugaredLogger) *Diagnostics {
	return &Diagnostics{dir: dir, log: log, now: time.Now}
}

// Capture writes screenshot, page HTML, and any buffered logs.
func (d *Diagnostics) Capture(page *rod.Page, context string, logs *PageLogs) {
	d.CaptureError(page, context, logs, nil)
}

// CaptureError is Capture plus an error-text artifact.
func (d *Diagnostics) CaptureError(page *rod.Page, context string, logs *PageLogs, cause error) {
	stamp := artifactTimestamp(d.now())
	base := filepath.Join(d.dir, fmt.Sprintf("%s-%s", context, stamp))

	if err := os.MkdirAll(d.dir, 0755); err != nil {
		d.log.Warnw("could not create artifact dir", "dir", d.dir, "error", err)
		return
	}

	if page != nil {
		if data, err := page.Screenshot(true, nil); err == nil {
			d.write(base+".png", data)
		} else {
			d.log.Debugw("screenshot capture failed", "context", context, "error", err)
		}

		if html, err := page.HTML(); err == nil {
			d.write(base+".html", []byte(html))
		} else {
			d.log.Debugw("html capture failed", "context", context, "error", err)
		}
	}

	if logs != nil {
		d.writeConsoleLog(base+".console.log", logs.Console())
		d.writeNetworkLog(base+".network.log", logs.Network())
	}

	if cause != nil {
		d.write(base+".error.log", []byte(cause.Error()))
	}

	d.log.Infow("saved diagnostic artifacts", "prefix", base)
}

func (d *Diagnostics) write(path string, data []byte) {
	if err := os.WriteFile(path, data, 0644); err != nil {
		d.log.Debugw("artifact write failed", "path", path, "error", err)
	}
}

// writeConsoleLog serializes entries line by line; an entry that cannot be
// marshalled falls back to its string form rather than losing the file.
func (d *Diagnostics) writeConsoleLog(path string, entries []ConsoleEntry) {
	if len(entries) == 0 {
		return
	}
	var b strings.Builder
	for _, entry := range entries {
		line, err := json.Marshal(entry)
		if err != nil {
			b.WriteString(fmt.Sprintf("%v %v", entry.Level, entry.Args))
		} else {
			b.Write(line)
		}
		b.WriteByte('\n')
	}
	d.write(path, []byte(b.String()))
}

func (d *Diagnostics) writeNetworkLog(path string, entries []NetworkEntry) {
	if len(entries) == 0 {
		return
	}
	var b strings.Builder
	for _, entry := range entries {
		line, err := json.Marshal(entry)
		if err != nil {
			b.WriteString(fmt.Sprintf("%v", entry))
		} else {
			b.Write(line)
		}
		b.WriteByte('\n')
	}
	d.write(path, []byte(b.String()))
}

// artifactTimestamp is ISO-8601 with colons replaced so the name is safe on
// every filesystem.
func artifactTimestamp(t time.Time) string {
	return strings.ReplaceAll(t.UTC().Format("2006-01-02T15:04:05.000Z"), ":", "-")
}
