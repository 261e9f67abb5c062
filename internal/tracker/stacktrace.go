// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package tracker

import (
	"bufio"
	"os"
	"runtime"
	"strconv"
	"strings"
)

// TopMethod names the synthetic frame that closes every stack trace.
const TopMethod = "[top]"

const (
	snippetLines   = 11
	snippetLineLen = 250
	maxFrames      = 64
)

// trackerPackage is the function-name prefix of frames recorded by the
// tracker itself; they are left out of reports.
var trackerPackage = func() string {
	pc, _, _, _ := runtime.Caller(0)
	name := runtime.FuncForPC(pc).Name()
	slash := strings.LastIndex(name, "/")
	return name[:slash+1+strings.Index(name[slash+1:], ".")+1]
}()

// Frame is one stack frame of a report.
type Frame struct {
	File             string            `json:"file"`
	LineNumber       int               `json:"line_number"`
	Method           string            `json:"method"`
	Class            string            `json:"class,omitempty"`
	CodeSnippet      map[string]string `json:"code_snippet,omitempty"`
	ApplicationFrame bool              `json:"application_frame"`
}

func (f Frame) payload() map[string]any {
	m := map[string]any{
		"file":              f.File,
		"line_number":       f.LineNumber,
		"method":            f.Method,
		"application_frame": f.ApplicationFrame,
	}
	if f.Class != "" {
		m["class"] = f.Class
	}
	snippet := make(map[string]any, len(f.CodeSnippet))
	for k, v := range f.CodeSnippet {
		snippet[k] = v
	}
	m["code_snippet"] = snippet
	return m
}

// Stacktrace is an ordered list of frames, innermost first.
type Stacktrace []Frame

// CaptureStacktrace records the calling goroutine's stack. skip counts
// frames above the caller of CaptureStacktrace to drop.
func CaptureStacktrace(skip int) Stacktrace {
	pcs := make([]uintptr, maxFrames)
	n := runtime.Callers(skip+2, pcs)
	return stacktraceFromPCs(pcs[:n])
}

func stacktraceFromPCs(pcs []uintptr) Stacktrace {
	var st Stacktrace
	frames := runtime.CallersFrames(pcs)
	var last runtime.Frame
	for {
		f, more := frames.Next()
		if f.Function != "" {
			last = f
			if !internalFrame(f) {
				class, method := splitFunction(f.Function)
				st = append(st, Frame{
					File:             f.File,
					LineNumber:       f.Line,
					Method:           method,
					Class:            class,
					CodeSnippet:      codeSnippet(f.File, f.Line),
					ApplicationFrame: applicationFrame(f),
				})
			}
		}
		if !more {
			break
		}
	}
	file := last.File
	if file == "" {
		file = "unknown"
	}
	return append(st, Frame{File: file, LineNumber: last.Line, Method: TopMethod})
}

// Payload returns the frames in wire form.
func (s Stacktrace) Payload() []any {
	out := make([]any, len(s))
	for i, f := range s {
		out[i] = f.payload()
	}
	return out
}

// FirstApplicationFrame returns the innermost frame from application code.
func (s Stacktrace) FirstApplicationFrame() (Frame, bool) {
	for _, f := range s {
		if f.ApplicationFrame {
			return f, true
		}
	}
	return Frame{}, false
}

func internalFrame(f runtime.Frame) bool {
	if strings.HasPrefix(f.Function, "runtime.") {
		return true
	}
	return strings.HasPrefix(f.Function, trackerPackage) && !strings.HasSuffix(f.File, "_test.go")
}

// applicationFrame reports whether a frame belongs to this program rather
// than the standard library or a dependency.
func applicationFrame(f runtime.Frame) bool {
	if strings.Contains(f.File, "/pkg/mod/") || strings.Contains(f.File, "/vendor/") {
		return false
	}
	if strings.HasPrefix(f.Function, "main.") {
		return true
	}
	first := f.Function
	if i := strings.Index(first, "/"); i >= 0 {
		first = first[:i]
	}
	return strings.Contains(first, ".")
}

// splitFunction splits a qualified Go function name into the receiver
// type and the method, e.g. "pkg.(*Server).Serve" -> ("pkg.Server", "Serve").
func splitFunction(name string) (class, method string) {
	slash := strings.LastIndex(name, "/")
	dot := strings.Index(name[slash+1:], ".")
	if dot < 0 {
		return "", name
	}
	pkg := name[:slash+1+dot]
	rest := name[slash+1+dot+1:]
	if strings.HasPrefix(rest, "(") {
		if end := strings.Index(rest, ")."); end > 0 {
			recv := strings.TrimPrefix(rest[1:end], "*")
			return pkg + "." + recv, rest[end+2:]
		}
	}
	return "", rest
}

// codeSnippet returns up to eleven lines around line, keyed by line number.
// Missing or unreadable files yield nil.
func codeSnippet(file string, line int) map[string]string {
	if file == "" || line <= 0 {
		return nil
	}
	fh, err := os.Open(file) //nolint:gosec // frame paths come from the runtime
	if err != nil {
		return nil
	}
	defer func() { _ = fh.Close() }()

	var lines []string
	sc := bufio.NewScanner(fh)
	sc.Buffer(make([]byte, 64*1024), 1024*1024)
	for sc.Scan() {
		lines = append(lines, sc.Text())
	}
	if sc.Err() != nil || len(lines) == 0 {
		return nil
	}

	start, end := snippetBounds(line, len(lines))
	out := make(map[string]string, end-start+1)
	for n := start; n <= end; n++ {
		text := lines[n-1]
		if len(text) > snippetLineLen {
			text = text[:snippetLineLen]
		}
		out[strconv.Itoa(n)] = strings.TrimRight(text, " \t\r\n")
	}
	return out
}

func snippetBounds(line, total int) (start, end int) {
	start = max(line-snippetLines/2, 1)
	end = start + snippetLines - 1
	if end > total {
		end = total
		start = max(end-(snippetLines-1), 1)
	}
	return start, end
}
