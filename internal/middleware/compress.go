// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package middleware

import (
	"bytes"
	"mime"
	"net/http"
	"strings"
	"sync"

	"github.com/klauspost/compress/gzip"
)

// maxPooledBuffer is the largest response buffer returned to the pool.
const maxPooledBuffer = 256 * 1024

var bufferPool = sync.Pool{
	New: func() any { return bytes.NewBuffer(make([]byte, 0, 4*1024)) },
}

// Compress gzip-compresses responses of at least minSize bytes with a
// compressible content type, for clients that accept gzip. The response is
// buffered so the decision can be made on the full body.
func Compress(level, minSize int) func(http.Handler) http.Handler {
	writers := sync.Pool{
		New: func() any {
			gz, err := gzip.NewWriterLevel(nil, level)
			if err != nil {
				gz, _ = gzip.NewWriterLevel(nil, gzip.DefaultCompression)
			}
			return gz
		},
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !acceptsGzip(r) {
				next.ServeHTTP(w, r)
				return
			}

			buf := bufferPool.Get().(*bytes.Buffer)
			defer func() {
				if buf.Cap() <= maxPooledBuffer {
					buf.Reset()
					bufferPool.Put(buf)
				}
			}()

			bw := &bufferedWriter{ResponseWriter: w, body: buf}
			next.ServeHTTP(bw, r)
			bw.finish(&writers, minSize)
		})
	}
}

// bufferedWriter holds the status and body until the handler returns.
type bufferedWriter struct {
	http.ResponseWriter
	body   *bytes.Buffer
	status int
}

func (bw *bufferedWriter) WriteHeader(status int) {
	if bw.status == 0 {
		bw.status = status
	}
}

func (bw *bufferedWriter) Write(b []byte) (int, error) {
	return bw.body.Write(b)
}

func (bw *bufferedWriter) finish(writers *sync.Pool, minSize int) {
	h := bw.Header()
	compress := bw.body.Len() > 0 && bw.body.Len() >= minSize &&
		h.Get("Content-Encoding") == "" && isCompressible(h.Get("Content-Type"))

	if compress {
		h.Set("Content-Encoding", "gzip")
		h.Add("Vary", "Accept-Encoding")
		h.Del("Content-Length")
	}
	if bw.status != 0 {
		bw.ResponseWriter.WriteHeader(bw.status)
	}
	if bw.body.Len() == 0 {
		return
	}
	if !compress {
		_, _ = bw.ResponseWriter.Write(bw.body.Bytes())
		return
	}

	gz := writers.Get().(*gzip.Writer)
	gz.Reset(bw.ResponseWriter)
	_, _ = gz.Write(bw.body.Bytes())
	_ = gz.Close()
	writers.Put(gz)
}

func acceptsGzip(r *http.Request) bool {
	for _, part := range strings.Split(r.Header.Get("Accept-Encoding"), ",") {
		coding, params, _ := strings.Cut(strings.TrimSpace(part), ";")
		if strings.EqualFold(strings.TrimSpace(coding), "gzip") {
			return strings.ReplaceAll(strings.TrimSpace(params), " ", "") != "q=0"
		}
	}
	return false
}

// isCompressible reports whether a response of contentType is worth
// compressing: JSON and any text type.
func isCompressible(contentType string) bool {
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return false
	}
	return mediaType == "application/json" || mediaType == "application/problem+json" ||
		strings.HasPrefix(mediaType, "text/")
}
