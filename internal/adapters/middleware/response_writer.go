package middleware

import (
	"bufio"
	"net"
	"net/http"
)

// FlushableResponseWriter wraps an http.ResponseWriter to capture the
// status code and byte count an access-log or metrics middleware needs,
// while still forwarding Flush/Hijack/Push to the underlying writer when it
// supports them — a chi handler further down the chain (e.g. SSE, gRPC-Web)
// may depend on one of those.
type FlushableResponseWriter struct {
	http.ResponseWriter
	statusCode   int
	bytesWritten int64
	flusher      http.Flusher
	hijacker     http.Hijacker
	pusher       http.Pusher
}

func NewFlushableResponseWriter(w http.ResponseWriter) *FlushableResponseWriter {
	flusher, _ := capability[http.Flusher](w)
	hijacker, _ := capability[http.Hijacker](w)
	pusher, _ := capability[http.Pusher](w)

	return &FlushableResponseWriter{
		ResponseWriter: w,
		statusCode:     http.StatusOK,
		flusher:        flusher,
		hijacker:       hijacker,
		pusher:         pusher,
	}
}

// capability type-asserts w to T, returning the zero value and false when w
// doesn't implement it.
func capability[T any](w http.ResponseWriter) (T, bool) {
	t, ok := w.(T)

	return t, ok
}

func (f *FlushableResponseWriter) WriteHeader(code int) {
	f.statusCode = code
	f.ResponseWriter.WriteHeader(code)
}

func (f *FlushableResponseWriter) Write(b []byte) (int, error) {
	n, err := f.ResponseWriter.Write(b)
	f.bytesWritten += int64(n)

	return n, err
}

func (f *FlushableResponseWriter) Flush() {
	if f.flusher != nil {
		f.flusher.Flush()
	}
}

func (f *FlushableResponseWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	if f.hijacker != nil {
		return f.hijacker.Hijack()
	}

	return nil, nil, http.ErrNotSupported
}

func (f *FlushableResponseWriter) Push(target string, opts *http.PushOptions) error {
	if f.pusher != nil {
		return f.pusher.Push(target, opts)
	}

	return http.ErrNotSupported
}

func (f *FlushableResponseWriter) StatusCode() int {
	return f.statusCode
}

func (f *FlushableResponseWriter) BytesWritten() int64 {
	return f.bytesWritten
}

func (f *FlushableResponseWriter) Unwrap() http.ResponseWriter {
	return f.ResponseWriter
}
