// Package worker accepts connections, captures each request, asks the
// registry for a match, and writes the response or the 501 fallback.
package worker

import (
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"sync/atomic"

	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"

	"go.mockhttp.dev/mockhttp/internal/capture"
	"go.mockhttp.dev/mockhttp/internal/registry"
	"go.mockhttp.dev/mockhttp/internal/respbuild"
)

// Worker owns one listener and dispatches every accepted connection's
// requests through reg. It serves HTTP/1.1 and, via h2c, prior-knowledge
// HTTP/2 cleartext on the same listener.
type Worker struct {
	reg      *registry.Registry
	logMu    sync.Mutex
	log      *slog.Logger
	listener net.Listener
	server   *http.Server
	closed   atomic.Bool
}

// Listen opens a TCP listener on addr (empty host means all interfaces,
// port 0 means an ephemeral port assigned by the kernel) and returns a
// Worker ready to Serve.
func Listen(addr string, reg *registry.Registry, log *slog.Logger) (*Worker, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("worker: listen %s: %w", addr, err)
	}
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	w := &Worker{reg: reg, log: log, listener: ln}

	h2s := &http2.Server{}
	w.server = &http.Server{
		Handler: h2c.NewHandler(http.HandlerFunc(w.handle), h2s),
	}
	return w, nil
}

// Addr returns the bound address (host:port), stable once Listen succeeds.
func (w *Worker) Addr() net.Addr { return w.listener.Addr() }

// SetLogger replaces the worker's logger, overriding whatever the owning
// pool installed at acquisition time. Safe to call while Serve is running.
func (w *Worker) SetLogger(log *slog.Logger) {
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	w.logMu.Lock()
	w.log = log
	w.logMu.Unlock()
}

func (w *Worker) logger() *slog.Logger {
	w.logMu.Lock()
	defer w.logMu.Unlock()
	return w.log
}

// Serve blocks, accepting and dispatching connections, until Close is called.
func (w *Worker) Serve() error {
	err := w.server.Serve(w.listener)
	if w.closed.Load() {
		return nil
	}
	return err
}

// Close terminates the worker; in-flight responses may be truncated.
func (w *Worker) Close() error {
	w.closed.Store(true)
	return w.server.Close()
}

func (w *Worker) handle(rw http.ResponseWriter, r *http.Request) {
	defer func() {
		if p := recover(); p != nil {
			w.logger().Warn("worker: recovered panic handling request", "panic", p)
			rw.WriteHeader(http.StatusInternalServerError)
		}
	}()

	req, err := capture.FromHTTP(r)
	if err != nil {
		w.logger().Debug("worker: failed to capture request", "error", err)
		rw.WriteHeader(http.StatusBadRequest)
		return
	}

	mock, ok := w.reg.Find(req)
	if !ok {
		w.logger().Debug("worker: no mock matched", "method", req.Method, "path", req.Path)
		rw.Header().Set("Content-Type", "text/plain")
		rw.WriteHeader(http.StatusNotImplemented)
		fmt.Fprintf(rw, "no mock matches %s %s", req.Method, req.Path)
		return
	}

	built, err := respbuild.Build(mock.Response, req, r.ProtoMajor == 2)
	if err != nil {
		w.logger().Warn("worker: failed to build response", "mock_id", mock.ID, "error", err)
		rw.WriteHeader(http.StatusInternalServerError)
		return
	}

	header := rw.Header()
	for name, values := range built.Headers {
		for _, v := range values {
			header.Add(name, v)
		}
	}
	rw.WriteHeader(built.Status)
	rw.Write(built.Body)
}
