// Package gateway exposes one device over a small JSON HTTP API: submit
// frames, fetch received ones, run an interrupt service pass and read the
// counters. It is the remote-access counterpart of driving the device in
// process.
package gateway

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"sync"

	"github.com/tsambor/gocanfd/pkg/can"
	"github.com/tsambor/gocanfd/pkg/device"
)

// rxBufferCap bounds the frames held for HTTP consumers; beyond it the
// oldest frames are discarded.
const rxBufferCap = 1024

// Server owns the HTTP routes for one device. Received frames are buffered
// until a client fetches them, since HTTP cannot push.
type Server struct {
	dev    *device.Device
	cfg    device.Config
	logger *slog.Logger
	mux    *http.ServeMux

	mu        sync.Mutex
	rx        []can.Frame
	rxDropped uint64
}

func NewServer(dev *device.Device, cfg device.Config, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{dev: dev, cfg: cfg, logger: logger.With("service", "gateway")}
	dev.OnReceive(s.capture)

	s.mux = http.NewServeMux()
	s.mux.HandleFunc("/v1/status", s.handleStatus)
	s.mux.HandleFunc("/v1/frames", s.handleFrames)
	s.mux.HandleFunc("/v1/service", s.handleService)
	return s
}

// Handler returns the route multiplexer, for mounting under a custom server.
func (s *Server) Handler() http.Handler {
	return s.mux
}

// ListenAndServe blocks serving the API on addr.
func (s *Server) ListenAndServe(addr string) error {
	return http.ListenAndServe(addr, s.mux)
}

func (s *Server) capture(frame can.Frame) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.rx) >= rxBufferCap {
		s.rx = s.rx[1:]
		s.rxDropped++
	}
	s.rx = append(s.rx, frame)
}

// take removes and returns up to max buffered frames, oldest first.
func (s *Server) take(max int) []can.Frame {
	s.mu.Lock()
	defer s.mu.Unlock()
	if max <= 0 || max > len(s.rx) {
		max = len(s.rx)
	}
	out := make([]can.Frame, max)
	copy(out, s.rx[:max])
	s.rx = s.rx[max:]
	return out
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, errors.New("gateway: GET only"))
		return
	}
	c := s.dev.Counters()
	writeJSON(w, http.StatusOK, StatusResponse{
		PayloadMode: s.cfg.PayloadMode.String(),
		TxSubmitted: c.TxSubmitted,
		TxCompleted: c.TxCompleted,
		TxDropped:   c.TxDropped,
		RxReceived:  c.RxReceived,
		RxOverflow:  c.RxOverflow,
		BusErrors:   c.BusErrors,
	})
}

func (s *Server) handleFrames(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		var in FrameJSON
		if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		frame, err := decodeFrame(in)
		if err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		if err := s.dev.Submit(frame); err != nil {
			writeError(w, errorStatus(err), err)
			return
		}
		writeJSON(w, http.StatusOK, struct{}{})
	case http.MethodGet:
		frames := s.take(0)
		resp := FramesResponse{Frames: make([]FrameJSON, len(frames))}
		for i, frame := range frames {
			resp.Frames[i] = encodeFrame(frame)
		}
		writeJSON(w, http.StatusOK, resp)
	default:
		writeError(w, http.StatusMethodNotAllowed, errors.New("gateway: GET or POST only"))
	}
}

// handleService runs one interrupt service pass on behalf of the client,
// for deployments where no interrupt collaborator drives the device.
func (s *Server) handleService(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, errors.New("gateway: POST only"))
		return
	}
	if err := s.dev.Service(); err != nil {
		writeError(w, errorStatus(err), err)
		return
	}
	writeJSON(w, http.StatusOK, struct{}{})
}

// errorStatus maps device errors onto HTTP status codes: backpressure and
// contention are retryable, a stopped device is not.
func errorStatus(err error) int {
	switch {
	case errors.Is(err, device.ErrBusy),
		errors.Is(err, device.ErrSubmitTimeout),
		errors.Is(err, device.ErrServiceBusy):
		return http.StatusTooManyRequests
	case errors.Is(err, device.ErrClosed),
		errors.Is(err, device.ErrNotConfigured):
		return http.StatusConflict
	}
	return http.StatusInternalServerError
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, ErrorResponse{Error: err.Error()})
}
