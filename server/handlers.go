package server

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/awnumar/memguard"
	zerotrust "github.com/mayanks4367/zero-trust"
)

func (s *Server) handleUnlock(w http.ResponseWriter, r *http.Request) {
	var req UnlockRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, 1024)).Decode(&req); err != nil {
		s.writeError(w, r, fmt.Errorf("%w: malformed unlock body", zerotrust.ErrInvalidRequest))
		return
	}

	err := s.svc.Unlock(r.Context(), req.PIN)
	req.PIN = 0
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleControl(w http.ResponseWriter, r *http.Request) {
	var req ControlRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, 1024)).Decode(&req); err != nil {
		s.writeError(w, r, fmt.Errorf("%w: malformed control body", zerotrust.ErrInvalidRequest))
		return
	}
	defer memguard.WipeBytes(req.Arg)

	if err := s.svc.Control(r.Context(), req.Code, bytes.NewReader(req.Arg)); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleRead(w http.ResponseWriter, r *http.Request) {
	offset, err := queryInt(r, "offset", 0)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	length, err := queryInt(r, "length", zerotrust.MaxSecretSize)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	if length > zerotrust.MaxSecretSize {
		length = zerotrust.MaxSecretSize
	}

	var buf bytes.Buffer
	next, n, err := s.svc.ReadAt(r.Context(), &buf, offset, int(length))
	defer memguard.WipeBytes(buf.Bytes())
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	w.Header().Set("Content-Type", "application/octet-stream")
	w.Header().Set("Content-Length", strconv.Itoa(n))
	w.Header().Set("Cache-Control", "no-store")
	w.Header().Set(NextOffsetHeader, strconv.FormatInt(next, 10))
	w.WriteHeader(http.StatusOK)
	if _, err = w.Write(buf.Bytes()); err != nil {
		s.log.Warn().Err(err).Str("rid", GetRequestID(r.Context())).Msg("failed to deliver secret bytes")
	}
}

func (s *Server) handleWrite(w http.ResponseWriter, r *http.Request) {
	// one byte past capacity tells a truncated write apart from an exact fit
	body, err := io.ReadAll(io.LimitReader(r.Body, zerotrust.MaxSecretSize+1))
	defer memguard.WipeBytes(body)
	if err != nil {
		s.writeError(w, r, fmt.Errorf("%w: request body: %v", zerotrust.ErrTransferFault, err))
		return
	}

	stored, err := s.svc.Write(r.Context(), bytes.NewReader(body), len(body))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, WriteResponse{Stored: stored, Truncated: stored < len(body)})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	st, err := s.svc.Status(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, st)
}

func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (s *Server) handleReadyz(w http.ResponseWriter, _ *http.Request) {
	if s.ready.Load() {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ready"))
		return
	}
	http.Error(w, "not ready", http.StatusServiceUnavailable)
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	code, status := classify(err)
	event := s.log.Warn()
	if status >= http.StatusInternalServerError {
		event = s.log.Error()
	}
	event.Err(err).Str("rid", GetRequestID(r.Context())).Str("code", code).Msg("request failed")

	s.writeJSON(w, status, ErrorResponse{Error: err.Error(), Code: code})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.log.Error().Err(err).Msg("failed to encode response")
	}
}

func queryInt(r *http.Request, name string, fallback int64) (int64, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return fallback, nil
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %s must be an integer", zerotrust.ErrInvalidRequest, name)
	}
	return v, nil
}
