package deventry

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/rs/cors"
	"goji.io"
	"goji.io/pat"

	"go.viam.com/spibridge/components/spibridge/status"
	"go.viam.com/spibridge/logging"
)

const (
	// BytesTransferredHeader carries the byte count of a read or write, including partial ones.
	BytesTransferredHeader = "X-Bytes-Transferred"
	// RequestIDHeader identifies a read or write in the registrar's logs.
	RequestIDHeader = "X-Request-Id"
)

// HTTPRegistrar serves its entries over HTTP:
//
//	GET  /dev              list entry names
//	GET  /dev/:name?length read one request of length bytes
//	POST /dev/:name        write the request body
type HTTPRegistrar struct {
	*MemRegistrar
	mux     *goji.Mux
	handler http.Handler
	logger  logging.Logger
}

var _ Registrar = (*HTTPRegistrar)(nil)

// NewHTTPRegistrar returns a registrar with no entries.
func NewHTTPRegistrar(logger logging.Logger) *HTTPRegistrar {
	hr := &HTTPRegistrar{MemRegistrar: NewMemRegistrar(), mux: goji.NewMux(), logger: logger}
	hr.mux.Handle(pat.Get("/dev"), &listHandler{hr})
	hr.mux.Handle(pat.Get("/dev/:name"), &readHandler{hr})
	hr.mux.Handle(pat.Post("/dev/:name"), &writeHandler{hr})
	hr.handler = cors.AllowAll().Handler(hr.mux)
	return hr
}

func (hr *HTTPRegistrar) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	hr.handler.ServeHTTP(w, r)
}

// Create implements Registrar.
func (hr *HTTPRegistrar) Create(ctx context.Context, name string, ops Ops) error {
	if err := hr.MemRegistrar.Create(ctx, name, ops); err != nil {
		return err
	}
	hr.logger.Infow("device entry created", "name", name)
	return nil
}

// Remove implements Registrar.
func (hr *HTTPRegistrar) Remove(ctx context.Context, name string) error {
	if err := hr.MemRegistrar.Remove(ctx, name); err != nil {
		return err
	}
	hr.logger.Infow("device entry removed", "name", name)
	return nil
}

// ErrorResponse is the body of a failed request.
type ErrorResponse struct {
	Error  string `json:"error"`
	Status string `json:"status"`
	Errno  int    `json:"errno"`
}

// HTTPStatus returns the response code for err.
func HTTPStatus(err error) int {
	switch status.Of(err) {
	case status.OK:
		return http.StatusOK
	case status.NotReady:
		return http.StatusServiceUnavailable
	case status.InvalidArgument:
		return http.StatusBadRequest
	case status.ResourceExhausted:
		return http.StatusInsufficientStorage
	case status.TransportFailure:
		return http.StatusBadGateway
	case status.PartialCopy:
		return http.StatusPartialContent
	case status.BindingConflict:
		return http.StatusConflict
	case status.Unknown:
		if errors.Is(err, ErrNoSuchEntry) {
			return http.StatusNotFound
		}
		return http.StatusInternalServerError
	default:
		return http.StatusInternalServerError
	}
}

func (hr *HTTPRegistrar) writeError(w http.ResponseWriter, err error) {
	code := status.Of(err)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(HTTPStatus(err))
	if encErr := json.NewEncoder(w).Encode(ErrorResponse{
		Error:  err.Error(),
		Status: code.String(),
		Errno:  int(code.Errno()),
	}); encErr != nil {
		hr.logger.Debugw("error writing error response", "error", encErr)
	}
}

type listHandler struct {
	hr *HTTPRegistrar
}

func (h *listHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(h.hr.Names()); err != nil {
		h.hr.logger.Debugw("error writing entry list", "error", err)
	}
}

type readHandler struct {
	hr *HTTPRegistrar
}

// ServeHTTP reads from the entry into memory first so a failed read never sends a partial 200.
func (h *readHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ops, err := h.hr.Lookup(pat.Param(r, "name"))
	if err != nil {
		h.hr.writeError(w, err)
		return
	}
	length, err := strconv.Atoi(r.URL.Query().Get("length"))
	if err != nil {
		h.hr.writeError(w, errors.Wrap(status.ErrInvalidRequest, "length query parameter must be an integer"))
		return
	}

	reqID := uuid.New().String()
	w.Header().Set(RequestIDHeader, reqID)
	var buf bytes.Buffer
	n, err := ReadEntry(r.Context(), ops, length, &buf)
	h.hr.logger.Debugw("read", "request_id", reqID, "entry", pat.Param(r, "name"), "length", length, "n", n, "error", err)
	w.Header().Set(BytesTransferredHeader, strconv.Itoa(n))
	if err != nil && status.Of(err) != status.PartialCopy {
		h.hr.writeError(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/octet-stream")
	w.WriteHeader(HTTPStatus(err))
	if _, err := w.Write(buf.Bytes()); err != nil {
		h.hr.logger.Debugw("error writing read response", "error", err)
	}
}

type writeHandler struct {
	hr *HTTPRegistrar
}

func (h *writeHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ops, err := h.hr.Lookup(pat.Param(r, "name"))
	if err != nil {
		h.hr.writeError(w, err)
		return
	}
	if r.ContentLength < 0 {
		http.Error(w, "Content-Length required", http.StatusLengthRequired)
		return
	}
	reqID := uuid.New().String()
	w.Header().Set(RequestIDHeader, reqID)
	n, err := WriteEntry(r.Context(), ops, int(r.ContentLength), r.Body)
	h.hr.logger.Debugw("write", "request_id", reqID, "entry", pat.Param(r, "name"), "length", r.ContentLength, "n", n, "error", err)
	w.Header().Set(BytesTransferredHeader, strconv.Itoa(n))
	if err != nil {
		h.hr.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusOK)
}
