package deventry

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"go.viam.com/test"

	"go.viam.com/spibridge/components/spibridge/status"
	"go.viam.com/spibridge/logging"
)

// echoOps reads back whatever was last written, padded to the requested length.
type echoOps struct {
	last     []byte
	readErr  error
	opened   int
	released int
}

func (e *echoOps) Open(ctx context.Context) error {
	e.opened++
	return nil
}

func (e *echoOps) Release(ctx context.Context) error {
	e.released++
	return nil
}

func (e *echoOps) ReadTo(ctx context.Context, length int, w io.Writer) (int, error) {
	if e.readErr != nil {
		return 0, e.readErr
	}
	if length != 4 {
		return 0, errors.Wrap(status.ErrInvalidRequest, "length must be 4")
	}
	out := make([]byte, length)
	copy(out, e.last)
	return w.Write(out)
}

func (e *echoOps) WriteFrom(ctx context.Context, length int, r io.Reader) (int, error) {
	e.last = make([]byte, length)
	if _, err := io.ReadFull(r, e.last); err != nil {
		return 0, errors.Wrap(status.ErrBoundaryCopy, err.Error())
	}
	return length, nil
}

func TestMemRegistrar(t *testing.T) {
	ctx := context.Background()
	var mr MemRegistrar
	test.That(t, mr.Names(), test.ShouldBeEmpty)

	ops := &echoOps{}
	test.That(t, mr.Create(ctx, "lepton", ops), test.ShouldBeNil)
	test.That(t, mr.Create(ctx, "st7735", ops), test.ShouldBeNil)
	test.That(t, errors.Is(mr.Create(ctx, "lepton", ops), ErrEntryExists), test.ShouldBeTrue)
	test.That(t, mr.Create(ctx, "", ops), test.ShouldNotBeNil)
	test.That(t, mr.Names(), test.ShouldResemble, []string{"lepton", "st7735"})

	got, err := mr.Lookup("lepton")
	test.That(t, err, test.ShouldBeNil)
	test.That(t, got, test.ShouldEqual, ops)

	test.That(t, mr.Remove(ctx, "lepton"), test.ShouldBeNil)
	test.That(t, errors.Is(mr.Remove(ctx, "lepton"), ErrNoSuchEntry), test.ShouldBeTrue)
	_, err = mr.Lookup("lepton")
	test.That(t, errors.Is(err, ErrNoSuchEntry), test.ShouldBeTrue)
}

func TestEntrySequences(t *testing.T) {
	ctx := context.Background()
	ops := &echoOps{}

	n, err := WriteEntry(ctx, ops, 2, strings.NewReader("hi"))
	test.That(t, err, test.ShouldBeNil)
	test.That(t, n, test.ShouldEqual, 2)

	var buf bytes.Buffer
	n, err = ReadEntry(ctx, ops, 4, &buf)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, n, test.ShouldEqual, 4)
	test.That(t, buf.Bytes(), test.ShouldResemble, []byte{'h', 'i', 0, 0})

	_, err = ReadEntry(ctx, ops, 3, &buf)
	test.That(t, errors.Is(err, status.ErrInvalidRequest), test.ShouldBeTrue)
	test.That(t, ops.opened, test.ShouldEqual, 3)
	test.That(t, ops.released, test.ShouldEqual, 3)
}

func TestHTTPRegistrar(t *testing.T) {
	ctx := context.Background()
	hr := NewHTTPRegistrar(logging.NewTestLogger(t))
	ops := &echoOps{}
	test.That(t, hr.Create(ctx, "loop", ops), test.ShouldBeNil)

	srv := httptest.NewServer(hr)
	defer srv.Close()

	t.Run("list", func(t *testing.T) {
		resp, err := http.Get(srv.URL + "/dev")
		test.That(t, err, test.ShouldBeNil)
		defer resp.Body.Close()
		var names []string
		test.That(t, json.NewDecoder(resp.Body).Decode(&names), test.ShouldBeNil)
		test.That(t, names, test.ShouldResemble, []string{"loop"})
	})

	t.Run("write then read", func(t *testing.T) {
		resp, err := http.Post(srv.URL+"/dev/loop", "application/octet-stream", bytes.NewReader([]byte{1, 2, 3}))
		test.That(t, err, test.ShouldBeNil)
		resp.Body.Close()
		test.That(t, resp.StatusCode, test.ShouldEqual, http.StatusOK)
		test.That(t, resp.Header.Get(BytesTransferredHeader), test.ShouldEqual, "3")
		_, err = uuid.Parse(resp.Header.Get(RequestIDHeader))
		test.That(t, err, test.ShouldBeNil)

		resp, err = http.Get(srv.URL + "/dev/loop?length=4")
		test.That(t, err, test.ShouldBeNil)
		defer resp.Body.Close()
		test.That(t, resp.StatusCode, test.ShouldEqual, http.StatusOK)
		body, err := io.ReadAll(resp.Body)
		test.That(t, err, test.ShouldBeNil)
		test.That(t, body, test.ShouldResemble, []byte{1, 2, 3, 0})
	})

	t.Run("errors map to status codes", func(t *testing.T) {
		for _, tc := range []struct {
			url    string
			code   int
			status string
		}{
			{"/dev/loop?length=100", http.StatusBadRequest, "invalid-argument"},
			{"/dev/loop?length=abc", http.StatusBadRequest, "invalid-argument"},
			{"/dev/missing?length=4", http.StatusNotFound, "unknown"},
		} {
			resp, err := http.Get(srv.URL + tc.url)
			test.That(t, err, test.ShouldBeNil)
			var body ErrorResponse
			test.That(t, json.NewDecoder(resp.Body).Decode(&body), test.ShouldBeNil)
			resp.Body.Close()
			test.That(t, resp.StatusCode, test.ShouldEqual, tc.code)
			test.That(t, body.Status, test.ShouldEqual, tc.status)
		}

		ops.readErr = status.ErrNotReady
		resp, err := http.Get(srv.URL + "/dev/loop?length=4")
		test.That(t, err, test.ShouldBeNil)
		var body ErrorResponse
		test.That(t, json.NewDecoder(resp.Body).Decode(&body), test.ShouldBeNil)
		resp.Body.Close()
		test.That(t, resp.StatusCode, test.ShouldEqual, http.StatusServiceUnavailable)
		test.That(t, body.Errno, test.ShouldEqual, int(status.NotReady.Errno()))
	})

	t.Run("cross origin reads are allowed", func(t *testing.T) {
		req, err := http.NewRequest(http.MethodGet, srv.URL+"/dev", nil)
		test.That(t, err, test.ShouldBeNil)
		req.Header.Set("Origin", "http://dashboard.local")
		resp, err := http.DefaultClient.Do(req)
		test.That(t, err, test.ShouldBeNil)
		resp.Body.Close()
		test.That(t, resp.Header.Get("Access-Control-Allow-Origin"), test.ShouldEqual, "*")
	})

	test.That(t, hr.Remove(ctx, "loop"), test.ShouldBeNil)
	resp, err := http.Get(srv.URL + "/dev/loop?length=4")
	test.That(t, err, test.ShouldBeNil)
	resp.Body.Close()
	test.That(t, resp.StatusCode, test.ShouldEqual, http.StatusNotFound)
}

func TestHTTPStatus(t *testing.T) {
	test.That(t, HTTPStatus(nil), test.ShouldEqual, http.StatusOK)
	test.That(t, HTTPStatus(status.ErrTransportFailure), test.ShouldEqual, http.StatusBadGateway)
	test.That(t, HTTPStatus(status.ErrBoundaryCopy), test.ShouldEqual, http.StatusPartialContent)
	test.That(t, HTTPStatus(errors.New("boom")), test.ShouldEqual, http.StatusInternalServerError)
}
