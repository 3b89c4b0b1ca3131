package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"wagate/internal/services/dispatch"
	"wagate/internal/services/session"
	"wagate/internal/transport"
	logx "wagate/pkg/logx"
)

type fakeSessions struct {
	st        session.Snapshot
	logoutErr error
	cmdErr    error
	logouts   int
	restarts  int
	deletes   int
}

func (f *fakeSessions) Snapshot() session.Snapshot { return f.st }

func (f *fakeSessions) Logout(ctx context.Context) error {
	if !f.st.Ready() {
		return session.ErrNotReady
	}
	f.logouts++
	return f.logoutErr
}

func (f *fakeSessions) Restart(ctx context.Context) error {
	f.restarts++
	return f.cmdErr
}

func (f *fakeSessions) Reconnect(ctx context.Context) error { return f.cmdErr }

func (f *fakeSessions) DeleteSession(ctx context.Context) error {
	f.deletes++
	return f.cmdErr
}

type fakeDispatcher struct {
	results   []dispatch.Result
	err       error
	textCalls int
	media     []transport.Media
}

func (f *fakeDispatcher) SendText(ctx context.Context, numbers []string, message string) ([]dispatch.Result, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.textCalls++
	return f.results, nil
}

func (f *fakeDispatcher) SendMedia(ctx context.Context, numbers []string, media transport.Media, caption string) ([]dispatch.Result, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.media = append(f.media, media)
	return f.results, nil
}

type fakeCache struct{ items []transport.Contact }

func (f *fakeCache) All() []transport.Contact { return f.items }

type fakeStager struct {
	dir       string
	staged    []transport.Media
	discarded []transport.Media
}

func (f *fakeStager) Stage(name, mimeType string, r io.Reader) (transport.Media, error) {
	m := transport.Media{Path: f.dir + "/" + name, MimeType: mimeType, FileName: name}
	f.staged = append(f.staged, m)
	return m, nil
}

func (f *fakeStager) Discard(m transport.Media) { f.discarded = append(f.discarded, m) }
func (f *fakeStager) Dir() string               { return f.dir }

type testEnv struct {
	sessions *fakeSessions
	engine   *fakeDispatcher
	cache    *fakeCache
	stager   *fakeStager
	ts       *httptest.Server
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	env := &testEnv{
		sessions: &fakeSessions{st: session.Snapshot{Status: session.StatusInitializing}},
		engine:   &fakeDispatcher{},
		cache:    &fakeCache{},
		stager:   &fakeStager{dir: t.TempDir()},
	}
	srv := New(Config{}, env.sessions, env.engine, env.cache, env.stager, logx.Nop())
	env.ts = httptest.NewServer(srv.routes())
	t.Cleanup(env.ts.Close)
	return env
}

func decodeBody[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	defer resp.Body.Close()
	var v T
	if err := json.NewDecoder(resp.Body).Decode(&v); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	return v
}

func TestQRStatusNullUnlessAwaitingScan(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)

	resp, err := http.Get(env.ts.URL + "/qr-status")
	if err != nil {
		t.Fatalf("GET /qr-status: %v", err)
	}
	body := decodeBody[map[string]any](t, resp)
	if body["status"] != "initializing" || body["qr"] != nil {
		t.Fatalf("body = %v", body)
	}

	env.sessions.st = session.Snapshot{Status: session.StatusAwaitingScan, QR: "data:image/png;base64,AAA"}
	resp, err = http.Get(env.ts.URL + "/qr-status")
	if err != nil {
		t.Fatalf("GET /qr-status: %v", err)
	}
	body = decodeBody[map[string]any](t, resp)
	if body["status"] != "qr" || body["qr"] != "data:image/png;base64,AAA" {
		t.Fatalf("body = %v", body)
	}
}

func TestStatusReady(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	env.sessions.st = session.Snapshot{
		Status:      session.StatusReady,
		ConnectedAt: time.Now().Add(-time.Minute),
		Number:      "628111",
	}

	resp, err := http.Get(env.ts.URL + "/status")
	if err != nil {
		t.Fatalf("GET /status: %v", err)
	}
	body := decodeBody[map[string]any](t, resp)
	if body["isReady"] != true || body["phoneNumber"] != "628111" || body["connectedAt"] == nil {
		t.Fatalf("body = %v", body)
	}
}

func TestSessionInfoUptime(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)

	resp, err := http.Get(env.ts.URL + "/session-info")
	if err != nil {
		t.Fatalf("GET /session-info: %v", err)
	}
	body := decodeBody[map[string]any](t, resp)
	if body["uptime"].(float64) != 0 {
		t.Fatalf("uptime = %v, want 0 while not connected", body["uptime"])
	}
}

func TestLogoutPrecondition(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)

	resp, err := http.Post(env.ts.URL+"/logout", "application/json", nil)
	if err != nil {
		t.Fatalf("POST /logout: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200 for precondition failure", resp.StatusCode)
	}
	body := decodeBody[commandResponse](t, resp)
	if body.Success || body.Error == "" {
		t.Fatalf("body = %+v", body)
	}
	if env.sessions.logouts != 0 {
		t.Fatal("logout must not reach the backend when not ready")
	}
}

func TestLogoutReady(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	env.sessions.st = session.Snapshot{Status: session.StatusReady, ConnectedAt: time.Now()}

	resp, err := http.Post(env.ts.URL+"/logout", "application/json", nil)
	if err != nil {
		t.Fatalf("POST /logout: %v", err)
	}
	body := decodeBody[commandResponse](t, resp)
	if !body.Success {
		t.Fatalf("body = %+v", body)
	}
}

func TestContacts(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	env.cache.items = []transport.Contact{{ID: "1@s.whatsapp.net", Name: "Alice", Number: "111"}}

	resp, err := http.Get(env.ts.URL + "/contacts")
	if err != nil {
		t.Fatalf("GET /contacts: %v", err)
	}
	got := decodeBody[[]transport.Contact](t, resp)
	if len(got) != 1 || got[0].Name != "Alice" {
		t.Fatalf("contacts = %+v", got)
	}
}

func TestHealth(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)

	resp, err := http.Get(env.ts.URL + "/health")
	if err != nil {
		t.Fatalf("GET /health: %v", err)
	}
	body := decodeBody[map[string]any](t, resp)
	if body["status"] != "OK" || body["whatsappStatus"] != "initializing" {
		t.Fatalf("body = %v", body)
	}
}

func TestCORSPreflight(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)

	req, _ := http.NewRequest(http.MethodOptions, env.ts.URL+"/send-bulk", nil)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("OPTIONS: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("status = %d, want 204", resp.StatusCode)
	}
	if resp.Header.Get("Access-Control-Allow-Origin") != "*" {
		t.Fatal("missing CORS header")
	}
}

func postForm(t *testing.T, endpoint string, form url.Values) *http.Response {
	t.Helper()
	resp, err := http.PostForm(endpoint, form)
	if err != nil {
		t.Fatalf("POST %s: %v", endpoint, err)
	}
	return resp
}

func TestSendBulkHappyPath(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	env.engine.results = []dispatch.Result{
		{Number: "111", Status: dispatch.StatusSent},
		{Number: "222", Status: dispatch.StatusFailed, Error: "boom"},
	}

	resp := postForm(t, env.ts.URL+"/send-bulk", url.Values{
		"numbers": {`["111","222"]`},
		"message": {"hello"},
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	got := decodeBody[[]dispatch.Result](t, resp)
	if len(got) != 2 || got[0].Number != "111" || got[1].Status != dispatch.StatusFailed {
		t.Fatalf("results = %+v", got)
	}
}

func TestSendBulkBadNumbers(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)

	resp := postForm(t, env.ts.URL+"/send-bulk", url.Values{
		"numbers": {"not json"},
	})
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", resp.StatusCode)
	}
	resp.Body.Close()
	if env.engine.textCalls != 0 {
		t.Fatal("dispatcher called despite invalid numbers")
	}
}

func TestSendBulkNotReady(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	env.engine.err = session.ErrNotReady

	resp := postForm(t, env.ts.URL+"/send-bulk", url.Values{
		"numbers": {`["111"]`},
	})
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", resp.StatusCode)
	}
	resp.Body.Close()
}

func multipartBody(t *testing.T, fields map[string]string, fileField, fileName string, content []byte) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for k, v := range fields {
		if err := mw.WriteField(k, v); err != nil {
			t.Fatalf("WriteField: %v", err)
		}
	}
	if fileField != "" {
		fw, err := mw.CreateFormFile(fileField, fileName)
		if err != nil {
			t.Fatalf("CreateFormFile: %v", err)
		}
		if _, err := fw.Write(content); err != nil {
			t.Fatalf("write file part: %v", err)
		}
	}
	if err := mw.Close(); err != nil {
		t.Fatalf("close writer: %v", err)
	}
	return &buf, mw.FormDataContentType()
}

func TestSendBulkMediaNoFile(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)

	body, ctype := multipartBody(t, map[string]string{"numbers": `["111"]`}, "", "", nil)
	resp, err := http.Post(env.ts.URL+"/send-bulk-media", ctype, body)
	if err != nil {
		t.Fatalf("POST: %v", err)
	}
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", resp.StatusCode)
	}
	resp.Body.Close()
}

func TestSendBulkMediaStagesAndSends(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	env.engine.results = []dispatch.Result{{Number: "111", Status: dispatch.StatusSent}}

	body, ctype := multipartBody(t, map[string]string{
		"numbers": `["111"]`,
		"message": "caption",
	}, "file", "pic.jpg", []byte("jpegdata"))
	resp, err := http.Post(env.ts.URL+"/send-bulk-media", ctype, body)
	if err != nil {
		t.Fatalf("POST: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	got := decodeBody[[]dispatch.Result](t, resp)
	if len(got) != 1 || got[0].Status != dispatch.StatusSent {
		t.Fatalf("results = %+v", got)
	}
	if len(env.stager.staged) != 1 || len(env.engine.media) != 1 {
		t.Fatalf("staged=%d dispatched=%d", len(env.stager.staged), len(env.engine.media))
	}
}

func TestSendBulkMediaNotReadyDiscardsUpload(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	env.engine.err = session.ErrNotReady

	body, ctype := multipartBody(t, map[string]string{"numbers": `["111"]`}, "file", "doc.pdf", []byte("pdf"))
	resp, err := http.Post(env.ts.URL+"/send-bulk-media", ctype, body)
	if err != nil {
		t.Fatalf("POST: %v", err)
	}
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", resp.StatusCode)
	}
	resp.Body.Close()
	if len(env.stager.discarded) != 1 {
		t.Fatal("refused dispatch must discard the staged file")
	}
}
