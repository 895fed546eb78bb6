package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"

	"github.com/mgpai22/lipistudio/internal/config"
	"github.com/mgpai22/lipistudio/internal/syncengine"
	"github.com/mgpai22/lipistudio/internal/transcribe"
	"github.com/mgpai22/lipistudio/internal/translate"
)

const relayJSON = `{"task":"transcribe","text":"Hey there","segments":[{"id":0,"start":0,"end":4,"text":" Hey","no_speech_prob":0.01},{"id":1,"start":4,"end":8.5,"text":" there"}]}`

type fakeTranscriber struct {
	mu    sync.Mutex
	got   []transcribe.Media
	body  []string
	resp  string
	err   error
	calls int
}

func (f *fakeTranscriber) Transcribe(ctx context.Context, media transcribe.Media) (*transcribe.Response, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	data, _ := io.ReadAll(media.Body)
	f.got = append(f.got, media)
	f.body = append(f.body, string(data))
	if f.err != nil {
		return nil, f.err
	}
	return transcribe.ParseResponse([]byte(f.resp))
}

type fakeTime struct {
	mu  sync.Mutex
	now time.Time
}

func (f *fakeTime) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

func (f *fakeTime) Advance(d time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.now = f.now.Add(d)
}

type testEnv struct {
	srv        *Server
	tr         *fakeTranscriber
	clock      *fakeTime
	schedulers []*syncengine.ManualScheduler
}

func newTestEnv(t *testing.T, mutate func(*config.Config)) *testEnv {
	t.Helper()

	cfg, err := config.FromEnv(func(string) (string, bool) { return "", false })
	if err != nil {
		t.Fatal(err)
	}
	if mutate != nil {
		mutate(cfg)
	}

	env := &testEnv{
		tr:    &fakeTranscriber{resp: relayJSON},
		clock: &fakeTime{now: time.Unix(1_700_000_000, 0)},
	}
	env.srv = New(Options{
		Config:      cfg,
		Transcriber: env.tr,
		Now:         env.clock.Now,
		Scheduler: func() syncengine.FrameScheduler {
			s := syncengine.NewManualScheduler()
			env.schedulers = append(env.schedulers, s)
			return s
		},
		Translators: func(ctx context.Context, provider string, opts translate.Options) (translate.Translator, error) {
			return upperTranslator{}, nil
		},
	})
	return env
}

type upperTranslator struct{}

func (upperTranslator) Translate(ctx context.Context, items []translate.Item) ([]translate.Result, error) {
	out := make([]translate.Result, len(items))
	for i, it := range items {
		out[i] = translate.Result{Index: it.Index, Text: strings.ToUpper(it.Text)}
	}
	return out, nil
}

func (e *testEnv) do(t *testing.T, method, path, contentType string, body io.Reader) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, body)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	rec := httptest.NewRecorder()
	e.srv.Handler().ServeHTTP(rec, req)
	return rec
}

func (e *testEnv) doJSON(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	return e.do(t, method, path, "application/json", strings.NewReader(body))
}

func multipartBody(t *testing.T, field, filename, content string, extra map[string]string) (string, *bytes.Buffer) {
	t.Helper()
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	for k, v := range extra {
		_ = w.WriteField(k, v)
	}
	if field != "" {
		fw, err := w.CreateFormFile(field, filename)
		if err != nil {
			t.Fatal(err)
		}
		_, _ = fw.Write([]byte(content))
	}
	_ = w.Close()
	return w.FormDataContentType(), &buf
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, v any) {
	t.Helper()
	if err := json.Unmarshal(rec.Body.Bytes(), v); err != nil {
		t.Fatalf("decode %q: %v", rec.Body.String(), err)
	}
}

func assertError(t *testing.T, rec *httptest.ResponseRecorder, code int, msg string) {
	t.Helper()
	if rec.Code != code {
		t.Fatalf("status = %d, want %d (body %s)", rec.Code, code, rec.Body.String())
	}
	var body errorResponse
	decode(t, rec, &body)
	if body.Error != msg {
		t.Errorf("error = %q, want %q", body.Error, msg)
	}
}

func TestTranscribeMissingInput(t *testing.T) {
	env := newTestEnv(t, nil)

	assertError(t, env.doJSON(t, http.MethodPost, "/api/transcribe", `{}`), http.StatusBadRequest, "No video URL provided")
	assertError(t, env.doJSON(t, http.MethodPost, "/api/transcribe", ``), http.StatusBadRequest, "No video URL provided")

	ct, body := multipartBody(t, "", "", "", map[string]string{"other": "x"})
	assertError(t, env.do(t, http.MethodPost, "/api/transcribe", ct, body), http.StatusBadRequest, "No file uploaded")

	if env.tr.calls != 0 {
		t.Errorf("transcriber called %d times for rejected requests", env.tr.calls)
	}
}

func TestTranscribeMultipartRelay(t *testing.T) {
	env := newTestEnv(t, nil)

	ct, body := multipartBody(t, "file", "talk.mp4", "fake-video", nil)
	rec := env.do(t, http.MethodPost, "/api/transcribe", ct, body)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}

	if got := strings.TrimSpace(rec.Body.String()); got != relayJSON {
		t.Errorf("relay = %s\nwant %s", got, relayJSON)
	}
	if env.tr.got[0].Name != "talk.mp4" || env.tr.body[0] != "fake-video" {
		t.Errorf("forwarded %q with body %q", env.tr.got[0].Name, env.tr.body[0])
	}
}

func TestTranscribeVideoURL(t *testing.T) {
	blobs := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/gone.mp4" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		_, _ = w.Write([]byte("blob-bytes"))
	}))
	defer blobs.Close()

	env := newTestEnv(t, nil)

	rec := env.doJSON(t, http.MethodPost, "/api/transcribe", `{"videoUrl":"`+blobs.URL+`/clip.mp4"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	if env.tr.got[0].Name != "input.mp4" || env.tr.got[0].ContentType != "video/mp4" {
		t.Errorf("forwarded media = %+v", env.tr.got[0])
	}
	if env.tr.body[0] != "blob-bytes" {
		t.Errorf("forwarded body = %q", env.tr.body[0])
	}

	rec = env.doJSON(t, http.MethodPost, "/api/transcribe", `{"videoUrl":"`+blobs.URL+`/gone.mp4"}`)
	assertError(t, rec, http.StatusInternalServerError, "Failed to download video: Not Found")
}

func TestTranscribeUpstreamFailure(t *testing.T) {
	env := newTestEnv(t, nil)
	env.tr.err = errors.New("401 Incorrect API key provided")

	ct, body := multipartBody(t, "file", "a.mp3", "x", nil)
	rec := env.do(t, http.MethodPost, "/api/transcribe", ct, body)
	assertError(t, rec, http.StatusInternalServerError, "401 Incorrect API key provided")
}

func TestTranscribeWithoutCredentials(t *testing.T) {
	cfg, _ := config.FromEnv(func(string) (string, bool) { return "", false })
	srv := New(Options{Config: cfg})

	ct, body := multipartBody(t, "file", "a.mp3", "x", nil)
	req := httptest.NewRequest(http.MethodPost, "/api/transcribe", body)
	req.Header.Set("Content-Type", ct)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	assertError(t, rec, http.StatusInternalServerError, "API key is required")
}

type sessionBody struct {
	ID       string            `json:"id"`
	Name     string            `json:"name"`
	Version  uint64            `json:"version"`
	Segments []json.RawMessage `json:"segments"`
	Frame    frameBody         `json:"frame"`
}

type frameBody struct {
	Position float64 `json:"position"`
	Progress float64 `json:"progress"`
	Clock    string  `json:"clock"`
	Paused   bool    `json:"paused"`
	Active   *struct {
		ID   string `json:"id"`
		Text string `json:"text"`
	} `json:"active"`
}

func (e *testEnv) createSession(t *testing.T) sessionBody {
	t.Helper()
	rec := e.doJSON(t, http.MethodPost, "/api/sessions", `{
		"name": "lecture.mp4",
		"duration": 10,
		"segments": [
			{"id": "1", "startTime": 0, "endTime": 4, "text": "a"},
			{"id": "2", "startTime": 4, "endTime": 8.5, "text": "b"}
		]
	}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("create status = %d, body %s", rec.Code, rec.Body.String())
	}
	var sess sessionBody
	decode(t, rec, &sess)
	return sess
}

func TestSessionSeekAndActiveSegment(t *testing.T) {
	env := newTestEnv(t, nil)
	sess := env.createSession(t)
	base := "/api/sessions/" + sess.ID

	var frame frameBody
	decode(t, env.doJSON(t, http.MethodPost, base+"/seek", `{"time": 4.0}`), &frame)
	if frame.Active == nil || frame.Active.Text != "b" {
		t.Errorf("active at 4.0 = %+v, want b", frame.Active)
	}
	if !frame.Paused || frame.Progress != 0.4 {
		t.Errorf("frame = %+v", frame)
	}

	decode(t, env.doJSON(t, http.MethodPost, base+"/seek", `{"time": "0:09"}`), &frame)
	if frame.Active != nil {
		t.Errorf("active in gap = %+v, want none", frame.Active)
	}

	decode(t, env.doJSON(t, http.MethodPost, base+"/seek", `{"segmentId": "1"}`), &frame)
	if frame.Position != 0 || frame.Active == nil || frame.Active.ID != "1" {
		t.Errorf("seek to segment 1 = %+v", frame)
	}

	assertError(t, env.doJSON(t, http.MethodPost, base+"/seek", `{"segmentId": "9"}`), http.StatusNotFound, "segment not found")
	assertError(t, env.doJSON(t, http.MethodPost, base+"/seek", `{}`), http.StatusBadRequest, "time or segmentId is required")
}

func TestSessionEdits(t *testing.T) {
	env := newTestEnv(t, nil)
	sess := env.createSession(t)
	base := "/api/sessions/" + sess.ID

	rec := env.doJSON(t, http.MethodPut, base+"/segments/2/text", `{"text": "changed"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("set text status = %d, body %s", rec.Code, rec.Body.String())
	}

	rec = env.doJSON(t, http.MethodPut, base+"/segments/1/time", `{"field": "endTime", "value": "0:05.0"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("set time status = %d, body %s", rec.Code, rec.Body.String())
	}
	var edit struct {
		Segment struct {
			EndTime float64 `json:"endTime"`
		} `json:"segment"`
	}
	decode(t, rec, &edit)
	if edit.Segment.EndTime != 5 {
		t.Errorf("endTime = %v, want 5", edit.Segment.EndTime)
	}

	// end before start is accepted as-is
	rec = env.doJSON(t, http.MethodPut, base+"/segments/2/time", `{"field": "startTime", "value": 20}`)
	if rec.Code != http.StatusOK {
		t.Errorf("unvalidated time edit status = %d", rec.Code)
	}

	// permissive parsing turns garbage into zero
	rec = env.doJSON(t, http.MethodPut, base+"/segments/2/time", `{"field": "endTime", "value": "garbage"}`)
	decode(t, rec, &edit)
	if rec.Code != http.StatusOK || edit.Segment.EndTime != 0 {
		t.Errorf("garbage time = %d, %v", rec.Code, edit.Segment.EndTime)
	}

	assertError(t, env.doJSON(t, http.MethodPut, base+"/segments/9/text", `{"text": "x"}`), http.StatusNotFound, `segment not found: "9"`)
	assertError(t, env.doJSON(t, http.MethodPut, base+"/segments/1/time", `{"field": "middle", "value": 1}`), http.StatusBadRequest, `unknown time field: "middle"`)
	assertError(t, env.doJSON(t, http.MethodPut, base+"/segments/1/text", `{}`), http.StatusBadRequest, "text is required")

	var snap sessionBody
	decode(t, env.doJSON(t, http.MethodGet, base, ""), &snap)
	if snap.Version != 4 {
		t.Errorf("version = %d, want 4", snap.Version)
	}
	if !strings.Contains(string(snap.Segments[1]), `"text":"changed"`) {
		t.Errorf("segment 2 = %s", snap.Segments[1])
	}
}

func TestSessionStrictTimes(t *testing.T) {
	env := newTestEnv(t, func(c *config.Config) { c.StrictTimes = true })
	sess := env.createSession(t)

	rec := env.doJSON(t, http.MethodPut, "/api/sessions/"+sess.ID+"/segments/1/time", `{"field": "endTime", "value": "garbage"}`)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("strict garbage status = %d, want 400", rec.Code)
	}
}

func TestSessionExport(t *testing.T) {
	env := newTestEnv(t, nil)
	sess := env.createSession(t)

	rec := env.doJSON(t, http.MethodGet, "/api/sessions/"+sess.ID+"/export", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("export status = %d", rec.Code)
	}
	want := "1\n00:00:00,000 --> 00:00:04,000\na\n\n2\n00:00:04,000 --> 00:00:08,500\nb\n"
	if rec.Body.String() != want {
		t.Errorf("export = %q\nwant %q", rec.Body.String(), want)
	}
	if cd := rec.Header().Get("Content-Disposition"); cd != "attachment; filename=lecture.srt" {
		t.Errorf("Content-Disposition = %q", cd)
	}

	rec = env.doJSON(t, http.MethodGet, "/api/sessions/"+sess.ID+"/export?format=vtt", "")
	if !strings.HasPrefix(rec.Body.String(), "WEBVTT") {
		t.Errorf("vtt export = %q", rec.Body.String())
	}

	rec = env.doJSON(t, http.MethodGet, "/api/sessions/"+sess.ID+"/export?format=docx", "")
	if rec.Code != http.StatusBadRequest {
		t.Errorf("unknown format status = %d", rec.Code)
	}
}

func TestSessionExportNonASCIIName(t *testing.T) {
	env := newTestEnv(t, nil)

	rec := env.doJSON(t, http.MethodPost, "/api/sessions", `{
		"name": "नमस्ते दोस्तों.mp4",
		"segments": [{"startTime": 0, "endTime": 1, "text": "hi"}]
	}`)
	var sess sessionBody
	decode(t, rec, &sess)

	rec = env.doJSON(t, http.MethodGet, "/api/sessions/"+sess.ID+"/export", "")
	cd := rec.Header().Get("Content-Disposition")
	if strings.Contains(cd, `\u`) {
		t.Errorf("Content-Disposition uses Go escapes: %q", cd)
	}
	disposition, params, err := mime.ParseMediaType(cd)
	if err != nil {
		t.Fatalf("ParseMediaType(%q) error = %v", cd, err)
	}
	if disposition != "attachment" || params["filename"] != "नमस्ते दोस्तों.srt" {
		t.Errorf("Content-Disposition = %q, parsed %s %v", cd, disposition, params)
	}
}

func TestSessionPlaybackLoop(t *testing.T) {
	env := newTestEnv(t, nil)
	sess := env.createSession(t)
	base := "/api/sessions/" + sess.ID
	sched := env.schedulers[len(env.schedulers)-1]

	var frame frameBody
	decode(t, env.doJSON(t, http.MethodPost, base+"/play", ""), &frame)
	if frame.Paused {
		t.Error("frame after play should not be paused")
	}
	if sched.Pending() != 1 {
		t.Fatalf("pending frames = %d, want 1", sched.Pending())
	}

	env.clock.Advance(5 * time.Second)
	sched.Step()

	s, _ := env.srv.Sessions().Get(sess.ID)
	last := s.Engine.Last()
	if last.Active == nil || last.Active.Text != "b" || last.Clock != "0:05" {
		t.Errorf("frame at 5s = %+v", last)
	}

	decode(t, env.doJSON(t, http.MethodPost, base+"/pause", ""), &frame)
	sched.Step()
	if sched.Pending() != 0 {
		t.Error("loop should stop after pause")
	}
	if !frame.Paused || frame.Clock != "0:05" {
		t.Errorf("frame after pause = %+v", frame)
	}
}

func TestSessionFromTranscription(t *testing.T) {
	env := newTestEnv(t, nil)

	rec := env.doJSON(t, http.MethodPost, "/api/sessions", `{"name": "v.mp4", "transcription": `+relayJSON+`}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	var sess sessionBody
	decode(t, rec, &sess)
	if len(sess.Segments) != 2 || !strings.Contains(string(sess.Segments[0]), `"id":"1"`) {
		t.Errorf("segments = %s", sess.Segments)
	}

	assertError(t, env.doJSON(t, http.MethodPost, "/api/sessions", `{"name": "x"}`), http.StatusBadRequest, "No transcription provided")
}

func TestSessionTranscribe(t *testing.T) {
	env := newTestEnv(t, nil)

	ct, body := multipartBody(t, "file", "vlog.mp4", "x", nil)
	rec := env.do(t, http.MethodPost, "/api/sessions/transcribe", ct, body)
	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}

	var out struct {
		Session       sessionBody     `json:"session"`
		Transcription json.RawMessage `json:"transcription"`
	}
	decode(t, rec, &out)
	if out.Session.Name != "vlog.mp4" || len(out.Session.Segments) != 2 {
		t.Errorf("session = %+v", out.Session)
	}
	if !strings.Contains(string(out.Transcription), `"no_speech_prob":0.01`) {
		t.Errorf("transcription relay lost fields: %s", out.Transcription)
	}
}

func TestSessionImportSubtitle(t *testing.T) {
	env := newTestEnv(t, nil)

	srt := "1\n00:00:01,000 --> 00:00:02,000\nhello\n\n2\n00:00:03,000 --> 00:00:04,000\nworld\n"
	ct, body := multipartBody(t, "file", "old.srt", srt, map[string]string{"duration": "4"})
	rec := env.do(t, http.MethodPost, "/api/sessions", ct, body)
	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	var sess sessionBody
	decode(t, rec, &sess)
	if sess.Name != "old.srt" || len(sess.Segments) != 2 {
		t.Errorf("imported session = %+v", sess)
	}

	ct, body = multipartBody(t, "file", "notes.txt", "x", nil)
	rec = env.do(t, http.MethodPost, "/api/sessions", ct, body)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("unsupported import status = %d", rec.Code)
	}
}

func TestSessionTranslate(t *testing.T) {
	env := newTestEnv(t, nil)
	sess := env.createSession(t)

	assertError(t, env.doJSON(t, http.MethodPost, "/api/sessions/"+sess.ID+"/translate", `{}`), http.StatusBadRequest, "targetLanguage is required")

	rec := env.doJSON(t, http.MethodPost, "/api/sessions/"+sess.ID+"/translate", `{"targetLanguage": "English"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	var snap sessionBody
	decode(t, rec, &snap)
	if !strings.Contains(string(snap.Segments[0]), `"text":"A"`) {
		t.Errorf("segment 1 = %s", snap.Segments[0])
	}
}

func TestSessionDelete(t *testing.T) {
	env := newTestEnv(t, nil)
	sess := env.createSession(t)

	rec := env.doJSON(t, http.MethodDelete, "/api/sessions/"+sess.ID, "")
	if rec.Code != http.StatusNoContent {
		t.Fatalf("delete status = %d", rec.Code)
	}
	assertError(t, env.doJSON(t, http.MethodGet, "/api/sessions/"+sess.ID, ""), http.StatusNotFound, "session not found")
	assertError(t, env.doJSON(t, http.MethodDelete, "/api/sessions/"+sess.ID, ""), http.StatusNotFound, "session not found")
}

func TestHealthAndMetrics(t *testing.T) {
	env := newTestEnv(t, nil)
	env.createSession(t)

	if rec := env.doJSON(t, http.MethodGet, "/healthz", ""); rec.Code != http.StatusOK {
		t.Errorf("healthz status = %d", rec.Code)
	}

	rec := env.doJSON(t, http.MethodGet, "/metrics", "")
	if !strings.Contains(rec.Body.String(), "lipistudio_sessions_active 1") {
		t.Errorf("metrics missing session gauge:\n%s", rec.Body.String())
	}
}

func TestLiveFeed(t *testing.T) {
	env := newTestEnv(t, nil)
	sess := env.createSession(t)

	ts := httptest.NewServer(env.srv.Handler())
	defer ts.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/api/sessions/" + sess.ID + "/live"
	conn, _, err := websocket.Dial(ctx, url, nil)
	if err != nil {
		t.Fatalf("Dial() error = %v", err)
	}
	defer conn.CloseNow()

	var first frameBody
	if err := wsjson.Read(ctx, conn, &first); err != nil {
		t.Fatalf("read first frame: %v", err)
	}
	if first.Active == nil || first.Active.ID != "1" {
		t.Errorf("first frame active = %+v", first.Active)
	}

	rec := env.doJSON(t, http.MethodPost, "/api/sessions/"+sess.ID+"/seek", `{"time": 6}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("seek status = %d", rec.Code)
	}

	for {
		var frame frameBody
		if err := wsjson.Read(ctx, conn, &frame); err != nil {
			t.Fatalf("read frame: %v", err)
		}
		if frame.Position == 6 {
			if frame.Active == nil || frame.Active.Text != "b" {
				t.Errorf("frame at 6s active = %+v", frame.Active)
			}
			break
		}
	}
}
