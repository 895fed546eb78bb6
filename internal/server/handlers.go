package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/mgpai22/lipistudio/internal/audio"
	"github.com/mgpai22/lipistudio/internal/subtitle"
	"github.com/mgpai22/lipistudio/internal/syncengine"
	"github.com/mgpai22/lipistudio/internal/timecode"
	"github.com/mgpai22/lipistudio/internal/transcribe"
	"github.com/mgpai22/lipistudio/internal/transcript"
	"github.com/mgpai22/lipistudio/internal/translate"
)

const (
	msgNoFile     = "No file uploaded"
	msgNoVideoURL = "No video URL provided"
)

type errorResponse struct {
	Error string `json:"error"`
}

func apiError(code int, msg string) *echo.HTTPError {
	return echo.NewHTTPError(code, msg)
}

func isMultipart(c echo.Context) bool {
	return strings.HasPrefix(c.Request().Header.Get(echo.HeaderContentType), echo.MIMEMultipartForm)
}

// decodeJSON reads a JSON body; an empty body leaves v untouched.
func decodeJSON(c echo.Context, v any) error {
	err := json.NewDecoder(c.Request().Body).Decode(v)
	if err == nil || errors.Is(err, io.EOF) {
		return nil
	}
	return apiError(http.StatusBadRequest, "invalid request body: "+err.Error())
}

// upload is media ready to forward plus what we learned about it
type upload struct {
	name     string
	media    transcribe.Media
	duration time.Duration
	cleanup  func()
}

// readUpload accepts a multipart "file" field or a JSON {videoUrl}.
func (s *Server) readUpload(c echo.Context) (*upload, error) {
	ctx := c.Request().Context()

	if isMultipart(c) {
		fh, err := c.FormFile("file")
		if err != nil {
			return nil, apiError(http.StatusBadRequest, msgNoFile)
		}
		f, err := fh.Open()
		if err != nil {
			return nil, apiError(http.StatusInternalServerError, err.Error())
		}

		contentType := fh.Header.Get(echo.HeaderContentType)
		if contentType == "" || contentType == echo.MIMEOctetStream {
			contentType = audio.ContentType(fh.Filename)
		}
		up := &upload{
			name:    fh.Filename,
			media:   transcribe.Media{Name: fh.Filename, ContentType: contentType, Body: f},
			cleanup: func() { _ = f.Close() },
		}
		return s.prepare(ctx, up)
	}

	var body struct {
		VideoURL string `json:"videoUrl"`
	}
	if err := decodeJSON(c, &body); err != nil {
		return nil, err
	}
	if strings.TrimSpace(body.VideoURL) == "" {
		return nil, apiError(http.StatusBadRequest, msgNoVideoURL)
	}

	s.log.Infow("downloading video", "url", body.VideoURL)
	media, err := transcribe.Download(ctx, s.httpClient, body.VideoURL)
	if err != nil {
		s.log.Errorw("download failed", "url", body.VideoURL, "error", err)
		return nil, apiError(http.StatusInternalServerError, err.Error())
	}

	up := &upload{name: nameFromURL(body.VideoURL), media: media, cleanup: func() {}}
	return s.prepare(ctx, up)
}

// prepare optionally swaps the payload for an extracted audio track.
func (s *Server) prepare(ctx context.Context, up *upload) (*upload, error) {
	if !s.cfg.ExtractAudio || !audio.IsVideoFile(up.media.Name) {
		return up, nil
	}

	src, err := os.CreateTemp("", "lipistudio-src-*"+filepath.Ext(up.media.Name))
	if err != nil {
		up.cleanup()
		return nil, apiError(http.StatusInternalServerError, err.Error())
	}
	_, err = io.Copy(src, up.media.Body)
	_ = src.Close()
	up.cleanup()
	if err != nil {
		_ = os.Remove(src.Name())
		return nil, apiError(http.StatusInternalServerError, err.Error())
	}

	if d, err := s.audio.Duration(ctx, src.Name()); err == nil {
		up.duration = d
	}

	out, done, err := s.audio.ExtractTemp(ctx, src.Name(), audio.DefaultExtractOptions())
	_ = os.Remove(src.Name())
	if err != nil {
		s.log.Errorw("audio extraction failed", "file", up.name, "error", err)
		return nil, apiError(http.StatusInternalServerError, err.Error())
	}

	f, err := os.Open(out)
	if err != nil {
		done()
		return nil, apiError(http.StatusInternalServerError, err.Error())
	}

	up.media = transcribe.Media{Name: filepath.Base(out), ContentType: audio.ContentType(out), Body: f}
	up.cleanup = func() {
		_ = f.Close()
		done()
	}
	s.log.Debugw("extracted audio", "file", up.name, "audio", out, "duration", up.duration)
	return up, nil
}

func nameFromURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return "input.mp4"
	}
	base := path.Base(u.Path)
	if base == "." || base == "/" || base == "" {
		return "input.mp4"
	}
	return base
}

// proxy runs one transcription; failures come back as *echo.HTTPError.
func (s *Server) proxy(c echo.Context) (*transcribe.Response, *upload, error) {
	up, err := s.readUpload(c)
	if err != nil {
		s.metrics.transcriptions.WithLabelValues("rejected").Inc()
		return nil, nil, err
	}
	defer up.cleanup()

	ctx := c.Request().Context()
	tr, err := s.transcriberFor(ctx)
	if err != nil {
		s.log.Errorw("transcriber unavailable", "provider", s.cfg.Provider, "error", err)
		s.metrics.transcriptions.WithLabelValues("error").Inc()
		return nil, nil, apiError(http.StatusInternalServerError, err.Error())
	}

	s.log.Infow("sending to provider", "provider", s.cfg.Provider, "file", up.name)
	resp, err := tr.Transcribe(ctx, up.media)
	if err != nil {
		s.log.Errorw("transcription failed", "file", up.name, "error", err)
		s.metrics.transcriptions.WithLabelValues("error").Inc()
		return nil, nil, apiError(http.StatusInternalServerError, err.Error())
	}

	s.metrics.transcriptions.WithLabelValues("ok").Inc()
	s.log.Infow("received transcription", "file", up.name, "chars", len(resp.Text))
	return resp, up, nil
}

func (s *Server) handleTranscribe(c echo.Context) error {
	resp, _, err := s.proxy(c)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, resp)
}

func (s *Server) handleTranscribeSession(c echo.Context) error {
	resp, up, err := s.proxy(c)
	if err != nil {
		return err
	}

	segments, err := resp.ToSegments()
	if err != nil {
		return apiError(http.StatusInternalServerError, err.Error())
	}

	duration := up.duration
	if duration == 0 && resp.Duration > 0 {
		duration = timecode.FromSeconds(resp.Duration)
	}

	sess := s.sessions.Create(up.name, duration, segments)
	s.log.Infow("session created", "session", sess.ID, "name", sess.Name, "segments", len(segments))

	return c.JSON(http.StatusCreated, map[string]any{
		"session":       sess.snapshot(),
		"transcription": resp,
	})
}

type createSessionRequest struct {
	Name          string             `json:"name"`
	Duration      float64            `json:"duration"`
	Transcription json.RawMessage    `json:"transcription"`
	Segments      []subtitle.Segment `json:"segments"`
}

func (s *Server) handleCreateSession(c echo.Context) error {
	var (
		name     string
		duration time.Duration
		segments []subtitle.Segment
	)

	if isMultipart(c) {
		fh, err := c.FormFile("file")
		if err != nil {
			return apiError(http.StatusBadRequest, msgNoFile)
		}
		f, err := fh.Open()
		if err != nil {
			return apiError(http.StatusInternalServerError, err.Error())
		}
		defer f.Close()

		segments, _, err = subtitle.Decode(f, fh.Filename)
		if err != nil {
			return apiError(http.StatusBadRequest, err.Error())
		}
		name = c.FormValue("name")
		if name == "" {
			name = fh.Filename
		}
		if v := c.FormValue("duration"); v != "" {
			secs, err := strconv.ParseFloat(v, 64)
			if err != nil {
				return apiError(http.StatusBadRequest, "invalid duration")
			}
			duration = timecode.FromSeconds(secs)
		}
	} else {
		var req createSessionRequest
		if err := decodeJSON(c, &req); err != nil {
			return err
		}
		name = req.Name
		duration = timecode.FromSeconds(req.Duration)

		switch {
		case len(req.Transcription) > 0 && string(req.Transcription) != "null":
			resp, err := transcribe.ParseResponse(req.Transcription)
			if err != nil {
				return apiError(http.StatusBadRequest, err.Error())
			}
			if segments, err = resp.ToSegments(); err != nil {
				return apiError(http.StatusBadRequest, err.Error())
			}
		case req.Segments != nil:
			segments = req.Segments
		default:
			return apiError(http.StatusBadRequest, "No transcription provided")
		}
	}

	if duration < 0 {
		return apiError(http.StatusBadRequest, "invalid duration")
	}

	sess := s.sessions.Create(name, duration, segments)
	s.log.Infow("session created", "session", sess.ID, "name", sess.Name, "segments", len(segments))
	return c.JSON(http.StatusCreated, sess.snapshot())
}

func (s *Server) session(c echo.Context) (*Session, error) {
	sess, ok := s.sessions.Get(c.Param("id"))
	if !ok {
		return nil, apiError(http.StatusNotFound, "session not found")
	}
	return sess, nil
}

func (s *Server) handleGetSession(c echo.Context) error {
	sess, err := s.session(c)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, sess.snapshot())
}

func (s *Server) handleDeleteSession(c echo.Context) error {
	if !s.sessions.Delete(c.Param("id")) {
		return apiError(http.StatusNotFound, "session not found")
	}
	return c.NoContent(http.StatusNoContent)
}

type editResponse struct {
	Segment subtitle.Segment `json:"segment"`
	Frame   syncengine.Frame `json:"frame"`
}

func editError(err error) error {
	switch {
	case errors.Is(err, transcript.ErrSegmentNotFound):
		return apiError(http.StatusNotFound, err.Error())
	case errors.Is(err, transcript.ErrUnknownField), errors.Is(err, timecode.ErrInvalidTime):
		return apiError(http.StatusBadRequest, err.Error())
	}
	return apiError(http.StatusInternalServerError, err.Error())
}

func (s *Server) handleSetText(c echo.Context) error {
	sess, err := s.session(c)
	if err != nil {
		return err
	}

	var body struct {
		Text *string `json:"text"`
	}
	if err := decodeJSON(c, &body); err != nil {
		return err
	}
	if body.Text == nil {
		return apiError(http.StatusBadRequest, "text is required")
	}

	seg, err := sess.Store.SetText(c.Param("segID"), *body.Text)
	if err != nil {
		return editError(err)
	}
	s.metrics.edits.WithLabelValues("text").Inc()

	return c.JSON(http.StatusOK, editResponse{Segment: seg, Frame: sess.Engine.Sync()})
}

func (s *Server) handleSetTime(c echo.Context) error {
	sess, err := s.session(c)
	if err != nil {
		return err
	}

	var body struct {
		Field string          `json:"field"`
		Value json.RawMessage `json:"value"`
	}
	if err := decodeJSON(c, &body); err != nil {
		return err
	}

	field, err := transcript.ParseField(body.Field)
	if err != nil {
		return editError(err)
	}
	value, err := s.parseTimeValue(body.Value)
	if err != nil {
		return editError(err)
	}

	seg, err := sess.Store.SetTime(c.Param("segID"), field, value)
	if err != nil {
		return editError(err)
	}
	s.metrics.edits.WithLabelValues(string(field)).Inc()

	return c.JSON(http.StatusOK, editResponse{Segment: seg, Frame: sess.Engine.Sync()})
}

// parseTimeValue accepts seconds as a JSON number or the "m:ss.s" text form.
func (s *Server) parseTimeValue(raw json.RawMessage) (time.Duration, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return 0, fmt.Errorf("%w: missing value", timecode.ErrInvalidTime)
	}

	var secs float64
	if err := json.Unmarshal(raw, &secs); err == nil {
		return timecode.FromSeconds(secs), nil
	}

	var text string
	if err := json.Unmarshal(raw, &text); err != nil {
		return 0, fmt.Errorf("%w: %s", timecode.ErrInvalidTime, raw)
	}
	if s.cfg.StrictTimes {
		return timecode.ParseInputStrict(text)
	}
	return timecode.ParseInput(text), nil
}

func (s *Server) handlePlay(c echo.Context) error {
	sess, err := s.session(c)
	if err != nil {
		return err
	}
	sess.Clock.Play()
	return c.JSON(http.StatusOK, sess.Engine.Sync())
}

func (s *Server) handlePause(c echo.Context) error {
	sess, err := s.session(c)
	if err != nil {
		return err
	}
	sess.Clock.Pause()
	return c.JSON(http.StatusOK, sess.Engine.Sync())
}

func (s *Server) handleSeek(c echo.Context) error {
	sess, err := s.session(c)
	if err != nil {
		return err
	}

	var body struct {
		Time      json.RawMessage `json:"time"`
		SegmentID string          `json:"segmentId"`
	}
	if err := decodeJSON(c, &body); err != nil {
		return err
	}

	var pos time.Duration
	switch {
	case body.SegmentID != "":
		seg, ok := sess.Store.Get(body.SegmentID)
		if !ok {
			return editError(transcript.ErrSegmentNotFound)
		}
		pos = seg.StartTime
	case len(body.Time) > 0:
		if pos, err = s.parseTimeValue(body.Time); err != nil {
			return editError(err)
		}
	default:
		return apiError(http.StatusBadRequest, "time or segmentId is required")
	}

	return c.JSON(http.StatusOK, sess.SeekTo(pos))
}

func (s *Server) handleFrame(c echo.Context) error {
	sess, err := s.session(c)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, sess.Engine.Sync())
}

var exportContentTypes = map[subtitle.Format]string{
	subtitle.FormatSRT: "application/x-subrip; charset=utf-8",
	subtitle.FormatVTT: "text/vtt; charset=utf-8",
	subtitle.FormatASS: "text/x-ssa; charset=utf-8",
}

func (s *Server) handleExport(c echo.Context) error {
	sess, err := s.session(c)
	if err != nil {
		return err
	}

	format, err := subtitle.ParseFormat(c.QueryParam("format"))
	if err != nil {
		return apiError(http.StatusBadRequest, err.Error())
	}

	data, err := subtitle.Marshal(format, sess.Store.Segments())
	if err != nil {
		return apiError(http.StatusInternalServerError, err.Error())
	}
	s.metrics.exports.WithLabelValues(string(format)).Inc()

	filename := subtitle.ExportFilename(sess.Name, format)
	c.Response().Header().Set(echo.HeaderContentDisposition,
		mime.FormatMediaType("attachment", map[string]string{"filename": filename}))
	return c.Blob(http.StatusOK, exportContentTypes[format], data)
}

type translateRequest struct {
	TargetLanguage string `json:"targetLanguage"`
	InputLanguage  string `json:"inputLanguage"`
	Provider       string `json:"provider"`
	Model          string `json:"model"`
	Prompt         string `json:"prompt"`
}

func (s *Server) handleTranslate(c echo.Context) error {
	sess, err := s.session(c)
	if err != nil {
		return err
	}

	var req translateRequest
	if err := decodeJSON(c, &req); err != nil {
		return err
	}
	if req.TargetLanguage == "" {
		return apiError(http.StatusBadRequest, "targetLanguage is required")
	}
	provider := req.Provider
	if provider == "" {
		provider = s.cfg.Provider
	}

	ctx := c.Request().Context()
	tr, err := s.translators(ctx, provider, translate.Options{
		InputLanguage:  req.InputLanguage,
		TargetLanguage: req.TargetLanguage,
		Model:          req.Model,
		Prompt:         req.Prompt,
	})
	if err != nil {
		s.log.Errorw("translator unavailable", "provider", provider, "error", err)
		return apiError(http.StatusInternalServerError, err.Error())
	}

	translated, err := translate.Segments(ctx, tr, sess.Store.Segments())
	if err != nil {
		s.log.Errorw("translation failed", "session", sess.ID, "error", err)
		return apiError(http.StatusInternalServerError, err.Error())
	}

	for _, seg := range translated {
		if _, err := sess.Store.SetText(seg.ID, seg.Text); err != nil {
			return editError(err)
		}
	}
	s.metrics.edits.WithLabelValues("translate").Inc()
	s.log.Infow("session translated", "session", sess.ID, "target", req.TargetLanguage, "segments", len(translated))

	return c.JSON(http.StatusOK, sess.snapshot())
}
