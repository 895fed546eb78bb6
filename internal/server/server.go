// Package server exposes editor sessions over HTTP: the transcription proxy,
// segment edits, playback control, a live caption feed and subtitle export.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/mgpai22/lipistudio/internal/audio"
	"github.com/mgpai22/lipistudio/internal/config"
	"github.com/mgpai22/lipistudio/internal/logging"
	"github.com/mgpai22/lipistudio/internal/syncengine"
	"github.com/mgpai22/lipistudio/internal/transcribe"
	"github.com/mgpai22/lipistudio/internal/translate"
)

// TranslatorFactory builds a translator for one request.
type TranslatorFactory func(ctx context.Context, provider string, opts translate.Options) (translate.Translator, error)

type Options struct {
	Config *config.Config
	Logger *logging.Logger

	// Transcriber overrides the provider built from Config.
	Transcriber transcribe.Transcriber
	Translators TranslatorFactory
	Audio       *audio.Processor
	HTTPClient  *http.Client

	// Scheduler builds the frame scheduler of each new session. Defaults to
	// a TickerScheduler at Config.FPS.
	Scheduler func() syncengine.FrameScheduler
	Now       func() time.Time
}

type Server struct {
	echo     *echo.Echo
	cfg      *config.Config
	log      *logging.Logger
	sessions *Sessions
	metrics  *metrics

	audio      *audio.Processor
	httpClient *http.Client

	trMu        sync.Mutex
	transcriber transcribe.Transcriber
	translators TranslatorFactory
}

func New(opts Options) *Server {
	cfg := opts.Config
	if cfg == nil {
		cfg, _ = config.FromEnv(func(string) (string, bool) { return "", false })
	}
	log := opts.Logger
	if log == nil {
		log = logging.NewNop()
	}

	sched := opts.Scheduler
	if sched == nil {
		fps := cfg.FPS
		sched = func() syncengine.FrameScheduler {
			return syncengine.NewTickerScheduler(fps)
		}
	}

	translators := opts.Translators
	if translators == nil {
		translators = func(ctx context.Context, provider string, o translate.Options) (translate.Translator, error) {
			tr, err := translate.Factory(ctx, translate.Provider(provider), cfg.APIKey(provider), o)
			if err != nil {
				return nil, err
			}
			return tr, nil
		}
	}

	s := &Server{
		echo:        echo.New(),
		cfg:         cfg,
		log:         log.Named("server"),
		metrics:     newMetrics(),
		audio:       opts.Audio,
		httpClient:  opts.HTTPClient,
		transcriber: opts.Transcriber,
		translators: translators,
	}
	s.sessions = newSessions(sessionOptions{now: opts.Now, scheduler: sched})
	s.sessions.onChange = func(n int) { s.metrics.sessions.Set(float64(n)) }

	if s.audio == nil {
		s.audio = audio.NewProcessor(nil)
	}
	if s.httpClient == nil {
		s.httpClient = http.DefaultClient
	}

	s.setup()
	return s
}

func (s *Server) setup() {
	e := s.echo
	e.HideBanner = true
	e.HidePort = true

	if s.cfg.MaxUploadMB > 0 {
		e.Use(middleware.BodyLimit(fmt.Sprintf("%dM", s.cfg.MaxUploadMB)))
	}

	e.HTTPErrorHandler = func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}
		code := http.StatusInternalServerError
		msg := err.Error()
		var he *echo.HTTPError
		if errors.As(err, &he) {
			code = he.Code
			msg = fmt.Sprint(he.Message)
		}
		_ = c.JSON(code, errorResponse{Error: msg})
	}

	e.Use(middleware.Recover())
	e.Use(s.metrics.middleware())
	e.Use(func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)
			s.log.Debugw("http request",
				"method", c.Request().Method,
				"path", c.Request().URL.Path,
				"status", c.Response().Status,
				"duration", time.Since(start),
			)
			return err
		}
	})

	e.GET("/healthz", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
	})
	e.GET("/metrics", s.metrics.handler())

	api := e.Group("/api")
	api.POST("/transcribe", s.handleTranscribe)
	api.POST("/sessions", s.handleCreateSession)
	api.POST("/sessions/transcribe", s.handleTranscribeSession)

	sess := api.Group("/sessions/:id")
	sess.GET("", s.handleGetSession)
	sess.DELETE("", s.handleDeleteSession)
	sess.PUT("/segments/:segID/text", s.handleSetText)
	sess.PUT("/segments/:segID/time", s.handleSetTime)
	sess.POST("/play", s.handlePlay)
	sess.POST("/pause", s.handlePause)
	sess.POST("/seek", s.handleSeek)
	sess.GET("/frame", s.handleFrame)
	sess.GET("/live", s.handleLive)
	sess.GET("/export", s.handleExport)
	sess.POST("/translate", s.handleTranslate)
}

func (s *Server) Handler() http.Handler {
	return s.echo
}

func (s *Server) Sessions() *Sessions {
	return s.sessions
}

// Start serves on addr until ctx is done, then shuts down gracefully.
func (s *Server) Start(ctx context.Context, addr string) error {
	errCh := make(chan error, 1)
	go func() {
		s.log.Infow("listening", "addr", addr)
		errCh <- s.echo.Start(addr)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	s.sessions.CloseAll()
	if err := s.echo.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

// transcriberFor builds the provider client on first use so the server can
// start without credentials; a missing key then fails the request with 500.
func (s *Server) transcriberFor(ctx context.Context) (transcribe.Transcriber, error) {
	s.trMu.Lock()
	defer s.trMu.Unlock()

	if s.transcriber != nil {
		return s.transcriber, nil
	}

	tr, err := transcribe.Factory(ctx, transcribe.Provider(s.cfg.Provider), s.cfg.APIKey(s.cfg.Provider), transcribe.Options{
		Language: s.cfg.Language,
		Model:    s.cfg.Model,
		Prompt:   s.cfg.Prompt,
	})
	if err != nil {
		return nil, err
	}
	s.transcriber = tr
	return tr, nil
}
