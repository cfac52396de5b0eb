// Package server is the web form for uploading PDFs, asking questions and
// moving the embeddings file in and out.
package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"go.uber.org/zap"

	"pdfqa/internal/service"
)

// Messages returned to the form.
const (
	msgNoFiles         = "No files uploaded"
	msgNoPDFs          = "No PDF files uploaded"
	msgProcessed       = "PDFs uploaded and processed successfully!"
	msgNoModel         = "No trained model found. Please upload PDFs first."
	msgNoQuestion      = "No question provided"
	msgNoImportFile    = "No file uploaded"
	msgBadImportFormat = "Invalid file format. Please upload a .pkl file."
	msgBadImport       = "Invalid embeddings file."
	msgImported        = "Pre-trained model imported successfully!"
	msgNoExport        = "No trained model found to export."
	msgNoDocuments     = "No trained model found."
)

// ExportName is the download name of the embeddings file.
const ExportName = "embeddings.pkl"

// Pipeline is what the handlers need from the service layer.
type Pipeline interface {
	HasIndex() bool
	EmbeddingsFile() string
	SavePDF(name string, r io.Reader) (string, error)
	Process(ctx context.Context) (service.ProcessStats, error)
	Ask(ctx context.Context, question string) (service.Answer, error)
	Import(ctx context.Context, r io.Reader) (int, error)
	Documents(ctx context.Context) ([]service.DocumentInfo, error)
}

// Config holds HTTP server configuration.
type Config struct {
	Host            string
	Port            int
	MaxUploadMB     int
	ShutdownTimeout time.Duration
}

// Server provides the web form endpoints.
type Server struct {
	echo     *echo.Echo
	pipeline Pipeline
	metrics  *Metrics
	logger   *zap.Logger
	config   Config
}

// New creates the server and registers its routes.
func New(pipeline Pipeline, cfg Config, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.MaxUploadMB <= 0 {
		cfg.MaxUploadMB = 100
	}
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = 10 * time.Second
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = textErrorHandler(logger)

	s := &Server{
		echo:     e,
		pipeline: pipeline,
		metrics:  NewMetrics(),
		logger:   logger,
		config:   cfg,
	}

	// Middleware
	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())
	e.Use(s.requestLogger)
	e.Use(middleware.BodyLimit(fmt.Sprintf("%dM", cfg.MaxUploadMB)))

	s.registerRoutes()
	return s
}

func (s *Server) registerRoutes() {
	s.echo.GET("/", s.handleIndex)
	s.echo.POST("/upload", s.handleUpload)
	s.echo.POST("/query", s.handleQuery)
	s.echo.POST("/import", s.handleImport)
	s.echo.GET("/export", s.handleExport)
	s.echo.GET("/documents", s.handleDocuments)
	s.echo.GET("/health", s.handleHealth)
	s.echo.GET("/metrics", echo.WrapHandler(s.metrics.Handler()))
}

func (s *Server) requestLogger(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		start := time.Now()
		err := next(c)
		if err != nil {
			// Let the error handler write the status before it is recorded.
			c.Error(err)
		}
		status := c.Response().Status
		route := c.Path()
		if route == "" {
			route = "unmatched"
		}
		s.metrics.RequestsTotal.WithLabelValues(route, strconv.Itoa(status)).Inc()
		s.logger.Info("http request",
			zap.String("method", c.Request().Method),
			zap.String("uri", c.Request().RequestURI),
			zap.Int("status", status),
			zap.Duration("duration", time.Since(start)),
			zap.String("request_id", c.Response().Header().Get(echo.HeaderXRequestID)),
		)
		return nil
	}
}

// textErrorHandler answers errors in plain text, as the form expects.
func textErrorHandler(logger *zap.Logger) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}
		code := http.StatusInternalServerError
		msg := http.StatusText(code)
		var he *echo.HTTPError
		if errors.As(err, &he) {
			code = he.Code
			msg = fmt.Sprint(he.Message)
		} else {
			logger.Error("request failed", zap.Error(err))
		}
		if werr := c.String(code, msg); werr != nil {
			logger.Warn("writing error response", zap.Error(werr))
		}
	}
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler { return s.echo }

func (s *Server) handleIndex(c echo.Context) error {
	c.Response().Header().Set(echo.HeaderContentType, echo.MIMETextHTMLCharsetUTF8)
	c.Response().WriteHeader(http.StatusOK)
	return indexTemplate.Execute(c.Response(), indexData{HasIndex: s.pipeline.HasIndex(), ExportName: ExportName})
}

func (s *Server) handleUpload(c echo.Context) error {
	form, err := c.MultipartForm()
	if err != nil || len(form.File["pdfs"]) == 0 {
		return echo.NewHTTPError(http.StatusBadRequest, msgNoFiles)
	}

	saved := 0
	for _, fh := range form.File["pdfs"] {
		if !strings.HasSuffix(fh.Filename, ".pdf") {
			s.logger.Info("skipping non-pdf upload", zap.String("file", fh.Filename))
			continue
		}
		src, err := fh.Open()
		if err != nil {
			return err
		}
		_, err = s.pipeline.SavePDF(fh.Filename, src)
		_ = src.Close()
		if err != nil {
			return fmt.Errorf("saving %s: %w", fh.Filename, err)
		}
		saved++
		s.metrics.UploadedPDFsTotal.Inc()
	}
	if saved == 0 {
		return echo.NewHTTPError(http.StatusBadRequest, msgNoPDFs)
	}

	start := time.Now()
	stats, err := s.pipeline.Process(c.Request().Context())
	s.metrics.ProcessingDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		return fmt.Errorf("processing pdfs: %w", err)
	}
	s.logger.Info("processed uploads",
		zap.Int("saved", saved),
		zap.Int("extracted", stats.Extracted),
		zap.Int("chunks", stats.Chunks),
	)
	return c.String(http.StatusOK, msgProcessed)
}

func (s *Server) handleQuery(c echo.Context) error {
	if !s.pipeline.HasIndex() {
		s.metrics.QuestionsTotal.WithLabelValues("no_index").Inc()
		return echo.NewHTTPError(http.StatusNotFound, msgNoModel)
	}
	question := strings.TrimSpace(c.FormValue("question"))
	if question == "" {
		return echo.NewHTTPError(http.StatusBadRequest, msgNoQuestion)
	}

	ans, err := s.pipeline.Ask(c.Request().Context(), question)
	switch {
	case errors.Is(err, service.ErrNoIndex):
		s.metrics.QuestionsTotal.WithLabelValues("no_index").Inc()
		return echo.NewHTTPError(http.StatusNotFound, msgNoModel)
	case errors.Is(err, service.ErrEmptyQuestion):
		return echo.NewHTTPError(http.StatusBadRequest, msgNoQuestion)
	case err != nil:
		s.metrics.QuestionsTotal.WithLabelValues("error").Inc()
		return err
	}
	s.metrics.QuestionsTotal.WithLabelValues("answered").Inc()

	if strings.Contains(c.Request().Header.Get(echo.HeaderAccept), echo.MIMEApplicationJSON) {
		return c.JSON(http.StatusOK, ans)
	}
	return c.String(http.StatusOK, ans.Text)
}

func (s *Server) handleImport(c echo.Context) error {
	fh, err := c.FormFile("embeddings")
	if err != nil || fh.Filename == "" {
		return echo.NewHTTPError(http.StatusBadRequest, msgNoImportFile)
	}
	if !strings.HasSuffix(fh.Filename, ".pkl") {
		s.metrics.ImportsTotal.WithLabelValues("rejected").Inc()
		return echo.NewHTTPError(http.StatusBadRequest, msgBadImportFormat)
	}
	src, err := fh.Open()
	if err != nil {
		return err
	}
	defer src.Close()

	n, err := s.pipeline.Import(c.Request().Context(), src)
	if errors.Is(err, service.ErrInvalidIndex) {
		s.metrics.ImportsTotal.WithLabelValues("rejected").Inc()
		s.logger.Warn("rejected embeddings import", zap.String("file", fh.Filename), zap.Error(err))
		return echo.NewHTTPError(http.StatusBadRequest, msgBadImport)
	}
	if err != nil {
		s.metrics.ImportsTotal.WithLabelValues("error").Inc()
		return err
	}
	s.metrics.ImportsTotal.WithLabelValues("imported").Inc()
	s.logger.Info("imported embeddings", zap.String("file", fh.Filename), zap.Int("records", n))
	return c.String(http.StatusOK, msgImported)
}

func (s *Server) handleExport(c echo.Context) error {
	if !s.pipeline.HasIndex() {
		return echo.NewHTTPError(http.StatusNotFound, msgNoExport)
	}
	return c.Attachment(s.pipeline.EmbeddingsFile(), ExportName)
}

func (s *Server) handleDocuments(c echo.Context) error {
	docs, err := s.pipeline.Documents(c.Request().Context())
	if errors.Is(err, service.ErrNoIndex) {
		return echo.NewHTTPError(http.StatusNotFound, msgNoDocuments)
	}
	if err != nil {
		return err
	}
	if docs == nil {
		docs = []service.DocumentInfo{}
	}
	return c.JSON(http.StatusOK, docs)
}

// HealthResponse is the response body for GET /health.
type HealthResponse struct {
	Status string `json:"status"`
	Index  bool   `json:"index"`
}

func (s *Server) handleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, HealthResponse{Status: "ok", Index: s.pipeline.HasIndex()})
}

// Addr is the listen address.
func (s *Server) Addr() string {
	return fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("starting http server", zap.String("addr", s.Addr()))
		errCh <- s.echo.Start(s.Addr())
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.config.ShutdownTimeout)
	defer cancel()
	s.logger.Info("shutting down http server")
	if err := s.echo.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
