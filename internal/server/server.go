package server

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"html/template"
	"net/http"
	"time"

	"github.com/RyanBlaney/magictales/configs"
	"github.com/RyanBlaney/magictales/emotion"
	"github.com/RyanBlaney/magictales/internal/mail"
	"github.com/RyanBlaney/magictales/internal/report"
	"github.com/RyanBlaney/magictales/internal/store"
	"github.com/RyanBlaney/magictales/internal/story"
	"github.com/RyanBlaney/magictales/logging"
	"github.com/gin-contrib/sessions"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

//go:embed templates/*.html
var templateFS embed.FS

// Deps are the services the HTTP layer drives.
type Deps struct {
	Config   *configs.Config
	Store    *store.Store
	Analyzer *emotion.Analyzer
	Stories  story.Generator
	Reporter *report.Reporter
	Mailer   *mail.ResetMailer
	// SessionStore defaults to NewSessionStore(Config.Auth).
	SessionStore sessions.Store
	// Registry is served at /metrics when set.
	Registry *prometheus.Registry
}

// Server is the MagicTales web application.
type Server struct {
	cfg      *configs.Config
	store    *store.Store
	analyzer *emotion.Analyzer
	stories  story.Generator
	reporter *report.Reporter
	mailer   *mail.ResetMailer
	registry *prometheus.Registry

	sessionStore sessions.Store
	sessionTTL   time.Duration

	engine *gin.Engine
	logger logging.Logger
	now    func() time.Time
}

// ErrorResponse is the JSON error body.
type ErrorResponse struct {
	Error string `json:"error"`
}

// New builds the router. Config, Store and Analyzer are required.
func New(deps Deps) (*Server, error) {
	if deps.Config == nil || deps.Store == nil || deps.Analyzer == nil {
		return nil, errors.New("server requires config, store and analyzer")
	}
	if deps.Config.Mail.Enabled() && deps.Config.Server.BaseURL == "" {
		return nil, errors.New("server.base_url must be set when reset links are mailed")
	}

	s := &Server{
		cfg:      deps.Config,
		store:    deps.Store,
		analyzer: deps.Analyzer,
		stories:  deps.Stories,
		reporter: deps.Reporter,
		mailer:   deps.Mailer,
		registry: deps.Registry,

		sessionStore: deps.SessionStore,
		sessionTTL:   sessionTTL(deps.Config.Auth),
		logger: logging.WithFields(logging.Fields{
			"component": "http_server",
		}),
		now: time.Now,
	}

	if s.stories == nil {
		svc, err := story.NewService(deps.Config.Story)
		if err != nil {
			return nil, err
		}
		s.stories = svc
	}
	if s.sessionStore == nil {
		s.sessionStore = NewSessionStore(deps.Config.Auth)
	}
	if s.reporter == nil {
		s.reporter = report.New(s.store.Users, s.store.Emotions, s.store.Stories)
	}
	if s.mailer == nil {
		s.mailer = mail.NewResetMailer(deps.Config.Mail, deps.Config.Storage.DataDir)
	}

	tmpl, err := template.New("").Funcs(templateFuncs).ParseFS(templateFS, "templates/*.html")
	if err != nil {
		return nil, fmt.Errorf("failed to parse templates: %w", err)
	}

	engine := gin.New()
	engine.Use(gin.Recovery(), s.requestLogger(), s.limitBody(),
		sessions.Sessions(SessionCookie, s.sessionStore), s.loadSession())
	engine.MaxMultipartMemory = 8 << 20
	engine.SetHTMLTemplate(tmpl)
	s.engine = engine

	s.routes()
	return s, nil
}

var templateFuncs = template.FuncMap{
	"pct": func(v float64) string { return fmt.Sprintf("%.1f%%", v) },
	"title": func(s string) string {
		return emotion.Label(s).Display()
	},
	"ratings": func() []int { return []int{5, 4, 3, 2, 1} },
}

func (s *Server) routes() {
	r := s.engine

	r.GET("/", s.index)
	r.GET("/register", s.register)
	r.POST("/register", s.register)
	r.GET("/login", s.login)
	r.POST("/login", s.login)
	r.GET("/logout", s.logout)
	r.GET("/forgot-password", s.forgotPassword)
	r.POST("/forgot-password", s.forgotPassword)
	r.GET("/reset-password/:token", s.resetPassword)
	r.POST("/reset-password/:token", s.resetPassword)
	r.GET("/uploads/:filename", s.uploadedFile)

	user := r.Group("/", s.requireUser())
	user.GET("/dashboard", s.dashboard)
	user.POST("/dashboard", s.dashboard)
	user.GET("/story", s.story)
	user.POST("/story", s.story)
	user.GET("/feedback", s.feedback)
	user.POST("/feedback", s.feedback)
	user.GET("/profile", s.profile)
	user.POST("/profile", s.profile)

	r.POST("/api/analyze", s.apiAnalyze)

	r.GET("/admin/login", s.adminLogin)
	r.POST("/admin/login", s.adminLogin)
	r.GET("/admin/logout", s.adminLogout)

	admin := r.Group("/admin", s.requireAdmin())
	admin.GET("/dashboard", s.adminDashboard)
	admin.GET("/profile", s.adminProfile)
	admin.POST("/profile", s.adminProfile)
	admin.GET("/users", s.adminUsers)
	admin.GET("/users/:username", s.adminEditUser)
	admin.POST("/users/:username", s.adminUpdateUser)
	admin.GET("/feedback", s.adminFeedback)
	admin.POST("/feedback/:id", s.adminReplyFeedback)
	admin.GET("/visualization", s.adminVisualization)
	admin.GET("/visualization.json", s.adminVisualizationJSON)
	admin.GET("/analytics/export.xlsx", s.adminExport)

	r.GET("/healthz", s.healthz)
	if s.registry != nil {
		r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{})))
	}
}

// Handler returns the router.
func (s *Server) Handler() http.Handler {
	return s.engine
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:         s.cfg.Server.Addr,
		Handler:      s.engine,
		ReadTimeout:  s.cfg.Server.ReadTimeout,
		WriteTimeout: s.cfg.Server.WriteTimeout,
	}

	errChan := make(chan error, 1)
	go func() {
		s.logger.Info("HTTP server listening", logging.Fields{
			"function": "Run",
			"addr":     srv.Addr,
		})
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- err
		}
	}()

	pruneDone := make(chan struct{})
	go s.pruneLoop(ctx, pruneDone)

	var serverErr error
	select {
	case <-ctx.Done():
		s.logger.Info("Shutting down HTTP server")
	case err := <-errChan:
		serverErr = err
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		s.logger.Error(err, "HTTP server shutdown error")
	}
	<-pruneDone

	if serverErr != nil {
		return fmt.Errorf("HTTP server failed: %w", serverErr)
	}
	s.logger.Info("HTTP server stopped cleanly")
	return nil
}

// pruneLoop drops expired reset tokens.
func (s *Server) pruneLoop(ctx context.Context, done chan<- struct{}) {
	defer close(done)

	ticker := time.NewTicker(10 * time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			tokens, err := s.store.Tokens.Prune(s.cfg.Auth.ResetTokenTTL, s.now())
			if err != nil {
				s.logger.Warn("Failed to prune reset tokens", logging.Fields{"error": err.Error()})
			}
			if tokens > 0 {
				s.logger.Debug("Pruned expired reset tokens", logging.Fields{
					"tokens": tokens,
				})
			}
		}
	}
}

func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		fields := logging.Fields{
			"method":  c.Request.Method,
			"path":    c.Request.URL.Path,
			"status":  c.Writer.Status(),
			"latency": time.Since(start).Milliseconds(),
		}
		if c.Writer.Status() >= http.StatusInternalServerError {
			s.logger.Warn("Request failed", fields)
			return
		}
		s.logger.Debug("Request served", fields)
	}
}

func (s *Server) limitBody() gin.HandlerFunc {
	return func(c *gin.Context) {
		if s.cfg.Server.MaxUploadBytes > 0 && c.Request.Body != nil {
			c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, s.cfg.Server.MaxUploadBytes)
		}
		c.Next()
	}
}

// render executes a page template with the session attached.
func (s *Server) render(c *gin.Context, status int, name string, data gin.H) {
	if data == nil {
		data = gin.H{}
	}
	data["Session"] = currentSession(c)
	c.HTML(status, name, data)
}

func (s *Server) healthz(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":     "ok",
		"classifier": s.analyzer.Classifier().Variant(),
	})
}
