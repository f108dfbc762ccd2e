package server

import (
	"crypto/subtle"
	"net/http"
	"strings"
	"time"

	"github.com/RyanBlaney/magictales/configs"
	"github.com/RyanBlaney/magictales/internal/auth"
	"github.com/RyanBlaney/magictales/logging"
	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/memstore"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/securecookie"
	gsessions "github.com/gorilla/sessions"
)

// SessionCookie names the cookie carrying the session id.
const SessionCookie = "magictales_session"

const sessionKey = "magictales.session"

const (
	keyUser            = "user"
	keyAdmin           = "admin"
	keyLastEmotion     = "last_emotion"
	keyProfilePic      = "profile_pic"
	keyAdminProfilePic = "admin_profile_pic"
	keyIssued          = "issued"
)

// Session is the per-browser state kept in the session store.
type Session struct {
	User            string
	Admin           string
	LastEmotion     string
	ProfilePic      string
	AdminProfilePic string
}

// LoggedIn reports whether a regular user is signed in.
func (s *Session) LoggedIn() bool {
	return s != nil && s.User != ""
}

// IsAdmin reports whether the admin is signed in.
func (s *Session) IsAdmin() bool {
	return s != nil && s.Admin != ""
}

func sessionTTL(cfg configs.AuthConfig) time.Duration {
	if cfg.SessionTTL <= 0 {
		return 24 * time.Hour
	}
	return cfg.SessionTTL
}

// NewSessionStore returns an in-memory store whose ids are signed with
// auth.session_secret, or with a random key when none is configured.
func NewSessionStore(cfg configs.AuthConfig) sessions.Store {
	secret := []byte(cfg.SessionSecret)
	if len(secret) == 0 {
		secret = securecookie.GenerateRandomKey(32)
	}

	store := memstore.NewStore(secret)
	store.Options(sessions.Options{
		Path:     "/",
		MaxAge:   int(sessionTTL(cfg).Seconds()),
		Secure:   cfg.SecureCookies,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	return store
}

// loadSession attaches the caller's session. Entries older than the
// session TTL are treated as empty.
func (s *Server) loadSession() gin.HandlerFunc {
	return func(c *gin.Context) {
		gs := sessions.Default(c)
		sess := &Session{}

		if issued, ok := gs.Get(keyIssued).(int64); ok && s.now().Sub(time.Unix(issued, 0)) <= s.sessionTTL {
			sess.User, _ = gs.Get(keyUser).(string)
			sess.Admin, _ = gs.Get(keyAdmin).(string)
			sess.LastEmotion, _ = gs.Get(keyLastEmotion).(string)
			sess.ProfilePic, _ = gs.Get(keyProfilePic).(string)
			sess.AdminProfilePic, _ = gs.Get(keyAdminProfilePic).(string)
		}

		c.Set(sessionKey, sess)
		c.Next()
	}
}

func currentSession(c *gin.Context) *Session {
	if v, ok := c.Get(sessionKey); ok {
		if sess, ok := v.(*Session); ok {
			return sess
		}
	}
	return &Session{}
}

// saveSession writes sess and refreshes its issue time. Call before writing the body.
func (s *Server) saveSession(c *gin.Context, sess *Session) {
	gs := sessions.Default(c)
	gs.Set(keyUser, sess.User)
	gs.Set(keyAdmin, sess.Admin)
	gs.Set(keyLastEmotion, sess.LastEmotion)
	gs.Set(keyProfilePic, sess.ProfilePic)
	gs.Set(keyAdminProfilePic, sess.AdminProfilePic)
	gs.Set(keyIssued, s.now().Unix())

	if err := gs.Save(); err != nil {
		s.logger.Error(err, "Failed to save session", logging.Fields{"path": c.Request.URL.Path})
	}
}

func (s *Server) clearSession(c *gin.Context, sess *Session) {
	*sess = Session{}

	gs := sessions.Default(c)
	gs.Clear()
	gs.Options(sessions.Options{Path: "/", MaxAge: -1, HttpOnly: true})
	if err := gs.Save(); err != nil {
		s.logger.Error(err, "Failed to clear session", logging.Fields{"path": c.Request.URL.Path})
	}
}

// rotateSession deletes the entry behind the caller's current id and makes
// the next save issue a new id. Used whenever privileges change.
func (s *Server) rotateSession(c *gin.Context) {
	holder, ok := sessions.Default(c).(interface{ Session() *gsessions.Session })
	if !ok {
		return
	}
	gs := holder.Session()
	if gs == nil || gs.ID == "" {
		return
	}

	stale := gsessions.NewSession(s.sessionStore, SessionCookie)
	stale.ID = gs.ID
	stale.Options = &gsessions.Options{Path: "/", MaxAge: -1}
	if err := s.sessionStore.Save(c.Request, discardHeaders{}, stale); err != nil {
		s.logger.Warn("Failed to drop previous session", logging.Fields{"error": err.Error()})
	}
	gs.ID = ""
}

// discardHeaders swallows the cookie written while deleting a stale entry.
type discardHeaders struct{}

func (discardHeaders) Header() http.Header         { return http.Header{} }
func (discardHeaders) Write(b []byte) (int, error) { return len(b), nil }
func (discardHeaders) WriteHeader(int)             {}

func (s *Server) requireUser() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !currentSession(c).LoggedIn() {
			c.Redirect(http.StatusFound, "/login")
			c.Abort()
			return
		}
		c.Next()
	}
}

func (s *Server) requireAdmin() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !currentSession(c).IsAdmin() {
			c.Redirect(http.StatusFound, "/login")
			c.Abort()
			return
		}
		c.Next()
	}
}

// checkAdmin matches the admin credentials. A password stored in the admin
// profile takes precedence over the configured one.
func (s *Server) checkAdmin(username, password string) bool {
	if username == "" || password == "" {
		return false
	}
	if !strings.EqualFold(strings.TrimSpace(username), s.cfg.Auth.AdminUsername) {
		return false
	}

	profile, err := s.store.Admin.Get()
	if err == nil && profile.Password != "" {
		return auth.CheckPassword(profile.Password, password)
	}
	return subtle.ConstantTimeCompare([]byte(password), []byte(s.cfg.Auth.AdminPassword)) == 1
}
