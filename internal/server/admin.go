package server

import (
	"bytes"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/RyanBlaney/magictales/internal/report"
	"github.com/RyanBlaney/magictales/internal/store"
	"github.com/RyanBlaney/magictales/logging"
	"github.com/gin-gonic/gin"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

var userStatuses = []string{store.StatusActive, store.StatusOnline, store.StatusOffline}

func (s *Server) adminLogin(c *gin.Context) {
	if c.Request.Method != http.MethodPost {
		s.render(c, http.StatusOK, "admin_login.html", nil)
		return
	}

	if !s.checkAdmin(c.PostForm("username"), c.PostForm("password")) {
		s.render(c, http.StatusOK, "admin_login.html", gin.H{"Error": "Invalid admin credentials."})
		return
	}

	sess := currentSession(c)
	sess.User = ""
	sess.ProfilePic = ""
	sess.Admin = s.cfg.Auth.AdminUsername
	s.rotateSession(c)
	s.saveSession(c, sess)
	c.Redirect(http.StatusFound, "/admin/dashboard")
}

func (s *Server) adminLogout(c *gin.Context) {
	sess := currentSession(c)
	if sess.IsAdmin() {
		sess.Admin = ""
		sess.AdminProfilePic = ""
		s.saveSession(c, sess)
	}
	c.Redirect(http.StatusFound, "/")
}

func (s *Server) adminDashboard(c *gin.Context) {
	d, err := s.reporter.Dashboard()
	if err != nil {
		s.logger.Error(err, "Failed to build dashboard", logging.Fields{"function": "adminDashboard"})
		s.render(c, http.StatusInternalServerError, "admin_dashboard.html", gin.H{"Error": "Analytics are unavailable."})
		return
	}
	s.render(c, http.StatusOK, "admin_dashboard.html", gin.H{"Dashboard": d})
}

func (s *Server) adminProfile(c *gin.Context) {
	sess := currentSession(c)
	data := gin.H{"Action": "/admin/profile", "Name": sess.Admin, "IsAdminProfile": true}

	if c.Request.Method == http.MethodPost {
		msg, errMsg := s.updateProfile(c, "admin_profile", func(pic string) error {
			sess.AdminProfilePic = pic
			s.saveSession(c, sess)
			return nil
		}, func(hash string) error {
			return s.store.Admin.Update(func(p *store.AdminProfile) error {
				p.Password = hash
				return nil
			})
		}, func(bio string) error {
			return s.store.Admin.Update(func(p *store.AdminProfile) error {
				p.Bio = bio
				return nil
			})
		})
		data["Message"], data["Error"] = msg, errMsg
	}

	profile, err := s.store.Admin.Get()
	if err != nil {
		s.logger.Error(err, "Failed to read admin profile", logging.Fields{"function": "adminProfile"})
	}
	data["Bio"] = profile.Bio
	data["ProfilePic"] = sess.AdminProfilePic
	s.render(c, http.StatusOK, "profile.html", data)
}

type userRow struct {
	Name string
	store.User
}

func (s *Server) adminUsers(c *gin.Context) {
	users, err := s.store.Users.All()
	if err != nil {
		s.logger.Error(err, "Failed to read users", logging.Fields{"function": "adminUsers"})
	}
	names, err := s.store.Users.Names()
	if err != nil {
		s.logger.Error(err, "Failed to list users", logging.Fields{"function": "adminUsers"})
	}

	rows := make([]userRow, 0, len(names))
	for _, name := range names {
		rows = append(rows, userRow{Name: name, User: users[name]})
	}
	s.render(c, http.StatusOK, "admin_users.html", gin.H{"Users": rows})
}

func (s *Server) adminEditUser(c *gin.Context) {
	username := c.Param("username")
	user, err := s.store.Users.Get(username)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		s.logger.Error(err, "Failed to read user", logging.Fields{"function": "adminEditUser"})
	}
	s.render(c, http.StatusOK, "admin_edit_user.html", gin.H{
		"Username": username,
		"User":     user,
		"Statuses": userStatuses,
	})
}

func (s *Server) adminUpdateUser(c *gin.Context) {
	username := c.Param("username")

	err := s.store.Users.Upsert(username, func(u *store.User) error {
		if bio, ok := c.GetPostForm("bio"); ok {
			u.Bio = bio
		}
		u.Status = c.DefaultPostForm("status", u.Status)
		if u.Status == "" {
			u.Status = store.StatusActive
		}
		if u.Emotions == nil {
			u.Emotions = []string{}
		}
		return nil
	})
	if err != nil {
		s.logger.Error(err, "Failed to update user", logging.Fields{"function": "adminUpdateUser", "username": username})
	}
	c.Redirect(http.StatusFound, "/admin/users/"+username)
}

func (s *Server) adminFeedback(c *gin.Context) {
	items, err := s.store.Feedback.Newest()
	if err != nil {
		s.logger.Error(err, "Failed to read feedback", logging.Fields{"function": "adminFeedback"})
	}
	s.render(c, http.StatusOK, "admin_feedback.html", gin.H{"Feedback": items})
}

func (s *Server) adminReplyFeedback(c *gin.Context) {
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		c.Redirect(http.StatusFound, "/admin/feedback")
		return
	}

	text := strings.TrimSpace(c.PostForm("reply"))
	if text != "" {
		if err := s.store.Feedback.Reply(id, currentSession(c).Admin, text, s.now()); err != nil {
			s.logger.Warn("Failed to store feedback reply", logging.Fields{
				"function": "adminReplyFeedback",
				"id":       id,
				"error":    err.Error(),
			})
		}
	}
	c.Redirect(http.StatusFound, "/admin/feedback")
}

func (s *Server) adminVisualization(c *gin.Context) {
	v, err := s.reporter.Visualization()
	if err != nil {
		s.logger.Error(err, "Failed to build visualization", logging.Fields{"function": "adminVisualization"})
		s.render(c, http.StatusInternalServerError, "admin_visualization.html", gin.H{"Error": "Analytics are unavailable."})
		return
	}
	s.render(c, http.StatusOK, "admin_visualization.html", gin.H{"Viz": v})
}

func (s *Server) adminVisualizationJSON(c *gin.Context) {
	v, err := s.reporter.Visualization()
	if err != nil {
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: err.Error()})
		return
	}
	c.JSON(http.StatusOK, v)
}

func (s *Server) adminExport(c *gin.Context) {
	v, err := s.reporter.Visualization()
	if err != nil {
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: err.Error()})
		return
	}

	var buf bytes.Buffer
	if err := report.WriteXLSX(&buf, v); err != nil {
		s.logger.Error(err, "Failed to write spreadsheet", logging.Fields{"function": "adminExport"})
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "export failed"})
		return
	}

	c.Header("Content-Disposition", `attachment; filename="magictales-analytics.xlsx"`)
	c.Data(http.StatusOK, xlsxContentType, buf.Bytes())
}
