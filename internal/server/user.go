package server

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/RyanBlaney/magictales/emotion"
	"github.com/RyanBlaney/magictales/internal/auth"
	"github.com/RyanBlaney/magictales/internal/store"
	"github.com/RyanBlaney/magictales/logging"
	"github.com/RyanBlaney/magictales/transcode"
	"github.com/gin-gonic/gin"
)

func (s *Server) index(c *gin.Context) {
	s.render(c, http.StatusOK, "index.html", nil)
}

func (s *Server) register(c *gin.Context) {
	if c.Request.Method != http.MethodPost {
		s.render(c, http.StatusOK, "register.html", nil)
		return
	}

	username := strings.TrimSpace(c.PostForm("username"))
	email := strings.TrimSpace(c.PostForm("email"))
	password := c.PostForm("password")

	fail := func(msg string) {
		s.render(c, http.StatusOK, "register.html", gin.H{"Error": msg, "Username": username, "Email": email})
	}

	if username == "" || email == "" || password == "" {
		fail("Please fill out all fields.")
		return
	}
	if err := auth.ValidatePassword(password); err != nil {
		fail(err.Error())
		return
	}

	hash, err := auth.HashPassword(password)
	if err != nil {
		s.logger.Error(err, "Failed to hash password", logging.Fields{"function": "register"})
		fail("Could not create the account. Please try again.")
		return
	}

	err = s.store.Users.Create(username, store.User{
		Email:    email,
		Password: hash,
		Emotions: []string{},
		Status:   store.StatusOffline,
	})
	if errors.Is(err, store.ErrExists) {
		fail("Username already exists. Please choose another.")
		return
	}
	if err != nil {
		s.logger.Error(err, "Failed to create user", logging.Fields{"function": "register", "username": username})
		fail("Could not create the account. Please try again.")
		return
	}

	s.logger.Info("User registered", logging.Fields{"username": username})
	c.Redirect(http.StatusFound, "/login")
}

func (s *Server) login(c *gin.Context) {
	if c.Request.Method != http.MethodPost {
		s.render(c, http.StatusOK, "login.html", nil)
		return
	}

	username := strings.TrimSpace(c.PostForm("username"))
	password := c.PostForm("password")

	fail := func(msg string) {
		s.render(c, http.StatusOK, "login.html", gin.H{"Error": msg, "Username": username})
	}

	if username == "" || password == "" {
		fail("Please enter both username and password.")
		return
	}

	sess := currentSession(c)
	if s.checkAdmin(username, password) {
		sess.User = ""
		sess.ProfilePic = ""
		sess.Admin = s.cfg.Auth.AdminUsername
		s.rotateSession(c)
		s.saveSession(c, sess)
		c.Redirect(http.StatusFound, "/admin/dashboard")
		return
	}

	user, err := s.store.Users.Get(username)
	switch {
	case errors.Is(err, store.ErrNotFound):
		fail("User not found. Please register first.")
		return
	case err != nil:
		s.logger.Error(err, "Failed to read users", logging.Fields{"function": "login"})
		fail("Could not sign in. Please try again.")
		return
	case user.Password == "":
		fail("This account has no password set. Please register again.")
		return
	case !auth.CheckPassword(user.Password, password):
		fail("Incorrect password.")
		return
	}

	if err := s.store.Users.Update(username, func(u *store.User) error {
		u.Status = store.StatusOnline
		u.IsLoggedIn = true
		return nil
	}); err != nil {
		s.logger.Warn("Failed to mark user online", logging.Fields{"username": username, "error": err.Error()})
	}

	sess.Admin = ""
	sess.User = username
	sess.ProfilePic = ""
	if user.ProfilePic != nil {
		sess.ProfilePic = *user.ProfilePic
	}
	s.rotateSession(c)
	s.saveSession(c, sess)
	c.Redirect(http.StatusFound, "/dashboard")
}

func (s *Server) logout(c *gin.Context) {
	sess := currentSession(c)
	if sess.LoggedIn() {
		if err := s.store.Users.Update(sess.User, func(u *store.User) error {
			u.Status = store.StatusOffline
			u.IsLoggedIn = false
			return nil
		}); err != nil && !errors.Is(err, store.ErrNotFound) {
			s.logger.Warn("Failed to mark user offline", logging.Fields{"username": sess.User, "error": err.Error()})
		}
	}
	s.clearSession(c, sess)
	c.Redirect(http.StatusFound, "/")
}

// analyzeUpload saves the upload and runs the pipeline on it. The detected
// label is appended to the user's history and kept in the session.
func (s *Server) analyzeUpload(c *gin.Context, filename string) (*emotion.Analysis, error) {
	fh, err := c.FormFile("file")
	if err != nil {
		return nil, err
	}

	path, err := s.saveUpload(c, fh, uploadName(filename))
	if err != nil {
		return nil, err
	}

	analysis, err := s.analyzer.Analyze(c.Request.Context(), path)
	if err != nil {
		return nil, err
	}

	sess := currentSession(c)
	label := string(analysis.Label)
	if err := s.store.Users.Update(sess.User, func(u *store.User) error {
		u.Emotions = append(u.Emotions, label)
		return nil
	}); err != nil {
		s.logger.Warn("Failed to append emotion history", logging.Fields{"username": sess.User, "error": err.Error()})
	}

	sess.LastEmotion = label
	s.saveSession(c, sess)
	return analysis, nil
}

func (s *Server) dashboard(c *gin.Context) {
	sess := currentSession(c)

	if c.Request.Method != http.MethodPost {
		last := sess.LastEmotion
		if last != "" {
			sess.LastEmotion = ""
			s.saveSession(c, sess)
		}
		s.render(c, http.StatusOK, "dashboard.html", gin.H{"Emotion": last})
		return
	}

	fh, err := c.FormFile("file")
	if err != nil {
		s.render(c, http.StatusOK, "dashboard.html", gin.H{"Error": "No file part"})
		return
	}
	if fh.Filename == "" {
		s.render(c, http.StatusOK, "dashboard.html", gin.H{"Error": "No selected file"})
		return
	}
	if !transcode.IsSupported(fh.Filename) {
		s.render(c, http.StatusOK, "dashboard.html", gin.H{"Error": "Invalid file type"})
		return
	}

	analysis, err := s.analyzeUpload(c, fh.Filename)
	if err != nil {
		s.render(c, http.StatusOK, "dashboard.html", gin.H{"Error": fmt.Sprintf("Error processing file: %v", err)})
		return
	}
	s.render(c, http.StatusOK, "dashboard.html", gin.H{"Emotion": string(analysis.Label), "Analysis": analysis})
}

func (s *Server) apiAnalyze(c *gin.Context) {
	if !currentSession(c).LoggedIn() {
		c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "Unauthorized"})
		return
	}

	fh, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "No file part"})
		return
	}

	filename := fh.Filename
	if filename == "" || filename == "blob" {
		filename = DefaultRecordingName
	}
	if !transcode.IsSupported(filename) {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error: fmt.Sprintf("Invalid file type: %s. Allowed: %s", filename, strings.Join(transcode.SupportedExtensions, ", ")),
		})
		return
	}

	analysis, err := s.analyzeUpload(c, filename)
	if err != nil {
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"emotion":  string(analysis.Label),
		"display":  analysis.Display,
		"variant":  analysis.Variant,
		"duration": analysis.Clip.Duration.Seconds(),
	})
}

func (s *Server) story(c *gin.Context) {
	sess := currentSession(c)
	data := gin.H{"Emotion": sess.LastEmotion}

	if sess.LastEmotion != "" {
		st, err := s.stories.Generate(c.Request.Context(), sess.LastEmotion)
		if err != nil {
			data["Error"] = fmt.Sprintf("Could not generate story: %v", err)
		} else {
			data["Story"] = st
			if err := s.store.Stories.Record(sess.LastEmotion); err != nil {
				s.logger.Warn("Failed to record story analytics", logging.Fields{
					"function": "story",
					"emotion":  sess.LastEmotion,
					"error":    err.Error(),
				})
			}
		}
	}
	s.render(c, http.StatusOK, "story.html", data)
}

func (s *Server) feedback(c *gin.Context) {
	sess := currentSession(c)
	data := gin.H{}

	if c.Request.Method == http.MethodPost {
		rating, _ := strconv.Atoi(c.PostForm("rating"))
		if _, err := s.store.Feedback.Add(sess.User, rating, c.PostForm("feedback"), s.now()); err != nil {
			if !errors.Is(err, store.ErrInvalidFeedback) {
				s.logger.Error(err, "Failed to save feedback", logging.Fields{"function": "feedback"})
			}
			data["Error"] = "Please provide rating 1-5 and feedback text."
		} else {
			data["Success"] = true
		}
	}

	items, err := s.store.Feedback.Newest()
	if err != nil {
		s.logger.Error(err, "Failed to read feedback", logging.Fields{"function": "feedback"})
	}
	data["Feedback"] = items
	s.render(c, http.StatusOK, "feedback.html", data)
}

func (s *Server) profile(c *gin.Context) {
	sess := currentSession(c)
	data := gin.H{"Action": "/profile", "Name": sess.User}

	if c.Request.Method == http.MethodPost {
		msg, errMsg := s.updateProfile(c, sess.User+"_profile", func(pic string) error {
			sess.ProfilePic = pic
			s.saveSession(c, sess)
			return s.store.Users.Update(sess.User, func(u *store.User) error {
				u.ProfilePic = &pic
				return nil
			})
		}, func(hash string) error {
			return s.store.Users.Update(sess.User, func(u *store.User) error {
				u.Password = hash
				return nil
			})
		}, func(bio string) error {
			return s.store.Users.Update(sess.User, func(u *store.User) error {
				u.Bio = bio
				return nil
			})
		})
		data["Message"], data["Error"] = msg, errMsg
	}

	user, err := s.store.Users.Get(sess.User)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		s.logger.Error(err, "Failed to read user", logging.Fields{"function": "profile"})
	}
	data["Bio"] = user.Bio
	data["ProfilePic"] = sess.ProfilePic
	s.render(c, http.StatusOK, "profile.html", data)
}

// updateProfile applies one of the profile forms: a picture upload, a
// password change or a bio edit. It returns a message or an error message.
func (s *Server) updateProfile(c *gin.Context, picBase string,
	setPic func(name string) error,
	setPassword func(hash string) error,
	setBio func(bio string) error,
) (string, string) {
	if fh, err := c.FormFile("profile_pic"); err == nil && fh.Filename != "" {
		ext := strings.ToLower(transcode.Extension(fh.Filename))
		if !imageExtensions["."+ext] {
			return "", "Invalid image type."
		}
		name := picBase + "." + ext
		if _, err := s.saveUpload(c, fh, name); err != nil {
			s.logger.Error(err, "Failed to save profile picture")
			return "", "Could not save the picture."
		}
		if err := setPic(name); err != nil {
			s.logger.Warn("Failed to store profile picture", logging.Fields{"error": err.Error()})
		}
		return "Profile picture updated.", ""
	}

	if pw, ok := c.GetPostForm("new_password"); ok {
		if err := auth.ValidatePassword(pw); err != nil {
			return "", err.Error()
		}
		hash, err := auth.HashPassword(pw)
		if err == nil {
			err = setPassword(hash)
		}
		if err != nil {
			s.logger.Error(err, "Failed to update password")
			return "", "Could not update the password."
		}
		return "Password updated successfully.", ""
	}

	if bio, ok := c.GetPostForm("edit_profile"); ok {
		if err := setBio(bio); err != nil {
			s.logger.Error(err, "Failed to update bio")
			return "", "Could not update the profile."
		}
		return "Profile updated successfully.", ""
	}
	return "", ""
}

func (s *Server) forgotPassword(c *gin.Context) {
	if c.Request.Method != http.MethodPost {
		s.render(c, http.StatusOK, "forgot_password.html", nil)
		return
	}

	email := strings.TrimSpace(c.PostForm("email"))
	if email == "" {
		s.render(c, http.StatusOK, "forgot_password.html", gin.H{"Error": "Please enter your email."})
		return
	}

	username, _, err := s.store.Users.FindByEmail(email)
	if err != nil {
		s.render(c, http.StatusOK, "forgot_password.html", gin.H{"Error": "No account found with that email."})
		return
	}

	token, err := s.store.Tokens.Issue(username, email, s.now())
	if err != nil {
		s.logger.Error(err, "Failed to issue reset token", logging.Fields{"function": "forgotPassword"})
		s.render(c, http.StatusOK, "forgot_password.html", gin.H{"Error": "Could not send email. Please try again later."})
		return
	}

	link := s.baseURL(c) + "/reset-password/" + token
	if err := s.mailer.SendResetLink(c.Request.Context(), email, link); err != nil {
		s.logger.Error(err, "Failed to deliver reset link", logging.Fields{"function": "forgotPassword"})
		s.render(c, http.StatusOK, "forgot_password.html", gin.H{"Error": "Could not send email. Please try again later."})
		return
	}
	s.render(c, http.StatusOK, "forgot_password.html", gin.H{"Message": "Password reset link sent to your email."})
}

// baseURL is server.base_url, or the scheme and host of the request. The
// request fallback is only reachable when links are written to the local
// link file, since New refuses SMTP delivery without a base URL.
func (s *Server) baseURL(c *gin.Context) string {
	if s.cfg.Server.BaseURL != "" {
		return strings.TrimRight(s.cfg.Server.BaseURL, "/")
	}
	scheme := "http"
	if c.Request.TLS != nil || c.GetHeader("X-Forwarded-Proto") == "https" {
		scheme = "https"
	}
	return scheme + "://" + c.Request.Host
}

func (s *Server) resetPassword(c *gin.Context) {
	token := c.Param("token")
	rt, err := s.store.Tokens.Lookup(token, s.cfg.Auth.ResetTokenTTL, s.now())
	if err != nil {
		c.String(http.StatusBadRequest, "Invalid or expired token.")
		return
	}

	if c.Request.Method != http.MethodPost {
		s.render(c, http.StatusOK, "reset_password.html", gin.H{"Token": token})
		return
	}

	pw := c.PostForm("password")
	if err := auth.ValidatePassword(pw); err != nil {
		s.render(c, http.StatusOK, "reset_password.html", gin.H{"Token": token, "Error": err.Error()})
		return
	}

	hash, err := auth.HashPassword(pw)
	if err == nil {
		err = s.store.Users.Update(rt.Username, func(u *store.User) error {
			u.Password = hash
			return nil
		})
	}
	if err != nil {
		s.logger.Error(err, "Failed to reset password", logging.Fields{"function": "resetPassword", "username": rt.Username})
		s.render(c, http.StatusOK, "reset_password.html", gin.H{"Token": token, "Error": "Could not reset the password."})
		return
	}

	if err := s.store.Tokens.Consume(token); err != nil {
		s.logger.Warn("Failed to remove used reset token", logging.Fields{"error": err.Error()})
	}
	c.Redirect(http.StatusFound, "/login")
}
