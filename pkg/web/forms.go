package web

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"time"

	"github.com/alim08/tradesite/pkg/auth"
	"github.com/alim08/tradesite/pkg/logger"
	"github.com/alim08/tradesite/pkg/metrics"
	"github.com/alim08/tradesite/pkg/models"
	"github.com/alim08/tradesite/pkg/reference"
	"github.com/alim08/tradesite/pkg/validation"
	"go.uber.org/zap"
)

// DashboardPath is where a signed-in user is sent. It is served by the
// trading platform, not by this site.
const DashboardPath = "/dashboard"

// contactRedirectDelay is how long the success message stays up.
const contactRedirectDelay = 2

const maxFormBytes = 64 << 10

var (
	contactSubjects = []string{"general", "technical", "billing", "partnership", "other"}
	contactOptions  = []string{"general", "technical", "partnership"}
)

type contactPage struct {
	layout
	Form     models.ContactMessage
	Errors   map[string]string
	Message  string
	Success  string
	Subjects []string
	Options  []string
}

type loginPage struct {
	layout
	Identifier string
	RememberMe bool
	Registered bool
	Error      string
	Errors     map[string]string
}

type registerPage struct {
	layout
	Form    models.Registration
	Country string
	Lookups reference.Lookups
	Error   string
	Errors  map[string]string
}

func (s *Server) parseForm(w http.ResponseWriter, r *http.Request) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxFormBytes)
	if err := r.ParseForm(); err != nil {
		http.Error(w, "Bad request", http.StatusBadRequest)
		return false
	}
	return true
}

func (s *Server) newContactPage(r *http.Request, locale string) contactPage {
	return contactPage{
		layout:   s.newLayout(r, locale, s.catalog.T(locale, "contact.title")),
		Subjects: contactSubjects,
		Options:  contactOptions,
	}
}

func (s *Server) contactPageHandler(w http.ResponseWriter, r *http.Request) {
	locale := s.localeOf(r)
	s.pages.render(w, http.StatusOK, "contact", s.newContactPage(r, locale))
}

// contactSubmitHandler validates the form before anything is stored; each
// failed rule is shown next to its field and the first one above the form.
func (s *Server) contactSubmitHandler(w http.ResponseWriter, r *http.Request) {
	if !s.parseForm(w, r) {
		return
	}
	locale := s.localeOf(r)
	page := s.newContactPage(r, locale)
	page.Form = models.ContactMessage{
		Name:    r.PostForm.Get("name"),
		Email:   r.PostForm.Get("email"),
		Subject: r.PostForm.Get("subject"),
		Message: r.PostForm.Get("message"),
		Locale:  locale,
	}
	page.Form.Sanitize()

	if err := page.Form.Validate(); err != nil {
		errs, _ := validation.AsValidationErrors(err)
		metrics.ContactSubmissions.WithLabelValues("invalid").Inc()
		page.Message = errs.First()
		page.Errors = errs.ByField()
		s.pages.render(w, http.StatusUnprocessableEntity, "contact", page)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	msg := page.Form
	if err := s.contacts.Save(ctx, &msg); err != nil {
		logger.Log.Error("failed to save contact message", zap.Error(err),
			zap.String("request_id", RequestID(r.Context())))
		metrics.ContactSubmissions.WithLabelValues("error").Inc()
		page.Message = s.catalog.T(locale, "contact.failed")
		s.pages.render(w, http.StatusInternalServerError, "contact", page)
		return
	}

	if s.queue != nil {
		payload, err := json.Marshal(msg)
		if err == nil {
			err = s.queue.EnqueueContact(ctx, payload)
		}
		if err != nil {
			// The message is stored; the notification is best effort.
			logger.Log.Warn("failed to enqueue contact message", zap.String("id", msg.ID), zap.Error(err))
		}
	}

	metrics.ContactSubmissions.WithLabelValues("accepted").Inc()
	logger.Log.Info("contact message received", zap.String("id", msg.ID), zap.String("subject", msg.Subject))

	page.Success = s.catalog.T(locale, "contact.success")
	page.Refresh = "/" + locale
	page.RefreshAfter = contactRedirectDelay
	s.pages.render(w, http.StatusOK, "contact", page)
}

func (s *Server) loginPageHandler(w http.ResponseWriter, r *http.Request) {
	locale := s.localeOf(r)
	s.pages.render(w, http.StatusOK, "login", loginPage{
		layout:     s.newLayout(r, locale, s.catalog.T(locale, "login.title")),
		Registered: r.URL.Query().Get("registered") == "true",
	})
}

// loginSubmitHandler forwards valid credentials to the auth backend. On
// success it starts a session and leaves the site for the dashboard.
func (s *Server) loginSubmitHandler(w http.ResponseWriter, r *http.Request) {
	if !s.parseForm(w, r) {
		return
	}
	locale := s.localeOf(r)
	creds := models.LoginCredentials{
		Identifier:    validation.SanitizeString(r.PostForm.Get("emailOrUsername")),
		Password:      r.PostForm.Get("password"),
		TwoFactorCode: validation.SanitizeString(r.PostForm.Get("twoFactorCode")),
		RememberMe:    checked(r.PostForm.Get("rememberMe")),
	}
	page := loginPage{
		layout:     s.newLayout(r, locale, s.catalog.T(locale, "login.title")),
		Identifier: creds.Identifier,
		RememberMe: creds.RememberMe,
	}

	if err := creds.Validate(); err != nil {
		errs, _ := validation.AsValidationErrors(err)
		page.Error = errs.First()
		page.Errors = errs.ByField()
		s.pages.render(w, http.StatusUnprocessableEntity, "login", page)
		return
	}

	result, err := s.auth.Login(r.Context(), creds)
	if err != nil {
		page.Error = s.catalog.T(locale, "login.failed")
		s.pages.render(w, http.StatusBadGateway, "login", page)
		return
	}
	if !result.Success {
		page.Error = result.Message
		s.pages.render(w, http.StatusUnauthorized, "login", page)
		return
	}

	user := models.AuthUser{ID: creds.Identifier, Username: creds.Identifier}
	if result.User != nil {
		user = *result.User
	}
	token, expires, err := s.sessions.IssueToken(user, creds.RememberMe)
	if err != nil {
		logger.Log.Error("failed to issue session", zap.Error(err))
		page.Error = s.catalog.T(locale, "login.failed")
		s.pages.render(w, http.StatusInternalServerError, "login", page)
		return
	}
	s.sessions.SetCookie(w, token, expires)
	http.Redirect(w, r, DashboardPath, http.StatusSeeOther)
}

func (s *Server) loadLookups(r *http.Request) reference.Lookups {
	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()
	lookups, err := s.reference.Load(ctx, clientIP(r))
	if err != nil {
		// The form still renders; the selects are just empty.
		logger.Log.Warn("registration lookups unavailable", zap.Error(err))
	}
	return lookups
}

func (s *Server) registerPageHandler(w http.ResponseWriter, r *http.Request) {
	locale := s.localeOf(r)
	lookups := s.loadLookups(r)
	s.pages.render(w, http.StatusOK, "register", registerPage{
		layout:  s.newLayout(r, locale, s.catalog.T(locale, "register.title")),
		Country: lookups.Preselected,
		Lookups: lookups,
	})
}

func (s *Server) registerSubmitHandler(w http.ResponseWriter, r *http.Request) {
	if !s.parseForm(w, r) {
		return
	}
	locale := s.localeOf(r)
	reg := models.Registration{
		FirstName:   r.PostForm.Get("firstName"),
		LastName:    r.PostForm.Get("lastName"),
		Email:       r.PostForm.Get("email"),
		Username:    r.PostForm.Get("username"),
		Password:    r.PostForm.Get("password"),
		PhoneNumber: r.PostForm.Get("phoneNumber"),
		Telephone:   r.PostForm.Get("telephone"),
		Country:     r.PostForm.Get("country"),
		Language:    r.PostForm.Get("language"),
		DateOfBirth: r.PostForm.Get("dateOfBirth"),
		Source:      requestOrigin(r),
	}
	reg.Sanitize()

	fail := func(status int, message string, errs validation.ValidationErrors) {
		page := registerPage{
			layout:  s.newLayout(r, locale, s.catalog.T(locale, "register.title")),
			Form:    reg,
			Country: reg.Country,
			Lookups: s.loadLookups(r),
			Error:   message,
			Errors:  errs.ByField(),
		}
		page.Form.Password = ""
		s.pages.render(w, status, "register", page)
	}

	if err := reg.Validate(); err != nil {
		errs, _ := validation.AsValidationErrors(err)
		fail(http.StatusUnprocessableEntity, errs.First(), errs)
		return
	}

	result, err := s.auth.Register(r.Context(), reg)
	if err != nil {
		fail(http.StatusBadGateway, s.catalog.T(locale, "register.failed"), nil)
		return
	}
	if !result.Success {
		fail(http.StatusUnprocessableEntity, result.Message, nil)
		return
	}

	logger.Log.Info("registration accepted", zap.String("username", reg.Username))
	http.Redirect(w, r, "/"+locale+"/login?"+url.Values{"registered": {"true"}}.Encode(), http.StatusSeeOther)
}

// accountHandler is reached only with a valid session.
func (s *Server) accountHandler(w http.ResponseWriter, r *http.Request) {
	if claims, ok := auth.ClaimsFromContext(r.Context()); ok {
		logger.Log.Debug("account redirect", zap.String("user_id", claims.UserID))
	}
	http.Redirect(w, r, DashboardPath, http.StatusSeeOther)
}

func (s *Server) logoutHandler(w http.ResponseWriter, r *http.Request) {
	s.sessions.ClearCookie(w)
	http.Redirect(w, r, "/"+s.localeOf(r), http.StatusSeeOther)
}

// checked interprets an HTML checkbox value.
func checked(v string) bool {
	switch v {
	case "on", "true", "1":
		return true
	}
	return false
}
