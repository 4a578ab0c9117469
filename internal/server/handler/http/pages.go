package http

import (
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/atinyakov/imagedash/internal/common"
	"github.com/atinyakov/imagedash/internal/middleware"
	"github.com/atinyakov/imagedash/internal/web"
	"go.uber.org/zap"
)

// Renderer renders a named page.
type Renderer interface {
	Render(w io.Writer, page string, data any) error
}

// PageHandler serves the browser pages. Route protection is done by
// middleware.RouteGuard in front of it; the handlers only read the
// validated token and user from the request context.
type PageHandler struct {
	AuthService  AuthService
	ImageService ImageService
	Pages        Renderer
	Logger       *zap.Logger
	// CookieSecure marks the session cookie Secure.
	CookieSecure bool
}

// LoginForm handles GET /login.
func (h *PageHandler) LoginForm(w http.ResponseWriter, r *http.Request) {
	h.render(w, http.StatusOK, web.LoginPage, web.LoginData{})
}

// Login handles POST /login. The token is stored in the cookie only
// after the identity lookup confirms it.
func (h *PageHandler) Login(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		h.render(w, http.StatusBadRequest, web.LoginPage, web.LoginData{Error: "invalid request"})
		return
	}
	username := strings.TrimSpace(r.PostFormValue("username"))
	password := r.PostFormValue("password")

	payload, err := h.AuthService.Authenticate(r.Context(), username, password)
	if err != nil {
		h.Logger.Info("login failed", zap.String("username", username), zap.Error(err))
		h.render(w, loginStatus(err), web.LoginPage, web.LoginData{
			Username: username,
			Error:    "Authentication failed. Please check your credentials.",
		})
		return
	}

	if _, err := h.AuthService.WhoAmI(r.Context(), payload.AccessToken); err != nil {
		h.Logger.Warn("identity lookup after login failed", zap.String("username", username), zap.Error(err))
		h.render(w, http.StatusBadGateway, web.LoginPage, web.LoginData{
			Username: username,
			Error:    "Failed to fetch user information",
		})
		return
	}

	middleware.SetTokenCookie(w, payload.AccessToken, time.Duration(payload.ExpiresIn)*time.Second, h.CookieSecure)
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

func loginStatus(err error) int {
	if errors.Is(err, common.ErrValidation) {
		return http.StatusBadRequest
	}
	return http.StatusUnauthorized
}

// Logout handles POST /logout.
func (h *PageHandler) Logout(w http.ResponseWriter, r *http.Request) {
	middleware.ClearTokenCookie(w, h.CookieSecure)
	http.Redirect(w, r, "/login", http.StatusSeeOther)
}

// Gallery handles GET /. With a non-empty q it shows the search results,
// otherwise the full list.
func (h *PageHandler) Gallery(w http.ResponseWriter, r *http.Request) {
	data := web.GalleryData{
		User:  middleware.GetUserFromContext(r.Context()),
		Query: strings.TrimSpace(r.URL.Query().Get("q")),
	}
	if r.URL.Query().Get("uploaded") != "" {
		data.Notice = "Image uploaded."
	}
	if err := h.loadImages(r, &data); err != nil {
		if h.signedOut(w, r, err) {
			return
		}
		h.Logger.Warn("load gallery", zap.Bool("search", data.Query != ""), zap.Error(err))
		data.Error = common.UserMessage(err)
	}
	h.render(w, http.StatusOK, web.GalleryPage, data)
}

func (h *PageHandler) loadImages(r *http.Request, data *web.GalleryData) error {
	token := middleware.GetTokenFromContext(r.Context())
	var err error
	if data.Query == "" {
		data.Images, err = h.ImageService.ListImages(r.Context(), token)
	} else {
		data.Images, err = h.ImageService.SearchImages(r.Context(), token, data.Query)
	}
	return err
}

// Upload handles POST /upload from the gallery form.
func (h *PageHandler) Upload(w http.ResponseWriter, r *http.Request) {
	filename, content, err := readUpload(w, r)
	if err == nil {
		_, err = h.ImageService.UploadImage(r.Context(), middleware.GetTokenFromContext(r.Context()), filename, content)
	}
	if err == nil {
		http.Redirect(w, r, "/?uploaded=1", http.StatusSeeOther)
		return
	}
	if h.signedOut(w, r, err) {
		return
	}

	h.Logger.Warn("upload failed", zap.String("filename", filename), zap.Error(err))
	data := web.GalleryData{
		User:  middleware.GetUserFromContext(r.Context()),
		Error: UploadFailure(err),
	}
	if lerr := h.loadImages(r, &data); lerr != nil {
		h.Logger.Warn("reload after failed upload", zap.Error(lerr))
	}
	h.render(w, common.StatusOf(err), web.GalleryPage, data)
}

// UploadFailure is the message shown when an upload fails.
func UploadFailure(err error) string {
	return "Upload failed: " + common.DetailMessage(err)
}

// signedOut ends the browser session when err says the token is no
// longer accepted, and reports whether it did.
func (h *PageHandler) signedOut(w http.ResponseWriter, r *http.Request, err error) bool {
	if !errors.Is(err, common.ErrUnauthorized) {
		return false
	}
	middleware.ClearTokenCookie(w, h.CookieSecure)
	http.Redirect(w, r, "/login", http.StatusSeeOther)
	return true
}

func (h *PageHandler) render(w http.ResponseWriter, status int, page string, data any) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	if err := h.Pages.Render(w, page, data); err != nil {
		h.Logger.Error("render page", zap.String("page", page), zap.Error(err))
	}
}

// Healthz handles GET /healthz.
func Healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
