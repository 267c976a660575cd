// Package api exposes the registration, authentication and lookup
// boundary over HTTP. Failures answer with a reason code, never a stack
// trace or internal detail.
package api

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/guidoasbun/chat-sec-1/errors"
	"github.com/guidoasbun/chat-sec-1/services"
)

const tokenCookie = "chat_sec_token"

type Handler struct {
	log      *slog.Logger
	identity services.IIdentityService
}

func NewHandler(log *slog.Logger, identity services.IIdentityService) *Handler {
	return &Handler{log: log, identity: identity}
}

// NewRouter wires all HTTP routes.
func NewRouter(h *Handler) *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc("/api/register", h.Register).Methods(http.MethodPost)
	r.HandleFunc("/api/login", h.Login).Methods(http.MethodPost)
	r.HandleFunc("/api/logout", h.Logout).Methods(http.MethodPost)
	r.HandleFunc("/api/users/online", h.OnlineUsers).Methods(http.MethodGet)
	r.HandleFunc("/api/users/public-key/{username}", h.PublicKey).Methods(http.MethodGet)
	return r
}

type credentialsRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeDeclined(w, http.StatusBadRequest, "invalid request body")
		return
	}

	publicKey, err := h.identity.Register(r.Context(), req.Username, req.Password)
	if err != nil {
		h.log.Debug("Registration declined", "error", err)
		writeDeclined(w, errors.MapToHTTPStatus(err), declineReason(err))
		return
	}

	writeJSON(w, http.StatusCreated, map[string]any{
		"success":    true,
		"message":    "User registered successfully",
		"public_key": publicKey,
	})
}

// Login returns the caller's decrypted private key alongside the session
// token. This is the protocol's documented exposure boundary; see the
// identity service.
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeDeclined(w, http.StatusBadRequest, "invalid request body")
		return
	}

	creds, err := h.identity.Authenticate(r.Context(), req.Username, req.Password)
	if err != nil {
		h.log.Debug("Login declined", "username", req.Username, "error", err)
		writeDeclined(w, errors.MapToHTTPStatus(err), declineReason(err))
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     tokenCookie,
		Value:    creds.Token,
		HttpOnly: true,
		SameSite: http.SameSiteStrictMode,
		Path:     "/",
	})
	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"message": "Login successful",
		"user": map[string]string{
			"username":    creds.Username,
			"public_key":  creds.PublicKeyPEM,
			"private_key": creds.PrivateKeyPEM,
			"token":       creds.Token,
		},
	})
}

func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	http.SetCookie(w, &http.Cookie{
		Name:     tokenCookie,
		Value:    "",
		HttpOnly: true,
		Expires:  time.Unix(0, 0),
		Path:     "/",
	})
	writeJSON(w, http.StatusOK, map[string]any{"message": "Logged out"})
}

func (h *Handler) OnlineUsers(w http.ResponseWriter, _ *http.Request) {
	users, err := h.identity.ListOnline()
	if err != nil {
		writeDeclined(w, http.StatusInternalServerError, "lookup failed")
		return
	}
	if users == nil {
		users = []string{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"users": users})
}

func (h *Handler) PublicKey(w http.ResponseWriter, r *http.Request) {
	username := mux.Vars(r)["username"]
	publicKey, err := h.identity.LookupPublicKey(username)
	if err != nil {
		writeDeclined(w, errors.MapToHTTPStatus(err), "User not found")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"public_key": publicKey})
}

// declineReason maps an error to the short user-facing reason string.
func declineReason(err error) string {
	switch errors.MapToHTTPStatus(err) {
	case http.StatusConflict:
		return "Username already exists"
	case http.StatusBadRequest:
		return "Password must be at least 8 characters and contain at least one special character."
	case http.StatusUnauthorized:
		return "Invalid credentials"
	case http.StatusNotFound:
		return "Not found"
	case http.StatusServiceUnavailable:
		return "Temporarily unavailable"
	default:
		return "Request failed"
	}
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeDeclined(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]any{"success": false, "message": message})
}
