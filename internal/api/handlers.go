package api

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/gorilla/mux"

	"github.com/an-dube/draftpad/internal/auth"
	"github.com/an-dube/draftpad/internal/directory"
	"github.com/an-dube/draftpad/internal/persist"
	"github.com/an-dube/draftpad/internal/ws"
)

type API struct {
	hub        *ws.Hub
	dir        *directory.Directory
	users      *auth.Service
	controller *persist.Controller
}

func New(hub *ws.Hub, dir *directory.Directory, users *auth.Service, controller *persist.Controller) *API {
	return &API{
		hub:        hub,
		dir:        dir,
		users:      users,
		controller: controller,
	}
}

// Routes registers every HTTP endpoint on a router.
func (a *API) Routes(r *mux.Router) {
	r.HandleFunc("/health", a.HealthHandler).Methods("GET")
	r.HandleFunc("/api/stats", a.StatsHandler).Methods("GET")

	r.HandleFunc("/auth/register", a.RegisterHandler).Methods("POST")
	r.HandleFunc("/auth/login", a.LoginHandler).Methods("POST")
	r.HandleFunc("/auth/verify", a.VerifyHandler).Methods("POST")

	docs := r.PathPrefix("/docs").Subrouter()
	docs.Use(a.requireAuth)
	docs.HandleFunc("/create", a.CreateDocumentHandler).Methods("POST")
	docs.HandleFunc("/all", a.ListDocumentsHandler).Methods("GET")
	docs.HandleFunc("/{id}", a.GetDocumentHandler).Methods("GET")
	docs.HandleFunc("/{id}", a.UpdateDocumentHandler).Methods("PUT")
	docs.HandleFunc("/{id}", a.DeleteDocumentHandler).Methods("DELETE")
}

func jsonResponse(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		log.Printf("Error encoding JSON response: %v", err)
	}
}

func errorResponse(w http.ResponseWriter, status int, message string) {
	jsonResponse(w, status, map[string]string{"error": message})
}

func (a *API) HealthHandler(w http.ResponseWriter, r *http.Request) {
	jsonResponse(w, http.StatusOK, map[string]interface{}{
		"status":    "ok",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

func (a *API) StatsHandler(w http.ResponseWriter, r *http.Request) {
	jsonResponse(w, http.StatusOK, map[string]interface{}{
		"active_rooms":   a.hub.GetRoomCount(),
		"active_clients": a.hub.GetClientCount(),
		"documents":      a.dir.Count(),
		"pending_writes": a.controller.PendingCount(),
		"timestamp":      time.Now().UTC().Format(time.RFC3339),
	})
}

// Auth handlers

var emailPattern = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)

type credentialsRequest struct {
	Email    string `json:"email"`
	Username string `json:"username"`
	Password string `json:"password"`
}

type authResponse struct {
	User  auth.Identity `json:"user"`
	Token string        `json:"token"`
}

func (a *API) RegisterHandler(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		errorResponse(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	if req.Email == "" || req.Username == "" || req.Password == "" {
		errorResponse(w, http.StatusBadRequest, "All fields are required")
		return
	}
	if !emailPattern.MatchString(req.Email) {
		errorResponse(w, http.StatusBadRequest, "Invalid email format")
		return
	}
	if len(req.Password) < 8 {
		errorResponse(w, http.StatusBadRequest, "Password must be at least 8 characters")
		return
	}
	if len(req.Username) < 3 || len(req.Username) > 20 {
		errorResponse(w, http.StatusBadRequest, "Username must be 3-20 characters")
		return
	}

	identity, err := a.users.Register(req.Email, req.Username, req.Password)
	if err != nil {
		if errors.Is(err, auth.ErrEmailTaken) {
			errorResponse(w, http.StatusConflict, "Email already registered")
			return
		}
		log.Printf("Failed to register user: %v", err)
		errorResponse(w, http.StatusInternalServerError, "Failed to create user")
		return
	}

	token, err := a.users.Issue(identity)
	if err != nil {
		errorResponse(w, http.StatusInternalServerError, "Failed to issue token")
		return
	}

	jsonResponse(w, http.StatusCreated, authResponse{User: identity, Token: token})
}

func (a *API) LoginHandler(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		errorResponse(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	if req.Email == "" || req.Password == "" {
		errorResponse(w, http.StatusBadRequest, "Email and password are required")
		return
	}

	identity, err := a.users.Authenticate(req.Email, req.Password)
	if err != nil {
		errorResponse(w, http.StatusUnauthorized, "Invalid credentials")
		return
	}

	token, err := a.users.Issue(identity)
	if err != nil {
		errorResponse(w, http.StatusInternalServerError, "Failed to issue token")
		return
	}

	jsonResponse(w, http.StatusOK, authResponse{User: identity, Token: token})
}

func (a *API) VerifyHandler(w http.ResponseWriter, r *http.Request) {
	identity, err := a.users.Verify(bearerToken(r))
	if err != nil {
		errorResponse(w, http.StatusUnauthorized, "Invalid or expired token")
		return
	}
	jsonResponse(w, http.StatusOK, map[string]interface{}{"user": identity})
}

// Document handlers

type createDocumentRequest struct {
	Title   string `json:"title"`
	Content string `json:"content"`
}

func (a *API) CreateDocumentHandler(w http.ResponseWriter, r *http.Request) {
	var req createDocumentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		errorResponse(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	if req.Title == "" {
		errorResponse(w, http.StatusBadRequest, "Title is required")
		return
	}

	id, err := a.dir.Create(req.Title, req.Content, identityFrom(r).ID)
	if err != nil {
		log.Printf("Failed to create document: %v", err)
		errorResponse(w, http.StatusInternalServerError, "Failed to create document")
		return
	}

	jsonResponse(w, http.StatusCreated, map[string]interface{}{
		"msg": "New resource created.",
		"doc": directory.Summary{ID: id, Title: req.Title},
	})
}

func (a *API) ListDocumentsHandler(w http.ResponseWriter, r *http.Request) {
	jsonResponse(w, http.StatusOK, map[string]interface{}{
		"files": a.dir.List(),
	})
}

func (a *API) GetDocumentHandler(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	doc, err := a.dir.Read(id)
	if err != nil {
		if errors.Is(err, directory.ErrNotFound) {
			errorResponse(w, http.StatusNotFound, "Document not found")
			return
		}
		log.Printf("Failed to read document %s: %v", id, err)
		errorResponse(w, http.StatusInternalServerError, "Failed to read document")
		return
	}

	jsonResponse(w, http.StatusOK, doc)
}

func (a *API) UpdateDocumentHandler(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	var req struct {
		Content string `json:"content"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		errorResponse(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	if err := a.dir.WriteDocument(id, req.Content); err != nil {
		if errors.Is(err, directory.ErrNotFound) {
			errorResponse(w, http.StatusNotFound, "Document not found")
			return
		}
		log.Printf("Failed to update document %s: %v", id, err)
		errorResponse(w, http.StatusInternalServerError, "Failed to update document")
		return
	}

	jsonResponse(w, http.StatusOK, map[string]string{"msg": "Document updated successfully."})
}

func (a *API) DeleteDocumentHandler(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	if err := a.dir.Remove(id, identityFrom(r).ID); err != nil {
		switch {
		case errors.Is(err, directory.ErrNotFound):
			errorResponse(w, http.StatusNotFound, "Document not found")
		case errors.Is(err, directory.ErrNotOwner):
			errorResponse(w, http.StatusForbidden, "Unauthorized: not the document owner")
		default:
			log.Printf("Failed to delete document %s: %v", id, err)
			errorResponse(w, http.StatusInternalServerError, "Failed to delete document")
		}
		return
	}

	jsonResponse(w, http.StatusOK, map[string]string{"msg": "Document deleted."})
}

// Auth middleware

type contextKey string

const identityKey contextKey = "identity"

func (a *API) requireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		identity, err := a.users.Verify(bearerToken(r))
		if err != nil {
			errorResponse(w, http.StatusUnauthorized, "Invalid or expired token")
			return
		}
		ctx := context.WithValue(r.Context(), identityKey, identity)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func identityFrom(r *http.Request) auth.Identity {
	identity, _ := r.Context().Value(identityKey).(auth.Identity)
	return identity
}

func bearerToken(r *http.Request) string {
	h := r.Header.Get("Authorization")
	return strings.TrimPrefix(h, "Bearer ")
}
