package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/golang-jwt/jwt/v5"

	"jobjunction/m/internal/service"
	"jobjunction/m/internal/upload"
)

type ctxKey string

const ctxUserID ctxKey = "userID"

// multipart forms are parsed with this much memory before spilling to disk
const multipartMemory = 8 << 20

// Handler bundles dependencies for HTTP handlers.
type Handler struct {
	svc       *service.Service
	uploads   *upload.Store
	secret    string
	publicDir string
}

// New constructs a Handler.
func New(svc *service.Service, uploads *upload.Store, secret, publicDir string) *Handler {
	return &Handler{svc: svc, uploads: uploads, secret: secret, publicDir: publicDir}
}

// Router wires up the HTTP API.
func (h *Handler) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	r.Get("/health", h.health)

	r.Get("/jobs", h.listJobs)
	r.Post("/register", h.register)
	r.Post("/login", h.login)
	r.Post("/add-job", h.addJob)
	r.Post("/apply", h.apply)
	r.Get("/profile/{id}", h.profile)
	r.Post("/update-profile", h.updateProfile)

	r.Group(func(protected chi.Router) {
		protected.Use(h.authMiddleware)
		protected.Delete("/withdraw/{appID}", h.withdraw)
	})

	r.Handle("/uploads/*", http.StripPrefix("/uploads/", http.FileServer(http.Dir(h.uploads.Dir()))))
	r.Handle("/*", http.FileServer(http.Dir(h.publicDir)))

	return r
}

func (h *Handler) health(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// Authentication helpers

type authClaims struct {
	UserID int64 `json:"user_id"`
	jwt.RegisteredClaims
}

func (h *Handler) generateToken(userID int64) (string, error) {
	claims := authClaims{
		UserID: userID,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(24 * time.Hour)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(h.secret))
}

func (h *Handler) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		if header == "" || !strings.HasPrefix(strings.ToLower(header), "bearer ") {
			respondError(w, http.StatusUnauthorized, "missing bearer token")
			return
		}
		tokenString := strings.TrimSpace(header[len("Bearer "):])
		token, err := jwt.ParseWithClaims(tokenString, &authClaims{}, func(token *jwt.Token) (interface{}, error) {
			if token.Method != jwt.SigningMethodHS256 {
				return nil, errors.New("unexpected signing method")
			}
			return []byte(h.secret), nil
		})
		if err != nil || !token.Valid {
			respondError(w, http.StatusUnauthorized, "invalid token")
			return
		}
		claims, ok := token.Claims.(*authClaims)
		if !ok {
			respondError(w, http.StatusUnauthorized, "invalid token claims")
			return
		}
		ctx := context.WithValue(r.Context(), ctxUserID, claims.UserID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// Job handlers

func (h *Handler) listJobs(w http.ResponseWriter, r *http.Request) {
	jobs, err := h.svc.ListJobs(r.Context())
	if err != nil {
		h.respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, jobs)
}

type addJobRequest struct {
	Title       string `json:"title"`
	Company     string `json:"company"`
	Website     string `json:"website"`
	Location    string `json:"location"`
	Description string `json:"description"`
}

func (h *Handler) addJob(w http.ResponseWriter, r *http.Request) {
	var req addJobRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	job, err := h.svc.AddJob(r.Context(), service.AddJobInput{
		Title:       req.Title,
		Company:     req.Company,
		Website:     nullIfEmpty(req.Website),
		Location:    req.Location,
		Description: req.Description,
	})
	if err != nil {
		h.respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, map[string]any{"message": "Job added successfully!", "job": job})
}

// Auth handlers

func (h *Handler) register(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		respondError(w, http.StatusBadRequest, "expected multipart form data")
		return
	}

	imageRef, err := h.saveProfileImage(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	user, err := h.svc.Register(r.Context(), service.RegisterInput{
		Name:     r.FormValue("name"),
		Email:    r.FormValue("email"),
		Password: r.FormValue("password"),
		ImageRef: imageRef,
	})
	if err != nil {
		h.respondServiceError(w, err)
		return
	}

	token, err := h.generateToken(user.ID)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "unable to generate token")
		return
	}
	respondJSON(w, http.StatusCreated, map[string]any{
		"message": "User registered successfully!",
		"user":    user,
		"token":   token,
	})
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (h *Handler) login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	user, err := h.svc.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		h.respondServiceError(w, err)
		return
	}

	token, err := h.generateToken(user.ID)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "unable to generate token")
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"message": "Login successful",
		"user":    user,
		"token":   token,
	})
}

// Application handlers

type applyRequest struct {
	UserID int64  `json:"user_id"`
	JobID  int64  `json:"job_id"`
	Phone  string `json:"phone"`
	Email  string `json:"email"`
}

func (h *Handler) apply(w http.ResponseWriter, r *http.Request) {
	var req applyRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.UserID <= 0 || req.JobID <= 0 {
		respondError(w, http.StatusBadRequest, "user_id and job_id are required")
		return
	}

	app, err := h.svc.Apply(r.Context(), service.ApplyInput{
		UserID: req.UserID,
		JobID:  req.JobID,
		Phone:  nullIfEmpty(req.Phone),
		Email:  nullIfEmpty(req.Email),
	})
	if err != nil {
		h.respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, map[string]any{
		"message":     "Application submitted successfully!",
		"application": app,
	})
}

func (h *Handler) withdraw(w http.ResponseWriter, r *http.Request) {
	appID, err := strconv.ParseInt(chi.URLParam(r, "appID"), 10, 64)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid application id")
		return
	}
	requesterID := r.Context().Value(ctxUserID).(int64)

	if err := h.svc.Withdraw(r.Context(), appID, requesterID); err != nil {
		h.respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"message": "Application withdrawn successfully"})
}

// Profile handlers

func (h *Handler) profile(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid user id")
		return
	}

	user, apps, err := h.svc.Profile(r.Context(), id)
	if err != nil {
		h.respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"profile": user, "applications": apps})
}

func (h *Handler) updateProfile(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		respondError(w, http.StatusBadRequest, "expected multipart form data")
		return
	}
	id, err := strconv.ParseInt(r.FormValue("id"), 10, 64)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid user id")
		return
	}

	imageRef, err := h.saveProfileImage(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	user, err := h.svc.UpdateProfile(r.Context(), service.UpdateProfileInput{
		ID:       id,
		Name:     r.FormValue("name"),
		Password: r.FormValue("password"),
		ImageRef: imageRef,
	})
	if err != nil {
		h.respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"updatedUser": user})
}

// saveProfileImage stores the optional profile_image part and returns its
// reference, or nil when the part is absent.
func (h *Handler) saveProfileImage(r *http.Request) (*string, error) {
	_, fh, err := r.FormFile("profile_image")
	if errors.Is(err, http.ErrMissingFile) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.New("unable to read profile_image")
	}
	ref, err := h.uploads.Save(fh)
	if err != nil {
		return nil, err
	}
	return &ref, nil
}

// respondServiceError translates domain error kinds into status codes.
func (h *Handler) respondServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, service.ErrValidation):
		respondError(w, http.StatusBadRequest, "Please fill all required fields.")
	case errors.Is(err, service.ErrEmailTaken):
		respondError(w, http.StatusBadRequest, "Email already registered")
	case errors.Is(err, service.ErrInvalidCredentials):
		respondError(w, http.StatusUnauthorized, "Invalid credentials")
	case errors.Is(err, service.ErrAlreadyApplied):
		respondError(w, http.StatusBadRequest, "You already applied for this job.")
	case errors.Is(err, service.ErrNotFound):
		respondError(w, http.StatusNotFound, "Not found")
	case errors.Is(err, service.ErrNotOwner):
		respondError(w, http.StatusForbidden, "You can only withdraw your own applications")
	default:
		respondError(w, http.StatusInternalServerError, err.Error())
	}
}

// Helpers

func nullIfEmpty(val string) *string {
	trimmed := strings.TrimSpace(val)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}

func decodeJSON(r *http.Request, dest interface{}) error {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	return decoder.Decode(dest)
}

func respondJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	encoder := json.NewEncoder(w)
	encoder.SetEscapeHTML(false)
	_ = encoder.Encode(payload)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}
