// Package httpapi exposes the REST API over the application services.
package httpapi

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	app "github.com/muse-link/muselink-backend/internal/app"
	"github.com/muse-link/muselink-backend/internal/app/auth"
	"github.com/muse-link/muselink-backend/internal/app/domain/artist"
	"github.com/muse-link/muselink-backend/internal/app/domain/client"
	"github.com/muse-link/muselink-backend/internal/app/domain/request"
	"github.com/muse-link/muselink-backend/internal/app/metrics"
	"github.com/muse-link/muselink-backend/internal/app/services/allocator"
	"github.com/muse-link/muselink-backend/internal/app/services/artists"
	"github.com/muse-link/muselink-backend/internal/app/services/clients"
	"github.com/muse-link/muselink-backend/internal/app/services/ledger"
	"github.com/muse-link/muselink-backend/internal/app/services/payments"
	"github.com/muse-link/muselink-backend/internal/app/services/requests"
	"github.com/muse-link/muselink-backend/internal/app/storage"
	"github.com/muse-link/muselink-backend/pkg/logger"
)

// handler bundles HTTP endpoints for the application services.
type handler struct {
	app    *app.Application
	tokens *auth.Manager
	log    *logger.Logger
}

// Config tunes the HTTP surface.
type Config struct {
	Tokens         *auth.Manager
	RateLimitRPS   int
	RateLimitBurst int
}

// NewHandler returns a router exposing the REST API. When cfg.Tokens is nil
// the API runs unauthenticated, which is only suitable for tests.
func NewHandler(application *app.Application, cfg Config, log *logger.Logger) http.Handler {
	if log == nil {
		log = logger.NewDefault("httpapi")
	}
	h := &handler{app: application, tokens: cfg.Tokens, log: log}

	r := mux.NewRouter()
	r.HandleFunc("/healthz", h.health).Methods(http.MethodGet)
	r.Handle("/metrics", metrics.Handler()).Methods(http.MethodGet)

	r.HandleFunc("/auth/login", h.login).Methods(http.MethodPost)

	r.HandleFunc("/artists", h.registerArtist).Methods(http.MethodPost)
	r.HandleFunc("/artists", h.listArtists).Methods(http.MethodGet)
	r.HandleFunc("/artists/{id}", h.getArtist).Methods(http.MethodGet)
	r.HandleFunc("/clients", h.registerClient).Methods(http.MethodPost)

	r.HandleFunc("/requests", h.listRequests).Methods(http.MethodGet)
	r.HandleFunc("/requests/{id}", h.getRequest).Methods(http.MethodGet)

	// Authenticated routes.
	sec := r.NewRoute().Subrouter()
	sec.Use(h.requireToken)
	sec.HandleFunc("/requests", h.createRequest).Methods(http.MethodPost)
	sec.HandleFunc("/requests/{id}/unlock", h.unlockRequest).Methods(http.MethodPost)
	sec.HandleFunc("/artists/{id}/credits", h.artistCredits).Methods(http.MethodGet)
	sec.HandleFunc("/artists/{id}/credits/topup", h.topUpCredits).Methods(http.MethodPost)
	sec.HandleFunc("/artists/{id}/unlocks", h.artistUnlocks).Methods(http.MethodGet)

	var chain http.Handler = r
	chain = metrics.InstrumentHandler(chain)
	chain = rateLimit(cfg.RateLimitRPS, cfg.RateLimitBurst, chain)
	chain = cors(chain)
	return chain
}

func (h *handler) health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *handler) login(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Email    string `json:"email"`
		Password string `json:"password"`
		Role     string `json:"role"`
	}
	if err := decodeJSON(r.Body, &payload); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if payload.Role == "" {
		payload.Role = artist.RoleArtist
	}

	var subject string
	switch payload.Role {
	case artist.RoleArtist:
		a, err := h.app.Artists.VerifyCredentials(r.Context(), payload.Email, payload.Password)
		if err != nil {
			h.writeServiceError(w, err)
			return
		}
		subject = a.ID
	case client.RoleClient:
		c, err := h.app.Clients.VerifyCredentials(r.Context(), payload.Email, payload.Password)
		if err != nil {
			h.writeServiceError(w, err)
			return
		}
		subject = c.ID
	default:
		writeError(w, http.StatusBadRequest, errors.New("unknown role"))
		return
	}

	if h.tokens == nil {
		writeError(w, http.StatusServiceUnavailable, errors.New("token issuance not configured"))
		return
	}
	token, err := h.tokens.Issue(subject, payload.Role)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"token": token, "role": payload.Role, "id": subject})
}

func (h *handler) registerArtist(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Name     string `json:"name"`
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := decodeJSON(r.Body, &payload); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	created, err := h.app.Artists.Register(r.Context(), artists.RegisterInput{
		Name:     payload.Name,
		Email:    payload.Email,
		Password: payload.Password,
	})
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, artistView(created))
}

func (h *handler) listArtists(w http.ResponseWriter, r *http.Request) {
	list, err := h.app.Artists.List(r.Context())
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	views := make([]map[string]interface{}, 0, len(list))
	for _, a := range list {
		views = append(views, artistView(a))
	}
	writeJSON(w, http.StatusOK, views)
}

func (h *handler) getArtist(w http.ResponseWriter, r *http.Request) {
	a, err := h.app.Artists.Get(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, artistView(a))
}

func (h *handler) registerClient(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Name     string `json:"name"`
		Email    string `json:"email"`
		Phone    string `json:"phone"`
		Password string `json:"password"`
	}
	if err := decodeJSON(r.Body, &payload); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	created, err := h.app.Clients.Register(r.Context(), clients.RegisterInput{
		Name:     payload.Name,
		Email:    payload.Email,
		Phone:    payload.Phone,
		Password: payload.Password,
	})
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]interface{}{
		"id":    created.ID,
		"name":  created.Name,
		"email": created.Email,
	})
}

func (h *handler) createRequest(w http.ResponseWriter, r *http.Request) {
	claims := claimsFrom(r.Context())
	if claims == nil || claims.Role != client.RoleClient {
		writeError(w, http.StatusForbidden, errors.New("client token required"))
		return
	}

	var payload struct {
		Title       string `json:"title"`
		Description string `json:"description"`
		EventDate   string `json:"event_date"`
		Quota       int    `json:"quota"`
	}
	if err := decodeJSON(r.Body, &payload); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	var eventDate time.Time
	if payload.EventDate != "" {
		parsed, err := time.Parse(time.RFC3339, payload.EventDate)
		if err != nil {
			writeError(w, http.StatusBadRequest, errors.New("event_date must be RFC 3339"))
			return
		}
		eventDate = parsed
	}

	created, err := h.app.Requests.Create(r.Context(), requests.CreateInput{
		ClientID:    claims.Subject,
		Title:       payload.Title,
		Description: payload.Description,
		EventDate:   eventDate,
		Quota:       payload.Quota,
	})
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, requestView(created))
}

func (h *handler) listRequests(w http.ResponseWriter, r *http.Request) {
	list, err := h.app.Requests.List(r.Context(), r.URL.Query().Get("state"))
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	views := make([]map[string]interface{}, 0, len(list))
	for _, req := range list {
		views = append(views, requestView(req))
	}
	writeJSON(w, http.StatusOK, views)
}

func (h *handler) getRequest(w http.ResponseWriter, r *http.Request) {
	req, err := h.app.Requests.Get(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, requestView(req))
}

func (h *handler) unlockRequest(w http.ResponseWriter, r *http.Request) {
	claims := claimsFrom(r.Context())
	if claims == nil || claims.Role != artist.RoleArtist {
		writeError(w, http.StatusForbidden, errors.New("artist token required"))
		return
	}

	receipt, err := h.app.Allocator.Unlock(r.Context(), claims.Subject, mux.Vars(r)["id"])
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, receipt)
}

func (h *handler) artistCredits(w http.ResponseWriter, r *http.Request) {
	artistID := mux.Vars(r)["id"]
	if !authorizedForArtist(r, artistID) {
		writeError(w, http.StatusForbidden, errors.New("token does not match artist"))
		return
	}

	balance, err := h.app.Ledger.Balance(r.Context(), artistID)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"artist_id": artistID, "credits": balance})
}

func (h *handler) topUpCredits(w http.ResponseWriter, r *http.Request) {
	artistID := mux.Vars(r)["id"]
	if !authorizedForArtist(r, artistID) {
		writeError(w, http.StatusForbidden, errors.New("token does not match artist"))
		return
	}

	var payload struct {
		Reference string `json:"reference"`
		Credits   int64  `json:"credits"`
	}
	if err := decodeJSON(r.Body, &payload); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	balance, err := h.app.Payments.TopUp(r.Context(), payments.TopUpInput{
		ArtistID:  artistID,
		Reference: payload.Reference,
		Credits:   payload.Credits,
	})
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"artist_id": artistID, "credits": balance})
}

func (h *handler) artistUnlocks(w http.ResponseWriter, r *http.Request) {
	artistID := mux.Vars(r)["id"]
	if !authorizedForArtist(r, artistID) {
		writeError(w, http.StatusForbidden, errors.New("token does not match artist"))
		return
	}

	list, err := h.app.Allocator.ListByArtist(r.Context(), artistID)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

// writeServiceError maps domain errors onto HTTP statuses. Insufficient
// credits gets 402 so clients can distinguish "top up" from "give up";
// transient store failures get 503 with a retry hint.
func (h *handler) writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, allocator.ErrRequestNotFound),
		errors.Is(err, ledger.ErrArtistNotFound),
		errors.Is(err, payments.ErrArtistNotFound),
		errors.Is(err, artists.ErrNotFound),
		errors.Is(err, clients.ErrNotFound),
		errors.Is(err, requests.ErrNotFound),
		errors.Is(err, requests.ErrClientNotFound):
		writeError(w, http.StatusNotFound, err)

	case errors.Is(err, ledger.ErrInsufficientCredits):
		writeError(w, http.StatusPaymentRequired, err)

	case errors.Is(err, allocator.ErrRequestClosed),
		errors.Is(err, allocator.ErrAlreadyUnlocked),
		errors.Is(err, allocator.ErrQuotaExhausted),
		errors.Is(err, payments.ErrDuplicateReference),
		errors.Is(err, artists.ErrEmailTaken),
		errors.Is(err, clients.ErrEmailTaken):
		writeError(w, http.StatusConflict, err)

	case errors.Is(err, artists.ErrInvalidCredentials),
		errors.Is(err, clients.ErrInvalidCredentials):
		writeError(w, http.StatusUnauthorized, err)

	case errors.Is(err, artists.ErrInvalidInput),
		errors.Is(err, clients.ErrInvalidInput),
		errors.Is(err, requests.ErrInvalidInput),
		errors.Is(err, payments.ErrInvalidInput):
		writeError(w, http.StatusBadRequest, err)

	case errors.Is(err, storage.ErrUnavailable):
		w.Header().Set("Retry-After", "1")
		writeError(w, http.StatusServiceUnavailable, err)

	default:
		h.log.WithError(err).Warn("unhandled service error")
		writeError(w, http.StatusInternalServerError, err)
	}
}

func artistView(a artist.Artist) map[string]interface{} {
	return map[string]interface{}{
		"id":      a.ID,
		"name":    a.Name,
		"email":   a.Email,
		"credits": a.Credits,
	}
}

func requestView(r request.Request) map[string]interface{} {
	view := map[string]interface{}{
		"id":          r.ID,
		"client_id":   r.ClientID,
		"title":       r.Title,
		"description": r.Description,
		"quota":       r.Quota,
		"state":       r.State,
		"created_at":  r.CreatedAt,
	}
	if !r.EventDate.IsZero() {
		view["event_date"] = r.EventDate
	}
	return view
}

func decodeJSON(body io.ReadCloser, dst interface{}) error {
	defer body.Close()
	dec := json.NewDecoder(body)
	dec.DisallowUnknownFields()
	return dec.Decode(dst)
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, err error) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": err.Error()})
}
