package registration_api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"ms-perfiles/internal/logger"
	registrations "ms-perfiles/internal/registrations/service"
	"ms-perfiles/internal/utils"
)

type Handler struct {
	Protocol  *registrations.Protocol
	Reporting *registrations.Reporting
	Admin     *registrations.Admin
	Logger    *logger.Logger
}

func NewHandler(protocol *registrations.Protocol, reporting *registrations.Reporting, admin *registrations.Admin, log *logger.Logger) *Handler {
	return &Handler{
		Protocol:  protocol,
		Reporting: reporting,
		Admin:     admin,
		Logger:    log,
	}
}

// RegisterRoutes registers the perfiles routes on a chi router
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/", h.Banner)
	r.Route("/api/perfiles", func(r chi.Router) {
		r.Get("/", h.ListBySerial)
		r.Post("/", h.Register)
		r.Get("/models", h.Models)
		r.Get("/stats/general", h.StatsGeneral)
		r.Get("/count/{serial}/{model}/{side}", h.CombinationCount)
		r.Get("/records/{serial}", h.CombinationHistory)
		r.Post("/employees/lookup", h.LookupEmployee)
		r.Get("/{id}", h.GetEvent)
		r.Put("/{id}", h.UpdateEvent)
		r.Delete("/{id}", h.DeleteEvent)
	})
}

func (h *Handler) Banner(w http.ResponseWriter, r *http.Request) {
	utils.WriteJSON(w, http.StatusOK, utils.SuccessResponse("Perfiles registration API", map[string]interface{}{
		"endpoints": []string{
			"GET /api/perfiles",
			"POST /api/perfiles",
			"GET /api/perfiles/models",
			"GET /api/perfiles/stats/general",
			"GET /api/perfiles/count/{serial}/{model}/{side}",
			"GET /api/perfiles/records/{serial}",
			"POST /api/perfiles/employees/lookup",
			"GET|PUT|DELETE /api/perfiles/{id}",
		},
	}))
}

func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	var req registrations.RegisterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, &registrations.ValidationError{Field: "body", Message: "invalid JSON: " + err.Error()})
		return
	}

	result, err := h.Protocol.Register(r.Context(), req)
	if err != nil {
		h.writeError(w, err)
		return
	}

	message := fmt.Sprintf("Registration recorded (%d/%d)", result.Count, result.Ceiling)
	utils.WriteJSON(w, http.StatusCreated, utils.SuccessResponse(message, result))
}

type lookupRequest struct {
	Employee string `json:"employee"`
}

func (h *Handler) LookupEmployee(w http.ResponseWriter, r *http.Request) {
	var req lookupRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, &registrations.ValidationError{Field: "body", Message: "invalid JSON: " + err.Error()})
		return
	}
	if strings.TrimSpace(req.Employee) == "" {
		h.writeError(w, &registrations.ValidationError{Field: "employee", Message: "is required"})
		return
	}

	result, err := h.Protocol.LookupEmployee(r.Context(), req.Employee)
	if err != nil {
		h.writeError(w, err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, utils.SuccessResponse("Employee lookup", result))
}

func (h *Handler) ListBySerial(w http.ResponseWriter, r *http.Request) {
	page := queryInt(r, "page")
	limit := queryInt(r, "limit")

	result, err := h.Reporting.ListBySerial(r.Context(), page, limit)
	if err != nil {
		h.writeError(w, err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, utils.SuccessResponse("Serials", result))
}

func (h *Handler) CombinationCount(w http.ResponseWriter, r *http.Request) {
	params, ok := h.pathParams(w, r, "serial", "model", "side")
	if !ok {
		return
	}
	count, err := h.Reporting.GetCombinationCount(r.Context(), params[0], params[1], params[2])
	if err != nil {
		h.writeError(w, err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, utils.SuccessResponse("Combination count", count))
}

func (h *Handler) CombinationHistory(w http.ResponseWriter, r *http.Request) {
	params, ok := h.pathParams(w, r, "serial")
	if !ok {
		return
	}
	history, err := h.Reporting.GetCombinationHistory(r.Context(), params[0])
	if err != nil {
		h.writeError(w, err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, utils.SuccessResponse("Serial history", history))
}

func (h *Handler) StatsGeneral(w http.ResponseWriter, r *http.Request) {
	stats, err := h.Reporting.GetStatsGeneral(r.Context())
	if err != nil {
		h.writeError(w, err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, utils.SuccessResponse("General statistics", stats))
}

func (h *Handler) Models(w http.ResponseWriter, r *http.Request) {
	utils.WriteJSON(w, http.StatusOK, utils.SuccessResponse("Models", map[string][]string{
		"models": h.Reporting.Models(),
	}))
}

func (h *Handler) GetEvent(w http.ResponseWriter, r *http.Request) {
	id, ok := h.eventID(w, r)
	if !ok {
		return
	}
	event, err := h.Admin.GetEvent(r.Context(), id)
	if err != nil {
		h.writeError(w, err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, utils.SuccessResponse("Registration event", event))
}

func (h *Handler) UpdateEvent(w http.ResponseWriter, r *http.Request) {
	id, ok := h.eventID(w, r)
	if !ok {
		return
	}
	var req registrations.UpdateEventRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, &registrations.ValidationError{Field: "body", Message: "invalid JSON: " + err.Error()})
		return
	}

	event, err := h.Admin.UpdateEvent(r.Context(), id, req)
	if err != nil {
		h.writeError(w, err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, utils.SuccessResponse("Registration event updated", event))
}

func (h *Handler) DeleteEvent(w http.ResponseWriter, r *http.Request) {
	id, ok := h.eventID(w, r)
	if !ok {
		return
	}
	if err := h.Admin.DeleteEvent(r.Context(), id); err != nil {
		h.writeError(w, err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, utils.SuccessResponse("Registration event deleted", nil))
}

func (h *Handler) eventID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		h.writeError(w, &registrations.ValidationError{Field: "id", Message: "must be a positive integer"})
		return 0, false
	}
	return id, true
}

// pathParams returns the named URL parameters decoded. chi matches on the raw
// path when one is set, so "SN%2F1" arrives escaped; otherwise the values are
// already decoded and a literal "%" must be left alone.
func (h *Handler) pathParams(w http.ResponseWriter, r *http.Request, names ...string) ([]string, bool) {
	values := make([]string, len(names))
	for i, name := range names {
		v := chi.URLParam(r, name)
		if r.URL.RawPath == "" {
			values[i] = v
			continue
		}
		v, err := url.PathUnescape(v)
		if err != nil {
			h.writeError(w, &registrations.ValidationError{Field: name, Message: "invalid escape sequence"})
			return nil, false
		}
		values[i] = v
	}
	return values, true
}

// queryInt returns 0 for missing or malformed values so the service applies
// its defaults.
func queryInt(r *http.Request, name string) int {
	n, err := strconv.Atoi(r.URL.Query().Get(name))
	if err != nil {
		return 0
	}
	return n
}
