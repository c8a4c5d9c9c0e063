package api

import (
	"errors"
	"math"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
	"go.uber.org/zap"

	"github.com/nhle/deadline-tracker/internal/deadline"
	"github.com/nhle/deadline-tracker/internal/model"
	"github.com/nhle/deadline-tracker/internal/source/email"
	"github.com/nhle/deadline-tracker/internal/sync"
)

const (
	defaultUpcomingHours = 24
	defaultSyncDays      = 7
)

type errorResponse struct {
	Error string `json:"error"`
}

type successResponse struct {
	Success bool `json:"success"`
}

type extractResponse struct {
	Added     int              `json:"added"`
	Deadlines []model.Deadline `json:"deadlines"`
}

type syncRequest struct {
	Email      string `json:"email"`
	Password   string `json:"password"`
	IMAPServer string `json:"imap_server"`
	Days       int    `json:"days"`
}

type handler struct {
	deadlines     Deadlines
	syncer        *sync.Syncer
	newFetcher    FetcherFactory
	notifications NotificationLog
	logger        *zap.Logger
}

func (h *handler) listDeadlines(w http.ResponseWriter, r *http.Request) {
	all, err := h.deadlines.GetAll(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	render.JSON(w, r, nonNil(all))
}

func (h *handler) createDeadline(w http.ResponseWriter, r *http.Request) {
	var d model.Deadline
	if err := render.DecodeJSON(r.Body, &d); err != nil {
		h.badRequest(w, r, "invalid JSON body")
		return
	}

	stored, err := h.deadlines.Add(r.Context(), d)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	render.Status(r, http.StatusCreated)
	render.JSON(w, r, stored)
}

func (h *handler) upcomingDeadlines(w http.ResponseWriter, r *http.Request) {
	hours := float64(defaultUpcomingHours)
	if raw := r.URL.Query().Get("hours"); raw != "" {
		if v, err := strconv.ParseFloat(raw, 64); err == nil && !math.IsNaN(v) {
			hours = v
		}
	}

	upcoming, err := h.deadlines.GetUpcoming(r.Context(), hours)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	render.JSON(w, r, nonNil(upcoming))
}

func (h *handler) getDeadline(w http.ResponseWriter, r *http.Request) {
	d, err := h.deadlines.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	render.JSON(w, r, d)
}

func (h *handler) updateDeadline(w http.ResponseWriter, r *http.Request) {
	var d model.Deadline
	if err := render.DecodeJSON(r.Body, &d); err != nil {
		h.badRequest(w, r, "invalid JSON body")
		return
	}

	if _, err := h.deadlines.Update(r.Context(), chi.URLParam(r, "id"), d); err != nil {
		h.fail(w, r, err)
		return
	}
	render.JSON(w, r, successResponse{Success: true})
}

func (h *handler) deleteDeadline(w http.ResponseWriter, r *http.Request) {
	if err := h.deadlines.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		h.fail(w, r, err)
		return
	}
	render.JSON(w, r, successResponse{Success: true})
}

func (h *handler) extractEmail(w http.ResponseWriter, r *http.Request) {
	var rec model.EmailRecord
	if err := render.DecodeJSON(r.Body, &rec); err != nil {
		h.badRequest(w, r, "invalid JSON body")
		return
	}

	added, extracted, err := h.syncer.ExtractEmail(r.Context(), rec)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	render.JSON(w, r, extractResponse{Added: len(added), Deadlines: nonNil(extracted)})
}

func (h *handler) syncEmails(w http.ResponseWriter, r *http.Request) {
	var req syncRequest
	if err := render.DecodeJSON(r.Body, &req); err != nil {
		h.badRequest(w, r, "invalid JSON body")
		return
	}
	if req.Email == "" || req.Password == "" {
		h.badRequest(w, r, "email and password required")
		return
	}
	if req.Days <= 0 {
		req.Days = defaultSyncDays
	}

	fetcher := h.newFetcher(req.Email, req.Password, req.IMAPServer)
	res, err := h.syncer.SyncEmails(r.Context(), fetcher, req.Days)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	render.JSON(w, r, res)
}

func (h *handler) listNotifications(w http.ResponseWriter, r *http.Request) {
	render.JSON(w, r, nonNil(h.notifications.All(r.Context())))
}

func (h *handler) badRequest(w http.ResponseWriter, r *http.Request, msg string) {
	render.Status(r, http.StatusBadRequest)
	render.JSON(w, r, errorResponse{Error: msg})
}

// fail maps a domain error onto a status code and writes it.
func (h *handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	status := http.StatusInternalServerError
	msg := "internal error"

	switch {
	case errors.Is(err, deadline.ErrInvalid):
		status, msg = http.StatusBadRequest, err.Error()
	case errors.Is(err, deadline.ErrDuplicate):
		status, msg = http.StatusConflict, err.Error()
	case errors.Is(err, deadline.ErrNotFound):
		status, msg = http.StatusNotFound, "deadline not found"
	case errors.Is(err, email.ErrAuth):
		status, msg = http.StatusBadGateway, "mail server rejected the credentials"
	default:
		h.logger.Error("request failed",
			zap.String("path", r.URL.Path),
			zap.Error(err),
		)
	}

	render.Status(r, status)
	render.JSON(w, r, errorResponse{Error: msg})
}

// nonNil keeps empty collections encoding as [] rather than null.
func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
