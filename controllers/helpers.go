// path: controllers/helpers.go
package controllers

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/gofiber/fiber/v2"

	"civicpulse/location"
	"civicpulse/logging"
	"civicpulse/reports"
	"civicpulse/rewards"
	"civicpulse/saga"
)

// Reverser is the advisory address lookup behind /api/locate.
type Reverser interface {
	Reverse(ctx context.Context, lat, lng float64) string
}

// Handler holds what the HTTP endpoints need.
type Handler struct {
	saga          *saga.Saga
	reports       reports.Repository
	ledger        rewards.Ledger
	reverser      Reverser
	maxPhotoBytes int64
	log           *slog.Logger
}

const defaultMaxPhotoBytes = 10 << 20

func New(s *saga.Saga, repo reports.Repository, ledger rewards.Ledger, rev Reverser) *Handler {
	return &Handler{
		saga:          s,
		reports:       repo,
		ledger:        ledger,
		reverser:      rev,
		maxPhotoBytes: defaultMaxPhotoBytes,
		log:           logging.New("http"),
	}
}

// single source for human-friendly area labels
func areaLabel(lat, lon float64, acc *int) string {
	accStr := ""
	if acc != nil && *acc > 0 {
		accStr = fmt.Sprintf(" · GPS ±%dm", *acc)
	}
	return fmt.Sprintf("Near %.3f, %.3f%s", round3(lat), round3(lon), accStr)
}

func round3(f float64) float64 { return float64(int(f*1000)) / 1000.0 }

type ErrorResp struct {
	OK    bool   `json:"ok"`
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

func fail(c *fiber.Ctx, status int, code, msg string) error {
	return c.Status(status).JSON(ErrorResp{OK: false, Error: msg, Code: code})
}

func badReq(c *fiber.Ctx, msg string) error {
	return fail(c, fiber.StatusBadRequest, "bad_request", msg)
}

// serverErr logs the cause and answers with a generic message.
func (h *Handler) serverErr(c *fiber.Ctx, err error) error {
	h.log.Error("request failed", "method", c.Method(), "path", c.Path(), "error", err)
	return fail(c, fiber.StatusInternalServerError, "internal", "something went wrong, please try again")
}

// ownerID stands in for authentication: the caller names itself.
func ownerID(c *fiber.Ctx) string {
	return strings.TrimSpace(c.Get("X-User-ID"))
}

// sagaErr maps a failed submission or status change to a response.
func (h *Handler) sagaErr(c *fiber.Ctx, err error) error {
	var (
		pre      *saga.PreconditionError
		rejected *saga.RejectedError
		oerr     *saga.OracleError
		serr     *saga.StorageError
		perr     *saga.PersistenceError
		lerr     *location.Error
	)
	switch {
	case errors.As(err, &pre):
		if errors.As(err, &lerr) {
			return fail(c, fiber.StatusBadRequest, "location_"+lerr.Kind.String(), lerr.Guidance())
		}
		return fail(c, fiber.StatusBadRequest, "precondition", pre.Error())
	case errors.As(err, &rejected):
		return fail(c, fiber.StatusUnprocessableEntity, "not_detected", rejected.Error())
	case errors.As(err, &oerr):
		h.log.Warn("verification unavailable", "error", err)
		return fail(c, fiber.StatusBadGateway, "verification_unavailable",
			"we could not verify the photo right now, please try again")
	case errors.As(err, &serr):
		h.log.Warn("evidence upload failed", "error", err)
		return fail(c, fiber.StatusBadGateway, "upload_failed", "the photo could not be uploaded, please try again")
	case errors.As(err, &perr):
		return h.serverErr(c, err)
	case errors.Is(err, reports.ErrNotFound):
		return fail(c, fiber.StatusNotFound, "not_found", "report not found")
	case errors.Is(err, reports.ErrStatusConflict):
		return fail(c, fiber.StatusConflict, "status_conflict", "a report can only move forward")
	case errors.Is(err, context.Canceled):
		return fail(c, fiber.StatusRequestTimeout, "cancelled", "request cancelled")
	}
	return h.serverErr(c, err)
}
