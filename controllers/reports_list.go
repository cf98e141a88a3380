// path: controllers/reports_list.go
package controllers

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"

	"civicpulse/models"
	"civicpulse/reports"
)

// HandleListReports lists reports newest first.
// Query: owner, issue_type, status, cursor, limit (1..100).
func (h *Handler) HandleListReports(c *fiber.Ctx) error {
	q := reports.Query{
		OwnerID: strings.TrimSpace(c.Query("owner")),
		Cursor:  strings.TrimSpace(c.Query("cursor")),
		Limit:   reports.DefaultLimit,
	}
	if v := c.Query("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			q.Limit = min(max(n, 1), reports.MaxLimit)
		}
	}
	if v := c.Query("issue_type"); v != "" {
		q.IssueType = models.IssueType(strings.ToLower(v))
		if !q.IssueType.Valid() {
			return badReq(c, "invalid issue_type")
		}
	}
	if v := c.Query("status"); v != "" {
		q.Status = models.Status(strings.ToLower(v))
		if !q.Status.Valid() {
			return badReq(c, "invalid status")
		}
	}

	ctx, cancel := context.WithTimeout(c.UserContext(), 8*time.Second)
	defer cancel()

	items, next, err := h.reports.List(ctx, q)
	if errors.Is(err, reports.ErrInvalidCursor) {
		return badReq(c, "invalid cursor")
	}
	if err != nil {
		return h.serverErr(c, err)
	}

	return c.Status(fiber.StatusOK).JSON(models.ReportListResp{
		OK:         true,
		Items:      items,
		NextCursor: next,
	})
}

func (h *Handler) HandleGetReport(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(c.UserContext(), 8*time.Second)
	defer cancel()

	r, err := h.reports.Get(ctx, c.Params("id"))
	if errors.Is(err, reports.ErrNotFound) {
		return fail(c, fiber.StatusNotFound, "not_found", "report not found")
	}
	if err != nil {
		return h.serverErr(c, err)
	}
	return c.JSON(fiber.Map{"ok": true, "report": r})
}
