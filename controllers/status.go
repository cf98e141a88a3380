// path: controllers/status.go
package controllers

import (
	"errors"
	"strings"

	"github.com/gofiber/fiber/v2"

	"civicpulse/models"
	"civicpulse/rewards"
	"civicpulse/saga"
)

// HandleUpdateStatus moves a report forward; resolving it credits the owner.
func (h *Handler) HandleUpdateStatus(c *fiber.Ctx) error {
	var req models.StatusUpdateRequest
	if err := c.BodyParser(&req); err != nil {
		return badReq(c, "invalid JSON")
	}
	req.Status = models.Status(strings.ToLower(strings.TrimSpace(string(req.Status))))

	out, err := h.saga.UpdateStatus(c.UserContext(), c.Params("id"), req.Status)
	var lerr *saga.LedgerError
	switch {
	case err == nil:
	case errors.As(err, &lerr):
		return c.JSON(fiber.Map{"ok": true, "report": out.Report, "credit_pending": true})
	default:
		return h.sagaErr(c, err)
	}

	resp := fiber.Map{"ok": true, "report": out.Report}
	if out.Account != nil {
		resp["account"] = out.Account
		if out.CreditApplied {
			resp["credits_awarded"] = rewards.ResolveCredit
		}
	}
	return c.JSON(resp)
}

// HandleGetRewards returns an owner's credits, medals and next milestone.
func (h *Handler) HandleGetRewards(c *fiber.Ctx) error {
	owner := strings.TrimSpace(c.Params("owner"))
	if owner == "" {
		return badReq(c, "missing owner")
	}
	acct, err := h.ledger.Account(c.UserContext(), owner)
	if err != nil {
		return h.serverErr(c, err)
	}
	return c.JSON(models.RewardResp{
		OK:            true,
		Account:       acct,
		NextMilestone: rewards.NextMilestone(acct.Credits),
	})
}
