// path: controllers/locate.go
package controllers

import (
	"math"

	"github.com/gofiber/fiber/v2"

	"civicpulse/models"
)

// HandleLocate turns coordinates into a display label. The address is
// best-effort; without one the label falls back to rounded coordinates.
func (h *Handler) HandleLocate(c *fiber.Ctx) error {
	var req struct {
		models.LocateRequest
		AccuracyM *float64 `json:"accuracy_m,omitempty"`
	}
	if err := c.BodyParser(&req); err != nil {
		return badReq(c, "invalid JSON")
	}
	loc := models.Location{Latitude: req.Lat, Longitude: req.Lon}
	if !loc.Valid() {
		return badReq(c, "coordinates out of range")
	}

	var acc *int
	if req.AccuracyM != nil {
		v := int(math.Round(*req.AccuracyM))
		acc = &v
	}

	resp := models.LocateResponse{Label: areaLabel(req.Lat, req.Lon, acc)}
	if h.reverser != nil {
		if addr := h.reverser.Reverse(c.UserContext(), req.Lat, req.Lon); addr != "" {
			resp.Label = addr
			resp.Address = addr
		}
	}
	return c.JSON(resp)
}
