// path: controllers/report.go
package controllers

import (
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"

	"civicpulse/evidence"
	"civicpulse/location"
	"civicpulse/models"
	"civicpulse/rewards"
	"civicpulse/saga"
)

// HandlePostReport runs a multipart submission through the saga.
//
// Fields: photo (file), issue_type, urgency, description, lat, lng,
// accuracy_m, fix_at (RFC3339), geo_error (device failure code 1..3).
func (h *Handler) HandlePostReport(c *fiber.Ctx) error {
	if !strings.HasPrefix(c.Get("Content-Type"), "multipart/form-data") {
		return fail(c, fiber.StatusUnsupportedMediaType, "unsupported_media_type",
			"reports are submitted as multipart/form-data with a photo")
	}

	owner := ownerID(c)
	if owner == "" {
		return fail(c, fiber.StatusUnauthorized, "missing_user", "missing X-User-ID header")
	}

	fix, err := parseFix(c)
	if err != nil {
		return badReq(c, err.Error())
	}

	var (
		photo []byte
		ext   string
	)
	if fh, ferr := c.FormFile("photo"); ferr == nil && fh != nil {
		if fh.Size > h.maxPhotoBytes {
			return fail(c, fiber.StatusRequestEntityTooLarge, "photo_too_large",
				fmt.Sprintf("photo exceeds %d bytes", h.maxPhotoBytes))
		}
		if photo, err = readFormFile(fh, h.maxPhotoBytes); err != nil {
			return badReq(c, "unreadable photo")
		}
		ext = evidence.CleanExt(filepath.Ext(fh.Filename))
	}

	urgency := models.Urgency(strings.ToLower(strings.TrimSpace(c.FormValue("urgency"))))
	if urgency == "" {
		urgency = models.UrgencyMedium
	}

	out, err := h.saga.Submit(c.UserContext(), saga.Submission{
		OwnerID:     owner,
		Photo:       photo,
		Ext:         ext,
		IssueType:   models.IssueType(strings.ToLower(strings.TrimSpace(c.FormValue("issue_type")))),
		Urgency:     urgency,
		Description: strings.TrimSpace(c.FormValue("description")),
		Position:    fix,
	})

	resp := models.CreateReportResp{OK: true, ID: out.Report.ID}
	if out.Verdict != nil {
		resp.Verified = out.Verdict.Accepted
		resp.Confidence = out.Verdict.Confidence
	}

	var lerr *saga.LedgerError
	switch {
	case err == nil:
		if out.CreditApplied {
			resp.CreditsAwarded = rewards.ReportCredit
		}
	case errors.As(err, &lerr):
		resp.CreditPending = true
	default:
		return h.sagaErr(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(resp)
}

// parseFix reads the position the device sent with the form.
func parseFix(c *fiber.Ctx) (location.ReportedFix, error) {
	var fix location.ReportedFix

	if v := strings.TrimSpace(c.FormValue("geo_error")); v != "" {
		code, err := strconv.Atoi(v)
		if err != nil || location.FromCode(code) == nil {
			return fix, errors.New("invalid geo_error")
		}
		fix.ErrorCode = code
		return fix, nil
	}

	parse := func(name string) (*float64, error) {
		v := strings.TrimSpace(c.FormValue(name))
		if v == "" {
			return nil, nil
		}
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid %s", name)
		}
		return &f, nil
	}
	var err error
	if fix.Latitude, err = parse("lat"); err != nil {
		return fix, err
	}
	if fix.Longitude, err = parse("lng"); err != nil {
		return fix, err
	}
	if acc, err := parse("accuracy_m"); err != nil {
		return fix, err
	} else if acc != nil {
		fix.AccuracyM = *acc
	}
	if v := strings.TrimSpace(c.FormValue("fix_at")); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return fix, errors.New("invalid fix_at (RFC3339)")
		}
		fix.FixAt = t
	}
	return fix, nil
}

func readFormFile(fh *multipart.FileHeader, max int64) ([]byte, error) {
	src, err := fh.Open()
	if err != nil {
		return nil, err
	}
	defer src.Close()
	return io.ReadAll(io.LimitReader(src, max))
}
