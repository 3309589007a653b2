package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/mskaar/renovasjon/internal/api"
	"github.com/mskaar/renovasjon/internal/models"
)

// How far ahead the calendar feed reaches by default.
const calendarLookaheadDays = 365

const refreshTimeout = 60 * time.Second

// fractionReading is the host-facing projection for one waste fraction:
// a date-valued reading plus the day-of-collection boolean.
type fractionReading struct {
	Fraction        string        `json:"fraction"`
	Description     string        `json:"description,omitempty"`
	NextDate        *models.Date  `json:"next_date"`
	DaysUntil       *int          `json:"days_until"`
	CollectionToday bool          `json:"collection_today"`
	UpcomingDates   []models.Date `json:"upcoming_dates"`
}

func buildReading(snap *models.ScheduleSnapshot, fraction string, today models.Date) fractionReading {
	reading := fractionReading{
		Fraction:        fraction,
		Description:     snap.Fractions[fraction].Description,
		CollectionToday: snap.CollectionToday(fraction, today),
		UpcomingDates:   snap.UpcomingDates(fraction, today, 5),
	}
	if next, ok := snap.NextDate(fraction, today); ok {
		reading.NextDate = &next
		days := today.DaysUntil(next)
		reading.DaysUntil = &days
	}
	return reading
}

func (s *Server) snapshotOr503(c *gin.Context) *models.ScheduleSnapshot {
	snap := s.provider.Snapshot()
	if snap == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "no schedule fetched yet"})
	}
	return snap
}

// handleListFractions returns one reading per fraction.
// GET /api/v1/fractions
func (s *Server) handleListFractions(c *gin.Context) {
	snap := s.snapshotOr503(c)
	if snap == nil {
		return
	}

	today := s.today()
	names := snap.FractionNames()
	readings := make([]fractionReading, 0, len(names))
	for _, name := range names {
		readings = append(readings, buildReading(snap, name, today))
	}

	c.JSON(http.StatusOK, gin.H{
		"data": readings,
		"meta": gin.H{
			"count":         len(readings),
			"address":       snap.AddressName,
			"municipality":  snap.Municipality,
			"fetched_at":    snap.FetchedAt,
			"update_failed": s.provider.Status().UpdateFailed,
		},
	})
}

// handleGetFraction returns the reading for a single fraction.
// GET /api/v1/fractions/:fraction
func (s *Server) handleGetFraction(c *gin.Context) {
	snap := s.snapshotOr503(c)
	if snap == nil {
		return
	}

	fraction := c.Param("fraction")
	if _, ok := snap.Fractions[fraction]; !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown fraction"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"data": buildReading(snap, fraction, s.today()),
	})
}

// handleCalendar returns all collection events in a date window as JSON.
// GET /api/v1/calendar?from=2025-06-01&until=2025-06-30
func (s *Server) handleCalendar(c *gin.Context) {
	snap := s.snapshotOr503(c)
	if snap == nil {
		return
	}

	from := s.today()
	until := models.DateOf(from.AddDate(0, 0, calendarLookaheadDays))

	var err error
	if v := c.Query("from"); v != "" {
		if from, err = models.ParseDate(v); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid from date"})
			return
		}
	}
	if v := c.Query("until"); v != "" {
		if until, err = models.ParseDate(v); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid until date"})
			return
		}
	}

	events := snap.Events(from, until)
	c.JSON(http.StatusOK, gin.H{
		"data": events,
		"meta": gin.H{
			"count": len(events),
			"from":  from,
			"until": until,
		},
	})
}

// handleCalendarICS serves the schedule as an ICS subscription feed.
// GET /api/v1/calendar.ics
func (s *Server) handleCalendarICS(c *gin.Context) {
	snap := s.snapshotOr503(c)
	if snap == nil {
		return
	}

	from := s.today()
	until := models.DateOf(from.AddDate(0, 0, calendarLookaheadDays))
	events := snap.Events(from, until)

	c.Header("Content-Type", "text/calendar; charset=utf-8")
	c.Status(http.StatusOK)
	writeICSFeed(c.Writer, snap.AddressName, events, time.Now())
}

// handleStatus reports coordinator diagnostics.
// GET /api/v1/status
func (s *Server) handleStatus(c *gin.Context) {
	status := s.provider.Status()
	resp := gin.H{
		"address_id": s.provider.AddressID(),
		"status":     status,
	}
	if snap := s.provider.Snapshot(); snap != nil {
		resp["address"] = snap.AddressName
		resp["municipality"] = snap.Municipality
		resp["fetched_at"] = snap.FetchedAt
		resp["fractions"] = snap.FractionNames()
	}
	c.JSON(http.StatusOK, resp)
}

type refreshRequest struct {
	AddressID string `json:"address_id"`
}

// handleRefresh triggers a manual refresh. Requests racing an in-flight
// fetch share its result instead of causing another round trip.
// POST /api/v1/refresh
func (s *Server) handleRefresh(c *gin.Context) {
	var req refreshRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
			return
		}
	}
	if req.AddressID != "" && req.AddressID != s.provider.AddressID() {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unknown address id"})
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), refreshTimeout)
	defer cancel()

	snap, err := s.provider.Refresh(ctx)
	if err != nil {
		status := http.StatusBadGateway
		if errors.Is(err, api.ErrAddressNotFound) {
			status = http.StatusNotFound
		}
		c.JSON(status, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status":     "ok",
		"fetched_at": snap.FetchedAt,
		"fractions":  len(snap.Fractions),
	})
}
