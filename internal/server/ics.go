package server

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/mskaar/renovasjon/internal/models"
)

const (
	icsProductID = "-//renovasjon//Avfallskalender//NO"
	icsTimezone  = "Europe/Oslo"
)

// icsTextEscaper escapes TEXT property values per RFC 5545 section 3.3.11.
var icsTextEscaper = strings.NewReplacer(
	`\`, `\\`,
	";", `\;`,
	",", `\,`,
	"\n", `\n`,
	"\r", "",
)

func escapeICSText(s string) string {
	return icsTextEscaper.Replace(s)
}

// icsLine writes one content line with the CRLF ending RFC 5545 requires.
func icsLine(w io.Writer, format string, args ...any) {
	fmt.Fprintf(w, format+"\r\n", args...)
}

// writeICSFeed writes an iCalendar subscription feed of all-day events.
// UIDs are stable across fetches so calendar apps can update entries in
// place. No VALARM blocks: calendar apps ignore alarms in subscribed
// calendars, so users set their own reminders.
func writeICSFeed(w io.Writer, calendarName string, events []models.Event, stamp time.Time) {
	icsLine(w, "BEGIN:VCALENDAR")
	icsLine(w, "VERSION:2.0")
	icsLine(w, "PRODID:%s", icsProductID)
	icsLine(w, "METHOD:PUBLISH")
	icsLine(w, "X-WR-CALNAME:Avfallskalender %s", escapeICSText(calendarName))
	icsLine(w, "X-WR-TIMEZONE:%s", icsTimezone)
	icsLine(w, "CALSCALE:GREGORIAN")
	icsLine(w, "X-PUBLISHED-TTL:PT1H")

	dtstamp := stamp.UTC().Format("20060102T150405Z")

	for _, event := range events {
		uid := fmt.Sprintf("%s-%s@renovasjon", event.Date, escapeICSText(event.Fraction))

		icsLine(w, "BEGIN:VEVENT")
		icsLine(w, "UID:%s", uid)
		icsLine(w, "DTSTAMP:%s", dtstamp)
		icsLine(w, "DTSTART;VALUE=DATE:%s", event.Date.Format("20060102"))
		icsLine(w, "DTEND;VALUE=DATE:%s", event.Date.AddDate(0, 0, 1).Format("20060102"))
		icsLine(w, "SUMMARY:%s", escapeICSText(event.Summary))
		icsLine(w, "DESCRIPTION:Henting av %s", escapeICSText(event.Summary))
		icsLine(w, "END:VEVENT")
	}

	icsLine(w, "END:VCALENDAR")
}
