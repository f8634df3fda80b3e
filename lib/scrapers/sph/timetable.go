package sph

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/dectecx/SPHAssistant/lib/htmlutil"
	"github.com/dectecx/SPHAssistant/lib/timezone"

	"github.com/PuerkitoBio/goquery"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// structural markers of the schedule page
const (
	scheduleTableSelector = "table.rwd-table"
	scheduleRowSelector   = `tr[style*="border-color"]`
	deptNameSelector      = "#ctl00_ContentPlaceHolder1_labDptName"
)

type SlotStatus int

const (
	SlotAvailable SlotStatus = iota
	SlotFull
	SlotNoClinic
	SlotUnknown
)

func (s SlotStatus) String() string {
	switch s {
	case SlotAvailable:
		return "available"
	case SlotFull:
		return "full"
	case SlotNoClinic:
		return "no_clinic"
	}
	return "unknown"
}

type Doctor struct {
	Id   string
	Name string
}

// AppointmentSlot is one doctor's availability in one session of one
// day. BookingParameters is non-nil iff the slot is bookable; an
// available slot whose link was missing a parameter keeps its status
// but carries no parameters.
type AppointmentSlot struct {
	Doctor            Doctor
	Status            SlotStatus
	RawText           string
	BookingParameters *BookingParameters
}

type DailyTimetable struct {
	Date           time.Time
	MorningSlots   []AppointmentSlot
	AfternoonSlots []AppointmentSlot
	NightSlots     []AppointmentSlot
}

type DepartmentTimetable struct {
	Code string
	Name string
	Days []DailyTimetable
}

// FetchTimetable scrapes one department's schedule page. Malformed rows
// and chunks are skipped individually, only failing to reach or locate
// the schedule at all is an error.
func (c *Client) FetchTimetable(ctx context.Context, deptCode string) (DepartmentTimetable, error) {
	ctx, span := tracer.Start(ctx, "client:FetchTimetable")
	defer span.End()
	span.SetAttributes(attribute.String("dpt", deptCode))

	doc, err := c.getDocument(ctx, timetablePath, url.Values{"dpt": {deptCode}})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to fetch schedule page")
		return DepartmentTimetable{}, err
	}

	table := doc.Find(scheduleTableSelector).First()
	if len(table.Nodes) == 0 {
		span.SetStatus(codes.Error, "schedule table not found")
		return DepartmentTimetable{}, fmt.Errorf("schedule table not found for department %q", deptCode)
	}

	timetable := DepartmentTimetable{
		Code: deptCode,
		Name: htmlutil.TrimmedText(doc.Find(deptNameSelector)),
	}

	rows := table.Find(scheduleRowSelector)
	rows.Each(func(i int, row *goquery.Selection) {
		// the first marked row is the weekday header
		if i == 0 {
			return
		}
		day, ok := parseScheduleRow(ctx, row)
		if !ok {
			return
		}
		timetable.Days = append(timetable.Days, day)
	})

	span.SetAttributes(attribute.Int("days", len(timetable.Days)))
	return timetable, nil
}

func parseScheduleRow(ctx context.Context, row *goquery.Selection) (DailyTimetable, bool) {
	cells := row.Find("td")
	if cells.Length() < 4 {
		return DailyTimetable{}, false
	}

	date, err := parseScheduleDate(htmlutil.TrimmedText(cells.Eq(0)))
	if err != nil {
		slog.WarnContext(ctx, "skipping schedule row with unparseable date",
			"text", htmlutil.TrimmedText(cells.Eq(0)), "err", err)
		return DailyTimetable{}, false
	}

	return DailyTimetable{
		Date:           date,
		MorningSlots:   parseSessionCell(ctx, cells.Eq(1)),
		AfternoonSlots: parseSessionCell(ctx, cells.Eq(2)),
		NightSlots:     parseSessionCell(ctx, cells.Eq(3)),
	}, true
}

var parentheticalRegex = regexp.MustCompile(`[(（][^)）]*[)）]`)

// parseScheduleDate parses the compound date cell, e.g.
// "2025年10月27日(一)" becomes 2025-10-27. The weekday parenthetical is
// dropped and the CJK separators are normalized first.
func parseScheduleDate(text string) (time.Time, error) {
	text = parentheticalRegex.ReplaceAllString(text, "")
	text = strings.NewReplacer("年", "/", "月", "/", "日", "").Replace(text)
	text = strings.TrimSpace(text)
	return time.ParseInLocation("2006/1/2", text, timezone.Location)
}

var lineBreakRegex = regexp.MustCompile(`(?i)<br\s*/?>`)

// parseSessionCell splits one morning/afternoon/night cell into
// per-doctor chunks. A chunk is either a status span (full day,
// suspended clinic) or an anchor for a bookable slot; anything else,
// including the &nbsp; filler of an empty session, is skipped.
func parseSessionCell(ctx context.Context, cell *goquery.Selection) []AppointmentSlot {
	inner, err := cell.Html()
	if err != nil {
		return nil
	}

	var slots []AppointmentSlot
	for _, chunk := range lineBreakRegex.Split(inner, -1) {
		frag, err := goquery.NewDocumentFromReader(strings.NewReader("<div>" + chunk + "</div>"))
		if err != nil {
			continue
		}
		slot, ok := parseSlotChunk(ctx, frag)
		if !ok {
			continue
		}
		slots = append(slots, slot)
	}
	return slots
}

func parseSlotChunk(ctx context.Context, frag *goquery.Document) (AppointmentSlot, bool) {
	rawText := htmlutil.TrimmedText(frag.Selection)

	if span := frag.Find("span").First(); len(span.Nodes) > 0 {
		text := htmlutil.TrimmedText(span)
		status := SlotUnknown
		switch {
		case strings.Contains(text, markerSlotFull):
			status = SlotFull
		case strings.Contains(text, markerNoClinic):
			status = SlotNoClinic
		}
		return AppointmentSlot{
			Doctor:  parseDoctor(rawText),
			Status:  status,
			RawText: rawText,
		}, true
	}

	anchors := htmlutil.GetAnchors(ctx, frag.Find("a"))
	if len(anchors) == 0 {
		return AppointmentSlot{}, false
	}
	anchor := anchors[0]

	doctor := parseDoctor(rawText)
	if doctor.Id == "" {
		// the chunk text may hold decorations around the link,
		// the link's own text is the authoritative fallback
		doctor = parseDoctor(anchor.Name)
	}

	slot := AppointmentSlot{
		Doctor:  doctor,
		Status:  SlotAvailable,
		RawText: rawText,
	}

	params, err := ParseBookingParameters(anchor.Href)
	if err != nil {
		slog.WarnContext(ctx, "available slot link is missing booking parameters",
			"href", anchor.Href, "err", err)
		return slot, true
	}
	slot.BookingParameters = &params
	return slot, true
}

// ParseBookingParameters extracts the four slot capability tokens from
// a timetable link. All four keys must be present.
func ParseBookingParameters(href string) (BookingParameters, error) {
	link, err := url.Parse(href)
	if err != nil {
		return BookingParameters{}, err
	}
	query := link.Query()

	params := BookingParameters{
		RmsData:   query.Get("rmsData"),
		DptName:   query.Get("dptName"),
		Dpt:       query.Get("dpt"),
		DptDptuid: query.Get("dptDptuid"),
	}
	for _, key := range []string{"rmsData", "dptName", "dpt", "dptDptuid"} {
		if !query.Has(key) {
			return BookingParameters{}, fmt.Errorf("link query is missing %q", key)
		}
	}
	return params, nil
}

// parseDoctor splits "1234王大明(代)" into id 1234 and name 王大明. The
// id is the leading ASCII digit run of the text with parentheticals
// stripped.
func parseDoctor(text string) Doctor {
	text = strings.TrimSpace(parentheticalRegex.ReplaceAllString(text, ""))
	i := 0
	for i < len(text) && text[i] >= '0' && text[i] <= '9' {
		i++
	}
	return Doctor{
		Id:   text[:i],
		Name: strings.TrimSpace(text[i:]),
	}
}
