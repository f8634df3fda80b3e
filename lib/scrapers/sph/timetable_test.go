package sph

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/dectecx/SPHAssistant/lib/telemetry"
	"github.com/dectecx/SPHAssistant/lib/timezone"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
)

func TestParseScheduleDate(t *testing.T) {
	testCases := []struct {
		text    string
		expect  time.Time
		wantErr bool
	}{
		{
			text:   "2025年10月27日(一)",
			expect: time.Date(2025, 10, 27, 0, 0, 0, 0, timezone.Location),
		},
		{
			text:   "2025年1月3日（五）",
			expect: time.Date(2025, 1, 3, 0, 0, 0, 0, timezone.Location),
		},
		{
			text:    "日期待定",
			wantErr: true,
		},
		{
			text:    "",
			wantErr: true,
		},
	}

	for _, test := range testCases {
		date, err := parseScheduleDate(test.text)
		if test.wantErr {
			require.Error(t, err, test.text)
			continue
		}
		require.NoError(t, err, test.text)
		require.Equal(t, test.expect, date, test.text)
	}
}

func TestParseDoctor(t *testing.T) {
	testCases := []struct {
		text   string
		expect Doctor
	}{
		{"1234王大明", Doctor{Id: "1234", Name: "王大明"}},
		{"5678林小華(額滿)", Doctor{Id: "5678", Name: "林小華"}},
		{"張志成", Doctor{Id: "", Name: "張志成"}},
		{"", Doctor{}},
	}
	for _, test := range testCases {
		require.Equal(t, test.expect, parseDoctor(test.text), test.text)
	}
}

func TestParseBookingParameters(t *testing.T) {
	params, err := ParseBookingParameters("Login.aspx?rmsData=ABC123&dptName=%E5%AE%B6%E9%86%AB%E7%A7%91&dpt=05&dptDptuid=0501")
	require.NoError(t, err)
	require.Equal(t, BookingParameters{
		RmsData:   "ABC123",
		DptName:   "家醫科",
		Dpt:       "05",
		DptDptuid: "0501",
	}, params)

	_, err = ParseBookingParameters("Login.aspx?rmsData=ABC123&dptName=x&dpt=05")
	require.Error(t, err)
}

func TestFetchTimetable(t *testing.T) {
	cleanup := telemetry.SetupForTesting(t, "test:scrapers/sph")
	defer cleanup()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, timetablePath, r.URL.Path)
		require.Equal(t, "05", r.URL.Query().Get("dpt"))
		w.Write([]byte(readFixture(t, "timetable.html")))
	}))
	defer server.Close()

	client, err := NewClient(context.Background(), ClientOptions{BaseUrl: server.URL})
	require.NoError(t, err)

	timetable, err := client.FetchTimetable(context.Background(), "05")
	require.NoError(t, err)
	require.Equal(t, "05", timetable.Code)
	require.Equal(t, "家庭醫學科", timetable.Name)
	// the row with the unparseable date cell is dropped, not fatal
	require.Len(t, timetable.Days, 2)

	expectFirstDay := DailyTimetable{
		Date: time.Date(2025, 10, 27, 0, 0, 0, 0, timezone.Location),
		MorningSlots: []AppointmentSlot{
			{
				Doctor:  Doctor{Id: "1234", Name: "王大明"},
				Status:  SlotAvailable,
				RawText: "1234王大明",
				BookingParameters: &BookingParameters{
					RmsData:   "ABC123",
					DptName:   "家醫科",
					Dpt:       "05",
					DptDptuid: "0501",
				},
			},
			{
				Doctor:  Doctor{Id: "5678", Name: "林小華"},
				Status:  SlotFull,
				RawText: "5678林小華(額滿)",
			},
		},
		NightSlots: []AppointmentSlot{
			{
				Doctor:  Doctor{Id: "7777", Name: "張志成"},
				Status:  SlotNoClinic,
				RawText: "7777張志成(休診)",
			},
		},
	}
	if diff := cmp.Diff(expectFirstDay, timetable.Days[0]); diff != "" {
		t.Fatalf("first day mismatch (-want +got):\n%s", diff)
	}

	secondDay := timetable.Days[1]
	require.Len(t, secondDay.MorningSlots, 1)
	// href missing dptDptuid: the slot stays available but carries
	// no booking parameters
	require.Equal(t, SlotAvailable, secondDay.MorningSlots[0].Status)
	require.Nil(t, secondDay.MorningSlots[0].BookingParameters)

	require.Len(t, secondDay.AfternoonSlots, 1)
	require.NotNil(t, secondDay.AfternoonSlots[0].BookingParameters)
	require.Equal(t, "GHI789", secondDay.AfternoonSlots[0].BookingParameters.RmsData)
	require.Equal(t, Doctor{Id: "3456", Name: "李文雄"}, secondDay.AfternoonSlots[0].Doctor)

	// the &nbsp; filler of an empty session yields no slots
	require.Empty(t, secondDay.NightSlots)
	require.Empty(t, timetable.Days[0].AfternoonSlots)
}
