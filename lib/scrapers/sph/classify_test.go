package sph

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func readFixture(t testing.TB, name string) string {
	t.Helper()
	data, err := os.ReadFile(filepath.Join("testdata", name))
	if err != nil {
		t.Fatal(err)
	}
	return string(data)
}

func TestClassifyQueryResponse(t *testing.T) {
	testCases := []struct {
		name          string
		fixture       string
		expectStatus  QueryStatus
		expectMessage string
	}{
		{
			// hidden error spans must not shadow the result table
			name:          "success with hidden validators",
			fixture:       "query_success.html",
			expectStatus:  QuerySuccess,
			expectMessage: "查詢成功",
		},
		{
			// the captcha span outranks the no-data panel even when
			// both are present in the DOM
			name:          "captcha error before no-data panel",
			fixture:       "query_captcha_error.html",
			expectStatus:  QueryCaptchaError,
			expectMessage: "驗證碼輸入錯誤",
		},
		{
			name:          "no data",
			fixture:       "query_no_data.html",
			expectStatus:  QueryDataNotFound,
			expectMessage: "查無您的掛號資料，請確認輸入資料是否正確。",
		},
	}

	for _, test := range testCases {
		t.Run(test.name, func(t *testing.T) {
			html := readFixture(t, test.fixture)
			outcome := classifyQueryResponse(html)
			require.Equal(t, test.expectStatus, outcome.Status)
			require.Equal(t, test.expectMessage, outcome.Message)
			require.Equal(t, html, outcome.Html)
		})
	}
}

func TestClassifyQueryResponseInline(t *testing.T) {
	testCases := []struct {
		name          string
		html          string
		expectStatus  QueryStatus
		expectMessage string
	}{
		{
			name:          "text-checked validation error",
			html:          `<span id="ctl00_ContentPlaceHolder1_txtInputSError">身分證字號格式錯誤</span>`,
			expectStatus:  QueryValidationError,
			expectMessage: "身分證字號格式錯誤",
		},
		{
			// an empty text-checked span is a spacer, not an error
			name:          "empty error spans fall through to unknown",
			html:          `<span id="ctl00_ContentPlaceHolder1_txtInputSError"></span><span id="ctl00_ContentPlaceHolder1_labBirthError">  </span>`,
			expectStatus:  QueryUnknownResponse,
			expectMessage: "無法辨識的系統回應",
		},
		{
			name:          "visible style-checked birthday validator",
			html:          `<span id="ctl00_ContentPlaceHolder1_validatBirthday1" style="color:Red;">生日必須為四碼</span>`,
			expectStatus:  QueryValidationError,
			expectMessage: "生日必須為四碼",
		},
		{
			name:          "style-checked element without style attribute is active",
			html:          `<span id="ctl00_ContentPlaceHolder1_validateImg">驗證碼錯誤</span>`,
			expectStatus:  QueryCaptchaError,
			expectMessage: "驗證碼錯誤",
		},
		{
			name:          "unrelated page",
			html:          `<html><body><h1>Service Unavailable</h1></body></html>`,
			expectStatus:  QueryUnknownResponse,
			expectMessage: "無法辨識的系統回應",
		},
	}

	for _, test := range testCases {
		t.Run(test.name, func(t *testing.T) {
			outcome := classifyQueryResponse(test.html)
			require.Equal(t, test.expectStatus, outcome.Status)
			require.Equal(t, test.expectMessage, outcome.Message)
		})
	}
}

func TestAnalyzeLoginResponse(t *testing.T) {
	t.Run("confirmation page carries fresh tokens", func(t *testing.T) {
		result := analyzeLoginResponse(readFixture(t, "booking_confirm_page.html"))
		require.Equal(t, verificationConfirm, result.kind)
		require.Equal(t, "dDwtOTYzMjc4NDY1O2w8aTwyPjs+Oz4=", result.state.ViewState)
		require.NotEmpty(t, result.state.EventValidation)
	})

	t.Run("visible captcha error is a retryable failure", func(t *testing.T) {
		result := analyzeLoginResponse(readFixture(t, "booking_captcha_error.html"))
		require.Equal(t, verificationFailed, result.kind)
		require.Equal(t, BookingCaptchaError, result.outcome.Status)
	})

	t.Run("new patient registration", func(t *testing.T) {
		result := analyzeLoginResponse(readFixture(t, "booking_new_patient.html"))
		require.Equal(t, verificationNewPatient, result.kind)
	})

	t.Run("validation error is terminal", func(t *testing.T) {
		result := analyzeLoginResponse(readFixture(t, "booking_validation_error.html"))
		require.Equal(t, verificationFailed, result.kind)
		require.Equal(t, BookingValidationError, result.outcome.Status)
		require.Equal(t, "身分證號與掛號資料不符", result.outcome.Message)
	})
}

func TestAnalyzeConfirmationResponse(t *testing.T) {
	t.Run("success", func(t *testing.T) {
		outcome := analyzeConfirmationResponse(readFixture(t, "booking_success.html"))
		require.Equal(t, BookingSuccess, outcome.Status)
		require.Contains(t, outcome.Message, "掛號成功")
	})

	t.Run("slot filled up between verification and confirmation", func(t *testing.T) {
		outcome := analyzeConfirmationResponse(readFixture(t, "booking_full.html"))
		require.Equal(t, BookingSlotUnavailable, outcome.Status)
	})

	t.Run("unknown", func(t *testing.T) {
		outcome := analyzeConfirmationResponse("<html><body></body></html>")
		require.Equal(t, BookingUnknownResponse, outcome.Status)
	})
}
