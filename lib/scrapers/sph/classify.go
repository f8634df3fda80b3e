package sph

import (
	"strings"

	"github.com/dectecx/SPHAssistant/lib/htmlutil"

	"github.com/PuerkitoBio/goquery"
)

// element ids rendered by the query page
const (
	idQueryResultTable  = "ctl00_ContentPlaceHolder1_gvQueryResult"
	idQueryCaptchaError = "ctl00_ContentPlaceHolder1_validateImg"
	idQueryBirthday1    = "ctl00_ContentPlaceHolder1_validatBirthday1"
	idQueryBirthday2    = "ctl00_ContentPlaceHolder1_validatBirthday2"
	idQueryInputHint    = "ctl00_ContentPlaceHolder1_validateInputS"
	idQueryInputError   = "ctl00_ContentPlaceHolder1_txtInputSError"
	idQueryBirthError   = "ctl00_ContentPlaceHolder1_labBirthError"
	idQueryNoData       = "ctl00_ContentPlaceHolder1_panelFailResult"
)

// element ids rendered by the booking (Login.aspx) pages. The
// confirmation-step ids were read off the live site, the query-page ids
// do not carry over to this form.
const (
	idBookingConfirmPanel = "ctl00_ContentPlaceHolder1_panelConfirm"
	idBookingNewPatient   = "ctl00_ContentPlaceHolder1_panelFirstReg"
	idBookingCaptchaError = "ctl00_ContentPlaceHolder1_validateImg"
	idBookingInputError   = "ctl00_ContentPlaceHolder1_labError"
	idBookingNoQuota      = "ctl00_ContentPlaceHolder1_panelFailResult"
	idBookingResult       = "ctl00_ContentPlaceHolder1_labResult"
)

const (
	markerBookingSuccess = "掛號成功"
	markerSlotFull       = "額滿"
	markerNoClinic       = "休診"
)

type checkKind int

const (
	// the element is an active error unless its inline style hides it
	checkStyleVisible checkKind = iota
	// the element is an active error iff its trimmed text is non-empty
	checkNonEmptyText
)

// errorDefinition is one row of the ordered error table: which element
// to look at, how to decide whether it is active, and which status an
// active match produces. The scan is a pure function of the document
// and the table, first match wins.
type errorDefinition[S any] struct {
	elementId string
	check     checkKind
	status    S
	fallback  string
}

var queryErrorDefinitions = []errorDefinition[QueryStatus]{
	{idQueryCaptchaError, checkStyleVisible, QueryCaptchaError, "驗證碼錯誤"},
	{idQueryBirthday1, checkStyleVisible, QueryValidationError, "生日格式錯誤"},
	{idQueryBirthday2, checkStyleVisible, QueryValidationError, "生日格式錯誤"},
	{idQueryInputHint, checkNonEmptyText, QueryValidationError, "輸入資料有誤"},
	{idQueryInputError, checkNonEmptyText, QueryValidationError, "輸入資料有誤"},
	{idQueryBirthError, checkNonEmptyText, QueryValidationError, "生日資料有誤"},
}

var bookingErrorDefinitions = []errorDefinition[BookingStatus]{
	{idBookingCaptchaError, checkStyleVisible, BookingCaptchaError, "驗證碼錯誤"},
	{idBookingInputError, checkNonEmptyText, BookingValidationError, "輸入資料有誤"},
}

// scanErrorDefinitions walks the table in order and returns the first
// active error's status and message.
func scanErrorDefinitions[S any](doc *goquery.Document, defs []errorDefinition[S]) (S, string, bool) {
	var zero S
	for _, def := range defs {
		sel := doc.Find("#" + def.elementId)
		if len(sel.Nodes) == 0 {
			continue
		}

		active := false
		switch def.check {
		case checkStyleVisible:
			style, _ := sel.Attr("style")
			active = !htmlutil.IsHiddenStyle(style)
		case checkNonEmptyText:
			active = htmlutil.TrimmedText(sel) != ""
		}
		if !active {
			continue
		}

		message := htmlutil.TrimmedText(sel)
		if message == "" {
			message = def.fallback
		}
		return def.status, message, true
	}
	return zero, "", false
}

// noDataMessage pulls the human-readable reason out of the "no result"
// panel. The text sits in an emphasis node nested inside the panel.
func noDataMessage(panel *goquery.Selection, fallback string) string {
	emphasis := panel.Find("font,b,strong,em").First()
	if message := htmlutil.TrimmedText(emphasis); message != "" {
		return message
	}
	if message := htmlutil.TrimmedText(panel); message != "" {
		return message
	}
	return fallback
}

// classifyQueryResponse maps a query postback's HTML onto exactly one
// outcome. The success table is checked before the error table on
// purpose: the page keeps its validator spans in the DOM (hidden per
// style) even when the query succeeded, so scanning errors first would
// misread a successful page.
func classifyQueryResponse(html string) QueryOutcome {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return QueryOutcome{
			Status:  QueryOperationError,
			Message: "無法解析系統回應: " + err.Error(),
		}
	}

	if len(doc.Find("#"+idQueryResultTable).Nodes) > 0 {
		return QueryOutcome{
			Status:  QuerySuccess,
			Message: "查詢成功",
			Html:    html,
		}
	}

	if status, message, ok := scanErrorDefinitions(doc, queryErrorDefinitions); ok {
		return QueryOutcome{Status: status, Message: message, Html: html}
	}

	if panel := doc.Find("#" + idQueryNoData); len(panel.Nodes) > 0 {
		return QueryOutcome{
			Status:  QueryDataNotFound,
			Message: noDataMessage(panel, "查無掛號資料"),
			Html:    html,
		}
	}

	return QueryOutcome{
		Status:  QueryUnknownResponse,
		Message: "無法辨識的系統回應",
		Html:    html,
	}
}

// analyzeLoginResponse reads the identity-verification response of the
// booking flow. It does not produce a terminal outcome directly: a
// valid identity renders the confirmation page (whose own tokens are
// needed for the final POST), a patient unknown to the hospital is sent
// to the first-visit registration flow, everything else is a failure
// classified under the same priority discipline as the query page.
func analyzeLoginResponse(html string) verificationResult {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return verificationResult{
			kind: verificationFailed,
			outcome: BookingOutcome{
				Status:  BookingOperationError,
				Message: "無法解析系統回應: " + err.Error(),
			},
		}
	}

	if len(doc.Find("#"+idBookingConfirmPanel).Nodes) > 0 {
		state, err := sessionStateFromDocument(doc)
		if err != nil {
			return verificationResult{
				kind: verificationFailed,
				outcome: BookingOutcome{
					Status:  BookingOperationError,
					Message: "確認頁缺少表單權杖",
					Html:    html,
				},
			}
		}
		return verificationResult{
			kind:  verificationConfirm,
			html:  html,
			state: state,
		}
	}

	if len(doc.Find("#"+idBookingNewPatient).Nodes) > 0 {
		state, _ := sessionStateFromDocument(doc)
		return verificationResult{
			kind:  verificationNewPatient,
			html:  html,
			state: state,
		}
	}

	if status, message, ok := scanErrorDefinitions(doc, bookingErrorDefinitions); ok {
		return verificationResult{
			kind:    verificationFailed,
			outcome: BookingOutcome{Status: status, Message: message, Html: html},
		}
	}

	if panel := doc.Find("#" + idBookingNoQuota); len(panel.Nodes) > 0 {
		return verificationResult{
			kind: verificationFailed,
			outcome: BookingOutcome{
				Status:  BookingSlotUnavailable,
				Message: noDataMessage(panel, "該時段已額滿"),
				Html:    html,
			},
		}
	}

	return verificationResult{
		kind: verificationFailed,
		outcome: BookingOutcome{
			Status:  BookingUnknownResponse,
			Message: "無法辨識的系統回應",
			Html:    html,
		},
	}
}

// analyzeConfirmationResponse classifies the final booking POST.
func analyzeConfirmationResponse(html string) BookingOutcome {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return BookingOutcome{
			Status:  BookingOperationError,
			Message: "無法解析系統回應: " + err.Error(),
		}
	}

	if result := doc.Find("#" + idBookingResult); len(result.Nodes) > 0 {
		message := htmlutil.TrimmedText(result)
		switch {
		case strings.Contains(message, markerBookingSuccess):
			return BookingOutcome{Status: BookingSuccess, Message: message, Html: html}
		case strings.Contains(message, markerSlotFull):
			return BookingOutcome{Status: BookingSlotUnavailable, Message: message, Html: html}
		}
	}

	if status, message, ok := scanErrorDefinitions(doc, bookingErrorDefinitions); ok {
		return BookingOutcome{Status: status, Message: message, Html: html}
	}

	if panel := doc.Find("#" + idBookingNoQuota); len(panel.Nodes) > 0 {
		return BookingOutcome{
			Status:  BookingSlotUnavailable,
			Message: noDataMessage(panel, "該時段已額滿"),
			Html:    html,
		}
	}

	return BookingOutcome{
		Status:  BookingUnknownResponse,
		Message: "無法辨識的系統回應",
		Html:    html,
	}
}
