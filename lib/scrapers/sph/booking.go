package sph

import (
	"context"
	"log/slog"
	"net/url"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// booking (Login.aspx) form fields
const (
	fieldBookingIdType   = "ctl00$ContentPlaceHolder1$rbnList"
	fieldBookingIdNumber = "ctl00$ContentPlaceHolder1$txtInput"
	fieldBookingCaptcha  = "ctl00$ContentPlaceHolder1$txtValidate"
	fieldBookingTimes    = "ctl00$ContentPlaceHolder1$Times"
	fieldBookingBirthday = "ctl00$ContentPlaceHolder1$txtBirthday"
	buttonBookingSend    = "ctl00$ContentPlaceHolder1$btnSend"
	buttonBookingConfirm = "ctl00$ContentPlaceHolder1$btnQuery"
)

func bookingPageValues(p BookingParameters) url.Values {
	return url.Values{
		"rmsData":   {p.RmsData},
		"dptName":   {p.DptName},
		"dpt":       {p.Dpt},
		"dptDptuid": {p.DptDptuid},
	}
}

// BookAppointment runs the two-step booking protocol: identity
// verification under the bounded captcha retry budget, then the final
// confirmation POST using the tokens issued by the confirmation page
// itself. Like QueryAppointment, the error return is reserved for
// context cancellation.
func (c *Client) BookAppointment(ctx context.Context, recognizer Recognizer, req BookingRequest) (BookingOutcome, error) {
	return c.BookAppointmentWithOptions(ctx, recognizer, req, DefaultOptions())
}

func (c *Client) BookAppointmentWithOptions(ctx context.Context, recognizer Recognizer, req BookingRequest, opts Options) (BookingOutcome, error) {
	ctx, span := tracer.Start(ctx, "client:BookAppointment")
	defer span.End()

	pageValues := bookingPageValues(req.Parameters)
	state, err := c.fetchSessionState(ctx, loginPath, pageValues)
	if err != nil {
		if ctx.Err() != nil {
			return BookingOutcome{}, ctx.Err()
		}
		span.SetStatus(codes.Error, "failed to establish session")
		return BookingOutcome{
			Status:  BookingOperationError,
			Message: "無法建立掛號連線: " + err.Error(),
		}, nil
	}

	verification, outcome, err := c.verifyIdentity(ctx, recognizer, req, state, opts)
	if err != nil || outcome != nil {
		if err != nil {
			return BookingOutcome{}, err
		}
		return *outcome, nil
	}

	switch verification.kind {
	case verificationNewPatient:
		span.SetStatus(codes.Error, "new patient registration required")
		return BookingOutcome{
			Status:  BookingOperationError,
			Message: "初診病患需先完成初診登記，此流程不支援",
		}, nil
	case verificationFailed:
		span.SetAttributes(attribute.String("outcome", verification.outcome.Status.String()))
		return verification.outcome, nil
	}

	result, err := c.postConfirmation(ctx, req, verification.state, pageValues)
	if err != nil {
		if ctx.Err() != nil {
			return BookingOutcome{}, ctx.Err()
		}
		span.SetStatus(codes.Error, "confirmation submission failed")
		return BookingOutcome{
			Status:  BookingOperationError,
			Message: "送出掛號確認失敗: " + err.Error(),
		}, nil
	}
	span.SetAttributes(attribute.String("outcome", result.Status.String()))
	return result, nil
}

// verifyIdentity drives phase one of the booking flow. It returns
// either a verification result to act on, a terminal outcome (captcha
// budget exhausted, transport failure), or the cancellation error.
func (c *Client) verifyIdentity(ctx context.Context, recognizer Recognizer, req BookingRequest, state SessionState, opts Options) (verificationResult, *BookingOutcome, error) {
	ctx, span := tracer.Start(ctx, "verifyIdentity")
	defer span.End()

	pageValues := bookingPageValues(req.Parameters)

	attempts := 0
	for iterations := 0; attempts < maxCaptchaRetries && iterations < maxCaptchaRetries*4; iterations++ {
		if err := ctx.Err(); err != nil {
			return verificationResult{}, nil, err
		}

		captcha, err := c.solveCaptcha(ctx, recognizer)
		if err != nil {
			if ctx.Err() != nil {
				return verificationResult{}, nil, ctx.Err()
			}
			span.SetStatus(codes.Error, "failed to fetch captcha")
			return verificationResult{}, &BookingOutcome{
				Status:  BookingOperationError,
				Message: "無法取得驗證碼圖片: " + err.Error(),
			}, nil
		}

		if len(captcha) != captchaLength {
			slog.WarnContext(ctx, "captcha reading has wrong length, retrying locally",
				"got", len(captcha), "want", captchaLength)
			if opts.WrongLengthConsumesAttempt {
				attempts++
			}
			if attempts >= maxCaptchaRetries {
				break
			}
			if err := sleepContext(ctx, c.retryBackoff); err != nil {
				return verificationResult{}, nil, err
			}
			continue
		}

		attempts++
		html, err := c.submitForm(ctx, loginPath, pageValues, c.formFields(state, buttonBookingSend, map[string]string{
			fieldBookingIdType:   req.IdType.fieldValue(),
			fieldBookingIdNumber: req.IdNumber,
			fieldBookingCaptcha:  captcha,
		}))
		if err != nil {
			if ctx.Err() != nil {
				return verificationResult{}, nil, ctx.Err()
			}
			span.SetStatus(codes.Error, "form submission failed")
			return verificationResult{}, &BookingOutcome{
				Status:  BookingOperationError,
				Message: "送出身分驗證失敗: " + err.Error(),
			}, nil
		}

		verification := analyzeLoginResponse(html)
		if verification.kind == verificationFailed &&
			verification.outcome.Status == BookingCaptchaError {
			slog.InfoContext(ctx, "server rejected captcha",
				"attempt", attempts, "max", maxCaptchaRetries)
			if attempts >= maxCaptchaRetries {
				break
			}
			// the rejection page reissues its own postback tokens
			if refreshed, ok := refreshSessionState(html); ok {
				state = refreshed
			}
			if err := sleepContext(ctx, c.retryBackoff); err != nil {
				return verificationResult{}, nil, err
			}
			continue
		}
		return verification, nil, nil
	}

	span.SetStatus(codes.Error, "captcha retries exhausted")
	return verificationResult{}, &BookingOutcome{
		Status:  BookingOperationError,
		Message: "驗證碼重試次數已用盡",
	}, nil
}

// postConfirmation submits phase two. The confirmation page issued its
// own postback tokens, phase one's state is no longer valid here.
func (c *Client) postConfirmation(ctx context.Context, req BookingRequest, state SessionState, pageValues url.Values) (BookingOutcome, error) {
	ctx, span := tracer.Start(ctx, "postConfirmation")
	defer span.End()

	times := "rbnSeveralTimes"
	if req.IsFirstVisit {
		times = "rbnFirstTime"
	}
	html, err := c.submitForm(ctx, loginPath, pageValues, c.formFields(state, buttonBookingConfirm, map[string]string{
		fieldBookingTimes:    times,
		fieldBookingBirthday: req.BirthDate,
	}))
	if err != nil {
		return BookingOutcome{}, err
	}
	return analyzeConfirmationResponse(html), nil
}
