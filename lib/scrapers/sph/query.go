package sph

import (
	"context"
	"log/slog"
	"net/url"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

const (
	maxCaptchaRetries   = 5
	captchaRetryBackoff = time.Second
)

// query form fields
const (
	fieldQueryTimes    = "ctl00$ContentPlaceHolder1$Times"
	fieldQueryIdType   = "ctl00$ContentPlaceHolder1$rbnListS"
	fieldQueryIdNumber = "ctl00$ContentPlaceHolder1$txtInputS"
	fieldQueryBirthday = "ctl00$ContentPlaceHolder1$txtBirthday"
	fieldQueryCaptcha  = "ctl00$ContentPlaceHolder1$txtValidate"
	buttonQuery        = "ctl00$ContentPlaceHolder1$btnQuery"
)

// Options tune retry behavior the source site never pinned down.
type Options struct {
	// whether an OCR reading of the wrong length burns one of the
	// bounded captcha attempts before the local retry
	WrongLengthConsumesAttempt bool
}

func DefaultOptions() Options {
	return Options{WrongLengthConsumesAttempt: true}
}

func queryPageValues() url.Values {
	return url.Values{"loc": {"S"}}
}

// QueryAppointment runs the single-step appointment lookup: establish a
// session, then solve-submit-classify under a bounded captcha retry
// budget. Every failure mode is folded into the returned outcome; the
// error return is non-nil only when ctx is canceled, in which case the
// run was aborted rather than failed.
func (c *Client) QueryAppointment(ctx context.Context, recognizer Recognizer, req QueryRequest) (QueryOutcome, error) {
	return c.QueryAppointmentWithOptions(ctx, recognizer, req, DefaultOptions())
}

func (c *Client) QueryAppointmentWithOptions(ctx context.Context, recognizer Recognizer, req QueryRequest, opts Options) (QueryOutcome, error) {
	ctx, span := tracer.Start(ctx, "client:QueryAppointment")
	defer span.End()

	state, err := c.fetchSessionState(ctx, queryPath, queryPageValues())
	if err != nil {
		if ctx.Err() != nil {
			return QueryOutcome{}, ctx.Err()
		}
		span.SetStatus(codes.Error, "failed to establish session")
		return QueryOutcome{
			Status:  QueryOperationError,
			Message: "無法建立查詢連線: " + err.Error(),
		}, nil
	}

	attempts := 0
	// hard cap on loop iterations so a non-counting wrong-length
	// policy cannot spin forever on a broken recognizer
	for iterations := 0; attempts < maxCaptchaRetries && iterations < maxCaptchaRetries*4; iterations++ {
		if err := ctx.Err(); err != nil {
			return QueryOutcome{}, err
		}

		captcha, err := c.solveCaptcha(ctx, recognizer)
		if err != nil {
			if ctx.Err() != nil {
				return QueryOutcome{}, ctx.Err()
			}
			span.SetStatus(codes.Error, "failed to fetch captcha")
			return QueryOutcome{
				Status:  QueryOperationError,
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
				return QueryOutcome{}, err
			}
			continue
		}

		attempts++
		html, err := c.submitForm(ctx, queryPath, queryPageValues(), c.formFields(state, buttonQuery, map[string]string{
			fieldQueryTimes:    req.QueryType.fieldValue(),
			fieldQueryIdType:   req.IdType.fieldValue(),
			fieldQueryIdNumber: req.IdNumber,
			fieldQueryBirthday: req.BirthDate,
			fieldQueryCaptcha:  captcha,
		}))
		if err != nil {
			if ctx.Err() != nil {
				return QueryOutcome{}, ctx.Err()
			}
			span.SetStatus(codes.Error, "form submission failed")
			return QueryOutcome{
				Status:  QueryOperationError,
				Message: "送出查詢失敗: " + err.Error(),
			}, nil
		}

		outcome := classifyQueryResponse(html)
		span.SetAttributes(attribute.String("outcome", outcome.Status.String()))
		if outcome.Status != QueryCaptchaError {
			return outcome, nil
		}

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
			return QueryOutcome{}, err
		}
	}

	span.SetStatus(codes.Error, "captcha retries exhausted")
	return QueryOutcome{
		Status:  QueryOperationError,
		Message: "驗證碼重試次數已用盡",
	}, nil
}
