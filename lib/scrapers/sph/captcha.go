package sph

import (
	"context"
	"fmt"
	"log/slog"

	"go.opentelemetry.io/otel/codes"
)

// Recognizer turns a captcha image into text. Implementations live
// outside this package (OCR engine, manual entry); an implementation
// that cannot produce a reading should return an empty string or an
// error, both are treated as a failed attempt rather than a fatal one.
type Recognizer interface {
	Recognize(ctx context.Context, image []byte) (string, error)
}

// the site's captchas are always four characters
const captchaLength = 4

func (c *Client) fetchCaptcha(ctx context.Context) ([]byte, error) {
	ctx, span := tracer.Start(ctx, "fetchCaptcha")
	defer span.End()

	res, err := c.Http.R().
		SetContext(ctx).
		Get(captchaPath)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to fetch captcha image")
		return nil, err
	}
	if res.IsError() {
		err := fmt.Errorf("GET %s: unexpected status %s", captchaPath, res.Status())
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	return res.Body(), nil
}

// solveCaptcha downloads the current captcha over the session and asks
// the recognizer for a reading. Recognizer failures yield an empty
// string; only the image download itself can fail hard.
func (c *Client) solveCaptcha(ctx context.Context, recognizer Recognizer) (string, error) {
	ctx, span := tracer.Start(ctx, "solveCaptcha")
	defer span.End()

	image, err := c.fetchCaptcha(ctx)
	if err != nil {
		return "", err
	}

	text, err := recognizer.Recognize(ctx, image)
	if err != nil {
		span.RecordError(err)
		slog.WarnContext(ctx, "captcha recognition failed", "err", err)
		return "", nil
	}
	return text, nil
}
