// Package sph drives the hospital's legacy ASP.NET online registration
// site ("netreg"). The site has no API: every interaction is a postback
// form submission carrying hidden session tokens and a solved image
// captcha, and every answer is a server-rendered HTML page that has to
// be classified back into a typed result.
package sph

import (
	"bytes"
	"context"
	"fmt"
	"net/http/cookiejar"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/dectecx/SPHAssistant/lib/telemetry"

	cloudflarebp "github.com/DaRealFreak/cloudflare-bp-go"
	"github.com/PuerkitoBio/goquery"
	"github.com/go-resty/resty/v2"
	"github.com/mazen160/go-random"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
)

var tracer = otel.Tracer("scrapers/sph")

var ErrMissingSessionState = fmt.Errorf("page is missing its __VIEWSTATE or __EVENTVALIDATION token")

const (
	queryPath     = "/Query.aspx"
	captchaPath   = "/ValidateCode.aspx"
	loginPath     = "/Login.aspx"
	timetablePath = "/RMSTimeTable.aspx"
)

// hidden postback fields embedded in every page the site serves
const (
	fieldViewState          = "__VIEWSTATE"
	fieldViewStateGenerator = "__VIEWSTATEGENERATOR"
	fieldEventValidation    = "__EVENTVALIDATION"
)

const defaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/123.0.0.0 Safari/537.36"

// SessionState holds the opaque tokens a page issues for its next
// postback. Tokens are scoped to one HTTP session and expire server
// side, so a state read in one run must never be reused in another.
type SessionState struct {
	ViewState          string
	ViewStateGenerator string
	EventValidation    string
}

// Client owns one cookie-bearing session against the registration site.
// A Client must not be shared between concurrent runs: the server keys
// its captcha and viewstate checks to the session cookie, and two
// interleaved runs would invalidate each other.
type Client struct {
	BaseUrl *url.URL
	Http    *resty.Client

	// produces the synthetic x/y coordinates reported for an
	// image-button click, pinned to fixed values in tests
	clickPoint func() (int, int)
	// delay between captcha retry attempts, shortened in tests
	retryBackoff time.Duration
}

type ClientOptions struct {
	BaseUrl   string
	UserAgent string
}

func NewClient(ctx context.Context, opts ClientOptions) (*Client, error) {
	baseUrl, err := url.Parse(opts.BaseUrl)
	if err != nil {
		return nil, err
	}

	client := resty.New()
	client.SetBaseURL(opts.BaseUrl)
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, err
	}
	client.SetCookieJar(jar)
	client.GetClient().Transport = cloudflarebp.AddCloudFlareByPass(client.GetClient().Transport)

	userAgent := opts.UserAgent
	if userAgent == "" {
		userAgent = defaultUserAgent
	}
	client.SetHeader("user-agent", userAgent)
	client.SetRedirectPolicy(resty.DomainCheckRedirectPolicy(baseUrl.Hostname()))
	client.SetTimeout(time.Second * 30)

	telemetry.InstrumentResty(client, "scrapers/sph/http")

	c := &Client{
		BaseUrl:      baseUrl,
		Http:         client,
		clickPoint:   randomClickPoint,
		retryBackoff: captchaRetryBackoff,
	}
	return c, nil
}

// the site's submit buttons are <input type="image"> elements, so the
// browser reports the pixel the user clicked. The server tolerates any
// point inside the button, these bounds just have to stay inside it.
const (
	clickMaxX = 60
	clickMaxY = 20
)

func randomClickPoint() (int, int) {
	x, err := random.IntRange(1, clickMaxX)
	if err != nil {
		x = clickMaxX / 2
	}
	y, err := random.IntRange(1, clickMaxY)
	if err != nil {
		y = clickMaxY / 2
	}
	return x, y
}

func (c *Client) getDocument(ctx context.Context, path string, query url.Values) (*goquery.Document, error) {
	res, err := c.Http.R().
		SetContext(ctx).
		SetQueryParamsFromValues(query).
		Get(path)
	if err != nil {
		return nil, err
	}
	if res.IsError() {
		return nil, fmt.Errorf("GET %s: unexpected status %s", path, res.Status())
	}
	return goquery.NewDocumentFromReader(bytes.NewBuffer(res.Body()))
}

func sessionStateFromDocument(doc *goquery.Document) (SessionState, error) {
	state := SessionState{
		ViewState:          doc.Find("input[name=" + fieldViewState + "]").AttrOr("value", ""),
		ViewStateGenerator: doc.Find("input[name=" + fieldViewStateGenerator + "]").AttrOr("value", ""),
		EventValidation:    doc.Find("input[name=" + fieldEventValidation + "]").AttrOr("value", ""),
	}
	// the generator token is optional, the other two are not
	if state.ViewState == "" || state.EventValidation == "" {
		return SessionState{}, ErrMissingSessionState
	}
	return state, nil
}

// refreshSessionState tries to read reissued tokens out of a postback
// response. A page that carries none (or unparseable markup) yields
// ok == false and the caller keeps its previous state.
func refreshSessionState(html string) (SessionState, bool) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return SessionState{}, false
	}
	state, err := sessionStateFromDocument(doc)
	if err != nil {
		return SessionState{}, false
	}
	return state, true
}

// fetchSessionState GETs a page over the session, which both refreshes
// the session cookie and yields the tokens for the following POST.
func (c *Client) fetchSessionState(ctx context.Context, path string, query url.Values) (SessionState, error) {
	ctx, span := tracer.Start(ctx, "fetchSessionState")
	defer span.End()

	doc, err := c.getDocument(ctx, path, query)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to fetch page")
		return SessionState{}, err
	}
	state, err := sessionStateFromDocument(doc)
	if err != nil {
		span.SetStatus(codes.Error, "page carried no session state")
		return SessionState{}, err
	}
	return state, nil
}

// formFields assembles the full postback payload: hidden tokens, the
// caller's fields and the click coordinates of the named image button.
func (c *Client) formFields(state SessionState, button string, fields map[string]string) map[string]string {
	out := map[string]string{
		fieldViewState:          state.ViewState,
		fieldViewStateGenerator: state.ViewStateGenerator,
		fieldEventValidation:    state.EventValidation,
	}
	for k, v := range fields {
		out[k] = v
	}
	x, y := c.clickPoint()
	out[button+".x"] = strconv.Itoa(x)
	out[button+".y"] = strconv.Itoa(y)
	return out
}

func (c *Client) submitForm(ctx context.Context, path string, query url.Values, fields map[string]string) (string, error) {
	ctx, span := tracer.Start(ctx, "submitForm")
	defer span.End()

	res, err := c.Http.R().
		SetContext(ctx).
		SetQueryParamsFromValues(query).
		SetFormData(fields).
		Post(path)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to post form")
		return "", err
	}
	if res.IsError() {
		err := fmt.Errorf("POST %s: unexpected status %s", path, res.Status())
		span.SetStatus(codes.Error, err.Error())
		return "", err
	}
	// res.String() trims the body, the classifier gets the exact bytes
	return string(res.Body()), nil
}

// sleepContext waits for the given duration unless the context is
// canceled first.
func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
