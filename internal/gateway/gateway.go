// Package gateway wraps every outbound call to the task service. It attaches
// the access credential, watches responses for rotated credentials, challenge
// and rate-limit signals, and renews an expired credential at most once per
// request.
//
// Concurrent requests that fail on the same expired credential each renew on
// their own; the last successful renewal wins in the credential store.
package gateway

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"math"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/oauth2"
	"golang.org/x/time/rate"

	"github.com/taskdeck/internal/apierr"
	"github.com/taskdeck/internal/challenge"
	"github.com/taskdeck/internal/credentials"
	"github.com/taskdeck/internal/notify"
)

// Headers inspected on responses and set on requests.
const (
	HeaderNewToken         = "X-New-Token"
	HeaderNewRefreshToken  = "X-New-Refresh-Token"
	HeaderNewAccessToken   = "X-New-Access-Token"
	HeaderWriteAvailableIn = "X-Write-Available-In"
	HeaderCaptchaQuestion  = "X-Captcha-Question"
	HeaderCaptchaAnswer    = "X-Captcha-Answer"
	HeaderRequestID        = "X-Request-ID"

	RefreshPath = "/auth/refresh/"
)

// Gateway is safe for concurrent use.
type Gateway struct {
	baseURL    string
	httpClient *http.Client
	store      credentials.Store
	challenge  *challenge.State
	notifier   notify.Notifier
	limiter    *rate.Limiter

	mu       sync.RWMutex
	onUnauth []func()
}

// Option configures a Gateway.
type Option func(*Gateway)

func WithHTTPClient(c *http.Client) Option {
	return func(g *Gateway) { g.httpClient = c }
}

func WithNotifier(n notify.Notifier) Option {
	return func(g *Gateway) { g.notifier = n }
}

// WithRateLimit paces outbound requests to rps with the given burst.
// A non-positive rps disables pacing.
func WithRateLimit(rps float64, burst int) Option {
	return func(g *Gateway) {
		if rps <= 0 {
			g.limiter = nil
			return
		}
		if burst < 1 {
			burst = 1
		}
		g.limiter = rate.NewLimiter(rate.Limit(rps), burst)
	}
}

// WithUnauthenticatedHandler registers fn to run whenever the gateway gives up
// on the session and clears the credentials.
func WithUnauthenticatedHandler(fn func()) Option {
	return func(g *Gateway) { g.onUnauth = append(g.onUnauth, fn) }
}

// New creates a Gateway for the API rooted at baseURL.
func New(baseURL string, store credentials.Store, ch *challenge.State, opts ...Option) *Gateway {
	g := &Gateway{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: 30 * time.Second},
		store:      store,
		challenge:  ch,
		notifier:   notify.Discard,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// OnUnauthenticated registers fn like WithUnauthenticatedHandler, after
// construction.
func (g *Gateway) OnUnauthenticated(fn func()) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.onUnauth = append(g.onUnauth, fn)
}

func (g *Gateway) Store() credentials.Store { return g.store }

func (g *Gateway) Challenge() *challenge.State { return g.challenge }

func (g *Gateway) Notifier() notify.Notifier { return g.notifier }

// Send dispatches req and returns its response when the status is 2xx.
// Every other outcome is returned as an *apierr.Error.
func (g *Gateway) Send(ctx context.Context, req *Request) (*Response, error) {
	if err := req.prepare(); err != nil {
		return nil, err
	}

	resp, err := g.dispatch(ctx, req)
	if err != nil {
		return nil, err
	}

	if resp.ok() {
		g.absorbRotatedCredentials(resp)
		return resp, nil
	}
	return g.handleFailure(ctx, req, resp)
}

// Do sends a request with a JSON body and decodes the JSON response into out.
func (g *Gateway) Do(ctx context.Context, method, path string, body, out interface{}) error {
	resp, err := g.Send(ctx, NewRequest(method, path, body))
	if err != nil {
		return err
	}
	return resp.Decode(out)
}

func (g *Gateway) dispatch(ctx context.Context, req *Request) (*Response, error) {
	if g.limiter != nil {
		if err := g.limiter.Wait(ctx); err != nil {
			return nil, apierr.Wrap(apierr.Transport, err, "request %s %s not sent", req.Method, req.Path)
		}
	}

	endpoint := g.baseURL + req.Path
	if len(req.Query) > 0 {
		endpoint += "?" + req.Query.Encode()
	}

	var body io.Reader
	if req.payload != nil {
		body = bytes.NewReader(req.payload)
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.Method, endpoint, body)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	for k, vs := range req.Header {
		for _, v := range vs {
			httpReq.Header.Add(k, v)
		}
	}
	if req.payload != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}
	httpReq.Header.Set("Accept", "application/json")
	httpReq.Header.Set(HeaderRequestID, req.id)

	token := req.bearer
	if token == "" {
		token = g.store.Access()
	}
	if token != "" {
		(&oauth2.Token{AccessToken: token, TokenType: "Bearer"}).SetAuthHeader(httpReq)
	}

	start := time.Now()
	httpResp, err := g.httpClient.Do(httpReq)
	if err != nil {
		log.Debug().Err(err).Str("method", req.Method).Str("path", req.Path).Str("request_id", req.id).Msg("Request failed")
		return nil, apierr.Wrap(apierr.Transport, err, "request %s %s failed", req.Method, req.Path)
	}
	defer httpResp.Body.Close()

	data, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, apierr.Wrap(apierr.Transport, err, "failed to read response of %s %s", req.Method, req.Path)
	}

	log.Debug().
		Str("method", req.Method).
		Str("path", req.Path).
		Str("request_id", req.id).
		Int("status", httpResp.StatusCode).
		Bool("retried", req.retried).
		Dur("elapsed", time.Since(start)).
		Msg("Request completed")

	return &Response{StatusCode: httpResp.StatusCode, Header: httpResp.Header, Body: data}, nil
}

// absorbRotatedCredentials persists credentials the server rotated
// proactively on a successful call.
func (g *Gateway) absorbRotatedCredentials(resp *Response) {
	access := resp.Header.Get(HeaderNewToken)
	renewal := resp.Header.Get(HeaderNewRefreshToken)
	if access != "" && renewal != "" {
		log.Debug().Msg("Server rotated credential pair")
		if err := g.store.Save(access, renewal); err != nil {
			log.Warn().Err(err).Msg("Rotated credential pair not stored")
		}
		return
	}

	// The silent-refresh middleware only reissues the access credential.
	if access := resp.Header.Get(HeaderNewAccessToken); access != "" {
		if renewal := g.store.Renewal(); renewal != "" {
			log.Debug().Msg("Server reissued access credential")
			if err := g.store.Save(access, renewal); err != nil {
				log.Warn().Err(err).Msg("Reissued access credential not stored")
			}
		}
	}
}

func (g *Gateway) handleFailure(ctx context.Context, req *Request, resp *Response) (*Response, error) {
	apiErr := apierr.FromResponse(resp.StatusCode, resp.Body)

	switch {
	case resp.StatusCode == http.StatusUnauthorized:
		if req.retried {
			log.Warn().Str("path", req.Path).Str("request_id", req.id).Msg("Authorization rejected after renewal")
			return nil, apiErr
		}
		return g.renewAndResend(ctx, req, apiErr)

	case resp.StatusCode == http.StatusTooManyRequests:
		apiErr.RetryAfter = g.reportRateLimit(resp.Header.Get(HeaderWriteAvailableIn))

	case resp.StatusCode == http.StatusForbidden:
		question := resp.Header.Get(HeaderCaptchaQuestion)
		if question == "" {
			question = apiErr.Question
		}
		if question != "" {
			g.challenge.Arm(question)
			apiErr.Kind = apierr.ChallengeRequired
			apiErr.Question = question
			log.Info().Str("path", req.Path).Msg("Server issued a challenge")
		}

	case resp.StatusCode >= 500:
		g.notifier.Notify(notify.Error, "Server error. Please try again later.")
		log.Error().Str("method", req.Method).Str("path", req.Path).Int("status", resp.StatusCode).Msg("Server fault")
	}

	return nil, apiErr
}

// RateLimitMessage renders the write-availability hint in whole minutes,
// rounded up. Only the leading integer of the header counts, so "125.5"
// reads as 125 seconds.
func RateLimitMessage(header string) (string, time.Duration) {
	digits := strings.TrimLeft(header, " \t")
	if end := strings.IndexFunc(digits, func(r rune) bool { return r < '0' || r > '9' }); end >= 0 {
		digits = digits[:end]
	}
	seconds, err := strconv.Atoi(digits)
	if err != nil {
		return "Rate limit exceeded. Please try again later.", 0
	}
	minutes := int(math.Ceil(float64(seconds) / 60))
	return fmt.Sprintf("Rate limit exceeded. Write operations available in %d minute(s).", minutes),
		time.Duration(seconds) * time.Second
}

func (g *Gateway) reportRateLimit(header string) time.Duration {
	msg, wait := RateLimitMessage(header)
	g.notifier.Notify(notify.Error, msg)
	log.Warn().Dur("available_in", wait).Msg("Rate limit exceeded")
	return wait
}
