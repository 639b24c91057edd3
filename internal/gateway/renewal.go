package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/rs/zerolog/log"

	"github.com/taskdeck/internal/apierr"
)

// Pair is the credential pair returned by the login and refresh endpoints.
type Pair struct {
	Access  string `json:"access"`
	Refresh string `json:"refresh"`
}

// renewAndResend exchanges the renewal credential for a new pair and resends
// req once. The request is marked retried before anything else so a second
// authorization failure is terminal.
func (g *Gateway) renewAndResend(ctx context.Context, req *Request, cause *apierr.Error) (*Response, error) {
	req.retried = true

	renewal := g.store.Renewal()
	if renewal == "" {
		log.Debug().Str("path", req.Path).Msg("Authorization rejected and no renewal credential available")
		g.forceUnauthenticated()
		return nil, &apierr.Error{
			Kind:    apierr.AuthUnrecoverable,
			Status:  cause.Status,
			Message: cause.Message,
			Err:     cause,
		}
	}

	pair, err := g.renew(ctx, renewal)
	if err != nil && ctx.Err() != nil {
		// The caller gave up; the renewal credential was never rejected.
		log.Debug().Err(err).Str("request_id", req.id).Msg("Credential renewal abandoned")
		return nil, apierr.Wrap(apierr.Transport, ctx.Err(), "credential renewal abandoned")
	}
	if err != nil {
		log.Warn().Err(err).Str("request_id", req.id).Msg("Credential renewal failed")
		g.forceUnauthenticated()
		return nil, apierr.Wrap(apierr.AuthUnrecoverable, err, "credential renewal failed")
	}

	if err := g.store.Save(pair.Access, pair.Refresh); err != nil {
		log.Warn().Err(err).Str("request_id", req.id).Msg("Renewed credentials not stored, resending anyway")
	}
	req.bearer = pair.Access

	log.Debug().Str("path", req.Path).Str("request_id", req.id).Msg("Resending request with renewed credential")
	return g.Send(ctx, req)
}

// renew calls the refresh endpoint directly so that its own failure never
// re-enters the renewal protocol.
func (g *Gateway) renew(ctx context.Context, renewal string) (*Pair, error) {
	body, err := json.Marshal(map[string]string{"refresh": renewal})
	if err != nil {
		return nil, err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, g.baseURL+RefreshPath, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to build refresh request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")

	httpResp, err := g.httpClient.Do(httpReq)
	if err != nil {
		return nil, apierr.Wrap(apierr.Transport, err, "refresh request failed")
	}
	defer httpResp.Body.Close()

	data, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, apierr.Wrap(apierr.Transport, err, "failed to read refresh response")
	}
	if httpResp.StatusCode < 200 || httpResp.StatusCode >= 300 {
		return nil, apierr.FromResponse(httpResp.StatusCode, data)
	}

	var pair Pair
	if err := json.Unmarshal(data, &pair); err != nil {
		return nil, fmt.Errorf("failed to decode refresh response: %w", err)
	}
	if pair.Access == "" {
		return nil, fmt.Errorf("refresh response carried no access credential")
	}
	// Without rotation the server keeps the renewal credential unchanged.
	if pair.Refresh == "" {
		pair.Refresh = renewal
	}
	return &pair, nil
}

func (g *Gateway) forceUnauthenticated() {
	g.store.Clear()

	g.mu.RLock()
	handlers := append([]func(){}, g.onUnauth...)
	g.mu.RUnlock()

	log.Info().Msg("Session ended, credentials cleared")
	for _, fn := range handlers {
		fn()
	}
}
