package notification

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"github.com/stanstork/catalog-importer/internal/models"
)

const (
	DefaultTimeout   = 10 * time.Second
	maxDrainBytes    = 64 << 10
	tokenIssuer      = "catalog-importer"
	tokenAudience    = "webhook"
	tokenLifetime    = 5 * time.Minute
	headerEvent      = "X-Catalog-Event"
	headerDeliveryID = "X-Catalog-Webhook-Id"
)

// HTTPNotifier POSTs envelopes as JSON with a bounded timeout. When a signing
// key is configured every request carries an HS256 bearer token.
type HTTPNotifier struct {
	client     *http.Client
	timeout    time.Duration
	signingKey []byte
	now        func() time.Time
}

func NewHTTPNotifier(timeout time.Duration, signingKey string) *HTTPNotifier {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	n := &HTTPNotifier{
		client:  &http.Client{Timeout: timeout},
		timeout: timeout,
		now:     time.Now,
	}
	if signingKey != "" {
		n.signingKey = []byte(signingKey)
	}
	return n
}

func (n *HTTPNotifier) Deliver(ctx context.Context, hook models.Webhook, env Envelope) (models.DeliveryOutcome, error) {
	fail := func(err error) (models.DeliveryOutcome, error) {
		return failedOutcome(), &DeliveryError{WebhookID: hook.ID, URL: hook.URL, Err: err}
	}

	body, err := json.Marshal(env)
	if err != nil {
		return fail(fmt.Errorf("encode payload: %w", err))
	}

	ctx, cancel := context.WithTimeout(ctx, n.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, hook.URL, bytes.NewReader(body))
	if err != nil {
		return fail(err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(headerEvent, env.Event)
	req.Header.Set(headerDeliveryID, strconv.FormatInt(hook.ID, 10))

	if n.signingKey != nil {
		token, err := n.deliveryToken(hook, env.Event)
		if err != nil {
			return fail(fmt.Errorf("sign delivery token: %w", err))
		}
		req.Header.Set("Authorization", "Bearer "+token)
	}

	start := time.Now()
	resp, err := n.client.Do(req)
	if err != nil {
		return fail(err)
	}
	elapsed := time.Since(start).Milliseconds()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxDrainBytes))
	resp.Body.Close()

	return models.DeliveryOutcome{StatusCode: resp.StatusCode, ResponseMS: &elapsed}, nil
}

func (n *HTTPNotifier) deliveryToken(hook models.Webhook, event string) (string, error) {
	now := n.now()
	claims := jwt.MapClaims{
		"sub": strconv.FormatInt(hook.ID, 10),
		"evt": event,
		"aud": tokenAudience,
		"iss": tokenIssuer,
		"exp": now.Add(tokenLifetime).Unix(),
		"iat": now.Unix(),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(n.signingKey)
}

func (n *HTTPNotifier) String() string {
	return fmt.Sprintf("HTTPNotifier(timeout=%s, signed=%t)", n.timeout, n.signingKey != nil)
}
