package verifier

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	apperrors "pi-storefront/internal/common/errors"
	"pi-storefront/internal/features/session/models"
)

const maxResponseBytes = 1 << 20

// Client exchanges a platform access token for a verified identity.
type Client struct {
	url        string
	httpClient *http.Client
}

// NewClient posts to url. timeout bounds the whole exchange, in addition to
// any deadline on the context passed to Verify.
func NewClient(url string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Client{url: url, httpClient: &http.Client{Timeout: timeout}}
}

// Verify posts {"accessToken": token}. Any non-2xx status, unreadable body,
// success=false, or a missing user is a VERIFICATION_FAILED error. Of the
// user itself only an empty subject_id, an unknown role or invalid UTF-8 is
// rejected.
// Transport failures are EXTERNAL_API_ERROR, deadlines TIMEOUT.
func (c *Client) Verify(ctx context.Context, token string) (*models.Identity, error) {
	body, err := json.Marshal(models.VerifyRequest{AccessToken: token})
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrCodeInternal, "failed to marshal verify request")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return nil, apperrors.Wrapf(err, apperrors.ErrCodeInternal, "failed to create verify request for %q", c.url)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || isTimeout(err) {
			return nil, apperrors.Wrapf(err, apperrors.ErrCodeTimeout, "verification request timed out after %s", c.httpClient.Timeout)
		}
		return nil, apperrors.NewExternalAPIError("verify", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxResponseBytes))
		return nil, apperrors.NewVerificationError(fmt.Sprintf("http %d", resp.StatusCode)).
			WithDetail("status", resp.StatusCode)
	}

	var out models.LoginResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxResponseBytes)).Decode(&out); err != nil {
		return nil, apperrors.NewVerificationError("invalid response body")
	}
	if !out.Success {
		return nil, apperrors.NewVerificationError("success=false")
	}
	if out.User == nil {
		return nil, apperrors.NewVerificationError("missing user")
	}
	if err := out.User.Validate(); err != nil {
		return nil, apperrors.NewVerificationError(err.Error())
	}
	return out.User, nil
}

func isTimeout(err error) bool {
	var t interface{ Timeout() bool }
	return errors.As(err, &t) && t.Timeout()
}
