package ocpi

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"roaming/internal/errs"

	"github.com/google/uuid"
)

// Client talks to one partner endpoint. BaseURL is the versioned module root,
// e.g. https://partner.example/ocpi/cpo/2.1.1.
type Client struct {
	BaseURL string
	Token   string
	HTTP    *http.Client
}

func NewClient(baseURL, token string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		BaseURL: strings.TrimRight(baseURL, "/"),
		Token:   token,
		HTTP:    &http.Client{Timeout: timeout},
	}
}

// ModuleURL joins path segments (escaped) under the base URL.
func (c *Client) ModuleURL(segments ...string) string {
	var b strings.Builder
	b.WriteString(c.BaseURL)
	for _, s := range segments {
		b.WriteByte('/')
		b.WriteString(url.PathEscape(s))
	}
	return b.String()
}

// Do sends one request and decodes the OCPI envelope. The returned header is
// the raw response header (pagination links live there). A transport failure,
// a non-2xx status or a failing OCPI status code is returned as an error.
func (c *Client) Do(ctx context.Context, method, target string, body any) (Response, http.Header, error) {
	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return Response{}, nil, errs.Wrap(errs.CodeInternal, "encode request body", err)
		}
		reader = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		return Response{}, nil, errs.Wrap(errs.CodeInvalidConfig, "build request", err).With("url", target)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Authorization", "Token "+c.Token)
	req.Header.Set("X-Request-ID", uuid.NewString())

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return Response{}, nil, errs.Wrap(errs.CodeNetwork, "remote call failed", err).With("method", method).With("url", target)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return Response{}, resp.Header, errs.Wrap(errs.CodeNetwork, "read response body", err).With("url", target)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return Response{}, resp.Header, errs.Newf(errs.CodeRemote, "partner answered %d", resp.StatusCode).
			With("method", method).
			With("url", target).
			With("status", resp.StatusCode).
			With("body", truncate(string(raw), 256))
	}

	var env Response
	if len(bytes.TrimSpace(raw)) == 0 {
		env.StatusCode = StatusCodeSuccess
		return env, resp.Header, nil
	}
	if err := json.Unmarshal(raw, &env); err != nil {
		return Response{}, resp.Header, errs.Wrap(errs.CodeRemote, "decode response envelope", err).With("url", target)
	}
	if !env.Succeeded() {
		return env, resp.Header, errs.Newf(errs.CodeRemote, "ocpi status %d: %s", env.StatusCode, env.StatusMessage).
			With("method", method).
			With("url", target).
			With("ocpiStatus", env.StatusCode)
	}
	return env, resp.Header, nil
}

// PutToken stores (creates or replaces) a token at the partner.
func (c *Client) PutToken(ctx context.Context, countryCode, partyID string, t Token) error {
	_, _, err := c.Do(ctx, http.MethodPut, c.ModuleURL(ModuleTokens, countryCode, partyID, t.UID), t)
	return err
}

func (c *Client) PostCdr(ctx context.Context, cdr Cdr) error {
	_, _, err := c.Do(ctx, http.MethodPost, c.ModuleURL(ModuleCdrs), cdr)
	return err
}

// PostCommand sends START_SESSION or STOP_SESSION; the partner answers
// asynchronously on the command's response_url.
func (c *Client) PostCommand(ctx context.Context, command string, body any) (CommandResponse, error) {
	env, _, err := c.Do(ctx, http.MethodPost, c.ModuleURL(ModuleCommands, strings.ToLower(command)), body)
	if err != nil {
		return CommandResponse{}, err
	}
	var out CommandResponse
	if len(env.Data) > 0 {
		if err := json.Unmarshal(env.Data, &out); err != nil {
			return CommandResponse{}, errs.Wrap(errs.CodeRemote, "decode command response", err)
		}
	}
	return out, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
