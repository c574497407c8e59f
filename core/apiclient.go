package core

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const apiTimeout = 10 * time.Second
const apiPrefix = "/api"

// successCode is the envelope code the backend uses for a successful call,
// independent of the HTTP status.
const successCode = 200

// defaultErrorMessage is used when a failed envelope carries no message.
const defaultErrorMessage = "リクエストに失敗しました"

// BusinessError is a failure signaled through the response envelope: the
// transport call succeeded (2xx) but the backend reports code != 200.
type BusinessError struct {
	Code    int
	Message string
}

func (e *BusinessError) Error() string {
	return fmt.Sprintf("api: business error %d: %s", e.Code, e.Message)
}

// TransportError is a network failure or a non-2xx status. StatusCode is 0
// when no HTTP response was received (connection error, timeout).
type TransportError struct {
	StatusCode int
	Message    string
	cause      error
}

func (e *TransportError) Error() string {
	if e.StatusCode == 0 {
		return fmt.Sprintf("api: transport error: %s", e.Message)
	}
	return fmt.Sprintf("api: status %d: %s", e.StatusCode, e.Message)
}

func (e *TransportError) Unwrap() error { return e.cause }

// IsUnauthenticated reports whether err is a 401 transport failure. The
// client never navigates by itself; callers map this to the forced-logout
// redirect.
func IsUnauthenticated(err error) bool {
	var te *TransportError
	return errors.As(err, &te) && te.StatusCode == http.StatusUnauthorized
}

type credentialKey struct{}

// WithCredential attaches the session credential to ctx so the client can
// derive the Authorization header for that request.
func WithCredential(ctx context.Context, cred Credential) context.Context {
	return context.WithValue(ctx, credentialKey{}, cred)
}

// CredentialFromContext returns the credential attached by WithCredential,
// or the anonymous credential.
func CredentialFromContext(ctx context.Context) Credential {
	cred, _ := ctx.Value(credentialKey{}).(Credential)
	return cred
}

// APIClient is the single request path to the CMS backend: every outbound
// call passes through it exactly once. It attaches the basic-auth header,
// unwraps the {code, message, data} envelope and normalizes failures into
// BusinessError / TransportError.
type APIClient struct {
	client *http.Client
	base   string
}

// NewAPIClient builds a client for the backend base URL. Requests go to
// <backendURL>/api/... with a fixed 10 second timeout and a single attempt;
// retry policy, if any, belongs to the caller.
func NewAPIClient(backendURL string) *APIClient {
	return &APIClient{
		client: &http.Client{Timeout: apiTimeout},
		base:   strings.TrimRight(backendURL, "/") + apiPrefix,
	}
}

// envelope mirrors the backend's standard reply wrapper. Code is a pointer
// so that a body without the field is distinguishable from code 0.
type envelope struct {
	Code    *int            `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

// Get issues a GET request; query may be nil.
func (c *APIClient) Get(ctx context.Context, path string, query url.Values, out any) error {
	return c.do(ctx, http.MethodGet, path, query, nil, out)
}

// Post issues a POST request with an optional JSON body.
func (c *APIClient) Post(ctx context.Context, path string, body, out any) error {
	return c.do(ctx, http.MethodPost, path, nil, body, out)
}

// Put issues a PUT request with an optional JSON body.
func (c *APIClient) Put(ctx context.Context, path string, body, out any) error {
	return c.do(ctx, http.MethodPut, path, nil, body, out)
}

// Delete issues a DELETE request; query may be nil.
func (c *APIClient) Delete(ctx context.Context, path string, query url.Values, out any) error {
	return c.do(ctx, http.MethodDelete, path, query, nil, out)
}

func (c *APIClient) do(ctx context.Context, method, path string, query url.Values, body, out any) error {
	endpoint := c.base + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}

	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request body: %w", err)
		}
		reader = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	if header := CredentialFromContext(ctx).AuthHeader(); header != "" && req.Header.Get("Authorization") == "" {
		req.Header.Set("Authorization", header)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		terr := &TransportError{Message: err.Error(), cause: err}
		log.Printf("api %s %s failed: %v", method, path, terr)
		return terr
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		terr := &TransportError{StatusCode: resp.StatusCode, Message: err.Error(), cause: err}
		log.Printf("api %s %s failed: %v", method, path, terr)
		return terr
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg := http.StatusText(resp.StatusCode)
		if env, ok := decodeEnvelope(raw); ok && env.Message != "" {
			msg = env.Message
		}
		terr := &TransportError{StatusCode: resp.StatusCode, Message: msg}
		log.Printf("api %s %s failed: %v", method, path, terr)
		return terr
	}

	// Three-way classification: enveloped success, enveloped failure, or a
	// raw payload from an endpoint that does not use the envelope.
	env, ok := decodeEnvelope(raw)
	if !ok {
		return decodeInto(raw, out)
	}
	if *env.Code != successCode {
		msg := env.Message
		if msg == "" {
			msg = defaultErrorMessage
		}
		berr := &BusinessError{Code: *env.Code, Message: msg}
		log.Printf("api %s %s failed: %v", method, path, berr)
		return berr
	}
	return decodeInto(env.Data, out)
}

// decodeEnvelope reports whether raw is a standard envelope: a JSON object
// carrying an integer "code" field.
func decodeEnvelope(raw []byte) (envelope, bool) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return envelope{}, false
	}
	var env envelope
	if err := json.Unmarshal(trimmed, &env); err != nil || env.Code == nil {
		return envelope{}, false
	}
	return env, true
}

// decodeInto unmarshals payload into out. A nil out discards the payload;
// *[]byte receives it verbatim.
func decodeInto(payload []byte, out any) error {
	if out == nil || len(bytes.TrimSpace(payload)) == 0 {
		return nil
	}
	if b, ok := out.(*[]byte); ok {
		*b = append((*b)[:0], payload...)
		return nil
	}
	if err := json.Unmarshal(payload, out); err != nil {
		return fmt.Errorf("decode response payload: %w", err)
	}
	return nil
}
