package auth

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/dkeye/Huddle/internal/domain"
)

const SignatureHeader = "X-Signature"

// HTTPProvider asks an identity service over HTTP. Request bodies are signed
// with HMAC-SHA256 over the shared secret.
type HTTPProvider struct {
	base   string
	secret string
	client *http.Client
}

func NewHTTPProvider(endpoint, secret string, client *http.Client) (*HTTPProvider, error) {
	endpoint = strings.TrimRight(strings.TrimSpace(endpoint), "/")
	if endpoint == "" {
		return nil, errors.New("auth endpoint is empty")
	}
	if secret == "" {
		return nil, ErrEmptySecret
	}
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	return &HTTPProvider{base: endpoint, secret: secret, client: client}, nil
}

type verifyRequest struct {
	Token string `json:"token"`
}

type verifyResponse struct {
	UserID   string `json:"userId"`
	Username string `json:"username"`
}

type accessRequest struct {
	UserID string `json:"userId"`
	RoomID string `json:"roomId"`
}

type accessResponse struct {
	Allowed bool `json:"allowed"`
}

func (p *HTTPProvider) Verify(ctx context.Context, token string) (*domain.User, error) {
	var out verifyResponse
	if err := p.post(ctx, "/verify", verifyRequest{Token: token}, &out); err != nil {
		return nil, err
	}
	return domain.NewUser(out.UserID, out.Username)
}

func (p *HTTPProvider) CanAccessRoom(ctx context.Context, user *domain.User, room domain.RoomID) (bool, error) {
	var out accessResponse
	if err := p.post(ctx, "/access", accessRequest{UserID: string(user.ID), RoomID: string(room)}, &out); err != nil {
		return false, err
	}
	return out.Allowed, nil
}

func (p *HTTPProvider) post(ctx context.Context, path string, in, out any) error {
	body, err := json.Marshal(in)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.base+path, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(SignatureHeader, Sign(p.secret, body))

	resp, err := p.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	data, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<16))
	if resp.StatusCode != http.StatusOK {
		if len(data) == 0 {
			return fmt.Errorf("identity service %s: status %d", path, resp.StatusCode)
		}
		return fmt.Errorf("identity service %s: %s", path, strings.TrimSpace(string(data)))
	}
	return json.Unmarshal(data, out)
}

// Sign returns the signature header value for body.
func Sign(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}
