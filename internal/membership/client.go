// Package membership writes resolved on-call membership to the external
// directory service. Writes are full-replace: the posted member list is
// authoritative, never incremental.
package membership

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Client talks to the directory service over HTTP. Requests carry an
// HMAC-SHA256 signature of the body so the receiver can authenticate them.
type Client struct {
	baseURL string
	secret  string
	timeout time.Duration
	client  *http.Client
}

func NewClient(baseURL, secret string, timeout time.Duration) *Client {
	return &Client{
		baseURL: baseURL,
		secret:  secret,
		timeout: timeout,
		client:  &http.Client{},
	}
}

type createGroupRequest struct {
	Name        string `json:"name"`
	WorkspaceID string `json:"workspace_id"`
}

type createGroupResponse struct {
	GroupID string `json:"group_id"`
}

type replaceMembersRequest struct {
	Members []string `json:"members"`
}

// CreateGroup creates a group in the directory service and returns its
// external handle. The call is idempotent on the remote side: creating an
// existing group returns its handle.
func (c *Client) CreateGroup(ctx context.Context, name, workspaceID string) (string, error) {
	body, err := json.Marshal(createGroupRequest{Name: name, WorkspaceID: workspaceID})
	if err != nil {
		return "", fmt.Errorf("marshal: %w", err)
	}

	status, data, err := c.send(ctx, http.MethodPost, c.baseURL+"/groups", body)
	if err != nil {
		return "", fmt.Errorf("create group %q: %w", name, err)
	}
	if status < 200 || status >= 300 {
		return "", fmt.Errorf("create group %q: unexpected status %d", name, status)
	}

	var parsed createGroupResponse
	if err := json.Unmarshal(data, &parsed); err != nil {
		return "", fmt.Errorf("create group %q: decode: %w", name, err)
	}
	if parsed.GroupID == "" {
		return "", fmt.Errorf("create group %q: empty group_id in response", name)
	}
	return parsed.GroupID, nil
}

// ReplaceMembers sets the group's membership to exactly the given list.
// An empty list empties the group.
func (c *Client) ReplaceMembers(ctx context.Context, externalGroupID string, members []string) error {
	if members == nil {
		members = []string{}
	}
	body, err := json.Marshal(replaceMembersRequest{Members: members})
	if err != nil {
		return fmt.Errorf("marshal: %w", err)
	}

	status, _, err := c.send(ctx, http.MethodPut, c.baseURL+"/groups/"+externalGroupID+"/members", body)
	if err != nil {
		return fmt.Errorf("replace members group=%s: %w", externalGroupID, err)
	}
	if status < 200 || status >= 300 {
		return fmt.Errorf("replace members group=%s: unexpected status %d", externalGroupID, status)
	}
	return nil
}

// send performs a signed request under the client's timeout and returns
// the status code and fully read body.
func (c *Client) send(ctx context.Context, method, url string, body []byte) (int, []byte, error) {
	timeout := c.timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, method, url, bytes.NewReader(body))
	if err != nil {
		return 0, nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-RotationPress-Signature", computeSignature(c.secret, body))

	resp, err := c.client.Do(req)
	if err != nil {
		return 0, nil, fmt.Errorf("send: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return resp.StatusCode, nil, fmt.Errorf("read body: %w", err)
	}
	return resp.StatusCode, data, nil
}

func computeSignature(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

// VerifySignature is for directory services to authenticate incoming
// membership writes.
func VerifySignature(secret string, body []byte, signature string) bool {
	expected := computeSignature(secret, body)
	return hmac.Equal([]byte(expected), []byte(signature))
}
