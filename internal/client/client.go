// Package client talks to the trafficwise API on behalf of the CLI.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/trafficwise/platform/internal/domain"
	"github.com/trafficwise/platform/internal/service"
)

// Client is a JSON client for the API. Requests carry the bearer token
// returned by Token, when there is one.
type Client struct {
	baseURL string
	http    *http.Client
	token   func() string
}

// New creates a client for baseURL. Uploads stream, so timeout should cover
// the slowest processing run.
func New(baseURL string, timeout time.Duration) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: timeout},
		token:   func() string { return "" },
	}
}

// SetToken installs the bearer token source.
func (c *Client) SetToken(fn func() string) {
	c.token = fn
}

// Get performs a GET and decodes the JSON response into out.
func (c *Client) Get(ctx context.Context, path string, out interface{}) error {
	return c.do(ctx, http.MethodGet, path, nil, "", out)
}

// Post performs a POST with a JSON body. body may be nil.
func (c *Client) Post(ctx context.Context, path string, body, out interface{}) error {
	return c.sendJSON(ctx, http.MethodPost, path, body, out)
}

// Patch performs a PATCH with a JSON body.
func (c *Client) Patch(ctx context.Context, path string, body, out interface{}) error {
	return c.sendJSON(ctx, http.MethodPatch, path, body, out)
}

// Delete performs a DELETE.
func (c *Client) Delete(ctx context.Context, path string) error {
	return c.do(ctx, http.MethodDelete, path, nil, "", nil)
}

func (c *Client) sendJSON(ctx context.Context, method, path string, body, out interface{}) error {
	if body == nil {
		return c.do(ctx, method, path, nil, "", out)
	}
	raw, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("encode request: %w", err)
	}
	return c.do(ctx, method, path, bytes.NewReader(raw), "application/json", out)
}

func (c *Client) do(ctx context.Context, method, path string, body io.Reader, contentType string, out interface{}) error {
	resp, err := c.send(ctx, method, path, body, contentType, nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if out == nil || resp.StatusCode == http.StatusNoContent {
		io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// send issues the request and turns non-2xx answers into *domain.AppError.
// The caller closes the body of a successful response.
func (c *Client) send(ctx context.Context, method, path string, body io.Reader, contentType string, header http.Header) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	for k, vs := range header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if tok := c.token(); tok != "" {
		req.Header.Set("Authorization", "Bearer "+tok)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, domain.ErrNetwork(err)
	}
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return resp, nil
	}
	defer resp.Body.Close()
	return nil, decodeError(resp)
}

func decodeError(resp *http.Response) error {
	var appErr domain.AppError
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if err := json.Unmarshal(raw, &appErr); err != nil || appErr.Code == "" {
		return &domain.AppError{
			Code:    domain.CodeInternal,
			Message: fmt.Sprintf("unexpected %s from API", resp.Status),
			Status:  resp.StatusCode,
		}
	}
	appErr.Status = resp.StatusCode
	return &appErr
}

// --- Identity ---

// SignUp creates an account and returns its first session.
func (c *Client) SignUp(ctx context.Context, input service.SignUpInput) (*service.AuthResult, error) {
	var out service.AuthResult
	if err := c.Post(ctx, "/auth/signup", input, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// SignIn exchanges credentials for a session.
func (c *Client) SignIn(ctx context.Context, email, password string) (*service.AuthResult, error) {
	var out service.AuthResult
	if err := c.Post(ctx, "/auth/signin", service.SignInInput{Email: email, Password: password}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// SignOut revokes the current token.
func (c *Client) SignOut(ctx context.Context) error {
	return c.Post(ctx, "/auth/signout", nil, nil)
}

// Session returns the identity behind the current token.
func (c *Client) Session(ctx context.Context) (domain.Identity, error) {
	var out struct {
		Identity domain.Identity `json:"identity"`
	}
	err := c.Get(ctx, "/auth/session", &out)
	return out.Identity, err
}

// Me returns the caller's profile.
func (c *Client) Me(ctx context.Context) (*domain.Profile, error) {
	var out domain.Profile
	if err := c.Get(ctx, "/profiles/me", &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// --- Activities ---

// Submit uploads one clip per direction. files maps each direction to a
// local path. The body is streamed, never held in memory.
func (c *Client) Submit(ctx context.Context, files map[domain.Direction]string, idempotencyKey string) (*domain.Activity, error) {
	pr, pw := io.Pipe()
	mw := multipart.NewWriter(pw)
	go func() {
		pw.CloseWithError(writeClips(mw, files))
	}()

	header := http.Header{}
	if idempotencyKey != "" {
		header.Set("Idempotency-Key", idempotencyKey)
	}
	resp, err := c.send(ctx, http.MethodPost, "/activities", pr, mw.FormDataContentType(), header)
	pr.Close()
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var out domain.Activity
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return &out, nil
}

func writeClips(mw *multipart.Writer, files map[domain.Direction]string) error {
	for _, dir := range domain.Directions {
		path, ok := files[dir]
		if !ok {
			continue
		}
		if err := writeClip(mw, dir, path); err != nil {
			return err
		}
	}
	return mw.Close()
}

func writeClip(mw *multipart.Writer, dir domain.Direction, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("%s: %w", dir, err)
	}
	defer f.Close()

	mt, err := mimetype.DetectReader(f)
	if err != nil {
		return fmt.Errorf("%s: detect type: %w", dir, err)
	}
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return fmt.Errorf("%s: %w", dir, err)
	}

	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name=%q; filename=%q`, dir, filepath.Base(path)))
	h.Set("Content-Type", mt.String())
	part, err := mw.CreatePart(h)
	if err != nil {
		return err
	}
	_, err = io.Copy(part, f)
	return err
}

// MyResults lists the caller's published results.
func (c *Client) MyResults(ctx context.Context, limit int) ([]domain.Result, error) {
	var out []domain.Result
	err := c.Get(ctx, "/results/me"+limitQuery(limit), &out)
	return out, err
}

// --- Admin ---

// Pending lists activities awaiting review, oldest first.
func (c *Client) Pending(ctx context.Context, limit int) ([]domain.Activity, error) {
	var out []domain.Activity
	err := c.Get(ctx, "/admin/activities/pending"+limitQuery(limit), &out)
	return out, err
}

// Approve publishes an activity. expect may be nil.
func (c *Client) Approve(ctx context.Context, activityID string, expect *service.ApproveExpectation) (*service.Approval, error) {
	var out service.Approval
	var body interface{}
	if expect != nil {
		body = expect
	}
	if err := c.Post(ctx, "/admin/activities/"+url.PathEscape(activityID)+"/approve", body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Reject discards an activity.
func (c *Client) Reject(ctx context.Context, activityID string) (*domain.Activity, error) {
	var out domain.Activity
	if err := c.Post(ctx, "/admin/activities/"+url.PathEscape(activityID)+"/reject", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Results lists any user's published results.
func (c *Client) Results(ctx context.Context, userID string, limit int) ([]domain.Result, error) {
	q := url.Values{"user_id": {userID}}
	if limit > 0 {
		q.Set("limit", fmt.Sprint(limit))
	}
	var out []domain.Result
	err := c.Get(ctx, "/admin/results?"+q.Encode(), &out)
	return out, err
}

// Profiles lists every profile.
func (c *Client) Profiles(ctx context.Context) ([]domain.Profile, error) {
	var out []domain.Profile
	err := c.Get(ctx, "/admin/profiles", &out)
	return out, err
}

// CreateAdmin provisions a new admin account.
func (c *Client) CreateAdmin(ctx context.Context, input service.CreateAdminInput) (*domain.Profile, error) {
	var out domain.Profile
	if err := c.Post(ctx, "/admin/profiles", input, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// EditProfile updates a profile's editable fields.
func (c *Client) EditProfile(ctx context.Context, uid string, update domain.ProfileUpdate) (*domain.Profile, error) {
	var out domain.Profile
	if err := c.Patch(ctx, "/admin/profiles/"+url.PathEscape(uid), update, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// DeleteProfile removes a profile.
func (c *Client) DeleteProfile(ctx context.Context, uid string) error {
	return c.Delete(ctx, "/admin/profiles/"+url.PathEscape(uid))
}

// Export streams a profile snapshot into w.
func (c *Client) Export(ctx context.Context, format string, w io.Writer) error {
	resp, err := c.send(ctx, http.MethodGet, "/admin/profiles/export?format="+url.QueryEscape(format), nil, "", nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	_, err = io.Copy(w, resp.Body)
	return err
}

// Import uploads a snapshot and returns how many profiles were written.
func (c *Client) Import(ctx context.Context, format string, r io.Reader) (int, error) {
	resp, err := c.send(ctx, http.MethodPost, "/admin/profiles/import?format="+url.QueryEscape(format), r, "application/octet-stream", nil)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	var out struct {
		Imported int `json:"imported"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return 0, fmt.Errorf("decode response: %w", err)
	}
	return out.Imported, nil
}

// Overview returns the admin dashboard.
func (c *Client) Overview(ctx context.Context) (*service.Overview, error) {
	var out service.Overview
	if err := c.Get(ctx, "/admin/overview", &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func limitQuery(limit int) string {
	if limit <= 0 {
		return ""
	}
	return fmt.Sprintf("?limit=%d", limit)
}
