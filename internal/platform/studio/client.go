package studio

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strings"
	"time"

	"github.com/forgeline/genrelay/internal/config"
	"github.com/forgeline/genrelay/internal/domain"
	"github.com/forgeline/genrelay/internal/platform/logger"
	"github.com/forgeline/genrelay/internal/redact"
)

const (
	maxResponseBytes = 8 << 20
	userAgent        = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"
)

var submitPaths = map[SubmitKind]string{
	KindTextToImage:  "/text-to-image/task/submit",
	KindImageToVideo: "/image-to-video/task/submit",
	KindTextToVideo:  "/text-to-video/task/submit",
}

// Client talks to the vendor over HTTP. It is safe for concurrent use.
type Client struct {
	httpClient *http.Client
	authURL    string
	baseURL    string
	anonKey    string
	deviceID   string
	logger     *slog.Logger
}

// NewClient creates a vendor client from configuration.
func NewClient(cfg config.StudioConfig, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	timeout := cfg.HTTPTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		httpClient: &http.Client{Timeout: timeout},
		authURL:    strings.TrimRight(cfg.AuthURL, "/"),
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		anonKey:    cfg.AnonKey,
		deviceID:   cfg.DeviceID,
		logger:     logger.With(slog.String("component", "studio_client")),
	}
}

func (c *Client) sessionHeaders(req *http.Request, token string) {
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("x-device", "TABLET")
	req.Header.Set("x-device-id", c.deviceID)
	req.Header.Set("x-os", "WINDOWS")
	req.Header.Set("x-platform", "WEB")
	req.Header.Set("User-Agent", userAgent)
}

func readBody(resp *http.Response) ([]byte, error) {
	lr := &io.LimitedReader{R: resp.Body, N: maxResponseBytes + 1}
	data, err := io.ReadAll(lr)
	if err != nil {
		return nil, err
	}
	if int64(len(data)) > maxResponseBytes {
		return nil, fmt.Errorf("response body exceeded limit of %d bytes", maxResponseBytes)
	}
	return data, nil
}

// Authenticate exchanges a credential for a session token. After a
// successful login the account's subscription plan is fetched once, which
// the vendor requires before it accepts jobs from a fresh session.
func (c *Client) Authenticate(ctx context.Context, cred Credential) (string, error) {
	payload, err := json.Marshal(map[string]any{
		"email":                strings.TrimSpace(cred.Email),
		"password":             strings.TrimSpace(cred.Secret),
		"gotrue_meta_security": map[string]any{},
	})
	if err != nil {
		return "", fmt.Errorf("%w: encode request: %v", ErrAuthentication, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.authURL+"/auth/v1/token?grant_type=password", bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrAuthentication, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("apikey", c.anonKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: %s", ErrAuthentication, redact.Error(err))
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := readBody(resp)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrAuthentication, err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("%w: status %d: %s", ErrAuthentication, resp.StatusCode, redact.String(string(body)))
	}

	var out struct {
		AccessToken string `json:"access_token"`
	}
	if err := json.Unmarshal(body, &out); err != nil || out.AccessToken == "" {
		return "", fmt.Errorf("%w: no access token in response", ErrAuthentication)
	}

	c.refreshPlan(ctx, out.AccessToken)
	return out.AccessToken, nil
}

func (c *Client) refreshPlan(ctx context.Context, token string) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/subscription/plan", nil)
	if err != nil {
		return
	}
	c.sessionHeaders(req, token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		logger.FromContextOrDefault(ctx, c.logger).Debug("plan refresh failed",
			slog.String("error", redact.Error(err)))
		return
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	_ = resp.Body.Close()
}

// UploadImage uploads a PNG reference image and returns its vendor id.
func (c *Client) UploadImage(ctx context.Context, token string, image []byte) (string, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)

	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", `form-data; name="file"; filename="image.png"`)
	h.Set("Content-Type", "image/png")
	part, err := mw.CreatePart(h)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrUpload, err)
	}
	if _, err := part.Write(image); err != nil {
		return "", fmt.Errorf("%w: %v", ErrUpload, err)
	}
	_ = mw.WriteField("width", "1024")
	_ = mw.WriteField("height", "1536")
	if err := mw.Close(); err != nil {
		return "", fmt.Errorf("%w: %v", ErrUpload, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/file-upload/image", &buf)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrUpload, err)
	}
	c.sessionHeaders(req, token)
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: %s", ErrUpload, redact.Error(err))
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := readBody(resp)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrUpload, err)
	}
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return "", fmt.Errorf("%w: status %d", ErrUpload, resp.StatusCode)
	}

	var env envelope
	var data uploadData
	if err := json.Unmarshal(body, &env); err != nil || len(env.Data) == 0 {
		return "", fmt.Errorf("%w: malformed response", ErrUpload)
	}
	if err := json.Unmarshal(env.Data, &data); err != nil || data.Data.ID == "" {
		return "", fmt.Errorf("%w: no image id in response", ErrUpload)
	}
	return string(data.Data.ID), nil
}

// Submit submits a generation job and returns the vendor job id. A
// *RejectedError is returned when the vendor refuses the job; every other
// error wraps ErrSubmissionUnknown.
func (c *Client) Submit(ctx context.Context, token string, sr SubmitRequest) (string, error) {
	path, ok := submitPaths[sr.Kind]
	if !ok {
		return "", &RejectedError{Code: -1, Message: fmt.Sprintf("unknown submission kind %q", sr.Kind)}
	}

	payload, err := json.Marshal(sr.Body)
	if err != nil {
		return "", &RejectedError{Code: -1, Message: "encode request: " + err.Error()}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return "", &RejectedError{Code: -1, Message: err.Error()}
	}
	c.sessionHeaders(req, token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: %s", ErrSubmissionUnknown, redact.Error(err))
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := readBody(resp)
	if err != nil {
		return "", fmt.Errorf("%w: read response: %v", ErrSubmissionUnknown, err)
	}

	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return "", fmt.Errorf("%w: status %d: undecodable response", ErrSubmissionUnknown, resp.StatusCode)
	}
	if env.Error != nil && env.Error.Code != 0 {
		return "", &RejectedError{
			Code:    env.Error.Code,
			Message: env.Error.Message,
			Body:    redact.String(string(body)),
		}
	}

	var data submitData
	if len(env.Data) == 0 || json.Unmarshal(env.Data, &data) != nil || data.Data.TaskID == "" {
		return "", fmt.Errorf("%w: status %d: no job id in response", ErrSubmissionUnknown, resp.StatusCode)
	}
	return string(data.Data.TaskID), nil
}

// ListRecent returns the session's most recent jobs for the mode.
func (c *Client) ListRecent(ctx context.Context, token string, mode domain.TaskMode) ([]Job, error) {
	var path string
	switch mode {
	case domain.TaskModeImage:
		path = "/my-assets?limit=50&assetType=All&filter=CREATION"
	case domain.TaskModeVideo:
		path = "/video/tasks?page=1&size=20"
	default:
		return nil, fmt.Errorf("%w: mode %q has no vendor jobs", ErrListing, mode)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrListing, err)
	}
	c.sessionHeaders(req, token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrListing, redact.Error(err))
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := readBody(resp)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrListing, err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: status %d", ErrListing, resp.StatusCode)
	}

	if mode == domain.TaskModeImage {
		return parseAssets(body)
	}
	return parseVideoTasks(body)
}

func parseAssets(body []byte) ([]Job, error) {
	var env struct {
		Data assetsData `json:"data"`
	}
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrListing, err)
	}

	var jobs []Job
	for _, group := range env.Data.Data.Groups {
		for _, item := range group.Items {
			cr := item.Detail.Creation
			if cr.TaskID == "" {
				continue
			}
			jobs = append(jobs, Job{
				ID:        string(cr.TaskID),
				State:     JobState(cr.TaskState),
				ResultURL: string(cr.ImageURL),
			})
		}
	}
	return jobs, nil
}

func parseVideoTasks(body []byte) ([]Job, error) {
	var env struct {
		Data videoTasksData `json:"data"`
	}
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrListing, err)
	}

	var jobs []Job
	for _, v := range env.Data.Tasks {
		if v.TaskID == "" {
			continue
		}
		url := string(v.VideoURL)
		if url == "" {
			url = string(v.VideoURLAlt)
		}
		jobs = append(jobs, Job{
			ID:        string(v.TaskID),
			State:     JobState(v.TaskState),
			ResultURL: url,
		})
	}
	return jobs, nil
}
