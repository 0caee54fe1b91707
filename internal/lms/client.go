// Package lms is a thin client for the LMS file-storage REST surface: user
// search, per-user folder trees, two-phase file uploads and quota queries.
// Every call acts on behalf of the target user via the as_user_id masquerade.
package lms

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"report-sync/internal/httpx"
)

type Client struct {
	BaseURL string
	Token   string
	HTTP    *http.Client

	log *zap.Logger
}

// New builds a client. The http.Client is left with the transport defaults;
// the batch job blocks on each call until the platform answers.
func New(baseURL, token string, log *zap.Logger) *Client {
	return &Client{
		BaseURL: strings.TrimRight(baseURL, "/"),
		Token:   token,
		HTTP:    &http.Client{},
		log:     log,
	}
}

func (c *Client) authReq(ctx context.Context, method, rawURL string, body io.Reader) (*http.Request, error) {
	r, err := http.NewRequestWithContext(ctx, method, rawURL, body)
	if err != nil {
		return nil, err
	}
	r.Header.Set("Accept", "application/json")
	r.Header.Set("Authorization", "Bearer "+c.Token)
	return r, nil
}

// ResolveUser looks up a platform user by search term. Every miss variant is
// logged with its distinguishing reason but surfaced uniformly as a non-OK
// kind; ambiguous results resolve to the first match in service order.
func (c *Client) ResolveUser(ctx context.Context, identifier string) (int64, Kind) {
	u := fmt.Sprintf("%s/api/v1/accounts/self/users?search_term=%s", c.BaseURL, url.QueryEscape(identifier))

	var users []userResult
	err := httpx.DoJSON(ctx, c.HTTP, func(ctx context.Context) (*http.Request, error) {
		return c.authReq(ctx, http.MethodGet, u, nil)
	}, &users)
	if err != nil {
		var herr *httpx.HTTPError
		if errors.As(err, &herr) {
			if herr.StatusCode == http.StatusNotFound {
				c.log.Error("user associated with a file but does not exist on the platform",
					zap.String("username", identifier))
				return 0, NotFound
			}
			c.log.Error("user lookup failed",
				zap.String("username", identifier),
				zap.Int("status", herr.StatusCode),
				zap.ByteString("body", herr.Body))
			return 0, Transport
		}
		var jerr *httpx.JSONError
		if errors.As(err, &jerr) {
			c.log.Error("unexpected response format from user lookup",
				zap.String("username", identifier), zap.Error(err))
			return 0, BadShape
		}
		c.log.Error("user lookup request failed",
			zap.String("username", identifier), zap.Error(err))
		return 0, Transport
	}

	if len(users) == 0 {
		c.log.Error("no platform user matched search term", zap.String("username", identifier))
		return 0, NotFound
	}

	c.log.Debug("users matched search term",
		zap.String("username", identifier), zap.Int("matches", len(users)))
	return users[0].ID, OK
}

// ResolveFolder returns the id of the deepest segment of folderPath under the
// user's root, creating missing segments one at a time. Re-resolving an
// existing path returns the same terminal id and creates nothing. A non-zero
// existingID is returned as-is without validation.
func (c *Client) ResolveFolder(ctx context.Context, userID int64, folderPath string, existingID int64) (int64, Kind) {
	if existingID != 0 {
		return existingID, OK
	}

	var current int64
	for _, segment := range strings.Split(folderPath, "/") {
		if segment == "" {
			continue
		}

		children, err := c.listFolders(ctx, userID, current)
		if err != nil {
			c.log.Error("folder listing failed",
				zap.Int64("user_id", userID),
				zap.String("folder_path", folderPath),
				zap.Error(err))
			return 0, Transport
		}

		var found *folderResult
		for i := range children {
			if children[i].Name == segment {
				found = &children[i]
				break
			}
		}

		if found == nil {
			created, err := c.createFolder(ctx, userID, current, segment)
			if err != nil {
				c.log.Error("folder creation failed",
					zap.Int64("user_id", userID),
					zap.String("folder_path", folderPath),
					zap.String("segment", segment),
					zap.Error(err))
				return 0, Transport
			}
			found = created
		}

		current = found.ID
	}

	return current, OK
}

// listFolders lists the children of parentID, or the user's root folders when
// parentID is zero, acting as the user.
func (c *Client) listFolders(ctx context.Context, userID, parentID int64) ([]folderResult, error) {
	var u string
	if parentID == 0 {
		u = fmt.Sprintf("%s/api/v1/users/%d/folders?as_user_id=%d&per_page=100", c.BaseURL, userID, userID)
	} else {
		u = fmt.Sprintf("%s/api/v1/folders/%d/folders?as_user_id=%d&per_page=100", c.BaseURL, parentID, userID)
	}

	var folders []folderResult
	err := httpx.DoJSON(ctx, c.HTTP, func(ctx context.Context) (*http.Request, error) {
		return c.authReq(ctx, http.MethodGet, u, nil)
	}, &folders)
	if err != nil {
		return nil, err
	}
	return folders, nil
}

func (c *Client) createFolder(ctx context.Context, userID, parentID int64, name string) (*folderResult, error) {
	var u string
	if parentID == 0 {
		u = fmt.Sprintf("%s/api/v1/users/%d/folders", c.BaseURL, userID)
	} else {
		u = fmt.Sprintf("%s/api/v1/folders/%d/folders", c.BaseURL, parentID)
	}

	form := url.Values{}
	form.Set("name", name)
	form.Set("as_user_id", strconv.FormatInt(userID, 10))

	var folder folderResult
	err := httpx.DoJSON(ctx, c.HTTP, func(ctx context.Context) (*http.Request, error) {
		r, err := c.authReq(ctx, http.MethodPost, u, strings.NewReader(form.Encode()))
		if err != nil {
			return nil, err
		}
		r.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		return r, nil
	}, &folder)
	if err != nil {
		return nil, err
	}
	return &folder, nil
}

// UploadFile performs the two-phase transfer: request an upload ticket from
// the folder's upload endpoint, then post the bytes to the ticket URL with the
// ticket parameters. The returned status is the final phase's code; a non-2xx
// ticket response short-circuits the binary phase and its code is returned.
func (c *Client) UploadFile(ctx context.Context, folderID int64, fileName, filePath, contentType string, userID int64) (int, Kind) {
	info, err := os.Stat(filePath)
	if err != nil {
		c.log.Error("upload source file does not exist, leaving upload",
			zap.String("file", filePath), zap.Error(err))
		return 0, LocalIO
	}

	c.log.Info("attempting upload",
		zap.String("file", fileName),
		zap.Int64("folder_id", folderID),
		zap.Int64("user_id", userID))

	form := url.Values{}
	form.Set("name", fileName)
	form.Set("size", strconv.FormatInt(info.Size(), 10))
	form.Set("content_type", contentType)
	form.Set("as_user_id", strconv.FormatInt(userID, 10))

	ticketURL := fmt.Sprintf("%s/api/v1/folders/%d/files", c.BaseURL, folderID)

	resp, body, err := httpx.Do(ctx, c.HTTP, func(ctx context.Context) (*http.Request, error) {
		r, err := c.authReq(ctx, http.MethodPost, ticketURL, strings.NewReader(form.Encode()))
		if err != nil {
			return nil, err
		}
		r.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		return r, nil
	})
	if err != nil {
		var herr *httpx.HTTPError
		if errors.As(err, &herr) {
			c.log.Error("failed to initiate upload",
				zap.String("file", fileName),
				zap.Int("status", herr.StatusCode),
				zap.ByteString("body", herr.Body))
			return herr.StatusCode, OK
		}
		c.log.Error("upload ticket request failed",
			zap.String("file", fileName), zap.Error(err))
		return 0, Transport
	}

	var ticket uploadTicket
	if jerr := unmarshalTicket(body, &ticket); jerr != nil {
		c.log.Error("unexpected upload ticket shape",
			zap.String("file", fileName), zap.Error(jerr))
		return resp.StatusCode, BadShape
	}

	status, kind := c.transferFile(ctx, ticket, fileName, filePath)
	if kind != OK {
		return status, kind
	}
	if status < 200 || status >= 300 {
		c.log.Error("binary transfer rejected",
			zap.String("file", fileName), zap.Int("status", status))
	}
	return status, OK
}

// transferFile posts the file bytes to the ticket URL as a multipart form:
// the ticket parameters first, the file part last, as the platform requires.
func (c *Client) transferFile(ctx context.Context, ticket uploadTicket, fileName, filePath string) (int, Kind) {
	src, err := os.Open(filePath)
	if err != nil {
		c.log.Error("cannot open upload source",
			zap.String("file", filePath), zap.Error(err))
		return 0, LocalIO
	}
	defer src.Close()

	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	for k, v := range ticket.UploadParams {
		if err := w.WriteField(k, v); err != nil {
			return 0, LocalIO
		}
	}
	part, err := w.CreateFormFile("file", fileName)
	if err != nil {
		return 0, LocalIO
	}
	if _, err := io.Copy(part, src); err != nil {
		c.log.Error("reading upload source failed",
			zap.String("file", filePath), zap.Error(err))
		return 0, LocalIO
	}
	if err := w.Close(); err != nil {
		return 0, LocalIO
	}

	resp, _, err := httpx.Do(ctx, c.HTTP, func(ctx context.Context) (*http.Request, error) {
		r, err := http.NewRequestWithContext(ctx, http.MethodPost, ticket.UploadURL, bytes.NewReader(buf.Bytes()))
		if err != nil {
			return nil, err
		}
		r.Header.Set("Content-Type", w.FormDataContentType())
		return r, nil
	})
	if err != nil {
		var herr *httpx.HTTPError
		if errors.As(err, &herr) {
			c.log.Error("binary transfer failed",
				zap.String("file", fileName),
				zap.Int("status", herr.StatusCode),
				zap.ByteString("body", herr.Body))
			return herr.StatusCode, OK
		}
		c.log.Error("binary transfer request failed",
			zap.String("file", fileName), zap.Error(err))
		return 0, Transport
	}
	return resp.StatusCode, OK
}

// RemainingSpaceMB queries the user's storage quota and returns the remaining
// space in megabytes. The value may be negative when usage exceeds the quota.
// It is consulted only as a diagnostic after a failed upload.
func (c *Client) RemainingSpaceMB(ctx context.Context, userID int64) (float64, Kind) {
	u := fmt.Sprintf("%s/api/v1/users/%d/files/quota", c.BaseURL, userID)

	var q quotaResult
	err := httpx.DoJSON(ctx, c.HTTP, func(ctx context.Context) (*http.Request, error) {
		return c.authReq(ctx, http.MethodGet, u, nil)
	}, &q)
	if err != nil {
		var herr *httpx.HTTPError
		if errors.As(err, &herr) {
			c.log.Error("failed to retrieve quota information",
				zap.Int64("user_id", userID),
				zap.Int("status", herr.StatusCode),
				zap.ByteString("body", herr.Body))
			return 0, Transport
		}
		var jerr *httpx.JSONError
		if errors.As(err, &jerr) {
			c.log.Error("quota response did not parse", zap.Int64("user_id", userID), zap.Error(err))
			return 0, BadShape
		}
		c.log.Error("quota request failed", zap.Int64("user_id", userID), zap.Error(err))
		return 0, Transport
	}

	if q.Quota == nil || q.QuotaUsed == nil {
		c.log.Error("quota response missing expected fields", zap.Int64("user_id", userID))
		return 0, BadShape
	}

	const mb = 1024 * 1024
	return (*q.Quota - *q.QuotaUsed) / mb, OK
}
