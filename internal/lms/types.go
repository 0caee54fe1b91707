package lms

import (
	"encoding/json"
	"errors"
)

// Kind tags the outcome of a platform operation. The dispatcher switches on
// the tag; it never inspects error strings or catches anything broader.
type Kind int

const (
	// OK means the operation produced a value. For UploadFile the value is an
	// HTTP status code, which may itself be non-2xx.
	OK Kind = iota

	// NotFound: the search term matched no platform user (empty result or
	// 404). Skipped silently by the caller.
	NotFound

	// Transport: connection failure or a non-2xx protocol response on an
	// operation with no status-code result.
	Transport

	// BadShape: the platform answered 2xx but the JSON body was missing the
	// expected fields.
	BadShape

	// LocalIO: the local source file was missing or unreadable. No network
	// call is made in this case.
	LocalIO
)

func (k Kind) String() string {
	switch k {
	case OK:
		return "ok"
	case NotFound:
		return "not_found"
	case Transport:
		return "transport"
	case BadShape:
		return "bad_shape"
	case LocalIO:
		return "local_io"
	}
	return "unknown"
}

type userResult struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

type folderResult struct {
	ID       int64  `json:"id"`
	Name     string `json:"name"`
	FullName string `json:"full_name"`
}

type uploadTicket struct {
	UploadURL    string            `json:"upload_url"`
	UploadParams map[string]string `json:"upload_params"`
}

func unmarshalTicket(body []byte, out *uploadTicket) error {
	if err := json.Unmarshal(body, out); err != nil {
		return err
	}
	if out.UploadURL == "" {
		return errors.New("ticket response missing upload_url")
	}
	return nil
}

// quotaResult uses pointers so a missing field is distinguishable from zero.
type quotaResult struct {
	Quota     *float64 `json:"quota"`
	QuotaUsed *float64 `json:"quota_used"`
}
