package http

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strings"
)

// Request represents an HTTP request
type Request struct {
	// Name tags the request's sub-metrics, e.g. "CreateBooking".
	Name string

	// ExpectedStatuses lists the status codes that do not count towards
	// http_req_failed. Empty means any 2xx.
	ExpectedStatuses []int

	Method  string
	Path    string
	Headers map[string]string
	Body    interface{}
}

// NewRequest creates a new HTTP request
func NewRequest(method, path string) *Request {
	return &Request{
		Method:  method,
		Path:    path,
		Headers: make(map[string]string),
	}
}

// Named sets the metric tag of the request
func (r *Request) Named(name string) *Request {
	r.Name = name
	return r
}

// Expect sets the status codes that count as a successful request
func (r *Request) Expect(codes ...int) *Request {
	r.ExpectedStatuses = codes
	return r
}

// IsExpected reports whether status counts as a successful request.
func (r *Request) IsExpected(status int) bool {
	if len(r.ExpectedStatuses) == 0 {
		return status >= 200 && status < 300
	}
	for _, code := range r.ExpectedStatuses {
		if code == status {
			return true
		}
	}
	return false
}

// WithHeader adds a header to the request
func (r *Request) WithHeader(key, value string) *Request {
	r.Headers[key] = value
	return r
}

// WithBody sets the body of the request
func (r *Request) WithBody(body interface{}) *Request {
	r.Body = body
	return r
}

// Build constructs an http.Request bound to ctx from the Request
func (r *Request) Build(ctx context.Context, baseURL string) (*http.Request, error) {
	reqURL, err := url.Parse(baseURL)
	if err != nil {
		return nil, err
	}

	// Join the base URL path with the request path. The request path may
	// already contain escaped segments such as a token.
	rawPath := reqURL.EscapedPath()
	if rawPath == "" {
		rawPath = "/" + strings.TrimLeft(r.Path, "/")
	} else {
		rawPath = strings.TrimRight(rawPath, "/") + "/" + strings.TrimLeft(r.Path, "/")
	}
	path, err := url.PathUnescape(rawPath)
	if err != nil {
		return nil, err
	}
	reqURL.Path = path
	reqURL.RawPath = rawPath

	headers := make(map[string]string, len(r.Headers)+1)
	for key, value := range r.Headers {
		headers[key] = value
	}

	var bodyReader io.Reader
	if r.Body != nil {
		switch body := r.Body.(type) {
		case string:
			bodyReader = strings.NewReader(body)
		case []byte:
			bodyReader = bytes.NewReader(body)
		case io.Reader:
			bodyReader = body
		default:
			// Assume JSON for other types
			jsonBody, err := json.Marshal(body)
			if err != nil {
				return nil, err
			}
			bodyReader = bytes.NewReader(jsonBody)
			if _, ok := headers["Content-Type"]; !ok {
				headers["Content-Type"] = "application/json"
			}
		}
	}

	req, err := http.NewRequestWithContext(ctx, r.Method, reqURL.String(), bodyReader)
	if err != nil {
		return nil, err
	}

	for key, value := range headers {
		req.Header.Set(key, value)
	}

	return req, nil
}
