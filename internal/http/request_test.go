package http

import (
	"context"
	"io"
	"net/url"
	"testing"
)

func TestRequest_Build(t *testing.T) {
	tests := []struct {
		name    string
		baseURL string
		path    string
		want    string
	}{
		{"base without path", "http://localhost:8080", "/bookings", "http://localhost:8080/bookings"},
		{"base with path", "http://localhost:8080/api", "/bookings", "http://localhost:8080/api/bookings"},
		{"trailing slash", "http://localhost:8080/api/", "bookings", "http://localhost:8080/api/bookings"},
		{
			"escaped token",
			"http://localhost:8080/api",
			"/bookings/token/" + url.PathEscape("A/B C"),
			"http://localhost:8080/api/bookings/token/A%2FB%20C",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, err := NewRequest("GET", tt.path).Build(context.Background(), tt.baseURL)
			if err != nil {
				t.Fatalf("Build() error = %v", err)
			}
			if req.URL.String() != tt.want {
				t.Errorf("URL = %s, want %s", req.URL.String(), tt.want)
			}
		})
	}
}

func TestRequest_BuildJSONBody(t *testing.T) {
	body := map[string]interface{}{"municipality": "Porto"}

	req, err := NewRequest("POST", "/bookings").
		Named("CreateBooking").
		WithBody(body).
		Build(context.Background(), "http://localhost:8080/api")
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}

	if req.Header.Get("Content-Type") != "application/json" {
		t.Errorf("Content-Type = %s, want application/json", req.Header.Get("Content-Type"))
	}

	data, _ := io.ReadAll(req.Body)
	if string(data) != `{"municipality":"Porto"}` {
		t.Errorf("body = %s", data)
	}
}

func TestRequest_BuildInvalidBaseURL(t *testing.T) {
	if _, err := NewRequest("GET", "/x").Build(context.Background(), "://bad"); err == nil {
		t.Error("expected error for invalid base URL")
	}
}
