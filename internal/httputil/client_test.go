package httputil

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestNewServiceClient(t *testing.T) {
	client := NewServiceClient(ServiceClientConfig{
		BaseURL:    "http://localhost:8080",
		Timeout:    10 * time.Second,
		MaxRetries: 3,
	})

	if client == nil {
		t.Fatal("NewServiceClient() returned nil")
	}
	if client.baseURL != "http://localhost:8080" {
		t.Errorf("baseURL = %s, want http://localhost:8080", client.baseURL)
	}
	if client.maxRetries != 3 {
		t.Errorf("maxRetries = %d, want 3", client.maxRetries)
	}
}

func TestNewServiceClient_Defaults(t *testing.T) {
	client := NewServiceClient(ServiceClientConfig{
		BaseURL: "http://localhost:8080/",
	})

	if client.maxRetries != 2 {
		t.Errorf("default maxRetries = %d, want 2", client.maxRetries)
	}
	if client.baseURL != "http://localhost:8080" {
		t.Errorf("baseURL should be trimmed, got %s", client.baseURL)
	}
}

func TestServiceClient_Post(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("Method = %s, want POST", r.Method)
		}
		if r.Header.Get("Content-Type") != "application/json" {
			t.Errorf("Content-Type = %s, want application/json", r.Header.Get("Content-Type"))
		}

		var body map[string]string
		json.NewDecoder(r.Body).Decode(&body)
		if body["channel"] != "whatsapp" {
			t.Errorf("body[channel] = %s, want whatsapp", body["channel"])
		}

		w.WriteHeader(http.StatusCreated)
	}))
	defer server.Close()

	client := NewServiceClient(ServiceClientConfig{
		BaseURL: server.URL,
	})

	resp, err := client.Post(context.Background(), "/test", map[string]string{"channel": "whatsapp"})
	if err != nil {
		t.Fatalf("Post() error = %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated {
		t.Errorf("StatusCode = %d, want 201", resp.StatusCode)
	}
}

func TestServiceClient_AttachesBearerToken(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer internal-token" {
			t.Errorf("Authorization = %q, want Bearer internal-token", got)
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	client := NewServiceClient(ServiceClientConfig{
		BaseURL: server.URL,
		Token:   "internal-token",
	})

	resp, err := client.Get(context.Background(), "/test")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	resp.Body.Close()
}

func TestServiceClient_RetryOnAuthFailure(t *testing.T) {
	attempts := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		if attempts < 3 {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	client := NewServiceClient(ServiceClientConfig{
		BaseURL:    server.URL,
		MaxRetries: 3,
	})

	resp, err := client.Get(context.Background(), "/test")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	resp.Body.Close()

	if attempts != 3 {
		t.Errorf("attempts = %d, want 3", attempts)
	}
	if resp.StatusCode != http.StatusOK {
		t.Errorf("StatusCode = %d, want 200", resp.StatusCode)
	}
}

func TestDecodeResponse_Success(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		json.NewEncoder(w).Encode(map[string]string{"message_id": "wamid.1"})
	}))
	defer server.Close()

	resp, err := http.Get(server.URL)
	if err != nil {
		t.Fatalf("http.Get() error = %v", err)
	}

	var result map[string]string
	if err := DecodeResponse(resp, &result); err != nil {
		t.Fatalf("DecodeResponse() error = %v", err)
	}

	if result["message_id"] != "wamid.1" {
		t.Errorf("result[message_id] = %s, want wamid.1", result["message_id"])
	}
}

func TestDecodeResponse_Error(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte("bad request"))
	}))
	defer server.Close()

	resp, err := http.Get(server.URL)
	if err != nil {
		t.Fatalf("http.Get() error = %v", err)
	}

	err = DecodeResponse(resp, nil)
	if err == nil {
		t.Fatal("DecodeResponse() should return error for 4xx status")
	}
	if !strings.Contains(err.Error(), "bad request") {
		t.Errorf("error should carry the response body, got %v", err)
	}
}

func TestReadAllWithLimit_Truncates(t *testing.T) {
	body, truncated, err := ReadAllWithLimit(strings.NewReader("0123456789"), 4)
	if err != nil {
		t.Fatalf("ReadAllWithLimit() error = %v", err)
	}
	if !truncated {
		t.Fatal("expected truncation")
	}
	if string(body) != "0123" {
		t.Errorf("body = %q, want 0123", body)
	}
}

func TestReadAllStrict_RejectsOversized(t *testing.T) {
	if _, err := ReadAllStrict(strings.NewReader("0123456789"), 4); err == nil {
		t.Fatal("expected error for oversized body")
	}
}
