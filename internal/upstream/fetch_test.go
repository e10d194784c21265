package upstream

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestFetchSnapshotsResponse(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/javascript")
		w.Header().Set("Connection", "keep-alive")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("console.log(1)"))
	}))
	defer server.Close()

	resp, err := Fetch(context.Background(), server.Client(), server.URL+"/app.js", false)
	if err != nil {
		t.Fatalf("fetch error: %v", err)
	}
	if !resp.OK() {
		t.Fatalf("expected OK response, got %d", resp.Status)
	}
	if string(resp.Body) != "console.log(1)" {
		t.Fatalf("body mismatch: %s", resp.Body)
	}
	if resp.Header.Get("Content-Type") != "application/javascript" {
		t.Fatalf("content type lost: %v", resp.Header)
	}
	if resp.Header.Get("Connection") != "" {
		t.Fatalf("hop-by-hop header must be stripped")
	}
	if resp.Key != server.URL+"/app.js" {
		t.Fatalf("key mismatch: %s", resp.Key)
	}
}

func TestFetchBypassSetsNoCacheHeaders(t *testing.T) {
	var gotCacheControl, gotPragma string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotCacheControl = r.Header.Get("Cache-Control")
		gotPragma = r.Header.Get("Pragma")
	}))
	defer server.Close()

	if _, err := Fetch(context.Background(), server.Client(), server.URL+"/", true); err != nil {
		t.Fatalf("fetch error: %v", err)
	}
	if gotCacheControl != "no-cache" || gotPragma != "no-cache" {
		t.Fatalf("bypass headers missing: %q %q", gotCacheControl, gotPragma)
	}
}

func TestFetchRelaysErrorStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "gone", http.StatusGone)
	}))
	defer server.Close()

	resp, err := Fetch(context.Background(), server.Client(), server.URL+"/gone", false)
	if err != nil {
		t.Fatalf("HTTP error status must not be a transport failure: %v", err)
	}
	if resp.OK() {
		t.Fatalf("410 must not be OK")
	}
}

func TestFetchFailsWhenServerUnreachable(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	client := server.Client()
	url := server.URL + "/app.js"
	server.Close()

	if _, err := Fetch(context.Background(), client, url, false); err == nil {
		t.Fatalf("unreachable server must yield an error")
	}
}
