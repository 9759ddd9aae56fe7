package serper

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"honest-report-service/metrics"
)

func TestSearchDiscussions_ParsesOrganicResults(t *testing.T) {
	var gotQuery string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/search" {
			t.Errorf("unexpected path %q", r.URL.Path)
		}
		if r.Header.Get("X-API-KEY") != "test-key" {
			t.Errorf("missing API key header")
		}
		var req map[string]any
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("bad request body: %v", err)
		}
		gotQuery, _ = req["q"].(string)

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"organic":[
			{"title":"Avis iPhone 13 ?","link":"https://reddit.com/r/france/abc","snippet":"Très bon téléphone"},
			{"title":"iPhone 13 un an après","link":"https://reddit.com/r/apple/def","snippet":"La batterie tient"}
		]}`))
	}))
	defer srv.Close()

	c := NewClientWithBaseURL("test-key", 10, srv.URL)
	results, err := c.SearchDiscussions(context.Background(), "iphone 13")
	if err != nil {
		t.Fatalf("SearchDiscussions: %v", err)
	}

	if !strings.Contains(gotQuery, "site:reddit.com") {
		t.Errorf("query not scoped to reddit: %q", gotQuery)
	}
	if len(results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(results))
	}
	if results[0].Title != "Avis iPhone 13 ?" || results[0].Snippet == "" {
		t.Errorf("unexpected first result: %+v", results[0])
	}
}

func TestSearchDiscussions_EmptyIsNotAnError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"organic":[]}`))
	}))
	defer srv.Close()

	c := NewClientWithBaseURL("k", 10, srv.URL)
	results, err := c.SearchDiscussions(context.Background(), "produit introuvable")
	if err != nil {
		t.Fatalf("empty result set must not be an error, got %v", err)
	}
	if len(results) != 0 {
		t.Fatalf("expected no results, got %d", len(results))
	}
}

func TestSearchDiscussions_AuthErrorPropagates(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"message":"Unauthorized"}`, http.StatusForbidden)
	}))
	defer srv.Close()

	c := NewClientWithBaseURL("bad-key", 10, srv.URL)
	if _, err := c.SearchDiscussions(context.Background(), "iphone 13"); err == nil {
		t.Fatal("expected error on auth failure")
	}
}

func TestSearchImage_HandlesResponseShapeVariants(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
	}{
		{
			name: "imageUrl field",
			body: `{"images":[{"imageUrl":"https://cdn.example.com/a.jpg"}]}`,
			want: "https://cdn.example.com/a.jpg",
		},
		{
			name: "original field",
			body: `{"images":[{"original":"https://img.example.com/b.png"}]}`,
			want: "https://img.example.com/b.png",
		},
		{
			name: "link field only",
			body: `{"images":[{"link":"https://shop.example.com/c.webp"}]}`,
			want: "https://shop.example.com/c.webp",
		},
		{
			name: "skips invalid candidates within an item",
			body: `{"images":[{"imageUrl":"data:image/png;base64,xxxx","original":"https://img.example.com/d.jpg"}]}`,
			want: "https://img.example.com/d.jpg",
		},
		{
			name: "skips redirect-only items",
			body: `{"images":[{"imageUrl":"https://www.google.com/url?q=x"},{"imageUrl":"https://img.example.com/e.jpg"}]}`,
			want: "https://img.example.com/e.jpg",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if r.URL.Path != "/images" {
					t.Errorf("unexpected path %q", r.URL.Path)
				}
				w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			c := NewClientWithBaseURL("k", 10, srv.URL)
			got, ok := c.SearchImage(context.Background(), "iphone 13")
			if !ok {
				t.Fatal("expected an image URL")
			}
			if got != tt.want {
				t.Errorf("SearchImage = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestSearchImage_NeverErrors(t *testing.T) {
	// Auth failure converts to not-found.
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "forbidden", http.StatusForbidden)
	}))
	c := NewClientWithBaseURL("bad", 10, srv.URL)
	if url, ok := c.SearchImage(context.Background(), "q"); ok || url != "" {
		t.Errorf("auth failure should yield not-found, got %q, %v", url, ok)
	}
	srv.Close()

	// Dead server converts to not-found too.
	if url, ok := c.SearchImage(context.Background(), "q"); ok || url != "" {
		t.Errorf("network failure should yield not-found, got %q, %v", url, ok)
	}
}

func TestSearchImage_CountsOutcomes(t *testing.T) {
	success := metrics.SearchRequestsTotal.WithLabelValues("image", "success")
	miss := metrics.SearchRequestsTotal.WithLabelValues("image", "miss")
	errCount := metrics.SearchRequestsTotal.WithLabelValues("image", "error")
	baseSuccess := testutil.ToFloat64(success)
	baseMiss := testutil.ToFloat64(miss)
	baseErr := testutil.ToFloat64(errCount)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req map[string]any
		_ = json.NewDecoder(r.Body).Decode(&req)
		if req["q"] == "hit" {
			_ = json.NewEncoder(w).Encode(map[string]any{
				"images": []map[string]string{{"imageUrl": "https://img.example.com/p.jpg"}},
			})
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"images": []map[string]string{}})
	}))
	defer srv.Close()

	c := NewClientWithBaseURL("test-key", 10, srv.URL)
	if _, ok := c.SearchImage(context.Background(), "hit"); !ok {
		t.Fatal("expected a hit")
	}
	if _, ok := c.SearchImage(context.Background(), "nothing"); ok {
		t.Fatal("expected a miss")
	}

	dead := NewClientWithBaseURL("test-key", 10, "http://127.0.0.1:0")
	if _, ok := dead.SearchImage(context.Background(), "hit"); ok {
		t.Fatal("expected a transport failure")
	}

	if got := testutil.ToFloat64(success); got != baseSuccess+1 {
		t.Errorf("success count = %v, want %v", got, baseSuccess+1)
	}
	if got := testutil.ToFloat64(miss); got != baseMiss+1 {
		t.Errorf("miss count = %v, want %v", got, baseMiss+1)
	}
	if got := testutil.ToFloat64(errCount); got != baseErr+1 {
		t.Errorf("error count = %v, want %v", got, baseErr+1)
	}
}

func TestIsValidImageURL(t *testing.T) {
	tests := []struct {
		url   string
		valid bool
	}{
		{"https://cdn.example.com/p.jpg", true},
		{"http://images.example.org/x.png", true},
		{"", false},
		{"data:image/jpeg;base64,abcd", false},
		{"https://www.google.com/url?q=https://real.example.com/p.jpg", false},
		{"https://encrypted-tbn0.gstatic.com/images?q=tbn", false},
		{"https://lh3.googleusercontent.com/abc", false},
		{"ftp://files.example.com/p.jpg", false},
		{"not a url at all ://", false},
	}

	for _, tt := range tests {
		t.Run(tt.url, func(t *testing.T) {
			if got := isValidImageURL(tt.url); got != tt.valid {
				t.Errorf("isValidImageURL(%q) = %v, want %v", tt.url, got, tt.valid)
			}
		})
	}
}
