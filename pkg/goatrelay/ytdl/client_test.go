package ytdl

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func testClient(t *testing.T, handler http.Handler) (*Client, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	cfg := DefaultConfig()
	cfg.SearchURL = srv.URL + "/search"
	cfg.ResolveURL = srv.URL + "/resolve"
	cfg.DirectURL = srv.URL + "/direct"
	cfg.SearchTimeout = 2 * time.Second
	cfg.ResolveTimeout = 2 * time.Second
	cfg.DownloadTimeout = 2 * time.Second
	cfg.MaxDownloadBytes = 64
	return New(cfg, nil), srv
}

func TestClient_Search(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/search", func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("query"); got != "funny cats" {
			t.Errorf("query param = %q, want %q", got, "funny cats")
		}
		w.Write([]byte(`[
			{"title":"Cat One","url":"https://yt/v1","thumbnail":"https://img/1.jpg",
			 "duration":{"timestamp":"3:21"},"author":{"name":"Alice"},"ago":"2 days ago","views":1200},
			{"title":"Cat Two","url":"https://yt/v2","image":"https://img/2.jpg"}
		]`))
	})
	c, _ := testClient(t, mux)

	got, err := c.Search(context.Background(), "funny cats")
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("Search() returned %d candidates, want 2", len(got))
	}
	if got[0].Title != "Cat One" || got[0].Author.Name != "Alice" {
		t.Errorf("first candidate = %+v", got[0])
	}
	if got[1].Thumbnail() != "https://img/2.jpg" {
		t.Errorf("Thumbnail() should fall back to the image field, got %q", got[1].Thumbnail())
	}
}

func TestClient_Qualities(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		status  int
		wantErr error
		wantLen int
	}{
		{
			name:    "two options",
			body:    `{"result":true,"data":[{"quality":"360p","url":"u1"},{"quality":"720p","url":"u2","size":"12MB"}]}`,
			status:  http.StatusOK,
			wantLen: 2,
		},
		{
			name:    "result false",
			body:    `{"result":false,"data":[]}`,
			status:  http.StatusOK,
			wantErr: ErrNoStreams,
		},
		{
			name:    "empty data",
			body:    `{"result":true,"data":[]}`,
			status:  http.StatusOK,
			wantErr: ErrNoStreams,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mux := http.NewServeMux()
			mux.HandleFunc("/resolve", func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				w.Write([]byte(tt.body))
			})
			c, _ := testClient(t, mux)

			got, err := c.Qualities(context.Background(), "https://yt/v1")
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("Qualities() error = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("Qualities() error = %v", err)
			}
			if len(got) != tt.wantLen {
				t.Errorf("Qualities() returned %d options, want %d", len(got), tt.wantLen)
			}
		})
	}
}

func TestClient_ResolveDirect(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/direct", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"data":{"data":{"title":"Clip","high":"","low":"https://cdn/low.mp4"}}}`))
	})
	c, _ := testClient(t, mux)

	link, err := c.ResolveDirect(context.Background(), "https://example.com/post/1")
	if err != nil {
		t.Fatalf("ResolveDirect() error = %v", err)
	}
	if link.Title != "Clip" || link.URL() != "https://cdn/low.mp4" {
		t.Errorf("ResolveDirect() = %+v", link)
	}
}

func TestClient_Fetch(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/ok", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("0123456789"))
	})
	mux.HandleFunc("/huge", func(w http.ResponseWriter, r *http.Request) {
		w.Write(bytes.Repeat([]byte("x"), 200))
	})
	mux.HandleFunc("/gone", func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	})
	mux.HandleFunc("/slow", func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(5 * time.Second)
	})
	c, srv := testClient(t, mux)

	t.Run("success", func(t *testing.T) {
		var buf bytes.Buffer
		n, err := c.Fetch(context.Background(), srv.URL+"/ok", &buf)
		if err != nil {
			t.Fatalf("Fetch() error = %v", err)
		}
		if n != 10 || buf.String() != "0123456789" {
			t.Errorf("Fetch() = %d bytes, body %q", n, buf.String())
		}
	})

	t.Run("size limit", func(t *testing.T) {
		var buf bytes.Buffer
		_, err := c.Fetch(context.Background(), srv.URL+"/huge", &buf)
		if !errors.Is(err, ErrDownloadTooLarge) {
			t.Errorf("Fetch() error = %v, want ErrDownloadTooLarge", err)
		}
	})

	t.Run("expired link", func(t *testing.T) {
		var buf bytes.Buffer
		_, err := c.Fetch(context.Background(), srv.URL+"/gone", &buf)
		if !errors.Is(err, ErrLinkExpired) {
			t.Errorf("Fetch() error = %v, want ErrLinkExpired", err)
		}
	})

	t.Run("timeout", func(t *testing.T) {
		var buf bytes.Buffer
		_, err := c.Fetch(context.Background(), srv.URL+"/slow", &buf)
		if !errors.Is(err, ErrDownloadTimeout) {
			t.Errorf("Fetch() error = %v, want ErrDownloadTimeout", err)
		}
	})
}

func TestClient_FetchThumbnail(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/thumb.jpg", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("jpegdata"))
	})
	c, srv := testClient(t, mux)

	var buf strings.Builder
	if err := c.FetchThumbnail(context.Background(), srv.URL+"/thumb.jpg", &buf); err != nil {
		t.Fatalf("FetchThumbnail() error = %v", err)
	}
	if buf.String() != "jpegdata" {
		t.Errorf("FetchThumbnail() wrote %q", buf.String())
	}
}
