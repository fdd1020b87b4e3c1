package middleware

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/andybalholm/brotli"
	"github.com/gin-gonic/gin"
)

func TestCompress(t *testing.T) {
	long := strings.Repeat("ledger-entry ", 200)

	tests := []struct {
		name    string
		body    string
		accept  string
		encoded bool
	}{
		{"large body", long, "gzip, br", true},
		{"quality param", long, "br;q=1.0", true},
		{"small body", "ok", "br", false},
		{"client without brotli", long, "gzip", false},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			r := gin.New()
			r.Use(Compress(4, 512))
			r.GET("/", func(c *gin.Context) { c.String(http.StatusOK, tc.body) })

			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.Header.Set("Accept-Encoding", tc.accept)
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)

			gotEncoded := w.Header().Get("Content-Encoding") == "br"
			if gotEncoded != tc.encoded {
				t.Fatalf("Expected encoded=%v, got %v", tc.encoded, gotEncoded)
			}

			var body []byte
			var err error
			if gotEncoded {
				body, err = io.ReadAll(brotli.NewReader(w.Body))
			} else {
				body, err = io.ReadAll(w.Body)
			}
			if err != nil {
				t.Fatalf("read body: %v", err)
			}
			if string(body) != tc.body {
				t.Errorf("body mismatch: got %d bytes, want %d", len(body), len(tc.body))
			}
		})
	}
}
