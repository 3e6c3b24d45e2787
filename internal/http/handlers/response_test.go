package handlers

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

func TestFail_Envelope(t *testing.T) {
	gin.SetMode(gin.TestMode)

	tests := []struct {
		status  int
		code    string
		msg     string
		wantLog bool
	}{
		{http.StatusNotFound, ErrCodeNotFound, "Conversation not found", false},
		{http.StatusBadRequest, ErrCodeBadRequest, "Name is required", false},
		{http.StatusInternalServerError, ErrCodeChatFailed, "kaboom", true},
	}
	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			var buf bytes.Buffer
			logger := zerolog.New(&buf)

			r := gin.New()
			r.Use(func(c *gin.Context) {
				c.Writer.Header().Set("X-Request-ID", "rid-"+tt.code)
				c.Set("logger", &logger)
				c.Next()
			})
			r.GET("/x", func(c *gin.Context) { Fail(c, tt.status, tt.code, tt.msg) })

			w := httptest.NewRecorder()
			r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/x", nil))

			if w.Code != tt.status {
				t.Fatalf("status = %d; want %d", w.Code, tt.status)
			}
			var resp ErrorResponse
			if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
				t.Fatalf("json: %v", err)
			}
			want := ErrorResponse{Error: tt.msg, Code: tt.code, RequestID: "rid-" + tt.code}
			if resp != want {
				t.Fatalf("body = %+v; want %+v", resp, want)
			}
			if logged := strings.Contains(buf.String(), `"level":"error"`); logged != tt.wantLog {
				t.Fatalf("error logged = %v; want %v (%s)", logged, tt.wantLog, buf.String())
			}
		})
	}
}

func TestSuccessEnvelopes(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/agents", func(c *gin.Context) { okData(c, []string{"ORDER", "BILLING"}) })
	r.DELETE("/conversations/:id", func(c *gin.Context) { okMessage(c, "Conversation deleted successfully") })

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/agents", nil))
	var data struct {
		Success bool     `json:"success"`
		Data    []string `json:"data"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &data); err != nil {
		t.Fatalf("json: %v", err)
	}
	if w.Code != http.StatusOK || !data.Success || len(data.Data) != 2 {
		t.Fatalf("unexpected data envelope %d %+v", w.Code, data)
	}

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodDelete, "/conversations/c1", nil))
	var msg MessageResponse
	if err := json.Unmarshal(w.Body.Bytes(), &msg); err != nil {
		t.Fatalf("json: %v", err)
	}
	if w.Code != http.StatusOK || !msg.Success || msg.Message != "Conversation deleted successfully" {
		t.Fatalf("unexpected message envelope %d %+v", w.Code, msg)
	}
}
