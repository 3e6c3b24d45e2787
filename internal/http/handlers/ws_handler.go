// WebSocket chat relay.
//
// One socket carries many turns. The client sends {message,name,id} frames;
// the server answers each with typed event frames:
//
//	{"type":"thinking"}
//	{"type":"content","data":"<text>"}
//	{"type":"done","data":"<conversation id>"}
//	{"type":"error","data":"<reason>"}
//
// Turns run one at a time in arrival order. A read pump feeds requests and
// owns deadlines, a write pump owns the socket writes and pings, and a worker
// runs the turns in between.
package handlers

import (
	"context"
	"net/http"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/tbourn/go-support-chat/internal/http/middleware"
	"github.com/tbourn/go-support-chat/internal/services"
	"github.com/tbourn/go-support-chat/internal/stream"
)

// WSOptions tunes the WebSocket relay. Zero values take defaults.
type WSOptions struct {
	// AllowedOrigins restricts the Origin header; empty or "*" allows all.
	AllowedOrigins []string
	MaxMessageSize int64
	PingInterval   time.Duration
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
}

const (
	defaultWSMaxMessage   = 64 << 10
	defaultWSPingInterval = 30 * time.Second
	defaultWSReadTimeout  = 60 * time.Second
	defaultWSWriteTimeout = 10 * time.Second
	wsSendBuffer          = 64
)

// WithRateLimit counts every WebSocket chat frame against rl, the way the
// HTTP chain counts each POST. Nil disables the check.
func (h *Handlers) WithRateLimit(rl *middleware.RateLimiter) *Handlers {
	h.limiter = rl
	return h
}

// WithWebSocket applies opts to the relay and returns h.
func (h *Handlers) WithWebSocket(opts WSOptions) *Handlers {
	if opts.MaxMessageSize <= 0 {
		opts.MaxMessageSize = defaultWSMaxMessage
	}
	if opts.PingInterval <= 0 {
		opts.PingInterval = defaultWSPingInterval
	}
	if opts.ReadTimeout <= 0 {
		opts.ReadTimeout = defaultWSReadTimeout
	}
	if opts.ReadTimeout <= opts.PingInterval {
		opts.ReadTimeout = opts.PingInterval * 2
	}
	if opts.WriteTimeout <= 0 {
		opts.WriteTimeout = defaultWSWriteTimeout
	}
	h.ws = opts
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     originChecker(opts.AllowedOrigins),
	}
	return h
}

func originChecker(allowed []string) func(*http.Request) bool {
	set := make(map[string]struct{}, len(allowed))
	for _, o := range allowed {
		if o = strings.TrimSpace(o); o == "*" {
			return func(*http.Request) bool { return true }
		} else if o != "" {
			set[o] = struct{}{}
		}
	}
	if len(set) == 0 {
		return func(*http.Request) bool { return true }
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		_, ok := set[origin]
		return ok
	}
}

// wsRequest is one inbound chat frame.
type wsRequest struct {
	Message string `json:"message"`
	Name    string `json:"name"`
	ID      string `json:"id"`
}

// ChatSocket godoc
// @ID          chatSocket
// @Summary     Chat over WebSocket
// @Description Upgrades to a WebSocket. Send {"message","name","id"} frames; receive thinking/content/done/error event frames.
// @Tags        Chat
// @Success     101  {string}  string  "Switching Protocols"
// @Router      /chat/ws [get]
func (h *Handlers) ChatSocket(c *gin.Context) {
	lg := middleware.LoggerFrom(c)
	// Frames are counted against the address that opened the socket.
	var rateKey string
	if h.limiter != nil {
		rateKey = h.limiter.Key(c)
	}
	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// Upgrade already wrote the HTTP error.
		lg.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(c.Request.Context())
	defer cancel()

	reqs := make(chan wsRequest)
	send := make(chan stream.Frame, wsSendBuffer)

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		h.wsWritePump(ctx, cancel, conn, send, lg)
	}()
	go func() {
		defer wg.Done()
		defer close(send)
		emit := func(e stream.Event) {
			select {
			case send <- stream.ToFrame(e):
			case <-ctx.Done():
			}
		}
		for req := range reqs {
			if h.limiter != nil {
				if ok, _ := h.limiter.Take(rateKey); !ok {
					emit(stream.Error{Reason: middleware.RateLimitMessage})
					continue
				}
			}
			h.wsTurn(ctx, req, emit, lg)
		}
	}()

	h.wsReadPump(ctx, cancel, conn, reqs, lg)
	wg.Wait()
}

// wsReadPump decodes request frames until the socket fails or closes, then
// cancels in-flight work.
func (h *Handlers) wsReadPump(ctx context.Context, cancel context.CancelFunc, conn *websocket.Conn, reqs chan<- wsRequest, lg *zerolog.Logger) {
	defer close(reqs)
	defer cancel()

	conn.SetReadLimit(h.ws.MaxMessageSize)
	_ = conn.SetReadDeadline(time.Now().Add(h.ws.ReadTimeout))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(h.ws.ReadTimeout))
	})

	for {
		var req wsRequest
		if err := conn.ReadJSON(&req); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				lg.Warn().Err(err).Msg("websocket read failed")
			}
			return
		}
		_ = conn.SetReadDeadline(time.Now().Add(h.ws.ReadTimeout))
		select {
		case reqs <- req:
		case <-ctx.Done():
			return
		}
	}
}

// wsWritePump serializes frames and pings onto the socket. A write failure
// closes the socket, which unblocks the read pump.
func (h *Handlers) wsWritePump(ctx context.Context, cancel context.CancelFunc, conn *websocket.Conn, send <-chan stream.Frame, lg *zerolog.Logger) {
	ticker := time.NewTicker(h.ws.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case f, ok := <-send:
			_ = conn.SetWriteDeadline(time.Now().Add(h.ws.WriteTimeout))
			if !ok {
				_ = conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			if err := conn.WriteJSON(f); err != nil {
				lg.Warn().Err(err).Msg("websocket write failed")
				cancel()
				_ = conn.Close()
				return
			}
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(h.ws.WriteTimeout))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				cancel()
				_ = conn.Close()
				return
			}
		case <-ctx.Done():
			_ = conn.Close()
			// Drain whatever the worker still queues so it never blocks.
			for range send {
			}
			return
		}
	}
}

// wsTurn runs one chat turn and reports failures as error frames.
func (h *Handlers) wsTurn(ctx context.Context, req wsRequest, emit func(stream.Event), lg *zerolog.Logger) {
	msg := sanitizeContent(req.Message)
	if utf8.RuneCountInString(msg) > maxMessageRunes {
		emit(stream.Error{Reason: msgMessageTooLong})
		return
	}
	turn, err := h.chat.Prepare(ctx, services.HandleInput{
		Message:        msg,
		Name:           req.Name,
		ConversationID: strings.TrimSpace(req.ID),
	})
	if err != nil {
		status, _, text := prepareError(err)
		if status >= http.StatusInternalServerError {
			lg.Error().Err(err).Msg("websocket turn prepare failed")
		}
		emit(stream.Error{Reason: text})
		return
	}
	done := middleware.TrackStream("ws")
	defer done()
	if _, err := h.chat.Run(ctx, turn, emit); err != nil {
		if ctx.Err() == nil {
			lg.Error().Err(err).Str("chat_id", turn.ConversationID).Msg("websocket turn failed")
		}
		emit(stream.Error{Reason: msgProcessFailed})
	}
}
