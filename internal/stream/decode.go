package stream

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"unicode/utf8"
)

const (
	readChunk    = 4 << 10
	maxErrorBody = 64 << 10
)

// Decode reads a streamed chat response and yields its events on the returned
// channel, which is closed after a terminal Done or Error. The body is closed
// when decoding ends or ctx is cancelled.
//
// A non-2xx response yields a single Error carrying the JSON "error" field of
// the body. Otherwise Thinking is sent on the first bytes, every read becomes
// a ContentDelta (split on rune boundaries), and EOF yields Done with the
// x-chat-id header.
func Decode(ctx context.Context, resp *http.Response) <-chan Event {
	out := make(chan Event, 16)
	go func() {
		defer close(out)
		defer resp.Body.Close()

		send := func(e Event) bool {
			select {
			case out <- e:
				return true
			case <-ctx.Done():
				return false
			}
		}

		if resp.StatusCode < 200 || resp.StatusCode > 299 {
			send(Error{Reason: errorReason(resp)})
			return
		}
		id := resp.Header.Get(HeaderChatID)

		stop := context.AfterFunc(ctx, func() { _ = resp.Body.Close() })
		defer stop()

		buf := make([]byte, readChunk)
		var pending []byte
		started := false
		for {
			n, err := resp.Body.Read(buf)
			if n > 0 {
				if !started {
					started = true
					if !send(Thinking{}) {
						return
					}
				}
				pending = append(pending, buf[:n]...)
				if cut := completeRunes(pending); cut > 0 {
					text := string(pending[:cut])
					pending = append(pending[:0], pending[cut:]...)
					if !send(ContentDelta{Text: text}) {
						return
					}
				}
			}
			if errors.Is(err, io.EOF) {
				if len(pending) > 0 && !send(ContentDelta{Text: string(pending)}) {
					return
				}
				send(Done{ConversationID: id})
				return
			}
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				send(Error{Reason: err.Error()})
				return
			}
		}
	}()
	return out
}

// completeRunes returns the length of the longest prefix of b that does not
// end inside a multi-byte rune.
func completeRunes(b []byte) int {
	for i := len(b) - 1; i >= 0 && i >= len(b)-utf8.UTFMax; i-- {
		if utf8.RuneStart(b[i]) {
			if utf8.FullRune(b[i:]) {
				return len(b)
			}
			return i
		}
	}
	return len(b)
}

func errorReason(resp *http.Response) string {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	var payload struct {
		Error string `json:"error"`
	}
	if json.Unmarshal(body, &payload) == nil && strings.TrimSpace(payload.Error) != "" {
		return payload.Error
	}
	return fmt.Sprintf("request failed: %d %s", resp.StatusCode, http.StatusText(resp.StatusCode))
}
