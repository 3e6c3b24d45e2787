// Command chatcli is a terminal client for the support chat API. Each input
// line is posted as a chat message and the streamed reply is printed as it
// arrives.
//
//	chatcli -addr http://localhost:4000 -name Asha
//
// Commands: /new starts a fresh conversation, /quit exits.
package main

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/google/uuid"

	"github.com/tbourn/go-support-chat/internal/stream"
)

type client struct {
	hc    *http.Client
	url   string
	name  string
	idem  bool
	out   io.Writer
	state *stream.ClientState
}

type chatRequest struct {
	Message string `json:"message"`
	Name    string `json:"name"`
	ID      string `json:"id,omitempty"`
}

func main() {
	addr := flag.String("addr", "http://localhost:4000", "server base URL")
	base := flag.String("base", "/api", "API base path")
	name := flag.String("name", "", "display name (required)")
	idem := flag.Bool("idempotent", true, "send an Idempotency-Key with every message")
	flag.Parse()

	if strings.TrimSpace(*name) == "" {
		fmt.Fprintln(os.Stderr, "chatcli: -name is required")
		flag.Usage()
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	c := &client{
		hc:    &http.Client{},
		url:   strings.TrimRight(*addr, "/") + strings.TrimRight(*base, "/") + "/chat/messages",
		name:  *name,
		idem:  *idem,
		out:   os.Stdout,
		state: stream.NewClientState(),
	}
	c.state.StartConversation(c.name)

	fmt.Fprintln(c.out, "Type a message and press Enter. Commands: /new, /quit")

	lines := make(chan string)
	go func() {
		defer close(lines)
		sc := bufio.NewScanner(os.Stdin)
		for sc.Scan() {
			lines <- sc.Text()
		}
	}()

	for {
		fmt.Fprint(c.out, "> ")
		var line string
		select {
		case <-ctx.Done():
			fmt.Fprintln(c.out, "\nInterrupted")
			return
		case l, ok := <-lines:
			if !ok {
				return
			}
			line = strings.TrimSpace(l)
		}

		switch line {
		case "":
			continue
		case "/quit":
			fmt.Fprintln(c.out, "Bye!")
			return
		case "/new":
			c.state.StartConversation(c.name)
			fmt.Fprintln(c.out, "(new conversation)")
			continue
		}

		if err := c.send(ctx, line); err != nil && ctx.Err() == nil {
			fmt.Fprintf(os.Stderr, "chatcli: %v\n", err)
		}
	}
}

// send runs one turn: the reply is printed delta by delta and the reducer
// tracks the conversation id the server assigns.
func (c *client) send(ctx context.Context, text string) error {
	r, err := c.state.BeginTurn(c.state.ActiveID(), text)
	if err != nil {
		return err
	}

	body, err := json.Marshal(chatRequest{Message: text, Name: c.name, ID: r.RequestID()})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.idem {
		req.Header.Set("Idempotency-Key", uuid.NewString())
	}

	resp, err := c.hc.Do(req)
	if err != nil {
		r.Fail(err)
		fmt.Fprintln(c.out, stream.Apology)
		return err
	}

	for e := range stream.Decode(ctx, resp) {
		if d, ok := e.(stream.ContentDelta); ok {
			fmt.Fprint(c.out, d.Text)
		}
		switch r.Apply(e) {
		case stream.Completed:
			fmt.Fprintln(c.out)
		case stream.Failed:
			// Partial text stays on screen; otherwise apologize.
			if r.Content() == "" {
				fmt.Fprint(c.out, stream.Apology)
			}
			if ev, ok := e.(stream.Error); ok && ev.Reason != "" {
				fmt.Fprintf(c.out, " [%s]", ev.Reason)
			}
			fmt.Fprintln(c.out)
		}
	}
	return nil
}
