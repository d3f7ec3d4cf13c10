package main

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/term"
)

const defaultServerURL = "http://localhost:3001"

// gatewayClient talks to a running gateway the way the web app does.
type gatewayClient struct {
	baseURL string
	http    *http.Client
	token   string
}

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   string          `json:"error"`
}

func newGatewayClient(baseURL string) *gatewayClient {
	return &gatewayClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{},
	}
}

// clientFlags registers the login flags shared by the client subcommands.
func clientFlags(cmd *cobra.Command) {
	cmd.Flags().String("server", defaultServerURL, "gateway base URL")
	cmd.Flags().String("email", "", "account email")
	cmd.Flags().String("password", "", "account password (default GATEWAY_PASSWORD)")
}

func loggedInClient(ctx context.Context, cmd *cobra.Command) (*gatewayClient, error) {
	server, _ := cmd.Flags().GetString("server")
	email, _ := cmd.Flags().GetString("email")
	password, _ := cmd.Flags().GetString("password")
	if password == "" {
		password = os.Getenv("GATEWAY_PASSWORD")
	}
	if email == "" {
		return nil, errors.New("--email is required")
	}
	if password == "" {
		p, err := promptPassword(cmd)
		if err != nil {
			return nil, err
		}
		password = p
	}
	client := newGatewayClient(server)
	if err := client.login(ctx, email, password); err != nil {
		return nil, err
	}
	return client, nil
}

// promptPassword reads the password from the terminal without echo.
func promptPassword(cmd *cobra.Command) (string, error) {
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return "", errors.New("--password (or GATEWAY_PASSWORD) is required when stdin is not a terminal")
	}
	fmt.Fprint(cmd.ErrOrStderr(), "Password: ")
	password, err := term.ReadPassword(fd)
	fmt.Fprintln(cmd.ErrOrStderr())
	if err != nil {
		return "", fmt.Errorf("reading password: %w", err)
	}
	return string(password), nil
}

func (g *gatewayClient) login(ctx context.Context, email, password string) error {
	var session struct {
		Token string `json:"token"`
	}
	if err := g.postJSON(ctx, "/api/v1/auth/login", map[string]string{"email": email, "password": password}, &session); err != nil {
		return fmt.Errorf("login: %w", err)
	}
	if session.Token == "" {
		return errors.New("login: no token in response")
	}
	g.token = session.Token
	return nil
}

func (g *gatewayClient) newRequest(ctx context.Context, method, path string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, g.baseURL+path, body)
	if err != nil {
		return nil, err
	}
	if g.token != "" {
		req.Header.Set("Authorization", "Bearer "+g.token)
	}
	return req, nil
}

func (g *gatewayClient) postJSON(ctx context.Context, path string, in, out any) error {
	payload, err := json.Marshal(in)
	if err != nil {
		return err
	}
	req, err := g.newRequest(ctx, http.MethodPost, path, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := g.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	return decodeEnvelope(resp, out)
}

func decodeEnvelope(resp *http.Response, out any) error {
	var env envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return fmt.Errorf("status %d: decoding response: %w", resp.StatusCode, err)
	}
	if !env.Success || resp.StatusCode >= http.StatusBadRequest {
		return fmt.Errorf("status %d: %s", resp.StatusCode, env.Error)
	}
	if out == nil || len(env.Data) == 0 {
		return nil
	}
	return json.Unmarshal(env.Data, out)
}

type streamEvent struct {
	Type     string `json:"type"`
	Delta    string `json:"delta"`
	Response string `json:"response"`
	Error    string `json:"error"`
}

// streamText posts to the SSE endpoint and calls onDelta for every text
// delta. It returns the full response carried by the done event.
func (g *gatewayClient) streamText(ctx context.Context, body map[string]any, onDelta func(string)) (string, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return "", err
	}
	req, err := g.newRequest(ctx, http.MethodPost, "/api/v1/ai/text/stream", bytes.NewReader(payload))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "text/event-stream")
	resp, err := g.http.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if !strings.HasPrefix(resp.Header.Get("Content-Type"), "text/event-stream") {
		return "", decodeEnvelope(resp, nil)
	}

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)
	for scanner.Scan() {
		data, ok := strings.CutPrefix(scanner.Text(), "data: ")
		if !ok {
			continue
		}
		var ev streamEvent
		if err := json.Unmarshal([]byte(data), &ev); err != nil {
			return "", fmt.Errorf("decoding event: %w", err)
		}
		switch ev.Type {
		case "text":
			onDelta(ev.Delta)
		case "done":
			return ev.Response, nil
		case "error":
			return "", errors.New(ev.Error)
		}
	}
	if err := scanner.Err(); err != nil {
		return "", err
	}
	return "", errors.New("stream ended without a done event")
}

// uploadAudio streams raw audio to the transcription endpoint.
func (g *gatewayClient) uploadAudio(ctx context.Context, audio io.Reader, contentType string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, 90*time.Second)
	defer cancel()
	req, err := g.newRequest(ctx, http.MethodPost, "/api/v1/ai/audio/speech-to-text/stream", audio)
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", contentType)
	resp, err := g.http.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	var out struct {
		Text string `json:"text"`
	}
	if err := decodeEnvelope(resp, &out); err != nil {
		return "", err
	}
	return out.Text, nil
}
