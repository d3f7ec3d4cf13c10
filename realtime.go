package main

import (
	"bufio"
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"strings"

	"github.com/gorilla/websocket"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/satriahrh/cocoa-fruit/gateway/domain"
)

func newRealtimeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "realtime",
		Short: "Open a realtime session and talk to it over stdin",
		Long: `Logs in, mints a realtime ticket and bridges stdin lines to the session as
text turns. Replies are printed as they arrive; type "exit" to quit.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			client, err := loggedInClient(ctx, cmd)
			if err != nil {
				return err
			}
			voice, _ := cmd.Flags().GetString("voice")
			instructions, _ := cmd.Flags().GetString("instructions")

			var secret struct {
				Ticket string `json:"ticket"`
				URL    string `json:"url"`
			}
			if err := client.postJSON(ctx, "/api/v1/ai/realtime/client-secret", map[string]string{
				"voice":        voice,
				"instructions": instructions,
			}, &secret); err != nil {
				return fmt.Errorf("requesting realtime ticket: %w", err)
			}

			conn, _, err := websocket.DefaultDialer.DialContext(ctx, websocketURL(client.baseURL, secret.URL), nil)
			if err != nil {
				return fmt.Errorf("connecting to realtime session: %w", err)
			}
			defer conn.Close()

			return bridgeRealtime(ctx, conn, cmd.InOrStdin(), cmd.OutOrStdout())
		},
	}
	clientFlags(cmd)
	cmd.Flags().String("voice", "", "voice for spoken replies")
	cmd.Flags().String("instructions", "", "system instructions for the session")
	return cmd
}

// websocketURL resolves a server-relative path against an http(s) base.
func websocketURL(base, path string) string {
	switch {
	case strings.HasPrefix(base, "https://"):
		base = "wss://" + strings.TrimPrefix(base, "https://")
	case strings.HasPrefix(base, "http://"):
		base = "ws://" + strings.TrimPrefix(base, "http://")
	}
	return strings.TrimRight(base, "/") + path
}

func bridgeRealtime(ctx context.Context, conn *websocket.Conn, in io.Reader, out io.Writer) error {
	g, ctx := errgroup.WithContext(ctx)
	done := make(chan struct{})

	g.Go(func() error {
		defer close(done)
		for {
			var frame domain.RealtimeFrame
			if err := conn.ReadJSON(&frame); err != nil {
				if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
					return nil
				}
				return err
			}
			printFrame(out, frame)
		}
	})

	g.Go(func() error {
		fmt.Fprintln(out, `Enter messages to send (type "exit" to quit):`)
		lines := make(chan string)
		go func() {
			defer close(lines)
			scanner := bufio.NewScanner(in)
			for scanner.Scan() {
				lines <- scanner.Text()
			}
		}()
		for {
			select {
			case <-ctx.Done():
				return nil
			case <-done:
				return nil
			case line, ok := <-lines:
				if !ok || strings.TrimSpace(line) == "exit" {
					return conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				}
				if strings.TrimSpace(line) == "" {
					continue
				}
				if err := conn.WriteJSON(domain.RealtimeFrame{Type: domain.RealtimeText, Text: line}); err != nil {
					return err
				}
			}
		}
	})

	return g.Wait()
}

func printFrame(out io.Writer, frame domain.RealtimeFrame) {
	switch frame.Type {
	case domain.RealtimeText:
		fmt.Fprint(out, frame.Text)
	case domain.RealtimeAudio:
		n := base64.StdEncoding.DecodedLen(len(frame.Data))
		fmt.Fprintf(out, "[audio ~%d bytes %s]", n, frame.MimeType)
	case domain.RealtimeTurnComplete:
		fmt.Fprintln(out)
	case domain.RealtimeInterrupted:
		fmt.Fprintln(out, "[interrupted]")
	case domain.RealtimeError:
		fmt.Fprintf(out, "\n[error] %s\n", frame.Error)
	}
}
