package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/spf13/cobra"
)

func newChatCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "chat [prompt]",
		Short: "Stream a chat completion from a running gateway",
		Long: `Logs in, then streams the reply to prompt. With --audio the recording is
transcribed first and the transcript becomes the prompt.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			client, err := loggedInClient(ctx, cmd)
			if err != nil {
				return err
			}

			prompt := strings.Join(args, " ")
			if audioPath, _ := cmd.Flags().GetString("audio"); audioPath != "" {
				prompt, err = transcribeFile(cmd, client, audioPath)
				if err != nil {
					return err
				}
			}
			if strings.TrimSpace(prompt) == "" {
				return errors.New("a prompt or --audio is required")
			}

			body := map[string]any{"input": prompt}
			if model, _ := cmd.Flags().GetString("model"); model != "" {
				body["model"] = model
			}
			if id, _ := cmd.Flags().GetString("conversation"); id != "" {
				body["conversationId"] = id
			}
			out := cmd.OutOrStdout()
			if _, err := client.streamText(ctx, body, func(delta string) { fmt.Fprint(out, delta) }); err != nil {
				fmt.Fprintln(out)
				return err
			}
			fmt.Fprintln(out)
			return nil
		},
	}
	clientFlags(cmd)
	cmd.Flags().String("model", "", "model override")
	cmd.Flags().String("conversation", "", "conversation id to record the exchange in")
	cmd.Flags().String("audio", "", "audio file to transcribe and send as the prompt")
	return cmd
}

func transcribeFile(cmd *cobra.Command, client *gatewayClient, path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("opening audio: %w", err)
	}
	defer f.Close()

	mtype, err := mimetype.DetectReader(f)
	if err != nil {
		return "", fmt.Errorf("detecting audio type: %w", err)
	}
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return "", err
	}
	contentType := mtype.String()
	if !strings.HasPrefix(contentType, "audio/") {
		contentType = "application/octet-stream"
	}

	text, err := client.uploadAudio(cmd.Context(), f, contentType)
	if err != nil {
		return "", fmt.Errorf("transcribing %s: %w", filepath.Base(path), err)
	}
	fmt.Fprintf(cmd.ErrOrStderr(), "> %s\n", text)
	return text, nil
}
