package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/zhouzirui/streamchat/internal/model/chat"
	chatService "github.com/zhouzirui/streamchat/internal/service/chat"
)

func (a *app) newAskCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "ask <message>",
		Short: "Send one message and print the streamed reply",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := a.setup()
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}

			engine, _, err := buildEngine(ctx, cfg)
			if err != nil {
				return err
			}
			return ask(ctx, engine, strings.Join(args, " "), cmd.OutOrStdout())
		},
	}
}

// ask submits message and writes the reply to out as it streams.
func ask(ctx context.Context, engine *chatService.Engine, message string, out io.Writer) error {
	if out == nil {
		out = os.Stdout
	}

	sub := engine.Subscribe(0)
	defer sub.Close()

	session, done, err := engine.SubmitAsync(ctx, message)
	if err != nil {
		return err
	}

	var printed strings.Builder
	for ev := range sub.Events() {
		if ev.SessionID != session.ID {
			continue
		}
		switch ev.Kind {
		case chat.EventDelta:
			printed.WriteString(ev.Delta)
			fmt.Fprint(out, ev.Delta)
		case chat.EventReplaced:
			fmt.Fprint(out, "\n"+ev.Content)
		case chat.EventIdle:
			fmt.Fprintln(out)
			if ev.Failed {
				return fmt.Errorf("no reply received")
			}
			return nil
		}
	}

	// The subscription lagged; finish from whatever the transcript settled on.
	<-done
	for _, msg := range engine.Transcript() {
		if msg.ID != session.AssistantMessageID {
			continue
		}
		if msg.Content == chat.ErrorMarker {
			fmt.Fprintln(out, "\n"+msg.Content)
			return fmt.Errorf("no reply received")
		}
		fmt.Fprintln(out, strings.TrimPrefix(msg.Content, printed.String()))
	}
	return nil
}
