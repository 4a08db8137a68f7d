package main

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zhouzirui/streamchat/internal/config"
	"github.com/zhouzirui/streamchat/internal/model/chat"
	chatService "github.com/zhouzirui/streamchat/internal/service/chat"
)

type fakeSource struct {
	chunks []string
	err    error
}

func (f fakeSource) Stream(_ context.Context, _ string, onChunk func(string) error) error {
	for _, c := range f.chunks {
		if err := onChunk(c); err != nil {
			return err
		}
	}
	return f.err
}

func TestAskPrintsReply(t *testing.T) {
	engine, err := chatService.NewEngine(fakeSource{chunks: []string{"Hel", "lo"}}, chatService.Options{})
	require.NoError(t, err)

	var out bytes.Buffer
	require.NoError(t, ask(context.Background(), engine, "Hi", &out))

	assert.Equal(t, "Hello\n", out.String())
	assert.Equal(t, chat.StateIdle, engine.State())
}

func TestAskReportsFailure(t *testing.T) {
	engine, err := chatService.NewEngine(fakeSource{chunks: []string{"par"}, err: errors.New("boom")}, chatService.Options{})
	require.NoError(t, err)

	var out bytes.Buffer
	err = ask(context.Background(), engine, "Hi", &out)
	require.Error(t, err)
	assert.Contains(t, out.String(), chat.ErrorMarker)
}

func TestAskRejectsBlank(t *testing.T) {
	engine, err := chatService.NewEngine(fakeSource{}, chatService.Options{})
	require.NoError(t, err)

	err = ask(context.Background(), engine, "   ", &bytes.Buffer{})
	assert.ErrorIs(t, err, chatService.ErrEmptyInput)
}

func TestBuildEngineWithoutCredentials(t *testing.T) {
	cfg := &config.Config{AI: config.AIConfig{Provider: config.ProviderOpenAI}}

	engine, source, err := buildEngine(context.Background(), cfg)
	require.NoError(t, err)
	require.NotNil(t, source)

	var out bytes.Buffer
	require.Error(t, ask(context.Background(), engine, "Hi", &out))
	assert.Equal(t, chat.ErrorMarker, engine.Transcript()[1].Content)
}
