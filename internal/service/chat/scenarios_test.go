package chat_test

import (
	"context"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/zhouzirui/streamchat/internal/model/chat"
	chatService "github.com/zhouzirui/streamchat/internal/service/chat"
)

type turn struct {
	Role    chat.Role
	Content string
}

func turns(messages []chat.Message) []turn {
	out := make([]turn, 0, len(messages))
	for _, m := range messages {
		out = append(out, turn{Role: m.Role, Content: m.Content})
	}
	return out
}

var _ = Describe("Engine", func() {
	var ctx context.Context

	BeforeEach(func() {
		ctx = context.Background()
	})

	Context("when the source streams and completes", func() {
		It("ends with the concatenated reply and returns to idle", func() {
			engine, err := chatService.NewEngine(&scriptedSource{chunks: []string{"He", "llo"}}, chatService.Options{})
			Expect(err).NotTo(HaveOccurred())

			Expect(engine.Submit(ctx, "Hi")).To(Succeed())

			Expect(turns(engine.Transcript())).To(Equal([]turn{
				{Role: chat.RoleUser, Content: "Hi"},
				{Role: chat.RoleAssistant, Content: "Hello"},
			}))
			Expect(engine.State()).To(Equal(chat.StateIdle))
		})
	})

	Context("when the source fails before any chunk", func() {
		It("shows the error marker in place of the reply", func() {
			engine, err := chatService.NewEngine(&scriptedSource{err: errUpstream}, chatService.Options{})
			Expect(err).NotTo(HaveOccurred())

			Expect(engine.Submit(ctx, "Hi")).To(Succeed())

			Expect(turns(engine.Transcript())).To(Equal([]turn{
				{Role: chat.RoleUser, Content: "Hi"},
				{Role: chat.RoleAssistant, Content: "[Error: Failed to get response from OpenAI]"},
			}))
			Expect(engine.Streaming()).To(BeFalse())
		})
	})

	Context("when the input is empty", func() {
		It("leaves the transcript and state untouched", func() {
			engine, err := chatService.NewEngine(&scriptedSource{chunks: []string{"x"}}, chatService.Options{})
			Expect(err).NotTo(HaveOccurred())

			Expect(engine.Submit(ctx, "")).To(MatchError(chatService.ErrEmptyInput))
			Expect(engine.Transcript()).To(BeEmpty())
			Expect(engine.State()).To(Equal(chat.StateIdle))
		})
	})

	Context("when a second message arrives mid-stream", func() {
		It("ignores it until the first session resolves", func() {
			source := newGatedSource([]string{"a"}, nil)
			engine, err := chatService.NewEngine(source, chatService.Options{})
			Expect(err).NotTo(HaveOccurred())

			_, done, err := engine.SubmitAsync(ctx, "A")
			Expect(err).NotTo(HaveOccurred())
			Eventually(source.started).Should(Receive(Equal("A")))

			Expect(engine.Submit(ctx, "B")).To(MatchError(chatService.ErrAlreadyStreaming))
			Expect(turns(engine.Transcript())).To(Equal([]turn{
				{Role: chat.RoleUser, Content: "A"},
				{Role: chat.RoleAssistant, Content: "a"},
			}))

			close(source.release)
			Eventually(done).Should(BeClosed())
			Expect(engine.State()).To(Equal(chat.StateIdle))

			Expect(engine.Submit(ctx, "B")).To(Succeed())
			Expect(engine.Transcript()).To(HaveLen(4))
		})
	})

	Context("after many submissions", func() {
		It("keeps every user entry immediately followed by its reply", func() {
			engine, err := chatService.NewEngine(&scriptedSource{chunks: []string{"ok"}}, chatService.Options{})
			Expect(err).NotTo(HaveOccurred())

			for _, text := range []string{"one", "two", "three"} {
				Expect(engine.Submit(ctx, text)).To(Succeed())
			}

			transcript := engine.Transcript()
			Expect(transcript).To(HaveLen(6))
			for i := 0; i < len(transcript); i += 2 {
				Expect(transcript[i].Role).To(Equal(chat.RoleUser))
				Expect(transcript[i+1].Role).To(Equal(chat.RoleAssistant))
				Expect(transcript[i+1].Content).To(Equal("ok"))
			}
		})
	})
})
