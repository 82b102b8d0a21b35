package chat_test

import (
	"slices"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/dshills/multitool-chat/chat"
	"github.com/dshills/multitool-chat/graph/model"
)

func appendTurns(t *chat.Transcript, turns ...chat.Turn) {
	for _, turn := range turns {
		Expect(t.Append(turn)).To(Succeed())
	}
}

func user(content string) chat.Turn      { return chat.Turn{Role: chat.RoleUser, Content: content} }
func assistant(content string) chat.Turn { return chat.Turn{Role: chat.RoleAssistant, Content: content} }

var _ = Describe("Transcript", func() {
	var transcript *chat.Transcript

	BeforeEach(func() {
		transcript = chat.NewTranscript()
	})

	Describe("Append", func() {
		It("keeps insertion order", func() {
			appendTurns(transcript, user("a"), assistant("b"))

			Expect(transcript.Len()).To(Equal(2))
			Expect(transcript.Turns()).To(Equal([]chat.Turn{user("a"), assistant("b")}))
		})

		It("rejects unknown roles", func() {
			err := transcript.Append(chat.Turn{Role: "system", Content: "x"})

			Expect(err).To(MatchError(chat.ErrInvalidRole))
			Expect(transcript.Len()).To(BeZero())
		})

		It("returns copies from Turns", func() {
			appendTurns(transcript, user("a"))
			turns := transcript.Turns()
			turns[0].Content = "changed"

			Expect(transcript.Turns()[0].Content).To(Equal("a"))
		})
	})

	Describe("Messages", func() {
		It("converts turns to model messages", func() {
			appendTurns(transcript, user("q"), assistant("a"))

			Expect(transcript.Messages()).To(Equal([]model.Message{
				{Role: model.RoleUser, Content: "q"},
				{Role: model.RoleAssistant, Content: "a"},
			}))
		})
	})

	Describe("Pairs", func() {
		It("is empty for an empty transcript", func() {
			Expect(slices.Collect(transcript.Pairs())).To(BeEmpty())
		})

		It("returns pairs most recent first", func() {
			appendTurns(transcript, user("q1"), assistant("a1"), user("q2"), assistant("a2"))

			Expect(slices.Collect(transcript.Pairs())).To(Equal([]chat.DisplayPair{
				{User: "q2", Assistant: "a2"},
				{User: "q1", Assistant: "a1"},
			}))
		})

		It("yields an empty assistant side for an unanswered user turn", func() {
			appendTurns(transcript, user("q1"), assistant("a1"), user("q2"))

			Expect(slices.Collect(transcript.Pairs())).To(Equal([]chat.DisplayPair{
				{User: "q2"},
				{User: "q1", Assistant: "a1"},
			}))
		})

		It("keeps both user turns of a user-user sequence", func() {
			appendTurns(transcript, user("q1"), user("q2"), assistant("a2"))

			Expect(slices.Collect(transcript.Pairs())).To(Equal([]chat.DisplayPair{
				{User: "q2", Assistant: "a2"},
				{User: "q1"},
			}))
		})

		It("skips an assistant turn with no user turn before it", func() {
			appendTurns(transcript, assistant("orphan"), user("q1"), assistant("a1"), assistant("orphan2"))

			Expect(slices.Collect(transcript.Pairs())).To(Equal([]chat.DisplayPair{
				{User: "q1", Assistant: "a1"},
			}))
		})

		It("is idempotent without intervening appends", func() {
			appendTurns(transcript, user("q1"), assistant("a1"), user("q2"))

			first := slices.Collect(transcript.Pairs())
			second := slices.Collect(transcript.Pairs())
			Expect(second).To(Equal(first))
		})

		It("is recomputed after an append", func() {
			appendTurns(transcript, user("q1"))
			seq := transcript.Pairs()
			appendTurns(transcript, assistant("a1"))

			Expect(slices.Collect(seq)).To(Equal([]chat.DisplayPair{{User: "q1", Assistant: "a1"}}))
		})

		It("stops when the consumer stops", func() {
			appendTurns(transcript, user("q1"), assistant("a1"), user("q2"), assistant("a2"))

			var seen []chat.DisplayPair
			for pair := range transcript.Pairs() {
				seen = append(seen, pair)
				break
			}
			Expect(seen).To(HaveLen(1))
			Expect(seen[0].User).To(Equal("q2"))
		})
	})
})
