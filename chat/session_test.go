package chat_test

import (
	"context"
	"errors"
	"slices"
	"sync"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/prometheus/client_golang/prometheus"

	assistantpkg "github.com/dshills/multitool-chat/assistant"
	"github.com/dshills/multitool-chat/chat"
	"github.com/dshills/multitool-chat/graph"
	"github.com/dshills/multitool-chat/graph/model"
)

// fakeAnswerer returns scripted answers and records what it was sent.
type fakeAnswerer struct {
	mu      sync.Mutex
	answers []string
	err     error
	calls   [][]model.Message
	block   chan struct{}
}

func (f *fakeAnswerer) Answer(ctx context.Context, messages []model.Message) (assistantpkg.Result, error) {
	if f.block != nil {
		<-f.block
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	f.calls = append(f.calls, messages)
	if f.err != nil {
		return assistantpkg.Result{RunID: "run-failed"}, f.err
	}
	answer := "answer"
	if len(f.answers) > 0 {
		answer = f.answers[0]
		f.answers = f.answers[1:]
	}
	return assistantpkg.Result{RunID: "run", Answer: answer, ToolCalls: []string{"wikipedia_search"}}, nil
}

func (f *fakeAnswerer) lastCall() []model.Message {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[len(f.calls)-1]
}

var _ = Describe("Session", func() {
	var (
		ctx      context.Context
		answerer *fakeAnswerer
		session  *chat.Session
	)

	BeforeEach(func() {
		ctx = context.Background()
		answerer = &fakeAnswerer{}
		session = chat.NewSession(answerer)
	})

	It("starts idle with an empty transcript", func() {
		Expect(session.State()).To(Equal(chat.Idle))
		_, ok := session.Pending()
		Expect(ok).To(BeFalse())
		Expect(session.Transcript().Len()).To(BeZero())
	})

	Describe("Submit", func() {
		It("holds the answer for review without touching the transcript", func() {
			answerer.answers = []string{"X is ..."}

			pending, err := session.Submit(ctx, "What is X?")

			Expect(err).NotTo(HaveOccurred())
			Expect(pending.Question).To(Equal("What is X?"))
			Expect(pending.Answer).To(Equal("X is ..."))
			Expect(pending.ToolCalls).To(ConsistOf("wikipedia_search"))
			Expect(session.State()).To(Equal(chat.AwaitingReview))
			Expect(session.Transcript().Len()).To(BeZero())
		})

		It("sends the transcript plus the new question", func() {
			answerer.answers = []string{"a1", "a2"}
			_, _ = session.Submit(ctx, "q1")
			Expect(session.Approve("a1")).To(Succeed())

			_, err := session.Submit(ctx, "q2")
			Expect(err).NotTo(HaveOccurred())

			Expect(answerer.lastCall()).To(Equal([]model.Message{
				{Role: model.RoleUser, Content: "q1"},
				{Role: model.RoleAssistant, Content: "a1"},
				{Role: model.RoleUser, Content: "q2"},
			}))
		})

		It("rejects blank queries", func() {
			_, err := session.Submit(ctx, "   ")

			Expect(err).To(MatchError(chat.ErrEmptyQuery))
			Expect(answerer.calls).To(BeEmpty())
		})

		It("leaves state unchanged while awaiting review", func() {
			answerer.answers = []string{"first"}
			_, _ = session.Submit(ctx, "q1")

			_, err := session.Submit(ctx, "q2")

			Expect(err).To(MatchError(chat.ErrAwaitingReview))
			pending, _ := session.Pending()
			Expect(pending.Question).To(Equal("q1"))
			Expect(pending.Answer).To(Equal("first"))
			Expect(session.Transcript().Len()).To(BeZero())
			Expect(answerer.calls).To(HaveLen(1))
		})

		It("leaves state unchanged when the orchestrator fails", func() {
			boom := errors.New("model unavailable")
			answerer.err = boom

			_, err := session.Submit(ctx, "q")

			Expect(err).To(MatchError(boom))
			Expect(session.State()).To(Equal(chat.Idle))
			Expect(session.Transcript().Len()).To(BeZero())
		})

		It("reports the failed run so its events can be released", func() {
			answerer.err = errors.New("model unavailable")

			pending, err := session.Submit(ctx, "q")

			Expect(err).To(HaveOccurred())
			Expect(pending.RunID).To(Equal("run-failed"))
			Expect(pending.Question).To(Equal("q"))
			_, ok := session.Pending()
			Expect(ok).To(BeFalse())
		})

		It("refuses a second submission while the first is running", func() {
			answerer.block = make(chan struct{})
			done := make(chan error, 1)
			go func() {
				_, err := session.Submit(ctx, "slow")
				done <- err
			}()

			Eventually(session.Busy).Should(BeTrue())
			_, err := session.Submit(ctx, "again")
			Expect(err).To(MatchError(chat.ErrSubmitInProgress))

			close(answerer.block)
			Eventually(done).Should(Receive(BeNil()))
			Expect(session.Busy()).To(BeFalse())
			Expect(session.State()).To(Equal(chat.AwaitingReview))
		})
	})

	Describe("Approve", func() {
		It("commits the edited text with the question", func() {
			answerer.answers = []string{"X is ..."}
			_, _ = session.Submit(ctx, "What is X?")
			Expect(session.Edit("X is, precisely, ...")).To(Succeed())

			pending, _ := session.Pending()
			Expect(session.Approve(pending.Answer)).To(Succeed())

			Expect(session.Transcript().Turns()).To(Equal([]chat.Turn{
				{Role: chat.RoleUser, Content: "What is X?"},
				{Role: chat.RoleAssistant, Content: "X is, precisely, ..."},
			}))
			Expect(slices.Collect(session.Transcript().Pairs())).To(Equal([]chat.DisplayPair{
				{User: "What is X?", Assistant: "X is, precisely, ..."},
			}))
			Expect(session.State()).To(Equal(chat.Idle))
		})

		It("commits exactly the text it is given", func() {
			_, _ = session.Submit(ctx, "q")

			Expect(session.Approve("typed in the edit area")).To(Succeed())

			turns := session.Transcript().Turns()
			Expect(turns[1].Content).To(Equal("typed in the edit area"))
		})

		It("refuses blank text and keeps the answer pending", func() {
			_, err := session.Submit(ctx, "q")
			Expect(err).NotTo(HaveOccurred())

			Expect(session.Approve("")).To(MatchError(chat.ErrEmptyAnswer))
			Expect(session.Approve(" \n\t")).To(MatchError(chat.ErrEmptyAnswer))

			Expect(session.State()).To(Equal(chat.AwaitingReview))
			Expect(session.Transcript().Len()).To(BeZero())
			Expect(session.Approve("answer")).To(Succeed())
		})

		It("fails when nothing is pending", func() {
			Expect(session.Approve("x")).To(MatchError(chat.ErrNothingPending))
			Expect(session.Edit("x")).To(MatchError(chat.ErrNothingPending))
			Expect(session.Transcript().Len()).To(BeZero())
		})
	})

	Describe("Reject", func() {
		It("discards the answer and returns the question", func() {
			_, _ = session.Submit(ctx, "Y?")

			question, err := session.Reject()

			Expect(err).NotTo(HaveOccurred())
			Expect(question).To(Equal("Y?"))
			Expect(session.Transcript().Len()).To(BeZero())
			Expect(session.State()).To(Equal(chat.Idle))
		})

		It("accepts the next submission", func() {
			_, _ = session.Submit(ctx, "Y?")
			_, _ = session.Reject()

			_, err := session.Submit(ctx, "Y again?")
			Expect(err).NotTo(HaveOccurred())
		})

		It("fails when nothing is pending", func() {
			_, err := session.Reject()
			Expect(err).To(MatchError(chat.ErrNothingPending))
		})
	})

	Describe("mixed sequences", func() {
		DescribeTable("commits one assistant turn per approve",
			func(actions []string) {
				approvals := 0
				var approved []string
				for i, action := range actions {
					_, err := session.Submit(ctx, "q")
					Expect(err).NotTo(HaveOccurred())

					switch action {
					case "approve":
						text := "edited " + string(rune('a'+i))
						Expect(session.Approve(text)).To(Succeed())
						approvals++
						approved = append(approved, text)
					case "reject":
						before := session.Transcript().Len()
						_, err := session.Reject()
						Expect(err).NotTo(HaveOccurred())
						Expect(session.Transcript().Len()).To(Equal(before))
					}
					Expect(session.State()).To(Equal(chat.Idle))
				}

				var committed []string
				for _, turn := range session.Transcript().Turns() {
					if turn.Role == chat.RoleAssistant {
						committed = append(committed, turn.Content)
					}
				}
				Expect(committed).To(HaveLen(approvals))
				if approvals > 0 {
					Expect(committed).To(Equal(approved))
				}
			},
			Entry("only approvals", []string{"approve", "approve", "approve"}),
			Entry("only rejections", []string{"reject", "reject"}),
			Entry("interleaved", []string{"approve", "reject", "approve", "reject", "reject", "approve"}),
		)
	})

	Describe("metrics", func() {
		It("counts review decisions", func() {
			registry := prometheus.NewRegistry()
			session = chat.NewSession(answerer, chat.WithMetrics(graph.NewPrometheusMetrics(registry)))

			_, _ = session.Submit(ctx, "q")
			_ = session.Approve("a")
			_, _ = session.Submit(ctx, "q")
			_, _ = session.Reject()

			families, err := registry.Gather()
			Expect(err).NotTo(HaveOccurred())
			decisions := map[string]float64{}
			for _, family := range families {
				if family.GetName() != "multitool_chat_review_decisions_total" {
					continue
				}
				for _, metric := range family.GetMetric() {
					decisions[metric.GetLabel()[0].GetValue()] = metric.GetCounter().GetValue()
				}
			}
			Expect(decisions).To(Equal(map[string]float64{"approve": 1, "reject": 1}))
		})
	})
})
