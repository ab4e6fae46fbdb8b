package agent_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"lectern/agent"
)

var _ = Describe("ParseDecision", func() {
	It("parses a tool action with JSON input", func() {
		d, err := agent.ParseDecision(`<REASONING>
I need to find recent papers first.
</REASONING>
<ACTION>search_papers</ACTION>
<ACTION_INPUT>{"query": "transformer interpretability", "limit": 5}</ACTION_INPUT>`)
		Expect(err).NotTo(HaveOccurred())
		Expect(d.Kind).To(Equal(agent.DecisionUseTool))
		Expect(d.Tool).To(Equal("search_papers"))
		Expect(d.Reasoning).To(ContainSubstring("recent papers"))
		Expect(d.Args).To(HaveKeyWithValue("query", "transformer interpretability"))
		Expect(d.Args).To(HaveKeyWithValue("limit", float64(5)))
	})

	It("tolerates fenced JSON in ACTION_INPUT", func() {
		d, err := agent.ParseDecision("<ACTION>get_paper</ACTION>\n<ACTION_INPUT>\n```json\n{\"id\": \"p-1\"}\n```\n</ACTION_INPUT>")
		Expect(err).NotTo(HaveOccurred())
		Expect(d.Args).To(HaveKeyWithValue("id", "p-1"))
	})

	It("tolerates a missing closing tag after a stop-sequence cutoff", func() {
		d, err := agent.ParseDecision("<REASONING>done</REASONING>\n<ANSWER>Here is the summary.")
		Expect(err).NotTo(HaveOccurred())
		Expect(d.Kind).To(Equal(agent.DecisionFinish))
		Expect(d.Answer).To(Equal("Here is the summary."))
	})

	It("parses a delegation with either quote style", func() {
		for _, raw := range []string{
			`<DELEGATE mode="research">find sources on CRISPR</DELEGATE>`,
			`<DELEGATE mode='research'>find sources on CRISPR</DELEGATE>`,
			`<DELEGATE mode=research>find sources on CRISPR</DELEGATE>`,
		} {
			d, err := agent.ParseDecision(raw)
			Expect(err).NotTo(HaveOccurred())
			Expect(d.Kind).To(Equal(agent.DecisionDelegate))
			Expect(d.DelegateMode).To(Equal("research"))
			Expect(d.Subtask).To(Equal("find sources on CRISPR"))
		}
	})

	It("parses an ask-user decision", func() {
		d, err := agent.ParseDecision("<ASK_USER>Which collection should I search?</ASK_USER>")
		Expect(err).NotTo(HaveOccurred())
		Expect(d.Kind).To(Equal(agent.DecisionAskUser))
		Expect(d.Question).To(Equal("Which collection should I search?"))
	})

	It("rejects a response with no decision block", func() {
		_, err := agent.ParseDecision("<REASONING>hmm, not sure</REASONING>")
		Expect(err).To(MatchError(ContainSubstring("no ACTION")))
	})

	It("rejects a response with more than one decision block", func() {
		_, err := agent.ParseDecision(`<ACTION>search_papers</ACTION>
<ACTION_INPUT>{"query": "x"}</ACTION_INPUT>
<ANSWER>also an answer</ANSWER>`)
		Expect(err).To(MatchError(ContainSubstring("more than one decision block")))
	})

	It("rejects an action without input", func() {
		_, err := agent.ParseDecision("<ACTION>search_papers</ACTION>")
		Expect(err).To(MatchError(ContainSubstring("no ACTION_INPUT")))
	})

	It("rejects non-object action input", func() {
		_, err := agent.ParseDecision("<ACTION>search_papers</ACTION>\n<ACTION_INPUT>[1, 2]</ACTION_INPUT>")
		Expect(err).To(MatchError(ContainSubstring("not a JSON object")))
	})

	It("rejects a delegation without subtask text", func() {
		_, err := agent.ParseDecision(`<DELEGATE mode="research"></DELEGATE>`)
		Expect(err).To(MatchError(ContainSubstring("no subtask")))
	})
})
