package agent_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"lectern/agent"
)

var _ = Describe("ModeSet", func() {
	toolNames := []string{"search_papers", "get_paper", "save_note", "list_items"}

	newMode := func(name string, tools ...string) *agent.Mode {
		return &agent.Mode{Name: name, Prompt: "p", Tools: tools}
	}

	It("rejects modes with too few or too many tools", func() {
		registry, _ := newTestRegistry(toolNames...)
		set := agent.NewModeSet()

		err := set.Register(newMode("tiny", "search_papers", "get_paper"), registry)
		Expect(err).To(MatchError(ContainSubstring("has 2 tools")))

		wide := newMode("wide",
			"t1", "t2", "t3", "t4", "t5", "t6", "t7", "t8")
		err = set.Register(wide, registry)
		Expect(err).To(MatchError(ContainSubstring("has 8 tools")))
	})

	It("rejects tool names the registry does not know", func() {
		registry, _ := newTestRegistry(toolNames...)
		set := agent.NewModeSet()

		err := set.Register(newMode("m", "search_papers", "get_paper", "no_such_tool"), registry)
		Expect(err).To(MatchError(ContainSubstring("unknown tool 'no_such_tool'")))
	})

	It("rejects duplicate tool entries and duplicate mode names", func() {
		registry, _ := newTestRegistry(toolNames...)
		set := agent.NewModeSet()

		err := set.Register(newMode("m", "search_papers", "search_papers", "get_paper"), registry)
		Expect(err).To(MatchError(ContainSubstring("twice")))

		Expect(set.Register(newMode("m", "search_papers", "get_paper", "save_note"), registry)).To(Succeed())
		err = set.Register(newMode("m", "search_papers", "get_paper", "save_note"), registry)
		Expect(err).To(MatchError(ContainSubstring("already registered")))
	})

	Describe("Finalize", func() {
		It("rejects self-delegation", func() {
			r, _ := newTestRegistry(toolNames...)
			set := agent.NewModeSet()
			m := newMode("m", "search_papers", "get_paper", "save_note")
			m.Delegates = []string{"m"}
			Expect(set.Register(m, r)).To(Succeed())
			Expect(set.Finalize()).To(MatchError(ContainSubstring("delegates to itself")))
		})

		It("rejects unknown delegation targets", func() {
			r, _ := newTestRegistry(toolNames...)
			set := agent.NewModeSet()
			m := newMode("m", "search_papers", "get_paper", "save_note")
			m.Delegates = []string{"ghost"}
			Expect(set.Register(m, r)).To(Succeed())
			Expect(set.Finalize()).To(MatchError(ContainSubstring("unknown mode 'ghost'")))
		})

		It("rejects delegation cycles", func() {
			r, _ := newTestRegistry(toolNames...)
			set := agent.NewModeSet()
			a := newMode("a", "search_papers", "get_paper", "save_note")
			b := newMode("b", "search_papers", "get_paper", "save_note")
			c := newMode("c", "search_papers", "get_paper", "save_note")
			a.Delegates = []string{"b"}
			b.Delegates = []string{"c"}
			c.Delegates = []string{"a"}
			Expect(set.Register(a, r)).To(Succeed())
			Expect(set.Register(b, r)).To(Succeed())
			Expect(set.Register(c, r)).To(Succeed())
			Expect(set.Finalize()).To(MatchError(ContainSubstring("delegation cycle")))
		})

		It("accepts an acyclic delegation graph and freezes the set", func() {
			r, _ := newTestRegistry(toolNames...)
			set := agent.NewModeSet()
			lead := newMode("lead", "search_papers", "get_paper", "save_note")
			worker := newMode("worker", "search_papers", "get_paper", "list_items")
			lead.Delegates = []string{"worker"}
			Expect(set.Register(lead, r)).To(Succeed())
			Expect(set.Register(worker, r)).To(Succeed())
			Expect(set.Finalize()).To(Succeed())

			err := set.Register(newMode("late", "search_papers", "get_paper", "save_note"), r)
			Expect(err).To(MatchError(ContainSubstring("finalized")))
		})
	})

	It("falls back to the default iteration cap", func() {
		m := &agent.Mode{Name: "m"}
		Expect(m.IterationCap()).To(Equal(agent.DefaultMaxIterations))
		m.MaxIterations = 3
		Expect(m.IterationCap()).To(Equal(3))
	})
})
