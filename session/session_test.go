package session_test

import (
	"fmt"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"lectern/llm"
	"lectern/session"
	"lectern/store"
)

var _ = Describe("Session", func() {
	var sessions store.SessionStore

	BeforeEach(func() {
		sessions = store.NewMemoryBundle().Sessions
	})

	It("requires an owner identity", func() {
		_, err := session.New(sessions, "", nil, session.Options{})
		Expect(err).To(MatchError(ContainSubstring("owner")))
	})

	It("registers itself in the session store", func() {
		sess, err := session.New(sessions, "alice", []string{"tab-1"}, session.Options{Mode: "general"})
		Expect(err).NotTo(HaveOccurred())
		Expect(sess.ID).NotTo(BeEmpty())

		infos, err := sessions.GetSessionsByOwner("alice")
		Expect(err).NotTo(HaveOccurred())
		Expect(infos).To(HaveLen(1))
		Expect(infos[0].Mode).To(Equal("general"))
	})

	It("keeps full history while bounding the prompt window", func() {
		sess, err := session.New(sessions, "alice", nil, session.Options{WindowSize: 3})
		Expect(err).NotTo(HaveOccurred())

		for i := 1; i <= 5; i++ {
			Expect(sess.Append(llm.RoleUser, fmt.Sprintf("msg %d", i))).To(Succeed())
		}

		Expect(sess.History()).To(HaveLen(5))

		window := sess.Window()
		Expect(window).To(HaveLen(3))
		Expect(window[0].Content).To(Equal("msg 3"))
		Expect(window[2].Content).To(Equal("msg 5"))

		// Persisted copy matches the in-memory history.
		stored, err := sessions.GetMessages(sess.ID)
		Expect(err).NotTo(HaveOccurred())
		Expect(stored).To(HaveLen(5))
	})

	It("forks a sub-session inheriting owner and scope but not history", func() {
		sess, err := session.New(sessions, "alice", []string{"tab-1", "tab-2"}, session.Options{Mode: "lead"})
		Expect(err).NotTo(HaveOccurred())
		Expect(sess.Append(llm.RoleUser, "parent message")).To(Succeed())

		child, err := sess.Fork("research")
		Expect(err).NotTo(HaveOccurred())
		Expect(child.ID).NotTo(Equal(sess.ID))
		Expect(child.Owner).To(Equal("alice"))
		Expect(child.Scope).To(Equal([]string{"tab-1", "tab-2"}))
		Expect(child.Mode).To(Equal("research"))
		Expect(child.History()).To(BeEmpty())
	})

	It("marks the session completed or failed in the store", func() {
		sess, err := session.New(sessions, "alice", nil, session.Options{})
		Expect(err).NotTo(HaveOccurred())
		Expect(sess.Complete(nil)).To(Succeed())

		infos, _ := sessions.GetSessionsByOwner("alice")
		Expect(infos[0].Status).To(Equal("completed"))

		failed, err := session.New(sessions, "alice", nil, session.Options{})
		Expect(err).NotTo(HaveOccurred())
		Expect(failed.Complete(fmt.Errorf("boom"))).To(Succeed())

		infos, _ = sessions.GetSessionsByOwner("alice")
		byID := map[string]store.SessionInfo{}
		for _, info := range infos {
			byID[info.ID] = info
		}
		Expect(byID[failed.ID].Status).To(Equal("failed"))
	})
})
