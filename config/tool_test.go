package config_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"lectern/config"
	"lectern/tools"
)

var _ = Describe("CustomTool", func() {
	arxiv := func() *config.CustomTool {
		return &config.CustomTool{
			Name:        "arxiv_search",
			Description: "Search arXiv",
			Method:      "get",
			URL:         "https://export.arxiv.org/api/query?search_query=${inputs.query}",
			Inputs: &config.InputsSchema{
				Fields: []config.InputField{
					{Name: "query", Type: "string", Required: true},
					{Name: "max_results", Type: "integer"},
				},
			},
		}
	}

	It("validates method, url, and field types", func() {
		t := arxiv()
		Expect(t.Validate()).To(Succeed())

		t.Method = "TRACE"
		Expect(t.Validate()).To(MatchError(ContainSubstring("unsupported method")))

		t = arxiv()
		t.URL = ""
		Expect(t.Validate()).To(MatchError(ContainSubstring("url is required")))

		t = arxiv()
		t.Inputs.Fields[0].Type = "uuid"
		Expect(t.Validate()).To(MatchError(ContainSubstring("unknown type 'uuid'")))
	})

	It("builds a parameter schema from the declared inputs", func() {
		schema := arxiv().BuildSchema()
		Expect(schema.Type).To(Equal(tools.TypeObject))
		Expect(schema.Properties).To(HaveKey("query"))
		Expect(schema.Properties["query"].Type).To(Equal(tools.TypeString))
		Expect(schema.Properties["max_results"].Type).To(Equal(tools.TypeInteger))
		Expect(schema.Required).To(ConsistOf("query"))
	})

	It("materializes an HTTP tool with the template intact", func() {
		built := arxiv().Build()
		Expect(built.ToolName()).To(Equal("arxiv_search"))
		Expect(built.Method).To(Equal("GET"))
		Expect(built.URLTemplate).To(ContainSubstring("${inputs.query}"))
		Expect(built.ToolSideEffect()).To(Equal(tools.SideEffectRead))
	})

	It("is declarable in config with the placeholder escaped", func() {
		path := writeFixture("lectern.hcl", `
tool "arxiv_search" {
  description = "Search arXiv"
  method      = "GET"
  url         = "https://export.arxiv.org/api/query?search_query=$${inputs.query}"

  inputs {
    field "query" {
      type     = "string"
      required = true
    }
  }
}
`)
		cfg, err := config.LoadAndValidate(path)
		Expect(err).NotTo(HaveOccurred())
		Expect(cfg.CustomTools).To(HaveLen(1))
		Expect(cfg.CustomTools[0].URL).To(Equal("https://export.arxiv.org/api/query?search_query=${inputs.query}"))
	})
})
