package structuring

import (
	"context"
	"net/http"

	"github.com/google/generative-ai-go/genai"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/onsi/gomega/ghttp"
)

var _ = Describe("Ollama", func() {
	var (
		server    *ghttp.Server
		generator *Ollama
		text      string
		err       error
	)

	BeforeEach(func() {
		server = ghttp.NewServer()
		var newErr error
		generator, newErr = NewOllama(server.URL()+"/", "llama3.1")
		Expect(newErr).NotTo(HaveOccurred())
	})

	AfterEach(func() {
		server.Close()
	})

	JustBeforeEach(func() {
		text, err = generator.GenerateStructured(context.Background(), "PROMPT")
	})

	When("the server answers", func() {
		BeforeEach(func() {
			server.AppendHandlers(ghttp.CombineHandlers(
				ghttp.VerifyRequest(http.MethodPost, "/api/chat"),
				ghttp.VerifyContentType("application/json"),
				ghttp.VerifyJSON(`{
					"model": "llama3.1",
					"stream": false,
					"format": "json",
					"options": {"temperature": 0},
					"messages": [
						{"role": "system", "content": "You are an expert at extracting structured purchase data from receipt text. You reply with JSON only."},
						{"role": "user", "content": "PROMPT"}
					]
				}`),
				ghttp.RespondWithJSONEncoded(http.StatusOK, map[string]any{
					"message": map[string]any{"role": "assistant", "content": "  {\"items\": []}  "},
					"done":    true,
				}),
			))
		})

		It("returns the trimmed message content", func() {
			Expect(err).NotTo(HaveOccurred())
			Expect(text).To(Equal(`{"items": []}`))
		})
	})

	When("the server returns an error status", func() {
		BeforeEach(func() {
			server.AppendHandlers(ghttp.RespondWith(http.StatusNotFound, "model not found"))
		})

		It("returns the error", func() {
			Expect(err).To(MatchError(ContainSubstring("status 404")))
			Expect(err).To(MatchError(ContainSubstring("model not found")))
		})
	})

	When("the server returns an undecodable body", func() {
		BeforeEach(func() {
			server.AppendHandlers(ghttp.RespondWith(http.StatusOK, "not json"))
		})

		It("returns the error", func() {
			Expect(err).To(MatchError(ContainSubstring("decoding response")))
		})
	})

	When("the model content is not JSON", func() {
		BeforeEach(func() {
			server.AppendHandlers(ghttp.RespondWithJSONEncoded(http.StatusOK, map[string]any{
				"message": map[string]any{"role": "assistant", "content": "sorry, I can't"},
			}))
		})

		It("returns the content for the engine to handle", func() {
			Expect(err).NotTo(HaveOccurred())
			Expect(text).To(Equal("sorry, I can't"))
		})
	})
})

var _ = Describe("responseText", func() {
	It("returns empty for a nil response", func() {
		Expect(responseText(nil)).To(BeEmpty())
	})

	It("returns empty when there are no candidates", func() {
		Expect(responseText(&genai.GenerateContentResponse{})).To(BeEmpty())
	})

	It("returns empty when the candidate has no content", func() {
		resp := &genai.GenerateContentResponse{Candidates: []*genai.Candidate{{}}}
		Expect(responseText(resp)).To(BeEmpty())
	})

	It("joins the text parts of the first candidate", func() {
		resp := &genai.GenerateContentResponse{
			Candidates: []*genai.Candidate{
				{Content: &genai.Content{Parts: []genai.Part{genai.Text(`{"items":`), genai.Text(` []}`)}}},
				{Content: &genai.Content{Parts: []genai.Part{genai.Text("ignored")}}},
			},
		}
		Expect(responseText(resp)).To(Equal(`{"items": []}`))
	})
})

var _ = Describe("NewGemini", func() {
	It("requires an API key", func() {
		_, err := NewGemini(context.Background(), "", "")
		Expect(err).To(MatchError(ContainSubstring("api key is required")))
	})

	It("requests JSON output at temperature zero", func() {
		g, err := NewGemini(context.Background(), "test-key", "")
		Expect(err).NotTo(HaveOccurred())
		defer g.Close()
		Expect(g.model.ResponseMIMEType).To(Equal("application/json"))
		Expect(g.model.Temperature).To(HaveValue(BeNumerically("==", 0)))
	})
})
