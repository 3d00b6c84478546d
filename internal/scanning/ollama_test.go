package scanning

import (
	"context"
	"net/http"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/onsi/gomega/ghttp"
)

var _ = Describe("Ollama", func() {
	var (
		server  *ghttp.Server
		scanner *Ollama
		data    *ContactData
		err     error
	)

	BeforeEach(func() {
		server = ghttp.NewServer()
		scanner, err = NewOllama(server.URL()+"/", "test-model")
		Expect(err).NotTo(HaveOccurred())
	})

	AfterEach(func() {
		server.Close()
	})

	JustBeforeEach(func() {
		data, err = scanner.ScanContact(context.Background(), "Jane Doe\n07123 456 789")
	})

	When("the model replies with contact JSON", func() {
		BeforeEach(func() {
			server.AppendHandlers(ghttp.CombineHandlers(
				ghttp.VerifyRequest("POST", "/api/chat"),
				ghttp.VerifyContentType("application/json"),
				ghttp.VerifyJSONRepresenting(map[string]any{
					"model":  "test-model",
					"stream": false,
					"format": "json",
					"messages": []map[string]string{
						{"role": "system", "content": "You extract contact details from CVs. You only report values that appear in the text."},
						{"role": "user", "content": buildPrompt("Jane Doe\n07123 456 789")},
					},
				}),
				ghttp.RespondWithJSONEncoded(http.StatusOK, map[string]any{
					"message": map[string]string{
						"role":    "assistant",
						"content": `{"given_name": "Jane", "family_name": "Doe", "phone_number": "07123 456 789"}`,
					},
					"done": true,
				}),
			))
		})

		It("returns the parsed contact", func() {
			Expect(err).NotTo(HaveOccurred())
			Expect(data).To(Equal(&ContactData{GivenName: "Jane", FamilyName: "Doe", PhoneNumber: "07123 456 789"}))
		})
	})

	When("the API returns an error status", func() {
		BeforeEach(func() {
			server.AppendHandlers(ghttp.RespondWith(http.StatusInternalServerError, "model not loaded"))
		})

		It("returns the error with the body", func() {
			Expect(err).To(MatchError(ContainSubstring("status 500")))
			Expect(err).To(MatchError(ContainSubstring("model not loaded")))
			Expect(data).To(BeNil())
		})
	})

	When("the model replies with prose", func() {
		BeforeEach(func() {
			server.AppendHandlers(ghttp.RespondWithJSONEncoded(http.StatusOK, map[string]any{
				"message": map[string]string{"role": "assistant", "content": "I could not find anything"},
				"done":    true,
			}))
		})

		It("returns a parse error", func() {
			Expect(err).To(MatchError(ContainSubstring("parsing contact data")))
		})
	})
})
