package scanning

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/onsi/gomega/ghttp"

	"github.com/zombor/receipt-extractor/internal/extraction"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("Ollama", func() {
	var (
		server *ghttp.Server
		ollama *Ollama
		img    extraction.NormalizedImage
		ctx    context.Context
		raw    extraction.RawRecognition
		err    error
	)

	BeforeEach(func() {
		server = ghttp.NewServer()
		var newErr error
		ollama, newErr = NewOllama(server.URL()+"/", "llava:1.6")
		Expect(newErr).NotTo(HaveOccurred())
		img = extraction.NormalizedImage{PNG: []byte("\x89PNG fake"), Width: 10, Height: 10}
		ctx = context.Background()
	})

	AfterEach(func() {
		server.Close()
	})

	JustBeforeEach(func() {
		raw, err = ollama.Recognize(ctx, img)
	})

	When("the model answers", func() {
		BeforeEach(func() {
			server.AppendHandlers(ghttp.CombineHandlers(
				ghttp.VerifyRequest(http.MethodPost, "/api/chat"),
				ghttp.VerifyContentType("application/json"),
				func(w http.ResponseWriter, r *http.Request) {
					body, readErr := io.ReadAll(r.Body)
					Expect(readErr).NotTo(HaveOccurred())

					var req ollamaChatRequest
					Expect(json.Unmarshal(body, &req)).To(Succeed())
					Expect(req.Model).To(Equal("llava:1.6"))
					Expect(req.Stream).To(BeFalse())
					Expect(req.Messages).To(HaveLen(2))
					Expect(req.Messages[1].Images).To(Equal([]string{base64.StdEncoding.EncodeToString(img.PNG)}))
				},
				ghttp.RespondWithJSONEncoded(http.StatusOK, ollamaChatResponse{
					Message: ollamaMessage{
						Role:    "assistant",
						Content: `{"lines": [{"text": "CORNER CAFE", "confidence": 0.9}, {"text": "Total 3.50", "confidence": 0.8}], "confidence": 0.85}`,
					},
					Done: true,
				}),
			))
		})

		It("should return the transcribed lines", func() {
			Expect(err).NotTo(HaveOccurred())
			Expect(raw.Texts()).To(Equal([]string{"CORNER CAFE", "Total 3.50"}))
			Expect(raw.Confidence).To(Equal(0.85))
		})

		It("should call the chat endpoint once", func() {
			Expect(server.ReceivedRequests()).To(HaveLen(1))
		})
	})

	When("the API returns an error", func() {
		BeforeEach(func() {
			server.AppendHandlers(ghttp.RespondWith(http.StatusInternalServerError, "model not loaded"))
		})

		It("should return an error with the body", func() {
			Expect(err).To(MatchError(ContainSubstring("model not loaded")))
		})
	})

	When("the model reply is not JSON", func() {
		BeforeEach(func() {
			server.AppendHandlers(ghttp.RespondWithJSONEncoded(http.StatusOK, ollamaChatResponse{
				Message: ollamaMessage{Role: "assistant", Content: "I see a receipt."},
				Done:    true,
			}))
		})

		It("should return an error", func() {
			Expect(err).To(MatchError(ContainSubstring("parsing transcription")))
		})
	})

	When("the caller gives up", func() {
		BeforeEach(func() {
			server.AppendHandlers(func(w http.ResponseWriter, r *http.Request) {
				select {
				case <-r.Context().Done():
				case <-time.After(time.Second):
				}
			})
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(context.Background(), 20*time.Millisecond)
			DeferCleanup(cancel)
		})

		It("should return the context error", func() {
			Expect(err).To(MatchError(context.DeadlineExceeded))
		})
	})
})
