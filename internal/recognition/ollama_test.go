package recognition

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"image/png"
	"io"
	"net/http"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/onsi/gomega/ghttp"

	"github.com/teamalpha/aichef/internal/camera"
	"github.com/teamalpha/aichef/internal/ingredient"
)

var _ = Describe("Ollama", func() {
	var (
		server  *ghttp.Server
		gateway *Ollama
		frame   camera.Frame
	)

	replyWith := func(content string) http.HandlerFunc {
		return ghttp.RespondWithJSONEncoded(http.StatusOK, ollamaChatResponse{
			Message: ollamaMessage{Role: "assistant", Content: content},
			Done:    true,
		})
	}

	BeforeEach(func() {
		server = ghttp.NewServer()
		var err error
		gateway, err = NewOllama(server.URL()+"/", "llava")
		Expect(err).NotTo(HaveOccurred())
		frame = camera.Frame{Pix: make([]byte, 4*4*4), Width: 4, Height: 4, CapturedAt: time.Now()}
	})

	AfterEach(func() {
		server.Close()
	})

	Describe("ClassifyFrame", func() {
		When("the model recognizes an ingredient", func() {
			var request ollamaChatRequest

			BeforeEach(func() {
				server.AppendHandlers(ghttp.CombineHandlers(
					ghttp.VerifyRequest("POST", "/api/chat"),
					ghttp.VerifyContentType("application/json"),
					func(w http.ResponseWriter, r *http.Request) {
						body, err := io.ReadAll(r.Body)
						Expect(err).NotTo(HaveOccurred())
						Expect(json.Unmarshal(body, &request)).To(Succeed())
					},
					replyWith(`{"ingredient": "bell pepper"}`),
				))
			})

			It("returns the normalized label", func() {
				label, err := gateway.ClassifyFrame(context.Background(), frame)
				Expect(err).NotTo(HaveOccurred())
				Expect(label).To(Equal(ingredient.Label("bell_pepper")))
			})

			It("sends the frame as a PNG image", func() {
				_, err := gateway.ClassifyFrame(context.Background(), frame)
				Expect(err).NotTo(HaveOccurred())
				Expect(request.Model).To(Equal("llava"))
				Expect(request.Messages).To(HaveLen(2))
				Expect(request.Messages[1].Images).To(HaveLen(1))
				data, err := base64.StdEncoding.DecodeString(request.Messages[1].Images[0])
				Expect(err).NotTo(HaveOccurred())
				img, err := png.Decode(bytes.NewReader(data))
				Expect(err).NotTo(HaveOccurred())
				Expect(img.Bounds().Dx()).To(Equal(4))
			})
		})

		When("the model finds nothing", func() {
			BeforeEach(func() {
				server.AppendHandlers(replyWith(`{"ingredient": null}`))
			})

			It("returns ErrNotFound", func() {
				_, err := gateway.ClassifyFrame(context.Background(), frame)
				Expect(err).To(MatchError(ErrNotFound))
			})
		})

		When("the API fails", func() {
			BeforeEach(func() {
				server.AppendHandlers(ghttp.RespondWith(http.StatusInternalServerError, "model crashed"))
			})

			It("returns an error that is not ErrNotFound", func() {
				_, err := gateway.ClassifyFrame(context.Background(), frame)
				Expect(err).To(MatchError(ContainSubstring("status 500")))
				Expect(err).NotTo(MatchError(ErrNotFound))
			})
		})

		When("the frame is invalid", func() {
			It("returns an error without calling the API", func() {
				_, err := gateway.ClassifyFrame(context.Background(), camera.Frame{Width: 1, Height: 1})
				Expect(err).To(HaveOccurred())
				Expect(server.ReceivedRequests()).To(BeEmpty())
			})
		})

		When("the context expires", func() {
			var unblock chan struct{}

			BeforeEach(func() {
				unblock = make(chan struct{})
				server.AppendHandlers(func(w http.ResponseWriter, r *http.Request) {
					io.Copy(io.Discard, r.Body)
					select {
					case <-r.Context().Done():
					case <-unblock:
					}
				})
			})

			// runs before the outer AfterEach closes the server
			AfterEach(func() {
				close(unblock)
			})

			It("returns an error", func() {
				ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
				defer cancel()
				_, err := gateway.ClassifyFrame(ctx, frame)
				Expect(err).To(HaveOccurred())
			})
		})
	})

	Describe("ResolveQuery", func() {
		var request ollamaChatRequest

		BeforeEach(func() {
			server.AppendHandlers(ghttp.CombineHandlers(
				ghttp.VerifyRequest("POST", "/api/chat"),
				func(w http.ResponseWriter, r *http.Request) {
					body, err := io.ReadAll(r.Body)
					Expect(err).NotTo(HaveOccurred())
					Expect(json.Unmarshal(body, &request)).To(Succeed())
				},
				replyWith(`{"ingredient": "bell pepper"}`),
			))
		})

		It("returns the resolved label", func() {
			label, err := gateway.ResolveQuery(context.Background(), "bell_pepper")
			Expect(err).NotTo(HaveOccurred())
			Expect(label).To(Equal(ingredient.Label("bell_pepper")))
		})

		It("sends the query as text only", func() {
			_, err := gateway.ResolveQuery(context.Background(), "bell_pepper")
			Expect(err).NotTo(HaveOccurred())
			Expect(request.Messages[1].Content).To(ContainSubstring("bell pepper"))
			Expect(request.Messages[1].Images).To(BeEmpty())
		})
	})
})
