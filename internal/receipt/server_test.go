package receipt

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"strings"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/zombor/receipt-extractor/internal/extraction"
)

// multipartUpload builds a scan request with a single file part
func multipartUpload(filename, contentType string, data []byte) *http.Request {
	var body bytes.Buffer
	writer := multipart.NewWriter(&body)

	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename="%s"`, filename))
	if contentType != "" {
		header.Set("Content-Type", contentType)
	}
	part, err := writer.CreatePart(header)
	Expect(err).NotTo(HaveOccurred())
	_, err = part.Write(data)
	Expect(err).NotTo(HaveOccurred())
	Expect(writer.Close()).To(Succeed())

	req := httptest.NewRequest(http.MethodPost, "/api/receipts/scan", &body)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	return req
}

func decodeError(rec *httptest.ResponseRecorder) string {
	var body map[string]string
	Expect(json.Unmarshal(rec.Body.Bytes(), &body)).To(Succeed())
	return body["error"]
}

var _ = Describe("Server", func() {
	var (
		db        *mockDB
		storage   *mockStorage
		extractor *mockExtractor
		auth      BasicAuth
		server    *Server
		rec       *httptest.ResponseRecorder
	)

	BeforeEach(func() {
		db = newMockDB()
		storage = newMockStorage()
		extractor = newMockExtractor()
		auth = BasicAuth{}
		rec = httptest.NewRecorder()
	})

	JustBeforeEach(func() {
		service := NewServiceWithDeps(db, extractor, storage, &mockIDGenerator{id: "draft-1"}, &mockTimeSource{now: time.Date(2024, 1, 15, 10, 0, 0, 0, time.UTC)})
		server = NewServerWithMux(service, auth, http.NewServeMux())
	})

	Describe("POST /api/receipts/scan", func() {
		var req *http.Request

		BeforeEach(func() {
			req = multipartUpload("receipt.jpg", "image/jpeg", []byte("jpeg bytes"))
		})

		JustBeforeEach(func() {
			server.ServeHTTP(rec, req)
		})

		When("the receipt is readable", func() {
			It("should return status Created", func() {
				Expect(rec.Code).To(Equal(http.StatusCreated))
				Expect(rec.Header().Get("Content-Type")).To(Equal("application/json"))
			})

			It("should return the draft", func() {
				var draft Draft
				Expect(json.Unmarshal(rec.Body.Bytes(), &draft)).To(Succeed())
				Expect(draft.ID).To(Equal("draft-1"))
				Expect(draft.Status).To(Equal(StatusPending))
				Expect(*draft.Result.Merchant).To(Equal("CORNER CAFE"))
			})

			It("should encode the amount with two decimals", func() {
				Expect(rec.Body.String()).To(ContainSubstring(`"amount":"3.50"`))
			})
		})

		When("the part has no content type", func() {
			BeforeEach(func() {
				req = multipartUpload("scan.PNG", "", []byte("png bytes"))
			})

			It("should derive it from the extension", func() {
				Expect(extractor.uploads).To(HaveLen(1))
				Expect(extractor.uploads[0].ContentType).To(Equal("image/png"))
			})
		})

		When("the image is invalid", func() {
			BeforeEach(func() {
				extractor.extractErr = fmt.Errorf("%w: not an image", extraction.ErrInvalidImage)
			})

			It("should return Bad Request with a user message", func() {
				Expect(rec.Code).To(Equal(http.StatusBadRequest))
				Expect(decodeError(rec)).To(Equal("please upload a valid JPG/PNG under 5MB."))
			})
		})

		When("the file is larger than the limit", func() {
			BeforeEach(func() {
				req = multipartUpload("big.jpg", "image/jpeg", bytes.Repeat([]byte{1}, 5<<20+10))
			})

			It("should reject it before extraction", func() {
				Expect(rec.Code).To(Equal(http.StatusBadRequest))
				Expect(decodeError(rec)).To(ContainSubstring("under 5MB"))
				Expect(extractor.uploads).To(BeEmpty())
			})
		})

		When("recognition is unavailable", func() {
			BeforeEach(func() {
				extractor.extractErr = fmt.Errorf("%w: timeout", extraction.ErrRecognitionUnavailable)
			})

			It("should return Service Unavailable", func() {
				Expect(rec.Code).To(Equal(http.StatusServiceUnavailable))
				Expect(rec.Header().Get("Retry-After")).NotTo(BeEmpty())
				Expect(decodeError(rec)).To(Equal("could not read receipt, try again or enter manually."))
			})
		})

		When("storing the draft fails", func() {
			BeforeEach(func() {
				db.saveErr = errors.New("database error")
			})

			It("should return Internal Server Error", func() {
				Expect(rec.Code).To(Equal(http.StatusInternalServerError))
			})
		})

		When("no file is provided", func() {
			BeforeEach(func() {
				var body bytes.Buffer
				writer := multipart.NewWriter(&body)
				Expect(writer.WriteField("note", "nothing")).To(Succeed())
				Expect(writer.Close()).To(Succeed())
				req = httptest.NewRequest(http.MethodPost, "/api/receipts/scan", &body)
				req.Header.Set("Content-Type", writer.FormDataContentType())
			})

			It("should return Bad Request", func() {
				Expect(rec.Code).To(Equal(http.StatusBadRequest))
				Expect(decodeError(rec)).To(ContainSubstring("No file was selected"))
			})
		})

		When("the body is not multipart", func() {
			BeforeEach(func() {
				req = httptest.NewRequest(http.MethodPost, "/api/receipts/scan", strings.NewReader("{}"))
				req.Header.Set("Content-Type", "application/json")
			})

			It("should return Bad Request", func() {
				Expect(rec.Code).To(Equal(http.StatusBadRequest))
			})
		})
	})

	Describe("GET /api/drafts", func() {
		var path string

		BeforeEach(func() {
			path = "/api/drafts"
			db.drafts["a"] = &Draft{ID: "a", Status: StatusPending}
			db.drafts["b"] = &Draft{ID: "b", Status: StatusConfirmed, Expense: &Expense{}}
		})

		JustBeforeEach(func() {
			server.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		})

		It("should return all drafts", func() {
			Expect(rec.Code).To(Equal(http.StatusOK))
			var drafts []*Draft
			Expect(json.Unmarshal(rec.Body.Bytes(), &drafts)).To(Succeed())
			Expect(drafts).To(HaveLen(2))
		})

		When("filtering by status", func() {
			BeforeEach(func() {
				path = "/api/drafts?status=pending"
			})

			It("should return matching drafts", func() {
				var drafts []*Draft
				Expect(json.Unmarshal(rec.Body.Bytes(), &drafts)).To(Succeed())
				Expect(drafts).To(HaveLen(1))
				Expect(drafts[0].ID).To(Equal("a"))
			})
		})

		When("the status is unknown", func() {
			BeforeEach(func() {
				path = "/api/drafts?status=lost"
			})

			It("should return Bad Request", func() {
				Expect(rec.Code).To(Equal(http.StatusBadRequest))
			})
		})

		When("no drafts exist", func() {
			BeforeEach(func() {
				db.drafts = map[string]*Draft{}
			})

			It("should return an empty array", func() {
				Expect(strings.TrimSpace(rec.Body.String())).To(Equal("[]"))
			})
		})
	})

	Describe("GET /api/drafts/{id}", func() {
		BeforeEach(func() {
			db.drafts["a"] = &Draft{ID: "a", Status: StatusPending}
		})

		It("should return the draft", func() {
			server.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/drafts/a", nil))
			Expect(rec.Code).To(Equal(http.StatusOK))
		})

		It("should return Not Found for unknown drafts", func() {
			server.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/drafts/zzz", nil))
			Expect(rec.Code).To(Equal(http.StatusNotFound))
			Expect(decodeError(rec)).To(Equal("Draft not found"))
		})
	})

	Describe("GET /api/drafts/{id}/image", func() {
		BeforeEach(func() {
			db.drafts["a"] = &Draft{ID: "a", Filename: "a_receipt.jpg", ContentType: "image/jpeg"}
			storage.files["a_receipt.jpg"] = []byte("jpeg bytes")
		})

		It("should return the image", func() {
			server.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/drafts/a/image", nil))
			Expect(rec.Code).To(Equal(http.StatusOK))
			Expect(rec.Header().Get("Content-Type")).To(Equal("image/jpeg"))
			Expect(rec.Body.Bytes()).To(Equal([]byte("jpeg bytes")))
		})

		It("should return Not Found when the image is gone", func() {
			delete(storage.files, "a_receipt.jpg")
			server.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/drafts/a/image", nil))
			Expect(rec.Code).To(Equal(http.StatusNotFound))
		})
	})

	Describe("GET /api/drafts/{id}/prefill", func() {
		BeforeEach(func() {
			db.drafts["a"] = &Draft{ID: "a", Status: StatusPending, Result: *newMockExtractor().result}
		})

		It("should return the suggested expense", func() {
			server.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/drafts/a/prefill", nil))
			Expect(rec.Code).To(Equal(http.StatusOK))

			var exp Expense
			Expect(json.Unmarshal(rec.Body.Bytes(), &exp)).To(Succeed())
			Expect(exp.Merchant).To(Equal("CORNER CAFE"))
			Expect(exp.Category).To(Equal("food"))
		})
	})

	Describe("POST /api/drafts/{id}/confirm", func() {
		var body string

		BeforeEach(func() {
			db.drafts["a"] = &Draft{ID: "a", Status: StatusPending}
			body = `{"merchant":"Corner Cafe","amount":"3.50","date":"2024-01-10","category":"food"}`
		})

		JustBeforeEach(func() {
			server.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/drafts/a/confirm", strings.NewReader(body)))
		})

		When("the expense is valid", func() {
			It("should confirm the draft", func() {
				Expect(rec.Code).To(Equal(http.StatusOK))
				Expect(db.drafts["a"].Status).To(Equal(StatusConfirmed))
				Expect(db.drafts["a"].Expense.Amount.StringFixed(2)).To(Equal("3.50"))
			})
		})

		When("the expense is invalid", func() {
			BeforeEach(func() {
				body = `{"merchant":"","amount":"3.50","date":"2024-01-10","category":"food"}`
			})

			It("should return Bad Request with the reason", func() {
				Expect(rec.Code).To(Equal(http.StatusBadRequest))
				Expect(decodeError(rec)).To(ContainSubstring("merchant is required"))
			})
		})

		When("the body is not JSON", func() {
			BeforeEach(func() {
				body = "merchant=x"
			})

			It("should return Bad Request", func() {
				Expect(rec.Code).To(Equal(http.StatusBadRequest))
				Expect(decodeError(rec)).To(Equal("Invalid request body"))
			})
		})

		When("the draft is already confirmed", func() {
			BeforeEach(func() {
				db.drafts["a"].Status = StatusConfirmed
			})

			It("should return Conflict", func() {
				Expect(rec.Code).To(Equal(http.StatusConflict))
			})
		})
	})

	Describe("DELETE /api/drafts/{id}", func() {
		BeforeEach(func() {
			db.drafts["a"] = &Draft{ID: "a", Filename: "a_receipt.jpg"}
			storage.files["a_receipt.jpg"] = []byte("jpeg bytes")
		})

		It("should return No Content", func() {
			server.ServeHTTP(rec, httptest.NewRequest(http.MethodDelete, "/api/drafts/a", nil))
			Expect(rec.Code).To(Equal(http.StatusNoContent))
			Expect(db.drafts).To(BeEmpty())
		})

		It("should return Not Found for unknown drafts", func() {
			server.ServeHTTP(rec, httptest.NewRequest(http.MethodDelete, "/api/drafts/zzz", nil))
			Expect(rec.Code).To(Equal(http.StatusNotFound))
		})

		When("the database fails", func() {
			BeforeEach(func() {
				db.deleteErr = errors.New("database error")
			})

			It("should return Internal Server Error", func() {
				server.ServeHTTP(rec, httptest.NewRequest(http.MethodDelete, "/api/drafts/a", nil))
				Expect(rec.Code).To(Equal(http.StatusInternalServerError))
			})
		})
	})

	Describe("GET /api/expenses/export", func() {
		BeforeEach(func() {
			exp := validExpense()
			db.drafts["a"] = &Draft{ID: "a", Status: StatusConfirmed, Expense: &exp}
		})

		It("should default to CSV", func() {
			server.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/expenses/export", nil))
			Expect(rec.Code).To(Equal(http.StatusOK))
			Expect(rec.Header().Get("Content-Type")).To(Equal("text/csv"))
			Expect(rec.Body.String()).To(ContainSubstring("a,2024-01-10,Corner Cafe,food,3.50"))
		})

		It("should build XLSX on request", func() {
			server.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/expenses/export?format=xlsx", nil))
			Expect(rec.Code).To(Equal(http.StatusOK))
			Expect(rec.Body.Bytes()[:2]).To(Equal([]byte("PK")))
		})

		It("should reject unknown formats", func() {
			server.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/expenses/export?format=pdf", nil))
			Expect(rec.Code).To(Equal(http.StatusBadRequest))
		})
	})

	Describe("CORS", func() {
		It("should answer preflight requests", func() {
			server.ServeHTTP(rec, httptest.NewRequest(http.MethodOptions, "/api/drafts", nil))
			Expect(rec.Code).To(Equal(http.StatusNoContent))
			Expect(rec.Header().Get("Access-Control-Allow-Origin")).To(Equal("*"))
		})

		It("should set headers on normal responses", func() {
			server.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/drafts", nil))
			Expect(rec.Header().Get("Access-Control-Allow-Methods")).To(ContainSubstring("DELETE"))
		})
	})

	Describe("authentication", func() {
		BeforeEach(func() {
			auth = BasicAuth{Username: "admin", Password: "secret"}
		})

		request := func(credentials string) *http.Request {
			req := httptest.NewRequest(http.MethodGet, "/api/drafts", nil)
			if credentials != "" {
				req.Header.Set("Authorization", "Basic "+base64.StdEncoding.EncodeToString([]byte(credentials)))
			}
			return req
		}

		When("no credentials are sent", func() {
			It("should return Unauthorized", func() {
				server.ServeHTTP(rec, request(""))
				Expect(rec.Code).To(Equal(http.StatusUnauthorized))
				Expect(rec.Header().Get("WWW-Authenticate")).To(ContainSubstring("Basic"))
				Expect(rec.Header().Get("Access-Control-Allow-Origin")).To(Equal("*"))
			})
		})

		When("the password is wrong", func() {
			It("should return Unauthorized", func() {
				server.ServeHTTP(rec, request("admin:wrong"))
				Expect(rec.Code).To(Equal(http.StatusUnauthorized))
			})
		})

		When("the credentials are right", func() {
			It("should return status OK", func() {
				server.ServeHTTP(rec, request("admin:secret"))
				Expect(rec.Code).To(Equal(http.StatusOK))
			})
		})

		When("checking health", func() {
			It("should not require credentials", func() {
				server.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
				Expect(rec.Code).To(Equal(http.StatusOK))
			})
		})
	})
})
