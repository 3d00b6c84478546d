package intake

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strings"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/onsi/gomega/ghttp"

	"github.com/zombor/cv-intake/internal/auth"
	"github.com/zombor/cv-intake/internal/extract"
	"github.com/zombor/cv-intake/internal/remote"
	"github.com/zombor/cv-intake/internal/upload"
)

var _ = Describe("Server", func() {
	var (
		db          *mockDB
		storage     *mockStorage
		extractor   *mockExtractor
		uploader    *mockUploader
		credentials *mockCredentials
		basicAuth   BasicAuth
		server      *Server
		ghttpServer *ghttp.Server
	)

	BeforeEach(func() {
		db = newMockDB()
		storage = newMockStorage()
		extractor = &mockExtractor{record: extract.Record{GivenName: "Jane", FamilyName: "Doe", PhoneNumber: "07123456789"}}
		uploader = newMockUploader()
		credentials = &mockCredentials{}
		basicAuth = BasicAuth{}
	})

	JustBeforeEach(func() {
		clock := &mockTimeSource{now: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)}
		service := NewServiceWithDeps(db, storage, extractor, uploader, credentials, &mockIDGenerator{ids: []string{"doc-1", "doc-2"}}, clock)
		server = NewServerWithMux(service, basicAuth, http.NewServeMux())
		ghttpServer = ghttp.NewServer()
		ghttpServer.AppendHandlers(server.ServeHTTP)
	})

	AfterEach(func() {
		ghttpServer.Close()
	})

	do := func(method, path string, body io.Reader) *http.Response {
		req, err := http.NewRequest(method, ghttpServer.URL()+path, body)
		Expect(err).NotTo(HaveOccurred())
		if body != nil {
			req.Header.Set("Content-Type", "application/json")
		}
		resp, err := http.DefaultClient.Do(req)
		Expect(err).NotTo(HaveOccurred())
		DeferCleanup(resp.Body.Close)
		return resp
	}

	decodeBody := func(resp *http.Response, v any) {
		body, err := io.ReadAll(resp.Body)
		Expect(err).NotTo(HaveOccurred())
		Expect(json.Unmarshal(body, v)).To(Succeed())
	}

	seed := func(id string, record extract.Record) {
		storage.files[id+"_cv.pdf"] = []byte("pdf of " + id)
		db.documents[id] = &Document{Record: record, ID: id, ContentType: "application/pdf", StoredPath: id + "_cv.pdf"}
	}

	Describe("authentication", func() {
		BeforeEach(func() {
			basicAuth = BasicAuth{Username: "user", Password: "pass"}
		})

		It("rejects requests without credentials", func() {
			resp := do("GET", "/api/documents", nil)
			Expect(resp.StatusCode).To(Equal(http.StatusUnauthorized))
			Expect(resp.Header.Get("WWW-Authenticate")).NotTo(BeEmpty())
			Expect(resp.Header.Get("Access-Control-Allow-Origin")).To(Equal("*"))
		})

		It("accepts valid credentials", func() {
			req, err := http.NewRequest("GET", ghttpServer.URL()+"/api/documents", nil)
			Expect(err).NotTo(HaveOccurred())
			req.SetBasicAuth("user", "pass")
			resp, err := http.DefaultClient.Do(req)
			Expect(err).NotTo(HaveOccurred())
			defer resp.Body.Close()
			Expect(resp.StatusCode).To(Equal(http.StatusOK))
		})

		It("rejects a wrong password", func() {
			req, err := http.NewRequest("GET", ghttpServer.URL()+"/api/documents", nil)
			Expect(err).NotTo(HaveOccurred())
			req.SetBasicAuth("user", "wrong")
			Expect(server.authenticate(req)).To(BeFalse())
		})

		It("answers preflight requests without credentials", func() {
			resp := do("OPTIONS", "/api/documents", nil)
			Expect(resp.StatusCode).To(Equal(http.StatusNoContent))
			Expect(resp.Header.Get("Access-Control-Allow-Methods")).To(ContainSubstring("PATCH"))
		})
	})

	Describe("POST /api/documents", func() {
		post := func(names ...string) *http.Response {
			var b bytes.Buffer
			writer := multipart.NewWriter(&b)
			for _, name := range names {
				part, err := writer.CreateFormFile("file", name)
				Expect(err).NotTo(HaveOccurred())
				part.Write([]byte("content of " + name))
			}
			Expect(writer.Close()).To(Succeed())
			resp, err := http.Post(ghttpServer.URL()+"/api/documents", writer.FormDataContentType(), &b)
			Expect(err).NotTo(HaveOccurred())
			DeferCleanup(resp.Body.Close)
			return resp
		}

		It("stores every file and returns the documents", func() {
			resp := post("Jane-Doe.pdf", "John_Smith.docx")
			Expect(resp.StatusCode).To(Equal(http.StatusCreated))

			var documents []Document
			decodeBody(resp, &documents)
			Expect(documents).To(HaveLen(2))
			Expect(documents[0].ID).To(Equal("doc-1"))
			Expect(documents[0].ContentType).To(Equal("application/pdf"))
			Expect(documents[1].SourceFileName).To(Equal("John_Smith.docx"))
			Expect(db.documents).To(HaveLen(2))
		})

		It("keeps an explicit content type", func() {
			var b bytes.Buffer
			writer := multipart.NewWriter(&b)
			header := make(textproto.MIMEHeader)
			header.Set("Content-Disposition", `form-data; name="file"; filename="cv"`)
			header.Set("Content-Type", "Text/Plain")
			part, err := writer.CreatePart(header)
			Expect(err).NotTo(HaveOccurred())
			part.Write([]byte("Jane Doe"))
			Expect(writer.Close()).To(Succeed())

			resp, err := http.Post(ghttpServer.URL()+"/api/documents", writer.FormDataContentType(), &b)
			Expect(err).NotTo(HaveOccurred())
			defer resp.Body.Close()
			Expect(resp.StatusCode).To(Equal(http.StatusCreated))
			Expect(extractor.docs[0].MimeHint).To(Equal("text/plain"))
		})

		It("rejects a form without files", func() {
			resp := post()
			Expect(resp.StatusCode).To(Equal(http.StatusBadRequest))
			var body map[string]string
			decodeBody(resp, &body)
			Expect(body["error"]).To(ContainSubstring("No file"))
		})

		It("rejects an invalid form", func() {
			resp, err := http.Post(ghttpServer.URL()+"/api/documents", "multipart/form-data", strings.NewReader("invalid"))
			Expect(err).NotTo(HaveOccurred())
			defer resp.Body.Close()
			Expect(resp.StatusCode).To(Equal(http.StatusBadRequest))
		})

		When("storage fails", func() {
			BeforeEach(func() {
				storage.saveErr = errors.New("disk full")
			})

			It("returns an error", func() {
				resp := post("Jane-Doe.pdf")
				Expect(resp.StatusCode).To(Equal(http.StatusInternalServerError))
			})
		})
	})

	Describe("GET /api/documents", func() {
		BeforeEach(func() {
			seed("a", extract.Record{GivenName: "Jane", FamilyName: "Doe", PhoneNumber: "07123456789"})
			seed("b", extract.Record{GivenName: "John"})
		})

		It("lists every document", func() {
			resp := do("GET", "/api/documents", nil)
			Expect(resp.StatusCode).To(Equal(http.StatusOK))
			Expect(resp.Header.Get("Content-Type")).To(Equal("application/json"))
			var documents []Document
			decodeBody(resp, &documents)
			Expect(documents).To(HaveLen(2))
		})

		It("filters documents needing review", func() {
			resp := do("GET", "/api/documents?status=review", nil)
			var documents []Document
			decodeBody(resp, &documents)
			Expect(documents).To(HaveLen(1))
			Expect(documents[0].ID).To(Equal("b"))
		})

		It("rejects an unknown filter", func() {
			resp := do("GET", "/api/documents?status=odd", nil)
			Expect(resp.StatusCode).To(Equal(http.StatusBadRequest))
		})

		When("there are no documents", func() {
			BeforeEach(func() {
				db = newMockDB()
			})

			It("returns an empty array", func() {
				resp := do("GET", "/api/documents", nil)
				body, err := io.ReadAll(resp.Body)
				Expect(err).NotTo(HaveOccurred())
				Expect(strings.TrimSpace(string(body))).To(Equal("[]"))
			})
		})

		When("the database fails", func() {
			BeforeEach(func() {
				db.listErr = errors.New("db error")
			})

			It("returns Internal Server Error", func() {
				resp := do("GET", "/api/documents", nil)
				Expect(resp.StatusCode).To(Equal(http.StatusInternalServerError))
			})
		})
	})

	Describe("single document routes", func() {
		BeforeEach(func() {
			seed("a", extract.Record{GivenName: "Jane", RawText: "Jane Doe"})
		})

		It("returns a document", func() {
			resp := do("GET", "/api/documents/a", nil)
			Expect(resp.StatusCode).To(Equal(http.StatusOK))
			var document Document
			decodeBody(resp, &document)
			Expect(document.GivenName).To(Equal("Jane"))
		})

		It("returns 404 for a missing document", func() {
			resp := do("GET", "/api/documents/missing", nil)
			Expect(resp.StatusCode).To(Equal(http.StatusNotFound))
		})

		It("serves the original file", func() {
			resp := do("GET", "/api/documents/a/file", nil)
			Expect(resp.StatusCode).To(Equal(http.StatusOK))
			Expect(resp.Header.Get("Content-Type")).To(Equal("application/pdf"))
			body, err := io.ReadAll(resp.Body)
			Expect(err).NotTo(HaveOccurred())
			Expect(string(body)).To(Equal("pdf of a"))
		})

		It("applies review edits", func() {
			resp := do("PATCH", "/api/documents/a", strings.NewReader(`{"family_name":"Doe","phone_number":"07123 456789"}`))
			Expect(resp.StatusCode).To(Equal(http.StatusOK))
			var document Document
			decodeBody(resp, &document)
			Expect(document.Complete()).To(BeTrue())
		})

		It("rejects a phone number that does not normalize", func() {
			resp := do("PATCH", "/api/documents/a", strings.NewReader(`{"phone_number":"123"}`))
			Expect(resp.StatusCode).To(Equal(http.StatusBadRequest))
		})

		It("rejects an over-long name", func() {
			resp := do("PATCH", "/api/documents/a", strings.NewReader(`{"given_name":"`+strings.Repeat("a", 101)+`"}`))
			Expect(resp.StatusCode).To(Equal(http.StatusBadRequest))
		})

		It("re-extracts a field", func() {
			extractor.fieldValue = "Doe"
			resp := do("POST", "/api/documents/a/extract/family_name", nil)
			Expect(resp.StatusCode).To(Equal(http.StatusOK))
			Expect(db.documents["a"].FamilyName).To(Equal("Doe"))
		})

		It("rejects an unknown field", func() {
			extractor.fieldErr = extract.ErrUnknownField
			resp := do("POST", "/api/documents/a/extract/email", nil)
			Expect(resp.StatusCode).To(Equal(http.StatusBadRequest))
		})

		It("deletes a document", func() {
			resp := do("DELETE", "/api/documents/a", nil)
			Expect(resp.StatusCode).To(Equal(http.StatusNoContent))
			Expect(db.documents).To(BeEmpty())
		})

		It("returns 404 when deleting a missing document", func() {
			resp := do("DELETE", "/api/documents/missing", nil)
			Expect(resp.StatusCode).To(Equal(http.StatusNotFound))
		})
	})

	Describe("POST /api/batches", func() {
		var response batchResponse

		BeforeEach(func() {
			response = batchResponse{}
			seed("a", extract.Record{GivenName: "Jane"})
			seed("b", extract.Record{GivenName: "John"})
			seed("c", extract.Record{GivenName: "Ann"})
		})

		It("uploads the documents", func() {
			resp := do("POST", "/api/batches", strings.NewReader(`{"document_ids":["a","b","c"]}`))
			Expect(resp.StatusCode).To(Equal(http.StatusOK))
			decodeBody(resp, &response)
			Expect(response.Status).To(Equal(upload.StatusComplete))
			Expect(response.SessionID).To(Equal("session-1"))
			Expect(response.FolderLink).To(Equal("https://folder/1"))
			Expect(response.FileLinks).To(Equal([]string{"https://file/0", "https://file/1", "https://file/2"}))
			Expect(response.FailedIndices).To(BeEmpty())
		})

		When("one upload fails", func() {
			BeforeEach(func() {
				uploader.failIndex = 1
			})

			It("reports the failed index", func() {
				resp := do("POST", "/api/batches", strings.NewReader(`{"document_ids":["a","b","c"]}`))
				Expect(resp.StatusCode).To(Equal(http.StatusOK))
				decodeBody(resp, &response)
				Expect(response.Status).To(Equal(upload.StatusPartiallyFailed))
				Expect(response.FailedIndices).To(Equal([]int{1}))
				Expect(response.FileLinks[1]).To(BeEmpty())
				Expect(response.Error).NotTo(BeEmpty())
			})
		})

		When("credentials are missing", func() {
			BeforeEach(func() {
				uploader.batchErr = &auth.Error{Kind: auth.ErrMissingCredential}
			})

			It("returns a fatal status", func() {
				resp := do("POST", "/api/batches", strings.NewReader(`{"document_ids":["a"]}`))
				Expect(resp.StatusCode).To(Equal(http.StatusServiceUnavailable))
				decodeBody(resp, &response)
				Expect(response.Status).To(Equal(upload.StatusFatal))
			})
		})

		When("the container cannot be created", func() {
			BeforeEach(func() {
				uploader.batchErr = &upload.ContainerError{Op: "create", Cause: errors.New("quota")}
			})

			It("returns Bad Gateway", func() {
				resp := do("POST", "/api/batches", strings.NewReader(`{"document_ids":["a"]}`))
				Expect(resp.StatusCode).To(Equal(http.StatusBadGateway))
			})
		})

		It("continues an existing session", func() {
			db.sessions["s1"] = &upload.Session{ID: "s1", Container: remote.Container{ID: "folder-9", Link: "https://folder/9"}}
			resp := do("POST", "/api/batches", strings.NewReader(`{"document_ids":["a"],"session_id":"s1"}`))
			Expect(resp.StatusCode).To(Equal(http.StatusOK))
			decodeBody(resp, &response)
			Expect(response.SessionID).To(Equal("s1"))
			Expect(response.FolderLink).To(Equal("https://folder/9"))
		})

		It("rejects an empty id list", func() {
			resp := do("POST", "/api/batches", strings.NewReader(`{"document_ids":[]}`))
			Expect(resp.StatusCode).To(Equal(http.StatusBadRequest))
		})

		It("rejects a malformed body", func() {
			resp := do("POST", "/api/batches", strings.NewReader(`{`))
			Expect(resp.StatusCode).To(Equal(http.StatusBadRequest))
		})
	})

	Describe("POST /api/uploads", func() {
		It("extracts and uploads the files", func() {
			resp := do("POST", "/api/uploads", strings.NewReader(`{"files":[{"file_name":"Jane-Doe.txt","file_content":"SmFuZSBEb2U=","mime_type":"text/plain"}]}`))
			Expect(resp.StatusCode).To(Equal(http.StatusOK))

			var response batchResponse
			decodeBody(resp, &response)
			Expect(response.FileLinks).To(Equal([]string{"https://file/0"}))
			Expect(response.FolderLink).To(Equal("https://folder/1"))
			Expect(response.Status).To(Equal(upload.StatusComplete))
			Expect(response.Records).To(HaveLen(1))
			Expect(response.Records[0].ShareLink).To(Equal("https://file/0"))
		})

		It("requires a file name", func() {
			resp := do("POST", "/api/uploads", strings.NewReader(`{"files":[{"file_content":"SmFuZSBEb2U="}]}`))
			Expect(resp.StatusCode).To(Equal(http.StatusBadRequest))
		})

		It("rejects an empty file list", func() {
			resp := do("POST", "/api/uploads", strings.NewReader(`{"files":[]}`))
			Expect(resp.StatusCode).To(Equal(http.StatusBadRequest))
		})
	})

	Describe("batch sessions", func() {
		BeforeEach(func() {
			db.sessions["s1"] = &upload.Session{ID: "s1", Container: remote.Container{ID: "folder-1"}}
		})

		It("lists sessions", func() {
			resp := do("GET", "/api/batches", nil)
			var sessions []upload.Session
			decodeBody(resp, &sessions)
			Expect(sessions).To(HaveLen(1))
		})

		It("returns one session", func() {
			resp := do("GET", "/api/batches/s1", nil)
			Expect(resp.StatusCode).To(Equal(http.StatusOK))
		})

		It("returns 404 for a missing session", func() {
			resp := do("GET", "/api/batches/missing", nil)
			Expect(resp.StatusCode).To(Equal(http.StatusNotFound))
		})

		It("deletes a container", func() {
			resp := do("DELETE", "/api/containers/folder-1", nil)
			Expect(resp.StatusCode).To(Equal(http.StatusNoContent))
			Expect(uploader.deletedIDs).To(Equal([]string{"folder-1"}))
			Expect(db.sessions).To(BeEmpty())
		})

		It("passes nested container prefixes through", func() {
			resp := do("DELETE", "/api/containers/intake/CV_Uploads_2026/", nil)
			Expect(resp.StatusCode).To(Equal(http.StatusNoContent))
			Expect(uploader.deletedIDs).To(Equal([]string{"intake/CV_Uploads_2026/"}))
		})

		It("rejects container ids the store cannot address", func() {
			uploader.deleteErr = &upload.ContainerError{Op: "delete", Cause: fmt.Errorf("deleting %q: %w", "CV_Uploads_2026", remote.ErrInvalidContainer)}
			resp := do("DELETE", "/api/containers/CV_Uploads_2026", nil)
			Expect(resp.StatusCode).To(Equal(http.StatusBadRequest))
		})
	})

	Describe("credentials", func() {
		It("rotates the refresh token and returns the status", func() {
			credentials.status = auth.Status{Configured: true, Source: auth.SourceStore, DaysRemaining: 7}
			resp := do("PUT", "/api/credentials/refresh-token", strings.NewReader(`{"token":" 1//abc "}`))
			Expect(resp.StatusCode).To(Equal(http.StatusOK))
			Expect(credentials.rotated).To(Equal("1//abc"))

			var status auth.Status
			decodeBody(resp, &status)
			Expect(status.DaysRemaining).To(Equal(7))
		})

		It("rejects an invalid token", func() {
			credentials.rotateErr = auth.ErrInvalidRefreshToken
			resp := do("PUT", "/api/credentials/refresh-token", strings.NewReader(`{"token":"bad"}`))
			Expect(resp.StatusCode).To(Equal(http.StatusBadRequest))
		})

		It("requires a token", func() {
			resp := do("PUT", "/api/credentials/refresh-token", strings.NewReader(`{}`))
			Expect(resp.StatusCode).To(Equal(http.StatusBadRequest))
		})

		It("reports the status", func() {
			credentials.status = auth.Status{Configured: true, Source: auth.SourceConfig}
			resp := do("GET", "/api/credentials/status", nil)
			var status auth.Status
			decodeBody(resp, &status)
			Expect(status.Source).To(Equal(auth.SourceConfig))
		})
	})

	Describe("GET /api/export.xlsx", func() {
		It("downloads a workbook", func() {
			seed("a", extract.Record{GivenName: "Jane"})
			resp := do("GET", "/api/export.xlsx?status=review", nil)
			Expect(resp.StatusCode).To(Equal(http.StatusOK))
			Expect(resp.Header.Get("Content-Type")).To(Equal(xlsxType))
			Expect(resp.Header.Get("Content-Disposition")).To(ContainSubstring("candidates.xlsx"))
		})
	})
})
