package intake

import (
	"context"
	"path/filepath"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/zombor/cv-intake/internal/auth"
	"github.com/zombor/cv-intake/internal/extract"
	"github.com/zombor/cv-intake/internal/remote"
	"github.com/zombor/cv-intake/internal/upload"
)

var _ auth.TokenStore = (*BoltDB)(nil)

var _ = Describe("BoltDB", func() {
	var (
		dbPath string
		db     *BoltDB
	)

	BeforeEach(func() {
		dbPath = filepath.Join(GinkgoT().TempDir(), "test.db")
		var err error
		db, err = NewBoltDB(dbPath)
		Expect(err).NotTo(HaveOccurred())
	})

	AfterEach(func() {
		if db != nil {
			db.Close()
		}
	})

	Describe("documents", func() {
		var document *Document

		BeforeEach(func() {
			document = &Document{
				Record:      extract.Record{GivenName: "Jane", FamilyName: "Doe", PhoneNumber: "07123456789", SourceFileName: "cv.pdf"},
				ID:          "doc-1",
				ContentType: "application/pdf",
				StoredPath:  "doc-1_cv.pdf",
				CreatedAt:   time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC),
			}
			Expect(db.SaveDocument(document)).To(Succeed())
		})

		It("reads a saved document back", func() {
			saved, err := db.GetDocument("doc-1")
			Expect(err).NotTo(HaveOccurred())
			Expect(saved.GivenName).To(Equal("Jane"))
			Expect(saved.PhoneNumber).To(Equal("07123456789"))
			Expect(saved.StoredPath).To(Equal("doc-1_cv.pdf"))
			Expect(saved.CreatedAt.Equal(document.CreatedAt)).To(BeTrue())
		})

		It("lists documents", func() {
			Expect(db.SaveDocument(&Document{ID: "doc-2"})).To(Succeed())
			documents, err := db.ListDocuments()
			Expect(err).NotTo(HaveOccurred())
			Expect(documents).To(HaveLen(2))
		})

		It("overwrites on save", func() {
			document.PhoneNumber = ""
			Expect(db.SaveDocument(document)).To(Succeed())
			saved, err := db.GetDocument("doc-1")
			Expect(err).NotTo(HaveOccurred())
			Expect(saved.Complete()).To(BeFalse())
		})

		It("deletes documents", func() {
			Expect(db.DeleteDocument("doc-1")).To(Succeed())
			_, err := db.GetDocument("doc-1")
			Expect(err).To(MatchError(ErrNotFound))
		})

		When("the document does not exist", func() {
			It("returns ErrNotFound", func() {
				_, err := db.GetDocument("missing")
				Expect(err).To(MatchError(ErrNotFound))
				Expect(db.DeleteDocument("missing")).To(MatchError(ErrNotFound))
			})
		})
	})

	Describe("sessions", func() {
		BeforeEach(func() {
			Expect(db.SaveSession(&upload.Session{
				ID:            "session-1",
				Container:     remote.Container{ID: "folder-1", Link: "https://folder/1"},
				FileLinks:     []string{"https://file/0", ""},
				FailedIndices: []int{1},
				Status:        upload.StatusPartiallyFailed,
			})).To(Succeed())
		})

		It("reads a saved session back", func() {
			session, err := db.GetSession("session-1")
			Expect(err).NotTo(HaveOccurred())
			Expect(session.Container.ID).To(Equal("folder-1"))
			Expect(session.FailedIndices).To(Equal([]int{1}))
			Expect(session.Status).To(Equal(upload.StatusPartiallyFailed))
		})

		It("lists and deletes sessions", func() {
			sessions, err := db.ListSessions()
			Expect(err).NotTo(HaveOccurred())
			Expect(sessions).To(HaveLen(1))

			Expect(db.DeleteSession("session-1")).To(Succeed())
			_, err = db.GetSession("session-1")
			Expect(err).To(MatchError(ErrNotFound))
		})
	})

	Describe("refresh token", func() {
		var ctx context.Context

		BeforeEach(func() {
			ctx = context.Background()
		})

		When("nothing is stored", func() {
			It("returns an empty token", func() {
				token, updatedAt, err := db.LoadRefreshToken(ctx)
				Expect(err).NotTo(HaveOccurred())
				Expect(token).To(BeEmpty())
				Expect(updatedAt.IsZero()).To(BeTrue())
			})
		})

		When("a token is stored", func() {
			var updated time.Time

			BeforeEach(func() {
				updated = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
				Expect(db.SaveRefreshToken(ctx, "1//stored", updated)).To(Succeed())
			})

			It("survives reopening the database", func() {
				Expect(db.Close()).To(Succeed())
				var err error
				db, err = NewBoltDB(dbPath)
				Expect(err).NotTo(HaveOccurred())

				token, updatedAt, err := db.LoadRefreshToken(ctx)
				Expect(err).NotTo(HaveOccurred())
				Expect(token).To(Equal("1//stored"))
				Expect(updatedAt.Equal(updated)).To(BeTrue())
			})
		})
	})
})
