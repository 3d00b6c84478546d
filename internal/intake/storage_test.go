package intake

import (
	"path/filepath"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("LocalStorage", func() {
	var (
		tmpDir  string
		storage Storage
	)

	BeforeEach(func() {
		tmpDir = GinkgoT().TempDir()
		var err error
		storage, err = NewLocalStorage(filepath.Join(tmpDir, "spool"))
		Expect(err).NotTo(HaveOccurred())
	})

	Describe("Save", func() {
		var (
			filename  string
			savedPath string
			err       error
		)

		BeforeEach(func() {
			filename = "doc-1_cv.pdf"
		})

		JustBeforeEach(func() {
			savedPath, err = storage.Save(filename, []byte("test file content"))
		})

		It("writes the file and returns its name", func() {
			Expect(err).NotTo(HaveOccurred())
			Expect(savedPath).To(Equal(filename))
			Expect(filepath.Join(tmpDir, "spool", filename)).To(BeAnExistingFile())
		})

		When("the name contains a path", func() {
			BeforeEach(func() {
				filename = "../escape.pdf"
			})

			It("refuses to write", func() {
				Expect(err).To(HaveOccurred())
				Expect(filepath.Join(tmpDir, "escape.pdf")).NotTo(BeAnExistingFile())
			})
		})
	})

	Describe("Get", func() {
		When("the file exists", func() {
			BeforeEach(func() {
				_, err := storage.Save("doc-1_cv.pdf", []byte("test file content"))
				Expect(err).NotTo(HaveOccurred())
			})

			It("returns its content", func() {
				data, err := storage.Get("doc-1_cv.pdf")
				Expect(err).NotTo(HaveOccurred())
				Expect(string(data)).To(Equal("test file content"))
			})
		})

		When("the file does not exist", func() {
			It("returns an error", func() {
				_, err := storage.Get("missing.pdf")
				Expect(err).To(HaveOccurred())
			})
		})
	})

	Describe("Delete", func() {
		It("removes the file", func() {
			_, err := storage.Save("doc-1_cv.pdf", []byte("x"))
			Expect(err).NotTo(HaveOccurred())
			Expect(storage.Delete("doc-1_cv.pdf")).To(Succeed())
			Expect(filepath.Join(tmpDir, "spool", "doc-1_cv.pdf")).NotTo(BeAnExistingFile())
		})

		It("fails for a missing file", func() {
			Expect(storage.Delete("missing.pdf")).To(HaveOccurred())
		})
	})
})
