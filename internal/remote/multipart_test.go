package remote

import (
	"io"
	"mime"
	"mime/multipart"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("encodeMultipart", func() {
	It("can be read back as multipart/related", func() {
		body, contentType, err := encodeMultipart(fileMetadata{Name: "cv.docx"}, "", []byte{0x50, 0x4b, 0x03, 0x04})
		Expect(err).NotTo(HaveOccurred())

		mediaType, params, err := mime.ParseMediaType(contentType)
		Expect(err).NotTo(HaveOccurred())
		Expect(mediaType).To(Equal("multipart/related"))
		Expect(params["boundary"]).To(Equal(multipartBoundary))

		reader := multipart.NewReader(body, params["boundary"])

		meta, err := reader.NextPart()
		Expect(err).NotTo(HaveOccurred())
		Expect(meta.Header.Get("Content-Type")).To(Equal("application/json; charset=UTF-8"))
		metaBytes, err := io.ReadAll(meta)
		Expect(err).NotTo(HaveOccurred())
		Expect(metaBytes).To(MatchJSON(`{"name":"cv.docx"}`))

		payload, err := reader.NextPart()
		Expect(err).NotTo(HaveOccurred())
		Expect(payload.Header.Get("Content-Type")).To(Equal("application/octet-stream"))
		data, err := io.ReadAll(payload)
		Expect(err).NotTo(HaveOccurred())
		Expect(data).To(Equal([]byte{0x50, 0x4b, 0x03, 0x04}))

		_, err = reader.NextPart()
		Expect(err).To(Equal(io.EOF))
	})
})
