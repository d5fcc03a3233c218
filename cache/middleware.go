package cache

import (
	"bytes"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

// bufferedWriter holds the response body back so that a 304 can be sent
// instead when the client already has it.
type bufferedWriter struct {
	gin.ResponseWriter
	body   *bytes.Buffer
	status int
}

func (w *bufferedWriter) WriteHeader(code int) {
	if code > 0 {
		w.status = code
	}
}

func (w *bufferedWriter) WriteHeaderNow() {}

func (w *bufferedWriter) Write(b []byte) (int, error) {
	return w.body.Write(b)
}

func (w *bufferedWriter) WriteString(s string) (int, error) {
	return w.body.WriteString(s)
}

func (w *bufferedWriter) Status() int {
	return w.status
}

func (w *bufferedWriter) Size() int {
	return w.body.Len()
}

func (w *bufferedWriter) Written() bool {
	return w.body.Len() > 0
}

// ConditionalGet tags successful GET responses with an ETag computed from
// the body and answers 304 Not Modified when If-None-Match already has it.
// Pages stay private to the browser for maxAge.
func ConditionalGet(maxAge time.Duration) gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.Method != http.MethodGet {
			c.Next()
			return
		}

		original := c.Writer
		writer := &bufferedWriter{
			ResponseWriter: original,
			body:           bytes.NewBuffer(nil),
			status:         http.StatusOK,
		}
		c.Writer = writer

		c.Next()

		c.Writer = original
		body := writer.body.Bytes()

		if writer.status != http.StatusOK {
			original.WriteHeader(writer.status)
			original.Write(body)
			return
		}

		etag := ETag(body)
		original.Header().Set("ETag", etag)
		original.Header().Set("Cache-Control", fmt.Sprintf("private, max-age=%d", int(maxAge.Seconds())))

		if Matches(c.GetHeader("If-None-Match"), etag) {
			original.WriteHeader(http.StatusNotModified)
			return
		}

		original.WriteHeader(http.StatusOK)
		original.Write(body)
	}
}
