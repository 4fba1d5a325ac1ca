// Package respond holds the response and request helpers shared by the
// API handlers.
package respond

import (
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/liliang-cn/claimdesk/internal/domain"
)

// Status maps a service error to its HTTP status code
func Status(err error) int {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrUnauthorized):
		return http.StatusUnauthorized
	case errors.Is(err, domain.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, domain.ErrRateLimited):
		return http.StatusTooManyRequests
	case errors.Is(err, domain.ErrConflict):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// Error writes err as {"error": ...}. Internal errors are recorded on the
// context for the request log and hidden from the client. Not-found bodies
// never name the resource, so a missing claim and a foreign one look alike.
func Error(c *gin.Context, err error) {
	status := Status(err)
	msg := err.Error()
	switch status {
	case http.StatusInternalServerError:
		_ = c.Error(err)
		msg = "internal server error"
	case http.StatusNotFound:
		msg = domain.ErrNotFound.Error()
	}
	c.JSON(status, gin.H{"error": msg})
}

// BadRequest writes a 400 with the given message
func BadRequest(c *gin.Context, msg string) {
	c.JSON(http.StatusBadRequest, gin.H{"error": msg})
}

// Page reads the page and page_size query parameters. Bounds are applied
// by the services.
func Page(c *gin.Context) (int, int) {
	page, _ := strconv.Atoi(c.Query("page"))
	size, _ := strconv.Atoi(c.Query("page_size"))
	return page, size
}

// IsMultipart reports whether the request carries a multipart form
func IsMultipart(c *gin.Context) bool {
	return c.ContentType() == gin.MIMEMultipartPOSTForm
}

// Uploads reads every file sent under field. Files larger than maxBytes are
// rejected with ErrInvalidInput.
func Uploads(c *gin.Context, field string, maxBytes int64) ([]*domain.Upload, error) {
	form, err := c.MultipartForm()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrInvalidInput, err)
	}
	headers := form.File[field]
	docTypes := form.Value["document_type"]

	uploads := make([]*domain.Upload, 0, len(headers))
	for i, fh := range headers {
		up, err := readUpload(fh, maxBytes)
		if err != nil {
			return nil, err
		}
		// document_type may be sent once for all files or once per file
		switch {
		case len(docTypes) == len(headers):
			up.DocumentType = docTypes[i]
		case len(docTypes) == 1:
			up.DocumentType = docTypes[0]
		}
		uploads = append(uploads, up)
	}
	return uploads, nil
}

func readUpload(fh *multipart.FileHeader, maxBytes int64) (*domain.Upload, error) {
	if maxBytes > 0 && fh.Size > maxBytes {
		return nil, fmt.Errorf("%w: %s exceeds the %d MB limit", domain.ErrInvalidInput, fh.Filename, maxBytes>>20)
	}
	f, err := fh.Open()
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", fh.Filename, err)
	}
	defer f.Close()

	content, err := io.ReadAll(f)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", fh.Filename, err)
	}
	return &domain.Upload{
		FileName: fh.Filename,
		MimeType: fh.Header.Get("Content-Type"),
		Content:  content,
	}, nil
}
