package handlers

import (
	"errors"
	"io"
	"mime"
	"net/http"
	"path"

	"github.com/clearpolicy/clearpolicy/backend/go-services/internal/policy"
	"github.com/gin-gonic/gin"
)

// ListPolicies returns every policy record.
func (a *API) ListPolicies(c *gin.Context) {
	list, err := a.svc.ListPolicies(c.Request.Context())
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, list)
}

// UploadPolicy accepts a PDF or DOCX in multipart field "file".
func (a *API) UploadPolicy(c *gin.Context) {
	fh, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "file is required"})
		return
	}
	src, err := fh.Open()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	defer src.Close()

	ct := fh.Header.Get("Content-Type")
	if ct == "" || ct == "application/octet-stream" {
		sniffed, err := policy.SniffContentType(src)
		if err == nil {
			ct = sniffed
		}
		if _, err := src.Seek(0, io.SeekStart); err != nil {
			abortWithError(c, err)
			return
		}
	}
	if !policy.AllowedFile(fh.Filename, ct) {
		c.JSON(http.StatusBadRequest, gin.H{"error": policy.DisallowedFileMessage})
		return
	}

	p, err := a.svc.UploadPolicy(c.Request.Context(), policy.File{
		Name:        fh.Filename,
		ContentType: ct,
		Size:        fh.Size,
		Content:     src,
	})
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusCreated, p)
}

// PolicyFile streams the stored bytes of an uploaded policy. Only mock mode
// with a configured bucket keeps files.
func (a *API) PolicyFile(c *gin.Context) {
	p, rc, err := a.svc.OpenPolicyFile(c.Request.Context(), c.Param("id"))
	switch {
	case errors.Is(err, policy.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "policy file not found"})
		return
	case errors.Is(err, policy.ErrNoFiles):
		c.JSON(http.StatusNotFound, gin.H{"error": "policy files are not kept on this instance"})
		return
	case err != nil:
		abortWithError(c, err)
		return
	}
	defer rc.Close()

	name := path.Base(p.Filename)
	c.DataFromReader(http.StatusOK, -1, policy.ContentTypeFor(name), rc, map[string]string{
		"Content-Disposition": mime.FormatMediaType("attachment", map[string]string{"filename": name}),
	})
}
