package handlers

import (
	"fmt"
	"net/http"

	"github.com/clearpolicy/clearpolicy/backend/go-services/internal/audit"
	"github.com/gin-gonic/gin"
)

func (a *API) AuditHistory(c *gin.Context) {
	c.JSON(http.StatusOK, a.svc.AuditHistory(c.Request.Context()))
}

// ExportAudit serves the audit history as a downloadable JSON file.
func (a *API) ExportAudit(c *gin.Context) {
	out, err := a.svc.ExportAudit(c.Request.Context())
	if err != nil {
		abortWithError(c, err)
		return
	}
	name := audit.ExportFilename(a.svc.Now())
	c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, name))
	c.Data(http.StatusOK, "application/json; charset=utf-8", out)
}
