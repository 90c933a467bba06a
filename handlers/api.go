package handlers

import (
	"errors"
	"net/http"

	"github.com/clearpolicy/clearpolicy/backend/go-services/internal/backend"
	"github.com/clearpolicy/clearpolicy/backend/go-services/internal/clearpolicy"
	"github.com/clearpolicy/clearpolicy/backend/go-services/pkg/logger"
	"github.com/gin-gonic/gin"
)

// API exposes a clearpolicy.Service over HTTP. The policy and qa routes keep
// the shape of the external backend, so one instance can act as another's
// delegated backend.
type API struct {
	svc *clearpolicy.Service
}

func NewAPI(svc *clearpolicy.Service) *API {
	return &API{svc: svc}
}

// Register mounts every /api route on rg.
func (a *API) Register(rg gin.IRouter) {
	api := rg.Group("/api")
	api.GET("/mode", a.Mode)
	api.GET("/policies", a.ListPolicies)
	api.POST("/policies/upload", a.UploadPolicy)
	api.GET("/policies/:id/file", a.PolicyFile)
	api.POST("/qa", a.Ask)
	api.POST("/questions", a.AskAndRecord)
	api.GET("/jurisdictions", a.Jurisdictions)
	api.GET("/audit", a.AuditHistory)
	api.GET("/audit/export", a.ExportAudit)
}

// Mode reports whether this instance answers from its simulators.
func (a *API) Mode(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"mock": a.svc.IsMockMode()})
}

var backendErrors = []error{backend.ErrListPolicies, backend.ErrUploadPolicy, backend.ErrAsk}

// abortWithError maps backend failures to 502 with their generic message and
// everything else to 500.
func abortWithError(c *gin.Context, err error) {
	for _, sentinel := range backendErrors {
		if errors.Is(err, sentinel) {
			c.AbortWithStatusJSON(http.StatusBadGateway, gin.H{"error": sentinel.Error()})
			return
		}
	}
	logger.Errorf("%s %s: %v", c.Request.Method, c.FullPath(), err)
	c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
}
