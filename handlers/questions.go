package handlers

import (
	"net/http"
	"strings"

	"github.com/clearpolicy/clearpolicy/backend/go-services/internal/qa"
	"github.com/gin-gonic/gin"
)

// bindQuestion reads {question, jurisdiction, policy_ids}. The question is
// trimmed and required; a blank jurisdiction becomes the default label.
func bindQuestion(c *gin.Context) (qa.Request, bool) {
	var req qa.Request
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return req, false
	}
	req.Question = strings.TrimSpace(req.Question)
	if req.Question == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "question is required"})
		return req, false
	}
	if strings.TrimSpace(req.Jurisdiction) == "" {
		req.Jurisdiction = qa.DefaultJurisdiction()
	}
	return req, true
}

// Ask answers without touching the audit log.
func (a *API) Ask(c *gin.Context) {
	req, ok := bindQuestion(c)
	if !ok {
		return
	}
	r, err := a.svc.Ask(c.Request.Context(), req.Question, req.Jurisdiction, req.PolicyIDs)
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, r)
}

// AskAndRecord answers and appends the interaction to the audit log.
func (a *API) AskAndRecord(c *gin.Context) {
	req, ok := bindQuestion(c)
	if !ok {
		return
	}
	e, err := a.svc.AskAndRecord(c.Request.Context(), req.Question, req.Jurisdiction, req.PolicyIDs)
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, e)
}

func (a *API) Jurisdictions(c *gin.Context) {
	c.JSON(http.StatusOK, qa.Jurisdictions)
}
