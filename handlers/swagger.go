package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// RegisterSwagger registers minimal Swagger/OpenAPI endpoints.
// - GET /swagger/index.html  -> a small HTML page that loads the OpenAPI JSON
// - GET /swagger/doc.json    -> machine-readable OpenAPI JSON
func RegisterSwagger(rg gin.IRouter) {
	rg.GET("/swagger/index.html", func(c *gin.Context) {
		c.Header("Content-Type", "text/html; charset=utf-8")
		c.String(http.StatusOK, swaggerHTML)
	})

	rg.GET("/swagger/doc.json", func(c *gin.Context) {
		c.Data(http.StatusOK, "application/json; charset=utf-8", []byte(swaggerJSON))
	})
}

const swaggerHTML = `<!doctype html>
<html>
  <head>
    <meta charset="utf-8" />
    <title>clearpolicy - Swagger</title>
    <link rel="stylesheet" href="https://unpkg.com/swagger-ui-dist@4/swagger-ui.css" />
  </head>
  <body>
    <div id="swagger-ui"></div>
    <script src="https://unpkg.com/swagger-ui-dist@4/swagger-ui-bundle.js"></script>
    <script>
      window.ui = SwaggerUIBundle({
        url: '/swagger/doc.json',
        dom_id: '#swagger-ui',
      })
    </script>
  </body>
</html>`

const swaggerJSON = `{
  "openapi": "3.0.0",
  "info": { "title": "clearpolicy", "version": "v0.1.0" },
  "components": {
    "schemas": {
      "Policy": {"type":"object","properties":{"id":{"type":"string"},"filename":{"type":"string"},"version":{"type":"integer"},"status":{"type":"string","enum":["Processing","Indexed"]},"uploadedAt":{"type":"string","format":"date-time"}}},
      "Citation": {"type":"object","properties":{"policyName":{"type":"string"},"page":{"type":"integer"},"snippet":{"type":"string"}}},
      "Response": {"type":"object","properties":{"answer":{"type":"string"},"confidence":{"type":"integer"},"citations":{"type":"array","items":{"$ref":"#/components/schemas/Citation"}},"unknown":{"type":"boolean"}}},
      "Question": {"type":"object","properties":{"question":{"type":"string"},"jurisdiction":{"type":"string"},"policy_ids":{"type":"array","items":{"type":"string"}}}},
      "Entry": {"type":"object","properties":{"question":{"type":"string"},"jurisdiction":{"type":"string"},"response":{"$ref":"#/components/schemas/Response"},"askedAt":{"type":"string","format":"date-time"}}}
    }
  },
  "paths": {
    "/api/mode": { "get": { "summary": "Whether simulators are active", "responses": { "200": { "description": "{\"mock\": bool}" } } } },
    "/api/policies": { "get": { "summary": "List policies", "responses": { "200": { "description": "policy list" }, "502": { "description": "failed to list policies" } } } },
    "/api/policies/upload": {
      "post": {
        "summary": "Upload a PDF or DOCX policy",
        "requestBody": { "content": { "multipart/form-data": { "schema": {"type":"object","properties":{"file":{"type":"string","format":"binary"}}}}}},
        "responses": { "201": { "description": "created policy" }, "400": { "description": "Only PDF and DOCX files are allowed." }, "502": { "description": "failed to upload policy" } }
      }
    },
    "/api/policies/{id}/file": {
      "get": {
        "summary": "Download an uploaded policy file (mock mode with a bucket)",
        "parameters": [{ "name": "id", "in": "path", "required": true, "schema": {"type":"string"} }],
        "responses": { "200": { "description": "file bytes" }, "404": { "description": "policy file not found" } }
      }
    },
    "/api/qa": {
      "post": { "summary": "Ask a question", "requestBody": { "content": { "application/json": { "schema": {"$ref":"#/components/schemas/Question"}}}}, "responses": { "200": { "description": "answer" }, "400": { "description": "question is required" }, "502": { "description": "failed to get answer" } } }
    },
    "/api/questions": {
      "post": { "summary": "Ask a question and record it in the audit log", "requestBody": { "content": { "application/json": { "schema": {"$ref":"#/components/schemas/Question"}}}}, "responses": { "200": { "description": "audit entry" }, "400": { "description": "question is required" }, "502": { "description": "failed to get answer" } } }
    },
    "/api/jurisdictions": { "get": { "summary": "Jurisdiction labels", "responses": { "200": { "description": "labels" } } } },
    "/api/audit": { "get": { "summary": "Recent audit entries", "responses": { "200": { "description": "entries, oldest first" } } } },
    "/api/audit/export": { "get": { "summary": "Download the audit log", "responses": { "200": { "description": "clearpolicy-audit-<date>.json" } } } },
    "/health": { "get": { "summary": "Liveness check", "responses": { "200": { "description": "healthy" } } } },
    "/ready": { "get": { "summary": "Readiness check", "responses": { "200": { "description": "ready" }, "503": { "description": "not ready" } } } }
  }
}`
