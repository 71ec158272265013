package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// RegisterSwagger registers minimal Swagger/OpenAPI endpoints for the document service.
// - GET /swagger/index.html  -> a small HTML page that loads the OpenAPI JSON
// - GET /swagger/doc.json    -> machine-readable OpenAPI JSON
func RegisterSwagger(rg *gin.Engine) {
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
    <title>DentalHub documents API</title>
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

// OpenAPI document for the DentalHub document service.
const swaggerJSON = `{
  "openapi": "3.0.0",
  "info": { "title": "dentalhub-documents", "version": "v0.1.0" },
  "components": {
    "securitySchemes": { "bearer": { "type": "http", "scheme": "bearer", "bearerFormat": "JWT" } },
    "schemas": {
      "Document": {
        "type": "object",
        "properties": {
          "id": {"type":"string"}, "clinic_id": {"type":"string"}, "created_by": {"type":"string"},
          "title": {"type":"string"}, "content": {"type":"string"},
          "category": {"type":"string","enum":["policies","protocols","forms","instructions","insurance","other"]},
          "is_template": {"type":"boolean"}, "is_shared_with_patients": {"type":"boolean"},
          "tags": {"type":"array","items":{"type":"string"}}, "version": {"type":"integer","minimum":1},
          "created_at": {"type":"string","format":"date-time"}, "updated_at": {"type":"string","format":"date-time"}
        }
      },
      "Error": { "type": "object", "properties": { "error": {"type":"string"} } }
    }
  },
  "security": [ { "bearer": [] } ],
  "paths": {
    "/auth/login": {
      "post": {
        "summary": "Sign in through Keycloak and receive an access token",
        "security": [],
        "requestBody": { "content": { "application/json": { "schema": {"type":"object","properties":{"mode":{"type":"string","enum":["password","auth_code"]},"email":{"type":"string"},"password":{"type":"string"},"code":{"type":"string"},"redirect_uri":{"type":"string"}}}}}},
        "responses": { "200": { "description": "access token and profile" }, "401": { "description": "authentication failed" } }
      }
    },
    "/api/documents": {
      "get": {
        "summary": "List the caller's clinic documents, newest first",
        "parameters": [
          { "name": "category", "in": "query", "schema": {"type":"string"} },
          { "name": "search", "in": "query", "description": "case-insensitive match on title or any tag", "schema": {"type":"string"} }
        ],
        "responses": { "200": { "description": "documents" }, "403": { "description": "no clinic associated with account" } }
      },
      "post": {
        "summary": "Create a document (version 1)",
        "requestBody": { "content": { "application/json": { "schema": {"type":"object","required":["title","content"],"properties":{"title":{"type":"string"},"content":{"type":"string"},"category":{"type":"string"},"is_template":{"type":"boolean"},"is_shared_with_patients":{"type":"boolean"},"tags":{"type":"array","items":{"type":"string"}}}}}}},
        "responses": { "201": { "description": "created" }, "400": { "description": "validation failed" } }
      }
    },
    "/api/documents/{id}": {
      "get": { "summary": "Get a document", "responses": { "200": { "description": "document" }, "404": { "description": "Document not found" } } },
      "patch": { "summary": "Update changed fields; bumps the version", "responses": { "200": { "description": "updated document" }, "409": { "description": "modified concurrently" } } },
      "delete": { "summary": "Delete a document", "responses": { "204": { "description": "deleted" } } }
    },
    "/api/documents/{id}/duplicate": {
      "post": { "summary": "Copy a document into a new unshared version-1 document", "responses": { "201": { "description": "copy" } } }
    },
    "/api/documents/{id}/share": {
      "put": { "summary": "Set patient sharing", "requestBody": { "content": { "application/json": { "schema": {"type":"object","required":["shared"],"properties":{"shared":{"type":"boolean"}}}}}}, "responses": { "200": { "description": "document" } } }
    },
    "/api/documents/{id}/preview": {
      "get": { "summary": "Rendered markdown preview", "responses": { "200": { "description": "sanitized HTML" } } }
    },
    "/api/documents/{id}/handout": {
      "post": { "summary": "Publish a shared document as a patient handout", "responses": { "201": { "description": "presigned link" }, "503": { "description": "object storage not configured" } } }
    },
    "/api/v1/me": {
      "get": { "summary": "Caller profile (doctor or patient)", "responses": { "200": { "description": "profile" } } }
    },
    "/api/v1/logout": {
      "post": { "summary": "Revoke the presented access token", "responses": { "200": { "description": "logged out" } } }
    },
    "/health": { "get": { "summary": "Liveness check", "security": [], "responses": { "200": { "description": "healthy" } } } },
    "/ready": { "get": { "summary": "Readiness check", "security": [], "responses": { "200": { "description": "ready" }, "503": { "description": "not ready" } } } }
  }
}`
