package http

import "github.com/fyrsmithlabs/memoryd/internal/memory"

// IngestResponse is the response body for POST /ingest.
type IngestResponse struct {
	Namespace string              `json:"namespace"`
	Counts    memory.IngestCounts `json:"counts"`
}

// NamespaceRequest is the request body for POST /admin/namespaces.
type NamespaceRequest struct {
	Name string `json:"name"`
}

// ErrorResponse is returned for every failed request.
type ErrorResponse struct {
	Error string `json:"error"`
	// Kind is one of not_found, validation, provider or unexpected.
	Kind string `json:"kind,omitempty"`
}

// queryParams binds the GET /query string.
type queryParams struct {
	Q           string `query:"q"`
	Namespace   string `query:"namespace"`
	ProjectSlug string `query:"project_slug"`
	EntitySlug  string `query:"entity_slug"`
	Limit       int    `query:"limit"`
}
