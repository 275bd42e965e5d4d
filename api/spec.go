// Package api carries the OpenAPI description of the chat HTTP API.
package api

import _ "embed"

//go:embed openapi.yaml
var OpenAPISpec []byte
