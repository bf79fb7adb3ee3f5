// Package api embeds the OpenAPI document served by the HTTP server and used
// for request validation.
package api

import _ "embed"

//go:embed openapi.yml
var OpenAPISpec []byte
