package openapi

import "maps"

func errorResponse(description string) *Response {
	return &Response{
		Description: description,
		Content: map[string]*MediaType{
			"application/json": {Schema: SchemaRef("ErrorEnvelope")},
		},
	}
}

// NewComponents creates Components with the shared error envelope and error responses.
func NewComponents() *Components {
	return &Components{
		Schemas: map[string]*Schema{
			"ErrorEnvelope": {
				Type: "object",
				Properties: map[string]*Schema{
					"success": {Type: "boolean", Example: false},
					"error":   {Type: "string", Description: "Error message"},
				},
				Required: []string{"success", "error"},
			},
		},
		Responses: map[string]*Response{
			"BadRequest":    errorResponse("Invalid request"),
			"NotFound":      errorResponse("Resource not found"),
			"Conflict":      errorResponse("Concurrent modification"),
			"BadGateway":    errorResponse("Upstream predictor failure"),
			"InternalError": errorResponse("Persistence failure"),
		},
	}
}

// AddSchemas merges the given schemas into the component schemas.
func (c *Components) AddSchemas(schemas map[string]*Schema) {
	maps.Copy(c.Schemas, schemas)
}
