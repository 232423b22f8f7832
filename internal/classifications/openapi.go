package classifications

import (
	"maps"

	"github.com/JaimeStill/triage/pkg/openapi"
)

var verdictProperties = map[string]*openapi.Schema{
	"document_id":    {Type: "string"},
	"classification": {Type: "string"},
	"confidence":     {Type: "number", Format: "double"},
	"reason":         {Type: "string"},
	"category":       {Type: "string"},
	"subcategory":    {Type: "string"},
	"facility":       {Type: "string"},
	"document_date":  {Type: "string", Format: "date"},
	"is_handwritten": {Type: "boolean"},
}

func withProperties(extra map[string]*openapi.Schema) map[string]*openapi.Schema {
	props := make(map[string]*openapi.Schema, len(verdictProperties)+len(extra))
	maps.Copy(props, verdictProperties)
	maps.Copy(props, extra)
	return props
}

var schemas = map[string]*openapi.Schema{
	"ClassifyRequest": {
		Type: "object",
		Properties: map[string]*openapi.Schema{
			"force": {Type: "boolean", Description: "Reclassify even when a verdict is stored"},
		},
	},
	"ClassificationResult": {
		Type: "object",
		Properties: withProperties(map[string]*openapi.Schema{
			"previously_classified": {Type: "boolean"},
		}),
		Required: []string{"document_id", "classification", "previously_classified"},
	},
	"BulkClassifyRequest": {
		Type: "object",
		Properties: map[string]*openapi.Schema{
			"document_ids": {
				Type:        "array",
				Items:       &openapi.Schema{Type: "string"},
				Description: "Omit or leave empty to classify every pending document",
			},
		},
	},
	"BulkItem": {
		Type: "object",
		Properties: withProperties(map[string]*openapi.Schema{
			"status": {Type: "string", Enum: []any{StatusClassified, StatusError, StatusDuplicate}},
			"error":  {Type: "string"},
		}),
		Required: []string{"document_id", "status"},
	},
	"BulkResult": {
		Type: "object",
		Properties: map[string]*openapi.Schema{
			"total_documents": {Type: "integer"},
			"classified":      {Type: "integer"},
			"results":         {Type: "array", Items: openapi.SchemaRef("BulkItem")},
		},
		Required: []string{"total_documents", "classified", "results"},
	},
}

var patientParam = openapi.PathParam("patient_id", "Owning patient identifier")

var classifyOp = &openapi.Operation{
	Summary:     "Classify a document",
	Description: "Returns the stored verdict unless force is set or the document is unclassified.",
	Parameters: []*openapi.Parameter{
		patientParam,
		openapi.PathParam("document_id", "Document identifier"),
	},
	RequestBody: openapi.RequestBodyJSON("ClassifyRequest", false),
	Responses: map[int]*openapi.Response{
		200: openapi.ResponseJSON("Classification result", "ClassificationResult"),
		400: openapi.ResponseRef("BadRequest"),
		404: openapi.ResponseRef("NotFound"),
		409: openapi.ResponseRef("Conflict"),
		502: openapi.ResponseRef("BadGateway"),
		500: openapi.ResponseRef("InternalError"),
	},
}

var bulkOp = &openapi.Operation{
	Summary:     "Classify documents in bulk",
	Description: "Per-document failures are reported in the results and do not fail the request.",
	Parameters:  []*openapi.Parameter{patientParam},
	RequestBody: openapi.RequestBodyJSON("BulkClassifyRequest", false),
	Responses: map[int]*openapi.Response{
		200: openapi.ResponseJSON("Bulk classification result", "BulkResult"),
		400: openapi.ResponseRef("BadRequest"),
		500: openapi.ResponseRef("InternalError"),
	},
}
