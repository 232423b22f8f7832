package triage

import "github.com/JaimeStill/triage/pkg/openapi"

var schemas = map[string]*openapi.Schema{
	"TriageUpdate": {
		Type: "object",
		Properties: map[string]*openapi.Schema{
			"document_id":             {Type: "string"},
			"classification":          {Type: "string"},
			"approved_for_extraction": {Type: "boolean"},
		},
		Required: []string{"document_id"},
	},
	"TriageBatchRequest": {
		Type: "object",
		Properties: map[string]*openapi.Schema{
			"updates": {Type: "array", Items: openapi.SchemaRef("TriageUpdate")},
		},
		Required: []string{"updates"},
	},
	"TriageItem": {
		Type: "object",
		Properties: map[string]*openapi.Schema{
			"document_id":             {Type: "string"},
			"status":                  {Type: "string", Enum: []any{StatusUpdated, StatusError}},
			"error":                   {Type: "string"},
			"classification":          {Type: "string"},
			"approved_for_extraction": {Type: "boolean"},
		},
		Required: []string{"document_id", "status"},
	},
	"TriageBatchResult": {
		Type: "object",
		Properties: map[string]*openapi.Schema{
			"updated":                 {Type: "integer"},
			"approved_for_extraction": {Type: "integer"},
			"results":                 {Type: "array", Items: openapi.SchemaRef("TriageItem")},
		},
		Required: []string{"updated", "approved_for_extraction", "results"},
	},
}

var batchOp = &openapi.Operation{
	Summary:     "Apply triage decisions",
	Description: "Sets the supplied classification and approval fields per document. Item failures do not fail the batch.",
	Parameters: []*openapi.Parameter{
		openapi.PathParam("patient_id", "Owning patient identifier"),
	},
	RequestBody: openapi.RequestBodyJSON("TriageBatchRequest", true),
	Responses: map[int]*openapi.Response{
		200: openapi.ResponseJSON("Batch result", "TriageBatchResult"),
		400: openapi.ResponseRef("BadRequest"),
		500: openapi.ResponseRef("InternalError"),
	},
}
