package documents

import (
	"github.com/JaimeStill/triage/internal/taxonomy"
	"github.com/JaimeStill/triage/pkg/openapi"
)

var (
	patientParam  = openapi.PathParam("patient_id", "Owning patient identifier")
	documentParam = openapi.PathParam("document_id", "Document identifier")
)

func nullable(typ, format string) *openapi.Schema {
	return &openapi.Schema{Type: typ, Format: format, Description: "Nullable"}
}

var schemas = map[string]*openapi.Schema{
	"Document": {
		Type: "object",
		Properties: map[string]*openapi.Schema{
			"id":                        {Type: "string"},
			"patient_id":                {Type: "string"},
			"filename":                  {Type: "string"},
			"storage_key":               {Type: "string"},
			"content_type":              {Type: "string"},
			"document_date":             nullable("string", "date"),
			"is_handwritten":            nullable("boolean", ""),
			"category":                  nullable("string", ""),
			"subcategory":               nullable("string", ""),
			"facility":                  nullable("string", ""),
			"classification":            nullable("string", ""),
			"classification_confidence": nullable("number", "double"),
			"classification_reason":     nullable("string", ""),
			"classification_version":    {Type: "integer"},
			"approved_for_extraction":   {Type: "boolean"},
			"reviewed_at":               nullable("string", "date-time"),
			"created_at":                {Type: "string", Format: "date-time"},
			"updated_at":                {Type: "string", Format: "date-time"},
		},
	},
	"DocumentList": {
		Type: "object",
		Properties: map[string]*openapi.Schema{
			"success": {Type: "boolean"},
			"data":    {Type: "array", Items: openapi.SchemaRef("Document")},
			"total":   {Type: "integer"},
			"filters": openapi.SchemaRef("DocumentFilters"),
		},
		Required: []string{"success", "data", "total", "filters"},
	},
	"DocumentFilters": {
		Type: "object",
		Properties: map[string]*openapi.Schema{
			"category":        {Type: "string"},
			"subcategory":     {Type: "string"},
			"classification":  {Type: "string"},
			"start_date":      {Type: "string", Format: "date"},
			"end_date":        {Type: "string", Format: "date"},
			"reviewed_status": {Type: "string"},
			"sort":            {Type: "string"},
			"order":           {Type: "string"},
		},
		Required: []string{"sort", "order"},
	},
	"UpdateDocument": {
		Type: "object",
		Properties: map[string]*openapi.Schema{
			"category":    {Type: "string", Description: "Empty string clears the field"},
			"subcategory": {Type: "string", Description: "Empty string clears the field"},
			"facility":    {Type: "string", Description: "Empty string clears the field"},
		},
	},
}

var listOp = func() *openapi.Operation {
	tx := taxonomy.Default()
	return &openapi.Operation{
		Summary: "List a patient's documents",
		Parameters: []*openapi.Parameter{
			patientParam,
			openapi.EnumQueryParam("category", "Exact category match", tx.Categories()),
			openapi.EnumQueryParam("subcategory", "Exact subcategory match", tx.Subcategories()),
			openapi.EnumQueryParam("classification", "Exact classification match", tx.Labels()),
			openapi.QueryParam("start_date", "string", "Inclusive lower bound on document_date (YYYY-MM-DD)", false),
			openapi.QueryParam("end_date", "string", "Inclusive upper bound on document_date (YYYY-MM-DD)", false),
			openapi.EnumQueryParam("reviewed_status", "Triage review state", tx.ReviewedStatuses()),
			openapi.EnumQueryParam("sort", "Sort field (default created_at)", SortFields()),
			openapi.EnumQueryParam("order", "Sort direction (default DESC)", []string{OrderAsc, OrderDesc}),
		},
		Responses: map[int]*openapi.Response{
			200: {
				Description: "Matching documents",
				Content: map[string]*openapi.MediaType{
					"application/json": {Schema: openapi.SchemaRef("DocumentList")},
				},
			},
			400: openapi.ResponseRef("BadRequest"),
			500: openapi.ResponseRef("InternalError"),
		},
	}
}()

var findOp = &openapi.Operation{
	Summary:    "Get a document",
	Parameters: []*openapi.Parameter{patientParam, documentParam},
	Responses: map[int]*openapi.Response{
		200: openapi.ResponseJSON("Document", "Document"),
		404: openapi.ResponseRef("NotFound"),
		500: openapi.ResponseRef("InternalError"),
	},
}

var updateOp = &openapi.Operation{
	Summary:     "Edit document metadata",
	Description: "Updates only the supplied category, subcategory, and facility fields.",
	Parameters:  []*openapi.Parameter{patientParam, documentParam},
	RequestBody: openapi.RequestBodyJSON("UpdateDocument", true),
	Responses: map[int]*openapi.Response{
		200: openapi.ResponseJSON("Document updated", "Document"),
		400: openapi.ResponseRef("BadRequest"),
		404: openapi.ResponseRef("NotFound"),
		500: openapi.ResponseRef("InternalError"),
	},
}
