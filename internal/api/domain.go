package api

import (
	"github.com/JaimeStill/triage/internal/classifications"
	"github.com/JaimeStill/triage/internal/documents"
	"github.com/JaimeStill/triage/internal/triage"
)

// Domain holds all domain systems that comprise the API.
type Domain struct {
	Documents       documents.System
	Classifications classifications.System
	Triage          triage.System
}

// NewDomain creates all domain systems from the API runtime.
func NewDomain(runtime *Runtime) *Domain {
	db := runtime.Database.Connection()

	docsSystem := documents.New(db, runtime.Taxonomy, runtime.Logger)

	classificationsSystem := classifications.New(
		db,
		docsSystem,
		runtime.Predictor,
		&runtime.Config.Classification,
		runtime.Metrics,
		runtime.Logger,
	)

	triageSystem := triage.New(
		db,
		runtime.Taxonomy,
		runtime.Events,
		&runtime.Config.Triage,
		runtime.Metrics,
		runtime.Logger,
	)

	return &Domain{
		Documents:       docsSystem,
		Classifications: classificationsSystem,
		Triage:          triageSystem,
	}
}
