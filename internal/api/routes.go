package api

import (
	"fmt"
	"net/http"

	"github.com/JaimeStill/triage/internal/config"
	"github.com/JaimeStill/triage/pkg/openapi"
	"github.com/JaimeStill/triage/pkg/routes"
)

// SpecPath is where the generated OpenAPI document is served, relative to the base path.
const SpecPath = "/openapi.json"

func groups(domain *Domain) []routes.Group {
	return []routes.Group{
		domain.Documents.Handler().Routes(),
		domain.Classifications.Handler().Routes(),
		domain.Triage.Handler().Routes(),
	}
}

func registerRoutes(mux *http.ServeMux, domain *Domain, cfg *config.Config) error {
	all := groups(domain)
	routes.Register(mux, all...)

	spec := buildSpec(cfg, all)
	data, err := openapi.MarshalJSON(spec)
	if err != nil {
		return fmt.Errorf("marshal openapi spec: %w", err)
	}
	mux.HandleFunc("GET "+SpecPath, openapi.ServeSpec(data))
	return nil
}

func buildSpec(cfg *config.Config, all []routes.Group) *openapi.Spec {
	spec := openapi.NewSpec(cfg.OpenAPI.Title, cfg.Version)
	spec.SetDescription(cfg.OpenAPI.Description)
	spec.AddServer(cfg.API.BasePath)
	routes.Document(spec, "", all...)
	return spec
}
