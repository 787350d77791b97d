package probe

import (
	"context"

	"github.com/tafreeman/prompteval/internal/model"
	"github.com/tafreeman/prompteval/internal/provider"
)

// ProviderSummary groups the probe results for one provider's catalog.
type ProviderSummary struct {
	Provider model.Provider `json:"provider"`
	Name     string         `json:"name"`
	Results  []Result       `json:"results"`
	Usable   int            `json:"usable"`
}

// Discovery is the structured result of probing every known provider's
// catalog, used as a pre-flight step before expensive batch jobs.
type Discovery struct {
	Providers []ProviderSummary `json:"providers"`
	Usable    int               `json:"usable"`
	Total     int               `json:"total"`
}

// DiscoverAll enumerates every registered provider's model catalog and
// probes each model. Backends that can list their own models (Ollama) are
// asked dynamically; the rest use the static catalog from the registry
// metadata.
func (p *Prober) DiscoverAll(ctx context.Context, registry *provider.Registry) *Discovery {
	d := &Discovery{}

	for _, prov := range registry.Providers() {
		info, _ := model.Info(prov)
		summary := ProviderSummary{Provider: prov, Name: info.DisplayName}

		names := info.DefaultCatalog
		adapter, _ := registry.Get(prov)
		if cat, ok := adapter.(provider.Cataloger); ok {
			if listed, err := cat.ListModels(ctx); err == nil {
				names = listed
			}
			// Listing failure falls back to the static catalog; the
			// per-model probes below surface the real error class.
		}

		ids := make([]model.ID, len(names))
		for i, name := range names {
			ids[i] = model.ID{Provider: prov, Name: name}
		}

		summary.Results = p.checkAll(ctx, ids)
		for _, r := range summary.Results {
			if r.Usable {
				summary.Usable++
			}
		}

		d.Usable += summary.Usable
		d.Total += len(summary.Results)
		d.Providers = append(d.Providers, summary)
	}

	return d
}
