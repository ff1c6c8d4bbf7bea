package models

// Unknown is the sentinel used for identifiers and types missing upstream
const Unknown = "unknown"

// ScopeAsset is one target a program accepts or excludes
type ScopeAsset struct {
	Identifier string `json:"identifier"`
	Type       string `json:"type"`
}

// Assets splits a program's targets into in-scope and out-of-scope
type Assets struct {
	InScope    []ScopeAsset `json:"in_scope"`
	OutOfScope []ScopeAsset `json:"out_of_scope"`
}

// CanonicalProgram is the platform-independent program record written to
// the brief artifact. Values are not modified after normalization.
type CanonicalProgram struct {
	Handle string `json:"handle"`
	Bounty bool   `json:"bounty"`
	Active bool   `json:"active"`
	Assets Assets `json:"assets"`
}

// NewScopeAsset builds an asset, substituting Unknown for empty fields
func NewScopeAsset(identifier, assetType string) ScopeAsset {
	if identifier == "" {
		identifier = Unknown
	}
	if assetType == "" {
		assetType = Unknown
	}
	return ScopeAsset{Identifier: identifier, Type: assetType}
}

// NewAssets returns Assets with both lists non-nil so that they encode
// as empty arrays.
func NewAssets() Assets {
	return Assets{InScope: []ScopeAsset{}, OutOfScope: []ScopeAsset{}}
}

// Add appends the asset to the in-scope or out-of-scope list
func (a *Assets) Add(asset ScopeAsset, inScope bool) {
	if inScope {
		a.InScope = append(a.InScope, asset)
		return
	}
	a.OutOfScope = append(a.OutOfScope, asset)
}

// Count returns the number of assets on both sides
func (a Assets) Count() int {
	return len(a.InScope) + len(a.OutOfScope)
}
