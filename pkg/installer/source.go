// Package installer places skills fetched from external sources into the
// per-skill directories of the agent home.
package installer

import (
	"path/filepath"
	"strings"

	skilltypes "github.com/zeroagent/zeroagent/pkg/types/skills"
)

// Kind is the fetch mechanism of a source
type Kind string

const (
	KindMarketplace Kind = "marketplace"
	KindGitHub      Kind = "github"
	KindNPM         Kind = "npm"
	KindURL         Kind = "url"
	KindLocal       Kind = "local"
)

// Source prefixes understood by ParseSource
const (
	MarketplacePrefix = "skills:"
	GitHubPrefix      = "github:"
	NPMPrefix         = "npm:"
	LocalPrefix       = "file:"
)

// Source is a parsed source descriptor
type Source struct {
	Raw  string
	Kind Kind
	// Ref is the descriptor without its prefix
	Ref string
}

// ParseSource detects the kind of raw. Unprefixed names are marketplace skills.
func ParseSource(raw string) Source {
	raw = strings.TrimSpace(raw)
	switch {
	case strings.HasPrefix(raw, GitHubPrefix):
		return Source{Raw: raw, Kind: KindGitHub, Ref: strings.TrimPrefix(raw, GitHubPrefix)}
	case strings.HasPrefix(raw, NPMPrefix):
		return Source{Raw: raw, Kind: KindNPM, Ref: strings.TrimPrefix(raw, NPMPrefix)}
	case strings.HasPrefix(raw, MarketplacePrefix):
		return Source{Raw: raw, Kind: KindMarketplace, Ref: strings.TrimPrefix(raw, MarketplacePrefix)}
	case strings.HasPrefix(raw, "http://"), strings.HasPrefix(raw, "https://"):
		return Source{Raw: raw, Kind: KindURL, Ref: raw}
	case strings.HasPrefix(raw, LocalPrefix):
		return Source{Raw: raw, Kind: KindLocal, Ref: strings.TrimPrefix(raw, LocalPrefix)}
	case filepath.IsAbs(raw), strings.HasPrefix(raw, "./"), strings.HasPrefix(raw, "../"):
		return Source{Raw: raw, Kind: KindLocal, Ref: raw}
	}
	return Source{Raw: raw, Kind: KindMarketplace, Ref: raw}
}

// Origin maps the source kind onto the origin recorded in the registry
func (s Source) Origin() skilltypes.Origin {
	switch s.Kind {
	case KindGitHub:
		return skilltypes.OriginVCSHosted
	case KindNPM:
		return skilltypes.OriginPackageRegistry
	case KindURL:
		return skilltypes.OriginDirectURL
	case KindLocal:
		return skilltypes.OriginCurated
	}
	return skilltypes.OriginMarketplace
}

// Name derives the skill name: the last path segment of the reference
// without a trailing .git
func (s Source) Name() string {
	ref := strings.TrimRight(s.Ref, "/")
	if i := strings.LastIndex(ref, "/"); i >= 0 {
		ref = ref[i+1:]
	}
	return strings.TrimSuffix(ref, ".git")
}
