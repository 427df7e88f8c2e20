package player

import (
	"context"
	"fmt"
)

// Tier is the class of access the marketplace granted for a track's audio.
//
// Tiers only drive badges in the UI; for playback any tier means a playable
// URL was granted.
type Tier string

const (
	TierFree        Tier = "free"
	TierPreview     Tier = "preview"
	TierPremium     Tier = "premium"
	TierNFTRequired Tier = "nft_required"
)

// ParseTier validates the name of an access tier.
func ParseTier(str string) (Tier, error) {
	switch tier := Tier(str); tier {
	case TierFree, TierPreview, TierPremium, TierNFTRequired:
		return tier, nil
	default:
		return "", fmt.Errorf("unknown access tier: %q", str)
	}
}

// A Stream is a playable URL along with the tier it was granted under.
type Stream struct {
	URL  string `json:"url"`
	Tier Tier   `json:"tier"`
}

// A Resolver obtains a playable stream for a track.
//
// Errors returned must wrap one of ErrUnauthorized, ErrNotFound or
// ErrNetwork. Implementations must return promptly once ctx is canceled.
type Resolver interface {
	Resolve(ctx context.Context, trackID string) (Stream, error)
}
