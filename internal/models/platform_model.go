package models

import "strings"

type Platform string

const (
	PlatformTelegram  Platform = "telegram"
	PlatformFacebook  Platform = "facebook"
	PlatformInstagram Platform = "instagram"
	PlatformTwitter   Platform = "twitter"
	PlatformLinkedIn  Platform = "linkedin"
	PlatformYoutube   Platform = "youtube"
	PlatformTiktok    Platform = "tiktok"
)

// Platforms lists every supported platform in a stable order.
var Platforms = []Platform{
	PlatformTelegram,
	PlatformFacebook,
	PlatformInstagram,
	PlatformTwitter,
	PlatformLinkedIn,
	PlatformYoutube,
	PlatformTiktok,
}

// ParsePlatform normalizes a platform name. "x" is accepted as an alias of twitter.
func ParsePlatform(name string) (Platform, bool) {
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "x" {
		name = string(PlatformTwitter)
	}
	for _, p := range Platforms {
		if string(p) == name {
			return p, true
		}
	}
	return "", false
}

func (p Platform) String() string {
	return string(p)
}

// RateLimits is a call budget per fixed window.
type RateLimits struct {
	Minute int `json:"minute"`
	Hour   int `json:"hour"`
	Day    int `json:"day"`
}
