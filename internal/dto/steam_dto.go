package dto

type SteamLoginURLResponse struct {
	URL string `json:"url"`
}

// SteamVerifyRequest carries the openid.* query parameters the provider appended to the callback.
type SteamVerifyRequest struct {
	Params map[string]string `json:"params" validate:"required,min=1"`
}

type SteamLinkResponse struct {
	Linked      bool   `json:"linked"`
	SteamID     string `json:"steam_id,omitempty"`
	PersonaName string `json:"persona_name,omitempty"`
	AvatarURL   string `json:"avatar_url,omitempty"`
	ProfileURL  string `json:"profile_url,omitempty"`
}
