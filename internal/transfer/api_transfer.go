package transfer

import "github.com/golang-jwt/jwt/v5"

// OperatorClaims identify an operator session. Subject names the API key or "admin".
type OperatorClaims struct {
	jwt.RegisteredClaims
}

type PublishRequest struct {
	Content   string   `json:"content" validate:"required"`
	Platforms []string `json:"platforms" validate:"required,min=1,dive,required"`
	Media     []string `json:"media" validate:"omitempty,dive,url"`
	// Uploads are base64 media bytes re-hosted before publishing.
	Uploads  []string `json:"uploads" validate:"omitempty,dive,base64"`
	Tone     string   `json:"tone" validate:"omitempty,max=50"`
	Category string   `json:"category" validate:"omitempty,max=50"`
}

type ScheduleRequest struct {
	PublishRequest
	ScheduledTime string `json:"scheduled_time" validate:"required"`
	Priority      int    `json:"priority" validate:"omitempty,min=1,max=10"`
	MaxRetries    int    `json:"max_retries" validate:"omitempty,min=1,max=10"`
}

type BulkScheduleRequest struct {
	Items []ScheduleRequest `json:"items" validate:"required,min=1,max=100,dive"`
}

type RescheduleRequest struct {
	ScheduledTime string `json:"scheduled_time" validate:"required"`
}

type AccountRequest struct {
	Platform          string            `json:"platform" validate:"required"`
	DisplayName       string            `json:"display_name" validate:"omitempty,max=200"`
	PlatformAccountID string            `json:"platform_account_id" validate:"omitempty,max=200"`
	Credentials       map[string]string `json:"credentials" validate:"required,min=1"`
	SkipTest          bool              `json:"skip_test"`
}

type AccountUpdateRequest struct {
	DisplayName string            `json:"display_name" validate:"omitempty,max=200"`
	Credentials map[string]string `json:"credentials"`
	Status      string            `json:"status" validate:"omitempty,oneof=active inactive"`
}

type CredentialTestRequest struct {
	Platform    string            `json:"platform" validate:"required"`
	Credentials map[string]string `json:"credentials" validate:"required,min=1"`
}

type RateLimitsRequest struct {
	Minute int `json:"minute" validate:"min=0"`
	Hour   int `json:"hour" validate:"min=0"`
	Day    int `json:"day" validate:"min=0"`
}

type ContentPublishedRequest struct {
	Title     string `json:"title" validate:"required"`
	Excerpt   string `json:"excerpt"`
	URL       string `json:"url" validate:"required,url"`
	LeadImage string `json:"lead_image" validate:"omitempty,url"`
}

type GenerateRequest struct {
	Topic       string   `json:"topic" validate:"required"`
	Platforms   []string `json:"platforms" validate:"required,min=1,dive,required"`
	Tone        string   `json:"tone" validate:"omitempty,max=50"`
	MaxHashtags int      `json:"max_hashtags" validate:"min=0,max=30"`
	Publish     bool     `json:"publish"`
	Media       []string `json:"media" validate:"omitempty,dive,url"`
}

type AutoShareRequest struct {
	Enabled       bool     `json:"enabled"`
	Platforms     []string `json:"platforms" validate:"omitempty,dive,required"`
	IncludeImage  bool     `json:"include_image"`
	ExcerptLength int      `json:"excerpt_length" validate:"min=0,max=2000"`
}

type ApiKeyRequest struct {
	Name string `json:"name" validate:"required,max=100"`
}

// PlatformResult is one platform's outcome in a multi-platform response.
type PlatformResult struct {
	Success      bool   `json:"success"`
	PostID       string `json:"post_id,omitempty"`
	SocialPostID int64  `json:"social_post_id,omitempty"`
	Error        string `json:"error,omitempty"`
	Kind         string `json:"kind,omitempty"`
	RetryAfter   int    `json:"retry_after,omitempty"`
}

type ErrorResponse struct {
	Error      string   `json:"error"`
	Kind       string   `json:"kind,omitempty"`
	RetryAfter int      `json:"retry_after,omitempty"`
	Fields     []string `json:"fields,omitempty"`
}
