package transfer

type LinkedInErrorResponse struct {
	Message          string `json:"message"`
	ServiceErrorCode int    `json:"serviceErrorCode"`
	Status           int    `json:"status"`
}

type LinkedInUserInfo struct {
	Sub   string `json:"sub"`
	Name  string `json:"name"`
	Email string `json:"email"`
}

type LinkedInRegisterUploadRequest struct {
	RegisterUploadRequest LinkedInUploadSpec `json:"registerUploadRequest"`
}

type LinkedInUploadSpec struct {
	Recipes              []string                      `json:"recipes"`
	Owner                string                        `json:"owner"`
	ServiceRelationships []LinkedInServiceRelationship `json:"serviceRelationships"`
}

type LinkedInServiceRelationship struct {
	RelationshipType string `json:"relationshipType"`
	Identifier       string `json:"identifier"`
}

type LinkedInRegisterUploadResponse struct {
	Value struct {
		Asset           string `json:"asset"`
		UploadMechanism map[string]struct {
			UploadURL string            `json:"uploadUrl"`
			Headers   map[string]string `json:"headers"`
		} `json:"uploadMechanism"`
	} `json:"value"`
}

// UploadURL returns the first upload URL offered by the mechanism map.
func (r LinkedInRegisterUploadResponse) UploadURL() string {
	if m, ok := r.Value.UploadMechanism["com.linkedin.digitalmedia.uploading.MediaUploadHttpRequest"]; ok {
		return m.UploadURL
	}
	for _, m := range r.Value.UploadMechanism {
		if m.UploadURL != "" {
			return m.UploadURL
		}
	}
	return ""
}

type LinkedInShareMedia struct {
	Status string `json:"status"`
	Media  string `json:"media"`
}

type LinkedInShareContent struct {
	ShareCommentary struct {
		Text string `json:"text"`
	} `json:"shareCommentary"`
	ShareMediaCategory string               `json:"shareMediaCategory"`
	Media              []LinkedInShareMedia `json:"media,omitempty"`
}

type LinkedInUGCPost struct {
	Author          string                          `json:"author"`
	LifecycleState  string                          `json:"lifecycleState"`
	SpecificContent map[string]LinkedInShareContent `json:"specificContent"`
	Visibility      map[string]string               `json:"visibility"`
}

type LinkedInUGCPostResponse struct {
	ID string `json:"id"`
}

type LinkedInSocialActions struct {
	LikesSummary struct {
		TotalLikes int64 `json:"totalLikes"`
	} `json:"likesSummary"`
	CommentsSummary struct {
		AggregatedTotalComments int64 `json:"aggregatedTotalComments"`
	} `json:"commentsSummary"`
}
