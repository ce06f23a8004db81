package transfer

type FacebookPage struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type FacebookAttachedMedia struct {
	MediaFbid string `json:"media_fbid"`
}

type FacebookEngagement struct {
	ID        string `json:"id"`
	Reactions struct {
		Summary struct {
			TotalCount int64 `json:"total_count"`
		} `json:"summary"`
	} `json:"reactions"`
	Comments struct {
		Summary struct {
			TotalCount int64 `json:"total_count"`
		} `json:"summary"`
	} `json:"comments"`
	Shares struct {
		Count int64 `json:"count"`
	} `json:"shares"`
}
