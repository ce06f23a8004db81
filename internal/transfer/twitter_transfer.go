package transfer

type TwitterErrorResponse struct {
	Title  string `json:"title"`
	Detail string `json:"detail"`
	Status int    `json:"status"`
	Errors []struct {
		Message string `json:"message"`
		Code    int    `json:"code"`
	} `json:"errors"`
}

type TwitterUserResponse struct {
	Data struct {
		ID       string `json:"id"`
		Name     string `json:"name"`
		Username string `json:"username"`
	} `json:"data"`
}

type TwitterProcessingInfo struct {
	State           string `json:"state"` // pending, in_progress, failed, succeeded
	CheckAfterSecs  int    `json:"check_after_secs"`
	ProgressPercent int    `json:"progress_percent"`
	Error           *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

type TwitterMediaResponse struct {
	Data struct {
		ID             string                 `json:"id"`
		MediaKey       string                 `json:"media_key"`
		ProcessingInfo *TwitterProcessingInfo `json:"processing_info,omitempty"`
	} `json:"data"`
}

type TwitterTweetRequest struct {
	Text  string             `json:"text"`
	Media *TwitterTweetMedia `json:"media,omitempty"`
}

type TwitterTweetMedia struct {
	MediaIDs []string `json:"media_ids"`
}

type TwitterTweetResponse struct {
	Data struct {
		ID   string `json:"id"`
		Text string `json:"text"`
	} `json:"data"`
}

type TwitterPublicMetrics struct {
	RetweetCount    int64 `json:"retweet_count"`
	ReplyCount      int64 `json:"reply_count"`
	LikeCount       int64 `json:"like_count"`
	QuoteCount      int64 `json:"quote_count"`
	BookmarkCount   int64 `json:"bookmark_count"`
	ImpressionCount int64 `json:"impression_count"`
}

type TwitterTweetMetricsResponse struct {
	Data struct {
		ID            string               `json:"id"`
		PublicMetrics TwitterPublicMetrics `json:"public_metrics"`
	} `json:"data"`
}

type TwitterDeleteResponse struct {
	Data struct {
		Deleted bool `json:"deleted"`
	} `json:"data"`
}
