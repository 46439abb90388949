package github

// CommitJob is the payload of a commit.analyze job.
type CommitJob struct {
	Repository  string   `json:"repository"`
	Branch      string   `json:"branch"`
	CommitID    string   `json:"commit_id"`
	Message     string   `json:"message"`
	AuthorName  string   `json:"author_name,omitempty"`
	AuthorEmail string   `json:"author_email,omitempty"`
	URL         string   `json:"url,omitempty"`
	Timestamp   string   `json:"timestamp,omitempty"`
	Added       []string `json:"added,omitempty"`
	Modified    []string `json:"modified,omitempty"`
	Removed     []string `json:"removed,omitempty"`
	DeliveryID  string   `json:"delivery_id,omitempty"`
}

// DocsJob is the payload of a docs.propose job.
type DocsJob struct {
	Trigger     string   `json:"trigger"`
	Repository  string   `json:"repository"`
	Branch      string   `json:"branch"`
	BaseBranch  string   `json:"base_branch,omitempty"`
	Before      string   `json:"before,omitempty"`
	After       string   `json:"after,omitempty"`
	CommitIDs   []string `json:"commit_ids,omitempty"`
	CompareURL  string   `json:"compare_url,omitempty"`
	PullRequest int      `json:"pull_request,omitempty"`
	Title       string   `json:"title,omitempty"`
	URL         string   `json:"url,omitempty"`
	DeliveryID  string   `json:"delivery_id,omitempty"`
}
