package github

type apiError struct {
	Message          string `json:"message"`
	DocumentationURL string `json:"documentation_url,omitempty"`
}

type account struct {
	Login string `json:"login"`
}

type createRepositoryRequest struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Private     bool   `json:"private"`
}

type repositoryResponse struct {
	Name          string  `json:"name"`
	Owner         account `json:"owner"`
	DefaultBranch string  `json:"default_branch"`
}

type topicsRequest struct {
	Names []string `json:"names"`
}

type branchResponse struct {
	Name   string `json:"name"`
	Commit struct {
		SHA    string `json:"sha"`
		Commit struct {
			Tree struct {
				SHA string `json:"sha"`
			} `json:"tree"`
		} `json:"commit"`
	} `json:"commit"`
}

type treeResponse struct {
	SHA       string `json:"sha"`
	Truncated bool   `json:"truncated"`
	Tree      []struct {
		Path string `json:"path"`
		Type string `json:"type"` // blob, tree, commit
		SHA  string `json:"sha"`
	} `json:"tree"`
}

type putContentRequest struct {
	Message string `json:"message"`
	Content string `json:"content"` // base64
	SHA     string `json:"sha,omitempty"`
}

type deleteContentRequest struct {
	Message string `json:"message"`
	SHA     string `json:"sha"`
}

type contentCommitResponse struct {
	Content *struct {
		Path string `json:"path"`
		SHA  string `json:"sha"`
	} `json:"content"`
	Commit struct {
		SHA string `json:"sha"`
	} `json:"commit"`
}

type compareResponse struct {
	Status string `json:"status"`
	Files  []struct {
		Filename         string `json:"filename"`
		PreviousFilename string `json:"previous_filename,omitempty"`
		SHA              string `json:"sha"`
		Status           string `json:"status"`
	} `json:"files"`
}
