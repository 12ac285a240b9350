package docsdk

// Document is a remote page as served by the document service.
type Document struct {
	ID       string `json:"id"`
	SpaceID  string `json:"spaceId,omitempty"`
	ParentID string `json:"parentId,omitempty"`
	Title    string `json:"title"`
	Version  int64  `json:"version"`
	Content  string `json:"content"`
}

// UpdateParams replaces a document's title and content. ExpectedVersion is the
// version the update will create; the service rejects it unless it is exactly
// the current version plus one.
type UpdateParams struct {
	ID              string `json:"-"`
	Title           string `json:"title"`
	Content         string `json:"content"`
	ExpectedVersion int64  `json:"version"`
}

type CreateParams struct {
	SpaceID  string `json:"spaceId"`
	Title    string `json:"title"`
	Content  string `json:"content"`
	ParentID string `json:"parentId,omitempty"`
}

// WriteResult is returned by create and update.
type WriteResult struct {
	ID      string `json:"id"`
	Version int64  `json:"version"`
}

type ChildrenResponse struct {
	Children []*Document `json:"children"`
}

// BatchFailure pairs the failing input key with its error.
type BatchFailure struct {
	Key string
	Err error
}

func (f *BatchFailure) Error() string {
	return f.Key + ": " + f.Err.Error()
}

func (f *BatchFailure) Unwrap() error {
	return f.Err
}

// BatchResult holds per-item outcomes of a batch call. Successes keep input order.
type BatchResult[T any] struct {
	Successes []T
	Failures  []*BatchFailure
}
