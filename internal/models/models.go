package models

// Chunk is one bounded segment of a document's extracted text, the unit of
// embedding and retrieval.
type Chunk struct {
	Content string
	Index   int
}

// Tenant scopes chunk visibility to a single user and notebook. Every store
// read and write must carry a complete tenant.
type Tenant struct {
	UserID     string
	NotebookID string
}

// Complete reports whether both tenant keys are present.
func (t Tenant) Complete() bool {
	return t.UserID != "" && t.NotebookID != ""
}
