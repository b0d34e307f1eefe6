package models

const (
	// DefaultTopK is the number of chunks retrieved when the caller does not
	// ask for a specific amount.
	DefaultTopK = 3

	MetadataFilenameKey   = "filename"
	MetadataChunkIndexKey = "chunk_index"
)

const SystemPrompt = `You are a friendly teacher or mentor with professor-level knowledge in this field.`

var AnswerPromptTemplate = `Context:
%s

Reply and explain the following query in a way that a student can understand:

%s
`
