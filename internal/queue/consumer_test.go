package queue

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIncomingFileDecodesBase64Content(t *testing.T) {
	payload := []byte(`{"filename": "a.txt", "size": 5, "content": "aGVsbG8="}`)

	var f IncomingFile
	require.NoError(t, json.Unmarshal(payload, &f))

	assert.Equal(t, "a.txt", f.Filename)
	assert.Equal(t, int64(5), f.Size)
	assert.Equal(t, []byte("hello"), f.Content)
}

func TestIncomingFileDecodesNodeBufferObject(t *testing.T) {
	payload := []byte(`{"filename": "b.txt", "size": 3, "content": {"type": "Buffer", "data": [104, 105, 33]}}`)

	var f IncomingFile
	require.NoError(t, json.Unmarshal(payload, &f))

	assert.Equal(t, []byte("hi!"), f.Content)
}

func TestIncomingFileRejectsMalformedContent(t *testing.T) {
	cases := map[string]string{
		"bad base64":     `{"filename": "a", "content": "not-base64!!!"}`,
		"wrong type":     `{"filename": "a", "content": 42}`,
		"not a buffer":   `{"filename": "a", "content": {"type": "Blob", "data": []}}`,
		"missing data":   `{"filename": "a", "content": {"type": "Buffer"}}`,
		"non-byte value": `{"filename": "a", "content": {"type": "Buffer", "data": ["x"]}}`,
	}

	for name, payload := range cases {
		t.Run(name, func(t *testing.T) {
			var f IncomingFile
			assert.Error(t, json.Unmarshal([]byte(payload), &f))
		})
	}
}

func TestIncomingFileAllowsMissingContent(t *testing.T) {
	var f IncomingFile
	require.NoError(t, json.Unmarshal([]byte(`{"filename": "empty.txt", "size": 0}`), &f))
	assert.Nil(t, f.Content)
}

func TestParseJobRoundTrip(t *testing.T) {
	payload := []byte(`{
		"jobId": "job-1",
		"userId": "user-9",
		"files": [
			{"filename": "a.txt", "size": 5, "content": "aGVsbG8="},
			{"filename": "b.txt", "size": 2, "content": "aGk="}
		]
	}`)

	var job ParseJob
	require.NoError(t, json.Unmarshal(payload, &job))

	assert.Equal(t, "job-1", job.JobID)
	require.Len(t, job.Files, 2)
	assert.Equal(t, []byte("hello"), job.Files[0].Content)
	assert.Equal(t, []byte("hi"), job.Files[1].Content)
}
