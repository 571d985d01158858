//go:build e2e

package e2e

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func longText(paragraphs int) string {
	var b strings.Builder
	b.WriteString("# Field notes\n\n")
	for i := 0; i < paragraphs; i++ {
		fmt.Fprintf(&b, "Station %d recorded a river level of %d centimetres. The reading was taken at dawn by the duty observer. "+
			"Rainfall upstream had been light for the previous week.\n\n", i, 120+i)
	}
	return b.String()
}

func (e *E2ETestEnv) countRows(table, documentID string) int {
	var n int
	err := e.Pool.QueryRow(e.Ctx, "SELECT COUNT(*) FROM "+table+" WHERE document_id = $1", documentID).Scan(&n)
	require.NoError(e.T, err)
	return n
}

func (e *E2ETestEnv) submit(t *testing.T, body map[string]interface{}) documentPayload {
	resp, err := e.Post("/documents", body)
	require.NoError(t, err)
	require.Equal(t, http.StatusCreated, resp.StatusCode, resp.Error)

	var doc documentPayload
	require.NoError(t, json.Unmarshal(resp.Data, &doc))
	require.NotEmpty(t, doc.ID)
	return doc
}

// TestE2E_InlineDocumentLifecycle submits text inline and follows it to completion.
func TestE2E_InlineDocumentLifecycle(t *testing.T) {
	env := SetupE2EEnv(t)
	defer env.Cleanup()

	doc := env.submit(t, map[string]interface{}{
		"title": "River levels",
		"text":  longText(12),
	})
	require.NotNil(t, doc.Status)
	assert.Equal(t, "uploading", doc.Status.Status)
	assert.Equal(t, 0, doc.Status.Progress)
	assert.True(t, doc.ExtractFacts)

	status := env.WaitForTerminal(doc.ID, 60*time.Second)
	require.Equal(t, "completed", status.Status, status.Error)
	assert.Equal(t, 100, status.Progress)
	assert.Greater(t, status.ChunksCount, 1)

	t.Run("artifacts are persisted", func(t *testing.T) {
		chunks := env.countRows("chunks", doc.ID)
		facts := env.countRows("facts", doc.ID)
		embeddings := env.countRows("embeddings", doc.ID)

		assert.Equal(t, status.ChunksCount, chunks)
		assert.Greater(t, facts, 0)
		assert.Equal(t, chunks+facts, embeddings)
	})

	t.Run("document is readable", func(t *testing.T) {
		resp, err := env.Get("/documents/" + doc.ID)
		require.NoError(t, err)
		require.Equal(t, http.StatusOK, resp.StatusCode)

		var got documentPayload
		require.NoError(t, json.Unmarshal(resp.Data, &got))
		assert.Equal(t, "River levels", got.Title)
		require.NotNil(t, got.Status)
		assert.Equal(t, "completed", got.Status.Status)
	})

	t.Run("document is listed", func(t *testing.T) {
		resp, err := env.Get("/documents?limit=10")
		require.NoError(t, err)
		require.Equal(t, http.StatusOK, resp.StatusCode)

		var page struct {
			Items   []documentPayload `json:"items"`
			HasMore bool              `json:"has_more"`
		}
		require.NoError(t, json.Unmarshal(resp.Data, &page))
		require.Len(t, page.Items, 1)
		assert.Equal(t, doc.ID, page.Items[0].ID)
		assert.False(t, page.HasMore)
	})

	t.Run("retry rebuilds artifacts", func(t *testing.T) {
		resp, err := env.Post("/documents/"+doc.ID+"/retry", nil)
		require.NoError(t, err)
		require.Equal(t, http.StatusAccepted, resp.StatusCode, resp.Error)

		again := env.WaitForTerminal(doc.ID, 60*time.Second)
		require.Equal(t, "completed", again.Status, again.Error)
		assert.Equal(t, status.ChunksCount, again.ChunksCount)
		assert.Equal(t, status.ChunksCount, env.countRows("chunks", doc.ID))
	})
}

// TestE2E_FactsDisabled skips extraction when the document opts out.
func TestE2E_FactsDisabled(t *testing.T) {
	env := SetupE2EEnv(t)
	defer env.Cleanup()

	doc := env.submit(t, map[string]interface{}{
		"title":         "No facts",
		"text":          longText(4),
		"extract_facts": false,
	})
	assert.False(t, doc.ExtractFacts)

	status := env.WaitForTerminal(doc.ID, 60*time.Second)
	require.Equal(t, "completed", status.Status, status.Error)
	assert.Equal(t, 0, env.countRows("facts", doc.ID))
	assert.Equal(t, status.ChunksCount, env.countRows("embeddings", doc.ID))
}

// TestE2E_SourceKeyDocument reads the document text from object storage.
func TestE2E_SourceKeyDocument(t *testing.T) {
	env := SetupE2EEnv(t)
	defer env.Cleanup()

	t.Run("uploaded object is ingested", func(t *testing.T) {
		require.NoError(t, env.S3Client.PutObjectText(env.Ctx, "docs/notes.md", longText(6)))

		doc := env.submit(t, map[string]interface{}{
			"title":      "From storage",
			"source_key": "docs/notes.md",
		})
		assert.Equal(t, "docs/notes.md", doc.SourceKey)

		status := env.WaitForTerminal(doc.ID, 60*time.Second)
		require.Equal(t, "completed", status.Status, status.Error)
		assert.Greater(t, status.ChunksCount, 0)
	})

	t.Run("presigned upload is ingested", func(t *testing.T) {
		resp, err := env.Post("/documents/uploads", map[string]string{
			"filename":     "upload.md",
			"content_type": "text/markdown",
		})
		require.NoError(t, err)
		require.Equal(t, http.StatusOK, resp.StatusCode, resp.Error)

		var target struct {
			SourceKey string `json:"source_key"`
			UploadURL string `json:"upload_url"`
		}
		require.NoError(t, json.Unmarshal(resp.Data, &target))
		assert.True(t, strings.HasPrefix(target.SourceKey, "uploads/"))
		assert.True(t, strings.HasSuffix(target.SourceKey, "/upload.md"))

		require.NoError(t, env.UploadFile(target.UploadURL, []byte(longText(5)), "text/markdown"))

		doc := env.submit(t, map[string]interface{}{"source_key": target.SourceKey})
		assert.Equal(t, "upload.md", doc.Title)

		status := env.WaitForTerminal(doc.ID, 60*time.Second)
		require.Equal(t, "completed", status.Status, status.Error)
	})

	t.Run("missing object fails and recovers on retry", func(t *testing.T) {
		doc := env.submit(t, map[string]interface{}{
			"title":      "Not yet uploaded",
			"source_key": "docs/late.md",
		})

		status := env.WaitForTerminal(doc.ID, 60*time.Second)
		require.Equal(t, "failed", status.Status)
		assert.Contains(t, status.Error, "object not found")

		require.NoError(t, env.S3Client.PutObjectText(env.Ctx, "docs/late.md", longText(3)))

		resp, err := env.Post("/documents/"+doc.ID+"/retry", nil)
		require.NoError(t, err)
		require.Equal(t, http.StatusAccepted, resp.StatusCode, resp.Error)

		status = env.WaitForTerminal(doc.ID, 60*time.Second)
		require.Equal(t, "completed", status.Status, status.Error)
		assert.Empty(t, status.Error)
	})
}

// TestE2E_ProviderOutage records an embedding outage as a failed run.
func TestE2E_ProviderOutage(t *testing.T) {
	env := SetupE2EEnv(t)
	defer env.Cleanup()

	env.Provider.failEmbeddings.Store(true)

	doc := env.submit(t, map[string]interface{}{
		"title":         "Outage",
		"text":          longText(2),
		"extract_facts": false,
	})

	status := env.WaitForTerminal(doc.ID, 60*time.Second)
	require.Equal(t, "failed", status.Status)
	assert.NotEmpty(t, status.Error)
	assert.Equal(t, 0, env.countRows("embeddings", doc.ID))
}

// TestE2E_Errors covers request validation and unknown documents.
func TestE2E_Errors(t *testing.T) {
	env := SetupE2EEnv(t)
	defer env.Cleanup()

	t.Run("empty submission", func(t *testing.T) {
		resp, err := env.Post("/documents", map[string]interface{}{"title": "empty"})
		require.NoError(t, err)
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})

	t.Run("unknown document status", func(t *testing.T) {
		resp, err := env.Get("/documents/00000000-0000-0000-0000-000000000000/status")
		require.NoError(t, err)
		require.Equal(t, http.StatusOK, resp.StatusCode)

		var status statusPayload
		require.NoError(t, json.Unmarshal(resp.Data, &status))
		assert.Equal(t, "unknown", status.Status)
		assert.Equal(t, 0, status.Progress)
	})

	t.Run("malformed document id", func(t *testing.T) {
		resp, err := env.Get("/documents/not-a-uuid/status")
		require.NoError(t, err)
		require.Equal(t, http.StatusOK, resp.StatusCode)

		var status statusPayload
		require.NoError(t, json.Unmarshal(resp.Data, &status))
		assert.Equal(t, "unknown", status.Status)

		resp, err = env.Get("/documents/not-a-uuid")
		require.NoError(t, err)
		assert.Equal(t, http.StatusNotFound, resp.StatusCode)

		resp, err = env.Post("/documents/not-a-uuid/retry", nil)
		require.NoError(t, err)
		assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	})

	t.Run("unknown document", func(t *testing.T) {
		resp, err := env.Get("/documents/00000000-0000-0000-0000-000000000000")
		require.NoError(t, err)
		assert.Equal(t, http.StatusNotFound, resp.StatusCode)
		assert.Equal(t, "NOT_FOUND", resp.Code)
	})

	t.Run("cancel without an active run", func(t *testing.T) {
		doc := env.submit(t, map[string]interface{}{"text": longText(1), "extract_facts": false})
		env.WaitForTerminal(doc.ID, 60*time.Second)

		resp, err := env.Post("/documents/"+doc.ID+"/cancel", nil)
		require.NoError(t, err)
		assert.Equal(t, http.StatusConflict, resp.StatusCode)
	})
}
