//go:build e2e

package e2e

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"hash/fnv"
	"io"
	"net"
	"net/http"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"github.com/cloo-solutions/docpipe/internal/api/handlers"
	"github.com/cloo-solutions/docpipe/internal/embed"
	"github.com/cloo-solutions/docpipe/internal/facts"
	"github.com/cloo-solutions/docpipe/internal/ingest"
	"github.com/cloo-solutions/docpipe/internal/jobs"
	"github.com/cloo-solutions/docpipe/internal/repository"
	"github.com/cloo-solutions/docpipe/internal/segment"
	"github.com/cloo-solutions/docpipe/internal/server"
	"github.com/cloo-solutions/docpipe/internal/service"
	"github.com/cloo-solutions/docpipe/internal/storage"
	"github.com/cloo-solutions/docpipe/internal/testutil"
	"github.com/cloo-solutions/docpipe/internal/tokenizer"
)

const testDimensions = 8

// E2ETestEnv holds all resources needed for E2E tests
type E2ETestEnv struct {
	T            *testing.T
	Ctx          context.Context
	PostgresC    *testutil.PostgresContainer
	RustFSC      *testutil.RustFSContainer
	Pool         *pgxpool.Pool
	ServerURL    string
	ServerCloser func()
	S3Client     *storage.S3Client
	Provider     *fakeProvider
	HTTPClient   *http.Client
}

// SetupE2EEnv starts the containers, the API server and the ingestion worker.
func SetupE2EEnv(t *testing.T) *E2ETestEnv {
	ctx := context.Background()

	pgC := testutil.NewPostgresContainer(ctx, t)
	s3C := testutil.NewRustFSContainer(ctx, t)
	pool := testutil.NewTestPool(ctx, t, pgC, "../../migrations")

	s3Client, err := storage.NewS3Client(ctx, storage.S3ClientConfig{
		Endpoint:        s3C.Endpoint(),
		Region:          "us-east-1",
		AccessKeyID:     "rustfsadmin",
		SecretAccessKey: "rustfsadmin",
		Bucket:          "test-documents",
		UsePathStyle:    true,
	})
	if err != nil {
		t.Fatalf("failed to create S3 client: %v", err)
	}
	if err := s3Client.EnsureBucket(ctx); err != nil {
		t.Fatalf("failed to create bucket: %v", err)
	}

	port, err := getFreePort()
	if err != nil {
		t.Fatalf("failed to get free port: %v", err)
	}

	provider := &fakeProvider{}
	serverURL, serverCloser := startServer(t, pool, s3Client, provider, port)

	return &E2ETestEnv{
		T:            t,
		Ctx:          ctx,
		PostgresC:    pgC,
		RustFSC:      s3C,
		Pool:         pool,
		ServerURL:    serverURL,
		ServerCloser: serverCloser,
		S3Client:     s3Client,
		Provider:     provider,
		HTTPClient:   &http.Client{Timeout: 30 * time.Second},
	}
}

// Cleanup releases all resources
func (e *E2ETestEnv) Cleanup() {
	if e.ServerCloser != nil {
		e.ServerCloser()
	}
	if e.Pool != nil {
		e.Pool.Close()
	}
	if e.RustFSC != nil {
		e.RustFSC.Terminate(e.Ctx)
	}
	if e.PostgresC != nil {
		e.PostgresC.Terminate(e.Ctx)
	}
}

// APIResponse represents a standard API response
type APIResponse struct {
	StatusCode int
	Data       json.RawMessage `json:"data"`
	Error      string          `json:"error,omitempty"`
	Code       string          `json:"code,omitempty"`
}

// Get performs a GET request
func (e *E2ETestEnv) Get(path string) (*APIResponse, error) {
	return e.doRequest(http.MethodGet, path, nil)
}

// Post performs a POST request
func (e *E2ETestEnv) Post(path string, body interface{}) (*APIResponse, error) {
	return e.doRequest(http.MethodPost, path, body)
}

func (e *E2ETestEnv) doRequest(method, path string, body interface{}) (*APIResponse, error) {
	var reqBody io.Reader
	if body != nil {
		jsonData, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal body: %w", err)
		}
		reqBody = bytes.NewReader(jsonData)
	}

	req, err := http.NewRequestWithContext(e.Ctx, method, e.ServerURL+path, reqBody)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.HTTPClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	apiResp := &APIResponse{StatusCode: resp.StatusCode}
	if err := json.Unmarshal(respBody, apiResp); err != nil {
		return nil, fmt.Errorf("HTTP %d: %s", resp.StatusCode, string(respBody))
	}
	return apiResp, nil
}

// UploadFile PUTs content to a presigned URL.
func (e *E2ETestEnv) UploadFile(uploadURL string, content []byte, contentType string) error {
	req, err := http.NewRequestWithContext(e.Ctx, http.MethodPut, uploadURL, bytes.NewReader(content))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", contentType)

	resp, err := e.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("upload failed with status %d: %s", resp.StatusCode, body)
	}
	return nil
}

// statusPayload mirrors the status object returned by the API.
type statusPayload struct {
	Status      string `json:"status"`
	Progress    int    `json:"progress"`
	Error       string `json:"error"`
	ChunksCount int    `json:"chunks_count"`
}

// documentPayload mirrors the document object returned by the API.
type documentPayload struct {
	ID           string         `json:"id"`
	Title        string         `json:"title"`
	SourceKey    string         `json:"source_key"`
	ExtractFacts bool           `json:"extract_facts"`
	Status       *statusPayload `json:"status"`
}

// WaitForTerminal polls the status endpoint until the document completes or fails.
func (e *E2ETestEnv) WaitForTerminal(documentID string, timeout time.Duration) statusPayload {
	deadline := time.Now().Add(timeout)
	var last statusPayload
	for time.Now().Before(deadline) {
		resp, err := e.Get("/documents/" + documentID + "/status")
		if err != nil {
			e.T.Fatalf("failed to get status: %v", err)
		}
		if err := json.Unmarshal(resp.Data, &last); err != nil {
			e.T.Fatalf("failed to parse status: %v", err)
		}
		if last.Status == "completed" || last.Status == "failed" {
			return last
		}
		time.Sleep(200 * time.Millisecond)
	}
	e.T.Fatalf("document %s did not finish in %s, last status %q", documentID, timeout, last.Status)
	return last
}

// fakeProvider returns deterministic vectors and one fact per sentence.
type fakeProvider struct {
	failEmbeddings atomic.Bool
}

func (p *fakeProvider) Embed(ctx context.Context, text string) ([]float32, error) {
	if p.failEmbeddings.Load() {
		return nil, fmt.Errorf("provider unavailable")
	}
	h := fnv.New64a()
	_, _ = h.Write([]byte(text))
	seed := h.Sum64()

	vec := make([]float32, testDimensions)
	for i := range vec {
		vec[i] = float32((seed>>(i*8))&0xff) / 255
	}
	return vec, nil
}

func (p *fakeProvider) Complete(ctx context.Context, systemInstruction, userText string) (string, error) {
	var b strings.Builder
	for _, sentence := range strings.Split(userText, ".") {
		sentence = strings.TrimSpace(sentence)
		if sentence == "" {
			continue
		}
		fmt.Fprintf(&b, "- %s.\n", sentence)
	}
	return b.String(), nil
}

// startServer wires the pipeline, the worker and the HTTP API the way docpiped serve does.
func startServer(t *testing.T, pool *pgxpool.Pool, s3Client *storage.S3Client, provider *fakeProvider, port int) (string, func()) {
	logger := zerolog.Nop()

	counter, err := tokenizer.New(tokenizer.DefaultEncoding)
	if err != nil {
		t.Fatalf("failed to create tokenizer: %v", err)
	}
	segCfg := segment.DefaultConfig()
	segCfg.TargetChunkTokens = 64
	segCfg.ChunkOverlapTokens = 8
	segCfg.MinChunkTokens = 8
	segCfg.ForceSingleChunkCharThreshold = 100
	segmenter, err := segment.New(counter, segCfg)
	if err != nil {
		t.Fatalf("failed to create segmenter: %v", err)
	}

	generator := embed.NewGenerator(provider, embed.WithModel("fake"), embed.WithDimensions(testDimensions))
	ingestCfg := ingest.DefaultConfig()
	ingestCfg.RetryInitialInterval = 10 * time.Millisecond
	orchestrator, err := ingest.NewOrchestrator(repository.NewPipelineStore(pool), segmenter, generator, ingestCfg,
		ingest.WithFactExtractor(facts.NewExtractor(provider)),
	)
	if err != nil {
		t.Fatalf("failed to create orchestrator: %v", err)
	}

	documents := repository.NewDocumentRepository(pool)
	statuses := repository.NewStatusRepository(pool)
	chunks := repository.NewChunkRepository(pool)
	txRunner := repository.NewTxRunner(pool)

	ingestion := service.NewIngestionService(documents, s3Client, orchestrator, logger)
	processor := jobs.NewIngestionWorker(repository.NewIngestionJobRepository(pool), ingestion, jobs.IngestionWorkerConfig{
		BatchSize:  4,
		MaxRetries: 1,
	}, logger)
	worker := jobs.NewWorker(processor, 100*time.Millisecond, logger)
	workerCtx, stopWorker := context.WithCancel(context.Background())
	go worker.Start(workerCtx)

	documentSvc := service.NewDocumentService(documents, txRunner, orchestrator, service.DocumentServiceConfig{
		DefaultExtractFacts: true,
	})
	statusSvc := service.NewStatusService(statuses, chunks, documents)

	router := server.NewRouter(server.RouterConfig{
		DocumentHandler: handlers.NewDocumentHandler(documentSvc, statusSvc),
		UploadHandler:   handlers.NewUploadHandler(service.NewUploadService(s3Client, s3Client.UploadURLExpiry())),
		Logger:          logger,
	})

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", port),
		Handler: router,
	}
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			t.Logf("server error: %v", err)
		}
	}()

	serverURL := fmt.Sprintf("http://localhost:%d", port)
	waitForServer(t, serverURL, 10*time.Second)

	return serverURL, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(ctx)
		stopWorker()
		worker.Stop()
		orchestrator.Release()
	}
}

func waitForServer(t *testing.T, url string, timeout time.Duration) {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		resp, err := http.Get(url + "/health")
		if err == nil {
			resp.Body.Close()
			if resp.StatusCode == http.StatusOK {
				return
			}
		}
		time.Sleep(100 * time.Millisecond)
	}
	t.Fatalf("server did not start within %v", timeout)
}

func getFreePort() (int, error) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return 0, err
	}
	defer l.Close()
	return l.Addr().(*net.TCPAddr).Port, nil
}
