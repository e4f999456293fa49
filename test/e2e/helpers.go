//go:build e2e

package e2e

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"hash/fnv"
	"io"
	"math"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
	"unicode"

	"github.com/cloo-solutions/unirank/internal/api/handlers"
	"github.com/cloo-solutions/unirank/internal/database"
	"github.com/cloo-solutions/unirank/internal/domain"
	"github.com/cloo-solutions/unirank/internal/openai"
	"github.com/cloo-solutions/unirank/internal/prompts"
	"github.com/cloo-solutions/unirank/internal/repository"
	"github.com/cloo-solutions/unirank/internal/server"
	"github.com/cloo-solutions/unirank/internal/service"
	"github.com/cloo-solutions/unirank/internal/storage"
	"github.com/cloo-solutions/unirank/internal/testutil"
	"github.com/jackc/pgx/v5/pgxpool"
)

const (
	e2eDimensions = 64
	e2eBucket     = "ranking-sources"
	e2ePrefix     = "2024/"
)

// E2ETestEnv holds all resources needed for E2E tests
type E2ETestEnv struct {
	T          *testing.T
	Ctx        context.Context
	PostgresC  *testutil.PostgresContainer
	RustFSC    *testutil.RustFSContainer
	Pool       *pgxpool.Pool
	S3Client   *storage.S3Client
	Spec       domain.IndexSpec
	Catalog    *prompts.Catalog
	Server     *httptest.Server
	HTTPClient *http.Client
}

// SetupE2EEnv starts Postgres and RustFS, migrates the schema and creates the index.
func SetupE2EEnv(t *testing.T) *E2ETestEnv {
	ctx := context.Background()

	pgC := testutil.NewPostgresContainer(ctx, t)
	s3C := testutil.NewRustFSContainer(ctx, t)

	if _, err := database.Migrate(pgC.ConnectionString(), "file://../../migrations", 0, nil); err != nil {
		t.Fatalf("failed to run migrations: %v", err)
	}

	pool, err := database.NewPool(ctx, database.Config{URL: pgC.ConnectionString()})
	if err != nil {
		t.Fatalf("failed to connect: %v", err)
	}

	s3Client, err := storage.NewS3Client(ctx, storage.S3ClientConfig{
		Endpoint:        s3C.Endpoint(),
		Region:          testutil.S3Region,
		AccessKeyID:     testutil.S3AccessKey,
		SecretAccessKey: testutil.S3SecretKey,
		Bucket:          e2eBucket,
		UsePathStyle:    true,
	})
	if err != nil {
		t.Fatalf("failed to create S3 client: %v", err)
	}
	if err := s3Client.EnsureBucket(ctx); err != nil {
		t.Fatalf("failed to create bucket: %v", err)
	}

	spec := domain.IndexSpec{Name: "rankings_e2e", Dimensions: e2eDimensions, Metric: domain.MetricCosine}
	if err := repository.NewIndexRepository(pool).Create(ctx, spec, false); err != nil {
		t.Fatalf("failed to create index: %v", err)
	}

	return &E2ETestEnv{
		T:          t,
		Ctx:        ctx,
		PostgresC:  pgC,
		RustFSC:    s3C,
		Pool:       pool,
		S3Client:   s3Client,
		Spec:       spec,
		Catalog:    prompts.MustLoad(),
		HTTPClient: &http.Client{Timeout: 30 * time.Second},
	}
}

// Cleanup releases all resources
func (e *E2ETestEnv) Cleanup() {
	if e.Server != nil {
		e.Server.Close()
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

// Upload stores a ranking file under the test prefix.
func (e *E2ETestEnv) Upload(name, body string) {
	if err := e.S3Client.PutObject(e.Ctx, e2ePrefix+name, []byte(body), "application/json"); err != nil {
		e.T.Fatalf("failed to upload %s: %v", name, err)
	}
}

// Ingestion reads ranking files from the test bucket.
func (e *E2ETestEnv) Ingestion() *service.IngestionService {
	return service.NewIngestionService(
		service.NewBucketSource(e.S3Client, e2ePrefix),
		bagOfWords{},
		repository.NewTxRunner(e.Pool, e.Spec),
		repository.NewSourceStateRepository(e.Pool),
		service.IngestionConfig{IndexName: e.Spec.Name},
		nil,
	)
}

// StartServer serves the answering API over the ingested index.
func (e *E2ETestEnv) StartServer(promptVersion string, maxRank int) {
	template, err := e.Catalog.Template(promptVersion)
	if err != nil {
		e.T.Fatalf("unknown prompt version: %v", err)
	}

	retriever := service.NewRetrieverWithConfig(
		bagOfWords{},
		repository.NewChunkRepository(e.Pool, e.Spec),
		service.RetrieverConfig{K: 4, Filter: domain.SearchFilter{MaxRank: maxRank}},
	)
	orchestrator := service.NewOrchestrator(
		retriever,
		service.PassthroughCompressor{},
		service.NewPromptAssembler(template, e.Catalog.NoContextMarker),
		service.NewGenerator(recordsChat{marker: e.Catalog.NoContextMarker}, openai.DefaultGenerationConfig()),
		service.DefaultOrchestratorConfig(),
		service.WithQueryLog(repository.NewQueryLogRepository(e.Pool)),
	)
	sessions, err := service.NewSessionStore(100, 10)
	if err != nil {
		e.T.Fatalf("failed to create session store: %v", err)
	}

	router := server.NewRouter(server.RouterConfig{
		AnswerHandler:  handlers.NewAnswerHandler(orchestrator, sessions, nil),
		SessionHandler: handlers.NewSessionHandler(sessions, e.Catalog.Help, e.Catalog.Reset),
		HealthCheck:    e.Pool.Ping,
	})
	e.Server = httptest.NewServer(router)
}

// APIResponse is the success envelope.
type APIResponse struct {
	Data  json.RawMessage `json:"data"`
	Error string          `json:"error"`
	Code  string          `json:"code"`
}

// Get performs a GET request
func (e *E2ETestEnv) Get(path string) (*APIResponse, int, error) {
	return e.doRequest(http.MethodGet, path, nil)
}

// Post performs a POST request
func (e *E2ETestEnv) Post(path string, body interface{}) (*APIResponse, int, error) {
	return e.doRequest(http.MethodPost, path, body)
}

func (e *E2ETestEnv) doRequest(method, path string, body interface{}) (*APIResponse, int, error) {
	var reqBody io.Reader
	if body != nil {
		jsonData, err := json.Marshal(body)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to marshal body: %w", err)
		}
		reqBody = bytes.NewReader(jsonData)
	}

	req, err := http.NewRequest(method, e.Server.URL+path, reqBody)
	if err != nil {
		return nil, 0, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.HTTPClient.Do(req)
	if err != nil {
		return nil, 0, err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, resp.StatusCode, err
	}

	var apiResp APIResponse
	if err := json.Unmarshal(respBody, &apiResp); err != nil {
		return nil, resp.StatusCode, fmt.Errorf("HTTP %d: %s", resp.StatusCode, respBody)
	}
	return &apiResp, resp.StatusCode, nil
}

// bagOfWords embeds text as normalized hashed word counts, so texts sharing
// words are close under cosine distance.
type bagOfWords struct{}

func (bagOfWords) GenerateEmbedding(_ context.Context, text string) ([]float32, error) {
	vec := make([]float32, e2eDimensions)
	words := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	for _, w := range words {
		h := fnv.New32a()
		h.Write([]byte(w))
		vec[h.Sum32()%e2eDimensions]++
	}

	var norm float64
	for _, v := range vec {
		norm += float64(v * v)
	}
	if norm == 0 {
		vec[0] = 1
		return vec, nil
	}
	for i := range vec {
		vec[i] = float32(float64(vec[i]) / math.Sqrt(norm))
	}
	return vec, nil
}

var commonWords = map[string]bool{
	"what": true, "where": true, "does": true, "rank": true, "ranked": true,
	"ranking": true, "rankings": true, "university": true, "universities": true,
}

// recordsChat answers with the ranking records of the system message that
// mention a word of the question, standing in for the chat model.
type recordsChat struct {
	marker string
}

func (c recordsChat) Complete(_ context.Context, messages []domain.Message, _ openai.GenerationConfig) (string, error) {
	system := messages[0].Content
	if strings.Contains(system, c.marker) {
		return "I could not find that university in the rankings. Please check the spelling of its official name.", nil
	}

	var names []string
	for _, w := range strings.Fields(strings.ToLower(messages[len(messages)-1].Content)) {
		w = strings.TrimFunc(w, func(r rune) bool { return !unicode.IsLetter(r) })
		if len(w) > 3 && !commonWords[w] {
			names = append(names, w)
		}
	}

	var lines []string
	for _, line := range strings.Split(system, "\n") {
		if !strings.HasPrefix(line, "Source:") {
			continue
		}
		for _, name := range names {
			if strings.Contains(strings.ToLower(line), name) {
				lines = append(lines, line)
				break
			}
		}
	}
	if len(lines) == 0 {
		return "The rankings do not mention that university.", nil
	}
	return strings.Join(lines, "\n"), nil
}
