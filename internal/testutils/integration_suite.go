// Package testutils starts the backing services of webchat in containers.
// Suites are only used by tests that skip under -short.
package testutils

import (
	"context"
	"database/sql"
	"fmt"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/docker/go-connections/nat"
	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	_ "github.com/lib/pq"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
	"github.com/weaviate/weaviate-go-client/v5/weaviate"

	"webchat/internal/config"
)

const (
	pgImage       = "postgres:16-alpine"
	weaviateImage = "semitechnologies/weaviate:1.33.6"
	nsqImage      = "nsqio/nsq:v1.3.0"
	startup       = 90 * time.Second
)

// IntegrationSuite runs Postgres, Weaviate and nsqd for end-to-end tests.
// DB is migrated; Weaviate is empty.
type IntegrationSuite struct {
	T        *testing.T
	DB       *sql.DB
	Weaviate *weaviate.Client

	migrationPath string
	pgHost        string
	pgPort        int
	weaviateHost  string
	nsqTCP        string
	nsqHTTP       string

	containers []testcontainers.Container
}

func NewIntegrationSuite(t *testing.T) *IntegrationSuite {
	_, file, _, _ := runtime.Caller(0)
	return &IntegrationSuite{
		T:             t,
		migrationPath: fmt.Sprintf("file://%s", filepath.Join(filepath.Dir(file), "..", "..", "migrations")),
	}
}

func (s *IntegrationSuite) Setup() {
	ctx := context.Background()
	s.startPostgres(ctx)
	s.startWeaviate(ctx)
	s.startNSQ(ctx)
}

func (s *IntegrationSuite) startPostgres(ctx context.Context) {
	pg, err := postgres.Run(ctx, pgImage,
		postgres.WithDatabase("webchat_test"),
		postgres.WithUsername("test"),
		postgres.WithPassword("test"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").WithOccurrence(2).WithStartupTimeout(startup)),
	)
	require.NoError(s.T, err)
	s.containers = append(s.containers, pg)

	dsn, err := pg.ConnectionString(ctx, "sslmode=disable")
	require.NoError(s.T, err)
	s.pgHost, err = pg.Host(ctx)
	require.NoError(s.T, err)
	port, err := pg.MappedPort(ctx, "5432/tcp")
	require.NoError(s.T, err)
	s.pgPort = port.Int()

	s.DB, err = sql.Open("postgres", dsn)
	require.NoError(s.T, err)

	m, err := migrate.New(s.migrationPath, dsn)
	require.NoError(s.T, err)
	require.NoError(s.T, m.Up())
}

func (s *IntegrationSuite) startWeaviate(ctx context.Context) {
	c := s.run(ctx, testcontainers.ContainerRequest{
		Image:        weaviateImage,
		ExposedPorts: []string{"8080/tcp"},
		Env: map[string]string{
			"AUTHENTICATION_ANONYMOUS_ACCESS_ENABLED": "true",
			"DEFAULT_VECTORIZER_MODULE":               "none",
			"PERSISTENCE_DATA_PATH":                   "/var/lib/weaviate",
		},
		WaitingFor: wait.ForHTTP("/v1/.well-known/ready").WithPort("8080/tcp").WithStartupTimeout(startup),
	})

	s.weaviateHost = s.endpoint(ctx, c, "8080/tcp")
	var err error
	s.Weaviate, err = weaviate.NewClient(weaviate.Config{Host: s.weaviateHost, Scheme: "http"})
	require.NoError(s.T, err)
}

func (s *IntegrationSuite) startNSQ(ctx context.Context) {
	c := s.run(ctx, testcontainers.ContainerRequest{
		Image:        nsqImage,
		ExposedPorts: []string{"4150/tcp", "4151/tcp"},
		Cmd:          []string{"/nsqd", "--broadcast-address=localhost"},
		WaitingFor:   wait.ForLog("TCP: listening on").WithStartupTimeout(startup),
	})
	s.nsqTCP = s.endpoint(ctx, c, "4150/tcp")
	s.nsqHTTP = s.endpoint(ctx, c, "4151/tcp")
}

func (s *IntegrationSuite) run(ctx context.Context, req testcontainers.ContainerRequest) testcontainers.Container {
	c, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{ContainerRequest: req, Started: true})
	require.NoError(s.T, err, "start %s", req.Image)
	s.containers = append(s.containers, c)
	return c
}

func (s *IntegrationSuite) endpoint(ctx context.Context, c testcontainers.Container, port nat.Port) string {
	ep, err := c.PortEndpoint(ctx, port, "")
	require.NoError(s.T, err)
	return ep
}

// GetAppConfig points a config at the suite's containers. Embeddings use the
// offline hashing provider so no API key is needed.
func (s *IntegrationSuite) GetAppConfig() *config.Config {
	return &config.Config{
		DBHost:                     s.pgHost,
		DBPort:                     s.pgPort,
		DBUser:                     "test",
		DBPass:                     "test",
		DBName:                     "webchat_test",
		VectorStore:                config.VectorStoreWeaviate,
		WeaviateHost:               s.weaviateHost,
		WeaviateScheme:             "http",
		NSQDHost:                   s.nsqTCP,
		NSQDHTTP:                   s.nsqHTTP,
		MigrationPath:              s.migrationPath,
		EmbeddingProvider:          "hashing",
		EmbeddingDimension:         256,
		ChunkSize:                  512,
		ChunkOverlap:               64,
		ChunkUnit:                  config.ChunkUnitTokens,
		RetrievalTopK:              5,
		SessionCacheSize:           16,
		SessionTTL:                 time.Minute,
		AgentMaxToolRounds:         4,
		ScrapeTimeout:              10 * time.Second,
		IngestTimeout:              time.Minute,
		ChatTimeout:                time.Minute,
		QueryLogPath:               filepath.Join(s.T.TempDir(), "query.log"),
		BootstrapRetryAttempts:     5,
		BootstrapRetryDelaySeconds: 1,
	}
}

// Teardown stops containers in reverse start order.
func (s *IntegrationSuite) Teardown() {
	if s.DB != nil {
		s.DB.Close()
	}
	ctx := context.Background()
	for i := len(s.containers) - 1; i >= 0; i-- {
		if err := s.containers[i].Terminate(ctx); err != nil {
			s.T.Logf("terminate container: %v", err)
		}
	}
}
