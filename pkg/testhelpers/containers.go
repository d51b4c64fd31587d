package testhelpers

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
	"go.uber.org/zap"

	"github.com/ekaya-inc/chat-gateway/pkg/config"
	"github.com/ekaya-inc/chat-gateway/pkg/database"
)

// OpenSearchTestImage is the single-node OpenSearch image used by integration tests.
const OpenSearchTestImage = "opensearchproject/opensearch:2.13.0"

// TestOpenSearch holds a shared OpenSearch container and client.
type TestOpenSearch struct {
	Container testcontainers.Container
	Client    *database.OpenSearch
	URL       string
}

var (
	sharedOpenSearch     *TestOpenSearch
	sharedOpenSearchOnce sync.Once
	sharedOpenSearchErr  error
)

// GetTestOpenSearch returns a shared OpenSearch container for integration tests.
// The container is created once and reused across all tests in the run.
func GetTestOpenSearch(t *testing.T) *TestOpenSearch {
	t.Helper()

	if testing.Short() {
		t.Skip("Skipping integration test in short mode (requires Docker)")
	}

	sharedOpenSearchOnce.Do(func() {
		sharedOpenSearch, sharedOpenSearchErr = setupOpenSearch()
	})

	if sharedOpenSearchErr != nil {
		t.Fatalf("Failed to setup test OpenSearch: %v", sharedOpenSearchErr)
	}

	return sharedOpenSearch
}

func setupOpenSearch() (*TestOpenSearch, error) {
	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        OpenSearchTestImage,
		ExposedPorts: []string{"9200/tcp"},
		Env: map[string]string{
			"discovery.type":              "single-node",
			"DISABLE_SECURITY_PLUGIN":     "true",
			"DISABLE_INSTALL_DEMO_CONFIG": "true",
			"OPENSEARCH_JAVA_OPTS":        "-Xms512m -Xmx512m",
		},
		WaitingFor: wait.ForHTTP("/_cluster/health").
			WithPort("9200/tcp").
			WithStartupTimeout(120 * time.Second),
	}

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to start opensearch container: %w", err)
	}

	host, err := container.Host(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get container host: %w", err)
	}
	port, err := container.MappedPort(ctx, "9200")
	if err != nil {
		return nil, fmt.Errorf("failed to get mapped port: %w", err)
	}

	url := fmt.Sprintf("http://%s:%s", host, port.Port())
	client, err := database.NewOpenSearchClient(&config.OpenSearchConfig{
		URL:            url,
		RequestTimeout: 10 * time.Second,
	}, zap.NewNop())
	if err != nil {
		return nil, fmt.Errorf("failed to create opensearch client: %w", err)
	}
	if err := client.Ping(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping opensearch: %w", err)
	}

	return &TestOpenSearch{Container: container, Client: client, URL: url}, nil
}
