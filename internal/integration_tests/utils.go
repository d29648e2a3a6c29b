package integrationtests

import (
	"bytes"
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"cryocare-backend/internal/core"
	"cryocare-backend/internal/core/cryocare"
	"cryocare-backend/internal/database"
	"cryocare-backend/internal/messaging"
	"cryocare-backend/internal/storage"

	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/minio"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/modules/rabbitmq"
	"github.com/testcontainers/testcontainers-go/wait"
	"gorm.io/gorm"
)

const (
	minioUsername = "admin"
	minioPassword = "password"
	minioRegion   = "us-east-1"
)

func setupMinioContainer(t *testing.T, ctx context.Context) string {
	minioContainer, err := minio.Run(
		ctx,
		"minio/minio:RELEASE.2024-01-16T16-07-38Z",
		minio.WithUsername(minioUsername),
		minio.WithPassword(minioPassword),
	)
	require.NoError(t, err, "Failed to start MinIO container")

	t.Cleanup(func() {
		err := minioContainer.Terminate(context.Background())
		require.NoError(t, err, "Failed to terminate MinIO container")
	})

	connStr, err := minioContainer.ConnectionString(ctx)
	require.NoError(t, err, "Failed to get MinIO connection string")

	return "http://" + connStr
}

func setupObjectStore(t *testing.T, ctx context.Context) *storage.S3ObjectStore {
	t.Helper()

	store, err := storage.NewS3ObjectStore(storage.S3ClientConfig{
		Endpoint:        setupMinioContainer(t, ctx),
		Region:          minioRegion,
		AccessKeyID:     minioUsername,
		SecretAccessKey: minioPassword,
	})
	require.NoError(t, err)
	return store
}

func setupRabbitMQContainer(t *testing.T, ctx context.Context) string {
	rabbitmqContainer, err := rabbitmq.Run(ctx, "rabbitmq:3.12.11-management-alpine")
	require.NoError(t, err, "Failed to start RabbitMQ container")

	t.Cleanup(func() {
		err := rabbitmqContainer.Terminate(context.Background())
		require.NoError(t, err, "Failed to terminate RabbitMQ container")
	})

	connStr, err := rabbitmqContainer.AmqpURL(ctx)
	require.NoError(t, err, "Failed to get RabbitMQ AMQP URL")

	return connStr
}

func setupQueues(t *testing.T, ctx context.Context) (*messaging.RabbitMQPublisher, *messaging.RabbitMQReceiver) {
	url := setupRabbitMQContainer(t, ctx)

	publisher, err := messaging.NewRabbitMQPublisher(url)
	require.NoError(t, err)
	t.Cleanup(publisher.Close)

	receiver, err := messaging.NewRabbitMQReceiver(url)
	require.NoError(t, err)
	t.Cleanup(receiver.Close)

	return publisher, receiver
}

func setupPostgresContainer(t *testing.T, ctx context.Context) string {
	dbName, dbUser, dbPassword := "test_db", "test_user", "test_password"

	postgresContainer, err := postgres.Run(ctx,
		"postgres:16-alpine",
		postgres.WithDatabase(dbName),
		postgres.WithUsername(dbUser),
		postgres.WithPassword(dbPassword),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second)),
	)
	require.NoError(t, err, "Failed to start PostgreSQL container")

	t.Cleanup(func() {
		err := postgresContainer.Terminate(context.Background())
		require.NoError(t, err, "Failed to terminate PostgreSQL container")
	})

	connStr, err := postgresContainer.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err, "Failed to get PostgreSQL connection string")

	return connStr
}

func createDB(t *testing.T, ctx context.Context) *gorm.DB {
	db, err := database.NewDatabase(setupPostgresContainer(t, ctx))
	require.NoError(t, err)

	return db
}

func httpRequest(api http.Handler, method, endpoint string, payload any, dest any) error {
	var body io.Reader
	if payload != nil {
		requestBody, err := json.Marshal(payload)
		if err != nil {
			return err
		}
		body = bytes.NewReader(requestBody)
	}

	req := httptest.NewRequest(method, endpoint, body)
	req.Header.Set("Content-Type", "application/json")

	rr := httptest.NewRecorder()
	api.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		return fmt.Errorf("expected status code 200, got %d: %v", rr.Code, rr.Body.String())
	}

	if dest != nil {
		if err := json.Unmarshal(rr.Body.Bytes(), dest); err != nil {
			return fmt.Errorf("failed to unmarshal response: %w", err)
		}
	}

	return nil
}

func writeMrc(t *testing.T, path string, n int32, voxel float32) string {
	buf := make([]byte, 1024)
	binary.LittleEndian.PutUint32(buf[0:4], uint32(n))
	binary.LittleEndian.PutUint32(buf[4:8], uint32(n))
	binary.LittleEndian.PutUint32(buf[8:12], uint32(n/2))
	binary.LittleEndian.PutUint32(buf[12:16], 2)
	binary.LittleEndian.PutUint32(buf[40:44], math.Float32bits(float32(n)*voxel))
	copy(buf[208:212], "MAP ")
	require.NoError(t, os.WriteFile(path, buf, 0644))
	return path
}

// stubRunner stands in for the cryoCARE programs, writing the files they
// produce from the paths in their json config.
type stubRunner struct {
	mu       sync.Mutex
	programs []string
}

var _ cryocare.Runner = (*stubRunner)(nil)

func (r *stubRunner) Run(ctx context.Context, program string, args []string, cwd string) error {
	data, err := os.ReadFile(args[len(args)-1])
	if err != nil {
		return err
	}
	var config map[string]any
	if err := json.Unmarshal(data, &config); err != nil {
		return err
	}

	r.mu.Lock()
	r.programs = append(r.programs, program)
	r.mu.Unlock()

	switch program {
	case cryocare.ExtractTrainDataProgram:
		for _, name := range []string{core.TrainDataFile, core.ValidationDataFile, core.MeanStdFile} {
			if err := touch(filepath.Join(config["path"].(string), name)); err != nil {
				return err
			}
		}
		return nil
	case cryocare.TrainProgram:
		return touch(filepath.Join(config["path"].(string), config["model_name"].(string)+".tar.gz"))
	case cryocare.PredictProgram:
		return touch(filepath.Join(config["output"].(string), filepath.Base(config["even"].(string))))
	}
	return fmt.Errorf("unknown program %s", program)
}

func (r *stubRunner) count(program string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, p := range r.programs {
		if p == program {
			n++
		}
	}
	return n
}

func touch(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), os.ModePerm); err != nil {
		return err
	}
	return os.WriteFile(path, []byte("cryocare"), 0644)
}

func ptr[T any](v T) *T {
	return &v
}
