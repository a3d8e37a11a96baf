package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, dir, name, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o600))
}

func TestLoadConfig_MergesEnvironmentOverlay(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "base.yaml", `
server:
  port: ":8080"
db:
  host: localhost
  port: 5432
`)
	writeFile(t, dir, "production.yaml", `
db:
  host: db.internal
`)

	merged, err := LoadConfig("production", dir)
	require.NoError(t, err)

	db := merged["db"].(map[string]interface{})
	assert.Equal(t, "db.internal", db["host"])
	assert.Equal(t, 5432, db["port"])
	assert.Equal(t, ":8080", merged["server"].(map[string]interface{})["port"])
}

func TestLoadConfig_MissingOverlayIsIgnored(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "base.yaml", "server:\n  port: \":9000\"\n")

	merged, err := LoadConfig("staging", dir)
	require.NoError(t, err)
	assert.Equal(t, ":9000", merged["server"].(map[string]interface{})["port"])
}

func TestLoadConfig_MissingBase(t *testing.T) {
	_, err := LoadConfig("local", t.TempDir())
	assert.Error(t, err)
}

func TestLoadConfig_SubstitutesSecrets(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "base.yaml", `
db:
  password: "${DB_PASSWORD}"
auth:
  jwt_secret: "prefix-${JWT_SECRET}"
`)
	writeFile(t, dir, "secrets.env", "# local secrets\nDB_PASSWORD=hunter2\nJWT_SECRET='s3cret'\n")

	merged, err := LoadConfig("", dir)
	require.NoError(t, err)
	assert.Equal(t, "hunter2", merged["db"].(map[string]interface{})["password"])
	assert.Equal(t, "prefix-s3cret", merged["auth"].(map[string]interface{})["jwt_secret"])
}

func TestDecode(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "base.yaml", `
server:
  port: ":8080"
  shutdown_timeout: 15s
  cors_origins: ["http://localhost:3000"]
db:
  host: localhost
  port: 5432
  slow_query_threshold: 250ms
`)

	var out struct {
		Server ServerConfig `yaml:"server"`
		DB     DBConfig     `yaml:"db"`
	}
	require.NoError(t, Decode("local", dir, &out))
	assert.Equal(t, ":8080", out.Server.Port)
	assert.Equal(t, 15*time.Second, out.Server.ShutdownTimeout)
	assert.Equal(t, []string{"http://localhost:3000"}, out.Server.CORSOrigins)
	assert.Equal(t, 250*time.Millisecond, out.DB.SlowQueryThreshold)
}

func TestOverrideFromEnv(t *testing.T) {
	t.Setenv("DB_HOST", "pg")
	t.Setenv("DB_PORT", "6543")
	t.Setenv("SERVER_PORT", "9090")
	t.Setenv("MONGO_URI", "mongodb://mongo:27017")

	db := DBConfig{Host: "localhost", Port: 5432}
	OverrideDBFromEnv(&db)
	assert.Equal(t, "pg", db.Host)
	assert.Equal(t, 6543, db.Port)

	srv := ServerConfig{Port: ":8080"}
	OverrideServerFromEnv(&srv)
	assert.Equal(t, ":9090", srv.Port)

	mongo := MongoConfig{}
	OverrideMongoFromEnv(&mongo)
	assert.Equal(t, "mongodb://mongo:27017", mongo.URI)
}

func TestLoadConfig_PlaceholdersFallBackToEnvironment(t *testing.T) {
	t.Setenv("MQ_USER", "habits")
	dir := t.TempDir()
	writeFile(t, dir, "base.yaml", `
mq:
  url: "amqp://${MQ_USER}@rabbitmq:5672/"
auth:
  jwt_secret: "${HABIT_TEST_UNSET_SECRET}"
`)

	merged, err := LoadConfig("", dir)
	require.NoError(t, err)
	assert.Equal(t, "amqp://habits@rabbitmq:5672/", merged["mq"].(map[string]interface{})["url"])
	assert.Equal(t, "", merged["auth"].(map[string]interface{})["jwt_secret"])
}
