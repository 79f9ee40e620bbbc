package cmd

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ssargent/avrokit/pkg/config"
	"github.com/ssargent/avrokit/pkg/container"
	"github.com/ssargent/avrokit/pkg/metrics"
	"github.com/ssargent/avrokit/pkg/storage"
	"github.com/ssargent/avrokit/pkg/types"
)

const userSchema = `{"type": "record", "name": "User", "namespace": "org.example", "fields": [
	{"name": "id", "type": "long"},
	{"name": "email", "type": ["null", "string"]}]}`

const userLines = `{"email":{"string":"a@example.com"},"id":1}
{"email":null,"id":2}

{"email":{"string":"c@example.com"},"id":3}
`

func setupApp(t *testing.T) {
	t.Helper()
	app.cfg = config.DefaultConfig()
	app.cfg.Store.Dir = filepath.Join(t.TempDir(), "store")
	app.registry = prometheus.NewRegistry()
	app.metrics = metrics.NewMetrics(app.registry)
}

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

// writeUsers writes userLines to a new container and returns its path.
func writeUsers(t *testing.T, codecName string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "users.avro")
	out, err := os.Create(path)
	require.NoError(t, err)

	cfg := app.cfg.EncoderConfig()
	cfg.Codec = codecName
	n, err := writeRecords(out, strings.NewReader(userLines), types.MustParse(userSchema), cfg)
	require.NoError(t, err)
	require.Equal(t, 3, n)
	return path
}

func catFile(t *testing.T, path string, reader *types.Type, limit int) string {
	t.Helper()
	f, err := os.Open(path)
	require.NoError(t, err)
	var buf bytes.Buffer
	_, err = catContainer(&buf, f, reader, limit)
	require.NoError(t, err)
	return buf.String()
}

func TestPrintSchema(t *testing.T) {
	typ := types.MustParse(`"int"`)

	var buf bytes.Buffer
	require.NoError(t, printSchema(&buf, typ, false, true))
	assert.Equal(t, "7275d51a3f395c8f\n", buf.String())

	buf.Reset()
	require.NoError(t, printSchema(&buf, types.MustParse(userSchema), true, false))
	assert.Equal(t, `{"name":"org.example.User","type":"record","fields":[{"name":"id","type":"long"},{"name":"email","type":["null","string"]}]}`+"\n", buf.String())

	_, err := readSchemaFile(writeFile(t, "bad.avsc", `{"type": "fixed", "name": "F"}`))
	assert.Error(t, err)
	_, err = readSchemaFile(filepath.Join(t.TempDir(), "missing.avsc"))
	assert.Error(t, err)
}

func TestWriteAndCat(t *testing.T) {
	setupApp(t)
	for _, name := range []string{"null", "deflate", "snappy", "zstandard"} {
		t.Run(name, func(t *testing.T) {
			path := writeUsers(t, name)

			want := strings.ReplaceAll(userLines, "\n\n", "\n")
			assert.Equal(t, want, catFile(t, path, nil, 0))
			assert.Equal(t, strings.SplitAfter(want, "\n")[0], catFile(t, path, nil, 1))
		})
	}
}

func TestCat_ReaderSchema(t *testing.T) {
	setupApp(t)
	path := writeUsers(t, "null")
	reader := types.MustParse(`{"type": "record", "name": "User", "namespace": "org.example", "fields": [
		{"name": "id", "type": "long"},
		{"name": "active", "type": "boolean", "default": true}]}`)

	out := catFile(t, path, reader, 2)
	assert.Equal(t, "{\"active\":true,\"id\":1}\n{\"active\":true,\"id\":2}\n", out)
}

func TestWrite_BadInput(t *testing.T) {
	setupApp(t)
	typ := types.MustParse(userSchema)

	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"not json", "{oops\n", "line 1"},
		{"wrong type", `{"id":"x","email":null}` + "\n", "line 1"},
		{"second line", `{"id":1,"email":null}` + "\n" + `{"id":2}` + "\n", "line 2"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := os.Create(filepath.Join(t.TempDir(), "out.avro"))
			require.NoError(t, err)
			_, err = writeRecords(out, strings.NewReader(tt.input), typ, app.cfg.EncoderConfig())
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestWrite_Append(t *testing.T) {
	setupApp(t)
	path := writeUsers(t, "deflate")

	cfg := app.cfg.EncoderConfig()
	out, typ, err := openForAppend(path, nil, &cfg)
	require.NoError(t, err)
	assert.Equal(t, "deflate", cfg.Codec)
	assert.True(t, cfg.OmitHeader)

	n, err := writeRecords(out, strings.NewReader(`{"email":null,"id":4}`+"\n"), typ, cfg)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	lines := strings.Split(strings.TrimSpace(catFile(t, path, nil, 0)), "\n")
	require.Len(t, lines, 4)
	assert.Equal(t, `{"email":null,"id":4}`, lines[3])

	other := types.MustParse(`"string"`)
	_, _, err = openForAppend(path, other, &cfg)
	assert.Error(t, err)
}

func TestCheckFiles(t *testing.T) {
	setupApp(t)
	good := writeUsers(t, "snappy")

	data, err := os.ReadFile(good)
	require.NoError(t, err)
	truncated := writeFile(t, "truncated.avro", string(data[:len(data)-4]))
	garbage := writeFile(t, "garbage.avro", "this is not avro")
	missing := filepath.Join(t.TempDir(), "missing.avro")

	results, err := checkFiles(context.Background(), []string{good, truncated, garbage, missing}, 2)
	require.NoError(t, err)
	require.Len(t, results, 4)

	assert.Equal(t, good, results[0].Path)
	assert.NoError(t, results[0].Err)
	assert.Equal(t, 3, results[0].Records)
	assert.ErrorIs(t, results[1].Err, container.ErrTruncatedFile)
	assert.ErrorIs(t, results[2].Err, container.ErrBadMagic)
	assert.ErrorIs(t, results[3].Err, os.ErrNotExist)
}

func TestCheckFiles_Cancelled(t *testing.T) {
	setupApp(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := checkFiles(ctx, []string{writeUsers(t, "null")}, 1)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestImportExport(t *testing.T) {
	setupApp(t)
	path := writeUsers(t, "zstandard")

	require.NoError(t, os.MkdirAll(app.cfg.Store.Dir, 0755))
	s, err := storage.Open(app.cfg.Store.Dir, storage.StoreConfig{})
	require.NoError(t, err)
	defer s.Close()

	f, err := os.Open(path)
	require.NoError(t, err)
	n, err := importContainer(s, f)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	reader := types.MustParse(`{"type": "record", "name": "User", "namespace": "org.example", "fields": [
		{"name": "email", "type": ["null", "string"]}]}`)
	outPath := filepath.Join(t.TempDir(), "export.avro")
	out, err := os.Create(outPath)
	require.NoError(t, err)
	n, err = exportStore(s, out, reader, app.cfg.EncoderConfig())
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	// Store iteration follows ksuid order, so compare as a set.
	lines := strings.Split(strings.TrimSpace(catFile(t, outPath, nil, 0)), "\n")
	assert.ElementsMatch(t, []string{
		`{"email":{"string":"a@example.com"}}`,
		`{"email":null}`,
		`{"email":{"string":"c@example.com"}}`,
	}, lines)

	out, err = os.Create(filepath.Join(t.TempDir(), "bad.avro"))
	require.NoError(t, err)
	_, err = exportStore(s, out, types.MustParse(`"int"`), app.cfg.EncoderConfig())
	assert.ErrorIs(t, err, types.ErrIncompatibleSchema)
}

func TestRootCommand(t *testing.T) {
	dir := t.TempDir()
	cfg := config.DefaultConfig()
	cfg.Codec = "deflate"
	cfg.Store.Dir = filepath.Join(dir, "store")
	configPath := filepath.Join(dir, "avrokit.yaml")
	require.NoError(t, config.SaveConfig(cfg, configPath))

	schemaPath := writeFile(t, "user.avsc", userSchema)
	avroPath := filepath.Join(dir, "users.avro")
	promPath := filepath.Join(dir, "avrokit.prom")

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetIn(strings.NewReader(userLines))
	rootCmd.SetArgs([]string{"--config", configPath, "--metrics-textfile", promPath,
		"write", avroPath, "--schema", schemaPath})
	require.NoError(t, rootCmd.Execute())

	prom, err := os.ReadFile(promPath)
	require.NoError(t, err)
	assert.Contains(t, string(prom), "avrokit_records_written_total 3")

	out.Reset()
	rootCmd.SetArgs([]string{"--config", configPath, "head", avroPath})
	require.NoError(t, rootCmd.Execute())
	assert.Contains(t, out.String(), "codec: deflate\n")
	assert.Contains(t, out.String(), "User")

	out.Reset()
	rootCmd.SetArgs([]string{"--config", configPath, "check", avroPath})
	require.NoError(t, rootCmd.Execute())
	assert.Contains(t, out.String(), "ok, 3 records")
}
