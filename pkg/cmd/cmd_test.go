package cmd

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"

	"github.com/yeisme/minerva/pkg/configs"
	"github.com/yeisme/minerva/pkg/internal/model"
	"github.com/yeisme/minerva/pkg/internal/storage/db"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()

	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(body), 0o600); err != nil {
		t.Fatal(err)
	}

	return dir
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()

	var out bytes.Buffer

	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)

	err := rootCmd.Execute()

	return out.String(), err
}

// TestRedact 测试嵌套配置中的敏感值被隐藏.
func TestRedact(t *testing.T) {
	got := redact(map[string]any{
		"auth": map[string]any{"jwt_secret": "hunter2", "issuer": "minerva"},
		"db":   map[string]any{"password": "", "host": "db"},
		"s3":   map[string]any{"secret_access_key": "abc"},
	})

	auth := got["auth"].(map[string]any)
	if auth["jwt_secret"] != redacted || auth["issuer"] != "minerva" {
		t.Fatalf("auth = %v", auth)
	}

	// 空值保持为空，便于看出未配置
	if db := got["db"].(map[string]any); db["password"] != "" {
		t.Fatalf("db = %v", db)
	}

	if s3 := got["s3"].(map[string]any); s3["secret_access_key"] != redacted {
		t.Fatalf("s3 = %v", s3)
	}
}

// TestConfigShow 测试按分节输出且不泄露密钥.
func TestConfigShow(t *testing.T) {
	dir := writeConfig(t, "server:\n  reload_config: false\nauth:\n  jwt_secret: hunter2\n")

	out, err := run(t, "-c", dir, "config", "show", "auth")
	if err != nil {
		t.Fatalf("show: %v", err)
	}

	if strings.Contains(out, "hunter2") || !strings.Contains(out, redacted) {
		t.Fatalf("output = %s", out)
	}

	if _, err := run(t, "-c", dir, "config", "show", "nope"); err == nil {
		t.Fatal("expected unknown section error")
	}
}

// TestConfigValidateRejects 测试非法配置在加载时即报错.
func TestConfigValidateRejects(t *testing.T) {
	dir := writeConfig(t, "server:\n  reload_config: false\ntracing:\n  sample_rate: 3\n")

	_, err := run(t, "-c", dir, "config", "validate")
	if err == nil || !strings.Contains(err.Error(), "tracing.sample_rate") {
		t.Fatalf("err = %v", err)
	}
}

// TestReadFilesetPayload 测试事件负载的读取与检查.
func TestReadFilesetPayload(t *testing.T) {
	p, err := readFilesetPayload(strings.NewReader(`{"fileset_uuid":"fs-1","import_uuid":"imp-1","images":[]}`), "-")
	if err != nil || p.FilesetUUID != "fs-1" {
		t.Fatalf("payload = %+v, %v", p, err)
	}

	if _, err := readFilesetPayload(strings.NewReader(`{"fileset_uuid":"fs-1"}`), "-"); err == nil {
		t.Fatal("expected missing import_uuid error")
	}

	if _, err := readFilesetPayload(nil, filepath.Join(t.TempDir(), "missing.json")); err == nil {
		t.Fatal("expected read error")
	}
}

// TestMQPublishFileset 测试通过内存队列发布事件.
func TestMQPublishFileset(t *testing.T) {
	dir := writeConfig(t, "server:\n  reload_config: false\nmq:\n  type: memory\n")

	payload := filepath.Join(dir, "fileset.json")
	if err := os.WriteFile(payload, []byte(`{"fileset_uuid":"fs-1","import_uuid":"imp-1","images":[{"uuid":"img-1"}]}`), 0o600); err != nil {
		t.Fatal(err)
	}

	out, err := run(t, "-c", dir, "mq", "publish-fileset", payload)
	if err != nil {
		t.Fatalf("publish: %v", err)
	}

	if !strings.Contains(out, "fs-1") || !strings.Contains(out, "1 images") {
		t.Fatalf("output = %s", out)
	}
}

// TestWriteTableStatus 测试已迁移与缺失的表都能输出.
func TestWriteTableStatus(t *testing.T) {
	if !slices.Contains(db.GetRegisteredDBTypes(), configs.SQLite) {
		t.Skip("built without sqlite")
	}

	ctx := context.Background()

	cfg := configs.Defaults().DB
	cfg.Type = configs.SQLite
	cfg.Database = filepath.Join(t.TempDir(), "status")

	client, err := db.New(ctx, &cfg)
	if err != nil {
		t.Fatal(err)
	}
	defer client.Close()

	if err := client.Migrate(ctx, &model.Repository{}); err != nil {
		t.Fatal(err)
	}

	if err := client.GetDB().Create(&model.Repository{UUID: model.NewUUID(), Name: "lab"}).Error; err != nil {
		t.Fatal(err)
	}

	var out bytes.Buffer
	if err := writeTableStatus(ctx, &out, client.GetDB()); err != nil {
		t.Fatal(err)
	}

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	if len(lines) != len(model.All())+1 {
		t.Fatalf("output = %q", out.String())
	}

	if f := strings.Fields(lines[1]); f[0] != "repositories" || f[1] != "yes" || f[2] != "1" {
		t.Fatalf("repositories row = %q", lines[1])
	}

	if f := strings.Fields(lines[2]); f[1] != "no" {
		t.Fatalf("images row = %q", lines[2])
	}
}
