package jobs_test

import (
	"context"
	"testing"
	"time"

	"github.com/glebarez/sqlite"

	"github.com/yeisme/minerva/pkg/configs"
	"github.com/yeisme/minerva/pkg/internal/jobs"
	"github.com/yeisme/minerva/pkg/internal/model"
	"github.com/yeisme/minerva/pkg/internal/service"
	dbc "github.com/yeisme/minerva/pkg/internal/storage/db"
	"github.com/yeisme/minerva/pkg/internal/storage/kv"
	"github.com/yeisme/minerva/pkg/internal/types"
	"github.com/yeisme/minerva/pkg/scheduler"
)

func newService(t *testing.T) *service.Service {
	t.Helper()

	cfg := configs.Defaults()
	dbCfg := cfg.DB
	dbCfg.MaxOpenConns, dbCfg.MaxIdleConns = 1, 1

	client, err := dbc.Open(context.Background(), sqlite.Open(":memory:"), &dbCfg)
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}

	t.Cleanup(func() { _ = client.Close() })

	if err := model.Migrate(client.GetDB()); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	return service.New(service.Deps{DB: client.GetDB(), Render: cfg.Render})
}

// TestRegister 测试按 KV 能力注册任务.
func TestRegister(t *testing.T) {
	svc := newService(t)
	cfg := configs.Defaults().Jobs

	mem, _ := kv.NewMemoryKV(context.Background(), nil)

	sched, err := scheduler.NewScheduler()
	if err != nil {
		t.Fatal(err)
	}

	t.Cleanup(func() { _ = sched.Stop() })

	// 服务里传入的是包装后的客户端
	tiles := &kv.Client{KVStore: mem, Type: kv.KVTypeMemory}
	if err := jobs.Register(sched, svc, tiles, cfg); err != nil {
		t.Fatalf("register: %v", err)
	}

	infos := sched.GetJobInfos()
	if len(infos) != 2 || infos[0].Name != jobs.JobImportReport || infos[1].Name != jobs.JobCacheSweep {
		t.Fatalf("jobs = %+v", infos)
	}

	if err := jobs.Register(sched, svc, mem, cfg); err == nil {
		t.Fatal("duplicate registration should fail")
	}

	if err := jobs.Register(nil, svc, mem, cfg); err == nil {
		t.Fatal("nil scheduler should fail")
	}
}

// TestRegisterWithoutSweeper 测试有原生过期的缓存不注册清理任务.
func TestRegisterWithoutSweeper(t *testing.T) {
	sched, err := scheduler.NewScheduler()
	if err != nil {
		t.Fatal(err)
	}

	t.Cleanup(func() { _ = sched.Stop() })

	if err := jobs.Register(sched, newService(t), nil, configs.Defaults().Jobs); err != nil {
		t.Fatalf("register: %v", err)
	}

	if infos := sched.GetJobInfos(); len(infos) != 1 || infos[0].Name != jobs.JobImportReport {
		t.Fatalf("jobs = %+v", infos)
	}
}

// TestReportIncompleteImports 测试新建的导入不计入报告.
func TestReportIncompleteImports(t *testing.T) {
	svc := newService(t)
	ctx := context.Background()

	repo, err := svc.CreateRepository(ctx, "owner", &types.CreateRepositoryRequest{Name: "jobs"})
	if err != nil {
		t.Fatal(err)
	}

	if _, err := svc.CreateImport(ctx, "owner", &types.CreateImportRequest{Name: "batch", RepositoryUUID: repo.UUID}); err != nil {
		t.Fatal(err)
	}

	n, err := jobs.ReportIncompleteImports(ctx, svc, configs.JobsConfig{ImportStaleAfter: time.Hour})
	if err != nil || n != 0 {
		t.Fatalf("report = %d, %v", n, err)
	}
}

// TestSweepTileCache 测试清理过期的瓦片缓存.
func TestSweepTileCache(t *testing.T) {
	ctx := context.Background()

	store, _ := kv.NewMemoryKV(ctx, nil)
	_ = store.Set(ctx, "raw/a", []byte("a"), time.Millisecond)

	time.Sleep(10 * time.Millisecond)

	n, err := jobs.SweepTileCache(ctx, store.(kv.Sweeper))
	if err != nil || n != 1 {
		t.Fatalf("sweep = %d, %v", n, err)
	}
}
