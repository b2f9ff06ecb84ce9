package mq_test

import (
	"context"
	"testing"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/glebarez/sqlite"

	"github.com/yeisme/minerva/pkg/configs"
	"github.com/yeisme/minerva/pkg/internal/model"
	"github.com/yeisme/minerva/pkg/internal/mq"
	"github.com/yeisme/minerva/pkg/internal/service"
	dbc "github.com/yeisme/minerva/pkg/internal/storage/db"
	mqc "github.com/yeisme/minerva/pkg/internal/storage/mq"
	"github.com/yeisme/minerva/pkg/internal/types"
	"github.com/yeisme/minerva/pkg/queue"
)

const owner = "owner-1"

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

func newImport(t *testing.T, svc *service.Service) *model.Import {
	t.Helper()

	ctx := context.Background()

	repo, err := svc.CreateRepository(ctx, owner, &types.CreateRepositoryRequest{Name: "events"})
	if err != nil {
		t.Fatal(err)
	}

	imp, err := svc.CreateImport(ctx, owner, &types.CreateImportRequest{Name: "batch", RepositoryUUID: repo.UUID})
	if err != nil {
		t.Fatal(err)
	}

	return imp
}

// TestFilesetBuiltConsumer 测试经 gochannel 投递的 fileset 事件写入注册表.
func TestFilesetBuiltConsumer(t *testing.T) {
	svc := newService(t)
	imp := newImport(t, svc)

	cfg := configs.Defaults().MQ
	cfg.Type = configs.MQTypeMemory
	cfg.Common.EnableMetrics = false

	client, err := mqc.New(context.Background(), &cfg)
	if err != nil {
		t.Fatalf("new mq: %v", err)
	}

	t.Cleanup(func() { _ = client.Close() })

	mq.RegisterConsumers(client, svc)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	go func() { _ = client.Run(ctx) }()

	select {
	case <-client.Running():
	case <-ctx.Done():
		t.Fatal("router did not start")
	}

	payload := queue.FilesetBuiltPayload{
		FilesetUUID: "fs-1",
		ImportUUID:  imp.UUID,
		Name:        "scan.ome.tiff",
		Images:      []queue.BuiltImage{{UUID: "img-1", Name: "scan", PyramidLevels: 2, SizeX: 2048, SizeY: 2048, SizeC: 1}},
	}

	if err := queue.PublishFilesetBuilt(ctx, client, payload); err != nil {
		t.Fatalf("publish: %v", err)
	}

	for {
		filesets, err := svc.ListFilesets(ctx, owner, imp.UUID)
		if err != nil {
			t.Fatalf("list filesets: %v", err)
		}

		if len(filesets) == 1 {
			break
		}

		select {
		case <-ctx.Done():
			t.Fatal("fileset was not recorded")
		case <-time.After(20 * time.Millisecond):
		}
	}
}

// TestFilesetBuiltHandlerDropsInvalid 测试无法处理的消息被确认而不是重投.
func TestFilesetBuiltHandlerDropsInvalid(t *testing.T) {
	svc := newService(t)
	h := mq.FilesetBuiltHandler(svc)

	if err := h(message.NewMessage(watermill.NewUUID(), []byte("not json"))); err != nil {
		t.Fatalf("malformed message: %v", err)
	}

	msg, err := queue.NewWatermillMessage(queue.TopicFilesetBuilt, queue.FilesetBuiltPayload{FilesetUUID: "fs-1", ImportUUID: "missing"})
	if err != nil {
		t.Fatal(err)
	}

	if err := h(msg); err != nil {
		t.Fatalf("unknown import: %v", err)
	}
}
