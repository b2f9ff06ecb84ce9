package service_test

import (
	"context"
	"testing"
	"time"

	"github.com/yeisme/minerva/pkg/apperr"
	"github.com/yeisme/minerva/pkg/internal/types"
	"github.com/yeisme/minerva/pkg/queue"
)

// TestRepositoryStats 测试仓库统计的聚合与趋势补齐.
func TestRepositoryStats(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	repo := f.repository(t, "stats", "")
	kept := f.image(t, repo)
	removed := f.image(t, repo)

	if err := f.svc.DeleteImage(ctx, owner, removed.UUID); err != nil {
		t.Fatalf("delete: %v", err)
	}

	imp, err := f.svc.CreateImport(ctx, owner, &types.CreateImportRequest{Name: "batch", RepositoryUUID: repo.UUID})
	if err != nil {
		t.Fatalf("create import: %v", err)
	}

	err = f.svc.RecordFilesetBuilt(ctx, &queue.FilesetBuiltPayload{
		FilesetUUID: "fs-stats",
		ImportUUID:  imp.UUID,
		Name:        "scan.ome.tiff",
		Images:      []queue.BuiltImage{{UUID: "img-stats", Name: "scan", PyramidLevels: 1, SizeX: 100, SizeY: 50, SizeC: 3}},
	})
	if err != nil {
		t.Fatalf("record fileset: %v", err)
	}

	stats, err := f.svc.RepositoryStats(ctx, owner, repo.UUID, 7)
	if err != nil {
		t.Fatalf("stats: %v", err)
	}

	// 8x8x2x1x2 的 PNG 图像加 100x50x3 的 fileset 图像，已删除的不计入体素
	wantVoxels := int64(8*8*2*2 + 100*50*3)
	if stats.Images.Total != 3 || stats.Images.Active != 2 || stats.Images.Deleted != 1 || stats.Images.Voxels != wantVoxels {
		t.Fatalf("images = %+v, want voxels %d", stats.Images, wantVoxels)
	}

	if stats.Imports.Total != 1 || stats.Imports.Complete+stats.Imports.Incomplete != 1 {
		t.Fatalf("imports = %+v", stats.Imports)
	}

	if stats.Filesets.Total != 1 || stats.Filesets.Complete != 1 {
		t.Fatalf("filesets = %+v", stats.Filesets)
	}

	if len(stats.Formats) != 2 {
		t.Fatalf("formats = %+v", stats.Formats)
	}

	for _, item := range stats.Formats {
		if item.Format == kept.Format && (item.Count != 1 || item.Voxels != 8*8*2*2) {
			t.Fatalf("format %s = %+v", kept.Format, item)
		}
	}

	if len(stats.Trend) != 7 {
		t.Fatalf("trend has %d points", len(stats.Trend))
	}

	total := 0
	for _, p := range stats.Trend {
		total += p.Count
	}

	today := time.Now().UTC().Format(time.DateOnly)
	if last := stats.Trend[len(stats.Trend)-1]; last.Date != today || total != 3 {
		t.Fatalf("trend = %+v", stats.Trend)
	}
}

// TestRepositoryStatsAccess 测试无授权访问与默认趋势天数.
func TestRepositoryStatsAccess(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	repo := f.repository(t, "private-stats", "")

	_, err := f.svc.RepositoryStats(ctx, other, repo.UUID, 0)
	wantKind(t, err, apperr.KindForbidden)

	stats, err := f.svc.RepositoryStats(ctx, owner, repo.UUID, 0)
	if err != nil {
		t.Fatalf("stats: %v", err)
	}

	if len(stats.Trend) != 14 || stats.Images.Total != 0 || len(stats.Formats) != 0 {
		t.Fatalf("stats = %+v", stats)
	}
}
