package service_test

import (
	"context"
	"testing"

	"github.com/yeisme/minerva/pkg/apperr"
	"github.com/yeisme/minerva/pkg/internal/model"
	"github.com/yeisme/minerva/pkg/internal/types"
	"github.com/yeisme/minerva/pkg/queue"
)

func (f *fixture) importIn(t *testing.T, name string, raw model.RawStorage) (*model.Repository, *model.Import) {
	t.Helper()

	ctx := context.Background()

	repo, err := f.svc.CreateRepository(ctx, owner, &types.CreateRepositoryRequest{Name: name, RawStorage: raw})
	if err != nil {
		t.Fatalf("create repository: %v", err)
	}

	imp, err := f.svc.CreateImport(ctx, owner, &types.CreateImportRequest{Name: "batch", RepositoryUUID: repo.UUID})
	if err != nil {
		t.Fatalf("create import: %v", err)
	}

	return repo, imp
}

// TestRawStorage 测试 fileset 构建后按 raw_storage 删除或归档原始文件.
func TestRawStorage(t *testing.T) {
	cases := []struct {
		raw     model.RawStorage
		deleted int
		tagged  int
	}{
		{model.RawStorageDestroy, 2, 0},
		{model.RawStorageArchive, 0, 2},
		{model.RawStorageLive, 0, 0},
	}

	for _, tc := range cases {
		t.Run(string(tc.raw), func(t *testing.T) {
			f := newFixture(t)

			_, imp := f.importIn(t, "raw", tc.raw)

			if err := f.svc.RecordFilesetBuilt(context.Background(), &queue.FilesetBuiltPayload{
				FilesetUUID: "fs-1",
				ImportUUID:  imp.UUID,
				Name:        "scan.vsi",
				Files:       []string{"scan.vsi", "_scan_/stack1/frame.ets"},
			}); err != nil {
				t.Fatalf("record: %v", err)
			}

			if len(f.raw.deleted) != tc.deleted || len(f.raw.tagged) != tc.tagged {
				t.Fatalf("deleted = %v, tagged = %v", f.raw.deleted, f.raw.tagged)
			}

			key := rawBucket + "/" + imp.UUID + "/scan.vsi"
			if tc.deleted > 0 && f.raw.deleted[0] != key {
				t.Fatalf("deleted %q, want %q", f.raw.deleted[0], key)
			}

			if tc.tagged > 0 && f.raw.tagged[key]["archive"] != "true" {
				t.Fatalf("tags = %v", f.raw.tagged)
			}
		})
	}
}

// TestFilesetKeys 测试 fileset 与导入的文件及图像列表.
func TestFilesetKeys(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, imp := f.importIn(t, "keys", model.RawStorageLive)

	if err := f.svc.RecordFilesetBuilt(ctx, &queue.FilesetBuiltPayload{
		FilesetUUID: "fs-1",
		ImportUUID:  imp.UUID,
		Name:        "plate",
		Files:       []string{"b.tif", "a.tif"},
		Images: []queue.BuiltImage{
			{UUID: "img-2", Name: "well-b", SizeX: 64, SizeY: 64},
			{UUID: "img-1", Name: "well-a", SizeX: 64, SizeY: 64},
		},
	}); err != nil {
		t.Fatalf("record: %v", err)
	}

	fs, err := f.svc.GetFileset(ctx, owner, "fs-1")
	if err != nil || fs.ImportUUID != imp.UUID || !fs.Complete {
		t.Fatalf("fileset = %+v, %v", fs, err)
	}

	_, err = f.svc.GetFileset(ctx, other, "fs-1")
	wantKind(t, err, apperr.KindForbidden)

	_, err = f.svc.GetFileset(ctx, owner, "missing")
	wantKind(t, err, apperr.KindNotFound)

	images, err := f.svc.ListFilesetImages(ctx, owner, "fs-1")
	if err != nil || len(images) != 2 || images[0].Name != "well-a" {
		t.Fatalf("images = %+v, %v", images, err)
	}

	keys, err := f.svc.ListFilesetKeys(ctx, owner, "fs-1")
	if err != nil || len(keys) != 2 || keys[0].Path != "a.tif" {
		t.Fatalf("fileset keys = %+v, %v", keys, err)
	}

	keys, err = f.svc.ListImportKeys(ctx, owner, imp.UUID)
	if err != nil || len(keys) != 2 || *keys[1].FilesetUUID != "fs-1" {
		t.Fatalf("import keys = %+v, %v", keys, err)
	}
}

// TestFilesetOwnership 测试 fileset 事件不能改写其他导入或其他仓库的数据.
func TestFilesetOwnership(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, first := f.importIn(t, "first", model.RawStorageLive)
	_, second := f.importIn(t, "second", model.RawStorageLive)

	if err := f.svc.RecordFilesetBuilt(ctx, &queue.FilesetBuiltPayload{
		FilesetUUID: "fs-1",
		ImportUUID:  first.UUID,
		Images:      []queue.BuiltImage{{UUID: "img-1", Name: "scan", SizeX: 64, SizeY: 64}},
	}); err != nil {
		t.Fatalf("record: %v", err)
	}

	err := f.svc.RecordFilesetBuilt(ctx, &queue.FilesetBuiltPayload{FilesetUUID: "fs-1", ImportUUID: second.UUID})
	wantKind(t, err, apperr.KindValidation)

	err = f.svc.RecordFilesetBuilt(ctx, &queue.FilesetBuiltPayload{
		FilesetUUID: "fs-2",
		ImportUUID:  second.UUID,
		Images:      []queue.BuiltImage{{UUID: "img-1", Name: "scan", SizeX: 64, SizeY: 64}},
	})
	wantKind(t, err, apperr.KindValidation)

	img, err := f.svc.GetImage(ctx, owner, "img-1")
	if err != nil || *img.Data.FilesetUUID != "fs-1" {
		t.Fatalf("image = %+v, %v", img, err)
	}

	filesets, err := f.svc.ListFilesets(ctx, owner, second.UUID)
	if err != nil || len(filesets) != 0 {
		t.Fatalf("second import filesets = %+v, %v", filesets, err)
	}
}

// TestUploadCredentials 测试导入与图像的上传凭证分别指向原始桶与瓦片桶.
func TestUploadCredentials(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	repo, imp := f.importIn(t, "uploads", model.RawStorageLive)

	grant, err := f.svc.ImportCredentials(ctx, owner, imp.UUID)
	if err != nil || grant.Bucket != rawBucket || grant.Prefix != imp.UUID+"/" {
		t.Fatalf("import grant = %+v, %v", grant, err)
	}

	img := f.image(t, repo)

	grant, err = f.svc.ImageCredentials(ctx, owner, img.UUID)
	if err != nil || grant.Bucket != testBucket || grant.Prefix != img.UUID+"/" {
		t.Fatalf("image grant = %+v, %v", grant, err)
	}

	_, err = f.svc.ImageCredentials(ctx, other, img.UUID)
	wantKind(t, err, apperr.KindForbidden)
}
