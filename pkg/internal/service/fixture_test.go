package service_test

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"sync"
	"testing"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/glebarez/sqlite"

	"github.com/yeisme/minerva/pkg/configs"
	"github.com/yeisme/minerva/pkg/internal/model"
	"github.com/yeisme/minerva/pkg/internal/service"
	dbc "github.com/yeisme/minerva/pkg/internal/storage/db"
	s3c "github.com/yeisme/minerva/pkg/internal/storage/s3"
	"github.com/yeisme/minerva/pkg/internal/types"
	"github.com/yeisme/minerva/pkg/tile"
)

const (
	testBucket = "tiles"
	rawBucket  = "raw"
	owner      = "owner-1"
	other      = "other-1"
)

// memObjects 内存对象存储，统计读取次数.
type memObjects struct {
	mu    sync.Mutex
	data  map[string][]byte
	reads int
}

func newMemObjects() *memObjects {
	return &memObjects{data: map[string][]byte{}}
}

func (m *memObjects) put(key string, data []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.data[testBucket+"/"+key] = data
}

func (m *memObjects) readCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.reads
}

func (m *memObjects) ReadObject(_ context.Context, bucket, key string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.reads++

	data, ok := m.data[bucket+"/"+key]
	if !ok {
		return nil, fmt.Errorf("%s/%s: %w", bucket, key, s3c.ErrObjectNotFound)
	}

	return data, nil
}

// recordingPublisher 记录发布的消息，err 非空时发布失败.
type recordingPublisher struct {
	mu     sync.Mutex
	topics []string
	msgs   []*message.Message
	err    error
}

func (r *recordingPublisher) Publish(_ context.Context, topic string, msgs ...*message.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.err != nil {
		return r.err
	}

	for _, m := range msgs {
		r.topics = append(r.topics, topic)
		r.msgs = append(r.msgs, m)
	}

	return nil
}

func (r *recordingPublisher) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	return len(r.msgs)
}

// memRaw 记录对原始上传的删除与标记.
type memRaw struct {
	mu      sync.Mutex
	deleted []string
	tagged  map[string]map[string]string
}

func (m *memRaw) DeleteObjects(_ context.Context, bucket string, keys []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, k := range keys {
		m.deleted = append(m.deleted, bucket+"/"+k)
	}

	return nil
}

func (m *memRaw) TagObjects(_ context.Context, bucket string, keys []string, tags map[string]string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.tagged == nil {
		m.tagged = map[string]map[string]string{}
	}

	for _, k := range keys {
		m.tagged[bucket+"/"+k] = tags
	}

	return nil
}

// granter 记录最近一次签发的桶与前缀.
type granter struct {
	mu             sync.Mutex
	bucket, prefix string
}

func (g *granter) GrantUpload(_ context.Context, bucket, prefix string) (*s3c.UploadGrant, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.bucket, g.prefix = bucket, prefix

	return &s3c.UploadGrant{Bucket: bucket, Prefix: prefix}, nil
}

type fixture struct {
	svc     *service.Service
	objects *memObjects
	pub     *recordingPublisher
	raw     *memRaw
	uploads *granter
}

func newFixture(t *testing.T) *fixture {
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

	f := &fixture{objects: newMemObjects(), pub: &recordingPublisher{}, raw: &memRaw{}, uploads: &granter{}}
	f.svc = service.New(service.Deps{
		DB:         client.GetDB(),
		Objects:    f.objects,
		Uploads:    f.uploads,
		Raw:        f.raw,
		Publisher:  f.pub,
		TileBucket: testBucket,
		RawBucket:  rawBucket,
		Render:     cfg.Render,
		Events:     cfg.Events,
		Breaker:    cfg.CircuitBreaker,
	})

	return f
}

func (f *fixture) repository(t *testing.T, name string, access model.Access) *model.Repository {
	t.Helper()

	repo, err := f.svc.CreateRepository(context.Background(), owner, &types.CreateRepositoryRequest{Name: name, Access: access})
	if err != nil {
		t.Fatalf("create repository: %v", err)
	}

	return repo
}

// image 注册一张 8x8、单层、两通道的 PNG 图像.
func (f *fixture) image(t *testing.T, repo *model.Repository) *model.Image {
	t.Helper()

	img, err := f.svc.CreateImage(context.Background(), owner, &types.CreateImageRequest{
		Name:           "img",
		RepositoryUUID: repo.UUID,
		Format:         tile.FormatPNG,
		TileSize:       8,
		PyramidLevels:  1,
		SizeX:          8,
		SizeY:          8,
		SizeC:          2,
		SizeT:          2,
	})
	if err != nil {
		t.Fatalf("create image: %v", err)
	}

	return img
}

// putTile 写入一个取值恒为 v 的 8 位灰度瓦片.
func (f *fixture) putTile(t *testing.T, img *model.Image, channel int, c tile.Coord, v uint8) {
	t.Helper()

	size := service.Pyramid(img).TileSizeAt(c)
	g := image.NewGray(image.Rectangle{Max: size})

	for y := range size.Y {
		for x := range size.X {
			g.SetGray(x, y, color.Gray{Y: v})
		}
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, g); err != nil {
		t.Fatalf("encode tile: %v", err)
	}

	f.objects.put(tile.RawKey(img.StorageKey(), channel, c, tile.Extension(img.Format, img.Compression)), buf.Bytes())
}
