package service

import (
	"bytes"
	"context"
	"encoding/xml"
	"fmt"

	"github.com/yeisme/minerva/pkg/apperr"
	"github.com/yeisme/minerva/pkg/internal/model"
	"github.com/yeisme/minerva/pkg/internal/types"
)

const metadataObject = "metadata.xml"

// OME-XML 中用到的部分结构，命名空间不参与匹配.
type (
	omeDocument struct {
		XMLName xml.Name   `xml:"OME"`
		Images  []omeImage `xml:"Image"`
	}

	omeImage struct {
		ID     string    `xml:"ID,attr"`
		Name   string    `xml:"Name,attr"`
		Pixels omePixels `xml:"Pixels"`
	}

	omePixels struct {
		SizeX    int          `xml:"SizeX,attr"`
		SizeY    int          `xml:"SizeY,attr"`
		SizeZ    int          `xml:"SizeZ,attr"`
		SizeC    int          `xml:"SizeC,attr"`
		SizeT    int          `xml:"SizeT,attr"`
		Type     string       `xml:"Type,attr"`
		Channels []omeChannel `xml:"Channel"`
	}

	omeChannel struct {
		ID    string `xml:"ID,attr"`
		Name  string `xml:"Name,attr"`
		Color *int   `xml:"Color,attr"`
	}
)

// MetadataKey 返回图像 OME-XML 的对象键.
func MetadataKey(img *model.Image) string {
	return img.StorageKey() + "/" + metadataObject
}

// Metadata 返回图像的 OME-XML 原文，需要 Read.
func (s *Service) Metadata(ctx context.Context, subject, uuid string) ([]byte, error) {
	img, err := s.imageFor(ctx, subject, uuid, model.PermissionRead)
	if err != nil {
		return nil, err
	}

	return s.readRaw(ctx, MetadataKey(img))
}

// Dimensions 返回 OME-XML 中该图像的像素维度与通道，以及注册表中的金字塔信息.
func (s *Service) Dimensions(ctx context.Context, subject, uuid string) (*types.Dimensions, error) {
	img, err := s.imageFor(ctx, subject, uuid, model.PermissionRead)
	if err != nil {
		return nil, err
	}

	return s.dimensions(ctx, img)
}

func (s *Service) dimensions(ctx context.Context, img *model.Image) (*types.Dimensions, error) {
	data, err := s.readRaw(ctx, MetadataKey(img))
	if err != nil {
		return nil, err
	}

	px, err := findPixels(data, img.UUID)
	if err != nil {
		return nil, err
	}

	dims := &types.Dimensions{
		SizeX:    px.SizeX,
		SizeY:    px.SizeY,
		SizeZ:    px.SizeZ,
		SizeC:    px.SizeC,
		SizeT:    px.SizeT,
		Type:     px.Type,
		Channels: make([]types.OMEChannel, 0, len(px.Channels)),
		Pyramid:  types.PyramidLevels{Levels: img.PyramidLevels, TileSize: img.TileSize},
	}

	for _, ch := range px.Channels {
		dims.Channels = append(dims.Channels, types.OMEChannel(ch))
	}

	return dims, nil
}

// findPixels 查找 ID 为 Image:{uuid} 的 Pixels 元素，文档只含一个图像时直接使用它.
func findPixels(data []byte, uuid string) (*omePixels, error) {
	var doc omeDocument
	if err := xml.NewDecoder(bytes.NewReader(data)).Decode(&doc); err != nil {
		return nil, apperr.Wrap(apperr.KindInternal, err, "parse ome-xml")
	}

	want := fmt.Sprintf("Image:%s", uuid)
	for i := range doc.Images {
		if doc.Images[i].ID == want {
			return &doc.Images[i].Pixels, nil
		}
	}

	if len(doc.Images) == 1 {
		return &doc.Images[0].Pixels, nil
	}

	return nil, apperr.NotFound("image %s not described in metadata", uuid)
}
