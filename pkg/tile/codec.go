package tile

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"image"
	"image/png"
	"math"
	"strings"
	"sync"

	"github.com/golang/snappy"
	"github.com/klauspost/compress/zstd"
	"golang.org/x/image/tiff"
)

// 图像格式.
const (
	FormatTIFF = "tiff"
	FormatPNG  = "png"
	// FormatRaw 无头的小端样本流，8 位或 16 位由数据长度与瓦片尺寸推断.
	FormatRaw = "raw"
)

// 压缩方式.
const (
	CompressionNone   = "none"
	CompressionZstd   = "zstd"
	CompressionSnappy = "snappy"
)

type (
	// Decoder 把原始瓦片字节解码为 Plane，size 为期望的瓦片尺寸.
	Decoder func(data []byte, size image.Point) (*Plane, error)
	// Decompressor 还原压缩后的瓦片字节.
	Decompressor func(data []byte) ([]byte, error)
)

var (
	decoders      = map[string]Decoder{}
	decompressors = map[string]Decompressor{}
	extensions    = map[string]string{}
	codecMu       sync.RWMutex
)

// RegisterDecoder 注册图像格式解码器及其对象键扩展名.
func RegisterDecoder(format, ext string, d Decoder) {
	codecMu.Lock()
	defer codecMu.Unlock()

	decoders[format] = d
	extensions[format] = ext
}

// RegisterDecompressor 注册压缩方式.
func RegisterDecompressor(name string, d Decompressor) {
	codecMu.Lock()
	defer codecMu.Unlock()

	decompressors[name] = d
}

// GetRegisteredFormats 返回已注册的图像格式.
func GetRegisteredFormats() []string {
	codecMu.RLock()
	defer codecMu.RUnlock()

	out := make([]string, 0, len(decoders))
	for k := range decoders {
		out = append(out, k)
	}

	return out
}

func normalizeFormat(format string) string {
	f := strings.ToLower(format)
	if f == "tif" || f == "ome-tiff" {
		return FormatTIFF
	}

	return f
}

// Extension 返回原始瓦片对象键的扩展名，压缩后的瓦片追加压缩后缀.
func Extension(format, compression string) string {
	codecMu.RLock()
	ext, ok := extensions[normalizeFormat(format)]
	codecMu.RUnlock()

	if !ok {
		ext = "tif"
	}

	switch strings.ToLower(compression) {
	case CompressionZstd:
		return ext + ".zst"
	case CompressionSnappy:
		return ext + ".sz"
	default:
		return ext
	}
}

// Decode 依次解压与解码原始瓦片.
func Decode(format, compression string, data []byte, size image.Point) (*Plane, error) {
	codecMu.RLock()
	dec, ok := decoders[normalizeFormat(format)]
	unz, zok := decompressors[strings.ToLower(compression)]
	codecMu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("unsupported tile format %q", format)
	}

	if compression != "" && !zok {
		return nil, fmt.Errorf("unsupported tile compression %q", compression)
	}

	if zok {
		var err error
		if data, err = unz(data); err != nil {
			return nil, fmt.Errorf("decompress tile (%s): %w", compression, err)
		}
	}

	plane, err := dec(data, size)
	if err != nil {
		return nil, err
	}

	// 边缘瓦片可能以完整尺寸存储，填充部分不属于图像.
	return plane.Crop(size), nil
}

func decodeTIFF(data []byte, _ image.Point) (*Plane, error) {
	img, err := tiff.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decode tiff: %w", err)
	}

	return PlaneFromImage(img)
}

func decodePNG(data []byte, _ image.Point) (*Plane, error) {
	img, err := png.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decode png: %w", err)
	}

	return PlaneFromImage(img)
}

func decodeRaw(data []byte, size image.Point) (*Plane, error) {
	n := size.X * size.Y
	if n <= 0 {
		return nil, fmt.Errorf("raw tile needs a known size")
	}

	switch len(data) {
	case n:
		p := NewPlane(size.X, size.Y, math.MaxUint8)
		for i, b := range data {
			p.Pix[i] = uint16(b)
		}

		return p, nil
	case 2 * n:
		p := NewPlane(size.X, size.Y, math.MaxUint16)
		for i := range p.Pix {
			p.Pix[i] = binary.LittleEndian.Uint16(data[2*i:])
		}

		return p, nil
	default:
		return nil, fmt.Errorf("raw tile has %d bytes, want %d or %d for %dx%d", len(data), n, 2*n, size.X, size.Y)
	}
}

// EncodeRaw16 把平面编码为 16 位小端样本流，供导入流水线与测试生成原始瓦片.
func EncodeRaw16(p *Plane) []byte {
	out := make([]byte, 2*len(p.Pix))
	for i, v := range p.Pix {
		binary.LittleEndian.PutUint16(out[2*i:], v)
	}

	return out
}

var (
	zstdDecoderOnce sync.Once
	zstdDecoder     *zstd.Decoder
	errZstdDecoder  error
)

func decompressZstd(data []byte) ([]byte, error) {
	zstdDecoderOnce.Do(func() {
		zstdDecoder, errZstdDecoder = zstd.NewReader(nil, zstd.WithDecoderConcurrency(0))
	})

	if errZstdDecoder != nil {
		return nil, errZstdDecoder
	}

	return zstdDecoder.DecodeAll(data, nil)
}

func decompressSnappy(data []byte) ([]byte, error) {
	return snappy.Decode(nil, data)
}

// CompressZstd 以 zstd 压缩数据.
func CompressZstd(data []byte) ([]byte, error) {
	enc, err := zstd.NewWriter(nil)
	if err != nil {
		return nil, err
	}
	defer enc.Close()

	return enc.EncodeAll(data, nil), nil
}

// CompressSnappy 以 snappy 压缩数据.
func CompressSnappy(data []byte) []byte {
	return snappy.Encode(nil, data)
}

func init() {
	RegisterDecoder(FormatTIFF, "tif", decodeTIFF)
	RegisterDecoder(FormatPNG, "png", decodePNG)
	RegisterDecoder(FormatRaw, "raw", decodeRaw)

	RegisterDecompressor(CompressionNone, func(b []byte) ([]byte, error) { return b, nil })
	RegisterDecompressor(CompressionZstd, decompressZstd)
	RegisterDecompressor(CompressionSnappy, decompressSnappy)
}
