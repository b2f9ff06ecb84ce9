package tile_test

import (
	"errors"
	"net/http"
	"testing"

	"github.com/yeisme/minerva/pkg/apperr"
	"github.com/yeisme/minerva/pkg/tile"
)

// TestParseChannelsCanonical 测试解析后再序列化得到规范形式，且规范形式可以再次解析为相同结果.
func TestParseChannelsCanonical(t *testing.T) {
	in := "1,00ff00,0.10,0.5/0,ff0000,0,1"

	chs, err := tile.ParseChannels(in)
	if err != nil {
		t.Fatalf("ParseChannels: %v", err)
	}

	want := "0,FF0000,0,1/1,00FF00,0.1,0.5"
	if got := chs.String(); got != want {
		t.Fatalf("canonical = %q, want %q", got, want)
	}

	again, err := tile.ParseChannels(chs.String())
	if err != nil {
		t.Fatalf("reparse: %v", err)
	}

	if again.String() != want {
		t.Fatalf("reparse canonical = %q", again.String())
	}

	if len(again) != 2 || again[0].Index != 0 || again[1].Index != 1 {
		t.Fatalf("unexpected channels %+v", again)
	}
}

// TestParseChannelsMinMax 测试 min > max 失败而 min == max 合法.
func TestParseChannelsMinMax(t *testing.T) {
	if _, err := tile.ParseChannels("0,FFFFFF,0.6,0.5"); err == nil {
		t.Fatal("expected error for min > max")
	} else if apperr.HTTPStatus(err) != http.StatusUnprocessableEntity {
		t.Fatalf("status = %d, want 422", apperr.HTTPStatus(err))
	}

	if _, err := tile.ParseChannels("0,FFFFFF,0.5,0.5"); err != nil {
		t.Fatalf("min == max should be accepted: %v", err)
	}
}

// TestParseChannelsMalformed 测试格式错误的分组返回 400.
func TestParseChannelsMalformed(t *testing.T) {
	bad := []string{
		"",
		"0,FFFFFF,0",
		"0,FFFFFF,0,1,2",
		"x,FFFFFF,0,1",
		"0,FFFFF,0,1",
		"0,GGGGGG,0,1",
		"0,FFFFFF,a,1",
		"0,FFFFFF,0,1//1,FFFFFF,0,1",
	}

	for _, in := range bad {
		_, err := tile.ParseChannels(in)
		if err == nil {
			t.Errorf("ParseChannels(%q) expected error", in)

			continue
		}

		if !errors.Is(err, apperr.ErrValidation) {
			t.Errorf("ParseChannels(%q) kind = %v, want validation", in, apperr.KindOf(err))
		}
	}
}

// TestParseChannelsSemantic 测试越界强度、NaN 与重复索引.
func TestParseChannelsSemantic(t *testing.T) {
	bad := []string{
		"0,FFFFFF,-0.1,1",
		"0,FFFFFF,0,1.5",
		"0,FFFFFF,NaN,1",
		"-1,FFFFFF,0,1",
		"0,FFFFFF,0,1/0,00FF00,0,1",
	}

	for _, in := range bad {
		if _, err := tile.ParseChannels(in); !errors.Is(err, apperr.ErrUnprocessable) {
			t.Errorf("ParseChannels(%q) err = %v, want unprocessable", in, err)
		}
	}
}

// TestCheckBounds 测试通道索引必须小于图像通道数.
func TestCheckBounds(t *testing.T) {
	chs, err := tile.ParseChannels("0,FFFFFF,0,1/3,FF00FF,0,1")
	if err != nil {
		t.Fatal(err)
	}

	if err := chs.CheckBounds(4); err != nil {
		t.Errorf("4 channels should be enough: %v", err)
	}

	if err := chs.CheckBounds(3); err == nil {
		t.Error("index 3 should be out of range for 3 channels")
	}

	if err := chs.CheckBounds(0); err != nil {
		t.Errorf("unknown channel count should skip the check: %v", err)
	}
}
