package rule_test

import (
	"errors"
	"regexp"
	"testing"

	"github.com/yeisme/minerva/pkg/rule"
)

type createRequest struct {
	Name   string `json:"name"   rule:"required,max=8"`
	Access string `json:"access" rule:"omitempty,oneof=Private PublicRead"`
	Levels int    `form:"levels" rule:"min=1,max=32"`
	Nested struct {
		SizeX int `json:"size_x" rule:"min=1"`
	} `json:"pixels"`
}

// TestErrors 测试字段名取自标签且信息可读.
func TestErrors(t *testing.T) {
	req := createRequest{Name: "much-too-long", Access: "Everyone", Levels: 0}

	err := rule.ValidateStruct(req)
	if err == nil {
		t.Fatal("expected validation error")
	}

	got := rule.Errors(err)
	want := rule.ValidationErrors{
		"name":          "must be at most 8 characters",
		"access":        "must be one of Private, PublicRead",
		"levels":        "must be at least 1",
		"pixels.size_x": "must be at least 1",
	}

	if len(got) != len(want) {
		t.Fatalf("errors = %v", got)
	}

	for k, v := range want {
		if got[k] != v {
			t.Fatalf("%s = %q, want %q (all: %v)", k, got[k], v, got)
		}
	}

	if msg := got.Error(); msg[:len("access:")] != "access:" {
		t.Fatalf("not sorted: %s", msg)
	}
}

// TestErrorsNonValidation 测试非校验错误返回 nil.
func TestErrorsNonValidation(t *testing.T) {
	if rule.Errors(errors.New("boom")) != nil {
		t.Fatal("expected nil")
	}

	if err := rule.ValidateStruct(createRequest{Name: "ok", Levels: 3, Nested: struct {
		SizeX int `json:"size_x" rule:"min=1"`
	}{SizeX: 1}}); err != nil {
		t.Fatalf("valid request rejected: %v", err)
	}
}

// TestRegisterPattern 测试正则规则.
func TestRegisterPattern(t *testing.T) {
	if err := rule.RegisterPattern("lowerword", regexp.MustCompile(`^[a-z]+$`)); err != nil {
		t.Fatal(err)
	}

	if err := rule.ValidateVar("tiles", "lowerword"); err != nil {
		t.Fatalf("valid: %v", err)
	}

	err := rule.ValidateVar("Tiles", "lowerword")
	if err == nil {
		t.Fatal("expected mismatch")
	}

	if got := rule.Errors(err); len(got) != 1 {
		t.Fatalf("errors = %v", got)
	}

	if err := rule.ValidateVar(42, "lowerword"); err == nil {
		t.Fatal("non-string passed")
	}
}
