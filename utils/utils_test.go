package utils

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestDecodeAttr(t *testing.T) {
	gbk := string([]byte{0xc1, 0xf7, 0xd3, 0xf2}) // "流域"
	if got := DecodeAttr(gbk, GetDecoder("cp936")); got != "流域" {
		t.Fatalf("got %q", got)
	}
	if got := DecodeAttr("流域", GetDecoder("GBK")); got != "流域" {
		t.Fatalf("valid utf-8 changed: %q", got)
	}
	if got := DecodeAttr(string([]byte{0xe9}), GetDecoder("latin1")); got != "é" {
		t.Fatalf("got %q", got)
	}
	if GetDecoder("UTF-8") != nil {
		t.Fatal("utf-8 needs no decoder")
	}
}

func TestShpEncoding(t *testing.T) {
	dir := t.TempDir()
	shp := filepath.Join(dir, "hybas.shp")
	if enc := GetShpEncoding(shp); !IsUTF8(enc) {
		t.Fatalf("missing cpg: %q", enc)
	}
	if err := os.WriteFile(filepath.Join(dir, "hybas.cpg"), []byte("gbk\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if enc := GetShpEncoding(shp); enc != "GBK" || IsUTF8(enc) {
		t.Fatalf("got %q", enc)
	}
}

func TestTmpSibling(t *testing.T) {
	a := TmpSibling("/data/cache/optimized_input.tif", "%s.%s.tmp.tif")
	b := TmpSibling("/data/cache/optimized_input.tif", "%s.%s.tmp.tif")
	if a == b || filepath.Dir(a) != "/data/cache" || !strings.HasPrefix(filepath.Base(a), "optimized_input.") {
		t.Fatalf("got %s, %s", a, b)
	}
	if FileExists(a) || FileExists(t.TempDir()) {
		t.Fatal("FileExists should be false for missing files and dirs")
	}
}
