package utils

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

const (
	FILE_EXT_CPG = ".cpg"

	UTF8  = "UTF8"
	UTF_8 = "UTF-8"
)

func FileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

// 同目录下的唯一临时文件名，tmpl形如"%s.%s.tmp.tif"（原文件名、uuid）
func TmpSibling(path, tmpl string) string {
	return filepath.Join(filepath.Dir(path), fmt.Sprintf(tmpl, GetFilenameWithoutExt(path), uuid.NewString()))
}

func GetFilenameWithoutExt(path string) (name string) {
	name = filepath.Base(path)
	name = strings.TrimSuffix(name, filepath.Ext(path))
	return
}

// 读取shp同名.cpg中声明的编码，缺失时返回空
func GetShpEncoding(shp string) (enc string) {
	cpg := strings.TrimSuffix(shp, filepath.Ext(shp)) + FILE_EXT_CPG
	raw, err := os.ReadFile(cpg)
	if err != nil {
		return
	}
	enc = strings.ToUpper(strings.TrimSpace(string(raw)))
	return
}

func IsUTF8(enc string) bool {
	return enc == "" || enc == UTF_8 || enc == UTF8
}
