package utils

import (
	"strings"
	"unicode/utf8"
	"unsafe"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/simplifiedchinese"
)

func S2B(s string) []byte {
	return unsafe.Slice(unsafe.StringData(s), len(s))
}

// 按.cpg声明的编码获取解码器，未知编码返回nil
func GetDecoder(enc string) *encoding.Decoder {
	switch strings.ToUpper(enc) {
	case "GBK", "936", "CP936":
		return simplifiedchinese.GBK.NewDecoder()
	case "GB18030":
		return simplifiedchinese.GB18030.NewDecoder()
	case "LATIN1", "ISO-8859-1", "ISO88591", "8859_1":
		return charmap.ISO8859_1.NewDecoder()
	case "1252", "CP1252", "WINDOWS-1252":
		return charmap.Windows1252.NewDecoder()
	}
	return nil
}

// 将属性字符串转为UTF-8，已是合法UTF-8或无解码器时原样返回
func DecodeAttr(s string, dec *encoding.Decoder) string {
	if dec == nil || utf8.ValidString(s) {
		return s
	}
	out, err := dec.String(s)
	if err != nil {
		return s
	}
	return out
}
