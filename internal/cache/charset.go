package cache

import (
	"bytes"
	"fmt"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/ianaindex"
)

// DefaultCharset 是未显式配置时使用的文本编码。
const DefaultCharset = "utf-8"

// Charset 负责文本与字节之间的转换，由调用方显式传入而非读取全局配置。
type Charset struct {
	name string
	enc  encoding.Encoding
	utf8 bool
}

// LookupCharset 按 IANA 名称（如 utf-8、iso-8859-1、shift_jis）解析编码。
func LookupCharset(name string) (Charset, error) {
	if strings.TrimSpace(name) == "" {
		name = DefaultCharset
	}
	enc, err := ianaindex.IANA.Encoding(name)
	if err != nil {
		return Charset{}, fmt.Errorf("%w: %s", ErrUnknownCharset, name)
	}
	if enc == nil {
		return Charset{}, fmt.Errorf("%w: %s is not supported", ErrUnknownCharset, name)
	}
	canonical, err := ianaindex.MIME.Name(enc)
	if err != nil {
		if canonical, err = ianaindex.IANA.Name(enc); err != nil {
			canonical = name
		}
	}
	return Charset{name: canonical, enc: enc, utf8: strings.EqualFold(canonical, "UTF-8")}, nil
}

// MustCharset 与 LookupCharset 相同，解析失败时 panic，仅用于常量名称。
func MustCharset(name string) Charset {
	cs, err := LookupCharset(name)
	if err != nil {
		panic(err)
	}
	return cs
}

func (c Charset) Name() string {
	if c.enc == nil {
		return "UTF-8"
	}
	return c.name
}

// Encode 把文本转换为字节；无法表示的字符返回 ErrEncoding。
func (c Charset) Encode(text string) ([]byte, error) {
	if c.enc == nil || c.utf8 {
		if !utf8.ValidString(text) {
			return nil, fmt.Errorf("%w: invalid UTF-8 text", ErrEncoding)
		}
		return []byte(text), nil
	}
	out, err := c.enc.NewEncoder().Bytes([]byte(text))
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrEncoding, c.name, err)
	}
	return out, nil
}

// Decode 把字节转换为文本；非法字节序列返回 ErrEncoding。
func (c Charset) Decode(data []byte) (string, error) {
	if c.enc == nil || c.utf8 {
		if !utf8.Valid(data) {
			return "", fmt.Errorf("%w: invalid UTF-8 bytes", ErrEncoding)
		}
		return string(data), nil
	}
	out, err := c.enc.NewDecoder().Bytes(data)
	if err != nil {
		return "", fmt.Errorf("%w: %s: %v", ErrEncoding, c.name, err)
	}
	// x/text 解码器把非法字节替换为 U+FFFD 且不报错，重新编码比对才能发现。
	back, err := c.enc.NewEncoder().Bytes(out)
	if err != nil || !bytes.Equal(back, data) {
		return "", fmt.Errorf("%w: %s: invalid byte sequence", ErrEncoding, c.name)
	}
	return string(out), nil
}
