// Package media 负责图片上传到内容寻址存储以及网关解析
package media

import (
	"context"
	"errors"
	"io"
	"strings"
	"unicode"
)

const (
	// Scheme prefixes content references embedded in post text.
	Scheme = "ipfs://"
	// CIDv0Length base58 CIDv0 的长度（Qm 开头）
	CIDv0Length = 46
)

var (
	ErrUploadFailed = errors.New("media: upload failed")
	ErrUnavailable  = errors.New("media: no gateway serves content")
)

// Uploader stores a blob and returns its content id.
type Uploader interface {
	Upload(ctx context.Context, name string, r io.Reader) (string, error)
}

// ExtractContentAddress 返回正文中第一个 ipfs:// 引用的 CID
func ExtractContentAddress(content string) (string, bool) {
	i := strings.Index(content, Scheme)
	if i < 0 {
		return "", false
	}
	rest := content[i+len(Scheme):]
	end := strings.IndexFunc(rest, unicode.IsSpace)
	if end >= 0 {
		rest = rest[:end]
	}
	if rest == "" {
		return "", false
	}
	return rest, true
}

// SplitCaption separates the caption from a trailing content reference.
func SplitCaption(content string) (caption, cid string) {
	cid, ok := ExtractContentAddress(content)
	if !ok {
		return content, ""
	}
	caption = strings.TrimSpace(strings.Replace(content, Scheme+cid, "", 1))
	return caption, cid
}
