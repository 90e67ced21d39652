package subscribers

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	coreerrors "folio-core/internal/core/errors"
)

// FileRemover 删除不再引用的媒体文件
type FileRemover interface {
	Remove(ctx context.Context, path string) error
}

// LocalRemover 只允许删除 Root 之下的文件，已不存在视为成功
type LocalRemover struct {
	Root string
}

// Remove 实现 FileRemover
func (r LocalRemover) Remove(ctx context.Context, p string) error {
	if r.Root == "" {
		return coreerrors.ErrNotConfigured
	}
	root, err := filepath.Abs(r.Root)
	if err != nil {
		return err
	}
	target := filepath.Join(root, filepath.FromSlash(strings.TrimPrefix(p, "/")))
	rel, err := filepath.Rel(root, target)
	if err != nil || rel == "." || strings.HasPrefix(rel, "..") {
		return coreerrors.Newf(coreerrors.CodeInvalidParam, "path %q escapes media root", p)
	}
	if err := os.Remove(target); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}
