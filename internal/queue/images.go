package queue

import (
	"context"
	"path/filepath"

	coreerrors "folio-core/internal/core/errors"
	corelog "folio-core/internal/core/log"
)

// ImageConverter 把源图转成统一输出格式；具体实现由外部提供
type ImageConverter interface {
	Convert(ctx context.Context, src, dst string, quality int) error
}

// ImageConverterFunc 函数适配器
type ImageConverterFunc func(ctx context.Context, src, dst string, quality int) error

// Convert 实现 ImageConverter
func (f ImageConverterFunc) Convert(ctx context.Context, src, dst string, quality int) error {
	return f(ctx, src, dst, quality)
}

// HandleImageJob 返回 image.convert 的处理器
func HandleImageJob(conv ImageConverter, logger corelog.Logger) func(ctx context.Context, job Job[ImageJob]) error {
	logger = corelog.OrDefault(logger)
	return func(ctx context.Context, job Job[ImageJob]) error {
		if conv == nil {
			return Permanent(coreerrors.ErrNotConfigured)
		}
		p := job.Payload
		dst := filepath.Join(p.OutputPath, p.Filename)
		if err := conv.Convert(ctx, p.SourcePath, dst, p.EffectiveQuality()); err != nil {
			return coreerrors.Wrapf(err, coreerrors.CodeJobFailed, "convert %s", p.SourcePath)
		}
		logger.WithFields(map[string]interface{}{
			"id":   job.ID,
			"type": p.Type,
			"dst":  dst,
		}).Info("queue: image converted")
		return nil
	}
}
