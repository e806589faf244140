package modules

import (
	"context"
	"fmt"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/shaiso/Conveyor/internal/module"
	"github.com/shaiso/Conveyor/internal/runctx"
)

// ModuleS3 — имя s3 модуля.
const ModuleS3 = "s3"

// S3Module — модуль объектного хранилища (S3-совместимого).
//
// Учётные данные берутся из параметров шага, при отсутствии — из
// окружения запуска (S3_ENDPOINT, S3_ACCESS_KEY, S3_SECRET_KEY).
//
// Параметры:
//
//	op:         upload | download (обязательный)
//	bucket:     имя бакета (обязательный)
//	key:        ключ объекта (обязательный)
//	path:       локальный путь внутри рабочей директории (обязательный)
//	endpoint:   адрес хранилища
//	access_key: ключ доступа
//	secret_key: секретный ключ
//	use_ssl:    использовать TLS (по умолчанию true)
//
// Результат upload: {"bucket": ..., "key": ..., "size": n},
// download: {"bucket": ..., "key": ..., "path": ...}.
type S3Module struct{}

// NewS3Module создаёт новый S3Module.
func NewS3Module() *S3Module {
	return &S3Module{}
}

// Name возвращает имя модуля.
func (m *S3Module) Name() string {
	return ModuleS3
}

// Run выполняет операцию с объектным хранилищем.
func (m *S3Module) Run(ctx context.Context, rc *runctx.RunContext, params map[string]any) (any, error) {
	op := ParamString(params, "op")
	bucket := ParamString(params, "bucket")
	key := ParamString(params, "key")
	path := ParamString(params, "path")
	if op == "" || bucket == "" || key == "" || path == "" {
		return nil, fmt.Errorf("%w: %s: op, bucket, key and path are required", module.ErrInvalidParams, ModuleS3)
	}

	abs, err := resolveInWorkDir(rc.WorkDir, path)
	if err != nil {
		return nil, err
	}

	client, err := m.buildClient(rc, params)
	if err != nil {
		return nil, err
	}

	switch op {
	case "upload":
		rc.Logf("s3: upload %s to %s/%s", path, bucket, key)
		info, err := client.FPutObject(ctx, bucket, key, abs, minio.PutObjectOptions{})
		if err != nil {
			if ctx.Err() == context.Canceled {
				return nil, fmt.Errorf("%w: %v", module.ErrCancelled, ctx.Err())
			}
			return nil, fmt.Errorf("upload %s/%s: %w", bucket, key, err)
		}
		return map[string]any{
			"bucket": bucket,
			"key":    key,
			"size":   info.Size,
		}, nil

	case "download":
		rc.Logf("s3: download %s/%s to %s", bucket, key, path)
		if err := client.FGetObject(ctx, bucket, key, abs, minio.GetObjectOptions{}); err != nil {
			if ctx.Err() == context.Canceled {
				return nil, fmt.Errorf("%w: %v", module.ErrCancelled, ctx.Err())
			}
			return nil, fmt.Errorf("download %s/%s: %w", bucket, key, err)
		}
		return map[string]any{
			"bucket": bucket,
			"key":    key,
			"path":   path,
		}, nil

	default:
		return nil, fmt.Errorf("%w: %s: unknown op %q", module.ErrInvalidParams, ModuleS3, op)
	}
}

// buildClient создаёт клиент хранилища из параметров или окружения.
func (m *S3Module) buildClient(rc *runctx.RunContext, params map[string]any) (*minio.Client, error) {
	endpoint := paramOrEnv(rc, params, "endpoint", "S3_ENDPOINT")
	accessKey := paramOrEnv(rc, params, "access_key", "S3_ACCESS_KEY")
	secretKey := paramOrEnv(rc, params, "secret_key", "S3_SECRET_KEY")
	if endpoint == "" || accessKey == "" || secretKey == "" {
		return nil, fmt.Errorf("%w: %s: endpoint, access_key and secret_key are required", module.ErrInvalidParams, ModuleS3)
	}

	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(accessKey, secretKey, ""),
		Secure: ParamBool(params, "use_ssl", true),
	})
	if err != nil {
		return nil, fmt.Errorf("s3 client: %w", err)
	}
	return client, nil
}

// paramOrEnv берёт значение из параметров шага, иначе из окружения
// запуска.
func paramOrEnv(rc *runctx.RunContext, params map[string]any, key, envKey string) string {
	if v := ParamString(params, key); v != "" {
		return v
	}
	return rc.Env[envKey]
}
