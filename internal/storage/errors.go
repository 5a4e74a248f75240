package storage

import (
	"errors"
	"strings"

	"github.com/minio/minio-go/v7"
)

// errorCode 取出 S3 错误码，非 minio 错误返回空串。
func errorCode(err error) string {
	var resp minio.ErrorResponse
	if errors.As(err, &resp) {
		return strings.ToLower(strings.TrimSpace(resp.Code))
	}
	return ""
}

// IsNoSuchKey 导出文件已被删除或从未上传。部分网关只返回文本，因此也匹配错误信息。
func IsNoSuchKey(err error) bool {
	if err == nil {
		return false
	}
	switch errorCode(err) {
	case "nosuchkey", "notfound":
		return true
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "nosuchkey") || strings.Contains(msg, "specified key does not exist")
}

// IsNoSuchBucket 导出 Bucket 不存在，通常是被手动删除。
func IsNoSuchBucket(err error) bool {
	return err != nil && errorCode(err) == "nosuchbucket"
}
