package database

import (
	"context"
	"fmt"
	"reflect"

	"gorm.io/gorm"
)

type actorContextKey struct{}

// WithActor 将操作人用户名写入 context，供 GORM 回调填充 CreatedBy/UpdatedBy。
func WithActor(ctx context.Context, username string) context.Context {
	if username == "" {
		return ctx
	}
	return context.WithValue(ctx, actorContextKey{}, username)
}

// WithoutActor 屏蔽操作人，之后的更新不会改写 UpdatedBy。
func WithoutActor(ctx context.Context) context.Context {
	return context.WithValue(ctx, actorContextKey{}, "")
}

// ActorFromContext 读取操作人，未设置时返回空串。
func ActorFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	actor, _ := ctx.Value(actorContextKey{}).(string)
	return actor
}

// RegisterAuditCallbacks 在 Create/Update 前自动填充审计字段。
func RegisterAuditCallbacks(db *gorm.DB) error {
	err := db.Callback().Create().Before("gorm:create").Register("audit:create", func(tx *gorm.DB) {
		actor := ActorFromContext(tx.Statement.Context)
		if actor == "" {
			return
		}
		fillIfZero(tx, "CreatedBy", actor)
		fillIfZero(tx, "UpdatedBy", actor)
	})
	if err != nil {
		return fmt.Errorf("register audit create callback: %w", err)
	}

	err = db.Callback().Update().Before("gorm:update").Register("audit:update", func(tx *gorm.DB) {
		actor := ActorFromContext(tx.Statement.Context)
		if actor == "" || tx.Statement.Schema == nil {
			return
		}
		if tx.Statement.Schema.LookUpField("UpdatedBy") == nil {
			return
		}
		// SetColumn 同时兼容 Save(struct) 与 Updates(map)
		tx.Statement.SetColumn("UpdatedBy", actor, true)
	})
	if err != nil {
		return fmt.Errorf("register audit update callback: %w", err)
	}
	return nil
}

func fillIfZero(tx *gorm.DB, fieldName, value string) {
	if tx.Statement.Schema == nil {
		return
	}
	field := tx.Statement.Schema.LookUpField(fieldName)
	if field == nil {
		return
	}

	ctx := tx.Statement.Context
	switch tx.Statement.ReflectValue.Kind() {
	case reflect.Struct:
		if _, isZero := field.ValueOf(ctx, tx.Statement.ReflectValue); isZero {
			_ = field.Set(ctx, tx.Statement.ReflectValue, value)
		}
	case reflect.Slice, reflect.Array:
		for i := 0; i < tx.Statement.ReflectValue.Len(); i++ {
			rv := reflect.Indirect(tx.Statement.ReflectValue.Index(i))
			if _, isZero := field.ValueOf(ctx, rv); isZero {
				_ = field.Set(ctx, rv, value)
			}
		}
	}
}
