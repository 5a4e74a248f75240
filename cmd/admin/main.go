package main

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"flag"
	"fmt"
	"log"
	"strings"
	"time"

	"gorm.io/gorm"

	"vectorAdmin/internal/auth"
	"vectorAdmin/internal/config"
	"vectorAdmin/internal/database"
)

func main() {
	var (
		seed      = flag.Bool("seed", false, "写入演示种子数据（已有数据的表会跳过）")
		username  = flag.String("username", "", "创建账号的用户名")
		role      = flag.String("role", string(auth.RoleAdmin), "创建账号的角色：admin/editor/viewer")
		email     = flag.String("email", "", "创建账号的邮箱（可选）")
		resetUser = flag.String("reset-password", "", "为指定用户名重置随机密码")
		dbDriver  = flag.String("db-driver", "", "数据库驱动 postgres/sqlite（可选，默认读 DATABASE_DRIVER）")
		sqlite    = flag.String("sqlite-path", "", "SQLite 文件路径（可选，默认读 DATABASE_SQLITE_PATH）")
	)
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	if d := strings.TrimSpace(*dbDriver); d != "" {
		cfg.Database.Driver = d
	}
	if p := strings.TrimSpace(*sqlite); p != "" {
		cfg.Database.SQLitePath = p
	}

	db, err := database.InitDatabase(cfg.Database)
	if err != nil {
		log.Fatalf("init database: %v", err)
	}
	ctx := database.WithActor(context.Background(), "admin-cli")

	switch {
	case *seed:
		if err := database.Seed(ctx, db); err != nil {
			log.Fatalf("seed database: %v", err)
		}
		fmt.Printf("种子数据已写入，演示账号 admin/editor/viewer 的初始密码为 %s\n", database.DefaultPassword)
	case strings.TrimSpace(*resetUser) != "":
		password, err := resetPassword(ctx, db, strings.TrimSpace(*resetUser))
		if err != nil {
			log.Fatalf("reset password: %v", err)
		}
		fmt.Printf("已重置 %s 的密码：%s\n", strings.TrimSpace(*resetUser), password)
		fmt.Printf("提示：该密码仅显示一次。\n")
	case strings.TrimSpace(*username) != "":
		r, err := auth.ParseRole(*role)
		if err != nil {
			log.Fatalf("parse role: %v", err)
		}
		password, err := createUser(ctx, db, strings.TrimSpace(*username), strings.TrimSpace(*email), r)
		if err != nil {
			log.Fatalf("create user: %v", err)
		}
		fmt.Printf("已创建账号：\n")
		fmt.Printf("用户名: %s\n", strings.TrimSpace(*username))
		fmt.Printf("角色: %s\n", r)
		fmt.Printf("初始密码: %s\n", password)
		fmt.Printf("提示：请立即登录并修改密码（该密码仅显示一次）。\n")
	default:
		flag.Usage()
		log.Fatal("one of --seed, --username or --reset-password is required")
	}
}

func createUser(ctx context.Context, db *gorm.DB, username, email string, role auth.Role) (string, error) {
	var existing database.User
	switch err := db.WithContext(ctx).Where("username = ?", username).First(&existing).Error; {
	case err == nil:
		return "", fmt.Errorf("user %q already exists", username)
	case errors.Is(err, gorm.ErrRecordNotFound):
	default:
		return "", fmt.Errorf("query user: %w", err)
	}

	password, err := generateRandomPassword(24)
	if err != nil {
		return "", err
	}
	hashed, err := auth.HashPassword(password)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	now := time.Now().UTC()
	user := database.User{
		ID:           database.NewID("u"),
		Username:     username,
		PasswordHash: hashed,
		Email:        email,
		Role:         string(role),
		Status:       database.UserActive,
		Avatar:       strings.ToUpper(username[:min(2, len(username))]),
		CreatedAt:    now,
	}
	if err := db.WithContext(ctx).Create(&user).Error; err != nil {
		return "", fmt.Errorf("insert user: %w", err)
	}
	return password, nil
}

func resetPassword(ctx context.Context, db *gorm.DB, username string) (string, error) {
	password, err := generateRandomPassword(24)
	if err != nil {
		return "", err
	}
	hashed, err := auth.HashPassword(password)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	res := db.WithContext(ctx).Model(&database.User{}).Where("username = ?", username).Update("password_hash", hashed)
	if res.Error != nil {
		return "", fmt.Errorf("update user: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return "", fmt.Errorf("user %q not found", username)
	}
	return password, nil
}

func generateRandomPassword(bytesLen int) (string, error) {
	if bytesLen <= 0 {
		bytesLen = 24
	}
	buf := make([]byte, bytesLen)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("read random bytes: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}
