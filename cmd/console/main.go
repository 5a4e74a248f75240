// Command console 是管理后台的终端客户端。默认连接进程内的 mock 服务，
// 也可以通过 -base-url 连接已部署的 API。
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"vectorAdmin/internal/config"
	"vectorAdmin/internal/console/client"
	"vectorAdmin/internal/console/session"
	"vectorAdmin/internal/console/storage"
	"vectorAdmin/internal/console/store"
	"vectorAdmin/internal/logging"
	"vectorAdmin/internal/server"
)

const usage = `usage: console [flags] <command> [args]

commands:
  login <username> <password> [captcha]   登录（-remember 记住 7 天）
  logout | me | menus [keyword]
  dashboard
  vectors list [-page N] [-status S] [-keyword K]
  vectors delete <id>... | toggle <id> on|off | rename <id> <title>
  vectors sync <id> <cron|off> | export [id...] | get <id>
  wizard -title T -db ID -tables t1,t2 -fields t1.f1,t2.f2 [-join one_to_one:f1=f1] [-background]
  search <vectorId> <query> | retrieval <query> | clean <text>
  tasks | notifications [read|clear]
  users [list|add|role|password|status|delete] ... | roles [list|add|perms|delete] ...
  kbconfig [key=value ...]
  logs [list|show|delete|retention] ... | ips [list|add|allow|block|delete] ...
  theme [light|dark|system] [-color C] [-font N]
  shell                                   交互模式，后台任务进度在本地推进
`

func main() {
	os.Exit(runMain())
}

func runMain() int {
	var (
		baseURL  = flag.String("base-url", "", "API 地址，非空时不使用 mock 服务")
		mock     = flag.Bool("mock", true, "在进程内启动 mock 服务")
		state    = flag.String("state", "", "本地会话文件，默认 console.state_file")
		remember = flag.Bool("remember", false, "login 时记住登录 7 天")
		verbose  = flag.Bool("v", false, "输出调试日志")
	)
	flag.Usage = func() { fmt.Fprint(flag.CommandLine.Output(), usage) }
	flag.Parse()
	if flag.NArg() == 0 {
		flag.Usage()
		return 2
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		return 1
	}
	// 控制台默认只输出警告，避免服务端日志混入命令输出
	cfg.Log.Level = "warn"
	if *verbose {
		cfg.Log.Level = "debug"
	}
	logger := logging.New(cfg.Log)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, closeApp, err := build(ctx, cfg, options{
		baseURL:  *baseURL,
		mock:     *mock && *baseURL == "",
		state:    *state,
		remember: *remember,
	}, logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "console: %v\n", err)
		return 1
	}
	defer closeApp()

	if err := a.run(ctx, flag.Args()); err != nil {
		fmt.Fprintf(os.Stderr, "console: %v\n", err)
		if errors.Is(err, client.ErrUnauthorized) {
			return 3
		}
		return 1
	}
	return 0
}

type options struct {
	baseURL  string
	mock     bool
	state    string
	remember bool
}

// build 装配客户端、会话与全局状态。mock 模式下每次运行都是一个全新的服务，
// 此时会话不落盘。
func build(ctx context.Context, cfg *config.Config, opts options, logger *slog.Logger) (*app, func(), error) {
	var (
		st      storage.Storage
		closers []func()
	)
	clientOpts := client.Options{Timeout: cfg.Console.Timeout}

	if opts.mock {
		mockCfg := server.MockConfig(cfg)
		srv, err := server.New(ctx, mockCfg, logger)
		if err != nil {
			return nil, nil, fmt.Errorf("start mock server: %w", err)
		}
		if err := srv.Start(ctx); err != nil {
			_ = srv.Close()
			return nil, nil, fmt.Errorf("start mock jobs: %w", err)
		}
		closers = append(closers, func() { _ = srv.Close() })
		clientOpts.Handler = srv.Router
		st = storage.NewMemory()
	} else {
		clientOpts.BaseURL = cfg.Console.BaseURL
		if opts.baseURL != "" {
			clientOpts.BaseURL = opts.baseURL
		}
		path := opts.state
		if path == "" {
			path = cfg.Console.StateFile
		}
		if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
			return nil, nil, fmt.Errorf("create state dir: %w", err)
		}
		file, err := storage.OpenFile(path)
		if err != nil {
			return nil, nil, fmt.Errorf("open state file: %w", err)
		}
		st = file
	}
	clientOpts.Storage = st

	c := client.New(clientOpts)
	s := store.New(store.LoadSettings(st, store.InitialState()))
	s.Subscribe(store.PersistSettings(st))
	applier := newTerminalTheme(os.Stdout)
	store.ApplyAll(applier, osPrefersDark, s.State())
	s.Subscribe(store.ApplyTheme(applier, osPrefersDark))

	a := &app{
		cfg:      cfg,
		mock:     opts.mock,
		remember: opts.remember,
		client:   c,
		store:    s,
		theme:    applier,
		logger:   logger,
		out:      os.Stdout,
		in:       os.Stdin,
	}
	a.session = session.New(c, s,
		session.WithLogger(logger),
		session.WithStateHook(func(from, to session.State) {
			if from == session.Authenticated && to == session.Expired {
				fmt.Fprintln(a.out, "登录已过期，请重新登录")
			}
		}),
	)

	return a, func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}, nil
}

// osPrefersDark 依据 COLORFGBG 粗略判断终端背景。
func osPrefersDark() bool {
	v := os.Getenv("COLORFGBG")
	if v == "" {
		return false
	}
	parts := strings.Split(v, ";")
	switch parts[len(parts)-1] {
	case "0", "1", "2", "3", "4", "5", "6", "8":
		return true
	}
	return false
}
