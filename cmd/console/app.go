package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
	"text/tabwriter"

	"vectorAdmin/internal/config"
	"vectorAdmin/internal/console"
	"vectorAdmin/internal/console/client"
	"vectorAdmin/internal/console/routes"
	"vectorAdmin/internal/console/session"
	"vectorAdmin/internal/console/store"
	"vectorAdmin/internal/database"
	"vectorAdmin/internal/progress"
)

// mockUser mock 模式下未显式登录时自动使用的账号。
const mockUser = "admin"

var errUsage = errors.New("invalid arguments, run with -h for usage")

type app struct {
	cfg      *config.Config
	mock     bool
	remember bool

	client  *client.Client
	session *session.Session
	store   *store.Store
	theme   *terminalTheme
	logger  *slog.Logger

	out       io.Writer
	in        io.Reader
	reader    *bufio.Reader
	once      sync.Once
	challenge func() console.Challenge
}

type handler func(ctx context.Context, args []string) error

type command struct {
	// page 为空表示无需登录。
	page string
	run  handler
}

func (a *app) commands() map[string]command {
	return map[string]command{
		"login":         {run: a.login},
		"logout":        {page: routes.PathDashboard, run: a.logout},
		"me":            {page: "/profile", run: a.me},
		"menus":         {page: routes.PathDashboard, run: a.menus},
		"dashboard":     {page: routes.PathDashboard, run: a.dashboard},
		"vectors":       {page: "/vector", run: a.vectors},
		"wizard":        {page: "/vector", run: a.wizard},
		"search":        {page: "/vector-search", run: a.search},
		"retrieval":     {page: "/kb/retrieval", run: a.retrieval},
		"kbconfig":      {page: "/kb/config", run: a.kbConfig},
		"clean":         {page: "/tools/llm-clean", run: a.clean},
		"tasks":         {page: routes.PathDashboard, run: a.tasks},
		"notifications": {page: routes.PathDashboard, run: a.notifications},
		"users":         {page: "/settings/users", run: a.users},
		"roles":         {page: "/settings/roles", run: a.roles},
		"logs":          {page: "/settings/logs", run: a.logs},
		"ips":           {page: "/settings/security", run: a.ips},
		"theme":         {run: a.setTheme},
		"shell":         {run: a.shell},
	}
}

// run 执行一条命令。需要登录的命令先经过路由守卫，与页面跳转规则一致。
func (a *app) run(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return errUsage
	}
	cmd, ok := a.commands()[args[0]]
	if !ok {
		return fmt.Errorf("unknown command %q", args[0])
	}
	if cmd.page != "" {
		if err := a.ensureSession(ctx); err != nil {
			return err
		}
		decision := routes.Resolve(cmd.page, a.store.State().User)
		switch decision.Redirect {
		case "":
		case routes.PathLogin:
			return fmt.Errorf("%w: please login first", client.ErrUnauthorized)
		case routes.PathForbidden:
			return fmt.Errorf("当前角色无权访问 %s", decision.Route.Title)
		default:
			return fmt.Errorf("page %s redirected to %s", cmd.page, decision.Redirect)
		}
	}
	return cmd.run(ctx, args[1:])
}

// ensureSession 依次尝试已有登录态、本地保存的会话，mock 模式下最后自动登录。
func (a *app) ensureSession(ctx context.Context) error {
	if a.session.State() == session.Authenticated {
		return nil
	}
	if state, err := a.session.Restore(ctx); err == nil && state == session.Authenticated {
		return nil
	}
	if !a.mock {
		return fmt.Errorf("%w: please login first", client.ErrUnauthorized)
	}
	_, err := a.session.Login(ctx, mockUser, database.DefaultPassword, "", false)
	return err
}

func (a *app) newChallenge() console.Challenge {
	if a.challenge != nil {
		return a.challenge()
	}
	return console.NewChallenge(nil)
}

func (a *app) readLine(prompt string) (string, error) {
	a.once.Do(func() { a.reader = bufio.NewReader(a.in) })
	fmt.Fprint(a.out, prompt)
	line, err := a.reader.ReadString('\n')
	if err != nil && (line == "" || !errors.Is(err, io.EOF)) {
		return "", err
	}
	return strings.TrimSpace(line), nil
}

// readAll 读取剩余的全部输入。
func (a *app) readAll() (string, error) {
	a.once.Do(func() { a.reader = bufio.NewReader(a.in) })
	raw, err := io.ReadAll(a.reader)
	if err != nil {
		return "", err
	}
	return strings.TrimRight(string(raw), "\n"), nil
}

func (a *app) table(header ...string) *tabwriter.Writer {
	w := tabwriter.NewWriter(a.out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, strings.Join(header, "\t"))
	return w
}

// shell 交互模式。登录后把服务端进行中的任务载入本地状态，
// 由本地推进器模拟进度，完成时打印通知。
func (a *app) shell(ctx context.Context, _ []string) error {
	if err := a.ensureSession(ctx); err != nil && !errors.Is(err, client.ErrUnauthorized) {
		return err
	}
	if a.session.State() == session.Authenticated {
		if err := a.loadTasks(ctx); err != nil {
			a.logger.Warn("load tasks failed", slog.Any("error", err))
		}
	}

	unsubscribe := a.store.Subscribe(func(prev, next store.AppState, _ store.Action) {
		if len(next.Notifications) > len(prev.Notifications) {
			note := next.Notifications[0]
			fmt.Fprintf(a.out, "\n[%s] %s: %s\n", note.Type, note.Title, note.Message)
		}
	})
	defer unsubscribe()

	tickerCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	ticker := progress.New(
		progress.NewAppStore(a.store),
		a.cfg.Worker.TickerInterval,
		progress.WithStep(progress.RandomStep(a.cfg.Worker.MinStep, a.cfg.Worker.MaxStep)),
		progress.WithLogger(a.logger),
	)
	go ticker.Run(tickerCtx)

	for {
		unread := a.store.State().UnreadCount()
		line, err := a.readLine(a.theme.accent(fmt.Sprintf("vector-admin (%d unread)>", unread)) + " ")
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return err
		}
		if ctx.Err() != nil {
			return nil
		}
		fields := strings.Fields(line)
		if len(fields) == 0 {
			continue
		}
		switch fields[0] {
		case "exit", "quit":
			return nil
		case "shell":
			continue
		case "help":
			fmt.Fprint(a.out, usage)
			continue
		}
		if err := a.run(ctx, fields); err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
		}
	}
}

// loadTasks 把服务端的任务放入本地状态。
func (a *app) loadTasks(ctx context.Context) error {
	var list []database.BackgroundTask
	if _, err := a.client.Get(ctx, "/tasks", nil, &list); err != nil {
		return err
	}
	known := map[string]bool{}
	for _, t := range a.store.State().Tasks {
		known[t.ID] = true
	}
	for i := len(list) - 1; i >= 0; i-- {
		t := list[i]
		if known[t.ID] {
			continue
		}
		a.store.Dispatch(store.AddTask{Task: store.Task{
			ID: t.ID, Name: t.Name, Status: t.Status, Progress: t.Progress, StartTime: t.StartTime,
		}})
	}
	return nil
}
