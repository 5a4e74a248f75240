package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"time"

	"vectorAdmin/internal/console"
	"vectorAdmin/internal/console/client"
	"vectorAdmin/internal/console/routes"
	"vectorAdmin/internal/console/session"
	"vectorAdmin/internal/console/store"
	"vectorAdmin/internal/console/wizard"
	"vectorAdmin/internal/database"
	"vectorAdmin/internal/search"
	"vectorAdmin/internal/vector"
)

func (a *app) login(ctx context.Context, args []string) error {
	if len(args) < 2 {
		return errUsage
	}
	captcha := ""
	if len(args) > 2 {
		captcha = args[2]
	} else if a.cfg.Auth.CaptchaRequired && !a.mock {
		c, err := a.session.Captcha(ctx)
		if err != nil {
			return err
		}
		path := filepath.Join(os.TempDir(), "vector-admin-captcha.svg")
		if err := os.WriteFile(path, []byte(c.Image), 0o600); err != nil {
			return fmt.Errorf("save captcha: %w", err)
		}
		if captcha, err = a.readLine(fmt.Sprintf("验证码已保存到 %s，请输入: ", path)); err != nil {
			return err
		}
	}
	if _, err := a.session.Login(ctx, args[0], args[1], captcha, a.remember); err != nil {
		return err
	}
	if err := a.session.Refresh(ctx); err != nil {
		return err
	}
	user := a.store.State().User
	fmt.Fprintf(a.out, "已登录: %s (%s)\n", user.Username, user.Role)
	return nil
}

func (a *app) logout(ctx context.Context, _ []string) error {
	a.session.Logout(ctx)
	fmt.Fprintln(a.out, "已退出登录")
	return nil
}

func (a *app) me(ctx context.Context, _ []string) error {
	if err := a.session.Refresh(ctx); err != nil {
		return err
	}
	u := a.store.State().User
	fmt.Fprintf(a.out, "ID: %s\n用户名: %s\n邮箱: %s\n角色: %s\n状态: %s\n", u.ID, u.Username, u.Email, u.Role, u.Status)
	if u.LastLogin != nil {
		fmt.Fprintf(a.out, "上次登录: %s\n", u.LastLogin.Local().Format(time.DateTime))
	}
	return nil
}

// menus 无参数时打印侧边栏菜单，有参数时做全局菜单搜索。
func (a *app) menus(ctx context.Context, args []string) error {
	if len(args) > 0 {
		for _, entry := range routes.SearchMenus(strings.Join(args, " ")) {
			mark := ""
			if !routes.Resolve(entry.Path, a.store.State().User).Allowed() {
				mark = " (无权限)"
			}
			fmt.Fprintf(a.out, "%s\t%s%s\n", entry.Title, entry.Path, mark)
		}
		return nil
	}
	if len(a.session.Menus()) == 0 {
		if err := a.session.Refresh(ctx); err != nil {
			return err
		}
	}
	var walk func(items []session.Menu, depth int)
	walk = func(items []session.Menu, depth int) {
		for _, m := range items {
			fmt.Fprintf(a.out, "%s%s  %s\n", strings.Repeat("  ", depth), m.Name, m.Path)
			walk(m.Children, depth+1)
		}
	}
	walk(a.session.Menus(), 0)
	return nil
}

func (a *app) dashboard(ctx context.Context, _ []string) error {
	var stats struct {
		TotalVectors int64 `json:"totalVectors"`
		DailyQueries int64 `json:"dailyQueries"`
		ActiveNodes  int   `json:"activeNodes"`
		Errors       int64 `json:"errors"`
		Trend        []struct {
			Date  string `json:"date"`
			Count int64  `json:"count"`
		} `json:"trend"`
	}
	if _, err := a.client.Get(ctx, "/dashboard/stats", nil, &stats); err != nil {
		return err
	}
	fmt.Fprintf(a.out, "向量集: %d  今日请求: %d  活跃节点: %d  异常: %d\n",
		stats.TotalVectors, stats.DailyQueries, stats.ActiveNodes, stats.Errors)
	for _, p := range stats.Trend {
		fmt.Fprintf(a.out, "  %s %s %d\n", p.Date, strings.Repeat("#", int(min(p.Count/10, 60))), p.Count)
	}
	return nil
}

type vectorPage struct {
	List  []database.VectorItem `json:"list"`
	Total int64                 `json:"total"`
}

func (a *app) vectors(ctx context.Context, args []string) error {
	if len(args) == 0 {
		args = []string{"list"}
	}
	switch args[0] {
	case "list":
		return a.listVectors(ctx, args[1:])
	case "get":
		if len(args) != 2 {
			return errUsage
		}
		var item database.VectorItem
		if _, err := a.client.Get(ctx, "/vectors/"+args[1], nil, &item); err != nil {
			return err
		}
		idx := item.IndexConfig.Data()
		fmt.Fprintf(a.out, "%s  %s\n来源: %s\n状态: %s  启用: %t\n字段: %s\n索引: %s/%s\n",
			item.ID, item.Title, item.Source, item.Status, item.IsEnabled,
			vector.FieldNames(item.SelectedFields), idx.IndexType, idx.Metric)
		if join := item.JoinRules.Data(); join != nil {
			fmt.Fprintf(a.out, "关联: %s %s -> %s (%d 个条件)\n", join.Type, join.LeftTableID, join.RightTableID, len(join.Conditions))
		}
		if cron := item.CronConfig.Data(); cron.Enabled {
			fmt.Fprintf(a.out, "定时同步: %s\n", cron.Expression)
		}
		return nil
	case "delete":
		return a.deleteVectors(ctx, args[1:])
	case "toggle":
		if len(args) != 3 || (args[2] != "on" && args[2] != "off") {
			return errUsage
		}
		env, err := a.client.Put(ctx, "/vectors/"+args[1]+"/status", map[string]bool{"isEnabled": args[2] == "on"}, nil)
		if err != nil {
			return err
		}
		fmt.Fprintln(a.out, messageOr(env, "状态已更新"))
		return nil
	case "rename":
		if len(args) != 3 {
			return errUsage
		}
		if err := vector.ValidateTitle(args[2]); err != nil {
			return err
		}
		env, err := a.client.Put(ctx, "/vectors/"+args[1], map[string]string{"title": args[2]}, nil)
		if err != nil {
			return err
		}
		fmt.Fprintln(a.out, messageOr(env, "标题已更新"))
		return nil
	case "sync":
		if len(args) != 3 {
			return errUsage
		}
		cfg := vector.CronConfig{Enabled: args[2] != "off"}
		if cfg.Enabled {
			cfg.Expression = args[2]
			if err := cfg.Validate(); err != nil {
				return err
			}
		}
		env, err := a.client.Post(ctx, "/vectors/"+args[1]+"/sync-config", cfg, nil)
		if err != nil {
			return err
		}
		fmt.Fprintln(a.out, messageOr(env, "同步配置已保存"))
		return nil
	case "export":
		return a.exportVectors(ctx, args[1:])
	}
	return errUsage
}

func (a *app) listVectors(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("vectors list", flag.ContinueOnError)
	page := fs.Int("page", 1, "页码")
	size := fs.Int("size", 10, "每页条数")
	status := fs.String("status", "", "indexed/pending/error")
	keyword := fs.String("keyword", "", "标题关键字")
	if err := fs.Parse(args); err != nil {
		return err
	}
	params := client.Params{"page": strconv.Itoa(*page), "pageSize": strconv.Itoa(*size)}
	if *status != "" {
		params["status"] = *status
	}
	if *keyword != "" {
		params["keyword"] = *keyword
	}
	var res vectorPage
	if _, err := a.client.Get(ctx, "/vectors", params, &res); err != nil {
		return err
	}
	w := a.table("ID", "TITLE", "SOURCE", "STATUS", "ENABLED", "FIELDS")
	for _, v := range res.List {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%t\t%s\n", v.ID, v.Title, v.Source, v.Status, v.IsEnabled, vector.FieldNames(v.SelectedFields))
	}
	if err := w.Flush(); err != nil {
		return err
	}
	fmt.Fprintf(a.out, "共 %d 条，第 %d 页\n", res.Total, *page)
	return nil
}

// deleteVectors 删除前要求输入随机确认码；多个 ID 走批量删除。
func (a *app) deleteVectors(ctx context.Context, ids []string) error {
	ids = uniqueIDs(ids)
	if len(ids) == 0 {
		return errUsage
	}
	challenge := a.newChallenge()
	input, err := a.readLine(fmt.Sprintf("即将删除 %d 个向量集，请输入确认码 %s: ", len(ids), challenge.Code()))
	if err != nil {
		return err
	}
	if err := challenge.Verify(input); err != nil {
		return err
	}

	if len(ids) == 1 {
		env, err := a.client.Delete(ctx, "/vectors/"+ids[0], nil, nil)
		if err != nil {
			return err
		}
		fmt.Fprintln(a.out, messageOr(env, "已删除"))
		return nil
	}

	items, err := a.allVectors(ctx)
	if err != nil {
		return err
	}
	sel := console.NewSelection(items, func(v database.VectorItem) string { return v.ID })
	for _, id := range ids {
		sel.Toggle(id)
	}
	if len(sel.Selected) != len(ids) {
		var missing []string
		for _, id := range ids {
			if !slices.Contains(sel.Selected, id) {
				missing = append(missing, id)
			}
		}
		return fmt.Errorf("vectors not found: %s", strings.Join(missing, ", "))
	}
	err = sel.DeleteSelected(ctx, func(ctx context.Context, ids []string) error {
		_, err := a.client.Delete(ctx, "/vectors", map[string][]string{"ids": ids}, nil)
		return err
	})
	if err != nil {
		return err
	}
	fmt.Fprintf(a.out, "已删除 %d 个向量集，剩余 %d 个\n", len(ids), len(sel.Items))
	return nil
}

// vectorScanPageSize 是逐页读取全部向量集时的页大小，不超过服务端上限。
var vectorScanPageSize = 100

// allVectors 逐页读取全部向量集。
func (a *app) allVectors(ctx context.Context) ([]database.VectorItem, error) {
	var all []database.VectorItem
	for page := 1; ; page++ {
		var res vectorPage
		params := client.Params{"page": strconv.Itoa(page), "pageSize": strconv.Itoa(vectorScanPageSize)}
		if _, err := a.client.Get(ctx, "/vectors", params, &res); err != nil {
			return nil, err
		}
		all = append(all, res.List...)
		if len(res.List) == 0 || int64(len(all)) >= res.Total {
			return all, nil
		}
	}
}

func uniqueIDs(ids []string) []string {
	seen := make(map[string]bool, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}

// exportFileName 只取服务端文件名的最后一段，导出文件总是写在当前目录。
func exportFileName(name string) string {
	name = filepath.Base(strings.ReplaceAll(name, `\`, "/"))
	if name == "/" || strings.HasPrefix(name, ".") {
		return "vectors.csv"
	}
	return name
}

func (a *app) exportVectors(ctx context.Context, ids []string) error {
	params := client.Params{}
	if len(ids) > 0 {
		params["ids"] = strings.Join(ids, ",")
	}
	file, err := a.client.Download(ctx, "/vectors/export", params)
	if err != nil {
		return err
	}
	if file.Link != "" {
		fmt.Fprintf(a.out, "导出文件已上传: %s\n", file.Link)
		return nil
	}
	name := exportFileName(file.Name)
	if err := os.WriteFile(name, file.Data, 0o644); err != nil {
		return fmt.Errorf("write export: %w", err)
	}
	fmt.Fprintf(a.out, "已导出到 %s (%d bytes)\n", name, len(file.Data))
	return nil
}

// wizard 以参数驱动新建向导的各个步骤。
func (a *app) wizard(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("wizard", flag.ContinueOnError)
	title := fs.String("title", "", "向量集名称")
	db := fs.String("db", "", "数据源 ID")
	tables := fs.String("tables", "", "表 ID，逗号分隔")
	fields := fs.String("fields", "", "table.field，逗号分隔；为空时选中全部字段")
	join := fs.String("join", "", "type:left=right,left=right，多表时必填")
	index := fs.String("index", "", "索引类型 hnsw/ivf_flat/flat")
	background := fs.Bool("background", false, "开始后转入后台")
	if err := fs.Parse(args); err != nil {
		return err
	}
	tableIDs := splitCSV(*tables)
	if *title == "" || *db == "" || len(tableIDs) == 0 {
		return errUsage
	}

	w := wizard.New(wizard.NewClientAPI(a.client), wizard.WithStore(a.store), wizard.WithLogger(a.logger))
	defer w.Close()

	if err := w.SetTitle(*title); err != nil {
		return err
	}
	if err := w.Next(ctx); err != nil {
		return err
	}
	if err := w.SelectDatabase(ctx, *db); err != nil {
		return err
	}
	for _, id := range tableIDs {
		if err := w.ToggleTable(ctx, id); err != nil {
			return err
		}
	}
	if err := w.Next(ctx); err != nil {
		return err
	}
	if picked := splitCSV(*fields); len(picked) > 0 {
		for _, ref := range picked {
			table, field, ok := strings.Cut(ref, ".")
			if !ok {
				return fmt.Errorf("field %q must be table.field", ref)
			}
			if err := w.ToggleField(table, field); err != nil {
				return err
			}
		}
	} else {
		for _, id := range tableIDs {
			if err := w.SelectAllFields(id); err != nil {
				return err
			}
		}
	}
	if *index != "" {
		if err := w.SetAdvanced(vector.IndexConfig{IndexType: vector.IndexType(*index)}); err != nil {
			return err
		}
	}
	if err := w.Next(ctx); err != nil {
		return err
	}
	if w.Step() == wizard.StepConfigureJoin {
		if err := applyJoin(w, tableIDs, *join); err != nil {
			return err
		}
		if err := w.Next(ctx); err != nil {
			return err
		}
	}

	s := w.Summary()
	fmt.Fprintf(a.out, "名称: %s\n数据源: %s\n表: %s\n字段数: %d\n索引: %s/%s\n",
		s.Title, s.Database, strings.Join(s.Tables, ", "), s.FieldCount, s.IndexConfig.IndexType, s.IndexConfig.Metric)
	if err := w.Start(ctx); err != nil {
		return err
	}

	tick := time.NewTicker(200 * time.Millisecond)
	defer tick.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-tick.C:
		}
		if *background && w.Status() == wizard.StatusProcessing && w.Progress() >= 20 {
			task, err := w.RunInBackground(ctx)
			if errors.Is(err, wizard.ErrNotProcessing) {
				continue
			}
			if err != nil {
				return err
			}
			fmt.Fprintf(a.out, "\n已转入后台: %s (%d%%)\n", task.Name, task.Progress)
			w.Wait()
			if res, err := w.Result(); err == nil && res != nil {
				fmt.Fprintf(a.out, "任务 %s 已创建向量集 %s\n", res.TaskID, res.VectorID)
			}
			return nil
		}
		switch w.Status() {
		case wizard.StatusCompleted:
			res, _ := w.Result()
			fmt.Fprintf(a.out, "\r进度 100%%\n创建完成: 向量集 %s，索引任务 %s\n", res.VectorID, res.TaskID)
			return nil
		case wizard.StatusFailed:
			_, err := w.Result()
			fmt.Fprintln(a.out)
			return err
		default:
			fmt.Fprintf(a.out, "\r进度 %d%%", w.Progress())
		}
	}
}

// applyJoin 解析 type:left=right,... 并写入向导。
func applyJoin(w *wizard.Wizard, tableIDs []string, spec string) error {
	kind, conds, ok := strings.Cut(spec, ":")
	if !ok || conds == "" {
		return fmt.Errorf("join spec %q must be type:left=right[,left=right]", spec)
	}
	if err := w.SetJoinType(vector.JoinType(kind)); err != nil {
		return err
	}
	if err := w.SetJoinTables(tableIDs[0], tableIDs[1]); err != nil {
		return err
	}
	for i, pair := range splitCSV(conds) {
		left, right, ok := strings.Cut(pair, "=")
		if !ok {
			return fmt.Errorf("join condition %q must be left=right", pair)
		}
		if i > 0 {
			if err := w.AddCondition(); err != nil {
				return err
			}
		}
		if err := w.SetCondition(i, left, right); err != nil {
			return err
		}
	}
	return nil
}

func (a *app) search(ctx context.Context, args []string) error {
	if len(args) < 2 {
		return errUsage
	}
	var hits []search.Hit
	req := search.Request{VectorID: args[0], Query: strings.Join(args[1:], " ")}
	if _, err := a.client.Post(ctx, "/search/vector", req, &hits); err != nil {
		return err
	}
	return a.printHits(hits)
}

func (a *app) retrieval(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return errUsage
	}
	var hits []search.Hit
	if _, err := a.client.Post(ctx, "/kb/retrieval", map[string]string{"query": strings.Join(args, " ")}, &hits); err != nil {
		return err
	}
	return a.printHits(hits)
}

func (a *app) printHits(hits []search.Hit) error {
	w := a.table("SCORE", "SOURCE", "CONTENT")
	for _, h := range hits {
		fmt.Fprintf(w, "%.3f\t%s\t%s\n", h.Score, h.Source, h.Content)
	}
	return w.Flush()
}

// kbConfig 无参数时查看，带 key=value 时修改。
func (a *app) kbConfig(ctx context.Context, args []string) error {
	var cfg search.KBConfig
	if len(args) == 0 {
		if _, err := a.client.Get(ctx, "/kb/config", nil, &cfg); err != nil {
			return err
		}
	} else {
		patch := map[string]any{}
		for _, kv := range args {
			k, v, ok := strings.Cut(kv, "=")
			if !ok {
				return fmt.Errorf("%q must be key=value", kv)
			}
			switch k {
			case "topK", "chunkSize":
				n, err := strconv.Atoi(v)
				if err != nil {
					return fmt.Errorf("%s: %w", k, err)
				}
				patch[k] = n
			case "scoreThreshold":
				f, err := strconv.ParseFloat(v, 64)
				if err != nil {
					return fmt.Errorf("%s: %w", k, err)
				}
				patch[k] = f
			default:
				patch[k] = v
			}
		}
		if _, err := a.client.Put(ctx, "/kb/config", patch, &cfg); err != nil {
			return err
		}
	}
	fmt.Fprintf(a.out, "名称: %s\n分块: %d\n模式: %s\n模型: %s\nTopK: %d\n阈值: %.2f\n",
		cfg.Name, cfg.ChunkSize, cfg.RetrievalMode, cfg.EmbeddingModel, cfg.TopK, cfg.ScoreThreshold)
	return nil
}

func (a *app) clean(ctx context.Context, args []string) error {
	text := strings.Join(args, " ")
	if text == "" || text == "-" {
		raw, err := a.readAll()
		if err != nil {
			return err
		}
		text = raw
	}
	var out struct {
		Text string `json:"text"`
	}
	if _, err := a.client.Post(ctx, "/tools/llm-clean", map[string]string{"text": text}, &out); err != nil {
		return err
	}
	fmt.Fprintln(a.out, out.Text)
	return nil
}

func (a *app) tasks(ctx context.Context, _ []string) error {
	if err := a.loadTasks(ctx); err != nil {
		return err
	}
	w := a.table("ID", "NAME", "STATUS", "PROGRESS", "STARTED")
	for _, t := range a.store.State().Tasks {
		fmt.Fprintf(w, "%s\t%s\t%s\t%d%%\t%s\n", t.ID, t.Name, t.Status, t.Progress, t.StartTime.Local().Format(time.DateTime))
	}
	return w.Flush()
}

func (a *app) notifications(ctx context.Context, args []string) error {
	if len(args) > 0 {
		switch args[0] {
		case "read":
			if _, err := a.client.Put(ctx, "/notifications/read-all", nil, nil); err != nil {
				return err
			}
			a.store.Dispatch(store.MarkAllRead{})
		case "clear":
			if _, err := a.client.Delete(ctx, "/notifications", nil, nil); err != nil {
				return err
			}
			a.store.Dispatch(store.ClearNotifications{})
		default:
			return errUsage
		}
	}
	var list []store.Notification
	if _, err := a.client.Get(ctx, "/notifications", nil, &list); err != nil {
		return err
	}
	w := a.table("", "TYPE", "TITLE", "MESSAGE", "TIME")
	for _, n := range list {
		mark := "*"
		if n.Read {
			mark = " "
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", mark, n.Type, n.Title, n.Message, n.Time.Local().Format(time.DateTime))
	}
	return w.Flush()
}

func (a *app) setTheme(_ context.Context, args []string) error {
	fs := flag.NewFlagSet("theme", flag.ContinueOnError)
	color := fs.String("color", "", "主色，例如 #2563eb")
	font := fs.Int("font", 0, "字号 12-20")
	transition := fs.String("transition", "", "fade/slide/scale/none")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if mode := fs.Arg(0); mode != "" {
		switch m := store.ThemeMode(mode); m {
		case store.ThemeLight, store.ThemeDark, store.ThemeSystem:
			a.store.Dispatch(store.SetThemeMode{Mode: m})
		default:
			return fmt.Errorf("unknown theme mode %q", mode)
		}
	}
	if *color != "" {
		a.store.Dispatch(store.SetPrimaryColor{Color: *color})
	}
	if *font != 0 {
		if *font < 12 || *font > 20 {
			return fmt.Errorf("font size must be between 12 and 20")
		}
		a.store.Dispatch(store.SetFontSize{Size: *font})
	}
	if *transition != "" {
		a.store.Dispatch(store.SetPageTransition{Transition: store.PageTransition(*transition)})
	}
	st := a.store.State()
	fmt.Fprintf(a.out, "主题: %s  主色: %s  字号: %dpx  动画: %s\n", st.ThemeMode, st.PrimaryColor, st.FontSize, st.PageTransition)
	return nil
}

func messageOr(env *client.Envelope, fallback string) string {
	if env != nil && env.Message != "" {
		return env.Message
	}
	return fallback
}

func splitCSV(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
