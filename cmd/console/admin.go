package main

import (
	"context"
	"flag"
	"fmt"
	"strconv"
	"strings"
	"time"

	"vectorAdmin/internal/console/client"
	"vectorAdmin/internal/database"
)

// listFlags 解析 list 子命令的公共筛选参数。
func listFlags(name string, args []string, keys ...string) (client.Params, error) {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	values := map[string]*string{}
	for _, k := range keys {
		values[k] = fs.String(k, "", k)
	}
	page := fs.Int("page", 1, "页码")
	size := fs.Int("size", 10, "每页条数")
	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	params := client.Params{"page": strconv.Itoa(*page), "pageSize": strconv.Itoa(*size)}
	for k, v := range values {
		if *v != "" {
			params[k] = *v
		}
	}
	return params, nil
}

func (a *app) users(ctx context.Context, args []string) error {
	if len(args) == 0 {
		args = []string{"list"}
	}
	switch args[0] {
	case "list":
		params, err := listFlags("users list", args[1:], "keyword", "role", "status")
		if err != nil {
			return err
		}
		var res struct {
			List  []database.User `json:"list"`
			Total int64           `json:"total"`
		}
		if _, err := a.client.Get(ctx, "/settings/users", params, &res); err != nil {
			return err
		}
		w := a.table("ID", "USERNAME", "EMAIL", "ROLE", "STATUS", "LAST LOGIN")
		for _, u := range res.List {
			last := "-"
			if u.LastLogin != nil {
				last = u.LastLogin.Local().Format(time.DateTime)
			}
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n", u.ID, u.Username, u.Email, u.Role, u.Status, last)
		}
		if err := w.Flush(); err != nil {
			return err
		}
		fmt.Fprintf(a.out, "共 %d 个用户\n", res.Total)
		return nil
	case "add":
		fs := flag.NewFlagSet("users add", flag.ContinueOnError)
		email := fs.String("email", "", "邮箱")
		role := fs.String("role", "viewer", "角色")
		if err := fs.Parse(args[1:]); err != nil {
			return err
		}
		if fs.NArg() != 2 {
			return errUsage
		}
		body := map[string]string{"username": fs.Arg(0), "password": fs.Arg(1), "email": *email, "role": *role}
		var created database.User
		if _, err := a.client.Post(ctx, "/settings/users", body, &created); err != nil {
			return err
		}
		fmt.Fprintf(a.out, "已创建用户 %s (%s)\n", created.Username, created.ID)
		return nil
	case "role":
		if len(args) != 3 {
			return errUsage
		}
		return a.put(ctx, "/settings/users/"+args[1], map[string]string{"role": args[2]}, "用户已更新")
	case "password":
		if len(args) != 3 {
			return errUsage
		}
		return a.put(ctx, "/settings/users/"+args[1], map[string]string{"password": args[2]}, "密码已重置")
	case "status":
		if len(args) != 3 {
			return errUsage
		}
		return a.put(ctx, "/settings/users/"+args[1]+"/status", map[string]string{"status": args[2]}, "状态已更新")
	case "delete":
		if len(args) != 2 {
			return errUsage
		}
		return a.confirmDelete(ctx, "/settings/users/"+args[1], "用户 "+args[1])
	}
	return errUsage
}

func (a *app) roles(ctx context.Context, args []string) error {
	if len(args) == 0 {
		args = []string{"list"}
	}
	switch args[0] {
	case "list":
		var list []database.Role
		if _, err := a.client.Get(ctx, "/settings/roles", nil, &list); err != nil {
			return err
		}
		w := a.table("ID", "NAME", "DESCRIPTION", "PERMISSIONS")
		for _, r := range list {
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", r.ID, r.Name, r.Description, strings.Join(r.Permissions, ","))
		}
		return w.Flush()
	case "add":
		if len(args) < 2 {
			return errUsage
		}
		body := map[string]any{"name": args[1], "permissions": splitCSV(strings.Join(args[2:], ","))}
		var created database.Role
		if _, err := a.client.Post(ctx, "/settings/roles", body, &created); err != nil {
			return err
		}
		fmt.Fprintf(a.out, "已创建角色 %s (%s)\n", created.Name, created.ID)
		return nil
	case "perms":
		if len(args) < 2 {
			return errUsage
		}
		perms := splitCSV(strings.Join(args[2:], ","))
		if perms == nil {
			perms = []string{}
		}
		return a.put(ctx, "/settings/roles/"+args[1]+"/permissions", map[string][]string{"permissions": perms}, "权限已更新")
	case "delete":
		if len(args) != 2 {
			return errUsage
		}
		return a.confirmDelete(ctx, "/settings/roles/"+args[1], "角色 "+args[1])
	}
	return errUsage
}

func (a *app) logs(ctx context.Context, args []string) error {
	if len(args) == 0 {
		args = []string{"list"}
	}
	switch args[0] {
	case "list":
		params, err := listFlags("logs list", args[1:], "type", "status", "keyword")
		if err != nil {
			return err
		}
		var res struct {
			List  []database.SystemLog `json:"list"`
			Total int64                `json:"total"`
		}
		if _, err := a.client.Get(ctx, "/settings/logs", params, &res); err != nil {
			return err
		}
		w := a.table("ID", "TIME", "TYPE", "MODULE", "ACTION", "USER", "IP", "STATUS")
		for _, l := range res.List {
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
				l.ID, l.Timestamp.Local().Format(time.DateTime), l.Type, l.Module, l.Action, l.User, l.IP, l.Status)
		}
		if err := w.Flush(); err != nil {
			return err
		}
		fmt.Fprintf(a.out, "共 %d 条\n", res.Total)
		return nil
	case "show":
		if len(args) != 2 {
			return errUsage
		}
		var out struct {
			Details string `json:"details"`
		}
		if _, err := a.client.Get(ctx, "/settings/logs/"+args[1], nil, &out); err != nil {
			return err
		}
		fmt.Fprintln(a.out, out.Details)
		return nil
	case "delete":
		if len(args) < 2 {
			return errUsage
		}
		if len(args) == 2 {
			return a.confirmDelete(ctx, "/settings/logs/"+args[1], "日志 "+args[1])
		}
		challenge := a.newChallenge()
		input, err := a.readLine(fmt.Sprintf("即将删除 %d 条日志，请输入确认码 %s: ", len(args)-1, challenge.Code()))
		if err != nil {
			return err
		}
		if err := challenge.Verify(input); err != nil {
			return err
		}
		env, err := a.client.Delete(ctx, "/settings/logs", map[string][]string{"ids": args[1:]}, nil)
		if err != nil {
			return err
		}
		fmt.Fprintln(a.out, messageOr(env, "已删除"))
		return nil
	case "retention":
		if len(args) != 2 {
			return errUsage
		}
		days, err := strconv.Atoi(args[1])
		if err != nil {
			return fmt.Errorf("days: %w", err)
		}
		env, err := a.client.Post(ctx, "/settings/logs/retention", map[string]int{"days": days}, nil)
		if err != nil {
			return err
		}
		fmt.Fprintln(a.out, messageOr(env, "保留天数已更新"))
		return nil
	}
	return errUsage
}

func (a *app) ips(ctx context.Context, args []string) error {
	if len(args) == 0 {
		args = []string{"list"}
	}
	switch args[0] {
	case "list":
		params, err := listFlags("ips list", args[1:], "status")
		if err != nil {
			return err
		}
		var list []database.IPRecord
		if _, err := a.client.Get(ctx, "/settings/ips", params, &list); err != nil {
			return err
		}
		w := a.table("ID", "IP", "LOCATION", "STATUS", "ACCESS", "LAST ACCESS")
		for _, r := range list {
			last := "-"
			if r.LastAccess != nil {
				last = r.LastAccess.Local().Format(time.DateTime)
			}
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d\t%s\n", r.ID, r.IP, r.Location, r.Status, r.AccessCount, last)
		}
		return w.Flush()
	case "add":
		if len(args) < 2 {
			return errUsage
		}
		body := map[string]string{"ip": args[1], "location": strings.Join(args[2:], " ")}
		var created database.IPRecord
		if _, err := a.client.Post(ctx, "/settings/ips", body, &created); err != nil {
			return err
		}
		fmt.Fprintf(a.out, "已拦截 %s (%s)\n", created.IP, created.ID)
		return nil
	case "allow", "block":
		if len(args) != 2 {
			return errUsage
		}
		status := database.IPAllowed
		if args[0] == "block" {
			status = database.IPBlocked
		}
		return a.put(ctx, "/settings/ips/"+args[1]+"/status", map[string]string{"status": status}, "状态已更新")
	case "delete":
		if len(args) != 2 {
			return errUsage
		}
		return a.confirmDelete(ctx, "/settings/ips/"+args[1], "IP 记录 "+args[1])
	}
	return errUsage
}

func (a *app) put(ctx context.Context, url string, body any, done string) error {
	env, err := a.client.Put(ctx, url, body, nil)
	if err != nil {
		return err
	}
	fmt.Fprintln(a.out, messageOr(env, done))
	return nil
}

// confirmDelete 输入确认码后删除单个资源。
func (a *app) confirmDelete(ctx context.Context, url, what string) error {
	challenge := a.newChallenge()
	input, err := a.readLine(fmt.Sprintf("即将删除%s，请输入确认码 %s: ", what, challenge.Code()))
	if err != nil {
		return err
	}
	if err := challenge.Verify(input); err != nil {
		return err
	}
	env, err := a.client.Delete(ctx, url, nil, nil)
	if err != nil {
		return err
	}
	fmt.Fprintln(a.out, messageOr(env, "已删除"))
	return nil
}
