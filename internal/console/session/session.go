// Package session 管理控制台登录态：登录、记住我恢复、退出，以及 401 后的过期处理。
package session

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"vectorAdmin/internal/console/client"
	"vectorAdmin/internal/console/storage"
	"vectorAdmin/internal/console/store"
)

// RememberMeTTL "记住我"的有效期。
const RememberMeTTL = 7 * 24 * time.Hour

// State 会话状态。
type State int

const (
	Anonymous State = iota
	Authenticated
	Expired
)

func (s State) String() string {
	switch s {
	case Authenticated:
		return "authenticated"
	case Expired:
		return "expired"
	default:
		return "anonymous"
	}
}

// Captcha 服务端颁发的验证码。
type Captcha struct {
	Key   string `json:"key"`
	Image string `json:"image"`
}

// Menu /auth/me 返回的菜单树节点。
type Menu struct {
	ID       uint   `json:"id"`
	Name     string `json:"name"`
	Path     string `json:"path"`
	Children []Menu `json:"children,omitempty"`
}

type loginResult struct {
	Token        string     `json:"token"`
	RefreshToken string     `json:"refreshToken"`
	User         store.User `json:"user"`
}

type meResult struct {
	User  store.User `json:"user"`
	Menus []Menu     `json:"menus"`
}

// Session 线程安全。
type Session struct {
	client *client.Client
	store  *store.Store
	now    func() time.Time
	logger *slog.Logger

	mu       sync.Mutex
	state    State
	captcha  *Captcha
	menus    []Menu
	onChange func(from, to State)
}

type Option func(*Session)

// WithClock 替换时间来源。
func WithClock(now func() time.Time) Option {
	return func(s *Session) { s.now = now }
}

func WithLogger(logger *slog.Logger) Option {
	return func(s *Session) { s.logger = logger }
}

// WithStateHook 每次状态变化时回调。
func WithStateHook(fn func(from, to State)) Option {
	return func(s *Session) { s.onChange = fn }
}

// New 创建会话，并接管 client 的 401 回调。
func New(c *client.Client, st *store.Store, opts ...Option) *Session {
	s := &Session{client: c, store: st, now: time.Now, logger: slog.Default()}
	for _, opt := range opts {
		opt(s)
	}
	c.SetOnUnauthorized(s.expire)
	return s
}

// State 当前状态。
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Menus 最近一次从服务端取得的菜单。
func (s *Session) Menus() []Menu {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.menus
}

func (s *Session) setState(to State) {
	s.mu.Lock()
	from := s.state
	s.state = to
	hook := s.onChange
	s.mu.Unlock()
	if hook != nil && from != to {
		hook(from, to)
	}
}

// Captcha 获取一张新验证码并记住其 key。
func (s *Session) Captcha(ctx context.Context) (*Captcha, error) {
	var captcha Captcha
	if _, err := s.client.Get(ctx, "/auth/captcha", nil, &captcha); err != nil {
		return nil, fmt.Errorf("fetch captcha: %w", err)
	}
	s.mu.Lock()
	s.captcha = &captcha
	s.mu.Unlock()
	return &captcha, nil
}

func (s *Session) captchaKey(ctx context.Context) (string, error) {
	s.mu.Lock()
	held := s.captcha
	s.mu.Unlock()
	if held != nil {
		return held.Key, nil
	}
	captcha, err := s.Captcha(ctx)
	if err != nil {
		return "", err
	}
	return captcha.Key, nil
}

// Login 提交口令。成功后保存令牌与用户信息；rememberMe 时额外记录到期时间（毫秒时间戳）。
func (s *Session) Login(ctx context.Context, username, password, captcha string, rememberMe bool) (State, error) {
	key, err := s.captchaKey(ctx)
	if err != nil {
		return s.State(), err
	}

	var result loginResult
	_, err = s.client.Post(ctx, "/auth/login", map[string]any{
		"username":   username,
		"password":   password,
		"captcha":    captcha,
		"key":        key,
		"rememberMe": rememberMe,
	}, &result)
	// 验证码只能用一次
	s.mu.Lock()
	s.captcha = nil
	s.mu.Unlock()
	if err != nil {
		return s.State(), err
	}

	st := s.client.Storage()
	userJSON, err := json.Marshal(result.User)
	if err != nil {
		return s.State(), fmt.Errorf("encode user: %w", err)
	}
	if err := st.Set(storage.KeyToken, result.Token); err != nil {
		return s.State(), fmt.Errorf("save token: %w", err)
	}
	if err := st.Set(storage.KeyUserInfo, string(userJSON)); err != nil {
		return s.State(), fmt.Errorf("save user: %w", err)
	}
	if rememberMe {
		expires := s.now().Add(RememberMeTTL).UnixMilli()
		err = st.Set(storage.KeyRememberMe, strconv.FormatInt(expires, 10))
	} else {
		err = st.Remove(storage.KeyRememberMe)
	}
	if err != nil {
		return s.State(), fmt.Errorf("save remember me: %w", err)
	}

	s.store.Dispatch(store.SetUser{User: result.User})
	s.setState(Authenticated)
	s.logger.Info("login succeeded", slog.String("username", result.User.Username), slog.Bool("remember_me", rememberMe))
	return Authenticated, nil
}

// Restore 在"记住我"未过期且本地保存了令牌与用户时恢复会话，并调用 /auth/me 向服务端确认。
func (s *Session) Restore(ctx context.Context) (State, error) {
	st := s.client.Storage()
	raw, ok := st.Get(storage.KeyRememberMe)
	if !ok {
		return s.State(), nil
	}
	expires, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || s.now().UnixMilli() >= expires {
		_ = st.Remove(storage.KeyToken, storage.KeyUserInfo, storage.KeyRememberMe)
		return s.State(), nil
	}
	token, hasToken := st.Get(storage.KeyToken)
	_, hasUser := st.Get(storage.KeyUserInfo)
	if !hasToken || token == "" || !hasUser {
		return s.State(), nil
	}

	if err := s.Refresh(ctx); err != nil {
		return s.State(), err
	}
	s.setState(Authenticated)
	return Authenticated, nil
}

// Refresh 重新读取当前用户与菜单。
func (s *Session) Refresh(ctx context.Context) error {
	var me meResult
	if _, err := s.client.Get(ctx, "/auth/me", nil, &me); err != nil {
		return fmt.Errorf("verify session: %w", err)
	}
	if userJSON, err := json.Marshal(me.User); err == nil {
		_ = s.client.Storage().Set(storage.KeyUserInfo, string(userJSON))
	}
	s.mu.Lock()
	s.menus = me.Menus
	s.mu.Unlock()
	s.store.Dispatch(store.SetUser{User: me.User})
	return nil
}

// Logout 通知服务端（失败忽略），清空本地登录态。
func (s *Session) Logout(ctx context.Context) {
	if _, err := s.client.Post(ctx, "/auth/logout", nil, nil); err != nil {
		s.logger.Debug("server logout failed", slog.Any("error", err))
	}
	s.clear()
}

// expire 由 client 在收到 401 时调用。
func (s *Session) expire() {
	if s.State() == Authenticated {
		s.setState(Expired)
	}
	s.clear()
}

func (s *Session) clear() {
	_ = s.client.Storage().Remove(storage.KeyToken, storage.KeyUserInfo, storage.KeyRememberMe)
	s.mu.Lock()
	s.menus = nil
	s.mu.Unlock()
	s.store.Dispatch(store.Logout{})
	s.setState(Anonymous)
}
