package store

import (
	"sync"
)

// Observer 在每次 Dispatch 之后收到前后状态。
type Observer func(prev, next AppState, action Action)

// Store 线程安全的状态容器。
type Store struct {
	mu        sync.Mutex
	state     AppState
	observers map[int]Observer
	nextID    int
}

func New(initial AppState) *Store {
	return &Store{state: initial, observers: map[int]Observer{}}
}

// State 返回当前状态的快照。
func (s *Store) State() AppState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Dispatch 在锁内归约，锁外按注册顺序通知观察者。
func (s *Store) Dispatch(action Action) AppState {
	s.mu.Lock()
	prev := s.state
	next := Reduce(prev, action)
	s.state = next
	observers := make([]Observer, 0, len(s.observers))
	for id := 0; id < s.nextID; id++ {
		if obs, ok := s.observers[id]; ok {
			observers = append(observers, obs)
		}
	}
	s.mu.Unlock()

	for _, obs := range observers {
		obs(prev, next, action)
	}
	return next
}

// Subscribe 注册观察者，返回取消函数。
func (s *Store) Subscribe(obs Observer) func() {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.nextID
	s.nextID++
	s.observers[id] = obs
	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.observers, id)
	}
}
