package console

import (
	"context"
	"slices"
)

// Selection 列表页的行数据与勾选状态。ID 取每行的唯一键。
type Selection[T any] struct {
	Items    []T
	Selected []string
	ID       func(T) string
}

// NewSelection 以给定列表创建。
func NewSelection[T any](items []T, id func(T) string) *Selection[T] {
	return &Selection[T]{Items: items, ID: id}
}

// Toggle 勾选或取消一行，不在列表中的 ID 被忽略。
func (s *Selection[T]) Toggle(id string) {
	if i := slices.Index(s.Selected, id); i >= 0 {
		s.Selected = slices.Delete(s.Selected, i, i+1)
		return
	}
	if slices.ContainsFunc(s.Items, func(item T) bool { return s.ID(item) == id }) {
		s.Selected = append(s.Selected, id)
	}
}

// SelectAll 勾选当前页全部行。
func (s *Selection[T]) SelectAll() {
	s.Selected = s.Selected[:0]
	for _, item := range s.Items {
		s.Selected = append(s.Selected, s.ID(item))
	}
}

// DeleteSelected 以勾选的 ID 调用 del。成功后从列表移除这些行并清空勾选；
// 失败时列表与勾选保持不变。
func (s *Selection[T]) DeleteSelected(ctx context.Context, del func(context.Context, []string) error) error {
	if len(s.Selected) == 0 {
		return nil
	}
	ids := slices.Clone(s.Selected)
	if err := del(ctx, ids); err != nil {
		return err
	}
	s.Items = slices.DeleteFunc(slices.Clone(s.Items), func(item T) bool {
		return slices.Contains(ids, s.ID(item))
	})
	s.Selected = nil
	return nil
}
