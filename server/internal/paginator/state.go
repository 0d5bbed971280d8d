package paginator

import "time"

// PaginationState 描述分页请求的进行状态。NextCursor 为空表示没有下一页。
type PaginationState struct {
	IsLoading     bool   `json:"is_loading"`
	IsLoadingNext bool   `json:"is_loading_next"`
	NextCursor    string `json:"next_cursor,omitempty"`
}

// State 是 Manager 持有的全部状态，只能由 Manager 自己写入。
type State[T any] struct {
	// Records 按服务端返回顺序排列，按 key 唯一。
	Records    []T             `json:"records"`
	Pagination PaginationState `json:"pagination"`
	// Ready 在第一次 Reload 成功后置为 true。
	Ready  bool `json:"ready"`
	Active bool `json:"active"`
	// Stale 为 true 时，非强制的 Reload 也会重新拉取。
	Stale        bool      `json:"stale"`
	LastLoadedAt time.Time `json:"last_loaded_at"`
}

// ReloadOptions 控制 Reload 的行为。
type ReloadOptions struct {
	Force bool
}
