package sync

import (
	"testing"

	"github.com/parlohq/syncd/internal/store"
)

func TestIsDuplicateMessageWindow(t *testing.T) {
	existing := []store.Message{
		{ID: "m1", Content: "ola", CreatedAt: 10_000},
	}

	cases := []struct {
		desc      string
		content   string
		createdAt int64
		want      bool
	}{
		{"identical timestamp", "ola", 10_000, true},
		{"999ms later", "ola", 10_999, true},
		{"999ms earlier", "ola", 9_001, true},
		{"exactly 1000ms", "ola", 11_000, false},
		{"1001ms later", "ola", 11_001, false},
		{"different content inside window", "oi", 10_000, false},
		{"no existing messages", "ola", 10_000, false},
	}

	for _, tc := range cases {
		t.Run(tc.desc, func(t *testing.T) {
			msgs := existing
			if tc.desc == "no existing messages" {
				msgs = nil
			}
			got := IsDuplicateMessage(tc.content, tc.createdAt, msgs)
			if got != tc.want {
				t.Errorf("IsDuplicateMessage(%q, %d) = %v, want %v", tc.content, tc.createdAt, got, tc.want)
			}
		})
	}
}

func TestResolveChat(t *testing.T) {
	if got := ResolveChat(nil); got != CreateFromLocal {
		t.Errorf("nil server = %v, want CreateFromLocal", got)
	}
	if got := ResolveChat(&store.Chat{ID: "a"}); got != KeepServer {
		t.Errorf("live server = %v, want KeepServer", got)
	}
	if got := ResolveChat(&store.Chat{ID: "a", IsDeleted: true}); got != SkipTombstoned {
		t.Errorf("tombstoned server = %v, want SkipTombstoned", got)
	}
}
