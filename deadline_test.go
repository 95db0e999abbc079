package main

import "testing"

func TestDeadlineFromMeta(t *testing.T) {
	tests := []struct {
		name string
		meta []string
		want string
	}{
		{
			name: "remaining tag is returned verbatim",
			meta: []string{"Voice over", "2 days remaining", "English"},
			want: "2 days remaining",
		},
		{
			name: "case insensitive match",
			meta: []string{"5 Hours Remaining"},
			want: "5 Hours Remaining",
		},
		{
			name: "first remaining tag wins",
			meta: []string{"3 days remaining", "1 hour remaining"},
			want: "3 days remaining",
		},
		{
			name: "no remaining tag",
			meta: []string{"Voice over", "English", "$250-500"},
			want: NoDeadline,
		},
		{
			name: "empty meta",
			meta: nil,
			want: NoDeadline,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := DeadlineFromMeta(tt.meta); got != tt.want {
				t.Errorf("DeadlineFromMeta(%v) = %q, want %q", tt.meta, got, tt.want)
			}
		})
	}
}
