package core

import "testing"

func TestOrderBy(t *testing.T) {
	columns := map[string]string{"name": "name", "student": "student_id"}
	tests := []struct {
		name     string
		ordering []DBOrdering
		want     string
	}{
		{name: "empty", want: "id ASC"},
		{name: "unknown only", ordering: []DBOrdering{{Field: "password_hash"}}, want: "id ASC"},
		{name: "mapped", ordering: []DBOrdering{{Field: "student", Ascending: true}}, want: "student_id ASC"},
		{
			name:     "mixed",
			ordering: []DBOrdering{{Field: "name"}, {Field: "lol; DROP TABLE users"}, {Field: "student", Ascending: true}},
			want:     "name DESC, student_id ASC",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := OrderBy(tt.ordering, columns, "id ASC"); got != tt.want {
				t.Errorf("OrderBy() = %q, want %q", got, tt.want)
			}
		})
	}
}
