package generation

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBuildPrompt(t *testing.T) {
	t.Run("substitutes a json array", func(t *testing.T) {
		got := BuildPrompt("pick numbers for {names} please", []string{"홍길동", "김철수"})
		assert.Equal(t, `pick numbers for ["홍길동","김철수"] please`, got)
	})

	t.Run("template without the placeholder is untouched", func(t *testing.T) {
		got := BuildPrompt("no placeholder here", []string{"a"})
		assert.Equal(t, "no placeholder here", got)
	})

	t.Run("quotes survive encoding", func(t *testing.T) {
		got := BuildPrompt("{names}", []string{`say "hi"`})
		assert.Equal(t, `["say \"hi\""]`, got)
	})
}

func TestParseAssignments(t *testing.T) {
	requested := []string{"홍길동", "김철수"}

	t.Run("valid response", func(t *testing.T) {
		raw := `[
			{"name": "홍길동", "numbers": [44, 5, 12, 31, 18, 23]},
			{"name": "김철수", "numbers": [7, 8, 9, 10, 11, 12]}
		]`
		got := ParseAssignments(raw, requested)
		assert.Equal(t, []Assignment{
			{Name: "홍길동", Numbers: []int{5, 12, 18, 23, 31, 44}},
			{Name: "김철수", Numbers: []int{7, 8, 9, 10, 11, 12}},
		}, got)
	})

	t.Run("unknown names are dropped", func(t *testing.T) {
		raw := `[{"name": "모르는사람", "numbers": [1, 2, 3, 4, 5, 6]}]`
		assert.Empty(t, ParseAssignments(raw, requested))
	})

	t.Run("duplicate names keep the first entry", func(t *testing.T) {
		raw := `[
			{"name": "홍길동", "numbers": [1, 2, 3, 4, 5, 6]},
			{"name": "홍길동", "numbers": [7, 8, 9, 10, 11, 12]}
		]`
		got := ParseAssignments(raw, requested)
		assert.Equal(t, []Assignment{{Name: "홍길동", Numbers: []int{1, 2, 3, 4, 5, 6}}}, got)
	})

	t.Run("invalid sets are dropped, valid ones kept", func(t *testing.T) {
		raw := `[
			{"name": "홍길동", "numbers": [1, 2, 3]},
			{"name": "김철수", "numbers": [7, 8, 9, 10, 11, 12]}
		]`
		got := ParseAssignments(raw, requested)
		assert.Equal(t, []Assignment{{Name: "김철수", Numbers: []int{7, 8, 9, 10, 11, 12}}}, got)
	})

	t.Run("non-json response yields nothing", func(t *testing.T) {
		assert.Empty(t, ParseAssignments("I am sorry, I cannot do that", requested))
	})

	t.Run("whitespace around the payload is tolerated", func(t *testing.T) {
		raw := "\n  [{\"name\": \"홍길동\", \"numbers\": [1, 2, 3, 4, 5, 6]}]  \n"
		assert.Len(t, ParseAssignments(raw, requested), 1)
	})
}
