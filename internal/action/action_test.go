package action_test

import (
	"testing"

	"github.com/m-mizutani/gt"

	"github.com/rcliao/memcompose/internal/action"
	"github.com/rcliao/memcompose/internal/model"
)

func TestParsePlainText(t *testing.T) {
	a := action.Parse("Sure, Lisbon is lovely in spring.")
	r, ok := a.(action.Respond)
	gt.True(t, ok)
	gt.Equal(t, r.Text, "Sure, Lisbon is lovely in spring.")
}

func TestParseUpdateMemory(t *testing.T) {
	a := action.Parse("```json\n" + `{"action":"update_memory","data":{"text":"Got it!","update":{"text":"User's sister is Ana","tags":["family"],"importance":"HIGH","agents":["core_assistant"]}}}` + "\n```")
	u, ok := a.(action.UpdateMemory)
	gt.True(t, ok)
	gt.Equal(t, u.Reply(), "Got it!")
	gt.Equal(t, u.Content, "User's sister is Ana")
	gt.Equal(t, u.Tags, []string{"family"})
	gt.Equal(t, u.Importance, model.ImportanceHigh)
	gt.Equal(t, u.Owner, "core_assistant")
}

func TestParseVariants(t *testing.T) {
	q, ok := action.Parse(`{"action":"query_memory","data":{"text":"Looking","query":{"tags":["work"]}}}`).(action.QueryMemory)
	gt.True(t, ok)
	gt.Equal(t, q.Tags, []string{"work"})

	s, ok := action.Parse(`{"action":"suggest_new_category","data":{"category":"hobbies"}}`).(action.SuggestCategory)
	gt.True(t, ok)
	gt.Equal(t, s.Category, "hobbies")

	w, ok := action.Parse(`{"action":"switch_agent","data":{"agent":"coder","message":"Handing over"}}`).(action.SwitchAgent)
	gt.True(t, ok)
	gt.Equal(t, w.Agent, "coder")
	gt.Equal(t, w.Reply(), "Handing over")
}

func TestParseMalformedFallsBackToRespond(t *testing.T) {
	for _, in := range []string{
		`{"action":"update_memory","data":{"text":"hi"}}`,
		`{"action":"launch_rockets","data":{}}`,
		`{"action": broken`,
		`{"not_an_action":true}`,
	} {
		_, ok := action.Parse(in).(action.Respond)
		gt.True(t, ok).Describe(in)
	}
}
