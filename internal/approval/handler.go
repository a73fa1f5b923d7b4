package approval

import (
	"html/template"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"

	"gatecheck/internal/logging"
	"gatecheck/internal/types"
)

const answerPrefix = "answer_"

var formTemplate = template.Must(template.New("form").Parse(`<!DOCTYPE html>
<html>
<head><meta charset="utf-8"><title>{{.Title}}</title></head>
<body style="font-family: sans-serif; max-width: 48em; margin: 2em auto;">
<h1>{{.Title}}</h1>
{{if .Description}}<p>{{.Description}}</p>{{end}}
<form method="post" action="/submit">
{{range $i, $q := .Questions}}
<p><label for="answer_{{$i}}">{{$q}}</label><br>
<textarea id="answer_{{$i}}" name="answer_{{$i}}" rows="3" cols="80"></textarea></p>
{{end}}
<button type="submit" name="decision" value="proceed">Proceed</button>
<button type="submit" name="decision" value="stop">Stop</button>
</form>
</body>
</html>
`))

var ackTemplate = template.Must(template.New("ack").Parse(`<!DOCTYPE html>
<html>
<head><meta charset="utf-8"><title>Response recorded</title></head>
<body style="font-family: sans-serif; text-align: center; padding: 50px;">
<h1>Response recorded: {{.}}</h1>
<p>You can close this tab and return to the agent.</p>
</body>
</html>
`))

// newHandler serves the form on GET and records the first POST into cell.
// Every request gets a 200.
func newHandler(req Request, cell *resultCell) http.Handler {
	log := logging.Get(logging.CategoryApproval)

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")

		if r.Method != http.MethodPost {
			if err := formTemplate.Execute(w, req); err != nil {
				log.Warn("Render form: %v", err)
			}
			return
		}

		if err := r.ParseForm(); err != nil {
			log.Warn("Malformed submission from %s: %v", r.RemoteAddr, err)
		}
		res := parseSubmission(r.PostForm)
		if !cell.set(res) {
			log.Debug("Ignoring extra submission from %s", r.RemoteAddr)
			res, _ = cell.get()
		}

		if err := ackTemplate.Execute(w, res.Decision); err != nil {
			log.Warn("Render acknowledgement: %v", err)
		}
	})
}

// parseSubmission extracts the decision and the answers ordered by their index.
// A missing or unrecognised decision becomes stop.
func parseSubmission(form url.Values) Result {
	decision, ok := types.ParseDecision(form.Get("decision"))
	if !ok {
		decision = types.DecisionStop
	}

	type indexed struct {
		n      int
		answer string
	}
	var found []indexed
	for key, values := range form {
		if !strings.HasPrefix(key, answerPrefix) || len(values) == 0 {
			continue
		}
		n, err := strconv.Atoi(strings.TrimPrefix(key, answerPrefix))
		if err != nil || n < 0 {
			continue
		}
		found = append(found, indexed{n: n, answer: values[0]})
	}
	sort.Slice(found, func(i, j int) bool { return found[i].n < found[j].n })

	answers := make([]string, 0, len(found))
	for _, f := range found {
		answers = append(answers, f.answer)
	}
	return Result{Decision: decision, Answers: answers}
}
