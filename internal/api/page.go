package api

import (
	"html/template"
	"net/http"
	"strings"

	"github.com/savelov/reshalka/internal/mathtext"
	"github.com/savelov/reshalka/internal/models"
)

var solutionPageTmpl = template.Must(template.New("solution").Parse(`<!DOCTYPE html>
<html lang="ru">
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<title>Решение задачи</title>
<link rel="stylesheet" href="https://cdn.jsdelivr.net/npm/katex@0.16.9/dist/katex.min.css">
<script defer src="https://cdn.jsdelivr.net/npm/katex@0.16.9/dist/katex.min.js"></script>
<script defer src="https://cdn.jsdelivr.net/npm/katex@0.16.9/dist/contrib/auto-render.min.js"
  onload="renderMathInElement(document.body, {delimiters: [
    {left: '\\(', right: '\\)', display: false},
    {left: '\\[', right: '\\]', display: true},
    {left: '$$', right: '$$', display: true}
  ]});"></script>
<style>
body { font-family: -apple-system, "Segoe UI", Roboto, sans-serif; max-width: 720px; margin: 0 auto; padding: 24px 16px; color: #1c1c1e; line-height: 1.6; }
h1 { font-size: 1.3em; }
.answer { background: #f5f5f7; border-radius: 12px; padding: 16px 20px; overflow-x: auto; }
footer { margin-top: 32px; font-size: 0.85em; color: #8e8e93; }
</style>
</head>
<body>
<h1>Решение задачи</h1>
<div class="answer">{{.Answer}}</div>
<footer>Сгенерировано ботом «Решалка» · {{.Date}}</footer>
</body>
</html>
`))

type solutionPageData struct {
	Answer template.HTML
	Date   string
}

func (s *Server) renderSolutionPage(w http.ResponseWriter, solution *models.Solution) {
	cleaned := mathtext.CleanForPage(solution.AnswerText)
	escaped := template.HTMLEscapeString(cleaned)
	body := strings.ReplaceAll(escaped, "\n", "<br>")

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	err := solutionPageTmpl.Execute(w, solutionPageData{
		Answer: template.HTML(body),
		Date:   solution.CreatedAt.Format("02.01.2006"),
	})
	if err != nil {
		s.log.Error("solution page render failed", "id", solution.ID, "err", err)
	}
}
