package server

import "html/template"

var indexTemplate = template.Must(template.New("index").Parse(`<!DOCTYPE html>
<html lang="pt">
<head>
<meta charset="utf-8">
<title>PDF Q&amp;A</title>
<style>
body { font-family: sans-serif; max-width: 48rem; margin: 2rem auto; }
section { border: 1px solid #ccc; border-radius: 6px; padding: 1rem; margin-bottom: 1rem; }
textarea { width: 100%; }
</style>
</head>
<body>
<h1>PDF Q&amp;A</h1>
{{if .HasIndex}}<p>Embeddings file loaded.</p>{{else}}<p>No embeddings file yet. Upload PDFs or import a file.</p>{{end}}

<section>
<h2>Upload PDFs</h2>
<form action="/upload" method="post" enctype="multipart/form-data">
<input type="file" name="pdfs" accept=".pdf" multiple>
<button type="submit">Upload and process</button>
</form>
</section>

<section>
<h2>Ask a question</h2>
<form action="/query" method="post">
<textarea name="question" rows="3" required></textarea>
<button type="submit">Ask</button>
</form>
</section>

<section>
<h2>Import embeddings</h2>
<form action="/import" method="post" enctype="multipart/form-data">
<input type="file" name="embeddings" accept=".pkl">
<button type="submit">Import</button>
</form>
</section>

<section>
<h2>Export embeddings</h2>
<form action="/export" method="get">
<button type="submit">Download {{.ExportName}}</button>
</form>
</section>
</body>
</html>
`))

type indexData struct {
	HasIndex   bool
	ExportName string
}
