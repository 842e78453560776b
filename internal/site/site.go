// Package site emits the static verification documents that ship inside a
// batch archive: one page per certificate, a landing index, the query-string
// redirect shim, and a JSON sidecar per certificate. Every emitter is a pure
// function of its inputs.
package site

import (
	"bytes"
	"encoding/json"
	"fmt"
	"html/template"
	"time"

	"github.com/yungbote/certgen-backend/internal/certs"
)

// Context carries the batch-wide fields every page shares.
type Context struct {
	BaseURL   string
	EventName string
	EventDate string
}

type Generator struct {
	page     *template.Template
	index    *template.Template
	redirect []byte
}

func NewGenerator() *Generator {
	return &Generator{
		page:     template.Must(template.New("verify").Parse(verifyPageTmpl)),
		index:    template.Must(template.New("index").Parse(indexPageTmpl)),
		redirect: []byte(verifyRedirectHTML),
	}
}

// CertificatePage renders the static verification document for one record.
// Opening {baseUrl}/verify/{id} displays these fields.
func (g *Generator) CertificatePage(rec certs.Record, sc Context) ([]byte, error) {
	var buf bytes.Buffer
	err := g.page.Execute(&buf, struct {
		certs.Record
		Site     Context
		IssuedAt string
	}{Record: rec, Site: sc, IssuedAt: rec.IssuedAt.UTC().Format(time.RFC3339)})
	if err != nil {
		return nil, fmt.Errorf("render verification page: %w", err)
	}
	return buf.Bytes(), nil
}

// Index renders the landing page listing all certificates with a client-side
// identifier search.
func (g *Generator) Index(sc Context, recs []certs.Record) ([]byte, error) {
	var buf bytes.Buffer
	err := g.index.Execute(&buf, struct {
		Site    Context
		Records []certs.Record
		Count   int
	}{Site: sc, Records: recs, Count: len(recs)})
	if err != nil {
		return nil, fmt.Errorf("render index page: %w", err)
	}
	return buf.Bytes(), nil
}

// VerifyRedirect is the verify.html shim resolving ?id=<certificateId> to the
// per-certificate page, so QR URLs work on dumb static hosts.
func (g *Generator) VerifyRedirect() []byte {
	out := make([]byte, len(g.redirect))
	copy(out, g.redirect)
	return out
}

// Metadata is the JSON sidecar mirroring a certificate's authoritative fields.
func (g *Generator) Metadata(rec certs.Record) ([]byte, error) {
	return json.MarshalIndent(struct {
		ID       string `json:"id"`
		Name     string `json:"name"`
		Event    string `json:"event"`
		Date     string `json:"date"`
		IssuedAt string `json:"issued_at"`
	}{
		ID:       rec.ID,
		Name:     rec.Name,
		Event:    rec.EventName,
		Date:     rec.EventDate,
		IssuedAt: rec.IssuedAt.UTC().Format(time.RFC3339),
	}, "", "  ")
}

const verifyPageTmpl = `<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="UTF-8">
<meta name="viewport" content="width=device-width, initial-scale=1.0">
<title>Certificate Verification</title>
<link href="https://cdn.jsdelivr.net/npm/tailwindcss@2.2.19/dist/tailwind.min.css" rel="stylesheet">
</head>
<body class="bg-gray-100 min-h-screen flex items-center justify-center p-4">
<div class="bg-white rounded-lg shadow-xl p-8 max-w-lg w-full">
  <div class="text-center mb-8">
    <h1 class="text-2xl font-bold text-green-600">Certificate Verified ✓</h1>
    <p class="text-gray-500">This certificate is authentic and has been verified.</p>
  </div>
  <div class="mb-6">
    <img src="../{{.Record.ImagePath}}" alt="Certificate for {{.Record.Name}}" class="rounded border border-gray-200 mb-4">
    <h2 class="text-xl font-semibold mb-2">Certificate Details</h2>
    <div class="border-t border-b border-gray-200 py-3">
      <div class="flex justify-between py-1"><span class="font-medium text-gray-600">Name:</span><span>{{.Record.Name}}</span></div>
      <div class="flex justify-between py-1"><span class="font-medium text-gray-600">Event:</span><span>{{.Record.EventName}}</span></div>
      <div class="flex justify-between py-1"><span class="font-medium text-gray-600">Date:</span><span>{{.Record.EventDate}}</span></div>
      <div class="flex justify-between py-1"><span class="font-medium text-gray-600">Issued:</span><span>{{.IssuedAt}}</span></div>
      <div class="flex justify-between py-1"><span class="font-medium text-gray-600">Certificate ID:</span><span class="text-sm">{{.Record.ID}}</span></div>
    </div>
  </div>
  <div class="text-center">
    <a href="../index.html" class="text-blue-600 hover:underline">Back to Home</a>
  </div>
</div>
</body>
</html>
`

const indexPageTmpl = `<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="UTF-8">
<meta name="viewport" content="width=device-width, initial-scale=1.0">
<title>Certificate Verification System</title>
<link href="https://cdn.jsdelivr.net/npm/tailwindcss@2.2.19/dist/tailwind.min.css" rel="stylesheet">
</head>
<body class="bg-gray-100 min-h-screen p-4">
<div class="bg-white rounded-lg shadow-xl p-8 max-w-2xl w-full mx-auto">
  <div class="text-center mb-8">
    <h1 class="text-2xl font-bold text-blue-600">Certificate Verification System</h1>
    <p class="text-gray-500">Certificates issued for {{.Site.EventName}} ({{.Site.EventDate}}). Scan the QR code on your certificate or search by identifier.</p>
  </div>
  <div class="mb-6">
    <input id="cert-search" type="text" placeholder="Search by certificate ID or name…"
      class="w-full border border-gray-300 rounded px-3 py-2 mb-4"
      oninput="filterCerts(this.value)">
    <ul id="cert-list" class="divide-y divide-gray-200">
    {{range .Records}}
      <li class="py-2 flex justify-between" data-id="{{.ID}}" data-name="{{.Name}}">
        <a href="verify/{{.ID}}.html" class="text-blue-600 hover:underline text-sm">{{.ID}}</a>
        <span class="text-gray-700">{{.Name}}</span>
      </li>
    {{end}}
    </ul>
    <p class="text-sm text-gray-400 mt-4">{{.Count}} certificates issued.</p>
  </div>
  <div class="text-center">
    <p class="text-sm text-gray-400">Powered by QR Certificate Generator</p>
  </div>
  <script>
    function filterCerts(q) {
      q = q.toLowerCase();
      document.querySelectorAll('#cert-list li').forEach(function (li) {
        var hit = li.dataset.id.toLowerCase().indexOf(q) !== -1 ||
                  li.dataset.name.toLowerCase().indexOf(q) !== -1;
        li.style.display = hit ? '' : 'none';
      });
    }
  </script>
</div>
</body>
</html>
`

const verifyRedirectHTML = `<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="UTF-8">
<meta name="viewport" content="width=device-width, initial-scale=1.0">
<title>Verifying Certificate...</title>
<link href="https://cdn.jsdelivr.net/npm/tailwindcss@2.2.19/dist/tailwind.min.css" rel="stylesheet">
<script>
  document.addEventListener('DOMContentLoaded', function () {
    var certId = new URLSearchParams(window.location.search).get('id');
    if (certId) {
      window.location.href = 'verify/' + certId + '.html';
    } else {
      document.getElementById('error-message').style.display = 'block';
    }
  });
</script>
</head>
<body class="bg-gray-100 min-h-screen flex items-center justify-center p-4">
<div class="bg-white rounded-lg shadow-xl p-8 max-w-lg w-full">
  <div class="text-center mb-8">
    <h1 class="text-2xl font-bold text-blue-600">Verifying Certificate...</h1>
    <p class="text-gray-500">Please wait while we redirect you to the verification page.</p>
  </div>
  <div id="error-message" class="mb-6 hidden">
    <p class="text-center text-red-600">Invalid certificate ID. Please scan the QR code again.</p>
  </div>
</div>
</body>
</html>
`
