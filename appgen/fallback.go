package appgen

import (
	"fmt"
	"html"
	"strings"
)

const fallbackHTML = `<!DOCTYPE html>
<html lang="en">
<head>
    <meta charset="UTF-8">
    <meta name="viewport" content="width=device-width, initial-scale=1.0">
    <title>Generated App</title>
    <link href="https://cdn.jsdelivr.net/npm/bootstrap@5.3.0/dist/css/bootstrap.min.css" rel="stylesheet">
    <style>
        body {
            padding: 2rem;
            background: linear-gradient(135deg, #667eea 0%%, #764ba2 100%%);
            min-height: 100vh;
        }
        .container {
            background: white;
            border-radius: 10px;
            padding: 2rem;
            box-shadow: 0 10px 30px rgba(0,0,0,0.2);
        }
    </style>
</head>
<body>
    <div class="container">
        <h1 class="mb-4">Generated Application</h1>
        <div class="alert alert-info">
            <h5>Brief:</h5>
            <p>%s</p>
        </div>
        <div id="app-content">
            <p>Loading...</p>
        </div>
    </div>
    <script>
        console.log('App initialized');
    </script>
</body>
</html>
`

const fallbackReadme = `# Generated Application

## Overview
This application was automatically generated based on the following brief:

%s

## Features
- Single-page web application
- Bootstrap 5 UI
- Responsive design

## Usage
Open ` + "`index.html`" + ` in a web browser or visit the GitHub Pages URL.

## Checks
The following checks will be validated:
%s

## License
MIT License
`

func fallbackPages(brief string, checks []string) (indexHTML string, readme string) {
	var list []string
	for _, c := range checks {
		list = append(list, "- "+c)
	}
	indexHTML = fmt.Sprintf(fallbackHTML, html.EscapeString(brief))
	readme = fmt.Sprintf(fallbackReadme, brief, strings.Join(list, "\n"))
	return indexHTML, readme
}
