package appgen

import (
	"fmt"
	"strings"
	"time"
	"unicode/utf8"
)

const systemPrompt = `You are an expert web developer. Generate a complete, production-ready single-page web application based on the requirements.

Requirements:
1. Create a single HTML file (index.html) that is self-contained
2. Use modern JavaScript (ES6+) and best practices
3. Include all CSS inline or use CDN links for frameworks
4. Use CDN links for any required libraries (Bootstrap, jQuery, marked.js, highlight.js, etc.)
5. Ensure the app is fully functional and meets all specified checks
6. Add proper error handling and user feedback
7. Make the UI clean, professional, and responsive
8. Include comments explaining key sections

Return ONLY a JSON object with this structure:
{
  "index.html": "full HTML content here",
  "README.md": "comprehensive README with setup, usage, and explanation"
}

Do not include any other text or explanation outside the JSON.`

const previewLen = 200

func userPrompt(brief string, checks []string, atts []Decoded) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Brief: %s\n\n", brief)
	b.WriteString("Checks that will be run:\n")
	for _, c := range checks {
		fmt.Fprintf(&b, "- %s\n", c)
	}
	if len(atts) > 0 {
		b.WriteString("\nAttachments provided:\n")
		for _, a := range atts {
			fmt.Fprintf(&b, "- %s (%s)\n", a.Name, a.Mime)
			fmt.Fprintf(&b, "  Content preview: %s...\n", preview(a.Content))
		}
	}
	b.WriteString("\nGenerate a complete web application that satisfies all requirements and checks.")
	return b.String()
}

func preview(content []byte) string {
	if !utf8.Valid(content) {
		return "(binary)"
	}
	s := string(content)
	if len(s) <= previewLen {
		return s
	}
	// cut on a rune boundary
	cut := previewLen
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}

func MITLicense(now time.Time) string {
	return fmt.Sprintf(`MIT License

Copyright (c) %d

Permission is hereby granted, free of charge, to any person obtaining a copy
of this software and associated documentation files (the "Software"), to deal
in the Software without restriction, including without limitation the rights
to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
copies of the Software, and to permit persons to whom the Software is
furnished to do so, subject to the following conditions:

The above copyright notice and this permission notice shall be included in all
copies or substantial portions of the Software.

THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
SOFTWARE.
`, now.Year())
}
