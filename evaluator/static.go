package evaluator

import (
	"bytes"
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/programme-lv/pagesforge/course"
	"golang.org/x/net/html"
)

var (
	hashSelector = regexp.MustCompile(`#([A-Za-z][\w-]*)`)
	quotedID     = regexp.MustCompile(`(?i)\bid\s+['"]([\w-]+)['"]`)
)

// checkElementID returns the element id a check refers to, written either
// as #id or as id 'name'.
func checkElementID(check string) string {
	if m := hashSelector.FindStringSubmatch(check); m != nil {
		return m[1]
	}
	if m := quotedID.FindStringSubmatch(check); m != nil {
		return m[1]
	}
	return ""
}

type htmlFacts struct {
	doctype  bool
	title    string
	viewport bool
	ids      map[string]bool
}

func inspectHTML(content []byte) (htmlFacts, error) {
	doc, err := html.Parse(bytes.NewReader(content))
	if err != nil {
		return htmlFacts{}, err
	}
	facts := htmlFacts{ids: map[string]bool{}}
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		switch n.Type {
		case html.DoctypeNode:
			facts.doctype = strings.EqualFold(n.Data, "html")
		case html.ElementNode:
			for _, a := range n.Attr {
				if a.Key == "id" && a.Val != "" {
					facts.ids[a.Val] = true
				}
			}
			switch n.Data {
			case "title":
				if facts.title == "" && n.FirstChild != nil {
					facts.title = strings.TrimSpace(n.FirstChild.Data)
				}
			case "meta":
				if attr(n, "name") == "viewport" && attr(n, "content") != "" {
					facts.viewport = true
				}
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)
	return facts, nil
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}

// checkStatic scores index.html without running it. Every heuristic is one
// check so the family score is passed/total.
func (e *Evaluator) checkStatic(ctx context.Context, subm course.Submission, checks []string) []course.CheckResult {
	content, reason, err := e.fetch(ctx, subm, "index.html")
	if err != nil {
		return []course.CheckResult{outcome(course.CheckStatic, "index.html", false, reason, err.Error())}
	}
	return staticChecks(content, checks)
}

func staticChecks(content []byte, checks []string) []course.CheckResult {
	facts, err := inspectHTML(content)
	if err != nil {
		return []course.CheckResult{outcome(course.CheckStatic, "index.html", false, "index.html does not parse", err.Error())}
	}

	lower := strings.ToLower(string(content))
	localRefs := strings.Contains(lower, "localhost") || strings.Contains(lower, "127.0.0.1")

	out := []course.CheckResult{
		outcome(course.CheckStatic, "HTML5 doctype", facts.doctype,
			pick(facts.doctype, "Doctype declared", "Missing <!DOCTYPE html>"), ""),
		outcome(course.CheckStatic, "Page title", facts.title != "",
			pick(facts.title != "", "Title present", "Missing or empty <title>"), "Title: "+facts.title),
		outcome(course.CheckStatic, "Viewport meta", facts.viewport,
			pick(facts.viewport, "Viewport meta present", "Missing viewport meta tag"), ""),
		outcome(course.CheckStatic, "No localhost references", !localRefs,
			pick(!localRefs, "No local URLs", "References localhost"), ""),
	}

	seen := map[string]bool{}
	for _, c := range checks {
		id := checkElementID(c)
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		found := facts.ids[id]
		out = append(out, outcome(course.CheckStatic, "#"+id+" in markup", found,
			pick(found, fmt.Sprintf("Element #%s declared", id), fmt.Sprintf("Element #%s not declared", id)), c))
	}
	return out
}

func pick(cond bool, yes, no string) string {
	if cond {
		return yes
	}
	return no
}
