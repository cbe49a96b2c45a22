package editor

import (
	"fmt"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// Document is a complete, self-contained page. Values are never patched in
// place; every edit produces a new Document.
type Document string

// State is what the browser editor holds: body markup, the accumulated style
// rules and inline script bodies.
type State struct {
	HTML    string   `json:"html"`
	CSS     string   `json:"css"`
	Scripts []string `json:"scripts"`
}

const documentShell = `<!DOCTYPE html>
<html lang="en">
<head>
  <meta charset="UTF-8">
  <meta name="viewport" content="width=device-width, initial-scale=1.0">
  <title>Exported Website</title>
  <script src="https://cdn.tailwindcss.com"></script>
  <style>
    %s
  </style>
</head>
<body>
  %s
  <script>
    %s
  </script>
</body>
</html>`

// Serialize wraps the editor state in the fixed page shell. Same state, same bytes.
func Serialize(s State) Document {
	return Document(fmt.Sprintf(documentShell, s.CSS, s.HTML, strings.Join(s.Scripts, "\n")))
}

// Parse loads a document the way the browser editor does on setComponents
// with keepScripts: body markup stays as is, style blocks become the CSS and
// inline scripts are lifted out. Script tags with a src stay in the body
// markup, except in the head where they belong to the shell.
func Parse(doc Document) (State, error) {
	root, err := html.Parse(strings.NewReader(string(doc)))
	if err != nil {
		return State{}, fmt.Errorf("parse document: %w", err)
	}

	var (
		state  State
		styles []string
		body   strings.Builder
	)

	var walk func(n *html.Node, inBody bool) error
	walk = func(n *html.Node, inBody bool) error {
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			if c.Type == html.ElementNode {
				switch c.DataAtom {
				case atom.Style:
					if text := strings.TrimSpace(textOf(c)); text != "" {
						styles = append(styles, text)
					}
					continue
				case atom.Script:
					if !hasAttr(c, "src") {
						if text := strings.TrimSpace(textOf(c)); text != "" {
							state.Scripts = append(state.Scripts, text)
						}
						continue
					}
				case atom.Body:
					if err := walk(c, true); err != nil {
						return err
					}
					continue
				}
			}

			if !inBody {
				if c.Type == html.ElementNode {
					if err := walk(c, false); err != nil {
						return err
					}
				}
				continue
			}
			if err := html.Render(&body, c); err != nil {
				return err
			}
		}
		return nil
	}

	if err := walk(root, false); err != nil {
		return State{}, fmt.Errorf("render body: %w", err)
	}

	state.HTML = strings.TrimSpace(body.String())
	state.CSS = strings.Join(styles, "\n")
	return state, nil
}

func textOf(n *html.Node) string {
	var sb strings.Builder
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.TextNode {
			sb.WriteString(c.Data)
		}
	}
	return sb.String()
}

func hasAttr(n *html.Node, key string) bool {
	for _, a := range n.Attr {
		if a.Key == key {
			return true
		}
	}
	return false
}
