package prompt

import (
	"fmt"
	"reflect"
	"strings"
)

// Template is a compiled prompt template. Compilation happens once; Render
// may be called concurrently because rendering never mutates the node tree.
type Template struct {
	nodes []node
}

// Compile parses the template source into a render tree. Supported syntax:
//
//	{{var}}                                value substitution
//	{{#if var}}...{{/if}}                  conditional
//	{{#if var}}...{{else}}...{{/if}}       conditional with alternative
//	{{#each list}}...{{/each}}             iteration; {{this}} is the item,
//	                                       map items expose their fields
func Compile(src string) (*Template, error) {
	tokens := tokenize(src)
	nodes, rest, err := parseNodes(tokens, "")
	if err != nil {
		return nil, err
	}
	if len(rest) > 0 {
		return nil, fmt.Errorf("unexpected closing tag {{%s}}", rest[0].tag)
	}
	return &Template{nodes: nodes}, nil
}

// Render substitutes vars into the compiled template.
func (t *Template) Render(vars map[string]any) string {
	var sb strings.Builder
	renderNodes(&sb, t.nodes, vars)
	return sb.String()
}

type token struct {
	text  string // literal text when tag is empty
	tag   string // trimmed tag content between {{ and }}
	isTag bool
}

func tokenize(src string) []token {
	var tokens []token
	for {
		open := strings.Index(src, "{{")
		if open < 0 {
			break
		}
		closing := strings.Index(src[open:], "}}")
		if closing < 0 {
			break
		}
		if open > 0 {
			tokens = append(tokens, token{text: src[:open]})
		}
		tag := strings.TrimSpace(src[open+2 : open+closing])
		tokens = append(tokens, token{tag: tag, isTag: true})
		src = src[open+closing+2:]
	}
	if src != "" {
		tokens = append(tokens, token{text: src})
	}
	return tokens
}

type node interface {
	render(sb *strings.Builder, scope map[string]any)
}

type textNode struct{ text string }

func (n textNode) render(sb *strings.Builder, _ map[string]any) { sb.WriteString(n.text) }

type varNode struct{ name string }

func (n varNode) render(sb *strings.Builder, scope map[string]any) {
	if v, ok := lookup(scope, n.name); ok && v != nil {
		fmt.Fprintf(sb, "%v", v)
	}
}

type ifNode struct {
	name      string
	thenNodes []node
	elseNodes []node
}

func (n ifNode) render(sb *strings.Builder, scope map[string]any) {
	v, _ := lookup(scope, n.name)
	if truthy(v) {
		renderNodes(sb, n.thenNodes, scope)
	} else {
		renderNodes(sb, n.elseNodes, scope)
	}
}

type eachNode struct {
	name string
	body []node
}

func (n eachNode) render(sb *strings.Builder, scope map[string]any) {
	v, ok := lookup(scope, n.name)
	if !ok || v == nil {
		return
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		return
	}
	for i := 0; i < rv.Len(); i++ {
		item := rv.Index(i).Interface()
		itemScope := make(map[string]any, len(scope)+2)
		for k, val := range scope {
			itemScope[k] = val
		}
		itemScope["this"] = item
		itemScope["index"] = i
		if m, ok := item.(map[string]any); ok {
			for k, val := range m {
				itemScope[k] = val
			}
		}
		renderNodes(sb, n.body, itemScope)
	}
}

func renderNodes(sb *strings.Builder, nodes []node, scope map[string]any) {
	for _, n := range nodes {
		n.render(sb, scope)
	}
}

// parseNodes consumes tokens until it hits the closing tag for terminator
// ("/if", "/each") or, at top level (terminator == ""), the end of input.
// "else" also stops an "/if" block so the caller can parse the alternative.
func parseNodes(tokens []token, terminator string) ([]node, []token, error) {
	var nodes []node
	for len(tokens) > 0 {
		tok := tokens[0]

		if !tok.isTag {
			nodes = append(nodes, textNode{text: tok.text})
			tokens = tokens[1:]
			continue
		}

		switch {
		case tok.tag == terminator, terminator == "/if" && tok.tag == "else":
			return nodes, tokens, nil
		case strings.HasPrefix(tok.tag, "#if "):
			name := strings.TrimSpace(strings.TrimPrefix(tok.tag, "#if"))
			thenNodes, rest, err := parseNodes(tokens[1:], "/if")
			if err != nil {
				return nil, nil, err
			}
			var elseNodes []node
			if len(rest) > 0 && rest[0].tag == "else" {
				elseNodes, rest, err = parseNodes(rest[1:], "/if")
				if err != nil {
					return nil, nil, err
				}
			}
			if len(rest) == 0 || rest[0].tag != "/if" {
				return nil, nil, fmt.Errorf("unclosed {{#if %s}}", name)
			}
			nodes = append(nodes, ifNode{name: name, thenNodes: thenNodes, elseNodes: elseNodes})
			tokens = rest[1:]
		case strings.HasPrefix(tok.tag, "#each "):
			name := strings.TrimSpace(strings.TrimPrefix(tok.tag, "#each"))
			body, rest, err := parseNodes(tokens[1:], "/each")
			if err != nil {
				return nil, nil, err
			}
			if len(rest) == 0 || rest[0].tag != "/each" {
				return nil, nil, fmt.Errorf("unclosed {{#each %s}}", name)
			}
			nodes = append(nodes, eachNode{name: name, body: body})
			tokens = rest[1:]
		case tok.tag == "/if" || tok.tag == "/each" || tok.tag == "else":
			return nil, tokens, fmt.Errorf("unexpected {{%s}}", tok.tag)
		default:
			nodes = append(nodes, varNode{name: tok.tag})
			tokens = tokens[1:]
		}
	}
	if terminator != "" {
		return nil, nil, fmt.Errorf("missing {{%s}}", terminator)
	}
	return nodes, tokens, nil
}

func lookup(scope map[string]any, name string) (any, bool) {
	v, ok := scope[name]
	return v, ok
}

func truthy(v any) bool {
	switch x := v.(type) {
	case nil:
		return false
	case bool:
		return x
	case string:
		return x != ""
	case int:
		return x != 0
	case int64:
		return x != 0
	case float64:
		return x != 0
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Slice, reflect.Array, reflect.Map:
		return rv.Len() > 0
	}
	return true
}
