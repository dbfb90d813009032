package parser

import (
	"fmt"
	"maps"
	"slices"
	"strings"

	"github.com/ombra-web/ombra/internal/renderctx"
)

// ParamSpec declares one named parameter of a tag signature. A parameter
// without Required uses Default when absent.
type ParamSpec struct {
	Name     string
	Required bool
	Default  any
}

// FlagSet is the resolved flag view handed to a tag's render function: the
// full allow-list, presence of every allowed flag, and the flags actually
// given, in that order.
type FlagSet struct {
	Allowed []string
	Present map[string]bool
	Set     []string
}

// Has reports whether a flag was given.
func (f FlagSet) Has(name string) bool { return f.Present[name] }

// KV is one keyword argument. An empty Key marks a spread expression whose
// resolved map merges into the keyword arguments in place.
type KV struct {
	Key  string
	Expr *Expression
}

// Args holds the still-unevaluated arguments of one tag occurrence.
type Args struct {
	Positional []*Expression
	Keyword    []KV
	Flags      FlagSet
}

// spreadPrefix introduces a spread argument: {% component "x" ...attrs %}.
const spreadPrefix = "..."

// keyCharset beyond word characters; supports HTML-attribute-like keys
// (data-id, @click.stop, x-on:click, #ref).
const keyExtraChars = "-:@.#"

// SplitBits splits a tag's content on whitespace, keeping quoted regions
// (with backslash escapes) intact.
func SplitBits(content string) []string {
	var bits []string
	var cur strings.Builder
	var quote byte
	for i := 0; i < len(content); i++ {
		c := content[i]
		switch {
		case quote != 0:
			cur.WriteByte(c)
			if c == '\\' && i+1 < len(content) {
				i++
				cur.WriteByte(content[i])
			} else if c == quote {
				quote = 0
			}
		case c == '"' || c == '\'':
			quote = c
			cur.WriteByte(c)
		case c == ' ' || c == '\t' || c == '\n' || c == '\r':
			if cur.Len() > 0 {
				bits = append(bits, cur.String())
				cur.Reset()
			}
		default:
			cur.WriteByte(c)
		}
	}
	if cur.Len() > 0 {
		bits = append(bits, cur.String())
	}
	return bits
}

// ParseArgs turns the whitespace bits of one tag body into deferred
// positional and keyword expressions plus resolved flags, enforcing the
// ordering and well-formedness rules shared by every tag.
func ParseArgs(tag string, line int, bits []string, spec *TagSpec) (*Args, error) {
	args := &Args{
		Flags: FlagSet{
			Allowed: spec.Flags,
			Present: make(map[string]bool, len(spec.Flags)),
		},
	}
	for _, f := range spec.Flags {
		args.Flags.Present[f] = false
	}

	keywordSeen := false
	seenKeys := map[string]bool{}
	for _, bit := range bits {
		if isFlag(bit, spec.Flags) {
			if args.Flags.Present[bit] {
				return nil, tagErrf(tag, line, "flag %q given twice", bit)
			}
			args.Flags.Present[bit] = true
			args.Flags.Set = append(args.Flags.Set, bit)
			continue
		}
		if strings.HasPrefix(bit, spreadPrefix) {
			src := strings.TrimPrefix(bit, spreadPrefix)
			if src == "" {
				return nil, tagErrf(tag, line, "spread operator missing an expression")
			}
			expr, err := CompileExpr(src, line)
			if err != nil {
				return nil, err
			}
			args.Keyword = append(args.Keyword, KV{Expr: expr})
			keywordSeen = true
			continue
		}
		key, val, isKeyword := splitKeyword(bit)
		if !isKeyword {
			if keywordSeen {
				return nil, tagErrf(tag, line, "positional argument follows keyword argument")
			}
			expr, err := CompileExpr(bit, line)
			if err != nil {
				return nil, err
			}
			args.Positional = append(args.Positional, expr)
			continue
		}
		if !validKey(key) {
			return nil, tagErrf(tag, line, "malformed keyword identifier %q", key)
		}
		if seenKeys[key] {
			return nil, tagErrf(tag, line, "duplicate keyword argument %q", key)
		}
		seenKeys[key] = true
		expr, err := CompileExpr(val, line)
		if err != nil {
			return nil, err
		}
		args.Keyword = append(args.Keyword, KV{Key: key, Expr: expr})
		keywordSeen = true
	}
	return args, nil
}

// splitKeyword splits key=value at the first unquoted equals sign. A bit
// starting with a quote is always positional.
func splitKeyword(bit string) (key, value string, ok bool) {
	if bit == "" || bit[0] == '"' || bit[0] == '\'' {
		return "", "", false
	}
	i := strings.IndexByte(bit, '=')
	if i <= 0 {
		return "", "", false
	}
	// "==" and "!=" and ">=" style operators inside an expression bit must
	// not read as keyword syntax.
	if i+1 < len(bit) && bit[i+1] == '=' {
		return "", "", false
	}
	if bit[i-1] == '!' || bit[i-1] == '<' || bit[i-1] == '>' {
		return "", "", false
	}
	return bit[:i], bit[i+1:], true
}

func isFlag(bit string, allowed []string) bool {
	for _, f := range allowed {
		if bit == f {
			return true
		}
	}
	return false
}

func validKey(key string) bool {
	hasWord := false
	for _, r := range key {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_':
			hasWord = true
		case strings.ContainsRune(keyExtraChars, r):
		default:
			return false
		}
	}
	return hasWord
}

// BoundArgs is the evaluated view of a tag's arguments: declared
// parameters by name, plus extra keyword arguments when the tag accepts
// them.
type BoundArgs struct {
	Params map[string]any
	Extra  map[string]any
	Flags  FlagSet
}

// Bind evaluates all argument expressions against ctx and binds them to
// the tag's declared parameter names. Spread maps merge in place, later
// keys overriding earlier spread or keyword values; a spread or keyword
// colliding with a positionally bound parameter is an error.
func (a *Args) Bind(tag string, line int, spec *TagSpec, ctx *renderctx.Context) (*BoundArgs, error) {
	bound := &BoundArgs{
		Params: make(map[string]any, len(spec.Params)),
		Extra:  map[string]any{},
		Flags:  a.Flags,
	}
	positional := map[string]bool{}

	if len(a.Positional) > len(spec.Params) {
		return nil, tagErrf(tag, line, "takes at most %d positional arguments, got %d",
			len(spec.Params), len(a.Positional))
	}
	for i, expr := range a.Positional {
		v, err := expr.Resolve(ctx)
		if err != nil {
			return nil, err
		}
		name := spec.Params[i].Name
		bound.Params[name] = v
		positional[name] = true
	}

	assign := func(key string, v any) error {
		if positional[key] {
			return tagErrf(tag, line, "got multiple values for argument %q", key)
		}
		if spec.paramNamed(key) != nil {
			bound.Params[key] = v
			return nil
		}
		if !spec.AcceptsExtra {
			return tagErrf(tag, line, "unexpected keyword argument %q", key)
		}
		bound.Extra[key] = v
		return nil
	}

	for _, kv := range a.Keyword {
		v, err := kv.Expr.Resolve(ctx)
		if err != nil {
			return nil, err
		}
		if kv.Key != "" {
			if err := assign(kv.Key, v); err != nil {
				return nil, err
			}
			continue
		}
		spread, err := spreadMap(v)
		if err != nil {
			return nil, tagErrf(tag, line, "spread of %q: %v", kv.Expr.Src, err)
		}
		for _, k := range spread.keys {
			if err := assign(k, spread.values[k]); err != nil {
				return nil, err
			}
		}
	}

	for _, p := range spec.Params {
		if _, ok := bound.Params[p.Name]; ok {
			continue
		}
		if p.Required {
			return nil, tagErrf(tag, line, "missing required argument %q", p.Name)
		}
		bound.Params[p.Name] = p.Default
	}
	return bound, nil
}

type orderedMap struct {
	keys   []string
	values map[string]any
}

// spreadMap coerces a spread value into string-keyed entries with a
// deterministic order.
func spreadMap(v any) (*orderedMap, error) {
	om := &orderedMap{values: map[string]any{}}
	switch m := v.(type) {
	case nil:
		return om, nil
	case map[string]any:
		om.keys = slices.Sorted(maps.Keys(m))
		for _, k := range om.keys {
			om.values[k] = m[k]
		}
		return om, nil
	case map[any]any:
		tmp := make(map[string]any, len(m))
		for k, val := range m {
			ks, ok := k.(string)
			if !ok {
				return nil, fmt.Errorf("non-string key %v (%T)", k, k)
			}
			tmp[ks] = val
		}
		om.keys = slices.Sorted(maps.Keys(tmp))
		for _, k := range om.keys {
			om.values[k] = tmp[k]
		}
		return om, nil
	default:
		return nil, fmt.Errorf("expected a mapping, got %T", v)
	}
}
