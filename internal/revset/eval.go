package revset

import (
	"fmt"
	"slices"
	"sort"
	"strconv"

	"github.com/zhubert/weft/internal/engine"
	errs "github.com/zhubert/weft/internal/errors"
)

// SymbolResolver turns a bare symbol into commits.
type SymbolResolver interface {
	ResolveSymbol(name string) ([]engine.CommitID, error)
}

// Context is everything an expression is evaluated against.
type Context struct {
	Store     engine.Store
	Index     *engine.Index
	View      *engine.View
	Workspace string
	UserEmail string
	Aliases   *AliasTable
	Resolver  SymbolResolver
}

// Set is a set of visible commits.
type Set map[engine.CommitID]bool

// Result is an evaluated revset.
type Result struct {
	index *engine.Index
	set   Set
}

// Set returns the members of the result.
func (r *Result) Set() Set { return r.set }

// Len returns the number of members.
func (r *Result) Len() int { return len(r.set) }

// Contains reports whether id is a member.
func (r *Result) Contains(id engine.CommitID) bool { return r.set[id] }

// IDs returns the members, newest first.
func (r *Result) IDs() []engine.CommitID {
	out := make([]engine.CommitID, 0, len(r.set))
	for id := range r.set {
		out = append(out, id)
	}
	r.index.SortByPosition(out)
	return out
}

// Graph returns a topologically grouped walk over the members.
func (r *Result) Graph() *engine.GraphIterator {
	return r.index.Graph(r.set)
}

// Evaluate parses, expands and evaluates expr.
func Evaluate(ctx *Context, expr string) (*Result, error) {
	node, err := Parse(expr)
	if err != nil {
		return nil, errs.RevsetInvalid(expr, err)
	}
	return EvaluateNode(ctx, node)
}

// EvaluateNode expands aliases in node and evaluates it.
func EvaluateNode(ctx *Context, node *Node) (*Result, error) {
	expanded, err := ctx.Aliases.Expand(node)
	if err != nil {
		return nil, errs.RevsetInvalid(node.String(), err)
	}
	e := &evaluator{ctx: ctx}
	set, err := e.eval(expanded)
	if err != nil {
		return nil, err
	}
	return &Result{index: ctx.Index, set: set}, nil
}

type evaluator struct {
	ctx *Context
}

func (e *evaluator) all() Set {
	out := Set{}
	for _, id := range e.ctx.Index.All() {
		out[id] = true
	}
	return out
}

func (e *evaluator) fromIDs(ids []engine.CommitID) Set {
	out := Set{}
	for _, id := range ids {
		if e.ctx.Index.Has(id) {
			out[id] = true
		}
	}
	return out
}

func keys(s Set) []engine.CommitID {
	out := make([]engine.CommitID, 0, len(s))
	for id := range s {
		out = append(out, id)
	}
	return out
}

func invalid(n *Node, format string, args ...any) error {
	return errs.E(errs.Op("revset.Evaluate"), errs.KindInvalid, fmt.Sprintf(format, args...)+fmt.Sprintf(" at %d", n.Span.Start))
}

func (e *evaluator) eval(n *Node) (Set, error) {
	switch n.Kind {
	case KindSymbol:
		ids, err := e.ctx.Resolver.ResolveSymbol(n.Name)
		if err != nil {
			return nil, err
		}
		return e.fromIDs(ids), nil
	case KindString:
		ids, err := e.ctx.Resolver.ResolveSymbol(n.Name)
		if err != nil {
			return nil, err
		}
		return e.fromIDs(ids), nil
	case KindPattern:
		return nil, invalid(n, "pattern %s:%q is only valid as a function argument", n.Name, n.Value)
	case KindUnary:
		inner, err := e.eval(n.Left)
		if err != nil {
			return nil, err
		}
		switch n.Op {
		case "~":
			return difference(e.all(), inner), nil
		case "::":
			return e.ctx.Index.Ancestors(keys(inner), -1), nil
		case "..":
			anc := e.ctx.Index.Ancestors(keys(inner), -1)
			delete(anc, engine.RootCommitID)
			return anc, nil
		}
	case KindPostfix:
		inner, err := e.eval(n.Left)
		if err != nil {
			return nil, err
		}
		switch n.Op {
		case "::":
			return e.ctx.Index.Descendants(keys(inner)), nil
		case "..":
			return difference(e.all(), e.ctx.Index.Ancestors(keys(inner), -1)), nil
		case "-":
			return e.parents(inner), nil
		case "+":
			return e.children(inner), nil
		}
	case KindBinary:
		left, err := e.eval(n.Left)
		if err != nil {
			return nil, err
		}
		right, err := e.eval(n.Right)
		if err != nil {
			return nil, err
		}
		switch n.Op {
		case "|":
			return union(left, right), nil
		case "&":
			return intersection(left, right), nil
		case "~":
			return difference(left, right), nil
		case "::":
			return intersection(e.ctx.Index.Descendants(keys(left)), e.ctx.Index.Ancestors(keys(right), -1)), nil
		case "..":
			return difference(e.ctx.Index.Ancestors(keys(right), -1), e.ctx.Index.Ancestors(keys(left), -1)), nil
		}
	case KindCall:
		return e.call(n)
	}
	return nil, invalid(n, "unsupported expression %s", n)
}

func (e *evaluator) parents(s Set) Set {
	out := Set{}
	for id := range s {
		c, ok := e.ctx.Index.Commit(id)
		if !ok {
			continue
		}
		for _, p := range c.Parents {
			out[p] = true
		}
	}
	return out
}

func (e *evaluator) children(s Set) Set {
	out := Set{}
	for id := range s {
		for _, ch := range e.ctx.Index.Children(id) {
			out[ch] = true
		}
	}
	return out
}

func (e *evaluator) argCount(n *Node, min, max int) error {
	if len(n.Args) < min || len(n.Args) > max {
		if min == max {
			return invalid(n, "%s() takes %d arguments, got %d", n.Name, min, len(n.Args))
		}
		return invalid(n, "%s() takes %d to %d arguments, got %d", n.Name, min, max, len(n.Args))
	}
	return nil
}

func (e *evaluator) evalArg(n *Node, i int) (Set, error) {
	return e.eval(n.Args[i])
}

func (e *evaluator) intArg(n *Node, i int) (int, error) {
	a := n.Args[i]
	if a.Kind != KindSymbol && a.Kind != KindString {
		return 0, invalid(a, "%s() expects a number", n.Name)
	}
	v, err := strconv.Atoi(a.Name)
	if err != nil || v < 0 {
		return 0, invalid(a, "%s() expects a non-negative number, got %q", n.Name, a.Name)
	}
	return v, nil
}

func (e *evaluator) patternArg(n *Node, i int, fallback PatternKind) (Pattern, error) {
	if i >= len(n.Args) {
		return Pattern{Kind: PatternAll}, nil
	}
	p, err := PatternFromNode(n.Args[i], fallback)
	if err != nil {
		return Pattern{}, invalid(n.Args[i], "%v", err)
	}
	return p, nil
}

func (e *evaluator) call(n *Node) (Set, error) {
	idx := e.ctx.Index
	view := e.ctx.View
	switch n.Name {
	case "all":
		if err := e.argCount(n, 0, 0); err != nil {
			return nil, err
		}
		return e.all(), nil
	case "none":
		if err := e.argCount(n, 0, 0); err != nil {
			return nil, err
		}
		return Set{}, nil
	case "root":
		if err := e.argCount(n, 0, 0); err != nil {
			return nil, err
		}
		return Set{engine.RootCommitID: true}, nil
	case "visible_heads":
		if err := e.argCount(n, 0, 0); err != nil {
			return nil, err
		}
		return idx.Heads(e.all()), nil
	case "git_head":
		if err := e.argCount(n, 0, 0); err != nil {
			return nil, err
		}
		if view.GitHead == "" {
			return Set{}, nil
		}
		return e.fromIDs([]engine.CommitID{view.GitHead}), nil
	case "heads", "roots", "descendants", "parents", "children", "present":
		if err := e.argCount(n, 1, 1); err != nil {
			return nil, err
		}
		inner, err := e.evalArg(n, 0)
		if n.Name == "present" {
			if errs.Is(err, errs.KindNotFound) {
				return Set{}, nil
			}
			return inner, err
		}
		if err != nil {
			return nil, err
		}
		switch n.Name {
		case "heads":
			return idx.Heads(inner), nil
		case "roots":
			return idx.Roots(inner), nil
		case "descendants":
			return idx.Descendants(keys(inner)), nil
		case "parents":
			return e.parents(inner), nil
		default:
			return e.children(inner), nil
		}
	case "ancestors":
		if err := e.argCount(n, 1, 2); err != nil {
			return nil, err
		}
		inner, err := e.evalArg(n, 0)
		if err != nil {
			return nil, err
		}
		depth := -1
		if len(n.Args) == 2 {
			if depth, err = e.intArg(n, 1); err != nil {
				return nil, err
			}
		}
		if depth == 0 {
			return Set{}, nil
		}
		return idx.Ancestors(keys(inner), depth), nil
	case "latest":
		if err := e.argCount(n, 1, 2); err != nil {
			return nil, err
		}
		inner, err := e.evalArg(n, 0)
		if err != nil {
			return nil, err
		}
		count := 1
		if len(n.Args) == 2 {
			if count, err = e.intArg(n, 1); err != nil {
				return nil, err
			}
		}
		return e.latest(inner, count), nil
	case "bookmarks":
		if err := e.argCount(n, 0, 1); err != nil {
			return nil, err
		}
		pat, err := e.patternArg(n, 0, PatternSubstring)
		if err != nil {
			return nil, err
		}
		var ids []engine.CommitID
		for name, target := range view.LocalBookmarks {
			if pat.Match(name) {
				ids = append(ids, target)
			}
		}
		return e.fromIDs(ids), nil
	case "remote_bookmarks":
		if err := e.argCount(n, 0, 2); err != nil {
			return nil, err
		}
		pat, err := e.patternArg(n, 0, PatternSubstring)
		if err != nil {
			return nil, err
		}
		remotePat, err := e.patternArg(n, 1, PatternSubstring)
		if err != nil {
			return nil, err
		}
		var ids []engine.CommitID
		for remote, refs := range view.RemoteBookmarks {
			if !remotePat.Match(remote) {
				continue
			}
			for name, ref := range refs {
				if pat.Match(name) {
					ids = append(ids, ref.Target)
				}
			}
		}
		return e.fromIDs(ids), nil
	case "tags":
		if err := e.argCount(n, 0, 1); err != nil {
			return nil, err
		}
		pat, err := e.patternArg(n, 0, PatternSubstring)
		if err != nil {
			return nil, err
		}
		var ids []engine.CommitID
		for name, target := range view.Tags {
			if pat.Match(name) {
				ids = append(ids, target)
			}
		}
		return e.fromIDs(ids), nil
	case "working_copies":
		if err := e.argCount(n, 0, 0); err != nil {
			return nil, err
		}
		var ids []engine.CommitID
		for _, id := range view.WCCommits {
			ids = append(ids, id)
		}
		return e.fromIDs(ids), nil
	case "description", "author", "mine", "merges", "conflicts", "empty":
		return e.filter(n)
	}
	return nil, errs.E(errs.Op("revset.Evaluate"), errs.KindInvalid, fmt.Sprintf("function %q doesn't exist", n.Name))
}

func (e *evaluator) filter(n *Node) (Set, error) {
	var pred func(c *engine.Commit) (bool, error)
	switch n.Name {
	case "description", "author":
		if err := e.argCount(n, 1, 1); err != nil {
			return nil, err
		}
		pat, err := e.patternArg(n, 0, PatternSubstring)
		if err != nil {
			return nil, err
		}
		if n.Name == "description" {
			pred = func(c *engine.Commit) (bool, error) { return pat.Match(c.Description), nil }
		} else {
			pred = func(c *engine.Commit) (bool, error) {
				return pat.Match(c.Author.Name) || pat.Match(c.Author.Email), nil
			}
		}
	case "mine":
		if err := e.argCount(n, 0, 0); err != nil {
			return nil, err
		}
		email := e.ctx.UserEmail
		pred = func(c *engine.Commit) (bool, error) { return email != "" && c.Author.Email == email, nil }
	case "merges":
		if err := e.argCount(n, 0, 0); err != nil {
			return nil, err
		}
		pred = func(c *engine.Commit) (bool, error) { return c.IsMerge(), nil }
	case "conflicts":
		if err := e.argCount(n, 0, 0); err != nil {
			return nil, err
		}
		pred = func(c *engine.Commit) (bool, error) {
			t, err := e.ctx.Store.ReadTree(c.Tree)
			if err != nil {
				return false, err
			}
			return t.HasConflicts(), nil
		}
	case "empty":
		if err := e.argCount(n, 0, 0); err != nil {
			return nil, err
		}
		pred = func(c *engine.Commit) (bool, error) {
			if c.IsRoot() {
				return true, nil
			}
			base, err := engine.MergedParentTree(e.ctx.Store, c.Parents)
			if err != nil {
				return false, err
			}
			return base == c.Tree, nil
		}
	}
	out := Set{}
	for _, id := range e.ctx.Index.All() {
		c, _ := e.ctx.Index.Commit(id)
		ok, err := pred(c)
		if err != nil {
			return nil, errs.E(errs.Op("revset.Evaluate"), errs.KindIO, err)
		}
		if ok {
			out[id] = true
		}
	}
	return out, nil
}

func (e *evaluator) latest(s Set, count int) Set {
	ids := keys(s)
	sort.Slice(ids, func(i, j int) bool {
		a, _ := e.ctx.Index.Commit(ids[i])
		b, _ := e.ctx.Index.Commit(ids[j])
		if !a.Committer.Timestamp.Equal(b.Committer.Timestamp) {
			return a.Committer.Timestamp.After(b.Committer.Timestamp)
		}
		ea, _ := e.ctx.Index.Entry(ids[i])
		eb, _ := e.ctx.Index.Entry(ids[j])
		return ea.Position > eb.Position
	})
	out := Set{}
	for _, id := range ids[:min(count, len(ids))] {
		out[id] = true
	}
	return out
}

func union(a, b Set) Set {
	out := make(Set, len(a)+len(b))
	for id := range a {
		out[id] = true
	}
	for id := range b {
		out[id] = true
	}
	return out
}

func intersection(a, b Set) Set {
	out := Set{}
	for id := range a {
		if b[id] {
			out[id] = true
		}
	}
	return out
}

func difference(a, b Set) Set {
	out := Set{}
	for id := range a {
		if !b[id] {
			out[id] = true
		}
	}
	return out
}

// Members returns the members of s sorted by id, for stable output.
func (s Set) Members() []engine.CommitID {
	out := keys(s)
	slices.Sort(out)
	return out
}

// IsNotFound reports whether err means a symbol did not resolve.
func IsNotFound(err error) bool {
	return errs.Is(err, errs.KindNotFound)
}

// IsAmbiguous reports whether err means a symbol resolved to several commits.
func IsAmbiguous(err error) bool {
	return errs.Is(err, errs.KindAmbiguous)
}
