// Package watch turns raw filesystem touches inside one or more git
// working trees into the typed signals the session manager consumes:
// repository entry, branch change, commit, and file modification.
package watch

import (
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"github.com/mateuslacerda/devpeace/internal/gitinspect"
)

// SignalKind identifies the kind of event a Signal reports.
type SignalKind int

const (
	SignalRepoEntry SignalKind = iota
	SignalBranchChange
	SignalCommit
	SignalFileModification
)

func (k SignalKind) String() string {
	switch k {
	case SignalRepoEntry:
		return "repo-entry"
	case SignalBranchChange:
		return "branch-change"
	case SignalCommit:
		return "commit"
	case SignalFileModification:
		return "file-modification"
	default:
		return "unknown"
	}
}

// Signal is a classified event emitted for one repository root.
type Signal struct {
	// CorrelationID identifies this signal across log lines emitted
	// while the session manager processes it.
	CorrelationID  string
	Kind           SignalKind
	Root           string
	Branch         string
	PreviousBranch string
	CommitID       string
	CommitMessage  string
	RelPath        string
}

// stamp assigns a fresh correlation id to every signal in sigs.
func stamp(sigs []Signal) []Signal {
	for i := range sigs {
		sigs[i].CorrelationID = uuid.NewString()
	}
	return sigs
}

type rootState struct {
	lastBranch  string
	sawBranch   bool
	seenCommits map[string]bool
	entered     bool
}

// Classifier holds the per-root state (last-seen branch, reported commit
// ids, entry flag) needed to turn raw touches into signals. It performs
// no filesystem watching itself; callers feed it events however they are
// observed (fsnotify, polling, or in tests, directly).
type Classifier struct {
	roots map[string]*rootState
}

// NewClassifier returns an empty classifier.
func NewClassifier() *Classifier {
	return &Classifier{roots: make(map[string]*rootState)}
}

func (c *Classifier) stateFor(root string) *rootState {
	s, ok := c.roots[root]
	if !ok {
		s = &rootState{seenCommits: make(map[string]bool)}
		c.roots[root] = s
	}
	return s
}

// RelPath reports path relative to root, and whether that path lies in
// root's own top-level .git directory (the returned rel is then relative
// to .git). A .git directory nested deeper in the tree is not detected.
func RelPath(root, path string) (rel string, isGit bool) {
	r, err := filepath.Rel(root, path)
	if err != nil {
		return "", false
	}
	r = filepath.ToSlash(r)
	if r == ".git" || strings.HasPrefix(r, ".git/") {
		return strings.TrimPrefix(strings.TrimPrefix(r, ".git"), "/"), true
	}
	return r, false
}

// Enter emits a repo-entry signal the first time root is touched, and
// seeds the branch baseline so the next HeadChanged call can detect a
// real change rather than the initial observation.
func (c *Classifier) Enter(root string) []Signal {
	state := c.stateFor(root)
	if state.entered {
		return nil
	}
	state.entered = true
	branch := gitinspect.CurrentBranch(root)
	state.lastBranch = branch
	state.sawBranch = true
	return stamp([]Signal{{Kind: SignalRepoEntry, Root: root, Branch: branch}})
}

// HeadChanged evaluates a write to .git/HEAD: it refreshes the current
// branch and emits branch-change iff it differs from the remembered
// value and a value was already remembered (the first observation is
// initialization, not a change).
func (c *Classifier) HeadChanged(root string) []Signal {
	if sig, ok := c.branchChange(root); ok {
		return stamp([]Signal{sig})
	}
	return nil
}

func (c *Classifier) branchChange(root string) (Signal, bool) {
	state := c.stateFor(root)
	branch := gitinspect.CurrentBranch(root)
	if !state.sawBranch {
		state.sawBranch = true
		state.lastBranch = branch
		return Signal{}, false
	}
	if branch == state.lastBranch {
		return Signal{}, false
	}
	prev := state.lastBranch
	state.lastBranch = branch
	return Signal{Kind: SignalBranchChange, Root: root, Branch: branch, PreviousBranch: prev}, true
}

// LogChanged evaluates a write to .git/logs/HEAD: it asks for the latest
// commit id, dedupes against ids already reported for this root, and on
// a new id emits commit with its message.
func (c *Classifier) LogChanged(root string) []Signal {
	state := c.stateFor(root)
	id := gitinspect.LatestCommit(root)
	if id == "" || state.seenCommits[id] {
		return nil
	}
	state.seenCommits[id] = true
	msg := gitinspect.CommitMessage(root, id)
	return stamp([]Signal{{Kind: SignalCommit, Root: root, CommitID: id, CommitMessage: msg}})
}

// FileChanged evaluates a write to a non-.git path. It performs the lazy
// branch-recheck first: if the branch has moved without a direct
// .git/HEAD write reaching the watch stream, branch-change is emitted
// ahead of the file-modification signal.
func (c *Classifier) FileChanged(root, relPath string) []Signal {
	var out []Signal
	if sig, ok := c.branchChange(root); ok {
		out = append(out, sig)
	}
	out = append(out, Signal{Kind: SignalFileModification, Root: root, RelPath: relPath})
	return stamp(out)
}

// Forget drops all state held for root, used when a repository stops
// being watched.
func (c *Classifier) Forget(root string) {
	delete(c.roots, root)
}
