package hooks

import (
	"fmt"
	"os/exec"
	"regexp"
	"strings"
	"sync"

	"github.com/mattn/go-shellwords"

	"github.com/cuemby/certmgr/pkg/log"
)

// placeholderPattern matches the {domain}, {file}, ... lifecycle variables
// a hook command argv may reference.
var placeholderPattern = regexp.MustCompile(`\{([a-zA-Z0-9_]+)\}`)

type invocation struct {
	hookName string
	argv     []string
}

// Runner owns the configured hook commands and an insertion-ordered queue
// of resolved invocations awaiting Call. Names are tracked in a separate
// slice because Go maps don't preserve insertion order, satisfying the
// "ordered hook map" requirement without a third-party ordered-map type.
type Runner struct {
	mu       sync.Mutex
	commands map[string][]string
	names    []string
	byName   map[string][]invocation
}

// NewRunner creates a Runner backed by the configured hook-name -> command
// list mapping (a name may have zero, one, or several commands queued per
// Add call, per the source hook configuration).
func NewRunner(commands map[string][]string) *Runner {
	return &Runner{
		commands: commands,
		byName:   make(map[string][]invocation),
	}
}

// Add resolves the commands configured for name by tokenizing each with
// shell-style splitting and substituting kwargs into argv placeholders. A
// name with no configured commands is a no-op. A placeholder with no
// matching kwarg is logged as a warning and that single command is
// dropped; the rest of the commands configured for name still queue.
func (r *Runner) Add(name string, kwargs map[string]string) {
	templates, ok := r.commands[name]
	if !ok || len(templates) == 0 {
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, seen := r.byName[name]; !seen {
		r.names = append(r.names, name)
	}

	for _, template := range templates {
		parser := shellwords.NewParser()
		argv, err := parser.Parse(template)
		if err != nil {
			log.Logger.Warn().Err(err).Str("hook", name).Str("command", template).
				Msg("hooks: failed to tokenize command")
			continue
		}

		resolved, err := substitute(argv, kwargs)
		if err != nil {
			log.Logger.Warn().Err(err).Str("hook", name).Str("command", template).
				Msg("hooks: unknown substitution key, skipping command")
			continue
		}

		r.byName[name] = append(r.byName[name], invocation{hookName: name, argv: resolved})
	}
}

// substitute replaces {key} placeholders in each argv token with kwargs[key].
func substitute(argv []string, kwargs map[string]string) ([]string, error) {
	out := make([]string, len(argv))
	for i, tok := range argv {
		resolved := tok
		var missing string
		resolved = placeholderPattern.ReplaceAllStringFunc(resolved, func(m string) string {
			key := placeholderPattern.FindStringSubmatch(m)[1]
			val, ok := kwargs[key]
			if !ok {
				missing = key
				return m
			}
			return val
		})
		if missing != "" {
			return nil, fmt.Errorf("unknown substitution key %q", missing)
		}
		out[i] = resolved
	}
	return out, nil
}

// Call executes every queued invocation synchronously, grouped by hook
// name in insertion order and, within a name, in the order Add queued
// them. A non-zero exit is logged as a warning; execution continues with
// the next hook. The queue is emptied once Call returns, whether or not
// every invocation succeeded — hooks never abort the caller.
func (r *Runner) Call() {
	r.mu.Lock()
	names := r.names
	byName := r.byName
	r.names = nil
	r.byName = make(map[string][]invocation)
	r.mu.Unlock()

	for _, name := range names {
		for _, inv := range byName[name] {
			if len(inv.argv) == 0 {
				continue
			}
			cmd := exec.Command(inv.argv[0], inv.argv[1:]...)
			output, err := cmd.CombinedOutput()
			if err != nil {
				log.Logger.Warn().Err(err).Str("hook", name).Str("output", strings.TrimSpace(string(output))).
					Msg("hooks: command exited non-zero")
				continue
			}
			log.Logger.Debug().Str("hook", name).Str("output", strings.TrimSpace(string(output))).Msg("hooks: command completed")
		}
	}
}
