// Package pathing turns a raw hierarchy trail from the records system into a
// canonical destination path. Resolution is pure: same inputs, same output,
// no filesystem access.
package pathing

import (
	"log/slog"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/brensch/vmrmigrate/internal/config"
)

// UnknownLevel is substituted for hierarchy depths the trail doesn't reach.
const UnknownLevel = "Unknown"

// FileNameKey is the reserved template placeholder for the document name.
const FileNameKey = "FileName"

var (
	placeholderRe = regexp.MustCompile(`\{\{([^{}]+)\}\}`)
	backrefRe     = regexp.MustCompile(`\\(\d+)`)
	// Characters that are invalid in filenames on at least one target OS.
	invalidChars = strings.NewReplacer(
		":", "", "*", "", "?", "", `"`, "", "<", "", ">", "", "|", "",
	)
)

// Resolver renders destination paths from hierarchy trails. Rewrite patterns
// are compiled once at construction; rules that fail to compile are kept so
// the per-value warning can name them, but never applied.
type Resolver struct {
	levels   []string
	template string
	rewrites []compiledRule
	logger   *slog.Logger
}

type compiledRule struct {
	level       string
	re          *regexp.Regexp
	replacement string
	raw         string
}

// NewResolver builds a Resolver from config. Invalid rewrite patterns are
// warned about once here and skipped during resolution.
func NewResolver(cfg config.Config, logger *slog.Logger) *Resolver {
	r := &Resolver{
		levels:   cfg.HierarchyLevels,
		template: cfg.PathTemplate,
		logger:   logger,
	}
	for _, rule := range cfg.Rewrites {
		cr := compiledRule{
			level:       rule.Level,
			replacement: translateBackrefs(rule.Replacement),
			raw:         rule.Pattern,
		}
		re, err := regexp.Compile(rule.Pattern)
		if err != nil {
			logger.Warn("skipping unparseable rewrite rule",
				slog.String("level", rule.Level),
				slog.String("pattern", rule.Pattern),
				slog.String("error", err.Error()))
		} else {
			cr.re = re
		}
		r.rewrites = append(r.rewrites, cr)
	}
	return r
}

// Resolve maps a hierarchy trail and filename to a relative destination
// path. Levels beyond the trail's depth resolve to UnknownLevel; unresolved
// template placeholders are left literal.
func (r *Resolver) Resolve(hierarchy []string, filename string) string {
	values := make(map[string]string, len(r.levels)+1)
	for i, name := range r.levels {
		if i < len(hierarchy) {
			values[name] = strings.TrimSpace(hierarchy[i])
		} else {
			values[name] = UnknownLevel
		}
	}
	values[FileNameKey] = strings.TrimSpace(filename)

	for _, rule := range r.rewrites {
		if rule.re == nil {
			continue
		}
		cur, ok := values[rule.level]
		if !ok {
			continue
		}
		values[rule.level] = strings.TrimSpace(rule.re.ReplaceAllString(cur, rule.replacement))
	}

	rendered := placeholderRe.ReplaceAllStringFunc(r.template, func(ph string) string {
		key := strings.TrimSpace(ph[2 : len(ph)-2])
		if v, ok := values[key]; ok {
			return v
		}
		return ph
	})

	rendered = invalidChars.Replace(rendered)
	return filepath.FromSlash(rendered)
}

// translateBackrefs rewrites \1-style group references to Go's ${1} form so
// configs written against the original tooling keep their meaning.
func translateBackrefs(replacement string) string {
	return backrefRe.ReplaceAllStringFunc(replacement, func(m string) string {
		return "${" + m[1:] + "}"
	})
}
